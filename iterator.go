package segmap

import "iter"

// Iterator walks the entries of a Map.
//
// Iteration is weakly consistent: it never fails because of concurrent
// writes, returns every entry present for the whole walk exactly once, and
// may or may not return entries inserted or removed while it runs.
// Segments are visited from the last to the first and, within a segment,
// buckets from the highest index down. Each segment's bucket array is
// captured when the walk reaches it; a later resize of that segment does
// not affect the walk.
//
// An Iterator must not be used by several goroutines at once.
type Iterator[K comparable, V any] struct {
	m           *Map[K, V]
	segments    []segment[K, V]
	nextSegment int
	nextBucket  int
	table       *bucketTable[K, V]
	next        *entry[K, V]
	last        *entry[K, V]
}

// Iterator returns a new Iterator positioned before the first entry.
func (m *Map[K, V]) Iterator() *Iterator[K, V] {
	segments := m.loadTable().segments
	it := &Iterator[K, V]{
		m:           m,
		segments:    segments,
		nextSegment: len(segments) - 1,
		nextBucket:  -1,
	}
	it.advance()
	return it
}

// advance moves next to the following entry, or to nil at the end.
func (it *Iterator[K, V]) advance() {
	for {
		if it.nextBucket >= 0 {
			it.next = it.table.buckets[it.nextBucket].Load()
			it.nextBucket--
			if it.next != nil {
				return
			}
		} else if it.nextSegment >= 0 {
			s := &it.segments[it.nextSegment]
			it.nextSegment--
			if s.count.Load() != 0 {
				it.table = s.table.Load()
				it.nextBucket = len(it.table.buckets) - 1
			}
		} else {
			it.table = nil
			return
		}
	}
}

// nextEntry returns the following entry and its value, or nil at the end.
func (it *Iterator[K, V]) nextEntry() (*entry[K, V], V) {
	for {
		e := it.next
		if e == nil {
			return nil, *new(V)
		}
		it.last = e
		if it.next = e.next; it.next == nil {
			it.advance()
		}
		if v := e.value.Load(); v != nil {
			return e, *v
		}
	}
}

// HasNext reports whether Next has another entry to return.
func (it *Iterator[K, V]) HasNext() bool {
	return it.next != nil
}

// Next returns the following entry, or ErrNoSuchElement once the walk is
// exhausted.
func (it *Iterator[K, V]) Next() (*Entry[K, V], error) {
	e, v := it.nextEntry()
	if e == nil {
		return nil, ErrNoSuchElement
	}
	return &Entry[K, V]{m: it.m, key: e.key, value: v}, nil
}

// NextKey is Next returning only the key.
func (it *Iterator[K, V]) NextKey() (K, error) {
	e, _ := it.nextEntry()
	if e == nil {
		return *new(K), ErrNoSuchElement
	}
	return e.key, nil
}

// NextValue is Next returning only the value.
func (it *Iterator[K, V]) NextValue() (V, error) {
	e, v := it.nextEntry()
	if e == nil {
		return *new(V), ErrNoSuchElement
	}
	return v, nil
}

// Remove deletes the key of the entry last returned by Next, NextKey or
// NextValue from the map. It returns ErrIllegalState if nothing has been
// returned yet or the entry was already removed through the Iterator.
func (it *Iterator[K, V]) Remove() error {
	if it.last == nil {
		return ErrIllegalState
	}
	it.m.Remove(it.last.key)
	it.last = nil
	return nil
}

// ============================================================================
// Range-over-func adapters
// ============================================================================

// Range calls yield for each entry until yield returns false. It follows
// the Iterator's weak consistency and never blocks.
func (m *Map[K, V]) Range(yield func(key K, value V) bool) {
	it := m.Iterator()
	for {
		e, v := it.nextEntry()
		if e == nil || !yield(e.key, v) {
			return
		}
	}
}

// All compatible with `sync.Map`.
func (m *Map[K, V]) All() iter.Seq2[K, V] {
	return m.Range
}

// Keys returns a sequence of the keys.
func (m *Map[K, V]) Keys() iter.Seq[K] {
	return func(yield func(K) bool) {
		m.Range(func(key K, _ V) bool {
			return yield(key)
		})
	}
}

// Values returns a sequence of the values.
func (m *Map[K, V]) Values() iter.Seq[V] {
	return func(yield func(V) bool) {
		m.Range(func(_ K, value V) bool {
			return yield(value)
		})
	}
}
