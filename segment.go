package segmap

import (
	"context"
	"math"
	"sync"
	"sync/atomic"
	"unsafe"

	"github.com/streamsupport/streamsupport-sub002/internal/opt"
)

// entry is a node of a bucket chain. key, hash and next are fixed once the
// entry is published: unlinking or moving an entry clones the nodes in front
// of it and shares the rest, so a reader holding an old chain never sees it
// torn or cyclic. Only value changes in place.
type entry[K comparable, V any] struct {
	key   K
	hash  uint32
	value atomic.Pointer[V]
	next  *entry[K, V]
}

func newEntry[K comparable, V any](
	key K,
	hash uint32,
	next *entry[K, V],
	value *V,
) *entry[K, V] {
	e := &entry[K, V]{key: key, hash: hash, next: next}
	e.value.Store(value)
	return e
}

// bucketTable is a segment's bucket array. Its length never changes;
// growing a segment publishes a new bucketTable.
type bucketTable[K comparable, V any] struct {
	buckets []atomic.Pointer[entry[K, V]]
	mask    uint32
}

func newBucketTable[K comparable, V any](tableLen int) *bucketTable[K, V] {
	return &bucketTable[K, V]{
		buckets: make([]atomic.Pointer[entry[K, V]], tableLen),
		mask:    uint32(tableLen - 1),
	}
}

//go:nosplit
func (t *bucketTable[K, V]) first(hash uint32) *entry[K, V] {
	return t.buckets[hash&t.mask].Load()
}

// segment is an independently locked hash table covering the keys whose
// spread hash routes to it.
//
// Concurrency rules:
//   - mu guards every mutation; at most one writer per segment.
//   - count and modCount are written under mu and read without it by
//     get, containsKey, iteration and the aggregate operations.
//   - table is replaced, never mutated in length, so a reader that loaded it
//     keeps a consistent (if stale) view.
type segment[K comparable, V any] struct {
	mu sync.Mutex
	// table is the current bucket array.
	table atomic.Pointer[bucketTable[K, V]]
	// count is the number of entries.
	count atomic.Int32
	// modCount is bumped by every insert, delete and clear, never by a value
	// replacement. Aggregate operations compare it across two sweeps.
	modCount atomic.Uint32
	// threshold is len(table.buckets) * loadFactor.
	threshold  int
	loadFactor float64

	_ [(cacheLineSize - unsafe.Sizeof(segmentFields{})%cacheLineSize) %
		cacheLineSize * opt.PaddingMult_]byte
}

// segmentFields mirrors the layout of segment without its padding.
type segmentFields struct {
	mu         sync.Mutex
	table      unsafe.Pointer
	count      int32
	modCount   uint32
	threshold  int
	loadFactor float64
}

func (s *segment[K, V]) init(tableLen int, loadFactor float64) {
	s.loadFactor = loadFactor
	s.setTable(newBucketTable[K, V](tableLen))
}

// setTable publishes t and recomputes the threshold. Call with mu held, or
// before the segment is shared.
func (s *segment[K, V]) setTable(t *bucketTable[K, V]) {
	threshold := float64(len(t.buckets)) * s.loadFactor
	if threshold >= math.MaxInt32 {
		s.threshold = math.MaxInt32
	} else {
		s.threshold = int(threshold)
	}
	s.table.Store(t)
}

// ============================================================================
// Reads
// ============================================================================

func (s *segment[K, V]) get(key *K, hash uint32) (value V, ok bool) {
	if s.count.Load() != 0 {
		for e := s.table.Load().first(hash); e != nil; e = e.next {
			if e.hash == hash && e.key == *key {
				if v := e.value.Load(); v != nil {
					return *v, true
				}
				return s.readValueUnderLock(e)
			}
		}
	}
	return *new(V), false
}

func (s *segment[K, V]) containsKey(key *K, hash uint32) bool {
	if s.count.Load() != 0 {
		for e := s.table.Load().first(hash); e != nil; e = e.next {
			if e.hash == hash && e.key == *key {
				return true
			}
		}
	}
	return false
}

// readValueUnderLock re-reads a value observed as unset. Values are stored
// before their entry is published, so this only guards against a memory
// model weaker than the one sync/atomic documents.
//
//go:noinline
func (s *segment[K, V]) readValueUnderLock(e *entry[K, V]) (value V, ok bool) {
	s.mu.Lock()
	v := e.value.Load()
	s.mu.Unlock()
	if v == nil {
		return *new(V), false
	}
	return *v, true
}

// containsValue scans the whole segment. locked tells that the caller
// already holds mu.
func (s *segment[K, V]) containsValue(
	value *V,
	valEqual EqualFunc,
	locked bool,
) bool {
	if s.count.Load() == 0 {
		return false
	}
	tab := s.table.Load()
	for i := range tab.buckets {
		for e := tab.buckets[i].Load(); e != nil; e = e.next {
			v := e.value.Load()
			if v == nil && !locked {
				s.mu.Lock()
				v = e.value.Load()
				s.mu.Unlock()
			}
			if v != nil && valEqual(
				noescape(unsafe.Pointer(v)),
				noescape(unsafe.Pointer(value)),
			) {
				return true
			}
		}
	}
	return false
}

// rangeEntries calls fn for every entry of the bucket array current at the
// time of the call. ctx is checked between buckets.
func (s *segment[K, V]) rangeEntries(
	ctx context.Context,
	fn func(key K, value V) error,
) error {
	if s.count.Load() == 0 {
		return nil
	}
	tab := s.table.Load()
	for i := range tab.buckets {
		if err := ctx.Err(); err != nil {
			return err
		}
		for e := tab.buckets[i].Load(); e != nil; e = e.next {
			v := e.value.Load()
			if v == nil {
				continue
			}
			if err := fn(e.key, *v); err != nil {
				return err
			}
		}
	}
	return nil
}

// ============================================================================
// Locking
// ============================================================================

// lock acquires mu for a write to the chain of hash.
func (s *segment[K, V]) lock(key *K, hash uint32) {
	if s.mu.TryLock() {
		return
	}
	s.scanAndLock(key, hash)
}

// scanAndLock retries TryLock while walking the chain the caller is about to
// modify, so the nodes are likely cached once the lock is held. After
// maxScanRetries failed attempts it blocks. The walk restarts whenever the
// chain head changes.
//
//go:noinline
func (s *segment[K, V]) scanAndLock(key *K, hash uint32) {
	first := s.table.Load().first(hash)
	e := first
	retries := -1
	for !s.mu.TryLock() {
		if retries < 0 {
			if e == nil || (e.hash == hash && e.key == *key) {
				retries = 0
			} else {
				e = e.next
			}
			continue
		}
		retries++
		if retries > maxScanRetries {
			s.mu.Lock()
			return
		}
		if retries&1 == 0 {
			if f := s.table.Load().first(hash); f != first {
				first, e, retries = f, f, -1
			}
		}
	}
}

// lockAll acquires every segment lock in ascending index order.
func lockAll[K comparable, V any](segments []segment[K, V]) {
	for i := range segments {
		segments[i].mu.Lock()
	}
}

func unlockAll[K comparable, V any](segments []segment[K, V]) {
	for i := range segments {
		segments[i].mu.Unlock()
	}
}

// ============================================================================
// Writes
// ============================================================================

// findLocked returns the entry for key. Call with mu held.
func (s *segment[K, V]) findLocked(key *K, hash uint32) *entry[K, V] {
	for e := s.table.Load().first(hash); e != nil; e = e.next {
		if e.hash == hash && e.key == *key {
			return e
		}
	}
	return nil
}

// put stores value for key, or only reports the current value when
// onlyIfAbsent is set and key is present. The segment grows first when one
// more entry would exceed the threshold; growths counts those rehashes.
func (s *segment[K, V]) put(
	key *K,
	hash uint32,
	value *V,
	onlyIfAbsent bool,
	growths *atomic.Uint32,
) (previous V, loaded bool) {
	s.lock(key, hash)
	defer s.mu.Unlock()

	c := s.count.Load()
	if int(c)+1 > s.threshold && s.rehash() {
		growths.Add(1)
	}
	tab := s.table.Load()
	slot := &tab.buckets[hash&tab.mask]
	first := slot.Load()
	for e := first; e != nil; e = e.next {
		if e.hash == hash && e.key == *key {
			old := e.value.Load()
			if !onlyIfAbsent {
				e.value.Store(value)
			}
			return *old, true
		}
	}
	s.modCount.Add(1)
	slot.Store(newEntry(*key, hash, first, value))
	s.count.Store(c + 1)
	return *new(V), false
}

// remove unlinks key. With a non-nil expected the entry is only removed
// while its value equals *expected.
func (s *segment[K, V]) remove(
	key *K,
	hash uint32,
	expected *V,
	valEqual EqualFunc,
) (previous V, loaded bool) {
	s.lock(key, hash)
	defer s.mu.Unlock()

	tab := s.table.Load()
	slot := &tab.buckets[hash&tab.mask]
	first := slot.Load()
	e := first
	for e != nil && (e.hash != hash || e.key != *key) {
		e = e.next
	}
	if e == nil {
		return *new(V), false
	}
	v := e.value.Load()
	if expected != nil && !valEqual(
		noescape(unsafe.Pointer(v)),
		noescape(unsafe.Pointer(expected)),
	) {
		return *new(V), false
	}

	// Entries after e stay shared; entries before it are cloned in front
	// of them.
	s.modCount.Add(1)
	newFirst := e.next
	for p := first; p != e; p = p.next {
		newFirst = newEntry(p.key, p.hash, newFirst, p.value.Load())
	}
	slot.Store(newFirst)
	s.count.Store(s.count.Load() - 1)
	return *v, true
}

// replace overwrites the value of a present key.
func (s *segment[K, V]) replace(
	key *K,
	hash uint32,
	value *V,
) (previous V, replaced bool) {
	s.lock(key, hash)
	defer s.mu.Unlock()

	e := s.findLocked(key, hash)
	if e == nil {
		return *new(V), false
	}
	old := e.value.Load()
	e.value.Store(value)
	return *old, true
}

// compareAndReplace overwrites the value of key while it equals *old.
func (s *segment[K, V]) compareAndReplace(
	key *K,
	hash uint32,
	old, new *V,
	valEqual EqualFunc,
) bool {
	s.lock(key, hash)
	defer s.mu.Unlock()

	e := s.findLocked(key, hash)
	if e == nil {
		return false
	}
	if !valEqual(
		noescape(unsafe.Pointer(e.value.Load())),
		noescape(unsafe.Pointer(old)),
	) {
		return false
	}
	e.value.Store(new)
	return true
}

func (s *segment[K, V]) clear() {
	if s.count.Load() == 0 {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	tab := s.table.Load()
	for i := range tab.buckets {
		tab.buckets[i].Store(nil)
	}
	s.modCount.Add(1)
	s.count.Store(0)
}

// rehash doubles the bucket array; it reports false when the segment is
// already at maximumCapacity. Call with mu held.
//
// Doubling splits bucket i into buckets i and i+oldLen. The trailing run of
// each chain whose nodes all land in the same new bucket is moved by
// reference; the nodes before it are cloned, leaving the old chains intact
// for readers still walking the old array. The new array is published once,
// after every bucket is moved.
func (s *segment[K, V]) rehash() bool {
	oldTable := s.table.Load()
	oldLen := len(oldTable.buckets)
	if oldLen >= maximumCapacity {
		return false
	}

	newTable := newBucketTable[K, V](oldLen << 1)
	mask := newTable.mask
	for i := range oldTable.buckets {
		e := oldTable.buckets[i].Load()
		if e == nil {
			continue
		}
		idx := e.hash & mask
		if e.next == nil {
			newTable.buckets[idx].Store(e)
			continue
		}

		lastRun, lastIdx := e, idx
		for last := e.next; last != nil; last = last.next {
			if k := last.hash & mask; k != lastIdx {
				lastIdx, lastRun = k, last
			}
		}
		newTable.buckets[lastIdx].Store(lastRun)

		for p := e; p != lastRun; p = p.next {
			k := p.hash & mask
			n := newTable.buckets[k].Load()
			newTable.buckets[k].Store(newEntry(p.key, p.hash, n, p.value.Load()))
		}
	}
	s.setTable(newTable)
	return true
}
