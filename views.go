package segmap

import (
	"iter"
	"unsafe"
)

// Collection is the read and remove surface shared by the views of a Map.
// Views hold no state of their own: every call goes to the backing Map, so
// a view reflects concurrent writes as the Map does.
type Collection[T any] interface {
	Size() int
	IsEmpty() bool
	Contains(item T) bool
	Clear()
	All() iter.Seq[T]
}

var (
	_ Collection[int]              = KeySet[int, string]{}
	_ Collection[string]           = ValueCollection[int, string]{}
	_ Collection[*Entry[int, int]] = EntrySet[int, int]{}
)

// ============================================================================
// KeySet
// ============================================================================

// KeySet is a view of the keys of a Map. Adding is not supported; removing
// a key removes its entry.
type KeySet[K comparable, V any] struct {
	m *Map[K, V]
}

// KeySet returns a view of the keys.
func (m *Map[K, V]) KeySet() KeySet[K, V] {
	return KeySet[K, V]{m: m}
}

func (s KeySet[K, V]) Size() int { return s.m.Size() }
func (s KeySet[K, V]) IsEmpty() bool { return s.m.IsEmpty() }
func (s KeySet[K, V]) Contains(key K) bool { return s.m.ContainsKey(key) }
func (s KeySet[K, V]) Clear() { s.m.Clear() }
func (s KeySet[K, V]) All() iter.Seq[K] { return s.m.Keys() }

// Remove deletes key from the map and reports whether it was present.
func (s KeySet[K, V]) Remove(key K) bool {
	_, loaded := s.m.Remove(key)
	return loaded
}

// Iterator returns an iterator over the keys.
func (s KeySet[K, V]) Iterator() *KeyIterator[K, V] {
	return &KeyIterator[K, V]{it: s.m.Iterator()}
}

// KeyIterator is an Iterator yielding keys.
type KeyIterator[K comparable, V any] struct {
	it *Iterator[K, V]
}

func (k *KeyIterator[K, V]) HasNext() bool { return k.it.HasNext() }
func (k *KeyIterator[K, V]) Next() (K, error) { return k.it.NextKey() }
func (k *KeyIterator[K, V]) Remove() error { return k.it.Remove() }

// ============================================================================
// ValueCollection
// ============================================================================

// ValueCollection is a view of the values of a Map. A value appears once
// per key mapped to it.
type ValueCollection[K comparable, V any] struct {
	m *Map[K, V]
}

// ValueCollection returns a view of the values.
func (m *Map[K, V]) ValueCollection() ValueCollection[K, V] {
	return ValueCollection[K, V]{m: m}
}

func (c ValueCollection[K, V]) Size() int { return c.m.Size() }
func (c ValueCollection[K, V]) IsEmpty() bool { return c.m.IsEmpty() }
func (c ValueCollection[K, V]) Clear() { c.m.Clear() }
func (c ValueCollection[K, V]) All() iter.Seq[V] { return c.m.Values() }

// Contains is Map.ContainsValue and panics in the same cases.
func (c ValueCollection[K, V]) Contains(value V) bool {
	return c.m.ContainsValue(value)
}

// Iterator returns an iterator over the values.
func (c ValueCollection[K, V]) Iterator() *ValueIterator[K, V] {
	return &ValueIterator[K, V]{it: c.m.Iterator()}
}

// ValueIterator is an Iterator yielding values.
type ValueIterator[K comparable, V any] struct {
	it *Iterator[K, V]
}

func (v *ValueIterator[K, V]) HasNext() bool { return v.it.HasNext() }
func (v *ValueIterator[K, V]) Next() (V, error) { return v.it.NextValue() }
func (v *ValueIterator[K, V]) Remove() error { return v.it.Remove() }

// ============================================================================
// EntrySet
// ============================================================================

// EntrySet is a view of the entries of a Map.
type EntrySet[K comparable, V any] struct {
	m *Map[K, V]
}

// EntrySet returns a view of the entries.
func (m *Map[K, V]) EntrySet() EntrySet[K, V] {
	return EntrySet[K, V]{m: m}
}

func (s EntrySet[K, V]) Size() int { return s.m.Size() }
func (s EntrySet[K, V]) IsEmpty() bool { return s.m.IsEmpty() }
func (s EntrySet[K, V]) Clear() { s.m.Clear() }

// Contains reports whether the entry's key is currently mapped to the
// entry's value. It panics when values cannot be compared.
func (s EntrySet[K, V]) Contains(e *Entry[K, V]) bool {
	if e == nil {
		return false
	}
	v, ok := s.m.Get(e.key)
	if !ok {
		return false
	}
	valEqual := s.m.mustValEqual("EntrySet.Contains")
	return valEqual(noescape(unsafe.Pointer(&v)), noescape(unsafe.Pointer(&e.value)))
}

// Remove deletes the entry's key only while it is mapped to the entry's
// value.
func (s EntrySet[K, V]) Remove(e *Entry[K, V]) bool {
	if e == nil {
		return false
	}
	return s.m.RemoveValue(e.key, e.value)
}

// Iterator returns an iterator over the entries.
func (s EntrySet[K, V]) Iterator() *Iterator[K, V] {
	return s.m.Iterator()
}

// All returns a sequence of write-through entries.
func (s EntrySet[K, V]) All() iter.Seq[*Entry[K, V]] {
	return func(yield func(*Entry[K, V]) bool) {
		s.m.Range(func(key K, value V) bool {
			return yield(&Entry[K, V]{m: s.m, key: key, value: value})
		})
	}
}
