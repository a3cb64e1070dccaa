package segmap

import "fmt"

// Entry is a key-value pair returned by an Iterator. Value is the value
// observed when the entry was returned; SetValue writes through to the map.
type Entry[K comparable, V any] struct {
	m     *Map[K, V]
	key   K
	value V
}

// Key returns the entry's key.
func (e *Entry[K, V]) Key() K {
	return e.key
}

// Value returns the value the entry was read with, or the last value set
// through SetValue.
func (e *Entry[K, V]) Value() V {
	return e.value
}

// SetValue stores value for the entry's key in the map and returns the value
// the entry held before. The key is stored even if it was removed from the
// map after the entry was read.
//
// It panics with ErrNilValue for a nil value.
func (e *Entry[K, V]) SetValue(value V) (previous V) {
	e.m.checkValue(value)
	previous, e.value = e.value, value
	e.m.Put(e.key, value)
	return previous
}

func (e *Entry[K, V]) String() string {
	return fmt.Sprintf("%v=%v", e.key, e.value)
}
