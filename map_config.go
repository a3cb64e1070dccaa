package segmap

import (
	"fmt"
	"unsafe"
)

// ============================================================================
// Configuration
// ============================================================================

// MapConfig defines configurable options for Map initialization.
// This structure contains all the configuration parameters that can be used
// to customize the behavior and performance characteristics of a Map
// instance.
type MapConfig struct {
	// keyHash specifies a custom hash function for keys.
	// If nil, the built-in hash function will be used.
	keyHash HashFunc

	// valEqual specifies a custom equality function for values.
	// If nil, the built-in equality comparison will be used.
	// It backs ContainsValue, RemoveValue and CompareAndReplace.
	// Note: those methods panic for non-comparable value types
	// when valEqual is nil.
	valEqual EqualFunc

	// capacity is the expected number of entries, spread evenly across
	// the segments. Each segment rounds its share up to a power of 2.
	capacity int

	// loadFactor is the per-segment occupancy above which a segment doubles
	// its bucket array.
	loadFactor float64

	// concurrencyLevel is the expected number of concurrently updating
	// goroutines. The number of segments is the smallest power of 2 not
	// below it.
	concurrencyLevel int
}

func defaultMapConfig() MapConfig {
	return MapConfig{
		capacity:         defaultInitialCapacity,
		loadFactor:       defaultLoadFactor,
		concurrencyLevel: defaultConcurrencyLevel,
	}
}

// validate reports invalid construction parameters.
func (c *MapConfig) validate() error {
	if c.capacity < 0 {
		return fmt.Errorf("%w: negative capacity %d", ErrInvalidArgument, c.capacity)
	}
	if !(c.loadFactor > 0) {
		return fmt.Errorf("%w: load factor %v must be positive", ErrInvalidArgument, c.loadFactor)
	}
	if c.concurrencyLevel <= 0 {
		return fmt.Errorf("%w: concurrency level %d must be positive",
			ErrInvalidArgument, c.concurrencyLevel)
	}
	return nil
}

// WithCapacity configures the initial capacity. The implementation
// performs internal sizing to accommodate this many entries without
// resizing. Must not be negative; the default is 16.
func WithCapacity(cap int) func(*MapConfig) {
	return func(c *MapConfig) {
		c.capacity = cap
	}
}

// WithLoadFactor configures the per-segment load factor used to decide when
// a segment grows. Must be positive; the default is 0.75.
func WithLoadFactor(loadFactor float64) func(*MapConfig) {
	return func(c *MapConfig) {
		c.loadFactor = loadFactor
	}
}

// WithConcurrencyLevel configures the estimated number of concurrently
// updating goroutines, which sets the number of independently locked
// segments. Must be positive; values above 65536 are clamped. The default
// is 16.
func WithConcurrencyLevel(level int) func(*MapConfig) {
	return func(c *MapConfig) {
		c.concurrencyLevel = level
	}
}

// WithKeyHasher sets a custom key hashing function for the map.
// The returned hash is spread before use, so it does not need to be well
// distributed in its low or high bits, but equal keys must hash equally.
//
// Usage:
//
//	m, err := NewMap[string, int](WithKeyHasher(myCustomHashFunc))
func WithKeyHasher[K comparable](
	keyHash func(key K, seed uintptr) uintptr,
) func(*MapConfig) {
	return func(c *MapConfig) {
		if keyHash != nil {
			c.keyHash = func(pointer unsafe.Pointer, u uintptr) uintptr {
				return keyHash(*(*K)(pointer), u)
			}
		}
	}
}

// WithValueEqual sets a custom value equality function for the map.
// This is essential for ContainsValue, RemoveValue and CompareAndReplace
// when working with non-comparable value types or custom equality logic.
//
// Usage:
//
//	EqualFunc := func(a, b MyStruct) bool {
//		return a.ID == b.ID && a.Name == b.Name
//	}
//	m, err := NewMap[string, MyStruct](WithValueEqual(EqualFunc))
func WithValueEqual[V any](
	valEqual func(val, val2 V) bool,
) func(*MapConfig) {
	return func(c *MapConfig) {
		if valEqual != nil {
			c.valEqual = func(val unsafe.Pointer, val2 unsafe.Pointer) bool {
				return valEqual(*(*V)(val), *(*V)(val2))
			}
		}
	}
}

// IHashFunc defines a custom hash function interface for key types.
// Key types implementing this interface can provide their own hash
// computation, serving as an alternative to WithKeyHasher.
//
// This interface is automatically detected during Map initialization and
// takes precedence over the default built-in hasher but is overridden by
// explicit WithKeyHasher configuration.
//
// Usage:
//
//	type UserID struct {
//		ID int64
//		Tenant string
//	}
//
//	func (u *UserID) HashFunc(seed uintptr) uintptr {
//		return uintptr(u.ID) ^ seed
//	}
type IHashFunc interface {
	HashFunc(seed uintptr) uintptr
}

// IEqualFunc defines a custom equality comparison interface for value types.
// Value types implementing this interface can provide their own equality
// logic, serving as an alternative to WithValueEqual.
//
// Usage:
//
//	type UserProfile struct {
//		Name string
//		Tags []string // slice makes this non-comparable
//	}
//
//	func (u *UserProfile) EqualFunc(other UserProfile) bool {
//		return u.Name == other.Name && slices.Equal(u.Tags, other.Tags)
//	}
type IEqualFunc[T any] interface {
	EqualFunc(other T) bool
}

func parseKeyInterface[K comparable]() (keyHash HashFunc) {
	var k *K
	if _, ok := any(k).(IHashFunc); ok {
		keyHash = func(ptr unsafe.Pointer, seed uintptr) uintptr {
			return any((*K)(ptr)).(IHashFunc).HashFunc(seed)
		}
	}
	return
}

func parseValueInterface[V any]() (valEqual EqualFunc) {
	var v *V
	if _, ok := any(v).(IEqualFunc[V]); ok {
		valEqual = func(ptr unsafe.Pointer, other unsafe.Pointer) bool {
			return any((*V)(ptr)).(IEqualFunc[V]).EqualFunc(*(*V)(other))
		}
	}
	return
}
