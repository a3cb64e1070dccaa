package segmap

import (
	"hash/maphash"
	"reflect"
	"runtime"
	"unsafe"

	"github.com/streamsupport/streamsupport-sub002/internal/opt"
)

// ============================================================================
// Private Constants
// ============================================================================

// cacheLineSize is the size of a cache line in bytes.
const cacheLineSize = opt.CacheLineSize_

const (
	// defaultInitialCapacity is used when WithCapacity is not given.
	defaultInitialCapacity = 16
	// defaultLoadFactor is used when WithLoadFactor is not given.
	defaultLoadFactor = 0.75
	// defaultConcurrencyLevel is used when WithConcurrencyLevel is not given.
	defaultConcurrencyLevel = 16
	// maximumCapacity bounds both the requested initial capacity and the
	// bucket array of every segment. Must be a power of 2.
	maximumCapacity = 1 << 30
	// minSegmentTableCapacity is the smallest per-segment bucket array.
	// Must be a power of 2, at least 2, so a segment never resizes on its
	// first insert.
	minSegmentTableCapacity = 2
	// maxSegments bounds the concurrency level.
	maxSegments = 1 << 16
	// retriesBeforeLock is the number of unsynchronized sweeps Size,
	// IsEmpty and ContainsValue try before locking every segment.
	retriesBeforeLock = 2
)

// maxScanRetries bounds the TryLock spins of a contended writer before it
// blocks on the segment lock.
var maxScanRetries = func() int {
	if runtime.NumCPU() > 1 {
		return 64
	}
	return 1
}()

const (
	intSize = 32 << (^uint(0) >> 63) // 32 or 64
	maxInt  = 1<<(intSize-1) - 1     // MaxInt32 or MaxInt64 depending on intSize.
)

// ============================================================================
// Utility Functions
// ============================================================================

// nextPowOf2 calculates the smallest power of 2 that is greater than or equal
// to n.
// Compatible with both 32-bit and 64-bit systems.
//
//go:nosplit
func nextPowOf2(n int) int {
	if n <= 0 {
		return 1
	}
	v := n - 1
	v |= v >> 1
	v |= v >> 2
	v |= v >> 4
	v |= v >> 8
	v |= v >> 16
	if intSize == 64 {
		v |= v >> 32
	}
	return v + 1
}

// calcSegments returns the number of segments and the shift that routes a
// spread hash to its segment. The count is the smallest power of 2 not below
// concurrencyLevel, clamped to maxSegments.
func calcSegments(concurrencyLevel int) (ssize int, shift uint32) {
	concurrencyLevel = min(concurrencyLevel, maxSegments)
	sshift := 0
	ssize = 1
	for ssize < concurrencyLevel {
		sshift++
		ssize <<= 1
	}
	return ssize, uint32(32 - sshift)
}

// calcSegmentCapacity returns the initial bucket array length of each
// segment: ceil(capacity / ssize) rounded up to a power of 2.
func calcSegmentCapacity(capacity, ssize int) int {
	capacity = min(capacity, maximumCapacity)
	c := capacity / ssize
	if c*ssize < capacity {
		c++
	}
	tableLen := minSegmentTableCapacity
	for tableLen < c {
		tableLen <<= 1
	}
	return tableLen
}

// noescape hides a pointer from escape analysis. noescape is
// the identity function, but escape analysis doesn't think the
// output depends on the input.  noescape is inlined and currently
// compiles down to zero instructions.
// USE CAREFULLY!
//
//go:nosplit
//go:nocheckptr
func noescape(p unsafe.Pointer) unsafe.Pointer {
	x := uintptr(p)
	//nolint:all
	//goland:noinspection ALL
	return unsafe.Pointer(x ^ 0)
}

// noCopy may be added to structs which must not be copied
// after the first use.
//
// See https://golang.org/issues/8005#issuecomment-190753527
// for details.
//
// Note that it must not be embedded, due to the Lock and Unlock methods.
type noCopy struct{}

// Lock is a no-op used by -copylocks checker from `go vet`.
func (*noCopy) Lock()   {}
func (*noCopy) Unlock() {}

// ============================================================================
// Hash Utilities
// ============================================================================

// spread folds a raw key hash to 32 bits and runs the murmur3 fmix32
// finalizer over it, so that every input bit affects both the high bits
// (segment selection) and the low bits (bucket selection).
//
//go:nosplit
func spread(h uintptr) uint32 {
	x := uint32(h) ^ uint32(uint64(h)>>32)
	x ^= x >> 16
	x *= 0x85ebca6b
	x ^= x >> 13
	x *= 0xc2b2ae35
	x ^= x >> 16
	return x
}

type (
	// HashFunc is the function to hash a value of type K.
	HashFunc func(ptr unsafe.Pointer, seed uintptr) uintptr
	// EqualFunc is the function to compare two values of type V.
	EqualFunc func(ptr unsafe.Pointer, other unsafe.Pointer) bool
)

// defaultHasher picks the key hash and value equality used when neither an
// option nor an interface implementation supplies them. Integer keys hash to
// themselves; spread provides the avalanche. valEqual is nil when V is not
// comparable.
func defaultHasher[K comparable, V any]() (
	keyHash HashFunc,
	valEqual EqualFunc,
) {
	valEqual = defaultValueEqual[V]()

	switch any(*new(K)).(type) {
	case uint, int, uintptr:
		return hashUintptr, valEqual
	case uint64, int64:
		return hashUint64, valEqual
	case uint32, int32:
		return hashUint32, valEqual
	case uint16, int16:
		return hashUint16, valEqual
	case uint8, int8:
		return hashUint8, valEqual
	default:
		kType := reflect.TypeFor[K]()
		switch kType.Kind() {
		case reflect.Uint, reflect.Int, reflect.Uintptr:
			return hashUintptr, valEqual
		case reflect.Int64, reflect.Uint64:
			return hashUint64, valEqual
		case reflect.Int32, reflect.Uint32:
			return hashUint32, valEqual
		case reflect.Int16, reflect.Uint16:
			return hashUint16, valEqual
		case reflect.Int8, reflect.Uint8:
			return hashUint8, valEqual
		default:
			return comparableHasher[K](), valEqual
		}
	}
}

//go:nosplit
func hashUintptr(ptr unsafe.Pointer, _ uintptr) uintptr {
	return *(*uintptr)(ptr)
}

//go:nosplit
func hashUint64(ptr unsafe.Pointer, _ uintptr) uintptr {
	v := *(*uint64)(ptr)
	if intSize == 64 {
		return uintptr(v)
	}
	return uintptr(v) ^ uintptr(v>>32)
}

//go:nosplit
func hashUint32(ptr unsafe.Pointer, _ uintptr) uintptr {
	return uintptr(*(*uint32)(ptr))
}

//go:nosplit
func hashUint16(ptr unsafe.Pointer, _ uintptr) uintptr {
	return uintptr(*(*uint16)(ptr))
}

//go:nosplit
func hashUint8(ptr unsafe.Pointer, _ uintptr) uintptr {
	return uintptr(*(*uint8)(ptr))
}

// comparableHasher hashes any comparable key through hash/maphash. The
// per-map seed is mixed in after hashing so one maphash.Seed serves every
// map of the same key type.
func comparableHasher[K comparable]() HashFunc {
	seed := maphash.MakeSeed()
	return func(ptr unsafe.Pointer, s uintptr) uintptr {
		return uintptr(maphash.Comparable(seed, *(*K)(ptr))) ^ s
	}
}

func defaultValueEqual[V any]() EqualFunc {
	if !reflect.TypeFor[V]().Comparable() {
		return nil
	}
	return func(ptr unsafe.Pointer, other unsafe.Pointer) bool {
		return any(*(*V)(ptr)) == any(*(*V)(other))
	}
}

// ============================================================================
// Nil Checks
// ============================================================================

// nilable reports whether values of T can be nil.
func nilable[T any]() bool {
	switch reflect.TypeFor[T]().Kind() {
	case reflect.Interface, reflect.Pointer, reflect.Map, reflect.Slice,
		reflect.Func, reflect.Chan, reflect.UnsafePointer:
		return true
	default:
		return false
	}
}

// isNil reports whether v is nil. Only call it for nilable types. An
// interface is nil only without a dynamic type, so any((*T)(nil)) is not.
func isNil[T any](v T) bool {
	a := any(v)
	if a == nil {
		return true
	}
	if reflect.TypeFor[T]().Kind() == reflect.Interface {
		return false
	}
	rv := reflect.ValueOf(a)
	switch rv.Kind() {
	case reflect.Pointer, reflect.Map, reflect.Slice,
		reflect.Func, reflect.Chan, reflect.UnsafePointer:
		return rv.IsNil()
	default:
		return false
	}
}
