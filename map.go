package segmap

import (
	"fmt"
	"math/rand/v2"
	"strings"
	"sync"
	"sync/atomic"
	"unsafe"
)

// Map is a concurrent hash map split into a fixed number of independently
// locked segments.
//
// Core properties:
//   - Lock-free reads: Get, ContainsKey and iteration never block
//   - Writers only contend with writers of the same segment
//   - Segments grow independently; growth never disturbs in-flight reads
//   - Size, IsEmpty and ContainsValue validate lock-free sweeps and only
//     lock every segment when writers keep interfering
//
// Usage recommendations:
//   - Configure with NewMap(WithCapacity(n), WithConcurrencyLevel(w))
//   - Direct declaration (var m Map[string, int]) uses the defaults
//
// Notes:
//   - Nil keys and values are rejected with a panic (ErrNilKey, ErrNilValue).
//   - Map must not be copied after first use.
type Map[K comparable, V any] struct {
	_        noCopy
	table    atomic.Pointer[segmentTable[K, V]]
	initMu   sync.Mutex
	growths  atomic.Uint32
	seed     uintptr
	keyHash  HashFunc
	valEqual EqualFunc
	computing onceGroup[K, V]
}

// segmentTable is the immutable segment array of a Map.
type segmentTable[K comparable, V any] struct {
	segments []segment[K, V]
	// shift moves the high bits of a spread hash down to the segment index.
	shift uint32
	mask  uint32
}

// NewMap creates a new Map.
//
// Parameters:
//   - options: WithCapacity, WithLoadFactor, WithConcurrencyLevel,
//     WithKeyHasher, WithValueEqual
//
// It returns an error wrapping ErrInvalidArgument for a negative capacity,
// a non-positive load factor or a non-positive concurrency level.
func NewMap[K comparable, V any](
	options ...func(*MapConfig),
) (*Map[K, V], error) {
	cfg := defaultMapConfig()
	for _, o := range options {
		o(&cfg)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	m := &Map[K, V]{}
	m.init(&cfg)
	return m, nil
}

// NewMapFrom creates a Map holding the entries of src, sized with the
// configured load factor so that loading them does not grow any segment.
// WithCapacity only takes effect when it asks for more than src needs.
func NewMapFrom[K comparable, V any](
	src map[K]V,
	options ...func(*MapConfig),
) (*Map[K, V], error) {
	cfg := defaultMapConfig()
	for _, o := range options {
		o(&cfg)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	cfg.capacity = max(cfg.capacity, int(float64(len(src))/cfg.loadFactor)+1)
	m := &Map[K, V]{}
	m.init(&cfg)
	m.PutAll(src)
	return m, nil
}

func (m *Map[K, V]) init(cfg *MapConfig) *segmentTable[K, V] {
	// parse interface
	if cfg.keyHash == nil {
		cfg.keyHash = parseKeyInterface[K]()
	}
	if cfg.valEqual == nil {
		cfg.valEqual = parseValueInterface[V]()
	}
	// perform initialization
	m.keyHash, m.valEqual = defaultHasher[K, V]()
	if cfg.keyHash != nil {
		m.keyHash = cfg.keyHash
	}
	if cfg.valEqual != nil {
		m.valEqual = cfg.valEqual
	}
	m.seed = uintptr(rand.Uint64())

	ssize, shift := calcSegments(cfg.concurrencyLevel)
	tableLen := calcSegmentCapacity(cfg.capacity, ssize)
	table := &segmentTable[K, V]{
		segments: make([]segment[K, V], ssize),
		shift:    shift,
		mask:     uint32(ssize - 1),
	}
	for i := range table.segments {
		table.segments[i].init(tableLen, cfg.loadFactor)
	}
	m.table.Store(table)
	return table
}

// slowInit configures a zero-value Map with the defaults.
//
//go:noinline
func (m *Map[K, V]) slowInit() *segmentTable[K, V] {
	m.initMu.Lock()
	defer m.initMu.Unlock()
	if table := m.table.Load(); table != nil {
		return table
	}
	cfg := defaultMapConfig()
	return m.init(&cfg)
}

func (m *Map[K, V]) loadTable() *segmentTable[K, V] {
	if table := m.table.Load(); table != nil {
		return table
	}
	return m.slowInit()
}

// segmentFor routes a spread hash to its segment by its high bits.
//
//go:nosplit
func (t *segmentTable[K, V]) segmentFor(hash uint32) *segment[K, V] {
	return &t.segments[(hash>>t.shift)&t.mask]
}

func (m *Map[K, V]) hash(key *K) uint32 {
	return spread(m.keyHash(noescape(unsafe.Pointer(key)), m.seed))
}

// checkKey and checkValue depend only on the types, so they run before
// loadTable and never touch initMu.
func (m *Map[K, V]) checkKey(key K) {
	if nilable[K]() && isNil(key) {
		panic(ErrNilKey)
	}
}

func (m *Map[K, V]) checkValue(value V) {
	if nilable[V]() && isNil(value) {
		panic(ErrNilValue)
	}
}

func (m *Map[K, V]) mustValEqual(op string) EqualFunc {
	if m.valEqual == nil {
		panic("segmap: called " + op + " when value is not of comparable type")
	}
	return m.valEqual
}

// ============================================================================
// Point operations
// ============================================================================

// Get returns the value stored for key. It never blocks.
func (m *Map[K, V]) Get(key K) (value V, ok bool) {
	m.checkKey(key)
	table := m.loadTable()
	hash := m.hash(&key)
	return table.segmentFor(hash).get(&key, hash)
}

// ContainsKey reports whether key is present. It never blocks.
func (m *Map[K, V]) ContainsKey(key K) bool {
	m.checkKey(key)
	table := m.loadTable()
	hash := m.hash(&key)
	return table.segmentFor(hash).containsKey(&key, hash)
}

// Put stores value for key and returns the value it replaced, if any.
func (m *Map[K, V]) Put(key K, value V) (previous V, loaded bool) {
	m.checkKey(key)
	m.checkValue(value)
	table := m.loadTable()
	hash := m.hash(&key)
	return table.segmentFor(hash).put(&key, hash, &value, false, &m.growths)
}

// PutIfAbsent stores value for key unless key is present. When it is, the
// current value is returned with loaded set and the map is unchanged.
func (m *Map[K, V]) PutIfAbsent(key K, value V) (previous V, loaded bool) {
	m.checkKey(key)
	m.checkValue(value)
	table := m.loadTable()
	hash := m.hash(&key)
	return table.segmentFor(hash).put(&key, hash, &value, true, &m.growths)
}

// PutAll stores every entry of src. It is not atomic: concurrent readers
// may observe any subset of the entries while it runs.
func (m *Map[K, V]) PutAll(src map[K]V) {
	for k, v := range src {
		m.Put(k, v)
	}
}

// Remove deletes key and returns its value, if it was present.
func (m *Map[K, V]) Remove(key K) (previous V, loaded bool) {
	m.checkKey(key)
	table := m.loadTable()
	hash := m.hash(&key)
	return table.segmentFor(hash).remove(&key, hash, nil, m.valEqual)
}

// RemoveValue deletes key only while it is mapped to value.
func (m *Map[K, V]) RemoveValue(key K, value V) (removed bool) {
	m.checkKey(key)
	m.checkValue(value)
	table := m.loadTable()
	valEqual := m.mustValEqual("RemoveValue")
	hash := m.hash(&key)
	_, removed = table.segmentFor(hash).remove(&key, hash, &value, valEqual)
	return removed
}

// Replace stores value for key only if key is present, and returns the
// value it replaced.
func (m *Map[K, V]) Replace(key K, value V) (previous V, replaced bool) {
	m.checkKey(key)
	m.checkValue(value)
	table := m.loadTable()
	hash := m.hash(&key)
	return table.segmentFor(hash).replace(&key, hash, &value)
}

// CompareAndReplace stores new for key only while key is mapped to old.
func (m *Map[K, V]) CompareAndReplace(key K, old, new V) (replaced bool) {
	m.checkKey(key)
	m.checkValue(old)
	m.checkValue(new)
	table := m.loadTable()
	valEqual := m.mustValEqual("CompareAndReplace")
	hash := m.hash(&key)
	return table.segmentFor(hash).compareAndReplace(&key, hash, &old, &new, valEqual)
}

// Clear removes every entry, one segment at a time. Entries inserted into
// an already cleared segment while Clear runs survive it.
func (m *Map[K, V]) Clear() {
	table := m.loadTable()
	for i := range table.segments {
		table.segments[i].clear()
	}
}

// ============================================================================
// sync.Map compatible surface
// ============================================================================

// Load is Get, compatible with `sync.Map`.
func (m *Map[K, V]) Load(key K) (value V, ok bool) {
	return m.Get(key)
}

// Store is Put, compatible with `sync.Map`.
func (m *Map[K, V]) Store(key K, value V) {
	m.Put(key, value)
}

// LoadOrStore returns the existing value for key if present. Otherwise it
// stores and returns value. Compatible with `sync.Map`.
func (m *Map[K, V]) LoadOrStore(key K, value V) (actual V, loaded bool) {
	if previous, loaded := m.PutIfAbsent(key, value); loaded {
		return previous, true
	}
	return value, false
}

// LoadAndDelete is Remove, compatible with `sync.Map`.
func (m *Map[K, V]) LoadAndDelete(key K) (value V, loaded bool) {
	return m.Remove(key)
}

// Delete removes key, compatible with `sync.Map`.
func (m *Map[K, V]) Delete(key K) {
	m.Remove(key)
}

// Swap is Put, compatible with `sync.Map`.
func (m *Map[K, V]) Swap(key K, value V) (previous V, loaded bool) {
	return m.Put(key, value)
}

// CompareAndSwap is CompareAndReplace, compatible with `sync.Map`.
func (m *Map[K, V]) CompareAndSwap(key K, old, new V) (swapped bool) {
	return m.CompareAndReplace(key, old, new)
}

// CompareAndDelete is RemoveValue, compatible with `sync.Map`.
func (m *Map[K, V]) CompareAndDelete(key K, old V) (deleted bool) {
	return m.RemoveValue(key, old)
}

// ============================================================================
// Computation
// ============================================================================

// ComputeIfAbsent returns the value of key, computing and storing it with fn
// when key is absent.
//
// fn runs without any segment lock held, so it may be slow or call back
// into the map. Concurrent callers for the same key share one execution of
// fn; only the caller whose fn ran and stored its value gets loaded unset.
// If another writer stores key while fn runs, that value wins and is
// returned with loaded set. An error from fn is returned as is and nothing
// is stored; a panic in fn is re-raised in every caller waiting on it.
func (m *Map[K, V]) ComputeIfAbsent(
	key K,
	fn func() (V, error),
) (actual V, loaded bool, err error) {
	if v, ok := m.Get(key); ok {
		return v, true, nil
	}

	// computed is only set by the caller whose fn ran and was stored.
	var computed bool
	actual, err, _ = m.computing.do(key, func() (V, error) {
		value, err := fn()
		if err != nil {
			return value, err
		}
		m.checkValue(value)
		previous, loaded := m.PutIfAbsent(key, value)
		if loaded {
			return previous, nil
		}
		computed = true
		return value, nil
	})
	if err != nil {
		return *new(V), false, err
	}
	return actual, !computed, nil
}

// ============================================================================
// Conversion
// ============================================================================

// ToMap copies the entries into a new Go map. Like iteration, it is weakly
// consistent.
func (m *Map[K, V]) ToMap() map[K]V {
	a := make(map[K]V, m.Size())
	m.Range(func(key K, value V) bool {
		a[key] = value
		return true
	})
	return a
}

// String renders the entries as {key=value, ...} in iteration order.
func (m *Map[K, V]) String() string {
	var sb strings.Builder
	sb.WriteByte('{')
	first := true
	m.Range(func(key K, value V) bool {
		if !first {
			sb.WriteString(", ")
		}
		first = false
		_, _ = fmt.Fprintf(&sb, "%v=%v", key, value)
		return true
	})
	sb.WriteByte('}')
	return sb.String()
}
