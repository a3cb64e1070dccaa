package segmap

// Size, IsEmpty and ContainsValue sweep every segment without locking and
// trust a sweep once the sum of the segment modCounts matches the previous
// sweep (or is zero on the first one). After retriesBeforeLock unstable
// retries they lock every segment in ascending order and sweep once more.

// Size returns the number of entries.
func (m *Map[K, V]) Size() int {
	segments := m.loadTable().segments
	var size int64
	var last uint64
	for retries := -1; ; retries++ {
		locked := retries == retriesBeforeLock
		if locked {
			lockAll(segments)
			defer unlockAll(segments)
		}
		var sum uint64
		size = 0
		for i := range segments {
			sum += uint64(segments[i].modCount.Load())
			size += int64(segments[i].count.Load())
		}
		if locked || sum == last {
			break
		}
		last = sum
	}
	return int(min(size, maxInt))
}

// IsEmpty reports whether the map holds no entries. Any segment observed
// non-empty ends the check early.
func (m *Map[K, V]) IsEmpty() bool {
	segments := m.loadTable().segments
	var last uint64
	for retries := -1; ; retries++ {
		locked := retries == retriesBeforeLock
		if locked {
			lockAll(segments)
			defer unlockAll(segments)
		}
		var sum uint64
		for i := range segments {
			sum += uint64(segments[i].modCount.Load())
			if segments[i].count.Load() != 0 {
				return false
			}
		}
		if locked || sum == last {
			return true
		}
		last = sum
	}
}

// ContainsValue reports whether some key maps to value. It walks every
// bucket of every segment, so it is far slower than ContainsKey.
//
// It panics with ErrNilValue for a nil value, and when V is not comparable
// and no WithValueEqual or IEqualFunc equality is configured.
func (m *Map[K, V]) ContainsValue(value V) bool {
	m.checkValue(value)
	segments := m.loadTable().segments
	valEqual := m.mustValEqual("ContainsValue")
	var last uint64
	for retries := -1; ; retries++ {
		locked := retries == retriesBeforeLock
		if locked {
			lockAll(segments)
			defer unlockAll(segments)
		}
		var sum uint64
		for i := range segments {
			sum += uint64(segments[i].modCount.Load())
			if segments[i].containsValue(&value, valEqual, locked) {
				return true
			}
		}
		if locked || sum == last {
			return false
		}
		last = sum
	}
}
