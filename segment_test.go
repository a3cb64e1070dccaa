package segmap

import (
	"sync/atomic"
	"testing"
)

// newTestSegment returns a segment whose keys are their own hashes.
func newTestSegment(tableLen int, loadFactor float64) *segment[int, int] {
	s := &segment[int, int]{}
	s.init(tableLen, loadFactor)
	return s
}

func segPut(s *segment[int, int], growths *atomic.Uint32, key int) {
	v := key * 10
	s.put(&key, uint32(key), &v, false, growths)
}

func segRemove(s *segment[int, int], key int) bool {
	_, ok := s.remove(&key, uint32(key), nil, nil)
	return ok
}

func chainKeys(e *entry[int, int]) []int {
	var keys []int
	for ; e != nil; e = e.next {
		keys = append(keys, e.key)
	}
	return keys
}

func chainNode(e *entry[int, int], key int) *entry[int, int] {
	for ; e != nil; e = e.next {
		if e.key == key {
			return e
		}
	}
	return nil
}

func TestSegment_PutPrependsToChain(t *testing.T) {
	var growths atomic.Uint32
	s := newTestSegment(4, 1)
	for _, k := range []int{13, 5, 1, 9} {
		segPut(s, &growths, k)
	}
	got := chainKeys(s.table.Load().buckets[1].Load())
	want := []int{9, 1, 5, 13}
	if len(got) != len(want) {
		t.Fatalf("chain %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("chain %v, want %v", got, want)
		}
	}
	if s.count.Load() != 4 || s.modCount.Load() != 4 || growths.Load() != 0 {
		t.Fatalf("count=%d modCount=%d growths=%d",
			s.count.Load(), s.modCount.Load(), growths.Load())
	}
}

func TestSegment_RehashReusesTrailingRun(t *testing.T) {
	var growths atomic.Uint32
	s := newTestSegment(4, 1)
	for _, k := range []int{13, 5, 1, 9} {
		segPut(s, &growths, k)
	}
	oldTable := s.table.Load()
	oldHead := oldTable.buckets[1].Load()
	old := make(map[int]*entry[int, int])
	for e := oldHead; e != nil; e = e.next {
		old[e.key] = e
	}

	s.mu.Lock()
	if !s.rehash() {
		t.Fatal("rehash refused to grow")
	}
	s.mu.Unlock()

	newTable := s.table.Load()
	if len(newTable.buckets) != 8 {
		t.Fatalf("%d buckets after rehash, want 8", len(newTable.buckets))
	}
	// Under mask 7 the chain 9,1,5,13 splits into {9,1} -> 1 and {5,13} -> 5.
	// 5,13 is the trailing run and moves by reference.
	if head := newTable.buckets[5].Load(); head != old[5] || head.next != old[13] {
		t.Fatal("trailing run 5,13 was not reused")
	}
	b1 := newTable.buckets[1].Load()
	if keys := chainKeys(b1); len(keys) != 2 {
		t.Fatalf("bucket 1 holds %v", keys)
	}
	for _, k := range []int{9, 1} {
		n := chainNode(b1, k)
		if n == nil {
			t.Fatalf("key %d missing from bucket 1", k)
		}
		if n == old[k] {
			t.Fatalf("key %d in front of the trailing run was not cloned", k)
		}
		if *n.value.Load() != k*10 {
			t.Fatalf("clone of %d has value %d", k, *n.value.Load())
		}
	}
	// Readers still walking the old array see it intact.
	if keys := chainKeys(oldTable.buckets[1].Load()); len(keys) != 4 ||
		oldTable.buckets[1].Load() != oldHead {
		t.Fatalf("old chain changed: %v", keys)
	}
	if s.threshold != 8 {
		t.Fatalf("threshold = %d, want 8", s.threshold)
	}
}

func TestSegment_RemoveClonesPrefix(t *testing.T) {
	var growths atomic.Uint32
	s := newTestSegment(4, 1)
	for _, k := range []int{13, 5, 1, 9} {
		segPut(s, &growths, k)
	}
	tab := s.table.Load()
	oldHead := tab.buckets[1].Load()
	old := make(map[int]*entry[int, int])
	for e := oldHead; e != nil; e = e.next {
		old[e.key] = e
	}
	mc := s.modCount.Load()

	if !segRemove(s, 5) {
		t.Fatal("remove(5) missed")
	}
	head := tab.buckets[1].Load()
	keys := chainKeys(head)
	if len(keys) != 3 || chainNode(head, 5) != nil {
		t.Fatalf("chain after remove: %v", keys)
	}
	// 13 follows the removed node and stays shared.
	if chainNode(head, 13) != old[13] {
		t.Fatal("suffix after the removed node was copied")
	}
	for _, k := range []int{9, 1} {
		if chainNode(head, k) == old[k] {
			t.Fatalf("prefix node %d was not cloned", k)
		}
	}
	// The old chain is untouched.
	if got := chainKeys(oldHead); len(got) != 4 {
		t.Fatalf("old chain changed: %v", got)
	}
	if s.count.Load() != 3 || s.modCount.Load() != mc+1 {
		t.Fatalf("count=%d modCount=%d", s.count.Load(), s.modCount.Load())
	}
	if segRemove(s, 5) {
		t.Fatal("second remove(5) succeeded")
	}
	if s.modCount.Load() != mc+1 {
		t.Fatal("failed remove bumped modCount")
	}
}

func TestSegment_PutGrowsBeforeInsert(t *testing.T) {
	var growths atomic.Uint32
	s := newTestSegment(2, 0.75)
	if s.threshold != 1 {
		t.Fatalf("threshold = %d, want 1", s.threshold)
	}
	segPut(s, &growths, 1)
	if growths.Load() != 0 {
		t.Fatal("first insert grew the segment")
	}
	segPut(s, &growths, 2)
	if growths.Load() != 1 || len(s.table.Load().buckets) != 4 {
		t.Fatalf("growths=%d buckets=%d", growths.Load(), len(s.table.Load().buckets))
	}
	for _, k := range []int{1, 2} {
		if v, ok := s.get(&k, uint32(k)); !ok || v != k*10 {
			t.Fatalf("get(%d) = %d, %v", k, v, ok)
		}
	}
}

func TestSegment_ClearAndReplace(t *testing.T) {
	var growths atomic.Uint32
	s := newTestSegment(4, 0.75)
	segPut(s, &growths, 1)
	segPut(s, &growths, 2)

	k, v := 1, 99
	mc := s.modCount.Load()
	if prev, ok := s.replace(&k, uint32(k), &v); !ok || prev != 10 {
		t.Fatalf("replace = %d, %v", prev, ok)
	}
	if s.modCount.Load() != mc {
		t.Fatal("replace bumped modCount")
	}

	s.clear()
	if s.count.Load() != 0 || s.modCount.Load() != mc+1 {
		t.Fatalf("count=%d modCount=%d", s.count.Load(), s.modCount.Load())
	}
	if s.containsKey(&k, uint32(k)) {
		t.Fatal("key survived clear")
	}
	// Clearing an empty segment is a no-op.
	s.clear()
	if s.modCount.Load() != mc+1 {
		t.Fatal("clearing an empty segment bumped modCount")
	}
}

func TestSegment_ScanAndLock(t *testing.T) {
	var growths atomic.Uint32
	s := newTestSegment(4, 1)
	segPut(s, &growths, 1)

	s.mu.Lock()
	done := make(chan struct{})
	go func() {
		defer close(done)
		segPut(s, &growths, 5)
	}()
	// Let the writer spin through its TryLock attempts.
	for range 1000 {
		select {
		case <-done:
			t.Fatal("writer got past a held lock")
		default:
		}
	}
	s.mu.Unlock()
	<-done
	k := 5
	if !s.containsKey(&k, uint32(k)) {
		t.Fatal("contended put lost its entry")
	}
}
