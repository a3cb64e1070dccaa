package segmap

import (
	"slices"
	"testing"
)

func TestKeySet(t *testing.T) {
	m := mustNewMap[int, string](t)
	for i := range 10 {
		m.Put(i, "v")
	}
	ks := m.KeySet()
	if ks.Size() != 10 || ks.IsEmpty() {
		t.Fatalf("Size() = %d", ks.Size())
	}
	if !ks.Contains(3) || ks.Contains(30) {
		t.Fatal("Contains")
	}
	if !ks.Remove(3) || ks.Remove(3) {
		t.Fatal("Remove")
	}
	if m.ContainsKey(3) {
		t.Fatal("KeySet.Remove did not remove from the map")
	}

	keys := slices.Sorted(ks.All())
	if len(keys) != 9 || keys[0] != 0 || keys[8] != 9 {
		t.Fatalf("All() = %v", keys)
	}

	it := ks.Iterator()
	for it.HasNext() {
		k, err := it.Next()
		if err != nil {
			t.Fatal(err)
		}
		if k >= 5 {
			if err := it.Remove(); err != nil {
				t.Fatal(err)
			}
		}
	}
	if got := m.Size(); got != 4 {
		t.Fatalf("Size() = %d, want 4", got)
	}

	ks.Clear()
	if !m.IsEmpty() {
		t.Fatal("KeySet.Clear left entries")
	}
}

func TestValueCollection(t *testing.T) {
	m := mustNewMap[string, int](t)
	m.Put("a", 1)
	m.Put("b", 1)
	m.Put("c", 2)
	vc := m.ValueCollection()
	if vc.Size() != 3 || vc.IsEmpty() {
		t.Fatalf("Size() = %d", vc.Size())
	}
	if !vc.Contains(2) || vc.Contains(3) {
		t.Fatal("Contains")
	}
	values := slices.Sorted(vc.All())
	if !slices.Equal(values, []int{1, 1, 2}) {
		t.Fatalf("All() = %v", values)
	}

	it := vc.Iterator()
	n := 0
	for it.HasNext() {
		v, err := it.Next()
		if err != nil {
			t.Fatal(err)
		}
		if v == 1 {
			if err := it.Remove(); err != nil {
				t.Fatal(err)
			}
		}
		n++
	}
	if n != 3 {
		t.Fatalf("iterated %d values, want 3", n)
	}
	if got := m.ToMap(); len(got) != 1 || got["c"] != 2 {
		t.Fatalf("remaining %v", got)
	}
	vc.Clear()
	if !vc.IsEmpty() {
		t.Fatal("ValueCollection.Clear left entries")
	}
}

func TestEntrySet(t *testing.T) {
	m := mustNewMap[string, int](t)
	m.Put("a", 1)
	m.Put("b", 2)
	es := m.EntrySet()
	if es.Size() != 2 || es.IsEmpty() {
		t.Fatalf("Size() = %d", es.Size())
	}
	if es.Contains(nil) || es.Remove(nil) {
		t.Fatal("nil entry")
	}

	var a *Entry[string, int]
	for e := range es.All() {
		if e.Key() == "a" {
			a = e
		}
	}
	if a == nil || a.Value() != 1 {
		t.Fatalf("entry a = %v", a)
	}
	if !es.Contains(a) {
		t.Fatal("Contains(a=1) = false")
	}
	m.Put("a", 5)
	if es.Contains(a) {
		t.Fatal("Contains(a=1) after the value changed")
	}
	if es.Remove(a) {
		t.Fatal("Remove(a=1) removed a=5")
	}
	a.SetValue(6)
	if !es.Contains(a) || !es.Remove(a) {
		t.Fatal("written-through entry not found")
	}
	if m.ContainsKey("a") {
		t.Fatal("EntrySet.Remove did not remove from the map")
	}

	it := es.Iterator()
	e, err := it.Next()
	if err != nil || e.Key() != "b" {
		t.Fatalf("Next = %v, %v", e, err)
	}
	es.Clear()
	if !m.IsEmpty() {
		t.Fatal("EntrySet.Clear left entries")
	}
}
