package ring

import "testing"

func TestEmpty(t *testing.T) {
	r := New[int](4)
	if r.Len() != 0 || r.Cap() != 4 {
		t.Fatalf("len=%d cap=%d", r.Len(), r.Cap())
	}
	if _, ok := r.Last(); ok {
		t.Fatal("Last on empty ring reported ok")
	}
	if got := r.Snapshot(nil); len(got) != 0 {
		t.Fatalf("snapshot of empty ring: %v", got)
	}
}

func TestPushBelowCapacity(t *testing.T) {
	r := New[int](4)
	r.Push(1)
	r.Push(2)
	r.Push(3)
	if r.Len() != 3 {
		t.Fatalf("len=%d", r.Len())
	}
	want := []int{1, 2, 3}
	got := r.Snapshot(nil)
	if len(got) != len(want) {
		t.Fatalf("snapshot %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("snapshot %v, want %v", got, want)
		}
	}
	if last, _ := r.Last(); last != 3 {
		t.Fatalf("last=%d", last)
	}
}

func TestOverwriteOldest(t *testing.T) {
	r := New[int](3)
	for v := 1; v <= 5; v++ {
		r.Push(v)
	}
	if r.Len() != 3 {
		t.Fatalf("len=%d", r.Len())
	}
	want := []int{3, 4, 5}
	got := r.Snapshot(nil)
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("snapshot %v, want %v", got, want)
		}
	}
	if last, _ := r.Last(); last != 5 {
		t.Fatalf("last=%d", last)
	}
}

func TestSnapshotAppends(t *testing.T) {
	r := New[string](2)
	r.Push("a")
	r.Push("b")
	got := r.Snapshot([]string{"head"})
	if len(got) != 3 || got[0] != "head" || got[1] != "a" || got[2] != "b" {
		t.Fatalf("snapshot %v", got)
	}
}

func TestCapacityClamp(t *testing.T) {
	r := New[int](0)
	if r.Cap() != 1 {
		t.Fatalf("cap=%d", r.Cap())
	}
	r.Push(7)
	r.Push(8)
	if last, _ := r.Last(); last != 8 || r.Len() != 1 {
		t.Fatalf("last=%d len=%d", last, r.Len())
	}
}
