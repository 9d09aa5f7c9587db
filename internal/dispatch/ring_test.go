package dispatch

import "testing"

func TestRingTakeClearsSlot(t *testing.T) {
	r := newRing[*int](4)
	v := 7
	r.put(5, &v)
	if got := r.take(5); got != &v {
		t.Fatalf("unexpected item %v", got)
	}
	if r.slots[1] != nil {
		t.Fatal("expected slot to be cleared after take")
	}
}

func TestIsPowerOfTwo(t *testing.T) {
	for n, want := range map[int]bool{0: false, 1: true, 2: true, 3: false, 1024: true, -4: false} {
		if got := isPowerOfTwo(n); got != want {
			t.Fatalf("isPowerOfTwo(%d) = %v", n, got)
		}
	}
}
