package dispatch

// ring is a fixed power-of-two slot array indexed by sequence number.
// Callers synchronise access and guarantee that a slot is free before it is
// written, i.e. that no more than len(slots) items are outstanding.
type ring[T any] struct {
	slots []T
	mask  uint64
}

func newRing[T any](capacity int) *ring[T] {
	return &ring[T]{
		slots: make([]T, capacity),
		mask:  uint64(capacity - 1),
	}
}

func (r *ring[T]) put(seq uint64, item T) {
	r.slots[seq&r.mask] = item
}

// take copies the item out and clears the slot so the ring does not pin it.
func (r *ring[T]) take(seq uint64) T {
	idx := seq & r.mask
	item := r.slots[idx]
	var zero T
	r.slots[idx] = zero
	return item
}

func isPowerOfTwo(n int) bool {
	return n > 0 && n&(n-1) == 0
}
