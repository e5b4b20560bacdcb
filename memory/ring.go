package memory

import "sync"

// ring is a thread-safe circular buffer of recent entries. When full the
// oldest entry is dropped, so writes never block the message path.
type ring[T any] struct {
	mu       sync.RWMutex
	items    []T
	capacity int
	size     int
	head     int // next write position
	tail     int // next read position
	dropped  uint64
}

func newRing[T any](capacity int) *ring[T] {
	if capacity <= 0 {
		capacity = 1
	}
	return &ring[T]{
		items:    make([]T, capacity),
		capacity: capacity,
	}
}

// Enqueue appends an item, evicting the oldest when full.
func (r *ring[T]) Enqueue(item T) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.size == r.capacity {
		var zero T
		r.items[r.tail] = zero
		r.tail = (r.tail + 1) % r.capacity
		r.size--
		r.dropped++
	}

	r.items[r.head] = item
	r.head = (r.head + 1) % r.capacity
	r.size++
}

// Drain removes and returns all items in insertion order.
func (r *ring[T]) Drain() []T {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.size == 0 {
		return nil
	}

	out := make([]T, r.size)
	var zero T
	for i := 0; i < len(out); i++ {
		out[i] = r.items[r.tail]
		r.items[r.tail] = zero
		r.tail = (r.tail + 1) % r.capacity
	}
	r.size = 0
	return out
}

// Snapshot returns the current items oldest-first without removing them.
func (r *ring[T]) Snapshot() []T {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]T, r.size)
	for i := 0; i < r.size; i++ {
		out[i] = r.items[(r.tail+i)%r.capacity]
	}
	return out
}

// Clear removes all items.
func (r *ring[T]) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()

	var zero T
	for i := range r.items {
		r.items[i] = zero
	}
	r.head = 0
	r.tail = 0
	r.size = 0
}

// Size returns the current number of items.
func (r *ring[T]) Size() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.size
}

// Capacity returns the fixed buffer capacity.
func (r *ring[T]) Capacity() int {
	return r.capacity
}

// Dropped returns how many items were evicted due to overflow.
func (r *ring[T]) Dropped() uint64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.dropped
}
