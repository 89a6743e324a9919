package utils

// -----------------------------------------------------------------------------
// RingBuffer is a fixed-size circular FIFO.
// True ring buffer - pushing into a full buffer overwrites the oldest element.
// Not synchronized; owners guard it with their own lock.
// -----------------------------------------------------------------------------

type RingBuffer[T any] struct {
	data     []T
	capacity int
	head     int // Oldest element
	size     int // Current number of elements
}

// -----------------------------------------------------------------------------

// NewRingBuffer creates a new buffer with fixed capacity
func NewRingBuffer[T any](capacity int) *RingBuffer[T] {
	if capacity <= 0 {
		capacity = 1
	}

	return &RingBuffer[T]{
		data:     make([]T, capacity),
		capacity: capacity,
	}
}

// -----------------------------------------------------------------------------

// Push appends v. When the buffer is full the oldest element is evicted and
// returned with evicted=true.
func (rb *RingBuffer[T]) Push(v T) (old T, evicted bool) {
	if rb.size == rb.capacity {
		old = rb.data[rb.head]
		rb.data[rb.head] = v
		rb.head = (rb.head + 1) % rb.capacity
		return old, true
	}

	tail := (rb.head + rb.size) % rb.capacity
	rb.data[tail] = v
	rb.size++
	return old, false
}

// -----------------------------------------------------------------------------

// Pop removes and returns the oldest element.
func (rb *RingBuffer[T]) Pop() (T, bool) {
	var zero T
	if rb.size == 0 {
		return zero, false
	}

	v := rb.data[rb.head]
	rb.data[rb.head] = zero // release references
	rb.head = (rb.head + 1) % rb.capacity
	rb.size--
	return v, true
}

// -----------------------------------------------------------------------------

// Clear drops every element.
func (rb *RingBuffer[T]) Clear() {
	var zero T
	for i := range rb.data {
		rb.data[i] = zero
	}
	rb.head = 0
	rb.size = 0
}

// -----------------------------------------------------------------------------

// Size returns current number of elements
func (rb *RingBuffer[T]) Size() int {
	return rb.size
}

// -----------------------------------------------------------------------------

// Capacity returns buffer capacity (fixed)
func (rb *RingBuffer[T]) Capacity() int {
	return rb.capacity
}
