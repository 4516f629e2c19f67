// Package queue provides a bounded FIFO that evicts its oldest element when
// full.
package queue

// Ring is a bounded FIFO. Pushing onto a full ring drops the oldest element.
// Ring is not safe for concurrent use.
type Ring[T any] struct {
	buf      []T
	head     int
	size     int
	capacity int
}

// New returns an empty ring holding at most capacity elements. Capacities
// below one are raised to one.
func New[T any](capacity int) *Ring[T] {
	if capacity < 1 {
		capacity = 1
	}
	return &Ring[T]{capacity: capacity}
}

// Push appends v and reports whether the oldest element was evicted to make
// room for it.
func (r *Ring[T]) Push(v T) (evicted bool) {
	if r.size == r.capacity {
		var zero T
		r.buf[r.head] = zero
		r.head = (r.head + 1) % len(r.buf)
		r.size--
		evicted = true
	}
	if r.size == len(r.buf) {
		r.grow()
	}
	r.buf[(r.head+r.size)%len(r.buf)] = v
	r.size++
	return evicted
}

func (r *Ring[T]) Peek() (T, bool) {
	if r.size == 0 {
		var zero T
		return zero, false
	}
	return r.buf[r.head], true
}

func (r *Ring[T]) Pop() (T, bool) {
	var zero T
	if r.size == 0 {
		return zero, false
	}
	v := r.buf[r.head]
	r.buf[r.head] = zero
	r.head = (r.head + 1) % len(r.buf)
	r.size--
	if r.size == 0 {
		r.head = 0
	}
	return v, true
}

func (r *Ring[T]) Len() int {
	return r.size
}

func (r *Ring[T]) Cap() int {
	return r.capacity
}

// Items returns the queued elements, oldest first.
func (r *Ring[T]) Items() []T {
	out := make([]T, r.size)
	for i := range out {
		out[i] = r.buf[(r.head+i)%len(r.buf)]
	}
	return out
}

// grow enlarges the backing slice lazily so large capacities cost nothing
// until they are used.
func (r *Ring[T]) grow() {
	n := len(r.buf) * 2
	if n < 8 {
		n = 8
	}
	if n > r.capacity {
		n = r.capacity
	}
	buf := make([]T, n)
	for i := 0; i < r.size; i++ {
		buf[i] = r.buf[(r.head+i)%len(r.buf)]
	}
	r.buf = buf
	r.head = 0
}
