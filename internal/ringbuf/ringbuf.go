// Package ringbuf provides a fixed-capacity ring that overwrites its oldest
// element when full. It is not safe for concurrent use; callers hold their
// own lock.
package ringbuf

// Ring keeps the newest Cap() values pushed into it.
// Capacity is rounded up to a power of two for bitwise modulo.
type Ring[T any] struct {
	buf  []T
	mask uint64
	head uint64 // total pushes

	overwritten uint64
}

// New creates a ring. capacity is rounded up to the next power of two.
// Minimum capacity is 2.
func New[T any](capacity int) *Ring[T] {
	n := nextPow2(capacity)
	if n < 2 {
		n = 2
	}
	return &Ring[T]{
		buf:  make([]T, n),
		mask: uint64(n - 1),
	}
}

// Push appends v, evicting the oldest value when the ring is full.
// Returns true if a value was evicted.
func (r *Ring[T]) Push(v T) bool {
	evicted := r.head >= uint64(len(r.buf))
	if evicted {
		r.overwritten++
	}
	r.buf[r.head&r.mask] = v
	r.head++
	return evicted
}

// Do calls fn for every held value, oldest first, until fn returns false.
func (r *Ring[T]) Do(fn func(T) bool) {
	n := uint64(r.Len())
	for i := r.head - n; i < r.head; i++ {
		if !fn(r.buf[i&r.mask]) {
			return
		}
	}
}

// Last returns the newest value, or false when empty.
func (r *Ring[T]) Last() (T, bool) {
	if r.head == 0 {
		var zero T
		return zero, false
	}
	return r.buf[(r.head-1)&r.mask], true
}

// Len returns the current number of held values.
func (r *Ring[T]) Len() int {
	if r.head < uint64(len(r.buf)) {
		return int(r.head)
	}
	return len(r.buf)
}

// Cap returns the ring capacity.
func (r *Ring[T]) Cap() int {
	return len(r.buf)
}

// Overwritten returns how many values were evicted by later pushes.
func (r *Ring[T]) Overwritten() uint64 {
	return r.overwritten
}

// nextPow2 returns the smallest power of 2 >= n.
func nextPow2(n int) int {
	if n <= 0 {
		return 1
	}
	n--
	n |= n >> 1
	n |= n >> 2
	n |= n >> 4
	n |= n >> 8
	n |= n >> 16
	n |= n >> 32
	return n + 1
}
