package ring

// Ring is a fixed-capacity buffer that overwrites its oldest entry when
// full. It is not safe for concurrent use; callers own the locking (the HAL
// touches its rings from a single loop).
type Ring[T any] struct {
	buf  []T
	head int // next write slot
	n    int
}

// New returns a ring holding up to capacity entries. Capacity is clamped to
// at least one.
func New[T any](capacity int) *Ring[T] {
	if capacity < 1 {
		capacity = 1
	}
	return &Ring[T]{buf: make([]T, capacity)}
}

// Push appends v, evicting the oldest entry if the ring is full.
func (r *Ring[T]) Push(v T) {
	r.buf[r.head] = v
	r.head = (r.head + 1) % len(r.buf)
	if r.n < len(r.buf) {
		r.n++
	}
}

// Len returns the number of buffered entries.
func (r *Ring[T]) Len() int { return r.n }

// Cap returns the fixed capacity.
func (r *Ring[T]) Cap() int { return len(r.buf) }

// Last returns the most recent entry.
func (r *Ring[T]) Last() (T, bool) {
	var zero T
	if r.n == 0 {
		return zero, false
	}
	i := r.head - 1
	if i < 0 {
		i += len(r.buf)
	}
	return r.buf[i], true
}

// Snapshot appends the buffered entries to dst oldest-first and returns the
// extended slice.
func (r *Ring[T]) Snapshot(dst []T) []T {
	start := r.head - r.n
	if start < 0 {
		start += len(r.buf)
	}
	for i := 0; i < r.n; i++ {
		dst = append(dst, r.buf[(start+i)%len(r.buf)])
	}
	return dst
}
