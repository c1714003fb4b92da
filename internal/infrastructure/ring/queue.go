// ABOUTME: Growable circular FIFO used for command and notification queues
// ABOUTME: Grows instead of dropping so queued items are never lost
package ring

import "sync"

const minCap = 8

type Queue[T any] struct {
	buf []T
	r   int // read position
	n   int // items stored
	mu  sync.Mutex
}

func New[T any](size int) *Queue[T] {
	if size < minCap {
		size = minCap
	}
	return &Queue[T]{buf: make([]T, size)}
}

func (q *Queue[T]) Push(v T) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.n == len(q.buf) {
		q.grow()
	}
	q.buf[(q.r+q.n)%len(q.buf)] = v
	q.n++
}

func (q *Queue[T]) Pop() (T, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	var zero T
	if q.n == 0 {
		return zero, false
	}
	v := q.buf[q.r]
	q.buf[q.r] = zero
	q.r = (q.r + 1) % len(q.buf)
	q.n--
	return v, true
}

func (q *Queue[T]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.n
}

// grow doubles capacity and unwraps the contents to start at zero.
// Caller holds mu.
func (q *Queue[T]) grow() {
	next := make([]T, len(q.buf)*2)
	right := len(q.buf) - q.r
	if right > q.n {
		right = q.n
	}
	copy(next, q.buf[q.r:q.r+right])
	copy(next[right:], q.buf[:q.n-right])
	q.buf = next
	q.r = 0
}
