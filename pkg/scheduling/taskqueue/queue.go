// Package taskqueue provides a mutex-guarded FIFO queue.
//
// The queue never blocks: Pop reports an empty queue instead of waiting.
// Waiting for work is the consumer's job (see threadpool's worker loop).
package taskqueue

import "sync"

const minCapacity = 16

// Queue is a FIFO queue safe for use by multiple goroutines.
// The zero value is ready to use.
type Queue[T any] struct {
	mu    sync.Mutex
	buf   []T
	head  int
	count int
}

// New creates an empty queue.
func New[T any]() *Queue[T] {
	return &Queue[T]{}
}

// NewWithCapacity creates an empty queue with room for n items before it grows.
func NewWithCapacity[T any](n int) *Queue[T] {
	return &Queue[T]{buf: make([]T, max(n, minCapacity))}
}

// Push appends item at the tail.
func (q *Queue[T]) Push(item T) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.count == len(q.buf) {
		q.grow()
	}
	q.buf[(q.head+q.count)%len(q.buf)] = item
	q.count++
}

// Pop removes and returns the head of the queue. ok is false if the queue
// is empty.
func (q *Queue[T]) Pop() (item T, ok bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.count == 0 {
		return item, false
	}

	var zero T
	item = q.buf[q.head]
	q.buf[q.head] = zero // drop the queue's reference
	q.head = (q.head + 1) % len(q.buf)
	q.count--
	return item, true
}

// Len returns the number of queued items at the time of the call.
func (q *Queue[T]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.count
}

// Empty reports whether the queue was empty at the time of the call.
func (q *Queue[T]) Empty() bool {
	return q.Len() == 0
}

// Clear removes every queued item and returns how many were removed.
func (q *Queue[T]) Clear() int {
	q.mu.Lock()
	defer q.mu.Unlock()

	n := q.count
	clear(q.buf)
	q.head = 0
	q.count = 0
	return n
}

// grow doubles the buffer, unrolling the ring so head is at index 0.
// Caller must hold q.mu.
func (q *Queue[T]) grow() {
	buf := make([]T, max(2*len(q.buf), minCapacity))
	if q.count > 0 {
		n := copy(buf, q.buf[q.head:])
		copy(buf[n:], q.buf[:q.head])
	}
	q.buf = buf
	q.head = 0
}
