// Package future provides a one-shot, single-producer single-consumer
// result handoff: a Promise that is resolved exactly once and a Future
// that blocks until the value (or error) is available.
package future

import (
	"context"
	"sync"
	"sync/atomic"

	tperrors "github.com/vnykmshr/threadpool/pkg/common/errors"
)

// state is shared by a Promise and its Future.
type state[T any] struct {
	done     chan struct{}
	once     sync.Once
	value    T
	err      error
	consumed atomic.Bool
}

// Future is the read side of a one-shot result slot.
type Future[T any] struct {
	s *state[T]
}

// Promise is the write side of a one-shot result slot.
type Promise[T any] struct {
	s *state[T]
}

// New creates a linked Promise and Future.
func New[T any]() (*Promise[T], *Future[T]) {
	s := &state[T]{done: make(chan struct{})}
	return &Promise[T]{s: s}, &Future[T]{s: s}
}

// Resolved returns a Future that is already complete.
func Resolved[T any](value T, err error) *Future[T] {
	p, f := New[T]()
	p.Resolve(value, err)
	return f
}

// Resolve stores the outcome and wakes the reader. Only the first call has
// an effect; it reports whether this call was the one that resolved.
func (p *Promise[T]) Resolve(value T, err error) bool {
	resolved := false
	p.s.once.Do(func() {
		p.s.value = value
		p.s.err = err
		close(p.s.done)
		resolved = true
	})
	return resolved
}

// Get blocks until the result is available and returns it. The result can
// be retrieved once; later calls return ErrResultConsumed.
func (f *Future[T]) Get() (T, error) {
	<-f.s.done
	return f.take()
}

// GetContext is like Get but gives up when ctx is done. Giving up does not
// consume the result, so a later Get still returns it. A result that is
// already available is returned even if ctx is done.
func (f *Future[T]) GetContext(ctx context.Context) (T, error) {
	if f.IsReady() {
		return f.take()
	}
	select {
	case <-f.s.done:
		return f.take()
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

// Done returns a channel that is closed once the result is available.
func (f *Future[T]) Done() <-chan struct{} {
	return f.s.done
}

// IsReady reports whether the result is available without blocking.
func (f *Future[T]) IsReady() bool {
	select {
	case <-f.s.done:
		return true
	default:
		return false
	}
}

func (f *Future[T]) take() (T, error) {
	var zero T
	if !f.s.consumed.CompareAndSwap(false, true) {
		return zero, tperrors.ErrResultConsumed
	}
	value, err := f.s.value, f.s.err
	f.s.value = zero
	return value, err
}
