package threadpool

import (
	"runtime/debug"

	tperrors "github.com/vnykmshr/threadpool/pkg/common/errors"
	"github.com/vnykmshr/threadpool/pkg/scheduling/future"
)

// submit erases call into a queue item that resolves the returned future.
// The promise is resolved even when call panics.
func submit[R any](p *Pool, call func() (R, error)) (*future.Future[R], error) {
	promise, fut := future.New[R]()

	run := func() (err error) {
		var value R
		defer func() {
			if r := recover(); r != nil {
				err = tperrors.NewPanicError(r, debug.Stack())
			}
			promise.Resolve(value, err)
		}()
		value, err = call()
		return err
	}

	if err := p.enqueue(run); err != nil {
		return nil, err
	}
	return fut, nil
}

// Submit queues fn and returns a future for its result.
//
// It returns ErrPoolClosed once the pool has been shut down. A panic in fn
// is delivered through the future as an error wrapping ErrTaskPanicked.
func Submit[R any](p *Pool, fn func() (R, error)) (*future.Future[R], error) {
	if fn == nil {
		return nil, nilFuncError()
	}
	return submit(p, fn)
}

// SubmitValue queues fn, which cannot fail, and returns a future for its result.
func SubmitValue[R any](p *Pool, fn func() R) (*future.Future[R], error) {
	if fn == nil {
		return nil, nilFuncError()
	}
	return submit(p, func() (R, error) {
		return fn(), nil
	})
}

// Submit1 binds a to fn at submission time and queues the call.
func Submit1[A, R any](p *Pool, fn func(A) (R, error), a A) (*future.Future[R], error) {
	if fn == nil {
		return nil, nilFuncError()
	}
	return submit(p, func() (R, error) {
		return fn(a)
	})
}

// Submit2 binds a and b to fn at submission time and queues the call.
func Submit2[A, B, R any](p *Pool, fn func(A, B) (R, error), a A, b B) (*future.Future[R], error) {
	if fn == nil {
		return nil, nilFuncError()
	}
	return submit(p, func() (R, error) {
		return fn(a, b)
	})
}

// Submit3 binds a, b and c to fn at submission time and queues the call.
func Submit3[A, B, C, R any](p *Pool, fn func(A, B, C) (R, error), a A, b B, c C) (*future.Future[R], error) {
	if fn == nil {
		return nil, nilFuncError()
	}
	return submit(p, func() (R, error) {
		return fn(a, b, c)
	})
}
