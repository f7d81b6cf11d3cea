package threadpool

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/vnykmshr/threadpool/internal/testutil"
	"github.com/vnykmshr/threadpool/pkg/scheduling/future"
)

func TestWaitAll(t *testing.T) {
	pool := New(4)
	defer pool.Close()

	futures := make([]*future.Future[int], 10)
	for i := range futures {
		f, err := Submit1(pool, func(n int) (int, error) {
			time.Sleep(time.Duration(10-n) * time.Millisecond)
			return n * n, nil
		}, i)
		testutil.AssertNoError(t, err)
		futures[i] = f
	}

	ctx, cancel := testutil.WithTimeout(t)
	defer cancel()

	got, err := WaitAll(ctx, futures...)
	testutil.AssertNoError(t, err)
	testutil.AssertEqual(t, len(got), 10)
	for i, v := range got {
		testutil.AssertEqual(t, v, i*i)
	}
}

func TestWaitAllReturnsFirstError(t *testing.T) {
	pool := New(2)
	defer pool.Close()

	errFailed := errors.New("failed")
	ok, err := SubmitValue(pool, func() int { return 1 })
	testutil.AssertNoError(t, err)
	bad, err := Submit(pool, func() (int, error) { return 0, errFailed })
	testutil.AssertNoError(t, err)

	ctx, cancel := testutil.WithTimeout(t)
	defer cancel()

	got, err := WaitAll(ctx, ok, bad)
	testutil.AssertErrorIs(t, err, errFailed)
	if got != nil {
		t.Errorf("expected nil results, got %v", got)
	}
}

func TestWaitAllContextCanceled(t *testing.T) {
	pool := New(1)
	defer pool.Close()

	gate := testutil.NewGate()
	defer gate.Open()

	slow, err := Submit(pool, func() (int, error) {
		gate.Wait()
		return 5, nil
	})
	testutil.AssertNoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err = WaitAll(ctx, slow)
	testutil.AssertErrorIs(t, err, context.DeadlineExceeded)

	// The abandoned wait left the result unread.
	gate.Open()
	v, err := slow.Get()
	testutil.AssertNoError(t, err)
	testutil.AssertEqual(t, v, 5)
}

func TestWaitAllReadyWithDoneContext(t *testing.T) {
	pool := New(2)
	defer pool.Close()

	futures := make([]*future.Future[int], 8)
	for i := range futures {
		f, err := SubmitValue(pool, func() int { return i * i })
		testutil.AssertNoError(t, err)
		futures[i] = f
	}
	for _, f := range futures {
		testutil.WaitClosed(t, f.Done(), time.Second)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	got, err := WaitAll(ctx, futures...)
	testutil.AssertNoError(t, err)
	for i, v := range got {
		testutil.AssertEqual(t, v, i*i)
	}
}

func TestWaitAllEmpty(t *testing.T) {
	got, err := WaitAll[int](context.Background())
	testutil.AssertNoError(t, err)
	testutil.AssertEqual(t, len(got), 0)
}
