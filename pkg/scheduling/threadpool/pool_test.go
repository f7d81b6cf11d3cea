package threadpool

import (
	"context"
	"errors"
	"runtime"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/vnykmshr/threadpool/internal/testutil"
	tperrors "github.com/vnykmshr/threadpool/pkg/common/errors"
	"github.com/vnykmshr/threadpool/pkg/scheduling/future"
)

func TestNew(t *testing.T) {
	tests := []struct {
		name        string
		workerCount int
		wantSize    int
		expectPanic bool
	}{
		{"single worker", 1, 1, false},
		{"several workers", 4, 4, false},
		{"zero means one per cpu", 0, max(runtime.NumCPU(), 1), false},
		{"negative workers", -1, 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.expectPanic {
				defer func() {
					if r := recover(); r == nil {
						t.Error("expected panic")
					}
				}()
			}

			pool := New(tt.workerCount)
			defer pool.Close()

			testutil.AssertEqual(t, pool.Size(), tt.wantSize)
			testutil.AssertEqual(t, pool.RunningWorkers(), tt.wantSize)
			testutil.AssertEqual(t, pool.Name(), "threadpool")
		})
	}
}

func TestNewWithConfigValidation(t *testing.T) {
	tests := []struct {
		name   string
		config Config
	}{
		{"negative workers", Config{WorkerCount: -3}},
		{"negative queue capacity", Config{WorkerCount: 1, QueueCapacity: -1}},
		{"negative max queued", Config{WorkerCount: 1, MaxQueued: -1}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pool, err := NewWithConfig(tt.config)
			if pool != nil {
				t.Fatal("expected nil pool")
			}
			testutil.AssertErrorIs(t, err, tperrors.ErrInvalidConfiguration)
		})
	}
}

func TestSubmitReturnsResult(t *testing.T) {
	pool := New(2)
	defer pool.Close()

	fut, err := Submit(pool, func() (int, error) { return 42, nil })
	testutil.AssertNoError(t, err)

	v, err := fut.Get()
	testutil.AssertNoError(t, err)
	testutil.AssertEqual(t, v, 42)
}

func TestDelayedAddition(t *testing.T) {
	const tasks = 30

	add := func(a, b int) (int, error) {
		time.Sleep(time.Millisecond)
		return a + b, nil
	}

	pool := New(12)
	defer pool.Close()

	futures := make([]*future.Future[int], tasks)
	for i := range futures {
		f, err := Submit2(pool, add, i, i+1)
		testutil.AssertNoError(t, err)
		futures[i] = f
	}

	for i, f := range futures {
		v, err := f.Get()
		testutil.AssertNoError(t, err)
		testutil.AssertEqual(t, v, 2*i+1)
	}
	testutil.AssertEqual(t, pool.TotalSubmitted(), int64(tasks))
}

func TestFIFOWithSingleWorker(t *testing.T) {
	pool := New(1)

	gate := testutil.NewGate()
	var order testutil.Recorder[int]

	// Hold the only worker so the rest queue up behind it.
	testutil.AssertNoError(t, pool.Execute(gate.Wait))
	for i := 0; i < 50; i++ {
		testutil.AssertNoError(t, pool.Execute(func() { order.Record(i) }))
	}
	gate.Open()
	testutil.AssertNoError(t, pool.Close())

	got := order.Values()
	testutil.AssertEqual(t, len(got), 50)
	for i, v := range got {
		if v != i {
			t.Fatalf("position %d ran task %d", i, v)
		}
	}
}

func TestEveryTaskRunsExactlyOnce(t *testing.T) {
	const tasks = 1000

	pool := New(8)

	counts := make([]atomic.Int32, tasks)
	for i := 0; i < tasks; i++ {
		testutil.AssertNoError(t, pool.Execute(func() { counts[i].Add(1) }))
	}
	testutil.AssertNoError(t, pool.Close())

	for i := range counts {
		if n := counts[i].Load(); n != 1 {
			t.Fatalf("task %d ran %d times", i, n)
		}
	}
	testutil.AssertEqual(t, pool.TotalCompleted(), int64(tasks))
}

func TestConcurrentSubmitters(t *testing.T) {
	const (
		submitters = 8
		perSubmit  = 200
	)

	pool := New(4)

	var executed atomic.Int64
	var wg sync.WaitGroup
	for s := 0; s < submitters; s++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < perSubmit; i++ {
				if err := pool.Execute(func() { executed.Add(1) }); err != nil {
					t.Errorf("Execute: %v", err)
					return
				}
			}
		}()
	}
	wg.Wait()
	testutil.AssertNoError(t, pool.Close())

	testutil.AssertEqual(t, executed.Load(), int64(submitters*perSubmit))
}

func TestNoLostWakeup(t *testing.T) {
	var infos testutil.Recorder[TaskInfo]
	pool, err := NewWithConfig(Config{WorkerCount: 4, OnTaskComplete: infos.Record})
	testutil.AssertNoError(t, err)

	// Submit one task at a time into an idle pool; each must be picked up
	// by a sleeping worker without any further submission.
	const tasks = 200
	for i := 0; i < tasks; i++ {
		fut, err := SubmitValue(pool, func() int { return i })
		testutil.AssertNoError(t, err)

		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		v, err := fut.GetContext(ctx)
		cancel()
		testutil.AssertNoError(t, err)
		testutil.AssertEqual(t, v, i)
	}
	testutil.AssertNoError(t, pool.Close())

	got := infos.Values()
	testutil.AssertEqual(t, len(got), tasks)
	for _, info := range got {
		if wait := info.QueueWait(); wait > 50*time.Millisecond {
			t.Errorf("task %d waited %v in the queue of an idle pool", info.ID, wait)
		}
	}
}

func TestErrorPropagation(t *testing.T) {
	pool := New(2)
	defer pool.Close()

	errBoom := errors.New("boom")
	fut, err := Submit(pool, func() (string, error) { return "", errBoom })
	testutil.AssertNoError(t, err)

	_, err = fut.Get()
	testutil.AssertErrorIs(t, err, errBoom)

	// The worker is still usable afterwards.
	ok, err := SubmitValue(pool, func() string { return "ok" })
	testutil.AssertNoError(t, err)
	v, err := ok.Get()
	testutil.AssertNoError(t, err)
	testutil.AssertEqual(t, v, "ok")

	testutil.Eventually(t, func() bool { return pool.TotalFailed() == 1 }, time.Second, time.Millisecond)
}

func TestPanicIsDeliveredAndWorkerSurvives(t *testing.T) {
	var handled atomic.Value
	pool, err := NewWithConfig(Config{
		WorkerCount:  1,
		PanicHandler: func(r interface{}) { handled.Store(r) },
	})
	testutil.AssertNoError(t, err)
	defer pool.Close()

	fut, err := Submit(pool, func() (int, error) { panic("kaboom") })
	testutil.AssertNoError(t, err)

	_, err = fut.Get()
	testutil.AssertErrorIs(t, err, tperrors.ErrTaskPanicked)

	var perr *tperrors.PanicError
	if !errors.As(err, &perr) {
		t.Fatalf("expected *PanicError, got %T", err)
	}
	testutil.AssertEqual(t, perr.Value, interface{}("kaboom"))
	if len(perr.Stack) == 0 {
		t.Error("expected a stack trace")
	}

	next, err := SubmitValue(pool, func() int { return 7 })
	testutil.AssertNoError(t, err)
	v, err := next.Get()
	testutil.AssertNoError(t, err)
	testutil.AssertEqual(t, v, 7)

	testutil.AssertEqual(t, pool.RunningWorkers(), 1)
	testutil.Eventually(t, func() bool { return handled.Load() != nil }, time.Second, time.Millisecond)
	testutil.AssertEqual(t, handled.Load(), interface{}("kaboom"))
}

func TestExecutePanicIsRecovered(t *testing.T) {
	pool := New(1)

	testutil.AssertNoError(t, pool.Execute(func() { panic("fire and forget") }))
	done := make(chan struct{})
	testutil.AssertNoError(t, pool.Execute(func() { close(done) }))

	testutil.WaitClosed(t, done, time.Second)
	testutil.AssertNoError(t, pool.Close())
	testutil.AssertEqual(t, pool.TotalFailed(), int64(1))
	testutil.AssertEqual(t, pool.TotalCompleted(), int64(2))
}

func TestCloseDrainsQueue(t *testing.T) {
	pool := New(2)

	gate := testutil.NewGate()
	var ran atomic.Int64
	futures := make([]*future.Future[int], 0, 20)
	for i := 0; i < 20; i++ {
		f, err := Submit(pool, func() (int, error) {
			gate.Wait()
			ran.Add(1)
			return i, nil
		})
		testutil.AssertNoError(t, err)
		futures = append(futures, f)
	}

	closed := make(chan struct{})
	go func() {
		_ = pool.Close()
		close(closed)
	}()

	testutil.Eventually(t, pool.IsShutdown, time.Second, time.Millisecond)
	select {
	case <-closed:
		t.Fatal("Close returned while tasks were blocked")
	case <-time.After(20 * time.Millisecond):
	}

	gate.Open()
	testutil.WaitClosed(t, closed, testutil.TestTimeout)

	testutil.AssertEqual(t, ran.Load(), int64(20))
	testutil.AssertEqual(t, pool.RunningWorkers(), 0)
	testutil.AssertEqual(t, pool.QueueSize(), 0)
	for i, f := range futures {
		if !f.IsReady() {
			t.Fatalf("future %d not resolved after Close", i)
		}
		v, err := f.Get()
		testutil.AssertNoError(t, err)
		testutil.AssertEqual(t, v, i)
	}
}

func TestSubmitAfterShutdown(t *testing.T) {
	pool := New(2)
	testutil.AssertNoError(t, pool.Close())

	if !pool.IsShutdown() {
		t.Fatal("pool should report shutdown")
	}

	_, err := Submit(pool, func() (int, error) { return 1, nil })
	testutil.AssertErrorIs(t, err, tperrors.ErrPoolClosed)
	testutil.AssertErrorIs(t, err, tperrors.ErrClosed)

	err = pool.Execute(func() {})
	testutil.AssertErrorIs(t, err, tperrors.ErrPoolClosed)

	testutil.AssertEqual(t, pool.TotalSubmitted(), int64(0))
}

func TestShutdownIsIdempotent(t *testing.T) {
	pool := New(3)

	first := pool.Shutdown()
	second := pool.Shutdown()
	if first != second {
		t.Error("Shutdown should return the same channel")
	}
	testutil.WaitClosed(t, first, time.Second)
	testutil.AssertNoError(t, pool.Close())
	testutil.AssertNoError(t, pool.Close())
}

func TestShutdownContextTimeout(t *testing.T) {
	pool := New(1)

	gate := testutil.NewGate()
	testutil.AssertNoError(t, pool.Execute(gate.Wait))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	err := pool.ShutdownContext(ctx)
	testutil.AssertErrorIs(t, err, tperrors.ErrTimeout)

	gate.Open()
	ctx2, cancel2 := testutil.WithTimeout(t)
	defer cancel2()
	testutil.AssertNoError(t, pool.ShutdownContext(ctx2))
}

func TestSingleWorkerRunsSerially(t *testing.T) {
	pool := New(1)

	var current, peak atomic.Int64
	for i := 0; i < 20; i++ {
		testutil.AssertNoError(t, pool.Execute(func() {
			n := current.Add(1)
			for {
				p := peak.Load()
				if n <= p || peak.CompareAndSwap(p, n) {
					break
				}
			}
			time.Sleep(time.Millisecond)
			current.Add(-1)
		}))
	}
	testutil.AssertNoError(t, pool.Close())

	testutil.AssertEqual(t, peak.Load(), int64(1))
}

func TestWorkersRunInParallel(t *testing.T) {
	const workers = 4

	pool := New(workers)
	defer pool.Close()

	// Every task waits until all of them are running at once.
	var arrived sync.WaitGroup
	arrived.Add(workers)
	release := testutil.NewGate()
	defer release.Open()

	for i := 0; i < workers; i++ {
		testutil.AssertNoError(t, pool.Execute(func() {
			arrived.Done()
			release.Wait()
		}))
	}

	all := make(chan struct{})
	go func() {
		arrived.Wait()
		close(all)
	}()
	testutil.WaitClosed(t, all, testutil.TestTimeout)
	testutil.AssertEqual(t, pool.ActiveWorkers(), workers)
}

func TestArgumentsBoundAtSubmission(t *testing.T) {
	pool := New(1)
	defer pool.Close()

	gate := testutil.NewGate()
	testutil.AssertNoError(t, pool.Execute(gate.Wait))

	x := 1
	fut, err := Submit1(pool, func(v int) (int, error) { return v * 10, nil }, x)
	testutil.AssertNoError(t, err)
	x = 5
	gate.Open()

	v, err := fut.Get()
	testutil.AssertNoError(t, err)
	testutil.AssertEqual(t, v, 10)
	testutil.AssertEqual(t, x, 5)
}

func TestSubmitArities(t *testing.T) {
	pool := New(2)
	defer pool.Close()

	f1, err := Submit1(pool, func(s string) (int, error) { return len(s), nil }, "four")
	testutil.AssertNoError(t, err)
	f3, err := Submit3(pool, func(a, b, c int) (int, error) { return a * b * c, nil }, 2, 3, 4)
	testutil.AssertNoError(t, err)

	v1, err := f1.Get()
	testutil.AssertNoError(t, err)
	testutil.AssertEqual(t, v1, 4)

	v3, err := f3.Get()
	testutil.AssertNoError(t, err)
	testutil.AssertEqual(t, v3, 24)
}

func TestNilFunctionRejected(t *testing.T) {
	pool := New(1)
	defer pool.Close()

	_, err := Submit[int](pool, nil)
	testutil.AssertErrorIs(t, err, tperrors.ErrInvalidConfiguration)

	_, err = SubmitValue[int](pool, nil)
	testutil.AssertErrorIs(t, err, tperrors.ErrInvalidConfiguration)

	_, err = Submit2[int, int, int](pool, nil, 1, 2)
	testutil.AssertErrorIs(t, err, tperrors.ErrInvalidConfiguration)

	testutil.AssertErrorIs(t, pool.Execute(nil), tperrors.ErrInvalidConfiguration)
	testutil.AssertEqual(t, pool.TotalSubmitted(), int64(0))
}

func TestSecondGetIsConsumed(t *testing.T) {
	pool := New(1)
	defer pool.Close()

	fut, err := SubmitValue(pool, func() int { return 3 })
	testutil.AssertNoError(t, err)

	v, err := fut.Get()
	testutil.AssertNoError(t, err)
	testutil.AssertEqual(t, v, 3)

	_, err = fut.Get()
	testutil.AssertErrorIs(t, err, tperrors.ErrResultConsumed)
}

func TestLifecycleHooks(t *testing.T) {
	var started, stopped testutil.Recorder[int]
	var taskStarts atomic.Int64
	var infos testutil.Recorder[TaskInfo]

	pool, err := NewWithConfig(Config{
		WorkerCount:    3,
		OnWorkerStart:  started.Record,
		OnWorkerStop:   stopped.Record,
		OnTaskStart:    func(TaskInfo) { taskStarts.Add(1) },
		OnTaskComplete: infos.Record,
	})
	testutil.AssertNoError(t, err)

	errBad := errors.New("bad")
	_, err = Submit(pool, func() (int, error) { return 0, errBad })
	testutil.AssertNoError(t, err)
	testutil.AssertNoError(t, pool.Execute(func() {}))
	testutil.AssertNoError(t, pool.Close())

	testutil.AssertEqual(t, started.Len(), 3)
	testutil.AssertEqual(t, stopped.Len(), 3)
	testutil.AssertEqual(t, taskStarts.Load(), int64(2))

	got := infos.Values()
	testutil.AssertEqual(t, len(got), 2)

	ids := map[uint64]TaskInfo{}
	for _, info := range got {
		ids[info.ID] = info
		if info.WorkerID < 0 || info.WorkerID >= 3 {
			t.Errorf("unexpected worker id %d", info.WorkerID)
		}
		if info.Started.Before(info.Enqueued) {
			t.Errorf("task %d started before it was enqueued", info.ID)
		}
		if info.QueueWait() < 0 {
			t.Errorf("negative queue wait %v", info.QueueWait())
		}
	}
	testutil.AssertErrorIs(t, ids[1].Err, errBad)
	testutil.AssertNoError(t, ids[2].Err)
}

func TestCountersAfterClose(t *testing.T) {
	pool := New(4)

	for i := 0; i < 10; i++ {
		_, err := Submit(pool, func() (int, error) {
			if i%2 == 0 {
				return 0, errors.New("even")
			}
			return i, nil
		})
		testutil.AssertNoError(t, err)
	}
	testutil.AssertNoError(t, pool.Close())

	testutil.AssertEqual(t, pool.TotalSubmitted(), int64(10))
	testutil.AssertEqual(t, pool.TotalCompleted(), int64(10))
	testutil.AssertEqual(t, pool.TotalFailed(), int64(5))
	testutil.AssertEqual(t, pool.ActiveWorkers(), 0)
	testutil.AssertEqual(t, pool.RunningWorkers(), 0)
}

func TestLockOSThread(t *testing.T) {
	pool, err := NewWithConfig(Config{WorkerCount: 2, LockOSThread: true})
	testutil.AssertNoError(t, err)
	defer pool.Close()

	fut, err := SubmitValue(pool, func() string { return "locked" })
	testutil.AssertNoError(t, err)
	v, err := fut.Get()
	testutil.AssertNoError(t, err)
	testutil.AssertEqual(t, v, "locked")
}

func TestPinCPU(t *testing.T) {
	pool, err := NewWithConfig(Config{WorkerCount: 2, PinCPU: true})
	if err != nil {
		// Affinity changes can be forbidden by the environment. A failed
		// start must not leave workers behind; goleak checks that.
		testutil.AssertEqual(t, pool, (*Pool)(nil))
		t.Skipf("pinning not permitted here: %v", err)
	}
	defer pool.Close()

	fut, err := SubmitValue(pool, func() int { return 1 })
	testutil.AssertNoError(t, err)
	v, err := fut.Get()
	testutil.AssertNoError(t, err)
	testutil.AssertEqual(t, v, 1)
}

func TestMaxQueued(t *testing.T) {
	pool, err := NewWithConfig(Config{WorkerCount: 1, MaxQueued: 2})
	testutil.AssertNoError(t, err)

	gate := testutil.NewGate()
	started := make(chan struct{})
	testutil.AssertNoError(t, pool.Execute(func() {
		close(started)
		gate.Wait()
	}))
	testutil.WaitClosed(t, started, time.Second)

	// The running task no longer counts against the queue.
	testutil.AssertNoError(t, pool.Execute(func() {}))
	testutil.AssertNoError(t, pool.Execute(func() {}))

	_, err = SubmitValue(pool, func() int { return 0 })
	testutil.AssertErrorIs(t, err, tperrors.ErrCapacityExceeded)
	if !tperrors.IsTemporary(err) {
		t.Errorf("queue-full error should be temporary: %v", err)
	}

	gate.Open()
	testutil.AssertNoError(t, pool.Close())
	testutil.AssertEqual(t, pool.TotalSubmitted(), int64(3))
	testutil.AssertEqual(t, pool.TotalCompleted(), int64(3))
}

func TestShutdownContextCanceled(t *testing.T) {
	pool := New(1)

	gate := testutil.NewGate()
	testutil.AssertNoError(t, pool.Execute(gate.Wait))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := pool.ShutdownContext(ctx)
	testutil.AssertErrorIs(t, err, context.Canceled)
	if errors.Is(err, tperrors.ErrTimeout) {
		t.Errorf("cancellation should not be reported as a timeout: %v", err)
	}

	gate.Open()
	testutil.AssertNoError(t, pool.Close())
}

func TestFailedStartLeavesNoWorkers(t *testing.T) {
	errBind := errors.New("bind refused")
	bind := bindWorker
	t.Cleanup(func() { bindWorker = bind })
	bindWorker = func(w *worker) (func(), error) {
		if w.id == 2 {
			return nil, errBind
		}
		return bind(w)
	}

	var started, stopped atomic.Int64
	pool, err := NewWithConfig(Config{
		WorkerCount:   4,
		LockOSThread:  true,
		OnWorkerStart: func(int) { started.Add(1) },
		OnWorkerStop:  func(int) { stopped.Add(1) },
	})

	testutil.AssertEqual(t, pool, (*Pool)(nil))
	testutil.AssertErrorIs(t, err, errBind)
	var opErr *tperrors.OperationError
	if !errors.As(err, &opErr) || opErr.Operation != "Start" {
		t.Errorf("expected a Start OperationError, got %v", err)
	}

	// The workers that did start were stopped before NewWithConfig returned.
	testutil.AssertEqual(t, started.Load(), int64(3))
	testutil.AssertEqual(t, stopped.Load(), int64(3))
}

func TestShutdownContextAfterStop(t *testing.T) {
	pool := New(2)
	testutil.AssertNoError(t, pool.Close())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	for i := 0; i < 100; i++ {
		testutil.AssertNoError(t, pool.ShutdownContext(ctx))
	}
}

func TestPanickingHooks(t *testing.T) {
	var handled atomic.Int64
	pool, err := NewWithConfig(Config{
		WorkerCount:    1,
		OnWorkerStart:  func(int) { panic("start hook") },
		OnWorkerStop:   func(int) { panic("stop hook") },
		OnTaskStart:    func(TaskInfo) { panic("task start hook") },
		OnTaskComplete: func(TaskInfo) { panic("task complete hook") },
		PanicHandler: func(any) {
			handled.Add(1)
			panic("panic handler")
		},
	})
	testutil.AssertNoError(t, err)

	testutil.AssertNoError(t, pool.Execute(func() { panic("task") }))

	fut, err := SubmitValue(pool, func() int { return 7 })
	testutil.AssertNoError(t, err)
	v, err := fut.Get()
	testutil.AssertNoError(t, err)
	testutil.AssertEqual(t, v, 7)

	testutil.AssertNoError(t, pool.Close())
	testutil.AssertEqual(t, handled.Load(), int64(1))
	testutil.AssertEqual(t, pool.ActiveWorkers(), 0)
	testutil.AssertEqual(t, pool.TotalCompleted(), int64(2))
	testutil.AssertEqual(t, pool.TotalFailed(), int64(1))
}
