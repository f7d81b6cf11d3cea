package threadpool

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/vnykmshr/threadpool/internal/cpu"
	tperrors "github.com/vnykmshr/threadpool/pkg/common/errors"
)

// worker represents a single worker in the pool.
type worker struct {
	id   int
	pool *Pool
}

// run is the main loop for a worker. It reports its start on started
// exactly once, then executes queued items until the pool is stopped and
// the queue is drained.
func (w *worker) run(started chan<- error) {
	p := w.pool
	defer p.workerWg.Done()
	defer p.runningWorkers.Add(-1)

	if p.config.LockOSThread {
		release, err := bindWorker(w)
		if err != nil {
			started <- err
			return
		}
		defer release()
	}
	started <- nil

	if hook := p.config.OnWorkerStart; hook != nil {
		w.callHook("OnWorkerStart", func() { hook(w.id) })
	}
	if hook := p.config.OnWorkerStop; hook != nil {
		defer w.callHook("OnWorkerStop", func() { hook(w.id) })
	}
	p.logger.Debug("worker started", "worker", w.id)

	for {
		item, ok := p.next()
		if !ok {
			p.logger.Debug("worker stopped", "worker", w.id)
			return
		}
		w.execute(item)
	}
}

// bindWorker locks the worker goroutine to an OS thread, pinned to a CPU
// when configured. Tests replace it to make a worker fail to start.
var bindWorker = func(w *worker) (func(), error) {
	if w.pool.config.PinCPU {
		return cpu.Pin(w.id)
	}
	return cpu.LockThread(), nil
}

// execute runs a single item to completion and records its outcome.
func (w *worker) execute(item workItem) {
	p := w.pool

	if limiter := p.config.RateLimiter; limiter != nil {
		if err := limiter.Wait(context.Background()); err != nil {
			// Accepted work is never dropped; run it unpaced.
			p.logger.Warn("running task unpaced", "worker", w.id,
				"error", fmt.Errorf("%w: %v", tperrors.ErrRateLimited, err))
		}
	}

	info := TaskInfo{
		ID:       item.id,
		WorkerID: w.id,
		Enqueued: item.enqueued,
		Started:  time.Now(),
	}

	p.activeWorkers.Add(1)
	p.metrics.taskStarted(info, p.queue.Len())
	if hook := p.config.OnTaskStart; hook != nil {
		w.callHook("OnTaskStart", func() { hook(info) })
	}

	info.Err = invoke(item.run)
	info.Duration = time.Since(info.Started)

	p.activeWorkers.Add(-1)
	p.totalCompleted.Add(1)
	if info.Err != nil {
		p.totalFailed.Add(1)
	}

	panicked := tperrors.IsPanic(info.Err)
	if panicked {
		w.handlePanic(info)
	}

	p.metrics.taskFinished(info, panicked)
	if hook := p.config.OnTaskComplete; hook != nil {
		w.callHook("OnTaskComplete", func() { hook(info) })
	}
}

func (w *worker) handlePanic(info TaskInfo) {
	var perr *tperrors.PanicError
	errors.As(info.Err, &perr)
	w.pool.logger.Warn("task panicked", "worker", w.id, "task", info.ID, "panic", perr.Value)

	if handler := w.pool.config.PanicHandler; handler != nil {
		w.callHook("PanicHandler", func() { handler(perr.Value) })
	}
}

// callHook runs a user hook. A panicking hook is logged and does not take
// the worker down.
func (w *worker) callHook(name string, hook func()) {
	defer func() {
		if r := recover(); r != nil {
			w.pool.logger.Error("hook panicked", "hook", name, "worker", w.id, "panic", r)
		}
	}()
	hook()
}

// invoke calls run, converting a panic into a *errors.PanicError.
func invoke(run func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = tperrors.NewPanicError(r, debug.Stack())
		}
	}()
	return run()
}
