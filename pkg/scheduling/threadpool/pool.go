package threadpool

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"github.com/vnykmshr/threadpool/internal/cpu"
	ctxutil "github.com/vnykmshr/threadpool/pkg/common/context"
	tperrors "github.com/vnykmshr/threadpool/pkg/common/errors"
	"github.com/vnykmshr/threadpool/pkg/common/validation"
	"github.com/vnykmshr/threadpool/pkg/metrics"
	"github.com/vnykmshr/threadpool/pkg/scheduling/taskqueue"
)

const module = "threadpool"

// Config holds configuration options for creating a thread pool.
//
// The hooks run on worker goroutines. A panicking hook is recovered and
// logged, and the worker keeps running.
type Config struct {
	// Name identifies the pool in logs and metric labels.
	// Defaults to "threadpool".
	Name string

	// WorkerCount is the number of workers in the pool.
	// Zero means one worker per logical CPU.
	WorkerCount int

	// QueueCapacity is the initial capacity of the task queue. The queue
	// grows as needed; this only avoids early reallocation.
	QueueCapacity int

	// MaxQueued caps the number of tasks waiting in the queue. Submissions
	// beyond it fail with ErrCapacityExceeded instead of blocking.
	// Zero means unbounded.
	MaxQueued int

	// RateLimiter, if set, paces task starts across all workers.
	RateLimiter *rate.Limiter

	// LockOSThread wires every worker to its own OS thread for the
	// lifetime of the pool.
	LockOSThread bool

	// PinCPU additionally pins worker i to the i-th CPU the process may
	// run on, modulo their count (Linux only; elsewhere it behaves like
	// LockOSThread).
	// A worker that cannot be pinned makes construction fail.
	PinCPU bool

	// Logger receives lifecycle and failure events. Nil discards them.
	Logger *slog.Logger

	// Metrics enables Prometheus instrumentation.
	Metrics metrics.Config

	// PanicHandler is called with the recovered value when a task panics.
	// The panic is delivered to the task's result handle either way.
	PanicHandler func(recovered interface{})

	// OnWorkerStart is called when a worker starts, on the worker goroutine.
	OnWorkerStart func(workerID int)

	// OnWorkerStop is called when a worker stops, on the worker goroutine.
	OnWorkerStop func(workerID int)

	// OnTaskStart is called before a task begins execution.
	OnTaskStart func(info TaskInfo)

	// OnTaskComplete is called after a task completes (success or failure).
	OnTaskComplete func(info TaskInfo)
}

// DefaultConfig returns the configuration used by New(0).
func DefaultConfig() Config {
	return Config{
		Name:        module,
		WorkerCount: cpu.Count(),
	}
}

// TaskInfo describes one execution of a queued task.
type TaskInfo struct {
	// ID is the task's position in the pool's submission order, starting at 1.
	ID uint64

	// WorkerID identifies which worker executed the task
	WorkerID int

	// Enqueued is when the task entered the queue.
	Enqueued time.Time

	// Started is when a worker began executing the task.
	Started time.Time

	// Duration is how long the task took to execute. Zero in OnTaskStart.
	Duration time.Duration

	// Err is the task's error, or a *errors.PanicError if it panicked.
	Err error
}

// QueueWait is the time the task spent queued.
func (i TaskInfo) QueueWait() time.Duration {
	return i.Started.Sub(i.Enqueued)
}

// workItem is the type-erased unit of work held by the queue. The error
// is only reported to instrumentation; results travel through the
// promise captured by run.
type workItem struct {
	id       uint64
	run      func() error
	enqueued time.Time
}

// Pool is a fixed-size pool of workers consuming one shared FIFO queue.
//
// A Pool must be stopped with Close or Shutdown; tasks already accepted
// are always executed before the workers exit.
type Pool struct {
	config  Config
	name    string
	logger  *slog.Logger
	metrics *poolMetrics

	queue   *taskqueue.Queue[workItem]
	mu      sync.Mutex // guards the wait predicate: queue emptiness and running
	cond    *sync.Cond
	running atomic.Bool
	nextID  uint64 // guarded by mu

	workers      []*worker
	workerWg     sync.WaitGroup
	shutdownOnce sync.Once
	done         chan struct{}

	activeWorkers  atomic.Int64
	runningWorkers atomic.Int64
	totalSubmitted atomic.Int64
	totalCompleted atomic.Int64
	totalFailed    atomic.Int64
}

// New creates a pool with workerCount workers (zero means one per CPU).
// It panics if the configuration is invalid; use NewWithConfig to get
// the error instead.
func New(workerCount int) *Pool {
	p, err := NewWithConfig(Config{WorkerCount: workerCount})
	if err != nil {
		panic(err)
	}
	return p
}

// NewWithConfig creates a pool and starts all of its workers. Either every
// worker starts or none remain running and an error is returned.
func NewWithConfig(config Config) (*Pool, error) {
	if err := validation.ValidateNonNegative(module, "WorkerCount", config.WorkerCount); err != nil {
		return nil, err
	}
	if err := validation.ValidateNonNegative(module, "QueueCapacity", config.QueueCapacity); err != nil {
		return nil, err
	}
	if err := validation.ValidateNonNegative(module, "MaxQueued", config.MaxQueued); err != nil {
		return nil, err
	}

	if config.WorkerCount == 0 {
		config.WorkerCount = cpu.Count()
	}
	if config.Name == "" {
		config.Name = module
	}
	if config.PinCPU {
		config.LockOSThread = true
	}

	logger := config.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	p := &Pool{
		config: config,
		name:   config.Name,
		logger: logger.With("pool", config.Name),
		queue:  taskqueue.NewWithCapacity[workItem](config.QueueCapacity),
		done:   make(chan struct{}),
	}
	p.cond = sync.NewCond(&p.mu)
	p.running.Store(true)

	if config.Metrics.Enabled {
		p.metrics = newPoolMetrics(config.Name, config.Metrics)
	}

	started := make(chan error, config.WorkerCount)
	p.workers = make([]*worker, config.WorkerCount)
	for i := 0; i < config.WorkerCount; i++ {
		p.workers[i] = &worker{id: i, pool: p}
		p.workerWg.Add(1)
		p.runningWorkers.Add(1)
		go p.workers[i].run(started)
	}

	var startErr error
	for i := 0; i < config.WorkerCount; i++ {
		if err := <-started; err != nil && startErr == nil {
			startErr = err
		}
	}
	if startErr != nil {
		<-p.Shutdown()
		return nil, tperrors.NewOperationError(module, "Start", startErr).
			WithContext(fmt.Sprintf("pool %q with %d workers", config.Name, config.WorkerCount))
	}

	p.metrics.setSize(config.WorkerCount)
	p.logger.Debug("thread pool started", "workers", config.WorkerCount)
	return p, nil
}

// Execute queues fn for execution without a result handle. A panic in fn
// is recovered, counted as a failure and passed to Config.PanicHandler.
func (p *Pool) Execute(fn func()) error {
	if fn == nil {
		return nilFuncError()
	}
	return p.enqueue(func() error {
		fn()
		return nil
	})
}

// enqueue pushes run onto the queue and wakes one waiting worker. The
// running check, the push and the signal happen under the same lock the
// workers wait on, so an accepted item is always seen before they stop.
func (p *Pool) enqueue(run func() error) error {
	p.mu.Lock()
	if !p.running.Load() {
		p.mu.Unlock()
		p.metrics.rejected()
		p.logger.Warn("submission rejected", "reason", "shut down")
		return tperrors.ErrPoolClosed
	}
	if limit := p.config.MaxQueued; limit > 0 && p.queue.Len() >= limit {
		p.mu.Unlock()
		p.metrics.rejected()
		p.logger.Warn("submission rejected", "reason", "queue full", "queued", limit)
		return tperrors.NewOperationError(module, "Submit", tperrors.ErrCapacityExceeded).
			WithContext(fmt.Sprintf("%d tasks queued", limit))
	}
	p.nextID++
	p.queue.Push(workItem{id: p.nextID, run: run, enqueued: time.Now()})
	p.totalSubmitted.Add(1)
	p.cond.Signal()
	p.mu.Unlock()

	p.metrics.submitted(p.queue.Len())
	return nil
}

// next blocks until there is work or the pool has stopped. It returns
// false only when the pool is stopped and the queue is drained.
func (p *Pool) next() (workItem, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	for p.queue.Empty() && p.running.Load() {
		p.cond.Wait()
	}
	return p.queue.Pop()
}

// Shutdown stops accepting submissions and wakes every worker. Workers
// finish the queued tasks and exit. The returned channel is closed once
// every worker has returned. Calling Shutdown again returns the same channel.
func (p *Pool) Shutdown() <-chan struct{} {
	p.shutdownOnce.Do(func() {
		p.mu.Lock()
		p.running.Store(false)
		p.cond.Broadcast()
		p.mu.Unlock()

		p.logger.Debug("thread pool stopping", "queued", p.queue.Len())

		go func() {
			p.workerWg.Wait()
			p.metrics.stopped()
			p.logger.Info("thread pool stopped",
				"completed", p.totalCompleted.Load(),
				"failed", p.totalFailed.Load())
			close(p.done)
		}()
	})
	return p.done
}

// Close shuts the pool down and blocks until all workers have exited.
// Calling Close from a task running on the same pool deadlocks.
func (p *Pool) Close() error {
	<-p.Shutdown()
	return nil
}

// ShutdownContext shuts the pool down and waits for the workers until ctx
// is done. If ctx is done first the workers keep draining in the
// background; the error wraps ErrTimeout when the deadline passed and
// ctx.Err() when ctx was canceled. A pool that has already stopped
// returns nil even if ctx is done.
func (p *Pool) ShutdownContext(ctx context.Context) error {
	done := p.Shutdown()
	if ctxutil.IsCanceled(ctx) {
		// Report a finished drain over a context that is already done.
		select {
		case <-done:
			return nil
		default:
		}
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		cause := ctx.Err()
		if ctxutil.IsTimedOut(ctx) {
			cause = tperrors.ErrTimeout
		}
		return tperrors.NewOperationError(module, "Shutdown", cause).
			WithContext(fmt.Sprintf("%d workers still running", p.RunningWorkers()))
	}
}

// Name returns the pool name.
func (p *Pool) Name() string {
	return p.name
}

// Size returns the number of workers in the pool.
func (p *Pool) Size() int {
	return p.config.WorkerCount
}

// QueueSize returns the current number of queued tasks waiting for execution.
func (p *Pool) QueueSize() int {
	return p.queue.Len()
}

// ActiveWorkers returns the number of workers currently executing tasks.
func (p *Pool) ActiveWorkers() int {
	return int(p.activeWorkers.Load())
}

// RunningWorkers returns the number of worker goroutines that have not
// exited yet. It is zero once Close has returned.
func (p *Pool) RunningWorkers() int {
	return int(p.runningWorkers.Load())
}

// TotalSubmitted returns the total number of tasks accepted by the pool.
func (p *Pool) TotalSubmitted() int64 {
	return p.totalSubmitted.Load()
}

// TotalCompleted returns the total number of tasks executed, including failures.
func (p *Pool) TotalCompleted() int64 {
	return p.totalCompleted.Load()
}

// TotalFailed returns the number of tasks that returned an error or panicked.
func (p *Pool) TotalFailed() int64 {
	return p.totalFailed.Load()
}

// IsShutdown reports whether Shutdown has been called.
func (p *Pool) IsShutdown() bool {
	return !p.running.Load()
}

func nilFuncError() error {
	return tperrors.NewValidationError(module, "fn", nil, "cannot be nil").
		WithHint("submit a non-nil function")
}
