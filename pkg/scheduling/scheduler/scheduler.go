package scheduler

import (
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/robfig/cron/v3"

	tperrors "github.com/vnykmshr/threadpool/pkg/common/errors"
	"github.com/vnykmshr/threadpool/pkg/common/validation"
	"github.com/vnykmshr/threadpool/pkg/metrics"
	"github.com/vnykmshr/threadpool/pkg/scheduling/threadpool"
)

const module = "scheduler"

const maxIDLength = 255

var errAlreadyRunning = errors.New("scheduler already running")

// parser accepts standard five-field expressions, an optional leading
// seconds field, and descriptors such as "@hourly" or "@every 1m".
var parser = cron.NewParser(
	cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor,
)

// Config holds scheduler configuration.
type Config struct {
	// Name identifies the scheduler in logs and metric labels.
	// Defaults to "scheduler".
	Name string

	// Location is the time zone cron expressions are evaluated in.
	// Defaults to time.Local.
	Location *time.Location

	// Logger receives firing and rejection events. Nil discards them.
	Logger *slog.Logger

	// Metrics enables Prometheus instrumentation.
	Metrics metrics.Config

	// OnError is called with the job ID when a job returns an error.
	// It runs on the pool worker that executed the job.
	OnError func(id string, err error)
}

// Job describes a registered recurring job.
type Job struct {
	ID   string
	Spec string    // cron expression, or "@every <interval>"
	Next time.Time // zero until the scheduler is started
	Prev time.Time // zero if the job has not fired yet
}

type entry struct {
	id         string
	spec       string
	cronID     cron.EntryID
	run        func() error
	skipIfBusy bool
	busy       atomic.Bool
}

// Scheduler fires recurring jobs by submitting them to a thread pool.
// Timing is handled by a cron runner; the jobs themselves always execute
// on pool workers. The pool is not owned: stopping the scheduler leaves
// it running.
type Scheduler struct {
	pool    *threadpool.Pool
	name    string
	config  Config
	logger  *slog.Logger
	cron    *cron.Cron
	metrics *schedulerMetrics

	mu      sync.Mutex
	entries map[string]*entry
	running bool

	fired   atomic.Int64
	dropped atomic.Int64
}

// New creates a scheduler that submits into pool.
func New(pool *threadpool.Pool, config Config) (*Scheduler, error) {
	if err := validation.ValidateNotNil(module, "pool", pool); err != nil {
		return nil, err
	}
	if config.Name == "" {
		config.Name = module
	}
	if config.Location == nil {
		config.Location = time.Local
	}

	logger := config.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	logger = logger.With("scheduler", config.Name)

	s := &Scheduler{
		pool:    pool,
		name:    config.Name,
		config:  config,
		logger:  logger,
		entries: make(map[string]*entry),
		cron: cron.New(
			cron.WithLocation(config.Location),
			cron.WithParser(parser),
			cron.WithLogger(cronLogger{logger}),
		),
	}
	if config.Metrics.Enabled {
		s.metrics = newSchedulerMetrics(config.Name, config.Metrics)
	}
	return s, nil
}

// ScheduleCron registers job to be submitted whenever expr matches.
func (s *Scheduler) ScheduleCron(id, expr string, job func() error) error {
	return s.ScheduleCronWithOptions(id, expr, job, Options{})
}

// ScheduleCronWithOptions is ScheduleCron with per-job options.
func (s *Scheduler) ScheduleCronWithOptions(id, expr string, job func() error, opts Options) error {
	if err := validation.ValidateNotEmpty(module, "expr", expr); err != nil {
		return err
	}
	schedule, err := parser.Parse(expr)
	if err != nil {
		return tperrors.NewValidationError(module, "expr", expr, err.Error()).
			WithHint("use five fields (minute hour dom month dow), six with seconds, or a descriptor like @hourly")
	}
	return s.add(id, expr, schedule, job, opts)
}

// ScheduleEvery registers job to be submitted every interval, starting one
// interval after the scheduler starts. Sub-second intervals are honored.
func (s *Scheduler) ScheduleEvery(id string, interval time.Duration, job func() error) error {
	return s.ScheduleEveryWithOptions(id, interval, job, Options{})
}

// ScheduleEveryWithOptions is ScheduleEvery with per-job options.
func (s *Scheduler) ScheduleEveryWithOptions(id string, interval time.Duration, job func() error, opts Options) error {
	if err := validation.ValidatePositiveDuration(module, "interval", interval); err != nil {
		return err
	}
	return s.add(id, "@every "+interval.String(), everySchedule{interval}, job, opts)
}

// Options tune a single job.
type Options struct {
	// SkipIfBusy drops a firing while the previous one is still queued
	// or running in the pool.
	SkipIfBusy bool
}

func (s *Scheduler) add(id, spec string, schedule cron.Schedule, job func() error, opts Options) error {
	if err := validation.ValidateNotEmpty(module, "id", id); err != nil {
		return err
	}
	if len(id) > maxIDLength {
		return tperrors.NewValidationError(module, "id", id, fmt.Sprintf("longer than %d characters", maxIDLength))
	}
	if job == nil {
		return tperrors.NewValidationError(module, "job", nil, "cannot be nil")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.entries[id]; exists {
		return tperrors.NewValidationError(module, "id", id, "already scheduled").
			WithHint("cancel the existing job first or use a different ID")
	}

	e := &entry{id: id, spec: spec, run: job, skipIfBusy: opts.SkipIfBusy}
	e.cronID = s.cron.Schedule(schedule, cron.FuncJob(func() { s.fire(e) }))
	s.entries[id] = e

	s.metrics.setScheduled(len(s.entries))
	s.logger.Debug("job scheduled", "job", id, "spec", spec)
	return nil
}

// fire submits one run of e to the pool. It runs on the cron goroutine
// and never blocks on the job itself.
func (s *Scheduler) fire(e *entry) {
	if e.skipIfBusy && !e.busy.CompareAndSwap(false, true) {
		s.drop(e, "previous run still in progress", true)
		return
	}

	err := s.pool.Execute(func() {
		if e.skipIfBusy {
			defer e.busy.Store(false)
		}
		if err := e.run(); err != nil {
			s.logger.Warn("job failed", "job", e.id, "error", err)
			if s.config.OnError != nil {
				s.config.OnError(e.id, err)
			}
		}
	})
	if err != nil {
		if e.skipIfBusy {
			e.busy.Store(false)
		}
		s.drop(e, err.Error(), tperrors.IsTemporary(err))
		return
	}

	s.fired.Add(1)
	s.metrics.jobFired()
}

// drop records a firing that never reached the pool. Temporary drops
// (busy job, full queue) can succeed on the next firing.
func (s *Scheduler) drop(e *entry, reason string, temporary bool) {
	s.dropped.Add(1)
	s.metrics.jobDropped()
	s.logger.Warn("job firing dropped", "job", e.id, "reason", reason, "temporary", temporary)
}

// Cancel removes the job with the given ID. A run already submitted to
// the pool still completes. It reports whether the job existed.
func (s *Scheduler) Cancel(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, exists := s.entries[id]
	if !exists {
		return false
	}
	s.cron.Remove(e.cronID)
	delete(s.entries, id)

	s.metrics.setScheduled(len(s.entries))
	s.logger.Debug("job canceled", "job", id)
	return true
}

// CancelAll removes every job.
func (s *Scheduler) CancelAll() {
	s.mu.Lock()
	defer s.mu.Unlock()

	for id, e := range s.entries {
		s.cron.Remove(e.cronID)
		delete(s.entries, id)
	}
	s.metrics.setScheduled(0)
}

// List returns the registered jobs ordered by their next firing time,
// then by ID.
func (s *Scheduler) List() []Job {
	s.mu.Lock()
	jobs := make([]Job, 0, len(s.entries))
	for _, e := range s.entries {
		ce := s.cron.Entry(e.cronID)
		jobs = append(jobs, Job{ID: e.id, Spec: e.spec, Next: ce.Next, Prev: ce.Prev})
	}
	s.mu.Unlock()

	sort.Slice(jobs, func(i, j int) bool {
		if !jobs[i].Next.Equal(jobs[j].Next) {
			return jobs[i].Next.Before(jobs[j].Next)
		}
		return jobs[i].ID < jobs[j].ID
	})
	return jobs
}

// Start begins firing jobs. Jobs may be added before or after Start.
func (s *Scheduler) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return tperrors.NewOperationError(module, "Start", errAlreadyRunning).
			WithContext("call Stop first")
	}
	s.running = true
	s.cron.Start()
	s.logger.Debug("scheduler started", "jobs", len(s.entries))
	return nil
}

// Stop halts firing. The returned channel is closed once no firing is in
// progress. Runs already submitted to the pool are not waited for; close
// the pool to wait for them.
func (s *Scheduler) Stop() <-chan struct{} {
	s.mu.Lock()
	wasRunning := s.running
	s.running = false
	s.mu.Unlock()

	ctx := s.cron.Stop()
	if wasRunning {
		s.logger.Info("scheduler stopped", "fired", s.fired.Load(), "dropped", s.dropped.Load())
	}
	return ctx.Done()
}

// Name returns the scheduler name.
func (s *Scheduler) Name() string {
	return s.name
}

// Len returns the number of registered jobs.
func (s *Scheduler) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// Fired returns how many firings were submitted to the pool.
func (s *Scheduler) Fired() int64 {
	return s.fired.Load()
}

// Dropped returns how many firings were not submitted, either because the
// pool was shut down or because the job was still busy.
func (s *Scheduler) Dropped() int64 {
	return s.dropped.Load()
}

// ValidateCronExpression reports whether expr is accepted by ScheduleCron.
func ValidateCronExpression(expr string) error {
	_, err := parser.Parse(expr)
	return err
}

// NextRuns returns the next n firing times of expr after from.
func NextRuns(expr string, from time.Time, n int) ([]time.Time, error) {
	if err := validation.ValidatePositive(module, "n", n); err != nil {
		return nil, err
	}
	schedule, err := parser.Parse(expr)
	if err != nil {
		return nil, err
	}
	runs := make([]time.Time, 0, n)
	for i := 0; i < n; i++ {
		from = schedule.Next(from)
		if from.IsZero() {
			break
		}
		runs = append(runs, from)
	}
	return runs, nil
}

// everySchedule fires at a fixed interval. Unlike cron.Every it does not
// round to whole seconds.
type everySchedule struct {
	interval time.Duration
}

func (e everySchedule) Next(t time.Time) time.Time {
	return t.Add(e.interval)
}

// cronLogger routes the cron runner's own messages into slog.
type cronLogger struct {
	logger *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Debug("cron: "+msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Error("cron: "+msg, append(keysAndValues, "error", err)...)
}

// schedulerMetrics binds the scheduler series to one scheduler name.
// A nil *schedulerMetrics records nothing.
type schedulerMetrics struct {
	scheduled prometheus.Gauge
	fired     prometheus.Counter
	dropped   prometheus.Counter
}

func newSchedulerMetrics(name string, cfg metrics.Config) *schedulerMetrics {
	registry := metrics.New(cfg)
	return &schedulerMetrics{
		scheduled: registry.JobsScheduled.WithLabelValues(name),
		fired:     registry.JobsFired.WithLabelValues(name),
		dropped:   registry.JobsDropped.WithLabelValues(name),
	}
}

func (m *schedulerMetrics) setScheduled(n int) {
	if m == nil {
		return
	}
	m.scheduled.Set(float64(n))
}

func (m *schedulerMetrics) jobFired() {
	if m == nil {
		return
	}
	m.fired.Inc()
}

func (m *schedulerMetrics) jobDropped() {
	if m == nil {
		return
	}
	m.dropped.Inc()
}
