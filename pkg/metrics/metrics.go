// Package metrics provides Prometheus instrumentation for threadpool components.
package metrics

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
)

// Registry holds all metric instances for threadpool components.
type Registry struct {
	// Pool Metrics
	TasksSubmitted        *prometheus.CounterVec
	TasksRejected         *prometheus.CounterVec
	TasksExecuted         *prometheus.CounterVec
	TasksCompleted        *prometheus.CounterVec
	TasksFailed           *prometheus.CounterVec
	TasksPanicked         *prometheus.CounterVec
	TaskExecutionDuration *prometheus.HistogramVec
	TaskQueueWait         *prometheus.HistogramVec
	WorkerPoolSize        *prometheus.GaugeVec
	WorkerPoolActive      *prometheus.GaugeVec
	WorkerPoolQueued      *prometheus.GaugeVec

	// Scheduler Metrics
	JobsScheduled *prometheus.GaugeVec
	JobsFired     *prometheus.CounterVec
	JobsDropped   *prometheus.CounterVec
}

// DefaultRegistry is the default metrics registry used by threadpool components.
var DefaultRegistry *Registry

func init() {
	DefaultRegistry = NewRegistry(prometheus.DefaultRegisterer)
}

// NewRegistry creates a new metrics registry with the given Prometheus registerer
// and the default namespace.
func NewRegistry(reg prometheus.Registerer) *Registry {
	return New(Config{Registry: reg})
}

// New creates a metrics registry from cfg. Collectors that are already
// registered on the target registerer (for example by an earlier call with
// the same registerer) are reused instead of causing a panic.
func New(cfg Config) *Registry {
	reg := cfg.Registry
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	ns := cfg.Namespace
	if ns == "" {
		ns = DefaultNamespace
	}

	counter := func(subsystem, name, help string, labels ...string) *prometheus.CounterVec {
		return register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   ns,
			Subsystem:   subsystem,
			Name:        name,
			Help:        help,
			ConstLabels: cfg.Labels,
		}, labels))
	}
	gauge := func(subsystem, name, help string, labels ...string) *prometheus.GaugeVec {
		return register(reg, prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace:   ns,
			Subsystem:   subsystem,
			Name:        name,
			Help:        help,
			ConstLabels: cfg.Labels,
		}, labels))
	}
	histogram := func(subsystem, name, help string, labels ...string) *prometheus.HistogramVec {
		return register(reg, prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace:   ns,
			Subsystem:   subsystem,
			Name:        name,
			Help:        help,
			Buckets:     prometheus.DefBuckets,
			ConstLabels: cfg.Labels,
		}, labels))
	}

	return &Registry{
		TasksSubmitted: counter("pool", "tasks_submitted_total",
			"Total number of tasks accepted into the queue", "pool_name"),
		TasksRejected: counter("pool", "tasks_rejected_total",
			"Total number of submissions rejected because the pool was shut down or its queue was full", "pool_name"),
		TasksExecuted: counter("pool", "tasks_executed_total",
			"Total number of tasks executed", "pool_name"),
		TasksCompleted: counter("pool", "tasks_completed_total",
			"Total number of tasks completed successfully", "pool_name"),
		TasksFailed: counter("pool", "tasks_failed_total",
			"Total number of tasks that returned an error or panicked", "pool_name"),
		TasksPanicked: counter("pool", "tasks_panicked_total",
			"Total number of tasks that panicked", "pool_name"),
		TaskExecutionDuration: histogram("pool", "task_duration_seconds",
			"Time spent executing tasks", "pool_name"),
		TaskQueueWait: histogram("pool", "task_queue_wait_seconds",
			"Time tasks spent queued before a worker picked them up", "pool_name"),
		WorkerPoolSize: gauge("pool", "size",
			"Configured number of workers", "pool_name"),
		WorkerPoolActive: gauge("pool", "active_workers",
			"Number of workers currently executing a task", "pool_name"),
		WorkerPoolQueued: gauge("pool", "queued_tasks",
			"Number of queued tasks", "pool_name"),

		JobsScheduled: gauge("scheduler", "jobs_scheduled",
			"Number of registered recurring jobs", "scheduler_name"),
		JobsFired: counter("scheduler", "jobs_fired_total",
			"Total number of job firings submitted to the pool", "scheduler_name"),
		JobsDropped: counter("scheduler", "jobs_dropped_total",
			"Total number of job firings the pool refused", "scheduler_name"),
	}
}

// register registers c on reg, returning the already registered collector
// when an identical one exists.
func register[C prometheus.Collector](reg prometheus.Registerer, c C) C {
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(C); ok {
				return existing
			}
		}
		panic(err)
	}
	return c
}
