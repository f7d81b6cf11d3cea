package threadpool

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/vnykmshr/threadpool/pkg/metrics"
)

// poolMetrics binds a metrics.Registry to one pool name. A nil
// *poolMetrics records nothing.
type poolMetrics struct {
	submittedTotal prometheus.Counter
	rejectedTotal  prometheus.Counter
	executedTotal  prometheus.Counter
	completedTotal prometheus.Counter
	failedTotal    prometheus.Counter
	panickedTotal  prometheus.Counter
	duration       prometheus.Observer
	queueWait      prometheus.Observer
	size           prometheus.Gauge
	active         prometheus.Gauge
	queued         prometheus.Gauge
}

func newPoolMetrics(name string, cfg metrics.Config) *poolMetrics {
	registry := metrics.New(cfg)
	return &poolMetrics{
		submittedTotal: registry.TasksSubmitted.WithLabelValues(name),
		rejectedTotal:  registry.TasksRejected.WithLabelValues(name),
		executedTotal:  registry.TasksExecuted.WithLabelValues(name),
		completedTotal: registry.TasksCompleted.WithLabelValues(name),
		failedTotal:    registry.TasksFailed.WithLabelValues(name),
		panickedTotal:  registry.TasksPanicked.WithLabelValues(name),
		duration:       registry.TaskExecutionDuration.WithLabelValues(name),
		queueWait:      registry.TaskQueueWait.WithLabelValues(name),
		size:           registry.WorkerPoolSize.WithLabelValues(name),
		active:         registry.WorkerPoolActive.WithLabelValues(name),
		queued:         registry.WorkerPoolQueued.WithLabelValues(name),
	}
}

func (m *poolMetrics) setSize(n int) {
	if m == nil {
		return
	}
	m.size.Set(float64(n))
}

func (m *poolMetrics) submitted(queued int) {
	if m == nil {
		return
	}
	m.submittedTotal.Inc()
	m.queued.Set(float64(queued))
}

func (m *poolMetrics) rejected() {
	if m == nil {
		return
	}
	m.rejectedTotal.Inc()
}

func (m *poolMetrics) taskStarted(info TaskInfo, queued int) {
	if m == nil {
		return
	}
	m.queueWait.Observe(info.QueueWait().Seconds())
	m.active.Inc()
	m.queued.Set(float64(queued))
}

func (m *poolMetrics) taskFinished(info TaskInfo, panicked bool) {
	if m == nil {
		return
	}
	m.active.Dec()
	m.executedTotal.Inc()
	m.duration.Observe(info.Duration.Seconds())
	if info.Err != nil {
		m.failedTotal.Inc()
	} else {
		m.completedTotal.Inc()
	}
	if panicked {
		m.panickedTotal.Inc()
	}
}

func (m *poolMetrics) stopped() {
	if m == nil {
		return
	}
	m.size.Set(0)
	m.active.Set(0)
	m.queued.Set(0)
}
