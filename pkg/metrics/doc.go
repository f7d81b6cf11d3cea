// Package metrics provides Prometheus instrumentation for threadpool components.
//
// # Overview
//
// The metrics package instruments:
//   - Thread pools (submitted, rejected, executed, failed and panicked tasks,
//     execution time, queue wait, pool size, active workers, queue depth)
//   - Schedulers (registered jobs, firings, firings refused by the pool)
//
// # Quick Start
//
// Enable metrics through the component configuration:
//
//	pool, err := threadpool.NewWithConfig(threadpool.Config{
//		Name:    "ingest",
//		Metrics: metrics.DefaultConfig(),
//	})
//
// Then expose metrics via HTTP:
//
//	http.Handle("/metrics", promhttp.Handler())
//	log.Fatal(http.ListenAndServe(":8080", nil))
//
// # Custom Registry
//
// Use a custom Prometheus registry for isolation:
//
//	registry := prometheus.NewRegistry()
//	pool, err := threadpool.NewWithConfig(threadpool.Config{
//		Name: "isolated",
//		Metrics: metrics.Config{
//			Enabled:  true,
//			Registry: registry,
//		},
//	})
//
// Building a Registry twice against the same registerer reuses the
// collectors registered the first time, so several pools can share one
// registerer and differ only by their pool_name label.
//
// # Available Metrics
//
// Pool metrics (label pool_name):
//
//   - threadpool_pool_tasks_submitted_total
//   - threadpool_pool_tasks_rejected_total
//   - threadpool_pool_tasks_executed_total
//   - threadpool_pool_tasks_completed_total
//   - threadpool_pool_tasks_failed_total
//   - threadpool_pool_tasks_panicked_total
//   - threadpool_pool_task_duration_seconds
//   - threadpool_pool_task_queue_wait_seconds
//   - threadpool_pool_size
//   - threadpool_pool_active_workers
//   - threadpool_pool_queued_tasks
//
// Scheduler metrics (label scheduler_name):
//
//   - threadpool_scheduler_jobs_scheduled
//   - threadpool_scheduler_jobs_fired_total
//   - threadpool_scheduler_jobs_dropped_total
package metrics
