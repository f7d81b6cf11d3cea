/*
Package threadpool is a Go library for running functions on a fixed set of
workers and collecting their results.

Task Execution (pkg/scheduling):
  - taskqueue: Thread-safe FIFO queue
  - future: One-shot result handles
  - threadpool: Fixed worker pool with typed submission
  - scheduler: Cron and interval jobs on top of a pool

Instrumentation (pkg/metrics):
  - Prometheus counters, gauges and histograms for pools and schedulers

Example usage:

	import (
		"github.com/vnykmshr/threadpool/pkg/scheduling/threadpool"
	)

	pool := threadpool.New(12)
	defer pool.Close()

	fut, err := threadpool.Submit2(pool, add, 20, 22)
	if err != nil {
		return err
	}
	sum, err := fut.Get()
*/
package threadpool
