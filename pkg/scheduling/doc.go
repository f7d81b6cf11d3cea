/*
Package scheduling provides task execution primitives for Go applications.

The subpackages build on each other:

  - taskqueue: Mutex-guarded generic FIFO queue
  - future: One-shot promise/future result handoff
  - threadpool: Fixed-size worker pool with typed result futures
  - scheduler: Cron and interval jobs submitted into a thread pool

Thread Pool:

	pool := threadpool.New(4) // 4 workers
	defer pool.Close()

	fut, _ := threadpool.Submit2(pool, add, 1, 2)
	sum, err := fut.Get()

Scheduler:

	s, _ := scheduler.New(pool, scheduler.Config{})
	defer func() { <-s.Stop() }()

	s.ScheduleCron("report", "0 9 * * MON-FRI", sendReport) // Weekdays at 9 AM
	s.ScheduleEvery("poll", 30*time.Second, poll)
	s.Start()

All components are safe for concurrent use.
*/
package scheduling
