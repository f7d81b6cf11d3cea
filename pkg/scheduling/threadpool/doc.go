/*
Package threadpool provides a fixed-size pool of workers that execute
submitted functions in FIFO order and hand their results back through
one-shot futures.

A pool starts all of its workers at construction and keeps them until it is
shut down. Every submission is appended to a single shared queue; idle
workers sleep on a condition variable and are woken one per submission.

Basic usage:

	pool := threadpool.New(4) // 4 workers, 0 means one per CPU
	defer pool.Close()

	fut, err := threadpool.Submit2(pool, add, 1, 2)
	if err != nil {
		log.Printf("Failed to submit: %v", err)
	}

	sum, err := fut.Get() // blocks until a worker has run add(1, 2)

Submission Functions:

Go methods cannot carry type parameters, so typed submission is provided by
package-level functions that take the pool as their first argument:

	// No arguments
	f1, _ := threadpool.Submit(pool, func() (int, error) { return 42, nil })

	// Function that cannot fail
	f2, _ := threadpool.SubmitValue(pool, func() string { return "done" })

	// Arguments bound at submission time
	f3, _ := threadpool.Submit1(pool, strconv.Atoi, "17")

	// Arbitrary signature, checked by reflection when submitting
	f4, _ := threadpool.SubmitCall(pool, strings.Repeat, "ab", 3)

	// Fire and forget
	_ = pool.Execute(func() { cleanup() })

Arguments are captured by value when the task is submitted. Later changes to
the caller's variables are not seen by the task.

Results:

Each future can be read exactly once:

	v, err := fut.Get()          // blocks
	v, err = fut.Get()           // err == errors.ErrResultConsumed

	ctx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()
	v, err = fut.GetContext(ctx) // a timeout leaves the result unread

	values, err := threadpool.WaitAll(ctx, f1, f5, f6)

An error returned by the task is delivered through its future. A panic is
recovered by the worker and delivered as an error wrapping
errors.ErrTaskPanicked; the worker keeps running.

Shutdown:

Shutdown stops new submissions and lets the workers drain the queue:

	pool.Close()                         // blocks until workers exit
	<-pool.Shutdown()                    // same, as a channel
	err := pool.ShutdownContext(ctx)     // bounded wait

Every task accepted before shutdown runs to completion and resolves its
future. Submissions after shutdown fail with errors.ErrPoolClosed. Calling
Close from inside a task of the same pool deadlocks.

Configuration:

	pool, err := threadpool.NewWithConfig(threadpool.Config{
		Name:         "ingest",
		WorkerCount:  8,
		MaxQueued:    1024,
		RateLimiter:  rate.NewLimiter(rate.Limit(100), 10),
		LockOSThread: true,
		Logger:       slog.Default(),
		Metrics:      metrics.Config{Enabled: true},
		PanicHandler: func(recovered interface{}) {
			log.Printf("task panicked: %v", recovered)
		},
		OnTaskComplete: func(info threadpool.TaskInfo) {
			log.Printf("task %d took %v on worker %d", info.ID, info.Duration, info.WorkerID)
		},
	})

Monitoring:

	fmt.Printf("Pool size: %d\n", pool.Size())
	fmt.Printf("Queue size: %d\n", pool.QueueSize())
	fmt.Printf("Active workers: %d\n", pool.ActiveWorkers())
	fmt.Printf("Total completed: %d\n", pool.TotalCompleted())

Thread Safety:

All pool operations and submission functions are safe for concurrent use.
A single Future should be read by one goroutine.
*/
package threadpool
