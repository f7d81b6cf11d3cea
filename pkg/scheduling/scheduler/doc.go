// Package scheduler fires recurring jobs into a threadpool.Pool.
//
// A Scheduler only decides when a job runs. Each firing is submitted to the
// pool with Pool.Execute, so jobs share the pool's workers, its FIFO queue,
// panic recovery and metrics.
//
// Basic Usage:
//
//	pool := threadpool.New(4)
//	defer pool.Close()
//
//	s, err := scheduler.New(pool, scheduler.Config{Name: "maintenance"})
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer func() { <-s.Stop() }()
//
//	// Every day at 02:30
//	s.ScheduleCron("vacuum", "30 2 * * *", vacuum)
//
//	// Every 15 seconds, never two runs at once
//	s.ScheduleEveryWithOptions("heartbeat", 15*time.Second, ping,
//		scheduler.Options{SkipIfBusy: true})
//
//	s.Start()
//
// Expressions:
//
// ScheduleCron accepts the standard five fields (minute, hour, day of month,
// month, day of week), an optional leading seconds field, and descriptors:
//
//	"0 */2 * * *"     - every 2 hours
//	"30 14 * * 1-5"   - 2:30 PM on weekdays
//	"*/10 * * * * *"  - every 10 seconds
//	"@daily"          - every day at midnight
//	"@every 1h30m"    - every 90 minutes
//
// Use ValidateCronExpression to check an expression up front and NextRuns to
// preview when it fires.
//
// Shutdown Order:
//
// Stop the scheduler before closing the pool. Firings after the pool is shut
// down are dropped, logged and counted in Dropped; they never block.
package scheduler
