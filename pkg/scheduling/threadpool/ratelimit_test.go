package threadpool

import (
	"testing"
	"time"

	"golang.org/x/time/rate"

	"github.com/vnykmshr/threadpool/internal/testutil"
)

func TestRateLimiterPacesTaskStarts(t *testing.T) {
	// One start per 20ms with no burst beyond the first.
	limiter := rate.NewLimiter(rate.Every(20*time.Millisecond), 1)

	var starts testutil.Recorder[time.Time]
	pool, err := NewWithConfig(Config{
		WorkerCount: 4,
		RateLimiter: limiter,
		OnTaskStart: func(info TaskInfo) { starts.Record(info.Started) },
	})
	testutil.AssertNoError(t, err)

	begin := time.Now()
	for i := 0; i < 5; i++ {
		testutil.AssertNoError(t, pool.Execute(func() {}))
	}
	testutil.AssertNoError(t, pool.Close())

	testutil.AssertEqual(t, starts.Len(), 5)
	// Four waits of 20ms each after the initial token.
	if elapsed := time.Since(begin); elapsed < 70*time.Millisecond {
		t.Errorf("5 paced tasks finished in %v, expected at least 70ms", elapsed)
	}
}
