package threadpool

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/vnykmshr/threadpool/pkg/scheduling/future"
)

// WaitAll waits for every future and returns their values in order. It
// returns the first error observed; the remaining waits are abandoned
// (their results stay unconsumed) as soon as one fails or ctx is done.
func WaitAll[R any](ctx context.Context, futures ...*future.Future[R]) ([]R, error) {
	results := make([]R, len(futures))
	g, gctx := errgroup.WithContext(ctx)

	for i, f := range futures {
		g.Go(func() error {
			v, err := f.GetContext(gctx)
			if err != nil {
				return err
			}
			results[i] = v
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}
