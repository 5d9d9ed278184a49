package probe

import (
	"context"
	"sync"

	"golang.org/x/sync/errgroup"
)

// Pool runs Work over a list of jobs on at most Workers goroutines. Results
// are handed to a sink under a single mutex in completion order, so the sink
// itself needs no locking.
type Pool[J, R any] struct {
	Workers int
	Work    func(context.Context, J) R
}

// Run blocks until every started job has finished. Once ctx is cancelled no
// further jobs are started and their sink is never called; jobs already
// running see the cancelled ctx. The sink receives the job's index in jobs.
func (p Pool[J, R]) Run(ctx context.Context, jobs []J, sink func(int, R)) {
	workers := p.Workers
	if workers <= 0 {
		workers = 1
	}
	var (
		g  errgroup.Group
		mu sync.Mutex
	)
	g.SetLimit(workers)

	for i, job := range jobs {
		if ctx.Err() != nil {
			break
		}
		g.Go(func() error {
			// The slot may have opened only because ctx was cancelled.
			if ctx.Err() != nil {
				return nil
			}
			r := p.Work(ctx, job)
			mu.Lock()
			sink(i, r)
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()
}
