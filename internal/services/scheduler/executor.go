package scheduler

import (
	"context"

	"golang.org/x/sync/errgroup"
)

type Task func(ctx context.Context)

// Executor runs a batch of independent tasks and returns when all are done.
type Executor interface {
	Execute(ctx context.Context, tasks []Task)
}

// Sequential runs tasks one after another in order.
type Sequential struct{}

func (Sequential) Execute(ctx context.Context, tasks []Task) {
	for _, t := range tasks {
		t(ctx)
	}
}

// Pool runs at most Workers tasks at a time. Completion order is not defined.
type Pool struct {
	Workers int
}

func (p Pool) Execute(ctx context.Context, tasks []Task) {
	var g errgroup.Group
	if p.Workers > 0 {
		g.SetLimit(p.Workers)
	}
	for _, t := range tasks {
		g.Go(func() error {
			t(ctx)
			return nil
		})
	}
	_ = g.Wait()
}

func NewExecutor(concurrency int) Executor {
	if concurrency <= 1 {
		return Sequential{}
	}
	return Pool{Workers: concurrency}
}
