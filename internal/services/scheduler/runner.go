package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/NordCoder/proxy-monitor/internal/domain/probe"
	"github.com/NordCoder/proxy-monitor/internal/obs"
	"go.uber.org/zap"
)

type Cycler interface {
	RunCycle(ctx context.Context, targets []probe.Target) CycleStats
}

// Runner repeats a cycle every Interval, measured from the start of each
// cycle. With Once set or a non-positive Interval it runs a single cycle.
type Runner struct {
	log      *zap.Logger
	cycle    Cycler
	targets  []probe.Target
	interval time.Duration
	once     bool

	lastStart atomic.Int64
}

func New(log *zap.Logger, cycle Cycler, targets []probe.Target, interval time.Duration, once bool) *Runner {
	return &Runner{
		log:      obs.Component(log, "scheduler.runner"),
		cycle:    cycle,
		targets:  targets,
		interval: interval,
		once:     once,
	}
}

func (r *Runner) SingleShot() bool {
	return r.once || r.interval <= 0
}

func (r *Runner) tick(ctx context.Context) {
	r.lastStart.Store(time.Now().UnixNano())
	r.cycle.RunCycle(ctx, r.targets)
}

func (r *Runner) Run(ctx context.Context) error {
	if r.SingleShot() {
		r.tick(ctx)
		return ctx.Err()
	}

	for {
		start := time.Now()
		r.tick(ctx)
		if err := ctx.Err(); err != nil {
			return err
		}

		wait := r.interval - time.Since(start)
		if wait <= 0 {
			r.log.Warn("cycle overran interval, starting next cycle now",
				zap.Duration("interval", r.interval),
				zap.Duration("elapsed", time.Since(start)),
			)
			continue
		}
		r.log.Info("sleeping until next cycle", zap.Duration("sleep", wait.Round(time.Second)))

		t := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			t.Stop()
			return ctx.Err()
		case <-t.C:
		}
	}
}

var errStalled = errors.New("scheduler stalled")

// Healthy reports an error when no cycle has started within two intervals
// plus grace.
func (r *Runner) Healthy(grace time.Duration) func(context.Context) error {
	return func(context.Context) error {
		if r.SingleShot() {
			return nil
		}
		last := r.lastStart.Load()
		if last == 0 {
			return nil
		}
		if since := time.Since(time.Unix(0, last)); since > 2*r.interval+grace {
			return fmt.Errorf("%w: last cycle started %s ago", errStalled, since.Round(time.Second))
		}
		return nil
	}
}
