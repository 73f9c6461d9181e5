package scheduler

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/NordCoder/proxy-monitor/internal/domain/probe"
	"github.com/NordCoder/proxy-monitor/internal/obs"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

var (
	mCycles = promauto.NewCounter(prometheus.CounterOpts{
		Name: "scheduler_cycles_total", Help: "Check cycles run",
	})
	mTargets = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "scheduler_targets_total", Help: "Targets processed by result",
	}, []string{"result"})
	mPushErr = promauto.NewCounter(prometheus.CounterOpts{
		Name: "scheduler_push_errors_total", Help: "Verdicts the push endpoint did not accept",
	})
	mPanics = promauto.NewCounter(prometheus.CounterOpts{
		Name: "scheduler_target_panics_total", Help: "Recovered panics while processing a target",
	})
	mCycleDur = promauto.NewHistogram(prometheus.HistogramOpts{
		Name: "scheduler_cycle_duration_seconds", Help: "Duration of one pass over all targets",
		Buckets: []float64{.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
	})
)

type CycleStats struct {
	Targets    int
	Up         int
	Down       int
	Skipped    int
	PushErrors int
	Panics     int
}

type cycleCounters struct {
	up, down, skipped, pushErrors, panics atomic.Int64
}

func (c *cycleCounters) stats(targets int) CycleStats {
	return CycleStats{
		Targets:    targets,
		Up:         int(c.up.Load()),
		Down:       int(c.down.Load()),
		Skipped:    int(c.skipped.Load()),
		PushErrors: int(c.pushErrors.Load()),
		Panics:     int(c.panics.Load()),
	}
}

// CycleRunner checks and reports every target once per cycle. A failing or
// panicking target never stops the others.
type CycleRunner struct {
	Checker   probe.Checker
	Reporter  probe.Reporter
	Publisher probe.Publisher
	Exec      Executor
	Log       *zap.Logger
}

func NewCycleRunner(checker probe.Checker, reporter probe.Reporter, exec Executor, log *zap.Logger) *CycleRunner {
	if exec == nil {
		exec = Sequential{}
	}
	return &CycleRunner{
		Checker:  checker,
		Reporter: reporter,
		Exec:     exec,
		Log:      obs.Component(log, "scheduler.cycle"),
	}
}

func (c *CycleRunner) WithPublisher(p probe.Publisher) *CycleRunner {
	cp := *c
	cp.Publisher = p
	return &cp
}

func (c *CycleRunner) RunCycle(ctx context.Context, targets []probe.Target) CycleStats {
	tr := otel.Tracer("scheduler.cycle")
	ctxCycle, span := tr.Start(ctx, "scheduler.cycle",
		trace.WithAttributes(attribute.Int("cycle.targets", len(targets))),
	)
	defer span.End()

	start := time.Now()
	log := obs.WithTrace(ctxCycle, c.Log)
	log.Info("starting check cycle", zap.Int("targets", len(targets)))

	var counters cycleCounters
	tasks := make([]Task, 0, len(targets))
	for _, t := range targets {
		tasks = append(tasks, func(ctx context.Context) { c.runTarget(ctx, t, &counters) })
	}
	c.Exec.Execute(ctxCycle, tasks)

	stats := counters.stats(len(targets))
	mCycles.Inc()
	mCycleDur.Observe(time.Since(start).Seconds())
	span.SetAttributes(
		attribute.Int("cycle.up", stats.Up),
		attribute.Int("cycle.down", stats.Down),
		attribute.Int("cycle.skipped", stats.Skipped),
	)
	log.Info("check cycle finished",
		zap.Int("up", stats.Up),
		zap.Int("down", stats.Down),
		zap.Int("skipped", stats.Skipped),
		zap.Int("push_errors", stats.PushErrors),
		zap.Duration("elapsed", time.Since(start)),
	)
	return stats
}

func (c *CycleRunner) runTarget(ctx context.Context, t probe.Target, counters *cycleCounters) {
	log := c.Log.With(zap.String("target", t.Name()))
	if ctx.Err() != nil {
		counters.skipped.Add(1)
		mTargets.WithLabelValues("skipped").Inc()
		log.Info("shutdown requested, target skipped")
		return
	}

	tr := otel.Tracer("scheduler.cycle")
	ctxT, span := tr.Start(ctx, "scheduler.target",
		trace.WithAttributes(attribute.String("target.name", t.Name())),
	)
	defer span.End()

	v, panicked := c.safeCheck(ctxT, t, log)
	if panicked {
		counters.panics.Add(1)
	}
	if ctx.Err() != nil {
		counters.skipped.Add(1)
		mTargets.WithLabelValues("skipped").Inc()
		log.Info("check interrupted by shutdown, verdict not reported", zap.String("msg", v.Message))
		return
	}

	if v.Up {
		counters.up.Add(1)
	} else {
		counters.down.Add(1)
	}
	mTargets.WithLabelValues(v.Status()).Inc()
	span.SetAttributes(attribute.Bool("target.up", v.Up), attribute.Int("target.attempts", v.Attempts))

	if err := c.safeReport(ctxT, v, log); err != nil {
		counters.pushErrors.Add(1)
		mPushErr.Inc()
		span.RecordError(err)
	}

	if c.Publisher != nil {
		if err := c.Publisher.PublishVerdict(ctxT, v); err != nil {
			log.Warn("publish verdict", zap.Error(err))
		}
	}
}

func (c *CycleRunner) safeCheck(ctx context.Context, t probe.Target, log *zap.Logger) (v probe.Verdict, panicked bool) {
	defer func() {
		if r := recover(); r != nil {
			mPanics.Inc()
			log.Error("check panicked", zap.Any("panic", r), zap.Stack("stack"))
			v = probe.Verdict{
				Target:  t,
				Message: fmt.Sprintf("%s : %s : internal error: %v", probe.KindConnectionError, t.Name(), r),
				Kind:    probe.KindConnectionError,
			}
			panicked = true
		}
	}()
	return c.Checker.Check(ctx, t), false
}

func (c *CycleRunner) safeReport(ctx context.Context, v probe.Verdict, log *zap.Logger) (err error) {
	defer func() {
		if r := recover(); r != nil {
			mPanics.Inc()
			log.Error("report panicked", zap.Any("panic", r), zap.Stack("stack"))
			err = fmt.Errorf("report panicked: %v", r)
		}
	}()
	return c.Reporter.Report(ctx, v)
}
