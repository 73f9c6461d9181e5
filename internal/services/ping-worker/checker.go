package ping_worker

import (
	"context"
	"errors"
	"fmt"

	"github.com/NordCoder/proxy-monitor/internal/domain/probe"
	"github.com/NordCoder/proxy-monitor/internal/obs"
	"github.com/NordCoder/proxy-monitor/internal/obs/retry"
	"go.uber.org/zap"
)

// Checker turns up to Retries probe attempts into a single verdict.
type Checker struct {
	prober probe.Prober
	cfg    probe.CheckConfig
	log    *zap.Logger
}

var _ probe.Checker = (*Checker)(nil)

func NewChecker(prober probe.Prober, cfg probe.CheckConfig, log *zap.Logger) *Checker {
	return &Checker{
		prober: prober,
		cfg:    cfg,
		log:    obs.Component(log, "ping-worker.checker"),
	}
}

type attemptError struct {
	res probe.AttemptResult
}

func (e attemptError) Error() string {
	if e.res.Err != nil {
		return fmt.Sprintf("%s: %v", e.res.Kind, e.res.Err)
	}
	return string(e.res.Kind)
}

func (c *Checker) Check(ctx context.Context, t probe.Target) probe.Verdict {
	name := t.Name()
	log := obs.WithTrace(ctx, c.log).With(
		zap.String("target", name),
		zap.String("proxy", probe.Redact(t.ProxyURL)),
	)

	var last probe.AttemptResult
	attempts := 0

	pol := retry.FixedDelayPolicy("probe", c.cfg.Retries, c.cfg.RetryDelay, log)
	pol.Retryable = func(err error) bool {
		var ae attemptError
		return !errors.As(err, &ae) || ae.res.Kind != probe.KindUnsupportedScheme
	}

	_ = retry.Do(ctx, func() error {
		attempts++
		last = c.prober.Probe(ctx, t)
		mAttempts.WithLabelValues(outcomeLabel(string(last.Kind))).Inc()
		if last.HasLatency {
			mLatency.Observe(last.Latency.Seconds())
		}

		if last.Success {
			log.Info("attempt ok",
				zap.Int("attempt", attempts),
				zap.Int("retries", c.cfg.Retries),
				zap.Int("status_code", last.StatusCode),
				zap.Int64("ping_ms", probe.RoundMs(last.Latency)),
			)
			return nil
		}

		fields := []zap.Field{
			zap.Int("attempt", attempts),
			zap.Int("retries", c.cfg.Retries),
			zap.String("kind", string(last.Kind)),
			zap.Error(last.Err),
		}
		if last.StatusCode != 0 {
			fields = append(fields, zap.Int("status_code", last.StatusCode))
		}
		log.Warn("attempt failed", fields...)
		return attemptError{res: last}
	}, pol)

	v := buildVerdict(t, last, attempts)
	mVerdicts.WithLabelValues(v.Status()).Inc()
	if v.Up {
		log.Info("proxy up", zap.Int("attempts", attempts), zap.String("msg", v.Message))
	} else {
		log.Error("proxy down", zap.Int("attempts", attempts), zap.String("msg", v.Message))
	}
	return v
}

func buildVerdict(t probe.Target, last probe.AttemptResult, attempts int) probe.Verdict {
	name := t.Name()
	if last.Success {
		return probe.Verdict{
			Target:     t,
			Up:         true,
			Message:    fmt.Sprintf("OK : %s : OK (%d ms)", name, probe.RoundMs(last.Latency)),
			Latency:    last.Latency,
			HasLatency: last.HasLatency,
			Attempts:   attempts,
		}
	}

	kind := last.Kind
	if kind == probe.KindNone {
		kind = probe.KindConnectionError
	}
	return probe.Verdict{
		Target:   t,
		Up:       false,
		Message:  fmt.Sprintf("%s : %s : %s", kind, name, failureDetail(last, attempts)),
		Attempts: attempts,
		Kind:     kind,
	}
}

func failureDetail(last probe.AttemptResult, attempts int) string {
	var detail string
	switch {
	case last.StatusCode != 0:
		detail = fmt.Sprintf("status %d", last.StatusCode)
	case last.Err != nil:
		detail = last.Err.Error()
	default:
		detail = "no response"
	}
	unit := "attempts"
	if attempts == 1 {
		unit = "attempt"
	}
	return fmt.Sprintf("%s after %d %s", detail, attempts, unit)
}
