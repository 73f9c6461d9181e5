package notifier

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/NordCoder/proxy-monitor/internal/domain/probe"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"
)

var mPushes = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "notifier_pushes_total", Help: "Push notifications by result",
}, []string{"status", "result"})

// PushError is returned when the push endpoint could not be reached or did
// not accept the notification.
type PushError struct {
	Target     string
	StatusCode int
	Err        error
}

func (e *PushError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("push for %s rejected with status %d", e.Target, e.StatusCode)
	}
	return fmt.Sprintf("push for %s failed: %v", e.Target, e.Err)
}

func (e *PushError) Unwrap() error { return e.Err }

func (e *PushError) Kind() probe.ErrorKind { return probe.KindPushDeliveryError }

// Pusher delivers verdicts to Uptime-Kuma style push endpoints.
type Pusher struct {
	c   *http.Client
	log *zap.Logger
}

var _ probe.Reporter = (*Pusher)(nil)

func New(timeout time.Duration) *Pusher {
	return &Pusher{
		c: &http.Client{
			Timeout:   timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport.(*http.Transport).Clone()),
		},
		log: zap.L().With(zap.String("component", "push-notifier.pusher")),
	}
}

func (p *Pusher) WithLogger(l *zap.Logger) *Pusher {
	if l == nil {
		return p
	}
	cp := *p
	cp.log = l.With(zap.String("component", "push-notifier.pusher"))
	return &cp
}

// Report sends one GET to the verdict's push URL. Failures are logged and
// returned but never retried.
func (p *Pusher) Report(ctx context.Context, v probe.Verdict) error {
	name := v.Target.Name()
	log := p.log.With(zap.String("target", name), zap.String("status", v.Status()))

	pushURL, err := BuildPushURL(v.Target.PushURL, v)
	if err != nil {
		mPushes.WithLabelValues(v.Status(), "error").Inc()
		log.Error("push failed", zap.Error(err))
		return &PushError{Target: name, Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pushURL, nil)
	if err != nil {
		mPushes.WithLabelValues(v.Status(), "error").Inc()
		log.Error("push failed", zap.Error(err))
		return &PushError{Target: name, Err: err}
	}

	start := time.Now()
	resp, err := p.c.Do(req)
	if err != nil {
		mPushes.WithLabelValues(v.Status(), "error").Inc()
		log.Error("push failed", zap.Error(err))
		return &PushError{Target: name, Err: err}
	}
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4<<10))
	_ = resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		mPushes.WithLabelValues(v.Status(), "rejected").Inc()
		log.Error("push rejected", zap.Int("status_code", resp.StatusCode))
		return &PushError{Target: name, StatusCode: resp.StatusCode}
	}

	mPushes.WithLabelValues(v.Status(), "ok").Inc()
	log.Info("push sent", zap.Duration("elapsed", time.Since(start)))
	return nil
}

// BuildPushURL adds status, msg and ping to the push URL, keeping any query
// parameters it already carries.
func BuildPushURL(raw string, v probe.Verdict) (string, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("parse push url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", fmt.Errorf("push url %q: unsupported scheme", raw)
	}
	q := u.Query()
	q.Set("status", v.Status())
	q.Set("msg", v.Message)
	if ms, ok := v.PingMs(); ok {
		q.Set("ping", strconv.FormatInt(ms, 10))
	} else {
		q.Del("ping")
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}
