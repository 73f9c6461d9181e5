package ping_worker

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/NordCoder/proxy-monitor/internal/domain/probe"
	"go.uber.org/zap"
)

const maxDrainBytes = 64 << 10

type Prober struct {
	cfg  probe.CheckConfig
	opts HTTPOptions
	log  *zap.Logger
}

var _ probe.Prober = (*Prober)(nil)

func NewProber(cfg probe.CheckConfig, opts HTTPOptions) *Prober {
	return &Prober{
		cfg:  cfg,
		opts: opts,
		log:  zap.L().With(zap.String("component", "ping-worker.prober")),
	}
}

func (p *Prober) WithLogger(l *zap.Logger) *Prober {
	if l == nil {
		return p
	}
	cp := *p
	cp.log = l.With(zap.String("component", "ping-worker.prober"))
	return &cp
}

// Probe sends one GET to the test URL through the target's proxy. Network
// failures are reported in the result, never as a panic or error return.
//
// The attempt is detached from ctx cancellation so a shutdown lets an
// in-flight request finish; it is still bounded by the configured timeout.
func (p *Prober) Probe(ctx context.Context, t probe.Target) probe.AttemptResult {
	proxyURL, err := probe.ParseProxyURL(t.ProxyURL)
	if err != nil {
		return failed(err)
	}
	transport, err := NewTransport(proxyURL, p.cfg.Timeout, p.opts.VerifyTLS)
	if err != nil {
		return failed(err)
	}
	defer transport.CloseIdleConnections()
	client := NewClient(transport, p.cfg.Timeout, p.opts.FollowRedirects)

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), p.cfg.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.cfg.TestURL, nil)
	if err != nil {
		return failed(err)
	}
	if p.opts.UserAgent != "" {
		req.Header.Set("User-Agent", p.opts.UserAgent)
	}

	start := time.Now()
	resp, err := client.Do(req)
	if err != nil {
		p.log.Debug("probe request failed", zap.String("proxy", probe.Redact(t.ProxyURL)), zap.Error(err))
		return failed(err)
	}
	lat := time.Since(start)
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxDrainBytes))
	_ = resp.Body.Close()

	res := probe.AttemptResult{
		StatusCode: resp.StatusCode,
		Latency:    lat,
		HasLatency: true,
	}
	if resp.StatusCode == p.cfg.ExpectedStatus {
		res.Success = true
		return res
	}
	res.Kind = probe.KindUnexpectedStatus
	res.Err = fmt.Errorf("unexpected status %d, want %d", resp.StatusCode, p.cfg.ExpectedStatus)
	return res
}

func failed(err error) probe.AttemptResult {
	return probe.AttemptResult{Kind: Classify(err), Err: err}
}

// Classify maps a transport error onto the attempt error taxonomy.
func Classify(err error) probe.ErrorKind {
	if err == nil {
		return probe.KindNone
	}
	if errors.Is(err, probe.ErrUnsupportedScheme) {
		return probe.KindUnsupportedScheme
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return probe.KindTimeout
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return probe.KindTimeout
	}
	return probe.KindConnectionError
}
