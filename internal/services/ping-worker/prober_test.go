package ping_worker

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/NordCoder/proxy-monitor/internal/domain/probe"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func checkCfg(testURL string, expected int) probe.CheckConfig {
	return probe.CheckConfig{
		TestURL:        testURL,
		ExpectedStatus: expected,
		Retries:        3,
		Timeout:        2 * time.Second,
		RetryDelay:     10 * time.Millisecond,
	}
}

func newTestProber(cfg probe.CheckConfig) *Prober {
	return NewProber(cfg, HTTPOptions{UserAgent: "proxy-monitor-test", FollowRedirects: true})
}

func TestProbe_HTTPProxyExpectedStatus(t *testing.T) {
	px := newStatusProxy(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})

	p := newTestProber(checkCfg("http://probe.test/health204", http.StatusNoContent))
	res := p.Probe(context.Background(), probe.Target{ProxyURL: px.URL})

	require.True(t, res.Success, "err: %v", res.Err)
	assert.Equal(t, http.StatusNoContent, res.StatusCode)
	assert.True(t, res.HasLatency)
	assert.GreaterOrEqual(t, res.Latency, time.Duration(0))
	assert.Equal(t, probe.KindNone, res.Kind)

	reqs := px.Requests()
	require.Len(t, reqs, 1)
	assert.Equal(t, "probe.test", reqs[0].Host)
	assert.Equal(t, "/health204", reqs[0].URL.Path)
	assert.Equal(t, "proxy-monitor-test", reqs[0].Header.Get("User-Agent"))
}

func TestProbe_UnexpectedStatusKeepsLatency(t *testing.T) {
	px := newStatusProxy(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})

	p := newTestProber(checkCfg("http://probe.test/", http.StatusNoContent))
	res := p.Probe(context.Background(), probe.Target{ProxyURL: px.URL})

	assert.False(t, res.Success)
	assert.Equal(t, probe.KindUnexpectedStatus, res.Kind)
	assert.Equal(t, http.StatusInternalServerError, res.StatusCode)
	assert.True(t, res.HasLatency)
	require.Error(t, res.Err)
}

func TestProbe_Timeout(t *testing.T) {
	px := newStatusProxy(t, func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(3 * time.Second):
		}
	})

	cfg := checkCfg("http://probe.test/", http.StatusOK)
	cfg.Timeout = 100 * time.Millisecond
	res := newTestProber(cfg).Probe(context.Background(), probe.Target{ProxyURL: px.URL})

	assert.False(t, res.Success)
	assert.Equal(t, probe.KindTimeout, res.Kind)
	assert.False(t, res.HasLatency)
	assert.Zero(t, res.StatusCode)
}

func TestProbe_ConnectionRefused(t *testing.T) {
	res := newTestProber(checkCfg("http://probe.test/", http.StatusOK)).
		Probe(context.Background(), probe.Target{ProxyURL: "http://" + closedAddr(t)})

	assert.False(t, res.Success)
	assert.Equal(t, probe.KindConnectionError, res.Kind)
	assert.False(t, res.HasLatency)
}

func TestProbe_UnsupportedScheme(t *testing.T) {
	res := newTestProber(checkCfg("http://probe.test/", http.StatusOK)).
		Probe(context.Background(), probe.Target{ProxyURL: "ftp://127.0.0.1:21"})

	assert.False(t, res.Success)
	assert.Equal(t, probe.KindUnsupportedScheme, res.Kind)
	assert.True(t, errors.Is(res.Err, probe.ErrUnsupportedScheme))
}

func TestProbe_SOCKS5(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	defer upstream.Close()
	socks := startSocks(t, serveSOCKS5)

	res := newTestProber(checkCfg(upstream.URL+"/health", http.StatusNoContent)).
		Probe(context.Background(), probe.Target{ProxyURL: "socks5://" + socks.addr})

	require.True(t, res.Success, "err: %v", res.Err)
	assert.Equal(t, []string{"127.0.0.1"}, socks.Hosts())
}

func TestProbe_SOCKS5hSendsHostName(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer upstream.Close()
	socks := startSocks(t, serveSOCKS5)

	_, port := splitAddr(t, upstream.Listener.Addr().String())
	res := newTestProber(checkCfg("http://localhost:"+port+"/", http.StatusOK)).
		Probe(context.Background(), probe.Target{ProxyURL: "socks5h://" + socks.addr})

	require.True(t, res.Success, "err: %v", res.Err)
	assert.Equal(t, []string{"localhost"}, socks.Hosts())
}

func TestProbe_SOCKS4(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer upstream.Close()
	socks := startSocks(t, serveSOCKS4)

	res := newTestProber(checkCfg(upstream.URL, http.StatusOK)).
		Probe(context.Background(), probe.Target{ProxyURL: "socks4://" + socks.addr})

	require.True(t, res.Success, "err: %v", res.Err)
	assert.Equal(t, []string{"127.0.0.1"}, socks.Hosts())
}

func TestProbe_SOCKS4aSendsHostName(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer upstream.Close()
	socks := startSocks(t, serveSOCKS4)

	_, port := splitAddr(t, upstream.Listener.Addr().String())
	res := newTestProber(checkCfg("http://localhost:"+port+"/", http.StatusOK)).
		Probe(context.Background(), probe.Target{ProxyURL: "socks4://" + socks.addr})

	require.True(t, res.Success, "err: %v", res.Err)
	assert.Equal(t, []string{"localhost"}, socks.Hosts())
}

func TestProbe_SOCKSRefusedUpstream(t *testing.T) {
	socks := startSocks(t, serveSOCKS5)

	res := newTestProber(checkCfg("http://"+closedAddr(t)+"/", http.StatusOK)).
		Probe(context.Background(), probe.Target{ProxyURL: "socks5://" + socks.addr})

	assert.False(t, res.Success)
	assert.Equal(t, probe.KindConnectionError, res.Kind)
}

func TestProbe_InFlightSurvivesCancellation(t *testing.T) {
	px := newStatusProxy(t, func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(50 * time.Millisecond)
		w.WriteHeader(http.StatusOK)
	})

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()
	res := newTestProber(checkCfg("http://probe.test/", http.StatusOK)).
		Probe(ctx, probe.Target{ProxyURL: px.URL})

	assert.True(t, res.Success, "err: %v", res.Err)
}

func TestClassify(t *testing.T) {
	assert.Equal(t, probe.KindNone, Classify(nil))
	assert.Equal(t, probe.KindTimeout, Classify(context.DeadlineExceeded))
	assert.Equal(t, probe.KindConnectionError, Classify(errors.New("boom")))
	assert.Equal(t, probe.KindUnsupportedScheme, Classify(probe.ErrUnsupportedScheme))
}
