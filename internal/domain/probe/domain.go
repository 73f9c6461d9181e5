package probe

import (
	"errors"
	"fmt"
	"math"
	"net/url"
	"strings"
	"time"
)

type ErrorKind string

const (
	KindNone              ErrorKind = ""
	KindUnsupportedScheme ErrorKind = "UnsupportedScheme"
	KindTimeout           ErrorKind = "Timeout"
	KindConnectionError   ErrorKind = "ConnectionError"
	KindUnexpectedStatus  ErrorKind = "UnexpectedStatus"
	KindPushDeliveryError ErrorKind = "PushDeliveryError"
)

var ErrUnsupportedScheme = errors.New("unsupported proxy scheme")

var supportedSchemes = map[string]struct{}{
	"http":    {},
	"https":   {},
	"socks4":  {},
	"socks5":  {},
	"socks5h": {},
}

// ParseProxyURL parses a proxy connection URL and rejects schemes the prober
// cannot dial. The returned URL has a lower-cased scheme.
func ParseProxyURL(raw string) (*url.URL, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return nil, fmt.Errorf("parse proxy url: %w", err)
	}
	u.Scheme = strings.ToLower(u.Scheme)
	if _, ok := supportedSchemes[u.Scheme]; !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedScheme, Redact(raw))
	}
	if u.Host == "" {
		return nil, fmt.Errorf("proxy url %q has no host", Redact(raw))
	}
	return u, nil
}

// Redact hides the password part of a URL, if any.
func Redact(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return raw
	}
	return u.Redacted()
}

type Target struct {
	ProxyURL string `json:"proxy"`
	PushURL  string `json:"push_url"`
	Remark   string `json:"remark,omitempty"`
}

// Name is what operators see in logs and push messages.
func (t Target) Name() string {
	if r := strings.TrimSpace(t.Remark); r != "" {
		return r
	}
	return Redact(t.ProxyURL)
}

type CheckConfig struct {
	TestURL        string
	ExpectedStatus int
	Retries        int
	Timeout        time.Duration
	RetryDelay     time.Duration
	Interval       time.Duration
}

type AttemptResult struct {
	Success    bool
	StatusCode int // 0 when no response was received
	Latency    time.Duration
	HasLatency bool
	Kind       ErrorKind
	Err        error
}

type Verdict struct {
	Target     Target
	Up         bool
	Message    string
	Latency    time.Duration
	HasLatency bool
	Attempts   int
	Kind       ErrorKind
}

func (v Verdict) Status() string {
	if v.Up {
		return "up"
	}
	return "down"
}

// PingMs returns the latency rounded to whole milliseconds.
func (v Verdict) PingMs() (int64, bool) {
	if !v.HasLatency {
		return 0, false
	}
	return RoundMs(v.Latency), true
}

func RoundMs(d time.Duration) int64 {
	return int64(math.Round(float64(d) / float64(time.Millisecond)))
}
