package ping_worker

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/NordCoder/proxy-monitor/internal/domain/probe"
	"golang.org/x/net/proxy"
)

type HTTPOptions struct {
	UserAgent       string
	FollowRedirects bool
	VerifyTLS       bool
}

// NewTransport builds a single-use transport that routes every connection
// through proxyURL. Keep-alives are off so each attempt dials the proxy anew.
func NewTransport(proxyURL *url.URL, timeout time.Duration, verifyTLS bool) (*http.Transport, error) {
	dialer := &net.Dialer{Timeout: timeout, KeepAlive: -1}
	transport := &http.Transport{
		DialContext:           dialer.DialContext,
		DisableKeepAlives:     true,
		MaxIdleConns:          0,
		TLSHandshakeTimeout:   timeout,
		ExpectContinueTimeout: 1 * time.Second,
		TLSClientConfig: &tls.Config{
			InsecureSkipVerify: !verifyTLS,
			MinVersion:         tls.VersionTLS12,
		},
	}

	switch proxyURL.Scheme {
	case "http", "https":
		transport.Proxy = http.ProxyURL(proxyURL)

	case "socks5", "socks5h":
		var auth *proxy.Auth
		if u := proxyURL.User; u != nil {
			pw, _ := u.Password()
			auth = &proxy.Auth{User: u.Username(), Password: pw}
		}
		socksDialer, err := proxy.SOCKS5("tcp", proxyURL.Host, auth, dialer)
		if err != nil {
			return nil, fmt.Errorf("socks5 dialer: %w", err)
		}
		dial := contextDial(socksDialer)
		if proxyURL.Scheme == "socks5" {
			dial = resolveLocally(dial)
		}
		transport.DialContext = dial

	case "socks4":
		transport.DialContext = func(ctx context.Context, network, addr string) (net.Conn, error) {
			return dialSOCKS4(ctx, dialer, proxyURL, addr)
		}

	default:
		return nil, fmt.Errorf("%w: %q", probe.ErrUnsupportedScheme, proxyURL.Scheme)
	}
	return transport, nil
}

func NewClient(transport http.RoundTripper, timeout time.Duration, followRedirects bool) *http.Client {
	client := &http.Client{
		Timeout:   timeout,
		Transport: transport,
	}
	if !followRedirects {
		client.CheckRedirect = func(req *http.Request, via []*http.Request) error {
			return http.ErrUseLastResponse
		}
	}
	return client
}

type dialFunc func(ctx context.Context, network, addr string) (net.Conn, error)

func contextDial(d proxy.Dialer) dialFunc {
	if cd, ok := d.(proxy.ContextDialer); ok {
		return cd.DialContext
	}
	return func(ctx context.Context, network, addr string) (net.Conn, error) {
		return d.Dial(network, addr)
	}
}

// resolveLocally turns host names into IP addresses before handing them to the
// proxy, which is the difference between socks5 and socks5h.
func resolveLocally(next dialFunc) dialFunc {
	return func(ctx context.Context, network, addr string) (net.Conn, error) {
		host, port, err := net.SplitHostPort(addr)
		if err != nil {
			return nil, err
		}
		if net.ParseIP(host) == nil {
			ips, err := net.DefaultResolver.LookupIPAddr(ctx, host)
			if err != nil {
				return nil, err
			}
			if len(ips) == 0 {
				return nil, fmt.Errorf("no addresses for %s", host)
			}
			addr = net.JoinHostPort(ips[0].IP.String(), port)
		}
		return next(ctx, network, addr)
	}
}
