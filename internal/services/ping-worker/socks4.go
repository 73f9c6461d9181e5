package ping_worker

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/url"
	"strconv"
	"time"
)

const socks4Granted = 0x5A

// dialSOCKS4 opens a CONNECT tunnel through a SOCKS4 proxy. Host names are
// passed to the proxy (SOCKS4a) instead of being resolved here.
func dialSOCKS4(ctx context.Context, dialer *net.Dialer, proxyURL *url.URL, target string) (net.Conn, error) {
	host, portStr, err := net.SplitHostPort(target)
	if err != nil {
		return nil, err
	}
	port, err := strconv.Atoi(portStr)
	if err != nil || port < 0 || port > 65535 {
		return nil, fmt.Errorf("invalid target port %q", portStr)
	}

	conn, err := dialer.DialContext(ctx, "tcp", proxyURL.Host)
	if err != nil {
		return nil, err
	}

	var ipBytes []byte
	var domainName string
	if ip := net.ParseIP(host); ip != nil && ip.To4() != nil {
		ipBytes = ip.To4()
	} else {
		ipBytes = []byte{0x00, 0x00, 0x00, 0x01}
		domainName = host
	}

	req := []byte{0x04, 0x01, byte(port >> 8), byte(port)}
	req = append(req, ipBytes...)
	if proxyURL.User != nil {
		req = append(req, []byte(proxyURL.User.Username())...)
	}
	req = append(req, 0x00)
	if domainName != "" {
		req = append(req, []byte(domainName)...)
		req = append(req, 0x00)
	}

	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	} else if dialer.Timeout > 0 {
		_ = conn.SetDeadline(time.Now().Add(dialer.Timeout))
	}

	if _, err := conn.Write(req); err != nil {
		_ = conn.Close()
		return nil, err
	}

	resp := make([]byte, 8)
	if _, err := io.ReadFull(conn, resp); err != nil {
		_ = conn.Close()
		return nil, err
	}
	if resp[1] != socks4Granted {
		_ = conn.Close()
		return nil, fmt.Errorf("socks4 connect rejected with code 0x%02x", resp[1])
	}

	_ = conn.SetDeadline(time.Time{})
	return conn, nil
}
