package ping_worker

import (
	"bufio"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"testing"
)

// statusProxy is an HTTP forward proxy that answers every request itself.
type statusProxy struct {
	*httptest.Server

	mu       sync.Mutex
	requests []*http.Request
}

func newStatusProxy(t *testing.T, h http.HandlerFunc) *statusProxy {
	t.Helper()
	p := &statusProxy{}
	p.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p.mu.Lock()
		p.requests = append(p.requests, r.Clone(r.Context()))
		p.mu.Unlock()
		h(w, r)
	}))
	t.Cleanup(p.Close)
	return p
}

func (p *statusProxy) Requests() []*http.Request {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]*http.Request(nil), p.requests...)
}

type socksServer struct {
	addr string

	mu    sync.Mutex
	hosts []string
}

func (s *socksServer) seen(host string) {
	s.mu.Lock()
	s.hosts = append(s.hosts, host)
	s.mu.Unlock()
}

func (s *socksServer) Hosts() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.hosts...)
}

func startSocks(t *testing.T, serve func(s *socksServer, c net.Conn)) *socksServer {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	s := &socksServer{addr: ln.Addr().String()}
	t.Cleanup(func() { _ = ln.Close() })
	go func() {
		for {
			c, err := ln.Accept()
			if err != nil {
				return
			}
			go serve(s, c)
		}
	}()
	return s
}

// dialUpstream connects to the requested destination; "localhost" is pinned
// to IPv4 because the test servers only listen there.
func dialUpstream(host string, port int) (net.Conn, error) {
	if host == "localhost" {
		host = "127.0.0.1"
	}
	return net.Dial("tcp", net.JoinHostPort(host, strconv.Itoa(port)))
}

func pipe(a, b net.Conn) {
	done := make(chan struct{}, 2)
	go func() { _, _ = io.Copy(a, b); done <- struct{}{} }()
	go func() { _, _ = io.Copy(b, a); done <- struct{}{} }()
	<-done
}

func serveSOCKS5(s *socksServer, c net.Conn) {
	defer c.Close()
	buf := make([]byte, 256)

	if _, err := io.ReadFull(c, buf[:2]); err != nil {
		return
	}
	if _, err := io.ReadFull(c, buf[:int(buf[1])]); err != nil {
		return
	}
	if _, err := c.Write([]byte{0x05, 0x00}); err != nil {
		return
	}

	if _, err := io.ReadFull(c, buf[:4]); err != nil {
		return
	}
	var host string
	switch buf[3] {
	case 0x01:
		if _, err := io.ReadFull(c, buf[:4]); err != nil {
			return
		}
		host = net.IP(append([]byte(nil), buf[:4]...)).String()
	case 0x03:
		if _, err := io.ReadFull(c, buf[:1]); err != nil {
			return
		}
		n := int(buf[0])
		if _, err := io.ReadFull(c, buf[:n]); err != nil {
			return
		}
		host = string(buf[:n])
	case 0x04:
		if _, err := io.ReadFull(c, buf[:16]); err != nil {
			return
		}
		host = net.IP(append([]byte(nil), buf[:16]...)).String()
	default:
		return
	}
	if _, err := io.ReadFull(c, buf[:2]); err != nil {
		return
	}
	port := int(buf[0])<<8 | int(buf[1])
	s.seen(host)

	up, err := dialUpstream(host, port)
	if err != nil {
		_, _ = c.Write([]byte{0x05, 0x05, 0x00, 0x01, 0, 0, 0, 0, 0, 0})
		return
	}
	defer up.Close()
	if _, err := c.Write([]byte{0x05, 0x00, 0x00, 0x01, 0, 0, 0, 0, 0, 0}); err != nil {
		return
	}
	pipe(c, up)
}

func serveSOCKS4(s *socksServer, c net.Conn) {
	defer c.Close()
	r := bufio.NewReader(c)
	head := make([]byte, 8)
	if _, err := io.ReadFull(r, head); err != nil {
		return
	}
	if _, err := r.ReadString(0x00); err != nil {
		return
	}
	port := int(head[2])<<8 | int(head[3])
	host := net.IP(append([]byte(nil), head[4:8]...)).String()
	if head[4] == 0 && head[5] == 0 && head[6] == 0 && head[7] != 0 {
		name, err := r.ReadString(0x00)
		if err != nil {
			return
		}
		host = name[:len(name)-1]
	}
	s.seen(host)

	up, err := dialUpstream(host, port)
	if err != nil {
		_, _ = c.Write([]byte{0x00, 0x5B, 0, 0, 0, 0, 0, 0})
		return
	}
	defer up.Close()
	if _, err := c.Write([]byte{0x00, socks4Granted, 0, 0, 0, 0, 0, 0}); err != nil {
		return
	}
	pipe(c, up)
}

// closedAddr returns an address nothing listens on.
func closedAddr(t *testing.T) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	addr := ln.Addr().String()
	_ = ln.Close()
	return addr
}

func splitAddr(t *testing.T, addr string) (string, string) {
	t.Helper()
	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		t.Fatalf("split %q: %v", addr, err)
	}
	return host, port
}
