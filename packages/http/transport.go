package http

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"net/http"
	"net/http/httptrace"
	neturl "net/url"
	"strings"
	"sync"
	"time"

	"github.com/abdul-hamid-achik/hitrun/packages/core/model"
)

func (c *Client) newTransport(opts Options) (*http.Transport, error) {
	tlsConfig := &tls.Config{
		InsecureSkipVerify: !opts.ValidateCertificates,
	}

	for _, cert := range opts.Certificates {
		pair, err := tls.X509KeyPair([]byte(cert.Cert), []byte(cert.CertKey))
		if err != nil {
			return nil, fmt.Errorf("invalid client certificate %s: %w", cert.Key, err)
		}
		tlsConfig.Certificates = append(tlsConfig.Certificates, pair)
	}

	dialer := &net.Dialer{
		Timeout:   30 * time.Second,
		KeepAlive: 30 * time.Second,
	}

	transport := &http.Transport{
		MaxIdleConns:        c.maxIdleConns,
		MaxIdleConnsPerHost: c.maxIdleHost,
		IdleConnTimeout:     DefaultIdleConnTimeout,
		TLSHandshakeTimeout: 10 * time.Second,
		TLSClientConfig:     tlsConfig,
		DialContext:         hostDialer(dialer, opts.Hosts),
		ForceAttemptHTTP2:   true,
	}

	if opts.Proxy != "" {
		proxyURL, err := neturl.Parse(opts.Proxy)
		if err != nil {
			return nil, fmt.Errorf("invalid proxy URL: %w", err)
		}
		if opts.ProxyUsername != "" {
			proxyURL.User = neturl.UserPassword(opts.ProxyUsername, opts.ProxyPassword)
		}
		transport.Proxy = http.ProxyURL(proxyURL)
	}

	return transport, nil
}

// hostDialer dials the rule target instead of a matching host. A target
// without a port keeps the port of the original address.
func hostDialer(dialer *net.Dialer, rules []model.HostRule) func(ctx context.Context, network, addr string) (net.Conn, error) {
	if len(rules) == 0 {
		return dialer.DialContext
	}
	return func(ctx context.Context, network, addr string) (net.Conn, error) {
		return dialer.DialContext(ctx, network, mapHost(addr, rules))
	}
}

func mapHost(addr string, rules []model.HostRule) string {
	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		return addr
	}
	for _, rule := range rules {
		if !strings.EqualFold(rule.From, host) {
			continue
		}
		if _, _, err := net.SplitHostPort(rule.To); err == nil {
			return rule.To
		}
		return net.JoinHostPort(rule.To, port)
	}
	return addr
}

// traceTimer collects phase durations. Callbacks can fire from dialing
// goroutines, hence the lock.
type traceTimer struct {
	mu        sync.Mutex
	begin     time.Time
	dnsStart  time.Time
	connStart time.Time
	tlsStart  time.Time
	timings   Timings
}

func (t *traceTimer) attach(ctx context.Context) context.Context {
	return httptrace.WithClientTrace(ctx, &httptrace.ClientTrace{
		DNSStart: func(httptrace.DNSStartInfo) {
			t.mu.Lock()
			t.dnsStart = time.Now()
			t.mu.Unlock()
		},
		DNSDone: func(httptrace.DNSDoneInfo) {
			t.mu.Lock()
			t.timings.DNS = time.Since(t.dnsStart)
			t.mu.Unlock()
		},
		ConnectStart: func(string, string) {
			t.mu.Lock()
			t.connStart = time.Now()
			t.mu.Unlock()
		},
		ConnectDone: func(string, string, error) {
			t.mu.Lock()
			t.timings.Connect = time.Since(t.connStart)
			t.mu.Unlock()
		},
		TLSHandshakeStart: func() {
			t.mu.Lock()
			t.tlsStart = time.Now()
			t.mu.Unlock()
		},
		TLSHandshakeDone: func(tls.ConnectionState, error) {
			t.mu.Lock()
			t.timings.TLS = time.Since(t.tlsStart)
			t.mu.Unlock()
		},
		GotFirstResponseByte: func() {
			t.mu.Lock()
			t.timings.FirstByte = time.Since(t.begin)
			t.mu.Unlock()
		},
	})
}

func (t *traceTimer) start() {
	t.mu.Lock()
	t.begin = time.Now()
	t.mu.Unlock()
}

func (t *traceTimer) finish() Timings {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.timings.Total = time.Since(t.begin)
	return t.timings
}
