package http

import (
	"context"
	"fmt"
	"io"
	"net/http"
	neturl "net/url"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/abdul-hamid-achik/hitrun/packages/auth/oauth2"
	"github.com/abdul-hamid-achik/hitrun/packages/core/model"
)

const (
	// DefaultTimeout is the default HTTP request timeout
	DefaultTimeout = 30 * time.Second
	// DefaultMaxRedirects is the maximum number of redirects to follow
	DefaultMaxRedirects = 10
	// DefaultMaxIdleConns is the maximum number of idle connections in the pool
	DefaultMaxIdleConns = 100
	// DefaultMaxIdleConnsPerHost is the maximum number of idle connections per host
	DefaultMaxIdleConnsPerHost = 10
	// DefaultIdleConnTimeout is how long idle connections stay in the pool
	DefaultIdleConnTimeout = 90 * time.Second
	// DefaultUserAgent is sent when default headers are on and none is set
	DefaultUserAgent = "hitrun"
	// DefaultAccept is sent when default headers are on and none is set
	DefaultAccept = "*/*"
)

// Client sends requests. It keeps one pooled http.Client per distinct
// combination of transport settings, so it is cheap to share across runs.
type Client struct {
	mu           sync.Mutex
	clients      map[string]*http.Client
	tokens       *oauth2.TokenCache
	maxIdleConns int
	maxIdleHost  int
}

type ClientOption func(*Client)

func NewClient(opts ...ClientOption) *Client {
	c := &Client{
		clients:      make(map[string]*http.Client),
		tokens:       oauth2.NewTokenCache(),
		maxIdleConns: DefaultMaxIdleConns,
		maxIdleHost:  DefaultMaxIdleConnsPerHost,
	}

	for _, opt := range opts {
		opt(c)
	}
	return c
}

// WithTokenCache shares an OAuth2 token cache between clients
func WithTokenCache(cache *oauth2.TokenCache) ClientOption {
	return func(c *Client) {
		c.tokens = cache
	}
}

// WithMaxIdleConns sets the connection pool size of every transport
func WithMaxIdleConns(total, perHost int) ClientOption {
	return func(c *Client) {
		if total > 0 {
			c.maxIdleConns = total
		}
		if perHost > 0 {
			c.maxIdleHost = perHost
		}
	}
}

// Send performs one request. Digest authorization may add a second
// attempt answering the server challenge.
func (c *Client) Send(ctx context.Context, req *Request, opts Options) (*ExecutionLog, error) {
	if err := ValidateURL(req.URL); err != nil {
		return nil, err
	}

	if opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.Timeout)
		defer cancel()
	}

	hc, err := c.clientFor(opts)
	if err != nil {
		return nil, err
	}

	target := req.URL
	headers := req.Headers.Clone()
	if headers == nil {
		headers = make(http.Header)
	}

	if opts.DefaultHeaders {
		if headers.Get("User-Agent") == "" {
			headers.Set("User-Agent", firstNonEmpty(opts.DefaultUserAgent, DefaultUserAgent))
		}
		if headers.Get("Accept") == "" {
			headers.Set("Accept", firstNonEmpty(opts.DefaultAccept, DefaultAccept))
		}
	}

	var digest *model.AuthConfig
	for _, auth := range opts.Authorization {
		if !auth.IsEnabled() {
			continue
		}
		switch auth.Kind {
		case model.AuthOAuth2:
			token, err := c.fetchToken(ctx, hc, auth.Config)
			if err != nil {
				return nil, fmt.Errorf("failed to get OAuth2 token: %w", err)
			}
			if target, err = deliverToken(target, headers, auth.Config, token); err != nil {
				return nil, err
			}
		case model.AuthAWS:
			if err := signAWS(req.Method, target, req.Body, headers, auth.Config, time.Now()); err != nil {
				return nil, err
			}
		case model.AuthDigest:
			cfg := auth.Config
			digest = &cfg
		case model.AuthNTLM:
			return nil, fmt.Errorf("ntlm authorization is not supported by this transport")
		}
	}

	log, err := c.do(ctx, hc, req.Method, target, req.Body, headers, opts)
	if err != nil {
		return nil, err
	}

	if digest != nil && log.Response.StatusCode == http.StatusUnauthorized {
		challenge := log.Response.Header("WWW-Authenticate")
		if !strings.HasPrefix(strings.ToLower(challenge), "digest ") {
			return log, nil
		}
		authHeader, err := digestAuthorization(req.Method, target, *digest, challenge)
		if err != nil {
			return nil, err
		}
		headers.Set("Authorization", authHeader)
		return c.do(ctx, hc, req.Method, target, req.Body, headers, opts)
	}

	return log, nil
}

type redirectsKey struct{}

type redirectRecorder struct {
	mu        sync.Mutex
	redirects []Redirect
}

func (r *redirectRecorder) add(rd Redirect) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.redirects = append(r.redirects, rd)
}

func (c *Client) do(ctx context.Context, hc *http.Client, method, target, body string, headers http.Header, opts Options) (*ExecutionLog, error) {
	log := &ExecutionLog{}
	recorder := &redirectRecorder{}
	timer := &traceTimer{}

	ctx = context.WithValue(ctx, redirectsKey{}, recorder)
	ctx = timer.attach(ctx)

	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	httpReq, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return nil, err
	}
	httpReq.Header = headers.Clone()
	if host := headers.Get("Host"); host != "" {
		httpReq.Host = host
	}

	log.Request = SentRequest{
		Method:  method,
		URL:     target,
		Headers: headers.Clone(),
		Body:    body,
	}
	if opts.SentMessageLimit > 0 && len(body) > opts.SentMessageLimit {
		log.Request.Body = body[:opts.SentMessageLimit]
		log.Request.Truncated = true
	}

	timer.start()
	httpResp, err := hc.Do(httpReq)
	if err != nil {
		opts.Logger.Debug().Err(err).Str("method", method).Str("url", target).Msg("request failed")
		return nil, err
	}
	defer httpResp.Body.Close()

	respBody, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, err
	}

	log.Timings = timer.finish()
	log.Size = int64(len(respBody))
	log.Redirects = recorder.redirects
	log.Response = &Response{
		StatusCode: httpResp.StatusCode,
		Status:     httpResp.Status,
		URL:        httpResp.Request.URL.String(),
		Headers:    httpResp.Header.Clone(),
		Body:       string(respBody),
	}

	opts.Logger.Debug().
		Str("method", method).
		Str("url", target).
		Int("status", httpResp.StatusCode).
		Int("redirects", len(log.Redirects)).
		Dur("duration", log.Timings.Total).
		Msg("request sent")

	return log, nil
}

func (c *Client) clientFor(opts Options) (*http.Client, error) {
	key := transportKey(opts)

	c.mu.Lock()
	defer c.mu.Unlock()

	if hc, ok := c.clients[key]; ok {
		return hc, nil
	}

	transport, err := c.newTransport(opts)
	if err != nil {
		return nil, err
	}

	maxRedirects := opts.MaxRedirects
	if maxRedirects <= 0 {
		maxRedirects = DefaultMaxRedirects
	}

	hc := &http.Client{
		Transport:     transport,
		CheckRedirect: redirectPolicy(opts.FollowRedirects, maxRedirects),
	}
	c.clients[key] = hc
	return hc, nil
}

// redirectPolicy records every followed hop on the recorder carried by the
// request context.
func redirectPolicy(follow bool, max int) func(req *http.Request, via []*http.Request) error {
	return func(req *http.Request, via []*http.Request) error {
		if !follow {
			return http.ErrUseLastResponse
		}
		if len(via) >= max {
			return http.ErrUseLastResponse
		}
		if rec, ok := req.Context().Value(redirectsKey{}).(*redirectRecorder); ok && req.Response != nil {
			rec.add(Redirect{
				URL:        via[len(via)-1].URL.String(),
				StatusCode: req.Response.StatusCode,
				Headers:    req.Response.Header.Clone(),
			})
		}
		return nil
	}
}

func transportKey(opts Options) string {
	var b strings.Builder
	fmt.Fprintf(&b, "follow=%t;max=%d;proxy=%s;user=%s;pass=%s;verify=%t",
		opts.FollowRedirects, opts.MaxRedirects, opts.Proxy, opts.ProxyUsername, opts.ProxyPassword, opts.ValidateCertificates)

	certs := make([]string, 0, len(opts.Certificates))
	for _, cert := range opts.Certificates {
		certs = append(certs, cert.Key)
	}
	sort.Strings(certs)
	fmt.Fprintf(&b, ";certs=%s", strings.Join(certs, ","))

	for _, h := range opts.Hosts {
		fmt.Fprintf(&b, ";host=%s>%s", h.From, h.To)
	}
	return b.String()
}

// ValidateURL checks that a URL is well-formed and uses an allowed scheme
func ValidateURL(rawURL string) error {
	u, err := neturl.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("invalid URL: %v", err)
	}

	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("unsupported URL scheme: %s (only http and https are allowed)", u.Scheme)
	}

	if u.Host == "" {
		return fmt.Errorf("URL must have a host")
	}

	return nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
