package http

import (
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/abdul-hamid-achik/hitrun/packages/core/model"
)

// Request is a fully resolved request ready to be sent
type Request struct {
	Method  string
	URL     string
	Headers http.Header
	Body    string
}

// FromModel builds a wire request from a resolved request definition.
// Disabled headers are skipped.
func FromModel(r *model.Request) *Request {
	req := &Request{
		Method:  strings.ToUpper(r.Method),
		URL:     r.URL,
		Headers: make(http.Header),
		Body:    r.Payload,
	}
	if req.Method == "" {
		req.Method = http.MethodGet
	}
	for _, h := range r.Headers {
		if h.IsEnabled() && h.Name != "" {
			req.Headers.Add(h.Name, h.Value)
		}
	}
	return req
}

// Options are the engine settings of a single Send call
type Options struct {
	Timeout              time.Duration
	FollowRedirects      bool
	MaxRedirects         int
	Proxy                string
	ProxyUsername        string
	ProxyPassword        string
	DefaultHeaders       bool
	DefaultUserAgent     string
	DefaultAccept        string
	ValidateCertificates bool
	Certificates         []*model.Certificate
	Hosts                []model.HostRule
	SentMessageLimit     int
	Authorization        []model.Authorization
	Logger               zerolog.Logger
}

// DefaultOptions returns the options used when a request sets nothing
func DefaultOptions() Options {
	return Options{
		Timeout:              DefaultTimeout,
		FollowRedirects:      true,
		MaxRedirects:         DefaultMaxRedirects,
		DefaultHeaders:       true,
		ValidateCertificates: true,
		Logger:               zerolog.Nop(),
	}
}

// ApplyConfig overlays the settings of a request config
func (o *Options) ApplyConfig(cfg *model.RequestConfig) {
	if cfg == nil {
		return
	}
	if cfg.Timeout > 0 {
		o.Timeout = time.Duration(cfg.Timeout) * time.Millisecond
	}
	if cfg.FollowRedirects != nil {
		o.FollowRedirects = *cfg.FollowRedirects
	}
	if cfg.ValidateCertificates != nil {
		o.ValidateCertificates = *cfg.ValidateCertificates
	}
	if cfg.DefaultHeaders != nil {
		o.DefaultHeaders = *cfg.DefaultHeaders
	}
	if cfg.DefaultUserAgent != "" {
		o.DefaultUserAgent = cfg.DefaultUserAgent
	}
	if cfg.DefaultAccept != "" {
		o.DefaultAccept = cfg.DefaultAccept
	}
	if cfg.Proxy != "" {
		o.Proxy = cfg.Proxy
		o.ProxyUsername = cfg.ProxyUsername
		o.ProxyPassword = cfg.ProxyPassword
	}
	if cfg.SentMessageLimit > 0 {
		o.SentMessageLimit = cfg.SentMessageLimit
	}
	if len(cfg.Hosts) > 0 {
		o.Hosts = append(append([]model.HostRule(nil), o.Hosts...), cfg.Hosts...)
	}
}
