package runner

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	neturl "net/url"
	"strings"

	"github.com/rs/zerolog"

	"github.com/abdul-hamid-achik/hitrun/packages/cookies"
	"github.com/abdul-hamid-achik/hitrun/packages/core/env"
	"github.com/abdul-hamid-achik/hitrun/packages/core/model"
	"github.com/abdul-hamid-achik/hitrun/packages/flows"
	"github.com/abdul-hamid-achik/hitrun/packages/http"
)

// Transport sends one resolved request. *http.Client implements it.
type Transport interface {
	Send(ctx context.Context, req *http.Request, opts http.Options) (*http.ExecutionLog, error)
}

var _ Transport = (*http.Client)(nil)

// RequestRunner runs the pipeline of a single request: variables,
// authorization, cookies, request flows, the network call, then response
// cookies and response flows. Only the transport call does network I/O.
type RequestRunner struct {
	transport Transport
	resolver  *env.Resolver
	jar       cookies.Jar
	variables env.Context
	project   *model.Project
	options   http.Options
	logger    zerolog.Logger
	observer  flows.Observer
	flows     *flows.Runner
}

type RequestOption func(*RequestRunner)

func WithRequestJar(jar cookies.Jar) RequestOption {
	return func(r *RequestRunner) {
		r.jar = jar
	}
}

// WithRequestVariables sets the variable context. Flows write to it in place.
func WithRequestVariables(vars env.Context) RequestOption {
	return func(r *RequestRunner) {
		r.variables = vars
	}
}

func WithRequestResolver(resolver *env.Resolver) RequestOption {
	return func(r *RequestRunner) {
		r.resolver = resolver
	}
}

// WithProject makes the project certificates available to
// client-certificate authorizations
func WithProject(p *model.Project) RequestOption {
	return func(r *RequestRunner) {
		r.project = p
	}
}

// WithBaseOptions sets the engine options requests start from
func WithBaseOptions(opts http.Options) RequestOption {
	return func(r *RequestRunner) {
		r.options = opts
	}
}

func WithRequestLogger(logger zerolog.Logger) RequestOption {
	return func(r *RequestRunner) {
		r.logger = logger
	}
}

func WithFlowObserver(o flows.Observer) RequestOption {
	return func(r *RequestRunner) {
		r.observer = o
	}
}

func NewRequestRunner(transport Transport, opts ...RequestOption) *RequestRunner {
	r := &RequestRunner{
		transport: transport,
		resolver:  env.NewResolver(),
		variables: make(env.Context),
		options:   http.DefaultOptions(),
		logger:    zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(r)
	}

	flowOpts := []flows.Option{
		flows.WithVariables(r.variables),
		flows.WithLogger(r.logger),
	}
	if r.jar != nil {
		flowOpts = append(flowOpts, flows.WithJar(r.jar))
	}
	if r.observer != nil {
		flowOpts = append(flowOpts, flows.WithObserver(r.observer))
	}
	r.flows = flows.NewRunner(flowOpts...)
	return r
}

// Variables returns the context the runner resolves against
func (r *RequestRunner) Variables() env.Context {
	return r.variables
}

// Run executes req and returns the log of its single network attempt
func (r *RequestRunner) Run(ctx context.Context, req *model.Request) (*http.ExecutionLog, error) {
	resolved := r.applyVariables(req)

	opts := r.options
	opts.Certificates = append([]*model.Certificate(nil), r.options.Certificates...)
	opts.ApplyConfig(resolved.Config)
	opts.Logger = r.logger

	wire, err := r.applyAuthorization(resolved, &opts)
	if err != nil {
		return nil, err
	}

	r.applyCookies(ctx, resolved, wire)

	r.flows.Run(ctx, model.TriggerRequest, resolved.Flows, flows.Exchange{Request: wire})

	log, err := r.transport.Send(ctx, wire, opts)
	if err != nil {
		return nil, err
	}

	r.processResponse(ctx, resolved, wire, log)
	return log, nil
}

// applyVariables resolves placeholders in a copy of req
func (r *RequestRunner) applyVariables(req *model.Request) *model.Request {
	out := req.Clone()
	eval := func(s string) string {
		return r.resolver.EvaluateString(s, r.variables)
	}

	out.URL = eval(out.URL)
	out.Payload = eval(out.Payload)
	for i := range out.Headers {
		out.Headers[i].Name = eval(out.Headers[i].Name)
		out.Headers[i].Value = eval(out.Headers[i].Value)
	}

	if cfg := out.Config; cfg != nil {
		cfg.Proxy = eval(cfg.Proxy)
		cfg.ProxyUsername = eval(cfg.ProxyUsername)
		cfg.ProxyPassword = eval(cfg.ProxyPassword)
		cfg.DefaultUserAgent = eval(cfg.DefaultUserAgent)
		cfg.DefaultAccept = eval(cfg.DefaultAccept)
		for i := range cfg.Hosts {
			cfg.Hosts[i].From = eval(cfg.Hosts[i].From)
			cfg.Hosts[i].To = eval(cfg.Hosts[i].To)
		}
	}

	for i := range out.Authorization {
		out.Authorization[i].Config = r.evaluateAuth(out.Authorization[i].Config)
	}
	return out
}

// evaluateAuth resolves every string of an authorization config by going
// through its JSON form
func (r *RequestRunner) evaluateAuth(cfg model.AuthConfig) model.AuthConfig {
	data, err := json.Marshal(cfg)
	if err != nil {
		return cfg
	}
	var fields map[string]any
	if err := json.Unmarshal(data, &fields); err != nil {
		return cfg
	}
	data, err = json.Marshal(r.resolver.Evaluate(fields, r.variables))
	if err != nil {
		return cfg
	}
	var out model.AuthConfig
	if err := json.Unmarshal(data, &out); err != nil {
		return cfg
	}
	return out
}

// applyAuthorization builds the wire request. Static credentials are
// written into it; kinds that need the network or a signature over the
// final request are forwarded to the transport.
func (r *RequestRunner) applyAuthorization(req *model.Request, opts *http.Options) (*http.Request, error) {
	wire := http.FromModel(req)
	opts.Authorization = nil

	for _, auth := range req.Authorization {
		if !auth.IsEnabled() {
			continue
		}
		cfg := auth.Config
		switch auth.Kind {
		case model.AuthBasic:
			credentials := base64.StdEncoding.EncodeToString([]byte(cfg.Username + ":" + cfg.Password))
			wire.Headers.Set("Authorization", "Basic "+credentials)
		case model.AuthBearer:
			wire.Headers.Set("Authorization", "Bearer "+cfg.Token)
		case model.AuthAPIKey:
			if cfg.Name == "" {
				continue
			}
			if strings.EqualFold(cfg.In, "query") {
				target, err := withQuery(wire.URL, cfg.Name, cfg.Value)
				if err != nil {
					return nil, err
				}
				wire.URL = target
			} else {
				wire.Headers.Set(cfg.Name, cfg.Value)
			}
		case model.AuthOAuth2:
			if cfg.AccessToken == "" {
				opts.Authorization = append(opts.Authorization, auth)
				continue
			}
			if strings.EqualFold(cfg.DeliveryMethod, "query") {
				name := cfg.DeliveryName
				if name == "" {
					name = "access_token"
				}
				target, err := withQuery(wire.URL, name, cfg.AccessToken)
				if err != nil {
					return nil, err
				}
				wire.URL = target
				continue
			}
			tokenType := cfg.TokenType
			if tokenType == "" {
				tokenType = "Bearer"
			}
			header := cfg.DeliveryName
			if header == "" {
				header = "Authorization"
			}
			wire.Headers.Set(header, tokenType+" "+cfg.AccessToken)
		case model.AuthClientCertificate:
			var cert *model.Certificate
			if r.project != nil {
				cert = r.project.FindCertificate(cfg.CertificateKey)
			}
			if cert == nil {
				return nil, fmt.Errorf("client certificate %q not found", cfg.CertificateKey)
			}
			opts.Certificates = append(opts.Certificates, cert)
		default:
			opts.Authorization = append(opts.Authorization, auth)
		}
	}
	return wire, nil
}

func withQuery(target, name, value string) (string, error) {
	u, err := neturl.Parse(target)
	if err != nil {
		return "", fmt.Errorf("invalid URL: %w", err)
	}
	q := u.Query()
	q.Set(name, value)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// applyCookies adds jar cookies to the Cookie header. Names already in the
// header are kept as they are.
func (r *RequestRunner) applyCookies(ctx context.Context, req *model.Request, wire *http.Request) {
	if r.jar == nil || (req.Config != nil && req.Config.IgnoreSessionCookies) {
		return
	}

	list, err := r.jar.ListCookies(ctx, wire.URL)
	if err != nil {
		r.logger.Debug().Err(err).Str("url", wire.URL).Msg("cookie lookup failed")
		return
	}
	if len(list) == 0 {
		return
	}

	existing := wire.Headers.Get("Cookie")
	present := make(map[string]bool)
	var parts []string
	if existing != "" {
		for _, pair := range strings.Split(existing, ";") {
			pair = strings.TrimSpace(pair)
			if pair == "" {
				continue
			}
			name, _, _ := strings.Cut(pair, "=")
			present[strings.TrimSpace(name)] = true
			parts = append(parts, pair)
		}
	}
	for _, c := range list {
		if present[c.Name] {
			continue
		}
		present[c.Name] = true
		parts = append(parts, c.String())
	}
	wire.Headers.Set("Cookie", strings.Join(parts, "; "))
}

// processResponse commits Set-Cookie headers of every redirect hop and of
// the final response against the URL that sent them, then runs the
// response flows.
func (r *RequestRunner) processResponse(ctx context.Context, req *model.Request, wire *http.Request, log *http.ExecutionLog) {
	if r.jar != nil {
		for _, rd := range log.Redirects {
			r.commitCookies(ctx, rd.URL, rd.Headers.Values("Set-Cookie"))
		}
		if log.Response != nil {
			target := log.Response.URL
			if target == "" {
				target = wire.URL
			}
			r.commitCookies(ctx, target, log.Response.Headers.Values("Set-Cookie"))
		}
	}

	r.flows.Run(ctx, model.TriggerResponse, req.Flows, flows.Exchange{Request: wire, Response: log.Response})
}

func (r *RequestRunner) commitCookies(ctx context.Context, target string, headers []string) {
	var parsed []*cookies.Cookie
	for _, h := range headers {
		list, err := cookies.Parse(target, h)
		if err != nil {
			r.logger.Debug().Err(err).Str("url", target).Msg("set-cookie ignored")
			continue
		}
		parsed = append(parsed, list...)
	}
	if len(parsed) == 0 {
		return
	}
	if _, err := r.jar.SetCookies(ctx, target, parsed); err != nil {
		r.logger.Debug().Err(err).Str("url", target).Msg("cookie commit failed")
	}
}
