package model

import "strings"

// Info carries the human facing metadata of a document
type Info struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Version     string `json:"version,omitempty"`
}

// Header is a request header. Disabled headers are not sent.
type Header struct {
	Name    string `json:"name"`
	Value   string `json:"value"`
	Enabled *bool  `json:"enabled,omitempty"`
}

func (h Header) IsEnabled() bool {
	return getBool(h.Enabled, true)
}

// AuthKind is the kind of an authorization method
type AuthKind string

const (
	AuthBasic             AuthKind = "basic"
	AuthBearer            AuthKind = "bearer"
	AuthAPIKey            AuthKind = "api-key"
	AuthOAuth2            AuthKind = "oauth2"
	AuthDigest            AuthKind = "digest"
	AuthAWS               AuthKind = "aws"
	AuthNTLM              AuthKind = "ntlm"
	AuthClientCertificate AuthKind = "client-certificate"
)

// AuthConfig holds the settings of every authorization kind. Only the
// fields relevant to the kind are read.
type AuthConfig struct {
	Username string `json:"username,omitempty"`
	Password string `json:"password,omitempty"`
	Token    string `json:"token,omitempty"`

	// api-key
	Name  string `json:"name,omitempty"`
	Value string `json:"value,omitempty"`
	In    string `json:"in,omitempty"` // header or query

	// oauth2
	GrantType      string `json:"grantType,omitempty"`
	TokenURL       string `json:"tokenUrl,omitempty"`
	ClientID       string `json:"clientId,omitempty"`
	ClientSecret   string `json:"clientSecret,omitempty"`
	Scope          string `json:"scope,omitempty"`
	AccessToken    string `json:"accessToken,omitempty"`
	TokenType      string `json:"tokenType,omitempty"`
	DeliveryMethod string `json:"deliveryMethod,omitempty"` // header or query
	DeliveryName   string `json:"deliveryName,omitempty"`

	// aws
	AccessKey    string `json:"accessKey,omitempty"`
	SecretKey    string `json:"secretKey,omitempty"`
	Region       string `json:"region,omitempty"`
	Service      string `json:"service,omitempty"`
	SessionToken string `json:"sessionToken,omitempty"`

	// ntlm
	Domain      string `json:"domain,omitempty"`
	Workstation string `json:"workstation,omitempty"`

	// client-certificate
	CertificateKey string `json:"certificate,omitempty"`
}

// Authorization is one authorization method of a request
type Authorization struct {
	Kind    AuthKind   `json:"type"`
	Enabled *bool      `json:"enabled,omitempty"`
	Config  AuthConfig `json:"config"`
}

func (a Authorization) IsEnabled() bool {
	return getBool(a.Enabled, true)
}

// HostRule maps a host name to another address when dialing
type HostRule struct {
	From string `json:"from"`
	To   string `json:"to"`
}

// RequestConfig holds the transport settings of a request
type RequestConfig struct {
	Enabled              *bool      `json:"enabled,omitempty"`
	Timeout              int        `json:"timeout,omitempty"` // milliseconds
	FollowRedirects      *bool      `json:"followRedirects,omitempty"`
	IgnoreSessionCookies bool       `json:"ignoreSessionCookies,omitempty"`
	ValidateCertificates *bool      `json:"validateCertificates,omitempty"`
	DefaultHeaders       *bool      `json:"defaultHeaders,omitempty"`
	DefaultUserAgent     string     `json:"defaultUserAgent,omitempty"`
	DefaultAccept        string     `json:"defaultAccept,omitempty"`
	Proxy                string     `json:"proxy,omitempty"`
	ProxyUsername        string     `json:"proxyUsername,omitempty"`
	ProxyPassword        string     `json:"proxyPassword,omitempty"`
	SentMessageLimit     int        `json:"sentMessageLimit,omitempty"` // bytes
	Hosts                []HostRule `json:"hosts,omitempty"`
}

// Request is an HTTP request definition
type Request struct {
	Key           string          `json:"key"`
	Info          Info            `json:"info"`
	Method        string          `json:"method"`
	URL           string          `json:"url"`
	Headers       []Header        `json:"headers,omitempty"`
	Payload       string          `json:"payload,omitempty"`
	Authorization []Authorization `json:"authorization,omitempty"`
	Config        *RequestConfig  `json:"config,omitempty"`
	Flows         []Flow          `json:"flows,omitempty"`
}

// Name returns the display name, falling back to method and URL
func (r *Request) Name() string {
	if r.Info.Name != "" {
		return r.Info.Name
	}
	return r.Method + " " + r.URL
}

// IsEnabled reports whether the request takes part in project runs
func (r *Request) IsEnabled() bool {
	return r.Config == nil || getBool(r.Config.Enabled, true)
}

// HeaderValue returns the value of the first enabled header with name
func (r *Request) HeaderValue(name string) (string, bool) {
	for _, h := range r.Headers {
		if h.IsEnabled() && strings.EqualFold(h.Name, name) {
			return h.Value, true
		}
	}
	return "", false
}

// SetHeader replaces every header with name by a single enabled one
func (r *Request) SetHeader(name, value string) {
	kept := make([]Header, 0, len(r.Headers)+1)
	for _, h := range r.Headers {
		if !strings.EqualFold(h.Name, name) {
			kept = append(kept, h)
		}
	}
	r.Headers = append(kept, Header{Name: name, Value: value})
}

// Clone returns a copy that can be mutated without touching r. Flows are
// configuration and are shared.
func (r *Request) Clone() *Request {
	clone := *r
	clone.Headers = append([]Header(nil), r.Headers...)
	clone.Authorization = append([]Authorization(nil), r.Authorization...)
	if r.Config != nil {
		cfg := *r.Config
		cfg.Hosts = append([]HostRule(nil), r.Config.Hosts...)
		clone.Config = &cfg
	}
	return &clone
}

func getBool(b *bool, defaultVal bool) bool {
	if b == nil {
		return defaultVal
	}
	return *b
}

// BoolPtr returns a pointer to b
func BoolPtr(b bool) *bool {
	return &b
}
