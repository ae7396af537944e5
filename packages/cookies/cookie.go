package cookies

import (
	"fmt"
	"net/http"
	"strings"
	"time"
)

// SameSite is the same-site policy of a cookie
type SameSite string

const (
	SameSiteUnspecified   SameSite = "unspecified"
	SameSiteNoRestriction SameSite = "no_restriction"
	SameSiteLax           SameSite = "lax"
	SameSiteStrict        SameSite = "strict"
)

// Cookie is a single stored cookie. Identity is (Name, Domain, Path) with the
// domain compared case-insensitively and without its leading dot.
type Cookie struct {
	Name           string     `json:"name"`
	Value          string     `json:"value"`
	Domain         string     `json:"domain"`
	Path           string     `json:"path"`
	HostOnly       bool       `json:"hostOnly"`
	Secure         bool       `json:"secure"`
	HTTPOnly       bool       `json:"httpOnly"`
	SameSite       SameSite   `json:"sameSite,omitempty"`
	ExpirationDate *time.Time `json:"expirationDate,omitempty"`
	Session        bool       `json:"session"`
	Created        time.Time  `json:"created"`
	LastAccess     time.Time  `json:"lastAccess"`
}

// Key returns the identity of the cookie inside a jar
func (c *Cookie) Key() string {
	return c.Name + "|" + normalizeDomain(c.Domain) + "|" + c.Path
}

// Expired reports whether the cookie's expiration date is not after now.
// Session cookies never expire on their own.
func (c *Cookie) Expired(now time.Time) bool {
	if c.ExpirationDate == nil {
		return false
	}
	return !c.ExpirationDate.After(now)
}

// SetMaxAge sets the expiration relative to now. A non-positive max-age
// expires the cookie immediately.
func (c *Cookie) SetMaxAge(seconds int, now time.Time) {
	var exp time.Time
	if seconds <= 0 {
		exp = time.Unix(0, 0).UTC()
	} else {
		exp = now.Add(time.Duration(seconds) * time.Second)
	}
	c.ExpirationDate = &exp
	c.Session = false
}

// SetExpires sets an absolute expiration date
func (c *Cookie) SetExpires(t time.Time) {
	t = t.UTC()
	c.ExpirationDate = &t
	c.Session = false
}

// Clone returns a deep copy of the cookie
func (c *Cookie) Clone() *Cookie {
	clone := *c
	if c.ExpirationDate != nil {
		exp := *c.ExpirationDate
		clone.ExpirationDate = &exp
	}
	return &clone
}

// String returns the cookie in request header form: name=value
func (c *Cookie) String() string {
	return c.Name + "=" + c.Value
}

// ToHeaderString renders the cookie as a Set-Cookie header value
func (c *Cookie) ToHeaderString() string {
	parts := []string{c.String()}
	if c.Domain != "" {
		parts = append(parts, "Domain="+c.Domain)
	}
	if c.Path != "" {
		parts = append(parts, "Path="+c.Path)
	}
	if c.ExpirationDate != nil {
		parts = append(parts, "Expires="+c.ExpirationDate.UTC().Format(http.TimeFormat))
	}
	if c.Secure {
		parts = append(parts, "Secure")
	}
	if c.HTTPOnly {
		parts = append(parts, "HttpOnly")
	}
	if c.HostOnly {
		parts = append(parts, "HostOnly")
	}
	switch c.SameSite {
	case SameSiteLax:
		parts = append(parts, "SameSite=Lax")
	case SameSiteStrict:
		parts = append(parts, "SameSite=Strict")
	case SameSiteNoRestriction:
		parts = append(parts, "SameSite=None")
	}
	return strings.Join(parts, "; ")
}

// HeaderValue joins cookies into a Cookie request header value
func HeaderValue(cookies []*Cookie) string {
	pairs := make([]string, 0, len(cookies))
	for _, c := range cookies {
		pairs = append(pairs, c.String())
	}
	return strings.Join(pairs, "; ")
}

// UrlParseError is returned when a cookie operation receives an unusable URL
type UrlParseError struct {
	URL string
	Err error
}

func (e *UrlParseError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("invalid cookie url %q", e.URL)
	}
	return fmt.Sprintf("invalid cookie url %q: %v", e.URL, e.Err)
}

func (e *UrlParseError) Unwrap() error {
	return e.Err
}

func normalizeDomain(domain string) string {
	return strings.ToLower(strings.TrimPrefix(domain, "."))
}
