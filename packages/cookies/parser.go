package cookies

import (
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"
)

var attributeNames = map[string]bool{
	"path":     true,
	"domain":   true,
	"max-age":  true,
	"expires":  true,
	"secure":   true,
	"httponly": true,
	"samesite": true,
	"hostonly": true,
}

// A comma right after "Expires=<weekday>" belongs to the date, not to the list.
var expiresWeekday = regexp.MustCompile(`(?i)^\s*expires\s*=\s*[a-z]{3,9}\s*$`)

var expiresLayouts = []string{
	time.RFC1123,
	time.RFC1123Z,
	"Mon, 02-Jan-2006 15:04:05 MST",
	"Mon, 02 Jan 06 15:04:05 MST",
	time.RFC850,
	time.ANSIC,
}

type parseState struct {
	cookie *Cookie
	maxAge bool
}

// Parse parses a Set-Cookie header value received from requestURL. The value
// may contain several cookies joined by commas. Malformed segments are
// dropped; only an unusable request URL returns an error. The result holds
// only cookies that match the request URL.
func Parse(requestURL, header string) ([]*Cookie, error) {
	u, err := parseURL(requestURL)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	var states []*parseState

	for _, segment := range splitHeader(header) {
		segment = strings.TrimSpace(segment)
		if segment == "" {
			continue
		}

		name, value, hasValue := strings.Cut(segment, "=")
		name = strings.TrimSpace(name)
		value = strings.TrimSpace(value)

		lower := strings.ToLower(name)
		if attributeNames[lower] {
			if len(states) == 0 {
				continue
			}
			states[len(states)-1].apply(lower, value, now)
			continue
		}

		if name == "" || !hasValue {
			continue
		}

		states = append(states, &parseState{cookie: &Cookie{
			Name:       name,
			Value:      unquote(value),
			SameSite:   SameSiteUnspecified,
			Session:    true,
			Created:    now,
			LastAccess: now,
		}})
	}

	host := strings.ToLower(u.Hostname())
	requestPath := u.Path
	if requestPath == "" {
		requestPath = "/"
	}

	result := make([]*Cookie, 0, len(states))
	for _, st := range states {
		c := st.cookie
		if c.Path == "" {
			c.Path = DefaultPath(u.Path)
		}
		if c.Domain == "" {
			c.Domain = host
			c.HostOnly = true
		}
		if !strings.HasPrefix(c.Domain, ".") {
			c.Domain = "." + c.Domain
		}

		if MatchesDomain(c.Domain, host) && MatchesPath(c.Path, requestPath) {
			result = append(result, c)
		}
	}

	return result, nil
}

func (st *parseState) apply(attr, value string, now time.Time) {
	c := st.cookie
	switch attr {
	case "path":
		if strings.HasPrefix(value, "/") {
			c.Path = value
		}
	case "domain":
		value = strings.ToLower(unquote(value))
		if value != "" && value != "." {
			c.Domain = value
			c.HostOnly = false
		}
	case "max-age":
		seconds, err := strconv.Atoi(value)
		if err != nil {
			return
		}
		c.SetMaxAge(seconds, now)
		st.maxAge = true
	case "expires":
		if st.maxAge {
			return
		}
		if t, ok := parseExpires(unquote(value)); ok {
			c.SetExpires(t)
		}
	case "secure":
		c.Secure = flagValue(value)
	case "httponly":
		c.HTTPOnly = flagValue(value)
	case "hostonly":
		c.HostOnly = flagValue(value)
	case "samesite":
		switch strings.ToLower(value) {
		case "lax":
			c.SameSite = SameSiteLax
		case "strict":
			c.SameSite = SameSiteStrict
		case "none":
			c.SameSite = SameSiteNoRestriction
		}
	}
}

// splitHeader splits on ';' and ',' except for the comma inside an Expires date.
func splitHeader(header string) []string {
	var parts []string
	var current strings.Builder

	for i := 0; i < len(header); i++ {
		ch := header[i]
		switch ch {
		case ';':
			parts = append(parts, current.String())
			current.Reset()
		case ',':
			if expiresWeekday.MatchString(current.String()) {
				current.WriteByte(ch)
				continue
			}
			parts = append(parts, current.String())
			current.Reset()
		default:
			current.WriteByte(ch)
		}
	}

	if current.Len() > 0 {
		parts = append(parts, current.String())
	}
	return parts
}

// MatchesDomain implements RFC 6265 domain matching. A leading dot on the
// cookie domain is ignored.
func MatchesDomain(cookieDomain, host string) bool {
	d := normalizeDomain(cookieDomain)
	h := strings.ToLower(host)
	if d == "" || h == "" {
		return false
	}
	return h == d || strings.HasSuffix(h, "."+d)
}

// MatchesPath implements RFC 6265 path matching
func MatchesPath(cookiePath, requestPath string) bool {
	if requestPath == "" {
		requestPath = "/"
	}
	if requestPath == cookiePath {
		return true
	}
	if !strings.HasPrefix(requestPath, cookiePath) {
		return false
	}
	if strings.HasSuffix(cookiePath, "/") {
		return true
	}
	return requestPath[len(cookiePath)] == '/'
}

// DefaultPath computes the default cookie path of a request path (RFC 6265 5.1.4)
func DefaultPath(urlPath string) string {
	if urlPath == "" || urlPath[0] != '/' {
		return "/"
	}
	i := strings.LastIndex(urlPath, "/")
	if i == 0 {
		return "/"
	}
	return urlPath[:i]
}

func parseURL(raw string) (*url.URL, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return nil, &UrlParseError{URL: raw, Err: err}
	}
	if u.Hostname() == "" {
		return nil, &UrlParseError{URL: raw}
	}
	return u, nil
}

// parseExpires accepts the usual cookie date forms. The weekday comma may
// lack its following space.
func parseExpires(value string) (time.Time, bool) {
	if i := strings.IndexByte(value, ','); i >= 0 && i+1 < len(value) && value[i+1] != ' ' {
		value = value[:i+1] + " " + value[i+1:]
	}
	for _, layout := range expiresLayouts {
		if t, err := time.Parse(layout, value); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

func flagValue(value string) bool {
	return !strings.EqualFold(value, "false")
}

func unquote(value string) string {
	if len(value) >= 2 && value[0] == '"' && value[len(value)-1] == '"' {
		return value[1 : len(value)-1]
	}
	return value
}
