package flows

import (
	"context"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/abdul-hamid-achik/hitrun/packages/cookies"
	"github.com/abdul-hamid-achik/hitrun/packages/core/model"
)

func (r *Runner) readData(s *model.ReadDataStep, ex Exchange) any {
	if s.Source.Type == model.FromVariables {
		if r.variables == nil {
			return nil
		}
		v, ok := r.variables[s.Source.Path]
		if !ok {
			return nil
		}
		return v
	}
	return ex.read(s.Source.Type, s.Source.Source, s.Source.Path)
}

// setData coerces the literal to its declared type. A literal that does
// not parse as that type yields no value.
func setData(s *model.SetDataStep) any {
	switch s.DataType {
	case model.DataNumber:
		f, err := strconv.ParseFloat(strings.TrimSpace(s.Value), 64)
		if err != nil {
			return nil
		}
		return f
	case model.DataBoolean:
		b, err := strconv.ParseBool(strings.TrimSpace(s.Value))
		if err != nil {
			return nil
		}
		return b
	case model.DataNull:
		return nil
	default:
		return s.Value
	}
}

// setVariable stores the value, or removes the variable when there is none
func (r *Runner) setVariable(s *model.SetVariableStep, value any) {
	if r.variables == nil || s.Name == "" {
		return
	}
	if value == nil {
		delete(r.variables, s.Name)
		return
	}
	r.variables[s.Name] = stringify(value)
}

func (r *Runner) setCookie(ctx context.Context, s *model.SetCookieStep, value any, ex Exchange) {
	if r.jar == nil || value == nil || s.Name == "" {
		return
	}

	target := s.URL
	if target == "" {
		target = ex.URL()
	}
	u, err := url.Parse(target)
	if err != nil || u.Hostname() == "" {
		r.logger.Debug().Str("url", target).Msg("set-cookie step skipped: invalid url")
		return
	}

	c := &cookies.Cookie{
		Name:     s.Name,
		Value:    stringify(value),
		Domain:   s.Domain,
		Path:     s.Path,
		HostOnly: s.HostOnly,
		HTTPOnly: s.HTTPOnly,
		Secure:   s.Secure,
		Session:  s.Session,
		SameSite: sameSite(s.SameSite),
	}
	if c.Domain == "" {
		c.Domain = u.Hostname()
	}
	if c.Path == "" {
		c.Path = u.Path
		if c.Path == "" {
			c.Path = "/"
		}
	}
	if s.Expires != "" && !s.Session {
		if exp, ok := parseExpires(s.Expires); ok {
			c.SetExpires(exp)
		}
	}
	if c.ExpirationDate == nil {
		c.Session = true
	}

	if _, err := r.jar.SetCookies(ctx, target, []*cookies.Cookie{c}); err != nil {
		r.logger.Debug().Err(err).Str("cookie", s.Name).Msg("set-cookie step failed")
	}
}

func (r *Runner) deleteCookie(ctx context.Context, s *model.DeleteCookieStep, ex Exchange) {
	if r.jar == nil {
		return
	}
	target := s.URL
	if target == "" {
		target = ex.URL()
	}
	if _, err := r.jar.DeleteCookies(ctx, target, s.Name); err != nil {
		r.logger.Debug().Err(err).Str("cookie", s.Name).Msg("delete-cookie step failed")
	}
}

func sameSite(v string) cookies.SameSite {
	switch strings.ToLower(v) {
	case "lax":
		return cookies.SameSiteLax
	case "strict":
		return cookies.SameSiteStrict
	case "none", "no_restriction":
		return cookies.SameSiteNoRestriction
	}
	return cookies.SameSiteUnspecified
}

func parseExpires(v string) (time.Time, bool) {
	if t, err := time.Parse(time.RFC3339, v); err == nil {
		return t, true
	}
	if t, err := http.ParseTime(v); err == nil {
		return t, true
	}
	return time.Time{}, false
}
