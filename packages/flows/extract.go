package flows

import (
	"encoding/json"
	"fmt"
	"net/textproto"
	"net/url"
	"sort"
	"strconv"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/abdul-hamid-achik/hitrun/packages/core/model"
	"github.com/abdul-hamid-achik/hitrun/packages/http"
)

// Exchange is what flows can read. Response is nil during the request phase.
type Exchange struct {
	Request  *http.Request
	Response *http.Response
}

// URL returns the request URL, or "" when there is no request
func (e Exchange) URL() string {
	if e.Request == nil {
		return ""
	}
	return e.Request.URL
}

// read extracts a value from one side of the exchange. A nil result means
// the value is undefined.
func (e Exchange) read(side model.DataSourceType, source model.Source, path string) any {
	if side == "" {
		side = model.FromRequest
		if e.Response != nil {
			side = model.FromResponse
		}
	}

	switch side {
	case model.FromRequest:
		if e.Request == nil {
			return nil
		}
		switch source {
		case model.SourceURL:
			return fromURL(e.Request.URL, path)
		case model.SourceMethod:
			return e.Request.Method
		case model.SourceHeaders:
			return fromHeaders(e.Request.Headers, path)
		case model.SourceBody:
			return fromBody(e.Request.Body, path)
		}
	case model.FromResponse:
		if e.Response == nil {
			return nil
		}
		switch source {
		case model.SourceURL:
			return fromURL(e.Response.URL, path)
		case model.SourceMethod:
			if e.Request != nil {
				return e.Request.Method
			}
		case model.SourceHeaders:
			return fromHeaders(e.Response.Headers, path)
		case model.SourceBody:
			return fromBody(e.Response.Body, path)
		case model.SourceStatus:
			return e.Response.StatusCode
		}
	}
	return nil
}

// fromURL supports "", host, hostname, port, protocol, path, query,
// query.<name> and hash
func fromURL(raw, path string) any {
	if path == "" {
		return raw
	}
	u, err := url.Parse(raw)
	if err != nil {
		return nil
	}

	switch {
	case path == "host":
		return u.Host
	case path == "hostname":
		return u.Hostname()
	case path == "port":
		return u.Port()
	case path == "protocol":
		return u.Scheme
	case path == "path":
		return u.Path
	case path == "query":
		return u.RawQuery
	case path == "hash":
		return u.Fragment
	case strings.HasPrefix(path, "query."):
		values := u.Query()
		name := strings.TrimPrefix(path, "query.")
		if !values.Has(name) {
			return nil
		}
		return values.Get(name)
	}
	return nil
}

func fromHeaders(h map[string][]string, path string) any {
	if path == "" {
		names := make([]string, 0, len(h))
		for name := range h {
			names = append(names, name)
		}
		sort.Strings(names)

		var b strings.Builder
		for _, name := range names {
			for _, v := range h[name] {
				fmt.Fprintf(&b, "%s: %s\n", name, v)
			}
		}
		return b.String()
	}

	values := h[textproto.CanonicalMIMEHeaderKey(path)]
	if len(values) == 0 {
		return nil
	}
	return strings.Join(values, ", ")
}

// fromBody returns the raw body for an empty path, otherwise the gjson
// path value of a JSON body
func fromBody(body, path string) any {
	if path == "" {
		return body
	}
	if !gjson.Valid(body) {
		return nil
	}
	result := gjson.Get(body, path)
	if !result.Exists() {
		return nil
	}
	return result.Value()
}

// stringify renders a carried value the way it is written into variables
// and cookies. Objects and arrays are encoded as JSON.
func stringify(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case map[string]any, []any:
		data, err := json.Marshal(t)
		if err != nil {
			return fmt.Sprint(t)
		}
		return string(data)
	default:
		return fmt.Sprint(t)
	}
}
