package http

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"
)

// SentRequest is the request as it went on the wire. Body is cut to the
// sent message limit.
type SentRequest struct {
	Method    string      `json:"method"`
	URL       string      `json:"url"`
	Headers   http.Header `json:"headers"`
	Body      string      `json:"body,omitempty"`
	Truncated bool        `json:"truncated,omitempty"`
}

type Response struct {
	StatusCode int         `json:"status"`
	Status     string      `json:"statusText"`
	URL        string      `json:"url"`
	Headers    http.Header `json:"headers"`
	Body       string      `json:"body"`
}

func (r *Response) BodyJSON() (any, error) {
	var result any
	if err := json.Unmarshal([]byte(r.Body), &result); err != nil {
		return nil, err
	}
	return result, nil
}

func (r *Response) Header(key string) string {
	return r.Headers.Get(key)
}

func (r *Response) ContentType() string {
	return r.Header("Content-Type")
}

func (r *Response) IsJSON() bool {
	ct := r.ContentType()
	return strings.Contains(ct, "application/json") || strings.Contains(ct, "+json")
}

func (r *Response) IsSuccess() bool {
	return r.StatusCode >= 200 && r.StatusCode < 300
}

func (r *Response) IsRedirect() bool {
	return r.StatusCode >= 300 && r.StatusCode < 400
}

func (r *Response) IsClientError() bool {
	return r.StatusCode >= 400 && r.StatusCode < 500
}

func (r *Response) IsServerError() bool {
	return r.StatusCode >= 500
}

// Redirect is one intermediate response of a redirect chain. URL is the
// address that produced it.
type Redirect struct {
	URL        string      `json:"url"`
	StatusCode int         `json:"status"`
	Headers    http.Header `json:"headers"`
}

// Timings are measured with httptrace. Phases that did not happen (for
// example DNS on a reused connection) stay zero.
type Timings struct {
	DNS       time.Duration `json:"dns"`
	Connect   time.Duration `json:"connect"`
	TLS       time.Duration `json:"tls"`
	FirstByte time.Duration `json:"firstByte"`
	Total     time.Duration `json:"total"`
}

// ExecutionLog describes one network attempt
type ExecutionLog struct {
	Request   SentRequest `json:"request"`
	Response  *Response   `json:"response"`
	Redirects []Redirect  `json:"redirects,omitempty"`
	Timings   Timings     `json:"timings"`
	Size      int64       `json:"size"`
}

func (l *ExecutionLog) DurationMs() int64 {
	return l.Timings.Total.Milliseconds()
}
