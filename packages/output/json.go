package output

import (
	"encoding/json"
	"io"
	"os"
	"time"

	"github.com/abdul-hamid-achik/hitrun/packages/core/runner"
	"github.com/abdul-hamid-achik/hitrun/packages/stats"
)

// JSONOutput represents the complete JSON output structure
type JSONOutput struct {
	Summary    JSONSummary     `json:"summary"`
	Latency    *stats.Summary  `json:"latency"`
	Iterations []JSONIteration `json:"iterations"`
	Errors     []string        `json:"errors,omitempty"`
	Duration   float64         `json:"duration"`
	Time       string          `json:"time"`
}

// JSONSummary represents the run summary
type JSONSummary struct {
	Iterations int `json:"iterations"`
	Total      int `json:"total"`
	Succeeded  int `json:"succeeded"`
	Failed     int `json:"failed"`
}

// JSONIteration represents one pass over the requests
type JSONIteration struct {
	Index    int           `json:"index"`
	Requests []JSONRequest `json:"requests"`
	Error    string        `json:"error,omitempty"`
}

// JSONRequest represents a single executed request
type JSONRequest struct {
	Key       string        `json:"key"`
	Name      string        `json:"name"`
	Method    string        `json:"method,omitempty"`
	URL       string        `json:"url,omitempty"`
	Status    int           `json:"status,omitempty"`
	Duration  float64       `json:"duration"`
	Size      int64         `json:"size,omitempty"`
	Redirects int           `json:"redirects,omitempty"`
	Error     string        `json:"error,omitempty"`
	Response  *JSONResponse `json:"response,omitempty"`
}

// JSONResponse represents response details, included in verbose mode
type JSONResponse struct {
	Headers map[string]string `json:"headers,omitempty"`
	Body    string            `json:"body,omitempty"`
}

// JSONFormatter formats reports as JSON
type JSONFormatter struct {
	writer  io.Writer
	verbose bool
	errors  []string
}

type JSONOption func(*JSONFormatter)

func NewJSONFormatter(opts ...JSONOption) *JSONFormatter {
	f := &JSONFormatter{
		writer: os.Stdout,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

func JSONWithWriter(w io.Writer) JSONOption {
	return func(f *JSONFormatter) {
		f.writer = w
	}
}

// JSONWithResponses includes response headers and bodies
func JSONWithResponses(v bool) JSONOption {
	return func(f *JSONFormatter) {
		f.verbose = v
	}
}

func (f *JSONFormatter) FormatReport(report *runner.Report) error {
	total, failed := report.Counts()
	out := JSONOutput{
		Summary: JSONSummary{
			Iterations: len(report.Iterations),
			Total:      total,
			Succeeded:  total - failed,
			Failed:     failed,
		},
		Latency:    stats.FromReport(report),
		Iterations: make([]JSONIteration, 0, len(report.Iterations)),
		Errors:     f.errors,
		Duration:   float64(report.Ended - report.Started),
		Time:       time.Now().Format(time.RFC3339),
	}

	for _, it := range report.Iterations {
		ji := JSONIteration{Index: it.Index, Requests: make([]JSONRequest, 0, len(it.Executed))}
		if it.Error {
			ji.Error = it.ErrorMessage
		}
		for _, res := range it.Executed {
			ji.Requests = append(ji.Requests, f.request(res))
		}
		out.Iterations = append(out.Iterations, ji)
	}

	encoder := json.NewEncoder(f.writer)
	encoder.SetIndent("", "  ")
	return encoder.Encode(out)
}

func (f *JSONFormatter) request(res *runner.RunResult) JSONRequest {
	jr := JSONRequest{Key: res.Key, Name: res.Name}
	if res.Error {
		jr.Error = res.ErrorMessage
	}
	if res.Log == nil {
		return jr
	}

	jr.Method = res.Log.Request.Method
	jr.URL = res.Log.Request.URL
	jr.Duration = float64(res.Log.Timings.Total.Milliseconds())
	jr.Size = res.Log.Size
	jr.Redirects = len(res.Log.Redirects)
	if res.Log.Response == nil {
		return jr
	}
	jr.Status = res.Log.Response.StatusCode
	if f.verbose {
		headers := make(map[string]string, len(res.Log.Response.Headers))
		for name := range res.Log.Response.Headers {
			headers[name] = res.Log.Response.Headers.Get(name)
		}
		jr.Response = &JSONResponse{Headers: headers, Body: res.Log.Response.Body}
	}
	return jr
}

// FormatError records the error in the next report
func (f *JSONFormatter) FormatError(err error) {
	f.errors = append(f.errors, err.Error())
}

func (f *JSONFormatter) FormatHeader(version string) {
	// No header needed for JSON output
}
