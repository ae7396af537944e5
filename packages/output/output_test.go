package output

import (
	"bytes"
	"encoding/json"
	"encoding/xml"
	"errors"
	nethttp "net/http"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/abdul-hamid-achik/hitrun/packages/core/runner"
	"github.com/abdul-hamid-achik/hitrun/packages/http"
)

func executed(name string, status int, d time.Duration) *runner.RunResult {
	return &runner.RunResult{
		Key:  name,
		Name: name,
		Log: &http.ExecutionLog{
			Request:  http.SentRequest{Method: "GET", URL: "https://api.test/" + name},
			Response: &http.Response{StatusCode: status, Status: nethttp.StatusText(status), Headers: nethttp.Header{"Content-Type": {"application/json"}}, Body: `{"ok":true}`},
			Timings:  http.Timings{Total: d},
			Size:     11,
		},
	}
}

func sampleReport() *runner.Report {
	return &runner.Report{
		Started: 1_700_000_000_000,
		Ended:   1_700_000_000_250,
		Iterations: []*runner.Iteration{
			{Index: 0, Executed: []*runner.RunResult{
				executed("users", 200, 40*time.Millisecond),
				{Key: "login", Name: "login", Error: true, ErrorMessage: "connection refused"},
			}},
			{Index: 1, Executed: []*runner.RunResult{
				executed("users", 503, 60*time.Millisecond),
			}, Error: true, ErrorMessage: "aborted"},
		},
	}
}

func TestConsoleFormatter(t *testing.T) {
	var buf bytes.Buffer
	f := NewConsoleFormatter(WithWriter(&buf), WithNoColor(true), WithVerbose(true))
	f.FormatHeader("1.0.0")
	require.NoError(t, f.FormatReport(sampleReport()))
	f.FormatError(errors.New("boom"))

	out := buf.String()
	assert.Contains(t, out, "hitrun 1.0.0")
	assert.Contains(t, out, "Iteration 1")
	assert.Contains(t, out, "Iteration 2")
	assert.Contains(t, out, "✓ users 200 (40ms)")
	assert.Contains(t, out, "x login (connection refused)")
	assert.Contains(t, out, "GET https://api.test/users")
	assert.Contains(t, out, "aborted")
	assert.Contains(t, out, "2 succeeded, 1 failed, 3 total")
	assert.Contains(t, out, "Latency:")
	assert.Contains(t, out, "Time:       250ms")
	assert.Contains(t, out, "Error: boom")
}

func TestJSONFormatter(t *testing.T) {
	var buf bytes.Buffer
	f := NewJSONFormatter(JSONWithWriter(&buf), JSONWithResponses(true))
	f.FormatError(errors.New("env file missing"))
	require.NoError(t, f.FormatReport(sampleReport()))

	var out JSONOutput
	require.NoError(t, json.Unmarshal(buf.Bytes(), &out))
	assert.Equal(t, JSONSummary{Iterations: 2, Total: 3, Succeeded: 2, Failed: 1}, out.Summary)
	assert.Equal(t, float64(250), out.Duration)
	assert.Equal(t, []string{"env file missing"}, out.Errors)

	require.Len(t, out.Iterations, 2)
	first := out.Iterations[0].Requests
	require.Len(t, first, 2)
	assert.Equal(t, 200, first[0].Status)
	assert.Equal(t, "GET", first[0].Method)
	assert.Equal(t, float64(40), first[0].Duration)
	require.NotNil(t, first[0].Response)
	assert.Equal(t, "application/json", first[0].Response.Headers["Content-Type"])
	assert.Equal(t, "connection refused", first[1].Error)
	assert.Equal(t, "aborted", out.Iterations[1].Error)

	require.NotNil(t, out.Latency)
	assert.Equal(t, int64(3), out.Latency.Total)
}

func TestJUnitFormatter(t *testing.T) {
	var buf bytes.Buffer
	f := NewJUnitFormatter(JUnitWithWriter(&buf), JUnitWithName("shop"))
	require.NoError(t, f.FormatReport(sampleReport()))

	out := buf.String()
	assert.True(t, strings.HasPrefix(out, `<?xml version="1.0" encoding="UTF-8"?>`))

	var suites JUnitTestSuites
	require.NoError(t, xml.Unmarshal([]byte(out[strings.Index(out, "\n")+1:]), &suites))
	assert.Equal(t, "shop", suites.Name)
	assert.Equal(t, 4, suites.Tests)
	assert.Equal(t, 1, suites.Errors)
	assert.Equal(t, 1, suites.Failures)
	assert.Equal(t, 1, suites.Skipped)
	assert.InDelta(t, 0.25, suites.Time, 0.0001)

	require.Len(t, suites.TestSuites, 2)
	first := suites.TestSuites[0]
	assert.Equal(t, "iteration 1", first.Name)
	require.Len(t, first.TestCases, 2)
	assert.Nil(t, first.TestCases[0].Error)
	require.NotNil(t, first.TestCases[1].Error)
	assert.Equal(t, "connection refused", first.TestCases[1].Error.Message)

	second := suites.TestSuites[1]
	require.Len(t, second.TestCases, 2)
	require.NotNil(t, second.TestCases[0].Failure)
	assert.Equal(t, "ServerError", second.TestCases[0].Failure.Type)
	require.NotNil(t, second.TestCases[1].Skipped)
	assert.Equal(t, "aborted", second.TestCases[1].Skipped.Message)
}
