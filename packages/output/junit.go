package output

import (
	"encoding/xml"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/abdul-hamid-achik/hitrun/packages/core/runner"
)

// JUnit XML structures

// JUnitTestSuites is the root element
type JUnitTestSuites struct {
	XMLName    xml.Name         `xml:"testsuites"`
	Name       string           `xml:"name,attr,omitempty"`
	Tests      int              `xml:"tests,attr"`
	Failures   int              `xml:"failures,attr"`
	Errors     int              `xml:"errors,attr"`
	Skipped    int              `xml:"skipped,attr"`
	Time       float64          `xml:"time,attr"`
	Timestamp  string           `xml:"timestamp,attr,omitempty"`
	TestSuites []JUnitTestSuite `xml:"testsuite"`
}

// JUnitTestSuite represents a test suite
type JUnitTestSuite struct {
	XMLName   xml.Name        `xml:"testsuite"`
	Name      string          `xml:"name,attr"`
	Tests     int             `xml:"tests,attr"`
	Failures  int             `xml:"failures,attr"`
	Errors    int             `xml:"errors,attr"`
	Skipped   int             `xml:"skipped,attr"`
	Time      float64         `xml:"time,attr"`
	Timestamp string          `xml:"timestamp,attr,omitempty"`
	TestCases []JUnitTestCase `xml:"testcase"`
}

// JUnitTestCase represents a single test case
type JUnitTestCase struct {
	XMLName   xml.Name      `xml:"testcase"`
	Name      string        `xml:"name,attr"`
	ClassName string        `xml:"classname,attr"`
	Time      float64       `xml:"time,attr"`
	Failure   *JUnitFailure `xml:"failure,omitempty"`
	Error     *JUnitError   `xml:"error,omitempty"`
	Skipped   *JUnitSkipped `xml:"skipped,omitempty"`
}

// JUnitFailure represents a test failure
type JUnitFailure struct {
	Message string `xml:"message,attr,omitempty"`
	Type    string `xml:"type,attr,omitempty"`
	Content string `xml:",chardata"`
}

// JUnitError represents a test error
type JUnitError struct {
	Message string `xml:"message,attr,omitempty"`
	Type    string `xml:"type,attr,omitempty"`
	Content string `xml:",chardata"`
}

// JUnitSkipped represents a skipped test
type JUnitSkipped struct {
	Message string `xml:"message,attr,omitempty"`
}

// JUnitFormatter formats reports as JUnit XML. Every iteration becomes a
// suite and every executed request a test case.
type JUnitFormatter struct {
	writer io.Writer
	name   string
	errors []string
}

type JUnitOption func(*JUnitFormatter)

func NewJUnitFormatter(opts ...JUnitOption) *JUnitFormatter {
	f := &JUnitFormatter{
		writer: os.Stdout,
		name:   "hitrun",
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

func JUnitWithWriter(w io.Writer) JUnitOption {
	return func(f *JUnitFormatter) {
		f.writer = w
	}
}

// JUnitWithName sets the name of the root element, usually the project
func JUnitWithName(name string) JUnitOption {
	return func(f *JUnitFormatter) {
		if name != "" {
			f.name = name
		}
	}
}

func (f *JUnitFormatter) FormatReport(report *runner.Report) error {
	timestamp := time.UnixMilli(report.Started).Format(time.RFC3339)
	suites := JUnitTestSuites{
		Name:      f.name,
		Time:      float64(report.Ended-report.Started) / 1000,
		Timestamp: timestamp,
	}

	for _, it := range report.Iterations {
		suite := JUnitTestSuite{
			Name:      fmt.Sprintf("iteration %d", it.Index+1),
			Timestamp: timestamp,
			TestCases: make([]JUnitTestCase, 0, len(it.Executed)),
		}

		for _, res := range it.Executed {
			tc := JUnitTestCase{
				Name:      res.Name,
				ClassName: f.name,
			}
			if res.Log != nil {
				tc.Time = res.Log.Timings.Total.Seconds()
			}
			suite.Time += tc.Time

			if res.Error {
				suite.Errors++
				tc.Error = &JUnitError{
					Message: res.ErrorMessage,
					Type:    "RequestError",
				}
			} else if res.Log != nil && res.Log.Response != nil && res.Log.Response.StatusCode >= 500 {
				suite.Failures++
				tc.Failure = &JUnitFailure{
					Message: res.Log.Response.Status,
					Type:    "ServerError",
					Content: fmt.Sprintf("%s %s returned %d", res.Log.Request.Method, res.Log.Request.URL, res.Log.Response.StatusCode),
				}
			}

			suite.TestCases = append(suite.TestCases, tc)
		}

		if it.Error {
			suite.Skipped++
			suite.TestCases = append(suite.TestCases, JUnitTestCase{
				Name:      "remaining requests",
				ClassName: f.name,
				Skipped:   &JUnitSkipped{Message: it.ErrorMessage},
			})
		}

		suite.Tests = len(suite.TestCases)
		suites.Tests += suite.Tests
		suites.Failures += suite.Failures
		suites.Errors += suite.Errors
		suites.Skipped += suite.Skipped
		suites.TestSuites = append(suites.TestSuites, suite)
	}

	if len(f.errors) > 0 {
		suite := JUnitTestSuite{Name: "errors", Tests: len(f.errors), Errors: len(f.errors), Timestamp: timestamp}
		for _, msg := range f.errors {
			suite.TestCases = append(suite.TestCases, JUnitTestCase{
				Name:      "run",
				ClassName: f.name,
				Error:     &JUnitError{Message: msg, Type: "Error"},
			})
		}
		suites.Tests += suite.Tests
		suites.Errors += suite.Errors
		suites.TestSuites = append(suites.TestSuites, suite)
	}

	fmt.Fprintf(f.writer, "<?xml version=\"1.0\" encoding=\"UTF-8\"?>\n")
	encoder := xml.NewEncoder(f.writer)
	encoder.Indent("", "  ")
	if err := encoder.Encode(suites); err != nil {
		return err
	}
	_, err := fmt.Fprintln(f.writer)
	return err
}

// FormatError records the error as a test case of the next report
func (f *JUnitFormatter) FormatError(err error) {
	f.errors = append(f.errors, err.Error())
}

func (f *JUnitFormatter) FormatHeader(version string) {
	// No header needed for JUnit XML
}
