package output

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/fatih/color"

	"github.com/abdul-hamid-achik/hitrun/packages/core/runner"
	"github.com/abdul-hamid-achik/hitrun/packages/stats"
)

// formatValue truncates long values for display
func formatValue(v string, maxLen int) string {
	if len(v) > maxLen {
		return v[:maxLen] + "..."
	}
	return v
}

type ConsoleFormatter struct {
	writer  io.Writer
	verbose bool
	noColor bool
}

type ConsoleOption func(*ConsoleFormatter)

func NewConsoleFormatter(opts ...ConsoleOption) *ConsoleFormatter {
	f := &ConsoleFormatter{
		writer: os.Stdout,
	}
	for _, opt := range opts {
		opt(f)
	}
	if f.noColor {
		color.NoColor = true
	}
	return f
}

func WithWriter(w io.Writer) ConsoleOption {
	return func(f *ConsoleFormatter) {
		f.writer = w
	}
}

func WithVerbose(v bool) ConsoleOption {
	return func(f *ConsoleFormatter) {
		f.verbose = v
	}
}

func WithNoColor(nc bool) ConsoleOption {
	return func(f *ConsoleFormatter) {
		f.noColor = nc
	}
}

// FormatRequest prints one executed request. It is used both for the
// final report and for live progress.
func (f *ConsoleFormatter) FormatRequest(res *runner.RunResult) {
	green := color.New(color.FgGreen).SprintFunc()
	red := color.New(color.FgRed).SprintFunc()
	yellow := color.New(color.FgYellow).SprintFunc()
	cyan := color.New(color.FgCyan).SprintFunc()

	if res.Error {
		fmt.Fprintf(f.writer, "  %s %s %s\n", red("x"), res.Name, red("("+res.ErrorMessage+")"))
		return
	}
	if res.Log == nil || res.Log.Response == nil {
		fmt.Fprintf(f.writer, "  %s %s\n", yellow("-"), res.Name)
		return
	}

	resp := res.Log.Response
	status := green(resp.StatusCode)
	if resp.StatusCode >= 400 {
		status = red(resp.StatusCode)
	} else if resp.StatusCode >= 300 {
		status = yellow(resp.StatusCode)
	}

	fmt.Fprintf(f.writer, "  %s %s %s %s\n", green("✓"), res.Name, status,
		cyan(fmt.Sprintf("(%dms)", res.Log.Timings.Total.Milliseconds())))

	if !f.verbose {
		return
	}
	fmt.Fprintf(f.writer, "    %s %s\n", res.Log.Request.Method, res.Log.Request.URL)
	for _, rd := range res.Log.Redirects {
		fmt.Fprintf(f.writer, "    %s %d %s\n", yellow("→"), rd.StatusCode, rd.URL)
	}
	if resp.Body != "" {
		fmt.Fprintf(f.writer, "    Body: %s\n", formatValue(resp.Body, 200))
	}
}

func (f *ConsoleFormatter) FormatReport(report *runner.Report) error {
	bold := color.New(color.Bold).SprintFunc()
	green := color.New(color.FgGreen).SprintFunc()
	red := color.New(color.FgRed).SprintFunc()

	for _, it := range report.Iterations {
		fmt.Fprintf(f.writer, "\n%s\n", bold(fmt.Sprintf("Iteration %d", it.Index+1)))
		for _, res := range it.Executed {
			f.FormatRequest(res)
		}
		if it.Error {
			fmt.Fprintf(f.writer, "  %s\n", red(it.ErrorMessage))
		}
	}

	total, failed := report.Counts()
	fmt.Fprintf(f.writer, "\nRequests:   ")
	if passed := total - failed; passed > 0 {
		fmt.Fprintf(f.writer, "%s, ", green(fmt.Sprintf("%d succeeded", passed)))
	}
	if failed > 0 {
		fmt.Fprintf(f.writer, "%s, ", red(fmt.Sprintf("%d failed", failed)))
	}
	fmt.Fprintf(f.writer, "%d total\n", total)
	fmt.Fprintf(f.writer, "Iterations: %d\n", len(report.Iterations))

	summary := stats.FromReport(report)
	if summary.Total > summary.Errors {
		l := summary.Latency
		fmt.Fprintf(f.writer, "Latency:    min %s, p50 %s, p95 %s, p99 %s, max %s\n",
			round(l.Min), round(l.P50), round(l.P95), round(l.P99), round(l.Max))
	}
	fmt.Fprintf(f.writer, "Time:       %dms\n\n", summary.Duration.Milliseconds())
	return nil
}

func round(d time.Duration) time.Duration {
	if d > time.Second {
		return d.Round(time.Millisecond)
	}
	return d.Round(10 * time.Microsecond)
}

func (f *ConsoleFormatter) FormatError(err error) {
	red := color.New(color.FgRed).SprintFunc()
	fmt.Fprintf(f.writer, "%s %v\n", red("Error:"), err)
}

func (f *ConsoleFormatter) FormatHeader(version string) {
	bold := color.New(color.Bold).SprintFunc()
	fmt.Fprintf(f.writer, "%s %s\n", bold("hitrun"), version)
}
