package output

import "github.com/abdul-hamid-achik/hitrun/packages/core/runner"

// Formatter renders a report
type Formatter interface {
	FormatHeader(version string)
	FormatReport(report *runner.Report) error
	FormatError(err error)
}
