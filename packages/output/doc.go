// Package output renders execution reports.
//
// Supported output formats:
//   - Console: Human-readable colored terminal output with a latency summary
//   - JSON: Machine-readable JSON output
//   - JUnit: JUnit XML format for CI integration
//
// Every formatter implements Formatter.
package output
