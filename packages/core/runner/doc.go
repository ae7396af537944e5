// Package runner executes hitrun projects.
//
// RequestRunner runs the pipeline of one request: it resolves variables,
// applies authorization and jar cookies, runs request flows, sends the
// request through a Transport and then commits response cookies and runs
// response flows.
//
// ProjectRunner walks a project or folder, builds the variable context of
// every iteration from the environments in scope and records one RunResult
// per request. A failing request does not stop the iteration; configuration
// problems are reported as *Error before anything is sent.
package runner
