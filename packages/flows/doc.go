// Package flows runs the automation attached to a request.
//
// A flow belongs to one trigger, the request phase (before the request is
// sent) or the response phase. Each enabled action of a flow is gated by
// its condition and then runs its steps in order. Steps thread one carried
// value: read-data and set-data produce it, set-variable and set-cookie
// consume it.
//
// Flows are best-effort. A step that cannot run (no cookie jar, no value,
// a bad URL) is skipped and logged at debug level; Run never fails.
package flows
