// Package http is the network transport of hitrun.
//
// A Client sends one resolved Request with per-call Options and returns an
// ExecutionLog with the sent request, the final response, every followed
// redirect and httptrace timings. Transports are pooled per distinct set of
// settings (proxy, certificates, host mapping, redirect policy).
//
// Authorization kinds that need the network or the wire request are handled
// here: oauth2 token acquisition, AWS Signature Version 4 and HTTP Digest
// challenges. Static kinds (basic, bearer, api-key) are applied earlier by
// the request runner.
package http
