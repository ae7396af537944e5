// Package cookies implements RFC 6265 cookie handling for hitrun.
//
// It provides:
//   - Set-Cookie header parsing with the real-world comma syntax
//   - Domain and path matching
//   - An in-memory jar with change records
//   - A SQLite-backed jar that persists cookies between runs
package cookies
