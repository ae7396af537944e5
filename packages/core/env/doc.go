// Package env handles variables and placeholder evaluation for hitrun.
//
// It provides functionality for:
//   - The variable Context shared by the stages of a run
//   - Placeholder interpolation using {{variable}} syntax
//   - Built-in function evaluation (uuid, timestamp, random, etc.)
//   - .env files and snapshots of the OS environment
package env
