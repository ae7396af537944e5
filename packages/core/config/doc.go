// Package config handles configuration loading and management for hitrun.
//
// It provides functionality for:
//   - Loading configuration from .hitrun.config.json or .hitrunrc files
//   - Default configuration values
//   - Merging file settings with command line overrides
package config
