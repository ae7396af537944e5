package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/abdul-hamid-achik/hitrun/packages/core/model"
)

// Config represents the hitrun configuration
type Config struct {
	Timeout              int    `json:"timeout,omitempty"` // milliseconds
	FollowRedirects      *bool  `json:"followRedirects,omitempty"`
	ValidateCertificates *bool  `json:"validateCertificates,omitempty"`
	Proxy                string `json:"proxy,omitempty"`
	ProxyUsername        string `json:"proxyUsername,omitempty"`
	ProxyPassword        string `json:"proxyPassword,omitempty"`
	Headers              *bool  `json:"headers,omitempty"` // send default User-Agent and Accept
	UserAgent            string `json:"userAgent,omitempty"`
	Accept               string `json:"accept,omitempty"`
	SentMessageLimit     int    `json:"sentMessageLimit,omitempty"` // bytes

	Iterations      int     `json:"iterations,omitempty"`
	Parallel        *bool   `json:"parallel,omitempty"`
	Recursive       *bool   `json:"recursive,omitempty"`
	IterationDelay  int     `json:"iterationDelay,omitempty"` // milliseconds
	RateLimit       float64 `json:"rateLimit,omitempty"`      // requests per second
	CookieJar       string  `json:"cookieJar,omitempty"`      // SQLite file, in memory when empty
	SystemVariables *bool   `json:"systemVariables,omitempty"`

	Log    *LogConfig    `json:"log,omitempty"`
	Notify *NotifyConfig `json:"notify,omitempty"`
}

// NotifyConfig configures run notifications
type NotifyConfig struct {
	On           string `json:"on,omitempty"` // always, failure, success or recovery
	Slack        string `json:"slack,omitempty"`
	SlackChannel string `json:"slackChannel,omitempty"`
	Webhook      string `json:"webhook,omitempty"`
}

// LogConfig configures the diagnostic logger
type LogConfig struct {
	Level  string `json:"level,omitempty"`
	Format string `json:"format,omitempty"` // console or json
	File   string `json:"file,omitempty"`
}

// BoolPtr is a helper for literal *bool fields
func BoolPtr(b bool) *bool {
	return &b
}

// getBool returns the value of a bool pointer, or the default if nil
func getBool(b *bool, defaultVal bool) bool {
	if b == nil {
		return defaultVal
	}
	return *b
}

// GetFollowRedirects returns the follow redirects setting, defaulting to true
func (c *Config) GetFollowRedirects() bool {
	return getBool(c.FollowRedirects, true)
}

// GetValidateCertificates returns the certificate validation setting, defaulting to true
func (c *Config) GetValidateCertificates() bool {
	return getBool(c.ValidateCertificates, true)
}

// GetHeaders reports whether default headers are sent, defaulting to true
func (c *Config) GetHeaders() bool {
	return getBool(c.Headers, true)
}

// GetParallel returns the parallel setting, defaulting to false
func (c *Config) GetParallel() bool {
	return getBool(c.Parallel, false)
}

// GetRecursive returns the recursive setting, defaulting to true
func (c *Config) GetRecursive() bool {
	return getBool(c.Recursive, true)
}

// GetSystemVariables returns the system variables setting, defaulting to true
func (c *Config) GetSystemVariables() bool {
	return getBool(c.SystemVariables, true)
}

// RequestDefaults converts the transport settings into a request config
// layered under every request's own config
func (c *Config) RequestDefaults() *model.RequestConfig {
	follow := c.GetFollowRedirects()
	validate := c.GetValidateCertificates()
	headers := c.GetHeaders()
	return &model.RequestConfig{
		Timeout:              c.Timeout,
		FollowRedirects:      &follow,
		ValidateCertificates: &validate,
		DefaultHeaders:       &headers,
		DefaultUserAgent:     c.UserAgent,
		DefaultAccept:        c.Accept,
		Proxy:                c.Proxy,
		ProxyUsername:        c.ProxyUsername,
		ProxyPassword:        c.ProxyPassword,
		SentMessageLimit:     c.SentMessageLimit,
	}
}

// ConfigFilenames contains the possible config file names
var ConfigFilenames = []string{
	".hitrun.config.json",
	"hitrun.config.json",
	".hitrunrc",
	".hitrunrc.json",
}

// LoadConfig loads configuration from the specified path or searches for config files
func LoadConfig(path string) (*Config, error) {
	if path != "" {
		return loadConfigFromFile(path)
	}

	// Search for config file in current directory
	return FindAndLoadConfig(".")
}

// FindAndLoadConfig searches for a config file in the given directory
func FindAndLoadConfig(dir string) (*Config, error) {
	for _, filename := range ConfigFilenames {
		configPath := filepath.Join(dir, filename)
		if _, err := os.Stat(configPath); err == nil {
			return loadConfigFromFile(configPath)
		}
	}

	// Return defaults if no config file found
	return DefaultConfig(), nil
}

func loadConfigFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config %s: %w", path, err)
	}

	config := DefaultConfig()
	if err := json.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
	}

	return config, nil
}

// Merge merges another config into this one, with other taking precedence
func (c *Config) Merge(other *Config) *Config {
	if other == nil {
		return c
	}

	result := *c // Copy

	if other.Timeout > 0 {
		result.Timeout = other.Timeout
	}
	if other.Proxy != "" {
		result.Proxy = other.Proxy
		result.ProxyUsername = other.ProxyUsername
		result.ProxyPassword = other.ProxyPassword
	}
	if other.UserAgent != "" {
		result.UserAgent = other.UserAgent
	}
	if other.Accept != "" {
		result.Accept = other.Accept
	}
	if other.SentMessageLimit > 0 {
		result.SentMessageLimit = other.SentMessageLimit
	}
	if other.Iterations > 0 {
		result.Iterations = other.Iterations
	}
	if other.IterationDelay > 0 {
		result.IterationDelay = other.IterationDelay
	}
	if other.RateLimit > 0 {
		result.RateLimit = other.RateLimit
	}
	if other.CookieJar != "" {
		result.CookieJar = other.CookieJar
	}

	// Boolean flags - only override if explicitly set in other config
	if other.FollowRedirects != nil {
		result.FollowRedirects = other.FollowRedirects
	}
	if other.ValidateCertificates != nil {
		result.ValidateCertificates = other.ValidateCertificates
	}
	if other.Headers != nil {
		result.Headers = other.Headers
	}
	if other.Parallel != nil {
		result.Parallel = other.Parallel
	}
	if other.Recursive != nil {
		result.Recursive = other.Recursive
	}
	if other.SystemVariables != nil {
		result.SystemVariables = other.SystemVariables
	}

	if other.Log != nil {
		log := LogConfig{}
		if result.Log != nil {
			log = *result.Log
		}
		if other.Log.Level != "" {
			log.Level = other.Log.Level
		}
		if other.Log.Format != "" {
			log.Format = other.Log.Format
		}
		if other.Log.File != "" {
			log.File = other.Log.File
		}
		result.Log = &log
	}
	if other.Notify != nil {
		n := *other.Notify
		result.Notify = &n
	}

	return &result
}

// SaveConfig saves the configuration to a file
func (c *Config) SaveConfig(path string) error {
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}

	return os.WriteFile(path, data, 0644)
}
