package config

// DefaultConfig returns a configuration with default values
func DefaultConfig() *Config {
	return &Config{
		Timeout:              30000, // 30 seconds
		FollowRedirects:      BoolPtr(true),
		ValidateCertificates: BoolPtr(true),
		Headers:              BoolPtr(true),
		Iterations:           1,
		Parallel:             BoolPtr(false),
		Recursive:            BoolPtr(true),
		SystemVariables:      BoolPtr(true),
		Log: &LogConfig{
			Level:  "warn",
			Format: "console",
		},
	}
}

// IsDefault returns true if the config matches defaults
func (c *Config) IsDefault() bool {
	d := DefaultConfig()
	return c.Timeout == d.Timeout &&
		c.GetFollowRedirects() == d.GetFollowRedirects() &&
		c.GetValidateCertificates() == d.GetValidateCertificates() &&
		c.GetHeaders() == d.GetHeaders() &&
		c.Proxy == "" &&
		c.UserAgent == "" &&
		c.Accept == "" &&
		c.SentMessageLimit == 0 &&
		c.Iterations == d.Iterations &&
		c.GetParallel() == d.GetParallel() &&
		c.GetRecursive() == d.GetRecursive() &&
		c.IterationDelay == 0 &&
		c.RateLimit == 0 &&
		c.CookieJar == "" &&
		c.GetSystemVariables() == d.GetSystemVariables() &&
		(c.Log == nil || *c.Log == *d.Log) &&
		c.Notify == nil
}
