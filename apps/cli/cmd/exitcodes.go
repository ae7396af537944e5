package cmd

// Exit codes for hitrun CLI
const (
	// ExitSuccess indicates every request was executed
	ExitSuccess = 0

	// ExitRunFailure indicates one or more requests or iterations failed
	ExitRunFailure = 1

	// ExitParseError indicates a project or environment file could not be loaded
	ExitParseError = 2

	// ExitConfigError indicates a configuration error
	ExitConfigError = 3

	// ExitNetworkError indicates the service never became ready
	ExitNetworkError = 4

	// ExitAborted indicates the run was interrupted
	ExitAborted = 130

	// ExitUsageError indicates invalid CLI usage
	ExitUsageError = 64
)
