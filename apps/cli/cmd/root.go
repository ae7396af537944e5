package cmd

import (
	"errors"
	"fmt"
	"os"
	"strconv"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/abdul-hamid-achik/hitrun/packages/core/config"
	"github.com/abdul-hamid-achik/hitrun/packages/logging"
)

var (
	version   = "dev"
	buildTime = "unknown"
)

var (
	configFlag    string
	logLevelFlag  string
	logFormatFlag string
	logFileFlag   string

	// set by the root pre-run
	fileConfig *config.Config
	logger     = zerolog.Nop()
)

var rootCmd = &cobra.Command{
	Use:   "hitrun",
	Short: "Run HTTP request collections from the command line",
	Long: `hitrun executes the requests of a project file with environments,
cookies, authorization and request flows, sequentially or on a pool of
worker processes.`,
	SilenceUsage:      true,
	SilenceErrors:     true,
	PersistentPreRunE: setup,
}

// exitError carries a process exit code through cobra
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string {
	if e.err == nil {
		return fmt.Sprintf("exit status %d", e.code)
	}
	return e.err.Error()
}

func (e *exitError) Unwrap() error {
	return e.err
}

func withCode(code int, err error) error {
	return &exitError{code: code, err: err}
}

func Execute(v, bt string) {
	version = v
	buildTime = bt
	err := rootCmd.Execute()
	if err == nil {
		return
	}

	code := ExitUsageError
	var ee *exitError
	if errors.As(err, &ee) {
		code = ee.code
		err = ee.err
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	}
	os.Exit(code)
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configFlag, "config", getEnvString("HITRUN_CONFIG", ""), "Path to config file (env: HITRUN_CONFIG)")
	rootCmd.PersistentFlags().StringVar(&logLevelFlag, "log-level", getEnvString("HITRUN_LOG_LEVEL", ""), "Log level: debug, info, warn, error (env: HITRUN_LOG_LEVEL)")
	rootCmd.PersistentFlags().StringVar(&logFormatFlag, "log-format", getEnvString("HITRUN_LOG_FORMAT", ""), "Log format: console, json (env: HITRUN_LOG_FORMAT)")
	rootCmd.PersistentFlags().StringVar(&logFileFlag, "log-file", getEnvString("HITRUN_LOG_FILE", ""), "Also write logs to a rotated file (env: HITRUN_LOG_FILE)")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(workerCmd)
	rootCmd.AddCommand(cookiesCmd)
	rootCmd.AddCommand(validateCmd)
	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(initCmd)
}

// setup loads the config file and builds the logger. Flags override the
// file.
func setup(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadConfig(configFlag)
	if err != nil {
		return withCode(ExitConfigError, err)
	}
	fileConfig = cfg

	opts := logging.Options{Writer: cmd.ErrOrStderr()}
	if cfg.Log != nil {
		opts.Level = cfg.Log.Level
		opts.Format = cfg.Log.Format
		opts.File = cfg.Log.File
	}
	if logLevelFlag != "" {
		opts.Level = logLevelFlag
	}
	if logFormatFlag != "" {
		opts.Format = logFormatFlag
	}
	if logFileFlag != "" {
		opts.File = logFileFlag
	}

	l, err := logging.New(opts)
	if err != nil {
		return withCode(ExitUsageError, err)
	}
	logger = l
	return nil
}

// Environment variable helpers
func getEnvString(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvBool(key string, defaultVal bool) bool {
	if val := os.Getenv(key); val != "" {
		return val == "true" || val == "1" || val == "yes"
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			return i
		}
	}
	return defaultVal
}
