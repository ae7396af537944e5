package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"

	"github.com/abdul-hamid-achik/hitrun/packages/cookies"
	"github.com/abdul-hamid-achik/hitrun/packages/core/config"
	"github.com/abdul-hamid-achik/hitrun/packages/core/env"
	"github.com/abdul-hamid-achik/hitrun/packages/core/model"
	"github.com/abdul-hamid-achik/hitrun/packages/core/runner"
	"github.com/abdul-hamid-achik/hitrun/packages/notify"
	"github.com/abdul-hamid-achik/hitrun/packages/output"
	"github.com/abdul-hamid-achik/hitrun/packages/parallel"
)

var runCmd = &cobra.Command{
	Use:   "run <project>",
	Short: "Run the requests of a project file",
	Long: `Run the requests of a JSON or YAML project file.

Examples:
  hitrun run api.json
  hitrun run api.yaml --env staging
  hitrun run api.json --folder users --request "list*"
  hitrun run api.json --env-file .env --var token=abc
  hitrun run api.json -n 100 --parallel --cpus 4
  hitrun run api.json --cookie-jar cookies.db
  hitrun run api.json --wait-for http://localhost:3000/health --watch
  hitrun run api.json --notify-slack $SLACK_WEBHOOK --notify-on recovery`,
	Args: cobra.ExactArgs(1),
	RunE: runCommand,
}

const (
	// WatchDebounceDelay is the debounce delay for file watch events
	WatchDebounceDelay = 300 * time.Millisecond
)

var (
	envFlag          string
	envFileFlag      string
	varFlags         []string
	folderFlag       string
	requestFlags     []string
	ignoreFlags      []string
	recursiveFlag    bool
	iterationsFlag   int
	delayFlag        string
	rateLimitFlag    float64
	parallelFlag     bool
	cpusFlag         int
	cookieJarFlag    string
	noSystemVarsFlag bool
	verboseFlag      bool
	noColorFlag      bool
	outputFlag       string
	outputFileFlag   string
	timeoutFlag      string
	proxyFlag        string
	insecureFlag     bool
	watchFlag        bool
	waitForFlag      string
	waitTimeoutFlag  string
	notifySlackFlag  string
	notifyHookFlag   string
	notifyOnFlag     string
)

func init() {
	// Selection flags
	runCmd.Flags().StringVarP(&envFlag, "env", "e", getEnvString("HITRUN_ENV", ""), "Environment key, name or file (env: HITRUN_ENV)")
	runCmd.Flags().StringVar(&envFileFlag, "env-file", getEnvString("HITRUN_ENV_FILE", ""), "Path to .env file for variable interpolation (env: HITRUN_ENV_FILE)")
	runCmd.Flags().StringArrayVar(&varFlags, "var", nil, "Set a variable (name=value), may be repeated")
	runCmd.Flags().StringVarP(&folderFlag, "folder", "f", getEnvString("HITRUN_FOLDER", ""), "Run only the folder with this key or name (env: HITRUN_FOLDER)")
	runCmd.Flags().StringSliceVarP(&requestFlags, "request", "r", nil, "Run only requests matching key or name pattern")
	runCmd.Flags().StringSliceVar(&ignoreFlags, "ignore", nil, "Skip requests matching key or name pattern")
	runCmd.Flags().BoolVar(&recursiveFlag, "recursive", getEnvBool("HITRUN_RECURSIVE", false), "Include requests of nested folders (env: HITRUN_RECURSIVE)")

	// Execution flags
	runCmd.Flags().IntVarP(&iterationsFlag, "iterations", "n", getEnvInt("HITRUN_ITERATIONS", 0), "Number of iterations (env: HITRUN_ITERATIONS)")
	runCmd.Flags().StringVar(&delayFlag, "delay", getEnvString("HITRUN_DELAY", ""), "Delay between iterations (e.g., 500ms, 2s) (env: HITRUN_DELAY)")
	runCmd.Flags().Float64Var(&rateLimitFlag, "rate-limit", 0, "Maximum requests per second")
	runCmd.Flags().BoolVarP(&parallelFlag, "parallel", "p", getEnvBool("HITRUN_PARALLEL", false), "Distribute iterations over worker processes (env: HITRUN_PARALLEL)")
	runCmd.Flags().IntVar(&cpusFlag, "cpus", getEnvInt("HITRUN_CPUS", 0), "Number of parallel workers, defaults to the CPU count (env: HITRUN_CPUS)")
	runCmd.Flags().StringVar(&cookieJarFlag, "cookie-jar", getEnvString("HITRUN_COOKIE_JAR", ""), "Persist cookies in this SQLite file (env: HITRUN_COOKIE_JAR)")
	runCmd.Flags().BoolVar(&noSystemVarsFlag, "no-system-vars", false, "Do not expose OS environment variables to the project")
	runCmd.Flags().BoolVarP(&watchFlag, "watch", "w", false, "Watch the project for changes and re-run")
	runCmd.Flags().StringVar(&waitForFlag, "wait-for", getEnvString("HITRUN_WAIT_FOR", ""), "Wait until this URL answers 200 before running (env: HITRUN_WAIT_FOR)")
	runCmd.Flags().StringVar(&waitTimeoutFlag, "wait-timeout", "30s", "How long to wait for --wait-for")

	// Network flags
	runCmd.Flags().StringVar(&timeoutFlag, "timeout", getEnvString("HITRUN_TIMEOUT", ""), "Request timeout (e.g., 30s, 1m) (env: HITRUN_TIMEOUT)")
	runCmd.Flags().StringVar(&proxyFlag, "proxy", getEnvString("HITRUN_PROXY", ""), "Proxy URL for HTTP requests (env: HITRUN_PROXY)")
	runCmd.Flags().BoolVarP(&insecureFlag, "insecure", "k", getEnvBool("HITRUN_INSECURE", false), "Disable SSL certificate validation (env: HITRUN_INSECURE)")

	// Output flags
	runCmd.Flags().BoolVarP(&verboseFlag, "verbose", "v", false, "Show request details")
	runCmd.Flags().BoolVar(&noColorFlag, "no-color", getEnvBool("HITRUN_NO_COLOR", false), "Disable colored output (env: HITRUN_NO_COLOR)")
	runCmd.Flags().StringVarP(&outputFlag, "output", "o", getEnvString("HITRUN_OUTPUT", "console"), "Output format: console, json, junit (env: HITRUN_OUTPUT)")
	runCmd.Flags().StringVar(&outputFileFlag, "output-file", getEnvString("HITRUN_OUTPUT_FILE", ""), "Write output to file (default: stdout) (env: HITRUN_OUTPUT_FILE)")

	// Notification flags
	runCmd.Flags().StringVar(&notifySlackFlag, "notify-slack", getEnvString("HITRUN_NOTIFY_SLACK", ""), "Slack webhook URL to post the run summary to (env: HITRUN_NOTIFY_SLACK)")
	runCmd.Flags().StringVar(&notifyHookFlag, "notify-webhook", getEnvString("HITRUN_NOTIFY_WEBHOOK", ""), "URL to post the run summary to as JSON (env: HITRUN_NOTIFY_WEBHOOK)")
	runCmd.Flags().StringVar(&notifyOnFlag, "notify-on", getEnvString("HITRUN_NOTIFY_ON", ""), "When to notify: always, failure, success, recovery (env: HITRUN_NOTIFY_ON)")
}

func runCommand(cmd *cobra.Command, args []string) error {
	switch strings.ToLower(outputFlag) {
	case "console", "json", "junit":
	default:
		return withCode(ExitUsageError, fmt.Errorf("unknown output format %q", outputFlag))
	}

	out := cmd.OutOrStdout()
	if outputFileFlag != "" {
		f, err := os.Create(outputFileFlag)
		if err != nil {
			return withCode(ExitUsageError, fmt.Errorf("cannot create output file: %w", err))
		}
		defer f.Close()
		out = f
	}

	notifier, err := newNotifier()
	if err != nil {
		return withCode(ExitUsageError, err)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if waitForFlag != "" {
		timeout, err := time.ParseDuration(waitTimeoutFlag)
		if err != nil {
			return withCode(ExitUsageError, fmt.Errorf("invalid wait timeout %q: %w", waitTimeoutFlag, err))
		}
		logger.Info().Str("url", waitForFlag).Msg("waiting for service")
		if err := runner.WaitForService(ctx, runner.WaitConfig{URL: waitForFlag, Timeout: timeout}); err != nil {
			return withCode(ExitNetworkError, err)
		}
	}

	path := args[0]
	err = executeProject(ctx, cmd, out, path, notifier)
	if !watchFlag {
		return err
	}
	if err != nil && errorText(err) != "" {
		fmt.Fprintf(cmd.ErrOrStderr(), "Error: %v\n", err)
	}
	return watchProject(ctx, cmd, path, func() {
		if err := executeProject(ctx, cmd, out, path, notifier); err != nil && errorText(err) != "" {
			fmt.Fprintf(cmd.ErrOrStderr(), "Error: %v\n", err)
		}
	})
}

// executeProject loads, runs and reports a project once
func executeProject(ctx context.Context, cmd *cobra.Command, out io.Writer, path string, notifier *notify.Manager) error {
	project, err := model.LoadProject(path)
	if err != nil {
		return withCode(ExitParseError, err)
	}

	opts, err := buildOptions(cmd)
	if err != nil {
		return err
	}

	formatter := newFormatter(out, project.Info.Name)
	formatter.FormatHeader(version)

	var report *runner.Report
	if parallelFlag || (!cmd.Flags().Changed("parallel") && fileConfig != nil && fileConfig.GetParallel()) {
		report, err = runParallel(ctx, cmd, project, opts)
	} else {
		report, err = runSequential(ctx, project, opts)
	}
	if report != nil {
		sendNotifications(ctx, notifier, project, report)
	}

	if err != nil {
		aborted := errors.Is(err, parallel.ErrAborted) || errors.Is(err, context.Canceled)
		if aborted && report != nil {
			_ = formatter.FormatReport(report)
		}
		formatter.FormatError(err)

		var rerr *runner.Error
		switch {
		case errors.As(err, &rerr):
			return withCode(ExitConfigError, nil)
		case aborted:
			return withCode(ExitAborted, nil)
		default:
			return withCode(ExitRunFailure, nil)
		}
	}

	if err := formatter.FormatReport(report); err != nil {
		return fmt.Errorf("error writing output: %w", err)
	}
	if report.Failed() {
		return withCode(ExitRunFailure, nil)
	}
	return nil
}

// newNotifier builds the notifiers named by flags or the config file. It
// returns nil when none is configured.
func newNotifier() (*notify.Manager, error) {
	nc := config.NotifyConfig{}
	if fileConfig != nil && fileConfig.Notify != nil {
		nc = *fileConfig.Notify
	}
	if notifySlackFlag != "" {
		nc.Slack = notifySlackFlag
	}
	if notifyHookFlag != "" {
		nc.Webhook = notifyHookFlag
	}
	if notifyOnFlag != "" {
		nc.On = notifyOnFlag
	}

	on, err := notify.ParseNotifyOn(nc.On)
	if err != nil {
		return nil, err
	}

	var notifiers []notify.Notifier
	if nc.Slack != "" {
		notifiers = append(notifiers, notify.NewSlackNotifier(nc.Slack, notify.WithSlackChannel(nc.SlackChannel)))
	}
	if nc.Webhook != "" {
		notifiers = append(notifiers, notify.NewWebhookNotifier(nc.Webhook, nil))
	}
	if len(notifiers) == 0 {
		return nil, nil
	}
	return notify.NewManager(on, notifiers...), nil
}

// sendNotifications never fails the run, delivery errors are only logged
func sendNotifications(ctx context.Context, m *notify.Manager, project *model.Project, report *runner.Report) {
	if m == nil {
		return
	}
	name := project.Info.Name
	if name == "" {
		name = project.Key
	}
	if err := m.Notify(context.WithoutCancel(ctx), notify.FromReport(name, envFlag, report)); err != nil {
		logger.Warn().Err(err).Msg("failed to send notification")
	}
}

func newFormatter(w io.Writer, name string) output.Formatter {
	switch strings.ToLower(outputFlag) {
	case "json":
		return output.NewJSONFormatter(output.JSONWithWriter(w), output.JSONWithResponses(verboseFlag))
	case "junit":
		return output.NewJUnitFormatter(output.JUnitWithWriter(w), output.JUnitWithName(name))
	default: // "console"
		return output.NewConsoleFormatter(
			output.WithWriter(w),
			output.WithVerbose(verboseFlag),
			output.WithNoColor(noColorFlag || outputFileFlag != ""),
		)
	}
}

// buildOptions layers the config file, the environment and the flags
func buildOptions(cmd *cobra.Command) (*runner.Options, error) {
	cfg := fileConfig
	if cfg == nil {
		cfg = config.DefaultConfig()
	}

	opts := &runner.Options{
		Parent:          folderFlag,
		EnvironmentName: envFlag,
		Requests:        requestFlags,
		Ignore:          ignoreFlags,
		Recursive:       cfg.GetRecursive(),
		Iterations:      cfg.Iterations,
		IterationDelay:  time.Duration(cfg.IterationDelay) * time.Millisecond,
		RateLimit:       cfg.RateLimit,
		Defaults:        cfg.RequestDefaults(),
	}

	if recursiveFlag || cmd.Flags().Changed("recursive") {
		opts.Recursive = recursiveFlag
	}
	if iterationsFlag > 0 {
		opts.Iterations = iterationsFlag
	}
	if delayFlag != "" {
		d, err := time.ParseDuration(delayFlag)
		if err != nil {
			return nil, withCode(ExitUsageError, fmt.Errorf("invalid delay value %q: %w", delayFlag, err))
		}
		opts.IterationDelay = d
	}
	if rateLimitFlag > 0 {
		opts.RateLimit = rateLimitFlag
	}

	if timeoutFlag != "" {
		timeout, err := time.ParseDuration(timeoutFlag)
		if err != nil {
			return nil, withCode(ExitUsageError, fmt.Errorf("invalid timeout value %q: %w (use format like 30s, 1m, 500ms)", timeoutFlag, err))
		}
		opts.Defaults.Timeout = int(timeout.Milliseconds())
	}
	if proxyFlag != "" {
		opts.Defaults.Proxy = proxyFlag
	}
	if insecureFlag {
		opts.Defaults.ValidateCertificates = model.BoolPtr(false)
	}

	if cfg.GetSystemVariables() && !noSystemVarsFlag {
		opts.SystemVariables = &env.SystemVariables{All: true}
	}

	vars, err := variables()
	if err != nil {
		return nil, err
	}
	opts.Variables = vars
	return opts, nil
}

// variables merges the env file with --var flags, flags winning
func variables() (map[string]string, error) {
	vars := make(map[string]string)
	if envFileFlag != "" {
		fileVars, err := env.LoadDotEnv(envFileFlag)
		if err != nil {
			return nil, withCode(ExitConfigError, err)
		}
		for k, v := range fileVars {
			vars[k] = v
		}
	}
	for _, kv := range varFlags {
		name, value, ok := strings.Cut(kv, "=")
		if !ok || strings.TrimSpace(name) == "" {
			return nil, withCode(ExitUsageError, fmt.Errorf("invalid --var %q (use name=value)", kv))
		}
		vars[strings.TrimSpace(name)] = value
	}
	return vars, nil
}

func runSequential(ctx context.Context, project *model.Project, opts *runner.Options) (*runner.Report, error) {
	runnerOpts := []runner.RunnerOption{
		runner.WithLogger(logger),
		runner.WithObserver(progressObserver()),
	}

	if path := cookieJarPath(); path != "" {
		jar, err := cookies.OpenSQLiteJar(ctx, path, cookies.WithChangeListener(func(c cookies.Change) {
			logger.Debug().
				Str("cookie", c.Cookie.Name).
				Str("domain", c.Cookie.Domain).
				Bool("removed", c.Removed).
				Str("cause", string(c.Reason)).
				Msg("cookie changed")
		}))
		if err != nil {
			return nil, withCode(ExitConfigError, err)
		}
		defer jar.Close()
		runnerOpts = append(runnerOpts, runner.WithJar(jar))
	}

	return runner.NewProjectRunner(project, opts, runnerOpts...).Run(ctx)
}

func progressObserver() runner.Observer {
	return runner.Observer{
		OnIterationStart: func(index int) {
			logger.Info().Int("iteration", index+1).Msg("iteration started")
		},
		OnRequestStart: func(index int, req *model.Request) {
			logger.Debug().Int("iteration", index+1).Str("request", req.Name()).Msg("request started")
		},
		OnRequestEnd: func(index int, res *runner.RunResult) {
			ev := logger.Debug().Int("iteration", index+1).Str("request", res.Name)
			if res.Log != nil && res.Log.Response != nil {
				ev = ev.Int("status", res.Log.Response.StatusCode).Dur("duration", res.Log.Timings.Total)
			}
			if res.Error {
				ev = ev.Str("error", res.ErrorMessage)
			}
			ev.Msg("request finished")
		},
	}
}

// runParallel hands the iterations to worker processes running the hidden
// worker command. An interrupt aborts the pool.
func runParallel(ctx context.Context, cmd *cobra.Command, project *model.Project, opts *runner.Options) (*runner.Report, error) {
	if cookieJarPath() != "" {
		logger.Warn().Msg("the cookie jar is not shared with parallel workers")
	}
	// workers see the parent's variables, not their own environment
	if opts.SystemVariables.Enabled() {
		opts.SystemVariables = &env.SystemVariables{Values: opts.SystemVariables.Snapshot()}
	}

	spawner := &parallel.ProcessSpawner{
		Env:    workerEnv(),
		Stderr: cmd.ErrOrStderr(),
	}
	pool := parallel.New(project, opts,
		parallel.WithSpawner(spawner),
		parallel.WithCPUs(cpusFlag),
		parallel.WithLogger(logger),
		parallel.WithStatusListener(func(info parallel.WorkerInfo) {
			ev := logger.Info()
			if info.Status == parallel.StatusError {
				ev = logger.Warn()
			}
			ev.Int("worker", info.ID).
				Int("iterations", info.Iterations).
				Str("status", string(info.Status)).
				Str("message", info.Message).
				Msg("worker status")
		}),
	)

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			pool.Abort()
		case <-done:
		}
	}()

	return pool.Execute(context.WithoutCancel(ctx))
}

func workerEnv() []string {
	level := logLevelFlag
	if level == "" && fileConfig != nil && fileConfig.Log != nil {
		level = fileConfig.Log.Level
	}
	vars := []string{"HITRUN_LOG_FORMAT=json"}
	if level != "" {
		vars = append(vars, "HITRUN_LOG_LEVEL="+level)
	}
	return vars
}

func cookieJarPath() string {
	if cookieJarFlag != "" {
		return cookieJarFlag
	}
	if fileConfig != nil {
		return fileConfig.CookieJar
	}
	return ""
}

// watchProject re-runs after the project or env file changes until ctx is
// done
func watchProject(ctx context.Context, cmd *cobra.Command, path string, rerun func()) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create file watcher: %w", err)
	}
	defer watcher.Close()

	watched := make(map[string]bool)
	for _, file := range []string{path, envFileFlag} {
		if file == "" {
			continue
		}
		abs, err := filepath.Abs(file)
		if err != nil {
			return err
		}
		watched[abs] = true
		// editors replace files, so watch the directory
		if err := watcher.Add(filepath.Dir(abs)); err != nil {
			return fmt.Errorf("failed to watch %s: %w", file, err)
		}
	}

	fmt.Fprintf(cmd.OutOrStdout(), "\nWatching for changes... (press Ctrl+C to stop)\n\n")

	trigger := make(chan string, 1)
	var debounceTimer *time.Timer

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			abs, _ := filepath.Abs(event.Name)
			if !watched[abs] || !(event.Has(fsnotify.Write) || event.Has(fsnotify.Create)) {
				continue
			}
			// Debounce: reset timer on each event
			if debounceTimer != nil {
				debounceTimer.Stop()
			}
			name := event.Name
			debounceTimer = time.AfterFunc(WatchDebounceDelay, func() {
				select {
				case trigger <- name:
				default:
				}
			})

		case name := <-trigger:
			fmt.Fprintf(cmd.OutOrStdout(), "\n\nFile changed: %s\nRe-running...\n\n", name)
			rerun()
			fmt.Fprintf(cmd.OutOrStdout(), "\nWatching for changes... (press Ctrl+C to stop)\n")

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logger.Warn().Err(err).Msg("watcher error")
		}
	}
}

// errorText is the printable part of an error, empty for bare exit codes
func errorText(err error) string {
	var ee *exitError
	if errors.As(err, &ee) {
		if ee.err == nil {
			return ""
		}
		return ee.err.Error()
	}
	return err.Error()
}
