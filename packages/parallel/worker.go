package parallel

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/rs/zerolog"

	"github.com/abdul-hamid-achik/hitrun/packages/core/runner"
)

type workerConfig struct {
	logger    zerolog.Logger
	transport runner.Transport
}

// WorkerOption configures ServeWorker
type WorkerOption func(*workerConfig)

func WithWorkerLogger(logger zerolog.Logger) WorkerOption {
	return func(c *workerConfig) {
		c.logger = logger
	}
}

// WithWorkerTransport replaces the HTTP client of the worker's runner
func WithWorkerTransport(t runner.Transport) WorkerOption {
	return func(c *workerConfig) {
		c.transport = t
	}
}

// ServeWorker runs one worker session: it announces itself, waits for a run
// command, runs the project and replies with the iterations or an error.
func ServeWorker(ctx context.Context, in io.Reader, out io.Writer, opts ...WorkerOption) error {
	cfg := &workerConfig{logger: zerolog.Nop()}
	for _, opt := range opts {
		opt(cfg)
	}

	enc := json.NewEncoder(out)
	dec := json.NewDecoder(in)

	if err := send(enc, CmdOnline, nil); err != nil {
		return err
	}

	var msg Message
	if err := dec.Decode(&msg); err != nil {
		if err == io.EOF {
			return nil
		}
		return fmt.Errorf("failed to read command: %w", err)
	}
	if msg.Cmd != CmdRun {
		return send(enc, CmdError, fmt.Sprintf("unexpected command %q", msg.Cmd))
	}

	var data RunData
	if err := json.Unmarshal(msg.Data, &data); err != nil {
		return send(enc, CmdError, fmt.Sprintf("invalid run command: %v", err))
	}
	if data.Project == nil {
		return send(enc, CmdError, "run command has no project")
	}

	options := data.Options
	options.Iterations = data.Iterations

	runnerOpts := []runner.RunnerOption{runner.WithLogger(cfg.logger)}
	if cfg.transport != nil {
		runnerOpts = append(runnerOpts, runner.WithTransport(cfg.transport))
	}

	cfg.logger.Debug().Int("iterations", data.Iterations).Msg("worker running")
	report, err := runner.NewProjectRunner(data.Project, &options, runnerOpts...).Run(ctx)
	if err != nil {
		return send(enc, CmdError, err.Error())
	}
	return send(enc, CmdResult, report.Iterations)
}

func send(enc *json.Encoder, cmd Command, data any) error {
	msg, err := newMessage(cmd, data)
	if err != nil {
		return err
	}
	if err := enc.Encode(msg); err != nil {
		return fmt.Errorf("failed to write %s message: %w", cmd, err)
	}
	return nil
}
