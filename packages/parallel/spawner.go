package parallel

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"

	"github.com/rs/zerolog"

	"github.com/abdul-hamid-achik/hitrun/packages/core/runner"
)

// Spawner starts workers
type Spawner interface {
	Spawn(ctx context.Context, id int) (*WorkerProcess, error)
}

// WorkerProcess is the orchestrator side of a running worker
type WorkerProcess struct {
	// In carries commands to the worker
	In io.WriteCloser
	// Out carries the worker's messages
	Out io.Reader

	kill func() error
	wait func() error
}

// NewWorkerProcess wraps the streams of a worker started by a custom Spawner
func NewWorkerProcess(in io.WriteCloser, out io.Reader, kill, wait func() error) *WorkerProcess {
	return &WorkerProcess{In: in, Out: out, kill: kill, wait: wait}
}

// Kill stops the worker
func (p *WorkerProcess) Kill() error {
	if p.kill == nil {
		return nil
	}
	return p.kill()
}

// Wait blocks until the worker has exited. Call it after Out is drained.
func (p *WorkerProcess) Wait() error {
	if p.wait == nil {
		return nil
	}
	return p.wait()
}

// ServeFunc is a worker body speaking the protocol on in and out
type ServeFunc func(ctx context.Context, in io.Reader, out io.Writer) error

// PipeProcess runs serve in a goroutine connected by in-memory pipes
func PipeProcess(ctx context.Context, serve ServeFunc) *WorkerProcess {
	ctx, cancel := context.WithCancel(ctx)
	cmdR, cmdW := io.Pipe()
	outR, outW := io.Pipe()
	done := make(chan error, 1)

	go func() {
		err := serve(ctx, cmdR, outW)
		_ = cmdR.Close()
		_ = outW.CloseWithError(err)
		done <- err
	}()

	var once sync.Once
	var result error
	return NewWorkerProcess(cmdW, outR,
		func() error {
			cancel()
			_ = cmdW.Close()
			_ = outR.Close()
			return nil
		},
		func() error {
			once.Do(func() {
				result = <-done
				cancel()
			})
			return result
		},
	)
}

// GoroutineSpawner runs workers in process
type GoroutineSpawner struct {
	Logger    zerolog.Logger
	Transport runner.Transport
}

func (s *GoroutineSpawner) Spawn(ctx context.Context, id int) (*WorkerProcess, error) {
	opts := []WorkerOption{WithWorkerLogger(s.Logger.With().Int("worker", id).Logger())}
	if s.Transport != nil {
		opts = append(opts, WithWorkerTransport(s.Transport))
	}
	return PipeProcess(ctx, func(ctx context.Context, in io.Reader, out io.Writer) error {
		return ServeWorker(ctx, in, out, opts...)
	}), nil
}

// ProcessSpawner starts each worker as a separate OS process
type ProcessSpawner struct {
	// Path defaults to the running executable
	Path string
	// Args default to the hidden worker command
	Args []string
	Env  []string
	// Stderr receives the worker's logs; defaults to os.Stderr
	Stderr io.Writer
}

func (s *ProcessSpawner) Spawn(ctx context.Context, id int) (*WorkerProcess, error) {
	path := s.Path
	if path == "" {
		exe, err := os.Executable()
		if err != nil {
			return nil, fmt.Errorf("failed to locate executable: %w", err)
		}
		path = exe
	}
	args := s.Args
	if len(args) == 0 {
		args = []string{"worker"}
	}

	cmd := exec.Command(path, args...)
	cmd.Env = append(os.Environ(), s.Env...)
	cmd.Env = append(cmd.Env, fmt.Sprintf("HITRUN_WORKER_ID=%d", id))
	cmd.Stderr = s.Stderr
	if cmd.Stderr == nil {
		cmd.Stderr = os.Stderr
	}

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to open worker stdin: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to open worker stdout: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("failed to start worker: %w", err)
	}

	var once sync.Once
	var result error
	return NewWorkerProcess(stdin, stdout,
		func() error {
			if cmd.Process == nil {
				return nil
			}
			return cmd.Process.Kill()
		},
		func() error {
			once.Do(func() {
				result = cmd.Wait()
			})
			return result
		},
	), nil
}
