package parallel

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"runtime"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/abdul-hamid-achik/hitrun/packages/core/model"
	"github.com/abdul-hamid-achik/hitrun/packages/core/runner"
)

// ErrAborted is returned by Execute after Abort
var ErrAborted = errors.New("parallel run aborted")

// WorkerStatus is the lifecycle state of a worker
type WorkerStatus string

const (
	StatusInitializing WorkerStatus = "initializing"
	StatusReady        WorkerStatus = "ready"
	StatusRunning      WorkerStatus = "running"
	StatusFinished     WorkerStatus = "finished"
	StatusError        WorkerStatus = "error"
)

// WorkerInfo is a snapshot of one worker
type WorkerInfo struct {
	ID         int          `json:"id"`
	Online     bool         `json:"online"`
	Iterations int          `json:"iterations"`
	Status     WorkerStatus `json:"status"`
	Message    string       `json:"message,omitempty"`
}

func (w WorkerInfo) done() bool {
	return w.Status == StatusFinished || w.Status == StatusError
}

type worker struct {
	info       WorkerInfo
	process    *WorkerProcess
	iterations []*runner.Iteration
}

type event struct {
	id  int
	msg Message
	err error
}

// Runner runs the iterations of a project on a worker pool
type Runner struct {
	project   *model.Project
	opts      runner.Options
	spawner   Spawner
	cpus      int
	logger    zerolog.Logger
	listeners []func(WorkerInfo)

	mu      sync.Mutex
	workers []*worker

	abort     chan struct{}
	abortOnce sync.Once
}

type Option func(*Runner)

func WithSpawner(s Spawner) Option {
	return func(r *Runner) {
		r.spawner = s
	}
}

// WithCPUs caps the pool size. It defaults to the number of CPUs.
func WithCPUs(n int) Option {
	return func(r *Runner) {
		if n > 0 {
			r.cpus = n
		}
	}
}

func WithLogger(logger zerolog.Logger) Option {
	return func(r *Runner) {
		r.logger = logger
	}
}

// WithStatusListener registers a function called on every status change
func WithStatusListener(fn func(WorkerInfo)) Option {
	return func(r *Runner) {
		r.listeners = append(r.listeners, fn)
	}
}

func New(project *model.Project, opts *runner.Options, options ...Option) *Runner {
	if opts == nil {
		opts = &runner.Options{}
	}
	r := &Runner{
		project: project,
		opts:    *opts,
		cpus:    runtime.NumCPU(),
		logger:  zerolog.Nop(),
		abort:   make(chan struct{}),
	}
	for _, opt := range options {
		opt(r)
	}
	if r.spawner == nil {
		r.spawner = &GoroutineSpawner{Logger: r.logger}
	}
	return r
}

// Abort kills every worker that has not failed and makes Execute return
// ErrAborted
func (r *Runner) Abort() {
	r.abortOnce.Do(func() {
		close(r.abort)
	})
}

// Workers returns a snapshot of the pool
func (r *Runner) Workers() []WorkerInfo {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]WorkerInfo, len(r.workers))
	for i, w := range r.workers {
		out[i] = w.info
	}
	return out
}

// Execute spawns the pool, hands out the iterations and waits until every
// worker has finished or failed. Iterations keep their order within a
// worker; workers are concatenated by id.
func (r *Runner) Execute(ctx context.Context) (*runner.Report, error) {
	iterations := r.opts.Iterations
	if iterations <= 0 {
		iterations = 1
	}
	counts := distribute(iterations, r.cpus)
	started := time.Now().UnixMilli()

	events := make(chan event, len(counts)*4)
	stop := make(chan struct{})
	defer close(stop)

	r.mu.Lock()
	r.workers = make([]*worker, 0, len(counts))
	r.mu.Unlock()

	for id, n := range counts {
		w := &worker{info: WorkerInfo{ID: id, Iterations: n, Status: StatusInitializing}}
		r.mu.Lock()
		r.workers = append(r.workers, w)
		r.mu.Unlock()
		r.notify(w.info)

		p, err := r.spawner.Spawn(ctx, id)
		if err != nil {
			r.killAll(false)
			return nil, fmt.Errorf("failed to spawn worker %d: %w", id, err)
		}
		w.process = p
		go readMessages(id, p, events, stop)
	}

	r.logger.Debug().Int("workers", len(counts)).Int("iterations", iterations).Msg("pool started")

	for !r.complete() {
		select {
		case <-r.abort:
			r.killAll(true)
			return nil, ErrAborted
		case <-ctx.Done():
			r.killAll(false)
			return nil, ctx.Err()
		case ev := <-events:
			r.handle(ev)
		}
	}

	return r.collect(started)
}

func readMessages(id int, p *WorkerProcess, events chan<- event, stop <-chan struct{}) {
	dec := json.NewDecoder(p.Out)
	for {
		var msg Message
		if err := dec.Decode(&msg); err != nil {
			if werr := p.Wait(); werr != nil {
				err = werr
			}
			select {
			case events <- event{id: id, err: err}:
			case <-stop:
			}
			return
		}
		select {
		case events <- event{id: id, msg: msg}:
		case <-stop:
			return
		}
	}
}

func (r *Runner) handle(ev event) {
	w := r.workers[ev.id]
	if w.info.done() {
		return
	}

	if ev.err != nil {
		r.setStatus(w, StatusError, fmt.Sprintf("worker exited: %v", ev.err))
		return
	}

	switch ev.msg.Cmd {
	case CmdOnline:
		r.mu.Lock()
		w.info.Online = true
		r.mu.Unlock()
		r.setStatus(w, StatusReady, "")

		msg, err := newMessage(CmdRun, RunData{Project: r.project, Iterations: w.info.Iterations, Options: r.opts})
		if err == nil {
			err = json.NewEncoder(w.process.In).Encode(msg)
		}
		if err != nil {
			r.setStatus(w, StatusError, fmt.Sprintf("failed to send run command: %v", err))
			_ = w.process.Kill()
			return
		}
		r.setStatus(w, StatusRunning, "")
	case CmdResult:
		var its []*runner.Iteration
		if err := json.Unmarshal(ev.msg.Data, &its); err != nil {
			r.setStatus(w, StatusError, fmt.Sprintf("invalid result: %v", err))
			return
		}
		w.iterations = its
		_ = w.process.In.Close()
		r.setStatus(w, StatusFinished, "")
	case CmdError:
		r.setStatus(w, StatusError, ev.msg.errorText())
		_ = w.process.In.Close()
	default:
		r.logger.Debug().Int("worker", ev.id).Str("cmd", string(ev.msg.Cmd)).Msg("unknown worker message")
	}
}

func (r *Runner) setStatus(w *worker, status WorkerStatus, message string) {
	r.mu.Lock()
	w.info.Status = status
	w.info.Message = message
	info := w.info
	r.mu.Unlock()

	r.logger.Debug().Int("worker", info.ID).Str("status", string(status)).Str("message", message).Msg("worker status")
	r.notify(info)
}

func (r *Runner) notify(info WorkerInfo) {
	for _, fn := range r.listeners {
		fn(info)
	}
}

func (r *Runner) complete() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, w := range r.workers {
		if !w.info.done() {
			return false
		}
	}
	return true
}

// killAll stops the spawned workers. With skipFailed, workers already in
// the error state are left alone.
func (r *Runner) killAll(skipFailed bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, w := range r.workers {
		if w.process == nil {
			continue
		}
		if skipFailed && w.info.Status == StatusError {
			continue
		}
		_ = w.process.Kill()
	}
}

func (r *Runner) collect(started int64) (*runner.Report, error) {
	report := &runner.Report{Started: started}
	var errs []error
	for _, w := range r.workers {
		if w.info.Status == StatusError {
			errs = append(errs, fmt.Errorf("worker %d: %s", w.info.ID, w.info.Message))
			continue
		}
		for _, it := range w.iterations {
			it.Index = len(report.Iterations)
			report.Iterations = append(report.Iterations, it)
		}
	}
	report.Ended = time.Now().UnixMilli()

	if len(errs) == len(r.workers) {
		return nil, errors.Join(errs...)
	}
	for _, err := range errs {
		r.logger.Warn().Err(err).Msg("worker failed")
	}
	return report, nil
}

// distribute gives every worker of a min(iterations, cpus) pool one
// iteration and deals the rest round-robin
func distribute(iterations, cpus int) []int {
	if iterations <= 0 {
		return nil
	}
	if cpus < 1 {
		cpus = 1
	}
	pool := iterations
	if cpus < pool {
		pool = cpus
	}

	counts := make([]int, pool)
	for i := range counts {
		counts[i] = 1
	}
	for i, rest := 0, iterations-pool; rest > 0; i, rest = i+1, rest-1 {
		counts[i%pool]++
	}
	return counts
}
