package runner

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/abdul-hamid-achik/hitrun/packages/cookies"
	"github.com/abdul-hamid-achik/hitrun/packages/core/env"
	"github.com/abdul-hamid-achik/hitrun/packages/core/model"
	"github.com/abdul-hamid-achik/hitrun/packages/http"
)

// BaseURIVariable holds the server URI of the selected environment
const BaseURIVariable = "baseUri"

// Options select what a project run executes. They travel to parallel
// workers as JSON.
type Options struct {
	// Parent is the key or name of the folder to run instead of the whole project
	Parent string `json:"parent,omitempty"`

	// Environment is used as is when set
	Environment *model.Environment `json:"environment,omitempty"`

	// EnvironmentName is a file path or an environment key or name
	EnvironmentName string `json:"environmentName,omitempty"`

	// Requests and Ignore hold request keys or name patterns
	Requests []string `json:"requests,omitempty"`
	Ignore   []string `json:"ignore,omitempty"`

	Recursive       bool                 `json:"recursive,omitempty"`
	Iterations      int                  `json:"iterations,omitempty"`
	IterationDelay  time.Duration        `json:"iterationDelay,omitempty"`
	RateLimit       float64              `json:"rateLimit,omitempty"` // requests per second
	Variables       map[string]string    `json:"variables,omitempty"`
	SystemVariables *env.SystemVariables `json:"systemVariables,omitempty"`
	Defaults        *model.RequestConfig `json:"defaults,omitempty"`
}

// RunResult is the outcome of one request of an iteration
type RunResult struct {
	Key          string             `json:"key"`
	Name         string             `json:"name"`
	Error        bool               `json:"error,omitempty"`
	ErrorMessage string             `json:"errorMessage,omitempty"`
	Log          *http.ExecutionLog `json:"log,omitempty"`
}

// Iteration is one pass over the selected requests
type Iteration struct {
	Index        int          `json:"index"`
	Executed     []*RunResult `json:"executed"`
	Error        bool         `json:"error,omitempty"`
	ErrorMessage string       `json:"errorMessage,omitempty"`
}

// Report is the result of a run. Started and Ended are epoch milliseconds.
type Report struct {
	Started    int64        `json:"started"`
	Ended      int64        `json:"ended"`
	Iterations []*Iteration `json:"iterations"`
}

// Counts returns the number of executed requests and of failed ones
func (r *Report) Counts() (total, failed int) {
	for _, it := range r.Iterations {
		for _, res := range it.Executed {
			total++
			if res.Error {
				failed++
			}
		}
	}
	return total, failed
}

// Failed reports whether any request or iteration failed
func (r *Report) Failed() bool {
	for _, it := range r.Iterations {
		if it.Error {
			return true
		}
		for _, res := range it.Executed {
			if res.Error {
				return true
			}
		}
	}
	return false
}

// Observer receives progress callbacks. Nil fields are skipped.
type Observer struct {
	OnIterationStart func(index int)
	OnRequestStart   func(index int, req *model.Request)
	OnRequestEnd     func(index int, result *RunResult)
}

// ProjectRunner runs the requests of a project or folder for a number of
// iterations. The jar is shared by all iterations of one runner.
type ProjectRunner struct {
	project   *model.Project
	opts      Options
	transport Transport
	jar       cookies.Jar
	resolver  *env.Resolver
	logger    zerolog.Logger
	observer  Observer
}

type RunnerOption func(*ProjectRunner)

func WithTransport(t Transport) RunnerOption {
	return func(r *ProjectRunner) {
		r.transport = t
	}
}

func WithJar(jar cookies.Jar) RunnerOption {
	return func(r *ProjectRunner) {
		r.jar = jar
	}
}

func WithResolver(resolver *env.Resolver) RunnerOption {
	return func(r *ProjectRunner) {
		r.resolver = resolver
	}
}

func WithLogger(logger zerolog.Logger) RunnerOption {
	return func(r *ProjectRunner) {
		r.logger = logger
	}
}

func WithObserver(o Observer) RunnerOption {
	return func(r *ProjectRunner) {
		r.observer = o
	}
}

func NewProjectRunner(project *model.Project, opts *Options, runnerOpts ...RunnerOption) *ProjectRunner {
	if opts == nil {
		opts = &Options{}
	}
	r := &ProjectRunner{
		project: project,
		opts:    *opts,
		logger:  zerolog.Nop(),
	}
	for _, opt := range runnerOpts {
		opt(r)
	}
	if r.transport == nil {
		r.transport = http.NewClient()
	}
	if r.jar == nil {
		r.jar = cookies.NewMemoryJar()
	}
	if r.resolver == nil {
		r.resolver = env.NewResolver()
		r.resolver.SetWarnFunc(func(format string, args ...any) {
			r.logger.Warn().Msgf(format, args...)
		})
	}
	return r
}

// Run executes every iteration. Configuration errors are returned as
// *Error before anything is sent. When ctx is cancelled the partial report
// is returned together with the context error.
func (r *ProjectRunner) Run(ctx context.Context) (*Report, error) {
	items, chain, err := r.scope()
	if err != nil {
		return nil, err
	}

	envs, err := r.environments(chain)
	if err != nil {
		return nil, err
	}

	requests := r.selectRequests(items)

	iterations := r.opts.Iterations
	if iterations <= 0 {
		iterations = 1
	}

	var limiter *rate.Limiter
	if r.opts.RateLimit > 0 {
		limiter = rate.NewLimiter(rate.Limit(r.opts.RateLimit), 1)
	}

	base := http.DefaultOptions()
	base.ApplyConfig(r.opts.Defaults)

	report := &Report{Started: time.Now().UnixMilli()}
	finish := func(err error) (*Report, error) {
		report.Ended = time.Now().UnixMilli()
		return report, err
	}

	for i := 0; i < iterations; i++ {
		if i > 0 && r.opts.IterationDelay > 0 {
			select {
			case <-ctx.Done():
				return finish(ctx.Err())
			case <-time.After(r.opts.IterationDelay):
			}
		}

		it := &Iteration{Index: i}
		report.Iterations = append(report.Iterations, it)
		if r.observer.OnIterationStart != nil {
			r.observer.OnIterationStart(i)
		}

		vars := r.buildContext(envs)
		rr := NewRequestRunner(r.transport,
			WithRequestJar(r.jar),
			WithRequestVariables(vars),
			WithRequestResolver(r.resolver),
			WithProject(r.project),
			WithBaseOptions(base),
			WithRequestLogger(r.logger),
		)

		for _, req := range requests {
			if err := ctx.Err(); err != nil {
				it.Error, it.ErrorMessage = true, "aborted"
				return finish(err)
			}
			if limiter != nil {
				if err := limiter.Wait(ctx); err != nil {
					it.Error, it.ErrorMessage = true, "aborted"
					return finish(ctx.Err())
				}
			}

			if r.observer.OnRequestStart != nil {
				r.observer.OnRequestStart(i, req)
			}
			result := &RunResult{Key: req.Key, Name: req.Name()}
			log, err := rr.Run(ctx, req)
			if err != nil {
				result.Error = true
				result.ErrorMessage = err.Error()
				r.logger.Debug().Err(err).Str("request", result.Name).Int("iteration", i).Msg("request failed")
			} else {
				result.Log = log
			}
			it.Executed = append(it.Executed, result)
			if r.observer.OnRequestEnd != nil {
				r.observer.OnRequestEnd(i, result)
			}
		}
	}

	return finish(nil)
}

// scope returns the items to run and the folder chain leading to them
func (r *ProjectRunner) scope() ([]*model.Item, []*model.Folder, error) {
	if r.opts.Parent == "" {
		return r.project.Items, nil, nil
	}
	folder, chain := r.project.FindFolder(r.opts.Parent)
	if folder == nil {
		return nil, nil, newError(CodeFolderNotFound, "folder %q not found", r.opts.Parent)
	}
	return folder.Items, chain, nil
}

// environments returns the environments in effect, lowest precedence first
func (r *ProjectRunner) environments(chain []*model.Folder) ([]*model.Environment, error) {
	if r.opts.Environment != nil {
		return []*model.Environment{r.opts.Environment}, nil
	}

	if name := r.opts.EnvironmentName; name != "" {
		if info, err := os.Stat(name); err == nil && !info.IsDir() {
			e, err := model.LoadEnvironment(name)
			if err != nil {
				return nil, &Error{Code: CodeEnvRead, Message: fmt.Sprintf("cannot read environment file %s", name), Err: err}
			}
			return []*model.Environment{e}, nil
		}
		for i := len(chain) - 1; i >= 0; i-- {
			if e := model.FindEnvironment(chain[i].Environments, name); e != nil {
				return []*model.Environment{e}, nil
			}
		}
		if e := model.FindEnvironment(r.project.Environments, name); e != nil {
			return []*model.Environment{e}, nil
		}
		return nil, newError(CodeEnvNotFound, "environment %q not found", name)
	}

	var envs []*model.Environment
	collect := func(list []*model.Environment) {
		for _, e := range list {
			if e.Encapsulated {
				envs = nil
			}
			envs = append(envs, e)
		}
	}
	collect(r.project.Environments)
	for _, f := range chain {
		collect(f.Environments)
	}
	return envs, nil
}

// buildContext creates a fresh variable context for one iteration
func (r *ProjectRunner) buildContext(envs []*model.Environment) env.Context {
	vars := make(env.Context)
	if r.opts.SystemVariables.Enabled() {
		vars.Merge(r.opts.SystemVariables.Snapshot())
	}

	baseURI := ""
	for _, e := range envs {
		for _, p := range e.Variables {
			if !p.IsEnabled() || p.Name == "" {
				continue
			}
			vars[p.Name] = r.resolver.EvaluateString(p.Value, vars)
		}
		if e.Server != nil && e.Server.URI != "" {
			baseURI = e.Server.URI
		}
	}
	if baseURI != "" {
		vars[BaseURIVariable] = r.resolver.EvaluateString(baseURI, vars)
	}

	vars.Merge(r.opts.Variables)
	return vars
}

// selectRequests returns the enabled requests in tree order after the
// include and exclude lists are applied
func (r *ProjectRunner) selectRequests(items []*model.Item) []*model.Request {
	var selected []*model.Request
	model.Walk(items, r.opts.Recursive, func(req *model.Request) {
		if !req.IsEnabled() {
			return
		}
		if len(r.opts.Requests) > 0 && !matchesAny(req, r.opts.Requests) {
			return
		}
		if matchesAny(req, r.opts.Ignore) {
			return
		}
		selected = append(selected, req)
	})
	return selected
}

func matchesAny(req *model.Request, patterns []string) bool {
	for _, p := range patterns {
		if p == "" {
			continue
		}
		if req.Key == p || matchesPattern(req.Info.Name, p) {
			return true
		}
	}
	return false
}

// matchesPattern supports a leading and/or trailing '*'
func matchesPattern(name, pattern string) bool {
	if pattern == "" {
		return true
	}

	if len(pattern) > 1 && pattern[0] == '*' && pattern[len(pattern)-1] == '*' {
		return strings.Contains(name, pattern[1:len(pattern)-1])
	}

	if pattern[0] == '*' {
		return strings.HasSuffix(name, pattern[1:])
	}

	if pattern[len(pattern)-1] == '*' {
		return strings.HasPrefix(name, pattern[:len(pattern)-1])
	}

	return name == pattern
}
