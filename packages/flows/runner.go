package flows

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/abdul-hamid-achik/hitrun/packages/cookies"
	"github.com/abdul-hamid-achik/hitrun/packages/core/env"
	"github.com/abdul-hamid-achik/hitrun/packages/core/model"
)

// Observer is told about every action the runner considers
type Observer interface {
	ActionSkipped(flow *model.Flow, action *model.Action)
	ActionExecuted(flow *model.Flow, action *model.Action)
}

// Runner executes flows against one exchange at a time. Variables and the
// jar are mutated in place and are not locked.
type Runner struct {
	jar       cookies.Jar
	variables env.Context
	logger    zerolog.Logger
	observer  Observer
}

type Option func(*Runner)

// WithJar gives cookie steps a jar to work on
func WithJar(jar cookies.Jar) Option {
	return func(r *Runner) {
		r.jar = jar
	}
}

// WithVariables gives variable steps a context to read and write
func WithVariables(vars env.Context) Option {
	return func(r *Runner) {
		r.variables = vars
	}
}

func WithLogger(logger zerolog.Logger) Option {
	return func(r *Runner) {
		r.logger = logger
	}
}

func WithObserver(o Observer) Option {
	return func(r *Runner) {
		r.observer = o
	}
}

func NewRunner(opts ...Option) *Runner {
	r := &Runner{
		logger: zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run executes the enabled flows of trigger in declaration order
func (r *Runner) Run(ctx context.Context, trigger model.Trigger, flows []model.Flow, ex Exchange) {
	for i := range flows {
		flow := &flows[i]
		if flow.Trigger != trigger || !flow.IsEnabled() {
			continue
		}
		for j := range flow.Actions {
			action := &flow.Actions[j]
			if !action.IsEnabled() {
				continue
			}
			if !evaluate(action.Condition, ex) {
				r.logger.Debug().Str("flow", flow.Name).Str("action", action.Name).Msg("action skipped")
				if r.observer != nil {
					r.observer.ActionSkipped(flow, action)
				}
				continue
			}
			r.runSteps(ctx, action.Steps, ex)
			if r.observer != nil {
				r.observer.ActionExecuted(flow, action)
			}
		}
	}
}

func (r *Runner) runSteps(ctx context.Context, steps model.Steps, ex Exchange) {
	var carried any
	for _, step := range steps {
		if step == nil || !step.IsEnabled() {
			carried = nil
			continue
		}
		carried = r.runStep(ctx, step, carried, ex)
	}
}

func (r *Runner) runStep(ctx context.Context, step model.Step, value any, ex Exchange) any {
	switch s := step.(type) {
	case *model.ReadDataStep:
		return r.readData(s, ex)
	case *model.SetDataStep:
		return setData(s)
	case *model.SetVariableStep:
		r.setVariable(s, value)
		return nil
	case *model.SetCookieStep:
		r.setCookie(ctx, s, value, ex)
		return nil
	case *model.DeleteCookieStep:
		r.deleteCookie(ctx, s, ex)
		return nil
	default:
		r.logger.Debug().Str("kind", string(step.Kind())).Msg("unknown step ignored")
		return nil
	}
}
