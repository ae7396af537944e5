// Package notify posts run summaries to chat and webhook endpoints.
package notify

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/abdul-hamid-achik/hitrun/packages/core/runner"
)

// NotifyOn specifies when to send notifications
type NotifyOn string

const (
	// NotifyAlways sends notifications for every run
	NotifyAlways NotifyOn = "always"
	// NotifyFailure sends notifications only when a run fails
	NotifyFailure NotifyOn = "failure"
	// NotifySuccess sends notifications only when a run succeeds
	NotifySuccess NotifyOn = "success"
	// NotifyRecovery sends notifications on failure and on the first success after one
	NotifyRecovery NotifyOn = "recovery"
)

// ParseNotifyOn validates a policy name. Empty means failure.
func ParseNotifyOn(s string) (NotifyOn, error) {
	switch NotifyOn(s) {
	case "":
		return NotifyFailure, nil
	case NotifyAlways, NotifyFailure, NotifySuccess, NotifyRecovery:
		return NotifyOn(s), nil
	}
	return "", fmt.Errorf("unknown notify policy %q (use always, failure, success or recovery)", s)
}

// Failure is one failed request or iteration
type Failure struct {
	Iteration int    `json:"iteration"`
	Request   string `json:"request,omitempty"`
	Error     string `json:"error"`
}

// Summary is what notifiers report about a run
type Summary struct {
	Project     string        `json:"project"`
	Environment string        `json:"environment,omitempty"`
	Iterations  int           `json:"iterations"`
	Total       int           `json:"total"`
	Failed      int           `json:"failed"`
	Duration    time.Duration `json:"duration"`
	Failures    []Failure     `json:"failures,omitempty"`
	Recovered   bool          `json:"recovered,omitempty"`
}

// Success reports whether nothing failed
func (s *Summary) Success() bool {
	return s.Failed == 0 && len(s.Failures) == 0
}

// FromReport summarises a run report
func FromReport(project, environment string, report *runner.Report) *Summary {
	s := &Summary{
		Project:     project,
		Environment: environment,
		Iterations:  len(report.Iterations),
		Duration:    time.Duration(report.Ended-report.Started) * time.Millisecond,
	}
	s.Total, s.Failed = report.Counts()

	for _, it := range report.Iterations {
		for _, res := range it.Executed {
			if res.Error {
				s.Failures = append(s.Failures, Failure{Iteration: it.Index + 1, Request: res.Name, Error: res.ErrorMessage})
			}
		}
		if it.Error {
			s.Failures = append(s.Failures, Failure{Iteration: it.Index + 1, Error: it.ErrorMessage})
		}
	}
	return s
}

// Notifier is the interface for notification services
type Notifier interface {
	Notify(ctx context.Context, summary *Summary) error
	Name() string
}

// Manager applies a policy to a set of notifiers. It remembers the outcome
// of the previous run for the recovery policy.
type Manager struct {
	mu        sync.Mutex
	notifiers []Notifier
	notifyOn  NotifyOn
	lastOK    bool
}

// NewManager creates a new notification manager
func NewManager(notifyOn NotifyOn, notifiers ...Notifier) *Manager {
	return &Manager{
		notifiers: notifiers,
		notifyOn:  notifyOn,
		lastOK:    true,
	}
}

// Len returns the number of notifiers
func (m *Manager) Len() int {
	return len(m.notifiers)
}

// Notify sends summary to every notifier if the policy asks for it. Errors
// of individual notifiers are joined.
func (m *Manager) Notify(ctx context.Context, summary *Summary) error {
	m.mu.Lock()
	ok := summary.Success()
	send := false
	switch m.notifyOn {
	case NotifyAlways:
		send = true
	case NotifyFailure:
		send = !ok
	case NotifySuccess:
		send = ok
	case NotifyRecovery:
		if ok && !m.lastOK {
			send = true
			summary.Recovered = true
		}
		send = send || !ok
	}
	m.lastOK = ok
	m.mu.Unlock()

	if !send {
		return nil
	}

	var errs []error
	for _, n := range m.notifiers {
		if err := n.Notify(ctx, summary); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", n.Name(), err))
		}
	}
	return errors.Join(errs...)
}
