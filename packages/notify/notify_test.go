package notify

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/abdul-hamid-achik/hitrun/packages/core/runner"
)

type recorder struct {
	calls []*Summary
	err   error
}

func (r *recorder) Name() string { return "recorder" }

func (r *recorder) Notify(_ context.Context, s *Summary) error {
	r.calls = append(r.calls, s)
	return r.err
}

func passing() *Summary { return &Summary{Project: "api", Total: 2} }

func failing() *Summary {
	return &Summary{Project: "api", Total: 2, Failed: 1, Failures: []Failure{{Iteration: 1, Request: "login", Error: "boom"}}}
}

func TestManager_Policies(t *testing.T) {
	tests := []struct {
		on   NotifyOn
		runs []*Summary
		want int
	}{
		{NotifyAlways, []*Summary{passing(), failing()}, 2},
		{NotifyFailure, []*Summary{passing(), failing()}, 1},
		{NotifySuccess, []*Summary{passing(), failing()}, 1},
		{NotifyRecovery, []*Summary{passing(), failing(), failing(), passing(), passing()}, 3},
	}

	for _, tt := range tests {
		t.Run(string(tt.on), func(t *testing.T) {
			rec := &recorder{}
			m := NewManager(tt.on, rec)
			for _, s := range tt.runs {
				require.NoError(t, m.Notify(context.Background(), s))
			}
			assert.Len(t, rec.calls, tt.want)
		})
	}
}

func TestManager_RecoveryFlag(t *testing.T) {
	rec := &recorder{}
	m := NewManager(NotifyRecovery, rec)

	require.NoError(t, m.Notify(context.Background(), failing()))
	require.NoError(t, m.Notify(context.Background(), passing()))

	require.Len(t, rec.calls, 2)
	assert.False(t, rec.calls[0].Recovered)
	assert.True(t, rec.calls[1].Recovered)
}

func TestManager_JoinsErrors(t *testing.T) {
	m := NewManager(NotifyAlways, &recorder{err: errors.New("down")}, &recorder{})
	err := m.Notify(context.Background(), passing())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "recorder: down")
}

func TestParseNotifyOn(t *testing.T) {
	on, err := ParseNotifyOn("")
	require.NoError(t, err)
	assert.Equal(t, NotifyFailure, on)

	on, err = ParseNotifyOn("recovery")
	require.NoError(t, err)
	assert.Equal(t, NotifyRecovery, on)

	_, err = ParseNotifyOn("sometimes")
	assert.Error(t, err)
}

func TestFromReport(t *testing.T) {
	report := &runner.Report{
		Started: 1000,
		Ended:   1250,
		Iterations: []*runner.Iteration{
			{Index: 0, Executed: []*runner.RunResult{
				{Name: "users"},
				{Name: "login", Error: true, ErrorMessage: "connection refused"},
			}},
			{Index: 1, Executed: []*runner.RunResult{{Name: "users"}}, Error: true, ErrorMessage: "aborted"},
		},
	}

	s := FromReport("api", "dev", report)
	assert.Equal(t, 2, s.Iterations)
	assert.Equal(t, 3, s.Total)
	assert.Equal(t, 1, s.Failed)
	assert.Equal(t, int64(250), s.Duration.Milliseconds())
	assert.Equal(t, []Failure{
		{Iteration: 1, Request: "login", Error: "connection refused"},
		{Iteration: 2, Error: "aborted"},
	}, s.Failures)
	assert.False(t, s.Success())
}

func TestSlackNotifier(t *testing.T) {
	var got slackMessage
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	n := NewSlackNotifier(server.URL, WithSlackChannel("#ci"))
	require.NoError(t, n.Notify(context.Background(), failing()))

	assert.Equal(t, "#ci", got.Channel)
	assert.Equal(t, "hitrun", got.Username)
	require.Len(t, got.Attachments, 1)
	assert.Equal(t, "danger", got.Attachments[0].Color)
	assert.Contains(t, got.Attachments[0].Text, "`login` (iteration 1): boom")
}

func TestWebhookNotifier(t *testing.T) {
	var got Summary
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	n := NewWebhookNotifier(server.URL, server.Client())
	require.NoError(t, n.Notify(context.Background(), failing()))
	assert.Equal(t, "api", got.Project)
	assert.Equal(t, 1, got.Failed)
}

func TestWebhookNotifier_ErrorStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.Copy(io.Discard, r.Body)
		http.Error(w, "nope", http.StatusBadGateway)
	}))
	defer server.Close()

	err := NewWebhookNotifier(server.URL, nil).Notify(context.Background(), passing())
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "status 502"))
}
