package runner

import (
	"bytes"
	"context"
	"errors"
	nethttp "net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/abdul-hamid-achik/hitrun/packages/core/env"
	"github.com/abdul-hamid-achik/hitrun/packages/core/model"
)

func request(key, name, url string) *model.Item {
	return &model.Item{Request: &model.Request{Key: key, Info: model.Info{Name: name}, Method: "GET", URL: url}}
}

func folder(key, name string, envs []*model.Environment, items ...*model.Item) *model.Item {
	return &model.Item{Folder: &model.Folder{Key: key, Info: model.Info{Name: name}, Items: items, Environments: envs}}
}

func environment(key, name string, vars ...string) *model.Environment {
	e := &model.Environment{Key: key, Info: model.Info{Name: name}}
	for i := 0; i+1 < len(vars); i += 2 {
		e.Variables = append(e.Variables, model.Property{Name: vars[i], Value: vars[i+1]})
	}
	return e
}

func TestProjectRunner_FailingRequestIsRecorded(t *testing.T) {
	server := httptest.NewServer(nethttp.HandlerFunc(func(w nethttp.ResponseWriter, r *nethttp.Request) {
		_, _ = w.Write([]byte("ok"))
	}))
	defer server.Close()

	dead := httptest.NewServer(nethttp.NotFoundHandler())
	deadURL := dead.URL
	dead.Close()

	project := &model.Project{Items: []*model.Item{
		folder("f1", "api", nil,
			request("r1", "works", server.URL+"/ok"),
			request("r2", "fails", deadURL+"/down"),
		),
	}}

	report, err := NewProjectRunner(project, &Options{Parent: "api"}).Run(context.Background())
	require.NoError(t, err)
	require.Len(t, report.Iterations, 1)

	executed := report.Iterations[0].Executed
	require.Len(t, executed, 2)
	assert.False(t, executed[0].Error)
	require.NotNil(t, executed[0].Log)
	assert.Equal(t, 200, executed[0].Log.Response.StatusCode)
	assert.True(t, executed[1].Error)
	assert.NotEmpty(t, executed[1].ErrorMessage)

	total, failed := report.Counts()
	assert.Equal(t, 2, total)
	assert.Equal(t, 1, failed)
	assert.True(t, report.Failed())
	assert.GreaterOrEqual(t, report.Ended, report.Started)
}

func TestProjectRunner_FolderNotFound(t *testing.T) {
	_, err := NewProjectRunner(&model.Project{}, &Options{Parent: "missing"}, WithTransport(&fakeTransport{})).Run(context.Background())

	var rerr *Error
	require.True(t, errors.As(err, &rerr))
	assert.Equal(t, CodeFolderNotFound, rerr.Code)
}

func TestProjectRunner_EnvironmentNotFound(t *testing.T) {
	ft := &fakeTransport{}
	project := &model.Project{Items: []*model.Item{request("r1", "one", "https://api.test/")}}
	_, err := NewProjectRunner(project, &Options{EnvironmentName: "staging"}, WithTransport(ft)).Run(context.Background())

	var rerr *Error
	require.True(t, errors.As(err, &rerr))
	assert.Equal(t, CodeEnvNotFound, rerr.Code)
	assert.Empty(t, ft.sent, "configuration errors happen before any request")
}

func TestProjectRunner_EnvironmentResolution(t *testing.T) {
	project := &model.Project{
		Environments: []*model.Environment{
			environment("e-dev", "dev", "host", "dev.test", "shared", "project"),
			environment("e-prod", "prod", "host", "prod.test"),
		},
		Items: []*model.Item{
			folder("f1", "team", []*model.Environment{environment("e-team", "dev", "host", "team.test")},
				request("r1", "one", "https://{{host}}/"),
			),
		},
	}

	run := func(opts *Options) string {
		ft := &fakeTransport{}
		_, err := NewProjectRunner(project, opts, WithTransport(ft)).Run(context.Background())
		require.NoError(t, err)
		require.Len(t, ft.sent, 1)
		return ft.sent[0].URL
	}

	t.Run("by name in project", func(t *testing.T) {
		assert.Equal(t, "https://prod.test/", run(&Options{EnvironmentName: "prod", Recursive: true}))
	})
	t.Run("by key", func(t *testing.T) {
		assert.Equal(t, "https://dev.test/", run(&Options{EnvironmentName: "e-dev", Recursive: true}))
	})
	t.Run("folder environment wins in folder scope", func(t *testing.T) {
		assert.Equal(t, "https://team.test/", run(&Options{Parent: "f1", EnvironmentName: "dev"}))
	})
	t.Run("explicit environment", func(t *testing.T) {
		e := environment("x", "x", "host", "explicit.test")
		assert.Equal(t, "https://explicit.test/", run(&Options{Environment: e, Recursive: true}))
	})
	t.Run("all environments in scope", func(t *testing.T) {
		assert.Equal(t, "https://team.test/", run(&Options{Parent: "team"}))
	})
	t.Run("environment file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "env.json")
		require.NoError(t, os.WriteFile(path, []byte(`{"key":"file","info":{"name":"file"},"variables":[{"name":"host","value":"file.test"}]}`), 0644))
		assert.Equal(t, "https://file.test/", run(&Options{EnvironmentName: path, Recursive: true}))
	})
}

func TestProjectRunner_EnvironmentFileUnreadable(t *testing.T) {
	path := filepath.Join(t.TempDir(), "env.json")
	require.NoError(t, os.WriteFile(path, []byte(`{not json`), 0644))

	_, err := NewProjectRunner(&model.Project{}, &Options{EnvironmentName: path}, WithTransport(&fakeTransport{})).Run(context.Background())
	var rerr *Error
	require.True(t, errors.As(err, &rerr))
	assert.Equal(t, CodeEnvRead, rerr.Code)
}

func TestProjectRunner_EncapsulatedEnvironment(t *testing.T) {
	sealed := environment("e2", "sealed", "b", "2")
	sealed.Encapsulated = true
	project := &model.Project{
		Environments: []*model.Environment{environment("e1", "outer", "a", "1")},
		Items: []*model.Item{
			folder("f1", "inner", []*model.Environment{sealed},
				request("r1", "one", "https://api.test/?a={{a}}&b={{b}}"),
			),
		},
	}

	ft := &fakeTransport{}
	_, err := NewProjectRunner(project, &Options{Parent: "f1"}, WithTransport(ft)).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "https://api.test/?a={{a}}&b=2", ft.sent[0].URL)
}

func TestProjectRunner_ContextPrecedence(t *testing.T) {
	t.Setenv("HITRUN_TEST_REGION", "eu")

	e := environment("e1", "dev", "region", "{{HITRUN_TEST_REGION}}-1", "path", "{{region}}/v1", "user", "env")
	e.Server = &model.Server{URI: "https://{{region}}.api.test"}
	project := &model.Project{
		Environments: []*model.Environment{e},
		Items:        []*model.Item{request("r1", "one", "{{baseUri}}/{{path}}?u={{user}}")},
	}

	ft := &fakeTransport{}
	opts := &Options{
		EnvironmentName: "dev",
		Variables:       map[string]string{"user": "override"},
		SystemVariables: &env.SystemVariables{Names: []string{"HITRUN_TEST_*"}},
	}
	_, err := NewProjectRunner(project, opts, WithTransport(ft)).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "https://eu-1.api.test/eu-1/v1?u=override", ft.sent[0].URL)
}

func TestProjectRunner_Selection(t *testing.T) {
	disabled := request("r4", "disabled", "https://api.test/4")
	disabled.Request.Config = &model.RequestConfig{Enabled: model.BoolPtr(false)}

	project := &model.Project{Items: []*model.Item{
		request("r1", "list users", "https://api.test/1"),
		folder("f1", "nested", nil,
			request("r2", "get user", "https://api.test/2"),
		),
		request("r3", "delete user", "https://api.test/3"),
		disabled,
	}}

	names := func(opts *Options) []string {
		var seen []string
		obs := Observer{OnRequestStart: func(_ int, req *model.Request) { seen = append(seen, req.Key) }}
		_, err := NewProjectRunner(project, opts, WithTransport(&fakeTransport{}), WithObserver(obs)).Run(context.Background())
		require.NoError(t, err)
		return seen
	}

	assert.Equal(t, []string{"r1", "r3"}, names(&Options{}))
	assert.Equal(t, []string{"r1", "r2", "r3"}, names(&Options{Recursive: true}))
	assert.Equal(t, []string{"r2", "r3"}, names(&Options{Recursive: true, Requests: []string{"r2", "delete*"}}))
	assert.Equal(t, []string{"r2"}, names(&Options{Recursive: true, Ignore: []string{"*users"}, Requests: []string{"r1", "r2"}}))
	assert.Equal(t, []string{"r2"}, names(&Options{Recursive: true, Ignore: []string{"* users", "r3"}}))
}

func TestProjectRunner_IterationsShareJar(t *testing.T) {
	var cookieHeaders []string
	server := httptest.NewServer(nethttp.HandlerFunc(func(w nethttp.ResponseWriter, r *nethttp.Request) {
		cookieHeaders = append(cookieHeaders, r.Header.Get("Cookie"))
		nethttp.SetCookie(w, &nethttp.Cookie{Name: "visit", Value: "yes", Path: "/"})
	}))
	defer server.Close()

	project := &model.Project{Items: []*model.Item{request("r1", "one", server.URL+"/")}}
	var started []int
	obs := Observer{OnIterationStart: func(i int) { started = append(started, i) }}

	report, err := NewProjectRunner(project, &Options{Iterations: 3}, WithObserver(obs)).Run(context.Background())
	require.NoError(t, err)
	require.Len(t, report.Iterations, 3)
	assert.Equal(t, []int{0, 1, 2}, started)
	assert.Equal(t, []string{"", "visit=yes", "visit=yes"}, cookieHeaders)
}

func TestProjectRunner_IterationsGetFreshVariables(t *testing.T) {
	project := &model.Project{Items: []*model.Item{{Request: &model.Request{
		Key: "r1",
		URL: "https://api.test/?n={{counter}}",
		Flows: []model.Flow{{
			Trigger: model.TriggerResponse,
			Actions: []model.Action{{Steps: model.Steps{&model.SetDataStep{Value: "set"}, &model.SetVariableStep{Name: "counter"}}}},
		}},
	}}}}

	ft := &fakeTransport{}
	_, err := NewProjectRunner(project, &Options{Iterations: 2}, WithTransport(ft)).Run(context.Background())
	require.NoError(t, err)
	require.Len(t, ft.sent, 2)
	assert.Equal(t, ft.sent[0].URL, ft.sent[1].URL)
	assert.True(t, strings.Contains(ft.sent[1].URL, "{{counter}}"))
}

func TestProjectRunner_Abort(t *testing.T) {
	project := &model.Project{Items: []*model.Item{
		request("r1", "one", "https://api.test/1"),
		request("r2", "two", "https://api.test/2"),
	}}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	obs := Observer{OnRequestEnd: func(_ int, res *RunResult) {
		if res.Key == "r1" {
			cancel()
		}
	}}
	ft := &fakeTransport{}
	report, err := NewProjectRunner(project, &Options{Iterations: 5}, WithTransport(ft), WithObserver(obs)).Run(ctx)

	require.ErrorIs(t, err, context.Canceled)
	require.NotNil(t, report)
	require.Len(t, report.Iterations, 1)
	assert.True(t, report.Iterations[0].Error)
	assert.Equal(t, "aborted", report.Iterations[0].ErrorMessage)
	assert.Len(t, report.Iterations[0].Executed, 1)
	assert.Len(t, ft.sent, 1)
}

func TestProjectRunner_Defaults(t *testing.T) {
	ft := &fakeTransport{}
	project := &model.Project{Items: []*model.Item{request("r1", "one", "https://api.test/")}}
	opts := &Options{Defaults: &model.RequestConfig{Timeout: 250, FollowRedirects: model.BoolPtr(false)}}

	_, err := NewProjectRunner(project, opts, WithTransport(ft)).Run(context.Background())
	require.NoError(t, err)
	assert.False(t, ft.opts[0].FollowRedirects)
	assert.Equal(t, int64(250), ft.opts[0].Timeout.Milliseconds())
}

func TestMatchesPattern(t *testing.T) {
	tests := []struct {
		name     string
		pattern  string
		expected bool
	}{
		{"get user", "", true},
		{"get user", "get user", true},
		{"get user", "get*", true},
		{"get user", "*user", true},
		{"get user", "*t u*", true},
		{"get user", "post*", false},
		{"get user", "*", true},
	}
	for _, tt := range tests {
		t.Run(tt.pattern, func(t *testing.T) {
			assert.Equal(t, tt.expected, matchesPattern(tt.name, tt.pattern))
		})
	}
}

func TestProjectRunner_LogsUnresolvedVariables(t *testing.T) {
	var got string
	server := httptest.NewServer(nethttp.HandlerFunc(func(w nethttp.ResponseWriter, r *nethttp.Request) {
		got = r.Header.Get("X-Tenant")
	}))
	defer server.Close()

	item := request("r1", "tenant", server.URL+"/")
	item.Request.Headers = []model.Header{{Name: "X-Tenant", Value: "{{tenantId}}"}}
	project := &model.Project{Items: []*model.Item{item}}

	var logs bytes.Buffer
	logger := zerolog.New(&logs).Level(zerolog.WarnLevel)
	report, err := NewProjectRunner(project, &Options{}, WithLogger(logger)).Run(context.Background())
	require.NoError(t, err)
	require.False(t, report.Failed())

	assert.Equal(t, "{{tenantId}}", got)
	assert.Contains(t, logs.String(), `"level":"warn"`)
	assert.Contains(t, logs.String(), "unresolved variable: tenantId")
}
