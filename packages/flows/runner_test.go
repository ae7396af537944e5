package flows

import (
	"context"
	"encoding/json"
	nethttp "net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/abdul-hamid-achik/hitrun/packages/cookies"
	"github.com/abdul-hamid-achik/hitrun/packages/core/env"
	"github.com/abdul-hamid-achik/hitrun/packages/core/model"
	"github.com/abdul-hamid-achik/hitrun/packages/http"
)

type recorder struct {
	executed []string
	skipped  []string
}

func (r *recorder) ActionSkipped(_ *model.Flow, a *model.Action) {
	r.skipped = append(r.skipped, a.Name)
}

func (r *recorder) ActionExecuted(_ *model.Flow, a *model.Action) {
	r.executed = append(r.executed, a.Name)
}

func requestTo(url string) Exchange {
	return Exchange{Request: &http.Request{Method: "GET", URL: url, Headers: nethttp.Header{}}}
}

func adminFlow() []model.Flow {
	return []model.Flow{{
		Name:    "mark admin",
		Trigger: model.TriggerRequest,
		Actions: []model.Action{{
			Name:      "admin",
			Condition: &model.Condition{Source: model.SourceURL, Operator: model.OpContains, Value: "admin"},
			Steps: model.Steps{
				&model.SetDataStep{Value: "yes"},
				&model.SetVariableStep{Name: "isAdmin"},
			},
		}},
	}}
}

func TestRun_ConditionGatesAction(t *testing.T) {
	t.Run("matching url executes steps", func(t *testing.T) {
		vars := env.Context{}
		rec := &recorder{}
		r := NewRunner(WithVariables(vars), WithObserver(rec))

		r.Run(context.Background(), model.TriggerRequest, adminFlow(), requestTo("https://x.com/admin/y"))

		assert.Equal(t, "yes", vars["isAdmin"])
		assert.Equal(t, []string{"admin"}, rec.executed)
		assert.Empty(t, rec.skipped)
	})

	t.Run("other url is skipped without side effects", func(t *testing.T) {
		vars := env.Context{}
		rec := &recorder{}
		r := NewRunner(WithVariables(vars), WithObserver(rec))

		r.Run(context.Background(), model.TriggerRequest, adminFlow(), requestTo("https://x.com/guest"))

		assert.Empty(t, vars)
		assert.Empty(t, rec.executed)
		assert.Equal(t, []string{"admin"}, rec.skipped)
	})
}

func TestRun_OnlyMatchingTrigger(t *testing.T) {
	vars := env.Context{}
	r := NewRunner(WithVariables(vars))

	r.Run(context.Background(), model.TriggerResponse, adminFlow(), requestTo("https://x.com/admin"))
	assert.Empty(t, vars)
}

func TestRun_DisabledFlowAndAction(t *testing.T) {
	vars := env.Context{}
	r := NewRunner(WithVariables(vars))

	flows := adminFlow()
	flows[0].Enabled = model.BoolPtr(false)
	r.Run(context.Background(), model.TriggerRequest, flows, requestTo("https://x.com/admin"))
	assert.Empty(t, vars)

	flows = adminFlow()
	flows[0].Actions[0].Enabled = model.BoolPtr(false)
	r.Run(context.Background(), model.TriggerRequest, flows, requestTo("https://x.com/admin"))
	assert.Empty(t, vars)
}

func TestSetCookieStep_DefaultsFromRequestURL(t *testing.T) {
	jar := cookies.NewMemoryJar()
	vars := env.Context{}
	r := NewRunner(WithJar(jar), WithVariables(vars))

	flows := []model.Flow{{
		Trigger: model.TriggerRequest,
		Actions: []model.Action{{
			Condition: &model.Condition{AlwaysPass: true},
			Steps: model.Steps{
				&model.SetDataStep{Value: "xyz"},
				&model.SetCookieStep{Name: "sid"},
			},
		}},
	}}
	r.Run(context.Background(), model.TriggerRequest, flows, requestTo("https://api.com/v1"))

	list, err := jar.ListCookies(context.Background(), "https://api.com/v1/anything")
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "sid", list[0].Name)
	assert.Equal(t, "xyz", list[0].Value)
	assert.Equal(t, "api.com", list[0].Domain)
	assert.Equal(t, "/v1", list[0].Path)
	assert.True(t, list[0].Session)
}

func TestSetCookieStep_Attributes(t *testing.T) {
	jar := cookies.NewMemoryJar()
	r := NewRunner(WithJar(jar))

	flows := []model.Flow{{
		Trigger: model.TriggerResponse,
		Actions: []model.Action{{
			Steps: model.Steps{
				&model.ReadDataStep{Source: model.DataSource{Type: model.FromResponse, Source: model.SourceBody, Path: "token"}},
				&model.SetCookieStep{
					Name:     "token",
					URL:      "https://auth.example.com/app",
					Path:     "/",
					Expires:  "2099-01-01T00:00:00Z",
					Secure:   true,
					HTTPOnly: true,
					SameSite: "Strict",
				},
			},
		}},
	}}
	ex := requestTo("https://api.example.com/login")
	ex.Response = &http.Response{StatusCode: 200, Body: `{"token":"abc"}`}
	r.Run(context.Background(), model.TriggerResponse, flows, ex)

	stored := jar.Cookies()
	require.Len(t, stored, 1)
	c := stored[0]
	assert.Equal(t, "abc", c.Value)
	assert.Equal(t, "auth.example.com", c.Domain)
	assert.Equal(t, "/", c.Path)
	assert.True(t, c.Secure)
	assert.True(t, c.HTTPOnly)
	assert.Equal(t, cookies.SameSiteStrict, c.SameSite)
	require.NotNil(t, c.ExpirationDate)
	assert.Equal(t, 2099, c.ExpirationDate.Year())
	assert.False(t, c.Session)
}

func TestSetCookieStep_NoValueOrJarIsNoop(t *testing.T) {
	jar := cookies.NewMemoryJar()
	r := NewRunner(WithJar(jar))

	flows := []model.Flow{{
		Trigger: model.TriggerRequest,
		Actions: []model.Action{{
			Steps: model.Steps{&model.SetCookieStep{Name: "sid"}},
		}},
	}}
	r.Run(context.Background(), model.TriggerRequest, flows, requestTo("https://api.com/"))
	assert.Equal(t, 0, jar.Len())

	flows[0].Actions[0].Steps = model.Steps{&model.SetDataStep{Value: "v"}, &model.SetCookieStep{Name: "sid"}}
	assert.NotPanics(t, func() {
		NewRunner().Run(context.Background(), model.TriggerRequest, flows, requestTo("https://api.com/"))
	})
}

func TestDeleteCookieStep(t *testing.T) {
	ctx := context.Background()
	jar := cookies.NewMemoryJar()
	_, err := jar.SetCookies(ctx, "https://api.com/", []*cookies.Cookie{
		{Name: "a", Value: "1"},
		{Name: "b", Value: "2"},
	})
	require.NoError(t, err)

	r := NewRunner(WithJar(jar))
	flows := []model.Flow{{
		Trigger: model.TriggerResponse,
		Actions: []model.Action{{Steps: model.Steps{&model.DeleteCookieStep{Name: "a"}}}},
	}}
	r.Run(ctx, model.TriggerResponse, flows, requestTo("https://api.com/"))

	list, err := jar.ListCookies(ctx, "https://api.com/")
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "b", list[0].Name)
}

func TestSetVariableStep_NilValueDeletesVariable(t *testing.T) {
	vars := env.Context{"token": "stale"}
	r := NewRunner(WithVariables(vars))

	flows := []model.Flow{{
		Trigger: model.TriggerResponse,
		Actions: []model.Action{{
			Steps: model.Steps{
				&model.ReadDataStep{Source: model.DataSource{Type: model.FromResponse, Source: model.SourceBody, Path: "missing"}},
				&model.SetVariableStep{Name: "token"},
			},
		}},
	}}
	ex := requestTo("https://api.com/")
	ex.Response = &http.Response{StatusCode: 200, Body: `{"present":true}`}
	r.Run(context.Background(), model.TriggerResponse, flows, ex)

	_, ok := vars["token"]
	assert.False(t, ok)
}

func TestSteps_CarriedValue(t *testing.T) {
	vars := env.Context{"source": "from-vars"}
	r := NewRunner(WithVariables(vars))

	flows := []model.Flow{{
		Trigger: model.TriggerResponse,
		Actions: []model.Action{{
			Steps: model.Steps{
				&model.ReadDataStep{Source: model.DataSource{Type: model.FromVariables, Path: "source"}},
				&model.SetVariableStep{Name: "copy"},
				&model.ReadDataStep{Source: model.DataSource{Type: model.FromResponse, Source: model.SourceStatus}},
				&model.SetVariableStep{Name: "status"},
				&model.ReadDataStep{Source: model.DataSource{Type: model.FromResponse, Source: model.SourceBody, Path: "user"}},
				&model.SetVariableStep{Name: "user"},
				&model.SetDataStep{Value: "42", DataType: model.DataNumber},
				&model.SetVariableStep{Name: "answer"},
			},
		}},
	}}
	ex := requestTo("https://api.com/")
	ex.Response = &http.Response{StatusCode: 201, Body: `{"user":{"id":7}}`}
	r.Run(context.Background(), model.TriggerResponse, flows, ex)

	assert.Equal(t, "from-vars", vars["copy"])
	assert.Equal(t, "201", vars["status"])
	assert.JSONEq(t, `{"id":7}`, vars["user"])
	assert.Equal(t, "42", vars["answer"])
}

func TestSteps_DisabledAndUnknownYieldNoValue(t *testing.T) {
	vars := env.Context{"x": "keep"}
	r := NewRunner(WithVariables(vars))

	var steps model.Steps
	require.NoError(t, json.Unmarshal([]byte(`[
		{"kind":"set-data","value":"v"},
		{"kind":"teleport"},
		{"kind":"set-variable","name":"x"},
		{"kind":"set-data","value":"w","enabled":false},
		{"kind":"set-variable","name":"y"}
	]`), &steps))

	flows := []model.Flow{{Trigger: model.TriggerRequest, Actions: []model.Action{{Steps: steps}}}}
	r.Run(context.Background(), model.TriggerRequest, flows, requestTo("https://api.com/"))

	_, hasX := vars["x"]
	_, hasY := vars["y"]
	assert.False(t, hasX, "unknown step clears the carried value")
	assert.False(t, hasY)
}

func TestSetData(t *testing.T) {
	tests := []struct {
		name string
		step model.SetDataStep
		want any
	}{
		{"string", model.SetDataStep{Value: "abc"}, "abc"},
		{"number", model.SetDataStep{Value: "1.5", DataType: model.DataNumber}, 1.5},
		{"bad number", model.SetDataStep{Value: "x", DataType: model.DataNumber}, nil},
		{"boolean", model.SetDataStep{Value: "true", DataType: model.DataBoolean}, true},
		{"bad boolean", model.SetDataStep{Value: "maybe", DataType: model.DataBoolean}, nil},
		{"null", model.SetDataStep{Value: "anything", DataType: model.DataNull}, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, setData(&tt.step))
		})
	}
}
