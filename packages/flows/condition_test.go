package flows

import (
	nethttp "net/http"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/abdul-hamid-achik/hitrun/packages/core/model"
	"github.com/abdul-hamid-achik/hitrun/packages/http"
)

func TestCompare(t *testing.T) {
	tests := []struct {
		name     string
		actual   any
		op       model.Operator
		expected string
		want     bool
	}{
		{"equal string", "abc", model.OpEqual, "abc", true},
		{"equal number", 200, model.OpEqual, "200", true},
		{"equal float", 1.0, model.OpEqual, "1", true},
		{"not equal", "a", model.OpNotEqual, "b", true},
		{"contains", "hello world", model.OpContains, "lo w", true},
		{"regex", "user-123", model.OpRegex, `^user-\d+$`, true},
		{"invalid regex", "x", model.OpRegex, "(", false},
		{"greater than", 201, model.OpGreaterThan, "200", true},
		{"greater than equal", "5", model.OpGreaterThanEqual, "5", true},
		{"less than", 1.5, model.OpLessThan, "2", true},
		{"less than equal", 3, model.OpLessThanEqual, "2", false},
		{"numeric on text", "abc", model.OpGreaterThan, "1", false},
		{"numeric against text", 5, model.OpLessThan, "abc", false},
		{"unknown operator", "a", model.Operator("startsWith"), "a", false},
		{"undefined equal", nil, model.OpEqual, "", false},
		{"undefined not equal", nil, model.OpNotEqual, "x", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, compare(tt.actual, tt.op, tt.expected))
		})
	}
}

func TestExchange_Read(t *testing.T) {
	ex := Exchange{
		Request: &http.Request{
			Method:  "POST",
			URL:     "https://api.example.com:8443/v1/users?page=2#top",
			Headers: nethttp.Header{"X-Trace": {"t1"}},
			Body:    `{"name":"ada"}`,
		},
		Response: &http.Response{
			StatusCode: 404,
			URL:        "https://api.example.com:8443/v1/users?page=2",
			Headers:    nethttp.Header{"Content-Type": {"application/json"}},
			Body:       `{"error":{"code":"missing"}}`,
		},
	}

	tests := []struct {
		name   string
		side   model.DataSourceType
		source model.Source
		path   string
		want   any
	}{
		{"full url", model.FromRequest, model.SourceURL, "", "https://api.example.com:8443/v1/users?page=2#top"},
		{"host", model.FromRequest, model.SourceURL, "host", "api.example.com:8443"},
		{"hostname", model.FromRequest, model.SourceURL, "hostname", "api.example.com"},
		{"protocol", model.FromRequest, model.SourceURL, "protocol", "https"},
		{"path", model.FromRequest, model.SourceURL, "path", "/v1/users"},
		{"query", model.FromRequest, model.SourceURL, "query", "page=2"},
		{"query param", model.FromRequest, model.SourceURL, "query.page", "2"},
		{"missing query param", model.FromRequest, model.SourceURL, "query.size", nil},
		{"hash", model.FromRequest, model.SourceURL, "hash", "top"},
		{"method", model.FromRequest, model.SourceMethod, "", "POST"},
		{"request header", model.FromRequest, model.SourceHeaders, "x-trace", "t1"},
		{"request body path", model.FromRequest, model.SourceBody, "name", "ada"},
		{"status", model.FromResponse, model.SourceStatus, "", 404},
		{"request has no status", model.FromRequest, model.SourceStatus, "", nil},
		{"response header", model.FromResponse, model.SourceHeaders, "content-type", "application/json"},
		{"all headers", model.FromResponse, model.SourceHeaders, "", "Content-Type: application/json\n"},
		{"nested body path", model.FromResponse, model.SourceBody, "error.code", "missing"},
		{"raw body", model.FromResponse, model.SourceBody, "", `{"error":{"code":"missing"}}`},
		{"default side is response", "", model.SourceStatus, "", 404},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ex.read(tt.side, tt.source, tt.path))
		})
	}
}

func TestExchange_ReadNonJSONBody(t *testing.T) {
	ex := Exchange{Response: &http.Response{Body: "plain text"}}
	assert.Nil(t, ex.read(model.FromResponse, model.SourceBody, "field"))
	assert.Equal(t, "plain text", ex.read(model.FromResponse, model.SourceBody, ""))
}

func TestEvaluate(t *testing.T) {
	ex := Exchange{Response: &http.Response{StatusCode: 500}}
	assert.True(t, evaluate(nil, ex))
	assert.True(t, evaluate(&model.Condition{AlwaysPass: true, Operator: "bogus"}, ex))
	assert.True(t, evaluate(&model.Condition{Type: model.FromResponse, Source: model.SourceStatus, Operator: model.OpGreaterThanEqual, Value: "500"}, ex))
	assert.False(t, evaluate(&model.Condition{Type: model.FromResponse, Source: model.SourceStatus, Operator: model.OpLessThan, Value: "400"}, ex))
}
