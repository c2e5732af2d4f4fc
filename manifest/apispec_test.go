package manifest

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/frontgate/errors"
)

func TestParseAPISpec_Valid(t *testing.T) {
	spec, err := ParseAPISpec([]byte(testSpecYAML))
	require.NoError(t, err)

	assert.Equal(t, "test-component", spec.Title)
	assert.Equal(t, "0.1.0", spec.Version)
	assert.Len(t, spec.Operations(), 2)

	root, ok := spec.Lookup("GET", "/")
	require.True(t, ok)
	assert.Equal(t, "text/html", root.ContentType)
	assert.Nil(t, root.Schema, "HTML responses carry no validation schema")
	assert.Equal(t, "get_root", root.OperationID)

	info, ok := spec.Lookup("get", "/api/agent-info")
	require.True(t, ok, "Lookup is method-case-insensitive")
	assert.Equal(t, "agent_info", info.OperationID)
	assert.JSONEq(t, `{
		"type": "object",
		"properties": {
			"service-id":   {"type": ["string", "null"]},
			"agent-status": {"type": "string"}
		}
	}`, string(info.Schema))
}

func TestParseAPISpec_MultipleContentTypes(t *testing.T) {
	doc := `paths:
  /api/report:
    get:
      operationId: report
      responses:
        "200":
          content:
            text/html: {}
            application/json:
              schema:
                type: object
  /api/export:
    get:
      operationId: export
      responses:
        "200":
          content:
            text/plain: {}
            text/csv: {}
`

	spec, err := ParseAPISpec([]byte(doc))
	require.NoError(t, err)

	report, ok := spec.Lookup("GET", "/api/report")
	require.True(t, ok)
	assert.Equal(t, "application/json", report.ContentType, "JSON wins when declared")
	assert.NotNil(t, report.Schema)

	export, ok := spec.Lookup("GET", "/api/export")
	require.True(t, ok)
	assert.Equal(t, "text/csv", export.ContentType, "lexically smallest type otherwise")
}

func TestParseAPISpec_Invalid(t *testing.T) {
	tests := []struct {
		name string
		doc  string
	}{
		{
			name: "malformed yaml",
			doc:  "paths: [unclosed",
		},
		{
			name: "no paths",
			doc:  "openapi: 3.0.0\ninfo:\n  title: empty\n",
		},
		{
			name: "relative path",
			doc: `paths:
  api/info:
    get:
      responses:
        "200":
          content:
            application/json: {}
`,
		},
		{
			name: "unsupported method",
			doc: `paths:
  /api/info:
    trace:
      responses:
        "200":
          content:
            application/json: {}
`,
		},
		{
			name: "missing 200 response",
			doc: `paths:
  /api/info:
    get:
      responses:
        "404":
          content:
            application/json: {}
`,
		},
		{
			name: "200 response without content",
			doc: `paths:
  /api/info:
    get:
      responses:
        "200":
          description: opaque
`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseAPISpec([]byte(tt.doc))
			require.Error(t, err)
			assert.ErrorIs(t, err, errors.ErrSpecInvalid)
			assert.True(t, errors.IsFatal(err))
		})
	}
}

func TestDeriveOperationID(t *testing.T) {
	tests := []struct {
		method string
		path   string
		want   string
	}{
		{"GET", "/", "get_root"},
		{"GET", "/api/agent-info", "get_api_agent_info"},
		{"POST", "/api/orders/submit", "post_api_orders_submit"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, deriveOperationID(tt.method, tt.path),
			"%s %s", tt.method, tt.path)
	}
}

func TestAPISpec_LookupUndeclared(t *testing.T) {
	spec, err := ParseAPISpec([]byte(testSpecYAML))
	require.NoError(t, err)

	_, ok := spec.Lookup("POST", "/")
	assert.False(t, ok)
	_, ok = spec.Lookup("GET", "/api/missing")
	assert.False(t, ok)
}
