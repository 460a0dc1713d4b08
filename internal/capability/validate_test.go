package capability

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestValidateArgs(t *testing.T) {
	schema := map[string]any{
		"type": "object",
		"properties": map[string]any{
			"url":   map[string]any{"type": "string"},
			"limit": map[string]any{"type": "integer"},
			"deep":  map[string]any{"type": "boolean"},
			"tags":  map[string]any{"type": "array"},
		},
		"required": []any{"url"},
	}

	tests := []struct {
		name    string
		args    map[string]any
		wantErr string
	}{
		{"valid", map[string]any{"url": "https://x", "limit": 3.0, "deep": true}, ""},
		{"missing required", map[string]any{"limit": 3.0}, `missing required field "url"`},
		{"wrong string", map[string]any{"url": 12.0}, `field "url": expected string`},
		{"fractional integer", map[string]any{"url": "x", "limit": 1.5}, `field "limit": expected integer`},
		{"whole float as integer", map[string]any{"url": "x", "limit": 4.0}, ""},
		{"wrong boolean", map[string]any{"url": "x", "deep": "yes"}, `field "deep": expected boolean`},
		{"array ok", map[string]any{"url": "x", "tags": []any{"a"}}, ""},
		{"nil value skipped", map[string]any{"url": "x", "limit": nil}, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validateArgs(tt.args, schema)
			if tt.wantErr == "" {
				require.NoError(t, err)
				return
			}
			require.ErrorContains(t, err, tt.wantErr)
		})
	}
}

func TestValidateArgs_NilSchema(t *testing.T) {
	require.NoError(t, validateArgs(map[string]any{"anything": 1}, nil))
}
