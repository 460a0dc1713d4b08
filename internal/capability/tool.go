package capability

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/seneschal/seneschal/internal/schema"
)

// HandlerFunc executes one tool call. The returned string is the result fed
// back to the model; returning an error marks the call failed and the
// registry converts it to a textual result.
type HandlerFunc func(ctx context.Context, args map[string]any, cc CallContext) (string, error)

// Tool is a capability backed by a single handler function.
type Tool struct {
	def     schema.CapabilityDefinition
	handler HandlerFunc
	enabled atomic.Bool
}

// NewTool builds an enabled Tool. Parameters is a JSON Schema object
// describing the arguments; nil means the tool takes none.
func NewTool(name, description string, parameters map[string]any, handler HandlerFunc) *Tool {
	if parameters == nil {
		parameters = map[string]any{"type": "object", "properties": map[string]any{}}
	}
	t := &Tool{
		def: schema.CapabilityDefinition{
			Name:        name,
			Description: description,
			Parameters:  parameters,
		},
		handler: handler,
	}
	t.enabled.Store(true)
	return t
}

func (t *Tool) Definition() schema.CapabilityDefinition { return t.def }

func (t *Tool) Enabled() bool { return t.enabled.Load() }

func (t *Tool) SetEnabled(v bool) { t.enabled.Store(v) }

func (t *Tool) Invoke(ctx context.Context, args map[string]any, cc CallContext) (string, error) {
	if t.handler == nil {
		return "", fmt.Errorf("tool %q has no handler", t.def.Name)
	}
	return t.handler(ctx, args, cc)
}

func (t *Tool) ready() bool { return t.handler != nil }
