// Package capability implements the typed capability registry: Tools (flat
// stateless handlers) and Agents (capabilities that run their own bounded
// completion loop), registered under globally unique names with persisted
// enable/disable overrides.
//
// Dispatch failures are delivered as TEXT results, never as errors: the
// completion loop feeds them back to the model so a turn can recover.
package capability

import (
	"context"
	"fmt"

	"github.com/seneschal/seneschal/internal/schema"
)

// SendFunc delivers an out-of-band message to the originating destination.
// Fire-and-forget; delivery failures are the sink's concern.
type SendFunc func(destinationID, text string)

// CallContext is the read-only per-invocation context handed to handlers.
// ConversationID and UserID are empty for stateless calls.
type CallContext struct {
	ConversationID string
	UserID         string
	Send           SendFunc
}

// Capability is a named, invocable unit exposed to the model. The two
// concrete variants are Tool and Agent; the interface is closed so the
// registry can rely on exactly those shapes.
type Capability interface {
	Definition() schema.CapabilityDefinition
	Enabled() bool
	SetEnabled(bool)
	Invoke(ctx context.Context, args map[string]any, cc CallContext) (string, error)

	// ready reports whether the capability carries an executable handler;
	// registration rejects candidates that don't.
	ready() bool
}

// UnknownResult is the textual result for a name no capability answers to.
func UnknownResult(name string) string {
	return fmt.Sprintf("Error: unknown tool %q", name)
}

// DisabledResult is the textual result for a disabled capability.
func DisabledResult(name string) string {
	return fmt.Sprintf("Error: tool %q is currently disabled", name)
}

// InvalidArgsResult is the textual result for arguments that fail schema
// validation; the handler is never invoked.
func InvalidArgsResult(name string, err error) string {
	return fmt.Sprintf("Error: invalid arguments for tool %q: %v", name, err)
}

// FailureResult converts a handler error into a textual result.
func FailureResult(name string, err error) string {
	return fmt.Sprintf("Error: tool %q failed: %v", name, err)
}
