// Package model defines the boundary to the chat-completion backend: the
// request/reply shapes, the streamed fragment shape, and the Backend
// interface the adapters under model/openai and model/anthropic implement.
package model

import (
	"context"

	"github.com/seneschal/seneschal/internal/schema"
)

// Request carries one completion call: the full turn list (system turn
// first), the capability definitions to attach (nil when none are enabled),
// and per-call generation settings. Zero-valued settings fall back to the
// adapter's configured defaults.
type Request struct {
	Turns       []schema.Turn
	Definitions []schema.CapabilityDefinition
	Model       string
	MaxTokens   int
	Temperature float64
}

// Reply is one complete assistant message.
type Reply struct {
	Text  string
	Calls []schema.CapabilityCall
}

// Fragment is one streamed delta: a piece of assistant text or a positional
// piece of a capability call. Exactly one of the two fields is set.
type Fragment struct {
	Text string
	Call *CallDelta
}

// CallDelta is a partial, positional capability-call fragment. Index groups
// the fragments belonging to one call; ID, Name, and Arguments each carry
// only the piece present in this delta and may all be partial.
type CallDelta struct {
	Index     int
	ID        string
	Name      string
	Arguments string
}

// Backend is the chat-completion boundary.
//
// Complete returns one full reply. Stream emits fragments in arrival order
// through emit and returns once the stream is exhausted; reconstruction of
// complete calls from positional fragments is the caller's job.
type Backend interface {
	Complete(ctx context.Context, req Request) (*Reply, error)
	Stream(ctx context.Context, req Request, emit func(Fragment)) error
	Name() string
}
