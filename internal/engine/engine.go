// Package engine drives the completion loop: it assembles prompts, calls the
// model backend, dispatches requested capability invocations, and maintains
// conversation memory. It is the one component that ties the registry,
// memory manager, composer and backend together.
package engine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/seneschal/seneschal/internal/capability"
	"github.com/seneschal/seneschal/internal/config"
	"github.com/seneschal/seneschal/internal/memory"
	"github.com/seneschal/seneschal/internal/model"
	"github.com/seneschal/seneschal/internal/prompt"
	"github.com/seneschal/seneschal/internal/schema"
)

const defaultMaxIterations = 10

// Options wires an Engine. Backend, Registry, Memory and Composer are
// required; Compactor and Send may be nil.
type Options struct {
	Backend   model.Backend
	Registry  *capability.Registry
	Memory    *memory.Manager
	Composer  *prompt.Composer
	Compactor *memory.Compactor
	Send      capability.SendFunc
	Config    config.AgentConfig
}

// Engine executes completion turns. Turns for the same conversation id are
// serialized with a per-id mutex so two logically concurrent messages can
// never interleave their history writes; different ids proceed in parallel.
type Engine struct {
	backend   model.Backend
	registry  *capability.Registry
	memory    *memory.Manager
	composer  *prompt.Composer
	compactor *memory.Compactor
	send      capability.SendFunc

	modelID       string
	maxTokens     int
	temperature   float64
	maxIterations int
	timeout       time.Duration

	locks sync.Map // conversation id → *sync.Mutex
}

func New(opts Options) *Engine {
	maxIter := opts.Config.MaxIterations
	if maxIter <= 0 {
		maxIter = defaultMaxIterations
	}
	return &Engine{
		backend:       opts.Backend,
		registry:      opts.Registry,
		memory:        opts.Memory,
		composer:      opts.Composer,
		compactor:     opts.Compactor,
		send:          opts.Send,
		modelID:       opts.Config.Model,
		maxTokens:     opts.Config.MaxTokens,
		temperature:   opts.Config.Temperature,
		maxIterations: maxIter,
		timeout:       time.Duration(opts.Config.RequestTimeoutSeconds) * time.Second,
	}
}

// Respond runs one full completion turn for a conversation and returns the
// final answer text. onToken, when non-nil, switches the backend calls to
// streaming and receives text deltas as they arrive. A backend failure is
// returned after the just-added user turn is rolled back, so a retry does
// not duplicate it.
func (e *Engine) Respond(ctx context.Context, conversationID, userContent string, onToken func(string), userID string) (string, error) {
	if conversationID == "" {
		return "", fmt.Errorf("conversation id required; use RespondOnce for stateless calls")
	}

	mu := e.lockConversation(conversationID)
	defer mu.Unlock()

	system := e.composer.Compose(conversationID, userID)
	history := e.memory.HistoryFor(conversationID)
	userTurn := schema.UserTurn(userContent)
	e.memory.Append(conversationID, userTurn)

	final, delta, err := e.runLoop(ctx, loopParams{
		system:        system,
		history:       history,
		user:          userTurn,
		allowAgents:   true,
		maxIterations: e.maxIterations,
		modelID:       e.modelID,
		onToken:       onToken,
		cc: capability.CallContext{
			ConversationID: conversationID,
			UserID:         userID,
			Send:           e.send,
		},
	})
	if err != nil {
		e.memory.DropLast(conversationID, 1)
		return "", err
	}

	e.memory.Append(conversationID, delta...)
	e.memory.Trim(conversationID)
	return final, nil
}

// RespondOnce runs one stateless completion turn: no conversation id, no
// history read or written.
func (e *Engine) RespondOnce(ctx context.Context, promptText string, onToken func(string)) (string, error) {
	final, _, err := e.runLoop(ctx, loopParams{
		system:        e.composer.Compose("", ""),
		user:          schema.UserTurn(promptText),
		allowAgents:   true,
		maxIterations: e.maxIterations,
		modelID:       e.modelID,
		onToken:       onToken,
		cc:            capability.CallContext{Send: e.send},
	})
	return final, err
}

// Clear drops a conversation's active history. Its rolling summary and
// compaction queue survive.
func (e *Engine) Clear(conversationID string) {
	mu := e.lockConversation(conversationID)
	defer mu.Unlock()
	e.memory.Clear(conversationID)
}

// RunAgent executes a nested completion loop for an agent capability: the
// agent's own system prompt and iteration cap, its tool allow-list, and no
// agent dispatch, which statically prevents agent-to-agent recursion.
// Nothing is written to conversation history; the parent loop records the
// result as a capability-result turn.
func (e *Engine) RunAgent(ctx context.Context, opts capability.AgentRunOptions) (string, error) {
	maxIter := opts.MaxIterations
	if maxIter <= 0 {
		maxIter = e.maxIterations
	}
	modelID := opts.Model
	if modelID == "" {
		modelID = e.modelID
	}
	filter := newToolFilter(opts.AllowedTools)

	final, _, err := e.runLoop(ctx, loopParams{
		system:        opts.SystemPrompt,
		user:          schema.UserTurn(opts.Task),
		allowAgents:   false,
		filter:        &filter,
		maxIterations: maxIter,
		modelID:       modelID,
		cc:            opts.Context,
	})
	return final, err
}

// CompactPending triggers one compaction cycle and returns how many
// conversations were compacted. It is meant to be called from a scheduler,
// never from the user-facing path.
func (e *Engine) CompactPending(ctx context.Context, minQueue int) int {
	if e.compactor == nil {
		return 0
	}
	return e.compactor.CompactPending(ctx, minQueue)
}

func (e *Engine) lockConversation(id string) *sync.Mutex {
	v, _ := e.locks.LoadOrStore(id, &sync.Mutex{})
	mu := v.(*sync.Mutex)
	mu.Lock()
	return mu
}
