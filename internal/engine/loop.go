package engine

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"

	"github.com/seneschal/seneschal/internal/capability"
	"github.com/seneschal/seneschal/internal/model"
	"github.com/seneschal/seneschal/internal/schema"
)

// Sentinel answers for the two loop outcomes that produce no model text.
const (
	iterationCapSentinel  = "I've reached the maximum capability-call depth without a final answer."
	emptyResponseSentinel = "(no response)"
)

// loopParams seed one loop run. filter is nil for the top-level loop (every
// enabled capability is reachable) and set for nested agent loops.
type loopParams struct {
	system        string
	history       []schema.Turn
	user          schema.Turn
	allowAgents   bool
	filter        *toolFilter
	maxIterations int
	modelID       string
	onToken       func(string)
	cc            capability.CallContext
}

// runLoop drives the completion state machine. Each round asks the backend
// for a reply; capability requests are dispatched serially in index order
// and their results fed back, until the model answers in plain text or the
// iteration cap forces the sentinel answer.
//
// The returned delta holds every turn the loop produced, in order, ready to
// be appended to history: assistant turns carrying calls, their result
// turns, and the final assistant turn. A backend error returns with a nil
// delta; nothing the failed turn produced is worth keeping.
func (e *Engine) runLoop(ctx context.Context, p loopParams) (string, []schema.Turn, error) {
	if p.maxIterations <= 0 {
		p.maxIterations = defaultMaxIterations
	}

	msgs := make([]schema.Turn, 0, len(p.history)+2)
	msgs = append(msgs, schema.SystemTurn(p.system))
	msgs = append(msgs, sanitizeHistory(p.history)...)
	msgs = append(msgs, p.user)

	defs := e.definitionsFor(p)
	var delta []schema.Turn

	for i := 0; i < p.maxIterations; i++ {
		reply, err := e.complete(ctx, msgs, defs, p)
		if err != nil {
			return "", nil, err
		}

		if len(reply.Calls) == 0 {
			text := reply.Text
			if strings.TrimSpace(text) == "" {
				text = emptyResponseSentinel
			}
			delta = append(delta, schema.AssistantTurn(text))
			return text, delta, nil
		}

		callTurn := schema.AssistantCallTurn(reply.Text, reply.Calls)
		msgs = append(msgs, callTurn)
		delta = append(delta, callTurn)

		for _, call := range reply.Calls {
			result := e.dispatch(ctx, call, p)
			resultTurn := schema.ToolTurn(call.ID, call.Name, result)
			msgs = append(msgs, resultTurn)
			delta = append(delta, resultTurn)
		}
	}

	slog.Warn("engine: iteration cap reached",
		"conversation", p.cc.ConversationID, "iterations", p.maxIterations)
	delta = append(delta, schema.AssistantTurn(iterationCapSentinel))
	return iterationCapSentinel, delta, nil
}

// complete performs one backend round, buffered or streaming depending on
// whether a token callback is attached. Every call gets its own deadline.
func (e *Engine) complete(ctx context.Context, msgs []schema.Turn, defs []schema.CapabilityDefinition, p loopParams) (*model.Reply, error) {
	req := model.Request{
		Turns:       msgs,
		Definitions: defs,
		Model:       p.modelID,
		MaxTokens:   e.maxTokens,
		Temperature: e.temperature,
	}

	callCtx := ctx
	if e.timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, e.timeout)
		defer cancel()
	}

	if p.onToken == nil {
		return e.backend.Complete(callCtx, req)
	}
	acc := newAccumulator(p.onToken)
	if err := e.backend.Stream(callCtx, req, acc.feed); err != nil {
		return nil, err
	}
	return acc.reply(), nil
}

// dispatch resolves one requested call and returns its textual result.
// Nested loops treat agent names as unknown, and allow-listed loops treat
// out-of-list tools the same way, so the model sees one consistent failure
// shape for anything out of reach.
func (e *Engine) dispatch(ctx context.Context, call schema.CapabilityCall, p loopParams) string {
	if e.registry.IsAgent(call.Name) {
		if !p.allowAgents {
			slog.Warn("engine: nested loop requested an agent", "name", call.Name)
			return capability.UnknownResult(call.Name)
		}
	} else if p.filter != nil && !p.filter.allows(call.Name) {
		slog.Warn("engine: call outside tool allow-list", "name", call.Name)
		return capability.UnknownResult(call.Name)
	}
	return e.registry.Invoke(ctx, call.Name, parseArgs(call.Arguments), p.cc)
}

// definitionsFor projects the capabilities this loop run may use. Returns
// nil when nothing is reachable so the backend omits the tool list entirely.
func (e *Engine) definitionsFor(p loopParams) []schema.CapabilityDefinition {
	var defs []schema.CapabilityDefinition
	if p.allowAgents {
		defs = e.registry.Definitions()
	} else {
		for _, d := range e.registry.EnabledTools() {
			if p.filter == nil || p.filter.allows(d.Name) {
				defs = append(defs, d)
			}
		}
	}
	if len(defs) == 0 {
		return nil
	}
	return defs
}

// toolFilter implements the agent allow-list: "*" admits every enabled
// tool, explicit names admit exactly those, an empty list admits none.
type toolFilter struct {
	all   bool
	names map[string]bool
}

func newToolFilter(allowed []string) toolFilter {
	f := toolFilter{names: make(map[string]bool, len(allowed))}
	for _, n := range allowed {
		if n == "*" {
			f.all = true
			continue
		}
		f.names[n] = true
	}
	return f
}

func (f *toolFilter) allows(name string) bool { return f.all || f.names[name] }

// parseArgs decodes a call's raw JSON argument text. Malformed or empty
// arguments degrade to an empty object with a logged warning; the turn goes
// on rather than aborting.
func parseArgs(raw string) map[string]any {
	if strings.TrimSpace(raw) == "" {
		return map[string]any{}
	}
	var args map[string]any
	if err := json.Unmarshal([]byte(raw), &args); err != nil {
		slog.Warn("engine: malformed call arguments, using empty object", "error", err)
		return map[string]any{}
	}
	if args == nil {
		args = map[string]any{}
	}
	return args
}

// sanitizeHistory drops turns that would break the backend wire order:
// capability results whose announcing assistant turn was evicted, and call
// markers whose results were. History trimming cuts at arbitrary points, so
// replayed history must be re-paired before it goes back to the model.
func sanitizeHistory(turns []schema.Turn) []schema.Turn {
	out := make([]schema.Turn, 0, len(turns))
	for i := 0; i < len(turns); i++ {
		t := turns[i]

		// A result with no announcing turn before it is orphaned; paired
		// results are consumed together with their assistant turn below.
		if t.Role == schema.RoleTool {
			continue
		}

		if t.Role == schema.RoleAssistant && len(t.Calls) > 0 {
			byID := make(map[string]schema.Turn)
			j := i + 1
			for ; j < len(turns) && turns[j].Role == schema.RoleTool; j++ {
				byID[turns[j].CallID] = turns[j]
			}

			results := make([]schema.Turn, 0, len(t.Calls))
			complete := true
			for _, c := range t.Calls {
				r, ok := byID[c.ID]
				if !ok {
					complete = false
					break
				}
				results = append(results, r)
			}

			if complete {
				out = append(out, t)
				out = append(out, results...)
			} else if t.Content != "" {
				out = append(out, schema.Turn{Role: schema.RoleAssistant, Content: t.Content, Timestamp: t.Timestamp})
			}
			i = j - 1
			continue
		}

		out = append(out, t)
	}
	return out
}
