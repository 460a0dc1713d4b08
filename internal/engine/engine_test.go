package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/seneschal/seneschal/internal/capability"
	"github.com/seneschal/seneschal/internal/config"
	"github.com/seneschal/seneschal/internal/memory"
	"github.com/seneschal/seneschal/internal/model"
	"github.com/seneschal/seneschal/internal/prompt"
	"github.com/seneschal/seneschal/internal/schema"
)

// scriptStep is one backend round: either a reply, raw fragments for
// streaming, or an error.
type scriptStep struct {
	reply *model.Reply
	frags []model.Fragment
	err   error
}

// scriptedBackend plays back steps in order, repeating the last step once
// the script is exhausted. It records every request it saw.
type scriptedBackend struct {
	mu       sync.Mutex
	script   []scriptStep
	calls    int
	streamed int
	reqs     []model.Request
}

func (b *scriptedBackend) step() scriptStep {
	idx := b.calls - 1
	if idx >= len(b.script) {
		idx = len(b.script) - 1
	}
	return b.script[idx]
}

func (b *scriptedBackend) Complete(ctx context.Context, req model.Request) (*model.Reply, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.calls++
	b.reqs = append(b.reqs, req)
	s := b.step()
	if s.err != nil {
		return nil, s.err
	}
	return s.reply, nil
}

func (b *scriptedBackend) Stream(ctx context.Context, req model.Request, emit func(model.Fragment)) error {
	b.mu.Lock()
	b.calls++
	b.streamed++
	b.reqs = append(b.reqs, req)
	s := b.step()
	b.mu.Unlock()

	if s.err != nil {
		return s.err
	}
	frags := s.frags
	if frags == nil {
		if s.reply.Text != "" {
			frags = append(frags, model.Fragment{Text: s.reply.Text})
		}
		for i, c := range s.reply.Calls {
			frags = append(frags, model.Fragment{Call: &model.CallDelta{
				Index: i, ID: c.ID, Name: c.Name, Arguments: c.Arguments,
			}})
		}
	}
	for _, f := range frags {
		emit(f)
	}
	return nil
}

func (b *scriptedBackend) Name() string { return "scripted" }

func textReply(text string) scriptStep {
	return scriptStep{reply: &model.Reply{Text: text}}
}

func callReply(calls ...schema.CapabilityCall) scriptStep {
	return scriptStep{reply: &model.Reply{Calls: calls}}
}

func newTestEngine(t *testing.T, backend model.Backend, reg *capability.Registry, maxHistory int) (*Engine, *memory.Manager) {
	t.Helper()
	mem, err := memory.NewManager(t.TempDir(), maxHistory)
	require.NoError(t, err)
	composer := prompt.NewComposer(prompt.Options{Persona: "You are a test assistant.", Registry: reg})
	e := New(Options{
		Backend:  backend,
		Registry: reg,
		Memory:   mem,
		Composer: composer,
		Config: config.AgentConfig{
			Model:                 "test-model",
			MaxTokens:             256,
			MaxIterations:         3,
			RequestTimeoutSeconds: 5,
		},
	})
	return e, mem
}

func roles(turns []schema.Turn) []schema.Role {
	out := make([]schema.Role, len(turns))
	for i, t := range turns {
		out[i] = t.Role
	}
	return out
}

func TestRespond_PlainAnswer(t *testing.T) {
	backend := &scriptedBackend{script: []scriptStep{textReply("hello there")}}
	e, mem := newTestEngine(t, backend, capability.NewRegistry(), 40)

	out, err := e.Respond(context.Background(), "c1", "hi", nil, "u1")
	require.NoError(t, err)
	require.Equal(t, "hello there", out)

	history := mem.HistoryFor("c1")
	require.Equal(t, []schema.Role{schema.RoleUser, schema.RoleAssistant}, roles(history))
	require.Equal(t, "hi", history[0].Content)
	require.Equal(t, "hello there", history[1].Content)

	req := backend.reqs[0]
	require.Equal(t, "test-model", req.Model)
	require.Nil(t, req.Definitions)
	require.Equal(t, schema.RoleSystem, req.Turns[0].Role)
	require.Contains(t, req.Turns[0].Content, "You are a test assistant.")
	require.Equal(t, "hi", req.Turns[1].Content)
}

func TestRespond_DispatchThenAnswer(t *testing.T) {
	var gotArgs map[string]any
	reg := capability.NewRegistry()
	reg.Register(capability.NewTool("echo", "repeats text", nil,
		func(ctx context.Context, args map[string]any, cc capability.CallContext) (string, error) {
			gotArgs = args
			return fmt.Sprint(args["text"]), nil
		}))

	backend := &scriptedBackend{script: []scriptStep{
		callReply(schema.CapabilityCall{ID: "call_1", Name: "echo", Arguments: `{"text":"ping"}`}),
		textReply("done"),
	}}
	e, mem := newTestEngine(t, backend, reg, 40)

	out, err := e.Respond(context.Background(), "c1", "echo ping", nil, "u1")
	require.NoError(t, err)
	require.Equal(t, "done", out)
	require.Equal(t, map[string]any{"text": "ping"}, gotArgs)

	history := mem.HistoryFor("c1")
	require.Equal(t, []schema.Role{
		schema.RoleUser, schema.RoleAssistant, schema.RoleTool, schema.RoleAssistant,
	}, roles(history))
	require.Equal(t, "call_1", history[1].Calls[0].ID)
	require.Equal(t, "call_1", history[2].CallID)
	require.Equal(t, "ping", history[2].Content)

	// The second round echoed the call and its result back to the model.
	second := backend.reqs[1]
	last := second.Turns[len(second.Turns)-1]
	require.Equal(t, schema.RoleTool, last.Role)
	require.Equal(t, "ping", last.Content)
}

func TestRespond_SerialOrderedDispatch(t *testing.T) {
	var mu sync.Mutex
	var finished []string
	slowTool := func(name string, delay time.Duration) *capability.Tool {
		return capability.NewTool(name, "sleeps then returns", nil,
			func(ctx context.Context, args map[string]any, cc capability.CallContext) (string, error) {
				time.Sleep(delay)
				mu.Lock()
				finished = append(finished, name)
				mu.Unlock()
				return name + " done", nil
			})
	}
	reg := capability.NewRegistry()
	reg.Register(slowTool("alpha", 5*time.Millisecond))
	reg.Register(slowTool("beta", 30*time.Millisecond)) // slowest, in the middle
	reg.Register(slowTool("gamma", 1*time.Millisecond))

	backend := &scriptedBackend{script: []scriptStep{
		callReply(
			schema.CapabilityCall{ID: "call_a", Name: "alpha", Arguments: "{}"},
			schema.CapabilityCall{ID: "call_b", Name: "beta", Arguments: "{}"},
			schema.CapabilityCall{ID: "call_c", Name: "gamma", Arguments: "{}"},
		),
		textReply("all done"),
	}}
	e, mem := newTestEngine(t, backend, reg, 40)

	_, err := e.Respond(context.Background(), "c1", "run them", nil, "")
	require.NoError(t, err)

	require.Equal(t, []string{"alpha", "beta", "gamma"}, finished)

	history := mem.HistoryFor("c1")
	require.Equal(t, "call_a", history[2].CallID)
	require.Equal(t, "call_b", history[3].CallID)
	require.Equal(t, "call_c", history[4].CallID)
}

func TestRespond_IterationCap(t *testing.T) {
	reg := capability.NewRegistry()
	reg.Register(capability.NewTool("spin", "never settles", nil,
		func(ctx context.Context, args map[string]any, cc capability.CallContext) (string, error) {
			return "again", nil
		}))

	backend := &scriptedBackend{script: []scriptStep{
		callReply(schema.CapabilityCall{ID: "call_1", Name: "spin", Arguments: "{}"}),
	}}
	e, mem := newTestEngine(t, backend, reg, 40)

	out, err := e.Respond(context.Background(), "c1", "go", nil, "")
	require.NoError(t, err)
	require.Equal(t, iterationCapSentinel, out)
	require.Equal(t, 3, backend.calls)

	history := mem.HistoryFor("c1")
	require.Equal(t, iterationCapSentinel, history[len(history)-1].Content)
}

func TestRespond_EmptyResponseSentinel(t *testing.T) {
	backend := &scriptedBackend{script: []scriptStep{textReply("  \n ")}}
	e, _ := newTestEngine(t, backend, capability.NewRegistry(), 40)

	out, err := e.Respond(context.Background(), "c1", "hi", nil, "")
	require.NoError(t, err)
	require.Equal(t, emptyResponseSentinel, out)
}

func TestRespond_BackendFailureRollsBackUserTurn(t *testing.T) {
	backend := &scriptedBackend{script: []scriptStep{textReply("first answer")}}
	e, mem := newTestEngine(t, backend, capability.NewRegistry(), 40)

	_, err := e.Respond(context.Background(), "c1", "hello", nil, "")
	require.NoError(t, err)
	before := mem.HistoryFor("c1")

	backend.mu.Lock()
	backend.script = []scriptStep{{err: errors.New("backend unreachable")}}
	backend.mu.Unlock()

	_, err = e.Respond(context.Background(), "c1", "second message", nil, "")
	require.Error(t, err)
	require.Equal(t, before, mem.HistoryFor("c1"))
}

func TestRespond_UnknownAndDisabledCallsStayTextual(t *testing.T) {
	reg := capability.NewRegistry()
	blocked := capability.NewTool("blocked", "unavailable", nil,
		func(ctx context.Context, args map[string]any, cc capability.CallContext) (string, error) {
			return "should never run", nil
		})
	blocked.SetEnabled(false)
	reg.Register(blocked)

	backend := &scriptedBackend{script: []scriptStep{
		callReply(
			schema.CapabilityCall{ID: "call_1", Name: "ghost", Arguments: "{}"},
			schema.CapabilityCall{ID: "call_2", Name: "blocked", Arguments: "{}"},
		),
		textReply("recovered"),
	}}
	e, mem := newTestEngine(t, backend, reg, 40)

	out, err := e.Respond(context.Background(), "c1", "try them", nil, "")
	require.NoError(t, err)
	require.Equal(t, "recovered", out)

	history := mem.HistoryFor("c1")
	require.Equal(t, `Error: unknown tool "ghost"`, history[2].Content)
	require.Equal(t, `Error: tool "blocked" is currently disabled`, history[3].Content)
}

func TestRespond_MalformedArgumentsDegradeToEmpty(t *testing.T) {
	var gotArgs map[string]any
	reg := capability.NewRegistry()
	reg.Register(capability.NewTool("probe", "records args", nil,
		func(ctx context.Context, args map[string]any, cc capability.CallContext) (string, error) {
			gotArgs = args
			return "ok", nil
		}))

	backend := &scriptedBackend{script: []scriptStep{
		callReply(schema.CapabilityCall{ID: "call_1", Name: "probe", Arguments: `{"broken":`}),
		textReply("fine"),
	}}
	e, _ := newTestEngine(t, backend, reg, 40)

	_, err := e.Respond(context.Background(), "c1", "go", nil, "")
	require.NoError(t, err)
	require.NotNil(t, gotArgs)
	require.Empty(t, gotArgs)
}

func TestRespond_TrimsAfterTurn(t *testing.T) {
	reg := capability.NewRegistry()
	reg.Register(capability.NewTool("echo", "repeats", nil,
		func(ctx context.Context, args map[string]any, cc capability.CallContext) (string, error) {
			return "pong", nil
		}))

	backend := &scriptedBackend{script: []scriptStep{
		callReply(schema.CapabilityCall{ID: "call_1", Name: "echo", Arguments: "{}"}),
		textReply("final"),
	}}
	e, mem := newTestEngine(t, backend, reg, 3)

	_, err := e.Respond(context.Background(), "c1", "start", nil, "")
	require.NoError(t, err)

	// Four turns were produced; the oldest (the user turn) spilled into the
	// compaction queue.
	history := mem.HistoryFor("c1")
	require.Len(t, history, 3)
	queue := mem.CompactionQueue("c1")
	require.Len(t, queue, 1)
	require.Equal(t, "start", queue[0].Content)
}

func TestRespond_StreamingForwardsTokens(t *testing.T) {
	backend := &scriptedBackend{script: []scriptStep{{
		frags: []model.Fragment{
			{Text: "Hel"},
			{Text: "lo "},
			{Text: "world"},
		},
	}}}
	e, _ := newTestEngine(t, backend, capability.NewRegistry(), 40)

	var tokens []string
	out, err := e.Respond(context.Background(), "c1", "hi", func(tok string) {
		tokens = append(tokens, tok)
	}, "")
	require.NoError(t, err)
	require.Equal(t, "Hello world", out)
	require.Equal(t, []string{"Hel", "lo ", "world"}, tokens)
	require.Equal(t, 1, backend.streamed)
}

func TestRespond_StreamingReconstructsScrambledCalls(t *testing.T) {
	var invoked []string
	reg := capability.NewRegistry()
	record := func(name string) *capability.Tool {
		return capability.NewTool(name, "records", nil,
			func(ctx context.Context, args map[string]any, cc capability.CallContext) (string, error) {
				invoked = append(invoked, fmt.Sprintf("%s(%v)", name, args["q"]))
				return "ok", nil
			})
	}
	reg.Register(record("first"))
	reg.Register(record("second"))

	// Fragments for the two calls interleave and arrive out of index order.
	backend := &scriptedBackend{script: []scriptStep{
		{frags: []model.Fragment{
			{Call: &model.CallDelta{Index: 1, ID: "call_b", Name: "second"}},
			{Call: &model.CallDelta{Index: 0, ID: "call_a", Name: "first"}},
			{Call: &model.CallDelta{Index: 1, Arguments: `{"q":`}},
			{Call: &model.CallDelta{Index: 0, Arguments: `{"q":"one"}`}},
			{Call: &model.CallDelta{Index: 1, Arguments: `"two"}`}},
		}},
		textReply("done"),
	}}
	e, _ := newTestEngine(t, backend, reg, 40)

	out, err := e.Respond(context.Background(), "c1", "go", func(string) {}, "")
	require.NoError(t, err)
	require.Equal(t, "done", out)
	require.Equal(t, []string{"first(one)", "second(two)"}, invoked)
}

func TestRunAgent_RecursionPrevented(t *testing.T) {
	otherRuns := 0
	reg := capability.NewRegistry()

	backend := &scriptedBackend{script: []scriptStep{
		callReply(schema.CapabilityCall{ID: "call_1", Name: "other", Arguments: `{"task":"loop"}`}),
		textReply("nested final"),
	}}
	e, _ := newTestEngine(t, backend, reg, 40)

	reg.Register(capability.NewAgent(capability.AgentSpec{
		Name: "other", Description: "should stay unreachable",
	}, runnerFunc(func(ctx context.Context, opts capability.AgentRunOptions) (string, error) {
		otherRuns++
		return "leaked", nil
	})))

	out, err := e.RunAgent(context.Background(), capability.AgentRunOptions{
		SystemPrompt: "You are nested.",
		Task:         "do something",
		AllowedTools: []string{"*"},
	})
	require.NoError(t, err)
	require.Equal(t, "nested final", out)
	require.Zero(t, otherRuns)

	// The nested loop fed the unknown-tool text back to the model.
	second := backend.reqs[1]
	last := second.Turns[len(second.Turns)-1]
	require.Equal(t, `Error: unknown tool "other"`, last.Content)

	// And never offered the agent as a callable definition.
	require.Nil(t, backend.reqs[0].Definitions)
}

type runnerFunc func(ctx context.Context, opts capability.AgentRunOptions) (string, error)

func (f runnerFunc) RunAgent(ctx context.Context, opts capability.AgentRunOptions) (string, error) {
	return f(ctx, opts)
}

func TestRunAgent_ToolAllowList(t *testing.T) {
	reg := capability.NewRegistry()
	mkTool := func(name string) *capability.Tool {
		return capability.NewTool(name, name+" tool", nil,
			func(ctx context.Context, args map[string]any, cc capability.CallContext) (string, error) {
				return name + " ran", nil
			})
	}
	reg.Register(mkTool("echo"))
	reg.Register(mkTool("hammer"))

	backend := &scriptedBackend{script: []scriptStep{
		callReply(
			schema.CapabilityCall{ID: "call_1", Name: "hammer", Arguments: "{}"},
			schema.CapabilityCall{ID: "call_2", Name: "echo", Arguments: "{}"},
		),
		textReply("done"),
	}}
	e, _ := newTestEngine(t, backend, reg, 40)

	out, err := e.RunAgent(context.Background(), capability.AgentRunOptions{
		SystemPrompt: "nested",
		Task:         "work",
		AllowedTools: []string{"echo"},
	})
	require.NoError(t, err)
	require.Equal(t, "done", out)

	// Only the allow-listed tool was offered to the model.
	require.Len(t, backend.reqs[0].Definitions, 1)
	require.Equal(t, "echo", backend.reqs[0].Definitions[0].Name)

	second := backend.reqs[1]
	require.Equal(t, `Error: unknown tool "hammer"`, second.Turns[len(second.Turns)-2].Content)
	require.Equal(t, "echo ran", second.Turns[len(second.Turns)-1].Content)
}

func TestRunAgent_EmptyAllowListMeansNoTools(t *testing.T) {
	reg := capability.NewRegistry()
	reg.Register(capability.NewTool("echo", "repeats", nil,
		func(ctx context.Context, args map[string]any, cc capability.CallContext) (string, error) {
			return "ran", nil
		}))

	backend := &scriptedBackend{script: []scriptStep{textReply("unaided answer")}}
	e, _ := newTestEngine(t, backend, reg, 40)

	out, err := e.RunAgent(context.Background(), capability.AgentRunOptions{Task: "think"})
	require.NoError(t, err)
	require.Equal(t, "unaided answer", out)
	require.Nil(t, backend.reqs[0].Definitions)
}

func TestRunAgent_OverridesModelAndCap(t *testing.T) {
	backend := &scriptedBackend{script: []scriptStep{
		callReply(schema.CapabilityCall{ID: "c", Name: "nothing", Arguments: "{}"}),
	}}
	e, _ := newTestEngine(t, backend, capability.NewRegistry(), 40)

	out, err := e.RunAgent(context.Background(), capability.AgentRunOptions{
		Task:          "spin",
		Model:         "special-model",
		MaxIterations: 2,
	})
	require.NoError(t, err)
	require.Equal(t, iterationCapSentinel, out)
	require.Equal(t, 2, backend.calls)
	require.Equal(t, "special-model", backend.reqs[0].Model)
}

func TestRespondOnce_Stateless(t *testing.T) {
	backend := &scriptedBackend{script: []scriptStep{textReply("pong")}}
	e, mem := newTestEngine(t, backend, capability.NewRegistry(), 40)

	out, err := e.RespondOnce(context.Background(), "ping", nil)
	require.NoError(t, err)
	require.Equal(t, "pong", out)
	require.Empty(t, mem.ConversationIDs())

	require.Len(t, backend.reqs[0].Turns, 2)
}

func TestClear_KeepsSummaryAndQueue(t *testing.T) {
	backend := &scriptedBackend{script: []scriptStep{textReply("ok")}}
	e, mem := newTestEngine(t, backend, capability.NewRegistry(), 40)

	_, err := e.Respond(context.Background(), "c1", "hello", nil, "")
	require.NoError(t, err)
	mem.SetSummary("c1", "old ground")

	e.Clear("c1")

	require.Empty(t, mem.HistoryFor("c1"))
	summary, _ := mem.Summary("c1")
	require.Equal(t, "old ground", summary)
}

func TestRespond_SameConversationSerialized(t *testing.T) {
	backend := &scriptedBackend{script: []scriptStep{textReply("reply")}}
	e, mem := newTestEngine(t, backend, capability.NewRegistry(), 40)

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			_, err := e.Respond(context.Background(), "c1", fmt.Sprintf("msg %d", n), nil, "")
			require.NoError(t, err)
		}(i)
	}
	wg.Wait()

	history := mem.HistoryFor("c1")
	require.Len(t, history, 8)
	for i := 0; i < len(history); i += 2 {
		require.Equal(t, schema.RoleUser, history[i].Role)
		require.Equal(t, schema.RoleAssistant, history[i+1].Role)
	}
}

func TestRespond_RequiresConversationID(t *testing.T) {
	backend := &scriptedBackend{script: []scriptStep{textReply("x")}}
	e, _ := newTestEngine(t, backend, capability.NewRegistry(), 40)

	_, err := e.Respond(context.Background(), "", "hi", nil, "")
	require.Error(t, err)
}
