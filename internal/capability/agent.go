package capability

import (
	"context"
	"fmt"
	"strings"
	"sync/atomic"

	"github.com/seneschal/seneschal/internal/schema"
)

// AgentRunner executes a nested completion loop on behalf of an Agent. The
// engine implements it; keeping it as an interface here means the registry
// never depends on loop internals.
type AgentRunner interface {
	RunAgent(ctx context.Context, opts AgentRunOptions) (string, error)
}

// AgentRunOptions seed one nested loop run.
type AgentRunOptions struct {
	SystemPrompt  string
	Task          string
	AllowedTools  []string // "*" = every enabled tool, names = exactly those, empty = none
	MaxIterations int      // 0 = runner default
	Model         string   // "" = runner default
	Context       CallContext
}

// AgentSpec declares an agent capability.
type AgentSpec struct {
	Name          string
	Description   string
	SystemPrompt  string
	Tools         []string
	MaxIterations int
	Model         string

	// PostProcess, when set, rewrites the nested loop's final text before it
	// is returned as the call result.
	PostProcess func(string) string
}

// Agent is a capability that answers by running its own completion loop.
// Nested loops never see agents in their capability set, so agents cannot
// call agents.
type Agent struct {
	spec    AgentSpec
	runner  AgentRunner
	enabled atomic.Bool
}

// NewAgent binds a spec to the runner that will execute it.
func NewAgent(spec AgentSpec, runner AgentRunner) *Agent {
	a := &Agent{spec: spec, runner: runner}
	a.enabled.Store(true)
	return a
}

func (a *Agent) Definition() schema.CapabilityDefinition {
	return schema.CapabilityDefinition{
		Name:        a.spec.Name,
		Description: a.spec.Description,
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"task": map[string]any{
					"type":        "string",
					"description": "Task or question for the agent",
				},
			},
			"required": []any{"task"},
		},
	}
}

func (a *Agent) Enabled() bool { return a.enabled.Load() }

func (a *Agent) SetEnabled(v bool) { a.enabled.Store(v) }

func (a *Agent) Invoke(ctx context.Context, args map[string]any, cc CallContext) (string, error) {
	task, _ := args["task"].(string)
	if strings.TrimSpace(task) == "" {
		return "", fmt.Errorf("task must be a non-empty string")
	}
	out, err := a.runner.RunAgent(ctx, AgentRunOptions{
		SystemPrompt:  a.spec.SystemPrompt,
		Task:          task,
		AllowedTools:  a.spec.Tools,
		MaxIterations: a.spec.MaxIterations,
		Model:         a.spec.Model,
		Context:       cc,
	})
	if err != nil {
		return "", err
	}
	if a.spec.PostProcess != nil {
		out = a.spec.PostProcess(out)
	}
	return out, nil
}

func (a *Agent) ready() bool { return a.runner != nil }
