package capability

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/seneschal/seneschal/internal/schema"
)

// Registry holds the capability set keyed by unique name. Registration order
// is preserved so listings and model-facing definitions are stable.
type Registry struct {
	mu      sync.RWMutex
	caps    map[string]Capability
	order   []string
	toggles *ToggleStore
}

func NewRegistry() *Registry {
	return &Registry{caps: make(map[string]Capability)}
}

// Register adds a capability. Candidates without a name or an executable
// handler are logged and skipped. A duplicate name overwrites the earlier
// registration with a warning.
func (r *Registry) Register(c Capability) {
	if c == nil {
		slog.Warn("capability: skipping nil registration")
		return
	}
	name := c.Definition().Name
	if name == "" || !c.ready() {
		slog.Warn("capability: skipping registration without name or handler", "name", name)
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.caps[name]; exists {
		slog.Warn("capability: duplicate name, last registration wins", "name", name)
	} else {
		r.order = append(r.order, name)
	}
	r.caps[name] = c
}

// Lookup returns the capability registered under name.
func (r *Registry) Lookup(name string) (Capability, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.caps[name]
	return c, ok
}

// ListAll returns every registered capability in registration order.
func (r *Registry) ListAll() []Capability {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Capability, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.caps[name])
	}
	return out
}

// ListEnabled returns the enabled subset in registration order.
func (r *Registry) ListEnabled() []Capability {
	all := r.ListAll()
	out := all[:0:0]
	for _, c := range all {
		if c.Enabled() {
			out = append(out, c)
		}
	}
	return out
}

// Definitions projects the enabled capabilities into the model-facing form.
func (r *Registry) Definitions() []schema.CapabilityDefinition {
	enabled := r.ListEnabled()
	defs := make([]schema.CapabilityDefinition, 0, len(enabled))
	for _, c := range enabled {
		defs = append(defs, c.Definition())
	}
	return defs
}

// EnabledTools returns definitions of enabled Tool capabilities.
func (r *Registry) EnabledTools() []schema.CapabilityDefinition {
	var defs []schema.CapabilityDefinition
	for _, c := range r.ListEnabled() {
		if _, isAgent := c.(*Agent); !isAgent {
			defs = append(defs, c.Definition())
		}
	}
	return defs
}

// EnabledAgents returns definitions of enabled Agent capabilities.
func (r *Registry) EnabledAgents() []schema.CapabilityDefinition {
	var defs []schema.CapabilityDefinition
	for _, c := range r.ListEnabled() {
		if _, isAgent := c.(*Agent); isAgent {
			defs = append(defs, c.Definition())
		}
	}
	return defs
}

// IsAgent reports whether name is registered as an agent capability.
func (r *Registry) IsAgent(name string) bool {
	c, ok := r.Lookup(name)
	if !ok {
		return false
	}
	_, isAgent := c.(*Agent)
	return isAgent
}

// Invoke dispatches one capability call and always returns a textual result:
// unknown names, disabled capabilities, argument validation failures and
// handler errors all come back as "Error: ..." text for the model to read.
func (r *Registry) Invoke(ctx context.Context, name string, args map[string]any, cc CallContext) string {
	c, ok := r.Lookup(name)
	if !ok {
		slog.Warn("capability: unknown name invoked", "name", name)
		return UnknownResult(name)
	}
	if !c.Enabled() {
		slog.Info("capability: disabled name invoked", "name", name)
		return DisabledResult(name)
	}
	if err := validateArgs(args, c.Definition().Parameters); err != nil {
		slog.Warn("capability: invalid arguments", "name", name, "error", err)
		return InvalidArgsResult(name, err)
	}

	slog.Info("capability: invoking", "name", name)
	start := time.Now()
	out, err := c.Invoke(ctx, args, cc)
	elapsed := time.Since(start)
	if err != nil {
		slog.Warn("capability: invocation failed", "name", name, "duration", elapsed, "error", err)
		return FailureResult(name, err)
	}
	slog.Info("capability: invocation done", "name", name, "duration", elapsed)
	return out
}

// Toggle flips a capability's enabled state, persists the override when a
// toggle store is attached, and returns the new state. The second return is
// false when no capability answers to name.
func (r *Registry) Toggle(name string) (bool, bool) {
	c, ok := r.Lookup(name)
	if !ok {
		return false, false
	}
	next := !c.Enabled()
	c.SetEnabled(next)
	r.mu.RLock()
	ts := r.toggles
	r.mu.RUnlock()
	if ts != nil {
		if err := ts.Set(name, next); err != nil {
			slog.Warn("capability: persisting toggle failed", "name", name, "error", err)
		}
	}
	slog.Info("capability: toggled", "name", name, "enabled", next)
	return next, true
}

// AttachToggles loads persisted overrides, applies them to the registered
// set, and keeps the store for future Toggle writes. Overrides naming
// unregistered capabilities are ignored.
func (r *Registry) AttachToggles(ts *ToggleStore) {
	overrides := ts.Load()
	for name, enabled := range overrides {
		if c, ok := r.Lookup(name); ok {
			c.SetEnabled(enabled)
		}
	}
	r.mu.Lock()
	r.toggles = ts
	r.mu.Unlock()
}
