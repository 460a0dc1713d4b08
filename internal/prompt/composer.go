// Package prompt assembles the system prompt: a static persona base
// followed by live, size-bounded dynamic sections. Every dynamic section is
// optional and simply omitted when its data source is absent, so the
// composed prompt never fails and never grows unbounded.
package prompt

import (
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/seneschal/seneschal/internal/capability"
	"github.com/seneschal/seneschal/internal/facts"
	"github.com/seneschal/seneschal/internal/memory"
	"github.com/seneschal/seneschal/internal/schema"
)

const (
	defaultGlobalFactLimit = 5
	defaultScopedFactLimit = 10
)

// Options wires the Composer's collaborators. Everything except Persona may
// be nil; nil sources drop their section.
type Options struct {
	Persona         string
	Status          schema.StatusProvider
	Registry        *capability.Registry
	Memory          *memory.Manager
	Facts           *facts.Store
	GlobalFactLimit int
	ScopedFactLimit int
}

// Composer builds system prompts. Safe for concurrent use.
type Composer struct {
	opts Options

	mu     sync.RWMutex
	status schema.StatusProvider
}

func NewComposer(opts Options) *Composer {
	if opts.GlobalFactLimit <= 0 {
		opts.GlobalFactLimit = defaultGlobalFactLimit
	}
	if opts.ScopedFactLimit <= 0 {
		opts.ScopedFactLimit = defaultScopedFactLimit
	}
	return &Composer{opts: opts, status: opts.Status}
}

// SetStatus installs or replaces the live-status provider. The serve command
// calls this once the channel manager, scheduler, and heartbeat exist.
func (c *Composer) SetStatus(p schema.StatusProvider) {
	c.mu.Lock()
	c.status = p
	c.mu.Unlock()
}

// Compose concatenates the non-empty sections in fixed order: persona, live
// status, capability inventory, rolling summary, memory facts. Either id may
// be empty for stateless calls.
func (c *Composer) Compose(conversationID, userID string) string {
	var parts []string

	if c.opts.Persona != "" {
		parts = append(parts, c.opts.Persona)
	}
	if s := c.statusSection(); s != "" {
		parts = append(parts, s)
	}
	if s := c.inventorySection(); s != "" {
		parts = append(parts, s)
	}
	if s := c.summarySection(conversationID); s != "" {
		parts = append(parts, s)
	}
	if s := c.memorySection(conversationID, userID); s != "" {
		parts = append(parts, s)
	}

	return strings.Join(parts, "\n\n---\n\n")
}

// statusSection renders the live status block. Each line is omitted
// individually when its field is unavailable; no provider means no section.
func (c *Composer) statusSection() string {
	c.mu.RLock()
	status := c.status
	c.mu.RUnlock()
	if status == nil {
		return ""
	}
	snap := status()

	var lines []string
	if snap.Identity != "" {
		lines = append(lines, "- Identity: "+snap.Identity)
	}
	if snap.Connected != nil {
		state := "connected"
		if !*snap.Connected {
			state = "disconnected"
		}
		lines = append(lines, "- Connectivity: "+state)
	}
	if snap.Sessions != nil {
		lines = append(lines, fmt.Sprintf("- Active sessions: %d", *snap.Sessions))
	}
	if snap.Uptime > 0 {
		lines = append(lines, "- Uptime: "+snap.Uptime.Truncate(time.Second).String())
	}
	if snap.HeartbeatLive != nil {
		state := "idle"
		if *snap.HeartbeatLive {
			state = "running"
		}
		lines = append(lines, "- Heartbeat: "+state)
	}
	if snap.ScheduledJobs != nil {
		lines = append(lines, fmt.Sprintf("- Scheduled jobs: %d", *snap.ScheduledJobs))
	}

	if len(lines) == 0 {
		return ""
	}
	return "# Live Status\n\n" + strings.Join(lines, "\n")
}

// inventorySection lists enabled tools then enabled agents. Omitted entirely
// when nothing is enabled.
func (c *Composer) inventorySection() string {
	if c.opts.Registry == nil {
		return ""
	}
	tools := c.opts.Registry.EnabledTools()
	agents := c.opts.Registry.EnabledAgents()
	if len(tools) == 0 && len(agents) == 0 {
		return ""
	}

	var sb strings.Builder
	sb.WriteString("# Capabilities")
	if len(tools) > 0 {
		sb.WriteString("\n\n## Tools\n")
		for _, d := range tools {
			fmt.Fprintf(&sb, "- %s: %s\n", d.Name, d.Description)
		}
	}
	if len(agents) > 0 {
		sb.WriteString("\n\n## Agents\n")
		for _, d := range agents {
			fmt.Fprintf(&sb, "- %s: %s\n", d.Name, d.Description)
		}
	}
	return strings.TrimRight(sb.String(), "\n")
}

func (c *Composer) summarySection(conversationID string) string {
	if c.opts.Memory == nil || conversationID == "" {
		return ""
	}
	summary, _ := c.opts.Memory.Summary(conversationID)
	if summary == "" {
		return ""
	}
	return "# Conversation Summary\n\n" + summary
}

// memorySection renders up to GlobalFactLimit global facts, then up to
// ScopedFactLimit user-scoped and channel-scoped facts. Truncated subsections
// say so; the prompt must stay bounded no matter how many facts accumulate.
func (c *Composer) memorySection(conversationID, userID string) string {
	if c.opts.Facts == nil {
		return ""
	}

	var subs []string
	if s := c.factBlock("Global", schema.ScopeGlobal, c.opts.GlobalFactLimit); s != "" {
		subs = append(subs, s)
	}
	if userID != "" {
		if s := c.factBlock("About this user", schema.UserScope(userID), c.opts.ScopedFactLimit); s != "" {
			subs = append(subs, s)
		}
	}
	if conversationID != "" {
		if s := c.factBlock("About this channel", schema.ChannelScope(conversationID), c.opts.ScopedFactLimit); s != "" {
			subs = append(subs, s)
		}
	}

	if len(subs) == 0 {
		return ""
	}
	return "# Memory\n\n" + strings.Join(subs, "\n\n")
}

// factBlock renders one scope's most recent facts with a truncation hint
// when more exist than the cap allows.
func (c *Composer) factBlock(title, scope string, limit int) string {
	list, err := c.opts.Facts.Recent(scope, limit)
	if err != nil {
		slog.Warn("prompt: reading facts failed", "scope", scope, "error", err)
		return ""
	}
	if len(list) == 0 {
		return ""
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "## %s\n", title)
	for _, f := range list {
		fmt.Fprintf(&sb, "- %s\n", f.Text)
	}

	total, err := c.opts.Facts.Count(scope)
	if err == nil && total > len(list) {
		fmt.Fprintf(&sb, "(%d more; search them with recall_facts)\n", total-len(list))
	}
	return strings.TrimRight(sb.String(), "\n")
}
