// Package memory manages per-conversation bounded history plus the
// asynchronous compaction path: turns evicted from active history wait in a
// per-conversation queue until a summarization pass folds them into the
// rolling summary.
//
// Each conversation persists as one JSONL file:
//
//	Line 1:  {"_type":"metadata","conversation":"…","summary":"…",…}
//	Line 2+: one turn object per line; queued turns carry "queued":true
package memory

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/seneschal/seneschal/internal/schema"
)

const defaultMaxHistory = 40

// conversation is the in-memory state for one conversation id.
type conversation struct {
	history   []schema.Turn
	queue     []schema.Turn
	summary   string
	summaryAt time.Time
	createdAt time.Time
}

// Manager owns every conversation's history, compaction queue and rolling
// summary. All operations are atomic under one mutex; serializing whole
// turns for a conversation id is the engine's job.
type Manager struct {
	dir        string
	maxHistory int

	mu    sync.Mutex
	convs map[string]*conversation
}

// NewManager creates a Manager persisting under dir, bounding every active
// history to maxHistory turns.
func NewManager(dir string, maxHistory int) (*Manager, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create conversations dir: %w", err)
	}
	if maxHistory <= 0 {
		maxHistory = defaultMaxHistory
	}
	return &Manager{
		dir:        dir,
		maxHistory: maxHistory,
		convs:      make(map[string]*conversation),
	}, nil
}

// HistoryFor returns a copy of the ordered turn sequence for a conversation,
// creating it if absent.
func (m *Manager) HistoryFor(id string) []schema.Turn {
	m.mu.Lock()
	defer m.mu.Unlock()
	return schema.CloneTurns(m.conv(id).history)
}

// Append adds turns to the end of a conversation's history. Call Trim once
// the whole turn is finished; intermediate appends are not bounded.
func (m *Manager) Append(id string, turns ...schema.Turn) {
	if len(turns) == 0 {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	c := m.conv(id)
	c.history = append(c.history, turns...)
	m.save(id, c)
}

// Trim evicts from the front while the history exceeds maxHistory. Evicted
// user and assistant turns move to the compaction queue; other roles are
// dropped outright.
func (m *Manager) Trim(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c := m.conv(id)
	changed := false
	for len(c.history) > m.maxHistory {
		evicted := c.history[0]
		c.history = c.history[1:]
		if evicted.Role == schema.RoleUser || evicted.Role == schema.RoleAssistant {
			c.queue = append(c.queue, evicted)
		}
		changed = true
	}
	if changed {
		m.save(id, c)
	}
}

// DropLast removes the last n turns from a conversation's history. Used to
// roll a failed turn back out so no orphaned user turn survives.
func (m *Manager) DropLast(id string, n int) {
	if n <= 0 {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	c := m.conv(id)
	if n > len(c.history) {
		n = len(c.history)
	}
	if n == 0 {
		return
	}
	c.history = c.history[:len(c.history)-n]
	m.save(id, c)
}

// Clear drops a conversation's active history. The rolling summary and the
// compaction queue stay untouched; Reset is the full wipe.
func (m *Manager) Clear(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c := m.conv(id)
	c.history = nil
	m.save(id, c)
}

// Reset wipes a conversation entirely: history, queue, summary and the
// backing file.
func (m *Manager) Reset(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.convs, id)
	if err := os.Remove(m.path(id)); err != nil && !os.IsNotExist(err) {
		slog.Warn("memory: removing conversation file failed", "conversation", id, "error", err)
	}
}

// Summary returns the rolling summary and its last-updated time. An empty
// string means no summary exists yet.
func (m *Manager) Summary(id string) (string, time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c := m.conv(id)
	return c.summary, c.summaryAt
}

// SetSummary replaces the rolling summary.
func (m *Manager) SetSummary(id, text string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c := m.conv(id)
	c.summary = text
	c.summaryAt = time.Now().UTC()
	m.save(id, c)
}

// QueueLen returns the compaction queue length for a conversation.
func (m *Manager) QueueLen(id string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.conv(id).queue)
}

// CompactionQueue returns a copy of the compaction queue in order.
func (m *Manager) CompactionQueue(id string) []schema.Turn {
	m.mu.Lock()
	defer m.mu.Unlock()
	return schema.CloneTurns(m.conv(id).queue)
}

// DrainQueue removes and returns up to max turns from the front of the
// compaction queue. Turns appended while the caller summarizes the drained
// chunk land behind the cut and wait for a later cycle.
func (m *Manager) DrainQueue(id string, max int) []schema.Turn {
	m.mu.Lock()
	defer m.mu.Unlock()
	c := m.conv(id)
	if len(c.queue) == 0 {
		return nil
	}
	if max <= 0 || max > len(c.queue) {
		max = len(c.queue)
	}
	drained := schema.CloneTurns(c.queue[:max])
	c.queue = append([]schema.Turn(nil), c.queue[max:]...)
	m.save(id, c)
	return drained
}

// RestoreQueueFront pushes turns back onto the front of the compaction
// queue, preserving their order. Used when a summarization call fails so no
// message content is lost.
func (m *Manager) RestoreQueueFront(id string, turns []schema.Turn) {
	if len(turns) == 0 {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	c := m.conv(id)
	c.queue = append(schema.CloneTurns(turns), c.queue...)
	m.save(id, c)
}

// ConversationIDs returns every known conversation: loaded ones plus any
// persisted on disk but not yet touched this run.
func (m *Manager) ConversationIDs() []string {
	m.mu.Lock()
	seen := make(map[string]bool, len(m.convs))
	var ids []string
	for id := range m.convs {
		seen[id] = true
		ids = append(ids, id)
	}
	m.mu.Unlock()

	entries, _ := filepath.Glob(filepath.Join(m.dir, "*.jsonl"))
	for _, path := range entries {
		id := conversationIDFromFile(path)
		if id != "" && !seen[id] {
			seen[id] = true
			ids = append(ids, id)
		}
	}
	return ids
}

// ---------------------------------------------------------------------------
// Internal state and persistence

// conv returns the conversation for id, loading it from disk on first touch.
// Caller holds m.mu.
func (m *Manager) conv(id string) *conversation {
	if c, ok := m.convs[id]; ok {
		return c
	}
	c := m.load(id)
	if c == nil {
		c = &conversation{createdAt: time.Now().UTC()}
	}
	m.convs[id] = c
	return c
}

// wireTurn is the on-disk form of one turn; Queued marks compaction-queue
// membership so both sequences reload from a single file.
type wireTurn struct {
	schema.Turn
	Queued bool `json:"queued,omitempty"`
}

// save rewrites the conversation file. Caller holds m.mu, which keeps writes
// for the same id from interleaving.
func (m *Manager) save(id string, c *conversation) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)

	meta := map[string]any{
		"_type":        "metadata",
		"conversation": id,
		"created_at":   c.createdAt.UTC().Format(time.RFC3339),
		"updated_at":   time.Now().UTC().Format(time.RFC3339),
	}
	if c.summary != "" {
		meta["summary"] = c.summary
		meta["summary_updated_at"] = c.summaryAt.UTC().Format(time.RFC3339)
	}
	if err := enc.Encode(meta); err != nil {
		slog.Warn("memory: encoding metadata failed", "conversation", id, "error", err)
		return
	}

	for _, t := range c.history {
		if err := enc.Encode(wireTurn{Turn: t}); err != nil {
			slog.Warn("memory: encoding turn failed", "conversation", id, "error", err)
			return
		}
	}
	for _, t := range c.queue {
		if err := enc.Encode(wireTurn{Turn: t, Queued: true}); err != nil {
			slog.Warn("memory: encoding queued turn failed", "conversation", id, "error", err)
			return
		}
	}

	if err := os.WriteFile(m.path(id), buf.Bytes(), 0o644); err != nil {
		slog.Warn("memory: writing conversation failed", "conversation", id, "error", err)
	}
}

// load reads a conversation file; nil when none exists.
func (m *Manager) load(id string) *conversation {
	f, err := os.Open(m.path(id))
	if err != nil {
		return nil
	}
	defer f.Close()

	c := &conversation{createdAt: time.Now().UTC()}
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 1<<20), 1<<20) // 1 MB per line
	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}

		var probe map[string]any
		if err := json.Unmarshal(line, &probe); err != nil {
			slog.Warn("memory: skipping malformed line", "conversation", id, "error", err)
			continue
		}
		if probe["_type"] == "metadata" {
			if s, ok := probe["summary"].(string); ok {
				c.summary = s
			}
			if ts, ok := probe["summary_updated_at"].(string); ok {
				if t, err := time.Parse(time.RFC3339, ts); err == nil {
					c.summaryAt = t
				}
			}
			if ts, ok := probe["created_at"].(string); ok {
				if t, err := time.Parse(time.RFC3339, ts); err == nil {
					c.createdAt = t
				}
			}
			continue
		}

		var wt wireTurn
		if err := json.Unmarshal(line, &wt); err != nil {
			slog.Warn("memory: skipping malformed turn", "conversation", id, "error", err)
			continue
		}
		if wt.Queued {
			c.queue = append(c.queue, wt.Turn)
		} else {
			c.history = append(c.history, wt.Turn)
		}
	}
	if err := scanner.Err(); err != nil {
		slog.Warn("memory: reading conversation failed", "conversation", id, "error", err)
		return nil
	}
	return c
}

// path converts a conversation id to its JSONL file path.
func (m *Manager) path(id string) string {
	name := safeFilename(strings.ReplaceAll(id, ":", "_"))
	return filepath.Join(m.dir, name+".jsonl")
}

// safeFilename replaces filesystem-unsafe characters with underscores.
func safeFilename(name string) string {
	const unsafe = `<>:"/\|?*`
	var b strings.Builder
	for _, r := range name {
		if strings.ContainsRune(unsafe, r) {
			b.WriteByte('_')
		} else {
			b.WriteRune(r)
		}
	}
	return strings.TrimSpace(b.String())
}

// conversationIDFromFile reads the metadata line of a conversation file and
// returns its id, falling back to a filename-derived guess.
func conversationIDFromFile(path string) string {
	f, err := os.Open(path)
	if err != nil {
		return ""
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 1<<20), 1<<20)
	if scanner.Scan() {
		var data map[string]any
		if json.Unmarshal(scanner.Bytes(), &data) == nil && data["_type"] == "metadata" {
			if id, _ := data["conversation"].(string); id != "" {
				return id
			}
		}
	}
	base := strings.TrimSuffix(filepath.Base(path), ".jsonl")
	return strings.Replace(base, "_", ":", 1)
}
