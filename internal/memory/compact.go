package memory

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/seneschal/seneschal/internal/model"
	"github.com/seneschal/seneschal/internal/schema"
)

const (
	defaultChunkTurns  = 60
	defaultSummaryMax  = 1500
	summaryTemperature = 0.3
)

// Compactor folds queued evicted turns into each conversation's rolling
// summary with one summarization call per conversation per cycle. It runs
// off the user-facing path; a scheduler triggers it periodically.
type Compactor struct {
	manager  *Manager
	backend  model.Backend
	model    string
	timeout  time.Duration
	chunk    int
	maxChars int
}

// NewCompactor builds a Compactor summarizing with modelID. chunk bounds how
// many queued turns one summarization call may consume; maxChars bounds the
// stored summary length.
func NewCompactor(manager *Manager, backend model.Backend, modelID string, chunk, maxChars int, timeout time.Duration) *Compactor {
	if chunk <= 0 {
		chunk = defaultChunkTurns
	}
	if maxChars <= 0 {
		maxChars = defaultSummaryMax
	}
	return &Compactor{
		manager:  manager,
		backend:  backend,
		model:    modelID,
		timeout:  timeout,
		chunk:    chunk,
		maxChars: maxChars,
	}
}

// CompactPending summarizes every conversation whose compaction queue holds
// at least minQueue turns and returns how many were compacted. Failed
// conversations get their drained turns restored to the queue front and are
// skipped until the next cycle.
func (c *Compactor) CompactPending(ctx context.Context, minQueue int) int {
	if minQueue < 1 {
		minQueue = 1
	}
	count := 0
	for _, id := range c.manager.ConversationIDs() {
		if c.manager.QueueLen(id) < minQueue {
			continue
		}
		chunk := c.manager.DrainQueue(id, c.chunk)
		if len(chunk) == 0 {
			continue
		}

		summary, err := c.summarize(ctx, id, chunk)
		if err != nil {
			c.manager.RestoreQueueFront(id, chunk)
			slog.Error("memory: compaction failed, queue restored",
				"conversation", id, "turns", len(chunk), "error", err)
			continue
		}

		c.manager.SetSummary(id, summary)
		count++
		slog.Info("memory: compacted",
			"conversation", id, "turns", len(chunk), "summary_chars", len(summary))
	}
	return count
}

// summarize issues one summarization call covering the drained turns, with
// the prior summary included as context. The new summary replaces the old
// one entirely.
func (c *Compactor) summarize(ctx context.Context, id string, turns []schema.Turn) (string, error) {
	system := fmt.Sprintf(
		"You maintain a rolling conversation summary. Produce a concise summary "+
			"preserving topics, decisions, and context. Hard cap: %d characters. "+
			"Output only the summary.", c.maxChars)

	var sb strings.Builder
	if prior, _ := c.manager.Summary(id); prior != "" {
		sb.WriteString("## Previous Summary\n")
		sb.WriteString(prior)
		sb.WriteString("\n\n")
	}
	sb.WriteString("## Conversation to Summarize\n")
	sb.WriteString(transcript(turns))

	callCtx := ctx
	if c.timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}
	reply, err := c.backend.Complete(callCtx, model.Request{
		Turns: []schema.Turn{
			schema.SystemTurn(system),
			schema.UserTurn(sb.String()),
		},
		Model:       c.model,
		MaxTokens:   1024,
		Temperature: summaryTemperature,
	})
	if err != nil {
		return "", fmt.Errorf("summarization call: %w", err)
	}

	summary := strings.TrimSpace(reply.Text)
	if summary == "" {
		return "", fmt.Errorf("summarizer returned no text")
	}
	return truncate(summary, c.maxChars), nil
}

// transcript renders turns into labelled text lines for the summarization
// prompt. Turns without content, such as bare capability requests, are
// skipped.
func transcript(turns []schema.Turn) string {
	var lines []string
	for _, t := range turns {
		if t.Content == "" {
			continue
		}
		ts := t.Timestamp.UTC().Format("2006-01-02T15:04")
		lines = append(lines, fmt.Sprintf("[%s] %s: %s", ts, strings.ToUpper(string(t.Role)), t.Content))
	}
	return strings.Join(lines, "\n")
}

func truncate(s string, max int) string {
	if max <= 0 || len(s) <= max {
		return s
	}
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max])
}
