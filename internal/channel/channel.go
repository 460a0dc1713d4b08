// Package channel provides the chat-surface adapters and the manager that
// routes bus traffic to them. Adapters stay thin: they move text between the
// platform and the message bus and leave all reasoning to the engine.
package channel

import (
	"context"
	"strings"

	"github.com/seneschal/seneschal/internal/bus"
)

// Channel is one chat surface. Start blocks until ctx is cancelled. Send
// delivers one outbound frame and is called from the manager's dispatch
// goroutine; adapters that cannot render token frames drop them.
type Channel interface {
	Name() string
	Start(ctx context.Context) error
	Send(msg bus.OutboundMessage) error
}

// allowed reports whether any of the sender's identities is on the
// allowlist. An empty allowlist admits everyone.
func allowed(allowFrom []string, ids ...string) bool {
	if len(allowFrom) == 0 {
		return true
	}
	for _, id := range ids {
		if id == "" {
			continue
		}
		for _, a := range allowFrom {
			if a == id {
				return true
			}
		}
	}
	return false
}

// splitMessage splits content into chunks that fit within maxLen, preferring
// newline breaks, then space breaks, then a hard cut.
func splitMessage(content string, maxLen int) []string {
	if len(content) <= maxLen {
		return []string{content}
	}
	var chunks []string
	for len(content) > 0 {
		if len(content) <= maxLen {
			chunks = append(chunks, content)
			break
		}
		cut := content[:maxLen]
		pos := strings.LastIndex(cut, "\n")
		if pos <= 0 {
			pos = strings.LastIndex(cut, " ")
		}
		if pos <= 0 {
			pos = maxLen
		}
		chunks = append(chunks, content[:pos])
		content = strings.TrimLeft(content[pos:], " \t")
	}
	return chunks
}
