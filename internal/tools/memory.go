package tools

import (
	"context"
	"fmt"
	"strings"

	"github.com/seneschal/seneschal/internal/capability"
	"github.com/seneschal/seneschal/internal/facts"
	"github.com/seneschal/seneschal/internal/schema"
)

// resolveScope maps the scope argument to a concrete scope key. User and
// channel scopes degrade to global when the call context carries no matching
// id (stateless calls).
func resolveScope(scope string, cc capability.CallContext) string {
	switch scope {
	case "user", "":
		if cc.UserID != "" {
			return schema.UserScope(cc.UserID)
		}
	case "channel":
		if cc.ConversationID != "" {
			return schema.ChannelScope(cc.ConversationID)
		}
	}
	return schema.ScopeGlobal
}

// NewRememberFactTool builds the remember_fact tool storing one short fact
// under the resolved scope.
func NewRememberFactTool(store *facts.Store) *capability.Tool {
	params := map[string]any{
		"type": "object",
		"properties": map[string]any{
			"text": map[string]any{
				"type":        "string",
				"description": "The fact to remember, one short sentence",
			},
			"scope": map[string]any{
				"type":        "string",
				"description": "Where the fact applies: global, user, or channel",
				"enum":        []any{"global", "user", "channel"},
			},
		},
		"required": []any{"text"},
	}

	handler := func(_ context.Context, args map[string]any, cc capability.CallContext) (string, error) {
		text, _ := args["text"].(string)
		text = strings.TrimSpace(text)
		if text == "" {
			return "Error: text is required", nil
		}

		scopeArg, _ := args["scope"].(string)
		scope := resolveScope(scopeArg, cc)

		fact, created, err := store.Add(scope, text)
		if err != nil {
			return "", fmt.Errorf("save fact: %w", err)
		}
		if !created {
			return fmt.Sprintf("Already remembered under %s.", fact.Scope), nil
		}
		return fmt.Sprintf("Remembered under %s.", fact.Scope), nil
	}

	return capability.NewTool(
		"remember_fact",
		"Save a short fact to long-term memory.",
		params,
		handler,
	)
}

// NewRecallFactsTool builds the recall_facts tool, the search surface the
// composed memory block's truncation hint points at. limit caps results per
// scope; 0 uses the default.
func NewRecallFactsTool(store *facts.Store, limit int) *capability.Tool {
	if limit <= 0 {
		limit = 10
	}

	params := map[string]any{
		"type": "object",
		"properties": map[string]any{
			"query": map[string]any{
				"type":        "string",
				"description": "Substring to search for",
			},
			"scope": map[string]any{
				"type":        "string",
				"description": "Restrict to one scope: global, user, or channel; omit to search all",
				"enum":        []any{"global", "user", "channel"},
			},
		},
		"required": []any{"query"},
	}

	handler := func(_ context.Context, args map[string]any, cc capability.CallContext) (string, error) {
		query, _ := args["query"].(string)
		query = strings.TrimSpace(query)
		if query == "" {
			return "Error: query is required", nil
		}

		scopeArg, _ := args["scope"].(string)
		scopes := searchScopes(scopeArg, cc)

		var lines []string
		for _, scope := range scopes {
			found, err := store.Search(scope, query, limit)
			if err != nil {
				return "", fmt.Errorf("search facts: %w", err)
			}
			for _, f := range found {
				lines = append(lines, fmt.Sprintf("- [%s] %s", f.Scope, f.Text))
			}
		}
		if len(lines) == 0 {
			return fmt.Sprintf("No facts matching %q.", query), nil
		}
		return strings.Join(lines, "\n"), nil
	}

	return capability.NewTool(
		"recall_facts",
		"Search saved memory facts by substring.",
		params,
		handler,
	)
}

// searchScopes expands the scope argument into the concrete scope keys to
// search. An empty argument searches global plus whatever user and channel
// scopes the call context provides.
func searchScopes(scope string, cc capability.CallContext) []string {
	switch scope {
	case "global":
		return []string{schema.ScopeGlobal}
	case "user", "channel":
		return []string{resolveScope(scope, cc)}
	}

	scopes := []string{schema.ScopeGlobal}
	if cc.UserID != "" {
		scopes = append(scopes, schema.UserScope(cc.UserID))
	}
	if cc.ConversationID != "" {
		scopes = append(scopes, schema.ChannelScope(cc.ConversationID))
	}
	return scopes
}
