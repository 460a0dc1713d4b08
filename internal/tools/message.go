package tools

import (
	"context"
	"fmt"

	"github.com/seneschal/seneschal/internal/capability"
)

// NewSendMessageTool builds the send_message tool. Delivery goes through the
// send capability on the call context; in serve mode that publishes an
// outbound frame on the bus, and in one-shot mode it prints to stdout.
func NewSendMessageTool() *capability.Tool {
	params := map[string]any{
		"type": "object",
		"properties": map[string]any{
			"text": map[string]any{
				"type":        "string",
				"description": "The message text to deliver",
			},
			"destination": map[string]any{
				"type":        "string",
				"description": "Target as \"<channel>:<chatId>\"; omit to use the current conversation",
			},
		},
		"required": []any{"text"},
	}

	handler := func(_ context.Context, args map[string]any, cc capability.CallContext) (string, error) {
		text, _ := args["text"].(string)
		if text == "" {
			return "Error: text is required", nil
		}
		if cc.Send == nil {
			return "Error: no outbound channel available", nil
		}

		destination, _ := args["destination"].(string)
		if destination == "" {
			destination = cc.ConversationID
		}
		if destination == "" {
			return "Error: no destination specified", nil
		}

		cc.Send(destination, text)
		return fmt.Sprintf("Message sent to %s", destination), nil
	}

	return capability.NewTool(
		"send_message",
		"Send a message to a chat destination outside the current reply.",
		params,
		handler,
	)
}
