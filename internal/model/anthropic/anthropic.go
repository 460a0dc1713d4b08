// Package anthropic adapts the Anthropic Messages API to the model.Backend
// interface. Completions are buffered; Stream degrades to one buffered call
// whose text is emitted as a single fragment.
package anthropic

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/anthropics/anthropic-sdk-go/shared/constant"

	"github.com/seneschal/seneschal/internal/model"
	"github.com/seneschal/seneschal/internal/schema"
)

// Options configure the adapter.
type Options struct {
	Model       anthropic.Model
	MaxTokens   int64
	Temperature float64
	APIKey      string
	BaseURL     string
}

// Backend wraps the Anthropic client behind model.Backend.
type Backend struct {
	client *anthropic.Client
	opts   Options
}

// New creates an Anthropic backend using the official client.
func New(optFns ...func(o *Options)) *Backend {
	opts := Options{
		Model:       anthropic.ModelClaude3_5Sonnet20241022,
		MaxTokens:   4096,
		Temperature: 0.7,
	}
	for _, fn := range optFns {
		fn(&opts)
	}

	var clientOpts []option.RequestOption
	if opts.APIKey != "" {
		clientOpts = append(clientOpts, option.WithAPIKey(opts.APIKey))
	}
	if opts.BaseURL != "" {
		clientOpts = append(clientOpts, option.WithBaseURL(opts.BaseURL))
	}

	client := anthropic.NewClient(clientOpts...)
	return &Backend{client: &client, opts: opts}
}

func (b *Backend) Name() string { return "anthropic" }

// Complete issues one buffered Messages call.
func (b *Backend) Complete(ctx context.Context, req model.Request) (*model.Reply, error) {
	params := anthropic.MessageNewParams{
		Model:       b.opts.Model,
		Messages:    buildMessages(req.Turns),
		MaxTokens:   b.opts.MaxTokens,
		Temperature: anthropic.Float(b.opts.Temperature),
	}
	if req.Model != "" {
		params.Model = anthropic.Model(req.Model)
	}
	if req.MaxTokens > 0 {
		params.MaxTokens = int64(req.MaxTokens)
	}
	if req.Temperature > 0 {
		params.Temperature = anthropic.Float(req.Temperature)
	}
	if system := extractSystem(req.Turns); len(system) > 0 {
		params.System = system
	}
	if len(req.Definitions) > 0 {
		params.Tools = buildTools(req.Definitions)
	}

	resp, err := b.client.Messages.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("anthropic api error: %w", err)
	}

	reply := &model.Reply{}
	for _, block := range resp.Content {
		switch block.Type {
		case "text":
			reply.Text += block.AsText().Text
		case "tool_use":
			tu := block.AsToolUse()
			reply.Calls = append(reply.Calls, schema.CapabilityCall{
				ID:        tu.ID,
				Name:      tu.Name,
				Arguments: string(tu.Input),
			})
		}
	}
	return reply, nil
}

// Stream falls back to a buffered call: the reply text arrives as one text
// fragment and each call as one complete positional fragment.
func (b *Backend) Stream(ctx context.Context, req model.Request, emit func(model.Fragment)) error {
	reply, err := b.Complete(ctx, req)
	if err != nil {
		return err
	}
	if reply.Text != "" {
		emit(model.Fragment{Text: reply.Text})
	}
	for i, c := range reply.Calls {
		emit(model.Fragment{Call: &model.CallDelta{
			Index:     i,
			ID:        c.ID,
			Name:      c.Name,
			Arguments: c.Arguments,
		}})
	}
	return nil
}

// extractSystem collects system turns into Messages API system blocks.
func extractSystem(turns []schema.Turn) []anthropic.TextBlockParam {
	var blocks []anthropic.TextBlockParam
	for _, t := range turns {
		if t.Role == schema.RoleSystem && t.Content != "" {
			blocks = append(blocks, anthropic.TextBlockParam{Text: t.Content})
		}
	}
	return blocks
}

// buildMessages converts turns into Messages API messages. Capability-result
// turns become tool_result blocks inside a user message; consecutive results
// are grouped into one message as the protocol expects.
func buildMessages(turns []schema.Turn) []anthropic.MessageParam {
	var messages []anthropic.MessageParam
	var pendingResults []anthropic.ContentBlockParamUnion

	flushResults := func() {
		if len(pendingResults) > 0 {
			messages = append(messages, anthropic.NewUserMessage(pendingResults...))
			pendingResults = nil
		}
	}

	for _, t := range turns {
		switch t.Role {
		case schema.RoleSystem:
			continue // carried in params.System
		case schema.RoleTool:
			pendingResults = append(pendingResults, anthropic.NewToolResultBlock(t.CallID, t.Content, false))
		case schema.RoleUser:
			flushResults()
			if t.Content != "" {
				messages = append(messages, anthropic.NewUserMessage(anthropic.NewTextBlock(t.Content)))
			}
		case schema.RoleAssistant:
			flushResults()
			var content []anthropic.ContentBlockParamUnion
			if t.Content != "" {
				content = append(content, anthropic.NewTextBlock(t.Content))
			}
			for _, c := range t.Calls {
				var input any
				if c.Arguments != "" {
					input = jsonOrRaw(c.Arguments)
				}
				content = append(content, anthropic.NewToolUseBlock(c.ID, input, c.Name))
			}
			if len(content) > 0 {
				messages = append(messages, anthropic.NewAssistantMessage(content...))
			}
		}
	}
	flushResults()
	return messages
}

// jsonOrRaw parses argument text as JSON, falling back to the raw string.
func jsonOrRaw(s string) any {
	var v any
	if err := json.Unmarshal([]byte(s), &v); err != nil {
		return s
	}
	return v
}

// buildTools converts neutral definitions into Messages API tool params.
func buildTools(defs []schema.CapabilityDefinition) []anthropic.ToolUnionParam {
	tools := make([]anthropic.ToolUnionParam, len(defs))
	for i, def := range defs {
		inputSchema := anthropic.ToolInputSchemaParam{
			Type: constant.Object("object"),
		}
		if def.Parameters != nil {
			if properties, ok := def.Parameters["properties"]; ok {
				inputSchema.Properties = properties
			}
			if required, ok := def.Parameters["required"].([]string); ok {
				inputSchema.Required = required
			} else if raw, ok := def.Parameters["required"].([]any); ok {
				for _, r := range raw {
					if s, ok := r.(string); ok {
						inputSchema.Required = append(inputSchema.Required, s)
					}
				}
			}
		}
		tu := anthropic.ToolUnionParamOfTool(inputSchema, def.Name)
		if tu.OfTool != nil && def.Description != "" {
			tu.OfTool.Description = anthropic.String(def.Description)
		}
		tools[i] = tu
	}
	return tools
}
