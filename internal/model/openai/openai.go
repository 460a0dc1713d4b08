// Package openai adapts the OpenAI Chat Completions API (buffered and
// streaming, with function/tool calling) to the model.Backend interface.
package openai

import (
	"context"
	"fmt"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/seneschal/seneschal/internal/model"
	"github.com/seneschal/seneschal/internal/schema"
)

// Options configure the adapter. Fields mirror the subset of Chat Completion
// parameters the runtime uses; extend via functional options.
type Options struct {
	Model       string
	MaxTokens   int64
	Temperature float64
	APIKey      string
	BaseURL     string
}

// Backend wraps the OpenAI client behind model.Backend.
type Backend struct {
	client *openai.Client
	opts   Options
}

// New creates an OpenAI backend using the official client.
func New(optFns ...func(o *Options)) *Backend {
	opts := Options{
		Model:       openai.ChatModelGPT4oMini,
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

	client := openai.NewClient(clientOpts...)
	return &Backend{client: &client, opts: opts}
}

func (b *Backend) Name() string { return "openai" }

// Complete issues one buffered completion.
func (b *Backend) Complete(ctx context.Context, req model.Request) (*model.Reply, error) {
	resp, err := b.client.Chat.Completions.New(ctx, b.buildParams(req))
	if err != nil {
		return nil, fmt.Errorf("openai api error: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("openai: no choices returned")
	}

	ch0 := resp.Choices[0]
	reply := &model.Reply{Text: ch0.Message.Content}
	for _, tc := range ch0.Message.ToolCalls {
		reply.Calls = append(reply.Calls, schema.CapabilityCall{
			ID:        tc.ID,
			Name:      tc.Function.Name,
			Arguments: tc.Function.Arguments,
		})
	}
	return reply, nil
}

// Stream issues a streaming completion, forwarding raw deltas: text pieces
// as-is and tool-call pieces positionally, exactly as the wire delivers them.
func (b *Backend) Stream(ctx context.Context, req model.Request, emit func(model.Fragment)) error {
	stream := b.client.Chat.Completions.NewStreaming(ctx, b.buildParams(req))
	for stream.Next() {
		ck := stream.Current()
		for _, ch := range ck.Choices {
			if ch.Delta.Content != "" {
				emit(model.Fragment{Text: ch.Delta.Content})
			}
			for _, tc := range ch.Delta.ToolCalls {
				emit(model.Fragment{Call: &model.CallDelta{
					Index:     int(tc.Index),
					ID:        tc.ID,
					Name:      tc.Function.Name,
					Arguments: tc.Function.Arguments,
				}})
			}
		}
	}
	if err := stream.Err(); err != nil {
		return fmt.Errorf("openai streaming error: %w", err)
	}
	return nil
}

// buildParams assembles the request parameters including tool definitions.
func (b *Backend) buildParams(req model.Request) openai.ChatCompletionNewParams {
	modelID := b.opts.Model
	if req.Model != "" {
		modelID = req.Model
	}
	maxTokens := b.opts.MaxTokens
	if req.MaxTokens > 0 {
		maxTokens = int64(req.MaxTokens)
	}
	temperature := b.opts.Temperature
	if req.Temperature > 0 {
		temperature = req.Temperature
	}

	params := openai.ChatCompletionNewParams{
		Messages:            buildMessages(req.Turns),
		Model:               modelID,
		Temperature:         openai.Float(temperature),
		MaxCompletionTokens: openai.Int(maxTokens),
	}
	if len(req.Definitions) == 0 {
		return params
	}

	tools := make([]openai.ChatCompletionToolParam, len(req.Definitions))
	for i, def := range req.Definitions {
		tools[i] = openai.ChatCompletionToolParam{
			Type: "function",
			Function: openai.FunctionDefinitionParam{
				Name:        def.Name,
				Description: openai.String(def.Description),
				Parameters:  def.Parameters,
			},
		}
	}
	params.Tools = tools
	return params
}

// buildMessages converts turns into chat messages. The engine hands turns in
// wire order (each assistant call turn directly followed by its results), so
// the conversion is a single pass.
func buildMessages(turns []schema.Turn) []openai.ChatCompletionMessageParamUnion {
	var messages []openai.ChatCompletionMessageParamUnion
	for _, t := range turns {
		switch t.Role {
		case schema.RoleSystem:
			messages = append(messages, openai.SystemMessage(t.Content))
		case schema.RoleUser:
			messages = append(messages, openai.UserMessage(t.Content))
		case schema.RoleAssistant:
			if len(t.Calls) == 0 {
				messages = append(messages, openai.AssistantMessage(t.Content))
				continue
			}
			toolCalls := make([]openai.ChatCompletionMessageToolCallParam, len(t.Calls))
			for i, c := range t.Calls {
				toolCalls[i] = openai.ChatCompletionMessageToolCallParam{
					ID:   c.ID,
					Type: "function",
					Function: openai.ChatCompletionMessageToolCallFunctionParam{
						Name:      c.Name,
						Arguments: c.Arguments,
					},
				}
			}
			messages = append(messages, openai.ChatCompletionMessageParamUnion{
				OfAssistant: &openai.ChatCompletionAssistantMessageParam{
					Role:      "assistant",
					ToolCalls: toolCalls,
				},
			})
		case schema.RoleTool:
			messages = append(messages, openai.ToolMessage(t.Content, t.CallID))
		default:
			if t.Content != "" {
				messages = append(messages, openai.UserMessage(t.Content))
			}
		}
	}
	return messages
}
