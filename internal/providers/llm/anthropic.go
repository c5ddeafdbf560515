package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/yoockh/basketvoice/internal/models"
)

type AnthropicProvider struct {
	client *anthropic.Client
	model  anthropic.Model
}

func NewAnthropic(baseURL, apiKey, model string, opts ...option.RequestOption) (*AnthropicProvider, error) {
	if apiKey == "" {
		return nil, errors.New("Anthropic API key is required")
	}
	if baseURL == "" {
		baseURL = "https://api.anthropic.com"
	}
	m := anthropic.ModelClaude3_5Haiku20241022
	if model != "" {
		m = anthropic.Model(model)
	}
	opts = append([]option.RequestOption{
		option.WithBaseURL(baseURL),
		option.WithAPIKey(apiKey),
	}, opts...)

	client := anthropic.NewClient(opts...)
	return &AnthropicProvider{client: &client, model: m}, nil
}

func (p *AnthropicProvider) Name() string { return "anthropic" }

func (p *AnthropicProvider) Close() error { return nil }

func (p *AnthropicProvider) NewExchange(req Request) Exchange {
	msgs := make([]anthropic.MessageParam, 0, len(req.History)+1)
	for _, t := range req.History {
		if t.Role == models.RoleAssistant {
			msgs = append(msgs, anthropic.NewAssistantMessage(anthropic.NewTextBlock(t.Text)))
		} else {
			msgs = append(msgs, anthropic.NewUserMessage(anthropic.NewTextBlock(t.Text)))
		}
	}
	msgs = append(msgs, anthropic.NewUserMessage(anthropic.NewTextBlock(req.Prompt)))

	x := &anthropicExchange{p: p, messages: msgs, tools: anthropicTools(req.Tools)}
	if req.System != "" {
		x.system = []anthropic.TextBlockParam{{Text: req.System}}
	}
	return x
}

type anthropicExchange struct {
	p        *AnthropicProvider
	system   []anthropic.TextBlockParam
	messages []anthropic.MessageParam
	tools    []anthropic.ToolUnionParam
}

func (x *anthropicExchange) Next(ctx context.Context) (Response, error) {
	params := anthropic.MessageNewParams{
		Model:     x.p.model,
		MaxTokens: 1024,
		Messages:  x.messages,
	}
	if len(x.system) > 0 {
		params.System = x.system
	}
	if len(x.tools) > 0 {
		params.Tools = x.tools
	}

	msg, err := x.p.client.Messages.New(ctx, params)
	if err != nil {
		return Response{}, fmt.Errorf("anthropic message: %w", err)
	}

	var text strings.Builder
	var calls []ToolCall
	for _, block := range msg.Content {
		switch b := block.AsAny().(type) {
		case anthropic.TextBlock:
			text.WriteString(b.Text)
		case anthropic.ToolUseBlock:
			args := map[string]any{}
			if len(b.Input) > 0 {
				if err := json.Unmarshal(b.Input, &args); err != nil {
					return Response{}, fmt.Errorf("anthropic tool input for %s: %w", b.Name, err)
				}
			}
			calls = append(calls, ToolCall{ID: b.ID, Name: b.Name, Args: args})
		}
	}

	if len(calls) > 0 {
		x.messages = append(x.messages, msg.ToParam())
	}
	return Response{Text: text.String(), ToolCalls: calls}, nil
}

// All results of one round go back in a single user turn.
func (x *anthropicExchange) SubmitToolResults(results []ToolResult) {
	if len(results) == 0 {
		return
	}
	blocks := make([]anthropic.ContentBlockParamUnion, 0, len(results))
	for _, r := range results {
		blocks = append(blocks, anthropic.NewToolResultBlock(r.CallID, r.Content, r.IsError))
	}
	x.messages = append(x.messages, anthropic.NewUserMessage(blocks...))
}

func anthropicTools(tools []mcp.Tool) []anthropic.ToolUnionParam {
	if len(tools) == 0 {
		return nil
	}
	out := make([]anthropic.ToolUnionParam, len(tools))
	for i, t := range tools {
		schema := anthropic.ToolInputSchemaParam{Properties: t.InputSchema.Properties}
		if len(t.InputSchema.Required) > 0 {
			schema.Required = t.InputSchema.Required
		}
		out[i] = anthropic.ToolUnionParamOfTool(schema, t.Name)
		if t.Description != "" {
			out[i].OfTool.Description = anthropic.String(t.Description)
		}
	}
	return out
}
