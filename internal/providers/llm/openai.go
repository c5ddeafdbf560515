package llm

import (
	"context"
	"errors"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/yoockh/basketvoice/internal/models"
)

type OpenAIProvider struct {
	client openai.Client
	model  string
}

func NewOpenAI(baseURL, apiKey, model string, opts ...option.RequestOption) (*OpenAIProvider, error) {
	if apiKey == "" {
		return nil, errors.New("OpenAI API key is required")
	}
	if baseURL == "" {
		baseURL = "https://api.openai.com/v1"
	}
	if model == "" {
		model = "gpt-4o-mini"
	}
	opts = append([]option.RequestOption{
		option.WithBaseURL(baseURL),
		option.WithAPIKey(apiKey),
	}, opts...)

	return &OpenAIProvider{client: openai.NewClient(opts...), model: model}, nil
}

func (p *OpenAIProvider) Name() string { return "openai" }

func (p *OpenAIProvider) Close() error { return nil }

func (p *OpenAIProvider) NewExchange(req Request) Exchange {
	msgs := make([]openai.ChatCompletionMessageParamUnion, 0, len(req.History)+2)
	if req.System != "" {
		msgs = append(msgs, openai.SystemMessage(req.System))
	}
	for _, t := range req.History {
		if t.Role == models.RoleAssistant {
			msgs = append(msgs, openai.AssistantMessage(t.Text))
		} else {
			msgs = append(msgs, openai.UserMessage(t.Text))
		}
	}
	msgs = append(msgs, openai.UserMessage(req.Prompt))

	return &openAIExchange{p: p, messages: msgs, tools: openAITools(req.Tools)}
}

type openAIExchange struct {
	p        *OpenAIProvider
	messages []openai.ChatCompletionMessageParamUnion
	tools    []openai.ChatCompletionToolUnionParam
}

func (x *openAIExchange) Next(ctx context.Context) (Response, error) {
	params := openai.ChatCompletionNewParams{
		Model:    openai.ChatModel(x.p.model),
		Messages: x.messages,
	}
	if len(x.tools) > 0 {
		params.Tools = x.tools
	}

	resp, err := x.p.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return Response{}, fmt.Errorf("openai completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return Response{}, errors.New("openai completion: no choices")
	}

	msg := resp.Choices[0].Message
	if len(msg.ToolCalls) == 0 {
		return Response{Text: msg.Content}, nil
	}

	calls := make([]ToolCall, 0, len(msg.ToolCalls))
	for _, tc := range msg.ToolCalls {
		args, err := parseArgs(tc.Function.Arguments)
		if err != nil {
			return Response{}, fmt.Errorf("openai tool arguments for %s: %w", tc.Function.Name, err)
		}
		calls = append(calls, ToolCall{ID: tc.ID, Name: tc.Function.Name, Args: args})
	}
	x.messages = append(x.messages, msg.ToParam())
	return Response{Text: msg.Content, ToolCalls: calls}, nil
}

func (x *openAIExchange) SubmitToolResults(results []ToolResult) {
	for _, r := range results {
		x.messages = append(x.messages, openai.ToolMessage(r.Content, r.CallID))
	}
}

func openAITools(tools []mcp.Tool) []openai.ChatCompletionToolUnionParam {
	if len(tools) == 0 {
		return nil
	}
	out := make([]openai.ChatCompletionToolUnionParam, len(tools))
	for i, t := range tools {
		params := openai.FunctionParameters{
			"type":       "object",
			"properties": t.InputSchema.Properties,
		}
		if len(t.InputSchema.Required) > 0 {
			params["required"] = t.InputSchema.Required
		}
		out[i] = openai.ChatCompletionFunctionTool(openai.FunctionDefinitionParam{
			Name:        t.Name,
			Description: openai.String(t.Description),
			Parameters:  params,
		})
	}
	return out
}
