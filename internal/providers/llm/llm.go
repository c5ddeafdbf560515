package llm

import (
	"context"
	"encoding/json"
	"errors"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/yoockh/basketvoice/internal/models"
)

// ToolCall is one tool invocation requested by the model.
type ToolCall struct {
	ID   string
	Name string
	Args map[string]any
}

// ToolResult answers a ToolCall in the follow-up turn.
type ToolResult struct {
	CallID  string
	Name    string
	Content string
	IsError bool
}

type Request struct {
	System  string
	History []models.ConversationTurn
	Prompt  string
	// Tools is empty for plain-text requests.
	Tools []mcp.Tool
}

// Response carries either Text or ToolCalls.
type Response struct {
	Text      string
	ToolCalls []ToolCall
}

// Exchange is one multi-round conversation with a provider. The provider's
// native message state lives inside the exchange.
type Exchange interface {
	Next(ctx context.Context) (Response, error)
	SubmitToolResults(results []ToolResult)
}

type Provider interface {
	Name() string
	NewExchange(req Request) Exchange
	Close() error
}

// parseArgs decodes a JSON object of tool arguments. Empty input is an empty
// object; anything else that is not an object is an error.
func parseArgs(raw string) (map[string]any, error) {
	args := map[string]any{}
	if strings.TrimSpace(raw) == "" {
		return args, nil
	}
	if err := json.Unmarshal([]byte(raw), &args); err != nil {
		return nil, err
	}
	if args == nil {
		return nil, errors.New("arguments are null")
	}
	return args, nil
}
