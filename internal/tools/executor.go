package tools

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/client/transport"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/yoockh/basketvoice/internal/utils"
)

// Result is the payload of a successful tool call.
type Result struct {
	Name    string
	Content string
}

// Executor runs one tool call on behalf of a user scope (device or user id).
// Failures are TOOL_EXECUTION_FAILURE app errors.
type Executor interface {
	Execute(ctx context.Context, scope, name string, args map[string]any) (Result, error)
}

type ExecutorFunc func(ctx context.Context, scope, name string, args map[string]any) (Result, error)

func (f ExecutorFunc) Execute(ctx context.Context, scope, name string, args map[string]any) (Result, error) {
	return f(ctx, scope, name, args)
}

type toolCaller interface {
	CallTool(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error)
}

// MCPExecutor forwards calls to the tool execution service over MCP streamable HTTP.
type MCPExecutor struct {
	caller  toolCaller
	close   func() error
	Timeout time.Duration
}

func NewMCPExecutor(ctx context.Context, serverURL, token string) (*MCPExecutor, error) {
	if serverURL == "" {
		return nil, errors.New("tool server url is empty")
	}

	var opts []transport.StreamableHTTPCOption
	if token != "" {
		opts = append(opts, transport.WithHTTPHeaders(map[string]string{
			"Authorization": "Bearer " + token,
		}))
	}

	c, err := client.NewStreamableHttpClient(serverURL, opts...)
	if err != nil {
		return nil, err
	}
	if err := c.GetTransport().Start(ctx); err != nil {
		return nil, err
	}

	_, err = c.Initialize(ctx, mcp.InitializeRequest{
		Params: mcp.InitializeParams{
			ProtocolVersion: "2025-06-18",
			Capabilities:    mcp.ClientCapabilities{},
			ClientInfo: mcp.Implementation{
				Name:    "basketvoice",
				Version: "1.0.0",
			},
		},
	})
	if err != nil {
		_ = c.Close()
		return nil, err
	}

	return &MCPExecutor{caller: c, close: c.Close, Timeout: 15 * time.Second}, nil
}

func newMCPExecutorWithCaller(c toolCaller) *MCPExecutor {
	return &MCPExecutor{caller: c}
}

func (e *MCPExecutor) Close() error {
	if e.close == nil {
		return nil
	}
	return e.close()
}

func (e *MCPExecutor) Execute(ctx context.Context, scope, name string, args map[string]any) (Result, error) {
	const op = "MCPExecutor.Execute"

	if e.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.Timeout)
		defer cancel()
	}

	callArgs := make(map[string]any, len(args)+1)
	for k, v := range args {
		callArgs[k] = v
	}
	if scope != "" {
		callArgs["user_id"] = scope
	}

	res, err := e.caller.CallTool(ctx, mcp.CallToolRequest{
		Params: mcp.CallToolParams{
			Name:      name,
			Arguments: callArgs,
		},
	})
	if err != nil {
		return Result{}, utils.E(utils.CodeToolExecution, op, name, err)
	}
	if res == nil {
		return Result{}, utils.E(utils.CodeToolExecution, op, name, errors.New("empty result"))
	}

	content := contentText(res.Content)
	if res.IsError {
		if content == "" {
			content = "tool reported an error"
		}
		return Result{}, utils.E(utils.CodeToolExecution, op, name, errors.New(content))
	}
	return Result{Name: name, Content: content}, nil
}

func contentText(content []mcp.Content) string {
	if len(content) == 0 {
		return ""
	}
	var parts []string
	for _, c := range content {
		if t, ok := mcp.AsTextContent(c); ok {
			parts = append(parts, t.Text)
		}
	}
	if len(parts) > 0 {
		return strings.Join(parts, "\n")
	}
	b, err := json.Marshal(content)
	if err != nil {
		return ""
	}
	return string(b)
}
