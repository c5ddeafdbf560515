package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"

	vertexgenai "cloud.google.com/go/vertexai/genai"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/yoockh/basketvoice/internal/models"
	"google.golang.org/api/iterator"
)

type VertexGemini struct {
	client    *vertexgenai.Client
	modelName string
}

func NewVertexGemini(ctx context.Context, projectID, location, modelName string) (*VertexGemini, error) {
	c, err := vertexgenai.NewClient(ctx, projectID, location)
	if err != nil {
		return nil, err
	}

	if modelName == "" {
		modelName = "gemini-1.5-flash"
	}
	return &VertexGemini{client: c, modelName: modelName}, nil
}

func (v *VertexGemini) Name() string { return "vertex" }

func (v *VertexGemini) Close() error { return v.client.Close() }

// NewExchange builds a fresh model per exchange since tools and the system
// instruction differ between requests.
func (v *VertexGemini) NewExchange(req Request) Exchange {
	m := v.client.GenerativeModel(v.modelName)
	if req.System != "" {
		m.SystemInstruction = &vertexgenai.Content{Parts: []vertexgenai.Part{vertexgenai.Text(req.System)}}
	}
	if len(req.Tools) > 0 {
		m.Tools = []*vertexgenai.Tool{{FunctionDeclarations: geminiDeclarations(req.Tools)}}
	}

	cs := m.StartChat()
	for _, t := range req.History {
		role := "user"
		if t.Role == models.RoleAssistant {
			role = "model"
		}
		cs.History = append(cs.History, &vertexgenai.Content{
			Role:  role,
			Parts: []vertexgenai.Part{vertexgenai.Text(t.Text)},
		})
	}
	return &geminiExchange{chat: cs, pending: []vertexgenai.Part{vertexgenai.Text(req.Prompt)}}
}

type geminiExchange struct {
	chat    *vertexgenai.ChatSession
	pending []vertexgenai.Part
}

func (x *geminiExchange) Next(ctx context.Context) (Response, error) {
	if len(x.pending) == 0 {
		return Response{}, errors.New("gemini: nothing to send")
	}
	parts := x.pending
	x.pending = nil

	var text strings.Builder
	var calls []ToolCall

	it := x.chat.SendMessageStream(ctx, parts...)
	for {
		resp, err := it.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return Response{}, fmt.Errorf("gemini stream: %w", err)
		}

		for _, cand := range resp.Candidates {
			if cand.Content == nil {
				continue
			}
			for _, part := range cand.Content.Parts {
				switch p := part.(type) {
				case vertexgenai.Text:
					text.WriteString(string(p))
				case vertexgenai.FunctionCall:
					calls = append(calls, ToolCall{ID: p.Name, Name: p.Name, Args: p.Args})
				}
			}
		}
	}
	return Response{Text: text.String(), ToolCalls: calls}, nil
}

func (x *geminiExchange) SubmitToolResults(results []ToolResult) {
	for _, r := range results {
		payload := map[string]any{"content": r.Content}
		if r.IsError {
			payload = map[string]any{"error": r.Content}
		}
		x.pending = append(x.pending, vertexgenai.FunctionResponse{Name: r.Name, Response: payload})
	}
}

func geminiDeclarations(tools []mcp.Tool) []*vertexgenai.FunctionDeclaration {
	out := make([]*vertexgenai.FunctionDeclaration, 0, len(tools))
	for _, t := range tools {
		schema := &vertexgenai.Schema{
			Type:       vertexgenai.TypeObject,
			Properties: map[string]*vertexgenai.Schema{},
			Required:   t.InputSchema.Required,
		}
		for name, raw := range t.InputSchema.Properties {
			schema.Properties[name] = geminiSchema(raw)
		}
		out = append(out, &vertexgenai.FunctionDeclaration{
			Name:        t.Name,
			Description: t.Description,
			Parameters:  schema,
		})
	}
	return out
}

func geminiSchema(raw any) *vertexgenai.Schema {
	s := &vertexgenai.Schema{Type: vertexgenai.TypeString}
	prop, ok := raw.(map[string]any)
	if !ok {
		return s
	}
	if d, ok := prop["description"].(string); ok {
		s.Description = d
	}
	switch prop["type"] {
	case "number":
		s.Type = vertexgenai.TypeNumber
	case "integer":
		s.Type = vertexgenai.TypeInteger
	case "boolean":
		s.Type = vertexgenai.TypeBoolean
	case "array":
		s.Type = vertexgenai.TypeArray
		s.Items = geminiSchema(prop["items"])
	case "object":
		s.Type = vertexgenai.TypeObject
	}
	return s
}
