package services

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/openai/openai-go/v3/option"
	"github.com/yoockh/basketvoice/internal/logger"
	"github.com/yoockh/basketvoice/internal/models"
	"github.com/yoockh/basketvoice/internal/providers/llm"
	"github.com/yoockh/basketvoice/internal/tools"
	"github.com/yoockh/basketvoice/internal/utils"
)

// MockProvider answers each round through NextFunc. round starts at 0 and
// results holds what was submitted after the previous round.
type MockProvider struct {
	NameValue string
	NextFunc  func(ctx context.Context, req llm.Request, round int, results []llm.ToolResult) (llm.Response, error)

	mu       sync.Mutex
	requests []llm.Request
}

func (m *MockProvider) Name() string {
	if m.NameValue == "" {
		return "mock"
	}
	return m.NameValue
}

func (m *MockProvider) NewExchange(req llm.Request) llm.Exchange {
	m.mu.Lock()
	m.requests = append(m.requests, req)
	m.mu.Unlock()
	return &mockExchange{p: m, req: req}
}

func (m *MockProvider) Close() error { return nil }

func (m *MockProvider) Requests() []llm.Request {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]llm.Request(nil), m.requests...)
}

type mockExchange struct {
	p       *MockProvider
	req     llm.Request
	round   int
	results []llm.ToolResult
}

func (e *mockExchange) Next(ctx context.Context) (llm.Response, error) {
	resp, err := e.p.NextFunc(ctx, e.req, e.round, e.results)
	e.round++
	return resp, err
}

func (e *mockExchange) SubmitToolResults(results []llm.ToolResult) { e.results = results }

type recordingExecutor struct {
	mu    sync.Mutex
	calls []string
	scope string
	fail  map[string]error
}

func (r *recordingExecutor) Execute(ctx context.Context, scope, name string, args map[string]any) (tools.Result, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, name)
	r.scope = scope
	if err := r.fail[name]; err != nil {
		return tools.Result{}, err
	}
	return tools.Result{Name: name, Content: `{"items":["milk","eggs"]}`}, nil
}

func (r *recordingExecutor) Calls() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.calls...)
}

func newTestDispatcher(primary, secondary llm.Provider, exec tools.Executor) Dispatcher {
	return NewDispatcher(primary, secondary, tools.DefaultCatalog(), exec, DispatcherOptions{
		MaxRounds:    3,
		RoundTimeout: time.Second,
		Now:          func() time.Time { return time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC) },
	}, logger.Discard())
}

func call(name string, args map[string]any) llm.ToolCall {
	return llm.ToolCall{ID: "call-" + name, Name: name, Args: args}
}

func TestDispatcher_ReadToolThenAnswer(t *testing.T) {
	primary := &MockProvider{NextFunc: func(ctx context.Context, req llm.Request, round int, results []llm.ToolResult) (llm.Response, error) {
		if round == 0 {
			return llm.Response{ToolCalls: []llm.ToolCall{call("get_low_stock_items", nil)}}, nil
		}
		if len(results) != 1 || results[0].IsError || results[0].CallID != "call-get_low_stock_items" {
			t.Errorf("unexpected tool results: %+v", results)
		}
		return llm.Response{Text: "You're low on milk and eggs."}, nil
	}}
	exec := &recordingExecutor{}

	res, err := newTestDispatcher(primary, nil, exec).Process(context.Background(), "user-1", "What's low in my pantry?", models.ScreenContext{Screen: "pantry"}, nil)
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	if res.Text != "You're low on milk and eggs." || res.Source != SourcePrimary || res.Rounds != 1 {
		t.Fatalf("result = %+v", res)
	}
	if got := exec.Calls(); len(got) != 1 || got[0] != "get_low_stock_items" {
		t.Fatalf("calls = %v", got)
	}
	if exec.scope != "user-1" {
		t.Fatalf("scope = %q", exec.scope)
	}

	req := primary.Requests()[0]
	if len(req.Tools) == 0 {
		t.Fatalf("expected the tool catalog in the request")
	}
	if !strings.Contains(req.System, "pantry screen") {
		t.Fatalf("system prompt missing screen context: %q", req.System)
	}
}

func TestDispatcher_NeverRunsAFourthRound(t *testing.T) {
	primary := &MockProvider{NextFunc: func(ctx context.Context, req llm.Request, round int, results []llm.ToolResult) (llm.Response, error) {
		return llm.Response{ToolCalls: []llm.ToolCall{call("get_shopping_lists", nil)}}, nil
	}}
	exec := &recordingExecutor{}

	res, err := newTestDispatcher(primary, nil, exec).Process(context.Background(), "u", "loop forever", models.ScreenContext{}, nil)
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	if len(exec.Calls()) != 3 {
		t.Fatalf("executed %d rounds, want 3", len(exec.Calls()))
	}
	if res.Text == "" || res.Text != MessageRoundsExhausted {
		t.Fatalf("text = %q", res.Text)
	}
}

func TestDispatcher_ConfirmationRequiredToolIsHeld(t *testing.T) {
	primary := &MockProvider{NextFunc: func(ctx context.Context, req llm.Request, round int, results []llm.ToolResult) (llm.Response, error) {
		return llm.Response{ToolCalls: []llm.ToolCall{
			call("get_shopping_lists", nil),
			call("delete_list", map[string]any{"list_name": "Saturday"}),
		}}, nil
	}}
	exec := &recordingExecutor{}

	res, err := newTestDispatcher(primary, nil, exec).Process(context.Background(), "u", "Delete my Saturday list", models.ScreenContext{}, nil)
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	if res.PendingAction == nil || res.PendingAction.ActionName != "delete_list" {
		t.Fatalf("pending = %+v", res.PendingAction)
	}
	if res.Text != "Delete your Saturday list? Say confirm or cancel." {
		t.Fatalf("prompt = %q", res.Text)
	}
	if calls := exec.Calls(); len(calls) != 0 {
		t.Fatalf("nothing in a held batch may run, got %v", calls)
	}
}

func TestDispatcher_ToolFailureIsFedBackToModel(t *testing.T) {
	primary := &MockProvider{NextFunc: func(ctx context.Context, req llm.Request, round int, results []llm.ToolResult) (llm.Response, error) {
		switch round {
		case 0:
			return llm.Response{ToolCalls: []llm.ToolCall{call("add_list_item", map[string]any{"item_name": "milk"}), call("not_a_tool", nil)}}, nil
		default:
			if len(results) != 2 || !results[0].IsError || !results[1].IsError {
				t.Errorf("expected two error results, got %+v", results)
			}
			return llm.Response{Text: "Sorry, I couldn't add milk."}, nil
		}
	}}
	exec := &recordingExecutor{fail: map[string]error{"add_list_item": errors.New("list not found")}}

	res, err := newTestDispatcher(primary, nil, exec).Process(context.Background(), "u", "add milk", models.ScreenContext{}, nil)
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	if res.Text != "Sorry, I couldn't add milk." {
		t.Fatalf("text = %q", res.Text)
	}
}

func TestDispatcher_SecondaryGetsReducedPrompt(t *testing.T) {
	primary := &MockProvider{NextFunc: func(ctx context.Context, req llm.Request, round int, results []llm.ToolResult) (llm.Response, error) {
		return llm.Response{}, errors.New("503 from upstream")
	}}
	secondary := &MockProvider{NameValue: "secondary", NextFunc: func(ctx context.Context, req llm.Request, round int, results []llm.ToolResult) (llm.Response, error) {
		return llm.Response{Text: "Milk is usually in the dairy aisle."}, nil
	}}
	history := []models.ConversationTurn{{Role: models.RoleUser, Text: "hi"}, {Role: models.RoleAssistant, Text: "hello"}}

	res, err := newTestDispatcher(primary, secondary, &recordingExecutor{}).Process(context.Background(), "u", "where is milk", models.ScreenContext{}, history)
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	if res.Source != SourceSecondary || res.Text != "Milk is usually in the dairy aisle." {
		t.Fatalf("result = %+v", res)
	}

	reqs := secondary.Requests()
	if len(reqs) != 1 {
		t.Fatalf("secondary called %d times", len(reqs))
	}
	if len(reqs[0].Tools) != 0 {
		t.Fatalf("secondary must not be offered tools")
	}
	if len(reqs[0].History) != 2 {
		t.Fatalf("secondary history = %d entries", len(reqs[0].History))
	}
}

func TestDispatcher_BothProvidersFail(t *testing.T) {
	fail := func(ctx context.Context, req llm.Request, round int, results []llm.ToolResult) (llm.Response, error) {
		return llm.Response{}, errors.New("down")
	}
	res, err := newTestDispatcher(&MockProvider{NextFunc: fail}, &MockProvider{NextFunc: fail}, &recordingExecutor{}).
		Process(context.Background(), "u", "hello", models.ScreenContext{}, nil)

	if !utils.IsCode(err, utils.CodeProviderFailure) {
		t.Fatalf("expected PROVIDER_FAILURE, got %v", err)
	}
	if res == nil || res.Text != MessageApology || res.Source != SourceFallback {
		t.Fatalf("result = %+v", res)
	}
}

func TestDispatcher_EmptyAnswerCountsAsFailure(t *testing.T) {
	primary := &MockProvider{NextFunc: func(ctx context.Context, req llm.Request, round int, results []llm.ToolResult) (llm.Response, error) {
		return llm.Response{Text: "   "}, nil
	}}
	secondary := &MockProvider{NextFunc: func(ctx context.Context, req llm.Request, round int, results []llm.ToolResult) (llm.Response, error) {
		return llm.Response{Text: "fallback"}, nil
	}}

	res, err := newTestDispatcher(primary, secondary, &recordingExecutor{}).Process(context.Background(), "u", "hello", models.ScreenContext{}, nil)
	if err != nil || res.Source != SourceSecondary {
		t.Fatalf("result = %+v err = %v", res, err)
	}
}

func TestDispatcher_ExecutePending(t *testing.T) {
	exec := &recordingExecutor{}
	d := newTestDispatcher(&MockProvider{}, nil, exec)

	text, err := d.ExecutePending(context.Background(), "u", models.PendingAction{ActionName: "delete_list", Parameters: map[string]any{"list_name": "Saturday"}})
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if text != "Okay, the list is deleted." {
		t.Fatalf("text = %q", text)
	}
	if got := exec.Calls(); len(got) != 1 || got[0] != "delete_list" {
		t.Fatalf("calls = %v", got)
	}

	exec.fail = map[string]error{"remove_list_item": errors.New("boom")}
	text, err = d.ExecutePending(context.Background(), "u", models.PendingAction{ActionName: "remove_list_item"})
	if !utils.IsCode(err, utils.CodeToolExecution) || text != MessageActionFailed {
		t.Fatalf("text = %q err = %v", text, err)
	}
}

func TestDispatcher_MalformedToolArgumentsUseSecondary(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"chatcmpl-1","object":"chat.completion","created":1,"model":"gpt-test",
			"choices":[{"index":0,"finish_reason":"tool_calls","message":{"role":"assistant","content":null,
			"tool_calls":[{"id":"c1","type":"function","function":{"name":"delete_list","arguments":"{\"list_id\": \"sat"}}]}}]}`))
	}))
	defer srv.Close()

	primary, err := llm.NewOpenAI(srv.URL, "sk-test", "gpt-test", option.WithMaxRetries(0))
	if err != nil {
		t.Fatal(err)
	}
	secondary := &MockProvider{NextFunc: func(ctx context.Context, req llm.Request, round int, results []llm.ToolResult) (llm.Response, error) {
		return llm.Response{Text: "I can't change your lists right now."}, nil
	}}
	exec := &recordingExecutor{}

	res, err := newTestDispatcher(primary, secondary, exec).Process(context.Background(), "user-1", "delete my saturday list", models.ScreenContext{}, nil)
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	if res.Source != SourceSecondary || res.PendingAction != nil {
		t.Fatalf("result = %+v", res)
	}
	if calls := exec.Calls(); len(calls) != 0 {
		t.Fatalf("tools ran on malformed arguments: %v", calls)
	}
}
