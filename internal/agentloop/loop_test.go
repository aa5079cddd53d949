package agentloop

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/agentturn/core/internal/skillreg"
	"github.com/agentturn/core/pkg/models"
)

type scriptedProvider struct {
	responses []models.ChatResponse
	calls     int
	requests  []models.ChatRequest
}

func (p *scriptedProvider) Name() string { return "scripted" }
func (p *scriptedProvider) Capabilities() models.ProviderCapabilities {
	return models.ProviderCapabilities{Tools: true}
}
func (p *scriptedProvider) Chat(ctx context.Context, req models.ChatRequest) (models.ChatResponse, error) {
	p.requests = append(p.requests, req)
	resp := p.responses[p.calls]
	p.calls++
	return resp, nil
}

func i64(v int64) *int64 { return &v }

func usage(in, out int64) models.Usage {
	return models.Usage{InputTokens: i64(in), OutputTokens: i64(out)}
}

type fakeDispatcher struct {
	calls   int
	results map[string][]string // toolName -> sequence of results to return on successive calls
}

func (d *fakeDispatcher) Execute(ctx context.Context, toolName string, input json.RawMessage, execCtx skillreg.ExecContext) string {
	d.calls++
	seq := d.results[toolName]
	if len(seq) == 0 {
		return `{"ok":true}`
	}
	idx := d.calls - 1
	if idx >= len(seq) {
		idx = len(seq) - 1
	}
	return seq[idx]
}

func TestHappyPath(t *testing.T) {
	provider := &scriptedProvider{responses: []models.ChatResponse{
		{Text: "hi", StopReason: models.StopEndTurn, Usage: usage(5, 3)},
	}}
	loop := New(Config{Provider: provider, Model: "m"}, &fakeDispatcher{}, nil)

	result, err := loop.Run(context.Background(), "u1", "hello")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Text != "hi" || result.ToolCallCount != 0 {
		t.Fatalf("unexpected result: %+v", result)
	}
	if len(result.Transcript) != 2 || result.Transcript[0].Content != "hello" || result.Transcript[1].Content != "hi" {
		t.Fatalf("unexpected transcript: %+v", result.Transcript)
	}
}

func TestOneToolCall(t *testing.T) {
	provider := &scriptedProvider{responses: []models.ChatResponse{
		{
			StopReason: models.StopToolUse,
			ToolCalls:  []models.ToolCall{{ID: "t1", Name: "note_list", Input: json.RawMessage(`{}`)}},
		},
		{Text: "No notes.", StopReason: models.StopEndTurn},
	}}
	dispatcher := &fakeDispatcher{results: map[string][]string{"note_list": {`{"results":[]}`}}}
	loop := New(Config{Provider: provider, Model: "m"}, dispatcher, nil)

	result, err := loop.Run(context.Background(), "u1", "list notes")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Text != "No notes." || result.ToolCallCount != 1 {
		t.Fatalf("unexpected result: %+v", result)
	}

	continuation := provider.requests[1]
	lastMsg := continuation.Messages[len(continuation.Messages)-1]
	if len(lastMsg.Blocks) != 1 || lastMsg.Blocks[0].ToolResultForID != "t1" {
		t.Fatalf("expected exactly one tool_result bound to t1, got %+v", lastMsg.Blocks)
	}
}

func TestToolOrderingInvariant(t *testing.T) {
	provider := &scriptedProvider{responses: []models.ChatResponse{
		{
			StopReason: models.StopToolUse,
			ToolCalls: []models.ToolCall{
				{ID: "a", Name: "x"},
				{ID: "b", Name: "x"},
				{ID: "c", Name: "x"},
			},
		},
		{Text: "done", StopReason: models.StopEndTurn},
	}}
	loop := New(Config{Provider: provider, Model: "m"}, &fakeDispatcher{}, nil)

	_, err := loop.Run(context.Background(), "u1", "go")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	continuation := provider.requests[1]
	userMsg := continuation.Messages[len(continuation.Messages)-1]
	if len(userMsg.Blocks) != 3 {
		t.Fatalf("expected 3 tool_result blocks, got %d", len(userMsg.Blocks))
	}
	wantIDs := []string{"a", "b", "c"}
	for i, id := range wantIDs {
		if userMsg.Blocks[i].ToolResultForID != id {
			t.Fatalf("block %d: expected id %q, got %q", i, id, userMsg.Blocks[i].ToolResultForID)
		}
	}
}

func TestMaxToolCallsBudget(t *testing.T) {
	provider := &scriptedProvider{responses: []models.ChatResponse{
		{StopReason: models.StopToolUse, ToolCalls: []models.ToolCall{{ID: "1", Name: "x"}}},
		{StopReason: models.StopToolUse, ToolCalls: []models.ToolCall{{ID: "2", Name: "x"}}},
		{StopReason: models.StopToolUse, ToolCalls: []models.ToolCall{{ID: "3", Name: "x"}}},
	}}
	loop := New(Config{Provider: provider, Model: "m", MaxToolCalls: 2}, &fakeDispatcher{}, nil)

	result, err := loop.Run(context.Background(), "u1", "go")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.ToolCallCount != 2 {
		t.Fatalf("expected tool_call_count=2, got %d", result.ToolCallCount)
	}
	if result.Text != "Reached maximum number of tool calls." {
		t.Fatalf("unexpected finalize text: %q", result.Text)
	}
	if provider.calls != 2 {
		t.Fatalf("expected exactly 2 LM calls (within max_tool_calls+1), got %d", provider.calls)
	}
}

func TestCancelledBeforeCall(t *testing.T) {
	sig := make(chan struct{})
	close(sig)
	provider := &scriptedProvider{responses: []models.ChatResponse{{Text: "unused", StopReason: models.StopEndTurn}}}
	loop := New(Config{Provider: provider, Model: "m", CancelSignal: sig}, &fakeDispatcher{}, nil)

	_, err := loop.Run(context.Background(), "u1", "hello")
	if err != ErrCancelled {
		t.Fatalf("expected ErrCancelled, got %v", err)
	}
	if provider.calls != 0 {
		t.Fatalf("expected no LM call once cancelled, got %d", provider.calls)
	}
}

func TestTokenBudgetExceeded(t *testing.T) {
	provider := &scriptedProvider{responses: []models.ChatResponse{
		{Text: "hi", StopReason: models.StopEndTurn, Usage: usage(100, 100)},
	}}
	budget := int64(50)
	loop := New(Config{Provider: provider, Model: "m", MaxTokenBudget: &budget}, &fakeDispatcher{}, nil)

	_, err := loop.Run(context.Background(), "u1", "hello")
	if err != ErrTokenBudgetExceeded {
		t.Fatalf("expected ErrTokenBudgetExceeded, got %v", err)
	}
}

func TestEscalationRequiredOnHeavyTool(t *testing.T) {
	provider := &scriptedProvider{responses: []models.ChatResponse{
		{StopReason: models.StopToolUse, ToolCalls: []models.ToolCall{{ID: "1", Name: "deep_research"}}},
	}}
	dispatcher := &fakeDispatcher{}
	loop := New(Config{
		Provider: provider, Model: "m",
		Tier:        models.TierLight,
		IsHeavyTool: func(name string) bool { return name == "deep_research" },
	}, dispatcher, nil)

	_, err := loop.Run(context.Background(), "u1", "go deep")
	escalation, ok := err.(*EscalationRequiredError)
	if !ok {
		t.Fatalf("expected *EscalationRequiredError, got %v (%T)", err, err)
	}
	if escalation.ToolName != "deep_research" {
		t.Fatalf("unexpected tool name: %q", escalation.ToolName)
	}
	if dispatcher.calls != 0 {
		t.Fatalf("expected no tool execution before escalation, got %d calls", dispatcher.calls)
	}
}

func TestToolExecutionRetriesOnceOnTransientError(t *testing.T) {
	provider := &scriptedProvider{responses: []models.ChatResponse{
		{StopReason: models.StopToolUse, ToolCalls: []models.ToolCall{{ID: "1", Name: "flaky"}}},
		{Text: "recovered", StopReason: models.StopEndTurn},
	}}
	dispatcher := &fakeDispatcher{results: map[string][]string{
		"flaky": {"error executing flaky: timeout", `{"ok":true}`},
	}}
	loop := New(Config{Provider: provider, Model: "m"}, dispatcher, nil)

	result, err := loop.Run(context.Background(), "u1", "go")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Text != "recovered" {
		t.Fatalf("unexpected result: %+v", result)
	}
	if dispatcher.calls != 2 {
		t.Fatalf("expected exactly one retry (2 calls total), got %d", dispatcher.calls)
	}
}

func TestNoResponseGeneratedFallback(t *testing.T) {
	provider := &scriptedProvider{responses: []models.ChatResponse{
		{Text: "", StopReason: models.StopEndTurn},
	}}
	loop := New(Config{Provider: provider, Model: "m"}, &fakeDispatcher{}, nil)

	result, err := loop.Run(context.Background(), "u1", "hello")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Text != "No response generated." {
		t.Fatalf("unexpected fallback text: %q", result.Text)
	}
}
