package orchestrator

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/agentturn/core/internal/breaker"
	"github.com/agentturn/core/internal/confirm"
	"github.com/agentturn/core/internal/llm"
	"github.com/agentturn/core/internal/routing"
	"github.com/agentturn/core/internal/skillreg"
	"github.com/agentturn/core/internal/usage"
	"github.com/agentturn/core/pkg/models"
)

type fixedProvider struct {
	name string
	text string
}

func (p *fixedProvider) Name() string { return p.name }
func (p *fixedProvider) Capabilities() models.ProviderCapabilities {
	return models.ProviderCapabilities{}
}
func (p *fixedProvider) Chat(ctx context.Context, req models.ChatRequest) (models.ChatResponse, error) {
	return models.ChatResponse{Text: p.text, StopReason: models.StopEndTurn}, nil
}

type toolUseThenEndProvider struct {
	name     string
	toolName string
	calls    int
}

func (p *toolUseThenEndProvider) Name() string { return p.name }
func (p *toolUseThenEndProvider) Capabilities() models.ProviderCapabilities {
	return models.ProviderCapabilities{}
}
func (p *toolUseThenEndProvider) Chat(ctx context.Context, req models.ChatRequest) (models.ChatResponse, error) {
	p.calls++
	if p.calls == 1 {
		return models.ChatResponse{
			StopReason: models.StopToolUse,
			ToolCalls:  []models.ToolCall{{ID: "1", Name: p.toolName}},
		}, nil
	}
	return models.ChatResponse{Text: "handled on heavy tier", StopReason: models.StopEndTurn}, nil
}

type recordingRecorder struct {
	routing []RoutingRecord
	audit   []AuditRecord
}

func (r *recordingRecorder) RecordRouting(rec RoutingRecord) { r.routing = append(r.routing, rec) }
func (r *recordingRecorder) RecordAudit(rec AuditRecord)     { r.audit = append(r.audit, rec) }

func newTestOrchestrator(t *testing.T, providerA, providerB llm.Provider, reg *skillreg.Registry, rec *recordingRecorder) (*Orchestrator, *llm.ProviderManager) {
	t.Helper()
	pm := llm.NewProviderManager("A", "model-a", []string{"B"}, nil)
	rpA := llm.NewResilientProvider(providerA, breaker.Config{}, nil, nil, nil)
	pm.RegisterProvider(rpA, []string{"model-a"})
	if providerB != nil {
		rpB := llm.NewResilientProvider(providerB, breaker.Config{}, nil, nil, nil)
		pm.RegisterProvider(rpB, []string{"model-b"})
	}
	if reg == nil {
		reg = skillreg.New(skillreg.Options{})
	}
	o := New(Config{
		Classifier:      routing.New(routing.DefaultConfig()),
		ProviderManager: pm,
		Registry:        reg,
		Confirmations:   confirm.New(confirm.DefaultConfig()),
		Usage:           usage.New(usage.Config{}),
		Recorder:        rec,
	})
	return o, pm
}

func TestHandleTurnHappyPath(t *testing.T) {
	rec := &recordingRecorder{}
	o, _ := newTestOrchestrator(t, &fixedProvider{name: "A", text: "hi"}, &fixedProvider{name: "B", text: "hi-b"}, nil, rec)

	result, err := o.HandleTurn(context.Background(), models.TurnRequest{UserID: "u1", Text: "hello"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Text != "hi" {
		t.Fatalf("unexpected result: %+v", result)
	}
	if len(rec.routing) != 1 || rec.routing[0].Provider != "A" || rec.routing[0].FailedOver {
		t.Fatalf("unexpected routing record: %+v", rec.routing)
	}
}

func TestHandleTurnFailsOverWhenBreakerOpen(t *testing.T) {
	rec := &recordingRecorder{}
	o, pm := newTestOrchestrator(t, &fixedProvider{name: "A", text: "hi-a"}, &fixedProvider{name: "B", text: "hi-b"}, nil, rec)

	// trip A's breaker directly, as ResilientProvider would after repeated
	// transient failures (spec §8 scenario 3).
	provA := pm.MustProviderForTest("A")
	for i := 0; i < 5; i++ {
		provA.Breaker().RecordFailure()
	}

	result, err := o.HandleTurn(context.Background(), models.TurnRequest{UserID: "u1", Text: "hello"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Text != "hi-b" {
		t.Fatalf("expected failover to B's response, got %+v", result)
	}
	if len(rec.routing) != 1 || !rec.routing[0].FailedOver || rec.routing[0].Provider != "B" || rec.routing[0].OriginalProvider != "A" {
		t.Fatalf("unexpected routing record: %+v", rec.routing)
	}
}

type confirmableSkill struct {
	executed int
}

func (s *confirmableSkill) Name() string                 { return "files" }
func (s *confirmableSkill) Description() string           { return "file ops" }
func (s *confirmableSkill) Kind() skillreg.Kind            { return skillreg.KindSkill }
func (s *confirmableSkill) RequiredConfig() []string       { return nil }
func (s *confirmableSkill) Startup(context.Context) error  { return nil }
func (s *confirmableSkill) Shutdown(context.Context) error { return nil }
func (s *confirmableSkill) Tools() []skillreg.ToolDefinition {
	return []skillreg.ToolDefinition{{Name: "delete_file_execute", RequiresConfirmation: true}}
}
func (s *confirmableSkill) Execute(ctx context.Context, toolName string, input json.RawMessage) (string, error) {
	s.executed++
	return "deleted", nil
}

func TestHandleTurnConfirmationRoundTrip(t *testing.T) {
	reg := skillreg.New(skillreg.Options{})
	skill := &confirmableSkill{}
	if err := reg.Register(skill, nil); err != nil {
		t.Fatalf("register failed: %v", err)
	}

	rec := &recordingRecorder{}
	o, _ := newTestOrchestrator(t, &fixedProvider{name: "A", text: "hi"}, nil, reg, rec)

	token, err := o.cfg.Confirmations.Create("u1", "files", "delete_file_execute", nil, "delete the file?", "")
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}

	result, err := o.HandleTurn(context.Background(), models.TurnRequest{UserID: "u1", Text: "confirm " + token})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Text != "deleted" || skill.executed != 1 {
		t.Fatalf("expected confirmed execution, got %+v executed=%d", result, skill.executed)
	}

	second, err := o.HandleTurn(context.Background(), models.TurnRequest{UserID: "u1", Text: "confirm " + token})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if second.Text != "That confirmation is invalid or has expired." {
		t.Fatalf("expected second consume to fail, got %+v", second)
	}
}

func TestHandleTurnEscalatesToHeavyTier(t *testing.T) {
	rec := &recordingRecorder{}
	providerA := &toolUseThenEndProvider{name: "A", toolName: "deep_research"}
	pm := llm.NewProviderManager("A", "model-a", nil, nil)
	rpA := llm.NewResilientProvider(providerA, breaker.Config{}, nil, nil, nil)
	pm.RegisterProvider(rpA, []string{"model-a"})

	classifier := routing.New(routing.Config{HeavyTools: map[string]bool{"deep_research": true}})
	o := New(Config{
		Classifier:      classifier,
		ProviderManager: pm,
		Registry:        skillreg.New(skillreg.Options{}),
		Confirmations:   confirm.New(confirm.DefaultConfig()),
		Usage:           usage.New(usage.Config{}),
		Recorder:        rec,
	})

	result, err := o.HandleTurn(context.Background(), models.TurnRequest{UserID: "u1", Text: "short"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Text != "handled on heavy tier" {
		t.Fatalf("expected heavy-tier completion, got %+v", result)
	}
	if len(rec.routing) != 1 || rec.routing[0].Tier != models.TierHeavy {
		t.Fatalf("expected routing record tagged heavy tier, got %+v", rec.routing)
	}
}

func TestHandleTurnAllProvidersUnavailable(t *testing.T) {
	rec := &recordingRecorder{}
	o, pm := newTestOrchestrator(t, &fixedProvider{name: "A", text: "hi"}, &fixedProvider{name: "B", text: "hi-b"}, nil, rec)

	provA := pm.MustProviderForTest("A")
	provB := pm.MustProviderForTest("B")
	for i := 0; i < 5; i++ {
		provA.Breaker().RecordFailure()
		provB.Breaker().RecordFailure()
	}

	result, err := o.HandleTurn(context.Background(), models.TurnRequest{UserID: "u1", Text: "hello"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Text == "hi" || result.Text == "hi-b" {
		t.Fatalf("expected a bounded trouble-reaching-provider message, got %+v", result)
	}
	if len(rec.routing) != 0 {
		t.Fatalf("expected no routing record when selection fails, got %+v", rec.routing)
	}
}
