// Package orchestrator implements the turn facade (spec §4.11): it glues
// the tier classifier, provider manager, skill registry, confirmation
// manager, and agent loop into a single "handle one turn" operation, and
// records routing/usage/audit observations as it goes.
package orchestrator

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/agentturn/core/internal/agentloop"
	"github.com/agentturn/core/internal/confirm"
	"github.com/agentturn/core/internal/llm"
	"github.com/agentturn/core/internal/observability"
	"github.com/agentturn/core/internal/routing"
	"github.com/agentturn/core/internal/skillreg"
	"github.com/agentturn/core/internal/usage"
	"github.com/agentturn/core/pkg/models"
)

// RoutingRecord is one routing decision observation.
type RoutingRecord struct {
	UserID           string
	Provider         string
	Model            string
	Tier             models.Tier
	FailedOver       bool
	OriginalProvider string
	Timestamp        time.Time
}

// AuditRecord is one tool-or-turn audit observation.
type AuditRecord struct {
	UserID    string
	Action    string
	Detail    string
	Timestamp time.Time
}

// Recorder persists routing and audit observations. Implementations must
// never propagate an error back to the Orchestrator (spec §7:
// "AuditLogFailure et al. ... logged at warn, never propagated"); a nil
// Recorder is a valid no-op.
type Recorder interface {
	RecordRouting(RoutingRecord)
	RecordAudit(AuditRecord)
}

type noopRecorder struct{}

func (noopRecorder) RecordRouting(RoutingRecord) {}
func (noopRecorder) RecordAudit(AuditRecord)     {}

// Config wires an Orchestrator's collaborators.
type Config struct {
	Classifier      *routing.Classifier
	ProviderManager *llm.ProviderManager
	Registry        *skillreg.Registry
	Confirmations   *confirm.Manager
	Usage           *usage.Tracker
	Recorder        Recorder
	Logger          *slog.Logger
	Metrics         *observability.Metrics

	MaxToolCalls         int
	ToolExecutionTimeout time.Duration
	MaxTokenBudget       *int64
	MaxResponseTokens    int
	SystemPrompt         string
}

// Orchestrator handles one turn end to end.
type Orchestrator struct {
	cfg    Config
	logger *slog.Logger
}

// New constructs an Orchestrator from cfg. Recorder defaults to a no-op.
func New(cfg Config) *Orchestrator {
	if cfg.Recorder == nil {
		cfg.Recorder = noopRecorder{}
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Orchestrator{cfg: cfg, logger: cfg.Logger}
}

// HandleTurn implements spec §4.11's six-step algorithm.
func (o *Orchestrator) HandleTurn(ctx context.Context, req models.TurnRequest) (models.TurnResult, error) {
	if token, ok := confirm.IsConfirmationMessage(req.Text); ok {
		return o.handleConfirmation(ctx, req.UserID, token), nil
	}

	classification := o.cfg.Classifier.Classify(req.Text)
	tier := classification.Tier

	sel, err := o.cfg.ProviderManager.SelectFor(req.UserID, tier)
	if err != nil {
		o.recordError("provider_manager", err)
		return models.TurnResult{Text: userFacingSelectionError(err)}, nil
	}

	result, finalSel, finalTier, runErr := o.runWithEscalation(ctx, req, sel, tier)
	if runErr != nil {
		o.recordError("agent_loop", runErr)
		return models.TurnResult{Text: userFacingRunError(runErr)}, nil
	}

	in, out := result.TotalInput, result.TotalOutput
	o.cfg.Usage.Track(finalSel.Provider.Name(), finalSel.Model, finalTier, &in, &out)

	o.cfg.Recorder.RecordRouting(RoutingRecord{
		UserID:           req.UserID,
		Provider:         finalSel.Provider.Name(),
		Model:            finalSel.Model,
		Tier:             finalTier,
		FailedOver:       finalSel.FailedOver,
		OriginalProvider: finalSel.OriginalProvider,
		Timestamp:        time.Now(),
	})
	o.cfg.Recorder.RecordAudit(AuditRecord{
		UserID:    req.UserID,
		Action:    "turn",
		Detail:    result.Text,
		Timestamp: time.Now(),
	})

	return models.TurnResult{
		Text:                result.Text,
		PendingConfirmation: confirm.ContainsToken(result.Text),
	}, nil
}

// runWithEscalation runs the agent loop with sel/tier, and — if the loop
// reports a mid-turn escalation — re-selects a heavy-tier provider and
// restarts the run with the same user input (spec §9 decision).
func (o *Orchestrator) runWithEscalation(ctx context.Context, req models.TurnRequest, sel llm.Selection, tier models.Tier) (models.AgentRunResult, llm.Selection, models.Tier, error) {
	result, err := o.runOnce(ctx, req, sel, tier)

	var escalation *agentloop.EscalationRequiredError
	if e, ok := err.(*agentloop.EscalationRequiredError); ok {
		escalation = e
	}
	if escalation == nil {
		return result, sel, tier, err
	}
	if o.cfg.Metrics != nil {
		o.cfg.Metrics.RecordEscalation(escalation.ToolName)
	}

	heavySel, selErr := o.cfg.ProviderManager.SelectFor(req.UserID, models.TierHeavy)
	if selErr != nil {
		return result, sel, tier, selErr
	}
	result, err = o.runOnce(ctx, req, heavySel, models.TierHeavy)
	return result, heavySel, models.TierHeavy, err
}

func (o *Orchestrator) runOnce(ctx context.Context, req models.TurnRequest, sel llm.Selection, tier models.Tier) (models.AgentRunResult, error) {
	loop := agentloop.New(agentloop.Config{
		SystemPrompt:         o.cfg.SystemPrompt,
		Provider:             sel.Provider,
		Model:                sel.Model,
		Tools:                toModelTools(o.cfg.Registry.ToolDefinitions(skillreg.ToolFilters{})),
		MaxToolCalls:         o.cfg.MaxToolCalls,
		ToolExecutionTimeout: o.cfg.ToolExecutionTimeout,
		MaxTokenBudget:       o.cfg.MaxTokenBudget,
		MaxResponseTokens:    o.cfg.MaxResponseTokens,
		Tier:                 tier,
		IsHeavyTool:          o.cfg.Classifier.ShouldEscalate,
	}, o.cfg.Registry, o.logger)

	return loop.Run(ctx, req.UserID, req.Text)
}

func (o *Orchestrator) handleConfirmation(ctx context.Context, userID, token string) models.TurnResult {
	action := o.cfg.Confirmations.Consume(token, userID)
	if action == nil {
		return models.TurnResult{Text: "That confirmation is invalid or has expired."}
	}

	result := o.cfg.Registry.Execute(ctx, action.Tool, action.Input, skillreg.ExecContext{UserID: userID})
	o.cfg.Recorder.RecordAudit(AuditRecord{
		UserID:    userID,
		Action:    "confirmed:" + action.Tool,
		Detail:    result,
		Timestamp: time.Now(),
	})
	return models.TurnResult{Text: result}
}

// recordError reports a turn-ending error against the generic error counter,
// labeling it by the ProviderError/agentloop sentinel kind when known and
// "unknown" otherwise.
func (o *Orchestrator) recordError(component string, err error) {
	if o.cfg.Metrics == nil {
		return
	}
	errorType := "unknown"
	switch {
	case err == llm.ErrAllProvidersUnavailable, err == llm.ErrProviderUnavailable:
		errorType = "provider_unavailable"
	case err == agentloop.ErrCancelled:
		errorType = "cancelled"
	case err == agentloop.ErrTokenBudgetExceeded:
		errorType = "token_budget_exceeded"
	default:
		if pe, ok := err.(*llm.ProviderError); ok {
			errorType = string(pe.Kind)
		} else if _, ok := err.(*agentloop.EscalationRequiredError); ok {
			errorType = "escalation_required"
		}
	}
	o.cfg.Metrics.RecordError(component, errorType)
}

func toModelTools(defs []skillreg.ToolDefinition) []models.ToolDefinition {
	out := make([]models.ToolDefinition, 0, len(defs))
	for _, d := range defs {
		out = append(out, models.ToolDefinition{
			Name:                 d.Name,
			Description:          d.Description,
			InputSchema:          json.RawMessage(d.InputSchema),
			RequiresConfirmation: d.RequiresConfirmation,
			Sensitive:            d.Sensitive,
			MainAgentOnly:        d.MainAgentOnly,
		})
	}
	return out
}

// userFacingSelectionError translates a ProviderManager.SelectFor failure
// into the bounded, no-stack-trace message spec §7 requires.
func userFacingSelectionError(err error) string {
	if err == llm.ErrAllProvidersUnavailable {
		return "I'm having trouble reaching any language model provider right now. Please try again shortly."
	}
	return "I'm having trouble reaching the provider right now. Please try again shortly."
}

// userFacingRunError translates an AgentLoop.Run failure into a bounded
// user-facing message per spec §7's error taxonomy.
func userFacingRunError(err error) string {
	switch err.(type) {
	case *agentloop.EscalationRequiredError:
		return "I'm having trouble reaching any language model provider right now. Please try again shortly."
	}
	switch err {
	case agentloop.ErrCancelled:
		return "This request was cancelled."
	case agentloop.ErrTokenBudgetExceeded:
		return "This conversation has used its available token budget. Please start a new one."
	}
	if pe, ok := err.(*llm.ProviderError); ok {
		switch pe.Kind {
		case llm.ErrorKindAuth:
			return "There's a configuration problem reaching the language model provider."
		case llm.ErrorKindBudget:
			return "The language model provider reports its usage budget has been exhausted."
		case llm.ErrorKindModelUnavailable:
			return "The requested model is currently unavailable."
		case llm.ErrorKindInvalidRequest:
			return "That request couldn't be processed (context may be too long)."
		}
	}
	return "I'm having trouble reaching the provider right now. Please try again shortly."
}
