// Package agentloop implements the LM-to-tool-call scheduler (spec §4.9):
// it alternates provider calls and tool executions under a tool-call budget,
// an optional token budget, and cooperative cancellation, while preserving
// strict transcript ordering.
package agentloop

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/agentturn/core/internal/llm"
	"github.com/agentturn/core/internal/skillreg"
	"github.com/agentturn/core/pkg/models"
)

const (
	DefaultMaxToolCalls         = 10
	DefaultToolExecutionTimeout = 30 * time.Second
	DefaultMaxResponseTokens    = 4096
)

// Dispatcher is the subset of skillreg.Registry the loop needs. Satisfied by
// *skillreg.Registry.
type Dispatcher interface {
	Execute(ctx context.Context, toolName string, input json.RawMessage, execCtx skillreg.ExecContext) string
}

// Config configures one AgentLoop run (spec §4.9).
type Config struct {
	Name         string
	SystemPrompt string
	Provider     llm.Provider
	Model        string
	Tools        []models.ToolDefinition

	IsSubagent bool

	MaxToolCalls         int
	ToolExecutionTimeout time.Duration
	MaxTokenBudget       *int64
	MaxResponseTokens    int
	CancelSignal         <-chan struct{}

	// Tier and IsHeavyTool drive the mid-turn escalation contract (spec
	// §4.5/§9): if Tier is light and the LM requests a tool for which
	// IsHeavyTool reports true, the run aborts with
	// *EscalationRequiredError instead of executing it. Nil IsHeavyTool
	// means a run never escalates.
	Tier       models.Tier
	IsHeavyTool func(toolName string) bool
}

func (c Config) sanitize() Config {
	if c.MaxToolCalls <= 0 {
		c.MaxToolCalls = DefaultMaxToolCalls
	}
	if c.ToolExecutionTimeout <= 0 {
		c.ToolExecutionTimeout = DefaultToolExecutionTimeout
	}
	if c.MaxResponseTokens <= 0 {
		c.MaxResponseTokens = DefaultMaxResponseTokens
	}
	return c
}

// AgentLoop drives one conversational turn from message to final reply.
type AgentLoop struct {
	cfg        Config
	dispatcher Dispatcher
	logger     *slog.Logger
}

// New constructs an AgentLoop. cfg zero values fall back to spec defaults.
func New(cfg Config, dispatcher Dispatcher, logger *slog.Logger) *AgentLoop {
	if logger == nil {
		logger = slog.Default()
	}
	return &AgentLoop{cfg: cfg.sanitize(), dispatcher: dispatcher, logger: logger}
}

func cancelled(sig <-chan struct{}) bool {
	if sig == nil {
		return false
	}
	select {
	case <-sig:
		return true
	default:
		return false
	}
}

// Run drives the state machine of spec §4.9 for a single user_input turn.
func (l *AgentLoop) Run(ctx context.Context, userID, userInput string) (models.AgentRunResult, error) {
	transcript := []models.TranscriptEntry{
		{Role: models.RoleUser, Content: userInput, Timestamp: time.Now()},
	}
	messages := []models.Message{models.UserMessage(userInput)}

	var toolCallCount int
	var totalIn, totalOut int64

	execCtx := skillreg.ExecContext{IsSubagent: l.cfg.IsSubagent, UserID: userID}

	for {
		// Termination condition 1: cancel_signal observed before the LM call.
		if cancelled(l.cfg.CancelSignal) {
			return partialResult(transcript, totalIn, totalOut, toolCallCount), ErrCancelled
		}

		req := models.ChatRequest{
			Model:     l.cfg.Model,
			System:    l.cfg.SystemPrompt,
			Messages:  messages,
			Tools:     l.cfg.Tools,
			MaxTokens: l.cfg.MaxResponseTokens,
		}

		resp, err := l.cfg.Provider.Chat(ctx, req)
		if err != nil {
			return partialResult(transcript, totalIn, totalOut, toolCallCount), err
		}

		if resp.Usage.InputTokens != nil {
			totalIn += *resp.Usage.InputTokens
		}
		if resp.Usage.OutputTokens != nil {
			totalOut += *resp.Usage.OutputTokens
		}

		// Termination condition 3: token budget.
		if l.cfg.MaxTokenBudget != nil && totalIn+totalOut > *l.cfg.MaxTokenBudget {
			return partialResult(transcript, totalIn, totalOut, toolCallCount), ErrTokenBudgetExceeded
		}

		if resp.StopReason != models.StopToolUse {
			text := resp.Text
			if text == "" {
				text = "No response generated."
			}
			transcript = append(transcript, models.TranscriptEntry{Role: models.RoleAssistant, Content: text, Timestamp: time.Now()})
			return models.AgentRunResult{
				Text:          text,
				TotalInput:    totalIn,
				TotalOutput:   totalOut,
				ToolCallCount: toolCallCount,
				Transcript:    transcript,
			}, nil
		}

		// stop_reason = tool_use.
		if resp.Text != "" {
			transcript = append(transcript, models.TranscriptEntry{Role: models.RoleAssistant, Content: resp.Text, Timestamp: time.Now()})
		}

		if esc := l.escalationFor(resp.ToolCalls); esc != nil {
			return partialResult(transcript, totalIn, totalOut, toolCallCount), esc
		}

		assistantBlocks, toolResultBlocks := l.executeToolBatch(ctx, resp, execCtx, &transcript)
		toolCallCount += len(resp.ToolCalls)

		messages = append(messages,
			models.Message{Role: models.RoleAssistant, Blocks: assistantBlocks},
			models.Message{Role: models.RoleUser, Blocks: toolResultBlocks},
		)

		// Termination condition 2: tool-call budget. Evaluated after the
		// batch that reaches the cap so the loop never issues another LM
		// call past max_tool_calls+1 total calls.
		if toolCallCount >= l.cfg.MaxToolCalls {
			text := resp.Text
			if text == "" {
				text = "Reached maximum number of tool calls."
			}
			transcript = append(transcript, models.TranscriptEntry{Role: models.RoleAssistant, Content: text, Timestamp: time.Now()})
			return models.AgentRunResult{
				Text:          text,
				TotalInput:    totalIn,
				TotalOutput:   totalOut,
				ToolCallCount: toolCallCount,
				Transcript:    transcript,
			}, nil
		}
	}
}

// escalationFor reports the first heavy tool requested by calls, or nil if
// none requires escalation (including when the run is already heavy-tier or
// no heavy-tool classifier was configured).
func (l *AgentLoop) escalationFor(calls []models.ToolCall) error {
	if l.cfg.Tier != models.TierLight || l.cfg.IsHeavyTool == nil {
		return nil
	}
	for _, tc := range calls {
		if l.cfg.IsHeavyTool(tc.Name) {
			return &EscalationRequiredError{ToolName: tc.Name}
		}
	}
	return nil
}

// executeToolBatch runs every tool call in resp.ToolCalls sequentially, in
// order, recording a matching tool_result for each and appending to
// transcript. It returns the assistant content blocks (text then tool_use)
// and the tool_result blocks in the same order as the tool_use blocks, so
// the continuation request can bind them by id.
func (l *AgentLoop) executeToolBatch(ctx context.Context, resp models.ChatResponse, execCtx skillreg.ExecContext, transcript *[]models.TranscriptEntry) ([]models.ContentBlock, []models.ContentBlock) {
	assistantBlocks := make([]models.ContentBlock, 0, len(resp.ToolCalls)+1)
	if resp.Text != "" {
		assistantBlocks = append(assistantBlocks, models.TextBlock(resp.Text))
	}

	toolResultBlocks := make([]models.ContentBlock, 0, len(resp.ToolCalls))
	for _, tc := range resp.ToolCalls {
		assistantBlocks = append(assistantBlocks, models.ToolUseBlock(tc.ID, tc.Name, tc.Input))

		result := l.executeOneTool(ctx, tc, execCtx)
		isError := skillreg.IsExecutionError(result)
		toolResultBlocks = append(toolResultBlocks, models.ToolResultBlock(tc.ID, result, isError))

		*transcript = append(*transcript, models.TranscriptEntry{
			Role:      models.RoleToolResult,
			Content:   result,
			ToolName:  tc.Name,
			Timestamp: time.Now(),
		})
	}
	return assistantBlocks, toolResultBlocks
}

// executeOneTool runs a single tool call through the dispatcher with the
// configured per-call timeout and at most one automatic retry when the
// first attempt fails with a skill execution error classified as retryable
// (the same 429/500/503/rate-limit/overloaded/timeout set as provider
// errors, spec §4.2/§4.9).
func (l *AgentLoop) executeOneTool(ctx context.Context, tc models.ToolCall, execCtx skillreg.ExecContext) string {
	result := l.runDispatch(ctx, tc, execCtx)
	if skillreg.IsExecutionError(result) && llm.ClassifyToolError(tc.Name, result).Retryable() {
		result = l.runDispatch(ctx, tc, execCtx)
	}
	return result
}

func (l *AgentLoop) runDispatch(ctx context.Context, tc models.ToolCall, execCtx skillreg.ExecContext) string {
	callCtx, cancel := context.WithTimeout(ctx, l.cfg.ToolExecutionTimeout)
	defer cancel()
	return l.dispatcher.Execute(callCtx, tc.Name, tc.Input, execCtx)
}

func partialResult(transcript []models.TranscriptEntry, totalIn, totalOut int64, toolCallCount int) models.AgentRunResult {
	return models.AgentRunResult{
		TotalInput:    totalIn,
		TotalOutput:   totalOut,
		ToolCallCount: toolCallCount,
		Transcript:    transcript,
	}
}
