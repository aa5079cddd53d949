// Package models holds the data types shared across the agent execution core:
// messages, content blocks, tool definitions, and the records produced by a turn.
package models

import (
	"encoding/json"
	"time"
)

// Role identifies who produced a Message or TranscriptEntry.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleToolResult Role = "tool_result"
)

// Tier is the coarse latency/cost class used for LM routing.
type Tier string

const (
	TierLight Tier = "light"
	TierHeavy Tier = "heavy"
)

// StopReason describes why a provider stopped generating.
type StopReason string

const (
	StopEndTurn   StopReason = "end_turn"
	StopToolUse   StopReason = "tool_use"
	StopMaxTokens StopReason = "max_tokens"
)

// Severity classifies an Event for alert routing.
type Severity string

const (
	SeverityHigh   Severity = "high"
	SeverityMedium Severity = "medium"
	SeverityLow    Severity = "low"
)

// BlockKind tags the variant held by a ContentBlock.
type BlockKind string

const (
	BlockText       BlockKind = "text"
	BlockToolUse    BlockKind = "tool_use"
	BlockToolResult BlockKind = "tool_result"
)

// ContentBlock is a tagged union: exactly one of the kind-specific fields is
// populated, selected by Kind.
type ContentBlock struct {
	Kind BlockKind `json:"kind"`

	// BlockText
	Text string `json:"text,omitempty"`

	// BlockToolUse
	ToolUseID   string          `json:"tool_use_id,omitempty"`
	ToolName    string          `json:"tool_name,omitempty"`
	ToolInput   json.RawMessage `json:"tool_input,omitempty"`

	// BlockToolResult
	ToolResultForID string `json:"tool_result_for_id,omitempty"`
	ToolResultText  string `json:"tool_result_text,omitempty"`
	ToolResultError bool   `json:"tool_result_error,omitempty"`
}

// TextBlock constructs a text content block.
func TextBlock(text string) ContentBlock {
	return ContentBlock{Kind: BlockText, Text: text}
}

// ToolUseBlock constructs a tool_use content block.
func ToolUseBlock(id, name string, input json.RawMessage) ContentBlock {
	return ContentBlock{Kind: BlockToolUse, ToolUseID: id, ToolName: name, ToolInput: input}
}

// ToolResultBlock constructs a tool_result content block bound to a prior tool_use id.
func ToolResultBlock(toolUseID, content string, isError bool) ContentBlock {
	return ContentBlock{Kind: BlockToolResult, ToolResultForID: toolUseID, ToolResultText: content, ToolResultError: isError}
}

// Message is one turn of conversation sent to or received from a provider.
// Content is either plain text (Text non-empty, Blocks nil) or a sequence of
// content blocks (Blocks non-nil).
type Message struct {
	Role   Role           `json:"role"`
	Text   string         `json:"text,omitempty"`
	Blocks []ContentBlock `json:"blocks,omitempty"`
}

// UserMessage constructs a plain-text user message.
func UserMessage(text string) Message {
	return Message{Role: RoleUser, Text: text}
}

// ToolCall is an LM-produced request to invoke a named tool with structured input.
type ToolCall struct {
	ID    string          `json:"id"`
	Name  string          `json:"name"`
	Input json.RawMessage `json:"input"`
}

// ToolDefinition advertises a callable tool to providers and gates its dispatch.
type ToolDefinition struct {
	Name                string          `json:"name"`
	Description         string          `json:"description"`
	InputSchema         json.RawMessage `json:"input_schema"`
	RequiresConfirmation bool           `json:"requires_confirmation,omitempty"`
	Sensitive           bool            `json:"sensitive,omitempty"`
	MainAgentOnly       bool            `json:"main_agent_only,omitempty"`
}

// ProviderCapabilities describes what a concrete LLM backend supports.
type ProviderCapabilities struct {
	Tools              bool `json:"tools"`
	ParallelToolCalls  bool `json:"parallel_tool_calls"`
	UsageMetrics       bool `json:"usage_metrics"`
	JSONMode           bool `json:"json_mode"`
	Streaming          bool `json:"streaming"`
}

// Usage holds token counts for a single completion. Nil pointer fields (here
// modeled with -1 sentinel since Go has no nullable int without a pointer)
// are represented as pointers so "unknown" is distinguishable from zero.
type Usage struct {
	InputTokens  *int64 `json:"input_tokens,omitempty"`
	OutputTokens *int64 `json:"output_tokens,omitempty"`
}

// ChatRequest is the provider-agnostic request shape.
type ChatRequest struct {
	Model      string                 `json:"model"`
	System     string                 `json:"system,omitempty"`
	Messages   []Message              `json:"messages"`
	Tools      []ToolDefinition       `json:"tools,omitempty"`
	MaxTokens  int                    `json:"max_tokens"`
}

// ChatResponse is the provider-agnostic response shape.
type ChatResponse struct {
	Text       string     `json:"text,omitempty"`
	ToolCalls  []ToolCall `json:"tool_calls"`
	StopReason StopReason `json:"stop_reason"`
	Usage      Usage      `json:"usage"`
	Model      string     `json:"model"`
	Provider   string     `json:"provider"`
}

// TranscriptEntry is one append-only record within a single agent run.
type TranscriptEntry struct {
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
	ToolName  string    `json:"tool_name,omitempty"`
}

// AgentRunResult is the outcome of one AgentLoop.Run invocation.
type AgentRunResult struct {
	Text          string
	TotalInput    int64
	TotalOutput   int64
	ToolCallCount int
	Transcript    []TranscriptEntry
}

// UsageRecord is one tracked unit of provider usage.
type UsageRecord struct {
	Provider      string
	Model         string
	Tier          Tier
	InputTokens   *int64
	OutputTokens  *int64
	EstimatedCost *float64
	Timestamp     time.Time
}

// Event is a published pub/sub message.
type Event struct {
	EventType string         `json:"event_type"`
	Timestamp time.Time      `json:"timestamp"`
	Source    string         `json:"source"`
	Payload   map[string]any `json:"payload,omitempty"`
	Severity  Severity       `json:"severity"`
	EventID   string         `json:"event_id,omitempty"`
}

// Attachment describes a file handed to a turn by a transport adapter.
type Attachment struct {
	Name       string `json:"name"`
	LocalPath  string `json:"local_path"`
	MimeType   string `json:"mime_type,omitempty"`
	SizeBytes  int64  `json:"size_bytes"`
}

// OutputFile describes a file produced during a turn and returned to the transport adapter.
type OutputFile struct {
	Name     string `json:"name"`
	Path     string `json:"path"`
	MimeType string `json:"mime_type,omitempty"`
}

// TurnRequest is the inbound shape handled by the Orchestrator.
type TurnRequest struct {
	UserID      string
	Text        string
	Channel     string
	Attachments []Attachment
	TempDir     string
}

// TurnResult is the outbound shape returned by the Orchestrator.
type TurnResult struct {
	Text               string
	Files              []OutputFile
	PendingConfirmation bool
}
