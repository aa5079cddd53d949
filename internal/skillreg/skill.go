// Package skillreg implements the skill registry and tool dispatcher
// (spec §4.7): it registers skills, indexes their tools, validates inputs
// against JSON Schema, enforces health/rate-limit/confirmation/subagent
// policy, and is the only path by which tools execute.
package skillreg

import (
	"context"
	"encoding/json"
)

// Kind distinguishes a pluggable skill from an integration.
type Kind string

const (
	KindSkill       Kind = "skill"
	KindIntegration Kind = "integration"
)

// ToolDefinition is what a Skill advertises for one callable tool.
type ToolDefinition struct {
	Name                 string
	Description          string
	InputSchema          json.RawMessage
	RequiresConfirmation bool
	Sensitive            bool
	MainAgentOnly        bool
}

// Skill is the contract every pluggable capability implements (spec §6).
type Skill interface {
	Name() string
	Description() string
	Kind() Kind
	Tools() []ToolDefinition
	RequiredConfig() []string
	Execute(ctx context.Context, toolName string, input json.RawMessage) (string, error)
	Startup(ctx context.Context) error
	Shutdown(ctx context.Context) error
}
