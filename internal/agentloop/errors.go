package agentloop

import "fmt"

// ErrCancelled is returned when the cancel signal was observed before a
// provider call was issued.
var ErrCancelled = fmt.Errorf("agentloop: run cancelled")

// ErrTokenBudgetExceeded is returned when accumulated input+output tokens
// exceed the run's configured max_token_budget.
var ErrTokenBudgetExceeded = fmt.Errorf("agentloop: token budget exceeded")

// EscalationRequiredError is returned when a light-tier run attempts to
// invoke a tool classified as heavy. The Orchestrator catches it, re-selects
// a heavy-tier provider/model, and restarts the run with the same
// transcript prefix.
type EscalationRequiredError struct {
	ToolName string
}

func (e *EscalationRequiredError) Error() string {
	return fmt.Sprintf("agentloop: tool %q requires escalation to the heavy tier", e.ToolName)
}
