// Package llm defines the provider-agnostic LLM backend contract and the
// resilience layer (retry, backoff, circuit breaker, failover) wrapped
// around every concrete provider.
package llm

import (
	"context"

	"github.com/agentturn/core/pkg/models"
)

// Provider is the contract every concrete LLM backend must satisfy.
type Provider interface {
	Name() string
	Capabilities() models.ProviderCapabilities
	Chat(ctx context.Context, req models.ChatRequest) (models.ChatResponse, error)
}
