package llm

import (
	"context"
	"log/slog"
	"time"

	"github.com/agentturn/core/internal/breaker"
	"github.com/agentturn/core/internal/eventbus"
	"github.com/agentturn/core/internal/observability"
	"github.com/agentturn/core/pkg/models"
)

// retryDelays mirrors spec §4.2: 1 initial attempt plus these backoffs.
var retryDelays = []time.Duration{100 * time.Millisecond, 200 * time.Millisecond, 400 * time.Millisecond}

// ResilientProvider wraps a concrete Provider with retry+backoff and
// circuit-breaker integration.
type ResilientProvider struct {
	inner   Provider
	br      *breaker.Breaker
	bus     *eventbus.Bus
	logger  *slog.Logger
	metrics *observability.Metrics
}

// NewResilientProvider wraps inner with a fresh breaker using cfg. metrics
// may be nil (metrics recording is skipped).
func NewResilientProvider(inner Provider, cfg breaker.Config, bus *eventbus.Bus, logger *slog.Logger, metrics *observability.Metrics) *ResilientProvider {
	if logger == nil {
		logger = slog.Default()
	}
	return &ResilientProvider{
		inner:   inner,
		br:      breaker.New(cfg),
		bus:     bus,
		logger:  logger,
		metrics: metrics,
	}
}

// Name passes through to the wrapped provider.
func (r *ResilientProvider) Name() string { return r.inner.Name() }

// Capabilities passes through to the wrapped provider.
func (r *ResilientProvider) Capabilities() models.ProviderCapabilities { return r.inner.Capabilities() }

// Breaker exposes the underlying breaker for ProviderManager selection.
func (r *ResilientProvider) Breaker() *breaker.Breaker { return r.br }

// Chat implements the resilience algorithm of spec §4.2.
func (r *ResilientProvider) Chat(ctx context.Context, req models.ChatRequest) (models.ChatResponse, error) {
	if !r.br.CanExecute() {
		return models.ChatResponse{}, &ProviderError{Provider: r.inner.Name(), Kind: ErrorKindUnknown, Err: ErrProviderUnavailable}
	}

	start := time.Now()
	var lastErr error
	for attempt := 0; attempt <= len(retryDelays); attempt++ {
		if ctx.Err() != nil {
			return models.ChatResponse{}, ctx.Err()
		}

		resp, err := r.inner.Chat(ctx, req)
		if err == nil {
			r.br.RecordSuccess()
			r.recordRequestMetric(req.Model, "ok", start, resp.Usage)
			r.reportBreakerState()
			return resp, nil
		}

		classified := classifyProviderError(r.inner.Name(), err)
		lastErr = classified

		if attempt >= len(retryDelays) || !classified.Retryable() {
			break
		}

		select {
		case <-ctx.Done():
			return models.ChatResponse{}, ctx.Err()
		case <-time.After(retryDelays[attempt]):
		}
	}

	stateBefore := r.br.State()
	r.br.RecordFailure()
	r.recordRequestMetric(req.Model, "error", start, models.Usage{})
	if stateBefore != "open" && r.br.State() == "open" && r.bus != nil {
		r.bus.Publish(models.Event{
			EventType: "alert.system.llm_failure",
			Source:    r.inner.Name(),
			Severity:  models.SeverityHigh,
			Payload: map[string]any{
				"provider": r.inner.Name(),
				"error":    lastErr.Error(),
			},
		})
	}
	r.reportBreakerState()
	return models.ChatResponse{}, lastErr
}

func (r *ResilientProvider) recordRequestMetric(model, status string, start time.Time, usage models.Usage) {
	if r.metrics == nil {
		return
	}
	var in, out int64
	if usage.InputTokens != nil {
		in = *usage.InputTokens
	}
	if usage.OutputTokens != nil {
		out = *usage.OutputTokens
	}
	r.metrics.RecordLLMRequest(r.inner.Name(), model, status, time.Since(start).Seconds(), in, out)
}

// breakerStateValue maps breaker.Breaker.State() (spec §4.2's three states)
// to the gauge value SetBreakerState expects.
func breakerStateValue(state breaker.State) float64 {
	switch state {
	case breaker.HalfOpen:
		return 1
	case breaker.Open:
		return 2
	default:
		return 0
	}
}

func (r *ResilientProvider) reportBreakerState() {
	if r.metrics != nil {
		r.metrics.SetBreakerState(r.inner.Name(), breakerStateValue(r.br.State()))
	}
}
