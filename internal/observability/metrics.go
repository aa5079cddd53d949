package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics centralizes the Prometheus collectors exercised by the agent
// loop, the provider manager, and the skill registry:
//   - LM request latency, token usage, and escalations by provider/model
//   - tool dispatch latency and outcome by tool name
//   - circuit breaker trips and current state by provider
//   - per-skill health transitions
//   - usage/cost accounting
type Metrics struct {
	LLMRequestDuration *prometheus.HistogramVec
	LLMRequestCounter  *prometheus.CounterVec
	LLMTokensUsed      *prometheus.CounterVec
	LLMCostUSD         *prometheus.CounterVec

	ToolExecutionCounter  *prometheus.CounterVec
	ToolExecutionDuration *prometheus.HistogramVec

	BreakerTrips *prometheus.CounterVec
	BreakerState *prometheus.GaugeVec

	SkillHealthState *prometheus.GaugeVec

	EscalationsTotal   *prometheus.CounterVec
	ConfirmationsTotal *prometheus.CounterVec
	RateLimitRejected  *prometheus.CounterVec

	ErrorCounter *prometheus.CounterVec
}

// NewMetrics builds and registers every collector against the default
// Prometheus registry. Call once at process startup.
func NewMetrics() *Metrics {
	return &Metrics{
		LLMRequestDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "agentturn_llm_request_duration_seconds",
				Help:    "Duration of LM provider calls in seconds",
				Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
			},
			[]string{"provider", "model"},
		),
		LLMRequestCounter: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "agentturn_llm_requests_total",
				Help: "Total LM provider calls by provider, model, and status",
			},
			[]string{"provider", "model", "status"},
		),
		LLMTokensUsed: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "agentturn_llm_tokens_total",
				Help: "Total tokens consumed by provider, model, and token type",
			},
			[]string{"provider", "model", "type"},
		),
		LLMCostUSD: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "agentturn_llm_cost_usd_total",
				Help: "Estimated LM cost in USD by provider and model",
			},
			[]string{"provider", "model"},
		),

		ToolExecutionCounter: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "agentturn_tool_executions_total",
				Help: "Total tool dispatches by tool name and outcome",
			},
			[]string{"tool_name", "status"},
		),
		ToolExecutionDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "agentturn_tool_execution_duration_seconds",
				Help:    "Duration of tool dispatches in seconds",
				Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30, 60},
			},
			[]string{"tool_name"},
		),

		BreakerTrips: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "agentturn_breaker_trips_total",
				Help: "Total circuit breaker open transitions by provider",
			},
			[]string{"provider"},
		),
		BreakerState: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "agentturn_breaker_state",
				Help: "Current breaker state by provider (0=closed, 1=half_open, 2=open)",
			},
			[]string{"provider"},
		),

		SkillHealthState: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "agentturn_skill_health_state",
				Help: "Current skill health state (0=healthy, 1=degraded, 2=unavailable)",
			},
			[]string{"skill"},
		),

		EscalationsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "agentturn_tier_escalations_total",
				Help: "Total mid-turn tier escalations by triggering tool",
			},
			[]string{"tool_name"},
		),
		ConfirmationsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "agentturn_confirmations_total",
				Help: "Total confirmation tokens issued and resolved by outcome",
			},
			[]string{"outcome"},
		),
		RateLimitRejected: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "agentturn_rate_limit_rejected_total",
				Help: "Total skill invocations rejected by the rate limiter",
			},
			[]string{"skill"},
		),

		ErrorCounter: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "agentturn_errors_total",
				Help: "Total errors by component and error type",
			},
			[]string{"component", "error_type"},
		),
	}
}

// RecordLLMRequest records one LM call's latency, status, and token usage.
func (m *Metrics) RecordLLMRequest(provider, model, status string, durationSeconds float64, promptTokens, completionTokens int64) {
	m.LLMRequestCounter.WithLabelValues(provider, model, status).Inc()
	m.LLMRequestDuration.WithLabelValues(provider, model).Observe(durationSeconds)
	if promptTokens > 0 {
		m.LLMTokensUsed.WithLabelValues(provider, model, "prompt").Add(float64(promptTokens))
	}
	if completionTokens > 0 {
		m.LLMTokensUsed.WithLabelValues(provider, model, "completion").Add(float64(completionTokens))
	}
}

// RecordLLMCost adds costUSD to the running total for provider/model.
func (m *Metrics) RecordLLMCost(provider, model string, costUSD float64) {
	m.LLMCostUSD.WithLabelValues(provider, model).Add(costUSD)
}

// RecordToolExecution records one tool dispatch's outcome and latency.
func (m *Metrics) RecordToolExecution(toolName, status string, durationSeconds float64) {
	m.ToolExecutionCounter.WithLabelValues(toolName, status).Inc()
	m.ToolExecutionDuration.WithLabelValues(toolName).Observe(durationSeconds)
}

// RecordBreakerTrip increments the trip counter for provider.
func (m *Metrics) RecordBreakerTrip(provider string) {
	m.BreakerTrips.WithLabelValues(provider).Inc()
}

// SetBreakerState publishes a provider's current breaker state as a gauge
// (0=closed, 1=half_open, 2=open) for dashboards and alerting.
func (m *Metrics) SetBreakerState(provider string, stateValue float64) {
	m.BreakerState.WithLabelValues(provider).Set(stateValue)
}

// SetSkillHealthState publishes a skill's current health state (0=healthy,
// 1=degraded, 2=unavailable).
func (m *Metrics) SetSkillHealthState(skill string, stateValue float64) {
	m.SkillHealthState.WithLabelValues(skill).Set(stateValue)
}

// RecordEscalation increments the escalation counter for the tool that
// triggered a mid-turn tier switch.
func (m *Metrics) RecordEscalation(toolName string) {
	m.EscalationsTotal.WithLabelValues(toolName).Inc()
}

// RecordConfirmation increments the confirmation counter for an outcome
// ("issued", "confirmed", "expired", "rejected").
func (m *Metrics) RecordConfirmation(outcome string) {
	m.ConfirmationsTotal.WithLabelValues(outcome).Inc()
}

// RecordRateLimitRejected increments the rate-limit rejection counter for skill.
func (m *Metrics) RecordRateLimitRejected(skill string) {
	m.RateLimitRejected.WithLabelValues(skill).Inc()
}

// RecordError increments the error counter for a component/error-type pair.
func (m *Metrics) RecordError(component, errorType string) {
	m.ErrorCounter.WithLabelValues(component, errorType).Inc()
}
