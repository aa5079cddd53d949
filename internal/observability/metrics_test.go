package observability

import (
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

// NewMetrics registers against the default Prometheus registry, so it is
// exercised once from cmd/agentturn at startup rather than here; these
// tests cover the record-method semantics against an isolated registry.

func TestRecordToolExecution(t *testing.T) {
	registry := prometheus.NewRegistry()
	counter := prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "test_tool_executions_total", Help: "test"},
		[]string{"tool_name", "status"},
	)
	duration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{Name: "test_tool_execution_duration_seconds", Help: "test"},
		[]string{"tool_name"},
	)
	registry.MustRegister(counter, duration)

	m := &Metrics{ToolExecutionCounter: counter, ToolExecutionDuration: duration}
	m.RecordToolExecution("web_search", "success", 0.25)
	m.RecordToolExecution("web_search", "error", 1.5)

	expected := `
		# HELP test_tool_executions_total test
		# TYPE test_tool_executions_total counter
		test_tool_executions_total{status="error",tool_name="web_search"} 1
		test_tool_executions_total{status="success",tool_name="web_search"} 1
	`
	if err := testutil.CollectAndCompare(counter, strings.NewReader(expected)); err != nil {
		t.Errorf("unexpected counter value: %v", err)
	}
}

func TestRecordBreakerTrip(t *testing.T) {
	registry := prometheus.NewRegistry()
	trips := prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "test_breaker_trips_total", Help: "test"},
		[]string{"provider"},
	)
	registry.MustRegister(trips)

	m := &Metrics{BreakerTrips: trips}
	m.RecordBreakerTrip("anthropic")
	m.RecordBreakerTrip("anthropic")

	if count := testutil.ToFloat64(trips.WithLabelValues("anthropic")); count != 2 {
		t.Fatalf("expected 2 trips recorded, got %v", count)
	}
}

func TestRecordLLMRequestSkipsZeroTokenCounters(t *testing.T) {
	registry := prometheus.NewRegistry()
	reqs := prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "test_llm_requests_total", Help: "test"},
		[]string{"provider", "model", "status"},
	)
	dur := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{Name: "test_llm_request_duration_seconds", Help: "test"},
		[]string{"provider", "model"},
	)
	tokens := prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "test_llm_tokens_total", Help: "test"},
		[]string{"provider", "model", "type"},
	)
	registry.MustRegister(reqs, dur, tokens)

	m := &Metrics{LLMRequestCounter: reqs, LLMRequestDuration: dur, LLMTokensUsed: tokens}
	m.RecordLLMRequest("anthropic", "claude", "success", 0.5, 0, 0)

	if count := testutil.CollectAndCount(tokens); count != 0 {
		t.Fatalf("expected no token samples for zero usage, got %d", count)
	}
}
