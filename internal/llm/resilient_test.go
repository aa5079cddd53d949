package llm

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/agentturn/core/internal/breaker"
	"github.com/agentturn/core/internal/eventbus"
	"github.com/agentturn/core/pkg/models"
)

type fakeProvider struct {
	name  string
	calls atomic.Int32
	fail  func(attempt int) error
}

func (f *fakeProvider) Name() string { return f.name }
func (f *fakeProvider) Capabilities() models.ProviderCapabilities {
	return models.ProviderCapabilities{Tools: true}
}
func (f *fakeProvider) Chat(ctx context.Context, req models.ChatRequest) (models.ChatResponse, error) {
	n := int(f.calls.Add(1))
	if f.fail != nil {
		if err := f.fail(n); err != nil {
			return models.ChatResponse{}, err
		}
	}
	return models.ChatResponse{Text: "ok", StopReason: models.StopEndTurn}, nil
}

func TestResilientProviderRetryCeiling(t *testing.T) {
	fp := &fakeProvider{name: "A", fail: func(int) error { return errors.New("503 service unavailable") }}
	rp := NewResilientProvider(fp, breaker.Config{FailureThreshold: 100, ResetTimeout: time.Minute}, nil, nil, nil)

	_, err := rp.Chat(context.Background(), models.ChatRequest{})
	if err == nil {
		t.Fatalf("expected error")
	}
	if got := fp.calls.Load(); got != 4 {
		t.Fatalf("expected at most 4 calls (1+3 retries), got %d", got)
	}
}

func TestResilientProviderNonRetryableStopsImmediately(t *testing.T) {
	fp := &fakeProvider{name: "A", fail: func(int) error { return errors.New("401 unauthorized") }}
	rp := NewResilientProvider(fp, breaker.Config{FailureThreshold: 100, ResetTimeout: time.Minute}, nil, nil, nil)

	_, err := rp.Chat(context.Background(), models.ChatRequest{})
	if err == nil {
		t.Fatalf("expected error")
	}
	if got := fp.calls.Load(); got != 1 {
		t.Fatalf("expected exactly 1 call for non-retryable error, got %d", got)
	}
}

func TestResilientProviderOpensBreakerAndPublishesAlert(t *testing.T) {
	fp := &fakeProvider{name: "A", fail: func(int) error { return errors.New("503 service unavailable") }}
	bus := eventbus.New(nil)
	var alerted atomic.Bool
	bus.Subscribe("alert.system.llm_failure", func(models.Event) { alerted.Store(true) })

	rp := NewResilientProvider(fp, breaker.Config{FailureThreshold: 1, ResetTimeout: time.Minute}, bus, nil, nil)
	_, err := rp.Chat(context.Background(), models.ChatRequest{})
	if err == nil {
		t.Fatalf("expected error")
	}
	if rp.Breaker().State() != breaker.Open {
		t.Fatalf("expected breaker open")
	}
	if !alerted.Load() {
		t.Fatalf("expected llm_failure alert to be published")
	}
}

func TestResilientProviderProviderUnavailableWhenBreakerOpen(t *testing.T) {
	fp := &fakeProvider{name: "A"}
	rp := NewResilientProvider(fp, breaker.Config{FailureThreshold: 1, ResetTimeout: time.Hour}, nil, nil, nil)
	rp.Breaker().RecordFailure()

	_, err := rp.Chat(context.Background(), models.ChatRequest{})
	if err == nil {
		t.Fatalf("expected ProviderUnavailable error")
	}
	if fp.calls.Load() != 0 {
		t.Fatalf("expected no calls to inner provider when breaker is open")
	}
}
