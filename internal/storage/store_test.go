package storage

import (
	"context"
	"strings"
	"testing"

	"github.com/agentturn/core/internal/eventbus"
	"github.com/agentturn/core/internal/orchestrator"
	"github.com/agentturn/core/pkg/models"
)

func TestRecordRoutingAndAuditRoundTrip(t *testing.T) {
	store, err := Open(":memory:", nil)
	if err != nil {
		t.Fatalf("open failed: %v", err)
	}
	defer store.Close()

	store.RecordRouting(orchestrator.RoutingRecord{UserID: "u1", Provider: "A", Model: "m"})
	store.RecordAudit(orchestrator.AuditRecord{UserID: "u1", Action: "turn", Detail: "hi"})

	rows, err := store.Recent(context.Background(), "routing", 10)
	if err != nil {
		t.Fatalf("recent failed: %v", err)
	}
	if len(rows) != 1 || !strings.Contains(rows[0].Payload, `"Provider":"A"`) {
		t.Fatalf("unexpected routing rows: %+v", rows)
	}

	auditRows, err := store.Recent(context.Background(), "audit", 10)
	if err != nil {
		t.Fatalf("recent failed: %v", err)
	}
	if len(auditRows) != 1 || !strings.Contains(auditRows[0].Payload, `"Detail":"hi"`) {
		t.Fatalf("unexpected audit rows: %+v", auditRows)
	}
}

func TestSubscribeAlertsPersistsEvents(t *testing.T) {
	store, err := Open(":memory:", nil)
	if err != nil {
		t.Fatalf("open failed: %v", err)
	}
	defer store.Close()

	bus := eventbus.New(nil)
	unsubscribe := store.SubscribeAlerts(bus)
	defer unsubscribe()

	bus.Publish(models.Event{EventType: "alert.system.llm_failure", Source: "test", Severity: models.SeverityHigh})

	rows, err := store.Recent(context.Background(), "alert", 10)
	if err != nil {
		t.Fatalf("recent failed: %v", err)
	}
	if len(rows) != 1 || !strings.Contains(rows[0].Payload, "llm_failure") {
		t.Fatalf("unexpected alert rows: %+v", rows)
	}
}
