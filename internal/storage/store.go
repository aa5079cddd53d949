// Package storage implements the persistence contract referenced but left
// opaque by spec §6: an append-only write path for audit, routing, usage,
// and alert history, backed by a single generic table. It satisfies
// orchestrator.Recorder and subscribes to the event bus for alert history.
package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite" // pure-Go SQLite driver, registers as "sqlite"

	"github.com/agentturn/core/internal/eventbus"
	"github.com/agentturn/core/internal/orchestrator"
	"github.com/agentturn/core/pkg/models"
)

// Store is a sqlite-backed append-only log of every record kind the core
// produces. The schema is intentionally one generic table: callers never
// need a migration to add a new record kind.
type Store struct {
	db     *sql.DB
	logger *slog.Logger
}

// Open creates or attaches to the sqlite database at path (":memory:" for an
// ephemeral store) and ensures the records table exists.
func Open(path string, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if path == "" {
		path = ":memory:"
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("storage: opening %q: %w", path, err)
	}
	s := &Store{db: db, logger: logger}
	if err := s.init(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) init() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS records (
			id TEXT PRIMARY KEY,
			kind TEXT NOT NULL,
			payload TEXT NOT NULL,
			created_at DATETIME NOT NULL
		)
	`)
	if err != nil {
		return fmt.Errorf("storage: creating records table: %w", err)
	}
	_, err = s.db.Exec(`CREATE INDEX IF NOT EXISTS idx_records_kind ON records(kind)`)
	if err != nil {
		return fmt.Errorf("storage: creating kind index: %w", err)
	}
	return nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error { return s.db.Close() }

// write appends one record. Failures are logged at warn and never
// propagated (spec §7: "AuditLogFailure et al. ... logged at warn, never
// propagated").
func (s *Store) write(kind string, payload any) {
	encoded, err := json.Marshal(payload)
	if err != nil {
		s.logger.Warn("storage: marshal failed", slog.String("kind", kind), slog.Any("error", err))
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_, err = s.db.ExecContext(ctx, `INSERT INTO records (id, kind, payload, created_at) VALUES (?, ?, ?, ?)`,
		uuid.NewString(), kind, string(encoded), time.Now())
	if err != nil {
		s.logger.Warn("storage: write failed", slog.String("kind", kind), slog.Any("error", err))
	}
}

// RecordRouting implements orchestrator.Recorder.
func (s *Store) RecordRouting(rec orchestrator.RoutingRecord) {
	s.write("routing", rec)
}

// RecordAudit implements orchestrator.Recorder.
func (s *Store) RecordAudit(rec orchestrator.AuditRecord) {
	s.write("audit", rec)
}

// SubscribeAlerts wires the store to persist every alert.system.* event
// published on bus (alert.system.llm_failure, alert.system.abuse,
// alert.system.llm_cost), giving alert history a durable home alongside
// routing/audit.
func (s *Store) SubscribeAlerts(bus *eventbus.Bus) (unsubscribe func()) {
	return bus.Subscribe("alert.system.*", func(event models.Event) {
		s.write("alert", event)
	})
}

// Row is one record as read back from the store.
type Row struct {
	ID        string
	Kind      string
	Payload   string
	CreatedAt time.Time
}

// Recent returns up to limit most recent rows of the given kind, newest
// first. Used by diagnostics and the CLI.
func (s *Store) Recent(ctx context.Context, kind string, limit int) ([]Row, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `SELECT id, kind, payload, created_at FROM records WHERE kind = ? ORDER BY created_at DESC LIMIT ?`, kind, limit)
	if err != nil {
		return nil, fmt.Errorf("storage: querying %q: %w", kind, err)
	}
	defer rows.Close()

	var out []Row
	for rows.Next() {
		var r Row
		if err := rows.Scan(&r.ID, &r.Kind, &r.Payload, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("storage: scanning row: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
