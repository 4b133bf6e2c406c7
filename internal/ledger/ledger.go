// internal/ledger/ledger.go

// Package ledger persists the audit event stream to SQLite. The ledger is
// append-only: rows are inserted in publication order and never updated or
// deleted, so the table is a faithful replay of everything the platform
// committed.
package ledger

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"github.com/givecurve/givecurve/internal/events"
)

// Record is one persisted audit event.
type Record struct {
	ID        int64           `json:"id"`
	Type      string          `json:"type"`
	Community string          `json:"community"`
	Timestamp time.Time       `json:"timestamp"`
	Payload   json.RawMessage `json:"payload"`
}

// Store is the SQLite-backed audit ledger. It implements events.Handler and
// is meant to be attached to the bus with SubscribeAll so every event type
// lands in one ordered table.
type Store struct {
	db     *sql.DB
	logger *zap.Logger
}

// Open creates or opens the ledger database at path. Use ":memory:" for an
// ephemeral ledger.
func Open(path string, logger *zap.Logger) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open ledger %q: %w", path, err)
	}
	// One writer; the bus publishes synchronously anyway.
	db.SetMaxOpenConns(1)

	s := &Store{db: db, logger: logger.Named("ledger")}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate ledger: %w", err)
	}
	return s, nil
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS audit_events (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		type TEXT NOT NULL,
		community TEXT NOT NULL,
		timestamp DATETIME NOT NULL,
		payload TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_audit_community ON audit_events(community, id);
	CREATE INDEX IF NOT EXISTS idx_audit_type ON audit_events(type, id);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Handle persists one event. Satisfies events.Handler; the bus logs and
// swallows any error returned here, so a broken ledger never blocks a
// committed operation.
func (s *Store) Handle(ctx context.Context, event events.Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encode %s event: %w", event.Type(), err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO audit_events (type, community, timestamp, payload) VALUES (?, ?, ?, ?)`,
		string(event.Type()), event.Community(), event.Timestamp().UTC(), string(payload))
	if err != nil {
		return fmt.Errorf("append %s event: %w", event.Type(), err)
	}
	return nil
}

// Attach subscribes the store to every event on the bus and returns the
// subscription handle.
func (s *Store) Attach(bus *events.Bus) events.Subscription {
	return bus.SubscribeAll(s)
}

// Recent returns the newest records across all communities, newest first.
func (s *Store) Recent(ctx context.Context, limit int) ([]Record, error) {
	return s.query(ctx,
		`SELECT id, type, community, timestamp, payload FROM audit_events ORDER BY id DESC LIMIT ?`,
		limit)
}

// ByCommunity returns the newest records for one community, newest first.
func (s *Store) ByCommunity(ctx context.Context, community string, limit int) ([]Record, error) {
	return s.query(ctx,
		`SELECT id, type, community, timestamp, payload FROM audit_events WHERE community = ? ORDER BY id DESC LIMIT ?`,
		community, limit)
}

// ByType returns the newest records of one event type, newest first.
func (s *Store) ByType(ctx context.Context, eventType events.EventType, limit int) ([]Record, error) {
	return s.query(ctx,
		`SELECT id, type, community, timestamp, payload FROM audit_events WHERE type = ? ORDER BY id DESC LIMIT ?`,
		string(eventType), limit)
}

// Count returns the total number of persisted events.
func (s *Store) Count(ctx context.Context) (int64, error) {
	var n int64
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM audit_events`).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count audit events: %w", err)
	}
	return n, nil
}

func (s *Store) query(ctx context.Context, q string, args ...any) ([]Record, error) {
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("query audit events: %w", err)
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		var r Record
		var payload string
		if err := rows.Scan(&r.ID, &r.Type, &r.Community, &r.Timestamp, &payload); err != nil {
			return nil, fmt.Errorf("scan audit event: %w", err)
		}
		r.Payload = json.RawMessage(payload)
		out = append(out, r)
	}
	return out, rows.Err()
}
