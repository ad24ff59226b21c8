// Package postgres persists audit events and alerts in PostgreSQL through
// database/sql so the store stays driver-agnostic.
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "github.com/lib/pq"

	"aegis/internal/audit"
)

// Store implements audit.Store and audit.AlertStore. Access decisions land
// in access_events, everything else in security_events, alerts in
// security_alerts.
type Store struct {
	db *sql.DB
}

func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// Open connects to PostgreSQL via lib/pq and verifies the connection.
func Open(ctx context.Context, dsn string) (*sql.DB, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return db, nil
}

// storageTier maps event severity to the storage enum. The schema carries
// no "info" tier, so info is stored as "low". This mapping is lossy on
// purpose: the original severity remains in the serialized details when an
// emitter needs to preserve it.
func storageTier(s audit.Severity) string {
	if s == audit.SeverityInfo {
		return "low"
	}
	return string(s)
}

func (s *Store) Append(ctx context.Context, event audit.Event) error {
	details, err := json.Marshal(event.Details)
	if err != nil {
		return fmt.Errorf("marshal event details: %w", err)
	}

	table := "security_events"
	if event.Category() == audit.CategoryAccess {
		table = "access_events"
	}

	query := fmt.Sprintf(`
		INSERT INTO %s (id, event_type, severity, user_id, ip_address, user_agent, details, occurred_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, table)
	_, err = s.db.ExecContext(ctx, query,
		uuid.New(),
		event.Type,
		storageTier(event.Severity),
		nullString(event.UserID),
		nullString(event.IPAddress),
		nullString(event.UserAgent),
		details,
		event.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("insert %s row: %w", table, err)
	}
	return nil
}

func (s *Store) AppendAlert(ctx context.Context, alert audit.Alert) error {
	evidence, err := json.Marshal(alert.Evidence)
	if err != nil {
		return fmt.Errorf("marshal alert evidence: %w", err)
	}

	query := `
		INSERT INTO security_alerts (id, alert_type, severity, description, user_id, ip_address, evidence, recommended_action, occurred_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`
	_, err = s.db.ExecContext(ctx, query,
		uuid.New(),
		alert.Type,
		storageTier(alert.Severity),
		alert.Description,
		nullString(alert.UserID),
		alert.IPAddress,
		evidence,
		alert.RecommendedAction,
		alert.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("insert security_alerts row: %w", err)
	}
	return nil
}

// CountSince reports how many security events of a type were stored after
// the cutoff. Used by operational dashboards and integration tests.
func (s *Store) CountSince(ctx context.Context, eventType string, cutoff time.Time) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM security_events WHERE event_type = $1 AND occurred_at > $2`,
		eventType, cutoff,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count security events: %w", err)
	}
	return n, nil
}

// Migrate creates the audit tables when absent. Deployments with managed
// migrations can skip this; integration tests rely on it.
func Migrate(ctx context.Context, db *sql.DB) error {
	const schema = `
	CREATE TABLE IF NOT EXISTS security_events (
		id UUID PRIMARY KEY,
		event_type TEXT NOT NULL,
		severity TEXT NOT NULL,
		user_id TEXT,
		ip_address TEXT,
		user_agent TEXT,
		details JSONB NOT NULL DEFAULT '{}',
		occurred_at TIMESTAMPTZ NOT NULL
	);
	CREATE TABLE IF NOT EXISTS access_events (
		id UUID PRIMARY KEY,
		event_type TEXT NOT NULL,
		severity TEXT NOT NULL,
		user_id TEXT,
		ip_address TEXT,
		user_agent TEXT,
		details JSONB NOT NULL DEFAULT '{}',
		occurred_at TIMESTAMPTZ NOT NULL
	);
	CREATE TABLE IF NOT EXISTS security_alerts (
		id UUID PRIMARY KEY,
		alert_type TEXT NOT NULL,
		severity TEXT NOT NULL,
		description TEXT NOT NULL,
		user_id TEXT,
		ip_address TEXT NOT NULL,
		evidence JSONB NOT NULL DEFAULT '{}',
		recommended_action TEXT NOT NULL,
		occurred_at TIMESTAMPTZ NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_security_events_type_time ON security_events (event_type, occurred_at);
	CREATE INDEX IF NOT EXISTS idx_security_events_ip ON security_events (ip_address);
	CREATE INDEX IF NOT EXISTS idx_security_alerts_ip ON security_alerts (ip_address);
	`
	if _, err := db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("migrate audit schema: %w", err)
	}
	return nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
