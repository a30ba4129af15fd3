package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	// register pgx stdlib driver
	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/openclaw/agenthub/internal/ledger"
	"github.com/openclaw/agenthub/internal/registry"
)

// Store implements ledger.Store backed by PostgreSQL.
type Store struct {
	db *sql.DB
}

// New opens a PostgreSQL-backed ledger using the provided DSN and connection
// pool settings.
func New(dsn string, maxOpen, maxIdle, lifetimeMinutes, idleTimeMinutes int) (*Store, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres db: %w", err)
	}
	if maxOpen > 0 {
		db.SetMaxOpenConns(maxOpen)
	}
	if maxIdle > 0 {
		db.SetMaxIdleConns(maxIdle)
	}
	if lifetimeMinutes > 0 {
		db.SetConnMaxLifetime(time.Duration(lifetimeMinutes) * time.Minute)
	}
	if idleTimeMinutes > 0 {
		db.SetConnMaxIdleTime(time.Duration(idleTimeMinutes) * time.Minute)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	s := &Store{db: db}
	if err := s.initSchema(); err != nil {
		_ = s.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) initSchema() error {
	const schema = `
CREATE TABLE IF NOT EXISTS call_entries (
	id BIGSERIAL PRIMARY KEY,
	service_id TEXT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	paid BOOLEAN NOT NULL DEFAULT TRUE,
	amount_units BIGINT NOT NULL,
	status INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_call_entries_service ON call_entries(service_id, id);
`
	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

// Close releases underlying database resources.
func (s *Store) Close() error {
	return s.db.Close()
}

// Append inserts a new call entry.
func (s *Store) Append(ctx context.Context, entry ledger.Entry) error {
	if entry.ServiceID == "" {
		return errors.New("ledger entry requires service id")
	}
	created := entry.Timestamp
	if created.IsZero() {
		created = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
INSERT INTO call_entries(service_id, created_at, paid, amount_units, status)
VALUES($1, $2, $3, $4, $5)`,
		entry.ServiceID, created, entry.Paid, int64(entry.Amount), entry.Status,
	)
	return err
}

// Query returns entries for the given service ids in insertion order.
func (s *Store) Query(ctx context.Context, serviceIDs []string) ([]ledger.Entry, error) {
	if len(serviceIDs) == 0 {
		return []ledger.Entry{}, nil
	}
	placeholders := make([]string, len(serviceIDs))
	args := make([]interface{}, len(serviceIDs))
	for i, id := range serviceIDs {
		placeholders[i] = fmt.Sprintf("$%d", i+1)
		args[i] = id
	}
	rows, err := s.db.QueryContext(ctx, `
SELECT id, service_id, created_at, paid, amount_units, status
FROM call_entries WHERE service_id IN (`+strings.Join(placeholders, ",")+`) ORDER BY id ASC`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanEntries(rows)
}

// Recent returns up to n entries, newest first.
func (s *Store) Recent(ctx context.Context, n int) ([]ledger.Entry, error) {
	if n <= 0 {
		return []ledger.Entry{}, nil
	}
	rows, err := s.db.QueryContext(ctx, `
SELECT id, service_id, created_at, paid, amount_units, status
FROM call_entries ORDER BY id DESC LIMIT $1`, n)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanEntries(rows)
}

func scanEntries(rows *sql.Rows) ([]ledger.Entry, error) {
	out := []ledger.Entry{}
	for rows.Next() {
		var (
			e      ledger.Entry
			amount int64
		)
		if err := rows.Scan(&e.ID, &e.ServiceID, &e.Timestamp, &e.Paid, &amount, &e.Status); err != nil {
			return nil, err
		}
		e.Amount = registry.Amount(amount)
		out = append(out, e)
	}
	return out, rows.Err()
}
