package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	// register sqlite driver
	_ "modernc.org/sqlite"

	"github.com/openclaw/agenthub/internal/ledger"
	"github.com/openclaw/agenthub/internal/registry"
)

// Store implements ledger.Store backed by SQLite.
type Store struct {
	db *sql.DB
}

// New opens (or creates) a SQLite ledger at the given path.
func New(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create ledger directory: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if _, err := db.Exec(`PRAGMA journal_mode=WAL`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("enable WAL: %w", err)
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
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	service_id TEXT NOT NULL,
	created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
	paid INTEGER NOT NULL DEFAULT 1,
	amount_units INTEGER NOT NULL,
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
	paid := 0
	if entry.Paid {
		paid = 1
	}
	_, err := s.db.ExecContext(ctx, `
INSERT INTO call_entries(service_id, created_at, paid, amount_units, status)
VALUES(?, ?, ?, ?, ?)`,
		entry.ServiceID, created, paid, int64(entry.Amount), entry.Status,
	)
	return err
}

// Query returns entries for the given service ids in insertion order.
func (s *Store) Query(ctx context.Context, serviceIDs []string) ([]ledger.Entry, error) {
	if len(serviceIDs) == 0 {
		return []ledger.Entry{}, nil
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(serviceIDs)), ",")
	args := make([]interface{}, len(serviceIDs))
	for i, id := range serviceIDs {
		args[i] = id
	}
	rows, err := s.db.QueryContext(ctx, `
SELECT id, service_id, created_at, paid, amount_units, status
FROM call_entries WHERE service_id IN (`+placeholders+`) ORDER BY id ASC`, args...)
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
FROM call_entries ORDER BY id DESC LIMIT ?`, n)
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
			paid   int
			amount int64
		)
		if err := rows.Scan(&e.ID, &e.ServiceID, &e.Timestamp, &paid, &amount, &e.Status); err != nil {
			return nil, err
		}
		e.Paid = paid != 0
		e.Amount = registry.Amount(amount)
		out = append(out, e)
	}
	return out, rows.Err()
}
