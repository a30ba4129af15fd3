package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	// register sqlite driver
	_ "modernc.org/sqlite"

	"github.com/openclaw/agenthub/internal/registry"
)

// Store implements registry.Store backed by SQLite.
type Store struct {
	db *sql.DB
}

// New opens (or creates) a SQLite catalogue at the given path.
func New(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create registry directory: %w", err)
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
CREATE TABLE IF NOT EXISTS services (
	id TEXT PRIMARY KEY,
	name TEXT NOT NULL,
	description TEXT NOT NULL DEFAULT '',
	category TEXT NOT NULL DEFAULT 'other',
	tags TEXT NOT NULL DEFAULT '[]',
	developer TEXT NOT NULL DEFAULT 'anonymous',
	endpoint TEXT NOT NULL,
	price_units INTEGER NOT NULL,
	asset TEXT NOT NULL,
	network TEXT NOT NULL,
	currency TEXT NOT NULL,
	human_price TEXT NOT NULL,
	input_schema TEXT,
	output_schema TEXT,
	status TEXT NOT NULL DEFAULT 'active',
	total_calls INTEGER NOT NULL DEFAULT 0,
	revenue_units INTEGER NOT NULL DEFAULT 0,
	created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);
CREATE INDEX IF NOT EXISTS idx_services_category ON services(category);
CREATE INDEX IF NOT EXISTS idx_services_developer ON services(developer);
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

const serviceColumns = `id, name, description, category, tags, developer, endpoint,
price_units, asset, network, currency, human_price, input_schema, output_schema,
status, total_calls, revenue_units, created_at`

// Create inserts a new service row.
func (s *Store) Create(ctx context.Context, svc registry.Service) error {
	tags, err := json.Marshal(svc.Tags)
	if err != nil {
		return fmt.Errorf("encode tags: %w", err)
	}
	input, err := marshalSchema(svc.InputSchema)
	if err != nil {
		return err
	}
	output, err := marshalSchema(svc.OutputSchema)
	if err != nil {
		return err
	}
	created := svc.CreatedAt
	if created.IsZero() {
		created = time.Now().UTC()
	}
	_, err = s.db.ExecContext(ctx, `
INSERT INTO services(id, name, description, category, tags, developer, endpoint,
	price_units, asset, network, currency, human_price, input_schema, output_schema,
	status, total_calls, revenue_units, created_at)
VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		svc.ID, svc.Name, svc.Description, svc.Category, string(tags), svc.Developer, svc.Endpoint,
		int64(svc.Pricing.Amount), svc.Pricing.Asset, svc.Pricing.Network, svc.Pricing.Currency, svc.Pricing.HumanPrice,
		input, output,
		string(svc.Status), svc.Stats.TotalCalls, svc.Stats.RevenueUnits, created,
	)
	return err
}

// Find returns a single service or registry.ErrNotFound.
func (s *Store) Find(ctx context.Context, id string) (*registry.Service, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+serviceColumns+` FROM services WHERE id = ? LIMIT 1`, id)
	svc, err := scanService(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, registry.ErrNotFound
		}
		return nil, err
	}
	return svc, nil
}

// List returns services matching the filter, oldest first. Category, status
// and the free-text search run in SQL; tag membership is applied after the
// scan because tags live in a JSON column.
func (s *Store) List(ctx context.Context, filter registry.Filter) ([]registry.Service, error) {
	query := `SELECT ` + serviceColumns + ` FROM services WHERE 1=1`
	args := []interface{}{}
	if filter.Category != "" {
		query += ` AND category = ?`
		args = append(args, filter.Category)
	}
	if filter.Status != "" {
		query += ` AND status = ?`
		args = append(args, filter.Status)
	}
	if filter.Search != "" {
		query += ` AND (name LIKE ? COLLATE NOCASE OR description LIKE ? COLLATE NOCASE OR tags LIKE ? COLLATE NOCASE)`
		like := "%" + filter.Search + "%"
		args = append(args, like, like, like)
	}
	query += ` ORDER BY created_at ASC, id ASC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []registry.Service{}
	for rows.Next() {
		svc, err := scanService(rows)
		if err != nil {
			return nil, err
		}
		if filter.Tag != "" && !registry.Match(*svc, registry.Filter{Tag: filter.Tag}) {
			continue
		}
		out = append(out, *svc)
	}
	return out, rows.Err()
}

// RecordCall applies the billing increment as a single UPDATE so concurrent
// completions cannot race a read-modify-write cycle.
func (s *Store) RecordCall(ctx context.Context, id string, amountUnits int64) error {
	res, err := s.db.ExecContext(ctx, `
UPDATE services SET total_calls = total_calls + 1, revenue_units = revenue_units + ? WHERE id = ?`,
		amountUnits, id)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return registry.ErrNotFound
	}
	return nil
}

// Reset truncates the catalogue. Only the admin reseed flow calls this.
func (s *Store) Reset(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM services`)
	return err
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanService(row rowScanner) (*registry.Service, error) {
	var (
		svc          registry.Service
		tags         string
		priceUnits   int64
		input        sql.NullString
		output       sql.NullString
		status       string
		createdAt    time.Time
		totalCalls   int64
		revenueUnits int64
	)
	if err := row.Scan(
		&svc.ID, &svc.Name, &svc.Description, &svc.Category, &tags, &svc.Developer, &svc.Endpoint,
		&priceUnits, &svc.Pricing.Asset, &svc.Pricing.Network, &svc.Pricing.Currency, &svc.Pricing.HumanPrice,
		&input, &output, &status, &totalCalls, &revenueUnits, &createdAt,
	); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(tags), &svc.Tags); err != nil {
		return nil, fmt.Errorf("decode tags for %s: %w", svc.ID, err)
	}
	if svc.Tags == nil {
		svc.Tags = []string{}
	}
	if err := unmarshalSchema(input, &svc.InputSchema); err != nil {
		return nil, err
	}
	if err := unmarshalSchema(output, &svc.OutputSchema); err != nil {
		return nil, err
	}
	svc.Pricing.Amount = registry.Amount(priceUnits)
	svc.Status = registry.Status(status)
	svc.CreatedAt = createdAt
	svc.Stats = registry.Stats{TotalCalls: totalCalls, RevenueUnits: revenueUnits}
	return &svc, nil
}

func marshalSchema(schema map[string]interface{}) (sql.NullString, error) {
	if schema == nil {
		return sql.NullString{}, nil
	}
	b, err := json.Marshal(schema)
	if err != nil {
		return sql.NullString{}, fmt.Errorf("encode schema: %w", err)
	}
	return sql.NullString{String: string(b), Valid: true}, nil
}

func unmarshalSchema(raw sql.NullString, dst *map[string]interface{}) error {
	if !raw.Valid || raw.String == "" {
		return nil
	}
	return json.Unmarshal([]byte(raw.String), dst)
}
