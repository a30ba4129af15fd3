package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	// register pgx stdlib driver
	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/openclaw/agenthub/internal/registry"
)

// Store implements registry.Store backed by PostgreSQL.
type Store struct {
	db *sql.DB
}

// New opens a PostgreSQL-backed catalogue using the provided DSN and
// connection pool settings.
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
CREATE TABLE IF NOT EXISTS services (
	id TEXT PRIMARY KEY,
	name TEXT NOT NULL,
	description TEXT NOT NULL DEFAULT '',
	category TEXT NOT NULL DEFAULT 'other',
	tags JSONB NOT NULL DEFAULT '[]',
	developer TEXT NOT NULL DEFAULT 'anonymous',
	endpoint TEXT NOT NULL,
	price_units BIGINT NOT NULL,
	asset TEXT NOT NULL,
	network TEXT NOT NULL,
	currency TEXT NOT NULL,
	human_price TEXT NOT NULL,
	input_schema JSONB,
	output_schema JSONB,
	status TEXT NOT NULL DEFAULT 'active',
	total_calls BIGINT NOT NULL DEFAULT 0,
	revenue_units BIGINT NOT NULL DEFAULT 0,
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
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
VALUES($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)`,
		svc.ID, svc.Name, svc.Description, svc.Category, string(tags), svc.Developer, svc.Endpoint,
		int64(svc.Pricing.Amount), svc.Pricing.Asset, svc.Pricing.Network, svc.Pricing.Currency, svc.Pricing.HumanPrice,
		input, output,
		string(svc.Status), svc.Stats.TotalCalls, svc.Stats.RevenueUnits, created,
	)
	return err
}

// Find returns a single service or registry.ErrNotFound.
func (s *Store) Find(ctx context.Context, id string) (*registry.Service, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+serviceColumns+` FROM services WHERE id = $1 LIMIT 1`, id)
	svc, err := scanService(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, registry.ErrNotFound
		}
		return nil, err
	}
	return svc, nil
}

// List returns services matching the filter, oldest first.
func (s *Store) List(ctx context.Context, filter registry.Filter) ([]registry.Service, error) {
	query := `SELECT ` + serviceColumns + ` FROM services WHERE 1=1`
	args := []interface{}{}
	n := 0
	arg := func(v interface{}) string {
		n++
		args = append(args, v)
		return fmt.Sprintf("$%d", n)
	}
	if filter.Category != "" {
		query += ` AND category = ` + arg(filter.Category)
	}
	if filter.Status != "" {
		query += ` AND status = ` + arg(filter.Status)
	}
	if filter.Search != "" {
		like := arg("%" + filter.Search + "%")
		query += ` AND (name ILIKE ` + like + ` OR description ILIKE ` + like + ` OR tags::text ILIKE ` + like + `)`
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

// RecordCall applies the billing increment atomically in SQL.
func (s *Store) RecordCall(ctx context.Context, id string, amountUnits int64) error {
	res, err := s.db.ExecContext(ctx, `
UPDATE services SET total_calls = total_calls + 1, revenue_units = revenue_units + $1 WHERE id = $2`,
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
	if input.Valid && input.String != "" {
		if err := json.Unmarshal([]byte(input.String), &svc.InputSchema); err != nil {
			return nil, err
		}
	}
	if output.Valid && output.String != "" {
		if err := json.Unmarshal([]byte(output.String), &svc.OutputSchema); err != nil {
			return nil, err
		}
	}
	svc.Pricing.Amount = registry.Amount(priceUnits)
	svc.Status = registry.Status(status)
	svc.CreatedAt = createdAt
	svc.Stats = registry.Stats{TotalCalls: totalCalls, RevenueUnits: revenueUnits}
	return &svc, nil
}

func marshalSchema(schema map[string]interface{}) (interface{}, error) {
	if schema == nil {
		return nil, nil
	}
	b, err := json.Marshal(schema)
	if err != nil {
		return nil, fmt.Errorf("encode schema: %w", err)
	}
	return string(b), nil
}
