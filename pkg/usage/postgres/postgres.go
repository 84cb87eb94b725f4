// Package postgres provides a PostgreSQL implementation of usage.Store.
// It uses pgx/v5 for connection pooling.
package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/rhuss/relais/pkg/usage"
)

// Store is a PostgreSQL-backed usage ledger.
type Store struct {
	pool *pgxpool.Pool
}

// Ensure Store implements usage.Store at compile time.
var _ usage.Store = (*Store)(nil)

// New creates a new PostgreSQL store with the given configuration.
// If MigrateOnStart is true, schema migrations are applied automatically.
func New(ctx context.Context, cfg Config) (*Store, error) {
	cfg.defaults()

	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parsing DSN: %w", err)
	}

	poolCfg.MaxConns = cfg.MaxConns
	poolCfg.MinConns = cfg.MinConns
	poolCfg.MaxConnLifetime = cfg.MaxConnLifetime

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("creating connection pool: %w", err)
	}

	// Verify connectivity.
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("connecting to database: %w", err)
	}

	s := &Store{pool: pool}

	if cfg.MigrateOnStart {
		if err := s.migrate(ctx); err != nil {
			pool.Close()
			return nil, fmt.Errorf("running migrations: %w", err)
		}
	}

	return s, nil
}

// Save appends a usage record to the ledger.
func (s *Store) Save(ctx context.Context, rec usage.Record) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO usage_records (
			id, subject, model,
			prompt_tokens, completion_tokens, total_tokens,
			created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO NOTHING
	`,
		rec.ID, nullString(rec.Subject), rec.Model,
		rec.PromptTokens, rec.CompletionTokens, rec.TotalTokens,
		rec.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("inserting usage record: %w", err)
	}

	return nil
}

// Recent returns up to limit records, newest first.
func (s *Store) Recent(ctx context.Context, limit int) ([]usage.Record, error) {
	if limit <= 0 {
		limit = 20
	}

	rows, err := s.pool.Query(ctx, `
		SELECT id, subject, model,
		       prompt_tokens, completion_tokens, total_tokens,
		       created_at
		FROM usage_records
		ORDER BY created_at DESC, id DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("querying usage records: %w", err)
	}
	defer rows.Close()

	var records []usage.Record
	for rows.Next() {
		var rec usage.Record
		var subject *string

		if err := rows.Scan(
			&rec.ID, &subject, &rec.Model,
			&rec.PromptTokens, &rec.CompletionTokens, &rec.TotalTokens,
			&rec.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scanning usage record: %w", err)
		}

		if subject != nil {
			rec.Subject = *subject
		}
		records = append(records, rec)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating usage records: %w", err)
	}

	return records, nil
}

// HealthCheck verifies the database connection.
func (s *Store) HealthCheck(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Close releases the connection pool.
func (s *Store) Close() error {
	s.pool.Close()
	return nil
}

// nullString converts an empty string to nil for nullable TEXT columns.
func nullString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
