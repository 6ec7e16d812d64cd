package store

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/nahidhasan98/finetune-relay/internal/config"
	"github.com/nahidhasan98/finetune-relay/internal/record"
)

const postgresSchema = `
CREATE TABLE IF NOT EXISTS fine_tune_records (
	seq        BIGSERIAL PRIMARY KEY,
	id         UUID NOT NULL UNIQUE,
	repository TEXT NOT NULL DEFAULT '',
	record     JSONB NOT NULL,
	created_at TIMESTAMPTZ NOT NULL
)`

// Postgres appends records to a PostgreSQL table
type Postgres struct {
	pool *pgxpool.Pool
}

// OpenPostgres connects and ensures the records table exists
func OpenPostgres(ctx context.Context, databaseURL string) (*Postgres, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	if _, err := pool.Exec(ctx, postgresSchema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("create records table: %w", err)
	}
	return &Postgres{pool: pool}, nil
}

// Append inserts rec as a new row
func (s *Postgres) Append(ctx context.Context, rec *record.FineTuneRecord) error {
	payload, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal record: %w", err)
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO fine_tune_records (id, repository, record, created_at) VALUES ($1, $2, $3, $4)`,
		rec.ID, rec.Repository, payload, rec.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert record: %w", err)
	}
	return nil
}

// Kind implements Store
func (s *Postgres) Kind() string {
	return config.StorePostgres
}

// Close closes the connection pool
func (s *Postgres) Close() error {
	s.pool.Close()
	return nil
}
