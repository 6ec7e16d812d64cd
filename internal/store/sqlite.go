package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	_ "github.com/mattn/go-sqlite3"

	"github.com/nahidhasan98/finetune-relay/internal/config"
	"github.com/nahidhasan98/finetune-relay/internal/record"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS fine_tune_records (
	seq        INTEGER PRIMARY KEY AUTOINCREMENT,
	id         TEXT NOT NULL UNIQUE,
	repository TEXT NOT NULL DEFAULT '',
	record     TEXT NOT NULL,
	created_at TIMESTAMP NOT NULL
)`

// SQLite appends records as rows of a local SQLite table
type SQLite struct {
	db *sql.DB
}

// OpenSQLite opens the database and ensures the records table exists
func OpenSQLite(ctx context.Context, dsn string) (*SQLite, error) {
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// One connection serializes writers
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create records table: %w", err)
	}

	return &SQLite{db: db}, nil
}

// Append inserts rec as a new row
func (s *SQLite) Append(ctx context.Context, rec *record.FineTuneRecord) error {
	payload, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal record: %w", err)
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO fine_tune_records (id, repository, record, created_at) VALUES (?, ?, ?, ?)`,
		rec.ID, rec.Repository, string(payload), rec.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert record: %w", err)
	}
	return nil
}

// Kind implements Store
func (s *SQLite) Kind() string {
	return config.StoreSQLite
}

// Close closes the database
func (s *SQLite) Close() error {
	return s.db.Close()
}
