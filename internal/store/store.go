// Package store provides the append-only sinks fine-tune records are written to.
package store

import (
	"context"
	"fmt"

	"github.com/nahidhasan98/finetune-relay/internal/config"
	"github.com/nahidhasan98/finetune-relay/internal/record"
)

// Store is a closable record sink
type Store interface {
	record.Store
	Kind() string
	Close() error
}

// Open builds the store selected by the configuration
func Open(ctx context.Context, cfg config.StoreConfig) (Store, error) {
	switch cfg.Kind {
	case config.StoreFile:
		return OpenJSONL(cfg.File)
	case config.StoreSQLite:
		return OpenSQLite(ctx, cfg.DSN)
	case config.StorePostgres:
		return OpenPostgres(ctx, cfg.DSN)
	default:
		return nil, fmt.Errorf("unknown record store: %q", cfg.Kind)
	}
}
