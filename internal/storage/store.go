// Package storage provides the address store and its two engine adapters.
package storage

import (
	"context"
	"fmt"

	"github.com/address-registry/internal/config"
	"github.com/address-registry/internal/models"
)

// Store persists address records. Implementations translate their native
// errors into the internal/errors taxonomy: duplicate addresses surface as
// a DuplicateKey error and every other failure as a StoreError.
type Store interface {
	// Backend returns the engine name ("postgres" or "sqlite").
	Backend() string
	// EnsureSchema creates the addresses table if it does not exist.
	EnsureSchema(ctx context.Context) error
	// HasSignatureColumns reports whether EnsureSchema found both the
	// signature and message columns.
	HasSignatureColumns() bool
	// Insert stores a new record and returns its id.
	Insert(ctx context.Context, input *models.NewAddress) (int64, error)
	// ListAll returns every record, most recent first.
	ListAll(ctx context.Context) ([]*models.Address, error)
	// Count returns the number of stored records.
	Count(ctx context.Context) (int64, error)
	// DeleteByID removes a record and reports the number of rows affected.
	DeleteByID(ctx context.Context, id int64) (int64, error)
	Ping(ctx context.Context) error
	Close() error
}

// Open returns the store selected by cfg: Postgres when a connection
// string is configured, the embedded SQLite file otherwise.
func Open(ctx context.Context, cfg *config.DatabaseConfig) (Store, error) {
	switch cfg.Backend() {
	case config.BackendPostgres:
		return NewPostgresStore(ctx, cfg)
	case config.BackendSQLite:
		return NewSQLiteStore(cfg.SQLitePath)
	default:
		return nil, fmt.Errorf("unknown store backend: %s", cfg.Backend())
	}
}
