package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync/atomic"

	"github.com/address-registry/internal/config"
	apperrors "github.com/address-registry/internal/errors"
	"github.com/address-registry/internal/models"
	"github.com/mattn/go-sqlite3"
)

// SQLiteStore is the embedded file-backed store
type SQLiteStore struct {
	db            *sql.DB
	path          string
	hasSignatures atomic.Bool
}

// NewSQLiteStore opens (creating if needed) the database file at path
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	if path == "" {
		return nil, fmt.Errorf("sqlite path is required")
	}

	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", fmt.Sprintf("file:%s?_busy_timeout=5000", path))
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite database: %w", err)
	}

	// One writer at a time; uniqueness checks stay serialized.
	db.SetMaxOpenConns(1)

	return &SQLiteStore{db: db, path: path}, nil
}

// Backend implements Store
func (s *SQLiteStore) Backend() string {
	return config.BackendSQLite
}

// Path returns the database file path
func (s *SQLiteStore) Path() string {
	return s.path
}

// Ping checks that the database file can be used
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database handle
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// EnsureSchema implements Store
func (s *SQLiteStore) EnsureSchema(ctx context.Context) error {
	if err := RunMigrations(config.BackendSQLite, "sqlite3://"+s.path); err != nil {
		return apperrors.NewStoreError("ensure schema", err)
	}

	var present int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM pragma_table_info('addresses') WHERE name IN ('signature', 'message')`,
	).Scan(&present)
	if err != nil {
		return apperrors.NewStoreError("ensure schema", err)
	}
	s.hasSignatures.Store(present == 2)
	return nil
}

// HasSignatureColumns implements Store
func (s *SQLiteStore) HasSignatureColumns() bool {
	return s.hasSignatures.Load()
}

// Insert implements Store
func (s *SQLiteStore) Insert(ctx context.Context, input *models.NewAddress) (int64, error) {
	var (
		result sql.Result
		err    error
	)
	if s.hasSignatures.Load() {
		result, err = s.db.ExecContext(ctx,
			`INSERT INTO addresses (address, user_agent, notes, signature, message) VALUES (?, ?, ?, ?, ?)`,
			input.Address, input.UserAgent, input.Notes, input.Signature, input.Message,
		)
	} else {
		result, err = s.db.ExecContext(ctx,
			`INSERT INTO addresses (address, user_agent, notes) VALUES (?, ?, ?)`,
			input.Address, input.UserAgent, input.Notes,
		)
	}
	if err != nil {
		return 0, translateSQLiteError("insert", input.Address, err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return 0, apperrors.NewStoreError("insert", err)
	}
	return id, nil
}

// ListAll implements Store
func (s *SQLiteStore) ListAll(ctx context.Context) ([]*models.Address, error) {
	withSignatures := s.hasSignatures.Load()

	query := `SELECT id, address, timestamp, user_agent, notes FROM addresses ORDER BY timestamp DESC, id DESC`
	if withSignatures {
		query = `SELECT id, address, timestamp, user_agent, notes, signature, message FROM addresses ORDER BY timestamp DESC, id DESC`
	}

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, apperrors.NewStoreError("list", err)
	}
	defer func() {
		_ = rows.Close() // nolint:errcheck // cleanup in defer
	}()

	addresses := make([]*models.Address, 0)
	for rows.Next() {
		var (
			addr               models.Address
			ts                 sql.NullTime
			userAgent, notes   sql.NullString
			signature, message sql.NullString
		)
		dest := []any{&addr.ID, &addr.Address, &ts, &userAgent, &notes}
		if withSignatures {
			dest = append(dest, &signature, &message)
		}
		if err := rows.Scan(dest...); err != nil {
			return nil, apperrors.NewStoreError("list", err)
		}

		if ts.Valid {
			addr.Timestamp = ts.Time
		}
		addr.UserAgent = nullString(userAgent)
		addr.Notes = nullString(notes)
		addr.Signature = nullString(signature)
		addr.Message = nullString(message)
		addresses = append(addresses, &addr)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.NewStoreError("list", err)
	}
	return addresses, nil
}

// Count implements Store
func (s *SQLiteStore) Count(ctx context.Context) (int64, error) {
	var count int64
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM addresses`).Scan(&count); err != nil {
		return 0, apperrors.NewStoreError("count", err)
	}
	return count, nil
}

// DeleteByID implements Store
func (s *SQLiteStore) DeleteByID(ctx context.Context, id int64) (int64, error) {
	result, err := s.db.ExecContext(ctx, `DELETE FROM addresses WHERE id = ?`, id)
	if err != nil {
		return 0, apperrors.NewStoreError("delete", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return 0, apperrors.NewStoreError("delete", err)
	}
	return affected, nil
}

func nullString(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	v := ns.String
	return &v
}

func translateSQLiteError(operation, address string, err error) error {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) &&
		(sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique || sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey) {
		return apperrors.NewDuplicateKeyError(address, err)
	}
	return apperrors.NewStoreError(operation, err)
}
