package storage

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/address-registry/internal/config"
	apperrors "github.com/address-registry/internal/errors"
	"github.com/address-registry/internal/models"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// pgUniqueViolation is the SQLSTATE for unique_violation
const pgUniqueViolation = "23505"

// PostgresStore is the networked store backed by a pgx connection pool
type PostgresStore struct {
	pool          *pgxpool.Pool
	migrationURL  string
	hasSignatures atomic.Bool
}

// NewPostgresStore creates the pool for cfg.URL. Connections are opened
// lazily; use Ping to check reachability.
func NewPostgresStore(ctx context.Context, cfg *config.DatabaseConfig) (*PostgresStore, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("unable to parse connection string: %w", err)
	}

	// Configure connection pool
	poolConfig.MaxConns = int32(cfg.MaxConnections) // #nosec G115 - MaxConnections is validated in config
	poolConfig.MinConns = 0
	poolConfig.MaxConnLifetime = time.Hour
	poolConfig.MaxConnIdleTime = 30 * time.Minute
	poolConfig.HealthCheckPeriod = time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("unable to create connection pool: %w", err)
	}

	migrationURL, err := MigrationURL(cfg)
	if err != nil {
		pool.Close()
		return nil, err
	}

	return &PostgresStore{pool: pool, migrationURL: migrationURL}, nil
}

// Backend implements Store
func (s *PostgresStore) Backend() string {
	return config.BackendPostgres
}

// Pool returns the underlying connection pool
func (s *PostgresStore) Pool() *pgxpool.Pool {
	return s.pool
}

// Ping checks if the database is reachable
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Close closes the database connection pool
func (s *PostgresStore) Close() error {
	if s.pool != nil {
		s.pool.Close()
	}
	return nil
}

// EnsureSchema implements Store
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	if err := RunMigrations(config.BackendPostgres, s.migrationURL); err != nil {
		return apperrors.NewStoreError("ensure schema", err)
	}

	present, err := signatureColumns(ctx, s.pool)
	if err != nil {
		return apperrors.NewStoreError("ensure schema", err)
	}
	s.hasSignatures.Store(present == 2)
	return nil
}

// HasSignatureColumns implements Store
func (s *PostgresStore) HasSignatureColumns() bool {
	return s.hasSignatures.Load()
}

// Insert implements Store
func (s *PostgresStore) Insert(ctx context.Context, input *models.NewAddress) (int64, error) {
	var (
		id  int64
		err error
	)
	if s.hasSignatures.Load() {
		err = s.pool.QueryRow(ctx,
			`INSERT INTO addresses (address, user_agent, notes, signature, message)
			 VALUES ($1, $2, $3, $4, $5) RETURNING id`,
			input.Address, input.UserAgent, input.Notes, input.Signature, input.Message,
		).Scan(&id)
	} else {
		err = s.pool.QueryRow(ctx,
			`INSERT INTO addresses (address, user_agent, notes) VALUES ($1, $2, $3) RETURNING id`,
			input.Address, input.UserAgent, input.Notes,
		).Scan(&id)
	}
	if err != nil {
		return 0, translatePostgresError("insert", input.Address, err)
	}
	return id, nil
}

// ListAll implements Store
func (s *PostgresStore) ListAll(ctx context.Context) ([]*models.Address, error) {
	withSignatures := s.hasSignatures.Load()

	query := `SELECT id, address, timestamp, user_agent, notes FROM addresses ORDER BY timestamp DESC, id DESC`
	if withSignatures {
		query = `SELECT id, address, timestamp, user_agent, notes, signature, message FROM addresses ORDER BY timestamp DESC, id DESC`
	}

	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, translatePostgresError("list", "", err)
	}
	defer rows.Close()

	addresses := make([]*models.Address, 0)
	for rows.Next() {
		var (
			addr models.Address
			ts   *time.Time
		)
		dest := []any{&addr.ID, &addr.Address, &ts, &addr.UserAgent, &addr.Notes}
		if withSignatures {
			dest = append(dest, &addr.Signature, &addr.Message)
		}
		if err := rows.Scan(dest...); err != nil {
			return nil, translatePostgresError("list", "", err)
		}
		if ts != nil {
			addr.Timestamp = *ts
		}
		addresses = append(addresses, &addr)
	}
	if err := rows.Err(); err != nil {
		return nil, translatePostgresError("list", "", err)
	}
	return addresses, nil
}

// Count implements Store
func (s *PostgresStore) Count(ctx context.Context) (int64, error) {
	var count int64
	if err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM addresses`).Scan(&count); err != nil {
		return 0, translatePostgresError("count", "", err)
	}
	return count, nil
}

// DeleteByID implements Store
func (s *PostgresStore) DeleteByID(ctx context.Context, id int64) (int64, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM addresses WHERE id = $1`, id)
	if err != nil {
		return 0, translatePostgresError("delete", "", err)
	}
	return tag.RowsAffected(), nil
}

// pgQuerier is satisfied by *pgxpool.Pool and pgx.Tx
type pgQuerier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// signatureColumns returns how many of signature/message exist on addresses
func signatureColumns(ctx context.Context, q pgQuerier) (int, error) {
	var present int
	err := q.QueryRow(ctx, `
		SELECT COUNT(*)
		FROM information_schema.columns
		WHERE table_schema = current_schema()
		  AND table_name = 'addresses'
		  AND column_name IN ('signature', 'message')
	`).Scan(&present)
	if err != nil {
		return 0, fmt.Errorf("failed to inspect columns: %w", err)
	}
	return present, nil
}

func translatePostgresError(operation, address string, err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
		return apperrors.NewDuplicateKeyError(address, err)
	}
	return apperrors.NewStoreError(operation, err)
}
