package storage

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// SignatureMigrationOutcome describes what a signature migration run did
type SignatureMigrationOutcome string

const (
	// OutcomeAlreadyMigrated means both columns were already present
	OutcomeAlreadyMigrated SignatureMigrationOutcome = "already_migrated"
	// OutcomeTableMissing means the addresses table does not exist yet
	OutcomeTableMissing SignatureMigrationOutcome = "table_missing"
	// OutcomeAddedRequired means the table was empty and the columns were added NOT NULL
	OutcomeAddedRequired SignatureMigrationOutcome = "added_required"
	// OutcomeAddedNullable means existing rows forced the columns to be added nullable
	OutcomeAddedNullable SignatureMigrationOutcome = "added_nullable"
)

// Remediation statements for tables that still hold unverified rows.
const (
	DeleteLegacySQL = `DELETE FROM addresses WHERE signature IS NULL;`

	MarkLegacySQL = `UPDATE addresses SET
  signature = 'LEGACY_UNVERIFIED',
  message = 'Legacy address from before signature verification'
WHERE signature IS NULL;`

	RequireSignatureSQL = `ALTER TABLE addresses ALTER COLUMN signature SET NOT NULL;
ALTER TABLE addresses ALTER COLUMN message SET NOT NULL;`
)

// SignatureMigrationReport summarizes one migration run
type SignatureMigrationReport struct {
	Outcome      SignatureMigrationOutcome
	ExistingRows int64
	// LegacyDeleted is set when unverified rows were removed and the
	// columns promoted to NOT NULL.
	LegacyDeleted bool
	DeletedRows   int64
}

// Required reports whether both columns are NOT NULL after the run
func (r *SignatureMigrationReport) Required() bool {
	return r.Outcome == OutcomeAddedRequired || r.LegacyDeleted
}

// SignatureMigrator adds the signature and message columns to an existing
// Postgres addresses table. Running it again after success is a no-op.
type SignatureMigrator struct {
	pool *pgxpool.Pool
}

// NewSignatureMigrator creates a migrator over pool
func NewSignatureMigrator(pool *pgxpool.Pool) *SignatureMigrator {
	return &SignatureMigrator{pool: pool}
}

// Migrate runs the migration. With deleteLegacy, rows lacking a signature
// are deleted and both columns become NOT NULL in the same transaction.
func (m *SignatureMigrator) Migrate(ctx context.Context, deleteLegacy bool) (*SignatureMigrationReport, error) {
	present, err := signatureColumns(ctx, m.pool)
	if err != nil {
		return nil, err
	}
	if present == 2 {
		return &SignatureMigrationReport{Outcome: OutcomeAlreadyMigrated}, nil
	}

	var exists bool
	err = m.pool.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT FROM information_schema.tables
			WHERE table_schema = current_schema()
			  AND table_name = 'addresses'
		)
	`).Scan(&exists)
	if err != nil {
		return nil, fmt.Errorf("failed to check addresses table: %w", err)
	}
	if !exists {
		return &SignatureMigrationReport{Outcome: OutcomeTableMissing}, nil
	}

	report := &SignatureMigrationReport{}
	if err := m.pool.QueryRow(ctx, `SELECT COUNT(*) FROM addresses`).Scan(&report.ExistingRows); err != nil {
		return nil, fmt.Errorf("failed to count addresses: %w", err)
	}

	if report.ExistingRows == 0 {
		if err := m.addRequiredColumns(ctx); err != nil {
			return nil, err
		}
		report.Outcome = OutcomeAddedRequired
		return report, nil
	}

	_, err = m.pool.Exec(ctx, `
		ALTER TABLE addresses
		ADD COLUMN IF NOT EXISTS signature TEXT,
		ADD COLUMN IF NOT EXISTS message TEXT
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to add nullable columns: %w", err)
	}
	report.Outcome = OutcomeAddedNullable

	if deleteLegacy {
		deleted, err := m.deleteLegacy(ctx)
		if err != nil {
			return report, err
		}
		report.LegacyDeleted = true
		report.DeletedRows = deleted
	}

	return report, nil
}

func (m *SignatureMigrator) addRequiredColumns(ctx context.Context) error {
	return pgx.BeginFunc(ctx, m.pool, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, `
			ALTER TABLE addresses
			ADD COLUMN IF NOT EXISTS signature TEXT NOT NULL DEFAULT '',
			ADD COLUMN IF NOT EXISTS message TEXT NOT NULL DEFAULT ''
		`)
		if err != nil {
			return fmt.Errorf("failed to add required columns: %w", err)
		}

		// A column that pre-existed as nullable keeps its definition
		// under IF NOT EXISTS, so enforce NOT NULL explicitly.
		_, err = tx.Exec(ctx, `
			ALTER TABLE addresses
			ALTER COLUMN signature DROP DEFAULT,
			ALTER COLUMN message DROP DEFAULT,
			ALTER COLUMN signature SET NOT NULL,
			ALTER COLUMN message SET NOT NULL
		`)
		if err != nil {
			return fmt.Errorf("failed to finalize required columns: %w", err)
		}
		return nil
	})
}

func (m *SignatureMigrator) deleteLegacy(ctx context.Context) (int64, error) {
	var deleted int64
	err := pgx.BeginFunc(ctx, m.pool, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `DELETE FROM addresses WHERE signature IS NULL`)
		if err != nil {
			return fmt.Errorf("failed to delete legacy addresses: %w", err)
		}
		deleted = tag.RowsAffected()

		_, err = tx.Exec(ctx, `
			ALTER TABLE addresses
			ALTER COLUMN signature SET NOT NULL,
			ALTER COLUMN message SET NOT NULL
		`)
		if err != nil {
			return fmt.Errorf("failed to require signature columns: %w", err)
		}
		return nil
	})
	return deleted, err
}
