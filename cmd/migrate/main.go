// Package main provides a CLI tool for running database migrations.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/address-registry/internal/config"
	"github.com/address-registry/internal/storage"
)

func main() {
	var (
		action       = flag.String("action", "signatures", "Migration action: signatures, schema, version")
		deleteLegacy = flag.Bool("delete-legacy", false, "Delete rows without a signature and require the columns")
	)
	flag.Parse()

	// Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	switch *action {
	case "signatures":
		if cfg.Database.Backend() != config.BackendPostgres {
			log.Println("DATABASE_URL is not set; the signature migration only applies to Postgres")
			os.Exit(1)
		}
		if err := runSignatureMigration(ctx, cfg, *deleteLegacy); err != nil {
			log.Fatalf("Signature migration failed: %v", err)
		}
	case "schema":
		if err := runSchemaMigrations(ctx, cfg); err != nil {
			log.Fatalf("Schema migration failed: %v", err)
		}
	case "version":
		if err := printVersion(cfg); err != nil {
			log.Fatalf("Failed to read migration version: %v", err)
		}
	default:
		log.Fatalf("Unknown action: %s", *action)
	}
}

func runSignatureMigration(ctx context.Context, cfg *config.Config, deleteLegacy bool) error {
	store, err := storage.NewPostgresStore(ctx, &cfg.Database)
	if err != nil {
		return err
	}
	defer func() {
		if err := store.Close(); err != nil {
			log.Printf("Error closing Postgres connection: %v", err)
		}
	}()

	log.Println("Running signature column migration...")
	report, err := storage.NewSignatureMigrator(store.Pool()).Migrate(ctx, deleteLegacy)
	if err != nil {
		return err
	}

	switch report.Outcome {
	case storage.OutcomeAlreadyMigrated:
		log.Println("Migration already completed: signature and message columns exist")
	case storage.OutcomeTableMissing:
		log.Println("Table 'addresses' does not exist yet. Start the server once to create it.")
	case storage.OutcomeAddedRequired:
		log.Println("Table was empty: added signature and message as NOT NULL columns")
	case storage.OutcomeAddedNullable:
		if report.LegacyDeleted {
			log.Printf("Deleted %d legacy rows without a signature", report.DeletedRows)
			log.Println("Signature and message columns are now NOT NULL")
			break
		}
		log.Printf("Table has %d existing rows: added signature and message as nullable columns", report.ExistingRows)
		fmt.Println()
		fmt.Println("Existing rows have no signature. Choose one:")
		fmt.Println()
		fmt.Println("  1. Delete them (or rerun with -delete-legacy):")
		fmt.Println(indent(storage.DeleteLegacySQL))
		fmt.Println()
		fmt.Println("  2. Keep them, marked as unverified:")
		fmt.Println(indent(storage.MarkLegacySQL))
		fmt.Println()
		fmt.Println("Then require the columns:")
		fmt.Println(indent(storage.RequireSignatureSQL))
	}

	log.Println("Signature migration finished")
	return nil
}

func runSchemaMigrations(ctx context.Context, cfg *config.Config) error {
	store, err := storage.Open(ctx, &cfg.Database)
	if err != nil {
		return err
	}
	defer func() {
		if err := store.Close(); err != nil {
			log.Printf("Error closing store: %v", err)
		}
	}()

	log.Printf("Running %s schema migrations...", store.Backend())
	if err := store.EnsureSchema(ctx); err != nil {
		return err
	}
	log.Printf("%s schema migrations completed successfully", store.Backend())
	return nil
}

func printVersion(cfg *config.Config) error {
	databaseURL, err := storage.MigrationURL(&cfg.Database)
	if err != nil {
		return err
	}

	version, dirty, err := storage.MigrationVersion(cfg.Database.Backend(), databaseURL)
	if err != nil {
		return err
	}
	log.Printf("Current %s migration version: %d (dirty: %v)", cfg.Database.Backend(), version, dirty)
	return nil
}

func indent(sql string) string {
	return "     " + strings.ReplaceAll(sql, "\n", "\n     ")
}
