package postgres

import (
	"context"
	"embed"
	"io/fs"
	"sort"
	"strings"

	ierr "github.com/casebill/casebill/internal/errors"
)

//go:embed migrations/*.sql
var migrationFiles embed.FS

const migrationsTable = `
	CREATE TABLE IF NOT EXISTS schema_migrations (
		version    VARCHAR(255) PRIMARY KEY,
		applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`

// Migrate applies every embedded migration that has not run yet, each in its own transaction
func (db *DB) Migrate(ctx context.Context) error {
	if _, err := db.ExecContext(ctx, migrationsTable); err != nil {
		return ierr.WithError(err).
			WithHint("Failed to create schema_migrations").
			Mark(ierr.ErrDatabase)
	}

	names, err := fs.Glob(migrationFiles, "migrations/*.sql")
	if err != nil {
		return ierr.WithError(err).Mark(ierr.ErrSystem)
	}
	sort.Strings(names)

	for _, name := range names {
		version := strings.TrimSuffix(strings.TrimPrefix(name, "migrations/"), ".sql")

		var applied int
		if err := db.GetContext(ctx, &applied, `SELECT COUNT(*) FROM schema_migrations WHERE version = $1`, version); err != nil {
			return ierr.WithError(err).Mark(ierr.ErrDatabase)
		}
		if applied > 0 {
			continue
		}

		body, err := migrationFiles.ReadFile(name)
		if err != nil {
			return ierr.WithError(err).Mark(ierr.ErrSystem)
		}

		err = db.WithTx(ctx, func(ctx context.Context) error {
			q := db.GetQuerier(ctx)
			if _, err := q.ExecContext(ctx, string(body)); err != nil {
				return err
			}
			_, err := q.ExecContext(ctx, `INSERT INTO schema_migrations (version) VALUES ($1)`, version)
			return err
		})
		if err != nil {
			return ierr.WithError(err).
				WithHintf("Migration %s failed", version).
				Mark(ierr.ErrDatabase)
		}
		db.logger.Infow("applied migration", "version", version)
	}
	return nil
}

// MigrationStatus is one embedded migration and whether it has run
type MigrationStatus struct {
	Version string
	Applied bool
}

// MigrationStatuses lists the embedded migrations in apply order
func (db *DB) MigrationStatuses(ctx context.Context) ([]MigrationStatus, error) {
	if _, err := db.ExecContext(ctx, migrationsTable); err != nil {
		return nil, ierr.WithError(err).Mark(ierr.ErrDatabase)
	}

	var applied []string
	if err := db.SelectContext(ctx, &applied, `SELECT version FROM schema_migrations`); err != nil {
		return nil, ierr.WithError(err).Mark(ierr.ErrDatabase)
	}
	done := make(map[string]bool, len(applied))
	for _, v := range applied {
		done[v] = true
	}

	names, err := fs.Glob(migrationFiles, "migrations/*.sql")
	if err != nil {
		return nil, ierr.WithError(err).Mark(ierr.ErrSystem)
	}
	sort.Strings(names)

	statuses := make([]MigrationStatus, 0, len(names))
	for _, name := range names {
		version := strings.TrimSuffix(strings.TrimPrefix(name, "migrations/"), ".sql")
		statuses = append(statuses, MigrationStatus{Version: version, Applied: done[version]})
	}
	return statuses, nil
}
