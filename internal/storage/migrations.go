package storage

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/jmoiron/sqlx"
)

// migration is one schema step. Apply receives the dialect so a step can
// emit backend-specific DDL.
type migration struct {
	Version int
	Name    string
	Apply   func(ctx context.Context, tx *sqlx.Tx, d Dialect) error
}

// MigrationRunner applies pending migrations.
type MigrationRunner struct {
	db         *sqlx.DB
	dialect    Dialect
	migrations []migration
}

// NewMigrationRunner creates a MigrationRunner with all registered migrations.
func NewMigrationRunner(db *sqlx.DB, d Dialect) *MigrationRunner {
	return &MigrationRunner{
		db:      db,
		dialect: d,
		migrations: []migration{
			{Version: 1, Name: "domain_daily", Apply: migrateV001},
		},
	}
}

// Run creates the schema_migrations table and applies each migration that
// has not been recorded yet. Local SQLite files are switched to WAL first.
func (r *MigrationRunner) Run(ctx context.Context) error {
	if r.dialect == DialectSQLite {
		if _, err := r.db.ExecContext(ctx, "PRAGMA journal_mode = WAL"); err != nil {
			return fmt.Errorf("set WAL mode: %w", err)
		}
	}

	appliedAt := "TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP"
	if r.dialect == DialectPostgres {
		appliedAt = "TIMESTAMPTZ NOT NULL DEFAULT now()"
	}
	if _, err := r.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version    INTEGER PRIMARY KEY,
			name       TEXT NOT NULL,
			applied_at `+appliedAt+`
		)
	`); err != nil {
		return fmt.Errorf("create schema_migrations table: %w", err)
	}

	for _, m := range r.migrations {
		applied, err := r.isApplied(ctx, m.Version)
		if err != nil {
			return fmt.Errorf("check migration %d: %w", m.Version, err)
		}
		if applied {
			continue
		}

		if err := r.apply(ctx, m); err != nil {
			return fmt.Errorf("apply migration %d (%s): %w", m.Version, m.Name, err)
		}
	}

	return nil
}

// Version returns the highest applied migration. It must be called after Run.
func (r *MigrationRunner) Version(ctx context.Context) (int, error) {
	var v sql.NullInt64
	if err := r.db.GetContext(ctx, &v, "SELECT MAX(version) FROM schema_migrations"); err != nil {
		return 0, err
	}
	return int(v.Int64), nil
}

func (r *MigrationRunner) isApplied(ctx context.Context, version int) (bool, error) {
	var count int
	err := r.db.GetContext(ctx, &count,
		r.db.Rebind("SELECT COUNT(*) FROM schema_migrations WHERE version = ?"), version,
	)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// apply executes a migration inside a transaction and records it.
func (r *MigrationRunner) apply(ctx context.Context, m migration) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	if err := m.Apply(ctx, tx, r.dialect); err != nil {
		return err
	}

	if _, err := tx.ExecContext(ctx,
		tx.Rebind("INSERT INTO schema_migrations (version, name) VALUES (?, ?)"),
		m.Version, m.Name,
	); err != nil {
		return fmt.Errorf("record migration: %w", err)
	}

	return tx.Commit()
}
