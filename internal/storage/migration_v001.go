package storage

import (
	"context"

	"github.com/jmoiron/sqlx"
)

// migrateV001 creates domain_daily, one row per (identity, day, domain).
// SQLite keeps day as YYYY-MM-DD text and timestamps as fixed-width UTC
// text so string comparison matches time order.
func migrateV001(ctx context.Context, tx *sqlx.Tx, d Dialect) error {
	var stmts []string
	if d == DialectPostgres {
		stmts = []string{
			`CREATE TABLE IF NOT EXISTS domain_daily (
				user_id    TEXT NOT NULL,
				day        DATE NOT NULL,
				domain     TEXT NOT NULL,
				visits     INTEGER NOT NULL,
				last_seen  TIMESTAMPTZ NULL,
				updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
				PRIMARY KEY (user_id, day, domain)
			)`,
		}
	} else {
		stmts = []string{
			`CREATE TABLE IF NOT EXISTS domain_daily (
				user_id    TEXT NOT NULL,
				day        TEXT NOT NULL,
				domain     TEXT NOT NULL,
				visits     INTEGER NOT NULL,
				last_seen  TEXT NULL,
				updated_at TEXT NOT NULL,
				PRIMARY KEY (user_id, day, domain)
			)`,
		}
	}

	stmts = append(stmts,
		`CREATE INDEX IF NOT EXISTS idx_domain_daily_day ON domain_daily(day)`,
	)

	for _, stmt := range stmts {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}
