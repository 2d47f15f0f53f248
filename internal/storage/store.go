package storage

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"

	apperrors "github.com/runnerr0/browsedash/internal/errors"
	"github.com/runnerr0/browsedash/internal/history"
)

// Store is the server-side merge-upsert engine and summary reader over
// domain_daily. Every operation takes the identity explicitly; rows of
// different identities never interact.
type Store struct {
	db      *sqlx.DB
	dialect Dialect
	now     func() time.Time
}

// Option configures a Store.
type Option func(*Store)

// WithClock overrides the clock used for updated_at and summary cutoffs.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// New wraps an opened and migrated database.
func New(db *sqlx.DB, d Dialect, opts ...Option) *Store {
	s := &Store{db: db, dialect: d, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Open connects to dsn, applies migrations and returns a Store.
func Open(ctx context.Context, dsn string, opts ...Option) (*Store, error) {
	db, d, err := OpenDB(ctx, dsn)
	if err != nil {
		return nil, err
	}
	if err := NewMigrationRunner(db, d).Run(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return New(db, d, opts...), nil
}

// Dialect returns the backend in use.
func (s *Store) Dialect() Dialect { return s.dialect }

// Ping checks the database connection.
func (s *Store) Ping(ctx context.Context) error { return s.db.PingContext(ctx) }

// Close closes the database.
func (s *Store) Close() error { return s.db.Close() }

// UpsertDomainDaily merges rows into the identity's counts and returns the
// number of rows accepted. The batch is all or nothing: a structural error
// in any row rejects it before the database is touched, and a database
// failure rolls back every row. For an existing key visits are replaced,
// last_seen keeps the later non-null value and updated_at is set to now.
func (s *Store) UpsertDomainDaily(ctx context.Context, userID string, rows []DomainDailyRow) (int, error) {
	if userID == "" {
		return 0, apperrors.Unauthorized("missing identity")
	}
	if len(rows) > MaxBatchRows {
		return 0, apperrors.TooLargef("batch has %d rows, limit is %d", len(rows), MaxBatchRows)
	}
	if len(rows) == 0 {
		return 0, nil
	}

	normalized := make([]DomainDailyRow, len(rows))
	for i, r := range rows {
		normalized[i] = normalizeRow(r)
	}
	if err := validateBatch(normalized); err != nil {
		return 0, err
	}
	merged := mergeDuplicates(normalized)

	updatedAt := s.now().UTC().Format(timeLayout)

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	for start := 0; start < len(merged); start += upsertChunkRows {
		chunk := merged[start:min(start+upsertChunkRows, len(merged))]

		args := make([]any, 0, len(chunk)*6)
		for _, r := range chunk {
			var lastSeen any
			if r.LastSeen != "" {
				lastSeen = r.LastSeen
			}
			args = append(args, userID, r.Day, r.Domain, int(r.Visits), lastSeen, updatedAt)
		}

		if _, err := tx.ExecContext(ctx, s.upsertSQL(len(chunk)), args...); err != nil {
			return 0, fmt.Errorf("upsert domain_daily: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit: %w", err)
	}
	return len(rows), nil
}

// mergeDuplicates folds rows sharing (day, domain): the later row's visits
// win and last seen is the maximum. First-occurrence order is kept. Last
// seen values come out in the stored layout.
func mergeDuplicates(rows []DomainDailyRow) []DomainDailyRow {
	index := make(map[[2]string]int, len(rows))
	out := make([]DomainDailyRow, 0, len(rows))
	for _, r := range rows {
		r.LastSeen = formatLastSeen(r.LastSeen)
		key := [2]string{r.Day, r.Domain}
		i, ok := index[key]
		if !ok {
			index[key] = len(out)
			out = append(out, r)
			continue
		}
		prev := out[i].LastSeen
		out[i].Visits = r.Visits
		if r.LastSeen < prev {
			out[i].LastSeen = prev
		} else {
			out[i].LastSeen = r.LastSeen
		}
	}
	return out
}

func (s *Store) upsertSQL(n int) string {
	tuple := "(?, ?, ?, ?, ?, ?)"
	if s.dialect == DialectPostgres {
		tuple = "(?, ?::date, ?, ?::int, ?::timestamptz, ?::timestamptz)"
	}

	var b strings.Builder
	b.WriteString("INSERT INTO domain_daily (user_id, day, domain, visits, last_seen, updated_at) VALUES ")
	for i := 0; i < n; i++ {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(tuple)
	}

	greatest := "MAX(domain_daily.last_seen, excluded.last_seen)"
	if s.dialect == DialectPostgres {
		greatest = "GREATEST(domain_daily.last_seen, excluded.last_seen)"
	}
	b.WriteString(`
		ON CONFLICT (user_id, day, domain) DO UPDATE SET
			visits = excluded.visits,
			last_seen = CASE
				WHEN domain_daily.last_seen IS NULL THEN excluded.last_seen
				WHEN excluded.last_seen IS NULL THEN domain_daily.last_seen
				ELSE ` + greatest + `
			END,
			updated_at = excluded.updated_at`)

	return s.db.Rebind(b.String())
}

// DomainDailySince returns the identity's rows with day >= today - days,
// today being the server clock's UTC date. days is clamped to [1, 365].
// Rows are ordered by day, then domain.
func (s *Store) DomainDailySince(ctx context.Context, userID string, days int) (*Summary, error) {
	days = history.ClampDays(days)
	cutoff := s.now().UTC().AddDate(0, 0, -days).Format(dayLayout)

	query := `
		SELECT day, domain, visits, updated_at
		FROM domain_daily
		WHERE user_id = ? AND day >= ?
		ORDER BY day ASC, domain ASC
	`
	if s.dialect == DialectPostgres {
		query = `
			SELECT to_char(day, 'YYYY-MM-DD') AS day, domain, visits,
				to_char(updated_at AT TIME ZONE 'UTC', 'YYYY-MM-DD"T"HH24:MI:SS.MS"Z"') AS updated_at
			FROM domain_daily
			WHERE user_id = ? AND day >= ?::date
			ORDER BY day ASC, domain ASC
		`
	}

	var records []dailyRecord
	if err := s.db.SelectContext(ctx, &records, s.db.Rebind(query), userID, cutoff); err != nil {
		return nil, fmt.Errorf("query domain_daily: %w", err)
	}

	sum := &Summary{Days: days, Rows: make([]DomainDaily, len(records))}
	var latest time.Time
	for i, r := range records {
		sum.Rows[i] = DomainDaily{Day: r.Day, Domain: r.Domain, Visits: r.Visits}
		if t, err := parseTimestamp(r.UpdatedAt); err == nil && t.After(latest) {
			latest = t
		}
	}
	if !latest.IsZero() {
		sum.LastSync = &latest
	}
	return sum, nil
}

// PruneBefore deletes rows of every identity whose day is before cutoffDay
// (YYYY-MM-DD) and returns how many were removed.
func (s *Store) PruneBefore(ctx context.Context, cutoffDay string) (int64, error) {
	if _, err := time.Parse(dayLayout, cutoffDay); err != nil {
		return 0, apperrors.Validation("cutoff must be a YYYY-MM-DD date")
	}

	res, err := s.db.ExecContext(ctx, s.db.Rebind("DELETE FROM domain_daily WHERE day < "+s.dayParam()), cutoffDay)
	if err != nil {
		return 0, fmt.Errorf("prune domain_daily: %w", err)
	}
	return res.RowsAffected()
}

// CountBefore reports how many rows PruneBefore would delete.
func (s *Store) CountBefore(ctx context.Context, cutoffDay string) (int64, error) {
	if _, err := time.Parse(dayLayout, cutoffDay); err != nil {
		return 0, apperrors.Validation("cutoff must be a YYYY-MM-DD date")
	}

	var n int64
	err := s.db.GetContext(ctx, &n, s.db.Rebind("SELECT COUNT(*) FROM domain_daily WHERE day < "+s.dayParam()), cutoffDay)
	if err != nil {
		return 0, fmt.Errorf("count domain_daily: %w", err)
	}
	return n, nil
}

// Stats returns row and identity counts with the stored day range.
func (s *Store) Stats(ctx context.Context) (*Stats, error) {
	query := `SELECT COUNT(*) AS n, COUNT(DISTINCT user_id) AS ids, MIN(day) AS oldest, MAX(day) AS newest FROM domain_daily`
	if s.dialect == DialectPostgres {
		query = `SELECT COUNT(*) AS n, COUNT(DISTINCT user_id) AS ids,
			to_char(MIN(day), 'YYYY-MM-DD') AS oldest, to_char(MAX(day), 'YYYY-MM-DD') AS newest
			FROM domain_daily`
	}

	var row struct {
		N      int64          `db:"n"`
		IDs    int64          `db:"ids"`
		Oldest sql.NullString `db:"oldest"`
		Newest sql.NullString `db:"newest"`
	}
	if err := s.db.GetContext(ctx, &row, query); err != nil {
		return nil, fmt.Errorf("query stats: %w", err)
	}
	return &Stats{Rows: row.N, Identities: row.IDs, OldestDay: row.Oldest.String, NewestDay: row.Newest.String}, nil
}

func (s *Store) dayParam() string {
	if s.dialect == DialectPostgres {
		return "?::date"
	}
	return "?"
}

// parseTimestamp reads the timestamp layouts the backends produce.
func parseTimestamp(s string) (time.Time, error) {
	formats := []string{
		timeLayout,
		time.RFC3339Nano,
		"2006-01-02 15:04:05",
	}
	for _, f := range formats {
		if t, err := time.Parse(f, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized timestamp format: %q", s)
}
