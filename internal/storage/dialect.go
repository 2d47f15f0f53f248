package storage

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"                                // Postgres driver
	_ "github.com/mattn/go-sqlite3"                      // SQLite driver
	_ "github.com/tursodatabase/libsql-client-go/libsql" // Turso driver
)

// Dialect names the SQL backend behind a DSN. Its value is the
// database/sql driver name.
type Dialect string

const (
	DialectSQLite   Dialect = "sqlite3"
	DialectLibSQL   Dialect = "libsql"
	DialectPostgres Dialect = "postgres"
)

func init() {
	sqlx.BindDriver(string(DialectLibSQL), sqlx.QUESTION)
}

// DetectDialect picks the backend from the DSN scheme. Anything that is
// not Postgres or libSQL is treated as a local SQLite path.
func DetectDialect(dsn string) Dialect {
	switch {
	case strings.HasPrefix(dsn, "postgres://"), strings.HasPrefix(dsn, "postgresql://"):
		return DialectPostgres
	case strings.Contains(dsn, "libsql://"), strings.Contains(dsn, "wss://"):
		return DialectLibSQL
	default:
		return DialectSQLite
	}
}

// OpenDB opens and pings the database behind dsn.
func OpenDB(ctx context.Context, dsn string) (*sqlx.DB, Dialect, error) {
	d := DetectDialect(dsn)

	connStr := dsn
	switch d {
	case DialectSQLite:
		connStr = strings.TrimPrefix(dsn, "sqlite://")
	case DialectPostgres:
		connStr = withConnectTimeout(dsn, 10)
	}

	db, err := sqlx.Open(string(d), connStr)
	if err != nil {
		return nil, "", fmt.Errorf("open %s database: %w", d, err)
	}

	switch d {
	case DialectSQLite:
		// One connection keeps :memory: databases shared and serializes writers.
		db.SetMaxOpenConns(1)
	case DialectPostgres:
		db.SetMaxOpenConns(5)
		db.SetConnMaxIdleTime(5 * time.Minute)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, "", fmt.Errorf("ping %s database: %w", d, err)
	}
	return db, d, nil
}

func withConnectTimeout(dsn string, seconds int) string {
	u, err := url.Parse(dsn)
	if err != nil {
		return dsn
	}
	q := u.Query()
	if q.Get("connect_timeout") == "" {
		q.Set("connect_timeout", fmt.Sprint(seconds))
		u.RawQuery = q.Encode()
	}
	return u.String()
}

// Redact hides credentials in a URL-shaped DSN for logging.
func Redact(dsn string) string {
	u, err := url.Parse(dsn)
	if err != nil {
		return dsn
	}
	if u.User != nil {
		if _, ok := u.User.Password(); ok {
			u.User = url.UserPassword(u.User.Username(), "xxxxx")
		}
	}
	q := u.Query()
	if q.Has("authToken") {
		q.Set("authToken", "xxxxx")
		u.RawQuery = q.Encode()
	}
	return u.String()
}
