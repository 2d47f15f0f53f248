// Package chromedb reads visit rows from a Chrome "History" SQLite file.
package chromedb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/runnerr0/browsedash/internal/history"

	_ "modernc.org/sqlite" // pure-Go driver, registered as "sqlite"
)

var (
	// ErrSchema means the file is not a Chrome History database.
	ErrSchema = errors.New("not a Chrome History file")
	// ErrEmpty means the urls table holds no rows.
	ErrEmpty = errors.New("no rows. Is this a Chrome History file?")
)

const urlsQuery = `
	SELECT url, title, visit_count, typed_count, last_visit_time
	FROM urls
`

// Row is one entry of the urls table. LastVisitTime is microseconds since
// 1601-01-01 UTC.
type Row struct {
	URL           string
	Title         string
	VisitCount    int
	TypedCount    int
	LastVisitTime int64
}

// RawVisit converts the row, translating Chrome's epoch.
func (r Row) RawVisit() history.RawVisit {
	return history.RawVisit{
		URL:        r.URL,
		Title:      r.Title,
		VisitCount: r.VisitCount,
		LastVisit:  history.ChromeTime(r.LastVisitTime),
	}
}

// sidecarSuffixes name the journal files SQLite keeps next to a database.
// Rows a running browser has not checkpointed yet live only in the -wal file.
var sidecarSuffixes = []string{"-wal", "-journal"}

// ReadFile loads every row of the urls table. The file is copied first,
// along with any -wal or -journal sidecar, because a running browser keeps
// the original locked.
func ReadFile(ctx context.Context, path string) ([]Row, error) {
	tmpDir, err := os.MkdirTemp("", "browsedash-import-*")
	if err != nil {
		return nil, fmt.Errorf("create temp dir: %w", err)
	}
	defer os.RemoveAll(tmpDir)

	copyPath := filepath.Join(tmpDir, "History")
	if err := copyFile(path, copyPath); err != nil {
		return nil, err
	}
	for _, suffix := range sidecarSuffixes {
		if _, err := os.Stat(path + suffix); err != nil {
			continue
		}
		if err := copyFile(path+suffix, copyPath+suffix); err != nil {
			return nil, err
		}
	}

	db, err := sql.Open("sqlite", "file:"+copyPath+"?_pragma=query_only(1)")
	if err != nil {
		return nil, fmt.Errorf("open history file: %w", err)
	}
	defer db.Close()

	rows, err := db.QueryContext(ctx, urlsQuery)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSchema, err)
	}
	defer rows.Close()

	var out []Row
	for rows.Next() {
		var (
			u, title        sql.NullString
			visits, typed   sql.NullInt64
			lastVisitMicros sql.NullInt64
		)
		if err := rows.Scan(&u, &title, &visits, &typed, &lastVisitMicros); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrSchema, err)
		}
		out = append(out, Row{
			URL:           u.String,
			Title:         title.String,
			VisitCount:    int(visits.Int64),
			TypedCount:    int(typed.Int64),
			LastVisitTime: lastVisitMicros.Int64,
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read urls: %w", err)
	}

	if len(out) == 0 {
		return nil, ErrEmpty
	}
	return out, nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("open history file: %w", err)
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return fmt.Errorf("create working copy: %w", err)
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return fmt.Errorf("copy history file: %w", err)
	}
	return out.Close()
}

// Source is a history.Source over a History file. Days are bucketed in the
// local calendar and the window is measured from the import time.
type Source struct {
	Path     string
	Location *time.Location
	Now      func() time.Time
}

// NewSource returns a Source for path using the local time zone.
func NewSource(path string) *Source {
	return &Source{Path: path, Location: time.Local, Now: time.Now}
}

// Name implements history.Source.
func (s *Source) Name() string { return "file" }

// Bucketer implements history.Source.
func (s *Source) Bucketer() history.Bucketer { return history.LocalDay(s.Location) }

// Visits reads the file and keeps rows inside the trailing window.
func (s *Source) Visits(ctx context.Context, days int) ([]history.RawVisit, error) {
	rows, err := ReadFile(ctx, s.Path)
	if err != nil {
		return nil, err
	}

	visits := make([]history.RawVisit, len(rows))
	for i, r := range rows {
		visits[i] = r.RawVisit()
	}

	now := time.Now
	if s.Now != nil {
		now = s.Now
	}
	return history.NewWindow(days, now(), s.Bucketer()).Raw(visits), nil
}
