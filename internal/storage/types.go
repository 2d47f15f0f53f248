package storage

import "time"

// MaxBatchRows caps the rows accepted in one upsert batch.
const MaxBatchRows = 20000

// upsertChunkRows bounds the VALUES tuples per INSERT statement.
const upsertChunkRows = 500

const (
	dayLayout = "2006-01-02"
	// timeLayout is fixed-width so SQLite text comparison follows time order.
	timeLayout = "2006-01-02T15:04:05.000Z"
)

// DomainDailyRow is one incoming (day, domain) count. Visits accepts any
// JSON value; the store coerces it.
type DomainDailyRow struct {
	Day      string      `json:"day" validate:"required,datetime=2006-01-02"`
	Domain   string      `json:"domain" validate:"required,max=253"`
	Visits   LooseNumber `json:"visits"`
	LastSeen string      `json:"lastSeen,omitempty" validate:"omitempty,datetime=2006-01-02T15:04:05Z07:00"`
}

// DomainDaily is one stored count as returned by the summary.
type DomainDaily struct {
	Day    string `db:"day" json:"day"`
	Domain string `db:"domain" json:"domain"`
	Visits int    `db:"visits" json:"visits"`
}

// Summary is the per-identity read model.
type Summary struct {
	Days     int
	LastSync *time.Time
	Rows     []DomainDaily
}

// Stats describes the whole store.
type Stats struct {
	Rows       int64
	Identities int64
	OldestDay  string
	NewestDay  string
}

// dailyRecord is the scan target for summary queries.
type dailyRecord struct {
	Day       string `db:"day"`
	Domain    string `db:"domain"`
	Visits    int    `db:"visits"`
	UpdatedAt string `db:"updated_at"`
}
