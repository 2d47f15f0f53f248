package history

import (
	"strconv"
	"strings"
	"time"
)

// Window bounds, in days.
const (
	MinWindowDays       = 1
	MaxWindowDays       = 365
	DefaultWindowDays   = 30
	ImportRetentionDays = 365
)

// ClampDays forces days into [MinWindowDays, MaxWindowDays].
func ClampDays(days int) int {
	return min(max(days, MinWindowDays), MaxWindowDays)
}

// ParseDays reads a window size from a query or flag value. Empty or
// non-numeric input yields DefaultWindowDays; numbers are clamped.
func ParseDays(s string) int {
	s = strings.TrimSpace(s)
	if s == "" {
		return DefaultWindowDays
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		f, ferr := strconv.ParseFloat(s, 64)
		if ferr != nil {
			return DefaultWindowDays
		}
		n = int(f)
	}
	return ClampDays(n)
}

// Window is a trailing range of day buckets ending at a reference time.
// Both ends are inclusive.
type Window struct {
	Days   int
	From   string
	To     string
	bucket Bucketer
}

// NewWindow builds the window of days buckets before ref, plus ref's own
// bucket, using b to name days.
func NewWindow(days int, ref time.Time, b Bucketer) Window {
	d := ClampDays(days)
	return Window{
		Days:   d,
		From:   b.Day(ref.AddDate(0, 0, -d)),
		To:     b.Day(ref),
		bucket: b,
	}
}

// Contains reports whether day falls inside the window.
func (w Window) Contains(day string) bool {
	return day >= w.From && day <= w.To
}

// Entries keeps aggregate entries inside the window.
func (w Window) Entries(entries []AggregateEntry) []AggregateEntry {
	out := make([]AggregateEntry, 0, len(entries))
	for _, e := range entries {
		if w.Contains(e.Day) {
			out = append(out, e)
		}
	}
	return out
}

// Visits keeps normalized visits inside the window.
func (w Window) Visits(visits []NormalizedVisit) []NormalizedVisit {
	out := make([]NormalizedVisit, 0, len(visits))
	for _, v := range visits {
		if w.Contains(v.Date) {
			out = append(out, v)
		}
	}
	return out
}

// Raw keeps raw visits whose timestamp buckets inside the window.
func (w Window) Raw(visits []RawVisit) []RawVisit {
	out := make([]RawVisit, 0, len(visits))
	for _, v := range visits {
		if w.Contains(w.bucket.Day(v.LastVisit)) {
			out = append(out, v)
		}
	}
	return out
}
