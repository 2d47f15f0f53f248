package history

import (
	"cmp"
	"slices"
	"time"
)

// RawVisit is one history row as read from a source.
type RawVisit struct {
	URL        string
	Title      string
	VisitCount int
	LastVisit  time.Time
}

// DomainDayKey identifies one aggregate bucket.
type DomainDayKey struct {
	Domain string
	Day    string
}

// AggregateEntry is the folded visit count for one (domain, day).
type AggregateEntry struct {
	Domain   string
	Day      string
	Visits   int
	Title    string
	LastSeen time.Time // zero when no timestamp was observed
}

// Key returns the entry's bucket key.
func (e AggregateEntry) Key() DomainDayKey {
	return DomainDayKey{Domain: e.Domain, Day: e.Day}
}

// Merge folds o into e. Visits add, the longer title wins (equal lengths
// resolve to the lexicographically smaller title), and LastSeen keeps the
// later timestamp. The operation is commutative and associative, so the
// result never depends on input order.
func (e *AggregateEntry) Merge(o AggregateEntry) {
	e.Visits += o.Visits
	if betterTitle(o.Title, e.Title) {
		e.Title = o.Title
	}
	if o.LastSeen.After(e.LastSeen) {
		e.LastSeen = o.LastSeen
	}
}

func betterTitle(candidate, current string) bool {
	if len(candidate) != len(current) {
		return len(candidate) > len(current)
	}
	return candidate != "" && candidate < current
}

// visitWeight floors missing or zero counts to one visit.
func visitWeight(n int) int {
	return max(1, n)
}

// Aggregator folds raw visits into per-(domain, day) entries. It is not
// safe for concurrent use; one collection run owns one Aggregator.
type Aggregator struct {
	bucket  Bucketer
	deny    Denylist
	entries map[DomainDayKey]*AggregateEntry
	seen    int
	skipped int
}

// NewAggregator returns an Aggregator bucketing days with b and dropping
// domains covered by deny.
func NewAggregator(b Bucketer, deny Denylist) *Aggregator {
	return &Aggregator{
		bucket:  b,
		deny:    deny,
		entries: make(map[DomainDayKey]*AggregateEntry),
	}
}

// Add folds one raw visit. It returns false when the visit was skipped
// because its URL is excluded, unparseable, or denylisted.
func (a *Aggregator) Add(v RawVisit) bool {
	a.seen++

	domain, ok := ExtractDomain(v.URL)
	if !ok || a.deny.Blocks(domain) {
		a.skipped++
		return false
	}

	contrib := AggregateEntry{
		Domain:   domain,
		Day:      a.bucket.Day(v.LastVisit),
		Visits:   visitWeight(v.VisitCount),
		Title:    v.Title,
		LastSeen: v.LastVisit,
	}

	if cur, exists := a.entries[contrib.Key()]; exists {
		cur.Merge(contrib)
		return true
	}
	a.entries[contrib.Key()] = &contrib
	return true
}

// Seen returns how many raw visits were offered to Add.
func (a *Aggregator) Seen() int { return a.seen }

// Skipped returns how many raw visits were dropped.
func (a *Aggregator) Skipped() int { return a.skipped }

// Entries returns the aggregate sorted by day then domain. Entries that never
// saw a title use the domain as their title.
func (a *Aggregator) Entries() []AggregateEntry {
	out := make([]AggregateEntry, 0, len(a.entries))
	for _, e := range a.entries {
		entry := *e
		if entry.Title == "" {
			entry.Title = entry.Domain
		}
		out = append(out, entry)
	}
	SortEntries(out)
	return out
}

// Aggregate folds visits with no denylist.
func Aggregate(visits []RawVisit, b Bucketer) []AggregateEntry {
	agg := NewAggregator(b, nil)
	for _, v := range visits {
		agg.Add(v)
	}
	return agg.Entries()
}

// SortEntries orders entries by day, then domain.
func SortEntries(entries []AggregateEntry) {
	slices.SortFunc(entries, func(x, y AggregateEntry) int {
		if c := cmp.Compare(x.Day, y.Day); c != 0 {
			return c
		}
		return cmp.Compare(x.Domain, y.Domain)
	})
}
