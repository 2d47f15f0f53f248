package history

import (
	"cmp"
	"slices"
)

// NormalizedVisit is the display shape of an aggregate entry.
type NormalizedVisit struct {
	Domain string `json:"domain"`
	Date   string `json:"date"`
	Visits int    `json:"visits"`
	Title  string `json:"title"`
}

// Normalize projects aggregate entries for display.
func Normalize(entries []AggregateEntry) []NormalizedVisit {
	out := make([]NormalizedVisit, len(entries))
	for i, e := range entries {
		out[i] = NormalizedVisit{
			Domain: e.Domain,
			Date:   e.Day,
			Visits: e.Visits,
			Title:  e.Title,
		}
	}
	return out
}

// DomainTotal is a domain's visit count across a window.
type DomainTotal struct {
	Domain string `json:"domain"`
	Visits int    `json:"visits"`
}

// DayTotal is the visit count across all domains for one day.
type DayTotal struct {
	Date   string `json:"date"`
	Visits int    `json:"visits"`
}

// TopDomains sums visits per domain, most visited first.
func TopDomains(visits []NormalizedVisit) []DomainTotal {
	sums := make(map[string]int)
	for _, v := range visits {
		sums[v.Domain] += v.Visits
	}

	out := make([]DomainTotal, 0, len(sums))
	for d, n := range sums {
		out = append(out, DomainTotal{Domain: d, Visits: n})
	}
	slices.SortFunc(out, func(a, b DomainTotal) int {
		if c := cmp.Compare(b.Visits, a.Visits); c != 0 {
			return c
		}
		return cmp.Compare(a.Domain, b.Domain)
	})
	return out
}

// DailyTotals sums visits per day in date order.
func DailyTotals(visits []NormalizedVisit) []DayTotal {
	sums := make(map[string]int)
	for _, v := range visits {
		sums[v.Date] += v.Visits
	}

	out := make([]DayTotal, 0, len(sums))
	for d, n := range sums {
		out = append(out, DayTotal{Date: d, Visits: n})
	}
	slices.SortFunc(out, func(a, b DayTotal) int {
		return cmp.Compare(a.Date, b.Date)
	})
	return out
}

// TotalVisits sums visits across all entries.
func TotalVisits(visits []NormalizedVisit) int {
	total := 0
	for _, v := range visits {
		total += v.Visits
	}
	return total
}
