package history

import "context"

// Source produces raw visits for the trailing days and names the bucketing
// rule its timestamps follow.
type Source interface {
	Name() string
	Visits(ctx context.Context, days int) ([]RawVisit, error)
	Bucketer() Bucketer
}
