package history

import "time"

// DayLayout is the wire and storage format of a day bucket.
const DayLayout = "2006-01-02"

// Bucketer assigns a visit timestamp to a calendar day. Each source picks one
// strategy and keeps it; the strategies are not required to agree.
type Bucketer interface {
	Day(t time.Time) string
	Name() string
}

type utcDay struct{}

func (utcDay) Day(t time.Time) string { return t.UTC().Format(DayLayout) }
func (utcDay) Name() string           { return "utc" }

// UTCDay buckets by the UTC date. The live bridge source uses it.
var UTCDay Bucketer = utcDay{}

type localDay struct {
	loc *time.Location
}

func (l localDay) Day(t time.Time) string { return t.In(l.loc).Format(DayLayout) }
func (l localDay) Name() string           { return "local:" + l.loc.String() }

// LocalDay buckets by the calendar date in loc (time.Local when nil). The
// History file import uses it so days line up with what the user saw.
func LocalDay(loc *time.Location) Bucketer {
	if loc == nil {
		loc = time.Local
	}
	return localDay{loc: loc}
}

// chromeEpochOffsetMicros is the distance from 1601-01-01T00:00:00Z, the
// origin of Chrome's History timestamps, to the Unix epoch.
const chromeEpochOffsetMicros = 11644473600 * 1000 * 1000

// ChromeTime converts microseconds since 1601-01-01 UTC to a time.Time.
func ChromeTime(us int64) time.Time {
	return time.UnixMicro(us - chromeEpochOffsetMicros).UTC()
}

// ToChromeTime is the inverse of ChromeTime.
func ToChromeTime(t time.Time) int64 {
	return t.UnixMicro() + chromeEpochOffsetMicros
}

// UnixMillis converts a JavaScript-style millisecond timestamp.
func UnixMillis(ms float64) time.Time {
	return time.UnixMilli(int64(ms)).UTC()
}
