// Package report fetches attribution-window performance reports in
// sub-ranges the platform accepts.
package report

import (
	"fmt"
	"time"
)

const dayLayout = "2006-01-02"

// DateRange is an inclusive range of UTC calendar days
type DateRange struct {
	Start time.Time
	End   time.Time
}

// Days returns the number of calendar days in the range
func (r DateRange) Days() int {
	if r.End.Before(r.Start) {
		return 0
	}
	return int(r.End.Sub(r.Start).Hours()/24) + 1
}

func (r DateRange) String() string {
	return fmt.Sprintf("%s..%s", r.Start.Format(dayLayout), r.End.Format(dayLayout))
}

// Day truncates t to midnight UTC
func Day(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// Window returns the trailing attribution window of the given length,
// ending yesterday. Today's metrics are still accumulating.
func Window(now time.Time, days int) DateRange {
	if days < 1 {
		days = 1
	}
	end := Day(now).AddDate(0, 0, -1)
	return DateRange{Start: end.AddDate(0, 0, -(days - 1)), End: end}
}

// SplitDateRange splits r into consecutive, non-overlapping sub-ranges of at
// most maxDays days, oldest first
func SplitDateRange(r DateRange, maxDays int) []DateRange {
	if maxDays < 1 {
		maxDays = 1
	}
	start, end := Day(r.Start), Day(r.End)
	if end.Before(start) {
		return nil
	}

	var out []DateRange
	for cur := start; !cur.After(end); {
		next := cur.AddDate(0, 0, maxDays-1)
		if next.After(end) {
			next = end
		}
		out = append(out, DateRange{Start: cur, End: next})
		cur = next.AddDate(0, 0, 1)
	}
	return out
}
