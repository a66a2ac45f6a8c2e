package ingest

import (
	"fmt"
	"time"
)

// window is one calendar-month slice of report_date used to keep deep
// backfills under the API's skip ceiling.
type window struct {
	start time.Time // first day of month, inclusive
	end   time.Time // last day of month, inclusive
}

// label renders the window for logs and progress events.
func (w window) label() string {
	return w.start.Format("2006-01")
}

// search renders the window as an openFDA search expression.
func (w window) search() string {
	return fmt.Sprintf("report_date:[%s TO %s]",
		w.start.Format("20060102"), w.end.Format("20060102"))
}

// monthWindows returns one window per calendar month from `from` (truncated
// to its month) through the month containing `until`, oldest first.
func monthWindows(from, until time.Time) []window {
	from = time.Date(from.Year(), from.Month(), 1, 0, 0, 0, 0, time.UTC)
	until = time.Date(until.Year(), until.Month(), 1, 0, 0, 0, 0, time.UTC)

	var out []window
	for cur := from; !cur.After(until); cur = cur.AddDate(0, 1, 0) {
		out = append(out, window{
			start: cur,
			end:   cur.AddDate(0, 1, -1),
		})
	}
	return out
}
