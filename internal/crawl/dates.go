package crawl

import (
	"time"

	"github.com/albapepper/courtwatch/internal/slot"
)

// Booking sites open next month's slots at a fixed monthly cutoff, so the
// crawl window runs to the end of the current month until the cutoff passes,
// then to the end of the next month. Cutoffs are local to Asia/Seoul.

var kst = mustLoadKST()

func mustLoadKST() *time.Location {
	loc, err := time.LoadLocation("Asia/Seoul")
	if err != nil {
		// Static zone fallback when the tzdata is unavailable.
		return time.FixedZone("KST", 9*60*60)
	}
	return loc
}

// Cutoff is a per-source monthly release moment: day of month plus local
// wall-clock time.
type Cutoff struct {
	Day    int
	Hour   int
	Minute int
}

// Source release schedules.
var (
	CutoffGytennis = Cutoff{Day: 25, Hour: 22}
	CutoffDaehwa   = Cutoff{Day: 25, Hour: 10}
)

// Passed reports whether the cutoff has passed at time now.
func (c Cutoff) Passed(now time.Time) bool {
	if now.Day() != c.Day {
		return now.Day() > c.Day
	}
	if now.Hour() != c.Hour {
		return now.Hour() > c.Hour
	}
	return now.Minute() >= c.Minute
}

// DateRange builds the crawl window as DateKeys from now's date through the
// end of the current month, or through the end of the next month once the
// cutoff has passed. Returns the cutoff state alongside the keys.
func DateRange(c Cutoff, now time.Time) (cutoffPassed bool, dateKeys []string) {
	now = now.In(kst)
	cutoffPassed = c.Passed(now)

	year, month := now.Year(), now.Month()
	if cutoffPassed {
		if month == time.December {
			year, month = year+1, time.January
		} else {
			month++
		}
	}
	end := endOfMonth(year, month)

	for d := now; !d.After(end); d = d.AddDate(0, 0, 1) {
		dateKeys = append(dateKeys, slot.DateKeyOf(d))
	}
	return cutoffPassed, dateKeys
}

// UpcomingDateKeys returns n DateKeys starting tomorrow, the sampling window
// the benchmark harness uses.
func UpcomingDateKeys(now time.Time, n int) []string {
	keys := make([]string, 0, n)
	d := now.In(kst).AddDate(0, 0, 1)
	for i := 0; i < n; i++ {
		keys = append(keys, slot.DateKeyOf(d))
		d = d.AddDate(0, 0, 1)
	}
	return keys
}

func endOfMonth(year int, month time.Month) time.Time {
	// Day 0 of the next month is the last day of this one.
	return time.Date(year, month+1, 0, 23, 59, 59, 0, kst)
}
