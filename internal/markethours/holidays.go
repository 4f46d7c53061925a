package markethours

import "time"

// FX liquidity closures observed every year (UTC calendar days).
var fxHolidays = []struct {
	month time.Month
	day   int
}{
	{time.January, 1},   // New Year's Day
	{time.December, 25}, // Christmas Day
}

// pre-compute for fast lookup
var holidaySet map[dayKey]bool

type dayKey struct {
	month time.Month
	day   int
}

func init() {
	holidaySet = make(map[dayKey]bool, len(fxHolidays))
	for _, h := range fxHolidays {
		holidaySet[dayKey{h.month, h.day}] = true
	}
}

// IsHoliday returns true if the UTC date of t is an FX closure day.
func IsHoliday(t time.Time) bool {
	u := t.UTC()
	return holidaySet[dayKey{u.Month(), u.Day()}]
}
