// Package markethours answers whether an instrument is trading and which
// FX sessions are active. Times are evaluated in UTC; the FX week runs from
// Sunday 22:00 to Friday 22:00 UTC. Crypto trades around the clock.
package markethours

import (
	"fmt"
	"strings"
	"time"

	"smc-systemv1/internal/model"
)

// FX week boundaries in UTC.
const (
	WeekOpenHour  = 22 // Sunday
	WeekCloseHour = 22 // Friday
)

// Session is one regional FX trading session.
type Session struct {
	Name      string
	OpenHour  int // UTC, inclusive
	CloseHour int // UTC, exclusive; may be less than OpenHour when wrapping midnight
}

// Sessions in chronological order of their open.
var Sessions = []Session{
	{Name: "Sydney", OpenHour: 21, CloseHour: 6},
	{Name: "Tokyo", OpenHour: 0, CloseHour: 9},
	{Name: "London", OpenHour: 7, CloseHour: 16},
	{Name: "NewYork", OpenHour: 12, CloseHour: 21},
}

func (s Session) contains(hour int) bool {
	if s.OpenHour < s.CloseHour {
		return hour >= s.OpenHour && hour < s.CloseHour
	}
	return hour >= s.OpenHour || hour < s.CloseHour
}

// IsFXOpen reports whether the FX market trades at t.
func IsFXOpen(t time.Time) bool {
	u := t.UTC()
	if IsHoliday(u) {
		return false
	}
	switch u.Weekday() {
	case time.Saturday:
		return false
	case time.Sunday:
		return u.Hour() >= WeekOpenHour
	case time.Friday:
		return u.Hour() < WeekCloseHour
	default:
		return true
	}
}

// IsOpen reports whether the instrument trades at t.
func IsOpen(spec model.InstrumentSpec, t time.Time) bool {
	if spec.Always24x7() {
		return true
	}
	return IsFXOpen(t)
}

// ActiveSessions returns the sessions open at t, empty when FX is closed.
func ActiveSessions(t time.Time) []Session {
	if !IsFXOpen(t) {
		return nil
	}
	h := t.UTC().Hour()
	var out []Session
	for _, s := range Sessions {
		if s.contains(h) {
			out = append(out, s)
		}
	}
	return out
}

// SessionLabel names the active sessions, e.g. "London/NewYork overlap".
// Returns "" when FX is closed.
func SessionLabel(t time.Time) string {
	active := ActiveSessions(t)
	switch len(active) {
	case 0:
		return ""
	case 1:
		return active[0].Name + " session"
	}
	names := make([]string, len(active))
	for i, s := range active {
		names[i] = s.Name
	}
	return strings.Join(names, "/") + " overlap"
}

// NextOpen returns the next FX open at or after t.
func NextOpen(t time.Time) time.Time {
	u := t.UTC()
	if IsFXOpen(u) {
		return u
	}
	// step through whole hours; the longest closure is a weekend plus a holiday
	next := u.Truncate(time.Hour).Add(time.Hour)
	for i := 0; i < 24*5; i++ {
		if IsFXOpen(next) {
			return next
		}
		next = next.Add(time.Hour)
	}
	return next
}

// WeekClose returns the Friday close of the FX week containing t.
func WeekClose(t time.Time) time.Time {
	u := t.UTC()
	days := (int(time.Friday) - int(u.Weekday()) + 7) % 7
	d := u.AddDate(0, 0, days)
	return time.Date(d.Year(), d.Month(), d.Day(), WeekCloseHour, 0, 0, 0, time.UTC)
}

// StatusString returns a human-readable market status for an instrument.
func StatusString(spec model.InstrumentSpec, t time.Time) string {
	if spec.Always24x7() {
		return "Market Open (24/7)"
	}
	if IsFXOpen(t) {
		return fmt.Sprintf("Market Open: %s, closes in %s", SessionLabel(t), fmtDur(WeekClose(t).Sub(t.UTC())))
	}
	next := NextOpen(t)
	return fmt.Sprintf("Market Closed: opens %s %s UTC (%s)",
		next.Weekday().String()[:3], next.Format("15:04"), fmtDur(next.Sub(t.UTC())))
}

func fmtDur(d time.Duration) string {
	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	if h > 0 {
		return fmt.Sprintf("%dh%dm", h, m)
	}
	return fmt.Sprintf("%dm", m)
}
