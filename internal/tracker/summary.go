package tracker

import "smc-systemv1/internal/model"

// Summary aggregates closed signals.
type Summary struct {
	Open       int     `json:"open"`
	Closed     int     `json:"closed"`
	Wins       int     `json:"wins"`
	Losses     int     `json:"losses"`
	Breakevens int     `json:"breakevens"`
	WinRate    float64 `json:"win_rate"` // percent of closed
	TotalPips  float64 `json:"total_pips"`
	TotalPnL   float64 `json:"total_pnl"`
}

// Summary returns totals over every signal closed since start.
func (t *Tracker) Summary() Summary {
	t.mu.Lock()
	defer t.mu.Unlock()

	s := Summary{Open: len(t.open), Closed: len(t.closed)}
	for _, ev := range t.closed {
		switch ev.Update.Status {
		case model.StatusHitTP3:
			s.Wins++
		case model.StatusHitSL:
			s.Losses++
		case model.StatusBreakeven:
			s.Breakevens++
		}
		s.TotalPips += ev.Pips
		s.TotalPnL += ev.PnL
	}
	if s.Closed > 0 {
		s.WinRate = float64(s.Wins) / float64(s.Closed) * 100
	}
	return s
}

// Closed returns the terminal events seen so far, oldest first.
func (t *Tracker) Closed() []Event {
	t.mu.Lock()
	defer t.mu.Unlock()
	cp := make([]Event, len(t.closed))
	copy(cp, t.closed)
	return cp
}
