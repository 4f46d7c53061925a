package smc

import (
	"sort"

	"smc-systemv1/internal/model"
)

// FindBreakouts finds closes that cross a level after closing on the other
// side, and marks a retest when a later bar trades back to within tol of the
// level while still closing on the breakout side. The most recent limit
// breakouts across all levels are returned in index order.
func FindBreakouts(candles []model.Candle, levels []Level, tol float64, limit int) []Breakout {
	var out []Breakout
	for _, l := range levels {
		for k := 1; k < len(candles); k++ {
			prev, cur := candles[k-1].Close, candles[k].Close

			var b Breakout
			switch {
			case prev <= l.Price && cur > l.Price:
				b = Breakout{Type: Bullish}
			case prev >= l.Price && cur < l.Price:
				b = Breakout{Type: Bearish}
			default:
				continue
			}
			b.Level, b.Index, b.Time = l.Price, k, candles[k].Time

			for j := k + 1; j < len(candles); j++ {
				c := candles[j]
				if b.Type == Bullish && c.Low <= l.Price*(1+tol) && c.Close > l.Price {
					b.Retested, b.RetestIndex = true, j
					break
				}
				if b.Type == Bearish && c.High >= l.Price*(1-tol) && c.Close < l.Price {
					b.Retested, b.RetestIndex = true, j
					break
				}
			}
			out = append(out, b)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Index < out[j].Index })
	return lastN(out, limit)
}
