package smc

import "smc-systemv1/internal/model"

// FindFairValueGaps scans candle triples (prev, curr, next). A bullish gap is
// prev.High < next.Low; bearish is prev.Low > next.High. A gap is filled once
// any candle after the triple trades back to its midpoint. Because filling is
// decided only by later bars, appending candles can fill a gap but never
// unfill it. Only the most recent limit gaps are returned.
func FindFairValueGaps(candles []model.Candle, limit int) []FairValueGap {
	var gaps []FairValueGap
	for i := 1; i+1 < len(candles); i++ {
		prev, next := candles[i-1], candles[i+1]

		var g FairValueGap
		switch {
		case prev.High < next.Low:
			g = FairValueGap{Type: Bullish, Top: next.Low, Bottom: prev.High}
		case prev.Low > next.High:
			g = FairValueGap{Type: Bearish, Top: prev.Low, Bottom: next.High}
		default:
			continue
		}
		g.Index, g.Time = i, candles[i].Time

		mid := g.Midpoint()
		for j := i + 2; j < len(candles); j++ {
			if (g.Type == Bullish && candles[j].Low <= mid) || (g.Type == Bearish && candles[j].High >= mid) {
				g.Filled, g.FilledIndex = true, j
				break
			}
		}
		gaps = append(gaps, g)
	}
	return lastN(gaps, limit)
}
