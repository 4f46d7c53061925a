package smc

import "smc-systemv1/internal/model"

// ClassifyStructure counts higher highs and lower lows by comparing each
// swing to the same-type swing two positions earlier, when exactly one
// opposite swing sits between them. Trend is bullish when HH exceeds LL by
// more than margin, bearish on the reverse, ranging otherwise.
//
// Events are emitted on the same comparisons: a break in the direction of
// the running bias is a BOS, a break against it is a CHoCH.
func ClassifyStructure(swings []SwingPoint, margin int) MarketStructure {
	ms := MarketStructure{
		Trend:  TrendRanging,
		Swings: append([]SwingPoint(nil), swings...),
	}

	bias := TrendRanging
	for i := 2; i < len(swings); i++ {
		cur, mid, prev := swings[i], swings[i-1], swings[i-2]
		if cur.Type != prev.Type || mid.Type == cur.Type {
			continue
		}
		switch {
		case cur.Type == SwingHigh && cur.Price > prev.Price:
			ms.HigherHighs++
			ms.Events = append(ms.Events, breakEvent(bias, Bullish, cur))
			bias = TrendBullish
		case cur.Type == SwingLow && cur.Price < prev.Price:
			ms.LowerLows++
			ms.Events = append(ms.Events, breakEvent(bias, Bearish, cur))
			bias = TrendBearish
		}
	}

	ms.Trend = trendFromCounts(ms.HigherHighs, ms.LowerLows, margin)
	return ms
}

func breakEvent(bias Trend, dir Side, at SwingPoint) StructureEvent {
	kind := BreakOfStructure
	if (bias == TrendBullish && dir == Bearish) || (bias == TrendBearish && dir == Bullish) {
		kind = ChangeOfCharacter
	}
	return StructureEvent{Kind: kind, Direction: dir, Price: at.Price, Index: at.Index}
}

func trendFromCounts(hh, ll, margin int) Trend {
	switch {
	case hh > ll+margin:
		return TrendBullish
	case ll > hh+margin:
		return TrendBearish
	}
	return TrendRanging
}

// hasComparablePairs reports whether any X,Y,X swing triple exists.
func hasComparablePairs(swings []SwingPoint) bool {
	for i := 2; i < len(swings); i++ {
		if swings[i].Type == swings[i-2].Type && swings[i-1].Type != swings[i].Type {
			return true
		}
	}
	return false
}

// ClassifyFromCandles is the fallback used when a series produces no
// comparable swing pairs, as a strictly monotonic run does. The candles are
// cut into consecutive windows of 2r+1 bars ending at the newest bar, and
// each window's extreme high and low is compared to the previous window's.
func ClassifyFromCandles(candles []model.Candle, swings []SwingPoint, radius, margin int) MarketStructure {
	ms := MarketStructure{
		Trend:       TrendRanging,
		Swings:      append([]SwingPoint(nil), swings...),
		FromCandles: true,
	}
	if radius < 1 {
		radius = 1
	}
	width := 2*radius + 1
	n := len(candles)
	if n < 2*width {
		return ms
	}

	start := n % width
	var prevHigh, prevLow float64
	bias := TrendRanging
	for w := start; w+width <= n; w += width {
		hi, lo, hiIdx, loIdx := candles[w].High, candles[w].Low, w, w
		for j := w + 1; j < w+width; j++ {
			if candles[j].High > hi {
				hi, hiIdx = candles[j].High, j
			}
			if candles[j].Low < lo {
				lo, loIdx = candles[j].Low, j
			}
		}
		if w > start {
			if hi > prevHigh {
				ms.HigherHighs++
				ms.Events = append(ms.Events, breakEvent(bias, Bullish, SwingPoint{Type: SwingHigh, Price: hi, Index: hiIdx}))
				bias = TrendBullish
			}
			if lo < prevLow {
				ms.LowerLows++
				ms.Events = append(ms.Events, breakEvent(bias, Bearish, SwingPoint{Type: SwingLow, Price: lo, Index: loIdx}))
				bias = TrendBearish
			}
		}
		prevHigh, prevLow = hi, lo
	}

	ms.Trend = trendFromCounts(ms.HigherHighs, ms.LowerLows, margin)
	return ms
}
