package smc

import "smc-systemv1/internal/model"

// DetectSwings marks pivot highs and lows using a symmetric window of the
// given radius. A high at i must be strictly above every other high in
// [i-r, i+r]; equal values disqualify. Fewer than 2r+1 candles yields nil.
//
// An outside bar can be a strict extreme on both sides. It is reported once,
// as whichever side protrudes further relative to its neighbours.
func DetectSwings(candles []model.Candle, radius int) []SwingPoint {
	if radius < 1 {
		radius = 1
	}
	n := len(candles)
	if n < 2*radius+1 {
		return nil
	}

	var swings []SwingPoint
	for i := radius; i < n-radius; i++ {
		hiEdge, isHigh := highMargin(candles, i, radius)
		loEdge, isLow := lowMargin(candles, i, radius)

		if isHigh && isLow {
			switch {
			case hiEdge/candles[i].High > loEdge/candles[i].Low:
				isLow = false
			case hiEdge/candles[i].High < loEdge/candles[i].Low:
				isHigh = false
			default:
				continue
			}
		}

		c := candles[i]
		switch {
		case isHigh:
			swings = append(swings, SwingPoint{Type: SwingHigh, Price: c.High, Index: i, Time: c.Time})
		case isLow:
			swings = append(swings, SwingPoint{Type: SwingLow, Price: c.Low, Index: i, Time: c.Time})
		}
	}
	return swings
}

// highMargin returns how far candles[i].High clears the highest neighbour.
func highMargin(candles []model.Candle, i, r int) (float64, bool) {
	h := candles[i].High
	maxOther := 0.0
	first := true
	for j := i - r; j <= i+r; j++ {
		if j == i {
			continue
		}
		if candles[j].High >= h {
			return 0, false
		}
		if first || candles[j].High > maxOther {
			maxOther = candles[j].High
			first = false
		}
	}
	return h - maxOther, true
}

// lowMargin returns how far candles[i].Low undercuts the lowest neighbour.
func lowMargin(candles []model.Candle, i, r int) (float64, bool) {
	l := candles[i].Low
	minOther := 0.0
	first := true
	for j := i - r; j <= i+r; j++ {
		if j == i {
			continue
		}
		if candles[j].Low <= l {
			return 0, false
		}
		if first || candles[j].Low < minOther {
			minOther = candles[j].Low
			first = false
		}
	}
	return minOther - l, true
}

// LastSwing returns the most recent swing of the given type before index
// limit (exclusive), or false.
func LastSwing(swings []SwingPoint, t SwingType, limit int) (SwingPoint, bool) {
	for i := len(swings) - 1; i >= 0; i-- {
		if swings[i].Type == t && swings[i].Index < limit {
			return swings[i], true
		}
	}
	return SwingPoint{}, false
}
