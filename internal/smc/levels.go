package smc

import (
	"math"
	"sort"

	"smc-systemv1/internal/model"
)

// FindLevels clusters every high, low and close of the series into price
// levels. Prices within tol (fractional, relative to the cluster's first
// price) share a cluster; each member is a touch. Levels with at least
// minTouches are kept, most-touched first, capped at limit. A level above the
// latest close is resistance, otherwise support.
func FindLevels(candles []model.Candle, tol float64, minTouches, limit int) []Level {
	if len(candles) == 0 {
		return nil
	}
	prices := make([]float64, 0, len(candles)*3)
	for _, c := range candles {
		prices = append(prices, c.High, c.Low, c.Close)
	}
	sort.Float64s(prices)

	current := candles[len(candles)-1].Close
	var levels []Level
	flush := func(sum float64, count int) {
		if count < minTouches {
			return
		}
		p := sum / float64(count)
		t := Support
		if p > current {
			t = Resistance
		}
		levels = append(levels, Level{Price: p, Touches: count, Type: t})
	}

	anchor, sum, count := prices[0], 0.0, 0
	for _, p := range prices {
		if anchor > 0 && (p-anchor)/anchor > tol {
			flush(sum, count)
			anchor, sum, count = p, 0, 0
		}
		sum += p
		count++
	}
	flush(sum, count)

	sort.SliceStable(levels, func(i, j int) bool {
		if levels[i].Touches != levels[j].Touches {
			return levels[i].Touches > levels[j].Touches
		}
		return math.Abs(levels[i].Price-current) < math.Abs(levels[j].Price-current)
	})
	if limit > 0 && len(levels) > limit {
		levels = levels[:limit]
	}
	return levels
}

// NearestLevel returns the closest level of type t on the expected side of
// price (supports below, resistances above), or false.
func NearestLevel(levels []Level, t LevelType, price float64) (Level, bool) {
	best, found := Level{}, false
	for _, l := range levels {
		if l.Type != t {
			continue
		}
		if !found || math.Abs(l.Price-price) < math.Abs(best.Price-price) {
			best, found = l, true
		}
	}
	return best, found
}
