package smc

import (
	"math"
	"math/rand"

	"smc-systemv1/internal/model"
)

const minute = int64(60_000)

func makeCandle(i int, o, h, l, c float64) model.Candle {
	return model.Candle{Time: int64(i+1) * minute, Open: o, High: h, Low: l, Close: c, Volume: 1000}
}

// ascending builds n strictly rising bars: every high and low above the last.
func ascending(n int) []model.Candle {
	out := make([]model.Candle, n)
	for i := range out {
		o := 100 + float64(i)
		out[i] = makeCandle(i, o, o+1, o-0.2, o+0.8)
	}
	return out
}

// descending mirrors ascending.
func descending(n int) []model.Candle {
	out := make([]model.Candle, n)
	for i := range out {
		o := 300 - float64(i)
		out[i] = makeCandle(i, o, o+0.2, o-1, o-0.8)
	}
	return out
}

// randomWalk builds a valid series rounded to cents so ties occur.
func randomWalk(seed int64, n int) []model.Candle {
	r := rand.New(rand.NewSource(seed))
	out := make([]model.Candle, n)
	price := 100.0
	for i := range out {
		o := price
		c := round2(o + (r.Float64()-0.5)*2)
		h := round2(math.Max(o, c) + r.Float64()*0.5)
		l := round2(math.Min(o, c) - r.Float64()*0.5)
		out[i] = model.Candle{Time: int64(i+1) * minute, Open: o, High: h, Low: l, Close: c, Volume: 500 + r.Float64()*1000}
		price = c
	}
	return out
}

func round2(v float64) float64 { return math.Round(v*100) / 100 }
