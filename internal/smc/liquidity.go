package smc

import "smc-systemv1/internal/model"

// FindLiquidityZones turns every swing into a liquidity pool: buy-side stops
// above swing highs, sell-side stops below swing lows. A pool is swept when a
// later candle trades beyond it by more than tol (fractional).
func FindLiquidityZones(candles []model.Candle, swings []SwingPoint, tol float64) []LiquidityZone {
	zones := make([]LiquidityZone, 0, len(swings))
	for _, s := range swings {
		z := LiquidityZone{Price: s.Price, Index: s.Index, Time: s.Time}
		if s.Type == SwingHigh {
			z.Type = BuySide
		} else {
			z.Type = SellSide
		}

		for j := s.Index + 1; j < len(candles); j++ {
			if (z.Type == BuySide && candles[j].High > s.Price*(1+tol)) ||
				(z.Type == SellSide && candles[j].Low < s.Price*(1-tol)) {
				z.Swept, z.SweptIndex = true, j
				break
			}
		}
		zones = append(zones, z)
	}
	return zones
}
