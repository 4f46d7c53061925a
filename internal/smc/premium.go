package smc

import "smc-systemv1/internal/model"

// FibRatios are the retracement ratios measured up from the range low.
var FibRatios = []float64{0, 0.236, 0.382, 0.5, 0.618, 0.786, 1}

const (
	discountRatio = 0.382
	premiumRatio  = 0.618
)

// PremiumDiscountModel splits the recent range into discount, equilibrium
// and premium bands.
type PremiumDiscountModel struct {
	RangeHigh    float64    `json:"range_high"`
	RangeLow     float64    `json:"range_low"`
	Equilibrium  float64    `json:"equilibrium"`
	CurrentPrice float64    `json:"current_price"`
	CurrentZone  Zone       `json:"current_zone"`
	Levels       []FibLevel `json:"levels"`
}

// PremiumDiscount computes the model over the last window candles.
func PremiumDiscount(candles []model.Candle, window int) PremiumDiscountModel {
	if len(candles) == 0 {
		return PremiumDiscountModel{CurrentZone: ZoneEquilibrium}
	}
	recent := candles
	if window > 0 && len(recent) > window {
		recent = recent[len(recent)-window:]
	}

	hi, lo := recent[0].High, recent[0].Low
	for _, c := range recent[1:] {
		if c.High > hi {
			hi = c.High
		}
		if c.Low < lo {
			lo = c.Low
		}
	}

	m := PremiumDiscountModel{
		RangeHigh:    hi,
		RangeLow:     lo,
		CurrentPrice: candles[len(candles)-1].Close,
		Levels:       make([]FibLevel, len(FibRatios)),
	}
	for i, r := range FibRatios {
		m.Levels[i] = FibLevel{Ratio: r, Price: m.PriceAt(r)}
	}
	m.Equilibrium = m.PriceAt(0.5)
	m.CurrentZone = m.ZoneOf(m.CurrentPrice)
	return m
}

// PriceAt returns the price at a retracement ratio of the range.
func (m PremiumDiscountModel) PriceAt(ratio float64) float64 {
	return m.RangeLow + (m.RangeHigh-m.RangeLow)*ratio
}

// ZoneOf classifies a price: above the 61.8% level is premium, below the
// 38.2% level is discount, anything in between is equilibrium.
func (m PremiumDiscountModel) ZoneOf(price float64) Zone {
	switch {
	case price > m.PriceAt(premiumRatio):
		return ZonePremium
	case price < m.PriceAt(discountRatio):
		return ZoneDiscount
	}
	return ZoneEquilibrium
}

// Bands returns the three zones as contiguous intervals from low to high.
// Discount is [low, 38.2%), equilibrium [38.2%, 61.8%], premium (61.8%, high].
func (m PremiumDiscountModel) Bands() []ZoneBand {
	d, p := m.PriceAt(discountRatio), m.PriceAt(premiumRatio)
	return []ZoneBand{
		{Zone: ZoneDiscount, Low: m.RangeLow, High: d},
		{Zone: ZoneEquilibrium, Low: d, High: p},
		{Zone: ZonePremium, Low: p, High: m.RangeHigh},
	}
}
