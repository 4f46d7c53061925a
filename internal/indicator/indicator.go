// Package indicator provides streaming technical indicators over candle data.
//
// All indicators implement the Indicator interface, receiving candles and
// producing float64 values. They are used as supporting technical evidence
// by the signal synthesizer.
package indicator

import "smc-systemv1/internal/model"

// Indicator is the interface for all technical indicators.
type Indicator interface {
	// Name returns the indicator name (e.g., "SMA_20", "EMA_9").
	Name() string

	// Update feeds a new candle and recalculates.
	Update(candle model.Candle)

	// Value returns the current calculated value. Returns 0 if not enough data.
	Value() float64

	// Ready returns true when enough data has been accumulated.
	Ready() bool

	// Peek computes what Value() would be if a candle with this close were
	// added next, WITHOUT mutating internal state. Used for the forming bar.
	Peek(close float64) float64
}

// Feed runs every candle through ind and returns its final value and readiness.
func Feed(ind Indicator, candles []model.Candle) (float64, bool) {
	for _, c := range candles {
		ind.Update(c)
	}
	return ind.Value(), ind.Ready()
}

// Set is the indicator bundle computed once per analysis pass.
type Set struct {
	EMAFast float64 `json:"ema_fast"`
	EMASlow float64 `json:"ema_slow"`
	SMA50   float64 `json:"sma_50"`
	RSI     float64 `json:"rsi"`
	ATR     float64 `json:"atr"`
	Ready   bool    `json:"ready"`
}

// ComputeSet evaluates EMA(fast), EMA(slow), RSI(14) and ATR(14) over candles.
// SMA(50) is informational and does not gate Ready.
func ComputeSet(candles []model.Candle, fast, slow int) Set {
	emaF, emaS, rsi, atr := NewEMA(fast), NewEMA(slow), NewRSI(14), NewATR(14)
	sma := NewSMA(50)
	for _, c := range candles {
		emaF.Update(c)
		emaS.Update(c)
		rsi.Update(c)
		atr.Update(c)
		sma.Update(c)
	}
	return Set{
		EMAFast: emaF.Value(),
		EMASlow: emaS.Value(),
		SMA50:   sma.Value(),
		RSI:     rsi.Value(),
		ATR:     atr.Value(),
		Ready:   emaF.Ready() && emaS.Ready() && rsi.Ready() && atr.Ready(),
	}
}
