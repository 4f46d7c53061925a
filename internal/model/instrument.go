package model

import (
	"math"

	"github.com/shopspring/decimal"
)

// InstrumentSpec holds the per-symbol constants needed to price targets and
// format levels. Loaded from configuration, never hard-coded in strategy code.
type InstrumentSpec struct {
	Symbol      string  `yaml:"symbol" json:"symbol"`
	Name        string  `yaml:"name" json:"name"`
	Class       string  `yaml:"class" json:"class"` // fx, metal, crypto, index
	PipSize     float64 `yaml:"pip_size" json:"pip_size"`
	Decimals    int     `yaml:"decimals" json:"decimals"`
	PipValue    float64 `yaml:"pip_value" json:"pip_value"` // quote-currency value of one pip per lot
	QuoteToUSD  float64 `yaml:"quote_to_usd" json:"quote_to_usd"`
	FeedSymbol  string  `yaml:"feed_symbol" json:"feed_symbol"`
	YahooSymbol string  `yaml:"yahoo_symbol" json:"yahoo_symbol"`
	// Keywords select relevant headlines in the news aggregator.
	Keywords []string `yaml:"keywords" json:"keywords"`
}

// Always24x7 reports whether the instrument trades through weekends.
func (s InstrumentSpec) Always24x7() bool {
	return s.Class == "crypto"
}

// Round rounds a price to the instrument's display precision.
func (s InstrumentSpec) Round(price float64) float64 {
	if s.Decimals <= 0 {
		return price
	}
	return decimal.NewFromFloat(price).Round(int32(s.Decimals)).InexactFloat64()
}

// Pips converts an absolute price distance to pips.
func (s InstrumentSpec) Pips(distance float64) float64 {
	if s.PipSize <= 0 {
		return distance
	}
	return decimal.NewFromFloat(math.Abs(distance)).
		Div(decimal.NewFromFloat(s.PipSize)).
		Round(1).InexactFloat64()
}

// PnLUSD returns the account-currency PnL for a pip move on a given lot size.
func (s InstrumentSpec) PnLUSD(pips, lots float64) float64 {
	rate := s.QuoteToUSD
	if rate == 0 {
		rate = 1
	}
	return decimal.NewFromFloat(pips).
		Mul(decimal.NewFromFloat(s.PipValue)).
		Mul(decimal.NewFromFloat(lots)).
		Mul(decimal.NewFromFloat(rate)).
		Round(2).InexactFloat64()
}
