// Package smc derives a smart-money-concepts market-structure model from an
// OHLC candle series: swings, structure, order blocks, fair value gaps,
// liquidity pools, support/resistance, premium/discount and Wyckoff phase.
//
// Every function is pure. A pass takes a candle snapshot and returns a fresh
// Analysis; nothing is cached between calls, so concurrent passes over
// different series never interfere.
package smc

// SwingType distinguishes pivot highs from pivot lows.
type SwingType string

const (
	SwingHigh SwingType = "high"
	SwingLow  SwingType = "low"
)

// SwingPoint is a strict local extremum over a symmetric window.
type SwingPoint struct {
	Type  SwingType `json:"type"`
	Price float64   `json:"price"`
	Index int       `json:"index"`
	Time  int64     `json:"time"`
}

// Trend is the structural bias.
type Trend string

const (
	TrendBullish Trend = "bullish"
	TrendBearish Trend = "bearish"
	TrendRanging Trend = "ranging"
)

// Side is the direction of a zone or pattern.
type Side string

const (
	Bullish Side = "bullish"
	Bearish Side = "bearish"
)

// EventKind names a structural break.
type EventKind string

const (
	BreakOfStructure  EventKind = "BOS"
	ChangeOfCharacter EventKind = "CHoCH"
)

// StructureEvent is a break of structure or change of character at a swing.
type StructureEvent struct {
	Kind      EventKind `json:"kind"`
	Direction Side      `json:"direction"`
	Price     float64   `json:"price"`
	Index     int       `json:"index"`
}

// MarketStructure is the trend read derived from the swing sequence.
type MarketStructure struct {
	Trend       Trend            `json:"trend"`
	Swings      []SwingPoint     `json:"swings"`
	HigherHighs int              `json:"higher_highs"`
	LowerLows   int              `json:"lower_lows"`
	Events      []StructureEvent `json:"events,omitempty"`
	// FromCandles is set when too few swing pairs existed and the counts were
	// taken from windowed candle extremes instead.
	FromCandles bool `json:"from_candles,omitempty"`
}

// LastEvent returns the most recent structural event, if any.
func (m MarketStructure) LastEvent() (StructureEvent, bool) {
	if len(m.Events) == 0 {
		return StructureEvent{}, false
	}
	return m.Events[len(m.Events)-1], true
}

// OrderBlock is the last opposite candle before a strong move.
type OrderBlock struct {
	Type      Side    `json:"type"`
	Top       float64 `json:"top"`
	Bottom    float64 `json:"bottom"`
	Index     int     `json:"index"`
	Time      int64   `json:"time"`
	Strength  float64 `json:"strength"`
	Mitigated bool    `json:"mitigated"`
}

// FairValueGap is a three-candle imbalance.
type FairValueGap struct {
	Type        Side    `json:"type"`
	Top         float64 `json:"top"`
	Bottom      float64 `json:"bottom"`
	Index       int     `json:"index"`
	Time        int64   `json:"time"`
	Filled      bool    `json:"filled"`
	FilledIndex int     `json:"filled_index,omitempty"`
}

// Midpoint is the fill threshold of the gap.
func (g FairValueGap) Midpoint() float64 {
	return (g.Top + g.Bottom) / 2
}

// LiquidityType says which side's stops rest at a pool.
type LiquidityType string

const (
	BuySide  LiquidityType = "buy-side"
	SellSide LiquidityType = "sell-side"
)

// LiquidityZone is a resting-stop pool at a swing extreme.
type LiquidityZone struct {
	Type       LiquidityType `json:"type"`
	Price      float64       `json:"price"`
	Index      int           `json:"index"`
	Time       int64         `json:"time"`
	Swept      bool          `json:"swept"`
	SweptIndex int           `json:"swept_index,omitempty"`
}

// LevelType classifies a level relative to the current price.
type LevelType string

const (
	Support    LevelType = "support"
	Resistance LevelType = "resistance"
)

// Level is a clustered support/resistance price.
type Level struct {
	Price   float64   `json:"price"`
	Touches int       `json:"touches"`
	Type    LevelType `json:"type"`
}

// Zone is the premium/discount classification.
type Zone string

const (
	ZonePremium     Zone = "premium"
	ZoneDiscount    Zone = "discount"
	ZoneEquilibrium Zone = "equilibrium"
)

// FibLevel is one retracement ratio and its price.
type FibLevel struct {
	Ratio float64 `json:"ratio"`
	Price float64 `json:"price"`
}

// ZoneBand is the price interval a Zone covers.
type ZoneBand struct {
	Zone Zone    `json:"zone"`
	Low  float64 `json:"low"`
	High float64 `json:"high"`
}

// Phase is a Wyckoff market-cycle classification.
type Phase string

const (
	PhaseAccumulation Phase = "accumulation"
	PhaseDistribution Phase = "distribution"
	PhaseMarkup       Phase = "markup"
	PhaseMarkdown     Phase = "markdown"
	PhaseRanging      Phase = "ranging"
	PhaseNeutral      Phase = "neutral"
)

// WyckoffPhase is the phase read over a recent window.
type WyckoffPhase struct {
	Phase      Phase   `json:"phase"`
	Confidence float64 `json:"confidence"`
	NetChange  float64 `json:"net_change"`
	Volatility float64 `json:"volatility"`
}

// Breakout is a close through a level, optionally followed by a retest.
type Breakout struct {
	Type        Side    `json:"type"`
	Level       float64 `json:"level"`
	Index       int     `json:"index"`
	Time        int64   `json:"time"`
	Retested    bool    `json:"retested"`
	RetestIndex int     `json:"retest_index,omitempty"`
}
