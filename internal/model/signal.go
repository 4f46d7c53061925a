package model

import (
	"encoding/json"
	"strconv"
	"time"
)

// Action is the trade direction of a signal.
type Action string

const (
	ActionBuy  Action = "BUY"
	ActionSell Action = "SELL"
)

// Status is the lifecycle state of an emitted signal. Only "active" is set
// by the synthesizer; everything else is written by the tracker.
type Status string

const (
	StatusActive    Status = "active"
	StatusHitTP1    Status = "hit_tp1"
	StatusHitTP2    Status = "hit_tp2"
	StatusHitTP3    Status = "hit_tp3"
	StatusHitSL     Status = "hit_sl"
	StatusBreakeven Status = "breakeven"
)

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusActive, StatusHitTP1, StatusHitTP2, StatusHitTP3, StatusHitSL, StatusBreakeven:
		return true
	}
	return false
}

// Terminal reports whether no further transition is expected.
func (s Status) Terminal() bool {
	return s == StatusHitTP3 || s == StatusHitSL || s == StatusBreakeven
}

// Signal is one emitted trade idea. Immutable after creation except for the
// Status/ExitPrice/ExitTime fields owned by the tracking collaborator.
type Signal struct {
	ID        string `json:"id"`
	Symbol    string `json:"symbol"`
	Timeframe string `json:"timeframe"`
	Action    Action `json:"action"`

	Entry       float64 `json:"entry"`
	StopLoss    float64 `json:"stop_loss"`
	TakeProfit1 float64 `json:"take_profit_1"`
	TakeProfit2 float64 `json:"take_profit_2"`
	TakeProfit3 float64 `json:"take_profit_3"`

	ConfidenceOverall   int     `json:"confidence_overall"`
	ConfidenceTechnical float64 `json:"confidence_technical"`
	ConfidenceSMC       float64 `json:"confidence_smc"`
	ConfidenceSentiment float64 `json:"confidence_sentiment"`
	RiskRewardRatio     float64 `json:"risk_reward_ratio"`

	Reasons        []string         `json:"reasons"`
	SourceAnalysis AnalysisSnapshot `json:"source_analysis"`

	Timestamp time.Time  `json:"timestamp"`
	Status    Status     `json:"status"`
	ExitPrice float64    `json:"exit_price,omitempty"`
	ExitTime  *time.Time `json:"exit_time,omitempty"`
}

// NewSignalID derives a deterministic id from the series and the candle that
// produced it, so re-analysing the same bar overwrites instead of duplicating.
func NewSignalID(symbol, tf string, candleTime int64) string {
	return symbol + "-" + tf + "-" + strconv.FormatInt(candleTime, 10)
}

// JSON returns the JSON-encoded signal (ignoring errors for hot-path usage).
func (s *Signal) JSON() []byte {
	b, _ := json.Marshal(s)
	return b
}

// Risk is the absolute entry-to-stop distance.
func (s *Signal) Risk() float64 {
	d := s.Entry - s.StopLoss
	if d < 0 {
		return -d
	}
	return d
}

// StatusUpdate is the tracker's write path: an idempotent overwrite of the
// exit fields keyed by signal id.
type StatusUpdate struct {
	ID        string     `json:"id"`
	Status    Status     `json:"status"`
	ExitPrice float64    `json:"exit_price"`
	ExitTime  *time.Time `json:"exit_time,omitempty"`
}

// SignalFilter narrows signal listings. Zero values mean "any".
type SignalFilter struct {
	Symbol string
	Status Status
	Limit  int
}

// AnalysisSnapshot is the subset of the market-structure model a signal was
// derived from, stored with the signal for later review.
type AnalysisSnapshot struct {
	Trend             string       `json:"trend"`
	HigherHighs       int          `json:"higher_highs"`
	LowerLows         int          `json:"lower_lows"`
	Zone              string       `json:"zone"`
	Equilibrium       float64      `json:"equilibrium"`
	WyckoffPhase      string       `json:"wyckoff_phase"`
	WyckoffConfidence float64      `json:"wyckoff_confidence"`
	OrderBlocks       []PriceZone  `json:"order_blocks,omitempty"`
	FairValueGaps     []PriceZone  `json:"fair_value_gaps,omitempty"`
	Liquidity         []PriceLevel `json:"liquidity,omitempty"`
	Levels            []PriceLevel `json:"levels,omitempty"`
}

// PriceZone is a serialisable order block or fair value gap.
type PriceZone struct {
	Type     string  `json:"type"`
	Top      float64 `json:"top"`
	Bottom   float64 `json:"bottom"`
	Index    int     `json:"index"`
	Strength float64 `json:"strength,omitempty"`
	Filled   bool    `json:"filled,omitempty"`
}

// PriceLevel is a serialisable liquidity pool or support/resistance level.
type PriceLevel struct {
	Type    string  `json:"type"`
	Price   float64 `json:"price"`
	Touches int     `json:"touches,omitempty"`
	Swept   bool    `json:"swept,omitempty"`
}
