package smc

import "encoding/json"

// Drawables is the read-only overlay bundle handed to chart renderers.
// Filled gaps and mitigated blocks are kept so the renderer can fade them.
type Drawables struct {
	Symbol      string `json:"symbol"`
	Timeframe   string `json:"timeframe"`
	GeneratedAt int64  `json:"generated_at"`

	Trend           Trend            `json:"trend"`
	Swings          []SwingPoint     `json:"swings"`
	Events          []StructureEvent `json:"events"`
	OrderBlocks     []OrderBlock     `json:"order_blocks"`
	FairValueGaps   []FairValueGap   `json:"fair_value_gaps"`
	Liquidity       []LiquidityZone  `json:"liquidity"`
	Levels          []Level          `json:"levels"`
	PremiumDiscount []ZoneBand       `json:"premium_discount"`
	FibLevels       []FibLevel       `json:"fib_levels"`
	Breakouts       []Breakout       `json:"breakouts"`
	Wyckoff         WyckoffPhase     `json:"wyckoff"`
}

// Drawables builds the overlay bundle. Slices are copied so the renderer
// cannot alias the analysis.
func (a *Analysis) Drawables(symbol, tf string) Drawables {
	return Drawables{
		Symbol:          symbol,
		Timeframe:       tf,
		GeneratedAt:     a.LastTime,
		Trend:           a.Structure.Trend,
		Swings:          clone(a.Swings),
		Events:          clone(a.Structure.Events),
		OrderBlocks:     clone(a.OrderBlocks),
		FairValueGaps:   clone(a.FairValueGaps),
		Liquidity:       clone(a.Liquidity),
		Levels:          clone(a.Levels),
		PremiumDiscount: a.PremiumDiscount.Bands(),
		FibLevels:       clone(a.PremiumDiscount.Levels),
		Breakouts:       clone(a.Breakouts),
		Wyckoff:         a.Wyckoff,
	}
}

// JSON returns the encoded bundle (ignoring errors for hot-path usage).
func (d *Drawables) JSON() []byte {
	b, _ := json.Marshal(d)
	return b
}

func clone[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return append(make([]T, 0, len(s)), s...)
}
