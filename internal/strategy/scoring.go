package strategy

import (
	"fmt"
	"math"

	"smc-systemv1/internal/indicator"
	"smc-systemv1/internal/model"
	"smc-systemv1/internal/smc"
)

// scorecard accumulates one capped sub-score and its reasons.
type scorecard struct {
	score   float64
	reasons []string
}

func (s *scorecard) add(points float64, format string, args ...any) {
	s.score += points
	s.reasons = append(s.reasons, fmt.Sprintf(format, args...))
}

func (s *scorecard) capped() float64 {
	return math.Min(100, math.Max(0, s.score))
}

func bullish(a model.Action) bool { return a == model.ActionBuy }

// scoreSMC weighs structure, order blocks, gaps, sweeps, structural events,
// Wyckoff phase and breakouts against the trade direction.
func scoreSMC(a *smc.Analysis, action model.Action) scorecard {
	var sc scorecard
	price := a.LastClose
	side := smc.Bearish
	if bullish(action) {
		side = smc.Bullish
	}

	sc.add(20, "%s structure: %d higher highs vs %d lower lows",
		titleCase(string(a.Structure.Trend)), a.Structure.HigherHighs, a.Structure.LowerLows)

	for i := len(a.FairValueGaps) - 1; i >= 0; i-- {
		g := a.FairValueGaps[i]
		if g.Filled || g.Type != side {
			continue
		}
		if (side == smc.Bullish && g.Bottom <= price) || (side == smc.Bearish && g.Top >= price) {
			sc.add(20, "Unfilled %s FVG %.5f-%.5f", g.Type, g.Bottom, g.Top)
			break
		}
	}

	for i := len(a.OrderBlocks) - 1; i >= 0; i-- {
		ob := a.OrderBlocks[i]
		if ob.Mitigated || ob.Type != side {
			continue
		}
		if (side == smc.Bullish && ob.Bottom <= price) || (side == smc.Bearish && ob.Top >= price) {
			sc.add(20, "%s order block %.5f-%.5f (strength %.2f)", titleCase(string(ob.Type)), ob.Bottom, ob.Top, ob.Strength)
			break
		}
	}

	// A buy is confirmed by sell-side stops having been taken, and vice versa.
	want := smc.BuySide
	if bullish(action) {
		want = smc.SellSide
	}
	for i := len(a.Liquidity) - 1; i >= 0; i-- {
		z := a.Liquidity[i]
		if z.Type == want && z.Swept {
			sc.add(20, "%s liquidity swept at %.5f", titleCase(string(z.Type)), z.Price)
			break
		}
	}

	if ev, ok := a.Structure.LastEvent(); ok && ev.Direction == side {
		sc.add(10, "%s %s at %.5f", ev.Direction, ev.Kind, ev.Price)
	}

	switch a.Wyckoff.Phase {
	case smc.PhaseAccumulation, smc.PhaseMarkup:
		if bullish(action) {
			sc.add(15, "Wyckoff %s (%.0f%%)", a.Wyckoff.Phase, a.Wyckoff.Confidence)
		}
	case smc.PhaseDistribution, smc.PhaseMarkdown:
		if !bullish(action) {
			sc.add(15, "Wyckoff %s (%.0f%%)", a.Wyckoff.Phase, a.Wyckoff.Confidence)
		}
	}

	if n := len(a.Breakouts); n > 0 {
		b := a.Breakouts[n-1]
		if b.Type == side {
			if b.Retested {
				sc.add(10, "%s breakout of %.5f retested", titleCase(string(b.Type)), b.Level)
			} else {
				sc.add(5, "%s breakout of %.5f", titleCase(string(b.Type)), b.Level)
			}
		}
	}
	return sc
}

// scoreTechnical weighs premium/discount location, nearby levels and the
// indicator set against the trade direction.
func scoreTechnical(a *smc.Analysis, ind indicator.Set, action model.Action, nearPct float64) scorecard {
	var sc scorecard
	price := a.LastClose
	pd := a.PremiumDiscount

	switch {
	case bullish(action) && pd.CurrentZone == smc.ZoneDiscount:
		sc.add(35, "Price in discount zone below %.5f", pd.PriceAt(0.382))
	case !bullish(action) && pd.CurrentZone == smc.ZonePremium:
		sc.add(35, "Price in premium zone above %.5f", pd.PriceAt(0.618))
	case pd.CurrentZone == smc.ZoneEquilibrium:
		sc.add(10, "Price near equilibrium %.5f", pd.Equilibrium)
	}

	if bullish(action) {
		if l, ok := smc.NearestLevel(a.Levels, smc.Support, price); ok && price-l.Price <= price*nearPct {
			sc.add(25, "Support %.5f holding (%d touches)", l.Price, l.Touches)
		}
	} else {
		if l, ok := smc.NearestLevel(a.Levels, smc.Resistance, price); ok && l.Price-price <= price*nearPct {
			sc.add(25, "Resistance %.5f capping (%d touches)", l.Price, l.Touches)
		}
	}

	if ind.Ready {
		if bullish(action) && ind.EMAFast > ind.EMASlow {
			sc.add(20, "EMA fast %.5f above slow %.5f", ind.EMAFast, ind.EMASlow)
		}
		if !bullish(action) && ind.EMAFast < ind.EMASlow {
			sc.add(20, "EMA fast %.5f below slow %.5f", ind.EMAFast, ind.EMASlow)
		}
		if bullish(action) && ind.RSI < 70 {
			sc.add(20, "RSI %.1f not overbought", ind.RSI)
		}
		if !bullish(action) && ind.RSI > 30 {
			sc.add(20, "RSI %.1f not oversold", ind.RSI)
		}
	}
	return sc
}

// scoreSentiment credits news that agrees with the trade. Neutral, opposing
// or missing sentiment contributes zero.
func scoreSentiment(s *model.NewsSentiment, action model.Action) scorecard {
	var sc scorecard
	if s == nil {
		return sc
	}
	agree := (bullish(action) && s.Direction == model.DirectionBullish) ||
		(!bullish(action) && s.Direction == model.DirectionBearish)
	if agree && s.Confidence > 0 {
		sc.add(s.Confidence, "News %s (score %.0f, %d articles)", s.Direction, s.SentimentScore, s.ArticleCount)
	}
	return sc
}

func titleCase(s string) string {
	if s == "" {
		return s
	}
	b := []byte(s)
	if b[0] >= 'a' && b[0] <= 'z' {
		b[0] -= 'a' - 'A'
	}
	return string(b)
}
