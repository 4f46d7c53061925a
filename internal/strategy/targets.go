package strategy

import (
	"fmt"
	"sort"

	"github.com/shopspring/decimal"

	"smc-systemv1/internal/model"
	"smc-systemv1/internal/smc"
)

// TargetInput carries what a policy needs to place three take-profits.
type TargetInput struct {
	Action   model.Action
	Entry    float64
	Stop     float64
	Widen    float64 // >1 when sentiment volatility is high
	Spec     model.InstrumentSpec
	Analysis *smc.Analysis
}

// risk returns the absolute entry-to-stop distance.
func (in TargetInput) risk() float64 {
	d := in.Entry - in.Stop
	if d < 0 {
		return -d
	}
	return d
}

// dir is +1 for BUY and -1 for SELL.
func (in TargetInput) dir() float64 {
	if in.Action == model.ActionSell {
		return -1
	}
	return 1
}

// TargetPolicy places take-profit levels. Implementations must return
// targets strictly increasing in distance from entry on the profit side.
type TargetPolicy interface {
	Name() string
	Targets(in TargetInput) ([3]float64, error)
}

// RMultiple places targets at fixed multiples of the stop distance.
type RMultiple struct {
	Multiples [3]float64
}

// DefaultTargets is 1.5R / 2.5R / 4R.
func DefaultTargets() RMultiple {
	return RMultiple{Multiples: [3]float64{1.5, 2.5, 4}}
}

func (p RMultiple) Name() string { return "r_multiple" }

func (p RMultiple) Targets(in TargetInput) ([3]float64, error) {
	var out [3]float64
	r := in.risk()
	if r <= 0 {
		return out, fmt.Errorf("r_multiple: zero risk at entry %.5f", in.Entry)
	}
	for i, m := range p.Multiples {
		out[i] = in.Entry + in.dir()*r*m
	}
	return out, nil
}

// PipTargets places targets a fixed number of pips from entry, converted
// with the instrument's pip size. Decimal arithmetic keeps e.g. 0.0001-pip
// instruments free of float drift.
type PipTargets struct {
	Pips [3]float64
}

func (p PipTargets) Name() string { return "pips" }

func (p PipTargets) Targets(in TargetInput) ([3]float64, error) {
	var out [3]float64
	if in.Spec.PipSize <= 0 {
		return out, fmt.Errorf("pips: %w: no pip size for %q", model.ErrUnknownInstrument, in.Spec.Symbol)
	}
	widen := in.Widen
	if widen <= 0 {
		widen = 1
	}
	entry := decimal.NewFromFloat(in.Entry)
	pip := decimal.NewFromFloat(in.Spec.PipSize)
	dir := decimal.NewFromFloat(in.dir())
	w := decimal.NewFromFloat(widen)
	for i, n := range p.Pips {
		dist := decimal.NewFromFloat(n).Mul(pip).Mul(w)
		out[i] = entry.Add(dist.Mul(dir)).InexactFloat64()
	}
	return out, nil
}

// LevelTargets aims at the nearest opposing support/resistance levels and
// falls back to R-multiples for any target it cannot fill.
type LevelTargets struct {
	Fallback RMultiple
}

func (p LevelTargets) Name() string { return "levels" }

func (p LevelTargets) Targets(in TargetInput) ([3]float64, error) {
	out, err := p.Fallback.Targets(in)
	if err != nil {
		return out, err
	}
	if in.Analysis == nil {
		return out, nil
	}

	// Candidate prices beyond 1R on the profit side, nearest first.
	minDist := in.risk()
	var prices []float64
	for _, l := range in.Analysis.Levels {
		d := (l.Price - in.Entry) * in.dir()
		if d >= minDist {
			prices = append(prices, l.Price)
		}
	}
	sort.Slice(prices, func(i, j int) bool {
		return (prices[i]-in.Entry)*in.dir() < (prices[j]-in.Entry)*in.dir()
	})

	for i := 0; i < len(prices) && i < 3; i++ {
		out[i] = prices[i]
	}
	// Keep the ladder strictly increasing in distance.
	for i := 1; i < 3; i++ {
		if (out[i]-out[i-1])*in.dir() <= 0 {
			out[i] = out[i-1] + in.dir()*in.risk()*(p.Fallback.Multiples[i]-p.Fallback.Multiples[i-1])
		}
	}
	return out, nil
}

// PolicyByName resolves a configured policy name.
func PolicyByName(name string) (TargetPolicy, error) {
	switch name {
	case "", "r_multiple":
		return DefaultTargets(), nil
	case "pips":
		return PipTargets{Pips: [3]float64{30, 60, 100}}, nil
	case "levels":
		return LevelTargets{Fallback: DefaultTargets()}, nil
	}
	return nil, fmt.Errorf("unknown target policy %q", name)
}
