package smc

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"smc-systemv1/internal/model"
)

// ErrPipelineOrder is returned when a pass stage runs before the stage it
// depends on. It indicates a programming error, never bad market data.
var ErrPipelineOrder = errors.New("smc: pipeline stage out of order")

// Progress is one stage report of an analysis pass.
type Progress struct {
	Percent int    `json:"percent"`
	Stage   string `json:"stage"`
	Message string `json:"message"`
}

// Analysis is the complete market-structure model for one candle snapshot.
// It is built fresh by each pass and not modified after Analyze returns.
type Analysis struct {
	CandleCount int     `json:"candle_count"`
	LastTime    int64   `json:"last_time"`
	LastClose   float64 `json:"last_close"`

	Swings          []SwingPoint         `json:"swings"`
	Structure       MarketStructure      `json:"structure"`
	OrderBlocks     []OrderBlock         `json:"order_blocks"`
	FairValueGaps   []FairValueGap       `json:"fair_value_gaps"`
	Liquidity       []LiquidityZone      `json:"liquidity"`
	Levels          []Level              `json:"levels"`
	PremiumDiscount PremiumDiscountModel `json:"premium_discount"`
	Wyckoff         WyckoffPhase         `json:"wyckoff"`
	Breakouts       []Breakout           `json:"breakouts"`
}

type stage int

const (
	stageNew stage = iota
	stageSwings
	stageStructure
	stageZones
)

// Pass runs the stages of one analysis over a private candle copy. Each
// stage checks that its predecessor has run.
type Pass struct {
	cfg      Config
	candles  []model.Candle
	a        *Analysis
	stage    stage
	progress chan<- Progress
}

// NewPass validates and copies candles. The caller may keep mutating its own
// slice (e.g. the live bar) without affecting the pass.
func NewPass(candles []model.Candle, cfg Config, progress chan<- Progress) (*Pass, error) {
	cfg = cfg.normalized()
	if len(candles) < 2*cfg.SwingRadius+1 {
		return nil, fmt.Errorf("%w: have %d candles, need %d", model.ErrInsufficientData, len(candles), 2*cfg.SwingRadius+1)
	}
	snap := make([]model.Candle, len(candles))
	copy(snap, candles)
	if err := model.ValidateSeries(snap); err != nil {
		return nil, err
	}
	last := snap[len(snap)-1]
	return &Pass{
		cfg:      cfg,
		candles:  snap,
		progress: progress,
		a: &Analysis{
			CandleCount: len(snap),
			LastTime:    last.Time,
			LastClose:   last.Close,
		},
	}, nil
}

// Swings runs swing detection.
func (p *Pass) Swings() {
	p.a.Swings = DetectSwings(p.candles, p.cfg.SwingRadius)
	p.stage = stageSwings
	p.report(20, "swings", fmt.Sprintf("%d swing points", len(p.a.Swings)))
}

// Structure classifies the trend from the detected swings.
func (p *Pass) Structure() error {
	if p.stage < stageSwings {
		return fmt.Errorf("%w: structure before swings", ErrPipelineOrder)
	}
	if hasComparablePairs(p.a.Swings) {
		p.a.Structure = ClassifyStructure(p.a.Swings, p.cfg.StructureMargin)
	} else {
		p.a.Structure = ClassifyFromCandles(p.candles, p.a.Swings, p.cfg.SwingRadius, p.cfg.StructureMargin)
	}
	p.stage = stageStructure
	p.report(35, "structure", "trend "+string(p.a.Structure.Trend))
	return nil
}

// Zones runs the zone and pattern extractors. They share no data beyond the
// read-only candles and swings, so with cfg.Concurrent each runs on its own
// goroutine writing a disjoint field.
func (p *Pass) Zones(ctx context.Context) error {
	if p.stage < stageStructure {
		return fmt.Errorf("%w: zones before structure", ErrPipelineOrder)
	}
	candles, swings, cfg, a := p.candles, p.a.Swings, p.cfg, p.a

	extractors := []struct {
		name string
		run  func()
	}{
		{"order_blocks", func() { a.OrderBlocks = FindOrderBlocks(candles, cfg.OrderBlockThreshold, cfg.MaxOrderBlocks) }},
		{"fvg", func() { a.FairValueGaps = FindFairValueGaps(candles, cfg.MaxFVGs) }},
		{"liquidity", func() { a.Liquidity = FindLiquidityZones(candles, swings, cfg.SweepTolerance) }},
		{"levels", func() { a.Levels = FindLevels(candles, cfg.LevelTolerance, cfg.MinTouches, cfg.MaxLevels) }},
		{"premium_discount", func() { a.PremiumDiscount = PremiumDiscount(candles, cfg.PremiumWindow) }},
		{"wyckoff", func() { a.Wyckoff = ClassifyWyckoff(candles, cfg.WyckoffWindow) }},
	}

	if cfg.Concurrent {
		var wg sync.WaitGroup
		for _, e := range extractors {
			wg.Add(1)
			go func(run func()) {
				defer wg.Done()
				run()
			}(e.run)
		}
		wg.Wait()
		p.report(85, "zones", "extractors complete")
	} else {
		for i, e := range extractors {
			if err := ctx.Err(); err != nil {
				return err
			}
			e.run()
			p.report(35+(i+1)*50/len(extractors), e.name, "")
		}
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	a.Breakouts = FindBreakouts(candles, a.Levels, cfg.LevelTolerance, cfg.MaxBreakouts)
	p.stage = stageZones
	p.report(95, "breakouts", fmt.Sprintf("%d breakouts", len(a.Breakouts)))
	return nil
}

// Result returns the finished analysis.
func (p *Pass) Result() (*Analysis, error) {
	if p.stage < stageZones {
		return nil, fmt.Errorf("%w: result before zones", ErrPipelineOrder)
	}
	p.report(100, "done", "")
	return p.a, nil
}

// report sends without blocking; a slow or absent reader just misses events.
func (p *Pass) report(pct int, stage, msg string) {
	if p.progress == nil {
		return
	}
	select {
	case p.progress <- Progress{Percent: pct, Stage: stage, Message: msg}:
	default:
	}
}

// Analyze runs a full pass: swings, structure, then every extractor.
// Fewer than 2r+1 candles returns model.ErrInsufficientData; malformed
// candles return model.ErrMalformedCandle.
func Analyze(ctx context.Context, candles []model.Candle, cfg Config, progress chan<- Progress) (*Analysis, error) {
	p, err := NewPass(candles, cfg, progress)
	if err != nil {
		return nil, err
	}
	p.Swings()
	if err := p.Structure(); err != nil {
		return nil, err
	}
	if err := p.Zones(ctx); err != nil {
		return nil, err
	}
	return p.Result()
}

// Snapshot converts the analysis into the compact form stored with signals.
func (a *Analysis) Snapshot() model.AnalysisSnapshot {
	s := model.AnalysisSnapshot{
		Trend:             string(a.Structure.Trend),
		HigherHighs:       a.Structure.HigherHighs,
		LowerLows:         a.Structure.LowerLows,
		Zone:              string(a.PremiumDiscount.CurrentZone),
		Equilibrium:       a.PremiumDiscount.Equilibrium,
		WyckoffPhase:      string(a.Wyckoff.Phase),
		WyckoffConfidence: a.Wyckoff.Confidence,
	}
	for _, ob := range a.OrderBlocks {
		s.OrderBlocks = append(s.OrderBlocks, model.PriceZone{
			Type: string(ob.Type), Top: ob.Top, Bottom: ob.Bottom, Index: ob.Index, Strength: ob.Strength,
		})
	}
	for _, g := range a.FairValueGaps {
		s.FairValueGaps = append(s.FairValueGaps, model.PriceZone{
			Type: string(g.Type), Top: g.Top, Bottom: g.Bottom, Index: g.Index, Filled: g.Filled,
		})
	}
	for _, z := range a.Liquidity {
		s.Liquidity = append(s.Liquidity, model.PriceLevel{Type: string(z.Type), Price: z.Price, Swept: z.Swept})
	}
	for _, l := range a.Levels {
		s.Levels = append(s.Levels, model.PriceLevel{Type: string(l.Type), Price: l.Price, Touches: l.Touches})
	}
	return s
}
