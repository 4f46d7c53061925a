package strategy

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math"
	"time"

	"smc-systemv1/internal/indicator"
	"smc-systemv1/internal/logger"
	"smc-systemv1/internal/markethours"
	"smc-systemv1/internal/model"
	"smc-systemv1/internal/smc"
)

// Outcome classifies the result of one synthesis pass.
type Outcome string

const (
	OutcomeSignal           Outcome = "signal"
	OutcomeInsufficientData Outcome = "insufficient_data"
	OutcomeRanging          Outcome = "ranging"
	OutcomeLowConfidence    Outcome = "low_confidence"
)

// Request is one analysis pass over a candle snapshot.
type Request struct {
	Symbol    string
	Timeframe string
	Candles   []model.Candle
	// Progress optionally receives stage events; sends never block.
	Progress chan<- smc.Progress
}

// Result is the outcome of a pass. Signal is nil unless Outcome is
// OutcomeSignal; Analysis is nil only for OutcomeInsufficientData.
type Result struct {
	Outcome      Outcome
	Signal       *model.Signal
	Analysis     *smc.Analysis
	Indicators   indicator.Set
	Sentiment    *model.NewsSentiment
	SentimentErr error
}

// Synthesizer turns a candle snapshot into at most one signal. It holds no
// per-pass state and is safe for concurrent use.
type Synthesizer struct {
	cfg         Config
	sentiment   model.SentimentProvider
	instruments map[string]model.InstrumentSpec
	targets     TargetPolicy
	now         func() time.Time
}

// NewSynthesizer wires a synthesizer. sentiment may be nil; instruments may
// omit symbols, in which case prices are not rounded.
func NewSynthesizer(cfg Config, sentiment model.SentimentProvider, instruments map[string]model.InstrumentSpec, targets TargetPolicy) *Synthesizer {
	if targets == nil {
		targets = DefaultTargets()
	}
	if cfg.MinCandles <= 0 {
		cfg.MinCandles = DefaultConfig().MinCandles
	}
	if cfg.MaxReasons <= 0 {
		cfg.MaxReasons = DefaultConfig().MaxReasons
	}
	return &Synthesizer{
		cfg:         cfg,
		sentiment:   sentiment,
		instruments: instruments,
		targets:     targets,
		now:         time.Now,
	}
}

// Synthesize runs analysis, scoring and level placement. "No signal" is a
// normal result, not an error; errors are reserved for malformed input and
// internal inconsistencies.
func (s *Synthesizer) Synthesize(ctx context.Context, req Request) (*Result, error) {
	if len(req.Candles) < s.cfg.MinCandles {
		return &Result{Outcome: OutcomeInsufficientData}, nil
	}

	// Start the news request first so it overlaps the analysis.
	sentCh, cancelSentiment := s.startSentiment(ctx, req.Symbol)
	defer cancelSentiment()

	a, err := smc.Analyze(ctx, req.Candles, s.cfg.Analysis, req.Progress)
	if err != nil {
		if errors.Is(err, model.ErrInsufficientData) {
			return &Result{Outcome: OutcomeInsufficientData}, nil
		}
		return nil, fmt.Errorf("analyze %s %s: %w", req.Symbol, req.Timeframe, err)
	}
	res := &Result{
		Analysis:   a,
		Indicators: indicator.ComputeSet(req.Candles, s.cfg.EMAFast, s.cfg.EMASlow),
	}

	sr := <-sentCh
	res.Sentiment, res.SentimentErr = sr.sentiment, sr.err
	if sr.err != nil {
		log.Printf("[strategy] sentiment for %s unavailable, scoring without it: %v", req.Symbol, sr.err)
	}

	var action model.Action
	switch a.Structure.Trend {
	case smc.TrendBullish:
		action = model.ActionBuy
	case smc.TrendBearish:
		action = model.ActionSell
	default:
		res.Outcome = OutcomeRanging
		return res, nil
	}

	smcCard := scoreSMC(a, action)
	techCard := scoreTechnical(a, res.Indicators, action, s.cfg.NearLevelPct)
	sentCard := scoreSentiment(res.Sentiment, action)

	smcScore, techScore, sentScore := smcCard.capped(), techCard.capped(), sentCard.capped()
	overall := int(math.Round((techScore + smcScore + sentScore) / 3))
	if overall < s.cfg.MinConfidence {
		res.Outcome = OutcomeLowConfidence
		return res, nil
	}

	spec := s.instruments[req.Symbol]
	levels, err := s.placeLevels(action, req.Candles, a, res.Sentiment, spec)
	if err != nil {
		return nil, fmt.Errorf("levels %s %s: %w", req.Symbol, req.Timeframe, err)
	}

	// signal times carry millisecond precision, like candle times
	now := s.now().UTC().Truncate(time.Millisecond)
	reasons := make([]string, 0, s.cfg.MaxReasons)
	for _, r := range [][]string{smcCard.reasons, techCard.reasons, sentCard.reasons} {
		for _, reason := range r {
			if len(reasons) < s.cfg.MaxReasons {
				reasons = append(reasons, reason)
			}
		}
	}
	if label := markethours.SessionLabel(now); label != "" && len(reasons) < s.cfg.MaxReasons {
		reasons = append(reasons, label)
	}

	sig := &model.Signal{
		ID:                  model.NewSignalID(req.Symbol, req.Timeframe, a.LastTime),
		Symbol:              req.Symbol,
		Timeframe:           req.Timeframe,
		Action:              action,
		Entry:               levels.entry,
		StopLoss:            levels.stop,
		TakeProfit1:         levels.tp[0],
		TakeProfit2:         levels.tp[1],
		TakeProfit3:         levels.tp[2],
		ConfidenceOverall:   overall,
		ConfidenceTechnical: techScore,
		ConfidenceSMC:       smcScore,
		ConfidenceSentiment: sentScore,
		RiskRewardRatio:     levels.rr,
		Reasons:             reasons,
		SourceAnalysis:      a.Snapshot(),
		Timestamp:           now,
		Status:              model.StatusActive,
	}
	if err := checkLadder(sig); err != nil {
		return nil, err
	}

	res.Outcome = OutcomeSignal
	res.Signal = sig
	logger.FromContext(ctx).Info("signal emitted",
		"id", sig.ID, "action", sig.Action, "entry", sig.Entry,
		"confidence", sig.ConfidenceOverall, "policy", s.targets.Name())
	return res, nil
}

type sentimentResult struct {
	sentiment *model.NewsSentiment
	err       error
}

// startSentiment races the provider against SentimentTimeout on a disposable
// child context. The returned channel always yields exactly one result no
// later than the deadline, even if the provider ignores cancellation. The
// cancel func abandons the request.
func (s *Synthesizer) startSentiment(ctx context.Context, symbol string) (<-chan sentimentResult, context.CancelFunc) {
	out := make(chan sentimentResult, 1)
	if s.sentiment == nil {
		out <- sentimentResult{err: fmt.Errorf("%w: no provider", model.ErrSentimentUnavailable)}
		return out, func() {}
	}

	timeout := s.cfg.SentimentTimeout
	if timeout <= 0 {
		timeout = DefaultConfig().SentimentTimeout
	}
	sctx, cancel := context.WithTimeout(ctx, timeout)

	inner := make(chan sentimentResult, 1)
	go func() {
		ns, err := s.sentiment.Sentiment(sctx, symbol)
		inner <- sentimentResult{sentiment: ns, err: err}
	}()

	go func() {
		defer cancel()
		select {
		case r := <-inner:
			if r.err != nil {
				r = sentimentResult{err: fmt.Errorf("%w: %v", model.ErrSentimentUnavailable, r.err)}
			}
			out <- r
		case <-sctx.Done():
			out <- sentimentResult{err: fmt.Errorf("%w: %v", model.ErrSentimentUnavailable, sctx.Err())}
		}
	}()
	return out, cancel
}

type placed struct {
	entry, stop float64
	tp          [3]float64
	rr          float64
}

// placeLevels computes entry, stop and targets. The stop sits beyond the
// nearest protecting swing plus a buffer, and never closer to entry than
// MinRiskPct. High news volatility widens the stop distance.
func (s *Synthesizer) placeLevels(action model.Action, candles []model.Candle, a *smc.Analysis, sent *model.NewsSentiment, spec model.InstrumentSpec) (placed, error) {
	entry := a.LastClose
	stop := protectiveStop(action, entry, candles, a, s.cfg)

	widen := 1.0
	if sent != nil && s.cfg.HighVolatility > 0 && sent.VolatilityScore > s.cfg.HighVolatility && s.cfg.VolatilityWiden > 1 {
		widen = s.cfg.VolatilityWiden
		stop = entry - (entry-stop)*widen
	}

	tp, err := s.targets.Targets(TargetInput{
		Action: action, Entry: entry, Stop: stop, Widen: widen, Spec: spec, Analysis: a,
	})
	if err != nil {
		return placed{}, err
	}

	p := placed{entry: spec.Round(entry), stop: spec.Round(stop)}
	for i := range tp {
		p.tp[i] = spec.Round(tp[i])
	}
	if risk := math.Abs(p.entry - p.stop); risk > 0 {
		p.rr = math.Round(math.Abs(p.tp[1]-p.entry)/risk*100) / 100
	}
	return p, nil
}

func protectiveStop(action model.Action, entry float64, candles []model.Candle, a *smc.Analysis, cfg Config) float64 {
	n := len(candles)
	minDist := entry * cfg.MinRiskPct

	if action == model.ActionBuy {
		stop := math.Inf(1)
		for i := len(a.Swings) - 1; i >= 0; i-- {
			if sw := a.Swings[i]; sw.Type == smc.SwingLow && sw.Price < entry {
				stop = sw.Price * (1 - cfg.StopBuffer)
				break
			}
		}
		if math.IsInf(stop, 1) {
			stop = recentLow(candles, n) * (1 - cfg.StopBuffer)
		}
		return math.Min(stop, entry-minDist)
	}

	stop := math.Inf(-1)
	for i := len(a.Swings) - 1; i >= 0; i-- {
		if sw := a.Swings[i]; sw.Type == smc.SwingHigh && sw.Price > entry {
			stop = sw.Price * (1 + cfg.StopBuffer)
			break
		}
	}
	if math.IsInf(stop, -1) {
		stop = recentHigh(candles, n) * (1 + cfg.StopBuffer)
	}
	return math.Max(stop, entry+minDist)
}

// recentLow is the lowest low of the last swing-window worth of bars.
func recentLow(candles []model.Candle, n int) float64 {
	lo := math.Inf(1)
	for i := max(0, n-11); i < n; i++ {
		lo = math.Min(lo, candles[i].Low)
	}
	return lo
}

func recentHigh(candles []model.Candle, n int) float64 {
	hi := math.Inf(-1)
	for i := max(0, n-11); i < n; i++ {
		hi = math.Max(hi, candles[i].High)
	}
	return hi
}

// checkLadder rejects a signal whose levels are not ordered around entry.
func checkLadder(s *model.Signal) error {
	ok := s.StopLoss < s.Entry && s.Entry < s.TakeProfit1 && s.TakeProfit1 < s.TakeProfit2 && s.TakeProfit2 < s.TakeProfit3
	if s.Action == model.ActionSell {
		ok = s.StopLoss > s.Entry && s.Entry > s.TakeProfit1 && s.TakeProfit1 > s.TakeProfit2 && s.TakeProfit2 > s.TakeProfit3
	}
	if !ok {
		return fmt.Errorf("strategy: inconsistent %s levels sl=%.5f entry=%.5f tp=%.5f/%.5f/%.5f",
			s.Action, s.StopLoss, s.Entry, s.TakeProfit1, s.TakeProfit2, s.TakeProfit3)
	}
	return nil
}
