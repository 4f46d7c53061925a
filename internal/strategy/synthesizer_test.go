package strategy

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"smc-systemv1/internal/model"
	"smc-systemv1/internal/smc"
)

const minute = int64(60_000)

func ascending(n int) []model.Candle {
	out := make([]model.Candle, n)
	for i := range out {
		o := 100 + float64(i)
		out[i] = model.Candle{Time: int64(i+1) * minute, Open: o, High: o + 1, Low: o - 0.2, Close: o + 0.8, Volume: 1000}
	}
	return out
}

func descending(n int) []model.Candle {
	out := make([]model.Candle, n)
	for i := range out {
		o := 300 - float64(i)
		out[i] = model.Candle{Time: int64(i+1) * minute, Open: o, High: o + 0.2, Low: o - 1, Close: o - 0.8, Volume: 1000}
	}
	return out
}

// flat oscillates inside a fixed band, producing no structural bias.
func flat(n int) []model.Candle {
	out := make([]model.Candle, n)
	for i := range out {
		o := 100.0
		if i%2 == 1 {
			o = 100.5
		}
		out[i] = model.Candle{Time: int64(i+1) * minute, Open: o, High: 101, Low: 99.5, Close: 100.25, Volume: 1000}
	}
	return out
}

type fixedSentiment struct {
	ns  *model.NewsSentiment
	err error
}

func (f fixedSentiment) Sentiment(ctx context.Context, symbol string) (*model.NewsSentiment, error) {
	return f.ns, f.err
}

// stuckSentiment never answers and ignores its context.
type stuckSentiment struct{}

func (stuckSentiment) Sentiment(ctx context.Context, symbol string) (*model.NewsSentiment, error) {
	time.Sleep(10 * time.Second)
	return nil, nil
}

func newSynth(p model.SentimentProvider) *Synthesizer {
	cfg := DefaultConfig()
	cfg.SentimentTimeout = 100 * time.Millisecond
	return NewSynthesizer(cfg, p, nil, nil)
}

func TestSynthesize_InsufficientCandles(t *testing.T) {
	res, err := newSynth(nil).Synthesize(context.Background(), Request{Symbol: "XAUUSD", Timeframe: "15m", Candles: ascending(99)})
	if err != nil {
		t.Fatalf("insufficient data must not be an error: %v", err)
	}
	if res.Outcome != OutcomeInsufficientData || res.Signal != nil {
		t.Fatalf("expected no signal, got %s %+v", res.Outcome, res.Signal)
	}
}

func TestSynthesize_AscendingBuy(t *testing.T) {
	res, err := newSynth(nil).Synthesize(context.Background(), Request{Symbol: "XAUUSD", Timeframe: "15m", Candles: ascending(150)})
	if err != nil {
		t.Fatal(err)
	}
	if res.Analysis.Structure.Trend != smc.TrendBullish {
		t.Fatalf("trend = %s, want bullish", res.Analysis.Structure.Trend)
	}
	sig := res.Signal
	if sig == nil {
		t.Fatalf("expected a signal, outcome %s", res.Outcome)
	}
	if sig.Action != model.ActionBuy {
		t.Fatalf("action = %s, want BUY", sig.Action)
	}
	if !(sig.StopLoss < sig.Entry && sig.Entry < sig.TakeProfit1 && sig.TakeProfit1 < sig.TakeProfit2 && sig.TakeProfit2 < sig.TakeProfit3) {
		t.Errorf("bad BUY ladder: sl=%v entry=%v tp=%v/%v/%v", sig.StopLoss, sig.Entry, sig.TakeProfit1, sig.TakeProfit2, sig.TakeProfit3)
	}
	if sig.Status != model.StatusActive {
		t.Errorf("status = %s, want active", sig.Status)
	}
	if len(sig.Reasons) == 0 || len(sig.Reasons) > 5 {
		t.Errorf("reasons = %d, want 1..5", len(sig.Reasons))
	}
	if sig.ConfidenceOverall < 0 || sig.ConfidenceOverall > 100 {
		t.Errorf("overall confidence out of range: %d", sig.ConfidenceOverall)
	}
	if sig.ID != model.NewSignalID("XAUUSD", "15m", 150*minute) {
		t.Errorf("id = %s", sig.ID)
	}
}

func TestSynthesize_DescendingSell(t *testing.T) {
	res, err := newSynth(nil).Synthesize(context.Background(), Request{Symbol: "XAUUSD", Timeframe: "15m", Candles: descending(150)})
	if err != nil {
		t.Fatal(err)
	}
	if res.Analysis.Structure.Trend != smc.TrendBearish {
		t.Fatalf("trend = %s, want bearish", res.Analysis.Structure.Trend)
	}
	sig := res.Signal
	if sig == nil || sig.Action != model.ActionSell {
		t.Fatalf("expected SELL, got %+v", sig)
	}
	if !(sig.StopLoss > sig.Entry && sig.Entry > sig.TakeProfit1 && sig.TakeProfit1 > sig.TakeProfit2 && sig.TakeProfit2 > sig.TakeProfit3) {
		t.Errorf("bad SELL ladder: sl=%v entry=%v tp=%v/%v/%v", sig.StopLoss, sig.Entry, sig.TakeProfit1, sig.TakeProfit2, sig.TakeProfit3)
	}
}

func TestSynthesize_RangingNoSignal(t *testing.T) {
	res, err := newSynth(nil).Synthesize(context.Background(), Request{Symbol: "EURUSD", Timeframe: "1h", Candles: flat(150)})
	if err != nil {
		t.Fatal(err)
	}
	if res.Outcome != OutcomeRanging || res.Signal != nil {
		t.Fatalf("expected ranging/no signal, got %s", res.Outcome)
	}
}

func TestSynthesize_SentimentTimeout(t *testing.T) {
	s := newSynth(stuckSentiment{})
	start := time.Now()
	res, err := s.Synthesize(context.Background(), Request{Symbol: "XAUUSD", Timeframe: "15m", Candles: ascending(150)})
	elapsed := time.Since(start)
	if err != nil {
		t.Fatal(err)
	}
	if elapsed > 2*time.Second {
		t.Fatalf("synthesis blocked for %v despite 100ms sentiment timeout", elapsed)
	}
	if !errors.Is(res.SentimentErr, model.ErrSentimentUnavailable) {
		t.Errorf("expected ErrSentimentUnavailable, got %v", res.SentimentErr)
	}
	if res.Signal == nil {
		t.Fatal("signal must still be produced without sentiment")
	}
	if res.Signal.ConfidenceSentiment != 0 {
		t.Errorf("sentiment confidence = %v, want 0", res.Signal.ConfidenceSentiment)
	}
}

func TestSynthesize_SentimentAgreementRaisesConfidence(t *testing.T) {
	candles := ascending(150)
	base, err := newSynth(nil).Synthesize(context.Background(), Request{Symbol: "XAUUSD", Timeframe: "15m", Candles: candles})
	if err != nil {
		t.Fatal(err)
	}
	bull := fixedSentiment{ns: &model.NewsSentiment{Symbol: "XAUUSD", Direction: model.DirectionBullish, SentimentScore: 60, Confidence: 90, ArticleCount: 7}}
	with, err := newSynth(bull).Synthesize(context.Background(), Request{Symbol: "XAUUSD", Timeframe: "15m", Candles: candles})
	if err != nil {
		t.Fatal(err)
	}
	if with.Signal.ConfidenceSentiment != 90 {
		t.Errorf("sentiment confidence = %v, want 90", with.Signal.ConfidenceSentiment)
	}
	if with.Signal.ConfidenceOverall <= base.Signal.ConfidenceOverall {
		t.Errorf("agreeing news should raise overall: %d vs %d", with.Signal.ConfidenceOverall, base.Signal.ConfidenceOverall)
	}

	bear := fixedSentiment{ns: &model.NewsSentiment{Symbol: "XAUUSD", Direction: model.DirectionBearish, Confidence: 90}}
	against, err := newSynth(bear).Synthesize(context.Background(), Request{Symbol: "XAUUSD", Timeframe: "15m", Candles: candles})
	if err != nil {
		t.Fatal(err)
	}
	if against.Signal.ConfidenceSentiment != 0 {
		t.Errorf("opposing news should score 0, got %v", against.Signal.ConfidenceSentiment)
	}
}

func TestSynthesize_SentimentFailureDegrades(t *testing.T) {
	s := newSynth(fixedSentiment{err: errors.New("feed down")})
	res, err := s.Synthesize(context.Background(), Request{Symbol: "XAUUSD", Timeframe: "15m", Candles: ascending(150)})
	if err != nil {
		t.Fatal(err)
	}
	if res.Signal == nil || res.Signal.ConfidenceSentiment != 0 {
		t.Fatalf("expected degraded signal, got %+v", res.Signal)
	}
}

func TestSynthesize_HighVolatilityWidensStop(t *testing.T) {
	candles := ascending(150)
	calm := fixedSentiment{ns: &model.NewsSentiment{Direction: model.DirectionNeutral, VolatilityScore: 10}}
	wild := fixedSentiment{ns: &model.NewsSentiment{Direction: model.DirectionNeutral, VolatilityScore: 80}}

	a, err := newSynth(calm).Synthesize(context.Background(), Request{Symbol: "XAUUSD", Timeframe: "15m", Candles: candles})
	if err != nil {
		t.Fatal(err)
	}
	b, err := newSynth(wild).Synthesize(context.Background(), Request{Symbol: "XAUUSD", Timeframe: "15m", Candles: candles})
	if err != nil {
		t.Fatal(err)
	}
	if b.Signal.Risk() <= a.Signal.Risk() {
		t.Errorf("volatile news should widen risk: %v vs %v", b.Signal.Risk(), a.Signal.Risk())
	}
	if b.Signal.TakeProfit3 <= a.Signal.TakeProfit3 {
		t.Errorf("volatile news should widen targets")
	}
}

func TestSynthesize_MinConfidenceGate(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MinConfidence = 101
	s := NewSynthesizer(cfg, nil, nil, nil)
	res, err := s.Synthesize(context.Background(), Request{Symbol: "XAUUSD", Timeframe: "15m", Candles: ascending(150)})
	if err != nil {
		t.Fatal(err)
	}
	if res.Outcome != OutcomeLowConfidence || res.Signal != nil {
		t.Fatalf("expected low confidence, got %s", res.Outcome)
	}
}

func TestSynthesize_MalformedInputIsError(t *testing.T) {
	candles := ascending(150)
	candles[40].Low = candles[40].High + 5
	_, err := newSynth(nil).Synthesize(context.Background(), Request{Symbol: "XAUUSD", Timeframe: "15m", Candles: candles})
	if !errors.Is(err, model.ErrMalformedCandle) {
		t.Fatalf("expected ErrMalformedCandle, got %v", err)
	}
}

func TestSynthesize_PipPolicyRoundsToInstrument(t *testing.T) {
	instruments := map[string]model.InstrumentSpec{
		"XAUUSD": {Symbol: "XAUUSD", PipSize: 0.1, Decimals: 2},
	}
	s := NewSynthesizer(DefaultConfig(), nil, instruments, PipTargets{Pips: [3]float64{100, 200, 300}})
	res, err := s.Synthesize(context.Background(), Request{Symbol: "XAUUSD", Timeframe: "15m", Candles: ascending(150)})
	if err != nil {
		t.Fatal(err)
	}
	sig := res.Signal
	if d := sig.TakeProfit1 - sig.Entry; d < 9.99 || d > 10.01 {
		t.Errorf("TP1 distance = %v, want 100 pips (10.0)", d)
	}

	// Unknown instrument cannot be priced in pips.
	_, err = s.Synthesize(context.Background(), Request{Symbol: "UNKNOWN", Timeframe: "15m", Candles: ascending(150)})
	if !errors.Is(err, model.ErrUnknownInstrument) {
		t.Fatalf("expected ErrUnknownInstrument, got %v", err)
	}
}

func TestSynthesize_SessionLabelAndMillisecondTimestamp(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxReasons = 20
	s := NewSynthesizer(cfg, nil, nil, nil)
	// Wednesday 13:00 UTC, London and New York both open
	s.now = func() time.Time { return time.Date(2025, 3, 5, 13, 0, 0, 123_456_789, time.UTC) }

	res, err := s.Synthesize(context.Background(), Request{Symbol: "XAUUSD", Timeframe: "15m", Candles: ascending(150)})
	if err != nil {
		t.Fatal(err)
	}
	sig := res.Signal
	if sig == nil {
		t.Fatalf("expected a signal, outcome %s", res.Outcome)
	}
	if last := sig.Reasons[len(sig.Reasons)-1]; last != "London/NewYork overlap" {
		t.Errorf("last reason = %q, want session label", last)
	}
	want := time.Date(2025, 3, 5, 13, 0, 0, 123_000_000, time.UTC)
	if !sig.Timestamp.Equal(want) {
		t.Errorf("timestamp = %s, want %s", sig.Timestamp.Format(time.RFC3339Nano), want.Format(time.RFC3339Nano))
	}

	// Saturday: FX closed, no session to name
	s.now = func() time.Time { return time.Date(2025, 3, 8, 13, 0, 0, 0, time.UTC) }
	res, err = s.Synthesize(context.Background(), Request{Symbol: "XAUUSD", Timeframe: "15m", Candles: ascending(150)})
	if err != nil {
		t.Fatal(err)
	}
	for _, r := range res.Signal.Reasons {
		if strings.HasSuffix(r, "session") || strings.HasSuffix(r, "overlap") {
			t.Errorf("weekend signal carries session reason %q", r)
		}
	}
}
