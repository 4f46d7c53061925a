package smc

import (
	"context"
	"encoding/json"
	"errors"
	"reflect"
	"testing"

	"smc-systemv1/internal/model"
)

func TestAnalyze_InsufficientData(t *testing.T) {
	_, err := Analyze(context.Background(), ascending(5), DefaultConfig(), nil)
	if !errors.Is(err, model.ErrInsufficientData) {
		t.Fatalf("expected ErrInsufficientData, got %v", err)
	}
}

func TestAnalyze_RejectsMalformed(t *testing.T) {
	candles := ascending(50)
	candles[10].High = candles[10].Low - 1
	_, err := Analyze(context.Background(), candles, DefaultConfig(), nil)
	if !errors.Is(err, model.ErrMalformedCandle) {
		t.Fatalf("expected ErrMalformedCandle, got %v", err)
	}
}

func TestPass_StageOrder(t *testing.T) {
	p, err := NewPass(ascending(50), DefaultConfig(), nil)
	if err != nil {
		t.Fatal(err)
	}
	if err := p.Structure(); !errors.Is(err, ErrPipelineOrder) {
		t.Errorf("structure before swings: got %v", err)
	}
	if err := p.Zones(context.Background()); !errors.Is(err, ErrPipelineOrder) {
		t.Errorf("zones before structure: got %v", err)
	}
	if _, err := p.Result(); !errors.Is(err, ErrPipelineOrder) {
		t.Errorf("result before zones: got %v", err)
	}
}

func TestNewPass_SnapshotsInput(t *testing.T) {
	candles := randomWalk(3, 120)
	p, err := NewPass(candles, DefaultConfig(), nil)
	if err != nil {
		t.Fatal(err)
	}
	candles[len(candles)-1].Close = 1e9
	candles[len(candles)-1].High = 1e9

	p.Swings()
	if err := p.Structure(); err != nil {
		t.Fatal(err)
	}
	if err := p.Zones(context.Background()); err != nil {
		t.Fatal(err)
	}
	a, err := p.Result()
	if err != nil {
		t.Fatal(err)
	}
	if a.LastClose == 1e9 || a.PremiumDiscount.RangeHigh == 1e9 {
		t.Fatal("pass observed mutation of the caller's slice")
	}
}

func TestAnalyze_ProgressEvents(t *testing.T) {
	progress := make(chan Progress, 32)
	if _, err := Analyze(context.Background(), randomWalk(9, 200), DefaultConfig(), progress); err != nil {
		t.Fatal(err)
	}
	close(progress)

	last := -1
	var final Progress
	for ev := range progress {
		if ev.Percent < last {
			t.Errorf("progress went backwards: %d after %d", ev.Percent, last)
		}
		last = ev.Percent
		final = ev
	}
	if final.Percent != 100 {
		t.Errorf("final progress = %d, want 100", final.Percent)
	}
}

func TestAnalyze_ProgressNeverBlocks(t *testing.T) {
	unbuffered := make(chan Progress)
	if _, err := Analyze(context.Background(), randomWalk(9, 200), DefaultConfig(), unbuffered); err != nil {
		t.Fatal(err)
	}
}

func TestAnalyze_ConcurrentMatchesSequential(t *testing.T) {
	candles := randomWalk(11, 500)
	seq, err := Analyze(context.Background(), candles, DefaultConfig(), nil)
	if err != nil {
		t.Fatal(err)
	}
	cfg := DefaultConfig()
	cfg.Concurrent = true
	par, err := Analyze(context.Background(), candles, cfg, nil)
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(seq, par) {
		t.Fatal("concurrent extractors produced a different analysis")
	}
}

func TestAnalyze_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := Analyze(ctx, randomWalk(1, 200), DefaultConfig(), nil); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestDrawables_JSON(t *testing.T) {
	a, err := Analyze(context.Background(), ascending(150), DefaultConfig(), nil)
	if err != nil {
		t.Fatal(err)
	}
	d := a.Drawables("XAUUSD", "15m")
	var decoded map[string]json.RawMessage
	if err := json.Unmarshal(d.JSON(), &decoded); err != nil {
		t.Fatal(err)
	}
	for _, key := range []string{"order_blocks", "fair_value_gaps", "liquidity", "levels", "premium_discount", "swings"} {
		if string(decoded[key]) == "null" || decoded[key] == nil {
			t.Errorf("%s should be an array, got %s", key, decoded[key])
		}
	}
	if len(d.PremiumDiscount) != 3 {
		t.Errorf("expected 3 premium/discount bands, got %d", len(d.PremiumDiscount))
	}

	snap := a.Snapshot()
	if snap.Trend != string(TrendBullish) {
		t.Errorf("snapshot trend = %s", snap.Trend)
	}
}
