package indicator

import (
	"math"
	"testing"

	"smc-systemv1/internal/model"
)

// ────────────────────────────────────────────────────────────
// Helper
// ────────────────────────────────────────────────────────────

func candle(close float64) model.Candle {
	return model.Candle{Open: close, High: close + 0.5, Low: close - 0.5, Close: close}
}

func assertClose(t *testing.T, label string, got, want, tol float64) {
	t.Helper()
	if math.Abs(got-want) > tol {
		t.Errorf("%s: got %.6f, want %.6f (tol=%.6f, diff=%.6f)", label, got, want, tol, math.Abs(got-want))
	}
}

// ────────────────────────────────────────────────────────────
// SMA
// ────────────────────────────────────────────────────────────

func TestSMA_Correctness_Period3(t *testing.T) {
	// Prices: 100, 102, 104, 103, 105
	// SMA after candle 3: (100+102+104)/3 = 102
	// SMA after candle 4: (102+104+103)/3 = 103
	// SMA after candle 5: (104+103+105)/3 = 104
	sma := NewSMA(3)
	prices := []float64{100, 102, 104, 103, 105}
	expected := []float64{0, 0, 102, 103, 104}
	ready := []bool{false, false, true, true, true}

	for i, p := range prices {
		sma.Update(candle(p))
		if sma.Ready() != ready[i] {
			t.Errorf("candle %d: Ready()=%v, want %v", i, sma.Ready(), ready[i])
		}
		if ready[i] {
			assertClose(t, "SMA(3)", sma.Value(), expected[i], 1e-9)
		}
	}
	if sma.Name() != "SMA_3" {
		t.Errorf("Name() = %q", sma.Name())
	}
}

func TestSMA_Peek_DoesNotMutate(t *testing.T) {
	sma := NewSMA(3)
	for _, p := range []float64{100, 102, 104} {
		sma.Update(candle(p))
	}
	before := sma.Value()
	assertClose(t, "SMA peek", sma.Peek(106), (102+104+106)/3.0, 1e-9)
	if sma.Value() != before {
		t.Errorf("Peek mutated state: %v -> %v", before, sma.Value())
	}
}

// ────────────────────────────────────────────────────────────
// EMA
// ────────────────────────────────────────────────────────────

func TestEMA_Correctness_Period3(t *testing.T) {
	// multiplier = 2/(3+1) = 0.5
	// seed after 3 candles: SMA(10, 11, 12) = 11
	// candle 4 (13): 13*0.5 + 11*0.5 = 12
	// candle 5 (14): 14*0.5 + 12*0.5 = 13
	ema := NewEMA(3)
	for _, p := range []float64{10, 11, 12} {
		ema.Update(candle(p))
	}
	assertClose(t, "EMA seed", ema.Value(), 11, 1e-9)
	ema.Update(candle(13))
	assertClose(t, "EMA c4", ema.Value(), 12, 1e-9)

	peek := ema.Peek(14)
	assertClose(t, "EMA peek", peek, 13, 1e-9)
	assertClose(t, "EMA after peek", ema.Value(), 12, 1e-9)

	ema.Update(candle(14))
	assertClose(t, "EMA c5", ema.Value(), 13, 1e-9)
}

// ────────────────────────────────────────────────────────────
// SMMA / ATR
// ────────────────────────────────────────────────────────────

func TestSMMA_Correctness_Period3(t *testing.T) {
	// seed: (10+11+12)/3 = 11; next 15: (11*2+15)/3 = 12.333...
	s := NewSMMA(3)
	for _, p := range []float64{10, 11, 12, 15} {
		s.Update(candle(p))
	}
	assertClose(t, "SMMA", s.Value(), 37.0/3.0, 1e-9)
}

func TestATR_ConstantRange(t *testing.T) {
	atr := NewATR(5)
	for i := 0; i < 20; i++ {
		atr.Update(candle(100))
	}
	if !atr.Ready() {
		t.Fatal("ATR should be ready after 20 candles")
	}
	assertClose(t, "ATR", atr.Value(), 1.0, 1e-9)
}

func TestATR_UsesPreviousClose(t *testing.T) {
	atr := NewATR(1)
	atr.Update(model.Candle{Open: 100, High: 101, Low: 99, Close: 100})
	// gap up: true range = high - prevClose = 110 - 100
	atr.Update(model.Candle{Open: 109, High: 110, Low: 108, Close: 109})
	assertClose(t, "ATR gap", atr.Value(), 10, 1e-9)
}

// ────────────────────────────────────────────────────────────
// RSI
// ────────────────────────────────────────────────────────────

func TestRSI_AllUp_Is100(t *testing.T) {
	rsi := NewRSI(5)
	for i := 0; i < 10; i++ {
		rsi.Update(candle(100 + float64(i)))
	}
	assertClose(t, "RSI all up", rsi.Value(), 100, 1e-9)
}

func TestRSI_AllDown_Is0(t *testing.T) {
	rsi := NewRSI(5)
	for i := 0; i < 10; i++ {
		rsi.Update(candle(100 - float64(i)))
	}
	assertClose(t, "RSI all down", rsi.Value(), 0, 1e-9)
}

func TestRSI_Correctness_Period2(t *testing.T) {
	// closes 10, 12, 11: gains 2,0 losses 0,1 -> avgGain 1, avgLoss 0.5
	// RS = 2, RSI = 100 - 100/3 = 66.666...
	rsi := NewRSI(2)
	for _, p := range []float64{10, 12, 11} {
		rsi.Update(candle(p))
	}
	if !rsi.Ready() {
		t.Fatal("RSI(2) should be ready after 3 candles")
	}
	assertClose(t, "RSI(2)", rsi.Value(), 200.0/3.0, 1e-9)

	before := rsi.Value()
	if rsi.Peek(20) <= before {
		t.Error("peeking a higher close should raise RSI")
	}
	if rsi.Value() != before {
		t.Error("Peek mutated RSI state")
	}
}

// ────────────────────────────────────────────────────────────
// Set
// ────────────────────────────────────────────────────────────

func TestComputeSet_TrendOrdering(t *testing.T) {
	var up, down []model.Candle
	for i := 0; i < 120; i++ {
		up = append(up, candle(100+float64(i)))
		down = append(down, candle(300-float64(i)))
	}

	u := ComputeSet(up, 20, 50)
	if !u.Ready {
		t.Fatal("set should be ready after 120 candles")
	}
	if u.EMAFast <= u.EMASlow {
		t.Errorf("uptrend: fast EMA %v should exceed slow %v", u.EMAFast, u.EMASlow)
	}
	assertClose(t, "SMA50", u.SMA50, 194.5, 1e-9)

	d := ComputeSet(down, 20, 50)
	if d.EMAFast >= d.EMASlow {
		t.Errorf("downtrend: fast EMA %v should be below slow %v", d.EMAFast, d.EMASlow)
	}

	if _, ready := Feed(NewSMA(200), up); ready {
		t.Error("SMA(200) cannot be ready after 120 candles")
	}
}
