package tfbuilder

import (
	"context"
	"testing"
	"time"

	"smc-systemv1/internal/model"
)

// makeCandle creates a 1m base bar at the given minute offset.
func makeCandle(minute int64, open, high, low, close_ float64) model.Candle {
	return model.Candle{
		Time:   base + minute*60_000,
		Open:   open,
		High:   high,
		Low:    low,
		Close:  close_,
		Volume: 10,
	}
}

// base is aligned to a 4h boundary.
const base = int64(1_700_006_400_000)

func liveBar(c model.Candle) model.CandleUpdate {
	return model.CandleUpdate{Symbol: "EURUSD", Timeframe: "1m", Kind: model.UpdateLive, Candles: []model.Candle{c}}
}

func drain(ch chan model.CandleUpdate) []model.CandleUpdate {
	var out []model.CandleUpdate
	for len(ch) > 0 {
		out = append(out, <-ch)
	}
	return out
}

func TestBuilder_5m_Resampling(t *testing.T) {
	b := New([]time.Duration{5 * time.Minute})
	out := make(chan model.CandleUpdate, 100)

	for i := int64(0); i < 5; i++ {
		p := 100 + float64(i)
		b.Process(liveBar(makeCandle(i, p, p+2, p-1, p+0.5)), out)
	}
	for _, u := range drain(out) {
		if u.Closed {
			t.Fatalf("closed before bucket end: %+v", u)
		}
		if u.Timeframe != "5m" || u.Kind != model.UpdateLive {
			t.Fatalf("unexpected update %+v", u)
		}
	}

	b.Process(liveBar(makeCandle(5, 120, 121, 119, 120)), out)
	ups := drain(out)
	if len(ups) != 2 {
		t.Fatalf("expected closed + new forming, got %d", len(ups))
	}
	closed := ups[0]
	if !closed.Closed {
		t.Fatal("first update should close the previous bucket")
	}
	c := closed.Candles[0]
	if c.Time != base {
		t.Errorf("bucket time: got %d", c.Time)
	}
	if c.Open != 100 {
		t.Errorf("open: got %v", c.Open)
	}
	if c.Close != 104.5 {
		t.Errorf("close: got %v", c.Close)
	}
	if c.High != 106 {
		t.Errorf("high: got %v", c.High)
	}
	if c.Low != 99 {
		t.Errorf("low: got %v", c.Low)
	}
	if c.Volume != 50 {
		t.Errorf("volume: got %v", c.Volume)
	}
	if ups[1].Closed || ups[1].Candles[0].Time != base+5*60_000 {
		t.Errorf("new forming bar wrong: %+v", ups[1])
	}
}

func TestBuilder_MultipleTimeframes(t *testing.T) {
	b := New([]time.Duration{5 * time.Minute, 15 * time.Minute})
	out := make(chan model.CandleUpdate, 1000)

	var closed []model.CandleUpdate
	b.OnClosed = func(u model.CandleUpdate) { closed = append(closed, u) }

	for i := int64(0); i <= 15; i++ {
		b.Process(liveBar(makeCandle(i, 100, 101, 99, 100)), out)
	}

	counts := map[string]int{}
	for _, u := range closed {
		counts[u.Timeframe]++
	}
	if counts["5m"] != 3 || counts["15m"] != 1 {
		t.Errorf("closed counts: %v", counts)
	}
	if got := b.TFs(); got[0] != "5m" || got[1] != "15m" {
		t.Errorf("labels: %v", got)
	}
}

func TestBuilder_StaleCandleRejected(t *testing.T) {
	b := New([]time.Duration{5 * time.Minute})
	b.StaleTolerance = time.Minute
	out := make(chan model.CandleUpdate, 100)

	stale := 0
	b.OnStaleCandle = func() { stale++ }

	b.Process(liveBar(makeCandle(0, 100, 101, 99, 100)), out)
	b.Process(liveBar(makeCandle(10, 100, 101, 99, 100)), out)
	drain(out)

	b.Process(liveBar(makeCandle(1, 50, 60, 40, 55)), out)
	if stale != 1 {
		t.Errorf("expected 1 stale rejection, got %d", stale)
	}
	for _, u := range drain(out) {
		if u.Candles[0].Open == 50 {
			t.Fatalf("stale bar processed: %+v", u)
		}
	}
}

func TestBuilder_ReplaceResamplesHistory(t *testing.T) {
	b := New([]time.Duration{15 * time.Minute})
	out := make(chan model.CandleUpdate, 10)

	hist := make([]model.Candle, 0, 45)
	for i := int64(0); i < 45; i++ {
		hist = append(hist, makeCandle(i, 100, 100+float64(i), 99, 100))
	}
	b.Process(model.CandleUpdate{Symbol: "EURUSD", Timeframe: "1m", Kind: model.UpdateReplace, Candles: hist}, out)

	ups := drain(out)
	if len(ups) != 1 || ups[0].Kind != model.UpdateReplace {
		t.Fatalf("expected one replace update, got %+v", ups)
	}
	if n := len(ups[0].Candles); n != 3 {
		t.Fatalf("expected 3 bars, got %d", n)
	}
	if h := ups[0].Candles[2].High; h != 144 {
		t.Errorf("last bar high: got %v", h)
	}

	// a live bar in the last bucket keeps merging into the replaced state
	b.Process(liveBar(makeCandle(44, 100, 200, 99, 150)), out)
	u := <-out
	if u.Candles[0].High != 200 || u.Candles[0].Time != base+30*60_000 {
		t.Errorf("live merge after replace: %+v", u.Candles[0])
	}
}

func TestBuilder_RunFlushesOnClose(t *testing.T) {
	b := New([]time.Duration{5 * time.Minute})
	in := make(chan model.CandleUpdate, 1)
	out := make(chan model.CandleUpdate, 10)

	in <- liveBar(makeCandle(0, 1, 2, 0.5, 1.5))
	close(in)
	b.Run(context.Background(), in, out)

	ups := drain(out)
	if len(ups) != 2 || !ups[1].Closed {
		t.Fatalf("expected forming then flushed bar, got %+v", ups)
	}
}

func TestResample_Empty(t *testing.T) {
	if got := Resample(nil, time.Hour); len(got) != 0 {
		t.Errorf("expected empty, got %v", got)
	}
}
