package agg

import (
	"context"
	"testing"
	"time"

	"smc-systemv1/internal/model"
)

func collect(ch chan model.CandleUpdate) []model.CandleUpdate {
	var out []model.CandleUpdate
	for {
		select {
		case u := <-ch:
			out = append(out, u)
		default:
			return out
		}
	}
}

func closedOnly(ups []model.CandleUpdate) []model.Candle {
	var out []model.Candle
	for _, u := range ups {
		if u.Closed {
			out = append(out, u.Candles[0])
		}
	}
	return out
}

// frozen keeps flushOld from closing bars on the wall clock mid-test.
func frozen(a *Aggregator, t time.Time) {
	a.now = func() time.Time { return t }
}

func TestAggregator_BasicCandle(t *testing.T) {
	agg := New(time.Minute)
	now := time.Date(2025, 3, 4, 10, 15, 0, 0, time.UTC)
	frozen(agg, now)

	tickCh := make(chan model.Tick, 100)
	out := make(chan model.CandleUpdate, 100)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		agg.Run(ctx, tickCh, out)
		close(done)
	}()

	tickCh <- model.Tick{Symbol: "EURUSD", Price: 1.0850, TS: now}
	tickCh <- model.Tick{Symbol: "EURUSD", Price: 1.0862, TS: now.Add(10 * time.Second)}
	tickCh <- model.Tick{Symbol: "EURUSD", Price: 1.0841, TS: now.Add(30 * time.Second)}
	// next minute closes the first bar
	tickCh <- model.Tick{Symbol: "EURUSD", Price: 1.0845, TS: now.Add(time.Minute)}

	time.Sleep(100 * time.Millisecond)
	cancel()
	<-done

	ups := collect(out)
	closed := closedOnly(ups)
	if len(closed) < 1 {
		t.Fatalf("expected a closed bar, got %d updates", len(ups))
	}
	c := closed[0]
	if c.Time != now.UnixMilli() {
		t.Errorf("bucket: got %d", c.Time)
	}
	if c.Open != 1.0850 || c.High != 1.0862 || c.Low != 1.0841 || c.Close != 1.0841 {
		t.Errorf("ohlc: %+v", c)
	}
	if c.Volume != 3 {
		t.Errorf("tick volume: got %v", c.Volume)
	}
	if ups[0].Timeframe != "1m" || ups[0].Kind != model.UpdateLive {
		t.Errorf("update tags: %+v", ups[0])
	}
}

func TestAggregator_EveryTickEmitsForming(t *testing.T) {
	agg := New(time.Minute)
	now := time.Date(2025, 3, 4, 10, 15, 0, 0, time.UTC)
	out := make(chan model.CandleUpdate, 10)

	agg.processTick(model.Tick{Symbol: "XAUUSD", Price: 2300, TS: now}, out)
	agg.processTick(model.Tick{Symbol: "XAUUSD", Price: 2301, TS: now.Add(time.Second)}, out)

	ups := collect(out)
	if len(ups) != 2 {
		t.Fatalf("expected 2 forming updates, got %d", len(ups))
	}
	if ups[1].Closed || ups[1].Candles[0].Close != 2301 {
		t.Errorf("second update: %+v", ups[1])
	}
}

func TestAggregator_FlushOldClosesQuietBar(t *testing.T) {
	agg := New(time.Minute)
	start := time.Date(2025, 3, 4, 10, 15, 0, 0, time.UTC)
	out := make(chan model.CandleUpdate, 10)

	agg.processTick(model.Tick{Symbol: "XAUUSD", Price: 2300, TS: start}, out)
	collect(out)

	frozen(agg, start.Add(30*time.Second))
	agg.flushOld(out)
	if len(collect(out)) != 0 {
		t.Fatal("bar closed before its bucket ended")
	}

	frozen(agg, start.Add(time.Minute))
	agg.flushOld(out)
	if got := closedOnly(collect(out)); len(got) != 1 {
		t.Fatalf("expected quiet bar to close, got %d", len(got))
	}
}

func TestAggregator_LateTick(t *testing.T) {
	agg := New(time.Minute)
	dropped := 0
	agg.OnDroppedTick = func() { dropped++ }

	now := time.Date(2025, 3, 4, 10, 15, 0, 0, time.UTC)
	out := make(chan model.CandleUpdate, 10)

	agg.processTick(model.Tick{Symbol: "EURUSD", Price: 1.08, TS: now}, out)
	agg.processTick(model.Tick{Symbol: "EURUSD", Price: 1.07, TS: now.Add(-time.Minute)}, out)

	if dropped != 1 {
		t.Errorf("expected 1 dropped tick, got %d", dropped)
	}
}

func TestAggregator_MultipleSymbols(t *testing.T) {
	agg := New(time.Minute)
	now := time.Date(2025, 3, 4, 10, 15, 0, 0, time.UTC)
	out := make(chan model.CandleUpdate, 100)

	agg.processTick(model.Tick{Symbol: "EURUSD", Price: 1.08, TS: now}, out)
	agg.processTick(model.Tick{Symbol: "GBPUSD", Price: 1.27, TS: now}, out)
	agg.processTick(model.Tick{Symbol: "EURUSD", Price: 1.09, TS: now.Add(time.Minute)}, out)
	agg.processTick(model.Tick{Symbol: "GBPUSD", Price: 1.28, TS: now.Add(time.Minute)}, out)

	closed := map[string]int{}
	for _, u := range collect(out) {
		if u.Closed {
			closed[u.Symbol]++
		}
	}
	if closed["EURUSD"] != 1 || closed["GBPUSD"] != 1 {
		t.Errorf("closed per symbol: %v", closed)
	}
}
