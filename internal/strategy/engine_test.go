package strategy

import (
	"context"
	"testing"
	"time"
)

func TestEngine_RunsPassesPerSeries(t *testing.T) {
	e := NewEngine(newSynth(nil), 2, 4)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go e.Run(ctx)

	if !e.Submit(Request{Symbol: "XAUUSD", Timeframe: "15m", Candles: ascending(150)}) {
		t.Fatal("submit rejected")
	}
	if !e.Submit(Request{Symbol: "EURUSD", Timeframe: "1h", Candles: descending(150)}) {
		t.Fatal("submit rejected")
	}

	got := map[string]Outcome{}
	timeout := time.After(5 * time.Second)
	for len(got) < 2 {
		select {
		case p := <-e.Passes():
			if p.Err != nil {
				t.Fatalf("pass error: %v", p.Err)
			}
			got[p.Request.Symbol] = p.Result.Outcome
		case <-timeout:
			t.Fatalf("timed out, got %v", got)
		}
	}
	if got["XAUUSD"] != OutcomeSignal || got["EURUSD"] != OutcomeSignal {
		t.Errorf("outcomes = %v", got)
	}
}

func TestEngine_SubmitDropsWhenFull(t *testing.T) {
	e := NewEngine(newSynth(nil), 1, 1)
	dropped := 0
	e.OnDrop = func(string) { dropped++ }

	// No Run: the single queue slot fills and the next submit drops.
	e.Submit(Request{Symbol: "A", Timeframe: "1m"})
	if e.Submit(Request{Symbol: "A", Timeframe: "1m"}) {
		t.Fatal("expected second submit to be rejected")
	}
	if dropped != 1 {
		t.Errorf("dropped = %d, want 1", dropped)
	}
}

func TestShard_Stable(t *testing.T) {
	for _, key := range []string{"XAUUSD:15m", "EURUSD:1h", "BTCUSD:4h"} {
		if shard(key, 8) != shard(key, 8) {
			t.Fatalf("shard not stable for %s", key)
		}
		if s := shard(key, 8); s < 0 || s >= 8 {
			t.Fatalf("shard out of range: %d", s)
		}
	}
}
