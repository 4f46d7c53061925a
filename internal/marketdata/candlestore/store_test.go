package candlestore

import (
	"errors"
	"testing"

	"smc-systemv1/internal/model"
)

func bar(t int64, close float64) model.Candle {
	return model.Candle{Time: t, Open: close, High: close + 1, Low: close - 1, Close: close, Volume: 10}
}

func live(c ...model.Candle) model.CandleUpdate {
	return model.CandleUpdate{Symbol: "XAUUSD", Timeframe: "1m", Kind: model.UpdateLive, Candles: c}
}

const key = "XAUUSD:1m"

func TestApply_LiveAppendAndReplaceLast(t *testing.T) {
	s := New(0)
	if err := s.Apply(live(bar(60_000, 100))); err != nil {
		t.Fatal(err)
	}
	if err := s.Apply(live(bar(120_000, 101))); err != nil {
		t.Fatal(err)
	}
	// same bucket: in-place mutation of the forming bar
	if err := s.Apply(live(bar(120_000, 105))); err != nil {
		t.Fatal(err)
	}

	snap := s.Snapshot(key)
	if len(snap) != 2 {
		t.Fatalf("expected 2 bars, got %d", len(snap))
	}
	if snap[1].Close != 105 {
		t.Errorf("last bar not replaced: close=%v", snap[1].Close)
	}
}

func TestApply_StaleRejected(t *testing.T) {
	s := New(0)
	s.Apply(live(bar(120_000, 100)))

	var rejected int
	s.OnRejected = func(string, error) { rejected++ }

	err := s.Apply(live(bar(60_000, 99)))
	if !errors.Is(err, model.ErrStaleCandle) {
		t.Fatalf("expected ErrStaleCandle, got %v", err)
	}
	if rejected != 1 {
		t.Errorf("OnRejected calls: %d", rejected)
	}
	if s.Len(key) != 1 {
		t.Errorf("series modified by stale bar")
	}
}

func TestApply_MalformedRejected(t *testing.T) {
	s := New(0)
	s.Apply(live(bar(60_000, 100)))

	bad := model.Candle{Time: 120_000, Open: 100, High: 99, Low: 98, Close: 100}
	if err := s.Apply(live(bad)); !errors.Is(err, model.ErrMalformedCandle) {
		t.Fatalf("expected ErrMalformedCandle, got %v", err)
	}
	if s.Len(key) != 1 {
		t.Errorf("malformed bar stored")
	}
}

func TestApply_ReplaceDiscardsPrevious(t *testing.T) {
	s := New(0)
	s.Apply(live(bar(60_000, 100), bar(120_000, 100)))

	err := s.Apply(model.CandleUpdate{
		Symbol: "XAUUSD", Timeframe: "1m", Kind: model.UpdateReplace,
		Candles: []model.Candle{bar(10_000, 50)},
	})
	if err != nil {
		t.Fatal(err)
	}
	snap := s.Snapshot(key)
	if len(snap) != 1 || snap[0].Time != 10_000 {
		t.Fatalf("replace did not discard previous series: %+v", snap)
	}
}

func TestApply_ReplaceRejectsUnordered(t *testing.T) {
	s := New(0)
	err := s.Apply(model.CandleUpdate{
		Symbol: "XAUUSD", Timeframe: "1m", Kind: model.UpdateReplace,
		Candles: []model.Candle{bar(120_000, 1), bar(60_000, 1)},
	})
	if !errors.Is(err, model.ErrMalformedCandle) {
		t.Fatalf("expected ErrMalformedCandle, got %v", err)
	}
	if s.Snapshot(key) != nil {
		t.Error("rejected batch should leave no series")
	}
}

func TestApply_CapacityBound(t *testing.T) {
	s := New(5)
	for i := int64(1); i <= 8; i++ {
		if err := s.Apply(live(bar(i*60_000, float64(i)+10))); err != nil {
			t.Fatal(err)
		}
	}
	snap := s.Snapshot(key)
	if len(snap) != 5 {
		t.Fatalf("expected 5 bars, got %d", len(snap))
	}
	if snap[0].Time != 4*60_000 || snap[4].Time != 8*60_000 {
		t.Errorf("wrong window kept: first=%d last=%d", snap[0].Time, snap[4].Time)
	}

	big := make([]model.Candle, 12)
	for i := range big {
		big[i] = bar(int64(i+1)*60_000, 20)
	}
	s.Apply(model.CandleUpdate{Symbol: "XAUUSD", Timeframe: "1m", Kind: model.UpdateReplace, Candles: big})
	if got := s.Len(key); got != 5 {
		t.Errorf("replace not capped: %d", got)
	}
	if last, _ := s.Last(key); last.Time != 12*60_000 {
		t.Errorf("replace should keep newest bars, last=%d", last.Time)
	}
}

func TestSnapshot_IsCopy(t *testing.T) {
	s := New(0)
	s.Apply(live(bar(60_000, 100)))

	snap := s.Snapshot(key)
	snap[0].Close = -1

	// the forming bar mutates after the snapshot was taken
	s.Apply(live(bar(60_000, 200)))

	if snap[0].Close != -1 {
		t.Error("snapshot changed by later live update")
	}
	if again := s.Snapshot(key); again[0].Close != 200 {
		t.Errorf("store corrupted by snapshot mutation: %v", again[0].Close)
	}
}

func TestSubscribe_NotifiesKey(t *testing.T) {
	s := New(0)
	ch := s.Subscribe(4)

	s.Apply(live(bar(60_000, 100)))
	select {
	case k := <-ch:
		if k != key {
			t.Errorf("got key %q", k)
		}
	default:
		t.Fatal("no notification")
	}

	s.Apply(live(bar(0, 1)))
	select {
	case k := <-ch:
		t.Fatalf("rejected update notified %q", k)
	default:
	}
}
