package sqlite

import (
	"context"
	"errors"
	"path/filepath"
	"reflect"
	"testing"
	"time"

	"smc-systemv1/internal/model"
)

func openTemp(t *testing.T) *Store {
	t.Helper()
	s, err := New(Config{DBPath: filepath.Join(t.TempDir(), "smc.db")})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func sampleSignal(id string, ts time.Time) *model.Signal {
	return &model.Signal{
		ID:                  id,
		Symbol:              "XAUUSD",
		Timeframe:           "15m",
		Action:              model.ActionBuy,
		Entry:               2351.37,
		StopLoss:            2339.1234567,
		TakeProfit1:         2369.775,
		TakeProfit2:         2382.0425,
		TakeProfit3:         2400.44,
		ConfidenceOverall:   67,
		ConfidenceTechnical: 55.5,
		ConfidenceSMC:       80.25,
		ConfidenceSentiment: 0.1 + 0.2, // not exactly 0.3
		RiskRewardRatio:     2.5,
		Reasons:             []string{"Bullish market structure", "Price in discount zone", "Near support 2340.00"},
		SourceAnalysis: model.AnalysisSnapshot{
			Trend:       "bullish",
			HigherHighs: 4,
			Zone:        "discount",
			Equilibrium: 2360.5,
			OrderBlocks: []model.PriceZone{{Type: "bullish", Top: 2345, Bottom: 2338.5, Index: 181, Strength: 42.1}},
			Levels:      []model.PriceLevel{{Type: "support", Price: 2340, Touches: 5}},
		},
		Timestamp: ts,
		Status:    model.StatusActive,
	}
}

func TestSignal_RoundTrip(t *testing.T) {
	s := openTemp(t)
	ctx := context.Background()
	ts := time.Unix(1_741_083_300, 123_456_789).UTC()

	in := sampleSignal("XAUUSD-15m-1741083300000", ts)
	if err := s.SaveSignal(ctx, in); err != nil {
		t.Fatal(err)
	}
	out, err := s.GetSignal(ctx, in.ID)
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(in, out) {
		t.Errorf("round trip mismatch:\n in=%+v\nout=%+v", in, out)
	}
}

func TestSaveSignal_SameIDKeepsStoredRow(t *testing.T) {
	s := openTemp(t)
	ctx := context.Background()
	ts := time.UnixMilli(1_741_083_300_000).UTC()

	sig := sampleSignal("A", ts)
	if err := s.SaveSignal(ctx, sig); err != nil {
		t.Fatal(err)
	}
	exit := ts.Add(time.Hour)
	if err := s.UpdateStatus(ctx, model.StatusUpdate{ID: "A", Status: model.StatusHitSL, ExitPrice: 2339.1234567, ExitTime: &exit}); err != nil {
		t.Fatal(err)
	}

	again := sampleSignal("A", ts)
	again.ConfidenceOverall = 90
	if err := s.SaveSignal(ctx, again); !errors.Is(err, model.ErrSignalExists) {
		t.Fatalf("expected ErrSignalExists, got %v", err)
	}

	all, err := s.ListSignals(ctx, model.SignalFilter{})
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 1 {
		t.Fatalf("expected one row, got %v", ids(all))
	}
	got := all[0]
	if got.ConfidenceOverall != 67 || got.Status != model.StatusHitSL || got.ExitTime == nil || !got.ExitTime.Equal(exit) {
		t.Errorf("stored row changed by second save: %+v", got)
	}
}

func TestUpdateStatus_Idempotent(t *testing.T) {
	s := openTemp(t)
	ctx := context.Background()
	ts := time.UnixMilli(1_741_083_300_000).UTC()
	s.SaveSignal(ctx, sampleSignal("A", ts))

	exit := ts.Add(2 * time.Hour)
	u := model.StatusUpdate{ID: "A", Status: model.StatusHitTP1, ExitPrice: 2369.775, ExitTime: &exit}
	for i := 0; i < 2; i++ {
		if err := s.UpdateStatus(ctx, u); err != nil {
			t.Fatalf("apply %d: %v", i, err)
		}
	}

	got, err := s.GetSignal(ctx, "A")
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != model.StatusHitTP1 || got.ExitPrice != 2369.775 || !got.ExitTime.Equal(exit) {
		t.Errorf("status not applied: %+v", got)
	}
	if got.Entry != 2351.37 || len(got.Reasons) != 3 {
		t.Errorf("update touched immutable fields: %+v", got)
	}
}

func TestUpdateStatus_Unknown(t *testing.T) {
	s := openTemp(t)
	err := s.UpdateStatus(context.Background(), model.StatusUpdate{ID: "nope", Status: model.StatusHitSL})
	if !errors.Is(err, model.ErrSignalNotFound) {
		t.Fatalf("expected ErrSignalNotFound, got %v", err)
	}
	if _, err := s.GetSignal(context.Background(), "nope"); !errors.Is(err, model.ErrSignalNotFound) {
		t.Fatalf("GetSignal: expected ErrSignalNotFound, got %v", err)
	}
	if err := s.UpdateStatus(context.Background(), model.StatusUpdate{ID: "x", Status: "bogus"}); err == nil {
		t.Fatal("invalid status accepted")
	}
}

func TestListSignals_FilterAndOrder(t *testing.T) {
	s := openTemp(t)
	ctx := context.Background()
	base := time.UnixMilli(1_741_083_300_000).UTC()

	for i, sym := range []string{"XAUUSD", "EURUSD", "XAUUSD", "XAUUSD"} {
		sig := sampleSignal(sym+string(rune('a'+i)), base.Add(time.Duration(i)*time.Minute))
		sig.Symbol = sym
		s.SaveSignal(ctx, sig)
	}
	s.UpdateStatus(ctx, model.StatusUpdate{ID: "XAUUSDa", Status: model.StatusHitSL, ExitPrice: 2339})

	got, err := s.ListSignals(ctx, model.SignalFilter{Symbol: "XAUUSD", Limit: 2})
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 || got[0].ID != "XAUUSDd" || got[1].ID != "XAUUSDc" {
		t.Errorf("order/limit: %v", ids(got))
	}

	active, _ := s.ListSignals(ctx, model.SignalFilter{Symbol: "XAUUSD", Status: model.StatusActive})
	if len(active) != 2 {
		t.Errorf("status filter: %v", ids(active))
	}
}

func ids(sigs []model.Signal) []string {
	out := make([]string, len(sigs))
	for i, s := range sigs {
		out[i] = s.ID
	}
	return out
}

func TestCandles_SaveLoad(t *testing.T) {
	s := openTemp(t)
	ctx := context.Background()

	var cs []model.Candle
	for i := int64(1); i <= 10; i++ {
		cs = append(cs, model.Candle{Time: i * 60_000, Open: 1.08, High: 1.09, Low: 1.07, Close: 1.0812345, Volume: float64(i)})
	}
	if err := s.SaveCandles(ctx, "EURUSD", "1m", cs); err != nil {
		t.Fatal(err)
	}
	// upsert of the last bar
	cs[9].Close = 1.085
	s.SaveCandles(ctx, "EURUSD", "1m", cs[9:])

	got, err := s.LoadCandles(ctx, "EURUSD", "1m", 3)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 3 || got[0].Time != 8*60_000 || got[2].Time != 10*60_000 {
		t.Fatalf("expected newest 3 oldest-first, got %+v", got)
	}
	if got[2].Close != 1.085 || got[0].Close != 1.0812345 {
		t.Errorf("values: %+v", got)
	}
}

func TestRunCandles_SkipsFormingBars(t *testing.T) {
	s := openTemp(t)
	ch := make(chan model.CandleUpdate, 4)
	bar := model.Candle{Time: 60_000, Open: 1, High: 2, Low: 0.5, Close: 1.5}

	ch <- model.CandleUpdate{Symbol: "EURUSD", Timeframe: "1m", Kind: model.UpdateLive, Candles: []model.Candle{bar}}
	closed := bar
	closed.Time = 120_000
	ch <- model.CandleUpdate{Symbol: "EURUSD", Timeframe: "1m", Kind: model.UpdateLive, Candles: []model.Candle{closed}, Closed: true}
	close(ch)

	s.RunCandles(context.Background(), ch)

	got, _ := s.LoadCandles(context.Background(), "EURUSD", "1m", 0)
	if len(got) != 1 || got[0].Time != 120_000 {
		t.Fatalf("expected only the closed bar, got %+v", got)
	}
}
