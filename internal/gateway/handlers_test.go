package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/pquerna/otp/totp"

	"smc-systemv1/internal/model"
)

const testSecret = "JBSWY3DPEHPK3PXP"

type memSignals struct {
	sigs    map[string]model.Signal
	updates []model.StatusUpdate
}

func (m *memSignals) GetSignal(_ context.Context, id string) (*model.Signal, error) {
	s, ok := m.sigs[id]
	if !ok {
		return nil, model.ErrSignalNotFound
	}
	return &s, nil
}

func (m *memSignals) ListSignals(_ context.Context, f model.SignalFilter) ([]model.Signal, error) {
	var out []model.Signal
	for _, s := range m.sigs {
		if f.Symbol != "" && s.Symbol != f.Symbol {
			continue
		}
		out = append(out, s)
	}
	return out, nil
}

func (m *memSignals) UpdateStatus(_ context.Context, u model.StatusUpdate) error {
	if _, ok := m.sigs[u.ID]; !ok {
		return model.ErrSignalNotFound
	}
	m.updates = append(m.updates, u)
	return nil
}

type memSource struct{ analysis map[string][]byte }

func (m memSource) LatestAnalysis(_ context.Context, symbol, tf string) ([]byte, error) {
	return m.analysis[model.SeriesKey(symbol, tf)], nil
}

func (m memSource) RecentCandles(context.Context, string, string, int) ([]model.Candle, error) {
	return []model.Candle{{Time: 1, Open: 1, High: 2, Low: 0.5, Close: 1.5}}, nil
}

func newTestAPI(t *testing.T) (*API, *memSignals, *gin.Engine) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	store := &memSignals{sigs: map[string]model.Signal{
		"XAUUSD-15m-1": {ID: "XAUUSD-15m-1", Symbol: "XAUUSD", Action: model.ActionBuy, Status: model.StatusActive},
		"EURUSD-1h-2":  {ID: "EURUSD-1h-2", Symbol: "EURUSD", Action: model.ActionSell, Status: model.StatusActive},
	}}
	src := memSource{analysis: map[string][]byte{"XAUUSD:15m": []byte(`{"trend":"bullish"}`)}}
	instruments := map[string]model.InstrumentSpec{
		"XAUUSD": {Symbol: "XAUUSD", Class: "metal"},
		"BTCUSD": {Symbol: "BTCUSD", Class: "crypto"},
	}
	a := &API{
		Hub:        NewHub(nil, src, instruments),
		Signals:    store,
		Status:     store,
		TOTPSecret: testSecret,
		now:        func() time.Time { return time.Date(2025, 3, 8, 12, 0, 0, 0, time.UTC) },
	}
	return a, store, a.Router()
}

func do(r http.Handler, method, path string, body interface{}) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func TestAPI_ListAndGetSignals(t *testing.T) {
	_, _, r := newTestAPI(t)

	rec := do(r, http.MethodGet, "/api/signals?symbol=XAUUSD", nil)
	var sigs []model.Signal
	json.Unmarshal(rec.Body.Bytes(), &sigs)
	if rec.Code != http.StatusOK || len(sigs) != 1 || sigs[0].Symbol != "XAUUSD" {
		t.Errorf("list: %d %s", rec.Code, rec.Body)
	}

	if rec := do(r, http.MethodGet, "/api/signals?status=bogus", nil); rec.Code != http.StatusBadRequest {
		t.Errorf("bad status filter: %d", rec.Code)
	}
	if rec := do(r, http.MethodGet, "/api/signals/EURUSD-1h-2", nil); rec.Code != http.StatusOK {
		t.Errorf("get: %d", rec.Code)
	}
	if rec := do(r, http.MethodGet, "/api/signals/nope", nil); rec.Code != http.StatusNotFound {
		t.Errorf("missing: %d", rec.Code)
	}
}

func TestAPI_StatusOverrideRequiresTOTP(t *testing.T) {
	_, store, r := newTestAPI(t)

	rec := do(r, http.MethodPost, "/api/signals/XAUUSD-15m-1/status",
		StatusRequest{Status: model.StatusHitSL, ExitPrice: 1990, Code: "000000"})
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("wrong code accepted: %d", rec.Code)
	}

	code, err := totp.GenerateCode(testSecret, time.Now())
	if err != nil {
		t.Fatal(err)
	}
	rec = do(r, http.MethodPost, "/api/signals/XAUUSD-15m-1/status",
		StatusRequest{Status: model.StatusHitSL, ExitPrice: 1990, Code: code})
	if rec.Code != http.StatusOK {
		t.Fatalf("valid override: %d %s", rec.Code, rec.Body)
	}
	if len(store.updates) != 1 || store.updates[0].ExitTime == nil || store.updates[0].ExitPrice != 1990 {
		t.Errorf("updates: %+v", store.updates)
	}

	rec = do(r, http.MethodPost, "/api/signals/XAUUSD-15m-1/status", StatusRequest{Status: "won", Code: code})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("invalid status: %d", rec.Code)
	}
	rec = do(r, http.MethodPost, "/api/signals/unknown/status", StatusRequest{Status: model.StatusHitTP1, Code: code})
	if rec.Code != http.StatusNotFound {
		t.Errorf("unknown id: %d", rec.Code)
	}
}

func TestAPI_StatusOverrideDisabledWithoutSecret(t *testing.T) {
	a, _, _ := newTestAPI(t)
	a.TOTPSecret = ""
	r := a.Router()
	if rec := do(r, http.MethodPost, "/api/signals/x/status", StatusRequest{}); rec.Code != http.StatusForbidden {
		t.Errorf("expected 403, got %d", rec.Code)
	}
}

func TestAPI_Analysis(t *testing.T) {
	_, _, r := newTestAPI(t)

	rec := do(r, http.MethodGet, "/api/analysis/XAUUSD/15m", nil)
	if rec.Code != http.StatusOK || rec.Body.String() != `{"trend":"bullish"}` {
		t.Errorf("analysis: %d %s", rec.Code, rec.Body)
	}
	if rec := do(r, http.MethodGet, "/api/analysis/XAUUSD/4h", nil); rec.Code != http.StatusNotFound {
		t.Errorf("missing analysis: %d", rec.Code)
	}
}

func TestAPI_InstrumentsCarryMarketState(t *testing.T) {
	_, _, r := newTestAPI(t)

	rec := do(r, http.MethodGet, "/api/instruments", nil)
	var out []struct {
		Symbol string      `json:"symbol"`
		Market MarketState `json:"market"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatal(err)
	}
	// a Saturday: crypto open, gold closed
	if len(out) != 2 || out[0].Symbol != "BTCUSD" || !out[0].Market.Open || out[1].Market.Open {
		t.Errorf("instruments: %+v", out)
	}
}

func TestAPI_Missed(t *testing.T) {
	a, _, r := newTestAPI(t)
	for i := 0; i < 4; i++ {
		a.Hub.broadcast("pub:signals", []byte(`{}`))
	}

	rec := do(r, http.MethodGet, "/api/missed?channel=pub:signals&from=2&to=3", nil)
	var envs []envelope
	if err := json.Unmarshal(rec.Body.Bytes(), &envs); err != nil {
		t.Fatalf("%v: %s", err, rec.Body)
	}
	if len(envs) != 2 || envs[0].ChannelSeq != 2 {
		t.Errorf("missed: %+v", envs)
	}
	if rec := do(r, http.MethodGet, "/api/missed?channel=pub:signals", nil); rec.Code != http.StatusBadRequest {
		t.Errorf("missing range: %d", rec.Code)
	}
}

func TestBuildSnapshot(t *testing.T) {
	src := memSource{analysis: map[string][]byte{"XAUUSD:15m": []byte(`{"trend":"bearish"}`)}}
	snap := BuildSnapshot(context.Background(), src, "XAUUSD", "15m", 10)
	if snap.Type != "SNAPSHOT" || len(snap.Candles) != 1 || string(snap.Analysis) != `{"trend":"bearish"}` {
		t.Errorf("snapshot: %+v", snap)
	}
	empty := BuildSnapshot(context.Background(), nil, "XAUUSD", "15m", 10)
	if empty.Candles == nil || empty.Analysis != nil {
		t.Errorf("nil source snapshot: %+v", empty)
	}
}
