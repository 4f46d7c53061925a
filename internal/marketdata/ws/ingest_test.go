package ws

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"smc-systemv1/internal/model"
)

const klineJSON = `{"stream":"btcusdt@kline_1m","data":{"e":"kline","s":"BTCUSDT","k":{"t":1700000040000,"i":"1m","o":"37000.1","h":"37010","l":"36990.5","c":"37005.2","v":"12.5","x":true}}}`

var symbols = map[string]string{"BTCUSDT": "BTCUSD"}

func TestParseKline(t *testing.T) {
	u, err := ParseKline([]byte(klineJSON), symbols)
	if err != nil {
		t.Fatal(err)
	}
	if u.Symbol != "BTCUSD" || u.Timeframe != "1m" || !u.Closed || u.Kind != model.UpdateLive {
		t.Errorf("tags: %+v", u)
	}
	c := u.Candles[0]
	if c.Time != 1700000040000 || c.Open != 37000.1 || c.High != 37010 || c.Low != 36990.5 || c.Close != 37005.2 || c.Volume != 12.5 {
		t.Errorf("candle: %+v", c)
	}
}

func TestParseKline_Rejects(t *testing.T) {
	if _, err := ParseKline([]byte(strings.Replace(klineJSON, "BTCUSDT", "ETHUSDT", 1)), symbols); err == nil {
		t.Error("unmapped symbol accepted")
	}
	if _, err := ParseKline([]byte(strings.Replace(klineJSON, `"o":"37000.1"`, `"o":"abc"`, 1)), symbols); err == nil {
		t.Error("bad price accepted")
	}
	if _, err := ParseKline([]byte(`{"data":{"e":"trade"}}`), symbols); err == nil {
		t.Error("non-kline event accepted")
	}
}

func TestStreamURL(t *testing.T) {
	ing, err := New(IngestConfig{BaseURL: "wss://example.test/stream", Symbols: symbols, Timeframes: []string{"15m"}})
	if err != nil {
		t.Fatal(err)
	}
	u, err := ing.StreamURL()
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(u, "streams=btcusdt%40kline_15m") {
		t.Errorf("url: %s", u)
	}
}

func TestIngest_StreamsFromServer(t *testing.T) {
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		conn.WriteMessage(websocket.TextMessage, []byte(klineJSON))
		conn.ReadMessage() // hold until client closes
	}))
	defer srv.Close()

	ing, err := New(IngestConfig{
		BaseURL:    "ws" + strings.TrimPrefix(srv.URL, "http"),
		Symbols:    symbols,
		Timeframes: []string{"1m"},
	})
	if err != nil {
		t.Fatal(err)
	}

	out := make(chan model.CandleUpdate, 4)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		ing.Start(ctx, out)
		close(done)
	}()

	select {
	case u := <-out:
		if u.Symbol != "BTCUSD" {
			t.Errorf("symbol: %s", u.Symbol)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no update received")
	}
	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Start did not return after cancel")
	}
}
