// Package ws streams closed and forming klines from an exchange-style
// websocket (combined-stream kline format) into candle updates.
//
// Wire format per message:
//
//	{"stream":"btcusdt@kline_1m","data":{"e":"kline","s":"BTCUSDT",
//	  "k":{"t":1700000000000,"i":"1m","o":"37000.1","h":"37010.0",
//	       "l":"36990.5","c":"37005.2","v":"12.3","x":false}}}
package ws

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"smc-systemv1/internal/model"
)

// IngestConfig holds configuration for the kline ingest.
type IngestConfig struct {
	// BaseURL of the combined stream endpoint, e.g. "wss://stream.binance.com:9443/stream".
	BaseURL string

	// Symbols maps feed symbols (e.g. "BTCUSDT") to instrument symbols ("BTCUSD").
	Symbols map[string]string

	// Timeframes to subscribe, e.g. ["1m", "15m"].
	Timeframes []string

	ReconnectDelay    time.Duration // default 2s
	MaxReconnectDelay time.Duration // default 30s
}

// Ingest connects to the kline websocket and pushes updates into out.
type Ingest struct {
	cfg IngestConfig

	// Optional metrics hooks
	OnReconnect func()
}

// New creates a new Ingest instance.
func New(cfg IngestConfig) (*Ingest, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("ws ingest: empty base url")
	}
	if len(cfg.Symbols) == 0 || len(cfg.Timeframes) == 0 {
		return nil, fmt.Errorf("ws ingest: no symbols or timeframes")
	}
	if cfg.ReconnectDelay == 0 {
		cfg.ReconnectDelay = 2 * time.Second
	}
	if cfg.MaxReconnectDelay == 0 {
		cfg.MaxReconnectDelay = 30 * time.Second
	}
	return &Ingest{cfg: cfg}, nil
}

// StreamURL builds the combined-stream URL for all symbol/timeframe pairs.
func (ing *Ingest) StreamURL() (string, error) {
	u, err := url.Parse(ing.cfg.BaseURL)
	if err != nil {
		return "", fmt.Errorf("ws ingest: parse url: %w", err)
	}
	var streams []string
	for feed := range ing.cfg.Symbols {
		for _, tf := range ing.cfg.Timeframes {
			streams = append(streams, strings.ToLower(feed)+"@kline_"+tf)
		}
	}
	q := u.Query()
	q.Set("streams", strings.Join(streams, "/"))
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// Start connects and streams updates into out. Blocks until ctx is
// cancelled; reconnects with exponential backoff on disconnect.
func (ing *Ingest) Start(ctx context.Context, out chan<- model.CandleUpdate) error {
	streamURL, err := ing.StreamURL()
	if err != nil {
		return err
	}
	delay := ing.cfg.ReconnectDelay

	for {
		err := ing.runOnce(ctx, streamURL, out)
		if ctx.Err() != nil {
			return nil
		}
		log.Printf("[ws] disconnected (%v), reconnecting in %s", err, delay)
		if ing.OnReconnect != nil {
			ing.OnReconnect()
		}
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(delay):
		}
		delay *= 2
		if delay > ing.cfg.MaxReconnectDelay {
			delay = ing.cfg.MaxReconnectDelay
		}
	}
}

func (ing *Ingest) runOnce(ctx context.Context, streamURL string, out chan<- model.CandleUpdate) error {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, streamURL, nil)
	if err != nil {
		return err
	}
	defer conn.Close()
	log.Printf("[ws] connected, %d symbols x %d timeframes", len(ing.cfg.Symbols), len(ing.cfg.Timeframes))

	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
			conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, "shutdown"))
			conn.Close()
		case <-stop:
		}
	}()

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		u, err := ParseKline(raw, ing.cfg.Symbols)
		if err != nil {
			log.Printf("[ws] parse error: %v", err)
			continue
		}
		select {
		case out <- u:
		default:
			log.Printf("[ws] out full, dropping %s", u.Key())
		}
	}
}

type streamMsg struct {
	Stream string `json:"stream"`
	Data   struct {
		Event  string   `json:"e"`
		Symbol string   `json:"s"`
		Kline  klineMsg `json:"k"`
	} `json:"data"`
}

type klineMsg struct {
	Start    int64  `json:"t"`
	Interval string `json:"i"`
	Open     string `json:"o"`
	High     string `json:"h"`
	Low      string `json:"l"`
	Close    string `json:"c"`
	Volume   string `json:"v"`
	Closed   bool   `json:"x"`
}

// ParseKline converts one combined-stream kline message into a live update.
func ParseKline(raw []byte, symbols map[string]string) (model.CandleUpdate, error) {
	var msg streamMsg
	if err := json.Unmarshal(raw, &msg); err != nil {
		return model.CandleUpdate{}, err
	}
	if msg.Data.Event != "kline" {
		return model.CandleUpdate{}, fmt.Errorf("unexpected event %q", msg.Data.Event)
	}
	sym, ok := symbols[strings.ToUpper(msg.Data.Symbol)]
	if !ok {
		return model.CandleUpdate{}, fmt.Errorf("unmapped feed symbol %q", msg.Data.Symbol)
	}

	k := msg.Data.Kline
	var c model.Candle
	c.Time = k.Start
	fields := []struct {
		dst *float64
		src string
	}{{&c.Open, k.Open}, {&c.High, k.High}, {&c.Low, k.Low}, {&c.Close, k.Close}, {&c.Volume, k.Volume}}
	for _, f := range fields {
		v, err := strconv.ParseFloat(f.src, 64)
		if err != nil {
			return model.CandleUpdate{}, fmt.Errorf("kline %s: %w", msg.Stream, err)
		}
		*f.dst = v
	}

	return model.CandleUpdate{
		Symbol:    sym,
		Timeframe: k.Interval,
		Kind:      model.UpdateLive,
		Candles:   []model.Candle{c},
		Closed:    k.Closed,
	}, nil
}
