// Package wssim provides a WebSocket ingest client for the demo tick server
// (cmd/tickserver) and the random-walk generator that server runs. It lets
// the whole pipeline run offline without a broker feed.
//
// The expected JSON message format on the wire is model.Tick:
//
//	{"symbol":"XAUUSD","price":2351.42,"ts":"2025-03-04T10:15:00.123Z"}
package wssim

import (
	"context"
	"encoding/json"
	"log"
	"math"
	"math/rand"
	"net/url"
	"time"

	"github.com/gorilla/websocket"

	"smc-systemv1/internal/model"
)

// Config holds configuration for the simulated WS ingest.
type Config struct {
	// URL of the tick WebSocket server, e.g. "ws://localhost:9001/ws"
	URL string

	// ReconnectDelay is the initial delay before reconnection attempts.
	// Defaults to 2 seconds if zero.
	ReconnectDelay time.Duration

	// MaxReconnectDelay caps the exponential backoff. Defaults to 30s.
	MaxReconnectDelay time.Duration
}

func (c *Config) defaults() {
	if c.ReconnectDelay == 0 {
		c.ReconnectDelay = 2 * time.Second
	}
	if c.MaxReconnectDelay == 0 {
		c.MaxReconnectDelay = 30 * time.Second
	}
}

// Ingest connects to a plain-JSON WebSocket tick server and pushes ticks
// into tickCh.
type Ingest struct {
	cfg Config

	// Optional hook, called each time a reconnection happens.
	OnReconnect func()
}

// New creates a new Ingest. Returns an error if the URL is unparseable.
func New(cfg Config) (*Ingest, error) {
	cfg.defaults()
	if _, err := url.Parse(cfg.URL); err != nil {
		return nil, err
	}
	return &Ingest{cfg: cfg}, nil
}

// Start connects and streams ticks into tickCh. Blocks until ctx is
// cancelled. Reconnects automatically on disconnect.
func (ing *Ingest) Start(ctx context.Context, tickCh chan<- model.Tick) error {
	delay := ing.cfg.ReconnectDelay

	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		err := ing.runOnce(ctx, tickCh)
		if err == nil {
			return nil
		}

		log.Printf("[wssim] disconnected (%v), reconnecting in %s...", err, delay)
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

// runOnce makes a single connection attempt and reads until disconnect or ctx cancel.
func (ing *Ingest) runOnce(ctx context.Context, tickCh chan<- model.Tick) error {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, ing.cfg.URL, nil)
	if err != nil {
		return err
	}
	defer conn.Close()

	log.Printf("[wssim] connected to %s", ing.cfg.URL)

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
			if ctx.Err() != nil {
				return nil
			}
			return err
		}

		var tick model.Tick
		if err := json.Unmarshal(raw, &tick); err != nil {
			log.Printf("[wssim] parse error: %v (raw: %s)", err, raw)
			continue
		}
		if tick.Symbol == "" || tick.Price <= 0 {
			log.Printf("[wssim] skipping invalid tick %+v", tick)
			continue
		}
		if tick.TS.IsZero() {
			tick.TS = time.Now().UTC()
		}

		select {
		case tickCh <- tick:
		default:
			log.Println("[wssim] tickCh full, dropping tick")
		}
	}
}

// Walker produces random-walk prices per symbol, rounded to each
// instrument's decimals.
type Walker struct {
	specs  map[string]model.InstrumentSpec
	prices map[string]float64
	rng    *rand.Rand

	// StepPct is the maximum relative move per step. Default 0.0005.
	StepPct float64
	// Drift biases each step, e.g. 0.2 leans 20% of StepPct upward.
	Drift float64
}

// NewWalker seeds a walker with start prices.
func NewWalker(specs map[string]model.InstrumentSpec, start map[string]float64, seed int64) *Walker {
	prices := make(map[string]float64, len(start))
	for k, v := range start {
		prices[k] = v
	}
	return &Walker{
		specs:   specs,
		prices:  prices,
		rng:     rand.New(rand.NewSource(seed)),
		StepPct: 0.0005,
	}
}

// Next advances every symbol one step and returns the ticks.
func (w *Walker) Next(now time.Time) []model.Tick {
	out := make([]model.Tick, 0, len(w.prices))
	for sym, p := range w.prices {
		pct := (w.rng.Float64()*2 - 1 + w.Drift) * w.StepPct
		p = math.Max(p*(1+pct), 1e-6)
		if spec, ok := w.specs[sym]; ok {
			p = spec.Round(p)
		}
		w.prices[sym] = p
		out = append(out, model.Tick{Symbol: sym, Price: p, TS: now.UTC()})
	}
	return out
}
