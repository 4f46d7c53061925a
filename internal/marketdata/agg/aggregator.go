// Package agg builds base-timeframe candles from last-price ticks. Feeds
// that only publish prices (FX bridges, the simulator) go through here
// before reaching the candle store.
package agg

import (
	"context"
	"log"
	"sync"
	"time"

	"smc-systemv1/internal/model"
)

// candleState holds the forming bar for one symbol.
type candleState struct {
	bucket int64 // epoch ms
	candle model.Candle
}

// Aggregator turns ticks into live candle updates. Every tick re-emits the
// forming bar; the bar is emitted once more with Closed set when its bucket
// rolls over. Volume counts ticks.
type Aggregator struct {
	mu     sync.Mutex
	states map[string]*candleState

	tf    time.Duration
	label string
	now   func() time.Time

	flushInterval time.Duration

	// Metrics hooks (optional, set externally)
	OnDroppedTick func()
}

// New creates an aggregator producing bars of width tf.
func New(tf time.Duration) *Aggregator {
	return &Aggregator{
		states:        make(map[string]*candleState),
		tf:            tf,
		label:         model.TimeframeLabel(tf),
		now:           time.Now,
		flushInterval: 250 * time.Millisecond, // check frequency for bucket rollover
	}
}

// Timeframe returns the label of produced bars.
func (a *Aggregator) Timeframe() string { return a.label }

// Run consumes ticks and sends updates to out. Blocks until ctx is
// cancelled or tickCh is closed.
func (a *Aggregator) Run(ctx context.Context, tickCh <-chan model.Tick, out chan<- model.CandleUpdate) {
	ticker := time.NewTicker(a.flushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			a.flushAll(out)
			return

		case tick, ok := <-tickCh:
			if !ok {
				a.flushAll(out)
				return
			}
			a.processTick(tick, out)

		case <-ticker.C:
			a.flushOld(out)
		}
	}
}

func (a *Aggregator) processTick(tick model.Tick, out chan<- model.CandleUpdate) {
	if tick.Symbol == "" || tick.Price <= 0 {
		return
	}
	bucket := model.BucketStart(tick.TS.UnixMilli(), a.tf)

	a.mu.Lock()
	state, exists := a.states[tick.Symbol]

	if exists && bucket < state.bucket {
		// late tick for a closed bucket
		a.mu.Unlock()
		if a.OnDroppedTick != nil {
			a.OnDroppedTick()
		}
		return
	}

	if exists && bucket > state.bucket {
		a.emit(tick.Symbol, state.candle, true, out)
		exists = false
	}

	if !exists {
		state = &candleState{
			bucket: bucket,
			candle: model.Candle{
				Time:   bucket,
				Open:   tick.Price,
				High:   tick.Price,
				Low:    tick.Price,
				Close:  tick.Price,
				Volume: 1,
			},
		}
		a.states[tick.Symbol] = state
	} else {
		c := &state.candle
		if tick.Price > c.High {
			c.High = tick.Price
		}
		if tick.Price < c.Low {
			c.Low = tick.Price
		}
		c.Close = tick.Price
		c.Volume++
	}
	a.emit(tick.Symbol, state.candle, false, out)
	a.mu.Unlock()
}

// flushOld closes bars whose bucket has ended on the wall clock, so a quiet
// market still finalizes its last bar.
func (a *Aggregator) flushOld(out chan<- model.CandleUpdate) {
	now := a.now().UnixMilli()

	a.mu.Lock()
	defer a.mu.Unlock()

	for sym, state := range a.states {
		if state.bucket+a.tf.Milliseconds() <= now {
			a.emit(sym, state.candle, true, out)
			delete(a.states, sym)
		}
	}
}

func (a *Aggregator) flushAll(out chan<- model.CandleUpdate) {
	a.mu.Lock()
	defer a.mu.Unlock()

	for sym, state := range a.states {
		a.emit(sym, state.candle, true, out)
		delete(a.states, sym)
	}
}

// emit is non-blocking to avoid deadlocks. Caller holds a.mu.
func (a *Aggregator) emit(symbol string, c model.Candle, closed bool, out chan<- model.CandleUpdate) {
	u := model.CandleUpdate{
		Symbol:    symbol,
		Timeframe: a.label,
		Kind:      model.UpdateLive,
		Candles:   []model.Candle{c},
		Closed:    closed,
	}
	select {
	case out <- u:
	default:
		log.Printf("[agg] out full, dropping %s t=%d", u.Key(), c.Time)
	}
}
