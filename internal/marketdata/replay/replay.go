// Package replay backfills the candle store from persisted history and can
// replay that history bar-by-bar at a chosen speed.
package replay

import (
	"context"
	"fmt"
	"log"
	"time"

	"smc-systemv1/internal/model"
)

// Replayer reads candle history and emits it as updates.
type Replayer struct {
	history model.CandleHistory
}

// New creates a Replayer backed by a history store.
func New(history model.CandleHistory) *Replayer {
	return &Replayer{history: history}
}

// Backfill loads up to limit bars for each series and sends one replace
// update per non-empty series. Returns the number of series sent.
func (r *Replayer) Backfill(ctx context.Context, symbols, tfs []string, limit int, out chan<- model.CandleUpdate) (int, error) {
	sent := 0
	for _, sym := range symbols {
		for _, tf := range tfs {
			candles, err := r.history.LoadCandles(ctx, sym, tf, limit)
			if err != nil {
				return sent, fmt.Errorf("replay: load %s:%s: %w", sym, tf, err)
			}
			if len(candles) == 0 {
				continue
			}
			u := model.CandleUpdate{Symbol: sym, Timeframe: tf, Kind: model.UpdateReplace, Candles: candles}
			select {
			case out <- u:
				sent++
			case <-ctx.Done():
				return sent, ctx.Err()
			}
		}
	}
	log.Printf("[replay] backfilled %d series", sent)
	return sent, nil
}

// Run replays one series as live updates. speed controls the playback rate:
// 1.0 = real-time, 10.0 = 10x, 0 = as fast as possible. Gaps are capped at 5s.
func (r *Replayer) Run(ctx context.Context, symbol, tf string, limit int, speed float64, out chan<- model.CandleUpdate) error {
	candles, err := r.history.LoadCandles(ctx, symbol, tf, limit)
	if err != nil {
		return fmt.Errorf("replay: load %s:%s: %w", symbol, tf, err)
	}
	if len(candles) == 0 {
		log.Printf("[replay] no candles for %s:%s", symbol, tf)
		return nil
	}
	log.Printf("[replay] %s:%s %d candles, speed=%.1fx", symbol, tf, len(candles), speed)

	var prev int64
	emitted := 0
	for _, c := range candles {
		if speed > 0 && prev > 0 {
			gap := time.Duration(float64(time.Duration(c.Time-prev)*time.Millisecond) / speed)
			if gap > 5*time.Second {
				gap = 5 * time.Second
			}
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(gap):
			}
		}
		prev = c.Time

		u := model.CandleUpdate{
			Symbol:    symbol,
			Timeframe: tf,
			Kind:      model.UpdateLive,
			Candles:   []model.Candle{c},
			Closed:    true,
		}
		select {
		case out <- u:
			emitted++
		case <-ctx.Done():
			log.Printf("[replay] cancelled after %d candles", emitted)
			return ctx.Err()
		}
	}

	log.Printf("[replay] completed: %d candles replayed", emitted)
	return nil
}
