// Package tfbuilder provides an incremental timeframe resampler.
// It consumes base-timeframe candle updates and maintains "forming" higher
// timeframe bars that are updated in O(1) per bar per timeframe. Every
// change is emitted as a live update; when a bar arrives in a new bucket,
// the previous bar is re-emitted with Closed set.
package tfbuilder

import (
	"context"
	"log"
	"time"

	"smc-systemv1/internal/model"
)

// tfState holds the forming bar for one (symbol, timeframe) pair.
type tfState struct {
	bucket int64 // bucket start, epoch ms
	candle model.Candle
}

// Builder resamples base candles into multiple timeframes.
// Not goroutine-safe: designed to run in a single goroutine (single consumer).
type Builder struct {
	tfs    []time.Duration
	labels []string

	// states[tfIdx][symbol]
	states []map[string]*tfState

	// StaleTolerance rejects bars whose bucket is behind the forming bucket
	// by more than this. 0 disables the check.
	StaleTolerance time.Duration

	// Metrics hooks
	OnClosed      func(u model.CandleUpdate) // finalized bar (optional)
	OnStaleCandle func()                     // stale bar rejected (optional)
}

// New creates a builder for the given target timeframes.
func New(tfs []time.Duration) *Builder {
	b := &Builder{
		tfs:    tfs,
		labels: make([]string, len(tfs)),
		states: make([]map[string]*tfState, len(tfs)),
	}
	for i, d := range tfs {
		b.labels[i] = model.TimeframeLabel(d)
		b.states[i] = make(map[string]*tfState, 16)
	}
	return b
}

// Run consumes base updates from in and sends resampled updates to out.
// Blocks until ctx is cancelled or in is closed.
func (b *Builder) Run(ctx context.Context, in <-chan model.CandleUpdate, out chan<- model.CandleUpdate) {
	for {
		select {
		case <-ctx.Done():
			b.flushAll(out)
			return
		case u, ok := <-in:
			if !ok {
				b.flushAll(out)
				return
			}
			b.Process(u, out)
		}
	}
}

// Process handles one base update against all timeframes.
func (b *Builder) Process(u model.CandleUpdate, out chan<- model.CandleUpdate) {
	if u.Kind == model.UpdateReplace {
		b.replace(u, out)
		return
	}
	for _, c := range u.Candles {
		b.process(u.Symbol, c, out)
	}
}

// replace rebuilds every timeframe from a full history batch and resets the
// forming state to the newest bucket.
func (b *Builder) replace(u model.CandleUpdate, out chan<- model.CandleUpdate) {
	for i, d := range b.tfs {
		bars := Resample(u.Candles, d)
		if len(bars) == 0 {
			delete(b.states[i], u.Symbol)
			continue
		}
		last := bars[len(bars)-1]
		b.states[i][u.Symbol] = &tfState{bucket: last.Time, candle: last}
		emit(out, model.CandleUpdate{
			Symbol:    u.Symbol,
			Timeframe: b.labels[i],
			Kind:      model.UpdateReplace,
			Candles:   bars,
		})
	}
}

// This is the hot path: O(1) per timeframe.
func (b *Builder) process(symbol string, c model.Candle, out chan<- model.CandleUpdate) {
	for i, d := range b.tfs {
		bucket := model.BucketStart(c.Time, d)
		st, exists := b.states[i][symbol]

		if b.StaleTolerance > 0 && exists && bucket < st.bucket {
			lag := time.Duration(st.bucket-bucket) * time.Millisecond
			if lag > b.StaleTolerance {
				if b.OnStaleCandle != nil {
					b.OnStaleCandle()
				}
				continue
			}
		}
		if exists && bucket < st.bucket {
			// late bar inside tolerance: the bucket already closed
			continue
		}

		if exists && bucket > st.bucket {
			closed := b.update(symbol, i, st.candle, true)
			emit(out, closed)
			if b.OnClosed != nil {
				b.OnClosed(closed)
			}
			exists = false
		}

		if !exists {
			nc := c
			nc.Time = bucket
			b.states[i][symbol] = &tfState{bucket: bucket, candle: nc}
			emit(out, b.update(symbol, i, nc, false))
			continue
		}

		fc := &st.candle
		if c.High > fc.High {
			fc.High = c.High
		}
		if c.Low < fc.Low {
			fc.Low = c.Low
		}
		fc.Close = c.Close
		fc.Volume += c.Volume
		emit(out, b.update(symbol, i, *fc, false))
	}
}

func (b *Builder) update(symbol string, i int, c model.Candle, closed bool) model.CandleUpdate {
	return model.CandleUpdate{
		Symbol:    symbol,
		Timeframe: b.labels[i],
		Kind:      model.UpdateLive,
		Candles:   []model.Candle{c},
		Closed:    closed,
	}
}

// flushAll emits every forming bar as closed and clears state.
func (b *Builder) flushAll(out chan<- model.CandleUpdate) {
	for i := range b.tfs {
		for sym, st := range b.states[i] {
			emit(out, b.update(sym, i, st.candle, true))
			delete(b.states[i], sym)
		}
	}
}

// emit sends an update to the output channel. Non-blocking to avoid deadlocks.
func emit(out chan<- model.CandleUpdate, u model.CandleUpdate) {
	select {
	case out <- u:
	default:
		log.Printf("[tfbuilder] out full, dropping %s kind=%s", u.Key(), u.Kind)
	}
}

// TFs returns the timeframe labels the builder produces.
func (b *Builder) TFs() []string {
	return b.labels
}

// Resample aggregates an oldest-first series into buckets of d.
// The input must be time-ordered; the output is oldest-first.
func Resample(candles []model.Candle, d time.Duration) []model.Candle {
	var out []model.Candle
	for _, c := range candles {
		bucket := model.BucketStart(c.Time, d)
		n := len(out)
		if n > 0 && out[n-1].Time == bucket {
			last := &out[n-1]
			if c.High > last.High {
				last.High = c.High
			}
			if c.Low < last.Low {
				last.Low = c.Low
			}
			last.Close = c.Close
			last.Volume += c.Volume
			continue
		}
		nc := c
		nc.Time = bucket
		out = append(out, nc)
	}
	return out
}
