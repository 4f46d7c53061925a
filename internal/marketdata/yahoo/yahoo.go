// Package yahoo loads candle history from Yahoo Finance charts.
package yahoo

import (
	"context"
	"fmt"
	"time"

	finance "github.com/piquette/finance-go"
	"github.com/piquette/finance-go/chart"
	"github.com/piquette/finance-go/datetime"

	"smc-systemv1/internal/marketdata/tfbuilder"
	"smc-systemv1/internal/model"
)

// Yahoo serves a fixed set of bar sizes. Other timeframes are fetched at the
// largest native size that divides them and resampled.
var native = []struct {
	d        time.Duration
	interval datetime.Interval
	maxSpan  time.Duration // history Yahoo keeps at this size
}{
	{24 * time.Hour, datetime.OneDay, 0},
	{time.Hour, datetime.OneHour, 720 * 24 * time.Hour},
	{30 * time.Minute, datetime.ThirtyMins, 59 * 24 * time.Hour},
	{15 * time.Minute, datetime.FifteenMins, 59 * 24 * time.Hour},
	{5 * time.Minute, datetime.FiveMins, 59 * 24 * time.Hour},
	{time.Minute, datetime.OneMin, 7 * 24 * time.Hour},
}

// Plan picks the native bar size for tf and the start of a window that
// should hold at least bars closed bars. Weekends are covered by doubling
// the span.
func Plan(tf time.Duration, bars int, now time.Time) (datetime.Interval, time.Duration, time.Time, error) {
	for _, n := range native {
		if tf < n.d || tf%n.d != 0 {
			continue
		}
		span := 2 * time.Duration(bars) * tf
		if n.maxSpan > 0 && span > n.maxSpan {
			span = n.maxSpan
		}
		return n.interval, n.d, now.Add(-span), nil
	}
	return "", 0, time.Time{}, fmt.Errorf("yahoo: unsupported timeframe %s", model.TimeframeLabel(tf))
}

// History fetches up to bars candles of width tf for a Yahoo symbol, oldest
// first. Bars with missing prices are skipped.
func History(ctx context.Context, symbol string, tf time.Duration, bars int) ([]model.Candle, error) {
	now := time.Now().UTC()
	interval, base, start, err := Plan(tf, bars, now)
	if err != nil {
		return nil, err
	}

	iter := chart.Get(&chart.Params{
		Symbol:   symbol,
		Start:    datetime.New(&start),
		End:      datetime.New(&now),
		Interval: interval,
	})
	var out []model.Candle
	for iter.Next() {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if c, ok := FromBar(iter.Bar()); ok {
			out = append(out, c)
		}
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("yahoo history %s: %w", symbol, err)
	}

	if tf != base {
		out = tfbuilder.Resample(out, tf)
	}
	if len(out) > bars {
		out = out[len(out)-bars:]
	}
	return out, nil
}

// FromBar converts a chart bar. Returns false for bars without prices.
func FromBar(b *finance.ChartBar) (model.Candle, bool) {
	if b == nil || b.Open.IsZero() || b.Close.IsZero() {
		return model.Candle{}, false
	}
	c := model.Candle{
		Time:   int64(b.Timestamp) * 1000,
		Open:   b.Open.InexactFloat64(),
		High:   b.High.InexactFloat64(),
		Low:    b.Low.InexactFloat64(),
		Close:  b.Close.InexactFloat64(),
		Volume: float64(b.Volume),
	}
	return c, c.Validate() == nil
}
