package model

import (
	"encoding/json"
	"fmt"
	"math"
	"time"
)

// Candle is one OHLC bar. Time is the bucket start in epoch milliseconds.
type Candle struct {
	Time   int64   `json:"time"`
	Open   float64 `json:"open"`
	High   float64 `json:"high"`
	Low    float64 `json:"low"`
	Close  float64 `json:"close"`
	Volume float64 `json:"volume"`
}

// TS returns the bucket start as a UTC time.
func (c Candle) TS() time.Time {
	return time.UnixMilli(c.Time).UTC()
}

// IsBullish reports close > open.
func (c Candle) IsBullish() bool { return c.Close > c.Open }

// IsBearish reports close < open.
func (c Candle) IsBearish() bool { return c.Close < c.Open }

// Validate checks the OHLC invariants of a single bar.
func (c Candle) Validate() error {
	for _, v := range [...]float64{c.Open, c.High, c.Low, c.Close, c.Volume} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("%w: non-finite value at t=%d", ErrMalformedCandle, c.Time)
		}
	}
	if c.High < math.Max(c.Open, c.Close) {
		return fmt.Errorf("%w: high %.5f below body at t=%d", ErrMalformedCandle, c.High, c.Time)
	}
	if c.Low > math.Min(c.Open, c.Close) {
		return fmt.Errorf("%w: low %.5f above body at t=%d", ErrMalformedCandle, c.Low, c.Time)
	}
	if c.Volume < 0 {
		return fmt.Errorf("%w: negative volume at t=%d", ErrMalformedCandle, c.Time)
	}
	return nil
}

// ValidateSeries validates every bar and enforces strictly increasing Time.
func ValidateSeries(candles []Candle) error {
	for i := range candles {
		if err := candles[i].Validate(); err != nil {
			return err
		}
		if i > 0 && candles[i].Time <= candles[i-1].Time {
			return fmt.Errorf("%w: time %d not after %d at index %d",
				ErrMalformedCandle, candles[i].Time, candles[i-1].Time, i)
		}
	}
	return nil
}

// UpdateKind tags a candle update as a live bar change or a full history replace.
type UpdateKind string

const (
	UpdateLive    UpdateKind = "live"
	UpdateReplace UpdateKind = "replace"
)

// CandleUpdate is what feeds produce: either one incremental bar (live) or
// an oldest-first batch that replaces the whole series.
type CandleUpdate struct {
	Symbol    string     `json:"symbol"`
	Timeframe string     `json:"tf"`
	Kind      UpdateKind `json:"kind"`
	Candles   []Candle   `json:"candles"`
	// Closed is set by feeds that know the live bar's bucket has finished.
	Closed bool `json:"closed,omitempty"`
}

// Key returns "symbol:tf".
func (u *CandleUpdate) Key() string {
	return SeriesKey(u.Symbol, u.Timeframe)
}

// StreamKey returns the Redis stream key: "candle:{tf}:{symbol}".
func (u *CandleUpdate) StreamKey() string {
	return CandleStreamKey(u.Symbol, u.Timeframe)
}

// JSON returns the JSON-encoded update (ignoring errors for hot-path usage).
func (u *CandleUpdate) JSON() []byte {
	b, _ := json.Marshal(u)
	return b
}

// Last returns the newest candle of the update, or false when empty.
func (u *CandleUpdate) Last() (Candle, bool) {
	if len(u.Candles) == 0 {
		return Candle{}, false
	}
	return u.Candles[len(u.Candles)-1], true
}

// SeriesKey identifies one (symbol, timeframe) series.
func SeriesKey(symbol, tf string) string {
	return symbol + ":" + tf
}

// CandleStreamKey returns the Redis stream carrying updates for a series.
func CandleStreamKey(symbol, tf string) string {
	return "candle:" + tf + ":" + symbol
}
