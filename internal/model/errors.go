package model

import "errors"

var (
	// ErrInsufficientData means too few candles for a reliable pass. Callers
	// report it as "no result", never as a failure.
	ErrInsufficientData = errors.New("insufficient candle data")

	// ErrSentimentUnavailable wraps news fetch timeouts and failures.
	ErrSentimentUnavailable = errors.New("sentiment unavailable")

	// ErrMalformedCandle is returned when a bar violates OHLC invariants or ordering.
	ErrMalformedCandle = errors.New("malformed candle")

	// ErrStaleCandle is returned for a live update older than the newest stored bar.
	ErrStaleCandle = errors.New("stale candle")

	// ErrSignalNotFound is returned by signal stores for an unknown id.
	ErrSignalNotFound = errors.New("signal not found")

	// ErrSignalExists is returned by SaveSignal when the id is already
	// stored. The stored row is left untouched.
	ErrSignalExists = errors.New("signal already exists")

	// ErrUnknownInstrument is returned when no InstrumentSpec exists for a symbol.
	ErrUnknownInstrument = errors.New("unknown instrument")
)
