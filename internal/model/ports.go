package model

import (
	"context"
	"time"
)

// ── Port Interfaces ──
// These interfaces decouple analysis and signal logic from concrete
// collaborators (Redis, SQLite, Postgres, HTTP news sources).

// SentimentProvider returns the news sentiment for a symbol. Implementations
// must honour ctx cancellation so callers can bound the request.
type SentimentProvider interface {
	Sentiment(ctx context.Context, symbol string) (*NewsSentiment, error)
}

// SignalSink accepts completed signals for persistence.
type SignalSink interface {
	// SaveSignal persists a new signal. Saving an id that is already stored
	// leaves the stored copy untouched and returns ErrSignalExists.
	SaveSignal(ctx context.Context, s *Signal) error
}

// SignalStatusWriter is the tracker's write path.
type SignalStatusWriter interface {
	// UpdateStatus overwrites status, exit price and exit time of one signal.
	// Applying the same update twice leaves the record unchanged.
	UpdateStatus(ctx context.Context, u StatusUpdate) error
}

// SignalReader reads persisted signals.
type SignalReader interface {
	// GetSignal returns ErrSignalNotFound for unknown ids.
	GetSignal(ctx context.Context, id string) (*Signal, error)

	// ListSignals returns newest first.
	ListSignals(ctx context.Context, f SignalFilter) ([]Signal, error)
}

// SignalStore is a full signal repository.
type SignalStore interface {
	SignalSink
	SignalStatusWriter
	SignalReader

	// Close releases underlying resources.
	Close() error
}

// CandleHistory persists and reloads candle series for backfill.
type CandleHistory interface {
	// SaveCandles upserts bars keyed by (symbol, tf, time).
	SaveCandles(ctx context.Context, symbol, tf string, candles []Candle) error

	// LoadCandles returns up to limit newest bars, oldest-first.
	LoadCandles(ctx context.Context, symbol, tf string, limit int) ([]Candle, error)
}

// AnalysisPublisher pushes rendered analysis payloads to chart consumers.
// Payloads are pre-encoded JSON so model does not import the analysis package.
type AnalysisPublisher interface {
	PublishAnalysis(ctx context.Context, symbol, tf string, payload []byte) error
}

// StreamConsumer consumes candle updates from a stream (e.g. Redis Streams).
type StreamConsumer interface {
	// EnsureConsumerGroup creates consumer groups on streams.
	EnsureConsumerGroup(ctx context.Context, streams []string) error

	// RecoverPending processes any unACKed messages from a previous crash.
	RecoverPending(ctx context.Context, streams []string, out chan<- CandleUpdate) error

	// ConsumeCandles reads updates via consumer groups.
	// Blocks until ctx is cancelled.
	ConsumeCandles(ctx context.Context, streams []string, out chan<- CandleUpdate) error

	// StartPELReclaimer runs periodic reclamation of stale PEL entries.
	StartPELReclaimer(ctx context.Context, streams []string, interval time.Duration,
		minIdle time.Duration, out chan<- CandleUpdate, onReclaim func(count int))

	// Close releases underlying resources.
	Close() error
}
