// Package redis carries candle streams, signals and analysis payloads over
// Redis: streams for durable delivery, keys for latest state, pub/sub for
// live consumers.
package redis

import (
	"context"
	"fmt"
	"log"
	"time"

	goredis "github.com/go-redis/redis/v8"
)

// Config configures the Redis connection.
type Config struct {
	Addr     string // Redis address, e.g. "localhost:6379"
	Password string
	DB       int
}

// Connect creates a client and pings the server.
func Connect(cfg Config) (*goredis.Client, error) {
	client := goredis.NewClient(&goredis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	log.Printf("[redis] connected to %s", cfg.Addr)
	return client, nil
}

// Key and channel layout.
const (
	signalIndexKey     = "signals:index"
	signalStreamKey    = "signals:stream"
	signalStreamMaxLen = 5000

	// ChannelSignals carries every saved signal as JSON.
	ChannelSignals = "pub:signals"
	// ChannelSignalStatus carries StatusUpdate JSON.
	ChannelSignalStatus = "pub:signal_status"
	// PatternAnalysis matches every analysis channel.
	PatternAnalysis = "pub:analysis:*"
	// PatternCandles matches every candle channel.
	PatternCandles = "pub:candle:*"

	defaultLatestTTL = 30 * time.Minute
)

// SignalKey is the string key holding one signal's JSON.
func SignalKey(id string) string { return "signal:" + id }

func signalSymbolIndexKey(symbol string) string { return signalIndexKey + ":" + symbol }

// AnalysisChannel is the pub/sub channel for one series' drawables.
func AnalysisChannel(symbol, tf string) string { return "pub:analysis:" + symbol + ":" + tf }

// AnalysisLatestKey holds the newest drawables payload of a series.
func AnalysisLatestKey(symbol, tf string) string { return "analysis:latest:" + symbol + ":" + tf }

// CandleChannel is the pub/sub channel for live bars of a series.
func CandleChannel(symbol, tf string) string { return "pub:candle:" + tf + ":" + symbol }

// streamMaxLen keeps roughly a week of bars per stream, bounded to [500, 20000].
func streamMaxLen(tf time.Duration) int64 {
	if tf <= 0 {
		return 2000
	}
	n := int64(7*24*time.Hour/tf) + 100
	if n < 500 {
		n = 500
	}
	if n > 20000 {
		n = 20000
	}
	return n
}
