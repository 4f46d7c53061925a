package redis

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"

	goredis "github.com/go-redis/redis/v8"

	"smc-systemv1/internal/model"
)

// Publisher writes candle updates and analysis payloads.
// Implements model.AnalysisPublisher.
type Publisher struct {
	client *goredis.Client

	// Optional metrics hooks
	OnWrite func(kind string)
	OnError func(kind string)
}

// NewPublisher wraps a connected client.
func NewPublisher(client *goredis.Client) *Publisher {
	return &Publisher{client: client}
}

// Client returns the underlying client for health checks.
func (p *Publisher) Client() *goredis.Client { return p.client }

// PublishAnalysis stores the latest drawables of a series and publishes them.
func (p *Publisher) PublishAnalysis(ctx context.Context, symbol, tf string, payload []byte) error {
	data := string(payload)
	pipe := p.client.Pipeline()
	pipe.Set(ctx, AnalysisLatestKey(symbol, tf), data, defaultLatestTTL)
	pipe.Publish(ctx, AnalysisChannel(symbol, tf), data)
	if _, err := pipe.Exec(ctx); err != nil {
		p.failed("analysis")
		return fmt.Errorf("redis publish analysis %s:%s: %w", symbol, tf, err)
	}
	p.wrote("analysis")
	return nil
}

// LatestAnalysis returns the newest drawables payload, or nil when absent.
func (p *Publisher) LatestAnalysis(ctx context.Context, symbol, tf string) ([]byte, error) {
	b, err := p.client.Get(ctx, AnalysisLatestKey(symbol, tf)).Bytes()
	if errors.Is(err, goredis.Nil) {
		return nil, nil
	}
	return b, err
}

// WriteUpdate publishes a candle update. Closed bars and replace batches
// also go to the series stream for the engine's consumer group; forming
// bars are pub/sub only.
func (p *Publisher) WriteUpdate(ctx context.Context, u model.CandleUpdate) error {
	data := string(u.JSON())
	pipe := p.client.Pipeline()
	if u.Kind == model.UpdateReplace || u.Closed {
		tf, _ := model.ParseTimeframe(u.Timeframe)
		pipe.XAdd(ctx, &goredis.XAddArgs{
			Stream: u.StreamKey(),
			MaxLen: streamMaxLen(tf),
			Approx: true,
			Values: map[string]interface{}{"data": data},
		})
	}
	pipe.Publish(ctx, CandleChannel(u.Symbol, u.Timeframe), data)
	if _, err := pipe.Exec(ctx); err != nil {
		p.failed("candle")
		return fmt.Errorf("redis write %s: %w", u.Key(), err)
	}
	p.wrote("candle")
	return nil
}

// RunCandles writes every update from ch. Blocks until ctx is cancelled or
// ch is closed.
func (p *Publisher) RunCandles(ctx context.Context, ch <-chan model.CandleUpdate) {
	for {
		select {
		case <-ctx.Done():
			return
		case u, ok := <-ch:
			if !ok {
				return
			}
			if err := p.WriteUpdate(ctx, u); err != nil {
				log.Printf("[redis] %v", err)
			}
		}
	}
}

func (p *Publisher) wrote(kind string) {
	if p.OnWrite != nil {
		p.OnWrite(kind)
	}
}

func (p *Publisher) failed(kind string) {
	if p.OnError != nil {
		p.OnError(kind)
	}
}

// RecentCandles rebuilds up to limit newest closed bars of a series from its
// stream, oldest first. Replace batches and later live bars are merged by
// candle time.
func (p *Publisher) RecentCandles(ctx context.Context, symbol, tf string, limit int) ([]model.Candle, error) {
	if limit <= 0 {
		limit = 500
	}
	msgs, err := p.client.XRevRangeN(ctx, model.CandleStreamKey(symbol, tf), "+", "-", int64(limit)).Result()
	if err != nil {
		return nil, fmt.Errorf("redis read stream %s:%s: %w", symbol, tf, err)
	}

	byTime := make(map[int64]model.Candle)
	// oldest message first so later writes win
	for i := len(msgs) - 1; i >= 0; i-- {
		u, err := DecodeUpdate(msgs[i].Values)
		if err != nil {
			continue
		}
		if u.Kind == model.UpdateReplace {
			byTime = make(map[int64]model.Candle, len(u.Candles))
		}
		for _, c := range u.Candles {
			byTime[c.Time] = c
		}
	}

	out := make([]model.Candle, 0, len(byTime))
	for _, c := range byTime {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Time < out[j].Time })
	if len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out, nil
}
