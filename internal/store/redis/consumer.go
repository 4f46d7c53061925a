package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"time"

	goredis "github.com/go-redis/redis/v8"

	"smc-systemv1/internal/model"
)

// ConsumerConfig names the consumer group and this consumer.
type ConsumerConfig struct {
	Group    string // consumer group name, e.g. "smcengine"
	Consumer string // unique consumer name, e.g. hostname
}

// Consumer reads candle updates from streams via consumer groups.
// Implements model.StreamConsumer.
type Consumer struct {
	client   *goredis.Client
	group    string
	consumer string
}

// NewConsumer wraps a connected client.
func NewConsumer(client *goredis.Client, cfg ConsumerConfig) *Consumer {
	if cfg.Group == "" {
		cfg.Group = "smcengine"
	}
	if cfg.Consumer == "" {
		cfg.Consumer = "worker-1"
	}
	log.Printf("[redis-consumer] group=%s consumer=%s", cfg.Group, cfg.Consumer)
	return &Consumer{client: client, group: cfg.Group, consumer: cfg.Consumer}
}

// StreamsFor lists the candle stream keys of every symbol/timeframe pair.
func StreamsFor(symbols, tfs []string) []string {
	out := make([]string, 0, len(symbols)*len(tfs))
	for _, sym := range symbols {
		for _, tf := range tfs {
			out = append(out, model.CandleStreamKey(sym, tf))
		}
	}
	return out
}

// EnsureConsumerGroup creates the group on each stream if missing.
// Fresh groups start at "$" (only new messages).
func (c *Consumer) EnsureConsumerGroup(ctx context.Context, streams []string) error {
	for _, stream := range streams {
		err := c.client.XGroupCreateMkStream(ctx, stream, c.group, "$").Err()
		if err != nil && !strings.HasPrefix(err.Error(), "BUSYGROUP") {
			return fmt.Errorf("xgroup create %s: %w", stream, err)
		}
	}
	return nil
}

// ConsumeCandles blocks on XREADGROUP and forwards decoded updates.
// Returns when ctx is cancelled.
func (c *Consumer) ConsumeCandles(ctx context.Context, streams []string, out chan<- model.CandleUpdate) error {
	args := make([]string, len(streams)*2)
	for i, s := range streams {
		args[i] = s
		args[len(streams)+i] = ">"
	}

	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		results, err := c.client.XReadGroup(ctx, &goredis.XReadGroupArgs{
			Group:    c.group,
			Consumer: c.consumer,
			Streams:  args,
			Count:    100,
			Block:    2 * time.Second,
		}).Result()
		if err != nil {
			if err == goredis.Nil || ctx.Err() != nil {
				continue
			}
			log.Printf("[redis-consumer] xreadgroup error: %v", err)
			time.Sleep(500 * time.Millisecond)
			continue
		}

		for _, stream := range results {
			if err := c.deliver(ctx, stream.Stream, stream.Messages, out); err != nil {
				return err
			}
		}
	}
}

// RecoverPending re-delivers this group's unACKed messages after a crash.
func (c *Consumer) RecoverPending(ctx context.Context, streams []string, out chan<- model.CandleUpdate) error {
	for _, stream := range streams {
		for {
			pending, err := c.client.XPendingExt(ctx, &goredis.XPendingExtArgs{
				Stream: stream,
				Group:  c.group,
				Start:  "-",
				End:    "+",
				Count:  100,
			}).Result()
			if err != nil || len(pending) == 0 {
				break
			}

			ids := make([]string, len(pending))
			for i, p := range pending {
				ids[i] = p.ID
			}
			claimed, err := c.client.XClaim(ctx, &goredis.XClaimArgs{
				Stream:   stream,
				Group:    c.group,
				Consumer: c.consumer,
				Messages: ids,
			}).Result()
			if err != nil {
				log.Printf("[redis-consumer] xclaim error on %s: %v", stream, err)
				break
			}
			if err := c.deliver(ctx, stream, claimed, out); err != nil {
				return err
			}
			if len(claimed) < len(ids) {
				break
			}
		}
	}
	return nil
}

// StartPELReclaimer periodically steals entries idle longer than minIdle
// from other (dead) consumers and re-delivers them. Runs until ctx is done.
func (c *Consumer) StartPELReclaimer(ctx context.Context, streams []string, interval, minIdle time.Duration,
	out chan<- model.CandleUpdate, onReclaim func(count int)) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			total := 0
			for _, stream := range streams {
				claimed, err := c.reclaim(ctx, stream, minIdle)
				if err != nil {
					log.Printf("[redis-consumer] PEL reclaim error on %s: %v", stream, err)
					continue
				}
				if err := c.deliver(ctx, stream, claimed, out); err != nil {
					return
				}
				total += len(claimed)
			}
			if total > 0 && onReclaim != nil {
				onReclaim(total)
			}
		}
	}
}

func (c *Consumer) reclaim(ctx context.Context, stream string, minIdle time.Duration) ([]goredis.XMessage, error) {
	pending, err := c.client.XPendingExt(ctx, &goredis.XPendingExtArgs{
		Stream: stream,
		Group:  c.group,
		Start:  "-",
		End:    "+",
		Count:  50,
		Idle:   minIdle,
	}).Result()
	if err != nil || len(pending) == 0 {
		return nil, err
	}

	var stale []string
	for _, p := range pending {
		if p.Consumer != c.consumer {
			stale = append(stale, p.ID)
		}
	}
	if len(stale) == 0 {
		return nil, nil
	}

	claimed, err := c.client.XClaim(ctx, &goredis.XClaimArgs{
		Stream:   stream,
		Group:    c.group,
		Consumer: c.consumer,
		MinIdle:  minIdle,
		Messages: stale,
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("xclaim %s: %w", stream, err)
	}
	log.Printf("[redis-consumer] reclaimed %d stale PEL entries from %s", len(claimed), stream)
	return claimed, nil
}

// deliver decodes, forwards and ACKs messages. Undecodable messages are
// ACKed to avoid poison pills.
func (c *Consumer) deliver(ctx context.Context, stream string, msgs []goredis.XMessage, out chan<- model.CandleUpdate) error {
	for _, msg := range msgs {
		u, err := DecodeUpdate(msg.Values)
		if err != nil {
			log.Printf("[redis-consumer] %s %s: %v", stream, msg.ID, err)
			c.client.XAck(ctx, stream, c.group, msg.ID)
			continue
		}
		select {
		case out <- u:
		case <-ctx.Done():
			return ctx.Err()
		}
		c.client.XAck(ctx, stream, c.group, msg.ID)
	}
	return nil
}

// DecodeUpdate parses the "data" field of a stream entry.
func DecodeUpdate(values map[string]interface{}) (model.CandleUpdate, error) {
	data, ok := values["data"].(string)
	if !ok {
		return model.CandleUpdate{}, fmt.Errorf("missing data field")
	}
	var u model.CandleUpdate
	if err := json.Unmarshal([]byte(data), &u); err != nil {
		return model.CandleUpdate{}, fmt.Errorf("unmarshal update: %w", err)
	}
	if u.Symbol == "" || u.Timeframe == "" {
		return model.CandleUpdate{}, fmt.Errorf("update without series key")
	}
	return u, nil
}

// Subscribe opens a pattern subscription (e.g. PatternAnalysis) and waits
// for confirmation. The caller closes the returned handle.
func Subscribe(ctx context.Context, client *goredis.Client, patterns ...string) (*goredis.PubSub, error) {
	ps := client.PSubscribe(ctx, patterns...)
	if _, err := ps.Receive(ctx); err != nil {
		ps.Close()
		return nil, fmt.Errorf("psubscribe %v: %w", patterns, err)
	}
	return ps, nil
}

// Close closes the client.
func (c *Consumer) Close() error {
	return c.client.Close()
}
