package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	goredis "github.com/go-redis/redis/v8"

	"smc-systemv1/internal/model"
)

// SignalStore keeps signals as JSON strings indexed by timestamp in sorted
// sets, mirrors them to a stream and announces them on pub/sub.
// Implements model.SignalStore.
type SignalStore struct {
	client *goredis.Client
	ttl    time.Duration
}

// NewSignalStore wraps a connected client. ttl <= 0 keeps signals forever.
func NewSignalStore(client *goredis.Client, ttl time.Duration) *SignalStore {
	return &SignalStore{client: client, ttl: ttl}
}

// SaveSignal claims the id with SETNX, then writes ZADD + XADD + PUBLISH in
// one pipeline. A stored id is left untouched and ErrSignalExists returned.
func (s *SignalStore) SaveSignal(ctx context.Context, sig *model.Signal) error {
	data := string(sig.JSON())
	score := float64(sig.Timestamp.UnixMilli())

	created, err := s.client.SetNX(ctx, SignalKey(sig.ID), data, s.ttl).Result()
	if err != nil {
		return fmt.Errorf("redis save signal %s: %w", sig.ID, err)
	}
	if !created {
		return fmt.Errorf("%w: %s", model.ErrSignalExists, sig.ID)
	}

	pipe := s.client.Pipeline()
	pipe.ZAdd(ctx, signalIndexKey, &goredis.Z{Score: score, Member: sig.ID})
	pipe.ZAdd(ctx, signalSymbolIndexKey(sig.Symbol), &goredis.Z{Score: score, Member: sig.ID})
	pipe.XAdd(ctx, &goredis.XAddArgs{
		Stream: signalStreamKey,
		MaxLen: signalStreamMaxLen,
		Approx: true,
		Values: map[string]interface{}{"data": data},
	})
	pipe.Publish(ctx, ChannelSignals, data)

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis save signal %s: %w", sig.ID, err)
	}
	return nil
}

// UpdateStatus rewrites the stored signal's exit fields. The read-modify-write
// runs under WATCH so a concurrent save is not lost.
func (s *SignalStore) UpdateStatus(ctx context.Context, u model.StatusUpdate) error {
	if !u.Status.Valid() {
		return fmt.Errorf("redis update status: invalid status %q", u.Status)
	}
	key := SignalKey(u.ID)
	err := s.client.Watch(ctx, func(tx *goredis.Tx) error {
		raw, err := tx.Get(ctx, key).Result()
		if errors.Is(err, goredis.Nil) {
			return fmt.Errorf("%w: %s", model.ErrSignalNotFound, u.ID)
		}
		if err != nil {
			return err
		}
		var sig model.Signal
		if err := json.Unmarshal([]byte(raw), &sig); err != nil {
			return fmt.Errorf("unmarshal signal %s: %w", u.ID, err)
		}
		ApplyStatus(&sig, u)
		data := string(sig.JSON())
		update, _ := json.Marshal(u)

		_, err = tx.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
			pipe.Set(ctx, key, data, goredis.KeepTTL)
			pipe.Publish(ctx, ChannelSignalStatus, string(update))
			return nil
		})
		return err
	}, key)
	if err != nil {
		return fmt.Errorf("redis update status %s: %w", u.ID, err)
	}
	return nil
}

// ApplyStatus copies the exit fields of u onto sig.
func ApplyStatus(sig *model.Signal, u model.StatusUpdate) {
	sig.Status = u.Status
	sig.ExitPrice = u.ExitPrice
	sig.ExitTime = u.ExitTime
}

// GetSignal loads one signal.
func (s *SignalStore) GetSignal(ctx context.Context, id string) (*model.Signal, error) {
	raw, err := s.client.Get(ctx, SignalKey(id)).Result()
	if errors.Is(err, goredis.Nil) {
		return nil, fmt.Errorf("%w: %s", model.ErrSignalNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("redis get signal %s: %w", id, err)
	}
	var sig model.Signal
	if err := json.Unmarshal([]byte(raw), &sig); err != nil {
		return nil, fmt.Errorf("unmarshal signal %s: %w", id, err)
	}
	return &sig, nil
}

// ListSignals returns newest first. Expired signals still indexed are skipped.
func (s *SignalStore) ListSignals(ctx context.Context, f model.SignalFilter) ([]model.Signal, error) {
	index := signalIndexKey
	if f.Symbol != "" {
		index = signalSymbolIndexKey(f.Symbol)
	}
	stop := int64(-1)
	if f.Limit > 0 && f.Status == "" {
		stop = int64(f.Limit - 1)
	}
	ids, err := s.client.ZRevRange(ctx, index, 0, stop).Result()
	if err != nil {
		return nil, fmt.Errorf("redis list signals: %w", err)
	}
	if len(ids) == 0 {
		return nil, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = SignalKey(id)
	}
	vals, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("redis mget signals: %w", err)
	}

	out := make([]model.Signal, 0, len(vals))
	for i, v := range vals {
		raw, ok := v.(string)
		if !ok {
			continue
		}
		var sig model.Signal
		if err := json.Unmarshal([]byte(raw), &sig); err != nil {
			log.Printf("[redis] skip corrupt signal %s: %v", ids[i], err)
			continue
		}
		if f.Status != "" && sig.Status != f.Status {
			continue
		}
		out = append(out, sig)
		if f.Limit > 0 && len(out) == f.Limit {
			break
		}
	}
	return out, nil
}

// Close closes the client.
func (s *SignalStore) Close() error {
	return s.client.Close()
}
