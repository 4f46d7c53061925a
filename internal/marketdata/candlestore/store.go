// Package candlestore keeps the ordered candle series per (symbol, timeframe)
// that analysis passes snapshot from.
package candlestore

import (
	"fmt"
	"log"
	"sync"

	"smc-systemv1/internal/model"
)

// DefaultCapacity bounds each series.
const DefaultCapacity = 1000

// Store holds one series per key. Safe for concurrent use: feeds call Apply
// while engines call Snapshot.
type Store struct {
	mu       sync.RWMutex
	series   map[string][]model.Candle
	capacity int

	subMu sync.RWMutex
	subs  []chan string

	// Optional metrics hooks
	OnApplied  func(key string, kind model.UpdateKind, n int)
	OnRejected func(key string, err error)
}

// New creates a store. capacity <= 0 uses DefaultCapacity.
func New(capacity int) *Store {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Store{
		series:   make(map[string][]model.Candle, 16),
		capacity: capacity,
	}
}

// Subscribe returns a channel receiving the series key after each change.
// Notifications are dropped when the channel is full; consumers re-read the
// latest snapshot, so a missed key only delays work.
func (s *Store) Subscribe(buf int) <-chan string {
	ch := make(chan string, buf)
	s.subMu.Lock()
	s.subs = append(s.subs, ch)
	s.subMu.Unlock()
	return ch
}

// Apply merges an update into its series.
//
// Replace validates the batch and swaps it in whole. Live replaces the last
// bar when the times match, appends when newer, and rejects older bars with
// model.ErrStaleCandle. Malformed bars are rejected with
// model.ErrMalformedCandle and leave the series untouched.
func (s *Store) Apply(u model.CandleUpdate) error {
	key := u.Key()
	err := s.apply(key, u)
	if err != nil {
		if s.OnRejected != nil {
			s.OnRejected(key, err)
		}
		return err
	}
	if s.OnApplied != nil {
		s.OnApplied(key, u.Kind, len(u.Candles))
	}
	s.notify(key)
	return nil
}

func (s *Store) apply(key string, u model.CandleUpdate) error {
	if err := model.ValidateSeries(u.Candles); err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}

	switch u.Kind {
	case model.UpdateReplace:
		batch := u.Candles
		if len(batch) > s.capacity {
			batch = batch[len(batch)-s.capacity:]
		}
		cp := make([]model.Candle, len(batch), s.capacity)
		copy(cp, batch)
		s.mu.Lock()
		s.series[key] = cp
		s.mu.Unlock()
		return nil

	case model.UpdateLive, "":
		if len(u.Candles) == 0 {
			return nil
		}
		s.mu.Lock()
		defer s.mu.Unlock()
		cur := s.series[key]
		for _, c := range u.Candles {
			var err error
			if cur, err = s.merge(cur, c); err != nil {
				s.series[key] = cur
				return fmt.Errorf("%s: %w", key, err)
			}
		}
		s.series[key] = cur
		return nil
	}
	return fmt.Errorf("%s: unknown update kind %q", key, u.Kind)
}

func (s *Store) merge(cur []model.Candle, c model.Candle) ([]model.Candle, error) {
	n := len(cur)
	switch {
	case n == 0 || c.Time > cur[n-1].Time:
		if n >= s.capacity {
			// shift in place; keeps the backing array bounded
			copy(cur, cur[1:])
			cur = cur[:n-1]
		}
		return append(cur, c), nil
	case c.Time == cur[n-1].Time:
		cur[n-1] = c
		return cur, nil
	default:
		return cur, fmt.Errorf("%w: t=%d behind last t=%d", model.ErrStaleCandle, c.Time, cur[n-1].Time)
	}
}

// Snapshot returns a copy of the series; nil when unknown.
func (s *Store) Snapshot(key string) []model.Candle {
	s.mu.RLock()
	defer s.mu.RUnlock()
	cur, ok := s.series[key]
	if !ok {
		return nil
	}
	out := make([]model.Candle, len(cur))
	copy(out, cur)
	return out
}

// Last returns the newest bar of a series.
func (s *Store) Last(key string) (model.Candle, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	cur := s.series[key]
	if len(cur) == 0 {
		return model.Candle{}, false
	}
	return cur[len(cur)-1], true
}

// Len returns the series length.
func (s *Store) Len(key string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.series[key])
}

// Keys lists every known series.
func (s *Store) Keys() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	keys := make([]string, 0, len(s.series))
	for k := range s.series {
		keys = append(keys, k)
	}
	return keys
}

func (s *Store) notify(key string) {
	s.subMu.RLock()
	defer s.subMu.RUnlock()
	for i, ch := range s.subs {
		select {
		case ch <- key:
		default:
			log.Printf("[candlestore] subscriber %d full, dropping notify for %s", i, key)
		}
	}
}
