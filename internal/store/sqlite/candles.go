package sqlite

import (
	"context"
	"fmt"
	"log"
	"time"

	"smc-systemv1/internal/model"
)

const (
	defaultBatchSize  = 100
	defaultFlushDelay = 200 * time.Millisecond
)

// SaveCandles upserts bars keyed by (symbol, timeframe, ts) in one transaction.
func (s *Store) SaveCandles(ctx context.Context, symbol, tf string, candles []model.Candle) error {
	if len(candles) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT OR REPLACE INTO candles (symbol, timeframe, ts, open, high, low, close, volume)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		tx.Rollback()
		return err
	}
	defer stmt.Close()

	for _, c := range candles {
		if _, err := stmt.ExecContext(ctx, symbol, tf, c.Time, c.Open, c.High, c.Low, c.Close, c.Volume); err != nil {
			tx.Rollback()
			s.failed("save_candles")
			return fmt.Errorf("sqlite insert candle %s:%s t=%d: %w", symbol, tf, c.Time, err)
		}
	}
	if err := tx.Commit(); err != nil {
		s.failed("save_candles")
		return err
	}
	s.wrote("candles", len(candles))
	return nil
}

// LoadCandles returns up to limit newest bars, oldest-first. limit <= 0 loads all.
func (s *Store) LoadCandles(ctx context.Context, symbol, tf string, limit int) ([]model.Candle, error) {
	q := `SELECT ts, open, high, low, close, volume FROM candles
		WHERE symbol = ? AND timeframe = ? ORDER BY ts DESC`
	args := []any{symbol, tf}
	if limit > 0 {
		q += " LIMIT ?"
		args = append(args, limit)
	}
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("sqlite query candles: %w", err)
	}
	defer rows.Close()

	var out []model.Candle
	for rows.Next() {
		var c model.Candle
		if err := rows.Scan(&c.Time, &c.Open, &c.High, &c.Low, &c.Close, &c.Volume); err != nil {
			return nil, fmt.Errorf("sqlite scan candle: %w", err)
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}

type pending struct {
	symbol, tf string
	candle     model.Candle
}

// RunCandles persists closed bars and replace batches from updates,
// batching inserts. Forming bars are skipped; they are written once closed.
// Blocks until ctx is cancelled or updates is closed.
func (s *Store) RunCandles(ctx context.Context, updates <-chan model.CandleUpdate) {
	batch := make([]pending, 0, defaultBatchSize)
	timer := time.NewTimer(defaultFlushDelay)
	defer timer.Stop()

	flush := func() {
		if len(batch) == 0 {
			return
		}
		start := time.Now()
		grouped := make(map[[2]string][]model.Candle)
		for _, p := range batch {
			k := [2]string{p.symbol, p.tf}
			grouped[k] = append(grouped[k], p.candle)
		}
		for k, cs := range grouped {
			if err := s.SaveCandles(context.Background(), k[0], k[1], cs); err != nil {
				log.Printf("[sqlite] batch insert error: %v", err)
			}
		}
		log.Printf("[sqlite] committed %d candles in %v", len(batch), time.Since(start))
		batch = batch[:0]
	}

	for {
		select {
		case <-ctx.Done():
			flush()
			return

		case u, ok := <-updates:
			if !ok {
				flush()
				return
			}
			if u.Kind == model.UpdateLive && !u.Closed {
				continue
			}
			for _, c := range u.Candles {
				batch = append(batch, pending{u.Symbol, u.Timeframe, c})
			}
			if len(batch) >= defaultBatchSize {
				flush()
				timer.Reset(defaultFlushDelay)
			}

		case <-timer.C:
			flush()
			timer.Reset(defaultFlushDelay)
		}
	}
}
