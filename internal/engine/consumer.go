package engine

import (
	"context"
	"fmt"
	"log"

	"smc-systemv1/internal/marketdata/replay"
	"smc-systemv1/internal/model"
)

// Consume wires a stream consumer into out: the consumer group is created,
// entries left pending by a previous run are redelivered, stale pending
// entries are reclaimed periodically, and new entries are read until ctx is
// cancelled. Only the setup steps are synchronous.
func (svc *Service) Consume(ctx context.Context, c model.StreamConsumer, streams []string, out chan<- model.CandleUpdate) error {
	if len(streams) == 0 {
		return nil
	}
	if err := c.EnsureConsumerGroup(ctx, streams); err != nil {
		return fmt.Errorf("consumer group: %w", err)
	}
	if err := c.RecoverPending(ctx, streams, out); err != nil {
		log.Printf("[smcengine] pending recovery error: %v", err)
	}

	go c.StartPELReclaimer(ctx, streams, svc.cfg.PELInterval, svc.cfg.PELMinIdle, out,
		func(count int) {
			svc.prom.PELMessagesReclaimed.Add(float64(count))
			log.Printf("[smcengine] reclaimed %d stale PEL messages", count)
		})
	log.Printf("[smcengine] PEL reclaimer started (interval=%s, minIdle=%s)", svc.cfg.PELInterval, svc.cfg.PELMinIdle)

	go func() {
		if err := c.ConsumeCandles(ctx, streams, out); err != nil && ctx.Err() == nil {
			log.Printf("[smcengine] consumer error: %v", err)
		}
	}()
	return nil
}

// Backfill loads stored history for every configured series straight into
// the candle store and schedules a pass for each. Returns the number of
// series loaded.
func (svc *Service) Backfill(ctx context.Context, h model.CandleHistory) (int, error) {
	ch := make(chan model.CandleUpdate, 16)
	errCh := make(chan error, 1)
	go func() {
		_, err := replay.New(h).Backfill(ctx, svc.symbols(), svc.cfg.Timeframes, svc.cfg.HistoryLimit, ch)
		close(ch)
		errCh <- err
	}()

	n := 0
	for u := range ch {
		if err := svc.Ingest(ctx, u); err != nil {
			log.Printf("[smcengine] backfill %s: %v", u.Key(), err)
			continue
		}
		n++
	}
	if err := <-errCh; err != nil {
		return n, err
	}
	if n > 0 {
		log.Printf("[smcengine] backfilled %d series from history", n)
	} else {
		log.Println("[smcengine] no stored history to backfill from")
	}
	return n, nil
}
