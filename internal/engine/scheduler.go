package engine

import (
	"context"
	"fmt"
	"log"
	"os"

	"github.com/robfig/cron/v3"
)

// startScheduler registers the periodic jobs: a rescan of every series, so
// signals and drawables refresh without new bars, and a news cache warm-up.
// Overlapping runs of a job are skipped.
func (svc *Service) startScheduler(ctx context.Context) (*cron.Cron, error) {
	cl := cron.PrintfLogger(log.New(os.Stderr, "[cron] ", log.LstdFlags))
	c := cron.New(cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)))

	if svc.cfg.RescanSpec != "" {
		if _, err := c.AddFunc(svc.cfg.RescanSpec, func() {
			n := svc.Rescan()
			log.Printf("[smcengine] scheduled rescan submitted %d series", n)
		}); err != nil {
			return nil, fmt.Errorf("rescan schedule %q: %w", svc.cfg.RescanSpec, err)
		}
	}

	if svc.cfg.NewsWarmSpec != "" && svc.news != nil {
		if _, err := c.AddFunc(svc.cfg.NewsWarmSpec, func() {
			svc.news.Warm(ctx, svc.symbols())
		}); err != nil {
			return nil, fmt.Errorf("news warm schedule %q: %w", svc.cfg.NewsWarmSpec, err)
		}
	}

	c.Start()
	log.Printf("[smcengine] scheduler started (rescan=%q, news=%q)", svc.cfg.RescanSpec, svc.cfg.NewsWarmSpec)
	return c, nil
}
