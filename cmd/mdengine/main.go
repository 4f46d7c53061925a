package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"smc-systemv1/config"
	"smc-systemv1/internal/marketdata/agg"
	"smc-systemv1/internal/marketdata/bus"
	"smc-systemv1/internal/marketdata/replay"
	"smc-systemv1/internal/marketdata/tfbuilder"
	"smc-systemv1/internal/marketdata/ws"
	"smc-systemv1/internal/marketdata/wssim"
	"smc-systemv1/internal/metrics"
	"smc-systemv1/internal/model"
	redisstore "smc-systemv1/internal/store/redis"
	sqlitestore "smc-systemv1/internal/store/sqlite"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds | log.Lshortfile)
	log.Println("[mdengine] starting...")

	cfg := config.Load()
	instruments, err := config.LoadInstruments(cfg.InstrumentsPath)
	if err != nil {
		log.Fatalf("[mdengine] %v", err)
	}
	symbols := cfg.ParseSymbols(instruments)

	baseTF, err := model.ParseTimeframe(cfg.BaseTF)
	if err != nil {
		log.Fatalf("[mdengine] base timeframe: %v", err)
	}
	var tfs []time.Duration
	for _, label := range cfg.ParseTFs() {
		d, _ := model.ParseTimeframe(label)
		if d < baseTF || d%baseTF != 0 {
			log.Printf("[mdengine] skipping %s: not a multiple of base %s", label, cfg.BaseTF)
			continue
		}
		tfs = append(tfs, d)
	}
	if len(tfs) == 0 {
		log.Fatalf("[mdengine] no usable timeframes in %q", cfg.EnabledTFs)
	}
	log.Printf("[mdengine] symbols=%v base=%s", symbols, cfg.BaseTF)

	// ---- Setup pipeline channels ----
	tickCh := make(chan model.Tick, 10000)
	baseCh := make(chan model.CandleUpdate, 5000)
	tfCh := make(chan model.CandleUpdate, 5000)

	// ---- Setup metrics & health ----
	prom := metrics.NewMetrics()
	health := metrics.NewHealthStatus()
	metricsSrv := metrics.NewServer(cfg.MetricsAddr, health)
	metricsSrv.Start()

	// ---- Setup context for graceful shutdown ----
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	// ---- SQLite candle history (off hot path) ----
	os.MkdirAll(filepath.Dir(cfg.SQLitePath), 0o755)
	sqlStore, err := sqlitestore.New(sqlitestore.Config{DBPath: cfg.SQLitePath})
	if err != nil {
		log.Fatalf("[mdengine] sqlite init failed: %v", err)
	}
	defer sqlStore.Close()
	sqlStore.OnError = func(string) { prom.SQLiteErrors.Inc() }
	health.SetSQLiteOK(true)
	log.Println("[mdengine] sqlite store ready")

	// ---- Redis publisher ----
	health.SetRedisEnabled(true)
	var publisher *redisstore.Publisher
	rdb, err := redisstore.Connect(redisstore.Config{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB})
	if err != nil {
		log.Printf("[mdengine] WARNING: redis init failed: %v (continuing without redis)", err)
		health.SetRedisConnected(false)
	} else {
		defer rdb.Close()
		publisher = redisstore.NewPublisher(rdb)
		publisher.OnError = func(string) { prom.RedisErrors.Inc() }
		health.SetRedisConnected(true)
		log.Println("[mdengine] redis publisher ready")
	}
	health.StartLivenessChecker(ctx, rdb, sqlStore.DB(), 10*time.Second)

	// ---- Fan-out of timeframe updates (Redis + SQLite) ----
	fanout := bus.New(5000)
	fanout.OnDrop = func(subscriber string) {
		prom.FanoutDropsTotal.WithLabelValues(subscriber).Inc()
	}
	sqliteCh := fanout.Subscribe("sqlite")
	go sqlStore.RunCandles(ctx, sqliteCh)
	if publisher != nil {
		go publisher.RunCandles(ctx, fanout.Subscribe("redis"))
	}
	go fanout.Run(ctx, tfCh)

	// ---- TF Builder (HOT PATH) ----
	builder := tfbuilder.New(tfs)
	builder.StaleTolerance = baseTF
	builder.OnClosed = func(u model.CandleUpdate) {
		prom.TFCandlesTotal.WithLabelValues(u.Timeframe).Inc()
	}
	builder.OnStaleCandle = func() {
		prom.CandlesRejected.WithLabelValues("stale").Inc()
	}
	go builder.Run(ctx, baseCh, tfCh)
	log.Printf("[mdengine] TF builder started with TFs=%v", builder.TFs())

	// ---- Warm the builder from stored base bars ----
	go func() {
		if _, err := replay.New(sqlStore).Backfill(ctx, symbols, []string{model.TimeframeLabel(baseTF)}, 2000, baseCh); err != nil {
			log.Printf("[mdengine] history warmup: %v", err)
		}
	}()

	// ---- Feed ----
	banner := ""
	switch cfg.FeedMode {
	case "kline":
		feed := config.FeedSymbols(instruments, symbols)
		ingest, err := ws.New(ws.IngestConfig{
			BaseURL:    cfg.KlineURL,
			Symbols:    feed,
			Timeframes: []string{model.TimeframeLabel(baseTF)},
		})
		if err != nil {
			log.Fatalf("[mdengine] kline ingest init failed: %v", err)
		}
		ingest.OnReconnect = func() {
			prom.FeedReconnects.Inc()
			health.SetFeedConnected(false)
		}
		health.SetFeedConnected(true)
		go func() {
			if err := ingest.Start(ctx, baseCh); err != nil {
				log.Printf("[mdengine] kline ingest error: %v", err)
				health.SetFeedConnected(false)
			}
		}()
		banner = cfg.KlineURL

	default:
		aggregator := agg.New(baseTF)
		aggregator.OnDroppedTick = func() {
			prom.CandlesRejected.WithLabelValues("dropped_tick").Inc()
		}
		go aggregator.Run(ctx, tickCh, baseCh)

		ingest, err := wssim.New(wssim.Config{URL: cfg.TickURL})
		if err != nil {
			log.Fatalf("[mdengine] wssim init failed: %v", err)
		}
		ingest.OnReconnect = func() {
			prom.FeedReconnects.Inc()
		}
		health.SetFeedConnected(true)
		go func() {
			if err := ingest.Start(ctx, tickCh); err != nil {
				log.Printf("[mdengine] wssim error: %v", err)
				health.SetFeedConnected(false)
			}
		}()
		banner = cfg.TickURL
	}

	log.Println("[mdengine] ╔════════════════════════════════════════════════════════════════╗")
	log.Println("[mdengine] ║  Market Data Engine                                            ║")
	log.Println("[mdengine] ║                                                                ║")
	log.Println("[mdengine] ║  [Feed] → [Base bars] → [TF Builder] → [Redis/SQLite]          ║")
	log.Printf("[mdengine] ║  TFs: %-56v ║", builder.TFs())
	log.Printf("[mdengine] ║  Source (%s): %-46s ║", cfg.FeedMode, banner)
	log.Println("[mdengine] ╚════════════════════════════════════════════════════════════════╝")

	// ---- Periodic fan-out saturation log ----
	go func() {
		ticker := time.NewTicker(30 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				for _, s := range fanout.ChannelStats() {
					if s.Cap > 0 && s.Len*2 > s.Cap {
						log.Printf("[mdengine] fan-out %s at %d/%d", s.Name, s.Len, s.Cap)
					}
				}
			}
		}
	}()

	<-sigCh
	log.Println("[mdengine] shutdown signal received, draining...")
	cancel()

	shutCtx, shutCancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer shutCancel()
	metricsSrv.Stop(shutCtx)
	time.Sleep(500 * time.Millisecond)
	log.Println("[mdengine] shutdown complete.")
}
