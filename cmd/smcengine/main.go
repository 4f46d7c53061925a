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
	"smc-systemv1/internal/engine"
	"smc-systemv1/internal/logger"
	"smc-systemv1/internal/metrics"
	"smc-systemv1/internal/model"
	"smc-systemv1/internal/news"
	"smc-systemv1/internal/notification"
	"smc-systemv1/internal/store/postgres"
	redisstore "smc-systemv1/internal/store/redis"
	sqlitestore "smc-systemv1/internal/store/sqlite"
	"smc-systemv1/internal/strategy"
	"smc-systemv1/internal/tracker"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds | log.Lshortfile)

	cfg := config.Load()
	logger.Init("smcengine", logger.ParseLevel(cfg.LogLevel))

	instruments, err := config.LoadInstruments(cfg.InstrumentsPath)
	if err != nil {
		log.Fatalf("[smcengine] %v", err)
	}
	scfg, err := config.LoadStrategy(cfg.StrategyPath)
	if err != nil {
		log.Fatalf("[smcengine] %v", err)
	}
	targets, err := strategy.PolicyByName(cfg.TargetPolicy)
	if err != nil {
		log.Fatalf("[smcengine] %v", err)
	}
	symbols := cfg.ParseSymbols(instruments)
	tfs := cfg.ParseTFs()
	log.Printf("[smcengine] symbols=%v tfs=%v targets=%s", symbols, tfs, targets.Name())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		log.Println("[smcengine] shutdown signal received")
		cancel()
	}()

	// ---- Metrics & health ----
	prom := metrics.NewMetrics()
	health := metrics.NewHealthStatus()
	metricsSrv := metrics.NewServer(cfg.MetricsAddr, health)
	metricsSrv.Start()

	// ---- SQLite: signals + candle history ----
	os.MkdirAll(filepath.Dir(cfg.SQLitePath), 0o755)
	sqlStore, err := sqlitestore.New(sqlitestore.Config{DBPath: cfg.SQLitePath})
	if err != nil {
		log.Fatalf("[smcengine] sqlite init failed: %v", err)
	}
	defer sqlStore.Close()
	sqlStore.OnError = func(string) { prom.SQLiteErrors.Inc() }
	health.SetSQLiteOK(true)

	sinks := engine.Sinks{{Name: "sqlite", Sink: sqlStore}}

	// ---- Redis: stream consumer, signal sink, analysis publisher ----
	health.SetRedisEnabled(true)
	rdb, err := redisstore.Connect(redisstore.Config{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB})
	if err != nil {
		log.Fatalf("[smcengine] redis init failed: %v", err)
	}
	defer rdb.Close()
	health.SetRedisConnected(true)
	health.StartLivenessChecker(ctx, rdb, sqlStore.DB(), 10*time.Second)

	redisSignals := redisstore.NewSignalStore(rdb, cfg.SignalTTL)
	breaker := redisstore.NewCircuitBreaker(5, 15*time.Second)
	breaker.OnStateChange = func(from, to redisstore.State) {
		prom.RedisCircuitBreakerState.Set(float64(to))
		if to == redisstore.StateOpen {
			prom.RedisCircuitBreakerTrips.Inc()
		}
	}
	buffered := redisstore.NewBufferedSink(redisSignals, breaker, 1000)
	buffered.OnBuffer = func() { prom.RedisBufferedWrites.Inc() }
	sinks = append(sinks, engine.NamedSink{Name: "redis", Sink: buffered, Status: redisSignals})

	publisher := redisstore.NewPublisher(rdb)
	publisher.OnError = func(string) { prom.RedisErrors.Inc() }

	// ---- Postgres (optional) ----
	if cfg.Postgres.Host != "" {
		pg, err := postgres.New(ctx, cfg.Postgres)
		if err != nil {
			log.Printf("[smcengine] WARNING: postgres init failed: %v (continuing without it)", err)
		} else {
			defer pg.Close()
			sinks = append(sinks, engine.NamedSink{Name: "postgres", Sink: pg})
		}
	}

	// ---- News sentiment ----
	ncfg := news.DefaultConfig()
	ncfg.TTL = cfg.NewsCacheTTL
	var sources []news.Source
	for _, tmpl := range cfg.NewsRSSURLs {
		sources = append(sources, news.NewRSSSource(tmpl, 6*time.Second))
	}
	if cfg.NewsHTMLURL != "" {
		sources = append(sources, news.NewHTMLSource(cfg.NewsHTMLURL, cfg.NewsHTMLSel, 6*time.Second))
	}
	newsAgg := news.NewAggregator(ncfg, instruments, sources...)

	// ---- Tracker: resume open signals ----
	track := tracker.New(tracker.Config{}, sinks, instruments)
	if n, err := track.Load(ctx, sqlStore, 500); err != nil {
		log.Printf("[smcengine] tracker resume: %v", err)
	} else {
		log.Printf("[smcengine] tracking %d open signals", n)
	}

	synth := strategy.NewSynthesizer(scfg, timedSentiment{newsAgg, prom}, instruments, targets)

	ecfg := engine.DefaultConfig()
	ecfg.Symbols = symbols
	ecfg.Timeframes = tfs
	ecfg.Workers = cfg.Workers
	ecfg.HistoryLimit = cfg.HistoryLimit
	ecfg.RescanSpec = cfg.RescanCron
	ecfg.NewsWarmSpec = cfg.NewsWarmCron
	ecfg.SkipClosedMarkets = cfg.SkipClosedMarkets
	ecfg.PELInterval = cfg.PELInterval
	ecfg.PELMinIdle = cfg.PELMinIdle

	svc := engine.New(ecfg, engine.Deps{
		Synth:       synth,
		Sinks:       sinks,
		Signals:     sqlStore,
		Publisher:   publisher,
		Notifier:    buildNotifier(cfg),
		Tracker:     track,
		News:        newsAgg,
		Instruments: instruments,
		Metrics:     prom,
		Health:      health,
	})

	// ---- History, then live streams ----
	if _, err := svc.Backfill(ctx, sqlStore); err != nil {
		log.Printf("[smcengine] backfill: %v", err)
	}

	updates := make(chan model.CandleUpdate, 5000)
	consumer := redisstore.NewConsumer(rdb, redisstore.ConsumerConfig{Group: cfg.ConsumerGroup, Consumer: cfg.ConsumerName})
	streams := redisstore.StreamsFor(symbols, tfs)
	if err := svc.Consume(ctx, consumer, streams, updates); err != nil {
		log.Fatalf("[smcengine] %v", err)
	}
	health.SetFeedConnected(true)

	log.Println("[smcengine] ╔════════════════════════════════════════════════════════╗")
	log.Println("[smcengine] ║  SMC Engine Active                                     ║")
	log.Println("[smcengine] ║                                                        ║")
	log.Println("[smcengine] ║  [Redis Streams] → [SMC + News] → [Signals/Drawables]  ║")
	log.Printf("[smcengine] ║  Streams: %-44d ║", len(streams))
	log.Printf("[smcengine] ║  Rescan: %-45s ║", cfg.RescanCron)
	log.Println("[smcengine] ╚════════════════════════════════════════════════════════╝")

	if err := svc.Run(ctx, updates); err != nil {
		log.Fatalf("[smcengine] fatal: %v", err)
	}

	sum := track.Summary()
	log.Printf("[smcengine] session: %d closed (%d win / %d loss / %d be), %.1f pips",
		sum.Wins+sum.Losses+sum.Breakevens, sum.Wins, sum.Losses, sum.Breakevens, sum.TotalPips)

	shutCtx, shutCancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer shutCancel()
	metricsSrv.Stop(shutCtx)
	log.Println("[smcengine] shutdown complete.")
}

// buildNotifier always logs and adds Telegram and webhook delivery when
// configured.
func buildNotifier(cfg *config.Config) notification.Notifier {
	m := notification.Multi{notification.NewLogNotifier()}
	if cfg.TelegramToken != "" && cfg.TelegramChatID != "" {
		m = append(m, notification.NewTelegramNotifier(cfg.TelegramToken, cfg.TelegramChatID))
	}
	if cfg.WebhookURL != "" {
		m = append(m, notification.NewWebhookNotifier(cfg.WebhookURL))
	}
	return m
}

// timedSentiment records news latency.
type timedSentiment struct {
	provider model.SentimentProvider
	prom     *metrics.Metrics
}

func (t timedSentiment) Sentiment(ctx context.Context, symbol string) (*model.NewsSentiment, error) {
	start := time.Now()
	s, err := t.provider.Sentiment(ctx, symbol)
	t.prom.SentimentDur.Observe(time.Since(start).Seconds())
	return s, err
}
