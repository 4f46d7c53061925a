package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"smc-systemv1/config"
	"smc-systemv1/internal/engine"
	"smc-systemv1/internal/gateway"
	"smc-systemv1/internal/metrics"
	"smc-systemv1/internal/store/postgres"
	redisstore "smc-systemv1/internal/store/redis"
	sqlitestore "smc-systemv1/internal/store/sqlite"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds | log.Lshortfile)
	log.Println("[api_gateway] starting...")

	cfg := config.Load()
	instruments, err := config.LoadInstruments(cfg.InstrumentsPath)
	if err != nil {
		log.Fatalf("[api_gateway] %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// ---- Redis: pub/sub relay and analysis snapshots ----
	rdb, err := redisstore.Connect(redisstore.Config{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB})
	if err != nil {
		log.Fatalf("[api_gateway] redis connection failed: %v", err)
	}
	defer rdb.Close()

	// ---- SQLite: signal history (shared with the engine, WAL) ----
	os.MkdirAll(filepath.Dir(cfg.SQLitePath), 0o755)
	sqlStore, err := sqlitestore.New(sqlitestore.Config{DBPath: cfg.SQLitePath})
	if err != nil {
		log.Fatalf("[api_gateway] sqlite init failed: %v", err)
	}
	defer sqlStore.Close()

	// Manual overrides go to every store; redis also republishes the status.
	status := engine.Sinks{
		{Name: "sqlite", Sink: sqlStore},
		{Name: "redis", Sink: redisstore.NewSignalStore(rdb, cfg.SignalTTL)},
	}
	if cfg.Postgres.Host != "" {
		if pg, err := postgres.New(ctx, cfg.Postgres); err != nil {
			log.Printf("[api_gateway] WARNING: postgres init failed: %v", err)
		} else {
			defer pg.Close()
			status = append(status, engine.NamedSink{Name: "postgres", Sink: pg})
		}
	}

	prom := metrics.NewMetrics()
	health := metrics.NewHealthStatus()
	health.SetRedisEnabled(true)
	health.SetRedisConnected(true)
	health.SetSQLiteOK(true)
	health.SetEngineOK(true)
	health.SetFeedConnected(true)
	health.StartLivenessChecker(ctx, rdb, sqlStore.DB(), 10*time.Second)

	// ---- Hub ----
	hub := gateway.NewHub(rdb, redisstore.NewPublisher(rdb), instruments)
	hub.OnClients = func(n int) { prom.WSClients.Set(float64(n)) }
	hub.OnBroadcast = func() { prom.WSMessages.Inc() }
	go hub.Run(ctx)
	hub.StartMarketBroadcast(ctx, time.Minute)

	api := &gateway.API{
		Hub:        hub,
		Signals:    sqlStore,
		Status:     status,
		TOTPSecret: cfg.AdminTOTPSecret,
		Health:     health,
		Metrics:    prom,
	}
	if cfg.AdminTOTPSecret == "" {
		log.Println("[api_gateway] ADMIN_TOTP_SECRET not set, manual status override disabled")
	}

	gin.SetMode(gin.ReleaseMode)
	srv := &http.Server{
		Addr:              cfg.GatewayAddr,
		Handler:           api.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Printf("[api_gateway] ✅ listening on %s (REST /api/*, WebSocket /ws)", cfg.GatewayAddr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("[api_gateway] server error: %v", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	log.Println("[api_gateway] shutting down...")
	cancel()

	shutCtx, shutCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutCancel()
	srv.Shutdown(shutCtx)
	log.Println("[api_gateway] shutdown complete.")
}
