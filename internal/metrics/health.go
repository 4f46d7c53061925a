package metrics

import (
	"context"
	"database/sql"
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	goredis "github.com/go-redis/redis/v8"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// HealthStatus represents the system health.
type HealthStatus struct {
	mu sync.RWMutex

	FeedConnected  bool      `json:"feed_connected"`
	LastCandleTime time.Time `json:"last_candle_time"`
	RedisEnabled   bool      `json:"redis_enabled"`
	RedisConnected bool      `json:"redis_connected"`
	SQLiteOK       bool      `json:"sqlite_ok"`
	EngineOK       bool      `json:"engine_ok"`
	Timeframes     []string  `json:"timeframes"`

	// Liveness probe results
	RedisLatencyMs  float64   `json:"redis_latency_ms"`
	SQLiteLatencyMs float64   `json:"sqlite_latency_ms"`
	LastCheckAt     time.Time `json:"last_check_at"`
	StartedAt       time.Time `json:"started_at"`

	now func() time.Time
}

// NewHealthStatus returns a default health status.
func NewHealthStatus() *HealthStatus {
	return &HealthStatus{
		StartedAt: time.Now(),
		now:       time.Now,
	}
}

func (h *HealthStatus) SetFeedConnected(v bool) {
	h.mu.Lock()
	h.FeedConnected = v
	h.mu.Unlock()
}

func (h *HealthStatus) SetLastCandleTime(t time.Time) {
	h.mu.Lock()
	h.LastCandleTime = t
	h.mu.Unlock()
}

// SetRedisEnabled marks Redis as a required dependency.
func (h *HealthStatus) SetRedisEnabled(v bool) {
	h.mu.Lock()
	h.RedisEnabled = v
	h.mu.Unlock()
}

func (h *HealthStatus) SetRedisConnected(v bool) {
	h.mu.Lock()
	h.RedisConnected = v
	h.mu.Unlock()
}

func (h *HealthStatus) SetSQLiteOK(v bool) {
	h.mu.Lock()
	h.SQLiteOK = v
	h.mu.Unlock()
}

func (h *HealthStatus) SetEngineOK(v bool) {
	h.mu.Lock()
	h.EngineOK = v
	h.mu.Unlock()
}

func (h *HealthStatus) SetTimeframes(tfs []string) {
	h.mu.Lock()
	h.Timeframes = tfs
	h.mu.Unlock()
}

// CheckRedis pings Redis and records latency + connectivity.
func (h *HealthStatus) CheckRedis(ctx context.Context, rdb *goredis.Client) {
	start := time.Now()
	err := rdb.Ping(ctx).Err()
	latency := time.Since(start)

	h.mu.Lock()
	h.RedisConnected = err == nil
	h.RedisLatencyMs = float64(latency.Microseconds()) / 1000.0
	h.LastCheckAt = h.now()
	h.mu.Unlock()
}

// CheckSQLite pings the database and records latency + health.
func (h *HealthStatus) CheckSQLite(ctx context.Context, db *sql.DB) {
	start := time.Now()
	err := db.PingContext(ctx)
	latency := time.Since(start)

	h.mu.Lock()
	h.SQLiteOK = err == nil
	h.SQLiteLatencyMs = float64(latency.Microseconds()) / 1000.0
	h.LastCheckAt = h.now()
	h.mu.Unlock()
}

// StartLivenessChecker runs periodic dependency checks. Either client may be nil.
func (h *HealthStatus) StartLivenessChecker(ctx context.Context, rdb *goredis.Client, sqlDB *sql.DB, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				probeCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
				if rdb != nil {
					h.CheckRedis(probeCtx, rdb)
				}
				if sqlDB != nil {
					h.CheckSQLite(probeCtx, sqlDB)
				}
				cancel()
			}
		}
	}()
}

// ServeHTTP handles the /healthz endpoint.
func (h *HealthStatus) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	overallStatus := "healthy"
	httpCode := http.StatusOK

	redisDown := h.RedisEnabled && !h.RedisConnected
	if !h.FeedConnected || redisDown || !h.SQLiteOK || !h.EngineOK {
		overallStatus = "degraded"
		httpCode = http.StatusServiceUnavailable
	}
	if redisDown && !h.SQLiteOK {
		overallStatus = "unhealthy"
	}

	candleAge := ""
	if !h.LastCandleTime.IsZero() {
		candleAge = h.now().Sub(h.LastCandleTime).Round(time.Millisecond).String()
	}

	status := struct {
		Status          string   `json:"status"`
		Uptime          string   `json:"uptime"`
		FeedConnected   bool     `json:"feed_connected"`
		LastCandleTime  string   `json:"last_candle_time"`
		CandleAge       string   `json:"candle_age"`
		RedisConnected  bool     `json:"redis_connected"`
		RedisLatencyMs  float64  `json:"redis_latency_ms"`
		SQLiteOK        bool     `json:"sqlite_ok"`
		SQLiteLatencyMs float64  `json:"sqlite_latency_ms"`
		EngineOK        bool     `json:"engine_ok"`
		Timeframes      []string `json:"timeframes"`
		LastCheckAt     string   `json:"last_check_at"`
	}{
		Status:          overallStatus,
		Uptime:          h.now().Sub(h.StartedAt).Round(time.Second).String(),
		FeedConnected:   h.FeedConnected,
		LastCandleTime:  h.LastCandleTime.Format(time.RFC3339),
		CandleAge:       candleAge,
		RedisConnected:  h.RedisConnected,
		RedisLatencyMs:  h.RedisLatencyMs,
		SQLiteOK:        h.SQLiteOK,
		SQLiteLatencyMs: h.SQLiteLatencyMs,
		EngineOK:        h.EngineOK,
		Timeframes:      h.Timeframes,
		LastCheckAt:     h.LastCheckAt.Format(time.RFC3339),
	}

	w.Header().Set("Content-Type", "application/json")
	if httpCode != http.StatusOK {
		w.WriteHeader(httpCode)
	}
	json.NewEncoder(w).Encode(status)
}

// Server runs an HTTP server exposing /metrics and /healthz.
type Server struct {
	health *HealthStatus
	addr   string
	srv    *http.Server
}

// NewServer creates a metrics and health server.
func NewServer(addr string, health *HealthStatus) *Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.Handle("/healthz", health)

	return &Server{
		health: health,
		addr:   addr,
		srv: &http.Server{
			Addr:    addr,
			Handler: mux,
		},
	}
}

// Start launches the HTTP server in a goroutine.
func (s *Server) Start() {
	go func() {
		log.Printf("[metrics] server listening on %s", s.addr)
		if err := s.srv.ListenAndServe(); err != http.ErrServerClosed {
			log.Printf("[metrics] server error: %v", err)
		}
	}()
}

// Stop gracefully shuts down the metrics server.
func (s *Server) Stop(ctx context.Context) {
	s.srv.Shutdown(ctx)
}
