package config

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"smc-systemv1/internal/model"
	"smc-systemv1/internal/store/postgres"
)

// Config holds all application configuration loaded from environment variables.
type Config struct {
	// Infrastructure
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	SQLitePath    string
	MetricsAddr   string
	GatewayAddr   string
	LogLevel      string

	// Postgres is optional; an empty host disables the postgres signal sink.
	Postgres postgres.Config

	// Market data
	FeedMode       string // "kline" (exchange websocket) or "sim" (local tick server)
	KlineURL       string
	TickURL        string
	TickServerAddr string
	BaseTF         string // bar size produced by the feed
	EnabledTFs     string // comma-separated, e.g. "1m,15m,1h"
	Symbols        string // comma-separated; empty means every instrument

	InstrumentsPath string
	StrategyPath    string // optional YAML overriding strategy defaults
	TargetPolicy    string // r_multiple, pips or levels

	// Engine
	Workers           int
	HistoryLimit      int
	RescanCron        string
	NewsWarmCron      string
	SkipClosedMarkets bool
	ConsumerGroup     string
	ConsumerName      string
	PELInterval       time.Duration
	PELMinIdle        time.Duration
	SignalTTL         time.Duration

	// News
	NewsRSSURLs  []string // URL templates with a %s query placeholder
	NewsHTMLURL  string
	NewsHTMLSel  string
	NewsCacheTTL time.Duration

	// Notifications
	TelegramToken  string
	TelegramChatID string
	WebhookURL     string

	// AdminTOTPSecret gates manual status overrides in the gateway.
	AdminTOTPSecret string
}

// Load reads configuration from environment variables with sensible defaults.
// A .env file in the working directory is loaded first when present.
func Load() *Config {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Printf("[config] .env: %v", err)
	}

	return &Config{
		RedisAddr:     getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getEnvInt("REDIS_DB", 0),
		SQLitePath:    getEnv("SQLITE_PATH", "data/smc.db"),
		MetricsAddr:   getEnv("METRICS_ADDR", ":9090"),
		GatewayAddr:   getEnv("GATEWAY_ADDR", ":8080"),
		LogLevel:      getEnv("LOG_LEVEL", "info"),

		Postgres: postgres.Config{
			Host:     getEnv("POSTGRES_HOST", ""),
			Port:     getEnv("POSTGRES_PORT", "5432"),
			User:     getEnv("POSTGRES_USER", "smc"),
			Password: getEnv("POSTGRES_PASSWORD", ""),
			DBName:   getEnv("POSTGRES_DB", "smc"),
			SSLMode:  getEnv("POSTGRES_SSLMODE", "disable"),
		},

		FeedMode:       getEnv("FEED_MODE", "sim"),
		KlineURL:       getEnv("KLINE_WS_URL", "wss://stream.binance.com:9443/stream"),
		TickURL:        getEnv("TICK_WS_URL", "ws://localhost:9001/ws"),
		TickServerAddr: getEnv("TICK_SERVER_ADDR", ":9001"),
		BaseTF:         getEnv("BASE_TF", "1m"),
		EnabledTFs:     getEnv("ENABLED_TFS", "1m,15m,1h,4h"),
		Symbols:        getEnv("SYMBOLS", ""),

		InstrumentsPath: getEnv("INSTRUMENTS_PATH", "config/instruments.yaml"),
		StrategyPath:    getEnv("STRATEGY_PATH", ""),
		TargetPolicy:    getEnv("TARGET_POLICY", "r_multiple"),

		Workers:           getEnvInt("ENGINE_WORKERS", 4),
		HistoryLimit:      getEnvInt("HISTORY_LIMIT", 500),
		RescanCron:        getEnv("RESCAN_CRON", "*/5 * * * *"),
		NewsWarmCron:      getEnv("NEWS_WARM_CRON", "@every 4m"),
		SkipClosedMarkets: getEnvBool("SKIP_CLOSED_MARKETS", true),
		ConsumerGroup:     getEnv("CONSUMER_GROUP", "smcengine"),
		ConsumerName:      getEnv("CONSUMER_NAME", hostname()),
		PELInterval:       getEnvDuration("PEL_RECLAIM_INTERVAL", 30*time.Second),
		PELMinIdle:        getEnvDuration("PEL_MIN_IDLE", 60*time.Second),
		SignalTTL:         getEnvDuration("SIGNAL_TTL", 7*24*time.Hour),

		NewsRSSURLs: splitList(getEnv("NEWS_RSS_URLS",
			"https://news.google.com/rss/search?q=%s&hl=en-US&gl=US&ceid=US:en")),
		NewsHTMLURL:  getEnv("NEWS_HTML_URL", ""),
		NewsHTMLSel:  getEnv("NEWS_HTML_SELECTOR", "h3 a"),
		NewsCacheTTL: getEnvDuration("NEWS_CACHE_TTL", 5*time.Minute),

		TelegramToken:  getEnv("TELEGRAM_BOT_TOKEN", ""),
		TelegramChatID: getEnv("TELEGRAM_CHAT_ID", ""),
		WebhookURL:     getEnv("WEBHOOK_URL", ""),

		AdminTOTPSecret: getEnv("ADMIN_TOTP_SECRET", ""),
	}
}

// ParseTFs parses EnabledTFs into canonical labels, skipping invalid values.
func (c *Config) ParseTFs() []string {
	var tfs []string
	for _, p := range splitList(c.EnabledTFs) {
		d, err := model.ParseTimeframe(p)
		if err != nil {
			log.Printf("[config] skipping invalid TF value: %q", p)
			continue
		}
		tfs = append(tfs, model.TimeframeLabel(d))
	}
	return tfs
}

// ParseSymbols returns the configured symbols, or every instrument when none
// are set.
func (c *Config) ParseSymbols(instruments map[string]model.InstrumentSpec) []string {
	if syms := splitList(c.Symbols); len(syms) > 0 {
		for i := range syms {
			syms[i] = strings.ToUpper(syms[i])
		}
		return syms
	}
	return SortedSymbols(instruments)
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func hostname() string {
	h, err := os.Hostname()
	if err != nil || h == "" {
		return "worker-1"
	}
	return h
}

func getEnv(key, fallback string) string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	return v
}

func getEnvInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		log.Printf("[config] invalid %s=%q, using %d", key, v, fallback)
		return fallback
	}
	return n
}

func getEnvBool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		log.Printf("[config] invalid %s=%q, using %t", key, v, fallback)
		return fallback
	}
	return b
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		log.Printf("[config] invalid %s=%q, using %s", key, v, fallback)
		return fallback
	}
	return d
}
