package engine

import "time"

// Config holds the runtime knobs of the SMC engine service.
type Config struct {
	Symbols    []string
	Timeframes []string

	Workers   int // synthesis workers; a series always maps to the same one
	QueueSize int // per-worker request queue

	// HistoryLimit is the number of bars per series loaded at startup.
	HistoryLimit int

	// RescanSpec and NewsWarmSpec are cron expressions ("@every 5m" works too).
	// Empty disables the job.
	RescanSpec   string
	NewsWarmSpec string

	// SkipClosedMarkets drops passes while an instrument's market is shut.
	SkipClosedMarkets bool

	PELInterval time.Duration
	PELMinIdle  time.Duration

	// NotifyTimeout bounds one alert delivery.
	NotifyTimeout time.Duration
	// SaveTimeout bounds persisting one signal across all sinks.
	SaveTimeout time.Duration
}

// DefaultConfig returns the production defaults.
func DefaultConfig() Config {
	return Config{
		Workers:           4,
		QueueSize:         64,
		HistoryLimit:      500,
		RescanSpec:        "*/5 * * * *",
		NewsWarmSpec:      "@every 4m",
		SkipClosedMarkets: true,
		PELInterval:       30 * time.Second,
		PELMinIdle:        60 * time.Second,
		NotifyTimeout:     10 * time.Second,
		SaveTimeout:       5 * time.Second,
	}
}

func (c *Config) fill() {
	d := DefaultConfig()
	if c.Workers <= 0 {
		c.Workers = d.Workers
	}
	if c.QueueSize <= 0 {
		c.QueueSize = d.QueueSize
	}
	if c.HistoryLimit <= 0 {
		c.HistoryLimit = d.HistoryLimit
	}
	if c.PELInterval <= 0 {
		c.PELInterval = d.PELInterval
	}
	if c.PELMinIdle <= 0 {
		c.PELMinIdle = d.PELMinIdle
	}
	if c.NotifyTimeout <= 0 {
		c.NotifyTimeout = d.NotifyTimeout
	}
	if c.SaveTimeout <= 0 {
		c.SaveTimeout = d.SaveTimeout
	}
}
