package strategy

import (
	"time"

	"smc-systemv1/internal/smc"
)

// Config tunes the synthesizer.
type Config struct {
	// MinCandles is the least history a pass will score.
	MinCandles int `yaml:"min_candles"`
	// MinConfidence gates emission on the overall score. 0 emits whenever the
	// structure has a bias.
	MinConfidence int `yaml:"min_confidence"`
	// SentimentTimeout bounds the news request of one pass.
	SentimentTimeout time.Duration `yaml:"sentiment_timeout"`

	StopBuffer float64 `yaml:"stop_buffer"`  // fractional buffer beyond the protecting swing
	MinRiskPct float64 `yaml:"min_risk_pct"` // least entry-to-stop distance, fractional

	HighVolatility  float64 `yaml:"high_volatility"`  // sentiment volatility that widens risk
	VolatilityWiden float64 `yaml:"volatility_widen"` // multiplier applied to risk when widened

	NearLevelPct float64 `yaml:"near_level_pct"`
	MaxReasons   int     `yaml:"max_reasons"`
	EMAFast      int     `yaml:"ema_fast"`
	EMASlow      int     `yaml:"ema_slow"`

	Analysis smc.Config `yaml:"analysis"`
}

// DefaultConfig returns the production defaults.
func DefaultConfig() Config {
	return Config{
		MinCandles:       100,
		MinConfidence:    0,
		SentimentTimeout: 8 * time.Second,
		StopBuffer:       0.003,
		MinRiskPct:       0.005,
		HighVolatility:   60,
		VolatilityWiden:  1.2,
		NearLevelPct:     0.01,
		MaxReasons:       5,
		EMAFast:          20,
		EMASlow:          50,
		Analysis:         smc.DefaultConfig(),
	}
}
