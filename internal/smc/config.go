package smc

// Config holds the tunable constants of an analysis pass. The zero value is
// not useful; start from DefaultConfig.
type Config struct {
	SwingRadius     int `yaml:"swing_radius"`
	StructureMargin int `yaml:"structure_margin"`

	OrderBlockThreshold float64 `yaml:"order_block_threshold"` // fractional body move, 0.003 = 0.3%
	MaxOrderBlocks      int     `yaml:"max_order_blocks"`
	MaxFVGs             int     `yaml:"max_fvgs"`

	SweepTolerance float64 `yaml:"sweep_tolerance"`
	LevelTolerance float64 `yaml:"level_tolerance"`
	MinTouches     int     `yaml:"min_touches"`
	MaxLevels      int     `yaml:"max_levels"`

	PremiumWindow int `yaml:"premium_window"`
	WyckoffWindow int `yaml:"wyckoff_window"`
	MaxBreakouts  int `yaml:"max_breakouts"`

	// Concurrent runs the independent extractors on their own goroutines.
	Concurrent bool `yaml:"concurrent"`
}

// DefaultConfig returns the production defaults.
func DefaultConfig() Config {
	return Config{
		SwingRadius:         5,
		StructureMargin:     0,
		OrderBlockThreshold: 0.003,
		MaxOrderBlocks:      10,
		MaxFVGs:             15,
		SweepTolerance:      0.001,
		LevelTolerance:      0.002,
		MinTouches:          3,
		MaxLevels:           6,
		PremiumWindow:       100,
		WyckoffWindow:       25,
		MaxBreakouts:        5,
	}
}

// normalized fills unset fields from DefaultConfig.
func (c Config) normalized() Config {
	d := DefaultConfig()
	if c.SwingRadius < 1 {
		c.SwingRadius = d.SwingRadius
	}
	if c.StructureMargin < 0 {
		c.StructureMargin = 0
	}
	if c.OrderBlockThreshold <= 0 {
		c.OrderBlockThreshold = d.OrderBlockThreshold
	}
	if c.MaxOrderBlocks <= 0 {
		c.MaxOrderBlocks = d.MaxOrderBlocks
	}
	if c.MaxFVGs <= 0 {
		c.MaxFVGs = d.MaxFVGs
	}
	if c.SweepTolerance <= 0 {
		c.SweepTolerance = d.SweepTolerance
	}
	if c.LevelTolerance <= 0 {
		c.LevelTolerance = d.LevelTolerance
	}
	if c.MinTouches <= 0 {
		c.MinTouches = d.MinTouches
	}
	if c.MaxLevels <= 0 {
		c.MaxLevels = d.MaxLevels
	}
	if c.PremiumWindow <= 0 {
		c.PremiumWindow = d.PremiumWindow
	}
	if c.WyckoffWindow <= 1 {
		c.WyckoffWindow = d.WyckoffWindow
	}
	if c.MaxBreakouts <= 0 {
		c.MaxBreakouts = d.MaxBreakouts
	}
	return c
}
