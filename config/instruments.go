package config

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"smc-systemv1/internal/model"
	"smc-systemv1/internal/strategy"
)

// instrumentsFile is the on-disk layout of instruments.yaml.
type instrumentsFile struct {
	Instruments []model.InstrumentSpec `yaml:"instruments"`
}

// DefaultInstruments is used when no instruments file exists.
func DefaultInstruments() map[string]model.InstrumentSpec {
	specs := []model.InstrumentSpec{
		{Symbol: "XAUUSD", Name: "Gold", Class: "metal", PipSize: 0.1, Decimals: 2, PipValue: 10, QuoteToUSD: 1,
			FeedSymbol: "PAXGUSDT", YahooSymbol: "GC=F", Keywords: []string{"gold", "xau", "bullion"}},
		{Symbol: "EURUSD", Name: "Euro / US Dollar", Class: "fx", PipSize: 0.0001, Decimals: 5, PipValue: 10, QuoteToUSD: 1,
			FeedSymbol: "EURUSDT", YahooSymbol: "EURUSD=X", Keywords: []string{"euro", "eur/usd", "ecb"}},
		{Symbol: "GBPUSD", Name: "British Pound / US Dollar", Class: "fx", PipSize: 0.0001, Decimals: 5, PipValue: 10, QuoteToUSD: 1,
			FeedSymbol: "GBPUSDT", YahooSymbol: "GBPUSD=X", Keywords: []string{"pound", "sterling", "gbp/usd", "bank of england"}},
		{Symbol: "USDJPY", Name: "US Dollar / Japanese Yen", Class: "fx", PipSize: 0.01, Decimals: 3, PipValue: 1000, QuoteToUSD: 0.0067,
			YahooSymbol: "JPY=X", Keywords: []string{"yen", "usd/jpy", "bank of japan", "boj"}},
		{Symbol: "BTCUSD", Name: "Bitcoin", Class: "crypto", PipSize: 1, Decimals: 2, PipValue: 1, QuoteToUSD: 1,
			FeedSymbol: "BTCUSDT", YahooSymbol: "BTC-USD", Keywords: []string{"bitcoin", "btc", "crypto"}},
	}
	out := make(map[string]model.InstrumentSpec, len(specs))
	for _, s := range specs {
		out[s.Symbol] = s
	}
	return out
}

// LoadInstruments reads instrument specs from a YAML file. A missing file
// yields DefaultInstruments.
func LoadInstruments(path string) (map[string]model.InstrumentSpec, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return DefaultInstruments(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("read instruments: %w", err)
	}
	return ParseInstruments(data)
}

// ParseInstruments decodes instruments YAML. Symbols are upper-cased and
// must be unique with a positive pip size.
func ParseInstruments(data []byte) (map[string]model.InstrumentSpec, error) {
	var f instrumentsFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse instruments: %w", err)
	}
	if len(f.Instruments) == 0 {
		return nil, fmt.Errorf("parse instruments: no instruments defined")
	}
	out := make(map[string]model.InstrumentSpec, len(f.Instruments))
	for _, s := range f.Instruments {
		s.Symbol = strings.ToUpper(strings.TrimSpace(s.Symbol))
		if s.Symbol == "" {
			return nil, fmt.Errorf("parse instruments: entry without symbol")
		}
		if s.PipSize <= 0 {
			return nil, fmt.Errorf("parse instruments: %s: pip_size must be positive", s.Symbol)
		}
		if _, dup := out[s.Symbol]; dup {
			return nil, fmt.Errorf("parse instruments: duplicate symbol %s", s.Symbol)
		}
		if s.QuoteToUSD == 0 {
			s.QuoteToUSD = 1
		}
		out[s.Symbol] = s
	}
	return out, nil
}

// SortedSymbols lists the instrument symbols alphabetically.
func SortedSymbols(instruments map[string]model.InstrumentSpec) []string {
	out := make([]string, 0, len(instruments))
	for sym := range instruments {
		out = append(out, sym)
	}
	sort.Strings(out)
	return out
}

// FeedSymbols maps feed symbols to instrument symbols for the kline ingest.
// Instruments without a feed symbol are skipped.
func FeedSymbols(instruments map[string]model.InstrumentSpec, symbols []string) map[string]string {
	out := make(map[string]string, len(symbols))
	for _, sym := range symbols {
		if spec, ok := instruments[sym]; ok && spec.FeedSymbol != "" {
			out[spec.FeedSymbol] = sym
		}
	}
	return out
}

// LoadStrategy overlays a YAML file onto the strategy defaults. An empty
// path returns the defaults unchanged.
func LoadStrategy(path string) (strategy.Config, error) {
	cfg := strategy.DefaultConfig()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read strategy config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse strategy config: %w", err)
	}
	return cfg, nil
}
