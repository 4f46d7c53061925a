// Package news fetches headlines for an instrument and turns them into a
// keyword-weighted directional sentiment and a volatility estimate.
package news

import "strings"

// Analyzer scores text against weighted keyword lists. Weights are in 0..1.
type Analyzer struct {
	positive   map[string]float64
	negative   map[string]float64
	volatility map[string]float64
}

// NewAnalyzer returns an analyzer with market-news vocabularies.
func NewAnalyzer() *Analyzer {
	return &Analyzer{
		positive: map[string]float64{
			"surge": 1.0, "soar": 1.0, "skyrocket": 1.0, "breakthrough": 1.0,
			"bullish": 0.95, "rally": 0.95, "boom": 0.95, "record": 0.9,
			"outperform": 0.9, "breakout": 0.9, "beat": 0.85, "exceed": 0.85,
			"upgrade": 0.85, "optimistic": 0.85, "gain": 0.8, "gains": 0.8,
			"jump": 0.8, "jumps": 0.8, "strong": 0.8, "boost": 0.8,
			"growth": 0.8, "climb": 0.75, "climbs": 0.75, "rising": 0.75,
			"advance": 0.75, "upside": 0.75, "recover": 0.7, "rebound": 0.7,
			"demand": 0.65, "rise": 0.65, "rises": 0.65, "higher": 0.65,
			"support": 0.6, "safe-haven": 0.6, "inflows": 0.6, "steady": 0.5,
		},
		negative: map[string]float64{
			"crash": 1.0, "plunge": 1.0, "collapse": 1.0, "plummet": 0.95,
			"tumble": 0.95, "rout": 0.95, "panic": 0.9, "selloff": 0.9,
			"sell-off": 0.9, "bearish": 0.85, "downgrade": 0.85, "slump": 0.8,
			"decline": 0.8, "declines": 0.8, "loss": 0.8, "losses": 0.8,
			"weak": 0.75, "weakness": 0.75, "drop": 0.75, "drops": 0.75,
			"fall": 0.75, "falls": 0.75, "falling": 0.75, "slide": 0.7,
			"slides": 0.7, "outflows": 0.65, "lower": 0.6, "pressure": 0.6,
			"slowdown": 0.6, "dip": 0.55, "dips": 0.55, "retreat": 0.55,
			"pullback": 0.5, "correction": 0.5, "headwind": 0.5,
		},
		volatility: map[string]float64{
			"volatile": 1.0, "volatility": 1.0, "turmoil": 1.0, "shock": 1.0,
			"surprise": 0.9, "uncertainty": 0.9, "crisis": 0.9, "war": 0.9,
			"emergency": 0.9, "fomc": 0.8, "fed": 0.7, "ecb": 0.7, "boj": 0.7,
			"cpi": 0.8, "inflation": 0.7, "payrolls": 0.8, "nfp": 0.8,
			"hike": 0.7, "cut": 0.6, "tariff": 0.8, "tariffs": 0.8,
			"sanctions": 0.8, "escalation": 0.9, "swings": 0.7,
		},
	}
}

// Score is the keyword reading of one text.
type Score struct {
	// Sentiment is the mean signed weight of matched words, -1..1.
	Sentiment float64
	// Matches counts positive and negative hits.
	Matches int
	// Volatility is the summed weight of volatility words.
	Volatility float64
}

// Analyze scores text. Words are lowercased and stripped of punctuation.
func (a *Analyzer) Analyze(text string) Score {
	var s Score
	var sum float64
	for _, w := range strings.Fields(strings.ToLower(text)) {
		w = strings.Trim(w, ".,!?\"'()[]{}:;")
		if v, ok := a.positive[w]; ok {
			sum += v
			s.Matches++
		}
		if v, ok := a.negative[w]; ok {
			sum -= v
			s.Matches++
		}
		if v, ok := a.volatility[w]; ok {
			s.Volatility += v
		}
	}
	if s.Matches > 0 {
		s.Sentiment = sum / float64(s.Matches)
	}
	return s
}
