package smc

import (
	"math"

	"smc-systemv1/internal/model"
)

// Heuristic thresholds on the window's net change and return volatility.
// They are tuning constants, not derived values.
const (
	wyckoffSmallMove = 0.02
	wyckoffLargeMove = 0.05
	wyckoffLowVol    = 0.015
)

// ClassifyWyckoff reads the market-cycle phase over the last window candles
// from the net close-to-close change and the std-dev of bar returns.
func ClassifyWyckoff(candles []model.Candle, window int) WyckoffPhase {
	recent := candles
	if window > 1 && len(recent) > window {
		recent = recent[len(recent)-window:]
	}
	if len(recent) < 2 || recent[0].Close <= 0 {
		return WyckoffPhase{Phase: PhaseNeutral}
	}

	first, last := recent[0].Close, recent[len(recent)-1].Close
	net := (last - first) / first
	vol := returnStdDev(recent)
	abs := math.Abs(net)

	w := WyckoffPhase{NetChange: net, Volatility: vol}
	switch {
	case abs < wyckoffSmallMove && vol < wyckoffLowVol && net < 0:
		w.Phase = PhaseAccumulation
		w.Confidence = rangeConfidence(abs, vol)
	case abs < wyckoffSmallMove && vol < wyckoffLowVol && net > 0:
		w.Phase = PhaseDistribution
		w.Confidence = rangeConfidence(abs, vol)
	case net > wyckoffLargeMove:
		w.Phase = PhaseMarkup
		w.Confidence = trendConfidence(abs)
	case net < -wyckoffLargeMove:
		w.Phase = PhaseMarkdown
		w.Confidence = trendConfidence(abs)
	case abs < wyckoffSmallMove:
		w.Phase = PhaseRanging
		w.Confidence = 40
	default:
		w.Phase = PhaseNeutral
		w.Confidence = 20
	}
	return w
}

func rangeConfidence(abs, vol float64) float64 {
	c := 50*(1-abs/wyckoffSmallMove) + 50*(1-vol/wyckoffLowVol)
	return clamp(c, 0, 100)
}

func trendConfidence(abs float64) float64 {
	return clamp(50+50*(abs-wyckoffLargeMove)/wyckoffLargeMove, 0, 100)
}

// returnStdDev is the population std-dev of close-to-close returns.
func returnStdDev(candles []model.Candle) float64 {
	rets := make([]float64, 0, len(candles)-1)
	for i := 1; i < len(candles); i++ {
		if candles[i-1].Close == 0 {
			continue
		}
		rets = append(rets, (candles[i].Close-candles[i-1].Close)/candles[i-1].Close)
	}
	if len(rets) == 0 {
		return 0
	}
	mean := 0.0
	for _, r := range rets {
		mean += r
	}
	mean /= float64(len(rets))
	v := 0.0
	for _, r := range rets {
		v += (r - mean) * (r - mean)
	}
	return math.Sqrt(v / float64(len(rets)))
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}
