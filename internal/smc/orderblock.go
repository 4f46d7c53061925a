package smc

import "smc-systemv1/internal/model"

const (
	obVolumeLookback = 20
	obVolumeSpike    = 1.5
	obVolumeBoost    = 1.25
)

// FindOrderBlocks finds the last opposite candle before a strong body move.
// A bullish block is a down candle followed by an up candle whose
// (close-open)/open exceeds threshold; bearish is the mirror. Strength is
// the move in percent, boosted when the impulse candle's volume spikes.
// Only the most recent limit blocks are returned.
func FindOrderBlocks(candles []model.Candle, threshold float64, limit int) []OrderBlock {
	var blocks []OrderBlock
	for i := 1; i < len(candles); i++ {
		prev, next := candles[i-1], candles[i]
		if next.Open <= 0 {
			continue
		}

		var ob OrderBlock
		switch {
		case prev.IsBearish() && next.IsBullish():
			move := (next.Close - next.Open) / next.Open
			if move <= threshold {
				continue
			}
			ob = OrderBlock{Type: Bullish, Strength: move * 100}
		case prev.IsBullish() && next.IsBearish():
			move := (next.Open - next.Close) / next.Open
			if move <= threshold {
				continue
			}
			ob = OrderBlock{Type: Bearish, Strength: move * 100}
		default:
			continue
		}

		ob.Top, ob.Bottom = prev.High, prev.Low
		ob.Index, ob.Time = i-1, prev.Time
		if avg := avgVolume(candles, i, obVolumeLookback); avg > 0 && next.Volume > obVolumeSpike*avg {
			ob.Strength *= obVolumeBoost
		}
		ob.Mitigated = mitigated(candles, ob)
		blocks = append(blocks, ob)
	}
	return lastN(blocks, limit)
}

// mitigated reports whether a later candle closed through the far side of
// the block, invalidating it.
func mitigated(candles []model.Candle, ob OrderBlock) bool {
	for j := ob.Index + 2; j < len(candles); j++ {
		if ob.Type == Bullish && candles[j].Close < ob.Bottom {
			return true
		}
		if ob.Type == Bearish && candles[j].Close > ob.Top {
			return true
		}
	}
	return false
}

// avgVolume averages the volume of up to n bars before index i.
func avgVolume(candles []model.Candle, i, n int) float64 {
	from := i - n
	if from < 0 {
		from = 0
	}
	if i <= from {
		return 0
	}
	sum := 0.0
	for j := from; j < i; j++ {
		sum += candles[j].Volume
	}
	return sum / float64(i-from)
}

func lastN[T any](items []T, n int) []T {
	if n > 0 && len(items) > n {
		return append([]T(nil), items[len(items)-n:]...)
	}
	return items
}
