package smc

import (
	"testing"

	"smc-systemv1/internal/model"
)

func rangeSeries(lastClose float64) []model.Candle {
	return []model.Candle{
		makeCandle(0, 150, 200, 140, 160),
		makeCandle(1, 160, 170, 100, 120),
		makeCandle(2, lastClose, lastClose+1, lastClose-1, lastClose),
	}
}

func TestPremiumDiscount_Zones(t *testing.T) {
	cases := []struct {
		close float64
		want  Zone
	}{
		{170, ZonePremium},
		{130, ZoneDiscount},
		{150, ZoneEquilibrium},
	}
	for _, tc := range cases {
		m := PremiumDiscount(rangeSeries(tc.close), 100)
		if m.RangeHigh != 200 || m.RangeLow != 100 {
			t.Fatalf("range = [%v, %v]", m.RangeLow, m.RangeHigh)
		}
		if m.CurrentZone != tc.want {
			t.Errorf("close %v: zone %s, want %s", tc.close, m.CurrentZone, tc.want)
		}
	}
}

func TestPremiumDiscount_Partition(t *testing.T) {
	for seed := int64(1); seed <= 15; seed++ {
		candles := randomWalk(seed, 200)
		m := PremiumDiscount(candles, 80)
		bands := m.Bands()

		if len(bands) != 3 {
			t.Fatalf("expected 3 bands, got %d", len(bands))
		}
		if bands[0].Low != m.RangeLow || bands[2].High != m.RangeHigh {
			t.Fatalf("bands do not span the range: %+v", bands)
		}
		for i := 1; i < len(bands); i++ {
			if bands[i].Low != bands[i-1].High {
				t.Fatalf("gap or overlap between bands %d and %d", i-1, i)
			}
			if bands[i].Low > bands[i].High {
				t.Fatalf("inverted band %+v", bands[i])
			}
		}

		// Recompute from stored ratio levels.
		var l382, l618 float64
		for _, l := range m.Levels {
			switch l.Ratio {
			case 0.382:
				l382 = l.Price
			case 0.618:
				l618 = l.Price
			}
		}
		want := ZoneEquilibrium
		if m.CurrentPrice > l618 {
			want = ZonePremium
		} else if m.CurrentPrice < l382 {
			want = ZoneDiscount
		}
		if m.CurrentZone != want {
			t.Errorf("seed %d: zone %s, recomputed %s", seed, m.CurrentZone, want)
		}
		if m.Equilibrium != m.PriceAt(0.5) {
			t.Errorf("equilibrium mismatch")
		}
	}
}

func TestPremiumDiscount_UsesWindow(t *testing.T) {
	candles := append([]model.Candle{makeCandle(0, 500, 900, 400, 500)}, ascending(60)...)
	for i := 1; i < len(candles); i++ {
		candles[i].Time = int64(i+1) * minute
	}
	m := PremiumDiscount(candles, 50)
	if m.RangeHigh >= 900 {
		t.Fatalf("old bar outside window leaked into range: %v", m.RangeHigh)
	}
}

func TestClassifyWyckoff(t *testing.T) {
	if got := ClassifyWyckoff(ascending(60), 25).Phase; got != PhaseMarkup {
		t.Errorf("ascending: %s, want markup", got)
	}
	if got := ClassifyWyckoff(descending(60), 25).Phase; got != PhaseMarkdown {
		t.Errorf("descending: %s, want markdown", got)
	}

	drift := make([]model.Candle, 30)
	for i := range drift {
		o := 100 - float64(i)*0.02
		drift[i] = makeCandle(i, o, o+0.05, o-0.07, o-0.02)
	}
	w := ClassifyWyckoff(drift, 25)
	if w.Phase != PhaseAccumulation {
		t.Errorf("quiet drift down: %s, want accumulation", w.Phase)
	}
	if w.Confidence <= 0 || w.Confidence > 100 {
		t.Errorf("confidence out of range: %v", w.Confidence)
	}

	for i := range drift {
		o := 100 + float64(i)*0.02
		drift[i] = makeCandle(i, o, o+0.07, o-0.05, o+0.02)
	}
	if got := ClassifyWyckoff(drift, 25).Phase; got != PhaseDistribution {
		t.Errorf("quiet drift up: %s, want distribution", got)
	}
}
