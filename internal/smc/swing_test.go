package smc

import (
	"testing"

	"smc-systemv1/internal/model"
)

func isStrictHigh(c []model.Candle, i, r int) bool {
	for j := i - r; j <= i+r; j++ {
		if j != i && c[j].High >= c[i].High {
			return false
		}
	}
	return true
}

func isStrictLow(c []model.Candle, i, r int) bool {
	for j := i - r; j <= i+r; j++ {
		if j != i && c[j].Low <= c[i].Low {
			return false
		}
	}
	return true
}

func TestDetectSwings_StrictWindow(t *testing.T) {
	for seed := int64(1); seed <= 20; seed++ {
		candles := randomWalk(seed, 300)
		for _, r := range []int{2, 5, 7} {
			swings := DetectSwings(candles, r)
			seen := make(map[int]SwingType)

			for _, s := range swings {
				if prev, dup := seen[s.Index]; dup {
					t.Fatalf("seed %d r %d: index %d reported as %s and %s", seed, r, s.Index, prev, s.Type)
				}
				seen[s.Index] = s.Type

				switch s.Type {
				case SwingHigh:
					if !isStrictHigh(candles, s.Index, r) || s.Price != candles[s.Index].High {
						t.Fatalf("seed %d r %d: high at %d is not a strict local max", seed, r, s.Index)
					}
				case SwingLow:
					if !isStrictLow(candles, s.Index, r) || s.Price != candles[s.Index].Low {
						t.Fatalf("seed %d r %d: low at %d is not a strict local min", seed, r, s.Index)
					}
				}
			}

			// Every strict extremum that is one-sided must have been reported.
			for i := r; i < len(candles)-r; i++ {
				hi, lo := isStrictHigh(candles, i, r), isStrictLow(candles, i, r)
				if hi != lo {
					if _, ok := seen[i]; !ok {
						t.Fatalf("seed %d r %d: missed swing at %d", seed, r, i)
					}
				}
			}

			for k := 1; k < len(swings); k++ {
				if swings[k].Index <= swings[k-1].Index {
					t.Fatalf("swings not ordered by index at %d", k)
				}
			}
		}
	}
}

func TestDetectSwings_TiesDisqualify(t *testing.T) {
	candles := []model.Candle{
		makeCandle(0, 10, 11, 9, 10.5),
		makeCandle(1, 10.5, 12, 10, 11),
		makeCandle(2, 11, 12, 10.2, 11.5), // equal high with index 1
		makeCandle(3, 11.5, 11.8, 10.4, 11),
		makeCandle(4, 11, 11.5, 10.6, 11.2),
	}
	for _, s := range DetectSwings(candles, 1) {
		if s.Type == SwingHigh && (s.Index == 1 || s.Index == 2) {
			t.Fatalf("tied high at %d must not be a swing", s.Index)
		}
	}
}

func TestDetectSwings_InsufficientData(t *testing.T) {
	if got := DetectSwings(ascending(10), 5); len(got) != 0 {
		t.Fatalf("expected no swings for 10 candles at radius 5, got %d", len(got))
	}
}

func TestDetectSwings_OutsideBarReportedOnce(t *testing.T) {
	candles := []model.Candle{
		makeCandle(0, 10, 10.5, 9.5, 10.2),
		makeCandle(1, 10.2, 14, 9.3, 13), // engulfs both neighbours, bigger upside
		makeCandle(2, 13, 13.2, 9.6, 9.8),
	}
	swings := DetectSwings(candles, 1)
	if len(swings) != 1 {
		t.Fatalf("expected one swing, got %d", len(swings))
	}
	if swings[0].Type != SwingHigh {
		t.Errorf("expected high, got %s", swings[0].Type)
	}
}

func TestLastSwing(t *testing.T) {
	swings := []SwingPoint{
		{Type: SwingLow, Price: 1, Index: 3},
		{Type: SwingHigh, Price: 5, Index: 6},
		{Type: SwingLow, Price: 2, Index: 9},
	}
	s, ok := LastSwing(swings, SwingLow, 9)
	if !ok || s.Index != 3 {
		t.Fatalf("LastSwing = %+v, %v", s, ok)
	}
	if _, ok := LastSwing(swings, SwingHigh, 6); ok {
		t.Fatal("expected no high before index 6")
	}
}
