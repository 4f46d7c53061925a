package markethours

import (
	"testing"
	"time"

	"smc-systemv1/internal/model"
)

func utc(y int, m time.Month, d, h, min int) time.Time {
	return time.Date(y, m, d, h, min, 0, 0, time.UTC)
}

func TestIsFXOpen_WeekBoundaries(t *testing.T) {
	cases := []struct {
		at   time.Time
		want bool
	}{
		{utc(2025, 3, 5, 13, 0), true},   // Wednesday
		{utc(2025, 3, 7, 21, 59), true},  // Friday before close
		{utc(2025, 3, 7, 22, 0), false},  // Friday close
		{utc(2025, 3, 8, 12, 0), false},  // Saturday
		{utc(2025, 3, 9, 21, 0), false},  // Sunday before open
		{utc(2025, 3, 9, 22, 0), true},   // Sunday open
		{utc(2025, 12, 25, 12, 0), false}, // Christmas
	}
	for _, c := range cases {
		if got := IsFXOpen(c.at); got != c.want {
			t.Errorf("IsFXOpen(%s) = %v, want %v", c.at, got, c.want)
		}
	}
}

func TestIsOpen_CryptoTradesWeekends(t *testing.T) {
	sat := utc(2025, 3, 8, 12, 0)
	if !IsOpen(model.InstrumentSpec{Symbol: "BTCUSD", Class: "crypto"}, sat) {
		t.Error("crypto should trade on Saturday")
	}
	if IsOpen(model.InstrumentSpec{Symbol: "EURUSD", Class: "fx"}, sat) {
		t.Error("fx should be closed on Saturday")
	}
}

func TestSessionLabel(t *testing.T) {
	cases := map[time.Time]string{
		utc(2025, 3, 5, 13, 0): "London/NewYork overlap",
		utc(2025, 3, 5, 3, 0):  "Sydney/Tokyo overlap",
		utc(2025, 3, 5, 22, 0): "Sydney session",
		utc(2025, 3, 5, 10, 0): "London session",
		utc(2025, 3, 8, 10, 0): "",
	}
	for at, want := range cases {
		if got := SessionLabel(at); got != want {
			t.Errorf("SessionLabel(%s) = %q, want %q", at, got, want)
		}
	}
}

func TestNextOpen(t *testing.T) {
	got := NextOpen(utc(2025, 3, 8, 12, 30))
	if want := utc(2025, 3, 9, 22, 0); !got.Equal(want) {
		t.Errorf("NextOpen = %s, want %s", got, want)
	}
	open := utc(2025, 3, 5, 13, 0)
	if got := NextOpen(open); !got.Equal(open) {
		t.Errorf("open market should return t, got %s", got)
	}
}

func TestWeekClose(t *testing.T) {
	if got := WeekClose(utc(2025, 3, 5, 13, 0)); !got.Equal(utc(2025, 3, 7, 22, 0)) {
		t.Errorf("WeekClose = %s", got)
	}
	if got := WeekClose(utc(2025, 3, 9, 23, 0)); !got.Equal(utc(2025, 3, 14, 22, 0)) {
		t.Errorf("WeekClose from Sunday = %s", got)
	}
}
