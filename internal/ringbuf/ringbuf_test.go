package ringbuf

import (
	"testing"

	"smc-systemv1/internal/model"
)

func collect[T any](r *Ring[T]) []T {
	var out []T
	r.Do(func(v T) bool {
		out = append(out, v)
		return true
	})
	return out
}

func TestRing_PushOrder(t *testing.T) {
	r := New[model.Candle](4)

	r.Push(model.Candle{Time: 1, Open: 100})
	r.Push(model.Candle{Time: 2, Open: 200})

	if r.Len() != 2 {
		t.Fatalf("expected len=2, got %d", r.Len())
	}
	got := collect(r)
	if got[0].Time != 1 || got[1].Time != 2 {
		t.Fatalf("order: %+v", got)
	}
	last, ok := r.Last()
	if !ok || last.Open != 200 {
		t.Fatalf("last: %+v ok=%v", last, ok)
	}
}

func TestRing_OverwritesOldest(t *testing.T) {
	r := New[int](2)

	if r.Push(1) || r.Push(2) {
		t.Fatal("no eviction expected before full")
	}
	if !r.Push(3) {
		t.Fatal("push to full ring should evict")
	}
	if r.Overwritten() != 1 {
		t.Fatalf("expected overwritten=1, got %d", r.Overwritten())
	}
	got := collect(r)
	if len(got) != 2 || got[0] != 2 || got[1] != 3 {
		t.Fatalf("contents: %v", got)
	}
}

func TestRing_Wraparound(t *testing.T) {
	r := New[int](4)
	for i := 0; i < 22; i++ {
		r.Push(i)
	}
	got := collect(r)
	for i, v := range got {
		if v != 18+i {
			t.Fatalf("at %d: got %d want %d", i, v, 18+i)
		}
	}
}

func TestRing_DoStopsEarly(t *testing.T) {
	r := New[int](8)
	for i := 0; i < 5; i++ {
		r.Push(i)
	}
	seen := 0
	r.Do(func(int) bool {
		seen++
		return seen < 2
	})
	if seen != 2 {
		t.Fatalf("visited %d, want 2", seen)
	}
}

func TestRing_Empty(t *testing.T) {
	r := New[string](3)
	if r.Cap() != 4 {
		t.Fatalf("cap rounded to %d", r.Cap())
	}
	if _, ok := r.Last(); ok {
		t.Fatal("empty ring has no last")
	}
	if len(collect(r)) != 0 {
		t.Fatal("empty ring yielded values")
	}
}

func TestRing_NextPow2(t *testing.T) {
	cases := []struct{ in, want int }{
		{0, 1}, {1, 1}, {2, 2}, {3, 4}, {5, 8}, {7, 8}, {8, 8}, {9, 16}, {1023, 1024},
	}
	for _, tc := range cases {
		got := nextPow2(tc.in)
		if got != tc.want {
			t.Errorf("nextPow2(%d) = %d, want %d", tc.in, got, tc.want)
		}
	}
}
