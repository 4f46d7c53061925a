package redis

import (
	"errors"
	"testing"
	"time"
)

type clock struct{ t time.Time }

func (c *clock) now() time.Time          { return c.t }
func (c *clock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestBreaker(maxFailures int, coolDown time.Duration) (*CircuitBreaker, *clock) {
	clk := &clock{t: time.Date(2025, 3, 4, 10, 0, 0, 0, time.UTC)}
	cb := NewCircuitBreaker(maxFailures, coolDown)
	cb.now = clk.now
	return cb, clk
}

var errFail = errors.New("fail")

func TestCircuitBreaker_StartsClosed(t *testing.T) {
	cb, _ := newTestBreaker(3, time.Second)
	if cb.CurrentState() != StateClosed {
		t.Errorf("expected Closed, got %v", cb.CurrentState())
	}
}

func TestCircuitBreaker_OpensAfterFailures(t *testing.T) {
	cb, _ := newTestBreaker(3, time.Second)

	for i := 0; i < 3; i++ {
		if err := cb.Execute(func() error { return errFail }); err != errFail {
			t.Fatalf("expected errFail, got %v", err)
		}
	}
	if cb.CurrentState() != StateOpen {
		t.Errorf("expected Open after 3 failures, got %v", cb.CurrentState())
	}

	called := false
	err := cb.Execute(func() error { called = true; return nil })
	if err != ErrCircuitOpen || called {
		t.Errorf("open breaker should reject without calling: err=%v called=%v", err, called)
	}
}

func TestCircuitBreaker_HalfOpenRecovery(t *testing.T) {
	cb, clk := newTestBreaker(2, time.Second)
	for i := 0; i < 2; i++ {
		cb.Execute(func() error { return errFail })
	}

	clk.advance(500 * time.Millisecond)
	if err := cb.Execute(func() error { return nil }); err != ErrCircuitOpen {
		t.Fatalf("still cooling down, got %v", err)
	}

	clk.advance(time.Second)
	if err := cb.Execute(func() error { return nil }); err != nil {
		t.Fatalf("expected probe to pass, got %v", err)
	}
	if cb.CurrentState() != StateClosed {
		t.Errorf("expected Closed after successful probe, got %v", cb.CurrentState())
	}
}

func TestCircuitBreaker_HalfOpenFailure(t *testing.T) {
	cb, clk := newTestBreaker(2, time.Second)
	for i := 0; i < 2; i++ {
		cb.Execute(func() error { return errFail })
	}

	clk.advance(2 * time.Second)
	cb.Execute(func() error { return errFail })

	if cb.CurrentState() != StateOpen {
		t.Errorf("expected Open after failed probe, got %v", cb.CurrentState())
	}
	// the cool-down restarts from the failed probe
	if err := cb.Execute(func() error { return nil }); err != ErrCircuitOpen {
		t.Errorf("expected rejection right after failed probe, got %v", err)
	}
}

func TestCircuitBreaker_SuccessResetsFailureCount(t *testing.T) {
	cb, _ := newTestBreaker(3, time.Second)

	cb.Execute(func() error { return errFail })
	cb.Execute(func() error { return errFail })
	cb.Execute(func() error { return nil })
	cb.Execute(func() error { return errFail })
	cb.Execute(func() error { return errFail })

	if cb.CurrentState() != StateClosed {
		t.Errorf("expected Closed (counter should have reset), got %v", cb.CurrentState())
	}
}

func TestCircuitBreaker_OnStateChangeCallback(t *testing.T) {
	cb, clk := newTestBreaker(1, time.Second)
	var transitions []State
	cb.OnStateChange = func(from, to State) { transitions = append(transitions, to) }

	cb.Execute(func() error { return errFail })
	clk.advance(2 * time.Second)
	cb.Execute(func() error { return nil })

	want := []State{StateOpen, StateHalfOpen, StateClosed}
	if len(transitions) != len(want) {
		t.Fatalf("expected %v, got %v", want, transitions)
	}
	for i := range want {
		if transitions[i] != want[i] {
			t.Errorf("transition %d: got %v want %v", i, transitions[i], want[i])
		}
	}
}
