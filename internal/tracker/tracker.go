// Package tracker follows emitted signals against live prices and writes
// their lifecycle (take-profit levels, stop, breakeven) back to the signal
// store.
package tracker

import (
	"context"
	"log"
	"sort"
	"sync"
	"time"

	"smc-systemv1/internal/model"
)

// Event is one status change together with the signal it applies to.
type Event struct {
	Update model.StatusUpdate
	Signal model.Signal
	Pips   float64 // signed, positive in the signal's favour
	PnL    float64 // account currency for Config.Lots
}

// Config tunes the tracker.
type Config struct {
	// Lots sizes the PnL figures reported in events and summaries.
	Lots float64
}

type position struct {
	sig    model.Signal
	status model.Status
	// stop moves to entry once TP1 is reached.
	stop float64
}

// Tracker holds the active signals. Safe for concurrent use.
type Tracker struct {
	mu          sync.Mutex
	cfg         Config
	writer      model.SignalStatusWriter
	instruments map[string]model.InstrumentSpec
	open        map[string]*position
	closed      []Event
	now         func() time.Time

	// OnEvent is called for every status change after it is written. Optional.
	OnEvent func(Event)
}

// New creates a tracker writing through w. instruments supplies pip sizes;
// symbols without a spec report raw price distances as pips.
func New(cfg Config, w model.SignalStatusWriter, instruments map[string]model.InstrumentSpec) *Tracker {
	if cfg.Lots <= 0 {
		cfg.Lots = 1
	}
	return &Tracker{
		cfg:         cfg,
		writer:      w,
		instruments: instruments,
		open:        make(map[string]*position),
		now:         time.Now,
	}
}

// Track starts following sig. Signals that are already terminal are
// ignored; tracking the same id again keeps the existing progress.
func (t *Tracker) Track(sig model.Signal) {
	if sig.Status == "" {
		sig.Status = model.StatusActive
	}
	if sig.Status.Terminal() {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.open[sig.ID]; ok {
		return
	}
	p := &position{sig: sig, status: sig.Status, stop: sig.StopLoss}
	if rank(sig.Status) >= rank(model.StatusHitTP1) {
		p.stop = sig.Entry
	}
	t.open[sig.ID] = p
}

// Load tracks every non-terminal signal held by r, e.g. after a restart.
func (t *Tracker) Load(ctx context.Context, r model.SignalReader, limit int) (int, error) {
	n := 0
	for _, st := range []model.Status{model.StatusActive, model.StatusHitTP1, model.StatusHitTP2} {
		sigs, err := r.ListSignals(ctx, model.SignalFilter{Status: st, Limit: limit})
		if err != nil {
			return n, err
		}
		for _, s := range sigs {
			t.Track(s)
			n++
		}
	}
	return n, nil
}

// Active returns the tracked signals with their current status, newest first.
func (t *Tracker) Active() []model.Signal {
	t.mu.Lock()
	out := make([]model.Signal, 0, len(t.open))
	for _, p := range t.open {
		s := p.sig
		s.Status = p.status
		out = append(out, s)
	}
	t.mu.Unlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Timestamp.After(out[j].Timestamp) })
	return out
}

// OnTick evaluates a traded price against every signal of its symbol.
func (t *Tracker) OnTick(ctx context.Context, tick model.Tick) []Event {
	return t.evaluate(ctx, tick.Symbol, tick.TS, tick.Price)
}

// OnCandle evaluates a bar. The adverse extreme is checked first, so a bar
// spanning both stop and target is counted as stopped out.
func (t *Tracker) OnCandle(ctx context.Context, symbol string, c model.Candle) []Event {
	ts := c.TS()
	t.mu.Lock()
	var buys, sells bool
	for _, p := range t.open {
		if p.sig.Symbol != symbol {
			continue
		}
		if p.sig.Action == model.ActionBuy {
			buys = true
		} else {
			sells = true
		}
	}
	t.mu.Unlock()

	var events []Event
	switch {
	case buys && !sells:
		events = append(events, t.evaluate(ctx, symbol, ts, c.Low)...)
		events = append(events, t.evaluate(ctx, symbol, ts, c.High)...)
	case sells && !buys:
		events = append(events, t.evaluate(ctx, symbol, ts, c.High)...)
		events = append(events, t.evaluate(ctx, symbol, ts, c.Low)...)
	case buys && sells:
		events = append(events, t.evaluateSide(ctx, symbol, model.ActionBuy, ts, c.Low)...)
		events = append(events, t.evaluateSide(ctx, symbol, model.ActionSell, ts, c.High)...)
		events = append(events, t.evaluate(ctx, symbol, ts, c.Close)...)
	}
	return events
}

// Run consumes ticks until ctx is cancelled or ticks is closed.
func (t *Tracker) Run(ctx context.Context, ticks <-chan model.Tick) {
	for {
		select {
		case <-ctx.Done():
			return
		case tick, ok := <-ticks:
			if !ok {
				return
			}
			t.OnTick(ctx, tick)
		}
	}
}

func (t *Tracker) evaluate(ctx context.Context, symbol string, ts time.Time, price float64) []Event {
	return t.evaluateSide(ctx, symbol, "", ts, price)
}

func (t *Tracker) evaluateSide(ctx context.Context, symbol string, side model.Action, ts time.Time, price float64) []Event {
	t.mu.Lock()
	var events []Event
	for id, p := range t.open {
		if p.sig.Symbol != symbol || (side != "" && p.sig.Action != side) {
			continue
		}
		next, exit, ok := advance(p, price)
		if !ok {
			continue
		}
		p.status = next
		if next == model.StatusHitTP1 || next == model.StatusHitTP2 {
			p.stop = p.sig.Entry
		}
		at := ts.UTC()
		sig := p.sig
		sig.Status = next
		sig.ExitPrice = exit
		sig.ExitTime = &at
		ev := Event{
			Update: model.StatusUpdate{ID: id, Status: next, ExitPrice: exit, ExitTime: &at},
			Signal: sig,
		}
		ev.Pips, ev.PnL = t.result(sig, exit)
		if next.Terminal() {
			delete(t.open, id)
			t.closed = append(t.closed, ev)
		}
		events = append(events, ev)
	}
	t.mu.Unlock()

	for _, ev := range events {
		if t.writer != nil {
			if err := t.writer.UpdateStatus(ctx, ev.Update); err != nil {
				log.Printf("[tracker] update %s -> %s: %v", ev.Update.ID, ev.Update.Status, err)
			}
		}
		log.Printf("[tracker] %s %s %s @ %g (%+.1f pips)",
			ev.Signal.Symbol, ev.Update.ID, ev.Update.Status, ev.Update.ExitPrice, ev.Pips)
		if t.OnEvent != nil {
			t.OnEvent(ev)
		}
	}
	return events
}

// advance returns the next status reached at price, if any. Status only
// moves forward; the same price seen twice yields nothing the second time.
func advance(p *position, price float64) (model.Status, float64, bool) {
	s := p.sig
	long := s.Action == model.ActionBuy
	reached := func(level float64) bool {
		if level == 0 {
			return false
		}
		if long {
			return price >= level
		}
		return price <= level
	}
	stopped := func(level float64) bool {
		if long {
			return price <= level
		}
		return price >= level
	}

	if stopped(p.stop) {
		if rank(p.status) >= rank(model.StatusHitTP1) {
			return model.StatusBreakeven, s.Entry, true
		}
		return model.StatusHitSL, s.StopLoss, true
	}

	best := p.status
	exit := 0.0
	for _, lv := range []struct {
		st    model.Status
		level float64
	}{
		{model.StatusHitTP1, s.TakeProfit1},
		{model.StatusHitTP2, s.TakeProfit2},
		{model.StatusHitTP3, s.TakeProfit3},
	} {
		if rank(lv.st) > rank(best) && reached(lv.level) {
			best, exit = lv.st, lv.level
		}
	}
	if best == p.status {
		return "", 0, false
	}
	return best, exit, true
}

func rank(s model.Status) int {
	switch s {
	case model.StatusHitTP1:
		return 1
	case model.StatusHitTP2:
		return 2
	case model.StatusHitTP3, model.StatusHitSL, model.StatusBreakeven:
		return 3
	default:
		return 0
	}
}

func (t *Tracker) result(sig model.Signal, exit float64) (pips, pnl float64) {
	move := exit - sig.Entry
	if sig.Action == model.ActionSell {
		move = -move
	}
	spec, ok := t.instruments[sig.Symbol]
	if !ok {
		return move, 0
	}
	pips = spec.Pips(move)
	if move < 0 {
		pips = -pips
	}
	return pips, spec.PnLUSD(pips, t.cfg.Lots)
}
