// Package engine runs the SMC analysis service: it keeps candle series,
// schedules synthesis passes, persists and publishes what they produce, and
// follows emitted signals to their exit.
package engine

import (
	"context"
	"errors"
	"log"
	"sort"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"smc-systemv1/internal/marketdata/candlestore"
	"smc-systemv1/internal/markethours"
	"smc-systemv1/internal/metrics"
	"smc-systemv1/internal/model"
	"smc-systemv1/internal/notification"
	"smc-systemv1/internal/strategy"
	"smc-systemv1/internal/tracker"
)

// Warmer pre-fetches news sentiment so passes hit a warm cache.
type Warmer interface {
	Warm(ctx context.Context, symbols []string)
}

// Deps are the collaborators of a Service. Synth is required; the rest are
// optional and skipped when nil.
type Deps struct {
	Store       *candlestore.Store
	Synth       *strategy.Synthesizer
	Sinks       Sinks
	Signals     model.SignalReader // consulted before emitting; survives restarts
	Publisher   model.AnalysisPublisher
	Notifier    notification.Notifier
	Tracker     *tracker.Tracker
	News        Warmer
	Instruments map[string]model.InstrumentSpec
	Metrics     *metrics.Metrics
	Health      *metrics.HealthStatus
}

// series tracks scheduling for one (symbol, timeframe).
type series struct {
	symbol, tf string
	queued     bool   // a request is in the engine
	dirty      bool   // data changed while queued
	lastSignal string // id of the last emitted signal
}

// Service is the top-level orchestrator of the engine process.
type Service struct {
	cfg         Config
	store       *candlestore.Store
	engine      *strategy.Engine
	sinks       Sinks
	signals     model.SignalReader
	publisher   model.AnalysisPublisher
	notifier    notification.Notifier
	tracker     *tracker.Tracker
	news        Warmer
	instruments map[string]model.InstrumentSpec
	prom        *metrics.Metrics
	health      *metrics.HealthStatus
	now         func() time.Time

	mu     sync.Mutex
	series map[string]*series
	runCtx context.Context

	// OnPass is called after each pass has been handled. Optional.
	OnPass func(strategy.Pass)
}

// New wires a service.
func New(cfg Config, d Deps) *Service {
	cfg.fill()
	if d.Store == nil {
		d.Store = candlestore.New(0)
	}
	if d.Notifier == nil {
		d.Notifier = notification.NewLogNotifier()
	}
	if d.Metrics == nil {
		d.Metrics = metrics.NewMetricsWith(prometheus.NewRegistry())
	}
	svc := &Service{
		cfg:         cfg,
		store:       d.Store,
		engine:      strategy.NewEngine(d.Synth, cfg.Workers, cfg.QueueSize),
		sinks:       d.Sinks,
		signals:     d.Signals,
		publisher:   d.Publisher,
		notifier:    d.Notifier,
		tracker:     d.Tracker,
		news:        d.News,
		instruments: d.Instruments,
		prom:        d.Metrics,
		health:      d.Health,
		now:         time.Now,
		series:      make(map[string]*series),
		runCtx:      context.Background(),
	}

	svc.store.OnApplied = func(key string, kind model.UpdateKind, n int) {
		svc.prom.CandlesIngested.WithLabelValues(string(kind)).Add(float64(n))
	}
	svc.store.OnRejected = func(key string, err error) {
		reason := "malformed"
		if errors.Is(err, model.ErrStaleCandle) {
			reason = "stale"
		}
		svc.prom.CandlesRejected.WithLabelValues(reason).Inc()
	}
	svc.engine.OnDrop = func(key string) {
		svc.prom.EngineDrops.Inc()
		svc.mu.Lock()
		if s := svc.series[key]; s != nil {
			s.queued = false
		}
		svc.mu.Unlock()
	}
	if svc.tracker != nil {
		svc.tracker.OnEvent = svc.onStatus
	}
	return svc
}

// Store exposes the candle store, e.g. for the gateway snapshot path.
func (svc *Service) Store() *candlestore.Store { return svc.store }

// Run starts the synthesis workers and the scheduler, then ingests updates
// until ctx is cancelled or updates is closed.
func (svc *Service) Run(ctx context.Context, updates <-chan model.CandleUpdate) error {
	svc.mu.Lock()
	svc.runCtx = ctx
	svc.mu.Unlock()

	sched, err := svc.startScheduler(ctx)
	if err != nil {
		return err
	}
	defer func() { <-sched.Stop().Done() }()

	engCtx, stopEngine := context.WithCancel(ctx)
	defer stopEngine()
	go svc.engine.Run(engCtx)

	passesDone := make(chan struct{})
	go func() {
		defer close(passesDone)
		svc.handlePasses(ctx)
	}()

	if svc.health != nil {
		svc.health.SetEngineOK(true)
		svc.health.SetTimeframes(svc.cfg.Timeframes)
	}
	log.Printf("[smcengine] running: %d workers, symbols=%v tfs=%v", svc.cfg.Workers, svc.cfg.Symbols, svc.cfg.Timeframes)

	for {
		select {
		case <-ctx.Done():
			stopEngine()
			<-passesDone
			if svc.health != nil {
				svc.health.SetEngineOK(false)
			}
			return nil
		case u, ok := <-updates:
			if !ok {
				updates = nil
				continue
			}
			if err := svc.Ingest(ctx, u); err != nil && !errors.Is(err, model.ErrStaleCandle) {
				log.Printf("[smcengine] rejected %s: %v", u.Key(), err)
			}
		}
	}
}

// Ingest applies an update to its series, feeds the tracker with the newest
// bar and schedules a pass when a bar closed or history was replaced.
func (svc *Service) Ingest(ctx context.Context, u model.CandleUpdate) error {
	if err := svc.store.Apply(u); err != nil {
		return err
	}
	last, ok := u.Last()
	if !ok {
		return nil
	}
	if svc.health != nil {
		svc.health.SetLastCandleTime(last.TS())
	}
	if svc.tracker != nil && u.Kind == model.UpdateLive {
		svc.tracker.OnCandle(ctx, u.Symbol, last)
	}
	if u.Kind == model.UpdateReplace || u.Closed {
		svc.Schedule(u.Symbol, u.Timeframe)
	}
	return nil
}

// Schedule queues a pass over the current snapshot of a series. A series
// already queued is marked dirty and re-run once its pass completes. Returns
// whether a request was submitted.
func (svc *Service) Schedule(symbol, tf string) bool {
	key := model.SeriesKey(symbol, tf)
	if svc.cfg.SkipClosedMarkets && !markethours.IsOpen(svc.instruments[symbol], svc.now()) {
		svc.prom.MarketClosed.Inc()
		return false
	}

	svc.mu.Lock()
	s := svc.seriesLocked(symbol, tf)
	if s.queued {
		s.dirty = true
		svc.mu.Unlock()
		return false
	}
	s.queued = true
	svc.mu.Unlock()

	req := strategy.Request{Symbol: symbol, Timeframe: tf, Candles: svc.store.Snapshot(key)}
	return svc.engine.Submit(req)
}

// Rescan schedules every known series. Returns how many were submitted.
func (svc *Service) Rescan() int {
	svc.mu.Lock()
	all := make([]*series, 0, len(svc.series))
	for _, s := range svc.series {
		all = append(all, s)
	}
	svc.mu.Unlock()
	sort.Slice(all, func(i, j int) bool {
		return model.SeriesKey(all[i].symbol, all[i].tf) < model.SeriesKey(all[j].symbol, all[j].tf)
	})

	n := 0
	for _, s := range all {
		if svc.Schedule(s.symbol, s.tf) {
			n++
		}
	}
	return n
}

func (svc *Service) seriesLocked(symbol, tf string) *series {
	key := model.SeriesKey(symbol, tf)
	s, ok := svc.series[key]
	if !ok {
		s = &series{symbol: symbol, tf: tf}
		svc.series[key] = s
	}
	return s
}

func (svc *Service) handlePasses(ctx context.Context) {
	for p := range svc.engine.Passes() {
		svc.handlePass(ctx, p)
		if svc.OnPass != nil {
			svc.OnPass(p)
		}
	}
}

func (svc *Service) handlePass(ctx context.Context, p strategy.Pass) {
	symbol, tf := p.Request.Symbol, p.Request.Timeframe
	svc.prom.AnalysisDur.Observe(p.Duration.Seconds())
	defer svc.finish(symbol, tf)

	if p.Err != nil {
		svc.prom.AnalysesTotal.WithLabelValues("error").Inc()
		return
	}
	res := p.Result
	svc.prom.AnalysesTotal.WithLabelValues(string(res.Outcome)).Inc()
	if res.SentimentErr != nil {
		svc.prom.SentimentErrors.Inc()
	}

	if res.Analysis != nil && svc.publisher != nil {
		d := res.Analysis.Drawables(symbol, tf)
		if err := svc.publisher.PublishAnalysis(ctx, symbol, tf, d.JSON()); err != nil {
			log.Printf("[smcengine] publish analysis %s:%s: %v", symbol, tf, err)
		}
	}
	if res.Signal != nil {
		svc.emit(ctx, res.Signal)
	}
}

// finish releases the series and re-runs it when data arrived meanwhile.
func (svc *Service) finish(symbol, tf string) {
	svc.mu.Lock()
	s := svc.seriesLocked(symbol, tf)
	rerun := s.dirty
	s.queued, s.dirty = false, false
	svc.mu.Unlock()
	if rerun {
		svc.Schedule(symbol, tf)
	}
}

// emit persists, tracks and announces a new signal. Repeat passes over the
// same closed bar produce the same id and are not announced again, neither
// within a run nor after a restart when the id is already stored.
func (svc *Service) emit(ctx context.Context, sig *model.Signal) {
	svc.mu.Lock()
	s := svc.seriesLocked(sig.Symbol, sig.Timeframe)
	dup := s.lastSignal == sig.ID
	s.lastSignal = sig.ID
	svc.mu.Unlock()
	if dup {
		return
	}

	saveCtx, cancel := context.WithTimeout(ctx, svc.cfg.SaveTimeout)
	defer cancel()
	if svc.stored(saveCtx, sig.ID) {
		log.Printf("[smcengine] signal %s already stored, not re-emitted", sig.ID)
		return
	}
	if err := svc.sinks.SaveSignal(saveCtx, sig); err != nil {
		if errors.Is(err, model.ErrSignalExists) {
			log.Printf("[smcengine] signal %s already stored, not re-emitted", sig.ID)
			return
		}
		log.Printf("[smcengine] save signal %s: %v", sig.ID, err)
	}

	svc.prom.SignalsTotal.WithLabelValues(sig.Symbol, string(sig.Action)).Inc()
	if svc.tracker != nil {
		svc.tracker.Track(*sig)
	}
	svc.notify(notification.SignalAlert(sig))
}

// stored reports whether the reader already holds id. Lookup failures
// other than not-found are logged and treated as absent.
func (svc *Service) stored(ctx context.Context, id string) bool {
	if svc.signals == nil {
		return false
	}
	_, err := svc.signals.GetSignal(ctx, id)
	if err == nil {
		return true
	}
	if !errors.Is(err, model.ErrSignalNotFound) {
		log.Printf("[smcengine] lookup signal %s: %v", id, err)
	}
	return false
}

func (svc *Service) onStatus(ev tracker.Event) {
	svc.prom.StatusUpdates.WithLabelValues(string(ev.Update.Status)).Inc()
	svc.notify(notification.StatusAlert(ev.Signal, ev.Update, ev.Pips))
}

// notify delivers off the pass loop so a slow channel cannot stall analysis.
func (svc *Service) notify(a notification.Alert) {
	svc.mu.Lock()
	parent := svc.runCtx
	svc.mu.Unlock()
	go func() {
		ctx, cancel := context.WithTimeout(parent, svc.cfg.NotifyTimeout)
		defer cancel()
		if err := svc.notifier.Send(ctx, a); err != nil {
			log.Printf("[smcengine] notify %q: %v", a.Title, err)
		}
	}()
}

// symbols lists the configured symbols, or every known instrument.
func (svc *Service) symbols() []string {
	if len(svc.cfg.Symbols) > 0 {
		return svc.cfg.Symbols
	}
	out := make([]string, 0, len(svc.instruments))
	for sym := range svc.instruments {
		out = append(out, sym)
	}
	sort.Strings(out)
	return out
}
