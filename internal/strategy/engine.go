// Package strategy synthesizes trade signals from the market-structure
// analysis, indicator evidence and news sentiment.
//
// The Synthesizer scores one candle snapshot. The Engine runs synthesis for
// many series, serializing passes per (symbol, timeframe) while letting
// different series proceed in parallel.
package strategy

import (
	"context"
	"hash/fnv"
	"log"
	"sync"
	"time"

	"smc-systemv1/internal/logger"
	"smc-systemv1/internal/model"
)

// Pass is the engine's report for one completed request.
type Pass struct {
	Request  Request
	Result   *Result
	Err      error
	Duration time.Duration
}

// Engine routes requests to a fixed set of workers. A series always lands on
// the same worker, so one pass finishes before the next begins for that key.
type Engine struct {
	synth   *Synthesizer
	workers []chan Request
	passCh  chan Pass
	// OnDrop is called when a request or result is dropped because a queue
	// is full. Optional.
	OnDrop func(key string)
}

// NewEngine creates an engine with n workers, each with a queue of bufSize.
func NewEngine(synth *Synthesizer, n, bufSize int) *Engine {
	if n <= 0 {
		n = 1
	}
	e := &Engine{
		synth:   synth,
		workers: make([]chan Request, n),
		passCh:  make(chan Pass, bufSize*n),
	}
	for i := range e.workers {
		e.workers[i] = make(chan Request, bufSize)
	}
	return e
}

// Passes returns the channel of completed passes.
func (e *Engine) Passes() <-chan Pass {
	return e.passCh
}

// Submit queues a request without blocking. Returns false if the worker
// queue for this series is full.
func (e *Engine) Submit(req Request) bool {
	key := model.SeriesKey(req.Symbol, req.Timeframe)
	select {
	case e.workers[shard(key, len(e.workers))] <- req:
		return true
	default:
		if e.OnDrop != nil {
			e.OnDrop(key)
		}
		return false
	}
}

// Run starts the workers and blocks until ctx is cancelled.
func (e *Engine) Run(ctx context.Context) {
	var wg sync.WaitGroup
	for i, ch := range e.workers {
		wg.Add(1)
		go func(id int, in <-chan Request) {
			defer wg.Done()
			e.work(ctx, id, in)
		}(i, ch)
	}
	wg.Wait()
	close(e.passCh)
}

func (e *Engine) work(ctx context.Context, id int, in <-chan Request) {
	for {
		select {
		case <-ctx.Done():
			return
		case req := <-in:
			key := model.SeriesKey(req.Symbol, req.Timeframe)
			passCtx := logger.WithTraceID(ctx, logger.GenerateTraceID(key, time.Now()))

			start := time.Now()
			res, err := e.synth.Synthesize(passCtx, req)
			p := Pass{Request: req, Result: res, Err: err, Duration: time.Since(start)}
			if err != nil {
				log.Printf("[strategy] worker %d: %s pass failed: %v", id, key, err)
			}

			select {
			case e.passCh <- p:
			default:
				if e.OnDrop != nil {
					e.OnDrop(key)
				}
			}
		}
	}
}

func shard(key string, n int) int {
	h := fnv.New32a()
	h.Write([]byte(key))
	return int(h.Sum32() % uint32(n))
}
