package redis

import (
	"context"
	"errors"
	"log"
	"sync"

	"smc-systemv1/internal/model"
)

// BufferedSink puts a circuit breaker in front of a signal sink. While the
// circuit is open, signals are held in memory (oldest dropped past maxBuf)
// and replayed once it closes.
type BufferedSink struct {
	sink model.SignalSink
	cb   *CircuitBreaker

	mu     sync.Mutex
	buffer []*model.Signal
	maxBuf int

	// Callbacks
	OnBuffer func()          // a signal was buffered
	OnFlush  func(count int) // buffered signals were replayed
}

// NewBufferedSink wraps sink. maxBufferSize <= 0 defaults to 1000.
func NewBufferedSink(sink model.SignalSink, cb *CircuitBreaker, maxBufferSize int) *BufferedSink {
	if maxBufferSize <= 0 {
		maxBufferSize = 1000
	}
	bs := &BufferedSink{
		sink:   sink,
		cb:     cb,
		maxBuf: maxBufferSize,
	}

	prev := cb.OnStateChange
	cb.OnStateChange = func(from, to State) {
		if prev != nil {
			prev(from, to)
		}
		log.Printf("[redis] circuit %s -> %s", from, to)
		if to == StateClosed {
			go bs.flush(context.Background())
		}
	}
	return bs
}

// SaveSignal writes through the breaker. A signal rejected by an open
// circuit is buffered and nil is returned; write errors are returned
// after buffering so the caller can log them. ErrSignalExists is passed
// through unbuffered and does not count against the breaker.
func (bs *BufferedSink) SaveSignal(ctx context.Context, sig *model.Signal) error {
	var exists error
	err := bs.cb.Execute(func() error {
		err := bs.sink.SaveSignal(ctx, sig)
		if errors.Is(err, model.ErrSignalExists) {
			exists = err
			return nil
		}
		return err
	})
	switch {
	case err == nil:
		return exists
	case errors.Is(err, ErrCircuitOpen):
		bs.hold(sig)
		return nil
	default:
		bs.hold(sig)
		return err
	}
}

func (bs *BufferedSink) hold(sig *model.Signal) {
	cp := *sig
	bs.mu.Lock()
	if len(bs.buffer) >= bs.maxBuf {
		bs.buffer = bs.buffer[1:]
	}
	bs.buffer = append(bs.buffer, &cp)
	bs.mu.Unlock()

	if bs.OnBuffer != nil {
		bs.OnBuffer()
	}
}

// flush replays buffered signals. A signal whose id is already stored
// counts as flushed.
func (bs *BufferedSink) flush(ctx context.Context) {
	bs.mu.Lock()
	if len(bs.buffer) == 0 {
		bs.mu.Unlock()
		return
	}
	pending := bs.buffer
	bs.buffer = nil
	bs.mu.Unlock()

	flushed := 0
	for i, sig := range pending {
		if err := bs.sink.SaveSignal(ctx, sig); err != nil && !errors.Is(err, model.ErrSignalExists) {
			log.Printf("[redis] flush stopped after %d: %v", flushed, err)
			bs.mu.Lock()
			bs.buffer = append(pending[i:], bs.buffer...)
			bs.mu.Unlock()
			break
		}
		flushed++
	}

	log.Printf("[redis] flushed %d buffered signals", flushed)
	if bs.OnFlush != nil {
		bs.OnFlush(flushed)
	}
}

// PendingCount returns the number of buffered signals.
func (bs *BufferedSink) PendingCount() int {
	bs.mu.Lock()
	defer bs.mu.Unlock()
	return len(bs.buffer)
}
