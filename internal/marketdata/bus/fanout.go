// Package bus fans candle updates out from one producer to the candle
// store, the history persister and the gateway.
package bus

import (
	"context"
	"log"
	"sync"

	"smc-systemv1/internal/model"
)

// FanOut broadcasts updates from a single input channel to N named outputs.
// If an output channel is full, the update is dropped for that consumer to
// prevent a slow consumer from blocking the pipeline.
type FanOut struct {
	mu      sync.RWMutex
	outputs []chan model.CandleUpdate
	names   []string
	bufSize int

	// OnDrop is called when an update is dropped for a subscriber.
	OnDrop func(subscriber string)
}

// New creates a FanOut with the given buffer size for output channels.
func New(outputBufferSize int) *FanOut {
	return &FanOut{bufSize: outputBufferSize}
}

// Subscribe creates and returns a new output channel. name labels drops.
func (f *FanOut) Subscribe(name string) <-chan model.CandleUpdate {
	ch := make(chan model.CandleUpdate, f.bufSize)
	f.mu.Lock()
	f.outputs = append(f.outputs, ch)
	f.names = append(f.names, name)
	f.mu.Unlock()
	return ch
}

// Run reads from the input channel and fans out to all subscribers.
// Outputs are closed when Run returns.
func (f *FanOut) Run(ctx context.Context, input <-chan model.CandleUpdate) {
	defer func() {
		f.mu.RLock()
		for _, ch := range f.outputs {
			close(ch)
		}
		f.mu.RUnlock()
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case u, ok := <-input:
			if !ok {
				return
			}
			f.mu.RLock()
			for i, ch := range f.outputs {
				select {
				case ch <- u:
				default:
					if f.OnDrop != nil {
						f.OnDrop(f.names[i])
					} else {
						log.Printf("[bus] output %s full, dropping %s", f.names[i], u.Key())
					}
				}
			}
			f.mu.RUnlock()
		}
	}
}

// ChannelStat reports (length, capacity) of one subscriber channel.
type ChannelStat struct {
	Name string
	Len  int
	Cap  int
}

// ChannelStats returns saturation for each subscriber.
func (f *FanOut) ChannelStats() []ChannelStat {
	f.mu.RLock()
	defer f.mu.RUnlock()
	stats := make([]ChannelStat, len(f.outputs))
	for i, ch := range f.outputs {
		stats[i] = ChannelStat{Name: f.names[i], Len: len(ch), Cap: cap(ch)}
	}
	return stats
}
