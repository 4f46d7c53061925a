package gateway

import (
	"context"
	"log"
	"time"

	"smc-systemv1/internal/store/redis"
)

// PubSubRouter subscribes to the engine's Redis channels and routes
// messages to the broadcaster.
type PubSubRouter struct {
	hub      *Hub
	patterns []string
}

// NewPubSubRouter creates a PubSubRouter backed by the given Hub.
func NewPubSubRouter(hub *Hub) *PubSubRouter {
	return &PubSubRouter{
		hub: hub,
		patterns: []string{
			redis.PatternAnalysis,
			redis.PatternCandles,
			redis.ChannelSignals,
			redis.ChannelSignalStatus,
		},
	}
}

// Run relays messages until ctx is cancelled, resubscribing after errors.
func (r *PubSubRouter) Run(ctx context.Context) {
	for {
		if err := r.relay(ctx); err != nil {
			log.Printf("[gateway] pubsub: %v (retrying in 2s)", err)
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(2 * time.Second):
		}
	}
}

func (r *PubSubRouter) relay(ctx context.Context) error {
	ps, err := redis.Subscribe(ctx, r.hub.Rdb, r.patterns...)
	if err != nil {
		return err
	}
	defer ps.Close()

	log.Printf("[gateway] subscribed to %v", r.patterns)

	ch := ps.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			r.hub.broadcast(msg.Channel, []byte(msg.Payload))
		}
	}
}
