// Package gateway serves chart consumers: a websocket hub relaying Redis
// pub/sub (drawables, live candles, signals) and a REST API over the signal
// store.
package gateway

import (
	"context"
	"encoding/json"
	"log"
	"sort"
	"sync"
	"time"

	goredis "github.com/go-redis/redis/v8"
	"github.com/gorilla/websocket"

	"smc-systemv1/internal/markethours"
	"smc-systemv1/internal/model"
)

// SeriesSource supplies the initial state of a subscribed series.
type SeriesSource interface {
	// LatestAnalysis returns the newest drawables JSON, or nil when none exists.
	LatestAnalysis(ctx context.Context, symbol, tf string) ([]byte, error)
	// RecentCandles returns up to limit closed bars, oldest first.
	RecentCandles(ctx context.Context, symbol, tf string, limit int) ([]model.Candle, error)
}

// Hub manages WebSocket clients and Redis PubSub fan-out.
//   - PubSubRouter: Redis subscription + message routing
//   - Broadcaster: envelope construction + client-filtered fan-out
type Hub struct {
	Rdb         *goredis.Client
	Source      SeriesSource
	Instruments map[string]model.InstrumentSpec

	mu      sync.RWMutex
	clients map[*Client]bool
	latest  map[string]latestEntry
	seq     int64

	// Per-channel monotonic sequence numbers for gap detection
	channelSeqs map[string]int64

	// Per-channel replay buffers for gap backfill
	replayBufs map[string]*ReplayBuffer

	Router      *PubSubRouter
	Broadcaster *Broadcaster

	// Optional metrics hooks
	OnClients   func(n int)
	OnBroadcast func()
}

type latestEntry struct {
	Data json.RawMessage
	TS   time.Time
	Seq  int64 // per-channel seq for gap detection
}

// NewHub creates a hub. rdb may be nil, in which case Run only waits for ctx.
func NewHub(rdb *goredis.Client, src SeriesSource, instruments map[string]model.InstrumentSpec) *Hub {
	h := &Hub{
		Rdb:         rdb,
		Source:      src,
		Instruments: instruments,
		clients:     make(map[*Client]bool),
		latest:      make(map[string]latestEntry),
		channelSeqs: make(map[string]int64),
		replayBufs:  make(map[string]*ReplayBuffer),
	}
	h.Router = NewPubSubRouter(h)
	h.Broadcaster = NewBroadcaster(h)
	return h
}

// Run starts the PubSub subscription loop. Blocks until ctx is cancelled.
func (h *Hub) Run(ctx context.Context) {
	if h.Rdb == nil {
		log.Println("[gateway] WARNING: no redis client, pub/sub relay disabled")
		<-ctx.Done()
		return
	}
	h.Router.Run(ctx)
}

// broadcast delegates to Broadcaster.
func (h *Hub) broadcast(channel string, data []byte) {
	h.Broadcaster.Broadcast(channel, data)
}

// HandleWSRequest registers an upgraded connection. lastTS (RFC3339Nano)
// limits the initial state to channels updated after it.
func (h *Hub) HandleWSRequest(conn *websocket.Conn, lastTS string) {
	client := newClient(h, conn)
	conn.EnableWriteCompression(true)

	count := h.addClient(client)
	log.Printf("[gateway] ws client connected (%d total)", count)

	go client.sendInitialState(lastTS)
	go client.writePump()
	go client.readPump()
}

func (h *Hub) addClient(c *Client) int {
	h.mu.Lock()
	h.clients[c] = true
	count := len(h.clients)
	h.mu.Unlock()
	if h.OnClients != nil {
		h.OnClients(count)
	}
	return count
}

// RemoveClient removes a client from the hub.
func (h *Hub) RemoveClient(c *Client) {
	h.mu.Lock()
	if !h.clients[c] {
		h.mu.Unlock()
		return
	}
	delete(h.clients, c)
	count := len(h.clients)
	h.mu.Unlock()
	c.close()
	if h.OnClients != nil {
		h.OnClients(count)
	}
}

// GetLatestAll returns snapshot of all latest channel data.
func (h *Hub) GetLatestAll() map[string]json.RawMessage {
	h.mu.RLock()
	defer h.mu.RUnlock()
	cp := make(map[string]json.RawMessage, len(h.latest))
	for k, v := range h.latest {
		cp[k] = v.Data
	}
	return cp
}

// GetReplayRange returns buffered envelopes for a channel in [fromSeq, toSeq].
func (h *Hub) GetReplayRange(channel string, fromSeq, toSeq int64) [][]byte {
	h.mu.RLock()
	rb, exists := h.replayBufs[channel]
	h.mu.RUnlock()
	if !exists {
		return nil
	}
	entries := rb.Range(fromSeq, toSeq)
	result := make([][]byte, len(entries))
	for i, e := range entries {
		result[i] = e.Data
	}
	return result
}

// GetChannelSeq returns the current sequence number for a channel.
func (h *Hub) GetChannelSeq(channel string) int64 {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.channelSeqs[channel]
}

// ClientCount returns the number of connected WS clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// MarketState is one instrument's trading status.
type MarketState struct {
	Symbol  string `json:"symbol"`
	Open    bool   `json:"open"`
	Session string `json:"session,omitempty"`
	Status  string `json:"status"`
}

// MarketStates returns every configured instrument's status at t, sorted by symbol.
func (h *Hub) MarketStates(t time.Time) []MarketState {
	out := make([]MarketState, 0, len(h.Instruments))
	for sym, spec := range h.Instruments {
		st := MarketState{
			Symbol: sym,
			Open:   markethours.IsOpen(spec, t),
			Status: markethours.StatusString(spec, t),
		}
		if st.Open && !spec.Always24x7() {
			st.Session = markethours.SessionLabel(t)
		}
		out = append(out, st)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Symbol < out[j].Symbol })
	return out
}

// StartMarketBroadcast sends instrument market status to all clients every interval.
func (h *Hub) StartMarketBroadcast(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			envelope, _ := json.Marshal(map[string]interface{}{
				"type":    "market",
				"markets": h.MarketStates(now),
				"ts":      now.UTC().Format(time.RFC3339Nano),
			})
			h.mu.RLock()
			for client := range h.clients {
				client.trySend(envelope)
			}
			h.mu.RUnlock()
		}
	}
}
