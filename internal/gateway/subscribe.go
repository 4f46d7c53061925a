package gateway

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"smc-systemv1/internal/model"
)

// ── WS Protocol Message Types ──

// SubscribeMsg is the client → server SUBSCRIBE request.
type SubscribeMsg struct {
	Type    string         `json:"type"`   // "SUBSCRIBE"
	ReqID   string         `json:"reqId"`  // client-generated request ID
	Symbol  string         `json:"symbol"` // e.g. "XAUUSD"
	TF      string         `json:"tf"`     // e.g. "15m"
	History HistoryRequest `json:"history"`
}

// HistoryRequest specifies how many historical candles to fetch.
type HistoryRequest struct {
	Candles int `json:"candles"`
}

// UnsubscribeMsg is the client → server UNSUBSCRIBE request.
type UnsubscribeMsg struct {
	Type   string `json:"type"` // "UNSUBSCRIBE"
	ReqID  string `json:"reqId"`
	Symbol string `json:"symbol"`
	TF     string `json:"tf"`
}

// SnapshotResponse is the server → client SNAPSHOT for a new subscription.
type SnapshotResponse struct {
	Type     string          `json:"type"` // "SNAPSHOT"
	ReqID    string          `json:"reqId"`
	Symbol   string          `json:"symbol"`
	TF       string          `json:"tf"`
	Candles  []model.Candle  `json:"candles"`
	Analysis json.RawMessage `json:"analysis"` // drawables, null until the first pass
}

// ErrorResponse is the server → client ERROR message.
type ErrorResponse struct {
	Type  string `json:"type"` // "ERROR"
	ReqID string `json:"reqId,omitempty"`
	Error string `json:"error"`
}

// ClientSubscription holds per-(symbol, tf) state for a client.
type ClientSubscription struct {
	Symbol string
	TF     string
}

func subKey(symbol, tf string) string { return model.SeriesKey(symbol, tf) }

const (
	defaultHistory = 500
	maxHistory     = 2000
)

// handleSubscribe registers the subscription and replies with a snapshot.
func (c *Client) handleSubscribe(msg SubscribeMsg) {
	if msg.Symbol == "" || msg.TF == "" {
		SendError(c, msg.ReqID, "symbol and tf are required")
		return
	}
	if _, err := model.ParseTimeframe(msg.TF); err != nil {
		SendError(c, msg.ReqID, "invalid tf: "+msg.TF)
		return
	}
	if c.hub.Instruments != nil {
		if _, ok := c.hub.Instruments[msg.Symbol]; !ok {
			SendError(c, msg.ReqID, "unknown symbol: "+msg.Symbol)
			return
		}
	}

	c.subMu.Lock()
	c.subs[subKey(msg.Symbol, msg.TF)] = &ClientSubscription{Symbol: msg.Symbol, TF: msg.TF}
	c.subMu.Unlock()

	log.Printf("[subscribe] client subscribed: symbol=%s tf=%s", msg.Symbol, msg.TF)

	limit := msg.History.Candles
	if limit <= 0 {
		limit = defaultHistory
	}
	if limit > maxHistory {
		limit = maxHistory
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	snap := BuildSnapshot(ctx, c.hub.Source, msg.Symbol, msg.TF, limit)
	snap.ReqID = msg.ReqID

	SendJSON(c, snap)
	log.Printf("[subscribe] sent snapshot: symbol=%s tf=%s candles=%d analysis=%v",
		msg.Symbol, msg.TF, len(snap.Candles), snap.Analysis != nil)
}

// handleUnsubscribe removes a subscription.
func (c *Client) handleUnsubscribe(msg UnsubscribeMsg) {
	c.subMu.Lock()
	delete(c.subs, subKey(msg.Symbol, msg.TF))
	c.subMu.Unlock()

	log.Printf("[subscribe] client unsubscribed: symbol=%s tf=%s", msg.Symbol, msg.TF)
}

// BuildSnapshot reads candles and the latest drawables from src. Read
// failures leave the corresponding field empty.
func BuildSnapshot(ctx context.Context, src SeriesSource, symbol, tf string, limit int) *SnapshotResponse {
	snap := &SnapshotResponse{
		Type:    "SNAPSHOT",
		Symbol:  symbol,
		TF:      tf,
		Candles: []model.Candle{},
	}
	if src == nil {
		return snap
	}

	candles, err := src.RecentCandles(ctx, symbol, tf, limit)
	if err != nil {
		log.Printf("[subscribe] candle read error for %s:%s: %v", symbol, tf, err)
	} else if candles != nil {
		snap.Candles = candles
	}

	analysis, err := src.LatestAnalysis(ctx, symbol, tf)
	if err != nil {
		log.Printf("[subscribe] analysis read error for %s:%s: %v", symbol, tf, err)
	} else if len(analysis) > 0 {
		snap.Analysis = analysis
	}
	return snap
}

// SendJSON marshals and queues a message for the client.
func SendJSON(c *Client, v interface{}) {
	data, err := json.Marshal(v)
	if err != nil {
		log.Printf("[subscribe] json marshal error: %v", err)
		return
	}
	if !c.trySend(data) {
		log.Println("[subscribe] client send buffer full, dropping message")
	}
}

// SendError sends an error response to the client.
func SendError(c *Client, reqID, errMsg string) {
	SendJSON(c, ErrorResponse{
		Type:  "ERROR",
		ReqID: reqID,
		Error: errMsg,
	})
}
