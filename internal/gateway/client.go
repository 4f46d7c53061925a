package gateway

import (
	"encoding/json"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Client represents a single WebSocket peer.
type Client struct {
	conn *websocket.Conn
	hub  *Hub

	sendMu sync.Mutex
	send   chan []byte
	closed bool

	// Per-client subscriptions: key = "symbol:tf"
	subMu sync.RWMutex
	subs  map[string]*ClientSubscription
}

func newClient(h *Hub, conn *websocket.Conn) *Client {
	return &Client{
		conn: conn,
		hub:  h,
		send: make(chan []byte, 256),
		subs: make(map[string]*ClientSubscription),
	}
}

// trySend queues msg without blocking. Returns false if the buffer is
// full or the client is gone.
func (c *Client) trySend(msg []byte) bool {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()
	if c.closed {
		return false
	}
	select {
	case c.send <- msg:
		return true
	default:
		return false
	}
}

func (c *Client) close() {
	c.sendMu.Lock()
	if !c.closed {
		c.closed = true
		close(c.send)
	}
	c.sendMu.Unlock()
}

func (c *Client) sendInitialState(lastTS string) {
	var cutoff time.Time
	if lastTS != "" {
		if parsed, err := time.Parse(time.RFC3339Nano, lastTS); err == nil {
			cutoff = parsed
		}
	}

	c.hub.mu.RLock()
	var envelopes [][]byte
	for channel, entry := range c.hub.latest {
		if !cutoff.IsZero() && !entry.TS.After(cutoff) {
			continue
		}
		envelope, _ := json.Marshal(map[string]interface{}{
			"channel":     channel,
			"data":        entry.Data,
			"ts":          entry.TS.Format(time.RFC3339Nano),
			"channel_seq": entry.Seq,
			"initial":     true,
		})
		envelopes = append(envelopes, envelope)
	}
	c.hub.mu.RUnlock()

	for _, e := range envelopes {
		c.trySend(e)
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(30 * time.Second)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))

			// coalesce queued messages into one frame, newline separated
			w, err := c.conn.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}
			w.Write(msg)

			n := len(c.send)
			for i := 0; i < n; i++ {
				next, ok := <-c.send
				if !ok {
					break
				}
				w.Write([]byte{'\n'})
				w.Write(next)
			}

			if err := w.Close(); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *Client) readPump() {
	defer func() {
		c.hub.RemoveClient(c)
		c.conn.Close()
		log.Println("[gateway] ws client disconnected")
	}()

	c.conn.SetReadLimit(4096)
	c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})

	for {
		_, msg, err := c.conn.ReadMessage()
		if err != nil {
			break
		}
		c.handleMessage(msg)
	}
}

func (c *Client) handleMessage(msg []byte) {
	var base struct {
		Type string `json:"type"`
		Ping int64  `json:"ping"`
	}
	if json.Unmarshal(msg, &base) != nil {
		return
	}

	switch base.Type {
	case "SUBSCRIBE":
		var subMsg SubscribeMsg
		if err := json.Unmarshal(msg, &subMsg); err != nil {
			SendError(c, "", "invalid SUBSCRIBE: "+err.Error())
			return
		}
		go c.handleSubscribe(subMsg)

	case "UNSUBSCRIBE":
		var unsubMsg UnsubscribeMsg
		if err := json.Unmarshal(msg, &unsubMsg); err != nil {
			return
		}
		c.handleUnsubscribe(unsubMsg)

	default:
		if base.Ping > 0 {
			pong, _ := json.Marshal(map[string]interface{}{
				"type":      "pong",
				"ping":      base.Ping,
				"server_ts": time.Now().UnixMilli(),
			})
			c.trySend(pong)
		}
	}
}

// matchesChannel reports whether a PubSub message on channel should reach
// this client. Clients without subscriptions receive everything; channels
// that are not per-series (signals, status) always pass.
func (c *Client) matchesChannel(channel string) bool {
	c.subMu.RLock()
	defer c.subMu.RUnlock()

	if len(c.subs) == 0 {
		return true
	}
	parsed := parseChannel(channel)
	if parsed == nil {
		return true
	}
	_, ok := c.subs[subKey(parsed.symbol, parsed.tf)]
	return ok
}

// parsedChannel holds the parsed components of a Redis PubSub channel name.
type parsedChannel struct {
	chType string // "candle" or "analysis"
	symbol string
	tf     string
}

// parseChannel parses "pub:candle:{tf}:{symbol}" and
// "pub:analysis:{symbol}:{tf}". Other channels return nil.
func parseChannel(channel string) *parsedChannel {
	parts := strings.Split(channel, ":")
	if len(parts) != 4 || parts[0] != "pub" {
		return nil
	}
	switch parts[1] {
	case "candle":
		return &parsedChannel{chType: "candle", tf: parts[2], symbol: parts[3]}
	case "analysis":
		return &parsedChannel{chType: "analysis", symbol: parts[2], tf: parts[3]}
	}
	return nil
}
