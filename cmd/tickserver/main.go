// Command tickserver is a demo WebSocket tick server.
// Broadcasts random-walk prices for every configured instrument so the
// market data engine can run without an exchange connection.
//
// Tick JSON shape is identical to model.Tick:
//
//	{"symbol":"XAUUSD","price":2650.35,"ts":"..."}
//
// Config (env vars):
//
//	TICK_SERVER_ADDR : listen address  (default: ":9001")
//	INSTRUMENTS_PATH : instruments file (default: "config/instruments.yaml")
//	SYMBOLS          : comma-separated subset of instruments (default: all)
//	TICK_INTERVAL    : broadcast interval (default: "250ms")
//	TICK_DRIFT       : directional bias in [-1, 1] (default: 0)
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"sync"
	"syscall"
	"time"

	"github.com/gorilla/websocket"

	"smc-systemv1/config"
	"smc-systemv1/internal/marketdata/wssim"
)

// startPrices seeds the walk near realistic levels.
var startPrices = map[string]float64{
	"XAUUSD": 2650,
	"EURUSD": 1.085,
	"GBPUSD": 1.27,
	"USDJPY": 150,
	"BTCUSD": 65000,
}

// ─── Hub ──────────────────────────────────────────────────────────────────────

type hub struct {
	mu      sync.RWMutex
	clients map[*websocket.Conn]chan []byte
}

func newHub() *hub {
	return &hub{clients: make(map[*websocket.Conn]chan []byte)}
}

func (h *hub) register(conn *websocket.Conn) chan []byte {
	ch := make(chan []byte, 256)
	h.mu.Lock()
	h.clients[conn] = ch
	h.mu.Unlock()
	return ch
}

func (h *hub) unregister(conn *websocket.Conn) {
	h.mu.Lock()
	if ch, ok := h.clients[conn]; ok {
		close(ch)
		delete(h.clients, conn)
	}
	h.mu.Unlock()
}

func (h *hub) broadcast(msg []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, ch := range h.clients {
		select {
		case ch <- msg:
		default: // slow client, drop tick
		}
	}
}

// ─── WebSocket handler ────────────────────────────────────────────────────────

var upgrader = websocket.Upgrader{
	CheckOrigin: func(_ *http.Request) bool { return true },
}

func wsHandler(h *hub) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Printf("[tickserver] upgrade error: %v", err)
			return
		}
		log.Printf("[tickserver] client connected: %s", r.RemoteAddr)

		ch := h.register(conn)
		defer func() {
			h.unregister(conn)
			conn.Close()
			log.Printf("[tickserver] client disconnected: %s", r.RemoteAddr)
		}()

		// Drain reads so close frames are noticed.
		go func() {
			for {
				if _, _, err := conn.ReadMessage(); err != nil {
					h.unregister(conn)
					return
				}
			}
		}()

		for msg := range ch {
			conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
			if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		}
	}
}

// ─── Tick generator ──────────────────────────────────────────────────────────

func runGenerator(ctx context.Context, h *hub, w *wssim.Walker, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			for _, tick := range w.Next(now) {
				b, err := json.Marshal(tick)
				if err != nil {
					continue
				}
				h.broadcast(b)
			}
		}
	}
}

// ─── main ─────────────────────────────────────────────────────────────────────

func main() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds | log.Lshortfile)
	log.Println("[tickserver] starting demo tick server...")

	cfg := config.Load()
	instruments, err := config.LoadInstruments(cfg.InstrumentsPath)
	if err != nil {
		log.Fatalf("[tickserver] %v", err)
	}
	interval := envDuration("TICK_INTERVAL", 250*time.Millisecond)

	start := make(map[string]float64)
	for _, sym := range cfg.ParseSymbols(instruments) {
		p, ok := startPrices[sym]
		if !ok {
			p = 100
		}
		start[sym] = p
	}
	if len(start) == 0 {
		log.Fatalf("[tickserver] no instruments configured")
	}
	walker := wssim.NewWalker(instruments, start, time.Now().UnixNano())
	if v, err := strconv.ParseFloat(os.Getenv("TICK_DRIFT"), 64); err == nil {
		walker.Drift = v
	}
	log.Printf("[tickserver] instruments: %v", config.SortedSymbols(instruments))
	log.Printf("[tickserver] broadcast interval: %s", interval)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	h := newHub()
	go runGenerator(ctx, h, walker, interval)

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", wsHandler(h))
	mux.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprintln(w, `{"status":"ok","service":"tickserver"}`)
	})
	srv := &http.Server{Addr: cfg.TickServerAddr, Handler: mux}

	go func() {
		<-ctx.Done()
		shutCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		srv.Shutdown(shutCtx)
	}()

	log.Printf("[tickserver] ✅ listening on %s  (WebSocket: ws://localhost%s/ws)", cfg.TickServerAddr, cfg.TickServerAddr)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatalf("[tickserver] server error: %v", err)
	}
}

func envDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			return d
		}
	}
	return def
}
