package gateway

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/pquerna/otp/totp"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"smc-systemv1/internal/metrics"
	"smc-systemv1/internal/model"
)

var upgrader = websocket.Upgrader{
	CheckOrigin:       func(r *http.Request) bool { return true },
	EnableCompression: true,
}

// API serves the REST and websocket endpoints.
type API struct {
	Hub     *Hub
	Signals model.SignalReader
	// Status enables the manual status override. nil disables it.
	Status model.SignalStatusWriter
	// TOTPSecret gates the status override. Empty disables it.
	TOTPSecret string
	Health     http.Handler
	Metrics    *metrics.Metrics

	start time.Time
	now   func() time.Time
}

// StatusRequest is the body of POST /api/signals/:id/status.
type StatusRequest struct {
	Status    model.Status `json:"status"`
	ExitPrice float64      `json:"exit_price"`
	Code      string       `json:"code"` // current TOTP code
}

// Router builds the gin engine with every route registered.
func (a *API) Router() *gin.Engine {
	if a.now == nil {
		a.now = time.Now
	}
	a.start = a.now()

	r := gin.New()
	r.Use(gin.Recovery(), cors(), a.observe())

	r.GET("/ws", a.serveWS)

	api := r.Group("/api")
	api.GET("/signals", a.listSignals)
	api.GET("/signals/:id", a.getSignal)
	api.POST("/signals/:id/status", a.updateStatus)
	api.GET("/analysis/:symbol/:tf", a.getAnalysis)
	api.GET("/instruments", a.listInstruments)
	api.GET("/latest", a.latest)
	api.GET("/missed", a.missed)

	if a.Health != nil {
		r.GET("/healthz", gin.WrapH(a.Health))
	}
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":     "ok",
			"ws_clients": a.Hub.ClientCount(),
			"uptime_sec": int64(a.now().Sub(a.start).Seconds()),
		})
	})
	return r
}

func cors() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Content-Type")
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}

func (a *API) observe() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		if a.Metrics != nil && c.FullPath() != "" {
			a.Metrics.HTTPLatency.WithLabelValues(c.FullPath()).Observe(time.Since(start).Seconds())
		}
	}
}

func (a *API) serveWS(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// Upgrade has already written the error response
		return
	}
	a.Hub.HandleWSRequest(conn, c.Query("last_ts"))
}

func (a *API) listSignals(c *gin.Context) {
	f := model.SignalFilter{
		Symbol: c.Query("symbol"),
		Status: model.Status(c.Query("status")),
		Limit:  100,
	}
	if f.Status != "" && !f.Status.Valid() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid status"})
		return
	}
	if l, err := strconv.Atoi(c.Query("limit")); err == nil && l > 0 && l <= 1000 {
		f.Limit = l
	}

	sigs, err := a.Signals.ListSignals(c.Request.Context(), f)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if sigs == nil {
		sigs = []model.Signal{}
	}
	c.JSON(http.StatusOK, sigs)
}

func (a *API) getSignal(c *gin.Context) {
	sig, err := a.Signals.GetSignal(c.Request.Context(), c.Param("id"))
	switch {
	case errors.Is(err, model.ErrSignalNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "signal not found"})
	case err != nil:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusOK, sig)
	}
}

func (a *API) updateStatus(c *gin.Context) {
	if a.Status == nil || a.TOTPSecret == "" {
		c.JSON(http.StatusForbidden, gin.H{"error": "status override disabled"})
		return
	}
	var req StatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid JSON"})
		return
	}
	if !totp.Validate(req.Code, a.TOTPSecret) {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid code"})
		return
	}
	if !req.Status.Valid() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid status"})
		return
	}

	u := model.StatusUpdate{ID: c.Param("id"), Status: req.Status, ExitPrice: req.ExitPrice}
	if req.Status != model.StatusActive {
		at := a.now().UTC()
		u.ExitTime = &at
	}
	err := a.Status.UpdateStatus(c.Request.Context(), u)
	switch {
	case errors.Is(err, model.ErrSignalNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "signal not found"})
	case err != nil:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusOK, u)
	}
}

func (a *API) getAnalysis(c *gin.Context) {
	symbol, tf := c.Param("symbol"), c.Param("tf")
	if a.Hub.Source == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "no analysis source"})
		return
	}
	raw, err := a.Hub.Source.LatestAnalysis(c.Request.Context(), symbol, tf)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if len(raw) == 0 {
		c.JSON(http.StatusNotFound, gin.H{"error": "no analysis for " + model.SeriesKey(symbol, tf)})
		return
	}
	c.Data(http.StatusOK, "application/json", raw)
}

type instrumentOut struct {
	model.InstrumentSpec
	Market MarketState `json:"market"`
}

func (a *API) listInstruments(c *gin.Context) {
	states := a.Hub.MarketStates(a.now())
	out := make([]instrumentOut, 0, len(states))
	for _, st := range states {
		out = append(out, instrumentOut{InstrumentSpec: a.Hub.Instruments[st.Symbol], Market: st})
	}
	c.JSON(http.StatusOK, out)
}

func (a *API) latest(c *gin.Context) {
	c.JSON(http.StatusOK, a.Hub.GetLatestAll())
}

// missed returns buffered envelopes of one channel for gap backfill.
func (a *API) missed(c *gin.Context) {
	channel := c.Query("channel")
	from, err1 := strconv.ParseInt(c.Query("from"), 10, 64)
	to, err2 := strconv.ParseInt(c.Query("to"), 10, 64)
	if channel == "" || err1 != nil || err2 != nil || from > to {
		c.JSON(http.StatusBadRequest, gin.H{"error": "channel, from and to are required"})
		return
	}

	envs := a.Hub.GetReplayRange(channel, from, to)
	buf := []byte{'['}
	for i, e := range envs {
		if i > 0 {
			buf = append(buf, ',')
		}
		buf = append(buf, e...)
	}
	buf = append(buf, ']')
	c.Data(http.StatusOK, "application/json", buf)
}
