package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds all Prometheus metrics for the SMC engine and gateway.
type Metrics struct {
	// Candle intake
	CandlesIngested *prometheus.CounterVec // labels: kind=live|replace
	CandlesRejected *prometheus.CounterVec // labels: reason=stale|malformed
	FeedReconnects  prometheus.Counter
	TFCandlesTotal  *prometheus.CounterVec // labels: tf

	// Analysis
	AnalysesTotal *prometheus.CounterVec // labels: outcome
	AnalysisDur   prometheus.Histogram
	SignalsTotal  *prometheus.CounterVec // labels: symbol, action
	EngineDrops   prometheus.Counter
	MarketClosed  prometheus.Counter // passes skipped because the market was closed

	// News sentiment
	SentimentDur    prometheus.Histogram
	SentimentErrors prometheus.Counter

	// Signal lifecycle
	StatusUpdates *prometheus.CounterVec // labels: status

	// Storage
	RedisWriteDur   prometheus.Histogram
	RedisErrors     prometheus.Counter
	SQLiteCommitDur prometheus.Histogram
	SQLiteErrors    prometheus.Counter

	// Backpressure
	FanoutDropsTotal *prometheus.CounterVec // labels: subscriber

	// PEL reclaim
	PELMessagesReclaimed prometheus.Counter

	// Circuit breaker
	RedisCircuitBreakerState prometheus.Gauge // 0=closed, 1=open, 2=half-open
	RedisCircuitBreakerTrips prometheus.Counter
	RedisBufferedWrites      prometheus.Counter

	// Gateway
	WSClients   prometheus.Gauge
	WSMessages  prometheus.Counter
	HTTPLatency *prometheus.HistogramVec // labels: route
}

// NewMetrics registers all metrics with the default registry.
func NewMetrics() *Metrics {
	return NewMetricsWith(prometheus.DefaultRegisterer)
}

// NewMetricsWith registers all metrics with reg.
func NewMetricsWith(reg prometheus.Registerer) *Metrics {
	fastBuckets := []float64{0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1}

	m := &Metrics{
		CandlesIngested: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "smc_candles_ingested_total",
			Help: "Candle updates applied to the candle store",
		}, []string{"kind"}),
		CandlesRejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "smc_candles_rejected_total",
			Help: "Candle updates rejected by the candle store",
		}, []string{"reason"}),
		FeedReconnects: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "smc_feed_reconnects_total",
			Help: "Market data feed reconnection attempts",
		}),
		TFCandlesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "smc_tf_candles_total",
			Help: "Closed higher-timeframe candles built by the resampler",
		}, []string{"tf"}),

		AnalysesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "smc_analyses_total",
			Help: "Analysis passes by outcome",
		}, []string{"outcome"}),
		AnalysisDur: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "smc_analysis_duration_seconds",
			Help:    "Wall time of one analysis pass including sentiment",
			Buckets: prometheus.DefBuckets,
		}),
		SignalsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "smc_signals_total",
			Help: "Signals emitted",
		}, []string{"symbol", "action"}),
		EngineDrops: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "smc_engine_drops_total",
			Help: "Analysis requests or results dropped on full queues",
		}),
		MarketClosed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "smc_market_closed_skips_total",
			Help: "Scheduled passes skipped while the market was closed",
		}),

		SentimentDur: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "smc_sentiment_duration_seconds",
			Help:    "News sentiment fetch latency",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10},
		}),
		SentimentErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "smc_sentiment_errors_total",
			Help: "Sentiment requests that timed out or failed",
		}),

		StatusUpdates: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "smc_signal_status_updates_total",
			Help: "Signal lifecycle transitions written by the tracker",
		}, []string{"status"}),

		RedisWriteDur: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "smc_redis_write_duration_seconds",
			Help:    "Redis write latency",
			Buckets: fastBuckets,
		}),
		RedisErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "smc_redis_errors_total",
			Help: "Failed Redis writes",
		}),
		SQLiteCommitDur: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "smc_sqlite_commit_duration_seconds",
			Help:    "SQLite write latency",
			Buckets: fastBuckets,
		}),
		SQLiteErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "smc_sqlite_errors_total",
			Help: "Failed SQLite writes",
		}),

		FanoutDropsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "smc_fanout_drops_total",
			Help: "Candle updates dropped by the fan-out bus per subscriber",
		}, []string{"subscriber"}),

		PELMessagesReclaimed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "smc_pel_messages_reclaimed_total",
			Help: "Messages reclaimed from dead consumers via XCLAIM",
		}),

		RedisCircuitBreakerState: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "smc_redis_circuit_breaker_state",
			Help: "Redis circuit breaker state (0=closed, 1=open, 2=half-open)",
		}),
		RedisCircuitBreakerTrips: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "smc_redis_circuit_breaker_trips_total",
			Help: "Times the Redis circuit breaker tripped open",
		}),
		RedisBufferedWrites: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "smc_redis_buffered_writes_total",
			Help: "Signals buffered locally while the circuit was open",
		}),

		WSClients: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "smc_gateway_ws_clients",
			Help: "Connected websocket clients",
		}),
		WSMessages: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "smc_gateway_ws_messages_total",
			Help: "Messages broadcast to websocket clients",
		}),
		HTTPLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "smc_gateway_http_duration_seconds",
			Help:    "REST handler latency",
			Buckets: fastBuckets,
		}, []string{"route"}),
	}

	reg.MustRegister(
		m.CandlesIngested,
		m.CandlesRejected,
		m.FeedReconnects,
		m.TFCandlesTotal,
		m.AnalysesTotal,
		m.AnalysisDur,
		m.SignalsTotal,
		m.EngineDrops,
		m.MarketClosed,
		m.SentimentDur,
		m.SentimentErrors,
		m.StatusUpdates,
		m.RedisWriteDur,
		m.RedisErrors,
		m.SQLiteCommitDur,
		m.SQLiteErrors,
		m.FanoutDropsTotal,
		m.PELMessagesReclaimed,
		m.RedisCircuitBreakerState,
		m.RedisCircuitBreakerTrips,
		m.RedisBufferedWrites,
		m.WSClients,
		m.WSMessages,
		m.HTTPLatency,
	)

	return m
}
