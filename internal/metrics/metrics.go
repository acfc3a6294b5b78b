// Package metrics provides Prometheus instrumentation for the market engine.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// TradesTotal counts executed trades, partitioned by outcome and side.
	TradesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "poolodds_trades_total",
		Help: "Total number of trades executed",
	}, []string{"outcome", "side"})

	// TradeRejections counts trades rejected before execution, by reason.
	TradeRejections = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "poolodds_trade_rejections_total",
		Help: "Trades rejected by admission control",
	}, []string{"reason"})

	// TradeLatency is the trade execution latency distribution.
	TradeLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "poolodds_trade_latency_seconds",
		Help:    "Trade execution latency in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"outcome"})

	// ActiveMarkets tracks the number of active markets.
	ActiveMarkets = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "poolodds_active_markets",
		Help: "Number of currently active markets",
	})

	// MarketsResolved counts terminal resolutions by winning outcome.
	MarketsResolved = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "poolodds_markets_resolved_total",
		Help: "Markets resolved, by winning outcome",
	}, []string{"outcome"})

	// LiquidityEvents counts add/remove liquidity operations.
	LiquidityEvents = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "poolodds_liquidity_events_total",
		Help: "Liquidity add/remove operations",
	}, []string{"op"})

	// WebSocketClients tracks connected WebSocket clients.
	WebSocketClients = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "poolodds_websocket_clients",
		Help: "Number of connected WebSocket clients",
	})

	// HTTPRequestsTotal counts HTTP requests by method, path, and status.
	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "poolodds_http_requests_total",
		Help: "Total HTTP requests",
	}, []string{"method", "path", "status"})

	// HTTPRequestDuration tracks request duration by method and path.
	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "poolodds_http_request_duration_seconds",
		Help:    "HTTP request duration in seconds",
		Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0},
	}, []string{"method", "path"})
)

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Middleware returns an HTTP middleware that records request metrics.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapped := &statusWriter{ResponseWriter: w, status: 200}
		next.ServeHTTP(wrapped, r)
		duration := time.Since(start).Seconds()

		path := r.URL.Path
		HTTPRequestsTotal.WithLabelValues(r.Method, path, strconv.Itoa(wrapped.status)).Inc()
		HTTPRequestDuration.WithLabelValues(r.Method, path).Observe(duration)
	})
}

// statusWriter wraps http.ResponseWriter to capture the status code.
type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}
