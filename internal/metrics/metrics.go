// Package metrics provides Prometheus instrumentation for the paper
// trading pipeline.
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
	// SignalsEmittedTotal counts TradeSignals emitted, partitioned by
	// strategy kind and side.
	SignalsEmittedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "nbapaper_signals_emitted_total",
		Help: "Total trade signals emitted by strategies",
	}, []string{"strategy_kind", "side"})

	// OrdersFilledTotal counts simulated fills, partitioned by side.
	OrdersFilledTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "nbapaper_orders_filled_total",
		Help: "Total simulated orders filled",
	}, []string{"side"})

	// RiskRejectionsTotal counts RiskGate rejections, partitioned by the
	// limit type that tripped.
	RiskRejectionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "nbapaper_risk_rejections_total",
		Help: "Total orders rejected by the risk gate",
	}, []string{"limit_type"})

	// ActiveGames tracks the number of currently loaded games.
	ActiveGames = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "nbapaper_active_games",
		Help: "Number of currently loaded games",
	})

	// ExchangeStreamReconnects counts ExchangeStream reconnect attempts.
	ExchangeStreamReconnects = promauto.NewCounter(prometheus.CounterOpts{
		Name: "nbapaper_exchange_stream_reconnects_total",
		Help: "Total ExchangeStream reconnection attempts",
	})

	// PollerLatency tracks poller round-trip latency, partitioned by poller.
	PollerLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "nbapaper_poller_latency_seconds",
		Help:    "Poller round-trip latency in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"poller"})

	// StrategyEvalDuration tracks strategy evaluate() wall time against the
	// 500ms soft evaluation budget.
	StrategyEvalDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "nbapaper_strategy_eval_duration_seconds",
		Help:    "StrategyEngine per-(strategy,game) evaluation duration",
		Buckets: []float64{0.001, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2},
	}, []string{"strategy_kind"})

	// RealizedPnLTotal is a counter for realized P&L in cents, partitioned
	// by strategy. Nothing in this module increments it, so it reads zero.
	RealizedPnLTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "nbapaper_realized_pnl_cents_total",
		Help: "Cumulative realized P&L in cents (monotonic counter of gains only; see logs for losses)",
	}, []string{"strategy_id"})

	// HTTPRequestsTotal counts HTTP requests to the ops-facing surface.
	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "nbapaper_http_requests_total",
		Help: "Total HTTP requests to the operational surface",
	}, []string{"method", "path", "status"})

	// HTTPRequestDuration tracks request duration by method and path.
	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "nbapaper_http_request_duration_seconds",
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
