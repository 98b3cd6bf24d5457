// Package server — metrics.go registers all Prometheus metrics for the HTTP
// server and exposes helpers used by handlers and middleware.
package server

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metric label values shared across registrations.
const (
	// labelHandler is the "handler" label value used to partition metrics by
	// the logical endpoint name rather than the raw URL path.
	labelHandler = "handler"
)

// serverMetrics holds all Prometheus metrics owned by the HTTP server.
// A single instance is created in New and stored on Server so that tests can
// inject a fresh prometheus.Registry without polluting the default one.
type serverMetrics struct {
	// turnsTotal counts completed chat turns, partitioned by outcome:
	// "ok" or "error".
	turnsTotal *prometheus.CounterVec

	// turnDurationSeconds records the wall-clock duration of each chat turn
	// from request receipt to the last display line.
	turnDurationSeconds *prometheus.HistogramVec

	// scopeSwitchesTotal counts turns after which the conversation's active
	// manual differs from before the turn.
	scopeSwitchesTotal prometheus.Counter

	// guardViolationsTotal counts turns whose answer was replaced by the
	// guard refusal because retrieval leaked fragments from another manual.
	guardViolationsTotal prometheus.Counter

	// httpRequestsTotal counts all HTTP requests handled by the mux,
	// partitioned by method, handler name, and status code.
	httpRequestsTotal *prometheus.CounterVec

	// httpDurationSeconds records the latency of all HTTP requests.
	httpDurationSeconds *prometheus.HistogramVec
}

// newServerMetrics registers all server metrics against reg and returns the
// populated serverMetrics. promauto.With(reg) is used so that each call
// registers into the provided registry rather than the global default —
// this keeps unit tests hermetic.
func newServerMetrics(reg prometheus.Registerer) *serverMetrics {
	factory := promauto.With(reg)

	return &serverMetrics{
		turnsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "vivoassist",
			Subsystem: "chat",
			Name:      "turns_total",
			Help:      "Total number of chat turns completed, partitioned by outcome.",
		}, []string{"outcome"}),

		turnDurationSeconds: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "vivoassist",
			Subsystem: "chat",
			Name:      "turn_duration_seconds",
			Help:      "Wall-clock duration of chat turns from receipt to the last display line.",
			Buckets:   []float64{0.1, 0.5, 1, 5, 10, 30, 60, 120},
		}, []string{"outcome"}),

		scopeSwitchesTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "vivoassist",
			Subsystem: "chat",
			Name:      "scope_switches_total",
			Help:      "Total number of turns after which the active manual changed.",
		}),

		guardViolationsTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "vivoassist",
			Subsystem: "chat",
			Name:      "guard_violations_total",
			Help:      "Total number of answers replaced by the guard refusal.",
		}),

		httpRequestsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "vivoassist",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests handled by the server, partitioned by method, handler, and status code.",
		}, []string{"method", labelHandler, "code"}),

		httpDurationSeconds: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "vivoassist",
			Subsystem: "http",
			Name:      "duration_seconds",
			Help:      "Latency of HTTP requests handled by the server.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", labelHandler}),
	}
}
