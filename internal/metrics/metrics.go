// Package metrics declares the Prometheus collectors exported on /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Route outcomes.
const (
	OutcomeOK    = "ok"
	OutcomeError = "error"
	OutcomeStale = "stale"
)

var (
	RouteRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "campusnav_route_requests_total",
		Help: "Routing API requests by outcome (ok, error, stale)",
	}, []string{"outcome"})

	RouteLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "campusnav_route_request_seconds",
		Help:    "Latency of routing API requests",
		Buckets: prometheus.DefBuckets,
	})
)

var (
	ListLoads = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "campusnav_list_loads_total",
		Help: "List reloads by entity kind and outcome",
	}, []string{"kind", "outcome"})

	CoordinateErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "campusnav_coordinate_errors_total",
		Help: "POIs skipped for distance annotation because of bad coordinates",
	}, []string{"kind"})
)

var (
	ActiveSessions = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "campusnav_active_sessions",
		Help: "Number of attached sessions",
	})
)
