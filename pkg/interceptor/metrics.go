package interceptor

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Outcome labels for interceptRequestsTotal.
const (
	outcomePassthrough = "passthrough"
	outcomeNetwork     = "network"
	outcomeFallbackHit = "fallback_hit"
	outcomeOffline     = "offline"
)

var (
	interceptRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "offline_cache_requests_total",
		Help: "Requests seen by the interception layer by outcome",
	}, []string{"outcome"})

	interceptRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "offline_cache_request_duration_seconds",
		Help:    "Intercepted request duration in seconds by outcome",
		Buckets: []float64{0.005, 0.025, 0.1, 0.5, 1, 2, 5, 10},
	}, []string{"outcome"})

	backgroundWritesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "offline_cache_background_writes_total",
		Help: "Detached cache writes by result",
	}, []string{"result"}) // "ok", "error"

	storesPrunedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "offline_cache_stores_pruned_total",
		Help: "Cache stores of older generations deleted at activation",
	})

	activeGeneration = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "offline_cache_active_generation",
		Help: "Set to 1 for the generation currently active",
	}, []string{"generation"})
)
