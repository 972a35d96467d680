// Package metrics exposes the Prometheus registry used by the offline cache.
// Metrics are defined next to the code that records them (cache, precache,
// interceptor) via promauto and land in the default registry.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry is the registerer all offline_cache_* metrics use.
var Registry = prometheus.DefaultRegisterer

// Gatherer is the gatherer served by Handler.
var Gatherer = prometheus.DefaultGatherer

// Handler serves the Prometheus exposition of Gatherer.
func Handler() http.Handler {
	return promhttp.HandlerFor(Gatherer, promhttp.HandlerOpts{})
}

// Metrics Documentation
//
// Interception (pkg/interceptor):
//   - offline_cache_requests_total{outcome} (Counter): passthrough, network, fallback_hit, offline
//   - offline_cache_request_duration_seconds{outcome} (Histogram)
//   - offline_cache_background_writes_total{result} (Counter): detached writes, ok or error
//   - offline_cache_stores_pruned_total (Counter): stores of older generations deleted
//   - offline_cache_active_generation{generation} (Gauge): 1 for the active generation
//
// Cache store (pkg/cache):
//   - offline_cache_hits_total (Counter)
//   - offline_cache_misses_total (Counter)
//   - offline_cache_writes_total (Counter)
//   - offline_cache_written_bytes_total (Counter)
//   - offline_cache_errors_total{operation} (Counter): get, put
//
// Pre-warm (pkg/precache):
//   - offline_cache_precache_total{result} (Counter): stored, failed
//
// Example Prometheus Queries:
//
//   # Share of requests answered from cache while offline
//   sum(rate(offline_cache_requests_total{outcome="fallback_hit"}[5m])) /
//   sum(rate(offline_cache_requests_total{outcome=~"fallback_hit|offline"}[5m]))
//
//   # Offline misses
//   rate(offline_cache_requests_total{outcome="offline"}[5m])
//
//   # P95 latency of network-first requests
//   histogram_quantile(0.95, rate(offline_cache_request_duration_seconds_bucket{outcome="network"}[5m]))
