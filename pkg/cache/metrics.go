package cache

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// CacheHits tracks fallback lookups that found an entry
	CacheHits = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "offline_cache_hits_total",
			Help: "Total number of cache store hits",
		},
	)

	// CacheMisses tracks fallback lookups that found nothing
	CacheMisses = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "offline_cache_misses_total",
			Help: "Total number of cache store misses",
		},
	)

	// CacheWrites tracks successful entry writes
	CacheWrites = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "offline_cache_writes_total",
			Help: "Total number of cache entries written",
		},
	)

	// CacheWrittenBytes tracks encoded bytes written to the store
	CacheWrittenBytes = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "offline_cache_written_bytes_total",
			Help: "Total encoded bytes written to cache stores",
		},
	)

	// CacheErrors tracks cache operation errors
	CacheErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "offline_cache_errors_total",
			Help: "Total number of cache operation errors",
		},
		[]string{"operation"}, // "get", "put"
	)
)
