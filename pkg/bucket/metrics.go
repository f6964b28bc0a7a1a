package bucket

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// CacheHits tracks cache hits by backend (redis, memory)
	CacheHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "edge_cache_hits_total",
			Help: "Total number of cache hits",
		},
		[]string{"backend"},
	)

	// CacheMisses tracks cache misses by backend
	CacheMisses = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "edge_cache_misses_total",
			Help: "Total number of cache misses",
		},
		[]string{"backend"},
	)

	// CacheWrittenBytes tracks bytes written to the cache by backend.
	// Overwrites and pruning do not subtract, so this counts write volume,
	// not current cache size.
	CacheWrittenBytes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "edge_cache_written_bytes_total",
			Help: "Total bytes written to the response cache",
		},
		[]string{"backend"},
	)

	// CacheErrors tracks cache operation errors
	CacheErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "edge_cache_errors_total",
			Help: "Total number of cache operation errors",
		},
		[]string{"operation"}, // "open", "get", "put", "delete"
	)

	// BucketsDeleted tracks buckets removed by version pruning
	BucketsDeleted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "edge_cache_buckets_deleted_total",
			Help: "Total number of cache buckets deleted during pruning",
		},
	)
)
