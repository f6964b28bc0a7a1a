package strategy

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// servedTotal tracks how each strategy resolved a request.
	// result is one of: hit, network, stale, fallback, offline.
	servedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "edge_strategy_served_total",
			Help: "Responses served by strategy and resolution",
		},
		[]string{"strategy", "result"},
	)

	// refreshTotal tracks background stale-while-revalidate refreshes.
	refreshTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "edge_strategy_refresh_total",
			Help: "Background cache refreshes by outcome",
		},
		[]string{"outcome"}, // "stored", "skipped", "failed"
	)

	// cacheWriteFailures tracks write-through failures that were ignored.
	cacheWriteFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "edge_strategy_cache_write_failures_total",
			Help: "Write-through cache failures (response still served)",
		},
	)
)
