package storage

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	cacheLookups = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "screen",
			Subsystem: "storage",
			Name:      "cache_lookups_total",
			Help:      "Local cache lookups made by remote storage engines, by result.",
		},
		[]string{"engine", "result"},
	)

	cacheFillFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "screen",
			Subsystem: "storage",
			Name:      "cache_fill_failures_total",
			Help:      "Best-effort cache writes that failed and were ignored.",
		},
		[]string{"engine"},
	)

	remoteOperations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "screen",
			Subsystem: "storage",
			Name:      "remote_operations_total",
			Help:      "Operations issued against the remote object store, by outcome.",
		},
		[]string{"engine", "op", "outcome"},
	)
)
