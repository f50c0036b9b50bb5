package partition

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// CacheHits tracks lookups served from a partition.
	CacheHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cachegw_partition_hits_total",
			Help: "Total number of partition cache hits",
		},
		[]string{"partition"},
	)

	// CacheMisses tracks lookups that found nothing.
	CacheMisses = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cachegw_partition_misses_total",
			Help: "Total number of partition cache misses",
		},
		[]string{"partition"},
	)

	// StorageErrors tracks backend operation errors.
	StorageErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cachegw_partition_errors_total",
			Help: "Total number of partition storage errors",
		},
		[]string{"operation"}, // "open", "get", "put", "names", "drop"
	)

	// WarmUpFailures tracks precache URLs that could not be fetched or stored.
	WarmUpFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "cachegw_warmup_failures_total",
			Help: "Total number of precache URLs that failed during warm-up",
		},
	)

	// PartitionsEvicted tracks partitions deleted during activation.
	PartitionsEvicted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "cachegw_partitions_evicted_total",
			Help: "Total number of partitions evicted as unlisted",
		},
	)
)
