package strategy

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Requests tracks executed requests by strategy.
	Requests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cachegw_strategy_requests_total",
			Help: "Total requests executed by caching strategy",
		},
		[]string{"strategy"}, // "media", "api", "default"
	)

	// Fallbacks tracks API requests served from cache after a network failure.
	Fallbacks = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "cachegw_network_fallbacks_total",
			Help: "Total API requests served from cache because the network failed",
		},
	)

	// BackgroundRefreshes tracks detached stale-while-revalidate refreshes.
	BackgroundRefreshes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cachegw_background_refreshes_total",
			Help: "Total background cache refreshes by result",
		},
		[]string{"result"}, // "stored", "skipped", "failed"
	)
)
