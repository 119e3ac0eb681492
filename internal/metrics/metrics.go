// Package metrics provides Prometheus metrics for the finahack companion.
// Scrape them at /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Remote API metrics
	APIRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "finahack_api_requests_total",
			Help: "Total number of requests sent to the Finary API, by outcome",
		},
		[]string{"method", "outcome"}, // outcome: status code, "network" or "token"
	)

	APIRetriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "finahack_api_retries_total",
			Help: "Transient-failure retries performed by the API client",
		},
		[]string{"reason"}, // "server", "network", "token"
	)

	APIReauthTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "finahack_api_reauth_total",
			Help: "Credential refreshes triggered by a 401 response",
		},
	)

	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "finahack_api_request_duration_seconds",
			Help:    "Finary API attempt latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method"},
	)

	// Sync metrics
	SyncTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "finahack_sync_total",
			Help: "Holdings refreshes by result",
		},
		[]string{"result"}, // "success", "failed", "shared"
	)

	SyncDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "finahack_sync_duration_seconds",
			Help:    "Time taken by a holdings refresh",
			Buckets: []float64{0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		},
	)

	CachedAssets = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "finahack_cached_assets",
			Help: "Number of assets in the current cache",
		},
	)

	CachedValue = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "finahack_cached_value",
			Help: "Sum of current values in the cache, by category",
		},
		[]string{"category"},
	)

	SnapshotsPruned = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "finahack_snapshots_pruned_total",
			Help: "Snapshots removed by the retention window",
		},
	)

	// HTTP metrics for the local API
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "finahack_http_requests_total",
			Help: "Total number of local HTTP API requests",
		},
		[]string{"method", "status"},
	)
)
