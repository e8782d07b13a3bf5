// Package metrics holds the Prometheus collectors of the catalog service.
package metrics

import (
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "stac_http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"method", "route", "status"},
	)

	httpRequestDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "stac_http_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds.",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 14), // 1ms to ~8s
		},
		[]string{"method", "route", "status"},
	)

	searchMatched = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "stac_search_matched_items",
			Help:    "Number of items matching a search before pagination.",
			Buckets: prometheus.ExponentialBuckets(1, 4, 10),
		},
	)

	// HydrationDropped counts items that matched a query but could not be
	// loaded from the store and were left out of the page.
	HydrationDropped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "stac_hydration_dropped_total",
			Help: "Items dropped from a page because the store could not return them.",
		},
	)

	cacheResults = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "stac_cache_results_total",
			Help: "Response cache lookups by outcome.",
		},
		[]string{"outcome"},
	)

	rateLimited = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "stac_rate_limited_total",
			Help: "Requests rejected by the rate limiter.",
		},
	)

	// IngestEvents counts item mutations by source and outcome.
	IngestEvents = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "stac_ingest_events_total",
			Help: "Item mutations processed by ingest source and outcome.",
		},
		[]string{"source", "outcome"},
	)

	snapshotItems = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "stac_snapshot_items",
			Help: "Number of items in the published catalog snapshot.",
		},
	)

	snapshotVersion = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "stac_snapshot_version",
			Help: "Version of the published catalog snapshot.",
		},
	)

	// AuditDropped counts audit records discarded because the writer was
	// behind.
	AuditDropped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "stac_audit_dropped_total",
			Help: "Audit records dropped because the write buffer was full.",
		},
	)

	buildInfo = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "stac_build_info",
			Help: "Build information for the binary (value is always 1).",
		},
		[]string{"version"},
	)
)

// Handler serves the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}

func ObserveHTTP(method, route string, status int, durationSeconds float64) {
	st := strconv.Itoa(status)
	httpRequestsTotal.WithLabelValues(method, route, st).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route, st).Observe(durationSeconds)
}

func ObserveSearch(matched int) {
	searchMatched.Observe(float64(matched))
}

func IncCacheHit()  { cacheResults.WithLabelValues("hit").Inc() }
func IncCacheMiss() { cacheResults.WithLabelValues("miss").Inc() }

func IncRateLimited() { rateLimited.Inc() }

// ObserveIngest records the outcome ("upserted", "deleted", "rejected",
// "invalid", "error") of one item mutation from source ("seed", "kafka",
// "watch").
func ObserveIngest(source, outcome string) {
	IngestEvents.WithLabelValues(source, outcome).Inc()
}

// SetSnapshot publishes the size and version of the current snapshot.
func SetSnapshot(items int, version uint64) {
	snapshotItems.Set(float64(items))
	snapshotVersion.Set(float64(version))
}

func ExposeBuildInfo(version string) {
	if version == "" {
		version = "dev"
	}
	buildInfo.WithLabelValues(version).Set(1)
}
