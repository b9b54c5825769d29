// Package metrics holds the process-wide Prometheus collectors.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	CacheHitsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "globetile_cache_hits_total",
		Help: "Total resource cache hits",
	})
	CacheMissesTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "globetile_cache_misses_total",
		Help: "Total resource cache misses",
	})
	CacheEvictionsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "globetile_cache_evictions_total",
		Help: "Total resource cache entries evicted under memory pressure",
	})
	CacheOverBudgetTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "globetile_cache_over_budget_total",
		Help: "Total insertions admitted over the cache capacity",
	})
	CacheUsedBytes = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "globetile_cache_used_bytes",
		Help: "Bytes currently held by the most recently updated resource cache",
	})
	RetrievalsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "globetile_retrievals_total",
		Help: "Tile resource retrievals by outcome",
	}, []string{"outcome"})
	RetrievalsInFlight = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "globetile_retrievals_in_flight",
		Help: "Tile resource retrievals currently in flight",
	})
	RetrievalDurationMs = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "globetile_retrieval_duration_ms",
		Help:    "Tile resource retrieval duration in milliseconds",
		Buckets: []float64{1, 5, 10, 20, 50, 100, 200, 500, 1000, 5000},
	})
	StoreRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "globetile_store_requests_total",
		Help: "Persistent tier lookups by tier and result",
	}, []string{"tier", "result"})
	GesturesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "globetile_gestures_total",
		Help: "Gesture state transitions by recognizer and state",
	}, []string{"recognizer", "state"})
)

func init() {
	prometheus.MustRegister(CacheHitsTotal)
	prometheus.MustRegister(CacheMissesTotal)
	prometheus.MustRegister(CacheEvictionsTotal)
	prometheus.MustRegister(CacheOverBudgetTotal)
	prometheus.MustRegister(CacheUsedBytes)
	prometheus.MustRegister(RetrievalsTotal)
	prometheus.MustRegister(RetrievalsInFlight)
	prometheus.MustRegister(RetrievalDurationMs)
	prometheus.MustRegister(StoreRequestsTotal)
	prometheus.MustRegister(GesturesTotal)
}

// Handler serves the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
