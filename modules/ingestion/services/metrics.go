package services

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type metrics struct {
	runsTotal         *prometheus.CounterVec
	persistedTotal    *prometheus.CounterVec
	saveFailuresTotal *prometheus.CounterVec
	referencesTotal   *prometheus.CounterVec
	staleReapedTotal  prometheus.Counter

	runDuration *prometheus.HistogramVec
}

var metricsSingleton = sync.OnceValue(func() *metrics {
	return &metrics{
		runsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: "ingestion",
			Name:      "runs_total",
			Help:      "Total number of finished ingestion runs.",
		}, []string{"result"}),
		persistedTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: "ingestion",
			Name:      "entities_persisted_total",
			Help:      "Total number of entities saved by ingestion runs.",
		}, []string{"type"}),
		saveFailuresTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: "ingestion",
			Name:      "entity_save_failures_total",
			Help:      "Total number of entities rejected by their store.",
		}, []string{"type"}),
		referencesTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: "ingestion",
			Name:      "references_total",
			Help:      "Total number of relationship writes by result.",
		}, []string{"result"}),
		staleReapedTotal: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: "ingestion",
			Name:      "stale_runs_reaped_total",
			Help:      "Total number of ongoing runs failed by the watchdog.",
		}),
		runDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "ingestion",
			Name:      "run_duration_seconds",
			Help:      "Wall-clock duration of ingestion runs.",
			Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600, 1800, 3600, 7200},
		}, []string{"result"}),
	}
})

func getMetrics() *metrics {
	return metricsSingleton()
}
