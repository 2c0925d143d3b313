// Package telemetry exposes the monitor's Prometheus metrics.
package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
)

// MetricsRegistry holds every metric the monitor publishes, registered
// on its own registry so the dashboard's /metrics endpoint serves only
// monitor metrics.
type MetricsRegistry struct {
	Registry *prometheus.Registry

	CycleDuration   prometheus.Histogram
	CyclesTotal     *prometheus.CounterVec
	FetchErrors     *prometheus.CounterVec
	AlertsEmitted   *prometheus.CounterVec
	MissingMarkets  *prometheus.CounterVec
	SnapshotsStored prometheus.Counter
}

func NewMetricsRegistry() *MetricsRegistry {
	m := &MetricsRegistry{Registry: prometheus.NewRegistry()}

	m.CycleDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "monwatch",
		Name:      "cycle_duration_seconds",
		Help:      "Wall time of one full monitoring cycle.",
		Buckets:   prometheus.ExponentialBuckets(0.5, 2, 10),
	})
	m.CyclesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "monwatch",
		Name:      "cycles_total",
		Help:      "Completed cycles by outcome.",
	}, []string{"status"})
	m.FetchErrors = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "monwatch",
		Name:      "fetch_errors_total",
		Help:      "Per-field collection failures by venue and error kind.",
	}, []string{"venue", "kind"})
	m.AlertsEmitted = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "monwatch",
		Name:      "alerts_emitted_total",
		Help:      "Alerts emitted after confirmation and dedupe.",
	}, []string{"rule", "venue", "severity"})
	m.MissingMarkets = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "monwatch",
		Name:      "missing_markets_total",
		Help:      "Snapshots marked missing_market by venue.",
	}, []string{"venue"})
	m.SnapshotsStored = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "monwatch",
		Name:      "snapshots_stored_total",
		Help:      "Snapshot rows persisted.",
	})

	m.Registry.MustRegister(
		m.CycleDuration,
		m.CyclesTotal,
		m.FetchErrors,
		m.AlertsEmitted,
		m.MissingMarkets,
		m.SnapshotsStored,
	)
	return m
}
