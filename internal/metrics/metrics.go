// Package metrics exposes Prometheus instrumentation for the collection
// pipeline.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// CollectionRuns counts collection cycles per location.
	CollectionRuns = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "airsentinel_collection_runs_total",
		Help: "Number of collection cycles executed, per location.",
	}, []string{"location"})

	// ReadingsStored counts readings persisted, per source.
	ReadingsStored = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "airsentinel_readings_stored_total",
		Help: "Number of readings persisted, per source.",
	}, []string{"source"})

	// SourceFailures counts adapter fetches that produced no reading.
	SourceFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "airsentinel_source_failures_total",
		Help: "Number of failed adapter fetches, per source.",
	}, []string{"source"})

	// CollectionDuration observes wall time of a full collection cycle for
	// one location.
	CollectionDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "airsentinel_collection_duration_seconds",
		Help:    "Duration of a per-location collection cycle.",
		Buckets: prometheus.DefBuckets,
	})
)
