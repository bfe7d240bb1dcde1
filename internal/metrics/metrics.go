// Package metrics provides Prometheus metrics for the announcement relay.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// SyncOutcomesTotal counts per-feed outcomes of sync and list runs.
	SyncOutcomesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "relay",
			Name:      "sync_outcomes_total",
			Help:      "Total number of per-feed sync outcomes",
		},
		[]string{"mode", "status"},
	)

	// FetchDuration measures feed fetch duration.
	FetchDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "relay",
			Name:      "fetch_duration_seconds",
			Help:      "Duration of feed fetches in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"status"},
	)

	// BatchesEmittedTotal counts fan-out batches handed to a sink.
	BatchesEmittedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "relay",
			Name:      "batches_emitted_total",
			Help:      "Total number of feed batches emitted",
		},
		[]string{"sink"},
	)

	// SubscribeTotal counts subscribe requests by result.
	SubscribeTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "relay",
			Name:      "subscribe_total",
			Help:      "Total number of subscribe requests",
		},
		[]string{"result"},
	)
)

// ObserveFetch records a fetch and whether it failed.
func ObserveFetch(d time.Duration, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	FetchDuration.WithLabelValues(status).Observe(d.Seconds())
}

// RecordOutcome records one feed outcome for mode ("new" or "list").
func RecordOutcome(mode, status string) {
	SyncOutcomesTotal.WithLabelValues(mode, status).Inc()
}

// RecordBatch records an emitted batch.
func RecordBatch(sink string) {
	BatchesEmittedTotal.WithLabelValues(sink).Inc()
}

// RecordSubscribe records a subscribe result.
func RecordSubscribe(result string) {
	SubscribeTotal.WithLabelValues(result).Inc()
}
