// Package metrics provides Prometheus metrics for the Sorrel service.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// DocumentsRegisteredTotal tracks document registrations by source and outcome
	DocumentsRegisteredTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "sorrel",
			Subsystem: "ingest",
			Name:      "documents_registered_total",
			Help:      "Total number of documents registered by source and outcome",
		},
		[]string{"source", "outcome"},
	)

	// RunsTotal tracks completed pipeline runs by terminal status
	RunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "sorrel",
			Subsystem: "pipeline",
			Name:      "runs_total",
			Help:      "Total number of pipeline runs by terminal status",
		},
		[]string{"status"},
	)

	// RunDuration tracks end-to-end pipeline run duration in seconds
	RunDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "sorrel",
			Subsystem: "pipeline",
			Name:      "run_duration_seconds",
			Help:      "End-to-end duration of pipeline runs in seconds",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120, 300},
		},
	)

	// StageDuration tracks per-stage duration in seconds
	StageDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "sorrel",
			Subsystem: "pipeline",
			Name:      "stage_duration_seconds",
			Help:      "Duration of individual pipeline stages in seconds",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		},
		[]string{"stage"},
	)

	// RowsProcessedTotal tracks rows by record kind and outcome
	RowsProcessedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "sorrel",
			Subsystem: "pipeline",
			Name:      "rows_processed_total",
			Help:      "Total number of rows processed by kind and outcome",
		},
		[]string{"kind", "outcome"},
	)

	// QuarantineRowsTotal tracks quarantined rows by failure code
	QuarantineRowsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "sorrel",
			Subsystem: "pipeline",
			Name:      "quarantine_rows_total",
			Help:      "Total number of quarantined rows by failure code",
		},
		[]string{"failure_code"},
	)

	// KafkaMessagesPublished tracks Kafka messages published
	KafkaMessagesPublished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "sorrel",
			Subsystem: "kafka",
			Name:      "messages_published_total",
			Help:      "Total number of messages published to Kafka",
		},
		[]string{"event_type", "status"},
	)

	// LockWaitTime tracks time spent waiting on document locks
	LockWaitTime = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "sorrel",
			Subsystem: "pipeline",
			Name:      "lock_wait_seconds",
			Help:      "Time spent waiting for per-document locks in seconds",
			Buckets:   []float64{0.001, 0.01, 0.1, 0.5, 1, 5, 10, 30},
		},
	)
)

// RecordRun records a completed pipeline run
func RecordRun(status string, durationSeconds float64) {
	RunsTotal.WithLabelValues(status).Inc()
	RunDuration.Observe(durationSeconds)
}

// RecordStage records a completed pipeline stage
func RecordStage(stage string, durationSeconds float64) {
	StageDuration.WithLabelValues(stage).Observe(durationSeconds)
}

// RecordRow records a processed row outcome
func RecordRow(kind, outcome string) {
	RowsProcessedTotal.WithLabelValues(kind, outcome).Inc()
}

// RecordQuarantine records a quarantined row
func RecordQuarantine(failureCode string) {
	QuarantineRowsTotal.WithLabelValues(failureCode).Inc()
}

// RecordKafkaPublish records a Kafka publish attempt
func RecordKafkaPublish(eventType, status string) {
	KafkaMessagesPublished.WithLabelValues(eventType, status).Inc()
}
