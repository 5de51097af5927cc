// Package metrics exposes Prometheus instrumentation for sync cycles.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Cycle statuses
const (
	StatusOK      = "ok"
	StatusPartial = "partial"
	StatusFailed  = "failed"
)

var (
	CyclesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wallsyncd_cycles_total",
			Help: "Total number of sync cycles by status",
		},
		[]string{"status"}, // "ok", "partial", "failed"
	)

	CycleDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "wallsyncd_cycle_duration_seconds",
			Help:    "Duration of sync cycles in seconds",
			Buckets: []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120},
		},
	)

	TargetWrites = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wallsyncd_target_writes_total",
			Help: "Total number of target writes by target and outcome",
		},
		[]string{"target", "outcome"},
	)

	VariantTransforms = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wallsyncd_variant_transforms_total",
			Help: "Total number of variant transforms by role and outcome",
		},
		[]string{"role", "outcome"},
	)

	ArchiveCommits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wallsyncd_archive_commits_total",
			Help: "Total number of archive commit attempts by result",
		},
		[]string{"result"}, // "updated", "unchanged", "failed", "skipped"
	)

	LastSuccessTimestamp = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "wallsyncd_last_success_timestamp_seconds",
			Help: "Unix time of the last cycle that produced artifacts",
		},
	)
)

// RecordCycle records a finished cycle
func RecordCycle(status string, duration time.Duration, finished time.Time) {
	CyclesTotal.WithLabelValues(status).Inc()
	CycleDuration.Observe(duration.Seconds())
	if status != StatusFailed {
		LastSuccessTimestamp.Set(float64(finished.Unix()))
	}
}

// RecordTargetWrite records one target's outcome
func RecordTargetWrite(target, outcome string) {
	TargetWrites.WithLabelValues(target, outcome).Inc()
	if target == "archive" {
		ArchiveCommits.WithLabelValues(outcome).Inc()
	}
}

// RecordVariant records one variant transform
func RecordVariant(role string, ok bool) {
	outcome := "ok"
	if !ok {
		outcome = "failed"
	}
	VariantTransforms.WithLabelValues(role, outcome).Inc()
}
