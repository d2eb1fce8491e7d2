// Package metrics holds the Prometheus collectors for the lifecycle and
// evaluation pipeline.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	StageRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "proctor_pipeline_stage_runs_total",
			Help: "Evaluation pipeline stage executions by outcome",
		},
		[]string{"stage", "outcome"},
	)

	StageDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "proctor_pipeline_stage_duration_seconds",
			Help:    "Duration of evaluation pipeline stages in seconds",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 10),
		},
		[]string{"stage"},
	)

	Evaluations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "proctor_evaluations_total",
			Help: "Persisted evaluations by recommendation",
		},
		[]string{"recommendation", "degraded"},
	)

	Dispatches = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "proctor_dispatch_total",
			Help: "Completion dispatches by result code",
		},
		[]string{"result"},
	)

	DispatchDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "proctor_dispatch_duration_seconds",
			Help:    "Wall-clock time callers waited on a completion dispatch",
			Buckets: prometheus.DefBuckets,
		},
	)

	DispatchesActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "proctor_dispatch_active",
			Help: "Pipeline runs currently in flight",
		},
	)

	Abandoned = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "proctor_sweeper_abandoned_total",
			Help: "Interviews moved to abandoned by the sweeper",
		},
	)

	SweepSkipped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "proctor_sweeper_skipped_total",
			Help: "Stale interviews the sweeper left alone, by reason",
		},
		[]string{"reason"},
	)

	Transitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "proctor_interview_transitions_total",
			Help: "Interview status transitions",
		},
		[]string{"from", "to"},
	)
)
