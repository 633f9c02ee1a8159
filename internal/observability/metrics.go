// Package observability exposes prometheus metrics for the assimilation core.
package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the prometheus collectors for recompute runs and the job queue.
type Metrics struct {
	RecomputeRuns     *prometheus.CounterVec
	RowsCreated       prometheus.Counter
	RowsUpdated       prometheus.Counter
	DayErrors         prometheus.Counter
	AnchorsFound      prometheus.Counter
	QueueDepth        prometheus.Gauge
	JobsEnqueued      prometheus.Counter
	JobsDeduplicated  prometheus.Counter
	RecomputeDuration prometheus.Histogram
}

// NewMetrics creates and registers the core's collectors with the registerer.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		RecomputeRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "aquatrack",
			Subsystem: "assimilation",
			Name:      "recompute_runs_total",
			Help:      "Recompute runs by result",
		}, []string{"result"}),
		RowsCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "aquatrack",
			Subsystem: "assimilation",
			Name:      "rows_created_total",
			Help:      "Daily state rows created",
		}),
		RowsUpdated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "aquatrack",
			Subsystem: "assimilation",
			Name:      "rows_updated_total",
			Help:      "Daily state rows updated",
		}),
		DayErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "aquatrack",
			Subsystem: "assimilation",
			Name:      "day_errors_total",
			Help:      "Non-fatal per-day computation errors",
		}),
		AnchorsFound: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "aquatrack",
			Subsystem: "assimilation",
			Name:      "anchors_found_total",
			Help:      "Anchors detected across recompute windows",
		}),
		QueueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "aquatrack",
			Subsystem: "scheduler",
			Name:      "queue_depth",
			Help:      "Recompute jobs waiting in the queue",
		}),
		JobsEnqueued: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "aquatrack",
			Subsystem: "scheduler",
			Name:      "jobs_enqueued_total",
			Help:      "Recompute jobs accepted into the queue",
		}),
		JobsDeduplicated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "aquatrack",
			Subsystem: "scheduler",
			Name:      "jobs_deduplicated_total",
			Help:      "Recompute jobs dropped as duplicates of queued work",
		}),
		RecomputeDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "aquatrack",
			Subsystem: "assimilation",
			Name:      "recompute_duration_seconds",
			Help:      "Duration of per-assignment recompute runs",
			Buckets:   prometheus.ExponentialBuckets(0.01, 2, 12),
		}),
	}

	collectors := []prometheus.Collector{
		m.RecomputeRuns, m.RowsCreated, m.RowsUpdated, m.DayErrors,
		m.AnchorsFound, m.QueueDepth, m.JobsEnqueued, m.JobsDeduplicated,
		m.RecomputeDuration,
	}
	for _, c := range collectors {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}
