// Package metrics exposes pipeline counters to Prometheus. A nil *Metrics
// records nothing.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "medallion"

// Metrics holds the pipeline collectors.
type Metrics struct {
	runs      *prometheus.CounterVec
	stages    *prometheus.HistogramVec
	rows      *prometheus.CounterVec
	facts     *prometheus.CounterVec
	documents *prometheus.CounterVec
	files     *prometheus.CounterVec
	lastRun   prometheus.Gauge
}

// New creates the collectors and registers them with reg. A nil reg leaves
// them unregistered.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "runs_total",
			Help: "Pipeline runs by final status.",
		}, []string{"status"}),
		stages: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace, Name: "stage_duration_seconds",
			Help:    "Time spent in each pipeline state.",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 14),
		}, []string{"stage"}),
		rows: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "rows_upserted_total",
			Help: "Dimension rows upserted into the warehouse.",
		}, []string{"entity"}),
		facts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "fact_changes_total",
			Help: "Fact rows changed by CDC action.",
		}, []string{"action"}),
		documents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "documents_indexed_total",
			Help: "Search documents by entity and result.",
		}, []string{"entity", "status"}),
		files: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "files_ingested_total",
			Help: "Source files by ingest outcome.",
		}, []string{"status"}),
		lastRun: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "last_run_timestamp_seconds",
			Help: "Unix time the last run finished.",
		}),
	}
	if reg != nil {
		reg.MustRegister(m.runs, m.stages, m.rows, m.facts, m.documents, m.files, m.lastRun)
	}
	return m
}

// Run records a finished run.
func (m *Metrics) Run(status string, finished time.Time) {
	if m == nil {
		return
	}
	m.runs.WithLabelValues(status).Inc()
	m.lastRun.Set(float64(finished.Unix()))
}

// Stage records the time spent in a state.
func (m *Metrics) Stage(stage string, d time.Duration) {
	if m == nil {
		return
	}
	m.stages.WithLabelValues(stage).Observe(d.Seconds())
}

// Rows counts upserted dimension rows.
func (m *Metrics) Rows(entity string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.rows.WithLabelValues(entity).Add(float64(n))
}

// Facts counts applied CDC changes.
func (m *Metrics) Facts(upserted, deleted int) {
	if m == nil {
		return
	}
	m.facts.WithLabelValues("upsert").Add(float64(upserted))
	m.facts.WithLabelValues("delete").Add(float64(deleted))
}

// Documents counts search sync results of one entity.
func (m *Metrics) Documents(entity string, indexed, invalid, failed int) {
	if m == nil {
		return
	}
	m.documents.WithLabelValues(entity, "indexed").Add(float64(indexed))
	m.documents.WithLabelValues(entity, "invalid").Add(float64(invalid))
	m.documents.WithLabelValues(entity, "failed").Add(float64(failed))
}

// File counts one source file by outcome status.
func (m *Metrics) File(status string) {
	if m == nil {
		return
	}
	m.files.WithLabelValues(status).Inc()
}
