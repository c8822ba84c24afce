package syncer

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics provides Prometheus metrics for sync passes.
// All methods are nil-safe: calls on a nil *Metrics are no-ops.
type Metrics struct {
	// PassesTotal counts Sync calls by outcome.
	// Label values: "ok", "partial", "error", "skipped_in_progress", "skipped_offline".
	PassesTotal *prometheus.CounterVec

	// ActionsTotal counts per-action results.
	// Label values: "replayed", "failed", "dropped".
	ActionsTotal *prometheus.CounterVec

	// Backlog is the number of actions left after the last pass.
	Backlog prometheus.Gauge

	// PassDuration observes how long executed passes take.
	PassDuration prometheus.Histogram
}

// NewMetrics creates and registers sync metrics with reg. If reg is nil,
// metrics are created but not registered.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		PassesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "yatrisync",
			Subsystem: "sync",
			Name:      "passes_total",
			Help:      "Total number of sync requests by outcome",
		}, []string{"outcome"}),
		ActionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "yatrisync",
			Subsystem: "sync",
			Name:      "actions_total",
			Help:      "Total number of queued actions processed by result",
		}, []string{"result"}),
		Backlog: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "yatrisync",
			Subsystem: "sync",
			Name:      "backlog",
			Help:      "Queued actions remaining after the last sync pass",
		}),
		PassDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "yatrisync",
			Subsystem: "sync",
			Name:      "pass_duration_seconds",
			Help:      "Duration of executed sync passes",
			Buckets:   prometheus.ExponentialBuckets(0.01, 4, 8),
		}),
	}

	if reg != nil {
		reg.MustRegister(m.PassesTotal, m.ActionsTotal, m.Backlog, m.PassDuration)
	}
	return m
}

// RecordPass records one Sync call.
func (m *Metrics) RecordPass(outcome string) {
	if m == nil {
		return
	}
	m.PassesTotal.WithLabelValues(outcome).Inc()
}

// RecordActions adds per-action counts from a finished pass.
func (m *Metrics) RecordActions(replayed, failed, dropped int) {
	if m == nil {
		return
	}
	m.ActionsTotal.WithLabelValues("replayed").Add(float64(replayed))
	m.ActionsTotal.WithLabelValues("failed").Add(float64(failed))
	m.ActionsTotal.WithLabelValues("dropped").Add(float64(dropped))
}

// SetBacklog records the remaining backlog.
func (m *Metrics) SetBacklog(n int) {
	if m == nil {
		return
	}
	m.Backlog.Set(float64(n))
}

// ObserveDuration records a pass duration.
func (m *Metrics) ObserveDuration(d time.Duration) {
	if m == nil {
		return
	}
	m.PassDuration.Observe(d.Seconds())
}
