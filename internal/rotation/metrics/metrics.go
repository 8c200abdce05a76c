// Package metrics records Prometheus metrics for rotation runs.
//
// pacert is a short-lived command, so metrics live in a private registry
// and are written out in the node_exporter textfile format at the end of a
// run instead of being served over HTTP.
package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// RunMetrics provides methods to record run metrics.
type RunMetrics struct {
	registry *prometheus.Registry

	runsTotal        *prometheus.CounterVec
	runDuration      prometheus.Histogram
	phaseItemsTotal  *prometheus.CounterVec
	referencesFound  *prometheus.GaugeVec
	lastRunTimestamp prometheus.Gauge
	lastRunSuccess   prometheus.Gauge
}

// NewRunMetrics creates the metrics in a fresh registry.
func NewRunMetrics() *RunMetrics {
	m := &RunMetrics{
		registry: prometheus.NewRegistry(),
		runsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pacert_runs_total",
				Help: "Total number of rotation runs by final state",
			},
			[]string{"state", "dry_run"},
		),
		runDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "pacert_run_duration_seconds",
				Help:    "Duration of rotation runs in seconds",
				Buckets: []float64{5, 15, 30, 60, 120, 300, 600},
			},
		),
		phaseItemsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pacert_phase_items_total",
				Help: "Items processed per phase by result",
			},
			[]string{"phase", "result"},
		),
		referencesFound: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "pacert_certificate_references",
				Help: "References to the replaced certificate found by discovery, by kind",
			},
			[]string{"kind"},
		),
		lastRunTimestamp: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "pacert_last_run_timestamp_seconds",
				Help: "Unix time the last run finished",
			},
		),
		lastRunSuccess: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "pacert_last_run_success",
				Help: "1 if the last run succeeded, 0 otherwise",
			},
		),
	}

	m.registry.MustRegister(
		m.runsTotal,
		m.runDuration,
		m.phaseItemsTotal,
		m.referencesFound,
		m.lastRunTimestamp,
		m.lastRunSuccess,
	)
	return m
}

// Registry exposes the registry so other packages can add collectors.
func (m *RunMetrics) Registry() *prometheus.Registry {
	return m.registry
}

// RecordPhase records the item results of a finished phase.
func (m *RunMetrics) RecordPhase(phase string, succeeded, failed int) {
	m.phaseItemsTotal.WithLabelValues(phase, "success").Add(float64(succeeded))
	m.phaseItemsTotal.WithLabelValues(phase, "failure").Add(float64(failed))
}

// RecordReferences records how many references of kind discovery found.
func (m *RunMetrics) RecordReferences(kind string, count int) {
	m.referencesFound.WithLabelValues(kind).Set(float64(count))
}

// RecordRun records the final state of a run.
func (m *RunMetrics) RecordRun(state string, success, dryRun bool, duration time.Duration) {
	m.runsTotal.WithLabelValues(state, fmt.Sprintf("%t", dryRun)).Inc()
	m.runDuration.Observe(duration.Seconds())
	m.lastRunTimestamp.SetToCurrentTime()
	if success {
		m.lastRunSuccess.Set(1)
	} else {
		m.lastRunSuccess.Set(0)
	}
}

// WriteTextfile writes all metrics to path atomically.
func (m *RunMetrics) WriteTextfile(path string) error {
	if err := prometheus.WriteToTextfile(path, m.registry); err != nil {
		return fmt.Errorf("failed to write metrics to %s: %w", path, err)
	}
	return nil
}
