// Package metrics exposes Prometheus collectors for analysis passes and checks.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Check outcomes.
const (
	OutcomeFraud     = "fraud"
	OutcomeClear     = "clear"
	OutcomeNoProfile = "no_profile"
)

// Metrics holds the collectors on a dedicated registry.
type Metrics struct {
	registry *prometheus.Registry

	ruleFlags        *prometheus.CounterVec
	checks           *prometheus.CounterVec
	analysisDuration prometheus.Histogram
	profiles         prometheus.Gauge
	runs             *prometheus.CounterVec
}

// New creates and registers the collectors, plus the Go and process collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		ruleFlags: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "harrier_rule_flags_total",
			Help: "Transactions flagged, by rule.",
		}, []string{"rule"}),
		checks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "harrier_checks_total",
			Help: "Single-transaction checks, by outcome.",
		}, []string{"outcome"}),
		analysisDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "harrier_analysis_duration_seconds",
			Help:    "Batch analysis pass latency in seconds.",
			Buckets: prometheus.ExponentialBuckets(0.005, 2, 12),
		}),
		profiles: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "harrier_profiles",
			Help: "User profiles built by the latest analysis pass.",
		}),
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "harrier_runs_total",
			Help: "Batch analysis passes, by status.",
		}, []string{"status"}),
	}

	m.registry.MustRegister(
		m.ruleFlags,
		m.checks,
		m.analysisDuration,
		m.profiles,
		m.runs,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// RuleFlagged adds a rule's flag count from one pass.
func (m *Metrics) RuleFlagged(rule string, flagged int) {
	m.ruleFlags.WithLabelValues(rule).Add(float64(flagged))
}

// ProfilesBuilt sets the profile gauge.
func (m *Metrics) ProfilesBuilt(count int) {
	m.profiles.Set(float64(count))
}

// CheckCompleted counts a single-transaction check.
func (m *Metrics) CheckCompleted(outcome string) {
	m.checks.WithLabelValues(outcome).Inc()
}

// AnalysisCompleted records a batch pass and its latency.
func (m *Metrics) AnalysisCompleted(d time.Duration, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	m.runs.WithLabelValues(status).Inc()
	if err == nil {
		m.analysisDuration.Observe(d.Seconds())
	}
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}
