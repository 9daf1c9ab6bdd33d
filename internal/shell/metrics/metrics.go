// Package metrics exposes Prometheus instruments for command processing.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	metricPrefix = "charges_"

	ResultAccepted = "accepted"
	ResultRejected = "rejected"

	OutcomeCommitted = "committed"
	OutcomeFatal     = "fatal"
	OutcomeFailed    = "failed"
)

// Metrics holds the instruments. A nil *Metrics is valid and records nothing,
// so processors can run without a registry in tests.
type Metrics struct {
	operations      *prometheus.CounterVec
	ruleFailures    *prometheus.CounterVec
	poisonedBundles *prometheus.CounterVec
	commitConflicts prometheus.Counter
	bundleLatency   *prometheus.HistogramVec
	inboxCommands   *prometheus.CounterVec
}

// New creates the instruments and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		operations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "operations_total",
				Help: "Total operations processed by kind and result",
			},
			[]string{"kind", "result"},
		),
		ruleFailures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "rule_failures_total",
				Help: "Total validation rule failures by rule",
			},
			[]string{"rule"},
		),
		poisonedBundles: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "poisoned_bundles_total",
				Help: "Total bundles with at least one rejected operation",
			},
			[]string{"kind"},
		),
		commitConflicts: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: metricPrefix + "commit_conflicts_total",
				Help: "Total optimistic concurrency conflicts on commit",
			},
		),
		bundleLatency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "bundle_latency_seconds",
				Help:    "Bundle processing latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"kind", "outcome"},
		),
		inboxCommands: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "inbox_commands_total",
				Help: "Total inbox commands by final status",
			},
			[]string{"status"},
		),
	}

	reg.MustRegister(
		m.operations,
		m.ruleFailures,
		m.poisonedBundles,
		m.commitConflicts,
		m.bundleLatency,
		m.inboxCommands,
	)
	return m
}

// ObserveOperation counts one receipt.
func (m *Metrics) ObserveOperation(kind string, accepted bool) {
	if m == nil {
		return
	}
	result := ResultAccepted
	if !accepted {
		result = ResultRejected
	}
	m.operations.WithLabelValues(kind, result).Inc()
}

func (m *Metrics) ObserveRuleFailure(rule string) {
	if m == nil {
		return
	}
	m.ruleFailures.WithLabelValues(rule).Inc()
}

func (m *Metrics) ObservePoisonedBundle(kind string) {
	if m == nil {
		return
	}
	m.poisonedBundles.WithLabelValues(kind).Inc()
}

func (m *Metrics) ObserveCommitConflict() {
	if m == nil {
		return
	}
	m.commitConflicts.Inc()
}

// ObserveBundle records how long a bundle took from start to outcome.
func (m *Metrics) ObserveBundle(kind, outcome string, started time.Time) {
	if m == nil {
		return
	}
	m.bundleLatency.WithLabelValues(kind, outcome).Observe(time.Since(started).Seconds())
}

func (m *Metrics) ObserveInboxCommand(status string) {
	if m == nil {
		return
	}
	m.inboxCommands.WithLabelValues(status).Inc()
}
