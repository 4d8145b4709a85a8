// Package metrics provides Prometheus metrics for the fraud decision
// service: decision counters, oracle health, score distributions, and feed
// connectivity, exposed on the metrics endpoint for monitoring and
// alerting.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus collectors for the decision service.
type Metrics struct {
	// Decision metrics
	DecisionsTotal      prometheus.Counter   // Total decisions served
	FraudDecisionsTotal prometheus.Counter   // Decisions labeled fraud
	RuleOverridesTotal  prometheus.Counter   // Strict-rule upgrades of a below-threshold score
	DecideLatency       prometheus.Histogram // End-to-end decide latency in seconds
	BlendScores         prometheus.Histogram // Distribution of blended scores

	// Oracle metrics
	OracleFailuresTotal prometheus.Counter // Failed or timed-out oracle calls

	// Input metrics
	SchemaErrorsTotal prometheus.Counter // Requests rejected for schema mismatch

	// Snapshot metrics
	SnapshotAge prometheus.Gauge // Age of the active snapshot in seconds

	// Feed metrics
	FeedReconnects prometheus.Counter // Transaction feed reconnections

	// System metrics
	ErrorsTotal prometheus.Counter // Total errors encountered
}

// New creates and registers all metrics with the default registry.
func New() *Metrics {
	return NewWithRegistry(prometheus.DefaultRegisterer)
}

// NewWithRegistry creates metrics against a custom registry, which keeps
// test collections isolated from the global state.
func NewWithRegistry(registerer prometheus.Registerer) *Metrics {
	factory := promauto.With(registerer)
	return &Metrics{
		DecisionsTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "decisions_total",
			Help: "Total number of fraud decisions served",
		}),
		FraudDecisionsTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "fraud_decisions_total",
			Help: "Total number of decisions labeled as fraud",
		}),
		RuleOverridesTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "rule_overrides_total",
			Help: "Total number of strict-rule overrides of a below-threshold score",
		}),
		DecideLatency: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "decide_latency_seconds",
			Help:    "End-to-end decision latency in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0},
		}),
		BlendScores: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "blend_scores",
			Help:    "Distribution of blended fraud scores",
			Buckets: prometheus.LinearBuckets(0, 0.1, 11),
		}),
		OracleFailuresTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "oracle_failures_total",
			Help: "Total number of failed or timed-out classifier oracle calls",
		}),
		SchemaErrorsTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "schema_errors_total",
			Help: "Total number of requests rejected for feature schema mismatch",
		}),
		SnapshotAge: factory.NewGauge(prometheus.GaugeOpts{
			Name: "snapshot_age_seconds",
			Help: "Age of the active parameter snapshot in seconds",
		}),
		FeedReconnects: factory.NewCounter(prometheus.CounterOpts{
			Name: "feed_reconnects_total",
			Help: "Total number of transaction feed reconnections",
		}),
		ErrorsTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "errors_total",
			Help: "Total number of errors encountered",
		}),
	}
}
