package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestNewWrapper(t *testing.T) {
	registry := prometheus.NewRegistry()
	m := NewWithRegistry(registry)
	w := NewWrapper(m)

	if w == nil {
		t.Fatal("NewWrapper returned nil")
	}
	if w.m != m {
		t.Error("Wrapper does not carry the metrics instance")
	}
}

func TestWrapperCounters(t *testing.T) {
	registry := prometheus.NewRegistry()
	m := NewWithRegistry(registry)
	w := NewWrapper(m)

	cases := []struct {
		name    string
		inc     func()
		counter prometheus.Counter
	}{
		{"decisions", w.DecisionsInc, m.DecisionsTotal},
		{"fraud decisions", w.FraudDecisionsInc, m.FraudDecisionsTotal},
		{"rule overrides", w.RuleOverridesInc, m.RuleOverridesTotal},
		{"schema errors", w.SchemaErrorsInc, m.SchemaErrorsTotal},
		{"oracle failures", w.OracleFailuresInc, m.OracleFailuresTotal},
		{"feed reconnects", w.FeedReconnectsInc, m.FeedReconnects},
		{"errors", w.ErrorsInc, m.ErrorsTotal},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			before := testutil.ToFloat64(tc.counter)
			tc.inc()
			tc.inc()
			if got := testutil.ToFloat64(tc.counter); got != before+2 {
				t.Errorf("counter at %f after two increments from %f", got, before)
			}
		})
	}
}

func TestWrapperGauge(t *testing.T) {
	registry := prometheus.NewRegistry()
	m := NewWithRegistry(registry)
	w := NewWrapper(m)

	w.SnapshotAgeSet(123.5)
	if got := testutil.ToFloat64(m.SnapshotAge); got != 123.5 {
		t.Errorf("snapshot age %f, want 123.5", got)
	}
}

func TestWrapperObservations(t *testing.T) {
	registry := prometheus.NewRegistry()
	m := NewWithRegistry(registry)
	w := NewWrapper(m)

	w.DecideLatencyObserve(0.02)
	w.BlendScoreObserve(0.7)
	w.BlendScoreObserve(0.3)

	if got := testutil.CollectAndCount(m.DecideLatency); got != 1 {
		t.Errorf("latency histogram collected %d series", got)
	}
	if got := testutil.CollectAndCount(m.BlendScores); got != 1 {
		t.Errorf("blend histogram collected %d series", got)
	}
}

func TestMetricsRegistration(t *testing.T) {
	registry := prometheus.NewRegistry()
	NewWithRegistry(registry)

	families, err := registry.Gather()
	if err != nil {
		t.Fatalf("gather failed: %v", err)
	}
	if len(families) == 0 {
		t.Error("no metric families registered")
	}
}
