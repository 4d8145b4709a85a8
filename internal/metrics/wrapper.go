package metrics

// Wrapper adapts Metrics to the narrow interfaces consumed by the decision
// engine and the feed, avoiding a dependency from those packages on the
// Prometheus types.
type Wrapper struct {
	m *Metrics
}

// NewWrapper wraps a metrics set.
func NewWrapper(m *Metrics) *Wrapper {
	return &Wrapper{m: m}
}

func (w *Wrapper) DecisionsInc()      { w.m.DecisionsTotal.Inc() }
func (w *Wrapper) FraudDecisionsInc() { w.m.FraudDecisionsTotal.Inc() }
func (w *Wrapper) RuleOverridesInc()  { w.m.RuleOverridesTotal.Inc() }
func (w *Wrapper) SchemaErrorsInc()   { w.m.SchemaErrorsTotal.Inc() }
func (w *Wrapper) OracleFailuresInc() { w.m.OracleFailuresTotal.Inc() }

func (w *Wrapper) DecideLatencyObserve(v float64) { w.m.DecideLatency.Observe(v) }
func (w *Wrapper) BlendScoreObserve(v float64)    { w.m.BlendScores.Observe(v) }

func (w *Wrapper) FeedReconnectsInc() { w.m.FeedReconnects.Inc() }
func (w *Wrapper) ErrorsInc()         { w.m.ErrorsTotal.Inc() }

// SnapshotAgeSet records the age of the active snapshot in seconds.
func (w *Wrapper) SnapshotAgeSet(seconds float64) { w.m.SnapshotAge.Set(seconds) }
