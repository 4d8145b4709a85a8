// Package rules implements the deterministic business rules applied around
// the model scores: a seed rule feeding the stacker, a soft rule that boosts
// the stacked score, and a strict rule that forces a positive decision.
package rules

import "github.com/nairyuuu/vpbank-ml-api/internal/schema"

// BoostDelta is added to the stacked score when the soft rule fires.
const BoostDelta = 0.25

// Constants holds the literal rule thresholds. They are frozen into each
// parameter snapshot so a served decision can always be traced back to the
// exact rule set it was made under.
type Constants struct {
	SeedAmountUSD   float64 `json:"seed_amount_usd" yaml:"seedAmountUSD"`
	SeedGeoDistance float64 `json:"seed_geo_distance" yaml:"seedGeoDistance"`

	SoftAmountUSD      float64 `json:"soft_amount_usd" yaml:"softAmountUSD"`
	SoftSameDeviceTxns float64 `json:"soft_same_device_txns" yaml:"softSameDeviceTxns"`

	StrictAmountUSD   float64 `json:"strict_amount_usd" yaml:"strictAmountUSD"`
	StrictGeoDistance float64 `json:"strict_geo_distance" yaml:"strictGeoDistance"`
	StrictVelocity1h  float64 `json:"strict_velocity_1h" yaml:"strictVelocity1h"`
}

// Defaults returns the production rule thresholds.
func Defaults() Constants {
	return Constants{
		SeedAmountUSD:      10_000_000,
		SeedGeoDistance:    50,
		SoftAmountUSD:      356,
		SoftSameDeviceTxns: 1,
		StrictAmountUSD:    918,
		StrictGeoDistance:  0,
		StrictVelocity1h:   1,
	}
}

// Signals is the result of evaluating all rules over one transaction.
type Signals struct {
	Seed   bool `json:"seed"`
	Soft   bool `json:"soft"`
	Strict bool `json:"strict"`
}

// Evaluator applies the rule set to feature vectors. It is total over a
// schema-valid vector and never fails.
type Evaluator struct {
	c Constants
}

// NewEvaluator builds an evaluator over the given constants.
func NewEvaluator(c Constants) *Evaluator {
	return &Evaluator{c: c}
}

// Evaluate computes the three rule signals for one transaction.
func (e *Evaluator) Evaluate(fv schema.FeatureVector) Signals {
	amount := fv.Get("amount_usd")
	geo := fv.Get("geo_distance_from_last_txn")
	return Signals{
		Seed: amount > e.c.SeedAmountUSD &&
			fv.Get("is_night") == 1 &&
			geo > e.c.SeedGeoDistance,
		Soft: amount > e.c.SoftAmountUSD &&
			fv.Get("same_device_txn_1h") > e.c.SoftSameDeviceTxns,
		Strict: amount > e.c.StrictAmountUSD &&
			geo > e.c.StrictGeoDistance &&
			fv.Get("velocity_1h") > e.c.StrictVelocity1h,
	}
}

// Constants returns the thresholds this evaluator was built with.
func (e *Evaluator) Constants() Constants {
	return e.c
}

// Boost applies the soft-rule score adjustment. The engine calls it exactly
// once per decision, after the stacker and before blending. The returned
// score is never below the input and never above 1.
func Boost(stacked float64, soft bool) float64 {
	if !soft {
		return stacked
	}
	boosted := stacked + BoostDelta
	if boosted > 1 {
		return 1
	}
	if boosted < 0 {
		return 0
	}
	return boosted
}
