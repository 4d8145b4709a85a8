// Package stacker implements the meta-combiner that folds the base
// classifier scores, the seed rule signal, and a handful of raw transaction
// features into one probability. The model is a gradient-boosted ensemble of
// regression stumps trained on logistic loss: small, dependency-free to
// serve, fully deterministic for a fixed trained state, and serializable
// into a parameter snapshot.
package stacker

import (
	"fmt"
	"math"
	"sort"

	"github.com/nairyuuu/vpbank-ml-api/internal/schema"
)

// FieldNames lists the stacked input fields in their fixed order.
var FieldNames = []string{
	"score_a", "score_b", "score_rule",
	"amount_log", "geo_distance", "velocity_1h",
	"rank_amount_per_day", "geo_speed_km_per_min", "same_device_txn_1h",
}

// Input is the meta-combiner's view of one transaction.
type Input struct {
	ScoreA           float64 `json:"score_a"`
	ScoreB           float64 `json:"score_b"`
	SeedRule         float64 `json:"score_rule"`
	AmountLog        float64 `json:"amount_log"`
	GeoDistance      float64 `json:"geo_distance"`
	Velocity1h       float64 `json:"velocity_1h"`
	RankAmountPerDay float64 `json:"rank_amount_per_day"`
	GeoSpeedKmPerMin float64 `json:"geo_speed_km_per_min"`
	SameDeviceTxn1h  float64 `json:"same_device_txn_1h"`
}

// NewInput derives the stacked input from the two base scores, the seed rule
// signal, and the raw feature vector. The derivation is deterministic; the
// vector must already be schema-valid.
func NewInput(scoreA, scoreB float64, seedRule bool, fv schema.FeatureVector) Input {
	seed := 0.0
	if seedRule {
		seed = 1.0
	}
	return Input{
		ScoreA:           scoreA,
		ScoreB:           scoreB,
		SeedRule:         seed,
		AmountLog:        fv.Get("amount_log"),
		GeoDistance:      fv.Get("geo_distance_from_last_txn"),
		Velocity1h:       fv.Get("velocity_1h"),
		RankAmountPerDay: fv.Get("rank_amount_per_day"),
		GeoSpeedKmPerMin: fv.Get("geo_speed_km_per_min"),
		SameDeviceTxn1h:  fv.Get("same_device_txn_1h"),
	}
}

func (in Input) vector() [9]float64 {
	return [9]float64{
		in.ScoreA, in.ScoreB, in.SeedRule,
		in.AmountLog, in.GeoDistance, in.Velocity1h,
		in.RankAmountPerDay, in.GeoSpeedKmPerMin, in.SameDeviceTxn1h,
	}
}

// Stump is one depth-1 regression tree in the boosted ensemble.
type Stump struct {
	Feature   int     `json:"feature"`
	Threshold float64 `json:"threshold"`
	Left      float64 `json:"left"`
	Right     float64 `json:"right"`
}

// Model is the trained combiner state. Zero value is untrained.
type Model struct {
	Bias         float64 `json:"bias"`
	LearningRate float64 `json:"learning_rate"`
	Stumps       []Stump `json:"stumps"`
}

// Params controls training.
type Params struct {
	Rounds       int
	LearningRate float64
	// MaxCandidates caps the per-feature split candidates to quantile
	// midpoints, keeping training linear-ish in dataset size.
	MaxCandidates int
}

// DefaultParams mirrors the reference meta-model sizing.
func DefaultParams() Params {
	return Params{Rounds: 50, LearningRate: 0.05, MaxCandidates: 32}
}

// Train fits a model on the stacked inputs and binary labels. Training is
// deterministic: features are scanned in fixed order and split candidates
// derive from sorted values, so identical data yields identical models.
func Train(inputs []Input, labels []int, p Params) (*Model, error) {
	if len(inputs) == 0 {
		return nil, fmt.Errorf("stacker: empty training set")
	}
	if len(inputs) != len(labels) {
		return nil, fmt.Errorf("stacker: %d inputs vs %d labels", len(inputs), len(labels))
	}
	if p.Rounds <= 0 || p.LearningRate <= 0 {
		return nil, fmt.Errorf("stacker: invalid params rounds=%d lr=%f", p.Rounds, p.LearningRate)
	}
	if p.MaxCandidates <= 0 {
		p.MaxCandidates = 32
	}

	n := len(inputs)
	rows := make([][9]float64, n)
	y := make([]float64, n)
	var pos float64
	for i, in := range inputs {
		rows[i] = in.vector()
		if labels[i] == 1 {
			y[i] = 1
			pos++
		} else if labels[i] != 0 {
			return nil, fmt.Errorf("stacker: label %d at row %d is not binary", labels[i], i)
		}
	}

	m := &Model{
		Bias:         logit(clampRate(pos / float64(n))),
		LearningRate: p.LearningRate,
	}

	// Raw scores start at the bias and accumulate stump outputs.
	f := make([]float64, n)
	for i := range f {
		f[i] = m.Bias
	}

	residual := make([]float64, n)
	candidates := buildCandidates(rows, p.MaxCandidates)

	for round := 0; round < p.Rounds; round++ {
		for i := range residual {
			residual[i] = y[i] - sigmoid(f[i])
		}
		s, ok := fitStump(rows, residual, candidates)
		if !ok {
			break // no split improves on a constant
		}
		m.Stumps = append(m.Stumps, s)
		for i, row := range rows {
			f[i] += p.LearningRate * s.apply(row)
		}
	}

	return m, nil
}

// Predict returns the combined probability for one stacked input.
func (m *Model) Predict(in Input) float64 {
	row := in.vector()
	raw := m.Bias
	for _, s := range m.Stumps {
		raw += m.LearningRate * s.apply(row)
	}
	return sigmoid(raw)
}

// Trained reports whether the model carries any fitted state.
func (m *Model) Trained() bool {
	return m != nil && len(m.Stumps) > 0
}

func (s Stump) apply(row [9]float64) float64 {
	if row[s.Feature] <= s.Threshold {
		return s.Left
	}
	return s.Right
}

// buildCandidates computes the per-feature split thresholds once: midpoints
// between adjacent distinct values, thinned to at most max quantiles.
func buildCandidates(rows [][9]float64, max int) [9][]float64 {
	var out [9][]float64
	vals := make([]float64, len(rows))
	for j := 0; j < 9; j++ {
		for i, row := range rows {
			vals[i] = row[j]
		}
		sort.Float64s(vals)
		var mids []float64
		for i := 1; i < len(vals); i++ {
			if vals[i] != vals[i-1] {
				mids = append(mids, (vals[i]+vals[i-1])/2)
			}
		}
		if len(mids) > max {
			thinned := make([]float64, 0, max)
			for k := 0; k < max; k++ {
				thinned = append(thinned, mids[k*len(mids)/max])
			}
			mids = thinned
		}
		out[j] = mids
	}
	return out
}

// fitStump finds the least-squares split over the residuals. The first
// feature/threshold with a strictly lower error wins, which keeps ties
// deterministic.
func fitStump(rows [][9]float64, residual []float64, candidates [9][]float64) (Stump, bool) {
	n := float64(len(residual))
	var sum float64
	for _, r := range residual {
		sum += r
	}
	baseErr := math.Inf(1)

	var best Stump
	found := false
	for j := 0; j < 9; j++ {
		for _, thr := range candidates[j] {
			var leftSum, leftN float64
			for i, row := range rows {
				if row[j] <= thr {
					leftSum += residual[i]
					leftN++
				}
			}
			rightN := n - leftN
			if leftN == 0 || rightN == 0 {
				continue
			}
			rightSum := sum - leftSum
			// SSE reduction only depends on the per-side means.
			gain := leftSum*leftSum/leftN + rightSum*rightSum/rightN
			err := -gain
			if err < baseErr {
				baseErr = err
				best = Stump{
					Feature:   j,
					Threshold: thr,
					Left:      leftSum / leftN,
					Right:     rightSum / rightN,
				}
				found = true
			}
		}
	}
	return best, found
}

func sigmoid(x float64) float64 {
	return 1.0 / (1.0 + math.Exp(-x))
}

func logit(p float64) float64 {
	return math.Log(p / (1 - p))
}

func clampRate(p float64) float64 {
	const eps = 1e-4
	if p < eps {
		return eps
	}
	if p > 1-eps {
		return 1 - eps
	}
	return p
}
