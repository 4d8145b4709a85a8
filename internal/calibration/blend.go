package calibration

import (
	"fmt"
	"math/rand"
)

// Blend mixes the primary oracle score with the boosted stacked score.
// Linear in w and bounded by [min(p,s), max(p,s)] for w in [0,1].
func Blend(w, primary, stacked float64) float64 {
	return w*primary + (1-w)*stacked
}

// BoundedScalarSearch maximizes an objective over a closed interval with a
// fixed trial budget. Trials are drawn from a seeded generator, so a run is
// reproducible, and the best-found value is non-decreasing as trials
// accumulate.
type BoundedScalarSearch struct {
	Lo, Hi float64
	Trials int
	Seed   int64
}

// Maximize evaluates the objective across the trial budget and returns the
// best argument and its objective value. Interval endpoints are always
// probed first so the search never misses a boundary optimum.
func (s BoundedScalarSearch) Maximize(objective func(float64) float64) (best, bestScore float64, err error) {
	if s.Hi <= s.Lo {
		return 0, 0, fmt.Errorf("search: invalid interval [%f, %f]", s.Lo, s.Hi)
	}
	if s.Trials < 1 {
		return 0, 0, fmt.Errorf("search: trial budget %d", s.Trials)
	}

	rng := rand.New(rand.NewSource(s.Seed))

	candidates := make([]float64, 0, s.Trials)
	candidates = append(candidates, s.Lo)
	if s.Trials > 1 {
		candidates = append(candidates, s.Hi)
	}
	for len(candidates) < s.Trials {
		candidates = append(candidates, s.Lo+rng.Float64()*(s.Hi-s.Lo))
	}

	best = candidates[0]
	bestScore = objective(best)
	for _, w := range candidates[1:] {
		if score := objective(w); score > bestScore {
			best, bestScore = w, score
		}
	}
	return best, bestScore, nil
}

// OptimizeBlendWeight searches for the mixing weight maximizing the best
// achievable F1 of the blended validation scores.
func OptimizeBlendWeight(search BoundedScalarSearch, primary, boosted []float64, labels []int) (float64, float64, error) {
	if len(primary) != len(boosted) || len(primary) != len(labels) {
		return 0, 0, fmt.Errorf("blend: mismatched inputs %d/%d/%d", len(primary), len(boosted), len(labels))
	}
	blended := make([]float64, len(primary))
	return search.Maximize(func(w float64) float64 {
		for i := range primary {
			blended[i] = Blend(w, primary[i], boosted[i])
		}
		return PrecisionRecall(blended, labels).MaxF1()
	})
}
