// Package calibration holds the offline half of the fraud ensemble: the
// precision/recall sweep, the blend-weight search, dataset splitting, and
// the calibration run that produces a parameter snapshot.
package calibration

import (
	"sort"
)

// Epsilon guards the F1 denominator on empty curve points. Never surfaced
// as an error.
const Epsilon = 1e-6

// Curve is a precision/recall sweep over a score slice. Thresholds are the
// strictly increasing distinct scores; at index k a transaction is predicted
// positive iff score > Thresholds[k], matching the serving-time decision
// rule.
type Curve struct {
	Thresholds []float64
	Precision  []float64
	Recall     []float64
}

// PrecisionRecall computes the curve for scores against binary labels.
// Labels must be 0/1. An empty input yields an empty curve.
func PrecisionRecall(scores []float64, labels []int) Curve {
	n := len(scores)
	if n == 0 {
		return Curve{}
	}

	idx := make([]int, n)
	for i := range idx {
		idx[i] = i
	}
	sort.Slice(idx, func(a, b int) bool { return scores[idx[a]] < scores[idx[b]] })

	totalPos := 0
	for _, y := range labels {
		if y == 1 {
			totalPos++
		}
	}

	var c Curve
	// Walk thresholds ascending. Everything strictly above the current
	// threshold is predicted positive, so the counts shrink as groups of
	// equal scores drop below the cut.
	abovePos, aboveAll := totalPos, n
	i := 0
	for i < n {
		thr := scores[idx[i]]
		// Remove the whole tie group at this threshold.
		for i < n && scores[idx[i]] == thr {
			aboveAll--
			if labels[idx[i]] == 1 {
				abovePos--
			}
			i++
		}
		precision := 1.0
		if aboveAll > 0 {
			precision = float64(abovePos) / float64(aboveAll)
		}
		recall := 0.0
		if totalPos > 0 {
			recall = float64(abovePos) / float64(totalPos)
		}
		c.Thresholds = append(c.Thresholds, thr)
		c.Precision = append(c.Precision, precision)
		c.Recall = append(c.Recall, recall)
	}
	return c
}

// F1At returns the F1 value at curve index k.
func (c Curve) F1At(k int) float64 {
	p, r := c.Precision[k], c.Recall[k]
	return 2 * p * r / (p + r + Epsilon)
}

// MaxF1 returns the best F1 over the whole curve, or 0 for an empty curve.
func (c Curve) MaxF1() float64 {
	best := 0.0
	for k := range c.Thresholds {
		if f := c.F1At(k); f > best {
			best = f
		}
	}
	return best
}

// Degenerate reports whether the curve cannot support calibration: fewer
// than two distinct score values means every threshold yields the same
// partition.
func (c Curve) Degenerate() bool {
	return len(c.Thresholds) < 2
}

// SelectThreshold picks the cutoff at the first index achieving the maximum
// F1, scanning in ascending-threshold order so ties break toward the lowest
// threshold. ok is false for an empty curve.
func (c Curve) SelectThreshold() (threshold float64, f1 float64, ok bool) {
	if len(c.Thresholds) == 0 {
		return 0, 0, false
	}
	bestIdx := 0
	bestF1 := c.F1At(0)
	for k := 1; k < len(c.Thresholds); k++ {
		if f := c.F1At(k); f > bestF1 {
			bestF1 = f
			bestIdx = k
		}
	}
	return c.Thresholds[bestIdx], bestF1, true
}
