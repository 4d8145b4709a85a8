package calibration

import (
	"math"
	"testing"
)

func approx(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

func TestPrecisionRecallKnownCurve(t *testing.T) {
	// Ascending thresholds 0.1, 0.4, 0.8; predictions are score > threshold.
	scores := []float64{0.1, 0.4, 0.8, 0.8}
	labels := []int{0, 1, 1, 1}

	c := PrecisionRecall(scores, labels)
	if len(c.Thresholds) != 3 {
		t.Fatalf("threshold count %d, want 3", len(c.Thresholds))
	}

	// Above 0.1: {0.4, 0.8, 0.8}, all positive.
	if !approx(c.Precision[0], 1) || !approx(c.Recall[0], 1) {
		t.Errorf("at %f: precision %f recall %f, want 1/1", c.Thresholds[0], c.Precision[0], c.Recall[0])
	}
	// Above 0.4: the two 0.8s, both positive, recall 2/3.
	if !approx(c.Precision[1], 1) || !approx(c.Recall[1], 2.0/3.0) {
		t.Errorf("at %f: precision %f recall %f, want 1 and 2/3", c.Thresholds[1], c.Precision[1], c.Recall[1])
	}
	// Above 0.8: nothing predicted; precision defined as 1, recall 0.
	if !approx(c.Precision[2], 1) || !approx(c.Recall[2], 0) {
		t.Errorf("at %f: precision %f recall %f, want 1/0", c.Thresholds[2], c.Precision[2], c.Recall[2])
	}
}

func TestPerfectSeparationReachesFullF1(t *testing.T) {
	scores := []float64{0.1, 0.1, 0.9, 0.9}
	labels := []int{0, 0, 1, 1}

	c := PrecisionRecall(scores, labels)
	thr, f1, ok := c.SelectThreshold()
	if !ok {
		t.Fatal("no threshold selected")
	}
	if f1 < 0.999 {
		t.Errorf("separable scores yield F1 %f, want ~1", f1)
	}
	// Deciding with score > thr must classify every row correctly.
	for i, s := range scores {
		pred := 0
		if s > thr {
			pred = 1
		}
		if pred != labels[i] {
			t.Errorf("row %d misclassified at threshold %f", i, thr)
		}
	}
}

func TestSelectThresholdBreaksTiesLow(t *testing.T) {
	// Cutting at 0.1 gives precision 1/2 recall 1; cutting at 0.5 gives
	// precision 1 recall 1/2. Identical F1, so the lower threshold wins.
	scores := []float64{0.1, 0.5, 0.5, 0.5, 0.9}
	labels := []int{0, 1, 0, 0, 1}

	c := PrecisionRecall(scores, labels)
	if !approx(c.F1At(0), c.F1At(1)) {
		t.Fatalf("test setup broken: F1 %f vs %f are not tied", c.F1At(0), c.F1At(1))
	}
	thr, _, ok := c.SelectThreshold()
	if !ok {
		t.Fatal("no threshold selected")
	}
	if !approx(thr, 0.1) {
		t.Errorf("tie broken to %f, want 0.1", thr)
	}
}

func TestDegenerateCurve(t *testing.T) {
	if c := PrecisionRecall([]float64{0.5, 0.5, 0.5}, []int{0, 1, 0}); !c.Degenerate() {
		t.Error("constant scores should be degenerate")
	}
	if c := PrecisionRecall(nil, nil); !c.Degenerate() {
		t.Error("empty curve should be degenerate")
	}
	if c := PrecisionRecall([]float64{0.2, 0.8}, []int{0, 1}); c.Degenerate() {
		t.Error("two distinct scores should not be degenerate")
	}
}

func TestF1EpsilonGuardsEmptyPoint(t *testing.T) {
	// All predictions empty at the top threshold: precision 1, recall 0.
	c := PrecisionRecall([]float64{0.3, 0.7}, []int{1, 0})
	for k := range c.Thresholds {
		f := c.F1At(k)
		if math.IsNaN(f) || math.IsInf(f, 0) {
			t.Errorf("F1 at index %d is not finite: %f", k, f)
		}
	}
}
