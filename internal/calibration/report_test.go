package calibration

import (
	"testing"
)

func TestEvaluatePerfectPredictions(t *testing.T) {
	blended := []float64{0.1, 0.2, 0.8, 0.9}
	labels := []int{0, 0, 1, 1}
	preds := []int{0, 0, 1, 1}

	r := Evaluate(blended, preds, labels, 0.5, 0.4)
	if r.Precision != 1 || r.Recall != 1 || r.F1 != 1 {
		t.Errorf("perfect predictions scored P=%f R=%f F1=%f", r.Precision, r.Recall, r.F1)
	}
	if !approx(r.AUC, 1) {
		t.Errorf("separable scores give AUC %f, want 1", r.AUC)
	}
	if r.Rows != 4 || r.Positives != 2 {
		t.Errorf("counts rows=%d positives=%d", r.Rows, r.Positives)
	}
}

func TestEvaluateMixedPredictions(t *testing.T) {
	blended := []float64{0.6, 0.2, 0.8, 0.3}
	labels := []int{0, 0, 1, 1}
	preds := []int{1, 0, 1, 0} // one false positive, one false negative

	r := Evaluate(blended, preds, labels, 0.5, 0.5)
	if !approx(r.Precision, 0.5) {
		t.Errorf("precision %f, want 0.5", r.Precision)
	}
	if !approx(r.Recall, 0.5) {
		t.Errorf("recall %f, want 0.5", r.Recall)
	}
	if !approx(r.F1, 0.5) {
		t.Errorf("F1 %f, want 0.5", r.F1)
	}
}

func TestEvaluateNoPredictedPositives(t *testing.T) {
	r := Evaluate([]float64{0.1, 0.2}, []int{0, 0}, []int{0, 1}, 0.5, 0.9)
	if r.Precision != 0 || r.Recall != 0 || r.F1 != 0 {
		t.Errorf("empty prediction set scored P=%f R=%f F1=%f", r.Precision, r.Recall, r.F1)
	}
}

func TestROCAUCSingleClass(t *testing.T) {
	if auc := rocAUC([]float64{0.1, 0.2}, []int{0, 0}); auc != 0 {
		t.Errorf("single-class AUC %f, want 0", auc)
	}
	if auc := rocAUC(nil, nil); auc != 0 {
		t.Errorf("empty AUC %f, want 0", auc)
	}
}

func TestScoreSummary(t *testing.T) {
	scores := []float64{0.1, 0.2, 0.3, 0.4, 0.5}
	s := summarize(scores)
	if !approx(s.Mean, 0.3) {
		t.Errorf("mean %f, want 0.3", s.Mean)
	}
	if !approx(s.Median, 0.3) {
		t.Errorf("median %f, want 0.3", s.Median)
	}
	if s.P90 < s.Median || s.P99 < s.P90 {
		t.Errorf("percentiles not ordered: median=%f p90=%f p99=%f", s.Median, s.P90, s.P99)
	}
}
