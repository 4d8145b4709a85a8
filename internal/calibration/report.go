package calibration

import (
	"sort"

	"github.com/montanaflynn/stats"
	"gonum.org/v1/gonum/integrate"
	"gonum.org/v1/gonum/stat"
)

// ScoreSummary describes the blended score distribution on the validation
// split, for the calibration log and snapshot inspection.
type ScoreSummary struct {
	Mean   float64 `json:"mean"`
	Median float64 `json:"median"`
	P90    float64 `json:"p90"`
	P99    float64 `json:"p99"`
}

// Report is the outcome of one calibration run at its chosen operating
// point.
type Report struct {
	Weight       float64      `json:"blend_weight"`
	Threshold    float64      `json:"threshold"`
	F1           float64      `json:"f1"`
	Precision    float64      `json:"precision"`
	Recall       float64      `json:"recall"`
	AUC          float64      `json:"auc"`
	Rows         int          `json:"rows"`
	Positives    int          `json:"positives"`
	Uncalibrated bool         `json:"uncalibrated"`
	Scores       ScoreSummary `json:"score_summary"`
}

// Evaluate scores the final predictions (label = blend > threshold, after
// any strict override) against the validation labels and summarizes the
// blended score distribution.
func Evaluate(blended []float64, preds, labels []int, weight, threshold float64) Report {
	r := Report{Weight: weight, Threshold: threshold, Rows: len(labels)}

	var tp, fp, fn float64
	for i, y := range labels {
		if y == 1 {
			r.Positives++
		}
		switch {
		case preds[i] == 1 && y == 1:
			tp++
		case preds[i] == 1 && y == 0:
			fp++
		case preds[i] == 0 && y == 1:
			fn++
		}
	}
	if tp+fp > 0 {
		r.Precision = tp / (tp + fp)
	}
	if tp+fn > 0 {
		r.Recall = tp / (tp + fn)
	}
	if r.Precision+r.Recall > 0 {
		r.F1 = 2 * r.Precision * r.Recall / (r.Precision + r.Recall)
	}

	r.AUC = rocAUC(blended, labels)
	r.Scores = summarize(blended)
	return r
}

// rocAUC computes the area under the ROC curve of the blended scores.
func rocAUC(scores []float64, labels []int) float64 {
	n := len(scores)
	if n == 0 {
		return 0
	}
	idx := make([]int, n)
	for i := range idx {
		idx[i] = i
	}
	sort.Slice(idx, func(a, b int) bool { return scores[idx[a]] < scores[idx[b]] })

	y := make([]float64, n)
	classes := make([]bool, n)
	pos := 0
	for i, j := range idx {
		y[i] = scores[j]
		classes[i] = labels[j] == 1
		if classes[i] {
			pos++
		}
	}
	if pos == 0 || pos == n {
		return 0
	}

	tpr, fpr, _ := stat.ROC(nil, y, classes, nil)
	// ROC emits rates for ascending cutoffs so FPR runs 1 -> 0; reverse
	// both for trapezoidal integration over ascending x.
	reverse(tpr)
	reverse(fpr)
	return integrate.Trapezoidal(fpr, tpr)
}

func summarize(scores []float64) ScoreSummary {
	if len(scores) == 0 {
		return ScoreSummary{}
	}
	data := stats.Float64Data(scores)
	mean, _ := data.Mean()
	median, _ := data.Median()
	p90, _ := data.Percentile(90)
	p99, _ := data.Percentile(99)
	return ScoreSummary{Mean: mean, Median: median, P90: p90, P99: p99}
}

func reverse(s []float64) {
	for i, j := 0, len(s)-1; i < j; i, j = i+1, j-1 {
		s[i], s[j] = s[j], s[i]
	}
}
