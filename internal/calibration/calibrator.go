package calibration

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/nairyuuu/vpbank-ml-api/internal/oracle"
	"github.com/nairyuuu/vpbank-ml-api/internal/rules"
	"github.com/nairyuuu/vpbank-ml-api/internal/schema"
	"github.com/nairyuuu/vpbank-ml-api/internal/snapshot"
	"github.com/nairyuuu/vpbank-ml-api/internal/stacker"
)

// ErrInsufficientData means the validation split cannot support calibration:
// it is empty or contains a single class.
var ErrInsufficientData = errors.New("insufficient calibration data")

// Fallback operating point for a degenerate validation curve.
const (
	FallbackWeight    = 0.5
	FallbackThreshold = 0.5
)

// Params configures a calibration run.
type Params struct {
	SplitFraction float64
	BlendLo       float64
	BlendHi       float64
	Trials        int
	Seed          int64
	Stacker       stacker.Params
	// Parallelism bounds concurrent oracle scoring across validation rows.
	Parallelism int
}

// DefaultParams mirrors the reference pipeline: 80/20 chronological split
// and a 30-trial weight search over [0.2, 0.8].
func DefaultParams() Params {
	return Params{
		SplitFraction: 0.8,
		BlendLo:       0.2,
		BlendHi:       0.8,
		Trials:        30,
		Seed:          42,
		Stacker:       stacker.DefaultParams(),
		Parallelism:   8,
	}
}

// Calibrator runs the offline phase: it scores the validation window with
// the injected oracles, fits the stacker, tunes the blend weight and the
// threshold, and emits an immutable parameter snapshot.
type Calibrator struct {
	primary oracle.Oracle
	baseA   oracle.Oracle
	baseB   oracle.Oracle
	rules   *rules.Evaluator
	params  Params
}

// New builds a calibrator over the three scoring oracles.
func New(primary, baseA, baseB oracle.Oracle, re *rules.Evaluator, p Params) *Calibrator {
	if p.Parallelism <= 0 {
		p.Parallelism = 1
	}
	return &Calibrator{primary: primary, baseA: baseA, baseB: baseB, rules: re, params: p}
}

// Run executes one calibration pass over a chronologically ordered dataset
// and returns the resulting snapshot plus its validation report. The input
// dataset is never reordered.
func (c *Calibrator) Run(ctx context.Context, ds *Dataset) (*snapshot.Snapshot, *Report, error) {
	train, valid := ds.Split(c.params.SplitFraction)
	if len(valid) == 0 {
		return nil, nil, fmt.Errorf("%w: validation split is empty (%d rows total)", ErrInsufficientData, len(ds.Rows))
	}

	labels := Labels(valid)
	if singleClass(labels) {
		return nil, nil, fmt.Errorf("%w: validation split holds a single class", ErrInsufficientData)
	}

	log.Info().
		Int("train_rows", len(train)).
		Int("valid_rows", len(valid)).
		Float64("split_fraction", c.params.SplitFraction).
		Msg("starting calibration")

	primary, scoresA, scoresB, err := c.scoreValidation(ctx, valid)
	if err != nil {
		return nil, nil, err
	}

	// Stacker inputs: base scores, seed rule signal, selected raw features.
	inputs := make([]stacker.Input, len(valid))
	signals := make([]rules.Signals, len(valid))
	for i, row := range valid {
		signals[i] = c.rules.Evaluate(row.Features)
		inputs[i] = stacker.NewInput(scoresA[i], scoresB[i], signals[i].Seed, row.Features)
	}

	model, err := stacker.Train(inputs, labels, c.params.Stacker)
	if err != nil {
		return nil, nil, fmt.Errorf("stacker training: %w", err)
	}

	boosted := make([]float64, len(valid))
	for i := range valid {
		boosted[i] = rules.Boost(model.Predict(inputs[i]), signals[i].Soft)
	}

	search := BoundedScalarSearch{
		Lo:     c.params.BlendLo,
		Hi:     c.params.BlendHi,
		Trials: c.params.Trials,
		Seed:   c.params.Seed,
	}
	weight, searchF1, err := OptimizeBlendWeight(search, primary, boosted, labels)
	if err != nil {
		return nil, nil, err
	}

	blended := make([]float64, len(valid))
	for i := range blended {
		blended[i] = Blend(weight, primary[i], boosted[i])
	}

	curve := PrecisionRecall(blended, labels)
	uncalibrated := curve.Degenerate()
	var threshold float64
	if uncalibrated {
		weight, threshold = FallbackWeight, FallbackThreshold
		for i := range blended {
			blended[i] = Blend(weight, primary[i], boosted[i])
		}
		log.Warn().Msg("degenerate validation curve, falling back to default weight and threshold")
	} else {
		threshold, _, _ = curve.SelectThreshold()
	}

	preds := make([]int, len(valid))
	for i := range preds {
		if blended[i] > threshold || signals[i].Strict {
			preds[i] = 1
		}
	}

	report := Evaluate(blended, preds, labels, weight, threshold)
	report.Uncalibrated = uncalibrated

	snap := &snapshot.Snapshot{
		Version:       snapshot.NewVersion(time.Now()),
		CreatedAt:     time.Now().UTC(),
		SchemaVersion: schema.Version,
		Weight:        weight,
		Threshold:     threshold,
		Stacker:       model,
		RuleConstants: c.rules.Constants(),
		Uncalibrated:  uncalibrated,
		Validation: snapshot.Metrics{
			F1:        report.F1,
			Precision: report.Precision,
			Recall:    report.Recall,
			AUC:       report.AUC,
			Rows:      report.Rows,
			Positives: report.Positives,
		},
	}

	log.Info().
		Str("version", snap.Version).
		Float64("weight", weight).
		Float64("threshold", threshold).
		Float64("search_f1", searchF1).
		Float64("f1", report.F1).
		Float64("auc", report.AUC).
		Bool("uncalibrated", uncalibrated).
		Msg("calibration complete")

	return snap, &report, nil
}

// scoreValidation obtains the three oracle scores for every validation row.
// Rows are independent so scoring fans out across a bounded worker group.
func (c *Calibrator) scoreValidation(ctx context.Context, valid []Row) (primary, scoresA, scoresB []float64, err error) {
	primary = make([]float64, len(valid))
	scoresA = make([]float64, len(valid))
	scoresB = make([]float64, len(valid))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.params.Parallelism)

	for i := range valid {
		i := i
		g.Go(func() error {
			fv := valid[i].Features
			if err := fv.Validate(); err != nil {
				return fmt.Errorf("validation row %d: %w", i, err)
			}
			for _, call := range []struct {
				o   oracle.Oracle
				dst *float64
			}{
				{c.primary, &primary[i]},
				{c.baseA, &scoresA[i]},
				{c.baseB, &scoresB[i]},
			} {
				s, err := call.o.Predict(gctx, fv)
				if err != nil {
					return fmt.Errorf("scoring row %d with %s: %w", i, call.o.Name(), err)
				}
				*call.dst = s.Probability
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, nil, nil, err
	}
	return primary, scoresA, scoresB, nil
}

func singleClass(labels []int) bool {
	if len(labels) == 0 {
		return true
	}
	first := labels[0]
	for _, y := range labels[1:] {
		if y != first {
			return false
		}
	}
	return true
}
