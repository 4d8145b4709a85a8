// Package engine hosts the serving-time half of the fraud ensemble. A
// Decide call is a pure function of the feature vector and the snapshot it
// observes: oracles are scored concurrently, the stacker combines them, the
// rule boost and blend are applied, and the strict rule can only ever raise
// the final label.
package engine

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/nairyuuu/vpbank-ml-api/internal/calibration"
	"github.com/nairyuuu/vpbank-ml-api/internal/oracle"
	"github.com/nairyuuu/vpbank-ml-api/internal/rules"
	"github.com/nairyuuu/vpbank-ml-api/internal/schema"
	"github.com/nairyuuu/vpbank-ml-api/internal/snapshot"
	"github.com/nairyuuu/vpbank-ml-api/internal/stacker"
)

var (
	// ErrInsufficientSignals means one or more base scores could not be
	// obtained within the timeout budget. The decision fails rather than
	// substituting a guessed score.
	ErrInsufficientSignals = errors.New("insufficient classifier signals")

	// ErrNoSnapshot means the engine has no calibrated snapshot to serve
	// from.
	ErrNoSnapshot = errors.New("no active parameter snapshot")
)

// MetricsInterface defines the metrics hooks the engine emits to.
type MetricsInterface interface {
	DecisionsInc()
	FraudDecisionsInc()
	RuleOverridesInc()
	SchemaErrorsInc()
	OracleFailuresInc()
	DecideLatencyObserve(float64)
	BlendScoreObserve(float64)
}

// Decision is the engine's output for one transaction.
type Decision struct {
	ID              string        `json:"id"`
	Label           int           `json:"label"`
	Blend           float64       `json:"blend"`
	PrimaryScore    float64       `json:"primary_score"`
	StackedScore    float64       `json:"stacked_score"`
	BoostedScore    float64       `json:"boosted_score"`
	Rules           rules.Signals `json:"rules"`
	Weight          float64       `json:"weight"`
	Threshold       float64       `json:"threshold"`
	SnapshotVersion string        `json:"snapshot_version"`
	Uncalibrated    bool          `json:"uncalibrated"`
	Timestamp       time.Time     `json:"timestamp"`
}

// Engine serves decisions against exactly one snapshot at a time. Snapshot
// swaps are atomic: a running Decide keeps the snapshot it loaded at entry,
// and unbounded concurrent invocations are safe because the engine holds no
// other mutable state.
type Engine struct {
	primary oracle.Oracle
	baseA   oracle.Oracle
	baseB   oracle.Oracle

	snap    atomic.Pointer[snapshot.Snapshot]
	metrics MetricsInterface
	timeout time.Duration
}

// New builds an engine over the three scoring oracles. metrics may be nil.
func New(primary, baseA, baseB oracle.Oracle, metrics MetricsInterface, oracleTimeout time.Duration) *Engine {
	if oracleTimeout <= 0 {
		oracleTimeout = 2 * time.Second
	}
	return &Engine{
		primary: primary,
		baseA:   baseA,
		baseB:   baseB,
		metrics: metrics,
		timeout: oracleTimeout,
	}
}

// Swap installs a new snapshot. Concurrent Decide calls each observe either
// the old or the new snapshot in full, never a mix.
func (e *Engine) Swap(s *snapshot.Snapshot) {
	e.snap.Store(s)
	if s != nil {
		log.Info().
			Str("version", s.Version).
			Float64("weight", s.Weight).
			Float64("threshold", s.Threshold).
			Bool("uncalibrated", s.Uncalibrated).
			Msg("parameter snapshot activated")
	}
}

// Snapshot returns the snapshot currently being served, or nil.
func (e *Engine) Snapshot() *snapshot.Snapshot {
	return e.snap.Load()
}

// Decide scores one transaction. It fails with schema.ErrMismatch before
// any oracle call when the vector does not match the schema, and with
// ErrInsufficientSignals when a base score cannot be obtained in time.
func (e *Engine) Decide(ctx context.Context, fv schema.FeatureVector) (Decision, error) {
	start := time.Now()
	defer func() {
		if e.metrics != nil {
			e.metrics.DecideLatencyObserve(time.Since(start).Seconds())
		}
	}()

	snap := e.snap.Load()
	if snap == nil {
		return Decision{}, ErrNoSnapshot
	}

	if err := fv.Validate(); err != nil {
		if e.metrics != nil {
			e.metrics.SchemaErrorsInc()
		}
		return Decision{}, err
	}

	primary, scoreA, scoreB, err := e.scoreOracles(ctx, fv)
	if err != nil {
		if e.metrics != nil {
			e.metrics.OracleFailuresInc()
		}
		return Decision{}, fmt.Errorf("%w: %v", ErrInsufficientSignals, err)
	}

	signals := rules.NewEvaluator(snap.RuleConstants).Evaluate(fv)
	stacked := snap.Stacker.Predict(stacker.NewInput(scoreA, scoreB, signals.Seed, fv))
	// Applied exactly once per decision.
	boosted := rules.Boost(stacked, signals.Soft)

	blend := calibration.Blend(snap.Weight, primary, boosted)
	label := 0
	if blend > snap.Threshold {
		label = 1
	}
	if signals.Strict {
		if label == 0 && e.metrics != nil {
			e.metrics.RuleOverridesInc()
		}
		label = 1
	}

	if e.metrics != nil {
		e.metrics.DecisionsInc()
		e.metrics.BlendScoreObserve(blend)
		if label == 1 {
			e.metrics.FraudDecisionsInc()
		}
	}

	return Decision{
		ID:              uuid.NewString(),
		Label:           label,
		Blend:           blend,
		PrimaryScore:    primary,
		StackedScore:    stacked,
		BoostedScore:    boosted,
		Rules:           signals,
		Weight:          snap.Weight,
		Threshold:       snap.Threshold,
		SnapshotVersion: snap.Version,
		Uncalibrated:    snap.Uncalibrated,
		Timestamp:       time.Now().UTC(),
	}, nil
}

// scoreOracles issues the three oracle calls concurrently and joins them.
// Each call carries its own timeout slice of the request context.
func (e *Engine) scoreOracles(ctx context.Context, fv schema.FeatureVector) (primary, scoreA, scoreB float64, err error) {
	g, gctx := errgroup.WithContext(ctx)

	for _, call := range []struct {
		o   oracle.Oracle
		dst *float64
	}{
		{e.primary, &primary},
		{e.baseA, &scoreA},
		{e.baseB, &scoreB},
	} {
		call := call
		g.Go(func() error {
			cctx, cancel := context.WithTimeout(gctx, e.timeout)
			defer cancel()
			s, err := call.o.Predict(cctx, fv)
			if err != nil {
				return fmt.Errorf("%s: %w", call.o.Name(), err)
			}
			*call.dst = s.Probability
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return 0, 0, 0, err
	}
	return primary, scoreA, scoreB, nil
}
