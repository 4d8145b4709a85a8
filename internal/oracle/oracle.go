// Package oracle models the base fraud classifiers as injected scoring
// dependencies. An oracle takes a schema-valid feature vector and returns a
// fraud probability; the ensemble never looks inside the model backing it.
//
// Two implementations are provided: a subprocess oracle that drives the
// Python ONNX runner over stdin/stdout JSON, and an HTTP oracle for models
// served remotely.
package oracle

import (
	"context"
	"errors"

	"github.com/nairyuuu/vpbank-ml-api/internal/schema"
)

var (
	// ErrUnavailable means the oracle could not be reached at all: no
	// process, no connection, or a timed-out call.
	ErrUnavailable = errors.New("oracle unavailable")

	// ErrMalformed means the oracle responded but the response could not
	// be used: bad JSON, wrong shape, or a probability outside [0,1].
	ErrMalformed = errors.New("oracle returned malformed response")
)

// Score is one oracle's output for one transaction.
type Score struct {
	Producer    string  `json:"producer"`
	Probability float64 `json:"probability"`
}

// Oracle is a stateless fraud scorer. Implementations must be safe for
// concurrent use; the engine issues calls for one decision in parallel.
type Oracle interface {
	// Name identifies the producer in decisions and logs.
	Name() string

	// Predict scores one transaction. The context carries the per-call
	// timeout budget; a deadline hit maps to ErrUnavailable.
	Predict(ctx context.Context, fv schema.FeatureVector) (Score, error)
}

// validateProbability rejects out-of-range and NaN outputs.
func validateProbability(p float64) error {
	if p != p || p < 0 || p > 1 {
		return ErrMalformed
	}
	return nil
}
