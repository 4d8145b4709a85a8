// Package snapshot defines the calibrated parameter bundle served by the
// decision engine and a versioned, immutable store for it. A snapshot is
// written once per calibration run and never mutated; recalibration produces
// a new version and moves the activation pointer.
package snapshot

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/nairyuuu/vpbank-ml-api/internal/rules"
	"github.com/nairyuuu/vpbank-ml-api/internal/stacker"
)

// Metrics captures how the snapshot performed on its validation split.
type Metrics struct {
	F1        float64 `json:"f1"`
	Precision float64 `json:"precision"`
	Recall    float64 `json:"recall"`
	AUC       float64 `json:"auc"`
	Rows      int     `json:"rows"`
	Positives int     `json:"positives"`
}

// Snapshot is one calibrated, immutable configuration.
type Snapshot struct {
	Version       string          `json:"version"`
	CreatedAt     time.Time       `json:"created_at"`
	SchemaVersion string          `json:"schema_version"`
	Weight        float64         `json:"weight"`
	Threshold     float64         `json:"threshold"`
	Stacker       *stacker.Model  `json:"stacker"`
	RuleConstants rules.Constants `json:"rule_constants"`

	// Uncalibrated marks a snapshot built from a degenerate validation
	// curve, served with documented default weight and threshold.
	Uncalibrated bool `json:"uncalibrated"`

	Validation Metrics `json:"validation"`
}

// NewVersion mints a snapshot version id: creation time plus a short unique
// suffix, so versions sort chronologically and never collide.
func NewVersion(now time.Time) string {
	return fmt.Sprintf("%s-%s", now.UTC().Format("20060102-150405"), uuid.NewString()[:8])
}
