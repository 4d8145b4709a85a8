package schema

import (
	"errors"
	"strings"
	"testing"
)

func validVector() FeatureVector {
	fv := make(FeatureVector, len(Names))
	for i, n := range Names {
		fv[n] = float64(i)
	}
	return fv
}

func TestValidateExactMatch(t *testing.T) {
	if err := validVector().Validate(); err != nil {
		t.Fatalf("valid vector rejected: %v", err)
	}
}

func TestValidateMissingFeature(t *testing.T) {
	fv := validVector()
	delete(fv, "velocity_1h")

	err := fv.Validate()
	if err == nil {
		t.Fatal("expected mismatch error")
	}
	if !errors.Is(err, ErrMismatch) {
		t.Fatalf("expected ErrMismatch, got %v", err)
	}
	if !strings.Contains(err.Error(), "velocity_1h") {
		t.Errorf("error should name the missing feature: %v", err)
	}
}

func TestValidateUnexpectedFeature(t *testing.T) {
	fv := validVector()
	fv["txn_type_idx"] = 3

	err := fv.Validate()
	if !errors.Is(err, ErrMismatch) {
		t.Fatalf("expected ErrMismatch, got %v", err)
	}
	if !strings.Contains(err.Error(), "txn_type_idx") {
		t.Errorf("error should name the unexpected feature: %v", err)
	}
}

func TestValidateReportsBothDeltas(t *testing.T) {
	fv := validVector()
	delete(fv, "amount_usd")
	fv["bogus"] = 1

	err := fv.Validate()
	if err == nil {
		t.Fatal("expected mismatch error")
	}
	msg := err.Error()
	if !strings.Contains(msg, "missing") || !strings.Contains(msg, "unexpected") {
		t.Errorf("error should report both deltas: %v", err)
	}
}

func TestVectorCanonicalOrder(t *testing.T) {
	fv := validVector()
	vec := fv.Vector()
	if len(vec) != len(Names) {
		t.Fatalf("vector length %d, want %d", len(vec), len(Names))
	}
	for i, n := range Names {
		if vec[i] != fv[n] {
			t.Errorf("position %d (%s): got %f, want %f", i, n, vec[i], fv[n])
		}
	}
}

func TestCloneIsIndependent(t *testing.T) {
	fv := validVector()
	clone := fv.Clone()
	clone["amount_usd"] = 999

	if fv["amount_usd"] == 999 {
		t.Error("mutating the clone changed the original")
	}
}
