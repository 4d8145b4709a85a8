package oracle

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

// writeRunner fakes the model runner with a shell script so the protocol
// can be exercised without Python or ONNX runtime.
func writeRunner(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "runner.sh")
	if err := os.WriteFile(path, []byte("#!/bin/sh\n"+body+"\n"), 0o755); err != nil {
		t.Fatalf("write runner: %v", err)
	}
	return path
}

func TestSubprocessOraclePredict(t *testing.T) {
	script := writeRunner(t, `cat >/dev/null; echo '{"probabilities":[0.2,0.8],"prediction":1}'`)

	o := NewSubprocess("xgb", "/bin/sh", script, "model.onnx", 5*time.Second)
	s, err := o.Predict(context.Background(), testVector())
	if err != nil {
		t.Fatalf("predict failed: %v", err)
	}
	if s.Probability != 0.8 {
		t.Errorf("probability %f, want the positive-class entry 0.8", s.Probability)
	}
	if s.Producer != "xgb" {
		t.Errorf("producer %s, want xgb", s.Producer)
	}
}

func TestSubprocessOracleTimeout(t *testing.T) {
	script := writeRunner(t, `sleep 5`)

	o := NewSubprocess("slow", "/bin/sh", script, "model.onnx", 100*time.Millisecond)
	_, err := o.Predict(context.Background(), testVector())
	if !errors.Is(err, ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable on timeout, got %v", err)
	}
}

func TestSubprocessOracleRunnerError(t *testing.T) {
	script := writeRunner(t, `cat >/dev/null; echo '{"error":"model file corrupt"}'`)

	o := NewSubprocess("bad", "/bin/sh", script, "model.onnx", 5*time.Second)
	_, err := o.Predict(context.Background(), testVector())
	if !errors.Is(err, ErrMalformed) {
		t.Fatalf("expected ErrMalformed, got %v", err)
	}
}

func TestSubprocessOracleGarbageOutput(t *testing.T) {
	script := writeRunner(t, `cat >/dev/null; echo 'not json'`)

	o := NewSubprocess("garbage", "/bin/sh", script, "model.onnx", 5*time.Second)
	_, err := o.Predict(context.Background(), testVector())
	if !errors.Is(err, ErrMalformed) {
		t.Fatalf("expected ErrMalformed, got %v", err)
	}
}

func TestSubprocessOracleWrongProbabilityShape(t *testing.T) {
	script := writeRunner(t, `cat >/dev/null; echo '{"probabilities":[1.0],"prediction":1}'`)

	o := NewSubprocess("shape", "/bin/sh", script, "model.onnx", 5*time.Second)
	_, err := o.Predict(context.Background(), testVector())
	if !errors.Is(err, ErrMalformed) {
		t.Fatalf("expected ErrMalformed, got %v", err)
	}
}
