package oracle

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/nairyuuu/vpbank-ml-api/internal/schema"
)

// SubprocessOracle scores by invoking the Python model runner once per call.
// The runner reads a JSON request on stdin and writes a JSON response to
// stdout, mirroring the protocol the ONNX models were shipped with.
type SubprocessOracle struct {
	name       string
	pythonPath string
	scriptPath string
	modelPath  string
	timeout    time.Duration
}

type runnerRequest struct {
	Features []float64 `json:"features"`
}

type runnerResponse struct {
	Probabilities []float64 `json:"probabilities"`
	Prediction    int       `json:"prediction"`
	Error         string    `json:"error,omitempty"`
}

// NewSubprocess builds a subprocess oracle. The timeout bounds each
// invocation end to end, fork included.
func NewSubprocess(name, pythonPath, scriptPath, modelPath string, timeout time.Duration) *SubprocessOracle {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &SubprocessOracle{
		name:       name,
		pythonPath: pythonPath,
		scriptPath: scriptPath,
		modelPath:  modelPath,
		timeout:    timeout,
	}
}

func (o *SubprocessOracle) Name() string { return o.name }

// Predict runs one inference. The fraud probability is the second entry of
// the runner's binary probability pair.
func (o *SubprocessOracle) Predict(ctx context.Context, fv schema.FeatureVector) (Score, error) {
	reqJSON, err := json.Marshal(runnerRequest{Features: fv.Vector()})
	if err != nil {
		return Score{}, fmt.Errorf("marshal request: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, o.timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, o.pythonPath, o.scriptPath, o.modelPath)
	cmd.Stdin = bytes.NewReader(reqJSON)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			log.Warn().
				Str("oracle", o.name).
				Dur("timeout", o.timeout).
				Msg("model runner timed out")
			return Score{}, fmt.Errorf("%w: %s timed out after %v", ErrUnavailable, o.name, o.timeout)
		}
		log.Error().
			Err(err).
			Str("oracle", o.name).
			Str("script", o.scriptPath).
			Str("stderr", stderr.String()).
			Msg("model runner execution failed")
		if strings.Contains(stderr.String(), "onnxruntime not installed") ||
			strings.Contains(stderr.String(), "No such file or directory") {
			return Score{}, fmt.Errorf("%w: %s: %v", ErrUnavailable, o.name, err)
		}
		return Score{}, fmt.Errorf("%w: %s: %v", ErrMalformed, o.name, err)
	}

	var resp runnerResponse
	if err := json.Unmarshal(stdout.Bytes(), &resp); err != nil {
		return Score{}, fmt.Errorf("%w: %s: %v", ErrMalformed, o.name, err)
	}
	if resp.Error != "" {
		return Score{}, fmt.Errorf("%w: %s: %s", ErrMalformed, o.name, resp.Error)
	}
	if len(resp.Probabilities) != 2 {
		return Score{}, fmt.Errorf("%w: %s: expected 2 probabilities, got %d", ErrMalformed, o.name, len(resp.Probabilities))
	}

	p := resp.Probabilities[1]
	if err := validateProbability(p); err != nil {
		return Score{}, fmt.Errorf("%w: %s: probability %f", ErrMalformed, o.name, p)
	}

	return Score{Producer: o.name, Probability: p}, nil
}
