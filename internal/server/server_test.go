package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/nairyuuu/vpbank-ml-api/internal/engine"
	"github.com/nairyuuu/vpbank-ml-api/internal/oracle"
	"github.com/nairyuuu/vpbank-ml-api/internal/rules"
	"github.com/nairyuuu/vpbank-ml-api/internal/schema"
	"github.com/nairyuuu/vpbank-ml-api/internal/snapshot"
	"github.com/nairyuuu/vpbank-ml-api/internal/stacker"
)

type fixedOracle struct {
	name string
	prob float64
	err  error
}

func (o *fixedOracle) Name() string { return o.name }

func (o *fixedOracle) Predict(context.Context, schema.FeatureVector) (oracle.Score, error) {
	if o.err != nil {
		return oracle.Score{}, o.err
	}
	return oracle.Score{Producer: o.name, Probability: o.prob}, nil
}

type memAudit struct {
	mu      sync.Mutex
	entries int
}

func (a *memAudit) AppendDecision(string, time.Time, []byte) error {
	a.mu.Lock()
	a.entries++
	a.mu.Unlock()
	return nil
}

func validVector() schema.FeatureVector {
	fv := make(schema.FeatureVector, len(schema.Names))
	for _, n := range schema.Names {
		fv[n] = 0
	}
	return fv
}

func testEngine(prob float64) *engine.Engine {
	e := engine.New(
		&fixedOracle{name: "p", prob: prob},
		&fixedOracle{name: "a", prob: prob},
		&fixedOracle{name: "b", prob: prob},
		nil, time.Second)
	e.Swap(&snapshot.Snapshot{
		Version:       "v-test",
		CreatedAt:     time.Now().UTC(),
		SchemaVersion: schema.Version,
		Weight:        0.5,
		Threshold:     0.4,
		Stacker:       &stacker.Model{Bias: -1000, LearningRate: 0.05},
		RuleConstants: rules.Defaults(),
	})
	return e
}

func decideRequest(t *testing.T, fv schema.FeatureVector) *http.Request {
	t.Helper()
	body, err := json.Marshal(DecideRequest{TransactionID: "txn-1", Features: fv})
	if err != nil {
		t.Fatal(err)
	}
	return httptest.NewRequest(http.MethodPost, "/v1/decide", bytes.NewReader(body))
}

func TestHandleDecide(t *testing.T) {
	audit := &memAudit{}
	s := New(testEngine(0.9), audit, ":0")

	rec := httptest.NewRecorder()
	s.handleDecide(rec, decideRequest(t, validVector()))

	if rec.Code != http.StatusOK {
		t.Fatalf("status %d: %s", rec.Code, rec.Body.String())
	}

	var resp DecideResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.TransactionID != "txn-1" {
		t.Errorf("transaction id %s, want txn-1", resp.TransactionID)
	}
	// 0.5*0.9 + 0.5*0 = 0.45 > 0.4.
	if resp.Decision.Label != 1 {
		t.Errorf("label %d (blend %f), want 1", resp.Decision.Label, resp.Decision.Blend)
	}
	if resp.Decision.SnapshotVersion != "v-test" {
		t.Errorf("snapshot version %s", resp.Decision.SnapshotVersion)
	}
	if audit.entries != 1 {
		t.Errorf("audit entries %d, want 1", audit.entries)
	}
}

func TestHandleDecideSchemaMismatch(t *testing.T) {
	s := New(testEngine(0.9), nil, ":0")

	fv := validVector()
	delete(fv, "amount_usd")
	rec := httptest.NewRecorder()
	s.handleDecide(rec, decideRequest(t, fv))

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status %d, want 400: %s", rec.Code, rec.Body.String())
	}
}

func TestHandleDecideOracleDown(t *testing.T) {
	e := engine.New(
		&fixedOracle{name: "p", err: oracle.ErrUnavailable},
		&fixedOracle{name: "a", prob: 0.5},
		&fixedOracle{name: "b", prob: 0.5},
		nil, time.Second)
	e.Swap(testEngine(0).Snapshot())
	s := New(e, nil, ":0")

	rec := httptest.NewRecorder()
	s.handleDecide(rec, decideRequest(t, validVector()))

	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status %d, want 503: %s", rec.Code, rec.Body.String())
	}
}

func TestHandleDecideNoSnapshot(t *testing.T) {
	e := engine.New(&fixedOracle{name: "p"}, &fixedOracle{name: "a"}, &fixedOracle{name: "b"}, nil, time.Second)
	s := New(e, nil, ":0")

	rec := httptest.NewRecorder()
	s.handleDecide(rec, decideRequest(t, validVector()))

	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status %d, want 503", rec.Code)
	}
}

func TestHandleDecideRejectsGet(t *testing.T) {
	s := New(testEngine(0.5), nil, ":0")

	rec := httptest.NewRecorder()
	s.handleDecide(rec, httptest.NewRequest(http.MethodGet, "/v1/decide", nil))

	if rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("status %d, want 405", rec.Code)
	}
}

func TestHandleDecideBadJSON(t *testing.T) {
	s := New(testEngine(0.5), nil, ":0")

	req := httptest.NewRequest(http.MethodPost, "/v1/decide", bytes.NewReader([]byte("{")))
	rec := httptest.NewRecorder()
	s.handleDecide(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status %d, want 400", rec.Code)
	}
}

func TestHandleSnapshot(t *testing.T) {
	s := New(testEngine(0.5), nil, ":0")

	rec := httptest.NewRecorder()
	s.handleSnapshot(rec, httptest.NewRequest(http.MethodGet, "/v1/snapshot", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status %d", rec.Code)
	}
	var snap snapshot.Snapshot
	if err := json.NewDecoder(rec.Body).Decode(&snap); err != nil {
		t.Fatalf("decode snapshot: %v", err)
	}
	if snap.Version != "v-test" {
		t.Errorf("version %s, want v-test", snap.Version)
	}
}

func TestHandleHealth(t *testing.T) {
	s := New(testEngine(0.5), nil, ":0")
	rec := httptest.NewRecorder()
	s.handleHealth(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("healthy engine reported %d", rec.Code)
	}

	bare := engine.New(&fixedOracle{name: "p"}, &fixedOracle{name: "a"}, &fixedOracle{name: "b"}, nil, time.Second)
	s = New(bare, nil, ":0")
	rec = httptest.NewRecorder()
	s.handleHealth(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("engine without snapshot reported %d, want 503", rec.Code)
	}
}
