package oracle

import (
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/nairyuuu/vpbank-ml-api/internal/schema"
)

// HTTPOracle scores against a remotely served model. The endpoint accepts
// the feature map as JSON and answers with a single fraud probability.
type HTTPOracle struct {
	name string
	url  string
	rest *resty.Client
}

type httpScoreResponse struct {
	Probability float64 `json:"probability"`
	Error       string  `json:"error,omitempty"`
}

// NewHTTP builds an HTTP oracle for the given predict endpoint.
func NewHTTP(name, url string, timeout time.Duration) *HTTPOracle {
	r := resty.New()
	if timeout > 0 {
		r.SetTimeout(timeout)
	} else {
		r.SetTimeout(5 * time.Second)
	}
	return &HTTPOracle{name: name, url: url, rest: r}
}

func (o *HTTPOracle) Name() string { return o.name }

func (o *HTTPOracle) Predict(ctx context.Context, fv schema.FeatureVector) (Score, error) {
	resp := &httpScoreResponse{}
	res, err := o.rest.R().
		SetContext(ctx).
		SetBody(map[string]any{"features": fv, "schema_version": schema.Version}).
		SetResult(resp).
		Post(o.url)
	if err != nil {
		return Score{}, fmt.Errorf("%w: %s: %v", ErrUnavailable, o.name, err)
	}
	if res.IsError() {
		return Score{}, fmt.Errorf("%w: %s: status %d", ErrUnavailable, o.name, res.StatusCode())
	}
	if resp.Error != "" {
		return Score{}, fmt.Errorf("%w: %s: %s", ErrMalformed, o.name, resp.Error)
	}
	if err := validateProbability(resp.Probability); err != nil {
		return Score{}, fmt.Errorf("%w: %s: probability %f", ErrMalformed, o.name, resp.Probability)
	}
	return Score{Producer: o.name, Probability: resp.Probability}, nil
}
