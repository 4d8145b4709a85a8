package rules

import (
	"testing"

	"github.com/nairyuuu/vpbank-ml-api/internal/schema"
)

func vectorWith(overrides map[string]float64) schema.FeatureVector {
	fv := make(schema.FeatureVector, len(schema.Names))
	for _, n := range schema.Names {
		fv[n] = 0
	}
	for k, v := range overrides {
		fv[k] = v
	}
	return fv
}

func TestEvaluate(t *testing.T) {
	e := NewEvaluator(Defaults())

	cases := []struct {
		name string
		fv   schema.FeatureVector
		want Signals
	}{
		{
			name: "quiet transaction",
			fv:   vectorWith(map[string]float64{"amount_usd": 100}),
			want: Signals{},
		},
		{
			name: "seed fires on huge night transfer far from home",
			fv: vectorWith(map[string]float64{
				"amount_usd":                 10_000_001,
				"is_night":                   1,
				"geo_distance_from_last_txn": 51,
			}),
			want: Signals{Seed: true, Strict: false},
		},
		{
			name: "seed needs the night flag",
			fv: vectorWith(map[string]float64{
				"amount_usd":                 10_000_001,
				"is_night":                   0,
				"geo_distance_from_last_txn": 51,
			}),
			want: Signals{},
		},
		{
			name: "seed threshold is exclusive",
			fv: vectorWith(map[string]float64{
				"amount_usd":                 10_000_000,
				"is_night":                   1,
				"geo_distance_from_last_txn": 51,
			}),
			want: Signals{},
		},
		{
			name: "soft fires on device reuse",
			fv: vectorWith(map[string]float64{
				"amount_usd":         357,
				"same_device_txn_1h": 2,
			}),
			want: Signals{Soft: true},
		},
		{
			name: "soft threshold is exclusive",
			fv: vectorWith(map[string]float64{
				"amount_usd":         356,
				"same_device_txn_1h": 2,
			}),
			want: Signals{},
		},
		{
			name: "strict fires on amount, distance, and velocity",
			fv: vectorWith(map[string]float64{
				"amount_usd":                 919,
				"geo_distance_from_last_txn": 0.5,
				"velocity_1h":                2,
			}),
			want: Signals{Strict: true},
		},
		{
			name: "strict needs geo distance strictly positive",
			fv: vectorWith(map[string]float64{
				"amount_usd":  919,
				"velocity_1h": 2,
			}),
			want: Signals{},
		},
		{
			name: "soft and strict can fire together",
			fv: vectorWith(map[string]float64{
				"amount_usd":                 1000,
				"same_device_txn_1h":         3,
				"geo_distance_from_last_txn": 5,
				"velocity_1h":                2,
			}),
			want: Signals{Soft: true, Strict: true},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := e.Evaluate(tc.fv)
			if got != tc.want {
				t.Errorf("got %+v, want %+v", got, tc.want)
			}
		})
	}
}

func TestBoost(t *testing.T) {
	cases := []struct {
		name    string
		stacked float64
		soft    bool
		want    float64
	}{
		{"no soft rule leaves score alone", 0.3, false, 0.3},
		{"soft rule adds the delta", 0.3, true, 0.55},
		{"boost clamps at one", 0.9, true, 1.0},
		{"zero stays in range", 0.0, true, 0.25},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := Boost(tc.stacked, tc.soft)
			if diff := got - tc.want; diff > 1e-12 || diff < -1e-12 {
				t.Errorf("Boost(%f, %v) = %f, want %f", tc.stacked, tc.soft, got, tc.want)
			}
		})
	}
}

func TestBoostNeverLowersScore(t *testing.T) {
	for _, s := range []float64{0, 0.1, 0.5, 0.75, 0.99, 1} {
		if got := Boost(s, true); got < s {
			t.Errorf("Boost(%f, true) = %f lowered the score", s, got)
		}
		if got := Boost(s, true); got > 1 {
			t.Errorf("Boost(%f, true) = %f exceeds 1", s, got)
		}
	}
}
