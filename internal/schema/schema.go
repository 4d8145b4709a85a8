// Package schema defines the fixed transaction feature schema shared by the
// calibration pipeline and the serving engine. A FeatureVector must carry
// exactly the schema's names; anything else is rejected before scoring.
package schema

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// Version identifies the feature schema carried by snapshots and requests.
const Version = "qr-v1"

// Names lists the 31 model features in canonical order. This order defines
// the layout of vectors handed to classifier oracles.
var Names = []string{
	"is_weekend", "is_night", "is_ibft", "is_topup", "is_qr",
	"amount_usd", "amount_log", "is_high_amount",
	"name_is_ascii", "name_has_digit", "name_has_symbol", "name_repeated_char",
	"disposable_email_flag", "billing_lat", "billing_long",
	"seconds_since_last_txn", "is_new_device", "geo_distance_from_last_txn",
	"suspicious_agent", "is_business_hours",
	"sum_amount_1h", "avg_amount_1h", "txn_count_1h",
	"sum_amount_24h", "avg_amount_24h", "txn_count_24h",
	"velocity_1h", "rank_amount_per_day", "change_in_user_agent",
	"geo_speed_km_per_min", "same_device_txn_1h",
}

// IdentifierColumns are tolerated in calibration datasets but excluded from
// modeling.
var IdentifierColumns = []string{"entity_id_hash", "email_domain", "ip_address", "user_agent"}

// ErrMismatch is returned when a feature vector does not match the schema
// exactly. No partial scoring happens after a mismatch.
var ErrMismatch = errors.New("feature schema mismatch")

var nameSet = func() map[string]struct{} {
	s := make(map[string]struct{}, len(Names))
	for _, n := range Names {
		s[n] = struct{}{}
	}
	return s
}()

// FeatureVector is one transaction's named numeric record. Input order is
// irrelevant; Vector produces the canonical ordering.
type FeatureVector map[string]float64

// Validate checks the vector against the schema. Missing and unexpected
// names are both reported so callers can log the full delta.
func (fv FeatureVector) Validate() error {
	var missing, extra []string
	for _, n := range Names {
		if _, ok := fv[n]; !ok {
			missing = append(missing, n)
		}
	}
	for n := range fv {
		if _, ok := nameSet[n]; !ok {
			extra = append(extra, n)
		}
	}
	if len(missing) == 0 && len(extra) == 0 {
		return nil
	}
	sort.Strings(missing)
	sort.Strings(extra)
	var parts []string
	if len(missing) > 0 {
		parts = append(parts, "missing: "+strings.Join(missing, ","))
	}
	if len(extra) > 0 {
		parts = append(parts, "unexpected: "+strings.Join(extra, ","))
	}
	return fmt.Errorf("%w (%s)", ErrMismatch, strings.Join(parts, "; "))
}

// Vector returns the features in canonical schema order. The vector must be
// schema-valid; Validate is the caller's responsibility.
func (fv FeatureVector) Vector() []float64 {
	out := make([]float64, len(Names))
	for i, n := range Names {
		out[i] = fv[n]
	}
	return out
}

// Get returns a named feature, or 0 for an absent name. Rule evaluation uses
// it only after schema validation, where every name is present.
func (fv FeatureVector) Get(name string) float64 {
	return fv[name]
}

// Clone returns an independent copy, so calibration rows can be retained
// without aliasing request-scoped maps.
func (fv FeatureVector) Clone() FeatureVector {
	out := make(FeatureVector, len(fv))
	for k, v := range fv {
		out[k] = v
	}
	return out
}
