package calibration

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"

	"github.com/rs/zerolog/log"

	"github.com/nairyuuu/vpbank-ml-api/internal/schema"
)

// Row is one labeled historical transaction.
type Row struct {
	EventTimestamp string
	Label          int
	Features       schema.FeatureVector
}

// Dataset is a labeled, chronologically ordered set of transactions.
type Dataset struct {
	Rows []Row
}

// requiredColumns beyond the feature schema.
const (
	targetColumn    = "target"
	timestampColumn = "event_timestamp"
)

// LoadCSV reads a calibration dataset. Required columns: target,
// event_timestamp, and the full feature schema. Identifier columns are
// tolerated and dropped; any other unknown column is a schema error.
func LoadCSV(path string) (*Dataset, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open dataset: %w", err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	header, err := r.Read()
	if err != nil {
		return nil, fmt.Errorf("read dataset header: %w", err)
	}

	ignored := make(map[string]struct{}, len(schema.IdentifierColumns))
	for _, c := range schema.IdentifierColumns {
		ignored[c] = struct{}{}
	}

	colIdx := make(map[string]int, len(header))
	for i, name := range header {
		if _, drop := ignored[name]; drop {
			continue
		}
		colIdx[name] = i
	}
	if _, ok := colIdx[targetColumn]; !ok {
		return nil, fmt.Errorf("dataset missing %q column", targetColumn)
	}
	if _, ok := colIdx[timestampColumn]; !ok {
		return nil, fmt.Errorf("dataset missing %q column", timestampColumn)
	}
	for _, name := range schema.Names {
		if _, ok := colIdx[name]; !ok {
			return nil, fmt.Errorf("%w: dataset missing feature column %q", schema.ErrMismatch, name)
		}
	}
	if extra := len(colIdx) - len(schema.Names) - 2; extra > 0 {
		for name := range colIdx {
			if name == targetColumn || name == timestampColumn {
				continue
			}
			if !contains(schema.Names, name) {
				return nil, fmt.Errorf("%w: unexpected dataset column %q", schema.ErrMismatch, name)
			}
		}
	}

	ds := &Dataset{}
	line := 1
	for {
		record, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read dataset row %d: %w", line, err)
		}
		line++

		label, err := strconv.Atoi(record[colIdx[targetColumn]])
		if err != nil || (label != 0 && label != 1) {
			return nil, fmt.Errorf("row %d: target %q is not a 0/1 label", line, record[colIdx[targetColumn]])
		}

		fv := make(schema.FeatureVector, len(schema.Names))
		for _, name := range schema.Names {
			v, err := strconv.ParseFloat(record[colIdx[name]], 64)
			if err != nil {
				return nil, fmt.Errorf("row %d: feature %s: %w", line, name, err)
			}
			fv[name] = v
		}

		ds.Rows = append(ds.Rows, Row{
			EventTimestamp: record[colIdx[timestampColumn]],
			Label:          label,
			Features:       fv,
		})
	}

	ds.SortChronological()
	log.Info().Int("rows", len(ds.Rows)).Str("path", path).Msg("calibration dataset loaded")
	return ds, nil
}

// SortChronological orders rows by event timestamp. Numeric timestamps
// compare numerically, anything else lexically (ISO timestamps sort
// correctly either way). The sort is stable so equal timestamps keep their
// input order.
func (ds *Dataset) SortChronological() {
	sort.SliceStable(ds.Rows, func(i, j int) bool {
		return lessTimestamp(ds.Rows[i].EventTimestamp, ds.Rows[j].EventTimestamp)
	})
}

// Split divides the dataset at floor(frac*N) without reordering. The front
// slice is the training window, the tail the validation window; keeping the
// boundary chronological prevents look-ahead leakage.
func (ds *Dataset) Split(frac float64) (train, valid []Row) {
	boundary := int(frac * float64(len(ds.Rows)))
	return ds.Rows[:boundary], ds.Rows[boundary:]
}

// Labels extracts the 0/1 labels of a row slice.
func Labels(rows []Row) []int {
	out := make([]int, len(rows))
	for i, r := range rows {
		out[i] = r.Label
	}
	return out
}

func lessTimestamp(a, b string) bool {
	fa, errA := strconv.ParseFloat(a, 64)
	fb, errB := strconv.ParseFloat(b, 64)
	if errA == nil && errB == nil {
		return fa < fb
	}
	return a < b
}

func contains(names []string, name string) bool {
	for _, n := range names {
		if n == name {
			return true
		}
	}
	return false
}
