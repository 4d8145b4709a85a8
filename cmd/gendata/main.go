// gendata writes a synthetic labeled transaction CSV for exercising the
// calibration pipeline without production data.
package main

import (
	"encoding/csv"
	"flag"
	"fmt"
	"log"
	"math"
	"math/rand"
	"os"
	"strconv"
	"time"

	"github.com/nairyuuu/vpbank-ml-api/internal/schema"
)

func main() {
	var (
		outPath   = flag.String("out", "data/transactions.csv", "Output CSV path")
		rows      = flag.Int("rows", 5000, "Number of transactions to generate")
		fraudRate = flag.Float64("fraud-rate", 0.05, "Fraction of fraudulent rows")
		seed      = flag.Int64("seed", 1, "Generator seed")
	)
	flag.Parse()

	fmt.Printf("Generating %d transactions (%.1f%% fraud) -> %s\n", *rows, *fraudRate*100, *outPath)

	f, err := os.Create(*outPath)
	if err != nil {
		log.Fatalf("create output: %v", err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	header := append([]string{"target", "event_timestamp"}, schema.Names...)
	if err := w.Write(header); err != nil {
		log.Fatalf("write header: %v", err)
	}

	rng := rand.New(rand.NewSource(*seed))
	start := time.Now().AddDate(0, -3, 0).UTC()
	frauds := 0

	for i := 0; i < *rows; i++ {
		label := 0
		if rng.Float64() < *fraudRate {
			label = 1
			frauds++
		}
		ts := start.Add(time.Duration(i) * time.Minute)
		fv := synthesize(rng, label, ts)

		record := make([]string, 0, len(header))
		record = append(record, strconv.Itoa(label), ts.Format(time.RFC3339))
		for _, name := range schema.Names {
			record = append(record, strconv.FormatFloat(fv[name], 'g', -1, 64))
		}
		if err := w.Write(record); err != nil {
			log.Fatalf("write row %d: %v", i, err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		log.Fatalf("flush output: %v", err)
	}

	fmt.Printf("Done: %d rows, %d fraudulent\n", *rows, frauds)
}

// synthesize draws one schema-complete feature vector. Fraudulent rows skew
// toward large night-time amounts, device reuse, and long geographic jumps.
func synthesize(rng *rand.Rand, label int, ts time.Time) schema.FeatureVector {
	fv := make(schema.FeatureVector, len(schema.Names))
	for _, n := range schema.Names {
		fv[n] = 0
	}

	hour := ts.Hour()
	if ts.Weekday() == time.Saturday || ts.Weekday() == time.Sunday {
		fv["is_weekend"] = 1
	}
	if hour < 6 || hour >= 22 {
		fv["is_night"] = 1
	}
	if hour >= 9 && hour < 17 {
		fv["is_business_hours"] = 1
	}
	fv["is_qr"] = 1

	amount := math.Exp(rng.NormFloat64()*1.2 + 4.5)
	if label == 1 {
		amount = math.Exp(rng.NormFloat64()*1.5 + 7.0)
		fv["is_night"] = 1
		fv["is_new_device"] = float64(rng.Intn(2))
		fv["same_device_txn_1h"] = float64(2 + rng.Intn(5))
		fv["geo_distance_from_last_txn"] = 50 + rng.Float64()*500
		fv["geo_speed_km_per_min"] = 5 + rng.Float64()*50
		fv["velocity_1h"] = float64(2 + rng.Intn(8))
		fv["change_in_user_agent"] = float64(rng.Intn(2))
		fv["disposable_email_flag"] = float64(rng.Intn(2))
	} else {
		fv["same_device_txn_1h"] = float64(rng.Intn(2))
		fv["geo_distance_from_last_txn"] = rng.Float64() * 5
		fv["velocity_1h"] = float64(rng.Intn(2))
	}
	fv["amount_usd"] = math.Round(amount*100) / 100
	fv["amount_log"] = math.Log1p(amount)
	if amount > 1000 {
		fv["is_high_amount"] = 1
	}

	fv["name_is_ascii"] = 1
	fv["billing_lat"] = 10.5 + rng.Float64()*11
	fv["billing_long"] = 102 + rng.Float64()*8
	fv["seconds_since_last_txn"] = float64(rng.Intn(86400))
	fv["sum_amount_1h"] = amount * (1 + rng.Float64())
	fv["avg_amount_1h"] = amount
	fv["txn_count_1h"] = 1 + fv["same_device_txn_1h"]
	fv["sum_amount_24h"] = amount * (2 + rng.Float64()*3)
	fv["avg_amount_24h"] = amount * (0.8 + rng.Float64()*0.4)
	fv["txn_count_24h"] = fv["txn_count_1h"] + float64(rng.Intn(10))
	fv["rank_amount_per_day"] = rng.Float64()

	return fv
}
