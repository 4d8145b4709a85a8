package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/nairyuuu/vpbank-ml-api/internal/calibration"
	"github.com/nairyuuu/vpbank-ml-api/internal/cfg"
	"github.com/nairyuuu/vpbank-ml-api/internal/oracle"
	"github.com/nairyuuu/vpbank-ml-api/internal/rules"
	"github.com/nairyuuu/vpbank-ml-api/internal/snapshot"
)

func main() {
	var (
		dataPath = flag.String("data", "", "Path to labeled transaction CSV")
		logLevel = flag.String("log-level", "info", "Log level: debug, info, warn, error")
		trials   = flag.Int("trials", 0, "Blend weight search trials (overrides config)")
		seed     = flag.Int64("seed", -1, "Search seed (overrides config)")
		split    = flag.Float64("split", 0, "Train fraction of the chronological split (overrides config)")
		activate = flag.Bool("activate", false, "Activate the new snapshot for serving")
		timeout  = flag.Duration("timeout", 30*time.Minute, "Overall calibration timeout")
	)
	flag.Parse()

	level, err := zerolog.ParseLevel(*logLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	_ = godotenv.Load()

	c, err := cfg.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("config load failed")
	}

	if *dataPath == "" {
		*dataPath = c.DatasetPath
	}
	if *dataPath == "" {
		log.Fatal().Msg("no dataset: pass -data or set DATASET_PATH")
	}

	params := calibration.DefaultParams()
	params.BlendLo = c.BlendLo
	params.BlendHi = c.BlendHi
	params.Trials = c.Trials
	params.Seed = c.Seed
	params.SplitFraction = c.SplitFraction
	if *trials > 0 {
		params.Trials = *trials
	}
	if *seed >= 0 {
		params.Seed = *seed
	}
	if *split > 0 && *split < 1 {
		params.SplitFraction = *split
	}

	primary, err := buildOracle(c.Primary, c.OracleTimeout)
	if err != nil {
		log.Fatal().Err(err).Str("oracle", c.Primary.Name).Msg("primary oracle init failed")
	}
	baseA, err := buildOracle(c.BaseA, c.OracleTimeout)
	if err != nil {
		log.Fatal().Err(err).Str("oracle", c.BaseA.Name).Msg("base oracle init failed")
	}
	baseB, err := buildOracle(c.BaseB, c.OracleTimeout)
	if err != nil {
		log.Fatal().Err(err).Str("oracle", c.BaseB.Name).Msg("base oracle init failed")
	}

	ds, err := calibration.LoadCSV(*dataPath)
	if err != nil {
		log.Fatal().Err(err).Str("path", *dataPath).Msg("dataset load failed")
	}
	ds.SortChronological()

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	cal := calibration.New(primary, baseA, baseB, rules.NewEvaluator(rules.Defaults()), params)
	snap, report, err := cal.Run(ctx, ds)
	if err != nil {
		if errors.Is(err, calibration.ErrInsufficientData) {
			log.Fatal().Err(err).Msg("dataset too small or single-class, snapshot unchanged")
		}
		log.Fatal().Err(err).Msg("calibration failed")
	}

	printReport(snap, report)

	if c.DataPath == "" {
		log.Warn().Msg("DATA_PATH unset, snapshot not persisted")
		return
	}

	store, err := snapshot.Open(c.DataPath)
	if err != nil {
		log.Fatal().Err(err).Str("path", c.DataPath).Msg("snapshot store open failed")
	}
	defer store.Close()

	if err := store.Save(snap); err != nil {
		log.Fatal().Err(err).Str("version", snap.Version).Msg("snapshot save failed")
	}
	log.Info().Str("version", snap.Version).Msg("snapshot saved")

	if *activate {
		if err := store.Activate(snap.Version); err != nil {
			log.Fatal().Err(err).Str("version", snap.Version).Msg("snapshot activation failed")
		}
		log.Info().Str("version", snap.Version).Msg("snapshot activated")
	}
}

func buildOracle(oc cfg.OracleConfig, timeout time.Duration) (oracle.Oracle, error) {
	switch oc.Kind {
	case cfg.OracleSubprocess:
		return oracle.NewSubprocess(oc.Name, oc.PythonPath, oc.ScriptPath, oc.ModelPath, timeout), nil
	case cfg.OracleHTTP:
		return oracle.NewHTTP(oc.Name, oc.URL, timeout), nil
	default:
		return nil, fmt.Errorf("unknown oracle kind %q", oc.Kind)
	}
}

func printReport(snap *snapshot.Snapshot, report *calibration.Report) {
	fmt.Println("=== Calibration Report ===")
	fmt.Printf("Snapshot Version: %s\n", snap.Version)
	fmt.Printf("Blend Weight:     %.4f\n", report.Weight)
	fmt.Printf("Threshold:        %.6f\n", report.Threshold)
	fmt.Printf("F1:               %.4f\n", report.F1)
	fmt.Printf("Precision:        %.4f\n", report.Precision)
	fmt.Printf("Recall:           %.4f\n", report.Recall)
	fmt.Printf("AUC:              %.4f\n", report.AUC)
	fmt.Printf("Validation Rows:  %d (%d positive)\n", report.Rows, report.Positives)
	if report.Uncalibrated {
		fmt.Println("WARNING: degenerate score curve, fallback parameters in effect")
	}
	fmt.Println("==========================")
}
