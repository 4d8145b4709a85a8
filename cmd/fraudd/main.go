package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/nairyuuu/vpbank-ml-api/internal/cfg"
	"github.com/nairyuuu/vpbank-ml-api/internal/engine"
	"github.com/nairyuuu/vpbank-ml-api/internal/feed"
	"github.com/nairyuuu/vpbank-ml-api/internal/metrics"
	"github.com/nairyuuu/vpbank-ml-api/internal/oracle"
	"github.com/nairyuuu/vpbank-ml-api/internal/server"
	"github.com/nairyuuu/vpbank-ml-api/internal/snapshot"
)

func main() {
	_ = godotenv.Load()

	if lvl := os.Getenv("LOG_LEVEL"); lvl != "" {
		if parsed, err := zerolog.ParseLevel(lvl); err == nil {
			zerolog.SetGlobalLevel(parsed)
		}
	}

	c, err := cfg.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("config load failed")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	m := metrics.New()
	mw := metrics.NewWrapper(m)

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

	eng := engine.New(primary, baseA, baseB, mw, c.OracleTimeout)

	var store *snapshot.Store
	if c.DataPath != "" {
		store, err = snapshot.Open(c.DataPath)
		if err != nil {
			log.Fatal().Err(err).Str("path", c.DataPath).Msg("snapshot store open failed")
		}
		defer store.Close()

		active, err := store.Active()
		if err != nil {
			log.Fatal().Err(err).Msg("loading active snapshot failed")
		}
		if active != nil {
			eng.Swap(active)
			mw.SnapshotAgeSet(time.Since(active.CreatedAt).Seconds())
		} else {
			log.Warn().Msg("no active snapshot, serving will fail until one is calibrated")
		}
	} else {
		log.Warn().Msg("DATA_PATH unset, running without snapshot persistence")
	}

	var audit server.AuditSink
	if c.AuditTrail && store != nil {
		audit = store
	}

	startMetricsServer(ctx, c.MetricsPort)

	var wg sync.WaitGroup
	if c.FeedURL != "" {
		consumer := feed.NewConsumer(c.FeedURL, eng, mw)
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := consumer.Run(ctx, 15*time.Second); err != nil && err != context.Canceled {
				log.Error().Err(err).Msg("feed consumer stopped")
			}
		}()
	}

	srv := server.New(eng, audit, c.ListenAddr)
	go func() {
		if err := srv.Start(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("decision server failed")
			cancel()
		}
	}()

	waitForShutdown(ctx, cancel)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server shutdown failed")
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		log.Info().Msg("all goroutines stopped")
	case <-time.After(10 * time.Second):
		log.Warn().Msg("shutdown timeout, forcing exit")
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

func startMetricsServer(ctx context.Context, port int) {
	go func() {
		mux := http.NewServeMux()
		mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
			w.Write([]byte("OK"))
		})
		mux.Handle("/metrics", promhttp.Handler())

		srv := &http.Server{
			Addr:              fmt.Sprintf(":%d", port),
			Handler:           mux,
			ReadHeaderTimeout: 10 * time.Second,
			ReadTimeout:       30 * time.Second,
			WriteTimeout:      30 * time.Second,
			IdleTimeout:       60 * time.Second,
		}

		go func() {
			<-ctx.Done()
			if err := srv.Shutdown(context.Background()); err != nil {
				log.Error().Err(err).Msg("failed to shutdown metrics server")
			}
		}()

		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("metrics server failed")
		}
	}()
}

func waitForShutdown(ctx context.Context, cancel context.CancelFunc) {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	select {
	case <-sigChan:
		log.Info().Msg("shutdown signal received")
	case <-ctx.Done():
		log.Info().Msg("context canceled")
	}

	log.Info().Msg("shutting down gracefully...")
	cancel()
}
