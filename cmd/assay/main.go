package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/MikeSquared-Agency/Assay/internal/api"
	"github.com/MikeSquared-Agency/Assay/internal/approval"
	"github.com/MikeSquared-Agency/Assay/internal/config"
	"github.com/MikeSquared-Agency/Assay/internal/hermes"
	"github.com/MikeSquared-Agency/Assay/internal/ingest"
	"github.com/MikeSquared-Agency/Assay/internal/metrics"
	"github.com/MikeSquared-Agency/Assay/internal/runner"
	"github.com/MikeSquared-Agency/Assay/internal/scoring"
	"github.com/MikeSquared-Agency/Assay/internal/store"
)

func main() {
	os.Exit(run(os.Args[1:]))
}

// run returns the process exit code once every deferred close has run.
func run(args []string) int {
	fs := flag.NewFlagSet("assay", flag.ContinueOnError)
	configPath := fs.String("config", "", "path to config file")
	once := fs.Bool("once", false, "score every entity once, print the run report and exit")
	migrate := fs.Bool("migrate", false, "apply the database schema before starting")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	bootLogger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))

	cfg, err := config.Load(*configPath)
	if err != nil {
		bootLogger.Error("failed to load config", "error", err)
		return 1
	}
	logger := newLogger(cfg.Logging)
	slog.SetDefault(logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Database
	db, err := store.NewPostgresStore(ctx, cfg.Database.URL)
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		return 1
	}
	defer db.Close()
	logger.Info("connected to database")

	if *migrate {
		if err := db.Migrate(ctx); err != nil {
			logger.Error("failed to migrate", "error", err)
			return 1
		}
		logger.Info("schema applied")
	}

	// Scoring core
	engine, err := scoring.NewEngine(scoring.DefaultCalculators(), cfg.ScoringProfiles()...)
	if err != nil {
		logger.Error("failed to build scoring engine", "error", err)
		return 1
	}
	estimator, err := approval.NewEstimator(cfg.Approval)
	if err != nil {
		logger.Error("failed to build approval estimator", "error", err)
		return 1
	}

	// Hermes (optional)
	var hermesClient hermes.Client
	if cfg.Hermes.URL != "" {
		hc, err := hermes.NewNATSClient(ctx, cfg.Hermes.URL, logger)
		if err != nil {
			logger.Warn("failed to connect to hermes, running without events", "error", err)
		} else {
			hermesClient = hc
			defer hc.Close()
			logger.Info("connected to hermes")
		}
	}

	// Signals come from the ingest service when configured, else the database.
	var signals runner.SignalSource
	if cfg.Ingest.URL != "" {
		signals = ingest.NewHTTPClient(cfg.Ingest.URL, cfg.Ingest.Token, cfg.IngestTimeout())
		logger.Info("reading signals from ingest service", "url", cfg.Ingest.URL)
	}

	recorder := metrics.NewRecorder(prometheus.DefaultRegisterer)
	r := runner.New(db, signals, engine, estimator, hermesClient, recorder,
		runner.Config{Workers: cfg.Runner.Workers, Interval: cfg.RunInterval()}, logger)

	if *once {
		return runOnce(ctx, r, logger)
	}

	r.Start(ctx)
	defer r.Stop()
	if cfg.RunInterval() > 0 {
		logger.Info("periodic runs enabled", "interval", cfg.RunInterval())
	}

	if hermesClient != nil {
		if err := subscribeRunRequests(ctx, hermesClient, r, logger); err != nil {
			logger.Warn("failed to subscribe to run requests", "error", err)
		}
	}

	// API server
	router := api.NewRouter(db, engine, estimator, r, cfg.Server.AdminToken, logger)
	apiServer := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Metrics server
	metricsServer := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.MetricsPort),
		Handler:           api.NewMetricsRouter(prometheus.DefaultGatherer),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("API server starting", "port", cfg.Server.Port)
		if err := apiServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			logger.Error("API server error", "error", err)
		}
	}()

	go func() {
		logger.Info("metrics server starting", "port", cfg.Server.MetricsPort)
		if err := metricsServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server error", "error", err)
		}
	}()

	// Graceful shutdown
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	logger.Info("shutting down...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	_ = apiServer.Shutdown(shutdownCtx)
	_ = metricsServer.Shutdown(shutdownCtx)

	logger.Info("shutdown complete")
	return 0
}

// runOnce returns the process exit code: 0 when every entity scored, 2
// when some failed, 1 when the run itself failed.
func runOnce(ctx context.Context, r *runner.Runner, logger *slog.Logger) int {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	rep, err := r.RunAll(ctx)
	if rep != nil {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		_ = enc.Encode(rep)
	}
	if err != nil {
		logger.Error("run failed", "error", err)
		return 1
	}
	if rep.Failed > 0 {
		return 2
	}
	return 0
}

func subscribeRunRequests(ctx context.Context, h hermes.Client, r *runner.Runner, logger *slog.Logger) error {
	return h.Subscribe(hermes.SubjectRunRequest, func(_ string, data []byte) {
		var ev hermes.RunRequestEvent
		if err := json.Unmarshal(data, &ev); err != nil {
			logger.Warn("bad run request", "error", err)
			return
		}
		go func() {
			if _, err := r.RunIDs(ctx, ev.EntityIDs); err != nil {
				logger.Warn("requested run failed", "source", ev.Source, "error", err)
			}
		}()
	})
}

func newLogger(cfg config.LoggingConfig) *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if strings.EqualFold(cfg.Format, "text") {
		return slog.New(slog.NewTextHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, opts))
}
