// Command standardize runs the device data standardization engine over
// a data root: it loads the participant roster, discovers raw device
// exports per participant and modality, and writes one canonical,
// schema-validated series file per work unit.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"sensorstd/internal/config"
	"sensorstd/internal/engine"
	"sensorstd/internal/infrastructure"
	"sensorstd/internal/parser"
	"sensorstd/internal/roster"
	"sensorstd/internal/schema"
	"sensorstd/internal/transport"
	"sensorstd/pkg/contracts"
)

func main() {
	if err := run(); err != nil {
		infrastructure.WithError(infrastructure.GetLogger(), err).Error("standardization run failed")
		os.Exit(1)
	}
}

func run() error {
	configFile := flag.String("config", "config.yaml", "path to YAML config file (optional)")
	dataDir := flag.String("data", "", "data root override")
	outDir := flag.String("out", "", "output directory override")
	rosterFile := flag.String("roster", "", "roster file override")
	showVersion := flag.Bool("version", false, "print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Println(contracts.GetVersionString())
		return nil
	}

	cfg, err := config.Load(*configFile)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if *dataDir != "" {
		cfg.Paths.DataDir = *dataDir
	}
	if *outDir != "" {
		cfg.Paths.OutputDir = *outDir
	}
	if *rosterFile != "" {
		cfg.Paths.RosterFile = *rosterFile
	}
	if err := cfg.EnsureDirs(); err != nil {
		return err
	}

	logger, err := infrastructure.InitializeLogger(cfg.Logging)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer infrastructure.CloseLogFile()
	logger = infrastructure.WithComponent(logger, "standardize")

	logger.Info("starting",
		slog.String("version", contracts.Version),
		slog.String("data_dir", cfg.Paths.DataDir),
		slog.String("output_dir", cfg.Paths.OutputDir))

	providers, err := infrastructure.InitializeOTel(&infrastructure.OTelConfig{
		ServiceName:    infrastructure.ServiceName,
		ServiceVersion: contracts.Version,
		EnableMetrics:  cfg.Telemetry.EnableMetrics,
		EnableTracing:  cfg.Telemetry.EnableTracing,
		SampleRatio:    1.0,
	}, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize telemetry: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		providers.Shutdown(shutdownCtx)
	}()

	opts := engine.Options{Tracer: providers.Tracer}
	if providers.Meter != nil {
		metrics, err := infrastructure.CreateConversionMetrics(providers.Meter)
		if err != nil {
			return fmt.Errorf("failed to create metrics: %w", err)
		}
		opts.Metrics = metrics
	}

	schemas, err := schema.Load()
	if err != nil {
		return err
	}

	parsers := parser.NewRegistry()
	for modality, construct := range parser.Builtin(logger) {
		ms, err := schemas.Get(modality)
		if err != nil {
			return err
		}
		if err := parsers.Register(construct(ms)); err != nil {
			return err
		}
	}

	// The roster must be fully loaded before any worker starts; it is
	// shared read-only across the pool.
	r, err := roster.Load(cfg.Paths.RosterFile, logger)
	if err != nil {
		return fmt.Errorf("failed to load roster: %w", err)
	}

	tracker := engine.NewRunTracker()

	var status *transport.StatusServer
	if cfg.Status.Enabled {
		status = transport.NewStatusServer(cfg.Status.Port, tracker, providers.PrometheusHTTP, logger)
		status.Start()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			status.Shutdown(shutdownCtx)
		}()
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	// One trace id spans every log line of this run.
	ctx = infrastructure.EnsureTraceID(ctx)

	eng := engine.New(*cfg, parsers, schemas, r, tracker, opts, logger)
	summary, err := eng.Run(ctx)
	if err != nil {
		return err
	}

	infrastructure.LoggerWithContext(ctx).Info("run complete",
		slog.String("run_id", summary.RunID),
		slog.Int("units", summary.Units),
		slog.Int("succeeded", summary.Succeeded),
		slog.Int("failed", summary.Failed))

	if summary.Failed > 0 {
		return fmt.Errorf("%d of %d conversions failed", summary.Failed, summary.Units)
	}
	return nil
}
