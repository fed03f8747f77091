package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/brojonat/zcashrpc/service/config"
	"github.com/brojonat/zcashrpc/service/db"
	"github.com/brojonat/zcashrpc/service/metrics"
	natspkg "github.com/brojonat/zcashrpc/service/nats"
	"github.com/brojonat/zcashrpc/service/temporal"
	"github.com/brojonat/zcashrpc/service/zcash"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func main() {
	// Load and validate configuration from environment
	cfg := config.MustLoad()

	// Setup structured logging
	logger := setupLogger(cfg.LogLevel)
	logger.Info("starting shielded transaction worker",
		"network", cfg.Network,
		"rpc_url", cfg.RPCURL,
		"temporal_host", cfg.TemporalHost,
		"task_queue", cfg.TemporalTaskQueue,
		"watch_addresses", len(cfg.WatchAddresses),
		"interval", cfg.WatchInterval,
		"log_level", cfg.LogLevel,
	)

	// Setup context with cancellation for graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Initialize Prometheus metrics collector
	metricsCollector := metrics.NewMetrics(nil) // nil uses default registry

	// Start metrics HTTP server
	metricsServer := &http.Server{
		Addr:    cfg.MetricsAddr,
		Handler: promhttp.Handler(),
	}
	go func() {
		logger.Info("starting metrics HTTP server", "addr", cfg.MetricsAddr)
		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server error", "error", err)
		}
	}()
	defer func() {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		if err := metricsServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("failed to shutdown metrics server", "error", err)
		}
	}()

	// Initialize database connection pool
	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Error("failed to create database pool", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	if err := pool.Ping(ctx); err != nil {
		logger.Error("failed to ping database", "error", err)
		os.Exit(1)
	}

	store := db.NewStore(pool)
	if err := store.Migrate(ctx); err != nil {
		logger.Error("failed to migrate database", "error", err)
		os.Exit(1)
	}
	logger.Info("connected to database")

	// Initialize zcashd client
	client, err := zcash.NewClientFromConfig(cfg, nil,
		zcash.WithLogger(logger),
		zcash.WithMetrics(metricsCollector),
	)
	if err != nil {
		logger.Error("failed to create zcash client", "error", err)
		os.Exit(1)
	}

	info, err := client.GetBlockchainInfo(ctx)
	if err != nil {
		logger.Error("failed to reach zcashd", "kind", zcash.KindOf(err), "error", err)
		os.Exit(1)
	}
	logger.Info("connected to zcashd", "chain", info.Chain, "blocks", info.Blocks)

	aggregator := zcash.NewAggregator(client, metricsCollector, logger, 0)

	// Initialize NATS publisher
	natsPublisher, err := natspkg.NewPublisher(cfg.NATSURL, metricsCollector, logger)
	if err != nil {
		logger.Error("failed to create NATS publisher", "error", err)
		os.Exit(1)
	}
	defer natsPublisher.Close()

	// Initialize Temporal client
	temporalClient, err := temporal.NewClient(cfg.TemporalHost, cfg.TemporalNamespace, cfg.TemporalTaskQueue, logger)
	if err != nil {
		logger.Error("failed to create temporal client", "error", err)
		os.Exit(1)
	}
	defer temporalClient.Close()

	w, err := temporal.NewWorker(temporal.WorkerConfig{
		Client:    temporalClient,
		Store:     store,
		Source:    aggregator,
		Lister:    client,
		Publisher: natsPublisher,
		Metrics:   metricsCollector,
		Logger:    logger,
	})
	if err != nil {
		logger.Error("failed to create worker", "error", err)
		os.Exit(1)
	}

	if err := w.Start(); err != nil {
		logger.Error("failed to start worker", "error", err)
		os.Exit(1)
	}
	defer w.Stop()

	if err := temporalClient.UpsertPollSchedule(ctx, cfg.Network, cfg.WatchAddresses, cfg.WatchInterval); err != nil {
		logger.Error("failed to schedule polling", "error", err)
		return
	}

	<-ctx.Done()
	logger.Info("shutting down")
}

// setupLogger creates a structured logger with the given log level.
func setupLogger(levelStr string) *slog.Logger {
	var level slog.Level
	switch levelStr {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{
		Level: level,
	}

	return slog.New(slog.NewJSONHandler(os.Stderr, opts))
}
