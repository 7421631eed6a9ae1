package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/couchcryptid/wildfire-dashboard-service/internal/adapter/firms"
	"github.com/couchcryptid/wildfire-dashboard-service/internal/adapter/httpadapter"
	kafkaadapter "github.com/couchcryptid/wildfire-dashboard-service/internal/adapter/kafka"
	"github.com/couchcryptid/wildfire-dashboard-service/internal/adapter/mapbox"
	"github.com/couchcryptid/wildfire-dashboard-service/internal/adapter/postgres"
	"github.com/couchcryptid/wildfire-dashboard-service/internal/config"
	"github.com/couchcryptid/wildfire-dashboard-service/internal/observability"
	"github.com/couchcryptid/wildfire-dashboard-service/internal/pipeline"
	"github.com/couchcryptid/wildfire-dashboard-service/internal/selection"
	"github.com/couchcryptid/wildfire-dashboard-service/internal/session"
	"github.com/couchcryptid/wildfire-dashboard-service/internal/store"
	"github.com/joho/godotenv"
)

func main() {
	// A missing .env file is fine; the environment may already be set.
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg)
	metrics := observability.NewMetrics()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Data source.
	var source pipeline.Source
	var closeSource func()
	switch cfg.DataSource {
	case config.SourcePostgres:
		pool, err := postgres.Connect(ctx, cfg.DatabaseURL)
		if err != nil {
			logger.Error("failed to connect to postgres", "error", err)
			os.Exit(1)
		}
		closeSource = pool.Close
		source = postgres.NewSource(pool, cfg.DaysBack)
		logger.Info("reading hotspots from postgres", "days_back", cfg.DaysBack)
	default:
		source = firms.NewClient(cfg, logger)
		logger.Info("reading hotspots from FIRMS", "dataset", cfg.FIRMSDataset, "area", cfg.FIRMSArea, "days", cfg.FIRMSDays)
	}
	fetch := pipeline.FromSource(source, cfg.FetchLimit)

	// Place lookup (feature-flagged via MAPBOX_ENABLED / MAPBOX_TOKEN).
	selectionOpts := []selection.Option{selection.WithRevealDelay(cfg.PanelRevealDelay)}
	if cfg.MapboxEnabled {
		client := mapbox.NewClient(cfg.MapboxToken, cfg.MapboxTimeout, metrics, logger)
		cached, err := mapbox.NewCachedLookup(client, cfg.MapboxCacheSize, metrics)
		if err != nil {
			logger.Error("failed to create place cache", "error", err)
			os.Exit(1)
		}
		selectionOpts = append(selectionOpts, selection.WithPlaceLookup(cached))
		metrics.GeocodeEnabled.Set(1)
		logger.Info("mapbox geocoding enabled", "cache_size", cfg.MapboxCacheSize, "timeout", cfg.MapboxTimeout)
	} else {
		metrics.GeocodeEnabled.Set(0)
		logger.Info("mapbox geocoding disabled")
	}

	// Refresh pipeline.
	entities := store.New()
	var procOpts []pipeline.Option
	var writer *kafkaadapter.Writer
	if cfg.KafkaEnabled {
		writer = kafkaadapter.NewWriter(cfg, logger)
		procOpts = append(procOpts, pipeline.WithPublisher(writer))
		logger.Info("publishing snapshots to kafka", "topic", cfg.KafkaSinkTopic)
	}
	processor := pipeline.New(entities, logger, metrics, procOpts...)
	scheduler := pipeline.NewScheduler(processor, fetch, cfg.RefreshSchedule, pipeline.RetryPolicy{
		InitialInterval: cfg.RetryInitial,
		MaxInterval:     cfg.RetryMax,
		MaxRetries:      cfg.RetryMaxAttempts,
	}, logger)

	sessions := session.NewManager(entities, logger, metrics, selectionOpts...)
	api := httpadapter.NewAPI(entities, func(ctx context.Context) (pipeline.Result, error) {
		return processor.Refresh(ctx, fetch)
	}, sessions, cfg.RetryMax, logger)
	srv := httpadapter.NewServer(cfg.HTTPAddr, api, processor, logger)

	// Start HTTP server.
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "error", err)
		}
	}()

	// Start refresh scheduler.
	schedDone := make(chan struct{})
	go func() {
		defer close(schedDone)
		if err := scheduler.Run(ctx); err != nil {
			logger.Error("scheduler error", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "error", err)
	}
	sessions.CloseAll()
	processor.Close()
	<-schedDone
	if writer != nil {
		if err := writer.Close(); err != nil {
			logger.Error("kafka writer close error", "error", err)
		}
	}
	if closeSource != nil {
		closeSource()
	}

	logger.Info("shutdown complete", "generation", entities.Snapshot().Generation)
}
