package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	httpadapter "github.com/couchcryptid/locate-annotation-service/internal/adapter/http"
	kafkaadapter "github.com/couchcryptid/locate-annotation-service/internal/adapter/kafka"
	"github.com/couchcryptid/locate-annotation-service/internal/adapter/mapbox"
	"github.com/couchcryptid/locate-annotation-service/internal/adapter/sqlite"
	"github.com/couchcryptid/locate-annotation-service/internal/adapter/warehouse"
	"github.com/couchcryptid/locate-annotation-service/internal/config"
	"github.com/couchcryptid/locate-annotation-service/internal/domain"
	"github.com/couchcryptid/locate-annotation-service/internal/observability"
	"github.com/couchcryptid/locate-annotation-service/internal/pipeline"
)

func main() {
	// A missing .env is fine; the environment may already be set.
	_ = godotenv.Load(".env")

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg)
	metrics := observability.NewMetrics()

	if err := run(cfg, logger, metrics); err != nil {
		logger.Error("annotator failed", "error", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger *slog.Logger, metrics *observability.Metrics) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := sqlite.Open(cfg.SQLitePath)
	if err != nil {
		return fmt.Errorf("open store %s: %w", cfg.SQLitePath, err)
	}
	defer store.Close()

	// Without a warehouse only tables already in the store can be opened.
	var source pipeline.LocateSource
	if cfg.WarehouseDSN != "" {
		wh, err := warehouse.Open(ctx, cfg.WarehouseDSN)
		if err != nil {
			return fmt.Errorf("connect to warehouse: %w", err)
		}
		defer wh.Close()
		source = wh
		logger.Info("warehouse connected", "poll_interval", cfg.WarehousePollInterval, "max_wait", cfg.WarehouseMaxWait)
	} else {
		logger.Warn("WAREHOUSE_DSN not set, serving cached tables only")
	}

	var publisher pipeline.SessionPublisher
	var writer *kafkaadapter.Writer
	if cfg.KafkaEnabled {
		writer = kafkaadapter.NewWriter(cfg, logger)
		publisher = writer
		logger.Info("session feed enabled", "topic", cfg.KafkaSessionTopic, "brokers", cfg.KafkaBrokers)
	}

	// Initialize geocoder (feature-flagged via MAPBOX_ENABLED / MAPBOX_TOKEN).
	var geocoder domain.Geocoder
	if cfg.MapboxEnabled {
		client := mapbox.NewClient(cfg.MapboxToken, cfg.MapboxTimeout, metrics, logger)
		geocoder = mapbox.NewCachedGeocoder(client, cfg.MapboxCacheSize, metrics)
		metrics.GeocodeEnabled.Set(1)
		logger.Info("mapbox geocoding enabled", "cache_size", cfg.MapboxCacheSize, "timeout", cfg.MapboxTimeout)
	} else {
		logger.Info("mapbox geocoding disabled")
	}

	p := pipeline.New(source, store, publisher, geocoder, logger, metrics, pipeline.Options{
		DefaultPreset:    cfg.EnginePreset,
		FlushThreshold:   cfg.FlushBatchSize,
		PollInterval:     cfg.WarehousePollInterval,
		MaxWait:          cfg.WarehouseMaxWait,
		SessionCacheSize: cfg.SessionCacheSize,
	})

	srv := httpadapter.NewServer(cfg.HTTPAddr, p, logger)

	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "error", err)
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
	if err := p.Shutdown(shutdownCtx); err != nil {
		logger.Error("session flush error", "error", err)
	}
	if writer != nil {
		if err := writer.Close(); err != nil {
			logger.Error("kafka writer close error", "error", err)
		}
	}

	logger.Info("shutdown complete")
	return nil
}
