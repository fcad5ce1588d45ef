package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	sharedcfg "github.com/couchcryptid/storm-data-shared/config"

	"github.com/couchcryptid/locate-annotation-service/internal/domain"
)

// Config holds all service settings, populated from environment variables.
type Config struct {
	HTTPAddr        string
	LogLevel        string
	LogFormat       string
	ShutdownTimeout time.Duration

	// Persistence and upstream.
	SQLitePath            string
	WarehouseDSN          string
	WarehousePollInterval time.Duration
	WarehouseMaxWait      time.Duration

	// Annotation sessions.
	EnginePreset     string
	FlushBatchSize   int
	SessionCacheSize int

	// Completed-session feed.
	KafkaEnabled      bool
	KafkaBrokers      []string
	KafkaSessionTopic string

	// Mapbox geocoding configuration.
	MapboxToken     string
	MapboxEnabled   bool
	MapboxTimeout   time.Duration
	MapboxCacheSize int
}

// Load reads configuration from environment variables, applying defaults where unset.
func Load() (*Config, error) {
	shutdownTimeout, err := sharedcfg.ParseShutdownTimeout()
	if err != nil {
		return nil, err
	}

	pollInterval, err := parseDuration("WAREHOUSE_POLL_INTERVAL", "1s")
	if err != nil {
		return nil, err
	}
	maxWait, err := parseDuration("WAREHOUSE_MAX_WAIT", "10m")
	if err != nil {
		return nil, err
	}
	mapboxTimeout, err := parseDuration("MAPBOX_TIMEOUT", "5s")
	if err != nil {
		return nil, err
	}

	flushBatch, err := parsePositiveInt("FLUSH_BATCH_SIZE", 10)
	if err != nil {
		return nil, err
	}
	sessionCache, err := parsePositiveInt("SESSION_CACHE_SIZE", 64)
	if err != nil {
		return nil, err
	}
	mapboxCacheSize, err := parsePositiveInt("MAPBOX_CACHE_SIZE", 1000)
	if err != nil {
		return nil, err
	}

	mapboxToken := os.Getenv("MAPBOX_TOKEN")
	mapboxEnabled := mapboxToken != ""
	if v := os.Getenv("MAPBOX_ENABLED"); v != "" {
		mapboxEnabled = v == "true"
	}

	cfg := &Config{
		HTTPAddr:        sharedcfg.EnvOrDefault("HTTP_ADDR", ":8080"),
		LogLevel:        sharedcfg.EnvOrDefault("LOG_LEVEL", "info"),
		LogFormat:       sharedcfg.EnvOrDefault("LOG_FORMAT", "json"),
		ShutdownTimeout: shutdownTimeout,

		SQLitePath:            sharedcfg.EnvOrDefault("SQLITE_PATH", "annotations.db"),
		WarehouseDSN:          os.Getenv("WAREHOUSE_DSN"),
		WarehousePollInterval: pollInterval,
		WarehouseMaxWait:      maxWait,

		EnginePreset:     sharedcfg.EnvOrDefault("ENGINE_PRESET", domain.PresetDistance),
		FlushBatchSize:   flushBatch,
		SessionCacheSize: sessionCache,

		KafkaEnabled:      os.Getenv("KAFKA_ENABLED") == "true",
		KafkaBrokers:      sharedcfg.ParseBrokers(sharedcfg.EnvOrDefault("KAFKA_BROKERS", "localhost:9092")),
		KafkaSessionTopic: sharedcfg.EnvOrDefault("KAFKA_SESSION_TOPIC", "annotation-sessions"),

		MapboxToken:     mapboxToken,
		MapboxEnabled:   mapboxEnabled,
		MapboxTimeout:   mapboxTimeout,
		MapboxCacheSize: mapboxCacheSize,
	}

	if _, ok := domain.PresetByName(cfg.EnginePreset); !ok {
		return nil, fmt.Errorf("invalid ENGINE_PRESET %q", cfg.EnginePreset)
	}
	if cfg.SQLitePath == "" {
		return nil, errors.New("SQLITE_PATH is required")
	}
	if cfg.KafkaEnabled && len(cfg.KafkaBrokers) == 0 {
		return nil, errors.New("KAFKA_ENABLED is true but KAFKA_BROKERS is empty")
	}
	if cfg.KafkaEnabled && cfg.KafkaSessionTopic == "" {
		return nil, errors.New("KAFKA_SESSION_TOPIC is required")
	}
	if cfg.MapboxEnabled && cfg.MapboxToken == "" {
		return nil, errors.New("MAPBOX_ENABLED is true but MAPBOX_TOKEN is not set")
	}

	return cfg, nil
}

func parseDuration(key, def string) (time.Duration, error) {
	d, err := time.ParseDuration(sharedcfg.EnvOrDefault(key, def))
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("invalid %s", key)
	}
	return d, nil
}

func parsePositiveInt(key string, def int) (int, error) {
	s := os.Getenv(key)
	if s == "" {
		return def, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("invalid %s: must be a positive integer", key)
	}
	return n, nil
}
