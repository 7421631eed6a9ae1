package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	sharedcfg "github.com/couchcryptid/storm-data-shared/config"
)

// Data sources a refresh can read hotspots from.
const (
	SourceFIRMS    = "firms"
	SourcePostgres = "postgres"
)

// Config holds all service settings, populated from environment variables.
type Config struct {
	HTTPAddr        string
	LogLevel        string
	LogFormat       string
	ShutdownTimeout time.Duration

	// Refresh pipeline.
	DataSource       string
	FetchLimit       int
	RefreshSchedule  string
	RetryInitial     time.Duration
	RetryMax         time.Duration
	RetryMaxAttempts uint64
	PanelRevealDelay time.Duration

	// NASA FIRMS area API.
	FIRMSMapKey          string
	FIRMSBaseURL         string
	FIRMSDataset         string
	FIRMSArea            string
	FIRMSDays            int
	FIRMSTimeout         time.Duration
	FIRMSBreakerFailures uint32
	FIRMSBreakerCooldown time.Duration

	// Postgres viirs_live_data table.
	DatabaseURL string
	DaysBack    int

	// Snapshot publishing.
	KafkaEnabled       bool
	KafkaBrokers       []string
	KafkaSinkTopic     string
	BatchSize          int
	BatchFlushInterval time.Duration

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

	batchSize, err := sharedcfg.ParseBatchSize()
	if err != nil {
		return nil, err
	}

	flushInterval, err := sharedcfg.ParseBatchFlushInterval()
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		HTTPAddr:        sharedcfg.EnvOrDefault("HTTP_ADDR", ":8080"),
		LogLevel:        sharedcfg.EnvOrDefault("LOG_LEVEL", "info"),
		LogFormat:       sharedcfg.EnvOrDefault("LOG_FORMAT", "json"),
		ShutdownTimeout: shutdownTimeout,

		DataSource:      sharedcfg.EnvOrDefault("DATA_SOURCE", SourceFIRMS),
		RefreshSchedule: sharedcfg.EnvOrDefault("REFRESH_SCHEDULE", "@every 10m"),

		FIRMSMapKey:  os.Getenv("FIRMS_MAP_KEY"),
		FIRMSBaseURL: sharedcfg.EnvOrDefault("FIRMS_BASE_URL", "https://firms.modaps.eosdis.nasa.gov/api/area/csv"),
		FIRMSDataset: sharedcfg.EnvOrDefault("FIRMS_DATASET", "VIIRS_NOAA20_NRT"),
		FIRMSArea:    sharedcfg.EnvOrDefault("FIRMS_AREA", "world"),

		DatabaseURL: os.Getenv("DATABASE_URL"),

		KafkaEnabled:       os.Getenv("KAFKA_ENABLED") == "true",
		KafkaBrokers:       sharedcfg.ParseBrokers(sharedcfg.EnvOrDefault("KAFKA_BROKERS", "localhost:9092")),
		KafkaSinkTopic:     sharedcfg.EnvOrDefault("KAFKA_SINK_TOPIC", "wildfire-detections"),
		BatchSize:          batchSize,
		BatchFlushInterval: flushInterval,

		MapboxToken:     os.Getenv("MAPBOX_TOKEN"),
		MapboxCacheSize: parseMapboxCacheSize(),
	}

	if cfg.FetchLimit, err = positiveInt("FETCH_LIMIT", 5000); err != nil {
		return nil, err
	}
	if cfg.RetryInitial, err = positiveDuration("REFRESH_RETRY_INITIAL", "1s"); err != nil {
		return nil, err
	}
	if cfg.RetryMax, err = positiveDuration("REFRESH_RETRY_MAX", "30s"); err != nil {
		return nil, err
	}
	attempts, err := positiveInt("REFRESH_RETRY_ATTEMPTS", 5)
	if err != nil {
		return nil, err
	}
	cfg.RetryMaxAttempts = uint64(attempts)
	if cfg.PanelRevealDelay, err = positiveDuration("PANEL_REVEAL_DELAY", "200ms"); err != nil {
		return nil, err
	}

	if cfg.FIRMSDays, err = positiveInt("FIRMS_DAYS", 3); err != nil {
		return nil, err
	}
	if cfg.FIRMSDays > 10 {
		return nil, errors.New("invalid FIRMS_DAYS: must be between 1 and 10")
	}
	if cfg.FIRMSTimeout, err = positiveDuration("FIRMS_TIMEOUT", "30s"); err != nil {
		return nil, err
	}
	failures, err := positiveInt("FIRMS_BREAKER_FAILURES", 3)
	if err != nil {
		return nil, err
	}
	cfg.FIRMSBreakerFailures = uint32(failures)
	if cfg.FIRMSBreakerCooldown, err = positiveDuration("FIRMS_BREAKER_COOLDOWN", "1m"); err != nil {
		return nil, err
	}

	if cfg.DaysBack, err = positiveInt("DAYS_BACK", 30); err != nil {
		return nil, err
	}

	if cfg.MapboxTimeout, err = positiveDuration("MAPBOX_TIMEOUT", "5s"); err != nil {
		return nil, err
	}
	cfg.MapboxEnabled = cfg.MapboxToken != ""
	if v := os.Getenv("MAPBOX_ENABLED"); v != "" {
		cfg.MapboxEnabled = v == "true"
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	switch c.DataSource {
	case SourceFIRMS:
		if c.FIRMSMapKey == "" {
			return errors.New("FIRMS_MAP_KEY is required when DATA_SOURCE is firms")
		}
	case SourcePostgres:
		if c.DatabaseURL == "" {
			return errors.New("DATABASE_URL is required when DATA_SOURCE is postgres")
		}
	default:
		return fmt.Errorf("invalid DATA_SOURCE %q: must be %s or %s", c.DataSource, SourceFIRMS, SourcePostgres)
	}
	if c.RefreshSchedule == "" {
		return errors.New("REFRESH_SCHEDULE is required")
	}
	if c.KafkaEnabled {
		if len(c.KafkaBrokers) == 0 {
			return errors.New("KAFKA_BROKERS is required")
		}
		if c.KafkaSinkTopic == "" {
			return errors.New("KAFKA_SINK_TOPIC is required")
		}
	}
	if c.MapboxEnabled && c.MapboxToken == "" {
		return errors.New("MAPBOX_ENABLED is true but MAPBOX_TOKEN is not set")
	}
	return nil
}

func positiveInt(key string, def int) (int, error) {
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

func positiveDuration(key, def string) (time.Duration, error) {
	d, err := time.ParseDuration(sharedcfg.EnvOrDefault(key, def))
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("invalid %s", key)
	}
	return d, nil
}

func parseMapboxCacheSize() int {
	if s := os.Getenv("MAPBOX_CACHE_SIZE"); s != "" {
		if n, err := strconv.Atoi(s); err == nil && n > 0 {
			return n
		}
	}
	return 1000
}
