package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/marigraph/sealevel-rules/internal/domain"
)

// Config holds all service settings, populated from environment variables.
type Config struct {
	KafkaBrokers       []string
	KafkaSourceTopic   string
	KafkaSuggestTopic  string
	KafkaGroupID       string
	HTTPAddr           string
	LogLevel           string
	LogFormat          string
	ShutdownTimeout    time.Duration
	BatchSize          int
	BatchFlushInterval time.Duration

	// Detection tuning.
	StationsFile     string
	SamplingInterval time.Duration
	DetectTimeout    time.Duration
	MaxRows          int
	LookbackDays     int
	DetectWindow     time.Duration
	RefreshInterval  time.Duration

	// Storage and cache backends.
	PostgresDSN     string
	CacheBackend    string
	CacheMaxEntries int
	RedisAddr       string
}

// Load reads configuration from environment variables, applying defaults
// where unset.
func Load() (*Config, error) {
	shutdownTimeout, err := parseDuration("SHUTDOWN_TIMEOUT", "10s")
	if err != nil {
		return nil, err
	}
	flushInterval, err := parseDuration("BATCH_FLUSH_INTERVAL", "5s")
	if err != nil {
		return nil, err
	}
	samplingInterval, err := parseDuration("SAMPLING_INTERVAL", "1h")
	if err != nil {
		return nil, err
	}
	detectTimeout, err := parseDuration("DETECT_TIMEOUT", "30s")
	if err != nil {
		return nil, err
	}
	detectWindow, err := parseDuration("DETECT_WINDOW", "168h")
	if err != nil {
		return nil, err
	}
	refreshInterval, err := parseDuration("REFRESH_INTERVAL", "15m")
	if err != nil {
		return nil, err
	}
	batchSize, err := parseInt("BATCH_SIZE", 100)
	if err != nil {
		return nil, err
	}
	maxRows, err := parseInt("MAX_ROWS", 5000)
	if err != nil {
		return nil, err
	}
	lookbackDays, err := parseInt("LOOKBACK_DAYS", domain.DefaultLookbackDays)
	if err != nil {
		return nil, err
	}
	cacheMaxEntries, err := parseInt("CACHE_MAX_ENTRIES", 64)
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		KafkaBrokers:       parseBrokers(envOrDefault("KAFKA_BROKERS", "localhost:9092")),
		KafkaSourceTopic:   envOrDefault("KAFKA_SOURCE_TOPIC", "tide-gauge-readings"),
		KafkaSuggestTopic:  envOrDefault("KAFKA_SUGGEST_TOPIC", "correction-suggestions"),
		KafkaGroupID:       envOrDefault("KAFKA_GROUP_ID", "sealevel-rules"),
		HTTPAddr:           envOrDefault("HTTP_ADDR", ":8080"),
		LogLevel:           envOrDefault("LOG_LEVEL", "info"),
		LogFormat:          envOrDefault("LOG_FORMAT", "json"),
		ShutdownTimeout:    shutdownTimeout,
		BatchSize:          batchSize,
		BatchFlushInterval: flushInterval,
		StationsFile:       os.Getenv("STATIONS_FILE"),
		SamplingInterval:   samplingInterval,
		DetectTimeout:      detectTimeout,
		MaxRows:            maxRows,
		LookbackDays:       lookbackDays,
		DetectWindow:       detectWindow,
		RefreshInterval:    refreshInterval,
		PostgresDSN:        os.Getenv("POSTGRES_DSN"),
		CacheBackend:       envOrDefault("CACHE_BACKEND", "memory"),
		CacheMaxEntries:    cacheMaxEntries,
		RedisAddr:          envOrDefault("REDIS_ADDR", "localhost:6379"),
	}

	if len(cfg.KafkaBrokers) == 0 {
		return nil, errors.New("KAFKA_BROKERS is required")
	}
	if cfg.KafkaSourceTopic == "" {
		return nil, errors.New("KAFKA_SOURCE_TOPIC is required")
	}
	if cfg.CacheBackend != "memory" && cfg.CacheBackend != "redis" {
		return nil, fmt.Errorf("invalid CACHE_BACKEND %q (memory or redis)", cfg.CacheBackend)
	}
	return cfg, nil
}

// Stations loads the station profile set: the YAML file named by
// STATIONS_FILE, or the built-in network when unset.
func (c *Config) Stations() (domain.StationSet, error) {
	if c.StationsFile == "" {
		return domain.DefaultProfiles(), nil
	}
	raw, err := os.ReadFile(c.StationsFile)
	if err != nil {
		return nil, fmt.Errorf("read stations file: %w", err)
	}
	var profiles []domain.StationProfile
	if err := yaml.Unmarshal(raw, &profiles); err != nil {
		return nil, fmt.Errorf("parse stations file: %w", err)
	}
	set := domain.NewStationSet(profiles...)
	if err := set.Validate(); err != nil {
		return nil, fmt.Errorf("stations file %s: %w", c.StationsFile, err)
	}
	return set, nil
}

func envOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func parseBrokers(raw string) []string {
	var brokers []string
	for _, b := range strings.Split(raw, ",") {
		if b = strings.TrimSpace(b); b != "" {
			brokers = append(brokers, b)
		}
	}
	return brokers
}

func parseDuration(key, def string) (time.Duration, error) {
	d, err := time.ParseDuration(envOrDefault(key, def))
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("invalid %s", key)
	}
	return d, nil
}

func parseInt(key string, def int) (int, error) {
	s := os.Getenv(key)
	if s == "" {
		return def, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("invalid %s", key)
	}
	return n, nil
}
