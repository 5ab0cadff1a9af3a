// Package config reads service settings from environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all service settings, populated from environment variables.
type Config struct {
	HTTPAddr        string
	LogLevel        string
	LogFormat       string
	ShutdownTimeout time.Duration

	// Fusion inputs and artifact persistence.
	Region           string
	ObservationsDir  string
	ArtifactPath     string
	ReferenceVar     string
	StationRadiusDeg float64
	RefreshInterval  time.Duration

	// Query surface tuning.
	AlertThreshold    float64
	TileRenderTimeout time.Duration
	TileCacheSize     int

	// Kafka alert publishing (disabled when no brokers are set).
	KafkaBrokers    []string
	KafkaAlertTopic string
}

// KafkaEnabled reports whether alert publishing is configured.
func (c *Config) KafkaEnabled() bool { return len(c.KafkaBrokers) > 0 }

// Load reads configuration from environment variables, applying defaults
// where unset.
func Load() (*Config, error) {
	shutdownTimeout, err := parseDuration("SHUTDOWN_TIMEOUT", 10*time.Second)
	if err != nil {
		return nil, err
	}
	refreshInterval, err := parseDuration("REFRESH_INTERVAL", time.Hour)
	if err != nil {
		return nil, err
	}
	tileTimeout, err := parseDuration("TILE_RENDER_TIMEOUT", 2*time.Second)
	if err != nil {
		return nil, err
	}
	radius, err := parseFloat("STATION_RADIUS_DEG", 0.5)
	if err != nil {
		return nil, err
	}
	threshold, err := parseFloat("ALERT_THRESHOLD", 66.0)
	if err != nil {
		return nil, err
	}
	tileCacheSize, err := parseInt("TILE_CACHE_SIZE", 512)
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		HTTPAddr:        envOrDefault("HTTP_ADDR", ":8080"),
		LogLevel:        envOrDefault("LOG_LEVEL", "info"),
		LogFormat:       envOrDefault("LOG_FORMAT", "json"),
		ShutdownTimeout: shutdownTimeout,

		Region:           envOrDefault("REGION", "los-angeles"),
		ObservationsDir:  envOrDefault("OBSERVATIONS_DIR", "data/observations"),
		ArtifactPath:     envOrDefault("ARTIFACT_PATH", "data/airgrid.db"),
		ReferenceVar:     envOrDefault("REFERENCE_VAR", "no2"),
		StationRadiusDeg: radius,
		RefreshInterval:  refreshInterval,

		AlertThreshold:    threshold,
		TileRenderTimeout: tileTimeout,
		TileCacheSize:     tileCacheSize,

		KafkaBrokers:    parseBrokers(os.Getenv("KAFKA_BROKERS")),
		KafkaAlertTopic: envOrDefault("KAFKA_ALERT_TOPIC", "air-risk-alerts"),
	}

	if cfg.ObservationsDir == "" && cfg.ArtifactPath == "" {
		return nil, errors.New("one of OBSERVATIONS_DIR or ARTIFACT_PATH must be set")
	}
	if cfg.StationRadiusDeg <= 0 {
		return nil, errors.New("STATION_RADIUS_DEG must be positive")
	}
	if cfg.AlertThreshold < 0 || cfg.AlertThreshold > 100 {
		return nil, errors.New("ALERT_THRESHOLD must be in [0, 100]")
	}
	if cfg.KafkaEnabled() && cfg.KafkaAlertTopic == "" {
		return nil, errors.New("KAFKA_BROKERS is set but KAFKA_ALERT_TOPIC is empty")
	}

	return cfg, nil
}

func envOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func parseBrokers(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func parseDuration(key string, def time.Duration) (time.Duration, error) {
	s := os.Getenv(key)
	if s == "" {
		return def, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return d, nil
}

func parseFloat(key string, def float64) (float64, error) {
	s := os.Getenv(key)
	if s == "" {
		return def, nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return v, nil
}

func parseInt(key string, def int) (int, error) {
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
