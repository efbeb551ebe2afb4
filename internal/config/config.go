package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config carries the immutable runtime configuration loaded at startup.
type Config struct {
	Environment string
	HTTPAddr    string

	Database Database
	Tracing  Tracing

	// ConfigCacheTTL bounds how long a rate/tier snapshot may be served
	// from memory before it is re-read from the settings tables.
	ConfigCacheTTL time.Duration

	RateLimit RateLimit

	Migration Migration
	Outbox    Outbox
}

// Database selects the gorm driver and DSN.
type Database struct {
	Driver string // "postgres" or "sqlite"
	DSN    string
}

// Tracing configures the OTLP exporter.
type Tracing struct {
	Enabled          bool
	ServiceName      string
	ServiceVersion   string
	ExporterEndpoint string
	ExporterProtocol string
	SamplingRatio    float64
}

// RateLimit bounds mutating requests per API key.
type RateLimit struct {
	Limit  int
	Window time.Duration
}

// Migration configures the ratio migration batch job.
type Migration struct {
	BatchSize int
}

// Outbox configures the loyalty event dispatcher.
type Outbox struct {
	Interval  time.Duration
	BatchSize int
}

// Load reads configuration from the environment. A local .env file is
// honored when present and never required.
func Load() (Config, error) {
	_ = godotenv.Load()

	cfg := Config{
		Environment: getEnv("REWARDLY_ENV", "development"),
		HTTPAddr:    getEnv("HTTP_ADDR", ":8080"),
		Database: Database{
			Driver: getEnv("DB_DRIVER", "postgres"),
			DSN:    getEnv("DB_DSN", "host=localhost user=rewardly dbname=rewardly sslmode=disable"),
		},
		Tracing: Tracing{
			Enabled:          getEnvBool("TRACING_ENABLED", false),
			ServiceName:      getEnv("TRACING_SERVICE_NAME", "rewardly"),
			ServiceVersion:   getEnv("TRACING_SERVICE_VERSION", "dev"),
			ExporterEndpoint: getEnv("TRACING_EXPORTER_ENDPOINT", "localhost:4318"),
			ExporterProtocol: getEnv("TRACING_EXPORTER_PROTOCOL", "http"),
			SamplingRatio:    getEnvFloat("TRACING_SAMPLING_RATIO", 1.0),
		},
		ConfigCacheTTL: getEnvDuration("CONFIG_CACHE_TTL", 30*time.Second),
		RateLimit: RateLimit{
			Limit:  getEnvInt("RATE_LIMIT", 60),
			Window: getEnvDuration("RATE_LIMIT_WINDOW", time.Minute),
		},
		Migration: Migration{
			BatchSize: getEnvInt("MIGRATION_BATCH_SIZE", 500),
		},
		Outbox: Outbox{
			Interval:  getEnvDuration("OUTBOX_INTERVAL", 10*time.Second),
			BatchSize: getEnvInt("OUTBOX_BATCH_SIZE", 100),
		},
	}
	return cfg, nil
}

// IsProduction reports whether the service runs in production mode.
func (c Config) IsProduction() bool {
	return strings.EqualFold(c.Environment, "production")
}

func getEnv(key, fallback string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvBool(key string, fallback bool) bool {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvFloat(key string, fallback float64) float64 {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		return fallback
	}
	return parsed
}
