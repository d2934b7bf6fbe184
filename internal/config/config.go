package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all application configuration
type Config struct {
	Gemini     GeminiConfig
	Server     ServerConfig
	Log        LogConfig
	Conversion ConversionConfig
	Usage      UsageConfig
	BigQuery   BigQueryConfig
	GCS        GCSConfig
	Notion     NotionConfig
	Metrics    MetricsConfig
}

type GeminiConfig struct {
	APIKey            string
	Model             string
	RequestsPerMinute int
}

type ServerConfig struct {
	Host string
	Port int
}

type LogConfig struct {
	Level  string
	Format string
}

// ConversionConfig controls the conversion job queue and how long idle
// sessions stay in memory.
type ConversionConfig struct {
	Workers    int
	QueueSize  int
	MaxRetries int
	SessionTTL time.Duration
}

// UsageConfig caps successful conversions per user per calendar month.
// A negative limit disables the cap.
type UsageConfig struct {
	MonthlyLimit int
}

type BigQueryConfig struct {
	ProjectID string
	Dataset   string
}

type GCSConfig struct {
	Bucket       string
	ExportPrefix string
}

type NotionConfig struct {
	Token      string
	DatabaseID string
}

type MetricsConfig struct {
	Enabled bool
}

// ErrMissingGeminiKey is returned when a model-backed command runs without an API key.
var ErrMissingGeminiKey = errors.New("GEMINI_API_KEY is required")

// Load reads configuration from environment variables. Values in a .env file
// in the working directory are applied first when the file exists; variables
// already set in the environment win.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("Load: reading .env: %w", err)
	}

	cfg := &Config{
		Gemini: GeminiConfig{
			APIKey:            getEnv("GEMINI_API_KEY", ""),
			Model:             getEnv("GEMINI_MODEL", "gemini-2.5-flash"),
			RequestsPerMinute: getEnvAsInt("GEMINI_REQUESTS_PER_MINUTE", 0),
		},
		Server: ServerConfig{
			Host: getEnv("SERVER_HOST", ""),
			Port: getEnvAsInt("SERVER_PORT", 8080),
		},
		Log: LogConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "console"),
		},
		Conversion: ConversionConfig{
			Workers:    getEnvAsInt("CONVERSION_WORKERS", 1),
			QueueSize:  getEnvAsInt("CONVERSION_QUEUE_SIZE", 100),
			MaxRetries: getEnvAsInt("CONVERSION_MAX_RETRIES", 0),
			SessionTTL: getEnvAsDuration("SESSION_TTL", time.Hour),
		},
		Usage: UsageConfig{
			MonthlyLimit: getEnvAsInt("USAGE_MONTHLY_LIMIT", -1),
		},
		BigQuery: BigQueryConfig{
			ProjectID: getEnv("GCP_PROJECT_ID", ""),
			Dataset:   getEnv("BIGQUERY_DATASET", "statement_converter"),
		},
		GCS: GCSConfig{
			Bucket:       getEnv("GCS_BUCKET", ""),
			ExportPrefix: getEnv("GCS_EXPORT_PREFIX", "exports/"),
		},
		Notion: NotionConfig{
			Token:      getEnv("NOTION_TOKEN", ""),
			DatabaseID: getEnv("NOTION_DATABASE_ID", ""),
		},
		Metrics: MetricsConfig{
			Enabled: getEnvAsBool("METRICS_ENABLED", true),
		},
	}

	if cfg.Conversion.Workers < 1 {
		return nil, fmt.Errorf("Load: CONVERSION_WORKERS must be at least 1, got %d", cfg.Conversion.Workers)
	}
	if cfg.Conversion.QueueSize < 1 {
		return nil, fmt.Errorf("Load: CONVERSION_QUEUE_SIZE must be at least 1, got %d", cfg.Conversion.QueueSize)
	}

	if cfg.Conversion.SessionTTL <= 0 {
		return nil, fmt.Errorf("Load: SESSION_TTL must be positive, got %s", cfg.Conversion.SessionTTL)
	}

	return cfg, nil
}

// RequireGemini fails when no model API key is configured.
func (c *Config) RequireGemini() error {
	if c.Gemini.APIKey == "" {
		return ErrMissingGeminiKey
	}
	return nil
}

// Addr returns the listen address for the HTTP server.
func (c *ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// UsesBigQuery reports whether conversion history goes to BigQuery.
func (c *BigQueryConfig) UsesBigQuery() bool {
	return c.ProjectID != ""
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if value, err := strconv.ParseBool(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := os.Getenv(key)
	if value, err := time.ParseDuration(valueStr); err == nil {
		return value
	}
	return defaultValue
}
