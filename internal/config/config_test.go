package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"GEMINI_API_KEY", "GEMINI_MODEL", "GEMINI_REQUESTS_PER_MINUTE",
		"SERVER_HOST", "SERVER_PORT", "LOG_LEVEL", "LOG_FORMAT",
		"CONVERSION_WORKERS", "CONVERSION_QUEUE_SIZE", "CONVERSION_MAX_RETRIES",
		"USAGE_MONTHLY_LIMIT", "GCP_PROJECT_ID", "BIGQUERY_DATASET",
		"GCS_BUCKET", "GCS_EXPORT_PREFIX", "NOTION_TOKEN", "NOTION_DATABASE_ID",
		"METRICS_ENABLED", "SESSION_TTL",
	} {
		t.Setenv(key, "")
	}
	t.Chdir(t.TempDir())
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "gemini-2.5-flash", cfg.Gemini.Model)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, ":8080", cfg.Server.Addr())
	assert.Equal(t, 1, cfg.Conversion.Workers)
	assert.Equal(t, 0, cfg.Conversion.MaxRetries)
	assert.Equal(t, time.Hour, cfg.Conversion.SessionTTL)
	assert.Equal(t, -1, cfg.Usage.MonthlyLimit)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.True(t, cfg.Metrics.Enabled)
	assert.False(t, cfg.BigQuery.UsesBigQuery())
	assert.ErrorIs(t, cfg.RequireGemini(), ErrMissingGeminiKey)
}

func TestLoadFromEnvironment(t *testing.T) {
	clearEnv(t)
	t.Setenv("GEMINI_API_KEY", "secret")
	t.Setenv("SERVER_PORT", "9000")
	t.Setenv("CONVERSION_WORKERS", "3")
	t.Setenv("USAGE_MONTHLY_LIMIT", "5")
	t.Setenv("GCP_PROJECT_ID", "proj")
	t.Setenv("METRICS_ENABLED", "false")
	t.Setenv("SESSION_TTL", "15m")

	cfg, err := Load()
	require.NoError(t, err)

	assert.NoError(t, cfg.RequireGemini())
	assert.Equal(t, 9000, cfg.Server.Port)
	assert.Equal(t, 3, cfg.Conversion.Workers)
	assert.Equal(t, 5, cfg.Usage.MonthlyLimit)
	assert.True(t, cfg.BigQuery.UsesBigQuery())
	assert.False(t, cfg.Metrics.Enabled)
	assert.Equal(t, 15*time.Minute, cfg.Conversion.SessionTTL)
}

func TestLoadInvalidIntFallsBack(t *testing.T) {
	clearEnv(t)
	t.Setenv("SERVER_PORT", "not-a-number")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 8080, cfg.Server.Port)
}

func TestLoadRejectsZeroWorkers(t *testing.T) {
	clearEnv(t)
	t.Setenv("CONVERSION_WORKERS", "0")

	_, err := Load()
	assert.Error(t, err)
}

func TestLoadReadsDotEnv(t *testing.T) {
	clearEnv(t)
	os.Unsetenv("GEMINI_MODEL")
	dir, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("GEMINI_MODEL=gemini-test\n"), 0o600))

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "gemini-test", cfg.Gemini.Model)
}

func TestLoadRejectsNegativeSessionTTL(t *testing.T) {
	clearEnv(t)
	t.Setenv("SESSION_TTL", "-5m")

	_, err := Load()
	assert.Error(t, err)
}
