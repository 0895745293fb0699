package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, dir, name, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
}

func TestInitializeDefaultsOnly(t *testing.T) {
	cfg, err := Initialize(context.Background(), t.TempDir())
	require.NoError(t, err)

	assert.Equal(t, "0.0.0.0:8080", cfg.Server.Addr())
	assert.Equal(t, "simulated", cfg.LLM.Provider)
	assert.Equal(t, 0.15, cfg.Trend.DegradingThreshold)
	assert.Equal(t, 10, cfg.Swarm.MaxRetryRounds)
	assert.Equal(t, 50, cfg.Swarm.MaxTotalAttempts)
	assert.True(t, cfg.Swarm.UseLLMFallback)
	assert.Equal(t, 300, cfg.Dedup.TTLSeconds)
	assert.False(t, cfg.Database.Enabled)
}

func TestInitializeOverlaysYAML(t *testing.T) {
	dir := t.TempDir()
	writeConfig(t, dir, ConfigFileName, `
server:
  port: 9090
swarm:
  use_llm_fallback: false
  max_retry_rounds: 3
trend:
  degrading_threshold: 0.25
`)

	cfg, err := Initialize(context.Background(), dir)
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.False(t, cfg.Swarm.UseLLMFallback)
	assert.Equal(t, 3, cfg.Swarm.MaxRetryRounds)
	assert.Equal(t, 0.25, cfg.Trend.DegradingThreshold)
	// Untouched sections keep their defaults.
	assert.Equal(t, 0.60, cfg.Decision.AcceptThreshold)
	assert.Equal(t, 50, cfg.Swarm.MaxTotalAttempts)
}

func TestInitializeLocalOverridesPrimary(t *testing.T) {
	dir := t.TempDir()
	writeConfig(t, dir, ConfigFileName, "server:\n  port: 9090\n")
	writeConfig(t, dir, LocalConfigFileName, "server:\n  port: 9999\n")

	cfg, err := Initialize(context.Background(), dir)
	require.NoError(t, err)
	assert.Equal(t, 9999, cfg.Server.Port)
}

func TestInitializeExpandsEnv(t *testing.T) {
	t.Setenv("TEST_REDIS_ADDR", "redis.internal:6379")
	dir := t.TempDir()
	writeConfig(t, dir, ConfigFileName, `
redis:
  enabled: true
  addr: "{{.TEST_REDIS_ADDR}}"
`)

	cfg, err := Initialize(context.Background(), dir)
	require.NoError(t, err)
	assert.Equal(t, "redis.internal:6379", cfg.Redis.Addr)
}

func TestInitializeLoadsDotenv(t *testing.T) {
	dir := t.TempDir()
	writeConfig(t, dir, ".env", "TEST_DOTENV_KEY=from-dotenv\n")
	t.Cleanup(func() { os.Unsetenv("TEST_DOTENV_KEY") })

	_, err := Initialize(context.Background(), dir)
	require.NoError(t, err)
	assert.Equal(t, "from-dotenv", os.Getenv("TEST_DOTENV_KEY"))
}

func TestInitializeInvalidYAML(t *testing.T) {
	dir := t.TempDir()
	writeConfig(t, dir, ConfigFileName, "server: [not a mapping")

	_, err := Initialize(context.Background(), dir)
	require.Error(t, err)
	var loadErr *LoadError
	assert.ErrorAs(t, err, &loadErr)
}

func TestInitializeValidationFailure(t *testing.T) {
	dir := t.TempDir()
	writeConfig(t, dir, ConfigFileName, "server:\n  port: -1\n")

	_, err := Initialize(context.Background(), dir)
	assert.ErrorIs(t, err, ErrValidationFailed)
}
