package config_test

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"solarcore/config"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoad_ExpandsEnvAndKeepsValues(t *testing.T) {
	t.Setenv("SOLARCORE_TEST_KEY", "sk-test")
	path := writeConfig(t, `
openai:
  api_key: ${SOLARCORE_TEST_KEY}
sync:
  backend: tuya
  max_runs: 3
security:
  auto_shutdown: true
  countdown: 2m
  exceptions: [fridge, lock]
`)

	cfg, err := config.Load(path)
	require.NoError(t, err)

	assert.Equal(t, "sk-test", cfg.OpenAI.APIKey)
	assert.Equal(t, "tuya", cfg.Sync.Backend)
	assert.Equal(t, 3, cfg.Sync.MaxRuns)
	assert.True(t, cfg.Security.AutoShutdown)
	assert.Equal(t, "2m", cfg.Security.Countdown)
	assert.Equal(t, []string{"fridge", "lock"}, cfg.Security.Exceptions)
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := config.Load(writeConfig(t, "{}\n"))
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.HTTP.Addr)
	assert.Equal(t, "solarcore.db", cfg.Database.DSN)
	assert.Equal(t, "sql", cfg.Sync.Backend)
	assert.Equal(t, "5s", cfg.Sync.Cooldown)
	assert.Equal(t, 10, cfg.Sync.MaxRuns)
	assert.Equal(t, "none", cfg.Audio.Source)
	assert.Equal(t, "espeak-ng", cfg.Speech.FallbackCommand)
	assert.Equal(t, 2, cfg.Speech.FallbackRetries)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "text", cfg.Log.Format)
	assert.Equal(t, config.Default(), cfg)
}

func TestLoad_Errors(t *testing.T) {
	_, err := config.Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	_, err = config.Load(writeConfig(t, "http: [not, a, map]\n"))
	assert.Error(t, err)
}

func TestDuration(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	assert.Equal(t, 90*time.Second, config.Duration(logger, "x", "90s", time.Minute))
	assert.Equal(t, time.Minute, config.Duration(logger, "x", "soon", time.Minute))
}
