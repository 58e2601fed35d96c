package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flight-replay/backend/internal/models"
)

func TestLoadConfigWritesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	_, err = os.Stat(path)
	require.NoError(t, err, "default config should be written")
	assert.Equal(t, 8089, cfg.Server.Port)
	assert.Equal(t, 30.0, cfg.Processing.RateHz)
	assert.Equal(t, filepath.Join(dir, "data", "uploads"), cfg.Storage.UploadsDirectory)
	assert.Equal(t, "0.0.0.0:8089", cfg.GetServerAddr())
}

func TestLoadConfigParsesYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
server:
  port: 9100
  bind_address: 127.0.0.1
processing:
  rate_hz: 10
  altitude_unit: ft
logging:
  level: debug
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1:9100", cfg.GetServerAddr())
	assert.Equal(t, 10.0, cfg.Processing.RateHz)
	assert.Equal(t, "ft", cfg.Processing.AltitudeUnit)
	assert.Equal(t, "debug", cfg.Logging.Level)
	// unspecified sections keep defaults
	assert.Equal(t, 10, cfg.Processing.MaxSessions)
}

func TestEnvironmentOverrides(t *testing.T) {
	dir := t.TempDir()
	dataDir := filepath.Join(dir, "elsewhere")
	t.Setenv("PORT", "7000")
	t.Setenv("DATA_DIR", dataDir)
	t.Setenv("LOG_LEVEL", "warn")
	t.Setenv("REPLAY_RATE_HZ", "60")

	cfg, err := LoadConfig(filepath.Join(dir, "config.yaml"))
	require.NoError(t, err)

	assert.Equal(t, 7000, cfg.Server.Port)
	assert.Equal(t, dataDir, cfg.Storage.DataDirectory)
	assert.Equal(t, filepath.Join(dataDir, "uploads"), cfg.Storage.UploadsDirectory)
	assert.Equal(t, "warn", cfg.Logging.Level)
	assert.Equal(t, 60.0, cfg.Processing.RateHz)
}

func TestValidateRejectsBadValues(t *testing.T) {
	cases := map[string]func(c *AppConfig){
		"port":      func(c *AppConfig) { c.Server.Port = 0 },
		"rate":      func(c *AppConfig) { c.Processing.RateHz = -1 },
		"unit":      func(c *AppConfig) { c.Processing.AltitudeUnit = "km" },
		"sessions":  func(c *AppConfig) { c.Processing.MaxSessions = 0 },
		"max rate":  func(c *AppConfig) { c.Processing.MaxRateHz = 1e7 },
		"above max": func(c *AppConfig) { c.Processing.MaxRateHz = 50; c.Processing.RateHz = 60 },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := DefaultConfig()
			mutate(cfg)
			var cfgErr *models.ConfigurationError
			assert.True(t, errors.As(cfg.Validate(), &cfgErr))
		})
	}
}

func TestEnsureDirectories(t *testing.T) {
	dir := t.TempDir()
	cfg := DefaultConfig()
	cfg.resolvePaths(dir)

	require.NoError(t, cfg.EnsureDirectories())
	for _, d := range []string{cfg.Storage.UploadsDirectory, cfg.Storage.TempDirectory, cfg.Storage.OutputDirectory} {
		info, err := os.Stat(d)
		require.NoError(t, err)
		assert.True(t, info.IsDir())
	}
}

func TestAllowedExtensions(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Storage.AllowedFileTypes = " .CSV, .gz ,,"
	assert.Equal(t, []string{".csv", ".gz"}, cfg.AllowedExtensions())
}
