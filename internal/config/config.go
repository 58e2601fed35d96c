// Package config provides YAML-based configuration for the replay server and CLI.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/flight-replay/backend/internal/models"
	"github.com/flight-replay/backend/internal/replay"
)

// AppConfig is the root configuration document.
type AppConfig struct {
	Server     ServerConfig     `yaml:"server"`
	Storage    StorageConfig    `yaml:"storage"`
	Processing ProcessingConfig `yaml:"processing"`
	Logging    LoggingConfig    `yaml:"logging"`
}

// ServerConfig contains HTTP server settings
type ServerConfig struct {
	Port         int    `yaml:"port"`
	BindAddress  string `yaml:"bind_address"`
	EnableCORS   bool   `yaml:"enable_cors"`
	AllowOrigins string `yaml:"allow_origins"`
	ReadTimeout  int    `yaml:"read_timeout_seconds"`
	WriteTimeout int    `yaml:"write_timeout_seconds"`
	IdleTimeout  int    `yaml:"idle_timeout_seconds"`
	BodyLimit    string `yaml:"body_limit"`
}

// StorageConfig contains file storage settings
type StorageConfig struct {
	DataDirectory     string `yaml:"data_directory"`
	UploadsDirectory  string `yaml:"uploads_directory"`
	TempDirectory     string `yaml:"temp_directory"`
	OutputDirectory   string `yaml:"output_directory"`
	AllowFileDeletion bool   `yaml:"allow_file_deletion"`
	AllowedFileTypes  string `yaml:"allowed_file_types"`
}

// ProcessingConfig holds pipeline defaults and session limits.
type ProcessingConfig struct {
	RateHz                 float64 `yaml:"rate_hz"`
	MaxRateHz              float64 `yaml:"max_rate_hz"`
	AltitudeUnit           string  `yaml:"altitude_unit"`
	CleanPath              string  `yaml:"clean_path"`
	FDRPath                string  `yaml:"fdr_path"`
	MaxSessions            int     `yaml:"max_sessions"`
	SessionTimeoutMinutes  int     `yaml:"session_timeout_minutes"`
	CleanupIntervalMinutes int     `yaml:"cleanup_interval_minutes"`
	DuckDBThreads          int     `yaml:"duckdb_threads"`
	DuckDBMemoryLimit      string  `yaml:"duckdb_memory_limit"`
}

// LoggingConfig mirrors logging.Config.
type LoggingConfig struct {
	Level          string `yaml:"level"`
	Format         string `yaml:"format"`
	AddSource      bool   `yaml:"add_source"`
	RequestLogging bool   `yaml:"request_logging"`
}

// DefaultConfig returns the default configuration
func DefaultConfig() *AppConfig {
	return &AppConfig{
		Server: ServerConfig{
			Port:         8089,
			BindAddress:  "0.0.0.0",
			EnableCORS:   true,
			AllowOrigins: "*",
			ReadTimeout:  30,
			WriteTimeout: 120,
			IdleTimeout:  120,
			BodyLimit:    "1G",
		},
		Storage: StorageConfig{
			DataDirectory:     "./data",
			UploadsDirectory:  "./data/uploads",
			TempDirectory:     "./data/temp",
			OutputDirectory:   "./data/out",
			AllowFileDeletion: true,
			AllowedFileTypes:  ".csv,.tsv,.tab,.txt,.gz,.zst",
		},
		Processing: ProcessingConfig{
			RateHz:                 replay.DefaultRateHz,
			MaxRateHz:              replay.MaxRateHz,
			AltitudeUnit:           string(replay.AltitudeMeters),
			CleanPath:              "./data/clean/cleaned.csv",
			FDRPath:                "./data/out.fdr",
			MaxSessions:            10,
			SessionTimeoutMinutes:  30,
			CleanupIntervalMinutes: 5,
			DuckDBThreads:          2,
			DuckDBMemoryLimit:      "512MB",
		},
		Logging: LoggingConfig{
			Level:          "info",
			Format:         "text",
			RequestLogging: true,
		},
	}
}

// LoadConfig loads configuration from a YAML file, writing the defaults there
// first when the file does not exist. Environment overrides are applied and
// relative paths are resolved against the file's directory.
func LoadConfig(configPath string) (*AppConfig, error) {
	config := DefaultConfig()

	data, err := os.ReadFile(configPath)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		if err := config.Save(configPath); err != nil {
			return nil, fmt.Errorf("failed to create default config: %w", err)
		}
	case err != nil:
		return nil, fmt.Errorf("failed to read config file: %w", err)
	default:
		if err := yaml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	config.applyEnvironmentOverrides()
	config.resolvePaths(filepath.Dir(configPath))

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

// Save writes the configuration as YAML.
func (c *AppConfig) Save(configPath string) error {
	output, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	header := []byte("# Flight Data Replay configuration\n# This file is auto-generated on first run\n\n")
	if dir := filepath.Dir(configPath); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create config directory: %w", err)
		}
	}
	if err := os.WriteFile(configPath, append(header, output...), 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// Validate rejects settings the pipeline cannot run with.
func (c *AppConfig) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return &models.ConfigurationError{Field: "server.port", Value: strconv.Itoa(c.Server.Port), Reason: "must be between 1 and 65535"}
	}
	if err := replay.ValidateRate(c.Processing.MaxRateHz); err != nil {
		return fmt.Errorf("processing.max_rate_hz: %w", err)
	}
	if err := replay.ValidateRate(c.Processing.RateHz); err != nil {
		return err
	}
	if c.Processing.RateHz > c.Processing.MaxRateHz {
		return &models.ConfigurationError{Field: "processing.rate_hz", Value: strconv.FormatFloat(c.Processing.RateHz, 'g', -1, 64), Reason: "exceeds processing.max_rate_hz"}
	}
	if _, err := replay.ParseAltitudeUnit(c.Processing.AltitudeUnit); err != nil {
		return err
	}
	if c.Processing.MaxSessions <= 0 {
		return &models.ConfigurationError{Field: "processing.max_sessions", Value: strconv.Itoa(c.Processing.MaxSessions), Reason: "must be positive"}
	}
	return nil
}

// applyEnvironmentOverrides allows environment variables to override config values
func (c *AppConfig) applyEnvironmentOverrides() {
	if port := os.Getenv("PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			c.Server.Port = p
		}
	}

	// DATA_DIR moves every storage directory that still sits under the default root
	if dataDir := os.Getenv("DATA_DIR"); dataDir != "" {
		old := c.Storage.DataDirectory
		c.Storage.DataDirectory = dataDir
		for _, p := range []*string{&c.Storage.UploadsDirectory, &c.Storage.TempDirectory, &c.Storage.OutputDirectory} {
			if rel, err := filepath.Rel(old, *p); err == nil && !strings.HasPrefix(rel, "..") {
				*p = filepath.Join(dataDir, rel)
			}
		}
	}

	if tempDir := os.Getenv("DUCKDB_TEMP_DIR"); tempDir != "" {
		c.Storage.TempDirectory = tempDir
	}

	if level := os.Getenv("LOG_LEVEL"); level != "" {
		c.Logging.Level = level
	}

	if rate := os.Getenv("REPLAY_RATE_HZ"); rate != "" {
		if r, err := strconv.ParseFloat(rate, 64); err == nil {
			c.Processing.RateHz = r
		}
	}
}

// resolvePaths converts relative paths to absolute based on config file location
func (c *AppConfig) resolvePaths(configDir string) {
	for _, p := range []*string{
		&c.Storage.DataDirectory,
		&c.Storage.UploadsDirectory,
		&c.Storage.TempDirectory,
		&c.Storage.OutputDirectory,
		&c.Processing.CleanPath,
		&c.Processing.FDRPath,
	} {
		if *p != "" && !filepath.IsAbs(*p) {
			*p = filepath.Join(configDir, *p)
		}
	}
}

// GetServerAddr returns the server bind address
func (c *AppConfig) GetServerAddr() string {
	return fmt.Sprintf("%s:%d", c.Server.BindAddress, c.Server.Port)
}

// EnsureDirectories creates all necessary directories
func (c *AppConfig) EnsureDirectories() error {
	dirs := []string{
		c.Storage.DataDirectory,
		c.Storage.UploadsDirectory,
		c.Storage.TempDirectory,
		c.Storage.OutputDirectory,
	}

	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}

	return nil
}

// AllowedExtensions splits Storage.AllowedFileTypes into lower-cased extensions.
func (c *AppConfig) AllowedExtensions() []string {
	var out []string
	for _, ext := range strings.Split(c.Storage.AllowedFileTypes, ",") {
		ext = strings.ToLower(strings.TrimSpace(ext))
		if ext != "" {
			out = append(out, ext)
		}
	}
	return out
}
