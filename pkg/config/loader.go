package config

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// ConfigFileName is the primary configuration file looked up in configDir.
const ConfigFileName = "strands.yaml"

// LocalConfigFileName overlays ConfigFileName for per-developer overrides.
const LocalConfigFileName = "strands.local.yaml"

// Initialize loads, validates, and returns ready-to-use configuration.
//
// Steps performed:
//  1. Load .env from configDir if present
//  2. Start from built-in defaults
//  3. Overlay strands.yaml, then strands.local.yaml (env-expanded)
//  4. Validate the resulting configuration
func Initialize(_ context.Context, configDir string) (*Config, error) {
	log := slog.With("config_dir", configDir)
	log.Info("Initializing configuration")

	if err := godotenv.Load(filepath.Join(configDir, ".env")); err != nil && !os.IsNotExist(err) {
		return nil, NewLoadError(".env", err)
	}

	cfg := DefaultConfig()
	for _, name := range []string{ConfigFileName, LocalConfigFileName} {
		if err := overlay(cfg, filepath.Join(configDir, name)); err != nil {
			return nil, NewLoadError(name, err)
		}
	}

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	log.Info("Configuration initialized successfully",
		"server_addr", cfg.Server.Addr(),
		"llm_provider", cfg.LLM.Provider,
		"database_enabled", cfg.Database.Enabled,
		"redis_enabled", cfg.Redis.Enabled)
	return cfg, nil
}

// overlay unmarshals path onto cfg so only keys present in the file replace
// the current values. A missing file is not an error.
func overlay(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return err
	}
	if err := yaml.Unmarshal(ExpandEnv(data), cfg); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidYAML, err)
	}
	return nil
}
