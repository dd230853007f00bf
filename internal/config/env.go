package config

import (
	"log/slog"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
)

// Environment variables that override path settings.
const (
	EnvRoot        = "STATEKEEP_ROOT"
	EnvLockDir     = "STATEKEEP_LOCK_DIR"
	EnvHistoryFile = "STATEKEEP_HISTORY_FILE"
)

// loadEnvFile loads .env then .env.local from the working directory, stopping at
// the first file that parses. Existing process variables are never overwritten.
func loadEnvFile() {
	for _, envPath := range []string{".env", ".env.local"} {
		if _, err := os.Stat(envPath); err != nil {
			continue
		}
		if err := godotenv.Load(envPath); err != nil {
			slog.Debug("Skipping unreadable env file", slog.String("path", envPath), slog.String("error", err.Error()))
			continue
		}
		slog.Debug("Loaded environment variables", slog.String("path", envPath))
		return
	}
}

// applyEnvOverrides substitutes paths from the environment.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv(EnvRoot); v != "" {
		cfg.Root = v
	}
	if v := os.Getenv(EnvLockDir); v != "" {
		cfg.Lock.Dir = v
	}
	if v := os.Getenv(EnvHistoryFile); v != "" {
		cfg.History.File = v
	}
}

// DefaultRoot returns $STATEKEEP_ROOT or ~/.statekeep.
func DefaultRoot() string {
	if v := os.Getenv(EnvRoot); v != "" {
		return v
	}
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		return ".statekeep"
	}
	return filepath.Join(home, ".statekeep")
}

// DefaultConfigPath returns <root>/config.yaml.
func DefaultConfigPath() string {
	return filepath.Join(DefaultRoot(), "config.yaml")
}
