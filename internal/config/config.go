package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"git.home.luguber.info/inful/statekeep/internal/foundation/errors"
)

// Version is the only configuration format version understood by Load.
const Version = "1"

// Config represents the statekeep configuration file.
type Config struct {
	Version string        `yaml:"version"`
	Root    string        `yaml:"root"` // Base directory for locks, history and backups
	Lock    LockConfig    `yaml:"lock"`
	State   StateConfig   `yaml:"state"`
	Backup  BackupConfig  `yaml:"backup"`
	History HistoryConfig `yaml:"history"`
	Notify  NotifyConfig  `yaml:"notify"`
	Metrics MetricsConfig `yaml:"metrics"`
	Logging LoggingConfig `yaml:"logging"`
}

// LockConfig controls resource lock acquisition.
type LockConfig struct {
	Dir            string           `yaml:"dir,omitempty"`
	Timeout        string           `yaml:"timeout"`         // Default acquisition timeout (e.g. "10s")
	Backoff        RetryBackoffMode `yaml:"backoff"`         // fixed|linear|exponential
	InitialBackoff string           `yaml:"initial_backoff"` // First sleep after contention
	MaxBackoff     string           `yaml:"max_backoff"`     // Cap for backoff growth
}

// StateConfig controls atomic writes and read caching of state documents.
type StateConfig struct {
	CacheTTL  string   `yaml:"cache_ttl"`
	Documents []string `yaml:"documents,omitempty"` // Files watched by the daemon for cache invalidation
}

// BackupConfig controls the incremental backup engine and per-file snapshots.
type BackupConfig struct {
	Root         string         `yaml:"root,omitempty"`
	Interval     string         `yaml:"interval"` // Daemon schedule; empty disables scheduled backups
	Workers      int            `yaml:"workers"`
	Exclude      []string       `yaml:"exclude,omitempty"` // Appended to the built-in exclusions
	Sources      []SourceConfig `yaml:"sources"`
	SnapshotDir  string         `yaml:"snapshot_dir,omitempty"` // Empty keeps snapshots next to the live file
	SnapshotKeep int            `yaml:"snapshot_keep"`
}

// SourceConfig names one backup origin.
type SourceConfig struct {
	Name   string `yaml:"name"`
	Path   string `yaml:"path"`
	Subdir string `yaml:"subdir,omitempty"` // Destination below the backup root, defaults to name
}

// HistoryConfig controls the audit history log.
type HistoryConfig struct {
	File       string `yaml:"file,omitempty"`
	MaxEntries int    `yaml:"max_entries"`
}

// NotifyConfig selects the event transport.
type NotifyConfig struct {
	Driver  NotifyDriver `yaml:"driver"` // none|memory|nats
	URL     string       `yaml:"url,omitempty"`
	Subject string       `yaml:"subject,omitempty"`
}

// MetricsConfig controls the Prometheus recorder and endpoint.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Addr    string `yaml:"addr,omitempty"`
	Path    string `yaml:"path,omitempty"`
}

// LoggingConfig controls the default slog handler.
type LoggingConfig struct {
	Level LogLevel `yaml:"level"`
}

// Load loads and validates a configuration file.
func Load(configPath string) (*Config, error) {
	loadEnvFile()

	data, err := os.ReadFile(configPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.ConfigError("configuration file not found").
				WithContext("path", configPath).
				Build()
		}
		return nil, errors.WrapError(err, errors.CategoryConfig, "failed to read config file").
			WithContext("path", configPath).
			Build()
	}
	return Parse(data)
}

// Parse decodes YAML content after expanding ${VAR} references, then applies
// environment overrides, defaults and validation.
func Parse(data []byte) (*Config, error) {
	expanded := os.ExpandEnv(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, errors.WrapError(err, errors.CategoryConfig, "failed to unmarshal config").Fatal().Build()
	}
	if cfg.Version != "" && cfg.Version != Version {
		return nil, errors.ConfigError(fmt.Sprintf("unsupported configuration version: %s (expected %s)", cfg.Version, Version)).Build()
	}

	applyEnvOverrides(&cfg)
	if err := applyDefaults(&cfg); err != nil {
		return nil, err
	}
	if err := ValidateConfig(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Default returns a configuration with every default applied and no sources.
func Default() *Config {
	cfg := &Config{Version: Version}
	applyEnvOverrides(cfg)
	_ = applyDefaults(cfg)
	return cfg
}

// Example returns the configuration written by `statekeep init`.
func Example() *Config {
	return &Config{
		Version: Version,
		Root:    "${HOME}/.statekeep",
		Lock: LockConfig{
			Timeout:        "10s",
			Backoff:        RetryBackoffExponential,
			InitialBackoff: "50ms",
			MaxBackoff:     "400ms",
		},
		State: StateConfig{CacheTTL: "30s"},
		Backup: BackupConfig{
			Interval: "1h",
			Workers:  4,
			Sources: []SourceConfig{
				{Name: "claude", Path: "${HOME}/.claude/settings.json"},
				{Name: "profiles", Path: "${HOME}/.statekeep/profiles", Subdir: "profiles"},
			},
			SnapshotKeep: DefaultSnapshotKeep,
		},
		History: HistoryConfig{MaxEntries: DefaultHistoryMaxEntries},
		Notify:  NotifyConfig{Driver: NotifyDriverMemory},
		Metrics: MetricsConfig{Enabled: false, Addr: ":9464", Path: "/metrics"},
		Logging: LoggingConfig{Level: LogLevelInfo},
	}
}

// Marshal renders a configuration as YAML.
func Marshal(cfg *Config) ([]byte, error) {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return nil, errors.WrapError(err, errors.CategoryInternal, "failed to marshal config").Build()
	}
	return data, nil
}
