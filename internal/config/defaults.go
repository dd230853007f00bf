package config

import (
	"path/filepath"
	"runtime"
)

// Defaults shared by the packages that consume the configuration.
const (
	DefaultLockTimeout       = "10s"
	DefaultInitialBackoff    = "50ms"
	DefaultMaxBackoff        = "400ms"
	DefaultCacheTTL          = "30s"
	DefaultHistoryMaxEntries = 10
	DefaultSnapshotKeep      = 10
	DefaultNATSSubject       = "statekeep.events"
	DefaultMetricsAddr       = ":9464"
	DefaultMetricsPath       = "/metrics"
)

// DefaultApplier applies defaults for a specific configuration domain.
type DefaultApplier interface {
	ApplyDefaults(cfg *Config) error
	Domain() string
}

// PathsDefaultApplier resolves the root and the directories derived from it.
type PathsDefaultApplier struct{}

func (p *PathsDefaultApplier) Domain() string { return "paths" }

func (p *PathsDefaultApplier) ApplyDefaults(cfg *Config) error {
	if cfg.Version == "" {
		cfg.Version = Version
	}
	if cfg.Root == "" {
		cfg.Root = DefaultRoot()
	}
	if cfg.Lock.Dir == "" {
		cfg.Lock.Dir = filepath.Join(cfg.Root, ".locks")
	}
	if cfg.History.File == "" {
		cfg.History.File = filepath.Join(cfg.Root, "history.json")
	}
	if cfg.Backup.Root == "" {
		cfg.Backup.Root = filepath.Join(cfg.Root, "backups")
	}
	return nil
}

// LockDefaultApplier handles lock timeout and backoff defaults.
type LockDefaultApplier struct{}

func (l *LockDefaultApplier) Domain() string { return "lock" }

func (l *LockDefaultApplier) ApplyDefaults(cfg *Config) error {
	if cfg.Lock.Timeout == "" {
		cfg.Lock.Timeout = DefaultLockTimeout
	}
	if mode := NormalizeRetryBackoff(string(cfg.Lock.Backoff)); mode != "" {
		cfg.Lock.Backoff = mode
	} else {
		cfg.Lock.Backoff = RetryBackoffExponential
	}
	if cfg.Lock.InitialBackoff == "" {
		cfg.Lock.InitialBackoff = DefaultInitialBackoff
	}
	if cfg.Lock.MaxBackoff == "" {
		cfg.Lock.MaxBackoff = DefaultMaxBackoff
	}
	return nil
}

// StorageDefaultApplier handles state, backup and history defaults.
type StorageDefaultApplier struct{}

func (s *StorageDefaultApplier) Domain() string { return "storage" }

func (s *StorageDefaultApplier) ApplyDefaults(cfg *Config) error {
	if cfg.State.CacheTTL == "" {
		cfg.State.CacheTTL = DefaultCacheTTL
	}
	if cfg.Backup.Workers <= 0 {
		cfg.Backup.Workers = runtime.NumCPU()
	}
	if cfg.Backup.SnapshotKeep <= 0 {
		cfg.Backup.SnapshotKeep = DefaultSnapshotKeep
	}
	for i := range cfg.Backup.Sources {
		if cfg.Backup.Sources[i].Subdir == "" {
			cfg.Backup.Sources[i].Subdir = cfg.Backup.Sources[i].Name
		}
	}
	if cfg.History.MaxEntries <= 0 {
		cfg.History.MaxEntries = DefaultHistoryMaxEntries
	}
	return nil
}

// ObservabilityDefaultApplier handles notify, metrics and logging defaults.
type ObservabilityDefaultApplier struct{}

func (o *ObservabilityDefaultApplier) Domain() string { return "observability" }

func (o *ObservabilityDefaultApplier) ApplyDefaults(cfg *Config) error {
	if cfg.Notify.Driver == "" {
		cfg.Notify.Driver = NotifyDriverMemory
	} else if d := NormalizeNotifyDriver(string(cfg.Notify.Driver)); d != "" {
		cfg.Notify.Driver = d
	}
	if cfg.Notify.Driver == NotifyDriverNATS && cfg.Notify.Subject == "" {
		cfg.Notify.Subject = DefaultNATSSubject
	}
	if cfg.Metrics.Addr == "" {
		cfg.Metrics.Addr = DefaultMetricsAddr
	}
	if cfg.Metrics.Path == "" {
		cfg.Metrics.Path = DefaultMetricsPath
	}
	if lvl := NormalizeLogLevel(string(cfg.Logging.Level)); lvl != "" {
		cfg.Logging.Level = lvl
	} else {
		cfg.Logging.Level = LogLevelInfo
	}
	return nil
}

// NewDefaultApplier returns the appliers in dependency order.
func NewDefaultApplier() *CompositeApplier {
	return &CompositeApplier{appliers: []DefaultApplier{
		&PathsDefaultApplier{},
		&LockDefaultApplier{},
		&StorageDefaultApplier{},
		&ObservabilityDefaultApplier{},
	}}
}

// CompositeApplier runs several appliers in sequence.
type CompositeApplier struct {
	appliers []DefaultApplier
}

// ApplyDefaults runs every applier, stopping at the first failure.
func (c *CompositeApplier) ApplyDefaults(cfg *Config) error {
	for _, a := range c.appliers {
		if err := a.ApplyDefaults(cfg); err != nil {
			return err
		}
	}
	return nil
}

func applyDefaults(cfg *Config) error {
	return NewDefaultApplier().ApplyDefaults(cfg)
}
