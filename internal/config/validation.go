package config

import (
	"fmt"
	"strings"
	"time"

	"git.home.luguber.info/inful/statekeep/internal/foundation/errors"
)

// ValidateConfig validates the complete configuration.
func ValidateConfig(cfg *Config) error {
	return newConfigurationValidator(cfg).validate()
}

type configurationValidator struct {
	config *Config
}

func newConfigurationValidator(config *Config) *configurationValidator {
	return &configurationValidator{config: config}
}

func (cv *configurationValidator) validate() error {
	if err := cv.validateDurations(); err != nil {
		return err
	}
	if err := cv.validateSources(); err != nil {
		return err
	}
	if err := cv.validateNotify(); err != nil {
		return err
	}
	return nil
}

func (cv *configurationValidator) validateDurations() error {
	fields := []struct {
		name  string
		value string
		zero  bool // empty string allowed
	}{
		{"lock.timeout", cv.config.Lock.Timeout, false},
		{"lock.initial_backoff", cv.config.Lock.InitialBackoff, false},
		{"lock.max_backoff", cv.config.Lock.MaxBackoff, false},
		{"state.cache_ttl", cv.config.State.CacheTTL, false},
		{"backup.interval", cv.config.Backup.Interval, true},
	}
	for _, f := range fields {
		if f.value == "" && f.zero {
			continue
		}
		d, err := time.ParseDuration(f.value)
		if err != nil {
			return errors.WrapError(err, errors.CategoryConfig, fmt.Sprintf("invalid %s: %s", f.name, f.value)).Fatal().Build()
		}
		if d <= 0 {
			return errors.ConfigError(fmt.Sprintf("%s must be positive: %s", f.name, f.value)).Build()
		}
	}

	initial, _ := time.ParseDuration(cv.config.Lock.InitialBackoff)
	maxDelay, _ := time.ParseDuration(cv.config.Lock.MaxBackoff)
	if maxDelay < initial {
		return errors.ConfigError(fmt.Sprintf("lock.max_backoff (%s) must be >= lock.initial_backoff (%s)",
			cv.config.Lock.MaxBackoff, cv.config.Lock.InitialBackoff)).Build()
	}
	return nil
}

func (cv *configurationValidator) validateSources() error {
	names := make(map[string]bool)
	for i, src := range cv.config.Backup.Sources {
		if src.Name == "" {
			return errors.ConfigError(fmt.Sprintf("backup.sources[%d]: name cannot be empty", i)).Build()
		}
		if strings.ContainsAny(src.Name, `/\:`) {
			return errors.ConfigError(fmt.Sprintf("backup.sources[%d]: name %q must not contain path separators or ':'", i, src.Name)).Build()
		}
		if names[src.Name] {
			return errors.ConfigError(fmt.Sprintf("duplicate backup source name: %s", src.Name)).Build()
		}
		names[src.Name] = true
		if src.Path == "" {
			return errors.ConfigError(fmt.Sprintf("backup.sources[%d] (%s): path cannot be empty", i, src.Name)).Build()
		}
		if strings.Contains(src.Subdir, "..") {
			return errors.ConfigError(fmt.Sprintf("backup.sources[%d] (%s): subdir must stay below the backup root", i, src.Name)).Build()
		}
	}
	return nil
}

func (cv *configurationValidator) validateNotify() error {
	switch cv.config.Notify.Driver {
	case NotifyDriverNone, NotifyDriverMemory:
		return nil
	case NotifyDriverNATS:
		if cv.config.Notify.URL == "" {
			return errors.ConfigError("notify.url is required for the nats driver").Build()
		}
		return nil
	default:
		return errors.ConfigError(fmt.Sprintf("invalid notify.driver: %s (allowed: none|memory|nats)", cv.config.Notify.Driver)).Build()
	}
}
