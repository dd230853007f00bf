package config

import "time"

// Parsed accessors. Values were checked by ValidateConfig; a config built by hand
// that skips validation falls back to the defaults.

// LockTimeout returns the default lock acquisition timeout.
func (c *Config) LockTimeout() time.Duration {
	return parseOr(c.Lock.Timeout, DefaultLockTimeout)
}

// LockBackoff returns the initial and maximum contention backoff.
func (c *Config) LockBackoff() (initial, maxDelay time.Duration) {
	return parseOr(c.Lock.InitialBackoff, DefaultInitialBackoff), parseOr(c.Lock.MaxBackoff, DefaultMaxBackoff)
}

// CacheTTL returns the read cache time-to-live.
func (c *Config) CacheTTL() time.Duration {
	return parseOr(c.State.CacheTTL, DefaultCacheTTL)
}

// BackupInterval returns the scheduled backup interval, zero when disabled.
func (c *Config) BackupInterval() time.Duration {
	if c.Backup.Interval == "" {
		return 0
	}
	d, err := time.ParseDuration(c.Backup.Interval)
	if err != nil {
		return 0
	}
	return d
}

func parseOr(raw, fallback string) time.Duration {
	if d, err := time.ParseDuration(raw); err == nil && d > 0 {
		return d
	}
	d, _ := time.ParseDuration(fallback)
	return d
}
