package logfields

import "log/slog"

// Canonical log field name constants to avoid drift across packages.
const (
	KeyResource   = "resource"
	KeyPath       = "path"
	KeyLockPath   = "lock_path"
	KeySource     = "source"
	KeyDigest     = "digest"
	KeyOperation  = "operation"
	KeyEntryID    = "entry_id"
	KeyDurationMS = "duration_ms"
	KeyAttempt    = "attempt"
	KeyChanged    = "changed"
	KeyTarget     = "target"
	KeyEvent      = "event"
	KeyCache      = "cache"
	KeyJob        = "job"
	KeyError      = "error"
)

// Simple helpers returning slog.Attr. Keeping each granular means callers can compose.
func Resource(name string) slog.Attr  { return slog.String(KeyResource, name) }
func Path(p string) slog.Attr         { return slog.String(KeyPath, p) }
func LockPath(p string) slog.Attr     { return slog.String(KeyLockPath, p) }
func Source(key string) slog.Attr     { return slog.String(KeySource, key) }
func Digest(d string) slog.Attr       { return slog.String(KeyDigest, d) }
func Operation(op string) slog.Attr   { return slog.String(KeyOperation, op) }
func EntryID(id string) slog.Attr     { return slog.String(KeyEntryID, id) }
func DurationMS(ms float64) slog.Attr { return slog.Float64(KeyDurationMS, ms) }
func Attempt(n int) slog.Attr         { return slog.Int(KeyAttempt, n) }
func Changed(c bool) slog.Attr        { return slog.Bool(KeyChanged, c) }
func Target(p string) slog.Attr       { return slog.String(KeyTarget, p) }
func Event(kind string) slog.Attr     { return slog.String(KeyEvent, kind) }
func Cache(name string) slog.Attr     { return slog.String(KeyCache, name) }
func Job(name string) slog.Attr       { return slog.String(KeyJob, name) }
func Error(err error) slog.Attr {
	if err == nil {
		return slog.String(KeyError, "")
	}
	return slog.String(KeyError, err.Error())
}
