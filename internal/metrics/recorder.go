package metrics

import "time"

// LockOutcome enumerates how a lock acquisition ended.
type LockOutcome string

const (
	LockAcquired LockOutcome = "acquired"
	LockTimeout  LockOutcome = "timeout"
	LockError    LockOutcome = "error"
)

// Recorder defines observability hooks for locks, commits, caches, backups and history.
// Implementations may forward to Prometheus. All components default to NoopRecorder.
type Recorder interface {
	ObserveLockWait(resource string, d time.Duration, outcome LockOutcome)
	ObserveCommit(resource string, d time.Duration, success bool)
	IncCacheLookup(cache string, hit bool)
	IncBackupItem(source string, changed bool)
	ObserveBackupDuration(d time.Duration, success bool)
	IncHistoryRecord(kind string)
	IncNotifyPublish(event string, success bool)
}

// NoopRecorder is a Recorder that does nothing (default when metrics not configured).
type NoopRecorder struct{}

func (NoopRecorder) ObserveLockWait(string, time.Duration, LockOutcome) {}
func (NoopRecorder) ObserveCommit(string, time.Duration, bool)          {}
func (NoopRecorder) IncCacheLookup(string, bool)                        {}
func (NoopRecorder) IncBackupItem(string, bool)                         {}
func (NoopRecorder) ObserveBackupDuration(time.Duration, bool)          {}
func (NoopRecorder) IncHistoryRecord(string)                            {}
func (NoopRecorder) IncNotifyPublish(string, bool)                      {}

// OrNoop returns r, or NoopRecorder when r is nil.
func OrNoop(r Recorder) Recorder {
	if r == nil {
		return NoopRecorder{}
	}
	return r
}

func resultLabel(success bool) string {
	if success {
		return "success"
	}
	return "failed"
}
