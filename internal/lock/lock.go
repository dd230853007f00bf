package lock

import (
	"context"
	stderrors "errors"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"git.home.luguber.info/inful/statekeep/internal/foundation/errors"
	"git.home.luguber.info/inful/statekeep/internal/logfields"
	"git.home.luguber.info/inful/statekeep/internal/metrics"
	"git.home.luguber.info/inful/statekeep/internal/retry"
)

// Well-known resource names.
const (
	ResourceSettings = "settings"
	ResourceProfiles = "profiles"
	ResourceHistory  = "history"
	ResourceBackup   = "backup"
)

// DefaultTimeout bounds Acquire when the caller passes a non-positive timeout.
const DefaultTimeout = 10 * time.Second

const fileSuffix = ".lock"

// errWouldBlock is returned by the platform lockers when another descriptor holds the lock.
var errWouldBlock = stderrors.New("lock held by another descriptor")

// Manager hands out named locks rooted at one directory.
type Manager struct {
	dir      string
	timeout  time.Duration
	policy   retry.Policy
	recorder metrics.Recorder
	logger   *slog.Logger
}

// Option configures a Manager.
type Option func(*Manager)

// WithDefaultTimeout overrides DefaultTimeout.
func WithDefaultTimeout(d time.Duration) Option {
	return func(m *Manager) {
		if d > 0 {
			m.timeout = d
		}
	}
}

// WithPolicy overrides the contention backoff policy.
func WithPolicy(p retry.Policy) Option {
	return func(m *Manager) {
		if p.Validate() == nil {
			m.policy = p
		}
	}
}

// WithRecorder sets the metrics recorder.
func WithRecorder(r metrics.Recorder) Option {
	return func(m *Manager) { m.recorder = metrics.OrNoop(r) }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(m *Manager) {
		if l != nil {
			m.logger = l
		}
	}
}

// NewManager returns a Manager for dir. The directory is created on first use.
func NewManager(dir string, opts ...Option) *Manager {
	m := &Manager{
		dir:      dir,
		timeout:  DefaultTimeout,
		policy:   retry.ContentionPolicy(),
		recorder: metrics.NoopRecorder{},
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Dir returns the lock directory.
func (m *Manager) Dir() string { return m.dir }

// Path returns the lock file path for name.
func (m *Manager) Path(name string) string {
	return filepath.Join(m.dir, name+fileSuffix)
}

// ValidateName rejects names that are empty or could escape the lock directory.
func ValidateName(name string) error {
	switch {
	case name == "":
		return errors.ValidationError("lock name cannot be empty").Build()
	case strings.ContainsAny(name, `/\`), strings.Contains(name, ".."), strings.ContainsRune(name, 0):
		return errors.ValidationError("lock name must be a plain file name").
			WithContext("resource", name).
			Build()
	}
	return nil
}

// Acquire blocks until the named lock is held, timeout elapses or ctx is done.
// A non-positive timeout uses the manager default. Contention is retried with
// the manager's backoff policy, never sleeping past the deadline.
func (m *Manager) Acquire(ctx context.Context, name string, timeout time.Duration) (*Handle, error) {
	if err := ValidateName(name); err != nil {
		return nil, err
	}
	if timeout <= 0 {
		timeout = m.timeout
	}
	path := m.Path(name)
	start := time.Now()
	deadline := start.Add(timeout)

	for attempt := 1; ; attempt++ {
		if err := ctx.Err(); err != nil {
			m.recorder.ObserveLockWait(name, time.Since(start), metrics.LockTimeout)
			return nil, errors.LockTimeoutError("lock acquisition canceled").
				WithCause(err).
				WithContext("resource", name).
				WithContext("path", path).
				Build()
		}

		h, err := m.tryOpen(name, path)
		if err != nil {
			m.recorder.ObserveLockWait(name, time.Since(start), metrics.LockError)
			return nil, err
		}
		if h != nil {
			waited := time.Since(start)
			m.recorder.ObserveLockWait(name, waited, metrics.LockAcquired)
			if attempt > 1 {
				m.logger.Debug("Lock acquired after contention",
					logfields.Resource(name),
					logfields.Attempt(attempt),
					logfields.DurationMS(float64(waited.Microseconds())/1000))
			}
			return h, nil
		}

		if !time.Now().Before(deadline) {
			waited := time.Since(start)
			m.recorder.ObserveLockWait(name, waited, metrics.LockTimeout)
			return nil, errors.LockTimeoutError("lock acquisition timed out").
				WithContext("resource", name).
				WithContext("path", path).
				WithContext("waited", waited.String()).
				Build()
		}
		if attempt == 1 {
			m.logger.Debug("Lock busy, waiting", logfields.Resource(name), logfields.LockPath(path))
		}

		timer := time.NewTimer(m.policy.DelayUntil(attempt, deadline))
		select {
		case <-ctx.Done():
			timer.Stop()
		case <-timer.C:
		}
	}
}

// TryAcquire makes a single non-blocking attempt. It returns (nil, nil) when
// the lock is held elsewhere.
func (m *Manager) TryAcquire(name string) (*Handle, error) {
	if err := ValidateName(name); err != nil {
		return nil, err
	}
	return m.tryOpen(name, m.Path(name))
}

// WithLock runs fn while holding the named lock. The lock is released on every
// exit path, including a panic in fn.
func (m *Manager) WithLock(ctx context.Context, name string, timeout time.Duration, fn func() error) (err error) {
	h, err := m.Acquire(ctx, name, timeout)
	if err != nil {
		return err
	}
	defer func() {
		if rerr := h.Release(); rerr != nil && err == nil {
			err = rerr
		}
	}()
	return fn()
}

func (m *Manager) tryOpen(name, path string) (*Handle, error) {
	if err := os.MkdirAll(m.dir, 0o700); err != nil {
		return nil, errors.LockIOError("failed to create lock directory").
			WithCause(err).
			WithContext("resource", name).
			WithContext("path", m.dir).
			Build()
	}
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o600)
	if err != nil {
		return nil, errors.LockIOError("failed to open lock file").
			WithCause(err).
			WithContext("resource", name).
			WithContext("path", path).
			Build()
	}
	if err := lockFile(f); err != nil {
		_ = f.Close()
		if stderrors.Is(err, errWouldBlock) {
			return nil, nil
		}
		return nil, errors.LockIOError("failed to lock file").
			WithCause(err).
			WithContext("resource", name).
			WithContext("path", path).
			Build()
	}
	return &Handle{name: name, path: path, file: f, acquiredAt: time.Now()}, nil
}

// Info describes a lock file found in the lock directory.
type Info struct {
	Name    string
	Path    string
	Held    bool
	ModTime time.Time
}

// List returns every lock file in the directory, probing whether each is held.
// The probe takes and immediately drops the lock when it is free.
func (m *Manager) List() ([]Info, error) {
	entries, err := os.ReadDir(m.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, errors.LockIOError("failed to read lock directory").
			WithCause(err).
			WithContext("path", m.dir).
			Build()
	}

	var out []Info
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), fileSuffix) {
			continue
		}
		name := strings.TrimSuffix(e.Name(), fileSuffix)
		info := Info{Name: name, Path: filepath.Join(m.dir, e.Name())}
		if fi, ferr := e.Info(); ferr == nil {
			info.ModTime = fi.ModTime()
		}
		h, perr := m.tryOpen(name, info.Path)
		switch {
		case perr != nil:
			return nil, perr
		case h == nil:
			info.Held = true
		default:
			_ = h.Release()
		}
		out = append(out, info)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// Handle is a held lock. Release is idempotent and safe on a nil Handle.
type Handle struct {
	name       string
	path       string
	acquiredAt time.Time

	mu   sync.Mutex
	file *os.File
}

// Name returns the resource name.
func (h *Handle) Name() string { return h.name }

// Path returns the lock file path.
func (h *Handle) Path() string { return h.path }

// AcquiredAt returns when the lock was taken.
func (h *Handle) AcquiredAt() time.Time { return h.acquiredAt }

// Held reports whether Release has not been called yet.
func (h *Handle) Held() bool {
	if h == nil {
		return false
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.file != nil
}

// Release unlocks and closes the descriptor.
func (h *Handle) Release() error {
	if h == nil {
		return nil
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.file == nil {
		return nil
	}
	f := h.file
	h.file = nil

	uerr := unlockFile(f)
	cerr := f.Close()
	if err := stderrors.Join(uerr, cerr); err != nil {
		return errors.LockIOError("failed to release lock").
			WithCause(err).
			WithContext("resource", h.name).
			WithContext("path", h.path).
			Build()
	}
	return nil
}
