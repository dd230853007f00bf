package state

import (
	"context"
	stderrors "errors"
	"log/slog"
	"os"
	"time"

	"git.home.luguber.info/inful/statekeep/internal/foundation/errors"
	"git.home.luguber.info/inful/statekeep/internal/lock"
	"git.home.luguber.info/inful/statekeep/internal/logfields"
	"git.home.luguber.info/inful/statekeep/internal/metrics"
	"git.home.luguber.info/inful/statekeep/internal/notify"
)

// ErrNoChange may be returned by an UpdateFunc to skip the write.
var ErrNoChange = stderrors.New("state: no change")

// UpdateFunc receives the current file content (nil and exists=false when the
// file is absent) and returns the content to commit.
type UpdateFunc func(current []byte, exists bool) ([]byte, error)

// Writer commits whole-file replacements under a named resource lock.
type Writer struct {
	locks    *lock.Manager
	timeout  time.Duration
	notifier notify.Notifier
	recorder metrics.Recorder
	logger   *slog.Logger
}

// WriterOption configures a Writer.
type WriterOption func(*Writer)

// WithLockTimeout bounds lock acquisition for every commit.
func WithLockTimeout(d time.Duration) WriterOption {
	return func(w *Writer) {
		if d > 0 {
			w.timeout = d
		}
	}
}

// WithNotifier publishes a state.committed event after each commit.
func WithNotifier(n notify.Notifier) WriterOption {
	return func(w *Writer) {
		if n != nil {
			w.notifier = n
		}
	}
}

// WithRecorder sets the metrics recorder.
func WithRecorder(r metrics.Recorder) WriterOption {
	return func(w *Writer) { w.recorder = metrics.OrNoop(r) }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) WriterOption {
	return func(w *Writer) {
		if l != nil {
			w.logger = l
		}
	}
}

// NewWriter returns a Writer that takes locks from locks.
func NewWriter(locks *lock.Manager, opts ...WriterOption) *Writer {
	w := &Writer{
		locks:    locks,
		timeout:  lock.DefaultTimeout,
		notifier: notify.Noop{},
		recorder: metrics.NoopRecorder{},
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Locks returns the lock manager used for commits.
func (w *Writer) Locks() *lock.Manager { return w.locks }

// SaveAtomic replaces path with data while holding the resource lock.
// A lock timeout leaves the target untouched.
func (w *Writer) SaveAtomic(ctx context.Context, resource, path string, data []byte) error {
	return w.commit(ctx, resource, path, func() ([]byte, error) { return data, nil }, nil)
}

// Update reads path, passes it to fn and commits the result, all under the
// resource lock, so no concurrent writer can slip in between read and write.
func (w *Writer) Update(ctx context.Context, resource, path string, fn UpdateFunc) error {
	return w.update(ctx, resource, path, fn, nil)
}

// update is Update with a hook that runs after the rename, still under the lock.
func (w *Writer) update(ctx context.Context, resource, path string, fn UpdateFunc, committed func()) error {
	return w.commit(ctx, resource, path, func() ([]byte, error) {
		current, exists, err := readIfExists(path)
		if err != nil {
			return nil, err
		}
		return fn(current, exists)
	}, committed)
}

func (w *Writer) commit(ctx context.Context, resource, path string, produce func() ([]byte, error), committed func()) error {
	start := time.Now()
	var size int
	err := w.locks.WithLock(ctx, resource, w.timeout, func() error {
		data, err := produce()
		if err != nil {
			return err
		}
		size = len(data)
		if err := WriteFileAtomic(path, data); err != nil {
			return err
		}
		if committed != nil {
			committed()
		}
		return nil
	})
	if stderrors.Is(err, ErrNoChange) {
		return nil
	}
	w.recorder.ObserveCommit(resource, time.Since(start), err == nil)
	if err != nil {
		w.logger.Debug("State commit failed", logfields.Resource(resource), logfields.Path(path), logfields.Error(err))
		return err
	}

	w.logger.Debug("State committed",
		logfields.Resource(resource),
		logfields.Path(path),
		slog.Int("bytes", size),
		logfields.DurationMS(float64(time.Since(start).Microseconds())/1000))
	// The commit is durable at this point; a failed notification only delays
	// cache invalidation elsewhere until the TTL expires.
	_ = w.notifier.Publish(ctx, notify.Event{Kind: notify.KindStateCommitted, Resource: resource, Path: path})
	return nil
}

func readIfExists(path string) ([]byte, bool, error) {
	data, err := os.ReadFile(path)
	if err == nil {
		return data, true, nil
	}
	if os.IsNotExist(err) {
		return nil, false, nil
	}
	return nil, false, errors.FileSystemError("failed to read current state").
		WithCause(err).
		WithContext("path", path).
		Build()
}
