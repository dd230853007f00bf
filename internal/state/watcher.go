package state

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"

	"git.home.luguber.info/inful/statekeep/internal/foundation/errors"
	"git.home.luguber.info/inful/statekeep/internal/logfields"
)

// Invalidator is a cached view of one file.
type Invalidator interface {
	Path() string
	Invalidate()
}

// Watcher drops cached documents when their file changes on disk, including
// commits made by other processes. It watches parent directories because the
// atomic protocol replaces the file, which would orphan a watch on the file itself.
type Watcher struct {
	watcher *fsnotify.Watcher
	logger  *slog.Logger

	mu      sync.RWMutex
	targets map[string][]Invalidator
	dirs    map[string]bool

	stopOnce sync.Once
	stopChan chan struct{}
	done     chan struct{}
}

// NewWatcher creates an idle watcher.
func NewWatcher(logger *slog.Logger) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, errors.FileSystemError("failed to create file watcher").WithCause(err).Build()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Watcher{
		watcher:  fw,
		logger:   logger,
		targets:  make(map[string][]Invalidator),
		dirs:     make(map[string]bool),
		stopChan: make(chan struct{}),
		done:     make(chan struct{}),
	}, nil
}

// Register invalidates inv whenever its file is written, created, renamed or removed.
func (w *Watcher) Register(inv Invalidator) error {
	abs, err := filepath.Abs(inv.Path())
	if err != nil {
		return errors.FileSystemError("failed to resolve watched path").
			WithCause(err).
			WithContext("path", inv.Path()).
			Build()
	}
	abs = filepath.Clean(abs)
	dir := filepath.Dir(abs)

	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.dirs[dir] {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return errors.FileSystemError("failed to create watched directory").
				WithCause(err).
				WithContext("path", dir).
				Build()
		}
		if err := w.watcher.Add(dir); err != nil {
			return errors.FileSystemError("failed to watch directory").
				WithCause(err).
				WithContext("path", dir).
				Build()
		}
		w.dirs[dir] = true
	}
	w.targets[abs] = append(w.targets[abs], inv)
	return nil
}

// Start runs the event loop until ctx is done or Stop is called.
func (w *Watcher) Start(ctx context.Context) {
	go w.loop(ctx)
}

// Stop ends the event loop and closes the underlying watcher.
func (w *Watcher) Stop() error {
	var err error
	w.stopOnce.Do(func() {
		close(w.stopChan)
		err = w.watcher.Close()
	})
	return err
}

// Done is closed once the event loop has exited.
func (w *Watcher) Done() <-chan struct{} { return w.done }

func (w *Watcher) loop(ctx context.Context) {
	defer close(w.done)
	const relevant = fsnotify.Write | fsnotify.Create | fsnotify.Rename | fsnotify.Remove

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stopChan:
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if event.Op&relevant == 0 {
				continue
			}
			w.mu.RLock()
			invs := w.targets[filepath.Clean(event.Name)]
			w.mu.RUnlock()
			for _, inv := range invs {
				inv.Invalidate()
			}
			if len(invs) > 0 {
				w.logger.Debug("Cache invalidated by file change",
					logfields.Path(event.Name),
					slog.String("op", event.Op.String()))
			}
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Warn("State watcher error", logfields.Error(err))
		}
	}
}
