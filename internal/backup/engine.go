package backup

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"git.home.luguber.info/inful/statekeep/internal/foundation/errors"
	"git.home.luguber.info/inful/statekeep/internal/lock"
	"git.home.luguber.info/inful/statekeep/internal/logfields"
	"git.home.luguber.info/inful/statekeep/internal/metrics"
	"git.home.luguber.info/inful/statekeep/internal/notify"
)

// TimestampFormat names timestamped backup destinations.
const TimestampFormat = "20060102_150405"

// ItemSummary reports the outcome for one source.
type ItemSummary struct {
	Name       string `json:"name"`
	Changed    bool   `json:"changed"`
	Digest     string `json:"digest"`
	TargetPath string `json:"target_path"`
}

// Summary reports one BackupAll run.
type Summary struct {
	Timestamp string        `json:"timestamp"`
	Items     []ItemSummary `json:"items"`
	Duration  time.Duration `json:"duration"`
}

// ChangedCount returns how many sources were copied.
func (s *Summary) ChangedCount() int {
	n := 0
	for _, it := range s.Items {
		if it.Changed {
			n++
		}
	}
	return n
}

// Engine backs up registered sources below a root directory.
type Engine struct {
	root     string
	locks    *lock.Manager
	timeout  time.Duration
	exclude  *Excluder
	workers  int
	notifier notify.Notifier
	recorder metrics.Recorder
	logger   *slog.Logger
	now      func() time.Time

	mu      sync.Mutex
	sources []Source
}

// Option configures an Engine.
type Option func(*Engine)

// WithWorkers bounds parallel digesting.
func WithWorkers(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.workers = n
		}
	}
}

// WithExclude adds exclusion patterns to the defaults.
func WithExclude(patterns ...string) Option {
	return func(e *Engine) { e.exclude = NewExcluder(patterns...) }
}

// WithLockTimeout bounds acquisition of the engine lock.
func WithLockTimeout(d time.Duration) Option {
	return func(e *Engine) {
		if d > 0 {
			e.timeout = d
		}
	}
}

// WithNotifier publishes a backup.completed event after each run.
func WithNotifier(n notify.Notifier) Option {
	return func(e *Engine) {
		if n != nil {
			e.notifier = n
		}
	}
}

func WithRecorder(r metrics.Recorder) Option {
	return func(e *Engine) { e.recorder = metrics.OrNoop(r) }
}

func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}

// WithClock overrides the time source used for destination timestamps.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		if now != nil {
			e.now = now
		}
	}
}

// NewEngine returns an engine writing below root. The engine serializes runs
// through its own lock directory at <root>/.locks.
func NewEngine(root string, opts ...Option) *Engine {
	e := &Engine{
		root:     root,
		timeout:  lock.DefaultTimeout,
		exclude:  NewExcluder(),
		workers:  runtime.NumCPU(),
		notifier: notify.Noop{},
		recorder: metrics.NoopRecorder{},
		logger:   slog.Default(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	e.locks = lock.NewManager(filepath.Join(root, ".locks"),
		lock.WithDefaultTimeout(e.timeout),
		lock.WithRecorder(e.recorder),
		lock.WithLogger(e.logger))
	return e
}

// Root returns the backup root.
func (e *Engine) Root() string { return e.root }

// ManifestPath returns the location of the manifest.
func (e *Engine) ManifestPath() string { return filepath.Join(e.root, ManifestFile) }

// Locks returns the engine's private lock manager.
func (e *Engine) Locks() *lock.Manager { return e.locks }

// Register adds a source. Names must be unique.
func (e *Engine) Register(src Source) error {
	if err := validateSource(src); err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, s := range e.sources {
		if s.Name == src.Name {
			return errors.ValidationError("backup source already registered").
				WithContext("source", src.Name).
				Build()
		}
	}
	e.sources = append(e.sources, src)
	return nil
}

// Sources returns the registered sources in registration order.
func (e *Engine) Sources() []Source {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]Source(nil), e.sources...)
}

// BackupAll copies every source whose content changed since the last run and
// reports all sources that exist. Once the engine lock is held the run
// completes even if ctx is cancelled.
func (e *Engine) BackupAll(ctx context.Context) (*Summary, error) {
	start := time.Now()
	var summary *Summary
	err := e.locks.WithLock(ctx, lock.ResourceBackup, e.timeout, func() error {
		var err error
		summary, err = e.run(context.WithoutCancel(ctx))
		return err
	})
	e.recorder.ObserveBackupDuration(time.Since(start), err == nil)
	if err != nil {
		e.logger.Warn("Backup failed", logfields.Error(err))
		return nil, err
	}
	summary.Duration = time.Since(start)

	changed := summary.ChangedCount()
	e.logger.Info("Backup completed",
		slog.Int("sources", len(summary.Items)),
		slog.Int("changed", changed),
		logfields.DurationMS(float64(summary.Duration.Microseconds())/1000))
	_ = e.notifier.Publish(ctx, notify.Event{
		Kind:     notify.KindBackupCompleted,
		Resource: lock.ResourceBackup,
		Path:     e.root,
		Attrs: map[string]string{
			"sources": strconv.Itoa(len(summary.Items)),
			"changed": strconv.Itoa(changed),
		},
	})
	return summary, nil
}

func (e *Engine) run(ctx context.Context) (*Summary, error) {
	manifestPath := e.ManifestPath()
	manifest, err := LoadManifest(manifestPath)
	if err != nil {
		e.logger.Warn("Ignoring unreadable manifest, backing up all sources",
			logfields.Path(manifestPath), logfields.Error(err))
	}

	present, err := e.present()
	if err != nil {
		return nil, err
	}
	digests, err := e.digestAll(ctx, present)
	if err != nil {
		return nil, err
	}

	ts := e.now().Format(TimestampFormat)
	summary := &Summary{Timestamp: ts, Items: make([]ItemSummary, 0, len(present))}
	for i, src := range present {
		item := ItemSummary{
			Name:       src.Name,
			Digest:     digests[i],
			TargetPath: filepath.Join(e.root, src.subdir()),
		}
		if prev, ok := manifest.Get(src.key); !ok || prev != digests[i] {
			target, copied, err := e.copySource(src, ts)
			if err != nil {
				return nil, err
			}
			manifest.Set(src.key, copied)
			item.Changed = true
			item.Digest = copied
			item.TargetPath = target
		}
		e.recorder.IncBackupItem(src.Name, item.Changed)
		e.logger.Debug("Backup source processed",
			logfields.Source(src.key),
			logfields.Digest(item.Digest),
			logfields.Changed(item.Changed),
			logfields.Target(item.TargetPath))
		summary.Items = append(summary.Items, item)
	}

	if err := manifest.Save(manifestPath); err != nil {
		return nil, err
	}
	return summary, nil
}

func (e *Engine) present() ([]*resolved, error) {
	var out []*resolved
	for _, s := range e.Sources() {
		r, err := resolve(s)
		if err != nil {
			return nil, err
		}
		if r == nil {
			e.logger.Debug("Skipping missing backup source", logfields.Source(s.Name), logfields.Path(s.Path))
			continue
		}
		out = append(out, r)
	}
	return out, nil
}

func (e *Engine) digestAll(ctx context.Context, srcs []*resolved) ([]string, error) {
	digests := make([]string, len(srcs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.workers)
	for i, src := range srcs {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			d, err := digest(src, e.exclude)
			if err != nil {
				return sourceError(src, "failed to digest backup source", err)
			}
			digests[i] = d
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return digests, nil
}

// copySource copies src into a new timestamped destination and returns it
// with the digest of the copy, which is what the manifest records even when
// the source changed after it was first digested.
func (e *Engine) copySource(src *resolved, ts string) (string, string, error) {
	dir := filepath.Join(e.root, src.subdir())
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return "", "", sourceError(src, "failed to create backup destination", err)
	}

	var target, sum string
	var err error
	if src.kind == KindDirectory {
		target = uniquePath(filepath.Join(dir, ts), true)
		if err = copyTree(src.Path, target, e.exclude); err == nil {
			sum, err = DigestDir(target, e.exclude)
		}
	} else {
		target = uniquePath(filepath.Join(dir, filepath.Base(src.Path)+"."+ts+".bak"), false)
		if err = copyFile(src.Path, target); err == nil {
			sum, err = DigestFile(target)
		}
	}
	if err != nil {
		return "", "", sourceError(src, "failed to copy backup source", err)
	}
	return target, sum, nil
}

func sourceError(src *resolved, msg string, cause error) error {
	b := errors.FileSystemError(msg)
	if ce, ok := errors.AsClassified(cause); ok {
		b = errors.NewError(ce.Category(), msg)
	}
	return b.WithCause(cause).
		WithContext("source", src.Name).
		WithContext("path", src.Path).
		Build()
}
