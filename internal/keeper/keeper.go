// Package keeper wires locks, atomic writes, snapshots, backups and the audit
// history into the operations callers actually perform.
package keeper

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"git.home.luguber.info/inful/statekeep/internal/backup"
	"git.home.luguber.info/inful/statekeep/internal/cache"
	"git.home.luguber.info/inful/statekeep/internal/config"
	"git.home.luguber.info/inful/statekeep/internal/foundation/errors"
	"git.home.luguber.info/inful/statekeep/internal/history"
	"git.home.luguber.info/inful/statekeep/internal/lock"
	"git.home.luguber.info/inful/statekeep/internal/logfields"
	"git.home.luguber.info/inful/statekeep/internal/metrics"
	"git.home.luguber.info/inful/statekeep/internal/notify"
	"git.home.luguber.info/inful/statekeep/internal/retry"
	"git.home.luguber.info/inful/statekeep/internal/state"
)

// Keeper is the single entry point for mutating managed state.
type Keeper struct {
	cfg       *config.Config
	locks     *lock.Manager
	writer    *state.Writer
	snapshots *backup.Snapshotter
	engine    *backup.Engine
	history   *history.Log
	notifier  notify.Notifier
	ownsBus   bool
	recorder  metrics.Recorder
	logger    *slog.Logger

	mu   sync.Mutex
	docs map[string]*state.Document[json.RawMessage]
}

type options struct {
	notifier notify.Notifier
	recorder metrics.Recorder
	logger   *slog.Logger
}

// Option configures New.
type Option func(*options)

// WithNotifier shares an existing notifier instead of building one from config.
func WithNotifier(n notify.Notifier) Option {
	return func(o *options) { o.notifier = n }
}

func WithRecorder(r metrics.Recorder) Option {
	return func(o *options) { o.recorder = r }
}

func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// New builds every component from cfg.
func New(cfg *config.Config, opts ...Option) (*Keeper, error) {
	if cfg == nil {
		return nil, errors.ConfigError("configuration is required").Build()
	}
	o := options{logger: slog.Default()}
	for _, opt := range opts {
		opt(&o)
	}
	o.recorder = metrics.OrNoop(o.recorder)
	if o.logger == nil {
		o.logger = slog.Default()
	}

	k := &Keeper{
		cfg:      cfg,
		recorder: o.recorder,
		logger:   o.logger,
		docs:     make(map[string]*state.Document[json.RawMessage]),
	}

	k.notifier = o.notifier
	if k.notifier == nil {
		n, err := notify.New(cfg.Notify, o.recorder)
		if err != nil {
			return nil, err
		}
		k.notifier = n
		k.ownsBus = true
	}

	initial, maxDelay := cfg.LockBackoff()
	k.locks = lock.NewManager(cfg.Lock.Dir,
		lock.WithDefaultTimeout(cfg.LockTimeout()),
		lock.WithPolicy(retry.NewPolicy(cfg.Lock.Backoff, initial, maxDelay, 0)),
		lock.WithRecorder(o.recorder),
		lock.WithLogger(o.logger))

	k.writer = state.NewWriter(k.locks,
		state.WithLockTimeout(cfg.LockTimeout()),
		state.WithNotifier(k.notifier),
		state.WithRecorder(o.recorder),
		state.WithLogger(o.logger))

	k.snapshots = backup.NewSnapshotter(cfg.Backup.SnapshotDir, cfg.Backup.SnapshotKeep,
		backup.WithSnapshotLogger(o.logger))

	k.engine = backup.NewEngine(cfg.Backup.Root,
		backup.WithWorkers(cfg.Backup.Workers),
		backup.WithExclude(cfg.Backup.Exclude...),
		backup.WithLockTimeout(cfg.LockTimeout()),
		backup.WithNotifier(k.notifier),
		backup.WithRecorder(o.recorder),
		backup.WithLogger(o.logger))
	for _, src := range cfg.Backup.Sources {
		if err := k.engine.Register(backup.Source{Name: src.Name, Path: src.Path, Subdir: src.Subdir}); err != nil {
			return nil, err
		}
	}

	k.history = history.NewLog(cfg.History.File, k.writer,
		history.WithMaxEntries(cfg.History.MaxEntries),
		history.WithNotifier(k.notifier),
		history.WithRecorder(o.recorder),
		history.WithLogger(o.logger))

	return k, nil
}

func (k *Keeper) Config() *config.Config         { return k.cfg }
func (k *Keeper) Locks() *lock.Manager           { return k.locks }
func (k *Keeper) Writer() *state.Writer          { return k.writer }
func (k *Keeper) Engine() *backup.Engine         { return k.engine }
func (k *Keeper) History() *history.Log          { return k.history }
func (k *Keeper) Snapshots() *backup.Snapshotter { return k.snapshots }
func (k *Keeper) Notifier() notify.Notifier      { return k.notifier }
func (k *Keeper) Recorder() metrics.Recorder     { return k.recorder }

// Close releases the notifier when the keeper created it.
func (k *Keeper) Close() error {
	if k.ownsBus {
		return k.notifier.Close()
	}
	return nil
}

// Document returns the cached JSON document for path, creating it on first use.
func (k *Keeper) Document(resource, path string) *state.Document[json.RawMessage] {
	key := docKey(path)
	k.mu.Lock()
	defer k.mu.Unlock()
	if d, ok := k.docs[key]; ok {
		return d
	}
	d := state.NewDocument[json.RawMessage](k.writer, resource, path, k.cfg.CacheTTL(),
		cache.WithName(resource),
		cache.WithRecorder(k.recorder))
	k.docs[key] = d
	return d
}

// Documents returns every document opened so far.
func (k *Keeper) Documents() []*state.Document[json.RawMessage] {
	k.mu.Lock()
	defer k.mu.Unlock()
	out := make([]*state.Document[json.RawMessage], 0, len(k.docs))
	for _, d := range k.docs {
		out = append(out, d)
	}
	return out
}

// InvalidatePath drops the cached value of the document at path, if open.
func (k *Keeper) InvalidatePath(path string) bool {
	k.mu.Lock()
	d, ok := k.docs[docKey(path)]
	k.mu.Unlock()
	if ok {
		d.Invalidate()
	}
	return ok
}

// CommitRequest describes one replacement of a live file.
type CommitRequest struct {
	Resource  string
	Path      string
	Data      []byte
	Operation history.OperationKind
	Details   history.Details
	EnvBefore map[string]string
	EnvAfter  map[string]string
	Tag       string
	Notes     string

	// EnvOf, when set, derives EnvBefore from the file content read under
	// the resource lock and EnvAfter (if nil) from Data.
	EnvOf func([]byte) map[string]string
}

// CommitResult reports where the pre-commit snapshot went and which history
// entry describes the commit.
type CommitResult struct {
	Path         string
	SnapshotPath string
	EntryID      string
}

// Commit snapshots the current file (if any), replaces it atomically and
// records the outcome in the history. A failed commit is recorded and its
// error returned. When only the history append fails the commit stays durable;
// the result is returned together with the history error.
func (k *Keeper) Commit(ctx context.Context, req CommitRequest) (*CommitResult, error) {
	if req.Operation == "" {
		req.Operation = history.OpUpdate
	}
	if err := validateCommit(req); err != nil {
		return nil, err
	}

	res := &CommitResult{Path: req.Path}
	envBefore, envAfter := req.EnvBefore, req.EnvAfter
	if req.EnvOf != nil && envAfter == nil {
		envAfter = req.EnvOf(req.Data)
	}
	err := k.writer.Update(ctx, req.Resource, req.Path, func(current []byte, exists bool) ([]byte, error) {
		if req.EnvOf != nil {
			envBefore = nil
			if exists {
				envBefore = req.EnvOf(current)
			}
		}
		if exists {
			snap, err := k.snapshots.Snapshot(req.Path, req.Tag)
			if err != nil {
				return nil, err
			}
			res.SnapshotPath = snap
		}
		return req.Data, nil
	})

	details := req.Details
	if details.BackupPath == "" {
		details.BackupPath = res.SnapshotPath
	}
	result := history.Success()
	if err != nil {
		result = history.Failure(err.Error())
	}
	entry := history.NewEntry(req.Operation, details, result)
	for _, c := range history.DiffEnv(envBefore, envAfter) {
		entry.AddEnvChange(c.VarName, c.OldValue, c.NewValue)
	}
	entry.Notes = req.Notes
	res.EntryID = entry.ID

	herr := k.history.Record(ctx, entry)
	if err != nil {
		if herr != nil {
			k.logger.Warn("Failed to record failed commit", logfields.Path(req.Path), logfields.Error(herr))
		}
		return nil, err
	}
	if herr != nil {
		return res, herr
	}
	k.logger.Info("State committed",
		logfields.Resource(req.Resource),
		logfields.Path(req.Path),
		logfields.Operation(string(req.Operation)),
		logfields.EntryID(entry.ID))
	return res, nil
}

// Restore replaces path with the content of a snapshot, snapshotting the
// current file first under the "pre-restore" tag.
func (k *Keeper) Restore(ctx context.Context, resource, path, snapshotPath string) (*CommitResult, error) {
	data, err := os.ReadFile(snapshotPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.NotFoundError("snapshot not found").WithContext("path", snapshotPath).Build()
		}
		return nil, errors.FileSystemError("failed to read snapshot").
			WithCause(err).
			WithContext("path", snapshotPath).
			Build()
	}
	return k.Commit(ctx, CommitRequest{
		Resource:  resource,
		Path:      path,
		Data:      data,
		Operation: history.OpRestore,
		Details:   history.Details{Extra: "restored from " + snapshotPath},
		EnvOf:     ExtractEnv,
		Tag:       "pre-restore",
	})
}

// Backup runs the backup engine and records a backup history entry.
func (k *Keeper) Backup(ctx context.Context) (*backup.Summary, error) {
	summary, err := k.engine.BackupAll(ctx)

	details := history.Details{BackupPath: k.engine.Root()}
	result := history.Success()
	if err != nil {
		result = history.Failure(err.Error())
	} else {
		details.Extra = fmt.Sprintf("%d of %d sources changed", summary.ChangedCount(), len(summary.Items))
	}
	if herr := k.history.Record(ctx, history.NewEntry(history.OpBackup, details, result)); herr != nil {
		if err != nil {
			k.logger.Warn("Failed to record failed backup", logfields.Error(herr))
			return nil, err
		}
		return summary, herr
	}
	return summary, err
}

func docKey(path string) string {
	if abs, err := filepath.Abs(path); err == nil {
		return abs
	}
	return filepath.Clean(path)
}

func validateCommit(req CommitRequest) error {
	if err := lock.ValidateName(req.Resource); err != nil {
		return err
	}
	if req.Path == "" {
		return errors.ValidationError("commit path cannot be empty").Build()
	}
	if !req.Operation.Valid() {
		return errors.ValidationError("unknown history operation").
			WithContext("operation", string(req.Operation)).
			Build()
	}
	return nil
}
