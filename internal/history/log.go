package history

import (
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"sort"
	"time"

	"git.home.luguber.info/inful/statekeep/internal/foundation/errors"
	"git.home.luguber.info/inful/statekeep/internal/lock"
	"git.home.luguber.info/inful/statekeep/internal/logfields"
	"git.home.luguber.info/inful/statekeep/internal/metrics"
	"git.home.luguber.info/inful/statekeep/internal/notify"
	"git.home.luguber.info/inful/statekeep/internal/state"
)

// DefaultMaxEntries caps the log when no limit is configured.
const DefaultMaxEntries = 10

// Log is the history file plus the writer that commits it.
type Log struct {
	path     string
	max      int
	writer   *state.Writer
	notifier notify.Notifier
	recorder metrics.Recorder
	logger   *slog.Logger
}

// Option configures a Log.
type Option func(*Log)

// WithMaxEntries sets the retention cap.
func WithMaxEntries(n int) Option {
	return func(l *Log) {
		if n > 0 {
			l.max = n
		}
	}
}

func WithNotifier(n notify.Notifier) Option {
	return func(l *Log) {
		if n != nil {
			l.notifier = n
		}
	}
}

func WithRecorder(r metrics.Recorder) Option {
	return func(l *Log) { l.recorder = metrics.OrNoop(r) }
}

func WithLogger(lg *slog.Logger) Option {
	return func(l *Log) {
		if lg != nil {
			l.logger = lg
		}
	}
}

// NewLog returns a log stored at path and committed through w under the
// history resource lock.
func NewLog(path string, w *state.Writer, opts ...Option) *Log {
	l := &Log{
		path:     path,
		max:      DefaultMaxEntries,
		writer:   w,
		notifier: notify.Noop{},
		recorder: metrics.NoopRecorder{},
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Path returns the history file location.
func (l *Log) Path() string { return l.path }

// MaxEntries returns the retention cap.
func (l *Log) MaxEntries() int { return l.max }

// Record appends e, keeps only the newest MaxEntries entries and rewrites the
// file. Secret values are masked before anything is serialized.
func (l *Log) Record(ctx context.Context, e *Entry) error {
	if e == nil {
		return errors.ValidationError("history entry cannot be nil").Build()
	}
	if !e.Operation.Valid() {
		return errors.ValidationError("unknown history operation").
			WithContext("operation", string(e.Operation)).
			Build()
	}
	entry := e.masked()

	err := l.writer.Update(ctx, lock.ResourceHistory, l.path, func(current []byte, exists bool) ([]byte, error) {
		var entries []Entry
		if exists {
			entries = l.decode(current)
		}
		// The new entry goes first so it wins ties on timestamp.
		entries = append([]Entry{entry}, entries...)
		sort.SliceStable(entries, func(i, j int) bool {
			return entries[i].Timestamp.After(entries[j].Timestamp)
		})
		if len(entries) > l.max {
			entries = entries[:l.max]
		}
		return encode(entries)
	})
	if err != nil {
		return err
	}

	l.recorder.IncHistoryRecord(string(entry.Operation))
	l.logger.Debug("History recorded",
		logfields.EntryID(entry.ID),
		logfields.Operation(string(entry.Operation)),
		slog.String("status", string(entry.Result.Status)))
	_ = l.notifier.Publish(ctx, notify.Event{
		Kind:     notify.KindHistoryRecorded,
		Resource: lock.ResourceHistory,
		Path:     l.path,
		Attrs: map[string]string{
			"id":        entry.ID,
			"operation": string(entry.Operation),
			"status":    string(entry.Result.Status),
		},
	})
	return nil
}

// Load returns all entries as stored, newest first. Readers take no lock. An
// unreadable file is logged and treated as empty.
func (l *Log) Load() []Entry {
	data, err := os.ReadFile(l.path)
	if err != nil {
		if !os.IsNotExist(err) {
			l.logger.Warn("Treating unreadable history as empty", logfields.Path(l.path), logfields.Error(err))
		}
		return nil
	}
	return l.decode(data)
}

// GetRecent returns up to limit entries, newest first. A non-positive limit
// returns everything.
func (l *Log) GetRecent(limit int) []Entry {
	entries := l.Load()
	sortNewestFirst(entries)
	if limit > 0 && len(entries) > limit {
		entries = entries[:limit]
	}
	return entries
}

// FilterByKind returns the entries of one operation kind, newest first.
func (l *Log) FilterByKind(kind OperationKind) []Entry {
	var out []Entry
	for _, e := range l.Load() {
		if e.Operation == kind {
			out = append(out, e)
		}
	}
	sortNewestFirst(out)
	return out
}

// FilterByTimeRange returns entries with start <= timestamp <= end, newest first.
func (l *Log) FilterByTimeRange(start, end time.Time) []Entry {
	var out []Entry
	for _, e := range l.Load() {
		if !e.Timestamp.Before(start) && !e.Timestamp.After(end) {
			out = append(out, e)
		}
	}
	sortNewestFirst(out)
	return out
}

// Stats summarizes the log.
type Stats struct {
	Total   int                   `json:"total"`
	Success int                   `json:"success"`
	Failure int                   `json:"failure"`
	Warning int                   `json:"warning"`
	ByKind  map[OperationKind]int `json:"by_kind"`
	Last    *Entry                `json:"last,omitempty"`
}

// Stats counts entries by outcome and kind.
func (l *Log) Stats() Stats {
	s := Stats{ByKind: make(map[OperationKind]int)}
	for _, e := range l.Load() {
		s.Total++
		switch e.Result.Status {
		case StatusSuccess:
			s.Success++
		case StatusFailure:
			s.Failure++
		case StatusWarning:
			s.Warning++
		}
		s.ByKind[e.Operation]++
		if s.Last == nil || e.Timestamp.After(s.Last.Timestamp) {
			last := e
			s.Last = &last
		}
	}
	return s
}

// CleanupOlderThan drops entries older than maxAge and returns how many were removed.
func (l *Log) CleanupOlderThan(ctx context.Context, maxAge time.Duration) (int, error) {
	cutoff := time.Now().Add(-maxAge)
	removed := 0
	err := l.writer.Update(ctx, lock.ResourceHistory, l.path, func(current []byte, exists bool) ([]byte, error) {
		if !exists {
			return nil, state.ErrNoChange
		}
		entries := l.decode(current)
		kept := entries[:0]
		for _, e := range entries {
			if !e.Timestamp.Before(cutoff) {
				kept = append(kept, e)
			}
		}
		removed = len(entries) - len(kept)
		if removed == 0 {
			return nil, state.ErrNoChange
		}
		return encode(kept)
	})
	if err != nil {
		return 0, err
	}
	if removed > 0 {
		l.logger.Info("History cleaned up", slog.Int("removed", removed))
	}
	return removed, nil
}

func (l *Log) decode(data []byte) []Entry {
	if len(data) == 0 {
		return nil
	}
	var entries []Entry
	if err := json.Unmarshal(data, &entries); err != nil {
		herr := errors.HistoryError("history file is corrupt").
			Warning().
			WithCause(err).
			WithContext("path", l.path).
			Build()
		l.logger.Warn("Treating corrupt history as empty", logfields.Path(l.path), logfields.Error(herr))
		return nil
	}
	return entries
}

func encode(entries []Entry) ([]byte, error) {
	if entries == nil {
		entries = []Entry{}
	}
	data, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return nil, errors.WrapError(err, errors.CategoryInternal, "failed to marshal history").Build()
	}
	return append(data, '\n'), nil
}

func sortNewestFirst(entries []Entry) {
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].Timestamp.After(entries[j].Timestamp)
	})
}
