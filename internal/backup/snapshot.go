package backup

import (
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"

	"git.home.luguber.info/inful/statekeep/internal/foundation/errors"
	"git.home.luguber.info/inful/statekeep/internal/logfields"
)

// DefaultSnapshotKeep is how many snapshots of one file survive a Prune.
const DefaultSnapshotKeep = 10

// snapshotSuffix matches the part of a snapshot name after "<file>.". Tags
// never contain dots, so snapshots of "config.json" do not match "config".
var snapshotSuffix = regexp.MustCompile(`^(?:[^/\\.]+_)?\d{8}_\d{6}(?:_copy\d*)?\.bak$`)

// SnapshotInfo describes one snapshot on disk.
type SnapshotInfo struct {
	Path    string
	Size    int64
	ModTime time.Time
}

// Snapshotter keeps rotating copies of a live file taken before it is replaced.
type Snapshotter struct {
	dir    string
	keep   int
	now    func() time.Time
	logger *slog.Logger
}

// SnapshotOption configures a Snapshotter.
type SnapshotOption func(*Snapshotter)

// WithSnapshotClock overrides the time source used in snapshot names.
func WithSnapshotClock(now func() time.Time) SnapshotOption {
	return func(s *Snapshotter) {
		if now != nil {
			s.now = now
		}
	}
}

func WithSnapshotLogger(l *slog.Logger) SnapshotOption {
	return func(s *Snapshotter) {
		if l != nil {
			s.logger = l
		}
	}
}

// NewSnapshotter stores snapshots in dir, or next to each file when dir is
// empty, and keeps the keep most recent per file (DefaultSnapshotKeep when
// keep is not positive).
func NewSnapshotter(dir string, keep int, opts ...SnapshotOption) *Snapshotter {
	if keep <= 0 {
		keep = DefaultSnapshotKeep
	}
	s := &Snapshotter{dir: dir, keep: keep, now: time.Now, logger: slog.Default()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Snapshotter) dirFor(path string) string {
	if s.dir != "" {
		return s.dir
	}
	return filepath.Dir(path)
}

// Snapshot copies path to "<name>.<tag>_<ts>.bak" ("<name>.<ts>.bak" without
// a tag) and prunes older snapshots. A missing path is a not_found error.
func (s *Snapshotter) Snapshot(path, tag string) (string, error) {
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return "", errors.NotFoundError("nothing to snapshot").WithContext("path", path).Build()
		}
		return "", readError(path, err)
	}

	name := filepath.Base(path) + "."
	if tag = sanitizeTag(tag); tag != "" {
		name += tag + "_"
	}
	name += s.now().Format(TimestampFormat) + ".bak"

	target := uniquePath(filepath.Join(s.dirFor(path), name), false)
	if err := copyFile(path, target); err != nil {
		return "", err
	}
	s.logger.Debug("Snapshot taken", logfields.Path(path), logfields.Target(target))

	if _, err := s.Prune(path); err != nil {
		s.logger.Warn("Snapshot pruning failed", logfields.Path(path), logfields.Error(err))
	}
	return target, nil
}

// List returns the snapshots of path, newest first.
func (s *Snapshotter) List(path string) ([]SnapshotInfo, error) {
	dir := s.dirFor(path)
	prefix := filepath.Base(path) + "."
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, readError(dir, err)
	}

	var out []SnapshotInfo
	for _, de := range entries {
		if de.IsDir() || !strings.HasPrefix(de.Name(), prefix) {
			continue
		}
		if !snapshotSuffix.MatchString(strings.TrimPrefix(de.Name(), prefix)) {
			continue
		}
		fi, err := de.Info()
		if err != nil {
			continue
		}
		out = append(out, SnapshotInfo{Path: filepath.Join(dir, de.Name()), Size: fi.Size(), ModTime: fi.ModTime()})
	}
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].ModTime.Equal(out[j].ModTime) {
			return out[i].ModTime.After(out[j].ModTime)
		}
		return out[i].Path > out[j].Path
	})
	return out, nil
}

// Prune removes all but the newest snapshots of path and returns how many
// were deleted.
func (s *Snapshotter) Prune(path string) (int, error) {
	snaps, err := s.List(path)
	if err != nil || len(snaps) <= s.keep {
		return 0, err
	}
	removed := 0
	for _, snap := range snaps[s.keep:] {
		if err := os.Remove(snap.Path); err != nil && !os.IsNotExist(err) {
			return removed, errors.FileSystemError("failed to remove old snapshot").
				WithCause(err).
				WithContext("path", snap.Path).
				Build()
		}
		removed++
	}
	return removed, nil
}

func sanitizeTag(tag string) string {
	tag = strings.TrimSpace(tag)
	return strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\', ':', ' ', '.':
			return '-'
		}
		return r
	}, tag)
}
