package backup

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/statekeep/internal/foundation/errors"
)

func TestSnapshot_NamesAndCopies(t *testing.T) {
	dir := t.TempDir()
	live := filepath.Join(dir, "settings.json")
	writeFile(t, live, "v1")

	s := NewSnapshotter("", 0, WithSnapshotClock(tickingClock()))
	tagged, err := s.Snapshot(live, "before switch")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "settings.json.before-switch_20240301_120001.bak"), tagged)

	plain, err := s.Snapshot(live, "")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "settings.json.20240301_120002.bak"), plain)

	data, err := os.ReadFile(plain)
	require.NoError(t, err)
	assert.Equal(t, "v1", string(data))
}

func TestSnapshot_MissingFile(t *testing.T) {
	s := NewSnapshotter(t.TempDir(), 3)
	_, err := s.Snapshot(filepath.Join(t.TempDir(), "absent.json"), "")
	require.Error(t, err)
	assert.True(t, errors.HasCategory(err, errors.CategoryNotFound))
}

func TestSnapshot_KeepsMostRecent(t *testing.T) {
	dir := t.TempDir()
	store := filepath.Join(dir, "snapshots")
	live := filepath.Join(dir, "settings.json")
	writeFile(t, live, "v")
	// A sibling whose name shares the prefix must not be rotated away.
	writeFile(t, filepath.Join(store, "settings.json.notes.txt"), "keep")

	s := NewSnapshotter(store, 3, WithSnapshotClock(tickingClock()))
	var taken []string
	for range 5 {
		p, err := s.Snapshot(live, "")
		require.NoError(t, err)
		taken = append(taken, p)
	}

	snaps, err := s.List(live)
	require.NoError(t, err)
	require.Len(t, snaps, 3)
	for i, snap := range snaps {
		assert.Equal(t, taken[len(taken)-1-i], snap.Path)
	}
	assert.NoFileExists(t, taken[0])
	assert.FileExists(t, filepath.Join(store, "settings.json.notes.txt"))
}

func TestSnapshot_SameSecondGetsSuffix(t *testing.T) {
	dir := t.TempDir()
	live := filepath.Join(dir, "a.json")
	writeFile(t, live, "v")
	fixed := tickingClock()()

	s := NewSnapshotter("", 0, WithSnapshotClock(func() time.Time { return fixed }))
	first, err := s.Snapshot(live, "")
	require.NoError(t, err)
	second, err := s.Snapshot(live, "")
	require.NoError(t, err)
	assert.NotEqual(t, first, second)
	assert.True(t, strings.HasSuffix(second, "_copy.bak"))

	snaps, err := s.List(live)
	require.NoError(t, err)
	assert.Len(t, snaps, 2)
}

func TestSnapshot_PruneLeavesFilesWithLongerNames(t *testing.T) {
	dir := t.TempDir()
	store := filepath.Join(dir, "snapshots")
	short := filepath.Join(dir, "config")
	long := filepath.Join(dir, "config.json")
	writeFile(t, short, "short")
	writeFile(t, long, "long")

	s := NewSnapshotter(store, 3, WithSnapshotClock(tickingClock()))
	for range 3 {
		_, err := s.Snapshot(long, "t")
		require.NoError(t, err)
	}
	_, err := s.Snapshot(short, "")
	require.NoError(t, err)

	longSnaps, err := s.List(long)
	require.NoError(t, err)
	assert.Len(t, longSnaps, 3)
	shortSnaps, err := s.List(short)
	require.NoError(t, err)
	require.Len(t, shortSnaps, 1)
	assert.Equal(t, filepath.Join(store, "config.20240301_120004.bak"), shortSnaps[0].Path)
}

func TestSnapshot_DottedTagIsSanitized(t *testing.T) {
	dir := t.TempDir()
	live := filepath.Join(dir, "config")
	writeFile(t, live, "v")

	s := NewSnapshotter("", 0, WithSnapshotClock(tickingClock()))
	p, err := s.Snapshot(live, "v1.2")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "config.v1-2_20240301_120001.bak"), p)

	snaps, err := s.List(live)
	require.NoError(t, err)
	require.Len(t, snaps, 1)
	assert.Equal(t, p, snaps[0].Path)
}
