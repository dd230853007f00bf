package state

import (
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/statekeep/internal/foundation/errors"
)

func leftoverTemps(t *testing.T, dir string) []string {
	t.Helper()
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	var temps []string
	for _, e := range entries {
		if strings.Contains(e.Name(), ".tmp-") {
			temps = append(temps, e.Name())
		}
	}
	return temps
}

func TestWriteFileAtomic_CreatesParentsAndFile(t *testing.T) {
	root := t.TempDir()
	path := filepath.Join(root, "nested", "dir", "settings.json")

	require.NoError(t, WriteFileAtomic(path, []byte(`{"a":1}`)))

	got, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, `{"a":1}`, string(got))
	assert.Empty(t, leftoverTemps(t, filepath.Dir(path)))

	if runtime.GOOS != "windows" {
		fi, err := os.Stat(path)
		require.NoError(t, err)
		assert.Equal(t, DefaultFileMode, fi.Mode().Perm())
	}
}

func TestWriteFileAtomic_PreservesMode(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("permission bits are not meaningful on windows")
	}
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte("old"), 0o644))
	require.NoError(t, os.Chmod(path, 0o644))

	require.NoError(t, WriteFileAtomic(path, []byte("new")))

	fi, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o644), fi.Mode().Perm())
}

func TestWriteFileAtomic_RenameFailureLeavesTargetUntouched(t *testing.T) {
	root := t.TempDir()
	// A non-empty directory at the target path cannot be replaced by rename.
	target := filepath.Join(root, "state.json")
	require.NoError(t, os.MkdirAll(filepath.Join(target, "keep"), 0o700))

	err := WriteFileAtomic(target, []byte("data"))
	require.Error(t, err)
	assert.True(t, errors.HasCategory(err, errors.CategoryWrite))

	fi, statErr := os.Stat(filepath.Join(target, "keep"))
	require.NoError(t, statErr)
	assert.True(t, fi.IsDir())
	assert.Empty(t, leftoverTemps(t, root))
}

func TestWriteFileAtomic_ParentIsFile(t *testing.T) {
	root := t.TempDir()
	blocker := filepath.Join(root, "blocker")
	require.NoError(t, os.WriteFile(blocker, []byte("x"), 0o600))

	err := WriteFileAtomic(filepath.Join(blocker, "state.json"), []byte("data"))
	require.Error(t, err)
	assert.True(t, errors.HasCategory(err, errors.CategoryWrite))

	classified, ok := errors.AsClassified(err)
	require.True(t, ok)
	p, _ := classified.Context().GetString("path")
	assert.Equal(t, filepath.Join(blocker, "state.json"), p)
}
