package state

import (
	"os"
	"path/filepath"

	"git.home.luguber.info/inful/statekeep/internal/foundation/errors"
)

// DefaultFileMode applies to files that did not exist before the write.
const DefaultFileMode os.FileMode = 0o600

// WriteFileAtomic replaces path with data so that readers observe either the
// old or the new content, never a mix. The temporary file lives in the target
// directory so the final rename stays on one filesystem. Callers must hold the
// resource lock for path.
//
// On failure the target is untouched and the temporary file is removed on a
// best-effort basis.
func WriteFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return writeError("failed to create parent directory", path, err)
	}

	perm := DefaultFileMode
	if fi, err := os.Stat(path); err == nil && fi.Mode().IsRegular() {
		perm = fi.Mode().Perm()
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return writeError("failed to create temporary file", path, err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return writeError("failed to write temporary file", path, err)
	}
	if err := tmp.Chmod(perm); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return writeError("failed to set file mode", path, err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return writeError("failed to sync temporary file", path, err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return writeError("failed to close temporary file", path, err)
	}

	if err := os.Rename(tmpName, path); err != nil {
		_ = os.Remove(tmpName)
		return writeError("failed to replace target file", path, err)
	}
	syncDir(dir)
	return nil
}

func writeError(msg, path string, cause error) error {
	return errors.WriteError(msg).
		WithCause(cause).
		WithContext("path", path).
		Build()
}

// syncDir persists the rename on filesystems that need a directory fsync.
// Errors are ignored: the rename itself already happened.
func syncDir(dir string) {
	d, err := os.Open(dir)
	if err != nil {
		return
	}
	_ = d.Sync()
	_ = d.Close()
}
