package backup

import (
	"encoding/binary"
	"encoding/hex"
	"io"
	"os"
	"path/filepath"
	"sort"

	"github.com/zeebo/blake3"

	"git.home.luguber.info/inful/statekeep/internal/foundation/errors"
)

// DigestFile returns the hex BLAKE3 digest of the file's bytes.
func DigestFile(path string) (string, error) {
	h := blake3.New()
	if err := hashFile(h, path); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// DigestDir folds every non-excluded file below dir into one BLAKE3 digest.
// Files are visited in slash-separated relative path order and each
// contributes "relpath \x00 len(content) content", so edits, additions,
// removals and renames all change the result.
func DigestDir(dir string, ex *Excluder) (string, error) {
	files, err := listFiles(dir, ex)
	if err != nil {
		return "", err
	}

	h := blake3.New()
	var size [8]byte
	for _, rel := range files {
		full := filepath.Join(dir, filepath.FromSlash(rel))
		fi, err := os.Stat(full)
		if err != nil {
			return "", readError(full, err)
		}
		_, _ = h.Write([]byte(rel))
		_, _ = h.Write([]byte{0})
		binary.BigEndian.PutUint64(size[:], uint64(fi.Size()))
		_, _ = h.Write(size[:])
		if err := hashFile(h, full); err != nil {
			return "", err
		}
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

func digest(r *resolved, ex *Excluder) (string, error) {
	if r.kind == KindDirectory {
		return DigestDir(r.Path, ex)
	}
	return DigestFile(r.Path)
}

// listFiles returns slash-separated paths relative to dir of every file that
// is not excluded and does not live below an excluded directory.
func listFiles(dir string, ex *Excluder) ([]string, error) {
	var files []string
	err := walkTree(dir, ex, func(rel, _ string, isDir bool) error {
		if !isDir {
			files = append(files, rel)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Strings(files)
	return files, nil
}

func hashFile(w io.Writer, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return readError(path, err)
	}
	defer f.Close()
	if _, err := io.Copy(w, f); err != nil {
		return readError(path, err)
	}
	return nil
}

func readError(path string, cause error) error {
	if ce, ok := errors.AsClassified(cause); ok {
		return ce
	}
	return errors.FileSystemError("failed to read backup source").
		WithCause(cause).
		WithContext("path", path).
		Build()
}
