package backup

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"git.home.luguber.info/inful/statekeep/internal/foundation/errors"
)

// uniquePath returns path, or the first of "<stem>_copy<ext>",
// "<stem>_copy2<ext>", ... that does not exist yet. Directories take the
// suffix on their full name.
func uniquePath(path string, dir bool) string {
	if _, err := os.Lstat(path); os.IsNotExist(err) {
		return path
	}
	parent, base := filepath.Split(path)
	stem, ext := base, ""
	if !dir {
		ext = filepath.Ext(base)
		stem = strings.TrimSuffix(base, ext)
	}
	for i := 1; ; i++ {
		suffix := "_copy"
		if i > 1 {
			suffix = fmt.Sprintf("_copy%d", i)
		}
		candidate := filepath.Join(parent, stem+suffix+ext)
		if _, err := os.Lstat(candidate); os.IsNotExist(err) {
			return candidate
		}
	}
}

// copyFile copies src to dst, which must not exist, keeping src's permission bits.
func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return readError(src, err)
	}
	defer in.Close()

	fi, err := in.Stat()
	if err != nil {
		return readError(src, err)
	}
	if err := os.MkdirAll(filepath.Dir(dst), 0o700); err != nil {
		return copyError(src, dst, err)
	}
	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_EXCL, fi.Mode().Perm())
	if err != nil {
		return copyError(src, dst, err)
	}
	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		return copyError(src, dst, err)
	}
	if err := out.Sync(); err != nil {
		_ = out.Close()
		return copyError(src, dst, err)
	}
	if err := out.Close(); err != nil {
		return copyError(src, dst, err)
	}
	return nil
}

// copyTree snapshots src into dst, skipping excluded names and following
// symlinks the same way DigestDir does. Files never overwrite an existing
// destination; a colliding name gets a _copy suffix.
func copyTree(src, dst string, ex *Excluder) error {
	if err := os.MkdirAll(dst, 0o700); err != nil {
		return copyError(src, dst, err)
	}
	return walkTree(src, ex, func(rel, full string, isDir bool) error {
		target := filepath.Join(dst, filepath.FromSlash(rel))
		if isDir {
			if err := os.MkdirAll(target, 0o700); err != nil {
				return copyError(full, target, err)
			}
			return nil
		}
		return copyFile(full, uniquePath(target, false))
	})
}

func copyError(src, dst string, cause error) error {
	return errors.FileSystemError("failed to copy backup data").
		WithCause(cause).
		WithContext("path", src).
		WithContext("target", dst).
		Build()
}
