package backup

import (
	"io/fs"
	"os"
	"path"
	"path/filepath"
)

// walkFunc receives the slash-separated path relative to the walk root, the
// on-disk path and whether the entry (after following symlinks) is a directory.
type walkFunc func(rel, full string, dir bool) error

// walkTree visits every non-excluded directory and regular file below root in
// name order. Symlinks are followed: a link to a directory is descended into
// like a real one unless its target is the directory being walked or one of
// its ancestors. Dangling links and special files are skipped.
func walkTree(root string, ex *Excluder, fn walkFunc) error {
	canonical, err := filepath.EvalSymlinks(root)
	if err != nil {
		return readError(root, err)
	}
	w := &treeWalker{ex: ex, fn: fn, ancestors: map[string]bool{canonical: true}}
	return w.walk(root, "")
}

type treeWalker struct {
	ex        *Excluder
	fn        walkFunc
	ancestors map[string]bool
}

func (w *treeWalker) walk(dir, rel string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return readError(dir, err)
	}
	for _, de := range entries {
		name := de.Name()
		if w.ex.Excluded(name) {
			continue
		}
		full := filepath.Join(dir, name)
		childRel := path.Join(rel, name)

		mode := de.Type()
		if mode&fs.ModeSymlink != 0 {
			fi, err := os.Stat(full)
			if os.IsNotExist(err) {
				continue
			}
			if err != nil {
				return readError(full, err)
			}
			mode = fi.Mode().Type()
		}

		switch {
		case mode.IsDir():
			canonical, err := filepath.EvalSymlinks(full)
			if err != nil {
				return readError(full, err)
			}
			if w.ancestors[canonical] {
				continue
			}
			if err := w.fn(childRel, full, true); err != nil {
				return err
			}
			w.ancestors[canonical] = true
			err = w.walk(full, childRel)
			delete(w.ancestors, canonical)
			if err != nil {
				return err
			}
		case mode.IsRegular():
			if err := w.fn(childRel, full, false); err != nil {
				return err
			}
		}
	}
	return nil
}
