package backup

import (
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/text/unicode/norm"

	"git.home.luguber.info/inful/statekeep/internal/foundation/errors"
)

// Kind distinguishes file and directory sources.
type Kind string

const (
	KindFile      Kind = "file"
	KindDirectory Kind = "directory"
)

// Source registers one origin. Subdir is the destination below the backup
// root and defaults to Name.
type Source struct {
	Name   string
	Path   string
	Subdir string
}

func (s Source) subdir() string {
	if s.Subdir != "" {
		return s.Subdir
	}
	return s.Name
}

// Key returns the stable manifest key for s.
func (s Source) Key() (string, error) {
	return SourceKey(s.Name, s.Path)
}

// SourceKey normalizes path to an absolute, clean, NFC, slash-separated form
// and prefixes it with name, so that the same origin always maps to the same
// manifest entry regardless of how it was spelled at registration.
func SourceKey(name, path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", errors.FileSystemError("failed to resolve source path").
			WithCause(err).
			WithContext("source", name).
			WithContext("path", path).
			Build()
	}
	abs = norm.NFC.String(filepath.Clean(abs))
	return name + ":" + filepath.ToSlash(abs), nil
}

func validateSource(s Source) error {
	switch {
	case s.Name == "":
		return errors.ValidationError("backup source name cannot be empty").Build()
	case strings.ContainsAny(s.Name, `/\:`):
		return errors.ValidationError("backup source name must not contain path separators or ':'").
			WithContext("source", s.Name).
			Build()
	case s.Path == "":
		return errors.ValidationError("backup source path cannot be empty").
			WithContext("source", s.Name).
			Build()
	case filepath.IsAbs(s.subdir()) || strings.Contains(s.subdir(), ".."):
		return errors.ValidationError("backup source subdir must stay below the backup root").
			WithContext("source", s.Name).
			WithContext("subdir", s.Subdir).
			Build()
	}
	return nil
}

// resolved is a registered source that exists on disk at run time.
type resolved struct {
	Source
	key  string
	kind Kind
}

func resolve(s Source) (*resolved, error) {
	key, err := s.Key()
	if err != nil {
		return nil, err
	}
	fi, err := os.Stat(s.Path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, errors.FileSystemError("failed to stat backup source").
			WithCause(err).
			WithContext("source", s.Name).
			WithContext("path", s.Path).
			Build()
	}
	kind := KindFile
	if fi.IsDir() {
		kind = KindDirectory
	}
	return &resolved{Source: s, key: key, kind: kind}, nil
}
