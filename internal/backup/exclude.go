package backup

import "strings"

// DefaultExclusions are skipped while digesting and copying directory sources.
// A name matches when it equals a pattern or ends with it.
var DefaultExclusions = []string{
	".tmp",
	".lock",
	".bak",
	".DS_Store",
	"Thumbs.db",
	"desktop.ini",
	".git",
	".gitignore",
	".locks",
	"backups",
}

// Excluder decides which directory entries take part in a backup.
type Excluder struct {
	patterns []string
}

// NewExcluder returns the default rules extended with extra patterns.
func NewExcluder(extra ...string) *Excluder {
	patterns := append([]string(nil), DefaultExclusions...)
	for _, p := range extra {
		if p = strings.TrimSpace(p); p != "" {
			patterns = append(patterns, p)
		}
	}
	return &Excluder{patterns: patterns}
}

// Excluded reports whether the entry called name is skipped.
func (e *Excluder) Excluded(name string) bool {
	for _, p := range e.patterns {
		if name == p || strings.HasSuffix(name, p) {
			return true
		}
	}
	return false
}

// Patterns returns the active rules.
func (e *Excluder) Patterns() []string {
	return append([]string(nil), e.patterns...)
}
