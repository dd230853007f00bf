package backup

import (
	"encoding/json"
	"os"
	"sort"

	"git.home.luguber.info/inful/statekeep/internal/foundation/errors"
	"git.home.luguber.info/inful/statekeep/internal/state"
)

// ManifestFile is the manifest name below the backup root.
const ManifestFile = "multi_manifest.json"

// ManifestEntry records the digest of the last successful copy of a source.
type ManifestEntry struct {
	SourceKey string `json:"source_key"`
	Digest    string `json:"digest"`
}

// Manifest is the engine's memory of what has already been backed up.
type Manifest struct {
	Entries []ManifestEntry `json:"entries"`
}

// LoadManifest reads path. A missing file yields an empty manifest and no
// error. An unreadable or corrupt file yields an empty manifest together with
// a manifest error, so callers can log it and back everything up again.
func LoadManifest(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return &Manifest{}, nil
		}
		return &Manifest{}, errors.ManifestError("failed to read manifest").
			Warning().
			WithCause(err).
			WithContext("path", path).
			Build()
	}
	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return &Manifest{}, errors.ManifestError("manifest is corrupt").
			Warning().
			WithCause(err).
			WithContext("path", path).
			Build()
	}
	return &m, nil
}

// Get returns the digest recorded for key.
func (m *Manifest) Get(key string) (string, bool) {
	for _, e := range m.Entries {
		if e.SourceKey == key {
			return e.Digest, true
		}
	}
	return "", false
}

// Set records digest for key.
func (m *Manifest) Set(key, digest string) {
	for i := range m.Entries {
		if m.Entries[i].SourceKey == key {
			m.Entries[i].Digest = digest
			return
		}
	}
	m.Entries = append(m.Entries, ManifestEntry{SourceKey: key, Digest: digest})
}

// Marshal renders the manifest with entries sorted by key, so an unchanged
// manifest always serializes to the same bytes.
func (m *Manifest) Marshal() ([]byte, error) {
	out := Manifest{Entries: append([]ManifestEntry{}, m.Entries...)}
	sort.Slice(out.Entries, func(i, j int) bool { return out.Entries[i].SourceKey < out.Entries[j].SourceKey })
	data, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return nil, errors.WrapError(err, errors.CategoryInternal, "failed to marshal manifest").Build()
	}
	return append(data, '\n'), nil
}

// Save writes the manifest atomically. The caller must hold the engine lock.
func (m *Manifest) Save(path string) error {
	data, err := m.Marshal()
	if err != nil {
		return err
	}
	if err := state.WriteFileAtomic(path, data); err != nil {
		return errors.ManifestError("failed to persist manifest").
			WithCause(err).
			WithContext("path", path).
			Build()
	}
	return nil
}
