// Package state implements the atomic commit protocol for whole-file state
// documents.
//
// WriteFileAtomic is the primitive: same-directory temp file, fsync, rename.
// Writer wraps it in the named resource lock so that concurrent writers from
// any process are serialized, and Update extends that to read-modify-write.
// Document adds typed JSON encoding and a read cache; Watcher keeps those
// caches honest when other processes commit.
//
// Readers never lock. Rename is indivisible, so a reader sees either the old
// or the new document.
package state
