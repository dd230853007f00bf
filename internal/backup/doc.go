// Package backup implements content-addressed incremental backups of
// registered files and directory trees, plus rotating per-file snapshots taken
// before a live file is replaced.
//
// Engine.BackupAll digests every source in parallel with BLAKE3, compares the
// digests against the persisted manifest and copies only the sources that
// changed into timestamped destinations below the backup root. The whole run
// holds the engine's own "backup" lock, so concurrent runs from any process
// are serialized. Old snapshots are never pruned by the engine.
package backup
