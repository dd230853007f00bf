// Package errors provides the classified error primitives used across statekeep.
//
// Every failure the state-safety core can surface maps to an ErrorCategory:
//
//   - CategoryLockTimeout: a named resource lock could not be acquired in time (retryable)
//   - CategoryLockIO: the lock file could not be opened or locked (fatal for the operation)
//   - CategoryWrite: an atomic write failed; the target file is untouched (retryable)
//   - CategoryManifest: the backup manifest was unreadable or could not be persisted
//   - CategoryHistory: the audit history file was unreadable or could not be persisted
//
// Errors are built with a fluent API and carry structured context (resource name, path)
// so callers can log or report them without string parsing:
//
//	err := errors.LockTimeoutError("lock acquisition timed out").
//		WithContext("resource", name).
//		WithContext("path", lockPath).
//		WithCause(ctx.Err()).
//		Build()
package errors
