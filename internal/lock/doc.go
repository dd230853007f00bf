// Package lock provides named, cross-process mutual exclusion backed by OS
// advisory locks on per-resource lock files.
//
// Every mutation of shared state acquires the lock for its logical resource
// first. A Handle owns one open descriptor; closing it (Release, or process
// exit) drops the lock, so a crashed holder never blocks other processes
// beyond its own lifetime. Lock files are never deleted and are reused as
// mutex handles by later acquisitions.
//
// Goroutines of one process contend exactly like separate processes because
// each acquisition opens its own descriptor.
package lock
