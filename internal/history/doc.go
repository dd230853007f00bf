// Package history keeps a bounded audit trail of state changes.
//
// Every Record call takes the "history" resource lock, appends the entry,
// orders the log newest first and truncates it to the configured cap before
// the file is atomically rewritten. Environment changes whose variable names
// look secret are masked before they are serialized, so raw credentials never
// reach the history file.
package history
