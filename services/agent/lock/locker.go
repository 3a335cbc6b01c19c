// Copyright (C) 2026 Pantheon Ops (dev@pantheon-ops.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package lock provides an advisory guard around the persisted agent state.
//
// Concurrent agent runs against the same state file would race each other
// between load and save, silently dropping run records. The Guard takes an
// exclusive advisory lock on a sidecar .lock file for the duration of a run
// so a second invocation fails fast instead of corrupting history.
package lock

import (
	"os"
)

// FileLocker abstracts platform-specific file locking.
//
// # Description
//
// Unix locks via flock(2), Windows via LockFileEx. Locks are non-blocking
// and released automatically when the process exits.
//
// # Thread Safety
//
// Implementations must be safe for concurrent use on different files.
// Locking the same file from multiple goroutines is undefined behavior.
type FileLocker interface {
	// Lock acquires an exclusive non-blocking lock on the file.
	// Returns ErrFileLocked when another process holds the lock.
	Lock(f *os.File) error

	// Unlock releases a previously acquired lock.
	// Safe to call on an unlocked file.
	Unlock(f *os.File) error
}

// IsProcessAlive checks whether a process with the given PID is running.
//
// # Description
//
// Used for stale lock detection. On Unix this sends signal 0 to the
// process; on Windows it queries the process handle.
//
// # Inputs
//
//   - pid: Process ID to check.
//
// # Outputs
//
//   - bool: True if the process exists and can be signalled.
func IsProcessAlive(pid int) bool {
	return isProcessAlive(pid)
}

// newFileLocker creates a platform-appropriate FileLocker.
func newFileLocker() FileLocker {
	return newPlatformLocker()
}
