// Copyright (C) 2026 Pantheon Ops (dev@pantheon-ops.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package lock

import (
	"errors"
	"fmt"
)

// Sentinel errors for lock operations.
var (
	// ErrFileLocked indicates the file is already locked by another process.
	ErrFileLocked = errors.New("file is locked by another process")

	// ErrLockNotHeld indicates a release on a guard that holds no lock.
	ErrLockNotHeld = errors.New("lock not held by this process")
)

// ConflictError reports a lock conflict on the agent state file.
//
// # Description
//
// Wraps ErrFileLocked with information about the current holder so the
// caller can decide whether to wait, abort, or surface the holder to the
// operator.
//
// # Fields
//
//   - Path: The guarded state file.
//   - Holder: Info about the current holder, nil when it could not be read.
//   - Err: The underlying error (typically ErrFileLocked).
type ConflictError struct {
	Path   string
	Holder *Info
	Err    error
}

// Error returns a human-readable error message.
func (e *ConflictError) Error() string {
	if e.Holder != nil {
		return fmt.Sprintf("state file %s is locked by PID %d (session %s) since %s: %v",
			e.Path, e.Holder.PID, e.Holder.SessionID,
			e.Holder.LockedAt.Format("15:04:05"), e.Err)
	}
	return fmt.Sprintf("state file %s is locked: %v", e.Path, e.Err)
}

// Unwrap returns the underlying error for errors.Is/As support.
func (e *ConflictError) Unwrap() error {
	return e.Err
}
