// Copyright (C) 2026 Pantheon Ops (dev@pantheon-ops.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

//go:build unix

package lock

import (
	"os"
	"syscall"
)

// unixFileLocker implements FileLocker using flock(2).
//
// # Description
//
// Advisory locks scoped to the open file description: they are inherited
// across fork and released when the last descriptor closes or the process
// exits, so a crashed holder never wedges the state file.
//
// # Thread Safety
//
// Safe for concurrent use on different files.
type unixFileLocker struct{}

// Lock acquires an exclusive lock with LOCK_EX|LOCK_NB.
//
// # Outputs
//
//   - error: nil on success, ErrFileLocked when another process holds it.
func (l *unixFileLocker) Lock(f *os.File) error {
	err := syscall.Flock(int(f.Fd()), syscall.LOCK_EX|syscall.LOCK_NB)
	if err != nil {
		if err == syscall.EWOULDBLOCK {
			return ErrFileLocked
		}
		return err
	}
	return nil
}

// Unlock releases the lock with LOCK_UN. Safe on an unlocked file.
func (l *unixFileLocker) Unlock(f *os.File) error {
	return syscall.Flock(int(f.Fd()), syscall.LOCK_UN)
}

// isProcessAlive checks process existence with kill -0.
//
// Signal 0 performs the permission and existence checks without
// delivering anything. A dead or unreachable process reports false.
func isProcessAlive(pid int) bool {
	process, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	err = process.Signal(syscall.Signal(0))
	return err == nil
}

// newPlatformLocker returns the flock-based locker.
func newPlatformLocker() FileLocker {
	return &unixFileLocker{}
}
