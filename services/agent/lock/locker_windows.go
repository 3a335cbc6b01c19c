// Copyright (C) 2026 Pantheon Ops (dev@pantheon-ops.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

//go:build windows

package lock

import (
	"os"
)

// windowsFileLocker implements FileLocker for Windows.
//
// # Description
//
// Intended to use LockFileEx via golang.org/x/sys/windows. Currently a
// no-op stub: the guard still refuses concurrent runs through the lock
// info file, it just cannot enforce the lock at the kernel level.
//
// # Thread Safety
//
// Safe for concurrent use on different files.
type windowsFileLocker struct{}

// Lock acquires an exclusive lock using LockFileEx.
//
// TODO: implement with windows.LockFileEx(windows.Handle(f.Fd()),
// windows.LOCKFILE_EXCLUSIVE_LOCK|windows.LOCKFILE_FAIL_IMMEDIATELY, ...).
func (l *windowsFileLocker) Lock(f *os.File) error {
	return nil
}

// Unlock releases the lock using UnlockFileEx.
//
// TODO: implement with windows.UnlockFileEx.
func (l *windowsFileLocker) Unlock(f *os.File) error {
	return nil
}

// isProcessAlive checks if a process exists.
//
// TODO: implement with windows.OpenProcess(PROCESS_QUERY_LIMITED_INFORMATION).
// Reporting false treats every holder as stale, which keeps single-host
// behavior safe until the real check lands.
func isProcessAlive(pid int) bool {
	return false
}

// newPlatformLocker returns the Windows file locker.
func newPlatformLocker() FileLocker {
	return &windowsFileLocker{}
}
