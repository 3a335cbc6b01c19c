// Copyright (C) 2026 Pantheon Ops (dev@pantheon-ops.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package lock

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/pantheon-ops/sentinel/pkg/logging"
)

// DefaultTTL bounds how long a lock is honored after its holder stops
// refreshing it. A run takes seconds, so an expiry this far out only
// matters when the holder died without releasing.
const DefaultTTL = 15 * time.Minute

// Info describes the current holder of the state lock.
//
// # Description
//
// Serialized as JSON into the .lock file next to the state file so
// operators and competing processes can see who holds the lock and
// since when.
type Info struct {
	Path      string    `json:"path"`
	PID       int       `json:"pid"`
	Hostname  string    `json:"hostname"`
	SessionID string    `json:"session_id"`
	LockedAt  time.Time `json:"locked_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// IsExpired reports whether the lock has passed its TTL.
func (i *Info) IsExpired() bool {
	return time.Now().After(i.ExpiresAt)
}

// Guard serializes access to the agent state file across processes.
//
// # Description
//
// Holds an exclusive advisory lock on a sidecar file
// ("<state path>.lock") with:
// - Non-blocking acquisition via flock(2) on Unix
// - A JSON lock info file for visibility and stale detection
// - Stale lock cleanup via PID liveness checks and TTL expiration
//
// The lock is advisory: it only excludes other processes that also use
// the guard, which is exactly the concurrent-agent case it exists for.
//
// # Thread Safety
//
// All methods are safe for concurrent use from multiple goroutines,
// although a guard is normally driven by a single run loop.
type Guard struct {
	mu      sync.Mutex
	path    string
	target  string
	ttl     time.Duration
	session string
	locker  FileLocker
	logger  *logging.Logger
	file    *os.File
	info    *Info
}

// Option customizes a Guard.
type Option func(*Guard)

// WithTTL overrides the staleness TTL written into the lock info.
func WithTTL(d time.Duration) Option {
	return func(g *Guard) {
		if d > 0 {
			g.ttl = d
		}
	}
}

// WithSessionID pins the session identifier recorded in the lock info.
// A random UUID is generated when not supplied.
func WithSessionID(id string) Option {
	return func(g *Guard) {
		g.session = id
	}
}

// NewGuard creates a guard for the state file at statePath.
//
// # Description
//
// The guard locks a sidecar file at statePath + ".lock" rather than the
// state file itself, so acquisition works before the state file exists
// and never interferes with the atomic rename that replaces it.
//
// # Inputs
//
//   - statePath: Path of the state file to guard.
//   - logger: Structured logger. Nil falls back to the process default.
//   - opts: Optional TTL and session overrides.
//
// # Outputs
//
//   - *Guard: Guard in the released state.
func NewGuard(statePath string, logger *logging.Logger, opts ...Option) *Guard {
	if logger == nil {
		logger = logging.Default()
	}
	g := &Guard{
		path:   statePath + ".lock",
		target: statePath,
		ttl:    DefaultTTL,
		locker: newFileLocker(),
		logger: logger,
	}
	for _, opt := range opts {
		opt(g)
	}
	if g.session == "" {
		g.session = uuid.NewString()
	}
	return g
}

// Path returns the sidecar lock file path.
func (g *Guard) Path() string {
	return g.path
}

// Held reports whether this guard currently holds the lock.
func (g *Guard) Held() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.file != nil
}

// Acquire takes the exclusive state lock.
//
// # Description
//
// Non-blocking. A live holder produces a ConflictError wrapping
// ErrFileLocked; a stale holder (expired TTL or dead PID) is removed and
// the lock taken over. Acquiring a lock this guard already holds is a
// no-op.
//
// # Outputs
//
//   - error: nil on success, ConflictError when another process holds
//     the lock, other errors on filesystem failure.
func (g *Guard) Acquire() error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.file != nil {
		return nil
	}

	if dir := filepath.Dir(g.path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("creating lock directory %s: %w", dir, err)
		}
	}

	if holder, err := readInfo(g.path); err == nil && holder != nil {
		if !holder.IsExpired() && IsProcessAlive(holder.PID) {
			return &ConflictError{Path: g.target, Holder: holder, Err: ErrFileLocked}
		}
		g.logger.Warn("removing stale state lock",
			"path", g.path,
			"old_pid", holder.PID,
			"expired", holder.IsExpired())
		_ = os.Remove(g.path)
	}

	f, err := os.OpenFile(g.path, os.O_RDWR|os.O_CREATE, 0644)
	if err != nil {
		return fmt.Errorf("opening lock file %s: %w", g.path, err)
	}

	if err := g.locker.Lock(f); err != nil {
		f.Close()
		if errors.Is(err, ErrFileLocked) {
			holder, _ := readInfo(g.path)
			return &ConflictError{Path: g.target, Holder: holder, Err: ErrFileLocked}
		}
		return fmt.Errorf("locking %s: %w", g.path, err)
	}

	now := time.Now().UTC()
	info := &Info{
		Path:      g.target,
		PID:       os.Getpid(),
		Hostname:  hostname(),
		SessionID: g.session,
		LockedAt:  now,
		ExpiresAt: now.Add(g.ttl),
	}
	if err := writeInfo(f, info); err != nil {
		_ = g.locker.Unlock(f)
		f.Close()
		return fmt.Errorf("writing lock info to %s: %w", g.path, err)
	}

	g.file = f
	g.info = info
	g.logger.Debug("state lock acquired",
		"path", g.path,
		"session_id", g.session)
	return nil
}

// Refresh extends the lock TTL from now.
//
// Long-lived holders (the continuous loop, a slow snapshot sweep) call
// this between iterations so a healthy process never looks stale.
// Returns ErrLockNotHeld when this guard does not hold the lock.
func (g *Guard) Refresh() error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.file == nil || g.info == nil {
		return ErrLockNotHeld
	}
	g.info.ExpiresAt = time.Now().UTC().Add(g.ttl)
	if err := writeInfo(g.file, g.info); err != nil {
		return fmt.Errorf("refreshing lock info %s: %w", g.path, err)
	}
	return nil
}

// Release drops the state lock and removes the sidecar file.
//
// # Description
//
// Releasing a guard that holds no lock is a no-op. The first failure is
// returned but cleanup continues, so a remove error never leaks an open
// descriptor.
func (g *Guard) Release() error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.file == nil {
		return nil
	}

	var first error
	if err := g.locker.Unlock(g.file); err != nil {
		first = err
	}
	if err := g.file.Close(); err != nil && first == nil {
		first = err
	}
	g.file = nil
	g.info = nil
	if err := os.Remove(g.path); err != nil && !errors.Is(err, fs.ErrNotExist) && first == nil {
		first = err
	}

	g.logger.Debug("state lock released", "path", g.path)
	return first
}

// Holder returns the lock info currently on disk.
//
// Returns (nil, nil) when no lock file exists. The info may belong to
// this process when called between Acquire and Release.
func (g *Guard) Holder() (*Info, error) {
	info, err := readInfo(g.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	return info, err
}

func readInfo(path string) (*Info, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var info Info
	if err := json.Unmarshal(data, &info); err != nil {
		return nil, fmt.Errorf("decoding lock info %s: %w", path, err)
	}
	return &info, nil
}

func writeInfo(f *os.File, info *Info) error {
	data, err := json.MarshalIndent(info, "", "  ")
	if err != nil {
		return err
	}
	if err := f.Truncate(0); err != nil {
		return err
	}
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return err
	}
	if _, err := f.Write(data); err != nil {
		return err
	}
	return f.Sync()
}

func hostname() string {
	h, err := os.Hostname()
	if err != nil {
		return "unknown"
	}
	return h
}
