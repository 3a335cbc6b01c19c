// Copyright (C) 2026 Pantheon Ops (dev@pantheon-ops.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package snapshot archives the current bytes of changed patch files into
// timestamped directories and prunes the archive down to a retention window.
// Snapshots are the agent's audit trail: downstream automation can diff any
// two of them without relying on git history or a single CI run's artifacts.
package snapshot

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/pantheon-ops/sentinel/pkg/logging"
)

// DirTimestampFormat names snapshot directories so lexical order equals
// chronological order.
const DirTimestampFormat = "20060102-150405"

// Archiver writes and prunes snapshot directories under one root.
type Archiver struct {
	root      string
	retention int
	enabled   bool
	logger    *logging.Logger
	now       func() time.Time
}

// Option configures an Archiver.
type Option func(*Archiver)

// WithClock overrides the time source, mainly for tests.
func WithClock(now func() time.Time) Option {
	return func(a *Archiver) {
		a.now = now
	}
}

// NewArchiver creates an archiver rooted at root. Retention <= 0 disables
// pruning; enabled false disables snapshot creation but pruning still runs
// so a lowered retention takes effect on idle runs.
func NewArchiver(root string, retention int, enabled bool, logger *logging.Logger, opts ...Option) *Archiver {
	if logger == nil {
		logger = logging.Default()
	}
	a := &Archiver{
		root:      root,
		retention: retention,
		enabled:   enabled,
		logger:    logger,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Root returns the snapshot root directory.
func (a *Archiver) Root() string {
	return a.root
}

// Archive snapshots the changed files and prunes old snapshots.
//
// Description:
//
//	When disabled or when nothing changed, only pruning runs and no new
//	directory is created. Otherwise a directory named by the current
//	timestamp is created and each changed file's bytes are copied into it
//	under the file's logical name. A file that vanished between detection
//	and copy is skipped silently; archiving must never fail a run over a
//	race the next run will classify anyway.
//
// Inputs:
//
//	paths - Logical name -> resolved path for the tracked set.
//	changed - Names to archive, in run order.
//
// Outputs:
//
//	string - Path of the created snapshot directory, or "" if none.
//	[]string - Pruned snapshot directories, oldest first. Never nil.
//	error - Non-nil for I/O failures other than source disappearance.
func (a *Archiver) Archive(paths map[string]string, changed []string) (string, []string, error) {
	if !a.enabled {
		a.logger.Info("snapshotting disabled; skipping snapshot creation")
		pruned := a.Prune()
		if len(pruned) > 0 {
			a.logger.Info("pruned snapshots despite snapshotting being disabled", "count", len(pruned))
		}
		return "", pruned, nil
	}

	if len(changed) == 0 {
		pruned := a.Prune()
		if len(pruned) > 0 {
			a.logger.Info("pruned snapshots during idle run", "count", len(pruned))
		}
		return "", pruned, nil
	}

	destination := filepath.Join(a.root, a.now().Format(DirTimestampFormat))
	if err := os.MkdirAll(destination, 0755); err != nil {
		return "", []string{}, fmt.Errorf("create snapshot directory: %w", err)
	}

	for _, name := range changed {
		source, ok := paths[name]
		if !ok {
			continue
		}
		if err := a.copyInto(destination, name, source); err != nil {
			return "", []string{}, err
		}
	}

	pruned := a.Prune()
	if len(pruned) > 0 {
		a.logger.Info("pruned old snapshots", "count", len(pruned), "created", destination)
	}

	return destination, pruned, nil
}

// Prune deletes snapshot directories beyond the retention window and
// returns the removed paths, oldest first. Retention <= 0 keeps everything.
func (a *Archiver) Prune() []string {
	removed := []string{}
	if a.retention <= 0 {
		return removed
	}

	snapshots, err := a.List()
	if err != nil || len(snapshots) <= a.retention {
		return removed
	}

	for _, name := range snapshots[:len(snapshots)-a.retention] {
		path := filepath.Join(a.root, name)
		// Mirror of the write path: removal failures are not worth failing
		// a run; the next prune retries.
		if err := os.RemoveAll(path); err != nil {
			a.logger.Warn("failed to prune snapshot", "path", path, "error", err)
			continue
		}
		removed = append(removed, path)
	}
	return removed
}

// List returns the snapshot directory names sorted ascending (oldest first).
// A missing root yields an empty list.
func (a *Archiver) List() ([]string, error) {
	entries, err := os.ReadDir(a.root)
	if errors.Is(err, fs.ErrNotExist) {
		return []string{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read snapshot root: %w", err)
	}

	names := []string{}
	for _, entry := range entries {
		if entry.IsDir() {
			names = append(names, entry.Name())
		}
	}
	sort.Strings(names)
	return names, nil
}

// Latest returns up to n newest snapshot directory names, newest first.
func (a *Archiver) Latest(n int) ([]string, error) {
	names, err := a.List()
	if err != nil {
		return nil, err
	}
	if n > len(names) {
		n = len(names)
	}
	latest := make([]string, 0, n)
	for i := len(names) - 1; i >= len(names)-n; i-- {
		latest = append(latest, names[i])
	}
	return latest, nil
}

// copyInto copies source into dir under the logical name, carrying the
// source's mode and mtime so a snapshot copy stats like the file it
// captured. Logical names may carry path separators, so parent
// directories are created as needed. A source that no longer exists is
// skipped silently.
func (a *Archiver) copyInto(dir, name, source string) error {
	in, err := os.Open(source)
	if errors.Is(err, fs.ErrNotExist) {
		a.logger.Warn("changed file vanished before snapshot copy", "name", name, "path", source)
		return nil
	}
	if err != nil {
		return fmt.Errorf("open %s: %w", source, err)
	}
	defer in.Close()

	info, err := in.Stat()
	if err != nil {
		return fmt.Errorf("stat %s: %w", source, err)
	}

	dest := filepath.Join(dir, name)
	if err := os.MkdirAll(filepath.Dir(dest), 0755); err != nil {
		return fmt.Errorf("create snapshot subdirectory: %w", err)
	}

	out, err := os.OpenFile(dest, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, info.Mode().Perm())
	if err != nil {
		return fmt.Errorf("create %s: %w", dest, err)
	}

	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return fmt.Errorf("copy %s: %w", name, err)
	}
	if err := out.Close(); err != nil {
		return fmt.Errorf("close %s: %w", dest, err)
	}
	if err := os.Chtimes(dest, time.Time{}, info.ModTime()); err != nil {
		return fmt.Errorf("set %s mtime: %w", dest, err)
	}
	return nil
}
