// Copyright (C) 2026 Pantheon Ops (dev@pantheon-ops.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package loop

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
	"golang.org/x/time/rate"

	"github.com/pantheon-ops/sentinel/pkg/logging"
	"github.com/pantheon-ops/sentinel/services/agent/config"
)

// wakeDivisor splits the polling interval into the shortest spacing
// between event-triggered runs.
const wakeDivisor = 4

// watcher turns filesystem events on tracked files into loop wakeups.
//
// Parent directories are watched rather than the files themselves, so
// editors that replace a file by rename still produce events. Wakeups
// are rate limited to one per quarter interval; interval polling stays
// in place for anything the watcher misses.
type watcher struct {
	fsw     *fsnotify.Watcher
	limiter *rate.Limiter
	logger  *logging.Logger
	tracked map[string]bool
	wake    chan struct{}
}

// newWatcher watches the parent directories of every tracked file.
func newWatcher(cfg *config.Config, logger *logging.Logger) (*watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create file watcher: %w", err)
	}

	w := &watcher{
		fsw:     fsw,
		limiter: rate.NewLimiter(rate.Every(cfg.Interval/wakeDivisor), 1),
		logger:  logger,
		tracked: map[string]bool{},
		wake:    make(chan struct{}, 1),
	}

	dirs := map[string]bool{}
	for _, path := range cfg.Tracked.Paths() {
		w.tracked[path] = true
		dirs[filepath.Dir(path)] = true
	}
	for dir := range dirs {
		if err := fsw.Add(dir); err != nil {
			fsw.Close()
			return nil, fmt.Errorf("watch %s: %w", dir, err)
		}
	}
	return w, nil
}

// wakeup returns the channel signalling an event-triggered run.
func (w *watcher) wakeup() <-chan struct{} {
	return w.wake
}

// run consumes filesystem events until the context ends. Events for
// untracked siblings in the watched directories are ignored.
func (w *watcher) run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if !w.tracked[event.Name] {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) &&
				!event.Has(fsnotify.Remove) && !event.Has(fsnotify.Rename) {
				continue
			}
			if !w.limiter.Allow() {
				continue
			}
			select {
			case w.wake <- struct{}{}:
				w.logger.Debug("queued run for file event",
					"path", event.Name,
					"op", event.Op.String(),
				)
			default:
				// A wakeup is already pending.
			}
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.logger.Warn("file watcher error", "error", err)
		}
	}
}

// close releases the underlying watcher. The wake channel stays open;
// the scheduler stops selecting on it once the loop exits.
func (w *watcher) close() {
	if err := w.fsw.Close(); err != nil {
		w.logger.Warn("file watcher close failed", "error", err)
	}
}
