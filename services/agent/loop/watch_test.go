// Copyright (C) 2026 Pantheon Ops (dev@pantheon-ops.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package loop

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// watchDir returns a temp directory with symlinks resolved, so fsnotify
// event paths compare equal to the tracked paths.
func watchDir(t *testing.T) string {
	t.Helper()
	dir, err := filepath.EvalSymlinks(t.TempDir())
	require.NoError(t, err)
	return dir
}

func writeTracked(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

// -----------------------------------------------------------------------------
// Watcher Tests
// -----------------------------------------------------------------------------

func TestWatcher_WakesOnTrackedFileChange(t *testing.T) {
	dir := watchDir(t)
	path := writeTracked(t, dir, "alpha.json", `{"v":1}`)
	cfg := testConfig(t, dir, "alpha.json")
	cfg.Interval = time.Hour

	w, err := newWatcher(cfg, quietLogger())
	require.NoError(t, err)
	defer w.close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go w.run(ctx)

	require.NoError(t, os.WriteFile(path, []byte(`{"v":2}`), 0644))

	select {
	case <-w.wakeup():
	case <-time.After(5 * time.Second):
		t.Fatal("tracked file change produced no wakeup")
	}

	t.Run("further events are rate limited", func(t *testing.T) {
		require.NoError(t, os.WriteFile(path, []byte(`{"v":3}`), 0644))
		select {
		case <-w.wakeup():
			t.Fatal("wakeup arrived inside the rate limit window")
		case <-time.After(200 * time.Millisecond):
		}
	})
}

func TestWatcher_IgnoresUntrackedSiblings(t *testing.T) {
	dir := watchDir(t)
	writeTracked(t, dir, "alpha.json", `{"v":1}`)
	cfg := testConfig(t, dir, "alpha.json")

	w, err := newWatcher(cfg, quietLogger())
	require.NoError(t, err)
	defer w.close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go w.run(ctx)

	writeTracked(t, dir, "unrelated.txt", "noise")

	select {
	case <-w.wakeup():
		t.Fatal("untracked sibling produced a wakeup")
	case <-time.After(200 * time.Millisecond):
	}
}

func TestRunLoop_WatchTriggersEarlyRun(t *testing.T) {
	dir := watchDir(t)
	path := writeTracked(t, dir, "alpha.json", `{"v":1}`)
	cfg := testConfig(t, dir, "alpha.json")
	cfg.Interval = time.Hour
	cfg.MaxIterations = 2

	stub := newStub(cfg, stubOutcome{runID: 1})
	sched := NewScheduler(cfg, stub, quietLogger(), WithWatch(true))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() {
		done <- sched.RunLoop(ctx)
	}()

	require.Eventually(t, func() bool {
		return stub.count() >= 1
	}, 5*time.Second, 10*time.Millisecond)
	require.NoError(t, os.WriteFile(path, []byte(`{"v":2}`), 0644))

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("file change did not trigger the second iteration")
	}
	assert.Equal(t, 2, stub.count())
}
