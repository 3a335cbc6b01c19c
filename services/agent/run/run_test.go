// Copyright (C) 2026 Pantheon Ops (dev@pantheon-ops.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package run

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pantheon-ops/sentinel/pkg/logging"
	"github.com/pantheon-ops/sentinel/services/agent/config"
	"github.com/pantheon-ops/sentinel/services/agent/journal"
	"github.com/pantheon-ops/sentinel/services/agent/state"
	"github.com/pantheon-ops/sentinel/services/agent/trackedfile"
)

func quietLogger() *logging.Logger {
	return logging.New(logging.Config{Quiet: true})
}

func writePatch(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

// testConfig builds a resolved configuration rooted at dir, tracking the
// given names relative to it.
func testConfig(t *testing.T, dir string, names ...string) *config.Config {
	t.Helper()
	return &config.Config{
		BaseDir:          dir,
		Tracked:          trackedfile.Resolve(dir, trackedfile.Sources{CLI: names}),
		StatePath:        filepath.Join(dir, "state", "persistent_agent_state.json"),
		SnapshotDir:      filepath.Join(dir, "state", "patch_snapshots"),
		ReportPath:       filepath.Join(dir, "state", "persistent_agent_report.md"),
		StatusPath:       filepath.Join(dir, "state", "persistent_agent_status.json"),
		HeartbeatPath:    filepath.Join(dir, "state", "persistent_agent_heartbeat.txt"),
		LogLevel:         logging.LevelInfo,
		LogLevelName:     "INFO",
		HistoryLimit:     20,
		SnapshotsEnabled: true,
		Interval:         300 * time.Second,
		Backoff:          60 * time.Second,
	}
}

func loadState(t *testing.T, cfg *config.Config) *state.AgentState {
	t.Helper()
	st, err := state.NewStore(cfg.StatePath, quietLogger()).Load()
	require.NoError(t, err)
	return st
}

// -----------------------------------------------------------------------------
// Success Path Tests
// -----------------------------------------------------------------------------

func TestExecute_FirstRunRecordsBaseline(t *testing.T) {
	dir := t.TempDir()
	writePatch(t, dir, "alpha.json", `{"v":1}`)
	writePatch(t, dir, "beta.json", `{"v":2}`)
	cfg := testConfig(t, dir, "alpha.json", "beta.json")

	res, err := New(cfg, quietLogger()).Execute(context.Background())
	require.NoError(t, err)

	require.NotNil(t, res.RunID)
	assert.Equal(t, 1, *res.RunID)
	assert.Equal(t, 2, res.NextRunID)
	assert.Equal(t, []string{"alpha.json", "beta.json"}, res.ChangedFiles)
	assert.Equal(t, "added", res.ChangeDetails["alpha.json"].Status)
	assert.Equal(t, "added", res.ChangeDetails["beta.json"].Status)
	assert.Equal(t, map[string]int{"added": 2}, res.ChangeSummary)
	assert.Empty(t, res.MissingFiles)
	assert.Len(t, res.Digests, 2)
	require.NotNil(t, res.Duration)
	assert.GreaterOrEqual(t, *res.Duration, 0.0)
	assert.Nil(t, res.Error)

	t.Run("state persisted", func(t *testing.T) {
		st := loadState(t, cfg)
		assert.Len(t, st.Digests, 2)
		assert.Empty(t, st.Missing)
		assert.Equal(t, 2, st.NextRunID)
		require.Len(t, st.History, 1)
		assert.Equal(t, []string{"alpha.json", "beta.json"}, st.History[0].ChangedFiles)
	})

	t.Run("artifacts written", func(t *testing.T) {
		reportData, err := os.ReadFile(cfg.ReportPath)
		require.NoError(t, err)
		assert.Contains(t, string(reportData), "# Pantheon Persistent Agent Report")

		statusData, err := os.ReadFile(cfg.StatusPath)
		require.NoError(t, err)
		var payload map[string]any
		require.NoError(t, json.Unmarshal(statusData, &payload))
		assert.Equal(t, float64(1), payload["run_id"])
		assert.Equal(t, float64(2), payload["next_run_id"])
	})

	t.Run("snapshot captured", func(t *testing.T) {
		require.NotEmpty(t, res.SnapshotPath)
		data, err := os.ReadFile(filepath.Join(res.SnapshotPath, "alpha.json"))
		require.NoError(t, err)
		assert.Equal(t, `{"v":1}`, string(data))
	})
}

func TestExecute_IdleRunEmitsNoChanges(t *testing.T) {
	dir := t.TempDir()
	writePatch(t, dir, "alpha.json", `{"v":1}`)
	cfg := testConfig(t, dir, "alpha.json")
	orch := New(cfg, quietLogger())

	first, err := orch.Execute(context.Background())
	require.NoError(t, err)

	second, err := orch.Execute(context.Background())
	require.NoError(t, err)

	assert.Empty(t, second.ChangedFiles)
	assert.Empty(t, second.ChangeDetails)
	assert.Empty(t, second.ChangeSummary)
	assert.Empty(t, second.SnapshotPath, "idle runs never create snapshots")
	assert.Equal(t, first.Digests, second.Digests)
	require.NotNil(t, second.RunID)
	assert.Equal(t, 2, *second.RunID)

	st := loadState(t, cfg)
	require.Len(t, st.History, 2)
	assert.Empty(t, st.History[1].ChangedFiles)
}

func TestExecute_ChangeLifecycle(t *testing.T) {
	dir := t.TempDir()
	writePatch(t, dir, "alpha.json", `{"v":1}`)
	writePatch(t, dir, "beta.json", `{"v":1}`)
	cfg := testConfig(t, dir, "alpha.json", "beta.json")
	orch := New(cfg, quietLogger())

	baseline, err := orch.Execute(context.Background())
	require.NoError(t, err)
	previousAlpha := baseline.Digests["alpha.json"]

	t.Run("modification detected with digest transition", func(t *testing.T) {
		writePatch(t, dir, "alpha.json", `{"v":2}`)

		res, err := orch.Execute(context.Background())
		require.NoError(t, err)

		assert.Equal(t, []string{"alpha.json"}, res.ChangedFiles)
		detail := res.ChangeDetails["alpha.json"]
		assert.Equal(t, "modified", detail.Status)
		require.NotNil(t, detail.PreviousDigest)
		require.NotNil(t, detail.CurrentDigest)
		assert.Equal(t, previousAlpha, *detail.PreviousDigest)
		assert.NotEqual(t, *detail.PreviousDigest, *detail.CurrentDigest)

		data, err := os.ReadFile(filepath.Join(res.SnapshotPath, "alpha.json"))
		require.NoError(t, err)
		assert.Equal(t, `{"v":2}`, string(data))
	})

	t.Run("dropped name reported removed exactly once", func(t *testing.T) {
		narrowed := testConfig(t, dir, "alpha.json")
		narrowedOrch := New(narrowed, quietLogger())

		res, err := narrowedOrch.Execute(context.Background())
		require.NoError(t, err)

		assert.Equal(t, []string{"beta.json"}, res.ChangedFiles)
		detail := res.ChangeDetails["beta.json"]
		assert.Equal(t, "removed", detail.Status)
		require.NotNil(t, detail.PreviousDigest)
		assert.Nil(t, detail.CurrentDigest)

		st := loadState(t, narrowed)
		assert.NotContains(t, st.Digests, "beta.json",
			"the digest map is replaced by the current run's view")
		assert.Contains(t, st.Digests, "alpha.json")

		// A second run with the same narrowed set stays quiet; the removal
		// was a one-time transition.
		again, err := narrowedOrch.Execute(context.Background())
		require.NoError(t, err)
		assert.Empty(t, again.ChangedFiles)
	})
}

func TestExecute_MissingLifecycle(t *testing.T) {
	dir := t.TempDir()
	writePatch(t, dir, "alpha.json", `{"v":1}`)
	betaPath := writePatch(t, dir, "beta.json", `{"v":1}`)
	cfg := testConfig(t, dir, "alpha.json", "beta.json")
	orch := New(cfg, quietLogger())

	_, err := orch.Execute(context.Background())
	require.NoError(t, err)

	t.Run("disappearance reported once", func(t *testing.T) {
		require.NoError(t, os.Remove(betaPath))

		res, err := orch.Execute(context.Background())
		require.NoError(t, err)

		assert.Equal(t, []string{"beta.json"}, res.MissingFiles)
		assert.Equal(t, []string{"beta.json"}, res.ChangedFiles)
		assert.Equal(t, "missing", res.ChangeDetails["beta.json"].Status)

		st := loadState(t, cfg)
		assert.Equal(t, []string{"beta.json"}, st.Missing)
		assert.NotContains(t, st.Digests, "beta.json")
	})

	t.Run("still absent stays quiet", func(t *testing.T) {
		res, err := orch.Execute(context.Background())
		require.NoError(t, err)

		assert.Empty(t, res.ChangedFiles, "an already-known absence is not re-reported")
		assert.Equal(t, []string{"beta.json"}, res.MissingFiles)
	})

	t.Run("return reported as added", func(t *testing.T) {
		writePatch(t, dir, "beta.json", `{"v":2}`)

		res, err := orch.Execute(context.Background())
		require.NoError(t, err)

		assert.Equal(t, []string{"beta.json"}, res.ChangedFiles)
		assert.Equal(t, "added", res.ChangeDetails["beta.json"].Status)
		assert.Empty(t, res.MissingFiles)

		st := loadState(t, cfg)
		assert.Empty(t, st.Missing)
		assert.Contains(t, st.Digests, "beta.json")
	})
}

// -----------------------------------------------------------------------------
// Failure Path Tests
// -----------------------------------------------------------------------------

func TestExecute_FailureRecordsExactlyOneRun(t *testing.T) {
	dir := t.TempDir()
	// A directory as the tracked path makes the digest pass fail with a
	// genuine I/O error rather than a missing-file classification.
	require.NoError(t, os.Mkdir(filepath.Join(dir, "broken.json"), 0755))
	cfg := testConfig(t, dir, "broken.json")

	res, err := New(cfg, quietLogger()).Execute(context.Background())
	require.Error(t, err)
	require.NotNil(t, res)

	require.NotNil(t, res.Error)
	assert.Equal(t, err.Error(), *res.Error)
	require.NotNil(t, res.RunID)
	assert.Equal(t, 1, *res.RunID)
	assert.Equal(t, 2, res.NextRunID)
	assert.Empty(t, res.ChangedFiles)
	assert.Empty(t, res.MissingFiles)
	assert.Empty(t, res.Digests)
	assert.Nil(t, res.Duration)

	st := loadState(t, cfg)
	require.Len(t, st.History, 1)
	rec := st.History[0]
	require.NotNil(t, rec.Error)
	assert.Equal(t, err.Error(), *rec.Error)
	assert.Nil(t, rec.DurationSeconds)
	assert.Empty(t, rec.ChangedFiles)
	assert.Empty(t, st.Digests)

	// Report and status stay with the scheduler's failure sinks; the
	// orchestrator writes success artifacts only.
	_, statErr := os.Stat(cfg.ReportPath)
	assert.True(t, os.IsNotExist(statErr))
	_, statErr = os.Stat(cfg.StatusPath)
	assert.True(t, os.IsNotExist(statErr))
}

func TestExecute_FailureNeverMasksTheNextChange(t *testing.T) {
	dir := t.TempDir()
	alphaPath := writePatch(t, dir, "alpha.json", `{"v":1}`)
	cfg := testConfig(t, dir, "alpha.json")
	orch := New(cfg, quietLogger())

	baseline, err := orch.Execute(context.Background())
	require.NoError(t, err)

	// Swap the file for a directory so the next attempt fails mid-hash.
	require.NoError(t, os.Remove(alphaPath))
	require.NoError(t, os.Mkdir(alphaPath, 0755))

	_, err = orch.Execute(context.Background())
	require.Error(t, err)

	st := loadState(t, cfg)
	assert.Equal(t, baseline.Digests, st.Digests, "digests never advance on failure")

	// Restore with different content: the change the failed run sat on
	// must surface now.
	require.NoError(t, os.RemoveAll(alphaPath))
	writePatch(t, dir, "alpha.json", `{"v":2}`)

	res, err := orch.Execute(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"alpha.json"}, res.ChangedFiles)
	assert.Equal(t, "modified", res.ChangeDetails["alpha.json"].Status)

	st = loadState(t, cfg)
	require.Len(t, st.History, 3)
	assert.NotNil(t, st.History[1].Error)
	assert.Nil(t, st.History[2].Error)
}

// -----------------------------------------------------------------------------
// History and Journal Tests
// -----------------------------------------------------------------------------

func TestExecute_HistoryLimitTruncatesPersistedRuns(t *testing.T) {
	dir := t.TempDir()
	writePatch(t, dir, "alpha.json", `{"v":1}`)
	cfg := testConfig(t, dir, "alpha.json")
	cfg.HistoryLimit = 2
	orch := New(cfg, quietLogger())

	for i := 0; i < 3; i++ {
		_, err := orch.Execute(context.Background())
		require.NoError(t, err)
	}

	st := loadState(t, cfg)
	require.Len(t, st.History, 2)
	assert.Equal(t, 2, st.History[0].RunID)
	assert.Equal(t, 3, st.History[1].RunID)
	assert.Equal(t, 4, st.NextRunID)
}

func TestExecute_JournalMirrorsEveryAttempt(t *testing.T) {
	dir := t.TempDir()
	alphaPath := writePatch(t, dir, "alpha.json", `{"v":1}`)
	cfg := testConfig(t, dir, "alpha.json")

	jr, err := journal.Open(journal.Config{AgentID: "test", InMemory: true, Logger: quietLogger()})
	require.NoError(t, err)
	defer jr.Close()

	orch := New(cfg, quietLogger(), WithJournal(jr))

	_, err = orch.Execute(context.Background())
	require.NoError(t, err)

	require.NoError(t, os.Remove(alphaPath))
	require.NoError(t, os.Mkdir(alphaPath, 0755))
	_, err = orch.Execute(context.Background())
	require.Error(t, err)

	records, err := jr.Recent(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, 1, records[0].RunID)
	assert.Nil(t, records[0].Error)
	assert.Equal(t, 2, records[1].RunID)
	require.NotNil(t, records[1].Error)
}

// -----------------------------------------------------------------------------
// Result Shape Tests
// -----------------------------------------------------------------------------

func TestExecute_ResultCarriesHistorySnapshot(t *testing.T) {
	dir := t.TempDir()
	writePatch(t, dir, "alpha.json", `{"v":1}`)
	cfg := testConfig(t, dir, "alpha.json")
	orch := New(cfg, quietLogger())

	res, err := orch.Execute(context.Background())
	require.NoError(t, err)

	require.Len(t, res.History, 1)
	assert.Equal(t, 1, res.History[0].RunID)
	assert.Equal(t, res.Timestamp, res.History[0].Timestamp,
		"the result timestamp is the recorded run's timestamp")

	res2, err := orch.Execute(context.Background())
	require.NoError(t, err)
	require.Len(t, res2.History, 2)
	assert.Len(t, res.History, 1, "earlier results keep their own history snapshot")
}

func TestExecute_LoopModeFlagFlowsIntoArtifacts(t *testing.T) {
	dir := t.TempDir()
	writePatch(t, dir, "alpha.json", `{"v":1}`)
	cfg := testConfig(t, dir, "alpha.json")

	res, err := New(cfg, quietLogger(), WithLoopMode(true)).Execute(context.Background())
	require.NoError(t, err)
	assert.True(t, res.LoopEnabled)

	reportData, err := os.ReadFile(cfg.ReportPath)
	require.NoError(t, err)
	assert.Contains(t, string(reportData), "- Loop mode: enabled")
}
