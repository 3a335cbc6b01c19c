// Copyright (C) 2026 Pantheon Ops (dev@pantheon-ops.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package report

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pantheon-ops/sentinel/pkg/logging"
)

// clearGitHubEnv blanks every GitHub Actions variable the package reads
// so tests are stable whether or not they run inside Actions.
func clearGitHubEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"GITHUB_RUN_ID", "GITHUB_RUN_NUMBER", "GITHUB_WORKFLOW",
		"GITHUB_JOB", "GITHUB_REF", "GITHUB_SHA", "GITHUB_REPOSITORY",
		"GITHUB_OUTPUT", "GITHUB_STEP_SUMMARY",
	} {
		t.Setenv(key, "")
	}
}

// -----------------------------------------------------------------------------
// CI Metadata Tests
// -----------------------------------------------------------------------------

func TestGatherCIMetadata(t *testing.T) {
	clearGitHubEnv(t)
	t.Setenv("GITHUB_RUN_ID", "4242")
	t.Setenv("GITHUB_WORKFLOW", "nightly-audit")

	metadata := GatherCIMetadata()

	assert.Equal(t, map[string]string{
		"github_run_id":   "4242",
		"github_workflow": "nightly-audit",
	}, metadata)
}

func TestGatherCIMetadata_EmptyOutsideCI(t *testing.T) {
	clearGitHubEnv(t)
	assert.Empty(t, GatherCIMetadata())
}

// -----------------------------------------------------------------------------
// GITHUB_OUTPUT Tests
// -----------------------------------------------------------------------------

func TestWriteGitHubOutputs(t *testing.T) {
	clearGitHubEnv(t)
	outputPath := filepath.Join(t.TempDir(), "github_output")
	t.Setenv("GITHUB_OUTPUT", outputPath)

	payload := BuildPayload(successResult())
	require.NoError(t, WriteGitHubOutputs(quietTestLogger(), payload))

	data, err := os.ReadFile(outputPath)
	require.NoError(t, err)
	out := string(data)

	assert.Contains(t, out, "pantheon_changed=true\n")
	assert.Contains(t, out, "pantheon_missing=false\n")
	assert.Contains(t, out, "pantheon_snapshot_path=/base/state/patch_snapshots/20231114-221320\n")
	assert.Contains(t, out, "pantheon_base_dir=/base\n")
	assert.Contains(t, out, "pantheon_history_limit=20\n")
	assert.Contains(t, out, "pantheon_run_id=7\n")
	assert.Contains(t, out, "pantheon_next_run_id=8\n")
	assert.Contains(t, out, "pantheon_run_timestamp=1700000000\n")
	assert.Contains(t, out, "pantheon_run_iso=2023-11-14T22:13:20\n")
	assert.Contains(t, out, "pantheon_run_duration_seconds=1.5\n")
	assert.Contains(t, out, "pantheon_log_level=INFO\n")
	assert.Contains(t, out, "pantheon_loop_enabled=false\n")
	assert.Contains(t, out, "pantheon_loop_interval_seconds=300\n")
	assert.Contains(t, out, "pantheon_loop_max_iterations=\n")
	assert.Contains(t, out, "pantheon_agent_version=0.1.0\n")
	assert.Contains(t, out, "pantheon_go_version=go1.24.1\n")
	assert.Contains(t, out, "pantheon_platform=linux/amd64\n")

	assert.Contains(t, out,
		"pantheon_changed_files<<PANTHEONEOF\n[\"Patches 1-25 – Pantheon of Oracles GPT.JSON\"]\nPANTHEONEOF\n")
	assert.Contains(t, out, "pantheon_missing_files<<PANTHEONEOF\n[]\nPANTHEONEOF\n")
	assert.Contains(t, out, "pantheon_change_summary<<PANTHEONEOF\n{\"modified\":1}\nPANTHEONEOF\n")
	assert.Contains(t, out, "pantheon_status_payload<<PANTHEONEOF\n{\"run_id\":7,")
}

func TestWriteGitHubOutputs_Appends(t *testing.T) {
	clearGitHubEnv(t)
	outputPath := filepath.Join(t.TempDir(), "github_output")
	require.NoError(t, os.WriteFile(outputPath, []byte("existing=1\n"), 0644))
	t.Setenv("GITHUB_OUTPUT", outputPath)

	require.NoError(t, WriteGitHubOutputs(quietTestLogger(), BuildPayload(successResult())))

	data, err := os.ReadFile(outputPath)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(data), "existing=1\npantheon_changed="))
}

func TestWriteGitHubOutputs_SkipsWhenUnset(t *testing.T) {
	clearGitHubEnv(t)
	assert.NoError(t, WriteGitHubOutputs(quietTestLogger(), BuildPayload(successResult())))
}

// -----------------------------------------------------------------------------
// GITHUB_STEP_SUMMARY Tests
// -----------------------------------------------------------------------------

func TestWriteGitHubSummary(t *testing.T) {
	clearGitHubEnv(t)
	summaryPath := filepath.Join(t.TempDir(), "step_summary")
	t.Setenv("GITHUB_STEP_SUMMARY", summaryPath)

	require.NoError(t, WriteGitHubSummary(quietTestLogger(), successResult()))

	data, err := os.ReadFile(summaryPath)
	require.NoError(t, err)
	out := string(data)

	// Same head as the report but titled without "Report" and with a
	// change summary instead of the pruned snapshot listing.
	assert.True(t, strings.HasPrefix(out, "# Pantheon Persistent Agent\n"))
	assert.Contains(t, out, "\n### Change summary\n\n- modified: 1")
	assert.Contains(t, out, "| Patches 1-25 – Pantheon of Oracles GPT.JSON | modified | `aaa111` | `bbb222` |")
	assert.NotContains(t, out, "## Pruned snapshots")
	assert.Contains(t, out, "\nSnapshot directory: /base/state/patch_snapshots/20231114-221320\n")
	assert.Contains(t, out, "| Patch file | SHA-256 |")
	assert.True(t, strings.HasSuffix(out, "\n"))
}

func TestWriteGitHubSummary_NoChanges(t *testing.T) {
	clearGitHubEnv(t)
	summaryPath := filepath.Join(t.TempDir(), "step_summary")
	t.Setenv("GITHUB_STEP_SUMMARY", summaryPath)

	res := successResult()
	res.ChangedFiles = nil
	res.ChangeDetails = nil
	res.ChangeSummary = nil
	res.SnapshotPath = ""

	require.NoError(t, WriteGitHubSummary(quietTestLogger(), res))

	data, err := os.ReadFile(summaryPath)
	require.NoError(t, err)
	out := string(data)

	assert.Contains(t, out, "\n## Detected changes\n- None\n")
	assert.NotContains(t, out, "### Change summary")
	assert.Contains(t, out, "\nSnapshot directory: None\n")
	assert.NotContains(t, out, "(no changes detected)")
}

func TestWriteGitHubSummary_AppendsAcrossSteps(t *testing.T) {
	clearGitHubEnv(t)
	summaryPath := filepath.Join(t.TempDir(), "step_summary")
	t.Setenv("GITHUB_STEP_SUMMARY", summaryPath)

	require.NoError(t, WriteGitHubSummary(quietTestLogger(), successResult()))
	require.NoError(t, WriteGitHubSummary(quietTestLogger(), successResult()))

	data, err := os.ReadFile(summaryPath)
	require.NoError(t, err)
	assert.Equal(t, 2, strings.Count(string(data), "# Pantheon Persistent Agent\n"))
}

func TestWriteGitHubSummary_SkipsWhenUnset(t *testing.T) {
	clearGitHubEnv(t)
	assert.NoError(t, WriteGitHubSummary(quietTestLogger(), successResult()))
}

func quietTestLogger() *logging.Logger {
	return logging.New(logging.Config{Quiet: true})
}
