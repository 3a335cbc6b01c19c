// Copyright (C) 2026 Pantheon Ops (dev@pantheon-ops.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package report

import (
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/pantheon-ops/sentinel/pkg/logging"
)

// ciEnvKeys maps GitHub Actions environment variables to the metadata
// keys published in reports and payloads.
var ciEnvKeys = map[string]string{
	"GITHUB_RUN_ID":     "github_run_id",
	"GITHUB_RUN_NUMBER": "github_run_number",
	"GITHUB_WORKFLOW":   "github_workflow",
	"GITHUB_JOB":        "github_job",
	"GITHUB_REF":        "github_ref",
	"GITHUB_SHA":        "github_sha",
	"GITHUB_REPOSITORY": "github_repository",
}

// GatherCIMetadata collects GitHub Actions context from the environment.
// Unset and empty variables are omitted, so a local run yields an empty
// map and reports render "(none detected)".
func GatherCIMetadata() map[string]string {
	metadata := map[string]string{}
	for env, key := range ciEnvKeys {
		if value := os.Getenv(env); value != "" {
			metadata[key] = value
		}
	}
	return metadata
}

// githubOutputDelimiter terminates multi-line GITHUB_OUTPUT values. It
// must never appear inside a JSON-encoded value, which cannot contain a
// bare newline.
const githubOutputDelimiter = "PANTHEONEOF"

// WriteGitHubOutputs appends the pantheon_* output variables to the file
// named by GITHUB_OUTPUT.
//
// Description:
//
//	Scalar outputs use simple key=value lines; list and object outputs
//	use heredoc blocks with JSON values, including the full status
//	payload under pantheon_status_payload. When GITHUB_OUTPUT is unset
//	the call logs and returns nil, so local runs stay quiet.
//
// Inputs:
//
//	logger - Destination for the skip notice.
//	payload - The status payload of the attempt.
//
// Outputs:
//
//	error - Encoding or filesystem failures; callers treat these as
//	        non-fatal since the run itself already completed.
func WriteGitHubOutputs(logger *logging.Logger, payload *Payload) error {
	outputPath := os.Getenv("GITHUB_OUTPUT")
	if outputPath == "" {
		logger.Info("GITHUB_OUTPUT not set; skipping output emission")
		return nil
	}

	var b strings.Builder
	writeLine := func(key, value string) {
		b.WriteString(key)
		b.WriteString("=")
		b.WriteString(value)
		b.WriteString("\n")
	}
	writeBlock := func(key string, value any) {
		fmt.Fprintf(&b, "%s<<%s\n%s\n%s\n", key, githubOutputDelimiter, jsonValue(value), githubOutputDelimiter)
	}

	writeLine("pantheon_changed", strconv.FormatBool(len(payload.ChangedFiles) > 0))
	writeLine("pantheon_missing", strconv.FormatBool(len(payload.MissingFiles) > 0))
	writeLine("pantheon_snapshot_path", stringOrEmpty(payload.SnapshotPath))
	writeLine("pantheon_base_dir", payload.Paths.BaseDir)
	writeLine("pantheon_state_path", payload.Paths.State)
	writeLine("pantheon_status_path", payload.Paths.Status)
	writeLine("pantheon_report_path", payload.Paths.Report)
	writeLine("pantheon_heartbeat_path", payload.Paths.Heartbeat)
	writeLine("pantheon_history_limit", intOrEmpty(payload.HistoryLimit))
	writeLine("pantheon_run_id", intOrEmpty(payload.RunID))
	writeLine("pantheon_next_run_id", strconv.Itoa(payload.NextRunID))
	writeLine("pantheon_run_timestamp", formatFloat(payload.RunTimestamp))
	writeLine("pantheon_run_iso", payload.RunISO)
	writeLine("pantheon_run_duration_seconds", floatOrEmpty(payload.RunDurationSeconds))
	writeLine("pantheon_log_level", payload.Logging.Level)
	writeLine("pantheon_log_level_numeric", strconv.Itoa(payload.Logging.LevelNumeric))
	writeLine("pantheon_loop_enabled", strconv.FormatBool(payload.Loop.Enabled))
	writeLine("pantheon_loop_interval_seconds", strconv.Itoa(payload.Loop.IntervalSeconds))
	writeLine("pantheon_loop_backoff_seconds", strconv.Itoa(payload.Loop.BackoffSeconds))
	writeLine("pantheon_loop_max_iterations", intOrEmpty(payload.Loop.MaxIterations))
	writeLine("pantheon_agent_version", payload.Agent.Version)
	writeLine("pantheon_go_version", payload.Agent.Go)
	writeLine("pantheon_platform", payload.Agent.Platform)

	writeBlock("pantheon_changed_files", payload.ChangedFiles)
	writeBlock("pantheon_missing_files", payload.MissingFiles)
	writeBlock("pantheon_tracked_files", payload.TrackedFiles)
	writeBlock("pantheon_change_summary", payload.ChangeSummary)
	writeBlock("pantheon_status_payload", payload)

	if err := appendFile(outputPath, b.String()); err != nil {
		return fmt.Errorf("write github outputs: %w", err)
	}
	return nil
}

// WriteGitHubSummary appends a run summary to the file named by
// GITHUB_STEP_SUMMARY.
//
// The summary shares the report's head sections but adds a change
// summary breakdown and drops the pruned snapshot listing, since the
// step summary is read for "what changed", not housekeeping.
func WriteGitHubSummary(logger *logging.Logger, res *Result) error {
	summaryPath := os.Getenv("GITHUB_STEP_SUMMARY")
	if summaryPath == "" {
		logger.Info("GITHUB_STEP_SUMMARY not set; skipping summary output")
		return nil
	}

	data := strings.Join(summaryLines(res), "\n") + "\n"
	if err := appendFile(summaryPath, data); err != nil {
		return fmt.Errorf("write github summary: %w", err)
	}
	return nil
}

// summaryLines assembles the step summary, one element per output line.
func summaryLines(res *Result) []string {
	lines := headLines(res, "# Pantheon Persistent Agent")

	if len(res.ChangeSummary) > 0 {
		lines = append(lines, "", "### Change summary", "")
		statuses := make([]string, 0, len(res.ChangeSummary))
		for status := range res.ChangeSummary {
			statuses = append(statuses, status)
		}
		sort.Strings(statuses)
		for _, status := range statuses {
			lines = append(lines, fmt.Sprintf("- %s: %d", status, res.ChangeSummary[status]))
		}
	}

	lines = append(lines, changeDetailLines(res)...)
	lines = append(lines, missingLines(res)...)
	lines = append(lines, trackedLines(res)...)

	snapshotNote := "Snapshot directory: None"
	if res.SnapshotPath != "" {
		snapshotNote = "Snapshot directory: " + res.SnapshotPath
	}
	lines = append(lines, "", snapshotNote)

	lines = append(lines, digestTableLines(res)...)
	return lines
}

// appendFile opens path in append mode and writes data in one call, the
// access pattern GITHUB_OUTPUT and GITHUB_STEP_SUMMARY require.
func appendFile(path, data string) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return err
	}
	if _, err := f.WriteString(data); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func stringOrEmpty(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
