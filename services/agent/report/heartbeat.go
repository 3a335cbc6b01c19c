// Copyright (C) 2026 Pantheon Ops (dev@pantheon-ops.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package report

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/pantheon-ops/sentinel/services/agent/config"
	"github.com/pantheon-ops/sentinel/services/agent/state"
)

// WriteHeartbeat records a single-file liveness marker so automation can
// spot failures quickly.
//
// Description:
//
//	The first line is "<ISO> UTC | ok" or "<ISO> UTC | error - message";
//	the remaining lines are sorted key=value metadata. The file is
//	rewritten whole on every attempt, so its mtime doubles as the
//	last-contact time.
//
// Inputs:
//
//	path - Heartbeat file location; parent directories are created.
//	success - Whether the attempt succeeded.
//	message - Optional note appended to the status line.
//	metadata - Optional key=value lines, rendered sorted by key.
//
// Outputs:
//
//	error - Filesystem failures only.
func WriteHeartbeat(path string, success bool, message string, metadata map[string]string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create heartbeat directory: %w", err)
	}

	status := "ok"
	if !success {
		status = "error"
	}
	note := ""
	if message != "" {
		note = " - " + message
	}
	lines := []string{fmt.Sprintf("%s UTC | %s%s", isoNow(), status, note)}

	keys := make([]string, 0, len(metadata))
	for key := range metadata {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		lines = append(lines, key+"="+metadata[key])
	}

	data := strings.Join(lines, "\n") + "\n"
	if err := os.WriteFile(path, []byte(data), 0644); err != nil {
		return fmt.Errorf("write heartbeat: %w", err)
	}
	return nil
}

// HeartbeatMetadata summarizes a successful attempt for the heartbeat.
// Structured values are rendered as compact JSON so a single grep still
// yields the whole value.
func HeartbeatMetadata(res *Result) map[string]string {
	cfg := res.Config

	runISO := ""
	if res.Timestamp != 0 {
		runISO = isoUTC(res.Timestamp)
	}

	metadata := map[string]string{}
	metadata["run_id"] = intOrEmpty(res.RunID)
	metadata["next_run_id"] = strconv.Itoa(res.NextRunID)
	metadata["run_timestamp"] = formatFloat(res.Timestamp)
	metadata["run_iso"] = runISO
	metadata["run_duration_seconds"] = floatOrEmpty(res.Duration)
	metadata["agent_version"] = config.Version
	metadata["changes_detected"] = strconv.FormatBool(res.Changed())
	metadata["missing_patches"] = strconv.FormatBool(res.MissingDetected())
	metadata["missing_files"] = jsonValue(orEmpty(res.MissingFiles))
	metadata["change_details"] = jsonDetails(res.ChangeDetails)
	metadata["change_summary"] = jsonSummary(res.ChangeSummary)
	metadata["snapshot_path"] = res.SnapshotPath
	addConfigMetadata(metadata, cfg, res.LoopEnabled)
	return metadata
}

// FailureHeartbeatMetadata summarizes a failed attempt. It carries the
// error and a recorded_at stamp instead of run timing, since the run
// never completed.
func FailureHeartbeatMetadata(res *Result) map[string]string {
	cfg := res.Config

	errText := ""
	if res.Error != nil {
		errText = *res.Error
	}

	metadata := map[string]string{}
	metadata["run_id"] = intOrEmpty(res.RunID)
	metadata["next_run_id"] = strconv.Itoa(res.NextRunID)
	metadata["agent_version"] = config.Version
	metadata["error"] = errText
	metadata["recorded_at"] = isoNow()
	metadata["change_summary"] = jsonSummary(res.ChangeSummary)
	addConfigMetadata(metadata, cfg, res.LoopEnabled)
	return metadata
}

// addConfigMetadata fills the configuration keys shared by success and
// failure heartbeats.
func addConfigMetadata(metadata map[string]string, cfg *config.Config, loopEnabled bool) {
	metadata["log_level"] = cfg.LogLevel.String()
	metadata["log_level_numeric"] = strconv.Itoa(cfg.LogLevel.Numeric())
	metadata["log_file_enabled"] = strconv.FormatBool(cfg.LogFileEnabled)
	metadata["log_path"] = cfg.LogPath
	metadata["base_dir"] = cfg.BaseDir
	metadata["state_path"] = cfg.StatePath
	metadata["snapshot_dir"] = cfg.SnapshotDir
	metadata["snapshot_retention"] = limitOrEmpty(cfg.SnapshotRetention)
	metadata["snapshots_enabled"] = strconv.FormatBool(cfg.SnapshotsEnabled)
	metadata["report_path"] = cfg.ReportPath
	metadata["status_path"] = cfg.StatusPath
	metadata["heartbeat_path"] = cfg.HeartbeatPath
	metadata["loop_enabled"] = strconv.FormatBool(loopEnabled)
	metadata["loop_interval_seconds"] = strconv.Itoa(intervalSeconds(cfg.Interval))
	metadata["loop_backoff_seconds"] = strconv.Itoa(intervalSeconds(cfg.Backoff))
	metadata["max_iterations"] = limitOrEmpty(cfg.MaxIterations)
}

func intOrEmpty(n *int) string {
	if n == nil {
		return ""
	}
	return strconv.Itoa(*n)
}

// limitOrEmpty renders "zero means unlimited" limits as empty strings.
func limitOrEmpty(n int) string {
	if n <= 0 {
		return ""
	}
	return strconv.Itoa(n)
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}

func floatOrEmpty(f *float64) string {
	if f == nil {
		return ""
	}
	return formatFloat(*f)
}

func jsonValue(v any) string {
	data, err := json.Marshal(v)
	if err != nil {
		return ""
	}
	return string(data)
}

func jsonDetails(m map[string]state.ChangeDetail) string {
	return jsonValue(detailsOrEmpty(m))
}

func jsonSummary(m map[string]int) string {
	return jsonValue(summaryOrEmpty(m))
}
