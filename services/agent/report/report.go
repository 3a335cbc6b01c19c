// Copyright (C) 2026 Pantheon Ops (dev@pantheon-ops.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package report

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/pantheon-ops/sentinel/services/agent/config"
)

// Render writes the markdown run report to w.
//
// Description:
//
//	The report is a full operator-facing summary: run identity, agent
//	and CI metadata, resolved paths, logging and loop configuration,
//	recent history, detected changes with digest details, snapshot and
//	pruning outcomes, and the complete digest table. Layout is fixed;
//	downstream tooling anchors on the section headers.
//
// Inputs:
//
//	w - Destination writer.
//	res - The attempt outcome to render.
//
// Outputs:
//
//	error - Write failures only; rendering itself cannot fail.
func Render(w io.Writer, res *Result) error {
	_, err := io.WriteString(w, strings.Join(reportLines(res), "\n"))
	return err
}

// WriteFile renders the report to path, creating parent directories.
func WriteFile(path string, res *Result) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create report directory: %w", err)
	}
	data := strings.Join(reportLines(res), "\n")
	if err := os.WriteFile(path, []byte(data), 0644); err != nil {
		return fmt.Errorf("write report: %w", err)
	}
	return nil
}

// reportLines assembles the full report, one element per output line.
func reportLines(res *Result) []string {
	lines := headLines(res, "# Pantheon Persistent Agent Report")

	lines = append(lines, changeDetailLines(res)...)

	lines = append(lines, "")
	if res.SnapshotPath != "" {
		lines = append(lines, "Snapshot directory: "+res.SnapshotPath)
	} else {
		lines = append(lines, "Snapshot directory: None (no changes detected)")
	}

	lines = append(lines, "", "## Pruned snapshots")
	if len(res.PrunedSnapshots) > 0 {
		lines = append(lines, "")
		for _, path := range res.PrunedSnapshots {
			lines = append(lines, "- "+path)
		}
	} else {
		lines = append(lines, "- None removed")
	}

	lines = append(lines, missingLines(res)...)
	lines = append(lines, trackedLines(res)...)
	lines = append(lines, digestTableLines(res)...)

	lines = append(lines, "")
	return lines
}

// headLines builds the sections shared by the report and the GitHub step
// summary: title through detected changes.
func headLines(res *Result, title string) []string {
	cfg := res.Config

	lines := []string{
		title,
		"",
		"Last run: " + isoUTC(res.Timestamp),
		"Run duration: " + formatDuration(res.Duration, " seconds"),
		idLine("Run ID", res.RunID),
		fmt.Sprintf("Next run ID: %d", res.NextRunID),
		"",
		"## Agent",
		"",
		"- Version: " + config.Version,
		"- Go: " + valueOrUnknown(res.Runtime.GoVersion),
		"- Platform: " + valueOrUnknown(res.Runtime.Platform),
		"",
		"## CI metadata",
	}

	if len(res.CI) > 0 {
		for _, key := range sortedKeys(res.CI) {
			lines = append(lines, fmt.Sprintf("- %s: %s", key, res.CI[key]))
		}
	} else {
		lines = append(lines, "- (none detected)")
	}

	lines = append(lines,
		"",
		"## Resolved paths",
		"",
		"- Base directory: "+cfg.BaseDir,
		"- State file: "+cfg.StatePath,
		"- Snapshot directory: "+cfg.SnapshotDir,
		"- Report path: "+cfg.ReportPath,
		"- Status JSON path: "+cfg.StatusPath,
		"- Heartbeat path: "+cfg.HeartbeatPath,
		"",
		"## Logging",
		"",
		fmt.Sprintf("- Log level: %s (%d)", cfg.LogLevel.String(), cfg.LogLevel.Numeric()),
		logFileLine(cfg.LogFileEnabled, cfg.LogPath),
		"",
		"## State history",
		"",
	)

	if cfg.HistoryLimit <= 0 {
		lines = append(lines, "- History retention: unlimited")
	} else {
		lines = append(lines, fmt.Sprintf("- History retention: newest %d run(s)", cfg.HistoryLimit))
	}

	lines = append(lines, "", "### Recent runs")
	if len(res.History) > 0 {
		recent := res.History
		if len(recent) > 5 {
			recent = recent[len(recent)-5:]
		}
		for _, entry := range recent {
			var changedNote, missingNote, errorNote string
			if len(entry.ChangedFiles) > 0 {
				changedNote = ", changed: " + strings.Join(entry.ChangedFiles, ", ")
			}
			if len(entry.MissingFiles) > 0 {
				missingNote = ", missing: " + strings.Join(entry.MissingFiles, ", ")
			}
			if entry.Error != nil {
				errorNote = ", error: " + *entry.Error
			}
			lines = append(lines, fmt.Sprintf("- Run %d: %s (%s%s%s%s)",
				entry.RunID, isoUTC(entry.Timestamp),
				formatDuration(entry.DurationSeconds, "s"),
				changedNote, missingNote, errorNote))
		}
	} else {
		lines = append(lines, "- (no history recorded)")
	}

	lines = append(lines,
		"",
		"## Loop configuration",
		"",
		"- Loop mode: "+enabledWord(res.LoopEnabled),
		fmt.Sprintf("- Loop interval: %d second(s)", intervalSeconds(cfg.Interval)),
		fmt.Sprintf("- Loop backoff: %d second(s)", intervalSeconds(cfg.Backoff)),
	)
	if cfg.MaxIterations > 0 {
		lines = append(lines, fmt.Sprintf("- Max iterations: %d", cfg.MaxIterations))
	} else {
		lines = append(lines, "- Max iterations: unlimited")
	}

	lines = append(lines,
		"",
		"## Snapshot settings",
		"",
		"- Snapshots enabled: "+yesNo(cfg.SnapshotsEnabled),
	)
	if cfg.SnapshotRetention <= 0 {
		lines = append(lines, "- Snapshot retention: unlimited")
	} else {
		lines = append(lines, fmt.Sprintf("- Snapshot retention: newest %d snapshot(s)", cfg.SnapshotRetention))
	}

	lines = append(lines, "", "## Detected changes")
	if len(res.ChangedFiles) > 0 {
		lines = append(lines, "")
		for _, name := range res.ChangedFiles {
			lines = append(lines, "- "+name)
		}
	} else {
		lines = append(lines, "- None")
	}

	return lines
}

// changeDetailLines renders the per-file digest transition table, or
// nothing when the attempt produced no change details.
func changeDetailLines(res *Result) []string {
	if len(res.ChangeDetails) == 0 {
		return nil
	}

	lines := []string{
		"",
		"### Change details",
		"",
		"| Patch file | Status | Previous digest | Current digest |",
		"| --- | --- | --- | --- |",
	}
	for _, name := range sortedDetailKeys(res) {
		detail := res.ChangeDetails[name]
		lines = append(lines, fmt.Sprintf("| %s | %s | `%s` | `%s` |",
			name, statusOrUnknown(detail.Status),
			digestOrDash(detail.PreviousDigest), digestOrDash(detail.CurrentDigest)))
	}
	return lines
}

// missingLines renders the missing patch files section.
func missingLines(res *Result) []string {
	lines := []string{"", "## Missing patch files"}
	if len(res.MissingFiles) > 0 {
		lines = append(lines, "")
		for _, name := range res.MissingFiles {
			lines = append(lines, "- "+name)
		}
	} else {
		lines = append(lines, "- None detected")
	}
	return lines
}

// trackedLines renders the tracked patch files section with provenance
// and resolved paths, in configuration order.
func trackedLines(res *Result) []string {
	lines := []string{"", "## Tracked patch files"}
	files := res.Config.Tracked.Files()
	if len(files) > 0 {
		lines = append(lines, "")
		for _, file := range files {
			lines = append(lines, fmt.Sprintf("- %s (%s) -> %s", file.Name, file.Origin, file.Path))
		}
	} else {
		lines = append(lines, "- _(none configured)_")
	}
	return lines
}

// digestTableLines renders the full digest table, sorted by name.
func digestTableLines(res *Result) []string {
	lines := []string{
		"",
		"## Patch digests",
		"",
		"| Patch file | SHA-256 |",
		"| --- | --- |",
	}
	if len(res.Digests) > 0 {
		for _, name := range sortedKeys(res.Digests) {
			lines = append(lines, fmt.Sprintf("| %s | `%s` |", name, res.Digests[name]))
		}
	} else {
		lines = append(lines, "| _(none found)_ | - |")
	}
	return lines
}

func logFileLine(enabled bool, path string) string {
	switch {
	case enabled && path != "":
		return "- Log file: " + path
	case !enabled:
		return "- Log file: (disabled)"
	default:
		return "- Log file: (none configured)"
	}
}

func enabledWord(on bool) string {
	if on {
		return "enabled"
	}
	return "disabled"
}

func yesNo(on bool) string {
	if on {
		return "yes"
	}
	return "no"
}

func valueOrUnknown(s string) string {
	if s == "" {
		return "(unknown)"
	}
	return s
}

func statusOrUnknown(s string) string {
	if s == "" {
		return "unknown"
	}
	return s
}

func digestOrDash(digest *string) string {
	if digest == nil || *digest == "" {
		return "-"
	}
	return *digest
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for key := range m {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

func sortedDetailKeys(res *Result) []string {
	keys := make([]string, 0, len(res.ChangeDetails))
	for key := range res.ChangeDetails {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}
