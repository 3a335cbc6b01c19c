// Copyright (C) 2026 Pantheon Ops (dev@pantheon-ops.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/pantheon-ops/sentinel/pkg/ux"
	"github.com/pantheon-ops/sentinel/services/agent/config"
	"github.com/pantheon-ops/sentinel/services/agent/report"
	"github.com/pantheon-ops/sentinel/services/agent/state"
)

func runStatusCommand(cmd *cobra.Command, args []string) error {
	cfg, _, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	data, err := os.ReadFile(cfg.StatusPath)
	if os.IsNotExist(err) {
		ux.Warning("no status recorded yet; run `sentinel run` first")
		return nil
	}
	if err != nil {
		return fmt.Errorf("reading status payload: %w", err)
	}

	if statusJSON {
		os.Stdout.Write(data)
		if len(data) > 0 && data[len(data)-1] != '\n' {
			fmt.Println()
		}
		return nil
	}

	var payload report.Payload
	if err := json.Unmarshal(data, &payload); err != nil {
		return fmt.Errorf("parsing status payload %s: %w", cfg.StatusPath, err)
	}
	renderStatus(&payload)
	return nil
}

func renderStatus(p *report.Payload) {
	ux.Title("Sentinel Agent")
	if p.Error != nil {
		ux.Error("last run failed: " + *p.Error)
	}

	runID := "(unknown)"
	if p.RunID != nil {
		runID = strconv.Itoa(*p.RunID)
	}
	duration := ""
	if p.RunDurationSeconds != nil {
		duration = fmt.Sprintf(" in %.3fs", *p.RunDurationSeconds)
	}
	ux.Info(fmt.Sprintf("run %s at %s UTC%s", runID, p.RunISO, duration))
	ux.Info(fmt.Sprintf("next run id %d", p.NextRunID))

	names := make([]string, 0, len(p.ChangeDetails))
	for name := range p.ChangeDetails {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		detail := p.ChangeDetails[name]
		ux.FileStatus(name, ux.ChangeIcon(detail.Status), detail.Status)
	}
	for _, name := range p.MissingFiles {
		// Fresh disappearances already carry a "missing" change detail;
		// this covers files that stayed missing from an earlier run.
		if _, seen := p.ChangeDetails[name]; seen {
			continue
		}
		ux.FileStatus(name, ux.IconMissing, "still missing")
	}

	if p.SnapshotPath != nil {
		ux.Muted("snapshot: " + *p.SnapshotPath)
	}
	if len(p.PrunedSnapshots) > 0 {
		ux.Muted(fmt.Sprintf("pruned %d snapshot(s)", len(p.PrunedSnapshots)))
	}
	ux.Summary(len(p.ChangedFiles), len(p.MissingFiles), len(p.TrackedFiles))
}

func runHistoryCommand(cmd *cobra.Command, args []string) error {
	cfg, logger, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	st, err := state.NewStore(cfg.StatePath, logger).Load()
	if err != nil {
		return fmt.Errorf("loading agent state: %w", err)
	}

	runs := st.History
	if historyListLimit > 0 && len(runs) > historyListLimit {
		runs = runs[len(runs)-historyListLimit:]
	}
	if len(runs) == 0 {
		ux.Muted("(no runs recorded)")
		return nil
	}

	ux.Title("Run history")
	for i := len(runs) - 1; i >= 0; i-- {
		renderRunRecord(&runs[i])
	}
	return nil
}

// renderRunRecord prints one persisted run as a single status line, with
// the error text underneath for failed runs. Shared with journal replay.
func renderRunRecord(rec *state.RunRecord) {
	icon := ux.IconSuccess
	detail := "idle"
	switch {
	case rec.Error != nil:
		icon, detail = ux.IconError, "failed"
	case len(rec.ChangedFiles) > 0:
		icon = ux.IconModified
		detail = fmt.Sprintf("%d changed", len(rec.ChangedFiles))
		if n := len(rec.MissingFiles); n > 0 {
			detail += fmt.Sprintf(", %d missing", n)
		}
	case len(rec.MissingFiles) > 0:
		icon = ux.IconMissing
		detail = fmt.Sprintf("%d missing", len(rec.MissingFiles))
	}
	if rec.DurationSeconds != nil {
		detail += fmt.Sprintf(" (%.3fs)", *rec.DurationSeconds)
	}

	when := rec.Time().Format("2006-01-02 15:04:05")
	ux.FileStatus(fmt.Sprintf("run %-4d %s UTC", rec.RunID, when), icon, detail)
	if rec.Error != nil {
		ux.Muted("         " + *rec.Error)
	}
}

func runVersionCommand(cmd *cobra.Command, args []string) {
	info := report.GatherRuntimeInfo()
	fmt.Printf("sentinel %s (%s, %s)\n", config.Version, info.GoVersion, info.Platform)
}
