// Copyright (C) 2026 Pantheon Ops (dev@pantheon-ops.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/pantheon-ops/sentinel/pkg/logging"
	"github.com/pantheon-ops/sentinel/pkg/ux"
	"github.com/pantheon-ops/sentinel/services/agent/config"
	"github.com/pantheon-ops/sentinel/services/agent/snapshot"
)

func newArchiver(cfg *config.Config, logger *logging.Logger) *snapshot.Archiver {
	return snapshot.NewArchiver(cfg.SnapshotDir, cfg.SnapshotRetention,
		cfg.SnapshotsEnabled, logger)
}

func runSnapshotsList(cmd *cobra.Command, args []string) error {
	cfg, logger, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	dirs, err := newArchiver(cfg, logger).List()
	if err != nil {
		return err
	}
	if len(dirs) == 0 {
		ux.Muted("(no snapshots)")
		return nil
	}

	ux.Title("Patch snapshots")
	for _, dir := range dirs {
		ux.Info(dir)
	}
	ux.Muted(fmt.Sprintf("%d snapshot(s) under %s", len(dirs), cfg.SnapshotDir))
	return nil
}

func runSnapshotsPrune(cmd *cobra.Command, args []string) error {
	cfg, logger, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	retention := cfg.SnapshotRetention
	if changed(cmd, "retention") {
		retention = pruneRetention
	}
	if retention <= 0 {
		ux.Warning("snapshot retention is unlimited; nothing to prune")
		return nil
	}

	archiver := snapshot.NewArchiver(cfg.SnapshotDir, retention,
		cfg.SnapshotsEnabled, logger)
	removed := archiver.Prune()
	if len(removed) == 0 {
		ux.Success(fmt.Sprintf("nothing to prune; at most %d snapshot(s) on disk", retention))
		return nil
	}
	for _, path := range removed {
		ux.FileStatus(path, ux.IconRemoved, "pruned")
	}
	ux.Success(fmt.Sprintf("pruned %d snapshot(s)", len(removed)))
	return nil
}

func runSnapshotsDiff(cmd *cobra.Command, args []string) error {
	name := args[0]
	cfg, logger, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	archiver := newArchiver(cfg, logger)

	from := diffFrom
	if from == "" {
		latest, err := archiver.Latest(1)
		if err != nil {
			return err
		}
		if len(latest) == 0 {
			ux.Warning("no snapshots recorded yet")
			return nil
		}
		from = latest[0]
	}

	var body string
	if diffTo != "" {
		body, err = archiver.Diff(from, diffTo, name)
	} else {
		livePath, ok := cfg.Tracked.Paths()[name]
		if !ok {
			return fmt.Errorf("%s is not a tracked patch file", name)
		}
		body, err = archiver.DiffLive(from, name, livePath)
	}
	if err != nil {
		return err
	}

	if body == "" {
		ux.Success("no differences")
		return nil
	}
	printDiff(body)
	return nil
}

// printDiff renders a unified diff with conventional +/- coloring.
func printDiff(body string) {
	if ux.GetPersonality().Level == ux.PersonalityMachine {
		fmt.Print(body)
		return
	}
	for _, line := range strings.Split(strings.TrimRight(body, "\n"), "\n") {
		switch {
		case strings.HasPrefix(line, "+"):
			fmt.Println(ux.Styles.Success.Render(line))
		case strings.HasPrefix(line, "-"):
			fmt.Println(ux.Styles.Error.Render(line))
		case strings.HasPrefix(line, "@@"):
			fmt.Println(ux.Styles.Subtitle.Render(line))
		default:
			fmt.Println(line)
		}
	}
}
