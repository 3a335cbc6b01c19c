// Copyright (C) 2026 Pantheon Ops (dev@pantheon-ops.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/pantheon-ops/sentinel/pkg/logging"
	"github.com/pantheon-ops/sentinel/pkg/ux"
	"github.com/pantheon-ops/sentinel/services/agent/config"
	"github.com/pantheon-ops/sentinel/services/agent/journal"
)

// openJournal opens the audit journal for inspection. The journal is
// never created here; inspecting a journal that was never written should
// not leave a BadgerDB directory behind.
func openJournal(cfg *config.Config, logger *logging.Logger) (*journal.Journal, error) {
	if _, err := os.Stat(cfg.JournalDir); err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf(
				"no journal at %s; start the agent with --journal to create one",
				cfg.JournalDir)
		}
		return nil, fmt.Errorf("checking journal directory: %w", err)
	}

	jcfg := journal.DefaultConfig()
	jcfg.Dir = cfg.JournalDir
	jcfg.SyncWrites = false
	jcfg.Logger = logger
	jnl, err := journal.Open(jcfg)
	if err != nil {
		return nil, fmt.Errorf("opening journal (is the agent running?): %w", err)
	}
	return jnl, nil
}

func runJournalStats(cmd *cobra.Command, args []string) error {
	cfg, logger, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	jnl, err := openJournal(cfg, logger)
	if err != nil {
		return err
	}
	defer jnl.Close()

	stats := jnl.Stats()
	ux.Title("Audit journal")
	ux.Info(fmt.Sprintf("records: %d", stats.TotalRecords))
	ux.Info(fmt.Sprintf("approximate size: %d bytes", stats.TotalBytes))
	ux.Info(fmt.Sprintf("last run id: %d", stats.LastRunID))
	if stats.CorruptedCount > 0 {
		ux.Warning(fmt.Sprintf("corrupted records: %d", stats.CorruptedCount))
	}
	return nil
}

func runJournalReplay(cmd *cobra.Command, args []string) error {
	cfg, logger, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	jnl, err := openJournal(cfg, logger)
	if err != nil {
		return err
	}
	defer jnl.Close()

	records, err := jnl.Replay(cmd.Context())
	if err != nil {
		return fmt.Errorf("replaying journal: %w", err)
	}

	if changed(cmd, "run") {
		for i := range records {
			if records[i].RunID == replayRunID {
				renderRunRecord(&records[i])
				return nil
			}
		}
		ux.Warning(fmt.Sprintf("run %d not found in journal", replayRunID))
		return nil
	}

	if len(records) == 0 {
		ux.Muted("(journal is empty)")
		return nil
	}
	ux.Title("Journaled runs")
	for i := range records {
		renderRunRecord(&records[i])
	}
	return nil
}
