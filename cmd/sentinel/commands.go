// Copyright (C) 2026 Pantheon Ops (dev@pantheon-ops.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"github.com/spf13/cobra"

	"github.com/pantheon-ops/sentinel/pkg/ux"
	"github.com/pantheon-ops/sentinel/services/agent/config"
)

// --- Global Flag Variables ---
var (
	// Root configuration flags. buildOverrides only forwards the ones the
	// invocation actually set, so file and environment precedence holds.
	baseDir           string
	configFile        string
	statePath         string
	snapshotDir       string
	reportPath        string
	statusPath        string
	heartbeatPath     string
	logFile           string
	disableLogFile    bool
	logLevel          string
	patchFiles        []string
	historyLimit      int
	snapshotRetention int
	disableSnapshots  bool
	lockState         bool
	noLockState       bool
	useJournal        bool
	personalityLevel  string

	// run flags
	printStatus   bool
	exitOnChange  bool
	exitOnMissing bool

	// loop flags
	loopInterval  int
	loopBackoff   int
	maxIterations int
	watchFiles    bool
	loopServeAddr string

	// status flags
	statusJSON bool

	// history flags
	historyListLimit int

	// snapshots flags
	pruneRetention int
	diffFrom       string
	diffTo         string

	// journal flags
	replayRunID int

	// serve flags
	serveAddr string

	rootCmd = &cobra.Command{
		Use:   "sentinel",
		Short: "Change-detection and audit agent for the Pantheon patch corpus",
		Long: `Sentinel tracks a fixed set of patch files, digests them with SHA-256,
				and records every change against persisted state. Each run publishes
				a markdown report, a status JSON payload, a heartbeat file, change
				snapshots, and GitHub Actions outputs.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			// Initialize UX personality from flag or environment
			if personalityLevel != "" {
				ux.SetPersonalityLevel(ux.ParsePersonalityLevel(personalityLevel))
			} else {
				ux.InitPersonality()
			}
		},
	}

	// --- Execution ---
	runCmd = &cobra.Command{
		Use:   "run",
		Short: "Audit the tracked patch files once and publish all artifacts",
		RunE:  runAgentOnce, // Defined in cmd_run.go
	}
	loopCmd = &cobra.Command{
		Use:   "loop",
		Short: "Run the agent continuously on an interval",
		Long: `Executes audit runs forever, sleeping the configured interval between
				iterations and the backoff after failures. A failing iteration is
				recorded and retried, never fatal. With --serve-addr the read-only
				HTTP surface runs alongside the loop.`,
		RunE: runAgentLoop, // Defined in cmd_run.go
	}

	// --- Inspection ---
	statusCmd = &cobra.Command{
		Use:   "status",
		Short: "Show the outcome of the last recorded run",
		RunE:  runStatusCommand, // Defined in cmd_status.go
	}
	historyCmd = &cobra.Command{
		Use:   "history",
		Short: "List persisted runs, newest first",
		RunE:  runHistoryCommand, // Defined in cmd_status.go
	}
	versionCmd = &cobra.Command{
		Use:   "version",
		Short: "Print the agent version",
		Run:   runVersionCommand, // Defined in cmd_status.go
	}

	// --- Snapshots ---
	snapshotsCmd = &cobra.Command{
		Use:   "snapshots",
		Short: "Inspect and maintain the patch snapshot archive",
	}
	snapshotsListCmd = &cobra.Command{
		Use:   "list",
		Short: "List snapshot directories, oldest first",
		RunE:  runSnapshotsList, // Defined in cmd_snapshots.go
	}
	snapshotsPruneCmd = &cobra.Command{
		Use:   "prune",
		Short: "Delete snapshots beyond the retention window",
		RunE:  runSnapshotsPrune, // Defined in cmd_snapshots.go
	}
	snapshotsDiffCmd = &cobra.Command{
		Use:   "diff [patch file]",
		Short: "Show a unified diff between a snapshot copy and the live file",
		Args:  cobra.ExactArgs(1),
		RunE:  runSnapshotsDiff, // Defined in cmd_snapshots.go
	}

	// --- Journal ---
	journalCmd = &cobra.Command{
		Use:   "journal",
		Short: "Inspect the append-only audit journal",
	}
	journalStatsCmd = &cobra.Command{
		Use:   "stats",
		Short: "Show journal record counts and integrity status",
		RunE:  runJournalStats, // Defined in cmd_journal.go
	}
	journalReplayCmd = &cobra.Command{
		Use:   "replay",
		Short: "Replay journaled run records in run order",
		RunE:  runJournalReplay, // Defined in cmd_journal.go
	}

	// --- Serve ---
	serveCmd = &cobra.Command{
		Use:   "serve",
		Short: "Serve the agent's artifacts over a read-only HTTP API",
		RunE:  runServeCommand, // Defined in cmd_serve.go
	}
)

// init runs when the Go program starts
func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&baseDir, "base-dir", "",
		"Base directory for relative paths (default: the working directory)")
	pf.StringVar(&configFile, "config", "",
		"Config file path (default: ~/.sentinel/sentinel.yaml)")
	pf.StringVar(&statePath, "state", "",
		"Agent state file path (default: "+config.DefaultStatePath+")")
	pf.StringVar(&snapshotDir, "snapshots", "",
		"Snapshot directory (default: "+config.DefaultSnapshotDir+")")
	pf.StringVar(&reportPath, "report", "",
		"Markdown report path (default: "+config.DefaultReportPath+")")
	pf.StringVar(&statusPath, "status-json", "",
		"Status JSON path (default: "+config.DefaultStatusPath+")")
	pf.StringVar(&heartbeatPath, "heartbeat", "",
		"Heartbeat file path (default: "+config.DefaultHeartbeatPath+")")
	pf.StringVar(&logFile, "log-file", "",
		"Agent log file path (default: "+config.DefaultLogPath+")")
	pf.BoolVar(&disableLogFile, "disable-log-file", false,
		"Disable the agent log file entirely")
	pf.StringVar(&logLevel, "log-level", "",
		"Log level: debug, info, warn, or error")
	pf.StringArrayVar(&patchFiles, "patch", nil,
		"Track an additional patch file (repeatable)")
	pf.IntVar(&historyLimit, "history-limit", config.DefaultHistoryLimit,
		"Number of runs kept in persisted state; 0 keeps everything")
	pf.IntVar(&snapshotRetention, "snapshot-retention", 0,
		"Number of snapshots kept on disk; 0 keeps everything")
	pf.BoolVar(&disableSnapshots, "disable-snapshots", false,
		"Skip snapshot creation for changed files")
	pf.BoolVar(&lockState, "lock", false,
		"Guard the state file with an advisory lock so only one agent runs")
	pf.BoolVar(&noLockState, "no-lock", false,
		"Disable the state lock even when the config file enables it")
	pf.BoolVar(&useJournal, "journal", false,
		"Append every run record to the BadgerDB audit journal")
	pf.StringVar(&personalityLevel, "personality", "",
		"Output style: full (default), standard, minimal, or machine (scripting)")

	rootCmd.AddCommand(runCmd)
	runCmd.Flags().BoolVar(&printStatus, "print-status", false,
		"Print the status JSON payload to stdout after the run")
	runCmd.Flags().BoolVar(&exitOnChange, "exit-on-change", false,
		"Exit non-zero when the run detects changed patch files")
	runCmd.Flags().BoolVar(&exitOnMissing, "exit-on-missing", false,
		"Exit non-zero when the run finds tracked files missing")

	rootCmd.AddCommand(loopCmd)
	loopCmd.Flags().IntVar(&loopInterval, "interval", config.DefaultIntervalSeconds,
		"Seconds to sleep between successful iterations")
	loopCmd.Flags().IntVar(&loopBackoff, "backoff", config.DefaultBackoffSeconds,
		"Seconds to sleep after a failed iteration (floored at 1)")
	loopCmd.Flags().IntVar(&maxIterations, "max-iterations", 0,
		"Stop after this many iterations; 0 runs forever")
	loopCmd.Flags().BoolVar(&watchFiles, "watch", false,
		"Watch tracked files and run ahead of schedule when they change")
	loopCmd.Flags().StringVar(&loopServeAddr, "serve-addr", "",
		"Also serve the read-only HTTP API on this address")

	rootCmd.AddCommand(statusCmd)
	statusCmd.Flags().BoolVar(&statusJSON, "json", false,
		"Print the raw status payload instead of the styled view")

	rootCmd.AddCommand(historyCmd)
	historyCmd.Flags().IntVar(&historyListLimit, "limit", 0,
		"Show only the newest N runs; 0 shows all")

	rootCmd.AddCommand(snapshotsCmd)
	snapshotsCmd.AddCommand(snapshotsListCmd)
	snapshotsCmd.AddCommand(snapshotsPruneCmd)
	snapshotsPruneCmd.Flags().IntVar(&pruneRetention, "retention", 0,
		"Retention window to enforce (default: the configured retention)")
	snapshotsCmd.AddCommand(snapshotsDiffCmd)
	snapshotsDiffCmd.Flags().StringVar(&diffFrom, "from", "",
		"Snapshot directory to diff from (default: the newest snapshot)")
	snapshotsDiffCmd.Flags().StringVar(&diffTo, "to", "",
		"Snapshot directory to diff against instead of the live file")

	rootCmd.AddCommand(journalCmd)
	journalCmd.AddCommand(journalStatsCmd)
	journalCmd.AddCommand(journalReplayCmd)
	journalReplayCmd.Flags().IntVar(&replayRunID, "run", 0,
		"Replay only the record with this run ID")

	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringVar(&serveAddr, "addr", "",
		"Listen address (default: "+defaultServeAddr+")")

	rootCmd.AddCommand(versionCmd)
}
