// Copyright (C) 2026 Pantheon Ops (dev@pantheon-ops.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel"

	"github.com/pantheon-ops/sentinel/pkg/logging"
	"github.com/pantheon-ops/sentinel/services/agent/config"
	"github.com/pantheon-ops/sentinel/services/agent/journal"
	"github.com/pantheon-ops/sentinel/services/agent/lock"
	"github.com/pantheon-ops/sentinel/services/agent/report"
	"github.com/pantheon-ops/sentinel/services/agent/run"
	"github.com/pantheon-ops/sentinel/services/agent/telemetry"
)

// shutdownGrace bounds runtime teardown on exit.
const shutdownGrace = 5 * time.Second

// changed reports whether the invocation explicitly set the named flag,
// looking through inherited persistent flags as well.
func changed(cmd *cobra.Command, name string) bool {
	if f := cmd.Flags().Lookup(name); f != nil {
		return f.Changed
	}
	if f := cmd.InheritedFlags().Lookup(name); f != nil {
		return f.Changed
	}
	return false
}

// buildOverrides maps parsed flags onto config overrides. Only flags the
// user actually set participate, so config file and environment values
// survive underneath untouched defaults.
func buildOverrides(cmd *cobra.Command) config.Overrides {
	o := config.Overrides{
		ConfigFile:    configFile,
		BaseDir:       baseDir,
		StatePath:     statePath,
		SnapshotDir:   snapshotDir,
		ReportPath:    reportPath,
		StatusPath:    statusPath,
		HeartbeatPath: heartbeatPath,
		LogPath:       logFile,
		LogLevel:      logLevel,
		PatchFiles:    patchFiles,
	}
	if changed(cmd, "disable-log-file") {
		o.DisableLogFile = &disableLogFile
	}
	if changed(cmd, "history-limit") {
		o.HistoryLimit = &historyLimit
	}
	if changed(cmd, "snapshot-retention") {
		o.SnapshotRetention = &snapshotRetention
	}
	if changed(cmd, "disable-snapshots") {
		o.DisableSnapshots = &disableSnapshots
	}
	if changed(cmd, "interval") {
		o.IntervalSeconds = &loopInterval
	}
	if changed(cmd, "backoff") {
		o.BackoffSeconds = &loopBackoff
	}
	if changed(cmd, "max-iterations") {
		o.MaxIterations = &maxIterations
	}
	if changed(cmd, "lock") {
		o.Lock = &lockState
	}
	if changed(cmd, "no-lock") && noLockState {
		// --no-lock beats --lock when both are given.
		disabled := false
		o.Lock = &disabled
	}
	if changed(cmd, "journal") {
		o.Journal = &useJournal
	}
	switch {
	case changed(cmd, "serve-addr"):
		o.ServeAddr = loopServeAddr
	case changed(cmd, "addr"):
		o.ServeAddr = serveAddr
	}
	return o
}

// loadConfig resolves configuration for the read-only commands.
//
// Inspection commands log to stderr only; the agent log file records
// runs, not casual lookups.
func loadConfig(cmd *cobra.Command) (*config.Config, *logging.Logger, error) {
	cfg, err := config.Load(buildOverrides(cmd), logging.Default())
	if err != nil {
		return nil, nil, err
	}
	return cfg, logging.New(logging.Config{Level: cfg.LogLevel}), nil
}

// agentRuntime bundles everything an executing command wires up before
// its first run: resolved config, the real logger, telemetry, the
// optional state lock, and the optional audit journal.
type agentRuntime struct {
	cfg           *config.Config
	logger        *logging.Logger
	metrics       *telemetry.Metrics
	guard         *lock.Guard
	journal       *journal.Journal
	stopTelemetry func(context.Context) error
}

// newAgentRuntime assembles the runtime for the run and loop commands.
//
// The lock, when enabled, is acquired here so a second agent instance
// fails before touching state; the orchestrator only refreshes it. Any
// partial setup is torn down on error.
func newAgentRuntime(ctx context.Context, cmd *cobra.Command) (*agentRuntime, error) {
	cfg, err := config.Load(buildOverrides(cmd), logging.Default())
	if err != nil {
		return nil, err
	}

	logger := logging.New(logging.Config{
		Level:   cfg.LogLevel,
		LogFile: cfg.LogPath,
		Service: "sentinel-agent",
	})
	logStartup(logger, cfg)

	rt := &agentRuntime{cfg: cfg, logger: logger}
	rt.stopTelemetry = setupTelemetry(ctx, logger)
	rt.metrics = setupMetrics(cfg, logger)

	if cfg.LockEnabled {
		guard := lock.NewGuard(cfg.StatePath, logger)
		if err := guard.Acquire(); err != nil {
			rt.close()
			return nil, fmt.Errorf("acquiring state lock: %w", err)
		}
		rt.guard = guard
	}

	if cfg.JournalEnabled {
		jcfg := journal.DefaultConfig()
		jcfg.Dir = cfg.JournalDir
		jcfg.Logger = logger
		jnl, err := journal.Open(jcfg)
		if err != nil {
			rt.close()
			return nil, fmt.Errorf("opening audit journal: %w", err)
		}
		rt.journal = jnl
	}

	return rt, nil
}

// runOptions assembles the orchestrator options for whatever the runtime
// actually managed to set up.
func (rt *agentRuntime) runOptions() []run.Option {
	opts := []run.Option{}
	if rt.metrics != nil {
		opts = append(opts, run.WithMetrics(rt.metrics))
	}
	if rt.journal != nil {
		opts = append(opts, run.WithJournal(rt.journal))
	}
	if rt.guard != nil {
		opts = append(opts, run.WithGuard(rt.guard))
	}
	return opts
}

// close releases the runtime in reverse acquisition order. Safe to call
// on a partially constructed runtime.
func (rt *agentRuntime) close() {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer cancel()

	if rt.journal != nil {
		if err := rt.journal.Close(); err != nil {
			rt.logger.Warn("journal close failed", "error", err)
		}
	}
	if rt.guard != nil {
		if err := rt.guard.Release(); err != nil {
			rt.logger.Warn("state lock release failed", "error", err)
		}
	}
	if rt.stopTelemetry != nil {
		if err := rt.stopTelemetry(ctx); err != nil {
			rt.logger.Warn("telemetry shutdown failed", "error", err)
		}
	}
}

// setupTelemetry installs the OTel providers. Telemetry failures never
// block an audit run; the agent proceeds uninstrumented with a warning.
func setupTelemetry(ctx context.Context, logger *logging.Logger) func(context.Context) error {
	tcfg := telemetry.DefaultConfig()
	tcfg.ServiceVersion = config.Version
	stop, err := telemetry.Init(ctx, tcfg)
	if err != nil {
		logger.Warn("telemetry disabled", "error", err)
		return func(context.Context) error { return nil }
	}
	return stop
}

// setupMetrics creates the agent's instruments on the global meter.
func setupMetrics(cfg *config.Config, logger *logging.Logger) *telemetry.Metrics {
	meter := otel.Meter("sentinel_agent")
	metrics, err := telemetry.NewMetrics(meter)
	if err != nil {
		logger.Warn("metric instruments unavailable", "error", err)
		return nil
	}
	if _, err := metrics.RegisterTrackedFiles(meter, func() int64 {
		return int64(cfg.Tracked.Len())
	}); err != nil {
		logger.Warn("tracked file gauge unavailable", "error", err)
	}
	return metrics
}

// logStartup mirrors the resolved configuration into the log, so a CI
// transcript alone is enough to reconstruct what the run saw.
func logStartup(logger *logging.Logger, cfg *config.Config) {
	info := report.GatherRuntimeInfo()
	logger.Info("starting sentinel agent",
		"version", config.Version, "go", info.GoVersion, "platform", info.Platform)

	logValue := "(disabled)"
	if cfg.LogFileEnabled {
		logValue = cfg.LogPath
	}
	logger.Info("logging configured", "level", cfg.LogLevelName, "file", logValue)

	if cfg.HistoryLimit == 0 {
		logger.Info("history retention: unlimited")
	} else {
		logger.Info("history retention", "newest_runs", cfg.HistoryLimit)
	}
	if cfg.SnapshotRetention == 0 {
		logger.Info("snapshot retention: unlimited", "enabled", cfg.SnapshotsEnabled)
	} else {
		logger.Info("snapshot retention",
			"newest_snapshots", cfg.SnapshotRetention, "enabled", cfg.SnapshotsEnabled)
	}

	ci := report.GatherCIMetadata()
	if len(ci) == 0 {
		logger.Info("ci metadata: none detected")
	} else {
		keys := make([]string, 0, len(ci))
		for key := range ci {
			keys = append(keys, key)
		}
		sort.Strings(keys)
		args := make([]any, 0, len(ci)*2)
		for _, key := range keys {
			args = append(args, key, ci[key])
		}
		logger.Info("ci metadata detected", args...)
	}

	logger.Info("tracking patch files",
		"count", cfg.Tracked.Len(), "files", strings.Join(cfg.Tracked.Names(), ", "))
	logger.Info("resolved paths",
		"base_dir", cfg.BaseDir,
		"state", cfg.StatePath,
		"snapshots", cfg.SnapshotDir,
		"report", cfg.ReportPath,
		"status", cfg.StatusPath,
		"heartbeat", cfg.HeartbeatPath)
	for _, f := range cfg.Tracked.Files() {
		logger.Info("tracked patch",
			"name", f.Name, "path", f.Path, "source", string(f.Origin))
	}
}
