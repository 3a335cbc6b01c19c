// Copyright (C) 2026 Pantheon Ops (dev@pantheon-ops.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/pantheon-ops/sentinel/pkg/logging"
	"github.com/pantheon-ops/sentinel/services/agent/trackedfile"
)

// Overrides carries explicit CLI flag values into Load.
//
// Empty strings and nil pointers mean "flag not set" and leave the
// lower-precedence layer in place. Pointers are used where the zero
// value is meaningful (history limit 0 is unlimited, not unset).
type Overrides struct {
	// ConfigFile is the --config flag. Empty uses the default location;
	// an explicit path that does not exist is an error.
	ConfigFile string

	BaseDir       string
	StatePath     string
	SnapshotDir   string
	ReportPath    string
	StatusPath    string
	HeartbeatPath string
	LogPath       string
	LogLevel      string
	PatchFiles    []string
	ServeAddr     string

	DisableLogFile    *bool
	HistoryLimit      *int
	SnapshotRetention *int
	DisableSnapshots  *bool
	IntervalSeconds   *int
	BackoffSeconds    *int
	MaxIterations     *int
	Lock              *bool
	Journal           *bool
}

// DefaultFilePath returns the per-user config file location.
func DefaultFilePath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("locating home directory: %w", err)
	}
	return filepath.Join(home, ".sentinel", "sentinel.yaml"), nil
}

// Load builds the resolved agent configuration.
//
// # Description
//
// Layers defaults, the YAML config file, the environment, and CLI
// overrides, then resolves every relative path under the base directory
// and merges the tracked file sources with provenance. The environment
// is read exactly once, here.
//
// # Inputs
//
//   - overrides: Explicit flag values. Zero value applies file and
//     environment only.
//   - logger: Bootstrap logger for configuration warnings. Nil falls
//     back to the process default; the caller typically rebuilds its
//     real logger from the returned config.
//
// # Outputs
//
//   - *Config: Fully resolved, validated configuration.
//   - error: Non-nil for unreadable or invalid config files, malformed
//     interval values, or failed validation.
func Load(overrides Overrides, logger *logging.Logger) (*Config, error) {
	if logger == nil {
		logger = logging.Default()
	}

	file, err := loadFile(overrides.ConfigFile, logger)
	if err != nil {
		return nil, err
	}

	env := readEnv()

	baseDir := firstNonEmpty(overrides.BaseDir, env.baseDir, file.BaseDir)
	if baseDir == "" {
		cwd, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("resolving working directory: %w", err)
		}
		baseDir = cwd
	}

	pick := func(flag, envValue, fileValue, def string) string {
		return firstNonEmpty(flag, envValue, fileValue, def)
	}

	cfg := &Config{
		BaseDir: baseDir,
		StatePath: resolveUnder(baseDir,
			pick(overrides.StatePath, env.statePath, file.Paths.State, DefaultStatePath)),
		SnapshotDir: resolveUnder(baseDir,
			pick(overrides.SnapshotDir, env.snapshotDir, file.Paths.Snapshots, DefaultSnapshotDir)),
		ReportPath: resolveUnder(baseDir,
			pick(overrides.ReportPath, env.reportPath, file.Paths.Report, DefaultReportPath)),
		StatusPath: resolveUnder(baseDir,
			pick(overrides.StatusPath, env.statusPath, file.Paths.Status, DefaultStatusPath)),
		HeartbeatPath: resolveUnder(baseDir,
			pick(overrides.HeartbeatPath, env.heartbeatPath, file.Paths.Heartbeat, DefaultHeartbeatPath)),
	}

	disableLog := ParseBool(env.disableLogFile) || file.Logging.DisableFile
	if overrides.DisableLogFile != nil {
		disableLog = *overrides.DisableLogFile
	}
	logPathRaw := pick(overrides.LogPath, env.logPath, file.Paths.Log, DefaultLogPath)
	if !disableLog && logPathRaw != "" {
		cfg.LogPath = resolveUnder(baseDir, logPathRaw)
		cfg.LogFileEnabled = true
	}

	levelName := pick(overrides.LogLevel, env.logLevel, file.Logging.Level, "info")
	level, ok := logging.ParseLevel(levelName)
	if !ok {
		logger.Warn("invalid log level; defaulting to INFO", "value", levelName)
		level = logging.LevelInfo
	}
	cfg.LogLevel = level
	cfg.LogLevelName = level.String()

	historyLimit := DefaultHistoryLimit
	if file.History.Limit != nil {
		historyLimit = *file.History.Limit
	}
	historyLimit = ParseHistoryLimit(env.historyLimit, historyLimit, logger)
	if overrides.HistoryLimit != nil {
		historyLimit = *overrides.HistoryLimit
	}
	cfg.HistoryLimit = normalizeLimit(historyLimit)

	retention := 0
	if file.Snapshots.Retention != nil {
		retention = normalizeLimit(*file.Snapshots.Retention)
	}
	if env.snapshotRetention != "" {
		retention = ParseSnapshotRetention(env.snapshotRetention, logger)
	}
	if overrides.SnapshotRetention != nil {
		retention = normalizeLimit(*overrides.SnapshotRetention)
	}
	cfg.SnapshotRetention = retention

	cfg.SnapshotsEnabled = !(ParseBool(env.disableSnapshots) || file.Snapshots.Disabled)
	if overrides.DisableSnapshots != nil {
		cfg.SnapshotsEnabled = !*overrides.DisableSnapshots
	}

	intervalSec := DefaultIntervalSeconds
	if file.Loop.IntervalSeconds != nil {
		intervalSec = *file.Loop.IntervalSeconds
	}
	if env.interval != "" {
		if intervalSec, err = parseSeconds(EnvInterval, env.interval); err != nil {
			return nil, err
		}
	}
	if overrides.IntervalSeconds != nil {
		intervalSec = *overrides.IntervalSeconds
	}
	cfg.Interval = time.Duration(intervalSec) * time.Second

	backoffSec := DefaultBackoffSeconds
	if file.Loop.BackoffSeconds != nil {
		backoffSec = *file.Loop.BackoffSeconds
	}
	if env.backoff != "" {
		if backoffSec, err = parseSeconds(EnvBackoff, env.backoff); err != nil {
			return nil, err
		}
	}
	if overrides.BackoffSeconds != nil {
		backoffSec = *overrides.BackoffSeconds
	}
	cfg.Backoff = time.Duration(backoffSec) * time.Second

	if file.Loop.MaxIterations != nil {
		cfg.MaxIterations = *file.Loop.MaxIterations
	}
	if overrides.MaxIterations != nil {
		cfg.MaxIterations = *overrides.MaxIterations
	}
	cfg.MaxIterations = normalizeLimit(cfg.MaxIterations)

	cfg.LockEnabled = file.Lock.Enabled
	if overrides.Lock != nil {
		cfg.LockEnabled = *overrides.Lock
	}

	cfg.JournalEnabled = file.Journal.Enabled
	if overrides.Journal != nil {
		cfg.JournalEnabled = *overrides.Journal
	}
	cfg.JournalDir = resolveUnder(baseDir, firstNonEmpty(file.Journal.Dir, DefaultJournalDir))

	cfg.ServeAddr = firstNonEmpty(overrides.ServeAddr, file.Serve.Addr)

	cfg.Tracked = trackedfile.Resolve(baseDir, trackedfile.Sources{
		Defaults: trackedfile.DefaultPatchFiles(),
		Config:   file.PatchFiles,
		Env:      trackedfile.ParseEnvList(env.patchFiles),
		CLI:      overrides.PatchFiles,
	})

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating configuration: %w", err)
	}
	return cfg, nil
}

// loadFile reads and validates the YAML config document.
//
// An explicit path must exist. The default location is created with a
// commented default document on first run; when that fails (read-only
// home, CI sandbox) the agent proceeds on built-in defaults rather than
// refusing to start.
func loadFile(path string, logger *logging.Logger) (*File, error) {
	explicit := path != ""
	if !explicit {
		def, err := DefaultFilePath()
		if err != nil {
			logger.Warn("cannot determine config file location; using defaults", "error", err)
			return &File{}, nil
		}
		path = def
	}

	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			if explicit {
				return nil, fmt.Errorf("config file %s does not exist", path)
			}
			if err := writeDefaultFile(path); err != nil {
				logger.Warn("could not create default config file",
					"path", path, "error", err)
			} else {
				logger.Info("created default config file", "path", path)
			}
			return &File{}, nil
		}
		return nil, fmt.Errorf("checking config file %s: %w", path, err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file %s: %w", path, err)
	}
	var file File
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parsing config file %s: %w", path, err)
	}
	if err := file.Validate(); err != nil {
		return nil, fmt.Errorf("validating config file %s: %w", path, err)
	}
	return &file, nil
}

func writeDefaultFile(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	data, err := yaml.Marshal(DefaultFile())
	if err != nil {
		return err
	}
	header := []byte("# Sentinel agent configuration.\n" +
		"# Relative paths resolve under base_dir (default: the working directory).\n" +
		"# Environment variables and CLI flags override values in this file.\n")
	return os.WriteFile(path, append(header, data...), 0644)
}

// resolveUnder joins path to baseDir unless it is already absolute.
func resolveUnder(baseDir, path string) string {
	if filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(baseDir, path)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
