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
	"strconv"
	"strings"

	"github.com/pantheon-ops/sentinel/pkg/logging"
)

// Environment variables recognized by the agent. All are optional; CI
// pipelines use these instead of CLI arguments.
const (
	EnvPatchFiles        = "PANTHEON_PATCH_FILES"
	EnvBaseDir           = "PANTHEON_AGENT_BASE_DIR"
	EnvStatePath         = "PANTHEON_AGENT_STATE_PATH"
	EnvSnapshotDir       = "PANTHEON_AGENT_SNAPSHOT_DIR"
	EnvReportPath        = "PANTHEON_AGENT_REPORT_PATH"
	EnvStatusPath        = "PANTHEON_AGENT_STATUS_PATH"
	EnvHeartbeatPath     = "PANTHEON_AGENT_HEARTBEAT_PATH"
	EnvLogPath           = "PANTHEON_AGENT_LOG_PATH"
	EnvDisableLogFile    = "PANTHEON_AGENT_DISABLE_LOG_FILE"
	EnvLogLevel          = "PANTHEON_AGENT_LOG_LEVEL"
	EnvHistoryLimit      = "PANTHEON_AGENT_HISTORY_LIMIT"
	EnvSnapshotRetention = "PANTHEON_AGENT_SNAPSHOT_RETENTION"
	EnvDisableSnapshots  = "PANTHEON_AGENT_DISABLE_SNAPSHOTS"
	EnvInterval          = "PANTHEON_AGENT_INTERVAL"
	EnvBackoff           = "PANTHEON_AGENT_BACKOFF"
)

// ParseBool reports whether an environment toggle is truthy.
// Recognized values: 1, true, yes, on (case-insensitive).
func ParseBool(value string) bool {
	switch strings.ToLower(value) {
	case "1", "true", "yes", "on":
		return true
	}
	return false
}

// ParseHistoryLimit parses a history retention value.
//
// Description:
//
//	Empty input keeps def, unparseable input warns and keeps def, and
//	zero or negative input means unlimited retention (returned as 0).
//	The asymmetry with ParseSnapshotRetention is deliberate: history
//	defaults to bounded, snapshots to unbounded.
func ParseHistoryLimit(value string, def int, logger *logging.Logger) int {
	if logger == nil {
		logger = logging.Default()
	}
	if value == "" {
		return normalizeLimit(def)
	}
	parsed, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		logger.Warn("ignoring invalid history limit value", "value", value)
		return normalizeLimit(def)
	}
	return normalizeLimit(parsed)
}

// ParseSnapshotRetention parses a snapshot retention value.
//
// Empty or unparseable input means unlimited (0), as does an explicit
// zero or negative value.
func ParseSnapshotRetention(value string, logger *logging.Logger) int {
	if logger == nil {
		logger = logging.Default()
	}
	if value == "" {
		return 0
	}
	parsed, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		logger.Warn("ignoring invalid snapshot retention value", "value", value)
		return 0
	}
	return normalizeLimit(parsed)
}

// normalizeLimit folds "disabled" values into the 0-means-unlimited
// convention.
func normalizeLimit(v int) int {
	if v <= 0 {
		return 0
	}
	return v
}

// parseSeconds parses an integer seconds value from the environment.
// Unlike the retention knobs, a malformed interval or backoff is a hard
// configuration error.
func parseSeconds(name, value string) (int, error) {
	parsed, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return 0, fmt.Errorf("parsing %s=%q: %w", name, value, err)
	}
	return parsed, nil
}

// envValues is the raw environment snapshot taken once at Load.
type envValues struct {
	patchFiles        string
	baseDir           string
	statePath         string
	snapshotDir       string
	reportPath        string
	statusPath        string
	heartbeatPath     string
	logPath           string
	disableLogFile    string
	logLevel          string
	historyLimit      string
	snapshotRetention string
	disableSnapshots  string
	interval          string
	backoff           string
}

func readEnv() envValues {
	return envValues{
		patchFiles:        os.Getenv(EnvPatchFiles),
		baseDir:           os.Getenv(EnvBaseDir),
		statePath:         os.Getenv(EnvStatePath),
		snapshotDir:       os.Getenv(EnvSnapshotDir),
		reportPath:        os.Getenv(EnvReportPath),
		statusPath:        os.Getenv(EnvStatusPath),
		heartbeatPath:     os.Getenv(EnvHeartbeatPath),
		logPath:           os.Getenv(EnvLogPath),
		disableLogFile:    os.Getenv(EnvDisableLogFile),
		logLevel:          os.Getenv(EnvLogLevel),
		historyLimit:      os.Getenv(EnvHistoryLimit),
		snapshotRetention: os.Getenv(EnvSnapshotRetention),
		disableSnapshots:  os.Getenv(EnvDisableSnapshots),
		interval:          os.Getenv(EnvInterval),
		backoff:           os.Getenv(EnvBackoff),
	}
}
