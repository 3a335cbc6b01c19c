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

	"github.com/pantheon-ops/sentinel/services/agent/config"
	"github.com/pantheon-ops/sentinel/services/agent/state"
)

// Payload is the machine-readable status document describing the latest
// attempt. CI pipelines and the serve API read it verbatim, so field
// names and nesting are a stable contract. Nil-able fields render as
// JSON null; "unlimited" limits render as null rather than zero.
type Payload struct {
	RunID              *int                          `json:"run_id"`
	NextRunID          int                           `json:"next_run_id"`
	RunTimestamp       float64                       `json:"run_timestamp"`
	RunISO             string                        `json:"run_iso"`
	RunDurationSeconds *float64                      `json:"run_duration_seconds"`
	Logging            LoggingStatus                 `json:"logging"`
	ChangedFiles       []string                      `json:"changed_files"`
	ChangeDetails      map[string]state.ChangeDetail `json:"change_details"`
	ChangeSummary      map[string]int                `json:"change_summary"`
	MissingFiles       []string                      `json:"missing_files"`
	SnapshotPath       *string                       `json:"snapshot_path"`
	PrunedSnapshots    []string                      `json:"pruned_snapshots"`
	Digests            map[string]string             `json:"digests"`
	Error              *string                       `json:"error"`
	TrackedFiles       []string                      `json:"tracked_files"`
	ResolvedPatches    map[string]string             `json:"resolved_patches"`
	PatchSources       map[string]string             `json:"patch_sources"`
	SnapshotSettings   SnapshotSettings              `json:"snapshot_settings"`
	Loop               LoopStatus                    `json:"loop"`
	Paths              PathStatus                    `json:"paths"`
	Agent              AgentStatus                   `json:"agent"`
	CI                 map[string]string             `json:"ci"`
	HistoryLimit       *int                          `json:"history_limit"`
	History            []HistoryEntry                `json:"history"`
}

// LoggingStatus describes the active log configuration.
type LoggingStatus struct {
	Level          string  `json:"level"`
	LevelNumeric   int     `json:"level_numeric"`
	LogFileEnabled bool    `json:"log_file_enabled"`
	LogPath        *string `json:"log_path"`
}

// SnapshotSettings describes the snapshot policy in force.
type SnapshotSettings struct {
	Enabled   bool `json:"enabled"`
	Retention *int `json:"retention"`
}

// LoopStatus describes the scheduling configuration of the attempt.
type LoopStatus struct {
	Enabled         bool `json:"enabled"`
	IntervalSeconds int  `json:"interval_seconds"`
	BackoffSeconds  int  `json:"backoff_seconds"`
	MaxIterations   *int `json:"max_iterations"`
}

// PathStatus lists every artifact location the agent resolved.
type PathStatus struct {
	BaseDir   string  `json:"base_dir"`
	State     string  `json:"state"`
	Snapshots string  `json:"snapshots"`
	Report    string  `json:"report"`
	Status    string  `json:"status"`
	Heartbeat string  `json:"heartbeat"`
	Log       *string `json:"log"`
}

// AgentStatus identifies the agent build.
type AgentStatus struct {
	Version  string `json:"version"`
	Go       string `json:"go"`
	Platform string `json:"platform"`
}

// HistoryEntry is one persisted run in payload form, with a rendered
// ISO timestamp alongside the raw epoch seconds.
type HistoryEntry struct {
	RunID           int                           `json:"run_id"`
	Timestamp       float64                       `json:"timestamp"`
	ISO             string                        `json:"iso"`
	ChangedFiles    []string                      `json:"changed_files"`
	DurationSeconds *float64                      `json:"duration_seconds"`
	MissingFiles    []string                      `json:"missing_files"`
	Error           *string                       `json:"error"`
	ChangeDetails   map[string]state.ChangeDetail `json:"change_details"`
	ChangeSummary   map[string]int                `json:"change_summary"`
}

// BuildPayload converts an attempt outcome into the status payload.
//
// Description:
//
//	Purely a projection; no filesystem or clock access beyond what the
//	Result already carries. Nil collections become empty JSON arrays
//	and objects so consumers can index without null checks.
//
// Inputs:
//
//	res - The attempt outcome.
//
// Outputs:
//
//	*Payload - Never nil.
func BuildPayload(res *Result) *Payload {
	cfg := res.Config

	history := make([]HistoryEntry, 0, len(res.History))
	for _, entry := range res.History {
		history = append(history, HistoryEntry{
			RunID:           entry.RunID,
			Timestamp:       entry.Timestamp,
			ISO:             isoUTC(entry.Timestamp),
			ChangedFiles:    orEmpty(entry.ChangedFiles),
			DurationSeconds: entry.DurationSeconds,
			MissingFiles:    orEmpty(entry.MissingFiles),
			Error:           entry.Error,
			ChangeDetails:   detailsOrEmpty(entry.ChangeDetails),
			ChangeSummary:   summaryOrEmpty(entry.ChangeSummary),
		})
	}

	return &Payload{
		RunID:              res.RunID,
		NextRunID:          res.NextRunID,
		RunTimestamp:       res.Timestamp,
		RunISO:             isoUTC(res.Timestamp),
		RunDurationSeconds: res.Duration,
		Logging: LoggingStatus{
			Level:          cfg.LogLevel.String(),
			LevelNumeric:   cfg.LogLevel.Numeric(),
			LogFileEnabled: cfg.LogFileEnabled,
			LogPath:        optionalString(cfg.LogPath),
		},
		ChangedFiles:    orEmpty(res.ChangedFiles),
		ChangeDetails:   detailsOrEmpty(res.ChangeDetails),
		ChangeSummary:   summaryOrEmpty(res.ChangeSummary),
		MissingFiles:    orEmpty(res.MissingFiles),
		SnapshotPath:    optionalString(res.SnapshotPath),
		PrunedSnapshots: orEmpty(res.PrunedSnapshots),
		Digests:         stringsOrEmpty(res.Digests),
		Error:           res.Error,
		TrackedFiles:    cfg.Tracked.Names(),
		ResolvedPatches: cfg.Tracked.Paths(),
		PatchSources:    cfg.Tracked.Origins(),
		SnapshotSettings: SnapshotSettings{
			Enabled:   cfg.SnapshotsEnabled,
			Retention: optionalInt(cfg.SnapshotRetention),
		},
		Loop: LoopStatus{
			Enabled:         res.LoopEnabled,
			IntervalSeconds: intervalSeconds(cfg.Interval),
			BackoffSeconds:  intervalSeconds(cfg.Backoff),
			MaxIterations:   optionalInt(cfg.MaxIterations),
		},
		Paths: PathStatus{
			BaseDir:   cfg.BaseDir,
			State:     cfg.StatePath,
			Snapshots: cfg.SnapshotDir,
			Report:    cfg.ReportPath,
			Status:    cfg.StatusPath,
			Heartbeat: cfg.HeartbeatPath,
			Log:       optionalString(cfg.LogPath),
		},
		Agent: AgentStatus{
			Version:  config.Version,
			Go:       res.Runtime.GoVersion,
			Platform: res.Runtime.Platform,
		},
		CI:           stringsOrEmpty(res.CI),
		HistoryLimit: optionalInt(cfg.HistoryLimit),
		History:      history,
	}
}

// WriteStatus builds the payload and writes it as indented JSON,
// creating parent directories. The payload is returned so callers can
// reuse it for CI outputs without rebuilding.
func WriteStatus(path string, res *Result) (*Payload, error) {
	payload := BuildPayload(res)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("create status directory: %w", err)
	}
	data, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode status payload: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return nil, fmt.Errorf("write status payload: %w", err)
	}
	return payload, nil
}

func detailsOrEmpty(m map[string]state.ChangeDetail) map[string]state.ChangeDetail {
	if m == nil {
		return map[string]state.ChangeDetail{}
	}
	return m
}

func summaryOrEmpty(m map[string]int) map[string]int {
	if m == nil {
		return map[string]int{}
	}
	return m
}

func stringsOrEmpty(m map[string]string) map[string]string {
	if m == nil {
		return map[string]string{}
	}
	return m
}
