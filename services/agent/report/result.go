// Copyright (C) 2026 Pantheon Ops (dev@pantheon-ops.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package report renders the artifacts the agent publishes after every
// execution attempt: the markdown report, the status JSON payload, the
// heartbeat file, and the GitHub Actions outputs. All four are derived
// views over a single Result; nothing here mutates state or reads it
// back.
//
// The rendered shapes are stable interfaces. CI jobs parse the status
// payload and the pantheon_* outputs, and operators grep the heartbeat,
// so line and key layout changes are breaking changes.
package report

import (
	"fmt"
	"runtime"
	"time"

	"github.com/pantheon-ops/sentinel/services/agent/config"
	"github.com/pantheon-ops/sentinel/services/agent/state"
)

// RuntimeInfo identifies the toolchain and platform the agent runs on.
type RuntimeInfo struct {
	GoVersion string `json:"go"`
	Platform  string `json:"platform"`
}

// GatherRuntimeInfo captures the running binary's Go version and platform.
func GatherRuntimeInfo() RuntimeInfo {
	return RuntimeInfo{
		GoVersion: runtime.Version(),
		Platform:  runtime.GOOS + "/" + runtime.GOARCH,
	}
}

// Result is the complete outcome of one execution attempt, successful or
// failed, together with the resolved configuration it ran under.
//
// # Description
//
// The run orchestrator builds exactly one Result per attempt and hands
// it to every sink. On success Duration is set and Error is nil; on
// failure Error is set, Duration is nil, and the change fields carry
// whatever the fallback state knew. Collections may be nil; renderers
// treat nil as empty.
type Result struct {
	Config      *config.Config
	LoopEnabled bool

	// Timestamp is the run time in seconds since the Unix epoch. RunID is
	// nil when the attempt failed before a run ID could be assigned.
	Timestamp float64
	Duration  *float64
	RunID     *int
	NextRunID int

	Digests         map[string]string
	ChangedFiles    []string
	MissingFiles    []string
	ChangeDetails   map[string]state.ChangeDetail
	ChangeSummary   map[string]int
	SnapshotPath    string
	PrunedSnapshots []string

	History []state.RunRecord

	Error *string

	Runtime RuntimeInfo
	CI      map[string]string
}

// Changed reports whether the attempt detected any file changes.
func (r *Result) Changed() bool {
	return len(r.ChangedFiles) > 0
}

// MissingDetected reports whether the attempt found any tracked files
// absent on disk.
func (r *Result) MissingDetected() bool {
	return len(r.MissingFiles) > 0
}

// isoUTC renders epoch seconds as an ISO-8601 UTC timestamp without a
// zone suffix. Every artifact uses UTC so outputs compare cleanly
// across hosts and CI runners.
func isoUTC(secs float64) string {
	return time.Unix(0, int64(secs*float64(time.Second))).UTC().Format("2006-01-02T15:04:05.999999")
}

// isoNow is isoUTC for the current moment.
func isoNow() string {
	return time.Now().UTC().Format("2006-01-02T15:04:05.999999")
}

// formatDuration renders a duration in seconds with millisecond
// precision, or "(unknown)" when the attempt produced none.
func formatDuration(d *float64, suffix string) string {
	if d == nil {
		return "(unknown)"
	}
	return fmt.Sprintf("%.3f%s", *d, suffix)
}

// idLine renders "Label: N" or "Label: (unknown)" for a nil-able run ID.
func idLine(label string, id *int) string {
	if id == nil {
		return label + ": (unknown)"
	}
	return fmt.Sprintf("%s: %d", label, *id)
}

// orEmpty returns a non-nil slice for range-and-marshal convenience.
func orEmpty(values []string) []string {
	if values == nil {
		return []string{}
	}
	return values
}

// intervalSeconds converts a config duration to the whole seconds the
// status payload records.
func intervalSeconds(d time.Duration) int {
	return int(d / time.Second)
}

// optionalInt maps the "zero means unlimited" config convention onto a
// nil-able pointer for JSON payloads.
func optionalInt(n int) *int {
	if n <= 0 {
		return nil
	}
	return &n
}

// optionalString maps empty strings onto nil for JSON payloads.
func optionalString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
