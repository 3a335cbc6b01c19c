// Copyright (C) 2026 Pantheon Ops (dev@pantheon-ops.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package state owns the agent's persisted run state: the digest map from the
// last successful run, the names currently known to be missing, a bounded
// history of run records, and the monotonic run ID counter. The state file is
// the sole source of truth; everything else the agent publishes (reports,
// status payloads, CI outputs) is derived from it and never fed back in.
package state

import (
	"time"
)

// DefaultHistoryLimit bounds the persisted run history unless overridden.
// Zero or negative limits mean unlimited retention.
const DefaultHistoryLimit = 20

// ChangeDetail captures the before and after digests for one tracked file
// together with its classification. Field names match the persisted JSON so
// history written by earlier agent versions decodes without translation.
type ChangeDetail struct {
	PreviousDigest *string `json:"previous_digest"`
	CurrentDigest  *string `json:"current_digest"`
	Status         string  `json:"status"`
}

// RunRecord is the immutable log entry produced once per execution attempt.
// Timestamp is seconds since the Unix epoch; DurationSeconds and Error are
// nil for fields the attempt did not produce.
type RunRecord struct {
	RunID           int                     `json:"run_id"`
	Timestamp       float64                 `json:"timestamp"`
	ChangedFiles    []string                `json:"changed_files"`
	DurationSeconds *float64                `json:"duration_seconds"`
	MissingFiles    []string                `json:"missing_files"`
	Error           *string                 `json:"error"`
	ChangeDetails   map[string]ChangeDetail `json:"change_details"`
	ChangeSummary   map[string]int          `json:"change_summary"`
}

// Time converts the record's epoch-seconds timestamp to a UTC time.
func (r RunRecord) Time() time.Time {
	return time.Unix(0, int64(r.Timestamp*float64(time.Second))).UTC()
}

// normalize replaces nil collections with empty ones so persisted JSON always
// carries arrays and objects, matching what earlier agent versions wrote.
func (r *RunRecord) normalize() {
	if r.ChangedFiles == nil {
		r.ChangedFiles = []string{}
	}
	if r.MissingFiles == nil {
		r.MissingFiles = []string{}
	}
	if r.ChangeDetails == nil {
		r.ChangeDetails = map[string]ChangeDetail{}
	}
	if r.ChangeSummary == nil {
		r.ChangeSummary = map[string]int{}
	}
}

// AgentState holds everything the agent persists between runs. Missing lists
// the tracked names whose files were absent on the last run, so the detector
// can report a disappearance once instead of every iteration.
type AgentState struct {
	Digests   map[string]string
	Missing   []string
	History   []RunRecord
	NextRunID int
}

// NewAgentState returns an empty state ready for a first run.
func NewAgentState() *AgentState {
	return &AgentState{
		Digests:   map[string]string{},
		Missing:   []string{},
		History:   []RunRecord{},
		NextRunID: 1,
	}
}

// RecordRun appends one run entry at the next monotonic run ID.
//
// Description:
//
//	Stamps the entry with the next run ID, increments the counter, and
//	truncates the in-memory history to the newest historyLimit entries.
//	Called exactly once per execution attempt, success or failure, so run
//	IDs stay contiguous across crashes and failed iterations.
//
// Inputs:
//
//	entry - The run outcome. RunID is overwritten; a zero Timestamp is
//	        replaced with the current time (tests may pre-set it).
//	historyLimit - Maximum history entries to retain; <= 0 keeps all.
//
// Outputs:
//
//	int - The run ID assigned to this entry.
func (s *AgentState) RecordRun(entry RunRecord, historyLimit int) int {
	entry.RunID = s.NextRunID
	if entry.Timestamp == 0 {
		entry.Timestamp = unixSeconds(time.Now())
	}
	entry.normalize()

	s.History = append(s.History, entry)
	s.NextRunID++

	if historyLimit > 0 && len(s.History) > historyLimit {
		s.History = append([]RunRecord(nil), s.History[len(s.History)-historyLimit:]...)
	}

	return entry.RunID
}

// LastRun returns the most recent history entry, or nil if none exist.
func (s *AgentState) LastRun() *RunRecord {
	if len(s.History) == 0 {
		return nil
	}
	return &s.History[len(s.History)-1]
}

func unixSeconds(t time.Time) float64 {
	return float64(t.UnixNano()) / float64(time.Second)
}
