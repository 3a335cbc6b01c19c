// Copyright (C) 2026 Pantheon Ops (dev@pantheon-ops.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package state

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/pantheon-ops/sentinel/pkg/logging"
)

// ErrInvalidInput indicates a caller passed invalid parameters.
var ErrInvalidInput = errors.New("invalid input")

// Store reads and writes the agent state file. A missing file yields a fresh
// state; unrecognized content degrades to a fresh state with a warning rather
// than aborting the run.
type Store struct {
	path   string
	logger *logging.Logger
}

// NewStore creates a store bound to the given state file path.
func NewStore(path string, logger *logging.Logger) *Store {
	if logger == nil {
		logger = logging.Default()
	}
	return &Store{path: path, logger: logger}
}

// Path returns the state file path the store reads and writes.
func (s *Store) Path() string {
	return s.path
}

// Load reads the persisted agent state.
//
// Description:
//
//	Reads and decodes the state file, migrating legacy shapes transparently.
//	The first agent versions persisted a bare name -> digest map; that shape
//	is detected by the absence of a "digests" key and wrapped into a full
//	state with empty history. Later versions lacked the "missing" array,
//	which defaults to empty. Run IDs absent from old history entries are
//	backfilled positionally and the run counter re-derived.
//
// Outputs:
//
//	*AgentState - Never nil on success. A missing or undecodable file yields
//	              a fresh empty state.
//	error - Non-nil only for real I/O failures (for example permissions).
func (s *Store) Load() (*AgentState, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return NewAgentState(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("read state %s: %w", s.path, err)
	}
	return s.decode(data), nil
}

// Save persists the agent state atomically.
//
// Description:
//
//	Serializes the state to indented JSON and writes it via temp file +
//	fsync + rename, so a reader never observes a partial document and a
//	crash mid-write leaves the previous state intact. Parent directories
//	are created as needed. History is truncated to the newest historyLimit
//	entries before writing; the in-memory state is not modified.
//
// Inputs:
//
//	st - The state to persist. Must not be nil.
//	historyLimit - Maximum history entries to persist; <= 0 keeps all.
//
// Outputs:
//
//	error - Non-nil if marshaling or any file operation fails.
func (s *Store) Save(st *AgentState, historyLimit int) error {
	if st == nil {
		return fmt.Errorf("%w: state must not be nil", ErrInvalidInput)
	}

	history := st.History
	if historyLimit > 0 && len(history) > historyLimit {
		history = history[len(history)-historyLimit:]
	}

	doc := stateDocument{
		Digests:   st.Digests,
		Missing:   st.Missing,
		History:   make([]RunRecord, len(history)),
		NextRunID: st.NextRunID,
	}
	if doc.Digests == nil {
		doc.Digests = map[string]string{}
	}
	if doc.Missing == nil {
		doc.Missing = []string{}
	}
	for i, entry := range history {
		entry.normalize()
		doc.History[i] = entry
	}

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal state: %w", err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create state directory: %w", err)
	}

	tempFile, err := os.CreateTemp(dir, ".state-*.tmp")
	if err != nil {
		return fmt.Errorf("create temp state file: %w", err)
	}
	tempPath := tempFile.Name()

	// Ensure cleanup on failure
	success := false
	defer func() {
		if !success {
			os.Remove(tempPath)
		}
	}()

	if _, err := tempFile.Write(data); err != nil {
		tempFile.Close()
		return fmt.Errorf("write state: %w", err)
	}

	if err := tempFile.Sync(); err != nil {
		tempFile.Close()
		return fmt.Errorf("sync state: %w", err)
	}

	if err := tempFile.Close(); err != nil {
		return fmt.Errorf("close state: %w", err)
	}

	// Atomic replace
	if err := os.Rename(tempPath, s.path); err != nil {
		return fmt.Errorf("rename state: %w", err)
	}

	success = true
	return nil
}

// stateDocument is the on-disk shape of the current state format.
type stateDocument struct {
	Digests   map[string]string `json:"digests"`
	Missing   []string          `json:"missing"`
	History   []RunRecord       `json:"history"`
	NextRunID int               `json:"next_run_id"`
}

// historyEntry tolerates the field variations of older state files: run IDs
// under "id", absent run IDs, and null collections.
type historyEntry struct {
	RunID           *int                    `json:"run_id"`
	LegacyID        *int                    `json:"id"`
	Timestamp       float64                 `json:"timestamp"`
	ChangedFiles    []string                `json:"changed_files"`
	DurationSeconds *float64                `json:"duration_seconds"`
	MissingFiles    []string                `json:"missing_files"`
	Error           *string                 `json:"error"`
	ChangeDetails   map[string]ChangeDetail `json:"change_details"`
	ChangeSummary   map[string]int          `json:"change_summary"`
}

// decode normalizes any recognized state shape into an AgentState. Content
// that cannot be interpreted degrades to a fresh state with a warning so a
// corrupt file does not wedge the agent permanently.
func (s *Store) decode(data []byte) *AgentState {
	var probe map[string]json.RawMessage
	if err := json.Unmarshal(data, &probe); err != nil {
		s.logger.Warn("state file is not a JSON object; starting fresh", "path", s.path, "error", err)
		return NewAgentState()
	}

	if _, ok := probe["digests"]; !ok {
		// Legacy shape: a bare name -> digest map.
		var flat map[string]string
		if err := json.Unmarshal(data, &flat); err != nil {
			s.logger.Warn("unrecognized state shape; starting fresh", "path", s.path, "error", err)
			return NewAgentState()
		}
		st := NewAgentState()
		if flat != nil {
			st.Digests = flat
		}
		s.logger.Info("migrated legacy flat digest map", "path", s.path, "tracked", len(st.Digests))
		return st
	}

	var doc struct {
		Digests   map[string]string `json:"digests"`
		Missing   []string          `json:"missing"`
		History   []historyEntry    `json:"history"`
		NextRunID int               `json:"next_run_id"`
	}
	if err := json.Unmarshal(data, &doc); err != nil {
		s.logger.Warn("state document failed to decode; starting fresh", "path", s.path, "error", err)
		return NewAgentState()
	}

	st := NewAgentState()
	if doc.Digests != nil {
		st.Digests = doc.Digests
	}
	if doc.Missing != nil {
		st.Missing = doc.Missing
	}

	maxRunID := 0
	for index, entry := range doc.History {
		record := RunRecord{
			Timestamp:       entry.Timestamp,
			ChangedFiles:    entry.ChangedFiles,
			DurationSeconds: entry.DurationSeconds,
			MissingFiles:    entry.MissingFiles,
			Error:           entry.Error,
			ChangeDetails:   entry.ChangeDetails,
			ChangeSummary:   entry.ChangeSummary,
		}
		switch {
		case entry.RunID != nil && *entry.RunID > 0:
			record.RunID = *entry.RunID
		case entry.LegacyID != nil && *entry.LegacyID > 0:
			record.RunID = *entry.LegacyID
		default:
			record.RunID = index + 1
		}
		if record.RunID > maxRunID {
			maxRunID = record.RunID
		}
		record.normalize()
		st.History = append(st.History, record)
	}

	if doc.NextRunID > 0 {
		st.NextRunID = doc.NextRunID
	} else {
		st.NextRunID = maxRunID + 1
	}

	return st
}
