// Copyright (C) 2026 Pantheon Ops (dev@pantheon-ops.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package state

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// -----------------------------------------------------------------------------
// AgentState Tests
// -----------------------------------------------------------------------------

func TestNewAgentState(t *testing.T) {
	st := NewAgentState()
	require.NotNil(t, st)
	assert.Empty(t, st.Digests)
	assert.Empty(t, st.Missing)
	assert.Empty(t, st.History)
	assert.Equal(t, 1, st.NextRunID)
}

func TestRecordRun_MonotonicIDs(t *testing.T) {
	st := NewAgentState()

	errMsg := "digest failed"
	for i := 0; i < 5; i++ {
		entry := RunRecord{ChangedFiles: []string{"a.json"}}
		if i == 2 {
			entry = RunRecord{Error: &errMsg}
		}
		id := st.RecordRun(entry, DefaultHistoryLimit)
		assert.Equal(t, i+1, id)
	}

	require.Len(t, st.History, 5)
	for i, rec := range st.History {
		assert.Equal(t, i+1, rec.RunID)
	}
	assert.Equal(t, 6, st.NextRunID)
}

func TestRecordRun_TruncatesHistory(t *testing.T) {
	st := NewAgentState()

	for i := 0; i < 5; i++ {
		st.RecordRun(RunRecord{}, 3)
	}

	require.Len(t, st.History, 3)
	assert.Equal(t, 3, st.History[0].RunID)
	assert.Equal(t, 5, st.History[2].RunID)
	assert.Equal(t, 6, st.NextRunID)
}

func TestRecordRun_UnlimitedHistory(t *testing.T) {
	st := NewAgentState()

	for i := 0; i < 30; i++ {
		st.RecordRun(RunRecord{}, 0)
	}

	assert.Len(t, st.History, 30)
}

func TestRecordRun_NormalizesCollections(t *testing.T) {
	st := NewAgentState()
	st.RecordRun(RunRecord{}, DefaultHistoryLimit)

	rec := st.History[0]
	assert.NotNil(t, rec.ChangedFiles)
	assert.NotNil(t, rec.MissingFiles)
	assert.NotNil(t, rec.ChangeDetails)
	assert.NotNil(t, rec.ChangeSummary)
}

func TestRecordRun_StampsTimestamp(t *testing.T) {
	st := NewAgentState()

	before := float64(time.Now().UnixNano()) / float64(time.Second)
	st.RecordRun(RunRecord{}, DefaultHistoryLimit)
	after := float64(time.Now().UnixNano()) / float64(time.Second)

	ts := st.History[0].Timestamp
	assert.GreaterOrEqual(t, ts, before)
	assert.LessOrEqual(t, ts, after)
}

func TestRecordRun_PresetTimestampKept(t *testing.T) {
	st := NewAgentState()
	st.RecordRun(RunRecord{Timestamp: 1700000000.5}, DefaultHistoryLimit)

	assert.Equal(t, 1700000000.5, st.History[0].Timestamp)
}

func TestLastRun(t *testing.T) {
	st := NewAgentState()
	assert.Nil(t, st.LastRun())

	st.RecordRun(RunRecord{ChangedFiles: []string{"a"}}, DefaultHistoryLimit)
	st.RecordRun(RunRecord{ChangedFiles: []string{"b"}}, DefaultHistoryLimit)

	last := st.LastRun()
	require.NotNil(t, last)
	assert.Equal(t, 2, last.RunID)
	assert.Equal(t, []string{"b"}, last.ChangedFiles)
}

func TestRunRecord_Time(t *testing.T) {
	rec := RunRecord{Timestamp: 1700000000}
	got := rec.Time()
	assert.Equal(t, time.Unix(1700000000, 0).UTC(), got)
	assert.Equal(t, time.UTC, got.Location())
}
