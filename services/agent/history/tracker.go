// Copyright (C) 2026 Pantheon Ops (dev@pantheon-ops.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package history keeps an in-memory window of recent loop iterations for
// liveness endpoints and diagnostics. Persisted run history lives in the
// state package; this tracker only mirrors what the current process has
// done since it started.
package history

import (
	"sync"
	"time"
)

// defaultCapacity bounds the window when the caller passes no useful size.
const defaultCapacity = 100

// IterationOutcome records one loop iteration's result.
type IterationOutcome struct {
	RunID        int
	Iteration    int
	StartedAt    time.Time
	Duration     time.Duration
	ChangedFiles []string
	MissingFiles []string
	Err          string
}

// Failed reports whether the iteration recorded an error.
func (o IterationOutcome) Failed() bool {
	return o.Err != ""
}

// Tracker is a fixed-size ring of iteration outcomes plus running counters
// that survive eviction.
//
// # Description
//
// Provides O(1) record and bounded memory for the last N iterations. When
// full, the oldest outcome is overwritten. Counters (total runs, total
// failures, consecutive failures) accumulate over the process lifetime.
//
// # Thread Safety
//
// Safe for concurrent use; the loop records while status endpoints read.
type Tracker struct {
	mu          sync.RWMutex
	data        []IterationOutcome
	head        int // next write position
	count       int
	total       int
	failures    int
	consecutive int
	lastSuccess time.Time
}

// NewTracker creates a tracker holding up to capacity outcomes.
func NewTracker(capacity int) *Tracker {
	if capacity <= 0 {
		capacity = defaultCapacity
	}
	return &Tracker{data: make([]IterationOutcome, capacity)}
}

// Record adds an outcome, overwriting the oldest once the window is full.
func (t *Tracker) Record(o IterationOutcome) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.data[t.head] = o
	t.head = (t.head + 1) % len(t.data)
	if t.count < len(t.data) {
		t.count++
	}

	t.total++
	if o.Failed() {
		t.failures++
		t.consecutive++
	} else {
		t.consecutive = 0
		t.lastSuccess = o.StartedAt.Add(o.Duration)
	}
}

// All returns the retained outcomes from oldest to newest.
func (t *Tracker) All() []IterationOutcome {
	t.mu.RLock()
	defer t.mu.RUnlock()

	if t.count == 0 {
		return nil
	}

	result := make([]IterationOutcome, t.count)
	if t.count == len(t.data) {
		// Wrapped: oldest sits at head.
		n := copy(result, t.data[t.head:])
		copy(result[n:], t.data[:t.head])
	} else {
		copy(result, t.data[:t.count])
	}
	return result
}

// Recent returns up to n outcomes, newest first.
func (t *Tracker) Recent(n int) []IterationOutcome {
	t.mu.RLock()
	defer t.mu.RUnlock()

	if n <= 0 || t.count == 0 {
		return nil
	}
	if n > t.count {
		n = t.count
	}

	result := make([]IterationOutcome, n)
	for i := 0; i < n; i++ {
		idx := t.head - 1 - i
		if idx < 0 {
			idx += len(t.data)
		}
		result[i] = t.data[idx]
	}
	return result
}

// Last returns the most recent outcome.
func (t *Tracker) Last() (IterationOutcome, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	if t.count == 0 {
		return IterationOutcome{}, false
	}
	idx := t.head - 1
	if idx < 0 {
		idx = len(t.data) - 1
	}
	return t.data[idx], true
}

// Len returns the number of retained outcomes.
func (t *Tracker) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.count
}

// Cap returns the window capacity.
func (t *Tracker) Cap() int {
	return len(t.data)
}

// Totals returns lifetime run and failure counts, including evicted entries.
func (t *Tracker) Totals() (runs, failures int) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.total, t.failures
}

// ConsecutiveFailures returns the current unbroken failure streak.
func (t *Tracker) ConsecutiveFailures() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.consecutive
}

// LastSuccess returns when the most recent successful iteration finished.
func (t *Tracker) LastSuccess() (time.Time, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.lastSuccess, !t.lastSuccess.IsZero()
}
