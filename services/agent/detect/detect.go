// Copyright (C) 2026 Pantheon Ops (dev@pantheon-ops.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package detect classifies tracked files by comparing the previous run's
// digests and missing set against the current ones. Only drift is emitted:
// unchanged files never appear in the output, a file missing across
// consecutive runs is reported on the transition only, and a name that left
// the configuration gets exactly one final removed entry before dropping
// out of state.
package detect

import (
	"sort"
	"strings"

	"github.com/pantheon-ops/sentinel/services/agent/state"
)

// Change classifications.
const (
	StatusAdded    = "added"
	StatusModified = "modified"
	StatusRemoved  = "removed"
	StatusMissing  = "missing"
)

// Input carries both sides of one detection pass. Previous values come from
// persisted state; current values from this run's digest pass. TrackedNames
// is the resolver's configuration-ordered name list.
type Input struct {
	PreviousDigests map[string]string
	PreviousMissing []string
	CurrentDigests  map[string]string
	CurrentMissing  []string
	TrackedNames    []string
}

// Changes is the detector output: changed names in deterministic order and
// per-name details for everything that is not unchanged.
type Changes struct {
	Names   []string
	Details map[string]state.ChangeDetail
	Summary map[string]int
}

// Detect runs one classification pass.
//
// Description:
//
//	Walks tracked names in configuration order, then any leftover names
//	still present in previous state but no longer tracked (sorted, so
//	output order is deterministic). Classification per name:
//	  - no longer tracked            -> removed (final entry)
//	  - absent on disk, newly so     -> missing
//	  - absent on disk, already known -> skipped
//	  - present without prior digest -> added (covers reappearance)
//	  - present with differing digest -> modified
//	  - present, reappeared with the last known digest -> added
//	  - present and identical        -> skipped
//
// Outputs:
//
//	Changes - Names, details, and a status -> count summary. Collections
//	          are never nil.
func Detect(in Input) Changes {
	prevMissing := toSet(in.PreviousMissing)
	curMissing := toSet(in.CurrentMissing)
	tracked := toSet(in.TrackedNames)

	changes := Changes{
		Names:   []string{},
		Details: map[string]state.ChangeDetail{},
	}

	for _, name := range orderedNames(in, tracked) {
		status, emit := classify(in, name, tracked, prevMissing, curMissing)
		if !emit {
			continue
		}

		detail := state.ChangeDetail{Status: status}
		if prev, ok := in.PreviousDigests[name]; ok {
			detail.PreviousDigest = &prev
		}
		if cur, ok := in.CurrentDigests[name]; ok {
			detail.CurrentDigest = &cur
		}

		changes.Names = append(changes.Names, name)
		changes.Details[name] = detail
	}

	changes.Summary = Summarize(changes.Details)
	return changes
}

// Summarize aggregates change counts by status for quick diagnostics.
func Summarize(details map[string]state.ChangeDetail) map[string]int {
	summary := map[string]int{}
	for _, detail := range details {
		status := strings.ToLower(detail.Status)
		if status == "" {
			status = "unknown"
		}
		summary[status]++
	}
	return summary
}

func classify(in Input, name string, tracked, prevMissing, curMissing map[string]bool) (string, bool) {
	prev, hasPrev := in.PreviousDigests[name]
	cur, hasCur := in.CurrentDigests[name]

	if !tracked[name] {
		return StatusRemoved, true
	}

	if curMissing[name] {
		if prevMissing[name] {
			return "", false
		}
		return StatusMissing, true
	}

	if !hasCur {
		// Tracked but absent from the digest pass: a stale state entry.
		if hasPrev {
			return StatusRemoved, true
		}
		return "", false
	}

	switch {
	case !hasPrev:
		return StatusAdded, true
	case prev != cur:
		return StatusModified, true
	case prevMissing[name]:
		// Reappeared byte-identical to the last known content. Surface the
		// return rather than folding it into unchanged.
		return StatusAdded, true
	default:
		return "", false
	}
}

// orderedNames yields tracked names in configuration order followed by
// no-longer-tracked leftovers from previous state, sorted by name.
func orderedNames(in Input, tracked map[string]bool) []string {
	names := append([]string{}, in.TrackedNames...)

	leftoverSet := map[string]bool{}
	for name := range in.PreviousDigests {
		if !tracked[name] {
			leftoverSet[name] = true
		}
	}
	for _, name := range in.PreviousMissing {
		if !tracked[name] {
			leftoverSet[name] = true
		}
	}

	leftovers := make([]string, 0, len(leftoverSet))
	for name := range leftoverSet {
		leftovers = append(leftovers, name)
	}
	sort.Strings(leftovers)

	return append(names, leftovers...)
}

func toSet(names []string) map[string]bool {
	set := make(map[string]bool, len(names))
	for _, name := range names {
		set[name] = true
	}
	return set
}
