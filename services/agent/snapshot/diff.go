// Copyright (C) 2026 Pantheon Ops (dev@pantheon-ops.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package snapshot

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/pmezard/go-difflib/difflib"
)

// diffContextLines is the number of context lines in unified hunks.
const diffContextLines = 3

// Diff produces a unified diff for one logical name between two snapshots.
//
// Description:
//
//	Reads the copy of name from each snapshot directory (by directory
//	name under the archiver root) and renders a classic unified patch. A
//	copy absent from one side diffs against empty content, so additions
//	and removals between snapshots render naturally.
//
// Inputs:
//
//	olderDir, newerDir - Snapshot directory names as returned by List.
//	name - Logical file name to compare.
//
// Outputs:
//
//	string - Unified diff body; empty when the copies are identical.
//	error - Non-nil if either snapshot directory does not exist.
func (a *Archiver) Diff(olderDir, newerDir, name string) (string, error) {
	older, err := a.readCopy(olderDir, name)
	if err != nil {
		return "", err
	}
	newer, err := a.readCopy(newerDir, name)
	if err != nil {
		return "", err
	}

	diff := difflib.UnifiedDiff{
		A:        splitLinesKeepNL(older),
		B:        splitLinesKeepNL(newer),
		FromFile: filepath.Join(olderDir, name),
		ToFile:   filepath.Join(newerDir, name),
		Context:  diffContextLines,
	}
	body, err := difflib.GetUnifiedDiffString(diff)
	if err != nil {
		return "", fmt.Errorf("render diff for %s: %w", name, err)
	}
	return body, nil
}

// DiffLive produces a unified diff between a snapshot's copy of name and
// the live file at livePath. A missing live file diffs against empty
// content, so a deleted tracked file renders as a pure removal.
func (a *Archiver) DiffLive(dir, name, livePath string) (string, error) {
	archived, err := a.readCopy(dir, name)
	if err != nil {
		return "", err
	}
	live, err := os.ReadFile(livePath)
	if err != nil && !os.IsNotExist(err) {
		return "", fmt.Errorf("read live file %s: %w", livePath, err)
	}

	diff := difflib.UnifiedDiff{
		A:        splitLinesKeepNL(archived),
		B:        splitLinesKeepNL(string(live)),
		FromFile: filepath.Join(dir, name),
		ToFile:   livePath,
		Context:  diffContextLines,
	}
	body, err := difflib.GetUnifiedDiffString(diff)
	if err != nil {
		return "", fmt.Errorf("render diff for %s: %w", name, err)
	}
	return body, nil
}

// readCopy loads one snapshot's copy of name, or empty content if the copy
// is absent from an existing snapshot.
func (a *Archiver) readCopy(dir, name string) (string, error) {
	if _, err := os.Stat(filepath.Join(a.root, dir)); err != nil {
		return "", fmt.Errorf("snapshot %s: %w", dir, err)
	}

	data, err := os.ReadFile(filepath.Join(a.root, dir, name))
	if err != nil {
		if os.IsNotExist(err) {
			return "", nil
		}
		return "", fmt.Errorf("read snapshot copy %s/%s: %w", dir, name, err)
	}
	return string(data), nil
}

// splitLinesKeepNL splits content into lines that keep their trailing
// newline, which produces better unified hunks.
func splitLinesKeepNL(s string) []string {
	if s == "" {
		return []string{}
	}
	return strings.SplitAfter(s, "\n")
}
