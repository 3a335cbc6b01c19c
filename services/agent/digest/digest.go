// Copyright (C) 2026 Pantheon Ops (dev@pantheon-ops.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package digest computes content digests for tracked files. Absence is
// data here, not an error: a tracked file that does not exist yields an
// explicit missing result, while any other I/O failure propagates so the
// caller can fail the whole run.
package digest

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"

	"github.com/pantheon-ops/sentinel/pkg/logging"
	"github.com/pantheon-ops/sentinel/services/agent/trackedfile"
)

// chunkSize bounds each read while hashing so large patch files do not get
// slurped into memory whole.
const chunkSize = 8192

// Result is the outcome of digesting one path: either a present hex digest
// or an explicit missing marker.
type Result struct {
	Digest  string
	Missing bool
}

// Computer hashes tracked files with SHA-256.
type Computer struct {
	logger *logging.Logger
}

// NewComputer creates a digest computer.
func NewComputer(logger *logging.Logger) *Computer {
	if logger == nil {
		logger = logging.Default()
	}
	return &Computer{logger: logger}
}

// Compute digests a single path.
//
// Description:
//
//	Opens the file and streams it through SHA-256 in bounded chunks. A
//	path that does not exist returns Result{Missing: true} with a nil
//	error. Every other failure (permissions, reading a directory, I/O
//	errors mid-stream) is returned as an error.
//
// Outputs:
//
//	Result - Present digest (64 char lowercase hex) or missing marker.
//	error - Non-nil only for genuine I/O failures.
func (c *Computer) Compute(path string) (Result, error) {
	fp, err := os.Open(path)
	if errors.Is(err, fs.ErrNotExist) {
		return Result{Missing: true}, nil
	}
	if err != nil {
		return Result{}, fmt.Errorf("open %s: %w", path, err)
	}
	defer fp.Close()

	sha := sha256.New()
	buf := make([]byte, chunkSize)
	if _, err := io.CopyBuffer(sha, fp, buf); err != nil {
		return Result{}, fmt.Errorf("hash %s: %w", path, err)
	}

	return Result{Digest: hex.EncodeToString(sha.Sum(nil))}, nil
}

// ComputeAll digests every file in the tracked set.
//
// Description:
//
//	Visits files in configuration order and splits the outcome into a
//	name -> digest map for files present on disk and an ordered list of
//	missing names. The first genuine I/O failure aborts the whole pass;
//	partial results are discarded by the caller, which records a failed
//	run instead.
//
// Outputs:
//
//	map[string]string - Digests for present files. Never nil.
//	[]string - Missing names in configuration order. Never nil.
//	error - First I/O failure, or nil.
func (c *Computer) ComputeAll(files []trackedfile.File) (map[string]string, []string, error) {
	digests := map[string]string{}
	missing := []string{}

	for _, f := range files {
		result, err := c.Compute(f.Path)
		if err != nil {
			return nil, nil, err
		}
		if result.Missing {
			c.logger.Warn("patch file missing", "name", f.Name, "path", f.Path)
			missing = append(missing, f.Name)
			continue
		}
		digests[f.Name] = result.Digest
	}

	return digests, missing, nil
}
