// Copyright (C) 2026 Pantheon Ops (dev@pantheon-ops.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package trackedfile merges the configured patch file lists into one
// ordered, de-duplicated set with provenance and resolved paths. Existence
// is not checked here; a configured file that is absent on disk is the
// digest computer's business, not the resolver's.
package trackedfile

import (
	"path/filepath"
	"strings"
)

// Origin records which configuration source introduced a tracked file.
type Origin string

const (
	OriginDefault Origin = "default"
	OriginConfig  Origin = "config"
	OriginEnv     Origin = "env"
	OriginCLI     Origin = "cli"
)

// DefaultPatchFiles returns the built-in patch documents the agent tracks
// when no other configuration is supplied.
func DefaultPatchFiles() []string {
	return []string{
		"Patches 1-25 – Pantheon of Oracles GPT.JSON",
		"Patches 26-41 – Pantheon of Oracles GPT.JSON",
	}
}

// File is one tracked document: its logical name, the absolute path it
// resolves to, and the configuration source that introduced it.
type File struct {
	Name   string
	Path   string
	Origin Origin
}

// Set is the ordered, de-duplicated collection of tracked files for a run.
type Set struct {
	files []File
}

// ParseEnvList splits a comma-separated environment value into trimmed,
// non-empty entries.
func ParseEnvList(value string) []string {
	if value == "" {
		return nil
	}
	var files []string
	for _, entry := range strings.Split(value, ",") {
		if trimmed := strings.TrimSpace(entry); trimmed != "" {
			files = append(files, trimmed)
		}
	}
	return files
}

// Sources holds the per-origin name lists feeding a Resolve call, in
// precedence order. Any list may be nil.
type Sources struct {
	Defaults []string
	Config   []string
	Env      []string
	CLI      []string
}

// Resolve merges the configuration sources into a tracked file set.
//
// Description:
//
//	Names are appended in source order (defaults, then config file, then
//	environment, then CLI); the first source to introduce a name wins and
//	later duplicates are dropped entirely, not merged. Absolute names
//	pass through untouched; relative names are joined to baseDir.
//
// Inputs:
//
//	baseDir - Directory relative names resolve under.
//	src - Ordered name lists per source.
//
// Outputs:
//
//	*Set - Never nil; may be empty if all sources are empty.
func Resolve(baseDir string, src Sources) *Set {
	set := &Set{}
	seen := map[string]bool{}

	appendUnique := func(name string, origin Origin) {
		if seen[name] {
			return
		}
		seen[name] = true
		set.files = append(set.files, File{
			Name:   name,
			Path:   resolveUnder(baseDir, name),
			Origin: origin,
		})
	}

	for _, name := range src.Defaults {
		appendUnique(name, OriginDefault)
	}
	for _, name := range src.Config {
		appendUnique(name, OriginConfig)
	}
	for _, name := range src.Env {
		appendUnique(name, OriginEnv)
	}
	for _, name := range src.CLI {
		appendUnique(name, OriginCLI)
	}

	return set
}

// resolveUnder joins path to baseDir unless it is already absolute.
func resolveUnder(baseDir, path string) string {
	if filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(baseDir, path)
}

// Len returns the number of tracked files.
func (s *Set) Len() int {
	return len(s.files)
}

// Files returns the tracked files in configuration order.
func (s *Set) Files() []File {
	out := make([]File, len(s.files))
	copy(out, s.files)
	return out
}

// Names returns the logical names in configuration order.
func (s *Set) Names() []string {
	names := make([]string, len(s.files))
	for i, f := range s.files {
		names[i] = f.Name
	}
	return names
}

// Paths returns the logical name to resolved path mapping.
func (s *Set) Paths() map[string]string {
	paths := make(map[string]string, len(s.files))
	for _, f := range s.files {
		paths[f.Name] = f.Path
	}
	return paths
}

// Origins returns the logical name to origin mapping, with origins as
// strings for direct use in reports and status payloads.
func (s *Set) Origins() map[string]string {
	origins := make(map[string]string, len(s.files))
	for _, f := range s.files {
		origins[f.Name] = string(f.Origin)
	}
	return origins
}

// Contains reports whether the set tracks the given logical name.
func (s *Set) Contains(name string) bool {
	for _, f := range s.files {
		if f.Name == name {
			return true
		}
	}
	return false
}
