// Copyright (C) 2026 Pantheon Ops (dev@pantheon-ops.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package config assembles the agent's immutable runtime configuration.
//
// Precedence, lowest to highest: built-in defaults, the YAML config file,
// environment variables, CLI flags. The resolved Config is built once at
// startup and threaded explicitly; nothing reads the environment after
// Load returns.
package config

import (
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/pantheon-ops/sentinel/pkg/logging"
	"github.com/pantheon-ops/sentinel/services/agent/trackedfile"
)

// Version is the agent version reported in logs, reports, and CI outputs.
const Version = "0.1.0"

// Default artifact locations, relative to the base directory.
const (
	DefaultStatePath     = "state/persistent_agent_state.json"
	DefaultSnapshotDir   = "state/patch_snapshots"
	DefaultReportPath    = "state/persistent_agent_report.md"
	DefaultStatusPath    = "state/persistent_agent_status.json"
	DefaultHeartbeatPath = "state/persistent_agent_heartbeat.txt"
	DefaultLogPath       = "state/persistent_agent.log"
	DefaultJournalDir    = "state/journal"
)

// Loop timing defaults, in whole seconds to match the flag surface.
const (
	DefaultIntervalSeconds = 300
	DefaultBackoffSeconds  = 60
)

// DefaultHistoryLimit is the number of runs retained in persisted state
// when nothing overrides it. Zero means unlimited.
const DefaultHistoryLimit = 20

// Config is the fully resolved agent configuration.
//
// # Description
//
// All paths are absolute or base-dir joined, all durations parsed, the
// tracked file set merged with provenance. A zero HistoryLimit or
// SnapshotRetention means unlimited. Treat as read-only after Load.
type Config struct {
	BaseDir string           `validate:"required"`
	Tracked *trackedfile.Set `validate:"required"`

	StatePath     string `validate:"required"`
	SnapshotDir   string `validate:"required"`
	ReportPath    string `validate:"required"`
	StatusPath    string `validate:"required"`
	HeartbeatPath string `validate:"required"`

	// LogPath is empty when file logging is disabled.
	LogPath        string
	LogFileEnabled bool
	LogLevel       logging.Level
	LogLevelName   string `validate:"required"`

	HistoryLimit      int `validate:"gte=0"`
	SnapshotRetention int `validate:"gte=0"`
	SnapshotsEnabled  bool

	Interval      time.Duration `validate:"gte=0"`
	Backoff       time.Duration `validate:"gte=0"`
	MaxIterations int           `validate:"gte=0"`

	LockEnabled bool

	JournalEnabled bool
	JournalDir     string

	ServeAddr string
}

// configValidate is the validator instance for config structs.
// Initialized in init() with custom validators.
var configValidate *validator.Validate

func init() {
	configValidate = validator.New()
	_ = configValidate.RegisterValidation("loglevel", validateLogLevelName)
}

// validateLogLevelName accepts any level name pkg/logging can parse.
func validateLogLevelName(fl validator.FieldLevel) bool {
	_, ok := logging.ParseLevel(fl.Field().String())
	return ok
}

// Validate checks the resolved configuration for internal consistency.
func (c *Config) Validate() error {
	return configValidate.Struct(c)
}

// File is the YAML configuration document.
//
// # Description
//
// Every field is optional; absent values fall through to built-in
// defaults and may still be overridden by environment variables and
// flags. Pointer fields distinguish "absent" from explicit zero, which
// matters for history_limit and snapshots.retention where zero means
// unlimited.
type File struct {
	BaseDir    string        `yaml:"base_dir,omitempty"`
	PatchFiles []string      `yaml:"patch_files"`
	Paths      FilePaths     `yaml:"paths"`
	Logging    FileLogging   `yaml:"logging"`
	History    FileHistory   `yaml:"history"`
	Snapshots  FileSnapshots `yaml:"snapshots"`
	Loop       FileLoop      `yaml:"loop"`
	Lock       FileLock      `yaml:"lock"`
	Journal    FileJournal   `yaml:"journal"`
	Serve      FileServe     `yaml:"serve"`
}

type FilePaths struct {
	State     string `yaml:"state,omitempty"`
	Snapshots string `yaml:"snapshots,omitempty"`
	Report    string `yaml:"report,omitempty"`
	Status    string `yaml:"status,omitempty"`
	Heartbeat string `yaml:"heartbeat,omitempty"`
	Log       string `yaml:"log,omitempty"`
}

type FileLogging struct {
	Level       string `yaml:"level,omitempty" validate:"omitempty,loglevel"`
	DisableFile bool   `yaml:"disable_file"`
}

type FileHistory struct {
	Limit *int `yaml:"limit,omitempty"`
}

type FileSnapshots struct {
	Retention *int `yaml:"retention,omitempty"`
	Disabled  bool `yaml:"disabled"`
}

type FileLoop struct {
	IntervalSeconds *int `yaml:"interval_seconds,omitempty" validate:"omitempty,gte=0"`
	BackoffSeconds  *int `yaml:"backoff_seconds,omitempty" validate:"omitempty,gte=0"`
	MaxIterations   *int `yaml:"max_iterations,omitempty" validate:"omitempty,gte=0"`
}

type FileLock struct {
	Enabled bool `yaml:"enabled"`
}

type FileJournal struct {
	Enabled bool   `yaml:"enabled"`
	Dir     string `yaml:"dir,omitempty"`
}

type FileServe struct {
	Addr string `yaml:"addr,omitempty"`
}

// Validate rejects config files with unparseable values.
//
// The file is the one user-authored layer, so it is validated strictly;
// environment values stay lenient, warning and falling back to defaults.
func (f *File) Validate() error {
	return configValidate.Struct(f)
}

// DefaultFile returns the document written on first run.
func DefaultFile() *File {
	historyLimit := DefaultHistoryLimit
	interval := DefaultIntervalSeconds
	backoff := DefaultBackoffSeconds
	return &File{
		PatchFiles: []string{},
		Paths: FilePaths{
			State:     DefaultStatePath,
			Snapshots: DefaultSnapshotDir,
			Report:    DefaultReportPath,
			Status:    DefaultStatusPath,
			Heartbeat: DefaultHeartbeatPath,
			Log:       DefaultLogPath,
		},
		Logging: FileLogging{
			Level: "info",
		},
		History: FileHistory{
			Limit: &historyLimit,
		},
		Snapshots: FileSnapshots{},
		Loop: FileLoop{
			IntervalSeconds: &interval,
			BackoffSeconds:  &backoff,
		},
		Journal: FileJournal{
			Dir: DefaultJournalDir,
		},
	}
}
