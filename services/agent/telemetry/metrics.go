// Copyright (C) 2026 Pantheon Ops (dev@pantheon-ops.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package telemetry

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/metric"
)

// Metrics holds the agent's instruments.
//
// Create once with NewMetrics after Init, then share across the run
// orchestrator and loop scheduler. All instruments are safe for
// concurrent use.
type Metrics struct {
	// RunsTotal counts completed agent runs, labeled by outcome.
	RunsTotal metric.Int64Counter

	// RunDuration records wall-clock run duration in seconds.
	RunDuration metric.Float64Histogram

	// ChangedFilesTotal counts tracked files reported as changed.
	ChangedFilesTotal metric.Int64Counter

	// MissingFilesTotal counts tracked files reported as missing.
	MissingFilesTotal metric.Int64Counter

	// SnapshotsCreatedTotal counts snapshot directories written.
	SnapshotsCreatedTotal metric.Int64Counter

	// SnapshotsPrunedTotal counts snapshot directories removed by retention.
	SnapshotsPrunedTotal metric.Int64Counter

	// LoopIterationsTotal counts scheduler iterations, labeled by outcome.
	LoopIterationsTotal metric.Int64Counter

	// ErrorsTotal counts errors, labeled by component.
	ErrorsTotal metric.Int64Counter

	// TrackedFiles reports how many files the agent currently tracks.
	// Populated by RegisterTrackedFiles.
	TrackedFiles metric.Int64ObservableGauge
}

// NewMetrics creates the agent's instruments on the given meter.
//
// Description:
//
//	Creates every instrument up front so recording sites never check for
//	nil. Call after Init so the instruments land on the configured
//	provider.
//
// Inputs:
//
//	meter - Meter from otel.Meter(), typically named "sentinel_agent".
//
// Outputs:
//
//	*Metrics - Fully populated instrument set.
//	error - Non-nil if any instrument fails to create.
func NewMetrics(meter metric.Meter) (*Metrics, error) {
	m := &Metrics{}
	var err error

	m.RunsTotal, err = meter.Int64Counter(
		"sentinel_runs_total",
		metric.WithDescription("Completed agent runs by outcome"),
		metric.WithUnit("{run}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create sentinel_runs_total: %w", err)
	}

	m.RunDuration, err = meter.Float64Histogram(
		"sentinel_run_duration_seconds",
		metric.WithDescription("Wall-clock duration of agent runs"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.01, 0.05, 0.1, 0.5, 1, 2.5, 5, 10, 30, 60),
	)
	if err != nil {
		return nil, fmt.Errorf("create sentinel_run_duration_seconds: %w", err)
	}

	m.ChangedFilesTotal, err = meter.Int64Counter(
		"sentinel_changed_files_total",
		metric.WithDescription("Tracked files reported as added, modified, or removed"),
		metric.WithUnit("{file}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create sentinel_changed_files_total: %w", err)
	}

	m.MissingFilesTotal, err = meter.Int64Counter(
		"sentinel_missing_files_total",
		metric.WithDescription("Tracked files reported as missing"),
		metric.WithUnit("{file}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create sentinel_missing_files_total: %w", err)
	}

	m.SnapshotsCreatedTotal, err = meter.Int64Counter(
		"sentinel_snapshots_created_total",
		metric.WithDescription("Snapshot directories written"),
		metric.WithUnit("{snapshot}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create sentinel_snapshots_created_total: %w", err)
	}

	m.SnapshotsPrunedTotal, err = meter.Int64Counter(
		"sentinel_snapshots_pruned_total",
		metric.WithDescription("Snapshot directories removed by retention pruning"),
		metric.WithUnit("{snapshot}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create sentinel_snapshots_pruned_total: %w", err)
	}

	m.LoopIterationsTotal, err = meter.Int64Counter(
		"sentinel_loop_iterations_total",
		metric.WithDescription("Scheduler iterations by outcome"),
		metric.WithUnit("{iteration}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create sentinel_loop_iterations_total: %w", err)
	}

	m.ErrorsTotal, err = meter.Int64Counter(
		"sentinel_errors_total",
		metric.WithDescription("Errors by component"),
		metric.WithUnit("{error}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create sentinel_errors_total: %w", err)
	}

	return m, nil
}

// RegisterTrackedFiles registers a callback for the tracked-file gauge.
//
// Description:
//
//	Sets up an observable gauge reporting how many files the agent
//	currently tracks. The callback runs at collection time, so the
//	gauge reflects the live configuration rather than a value recorded
//	at startup.
//
// Inputs:
//
//	meter - The OTel meter to use for registration.
//	countFunc - A function that returns the current tracked-file count.
//
// Outputs:
//
//	metric.Registration - Registration handle for cleanup.
//	error - Non-nil if registration fails.
func (m *Metrics) RegisterTrackedFiles(meter metric.Meter, countFunc func() int64) (metric.Registration, error) {
	var err error
	m.TrackedFiles, err = meter.Int64ObservableGauge(
		"sentinel_tracked_files",
		metric.WithDescription("Files currently tracked by the agent"),
		metric.WithUnit("{file}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create sentinel_tracked_files: %w", err)
	}

	return meter.RegisterCallback(func(_ context.Context, o metric.Observer) error {
		o.ObserveInt64(m.TrackedFiles, countFunc())
		return nil
	}, m.TrackedFiles)
}
