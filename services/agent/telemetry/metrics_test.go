// Copyright (C) 2026 Pantheon Ops (dev@pantheon-ops.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package telemetry

import (
	"context"
	"testing"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

func TestNewMetrics(t *testing.T) {
	cfg := DefaultConfig()
	cfg.TraceExporter = "none"
	cfg.MetricExporter = "prometheus"

	shutdown, err := Init(context.Background(), cfg)
	if err != nil {
		t.Fatalf("Init() error = %v", err)
	}
	defer shutdown(context.Background())

	meter := otel.Meter("test_metrics")
	metrics, err := NewMetrics(meter)
	if err != nil {
		t.Fatalf("NewMetrics() error = %v", err)
	}

	// Verify all metrics are created
	if metrics.RunsTotal == nil {
		t.Error("RunsTotal is nil")
	}
	if metrics.RunDuration == nil {
		t.Error("RunDuration is nil")
	}
	if metrics.ChangedFilesTotal == nil {
		t.Error("ChangedFilesTotal is nil")
	}
	if metrics.MissingFilesTotal == nil {
		t.Error("MissingFilesTotal is nil")
	}
	if metrics.SnapshotsCreatedTotal == nil {
		t.Error("SnapshotsCreatedTotal is nil")
	}
	if metrics.SnapshotsPrunedTotal == nil {
		t.Error("SnapshotsPrunedTotal is nil")
	}
	if metrics.LoopIterationsTotal == nil {
		t.Error("LoopIterationsTotal is nil")
	}
	if metrics.ErrorsTotal == nil {
		t.Error("ErrorsTotal is nil")
	}
}

func TestMetrics_RecordRunMetrics(t *testing.T) {
	cfg := DefaultConfig()
	cfg.TraceExporter = "none"
	cfg.MetricExporter = "prometheus"

	shutdown, err := Init(context.Background(), cfg)
	if err != nil {
		t.Fatalf("Init() error = %v", err)
	}
	defer shutdown(context.Background())

	meter := otel.Meter("test_run_metrics")
	metrics, err := NewMetrics(meter)
	if err != nil {
		t.Fatalf("NewMetrics() error = %v", err)
	}

	ctx := context.Background()

	// Should not panic
	metrics.RunsTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String("outcome", "success"),
	))
	metrics.RunDuration.Record(ctx, 0.042, metric.WithAttributes(
		attribute.String("outcome", "success"),
	))
}

func TestMetrics_RecordChangeMetrics(t *testing.T) {
	cfg := DefaultConfig()
	cfg.TraceExporter = "none"
	cfg.MetricExporter = "prometheus"

	shutdown, err := Init(context.Background(), cfg)
	if err != nil {
		t.Fatalf("Init() error = %v", err)
	}
	defer shutdown(context.Background())

	meter := otel.Meter("test_change_metrics")
	metrics, err := NewMetrics(meter)
	if err != nil {
		t.Fatalf("NewMetrics() error = %v", err)
	}

	ctx := context.Background()

	metrics.ChangedFilesTotal.Add(ctx, 2, metric.WithAttributes(
		attribute.String("status", "modified"),
	))
	metrics.ChangedFilesTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String("status", "added"),
	))
	metrics.MissingFilesTotal.Add(ctx, 1)
}

func TestMetrics_RecordSnapshotMetrics(t *testing.T) {
	cfg := DefaultConfig()
	cfg.TraceExporter = "none"
	cfg.MetricExporter = "prometheus"

	shutdown, err := Init(context.Background(), cfg)
	if err != nil {
		t.Fatalf("Init() error = %v", err)
	}
	defer shutdown(context.Background())

	meter := otel.Meter("test_snapshot_metrics")
	metrics, err := NewMetrics(meter)
	if err != nil {
		t.Fatalf("NewMetrics() error = %v", err)
	}

	ctx := context.Background()

	metrics.SnapshotsCreatedTotal.Add(ctx, 1)
	metrics.SnapshotsPrunedTotal.Add(ctx, 3)
}

func TestMetrics_RegisterTrackedFiles(t *testing.T) {
	cfg := DefaultConfig()
	cfg.TraceExporter = "none"
	cfg.MetricExporter = "prometheus"

	shutdown, err := Init(context.Background(), cfg)
	if err != nil {
		t.Fatalf("Init() error = %v", err)
	}
	defer shutdown(context.Background())

	meter := otel.Meter("test_tracked_files")
	metrics, err := NewMetrics(meter)
	if err != nil {
		t.Fatalf("NewMetrics() error = %v", err)
	}

	// Register tracked-file callback
	currentCount := int64(2)
	reg, err := metrics.RegisterTrackedFiles(meter, func() int64 {
		return currentCount
	})
	if err != nil {
		t.Fatalf("RegisterTrackedFiles() error = %v", err)
	}
	defer reg.Unregister()

	// Verify gauge was created
	if metrics.TrackedFiles == nil {
		t.Error("TrackedFiles is nil after registration")
	}
}

func TestMetrics_RecordErrors(t *testing.T) {
	cfg := DefaultConfig()
	cfg.TraceExporter = "none"
	cfg.MetricExporter = "prometheus"

	shutdown, err := Init(context.Background(), cfg)
	if err != nil {
		t.Fatalf("Init() error = %v", err)
	}
	defer shutdown(context.Background())

	meter := otel.Meter("test_errors")
	metrics, err := NewMetrics(meter)
	if err != nil {
		t.Fatalf("NewMetrics() error = %v", err)
	}

	ctx := context.Background()

	metrics.ErrorsTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String("component", "digest"),
	))
}
