// Copyright (C) 2026 Pantheon Ops (dev@pantheon-ops.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package telemetry

import (
	"context"
	"errors"
	"testing"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

func TestStartSpan(t *testing.T) {
	cfg := DefaultConfig()
	cfg.TraceExporter = "stdout" // Need real exporter for valid spans
	cfg.MetricExporter = "none"

	shutdown, err := Init(context.Background(), cfg)
	if err != nil {
		t.Fatalf("Init() error = %v", err)
	}
	defer shutdown(context.Background())

	ctx, span := StartSpan(context.Background(), "agent.test", "TestOperation")
	defer span.End()

	if !span.SpanContext().IsValid() {
		t.Error("expected valid span context")
	}

	// Context should have span attached
	spanFromCtx := trace.SpanFromContext(ctx)
	if spanFromCtx.SpanContext().TraceID() != span.SpanContext().TraceID() ||
		spanFromCtx.SpanContext().SpanID() != span.SpanContext().SpanID() {
		t.Error("context should contain the created span")
	}
}

func TestStartSpan_WithAttributes(t *testing.T) {
	cfg := DefaultConfig()
	cfg.TraceExporter = "stdout" // Need real exporter for valid spans
	cfg.MetricExporter = "none"

	shutdown, err := Init(context.Background(), cfg)
	if err != nil {
		t.Fatalf("Init() error = %v", err)
	}
	defer shutdown(context.Background())

	_, span := StartSpan(context.Background(), "agent.test", "TestOperation",
		trace.WithAttributes(
			attribute.Int("tracked_files", 2),
		),
	)
	defer span.End()

	if !span.SpanContext().IsValid() {
		t.Error("expected valid span context")
	}
}

func TestRecordError(t *testing.T) {
	cfg := DefaultConfig()
	cfg.TraceExporter = "none"
	cfg.MetricExporter = "none"

	shutdown, err := Init(context.Background(), cfg)
	if err != nil {
		t.Fatalf("Init() error = %v", err)
	}
	defer shutdown(context.Background())

	t.Run("records error on span", func(t *testing.T) {
		_, span := StartSpan(context.Background(), "agent.test", "TestOp")
		defer span.End()

		testErr := errors.New("digest failed")
		RecordError(span, testErr, attribute.String("component", "digest"))
	})

	t.Run("nil span is a no-op", func(t *testing.T) {
		RecordError(nil, errors.New("ignored"))
	})

	t.Run("nil error is a no-op", func(t *testing.T) {
		_, span := StartSpan(context.Background(), "agent.test", "TestOp")
		defer span.End()

		RecordError(span, nil)
	})
}

func TestSetSpanOK(t *testing.T) {
	cfg := DefaultConfig()
	cfg.TraceExporter = "none"
	cfg.MetricExporter = "none"

	shutdown, err := Init(context.Background(), cfg)
	if err != nil {
		t.Fatalf("Init() error = %v", err)
	}
	defer shutdown(context.Background())

	_, span := StartSpan(context.Background(), "agent.test", "TestOp")
	defer span.End()

	SetSpanOK(span)

	// Nil span should not panic
	SetSpanOK(nil)
}

func TestAddSpanEvent(t *testing.T) {
	cfg := DefaultConfig()
	cfg.TraceExporter = "none"
	cfg.MetricExporter = "none"

	shutdown, err := Init(context.Background(), cfg)
	if err != nil {
		t.Fatalf("Init() error = %v", err)
	}
	defer shutdown(context.Background())

	_, span := StartSpan(context.Background(), "agent.test", "TestOp")
	defer span.End()

	AddSpanEvent(span, "backoff", attribute.Int("seconds", 60))

	// Nil span should not panic
	AddSpanEvent(nil, "ignored")
}

func TestTraceID(t *testing.T) {
	cfg := DefaultConfig()
	cfg.TraceExporter = "stdout" // Need real exporter for valid spans
	cfg.MetricExporter = "none"

	shutdown, err := Init(context.Background(), cfg)
	if err != nil {
		t.Fatalf("Init() error = %v", err)
	}
	defer shutdown(context.Background())

	t.Run("returns trace ID for active span", func(t *testing.T) {
		ctx, span := StartSpan(context.Background(), "agent.test", "TestOp")
		defer span.End()

		id := TraceID(ctx)
		if id == "" {
			t.Error("expected non-empty trace ID")
		}
		if id != span.SpanContext().TraceID().String() {
			t.Errorf("TraceID() = %q, want %q", id, span.SpanContext().TraceID().String())
		}
	})

	t.Run("returns empty string without span", func(t *testing.T) {
		if id := TraceID(context.Background()); id != "" {
			t.Errorf("TraceID() = %q, want empty", id)
		}
	})
}
