// Copyright (C) 2026 Pantheon Ops (dev@pantheon-ops.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package run executes one complete audit attempt: load persisted state,
// digest the tracked patch files, classify changes, archive snapshots,
// record the run, and publish the report and status artifacts.
//
// The orchestrator upholds one contract above all others: every attempt,
// successful or failed, appends exactly one run record to the persisted
// history. Digests and the missing set advance only on success, so a
// failed run can never swallow a change the next healthy run should
// report.
package run

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/pantheon-ops/sentinel/pkg/logging"
	"github.com/pantheon-ops/sentinel/services/agent/config"
	"github.com/pantheon-ops/sentinel/services/agent/detect"
	"github.com/pantheon-ops/sentinel/services/agent/digest"
	"github.com/pantheon-ops/sentinel/services/agent/journal"
	"github.com/pantheon-ops/sentinel/services/agent/lock"
	"github.com/pantheon-ops/sentinel/services/agent/report"
	"github.com/pantheon-ops/sentinel/services/agent/snapshot"
	"github.com/pantheon-ops/sentinel/services/agent/state"
	"github.com/pantheon-ops/sentinel/services/agent/telemetry"
)

// tracerName scopes the orchestrator's spans.
const tracerName = "agent.run"

// Phase identifies how far an execution attempt progressed. The phase
// reached is tagged on the run span, so traces show where attempts die.
type Phase string

const (
	PhaseLoading   Phase = "loading"
	PhaseResolving Phase = "resolving"
	PhaseHashing   Phase = "hashing"
	PhaseDetecting Phase = "detecting"
	PhaseArchiving Phase = "archiving"
	PhaseRecording Phase = "recording"
	PhaseReporting Phase = "reporting"
	PhaseDone      Phase = "done"
)

// Orchestrator drives the audit pipeline for one resolved configuration.
//
// # Description
//
// Owns the state store, digest computer, and snapshot archiver derived
// from the configuration, plus the optional instruments, journal, and
// lock guard attached via options. Construct once and reuse across loop
// iterations; per-attempt state lives entirely in Execute.
//
// # Thread Safety
//
// Execute must not be called concurrently with itself. Iterations are
// serialized by the scheduler, which is the only intended caller.
type Orchestrator struct {
	cfg      *config.Config
	logger   *logging.Logger
	store    *state.Store
	computer *digest.Computer
	archiver *snapshot.Archiver
	metrics  *telemetry.Metrics
	journal  *journal.Journal
	guard    *lock.Guard
	loop     bool
	runtime  report.RuntimeInfo
	ci       map[string]string
	now      func() time.Time
}

// Option customizes an Orchestrator.
type Option func(*Orchestrator)

// WithMetrics attaches the instrument set bumped after every attempt.
func WithMetrics(m *telemetry.Metrics) Option {
	return func(o *Orchestrator) {
		o.metrics = m
	}
}

// WithJournal attaches the audit journal. Every run record, failure
// records included, is mirrored into it; append failures degrade to a
// logged warning and never fail the run.
func WithJournal(j *journal.Journal) Option {
	return func(o *Orchestrator) {
		o.journal = j
	}
}

// WithGuard attaches the state lock guard. The orchestrator refreshes
// the guard's TTL at the start of every attempt; acquisition and
// release stay with the caller.
func WithGuard(g *lock.Guard) Option {
	return func(o *Orchestrator) {
		o.guard = g
	}
}

// WithLoopMode marks results as produced under the loop scheduler, which
// changes how artifacts describe the loop configuration.
func WithLoopMode(enabled bool) Option {
	return func(o *Orchestrator) {
		o.loop = enabled
	}
}

// WithClock overrides the time source, mainly for tests.
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) {
		o.now = now
	}
}

// New creates an orchestrator for the given configuration.
func New(cfg *config.Config, logger *logging.Logger, opts ...Option) *Orchestrator {
	if logger == nil {
		logger = logging.Default()
	}
	o := &Orchestrator{
		cfg:      cfg,
		logger:   logger,
		store:    state.NewStore(cfg.StatePath, logger),
		computer: digest.NewComputer(logger),
		archiver: snapshot.NewArchiver(cfg.SnapshotDir, cfg.SnapshotRetention, cfg.SnapshotsEnabled, logger),
		runtime:  report.GatherRuntimeInfo(),
		ci:       report.GatherCIMetadata(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Execute performs one audit attempt.
//
// Description:
//
//	Runs the pipeline Loading -> Resolving -> Hashing -> Detecting ->
//	Archiving -> Recording -> Reporting. On success the persisted
//	digest map and missing set are replaced wholesale by this run's
//	view, the run is recorded and saved, and the report and status
//	artifacts are written. On failure before the run was recorded, the
//	error is recorded as a run of its own against a freshly reloaded
//	state, and the returned Result carries that state's digests and
//	history so the failure sinks still publish something truthful. A
//	failure after recording (artifact writes) keeps the recorded run
//	and returns the write error; no second record is appended.
//
// Inputs:
//
//	ctx - Carries cancellation and the parent trace context.
//
// Outputs:
//
//	*report.Result - Never nil. Describes the attempt, failed or not.
//	error - Non-nil when the attempt failed. The same error text is
//	        recorded in run history and on the Result.
func (o *Orchestrator) Execute(ctx context.Context) (*report.Result, error) {
	started := o.now()
	ctx, span := telemetry.StartSpan(ctx, tracerName, "Orchestrator.Execute",
		trace.WithAttributes(attribute.Int("run.tracked_files", o.cfg.Tracked.Len())),
	)
	defer span.End()

	if o.guard != nil && o.guard.Held() {
		if err := o.guard.Refresh(); err != nil {
			o.logger.Warn("state lock refresh failed", "error", err)
		}
	}

	res, phase, err := o.attempt(ctx, started)
	span.SetAttributes(attribute.String("run.phase", string(phase)))
	if err != nil {
		telemetry.RecordError(span, err)
		if res == nil {
			res = o.recordFailure(ctx, err)
		} else {
			msg := err.Error()
			res.Error = &msg
		}
		o.observe(ctx, res, started, phase)
		return res, err
	}

	telemetry.SetSpanOK(span)
	if res.RunID != nil {
		span.SetAttributes(attribute.Int("run.id", *res.RunID))
	}
	span.SetAttributes(
		attribute.Int("run.changed_files", len(res.ChangedFiles)),
		attribute.Int("run.missing_files", len(res.MissingFiles)),
	)
	o.observe(ctx, res, started, phase)
	return res, nil
}

// attempt runs the pipeline and reports the phase reached. A non-nil
// Result alongside a non-nil error means the run was already recorded
// and only artifact writing failed.
func (o *Orchestrator) attempt(ctx context.Context, started time.Time) (*report.Result, Phase, error) {
	phase := PhaseLoading
	st, err := o.store.Load()
	if err != nil {
		return nil, phase, err
	}

	phase = PhaseResolving
	files := o.cfg.Tracked.Files()
	paths := o.cfg.Tracked.Paths()

	phase = PhaseHashing
	current, missing, err := o.computer.ComputeAll(files)
	if err != nil {
		return nil, phase, err
	}

	phase = PhaseDetecting
	changes := detect.Detect(detect.Input{
		PreviousDigests: st.Digests,
		PreviousMissing: st.Missing,
		CurrentDigests:  current,
		CurrentMissing:  missing,
		TrackedNames:    o.cfg.Tracked.Names(),
	})
	if len(changes.Names) == 0 {
		o.logger.Info("no patch changes detected; agent is idle")
	} else {
		o.logger.Info("detected patch updates", "files", changes.Names)
	}

	phase = PhaseArchiving
	snapshotPath, pruned, err := o.archiver.Archive(paths, changes.Names)
	if err != nil {
		return nil, phase, err
	}

	phase = PhaseRecording
	st.Digests = current
	st.Missing = missing
	duration := o.now().Sub(started).Seconds()
	runID := st.RecordRun(state.RunRecord{
		ChangedFiles:    changes.Names,
		DurationSeconds: &duration,
		MissingFiles:    missing,
		ChangeDetails:   changes.Details,
		ChangeSummary:   changes.Summary,
	}, o.cfg.HistoryLimit)
	if err := o.store.Save(st, o.cfg.HistoryLimit); err != nil {
		return nil, phase, err
	}
	o.appendJournal(ctx, st.LastRun())

	res := o.buildResult(st, runID, &duration, current, missing, changes, snapshotPath, pruned)

	phase = PhaseReporting
	if err := report.WriteFile(o.cfg.ReportPath, res); err != nil {
		return res, phase, err
	}
	if _, err := report.WriteStatus(o.cfg.StatusPath, res); err != nil {
		return res, phase, err
	}

	return res, PhaseDone, nil
}

// buildResult assembles the success Result from the just-saved state.
func (o *Orchestrator) buildResult(
	st *state.AgentState,
	runID int,
	duration *float64,
	current map[string]string,
	missing []string,
	changes detect.Changes,
	snapshotPath string,
	pruned []string,
) *report.Result {
	last := st.LastRun()
	history := make([]state.RunRecord, len(st.History))
	copy(history, st.History)

	return &report.Result{
		Config:          o.cfg,
		LoopEnabled:     o.loop,
		Timestamp:       last.Timestamp,
		Duration:        duration,
		RunID:           &runID,
		NextRunID:       st.NextRunID,
		Digests:         current,
		ChangedFiles:    changes.Names,
		MissingFiles:    missing,
		ChangeDetails:   changes.Details,
		ChangeSummary:   changes.Summary,
		SnapshotPath:    snapshotPath,
		PrunedSnapshots: pruned,
		History:         history,
		Runtime:         o.runtime,
		CI:              o.ci,
	}
}

// recordFailure appends a failure record against a freshly reloaded
// state and builds the Result the failure sinks publish. Secondary
// failures here (reload, save, journal) are logged and swallowed so
// they never mask the original error.
func (o *Orchestrator) recordFailure(ctx context.Context, runErr error) *report.Result {
	st, err := o.store.Load()
	if err != nil {
		o.logger.Warn("state reload failed while recording failure; starting fresh", "error", err)
		st = state.NewAgentState()
	}

	msg := runErr.Error()
	runID := st.RecordRun(state.RunRecord{Error: &msg}, o.cfg.HistoryLimit)
	if err := o.store.Save(st, o.cfg.HistoryLimit); err != nil {
		o.logger.Warn("state save failed while recording failure", "error", err)
	}
	o.appendJournal(ctx, st.LastRun())

	history := make([]state.RunRecord, len(st.History))
	copy(history, st.History)

	return &report.Result{
		Config:          o.cfg,
		LoopEnabled:     o.loop,
		Timestamp:       unixSeconds(o.now()),
		RunID:           &runID,
		NextRunID:       st.NextRunID,
		Digests:         st.Digests,
		ChangedFiles:    []string{},
		MissingFiles:    []string{},
		ChangeDetails:   map[string]state.ChangeDetail{},
		ChangeSummary:   map[string]int{},
		PrunedSnapshots: []string{},
		History:         history,
		Error:           &msg,
		Runtime:         o.runtime,
		CI:              o.ci,
	}
}

// appendJournal mirrors a run record into the audit journal when one is
// attached. The journal is a secondary artifact; append failures warn.
func (o *Orchestrator) appendJournal(ctx context.Context, rec *state.RunRecord) {
	if o.journal == nil || rec == nil {
		return
	}
	if err := o.journal.Append(ctx, rec); err != nil {
		o.logger.Warn("journal append failed", "run_id", rec.RunID, "error", err)
	}
}

// observe bumps the run instruments for one attempt.
func (o *Orchestrator) observe(ctx context.Context, res *report.Result, started time.Time, phase Phase) {
	if o.metrics == nil {
		return
	}

	outcome := "success"
	if res.Error != nil {
		outcome = "failure"
	}
	o.metrics.RunsTotal.Add(ctx, 1,
		metric.WithAttributes(attribute.String("outcome", outcome)),
	)
	o.metrics.RunDuration.Record(ctx, o.now().Sub(started).Seconds(),
		metric.WithAttributes(attribute.String("outcome", outcome)),
	)

	if res.Error != nil {
		o.metrics.ErrorsTotal.Add(ctx, 1,
			metric.WithAttributes(
				attribute.String("component", "run"),
				attribute.String("phase", string(phase)),
			),
		)
	}

	// A reporting-phase failure still recorded its changes; count whatever
	// the attempt actually persisted.
	if n := len(res.ChangedFiles); n > 0 {
		o.metrics.ChangedFilesTotal.Add(ctx, int64(n))
	}
	if n := len(res.MissingFiles); n > 0 {
		o.metrics.MissingFilesTotal.Add(ctx, int64(n))
	}
	if res.SnapshotPath != "" {
		o.metrics.SnapshotsCreatedTotal.Add(ctx, 1)
	}
	if n := len(res.PrunedSnapshots); n > 0 {
		o.metrics.SnapshotsPrunedTotal.Add(ctx, int64(n))
	}
}

// unixSeconds converts a time to fractional seconds since the epoch,
// the unit run history is stamped in.
func unixSeconds(t time.Time) float64 {
	return float64(t.UnixNano()) / float64(time.Second)
}
