// Copyright (C) 2026 Pantheon Ops (dev@pantheon-ops.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package loop schedules audit runs: one attempt for CI jobs, or a
// continuous interval loop for long-lived agents.
//
// The scheduler owns the after-run sinks (heartbeat, failure status,
// GitHub outputs) and the failure isolation rules. A failed iteration is
// recorded, published, and backed off from; it never stops the loop. The
// orchestrator hands back a fully built Result for every attempt, so the
// sinks here are pure projections and never touch persisted state.
package loop

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/pantheon-ops/sentinel/pkg/logging"
	"github.com/pantheon-ops/sentinel/services/agent/config"
	"github.com/pantheon-ops/sentinel/services/agent/history"
	"github.com/pantheon-ops/sentinel/services/agent/report"
	"github.com/pantheon-ops/sentinel/services/agent/telemetry"
)

// Executor runs one audit attempt. It must return a non-nil Result even
// on failure; the scheduler publishes the failure sinks from it.
type Executor interface {
	Execute(ctx context.Context) (*report.Result, error)
}

// Scheduler drives an Executor on a schedule and publishes the sinks
// each attempt owes its consumers.
//
// # Description
//
// Two modes share the sink logic. RunSingle executes once and returns
// the attempt's error so the caller can exit non-zero. RunLoop executes
// forever (or until the iteration cap), isolating each failure behind a
// backoff sleep. Every iteration lands in the outcome tracker, which the
// serve API reads for its recent-history endpoints.
//
// # Thread Safety
//
// Not safe for concurrent use. Run one mode per scheduler; the tracker
// it exposes is safe to read from other goroutines.
type Scheduler struct {
	cfg     *config.Config
	logger  *logging.Logger
	exec    Executor
	tracker *history.Tracker
	metrics *telemetry.Metrics
	watch   bool

	// backoffFloor keeps a zero or misconfigured backoff from spinning
	// the loop hot after repeated failures.
	backoffFloor time.Duration
	now          func() time.Time
}

// Option customizes a Scheduler.
type Option func(*Scheduler)

// WithTracker replaces the iteration outcome ring buffer, so the serve
// API and the scheduler can share one.
func WithTracker(t *history.Tracker) Option {
	return func(s *Scheduler) {
		if t != nil {
			s.tracker = t
		}
	}
}

// WithMetrics attaches the instrument set bumped per loop iteration.
func WithMetrics(m *telemetry.Metrics) Option {
	return func(s *Scheduler) {
		s.metrics = m
	}
}

// WithWatch enables filesystem watching of the tracked files. Events
// cut the interval sleep short; polling continues as the safety net.
func WithWatch(enabled bool) Option {
	return func(s *Scheduler) {
		s.watch = enabled
	}
}

// WithClock overrides the time source, mainly for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Scheduler) {
		s.now = now
	}
}

// NewScheduler creates a scheduler for the given configuration.
func NewScheduler(cfg *config.Config, exec Executor, logger *logging.Logger, opts ...Option) *Scheduler {
	if logger == nil {
		logger = logging.Default()
	}
	s := &Scheduler{
		cfg:          cfg,
		logger:       logger,
		exec:         exec,
		tracker:      history.NewTracker(0),
		backoffFloor: time.Second,
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Tracker returns the iteration outcome buffer this scheduler records
// into.
func (s *Scheduler) Tracker() *history.Tracker {
	return s.tracker
}

// RunSingle executes one attempt and publishes its sinks.
//
// On success the heartbeat, GitHub summary, and GitHub outputs are
// written. On failure the attempt is already recorded in run history by
// the executor; the scheduler publishes the failure heartbeat, the
// failure status document, and the GitHub outputs, then returns the
// error so the process can exit non-zero.
func (s *Scheduler) RunSingle(ctx context.Context) (*report.Result, error) {
	started := s.now()
	res, err := s.exec.Execute(ctx)
	s.record(1, started, res, err)
	if err != nil {
		s.logger.Error("persistent agent run failed", "error", err)
		s.publishFailure(res)
		return res, err
	}

	s.publishSuccess(res, "single run")
	return res, nil
}

// RunLoop executes attempts until the context ends or the configured
// iteration cap is reached.
//
// Description:
//
//	Each iteration executes, records its outcome, and publishes sinks
//	for whichever way it went. Failures log, back off for the larger
//	of the configured backoff and one second, and continue. Successes
//	sleep the configured interval, unless a watched file changes first.
//	Cancellation is honored at iteration boundaries and during sleeps;
//	the loop then writes one final failure heartbeat marking the
//	interruption before returning.
//
// Outputs:
//
//	error - Nil after a graceful iteration-cap exit; the context's
//	        error after cancellation. Iteration failures are never
//	        returned.
func (s *Scheduler) RunLoop(ctx context.Context) error {
	s.logger.Info("starting persistent agent loop",
		"interval", s.cfg.Interval,
		"backoff", s.cfg.Backoff,
	)

	var wake <-chan struct{}
	if s.watch {
		w, err := newWatcher(s.cfg, s.logger)
		if err != nil {
			s.logger.Warn("file watching unavailable; relying on interval polling", "error", err)
		} else {
			defer w.close()
			go w.run(ctx)
			wake = w.wakeup()
		}
	}

	iteration := 0
	for {
		if ctx.Err() != nil {
			return s.interrupted(ctx)
		}
		iteration++

		started := s.now()
		res, err := s.exec.Execute(ctx)
		s.record(iteration, started, res, err)
		s.observeIteration(ctx, err)

		if err != nil {
			s.logger.Error("persistent agent iteration failed",
				"iteration", iteration,
				"error", err,
			)
			s.publishFailure(res)
			if s.capReached(iteration) {
				return nil
			}
			if s.wait(ctx, s.backoffDuration(), nil) != nil {
				return s.interrupted(ctx)
			}
			continue
		}

		s.publishSuccess(res, "loop iteration")
		if s.capReached(iteration) {
			return nil
		}
		if s.wait(ctx, s.cfg.Interval, wake) != nil {
			return s.interrupted(ctx)
		}
	}
}

// publishSuccess writes the sinks a healthy attempt owes: heartbeat,
// GitHub step summary, GitHub outputs. The report and status documents
// were already written by the executor. Sink failures warn; a broken
// heartbeat file must not take down a healthy loop.
func (s *Scheduler) publishSuccess(res *report.Result, message string) {
	if err := report.WriteHeartbeat(s.cfg.HeartbeatPath, true, message, report.HeartbeatMetadata(res)); err != nil {
		s.logger.Warn("heartbeat write failed", "error", err)
	}
	if err := report.WriteGitHubSummary(s.logger, res); err != nil {
		s.logger.Warn("github summary write failed", "error", err)
	}
	if err := report.WriteGitHubOutputs(s.logger, report.BuildPayload(res)); err != nil {
		s.logger.Warn("github outputs write failed", "error", err)
	}
}

// publishFailure writes the sinks a failed attempt owes: failure
// heartbeat, failure status document, GitHub outputs, in that order.
func (s *Scheduler) publishFailure(res *report.Result) {
	message := "run failed"
	if res.Error != nil {
		message = *res.Error
	}
	if err := report.WriteHeartbeat(s.cfg.HeartbeatPath, false, message, report.FailureHeartbeatMetadata(res)); err != nil {
		s.logger.Warn("heartbeat write failed", "error", err)
	}
	if _, err := report.WriteStatus(s.cfg.StatusPath, res); err != nil {
		s.logger.Warn("status write failed", "error", err)
	}
	if err := report.WriteGitHubOutputs(s.logger, report.BuildPayload(res)); err != nil {
		s.logger.Warn("github outputs write failed", "error", err)
	}
}

// interrupted writes the final heartbeat that marks a cancelled loop
// and returns the context's error. No run was in flight, so the run id
// fields are blanked rather than borrowed from the last attempt.
func (s *Scheduler) interrupted(ctx context.Context) error {
	s.logger.Info("received interrupt; writing heartbeat and exiting loop")

	errText := context.Canceled.Error()
	if err := ctx.Err(); err != nil {
		errText = err.Error()
	}
	res := &report.Result{
		Config:        s.cfg,
		LoopEnabled:   true,
		ChangeSummary: map[string]int{},
		Error:         &errText,
	}
	metadata := report.FailureHeartbeatMetadata(res)
	metadata["run_id"] = ""
	metadata["next_run_id"] = ""
	if err := report.WriteHeartbeat(s.cfg.HeartbeatPath, false, "loop interrupted", metadata); err != nil {
		s.logger.Warn("heartbeat write failed", "error", err)
	}
	return ctx.Err()
}

// record stores one iteration outcome in the tracker.
func (s *Scheduler) record(iteration int, started time.Time, res *report.Result, err error) {
	outcome := history.IterationOutcome{
		Iteration: iteration,
		StartedAt: started,
		Duration:  s.now().Sub(started),
	}
	if res != nil {
		if res.RunID != nil {
			outcome.RunID = *res.RunID
		}
		outcome.ChangedFiles = res.ChangedFiles
		outcome.MissingFiles = res.MissingFiles
	}
	if err != nil {
		outcome.Err = err.Error()
	}
	s.tracker.Record(outcome)
}

// observeIteration bumps the loop iteration counter.
func (s *Scheduler) observeIteration(ctx context.Context, err error) {
	if s.metrics == nil {
		return
	}
	outcome := "success"
	if err != nil {
		outcome = "failure"
	}
	s.metrics.LoopIterationsTotal.Add(ctx, 1,
		metric.WithAttributes(attribute.String("outcome", outcome)),
	)
}

// capReached reports whether the iteration cap stops the loop here.
func (s *Scheduler) capReached(iteration int) bool {
	if s.cfg.MaxIterations <= 0 || iteration < s.cfg.MaxIterations {
		return false
	}
	s.logger.Info("reached maximum iterations; exiting loop gracefully",
		"max_iterations", s.cfg.MaxIterations,
	)
	return true
}

// backoffDuration returns the post-failure sleep, floored so repeated
// failures cannot spin the loop hot.
func (s *Scheduler) backoffDuration() time.Duration {
	if s.cfg.Backoff < s.backoffFloor {
		return s.backoffFloor
	}
	return s.cfg.Backoff
}

// wait sleeps for d or until the context ends. A send on wake, nil when
// watching is off, cuts the sleep short to run ahead of schedule.
func (s *Scheduler) wait(ctx context.Context, d time.Duration, wake <-chan struct{}) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	case <-wake:
		s.logger.Info("file change detected; running ahead of schedule")
		return nil
	}
}
