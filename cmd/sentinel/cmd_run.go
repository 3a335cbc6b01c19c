// Copyright (C) 2026 Pantheon Ops (dev@pantheon-ops.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/pantheon-ops/sentinel/services/agent/loop"
	"github.com/pantheon-ops/sentinel/services/agent/report"
	"github.com/pantheon-ops/sentinel/services/agent/run"
	"github.com/pantheon-ops/sentinel/services/agent/serve"
)

// errExitCondition marks a successful run that must still exit non-zero
// because an --exit-on-change or --exit-on-missing gate fired. main
// recognizes it and exits 1 without printing a second error.
var errExitCondition = errors.New("exit condition met")

// runAgentOnce executes a single audit run and publishes every artifact.
func runAgentOnce(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	rt, err := newAgentRuntime(ctx, cmd)
	if err != nil {
		return err
	}
	defer rt.close()

	orch := run.New(rt.cfg, rt.logger, rt.runOptions()...)
	sched := loop.NewScheduler(rt.cfg, orch, rt.logger, loop.WithMetrics(rt.metrics))

	res, runErr := sched.RunSingle(ctx)
	if runErr != nil {
		return fmt.Errorf("persistent agent run failed: %w", runErr)
	}

	if printStatus {
		data, err := json.MarshalIndent(report.BuildPayload(res), "", "  ")
		if err != nil {
			return fmt.Errorf("encoding status payload: %w", err)
		}
		fmt.Println(string(data))
	}

	if reason := gateReason(res); reason != "" {
		rt.logger.Info("exiting with non-zero status", "reason", reason+" condition")
		return errExitCondition
	}
	return nil
}

// gateReason returns the exit-gate that fired, or "" when the run may
// exit clean. A change gate wins when both fire.
func gateReason(res *report.Result) string {
	if exitOnChange && res.Changed() {
		return "change"
	}
	if exitOnMissing && res.MissingDetected() {
		return "missing patch"
	}
	return ""
}

// runAgentLoop executes audit runs continuously, optionally alongside
// the read-only HTTP surface.
func runAgentLoop(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	rt, err := newAgentRuntime(ctx, cmd)
	if err != nil {
		return err
	}
	defer rt.close()

	orch := run.New(rt.cfg, rt.logger, append(rt.runOptions(), run.WithLoopMode(true))...)
	sched := loop.NewScheduler(rt.cfg, orch, rt.logger,
		loop.WithMetrics(rt.metrics), loop.WithWatch(watchFiles))

	if rt.cfg.ServeAddr == "" {
		return sched.RunLoop(ctx)
	}

	// The API observes the loop's ring buffer, so both run under one
	// group: a server failure stops the loop, and a finished loop (cap
	// reached or interrupt) shuts the server down.
	srv := serve.New(rt.cfg, rt.cfg.ServeAddr, rt.logger,
		serve.WithTracker(sched.Tracker()))

	loopCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, gctx := errgroup.WithContext(loopCtx)
	g.Go(func() error {
		return srv.Run(gctx)
	})
	g.Go(func() error {
		defer cancel()
		return sched.RunLoop(gctx)
	})
	return g.Wait()
}
