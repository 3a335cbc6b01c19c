// Copyright (C) 2026 Pantheon Ops (dev@pantheon-ops.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Command sentinel runs the Pantheon change-detection and audit agent.
//
// A single run digests the tracked patch files, classifies changes
// against persisted state, and publishes the report, status, heartbeat,
// and CI artifacts. Loop mode repeats that forever. The remaining
// subcommands inspect what previous runs left behind without touching
// state.
package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/pantheon-ops/sentinel/pkg/ux"
	"github.com/pantheon-ops/sentinel/services/agent/lock"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(),
		os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		stop()
		var conflict *lock.ConflictError
		switch {
		case errors.Is(err, context.Canceled):
			// An interrupted loop already wrote its final heartbeat and
			// logged the shutdown; a signal is a clean exit.
			os.Exit(0)
		case errors.Is(err, errExitCondition):
			// The gating log line has already been emitted.
			os.Exit(1)
		case errors.As(err, &conflict):
			ux.WarningBox("State locked", conflict.Error())
			os.Exit(1)
		default:
			ux.Error(err.Error())
			os.Exit(1)
		}
	}
}
