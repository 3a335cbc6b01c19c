// Copyright (C) 2026 Pantheon Ops (dev@pantheon-ops.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/pantheon-ops/sentinel/services/agent/serve"
)

// defaultServeAddr is used when neither --addr nor the config file names
// a listen address.
const defaultServeAddr = ":8084"

// runServeCommand serves the agent's artifacts without running the loop.
// It deliberately skips the state lock and the journal: a standalone API
// process must never block or collide with a live agent on the same
// base directory.
func runServeCommand(cmd *cobra.Command, args []string) error {
	cfg, logger, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	stopTelemetry := setupTelemetry(cmd.Context(), logger)
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
		defer cancel()
		if err := stopTelemetry(ctx); err != nil {
			logger.Warn("telemetry shutdown failed", "error", err)
		}
	}()

	addr := cfg.ServeAddr
	if addr == "" {
		addr = defaultServeAddr
	}
	return serve.New(cfg, addr, logger).Run(cmd.Context())
}
