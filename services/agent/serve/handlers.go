// Copyright (C) 2026 Pantheon Ops (dev@pantheon-ops.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package serve

import (
	"errors"
	"io/fs"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/pantheon-ops/sentinel/pkg/logging"
	"github.com/pantheon-ops/sentinel/services/agent/config"
	"github.com/pantheon-ops/sentinel/services/agent/history"
	"github.com/pantheon-ops/sentinel/services/agent/state"
	"github.com/pantheon-ops/sentinel/services/agent/telemetry"
)

// HealthResponse is the response for GET /healthz.
type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version"`
}

// ErrorResponse carries a human-readable failure reason.
type ErrorResponse struct {
	Error string `json:"error"`
}

// HistoryResponse is the response for GET /api/v1/history.
type HistoryResponse struct {
	NextRunID int               `json:"next_run_id"`
	History   []state.RunRecord `json:"history"`
}

// IterationView renders one loop iteration outcome.
type IterationView struct {
	RunID           int      `json:"run_id"`
	Iteration       int      `json:"iteration"`
	StartedAt       string   `json:"started_at"`
	DurationSeconds float64  `json:"duration_seconds"`
	ChangedFiles    []string `json:"changed_files"`
	MissingFiles    []string `json:"missing_files"`
	Error           *string  `json:"error"`
}

// RecentResponse is the response for GET /api/v1/recent.
type RecentResponse struct {
	Runs                int             `json:"runs"`
	Failures            int             `json:"failures"`
	ConsecutiveFailures int             `json:"consecutive_failures"`
	Iterations          []IterationView `json:"iterations"`
}

// Handlers contains the HTTP handlers for the agent's read-only API.
//
// The handlers never mutate agent state: artifacts are streamed from
// disk as the scheduler last wrote them, history is read through the
// state store, and recent outcomes come from the loop's ring buffer
// when one is attached.
type Handlers struct {
	cfg     *config.Config
	logger  *logging.Logger
	store   *state.Store
	tracker *history.Tracker
}

// NewHandlers creates handlers for the given configuration.
func NewHandlers(cfg *config.Config, logger *logging.Logger) *Handlers {
	if logger == nil {
		logger = logging.Default()
	}
	return &Handlers{
		cfg:    cfg,
		logger: logger,
		store:  state.NewStore(cfg.StatePath, logger),
	}
}

// WithTracker sets the loop outcome buffer backing /api/v1/recent.
func (h *Handlers) WithTracker(t *history.Tracker) *Handlers {
	h.tracker = t
	return h
}

// HandleHealth handles GET /healthz.
//
// Response:
//
//	200 OK: HealthResponse
func (h *Handlers) HandleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, HealthResponse{
		Status:  "ok",
		Version: config.Version,
	})
}

// HandleStatus handles GET /api/v1/status.
//
// Serves the last written status document verbatim, so API consumers
// and file consumers see byte-identical payloads.
//
// Response:
//
//	200 OK: the status JSON document
//	404 Not Found: no run has written a status yet
func (h *Handlers) HandleStatus(c *gin.Context) {
	h.serveArtifact(c, h.cfg.StatusPath, "application/json", "no status recorded yet")
}

// HandleReport handles GET /api/v1/report.
//
// Response:
//
//	200 OK: the markdown report
//	404 Not Found: no run has written a report yet
func (h *Handlers) HandleReport(c *gin.Context) {
	h.serveArtifact(c, h.cfg.ReportPath, "text/markdown; charset=utf-8", "no report recorded yet")
}

// HandleHeartbeat handles GET /api/v1/heartbeat.
//
// Response:
//
//	200 OK: the heartbeat text
//	404 Not Found: no attempt has written a heartbeat yet
func (h *Handlers) HandleHeartbeat(c *gin.Context) {
	h.serveArtifact(c, h.cfg.HeartbeatPath, "text/plain; charset=utf-8", "no heartbeat recorded yet")
}

// serveArtifact streams an artifact file, reporting 404 while the
// artifact does not exist yet.
func (h *Handlers) serveArtifact(c *gin.Context, path, contentType, missing string) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		c.JSON(http.StatusNotFound, ErrorResponse{Error: missing})
		return
	}
	if err != nil {
		h.logger.Warn("artifact read failed", "path", path, "error", err)
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "artifact read failed"})
		return
	}
	c.Data(http.StatusOK, contentType, data)
}

// HandleHistory handles GET /api/v1/history.
//
// Query Parameters:
//
//	limit - Optional; keep only the newest N persisted runs.
//
// Response:
//
//	200 OK: HistoryResponse
//	400 Bad Request: malformed limit
func (h *Handlers) HandleHistory(c *gin.Context) {
	st, err := h.store.Load()
	if err != nil {
		h.logger.Warn("state load failed", "error", err)
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "state load failed"})
		return
	}

	runs := st.History
	if raw := c.Query("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 0 {
			c.JSON(http.StatusBadRequest, ErrorResponse{Error: "limit must be a non-negative integer"})
			return
		}
		if limit < len(runs) {
			runs = runs[len(runs)-limit:]
		}
	}

	c.JSON(http.StatusOK, HistoryResponse{
		NextRunID: st.NextRunID,
		History:   runs,
	})
}

// HandleRecent handles GET /api/v1/recent. Iterations are returned
// newest first, unlike /api/v1/history which mirrors the persisted
// document's oldest-first order.
//
// Query Parameters:
//
//	limit - Optional; keep only the newest N iterations.
//
// Response:
//
//	200 OK: RecentResponse
//	400 Bad Request: malformed limit
//	404 Not Found: no loop is running in this process
func (h *Handlers) HandleRecent(c *gin.Context) {
	if h.tracker == nil {
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "no loop is running in this process"})
		return
	}

	limit := h.tracker.Len()
	if raw := c.Query("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			c.JSON(http.StatusBadRequest, ErrorResponse{Error: "limit must be a non-negative integer"})
			return
		}
		limit = parsed
	}
	outcomes := h.tracker.Recent(limit)

	views := make([]IterationView, 0, len(outcomes))
	for _, outcome := range outcomes {
		views = append(views, newIterationView(outcome))
	}
	runs, failures := h.tracker.Totals()

	c.JSON(http.StatusOK, RecentResponse{
		Runs:                runs,
		Failures:            failures,
		ConsecutiveFailures: h.tracker.ConsecutiveFailures(),
		Iterations:          views,
	})
}

// HandleMetrics serves the Prometheus scrape endpoint.
//
// Response:
//
//	200 OK: Prometheus exposition text
//	404 Not Found: the Prometheus exporter is not active
func (h *Handlers) HandleMetrics(c *gin.Context) {
	handler := telemetry.MetricsHandler()
	if handler == nil {
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "prometheus exporter is not active"})
		return
	}
	handler.ServeHTTP(c.Writer, c.Request)
}

// newIterationView converts a tracker outcome to its API shape.
func newIterationView(outcome history.IterationOutcome) IterationView {
	view := IterationView{
		RunID:           outcome.RunID,
		Iteration:       outcome.Iteration,
		StartedAt:       outcome.StartedAt.UTC().Format(time.RFC3339),
		DurationSeconds: outcome.Duration.Seconds(),
		ChangedFiles:    outcome.ChangedFiles,
		MissingFiles:    outcome.MissingFiles,
	}
	if view.ChangedFiles == nil {
		view.ChangedFiles = []string{}
	}
	if view.MissingFiles == nil {
		view.MissingFiles = []string{}
	}
	if outcome.Err != "" {
		errText := outcome.Err
		view.Error = &errText
	}
	return view
}
