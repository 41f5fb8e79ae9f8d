package api

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/javigz/bdnsync-go/internal/conf"
	"github.com/javigz/bdnsync-go/internal/errors"
)

// StartSyncRequest is the optional body for POST /api/v1/sync/start.
type StartSyncRequest struct {
	Type string `json:"type"`
}

// ControlResult represents the result of a control action
type ControlResult struct {
	Success   bool      `json:"success"`
	Message   string    `json:"message"`
	Action    string    `json:"action"`
	RunID     string    `json:"run_id,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Available control actions
const (
	ActionStartSync = "start_sync"
	ActionStopSync  = "stop_sync"
)

// initSyncRoutes registers all sync-related API endpoints
func (c *Controller) initSyncRoutes() {
	syncGroup := c.Group.Group("/sync")

	syncGroup.POST("/start", c.StartSync)
	syncGroup.POST("/stop", c.StopSync)
	syncGroup.GET("/status", c.GetSyncStatus)
	syncGroup.GET("/runs/active", c.GetActiveRun)
}

// StartSync handles POST /api/v1/sync/start
// Launches a sync run of the requested type and returns 202 immediately.
func (c *Controller) StartSync(ctx echo.Context) error {
	// Bind skips an empty body, so the type falls back to the configured
	// default
	var req StartSyncRequest
	if err := ctx.Bind(&req); err != nil {
		return c.HandleError(ctx, err, "Invalid request body", http.StatusBadRequest)
	}
	syncType := req.Type
	if syncType == "" {
		syncType = c.Settings.Sync.DefaultType
	}
	if !conf.ValidSyncType(syncType) {
		return c.HandleError(ctx, nil,
			"Unknown sync type, expected incremental, full or complete", http.StatusBadRequest)
	}

	c.logAPIRequest(ctx, "Received request to start sync", "sync_type", syncType)

	// The request context is canceled as soon as this handler returns; the
	// run outlives it, so detach before handing it over.
	handle, err := c.Sync.Start(context.WithoutCancel(ctx.Request().Context()), syncType)
	if err != nil {
		if errors.Is(err, errors.ErrRunConflict) {
			return c.HandleError(ctx, err, "A sync run is already active", http.StatusConflict)
		}
		return c.HandleError(ctx, err, "Failed to start sync run", http.StatusInternalServerError)
	}

	return ctx.JSON(http.StatusAccepted, ControlResult{
		Success:   true,
		Message:   "Sync run started",
		Action:    ActionStartSync,
		RunID:     handle.RunID,
		Timestamp: time.Now(),
	})
}

// StopSync handles POST /api/v1/sync/stop
// Cancels the active sync run.
func (c *Controller) StopSync(ctx echo.Context) error {
	c.logAPIRequest(ctx, "Received request to stop sync")

	if err := c.Sync.Stop(); err != nil {
		if errors.IsNotFound(err) {
			return c.HandleError(ctx, err, "No sync run in progress", http.StatusNotFound)
		}
		return c.HandleError(ctx, err, "Failed to stop sync run", http.StatusInternalServerError)
	}

	return ctx.JSON(http.StatusOK, ControlResult{
		Success:   true,
		Message:   "Sync cancellation requested",
		Action:    ActionStopSync,
		Timestamp: time.Now(),
	})
}

// GetSyncStatus handles GET /api/v1/sync/status
// Returns the latest run state and overall grant count.
func (c *Controller) GetSyncStatus(ctx echo.Context) error {
	status, err := c.Sync.Status()
	if err != nil {
		return c.HandleError(ctx, err, "Failed to read sync status", http.StatusInternalServerError)
	}
	return ctx.JSON(http.StatusOK, status)
}

// GetActiveRun handles GET /api/v1/sync/runs/active
// Returns the currently running sync run, or 404 when idle.
func (c *Controller) GetActiveRun(ctx echo.Context) error {
	active, err := c.Sync.Active()
	if err != nil {
		if errors.IsNotFound(err) {
			return c.HandleError(ctx, err, "No sync run in progress", http.StatusNotFound)
		}
		return c.HandleError(ctx, err, "Failed to read active run", http.StatusInternalServerError)
	}
	return ctx.JSON(http.StatusOK, active)
}
