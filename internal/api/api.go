// Package api implements the HTTP control surface for the sync pipeline.
package api

import (
	"crypto/rand"
	"fmt"
	"log/slog"

	"github.com/labstack/echo/v4"

	"github.com/javigz/bdnsync-go/internal/conf"
	"github.com/javigz/bdnsync-go/internal/datastore"
	"github.com/javigz/bdnsync-go/internal/ingest"
	"github.com/javigz/bdnsync-go/internal/logging"
	"github.com/javigz/bdnsync-go/internal/observability"
)

// Controller manages the API routes and handlers
type Controller struct {
	Echo     *echo.Echo
	Group    *echo.Group
	DS       datastore.Interface
	Settings *conf.Settings
	Sync     *ingest.Service

	apiLogger *slog.Logger
	metrics   *observability.Metrics
}

// New creates a new API controller and registers its routes on the given
// echo instance.
func New(e *echo.Echo, ds datastore.Interface, settings *conf.Settings,
	syncService *ingest.Service, m *observability.Metrics) *Controller {

	logger := logging.ForService("api")
	if logger == nil {
		logger = slog.Default()
	}

	c := &Controller{
		Echo:      e,
		Group:     e.Group("/api/v1"),
		DS:        ds,
		Settings:  settings,
		Sync:      syncService,
		apiLogger: logger.With("service", "api"),
		metrics:   m,
	}

	c.initSyncRoutes()
	if m != nil {
		e.GET("/metrics", echo.WrapHandler(m.Handler()))
	}
	return c
}

// ErrorResponse is the JSON error envelope returned by all handlers.
type ErrorResponse struct {
	Error         string `json:"error"`
	Message       string `json:"message"`
	Code          int    `json:"code"`
	CorrelationID string `json:"correlation_id"` // Unique identifier for tracking this error
}

// NewErrorResponse creates a new API error response. Raw error text stays in
// the logs; the body carries only the generic message and a correlation ID
// for matching the two up.
func NewErrorResponse(message string, code int) *ErrorResponse {
	return &ErrorResponse{
		Error:         message,
		Message:       message,
		Code:          code,
		CorrelationID: generateCorrelationID(),
	}
}

// generateCorrelationID creates a unique identifier for error tracking using
// cryptographic randomness
func generateCorrelationID() string {
	const charset = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	const length = 8

	b := make([]byte, length)
	if _, err := rand.Read(b); err != nil {
		return "fallback"
	}
	for i := range b {
		b[i] = charset[int(b[i])%len(charset)]
	}
	return string(b)
}

// HandleError logs an error and returns the standardized JSON error response.
func (c *Controller) HandleError(ctx echo.Context, err error, message string, code int) error {
	errorResp := NewErrorResponse(message, code)

	var errorStr string
	if err != nil {
		errorStr = err.Error()
	} else {
		errorStr = message
	}
	c.apiLogger.Error("API Error",
		"correlation_id", errorResp.CorrelationID,
		"message", message,
		"error", errorStr,
		"code", code,
		"path", ctx.Request().URL.Path,
		"method", ctx.Request().Method,
		"ip", ctx.RealIP(),
	)

	return ctx.JSON(code, errorResp)
}

// Debug logs debug messages when debug mode is enabled
func (c *Controller) Debug(format string, v ...any) {
	if c.Settings.Debug {
		c.apiLogger.Debug(fmt.Sprintf(format, v...))
	}
}

// logAPIRequest logs an incoming request with common context fields.
func (c *Controller) logAPIRequest(ctx echo.Context, msg string, args ...any) {
	baseAttrs := []any{
		"path", ctx.Request().URL.Path,
		"ip", ctx.RealIP(),
	}
	baseAttrs = append(baseAttrs, args...)
	c.apiLogger.Info(msg, baseAttrs...)
}
