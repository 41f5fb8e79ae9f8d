package api

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/javigz/bdnsync-go/internal/conf"
	"github.com/javigz/bdnsync-go/internal/datastore"
	"github.com/javigz/bdnsync-go/internal/ingest"
	"github.com/javigz/bdnsync-go/internal/logging"
	"github.com/javigz/bdnsync-go/internal/observability"
)

// Server hosts the HTTP control surface.
type Server struct {
	Echo       *echo.Echo
	DS         datastore.Interface
	Settings   *conf.Settings
	Controller *Controller

	webLogger *slog.Logger
}

// NewServer initializes the control server with its routes and middleware.
func NewServer(settings *conf.Settings, ds datastore.Interface,
	syncService *ingest.Service, m *observability.Metrics) *Server {
	configureDefaultSettings(settings)

	logger := logging.ForService("webserver")
	if logger == nil {
		logger = slog.Default()
	}

	s := &Server{
		Echo:      echo.New(),
		DS:        ds,
		Settings:  settings,
		webLogger: logger,
	}
	s.Echo.HideBanner = true
	s.Echo.IPExtractor = echo.ExtractIPFromXFFHeader()
	s.configureMiddleware()

	s.Controller = New(s.Echo, ds, settings, syncService, m)
	return s
}

// configureMiddleware sets up recovery and request logging.
func (s *Server) configureMiddleware() {
	s.Echo.Use(middleware.Recover())
	s.Echo.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogStatus: true,
		LogURI:    true,
		LogMethod: true,
		LogError:  true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			attrs := []any{
				"method", v.Method,
				"uri", v.URI,
				"status", v.Status,
				"ip", c.RealIP(),
			}
			if v.Error != nil {
				attrs = append(attrs, "error", v.Error.Error())
				s.webLogger.Error("request", attrs...)
			} else {
				s.webLogger.Info("request", attrs...)
			}
			return nil
		},
	}))
	s.Echo.Use(middleware.GzipWithConfig(middleware.GzipConfig{
		Skipper: func(c echo.Context) bool {
			// Prometheus scrapers negotiate their own encoding
			return c.Path() == "/metrics"
		},
	}))
}

// Start begins listening and serving HTTP requests in the background.
func (s *Server) Start() {
	go func() {
		err := s.Echo.Start(":" + s.Settings.WebServer.Port)
		if err != nil && err != http.ErrServerClosed {
			s.webLogger.Error("server stopped", "error", err)
		}
	}()
	fmt.Printf("HTTP server started on port %s\n", s.Settings.WebServer.Port)
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.Echo.Shutdown(ctx)
}

// configureDefaultSettings sets default values for server settings.
func configureDefaultSettings(settings *conf.Settings) {
	if settings.WebServer.Port == "" {
		settings.WebServer.Port = "8080"
	}
}
