// Package web serves the read-only HTTP side of the bot: the raw
// event-state document for the dashboard, an iCalendar export, health
// and metrics. It never mutates state; it reads whatever the store
// last persisted, accepting the brief staleness window that implies.
package web

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/ptgbot/internal/ics"
)

// Config holds web server configuration.
type Config struct {
	Host string
	Port int
	// DBPath is the persisted event-state document.
	DBPath string
	// SourceDir optionally holds the static dashboard files.
	SourceDir string
}

// Server exposes the read-only HTTP endpoints.
type Server struct {
	echo   *echo.Echo
	cache  *documentCache
	logger *zap.Logger
	config Config
}

// New creates the web server and starts watching the database file so
// calendar exports pick up external rewrites.
func New(cfg Config, logger *zap.Logger) (*Server, error) {
	if logger == nil {
		return nil, fmt.Errorf("logger is required for request tracking and debugging")
	}
	if cfg.DBPath == "" {
		return nil, fmt.Errorf("database path cannot be empty")
	}
	if cfg.Host == "" {
		cfg.Host = "localhost"
	}
	if cfg.Port == 0 {
		cfg.Port = 8000
	}

	cache, err := newDocumentCache(cfg.DBPath, logger)
	if err != nil {
		return nil, err
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	e.Use(func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)
			logger.Info("http request",
				zap.String("method", c.Request().Method),
				zap.String("uri", c.Request().RequestURI),
				zap.Int("status", c.Response().Status),
				zap.Duration("duration", time.Since(start)),
				zap.String("request_id", c.Response().Header().Get(echo.HeaderXRequestID)),
			)
			return err
		}
	})

	s := &Server{
		echo:   e,
		cache:  cache,
		logger: logger,
		config: cfg,
	}
	s.registerRoutes()
	return s, nil
}

func (s *Server) registerRoutes() {
	s.echo.GET("/healthz", s.handleHealth)
	s.echo.GET("/metrics", echo.WrapHandler(promhttp.Handler()))
	s.echo.GET("/ptg.json", s.handleDocument)
	s.echo.GET("/ptg.ics", s.handleCalendar)
	if s.config.SourceDir != "" {
		s.echo.Static("/", s.config.SourceDir)
	}
}

// HealthResponse is the body of GET /healthz.
type HealthResponse struct {
	Status string `json:"status"`
}

func (s *Server) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, HealthResponse{Status: "ok"})
}

// handleDocument streams the persisted document verbatim. A read that
// races a rewrite can observe the previous version; the atomic-rename
// persistence makes a torn read impossible.
func (s *Server) handleDocument(c echo.Context) error {
	raw, err := s.cache.Raw()
	if err != nil {
		s.logger.Error("failed to read database", zap.Error(err))
		return echo.NewHTTPError(http.StatusServiceUnavailable, "database unavailable")
	}
	return c.Blob(http.StatusOK, "application/json", raw)
}

// handleCalendar renders the iCalendar export for one team, or all
// teams when no team parameter is given.
func (s *Server) handleCalendar(c echo.Context) error {
	doc, err := s.cache.Document()
	if err != nil {
		s.logger.Error("failed to parse database", zap.Error(err))
		return echo.NewHTTPError(http.StatusServiceUnavailable, "database unavailable")
	}
	team := c.QueryParam("team")
	data, err := ics.Export(doc, team)
	if err != nil {
		s.logger.Error("failed to render calendar", zap.Error(err))
		return echo.NewHTTPError(http.StatusInternalServerError, "calendar export failed")
	}
	return c.Blob(http.StatusOK, "text/calendar", data)
}

// Start starts the HTTP server and blocks until shutdown.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
	s.logger.Info("starting http server", zap.String("addr", addr))
	return s.echo.Start(addr)
}

// Shutdown gracefully stops the server and the file watcher.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down http server")
	s.cache.Close()
	return s.echo.Shutdown(ctx)
}

// Handler exposes the underlying handler for tests.
func (s *Server) Handler() http.Handler {
	return s.echo
}
