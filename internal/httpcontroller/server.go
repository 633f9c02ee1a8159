// Package httpcontroller serves the JSON API: admin recompute requests, daily
// state queries, event-in hooks, and prometheus metrics.
package httpcontroller

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tphakala/aquatrack/internal/assimilation"
	"github.com/tphakala/aquatrack/internal/conf"
	"github.com/tphakala/aquatrack/internal/datastore"
	"github.com/tphakala/aquatrack/internal/logging"
	"github.com/tphakala/aquatrack/internal/scheduler"
)

// Server wraps the Echo instance and its collaborators.
type Server struct {
	Echo      *echo.Echo
	DS        datastore.Interface
	Settings  *conf.Settings
	Engine    *assimilation.Engine
	Scheduler *scheduler.Scheduler
	Registry  *prometheus.Registry

	webLogger   *slog.Logger
	closeWebLog func() error
}

// New builds the HTTP server and registers its routes.
func New(settings *conf.Settings, ds datastore.Interface, engine *assimilation.Engine, sched *scheduler.Scheduler, registry *prometheus.Registry) *Server {
	s := &Server{
		Echo:      echo.New(),
		DS:        ds,
		Settings:  settings,
		Engine:    engine,
		Scheduler: sched,
		Registry:  registry,
		webLogger: logging.ForService("http"),
	}

	s.Echo.HideBanner = true
	s.Echo.IPExtractor = echo.ExtractIPFromXFFHeader()
	s.Echo.Use(middleware.Recover())
	if settings.WebServer.Log.Enabled {
		fileLogger, closeLog, err := logging.NewFileLogger(settings.WebServer.Log, "http", slog.LevelInfo)
		if err != nil {
			s.webLogger.Error("web log file unavailable, logging to stdout",
				"path", settings.WebServer.Log.Path, "error", err)
		} else {
			s.webLogger = fileLogger
			s.closeWebLog = closeLog
		}
		s.Echo.Use(s.requestLogger())
	}

	s.initRoutes()
	return s
}

func (s *Server) initRoutes() {
	s.Echo.GET("/healthz", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
	})
	if s.Registry != nil {
		s.Echo.GET("/metrics", echo.WrapHandler(promhttp.HandlerFor(s.Registry, promhttp.HandlerOpts{})))
	}

	v1 := s.Echo.Group("/api/v1")
	v1.POST("/recompute", s.handleRecompute)
	v1.GET("/assignments/:id/daily-states", s.handleDailyStates)
	v1.POST("/events/feeding", s.handleFeedingEvent)
	v1.POST("/events/growth-sample", s.handleGrowthSample)
}

// Start blocks serving HTTP until the listener fails or Shutdown is called.
func (s *Server) Start() error {
	addr := fmt.Sprintf(":%s", s.Settings.WebServer.Port)
	s.webLogger.Info("starting HTTP server", "address", addr)
	if err := s.Echo.Start(addr); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("http server: %w", err)
	}
	return nil
}

// Shutdown drains in-flight requests and stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	err := s.Echo.Shutdown(ctx)
	if s.closeWebLog != nil {
		if cerr := s.closeWebLog(); cerr != nil && err == nil {
			err = cerr
		}
	}
	return err
}

func (s *Server) requestLogger() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)
			s.webLogger.Info("request",
				"method", c.Request().Method,
				"path", c.Request().URL.Path,
				"status", c.Response().Status,
				"ip", c.RealIP(),
				"duration_ms", time.Since(start).Milliseconds())
			return err
		}
	}
}
