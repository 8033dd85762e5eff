package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"sync"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/handiism/music-parser/internal/auth"
	"github.com/handiism/music-parser/internal/download"
	"github.com/handiism/music-parser/internal/logging"
	"github.com/handiism/music-parser/internal/model"
	"github.com/handiism/music-parser/internal/storage"
)

// BatchRunner expands references and runs batches. *download.Manager
// implements it.
type BatchRunner interface {
	Expand(ctx context.Context, references []string) ([]*model.Unit, error)
	RunBatch(ctx context.Context, units []*model.Unit, opts download.BatchOptions) (*download.BatchResult, error)
}

// Server is the HTTP front-end.
type Server struct {
	echo   *echo.Echo
	runner BatchRunner
	cache  *storage.Cache
	auth   *auth.Manager
	logger *slog.Logger

	jobsMu sync.Mutex
	jobs   map[string]*debugJob
}

// NewServer wires routes and middleware.
func NewServer(runner BatchRunner, cache *storage.Cache, authz *auth.Manager, logger *slog.Logger) *Server {
	s := &Server{
		echo:   setupEcho(),
		runner: runner,
		cache:  cache,
		auth:   authz,
		logger: logging.NewComponentLogger(logger, "api"),
		jobs:   make(map[string]*debugJob),
	}
	s.setupMiddleware()
	s.setupHealthCheck()
	s.registerRoutes()
	return s
}

func setupEcho() *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	return e
}

func (s *Server) setupMiddleware() {
	s.echo.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogMethod:  true,
		LogURI:     true,
		LogStatus:  true,
		LogLatency: true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			s.logger.Debug("request",
				logging.String("method", v.Method),
				logging.String("uri", v.URI),
				logging.Int("status", v.Status),
				logging.Duration("latency", v.Latency))
			return nil
		},
	}))
	s.echo.Use(middleware.Recover())
	s.echo.Use(middleware.CORS())
	s.echo.Use(middleware.RequestID())
	s.echo.Use(ExtractUserID())
}

func (s *Server) setupHealthCheck() {
	s.echo.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{
			"status":  "ok",
			"service": "music-parser",
		})
	})
}

func (s *Server) registerRoutes() {
	v1 := s.echo.Group("/api/v1")
	{
		v1.POST("/batches", s.CreateBatch, s.requireAllowed)        // POST /api/v1/batches
		v1.GET("/artifacts/:name", s.GetArtifact, s.requireAllowed) // GET /api/v1/artifacts/Numb.mp3
		v1.GET("/cache", s.ListCache, s.requireAllowed)             // GET /api/v1/cache
	}

	authGroup := v1.Group("/auth")
	{
		authGroup.POST("/token", s.CreateToken, s.requireAdmin) // POST /api/v1/auth/token
		authGroup.POST("/authorize", s.Authorize)               // POST /api/v1/auth/authorize
	}

	debug := v1.Group("/debug", s.requireAdmin)
	{
		debug.POST("/:command", s.RunDebug)   // POST /api/v1/debug/list
		debug.GET("/jobs/:id", s.GetDebugJob) // GET /api/v1/debug/jobs/<id>
	}
}

// Handler returns the HTTP handler, mainly for tests.
func (s *Server) Handler() http.Handler { return s.echo }

// Start serves on addr until Shutdown.
func (s *Server) Start(addr string) error {
	s.logger.Info("starting http server", logging.String("addr", addr))
	if err := s.echo.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops the server gracefully.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}
