package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"fiszki/internal/config"
	"fiszki/internal/flashcards"
	"fiszki/internal/ratelimit"
)

const (
	maxBodyBytes        = 1 << 20 // 1 MiB
	shutdownGracePeriod = 10 * time.Second
	readTimeout         = 30 * time.Second
	// Generation may retry the provider several times.
	writeTimeout = 120 * time.Second
	idleTimeout  = 120 * time.Second
)

// Generator produces and persists flashcard proposals.
type Generator interface {
	Generate(ctx context.Context, userID uuid.UUID, input string) (*flashcards.Generation, error)
}

type Server struct {
	cfg       config.Config
	generator Generator
	limiter   ratelimit.Limiter
	logger    *slog.Logger
	devUserID uuid.UUID
	app       *echo.Echo
	address   string
}

// New constructs an HTTP server wired with routing and middleware. A nil limiter
// disables rate limiting.
func New(cfg config.Config, generator Generator, limiter ratelimit.Limiter, logger *slog.Logger) (*Server, error) {
	if generator == nil {
		return nil, errors.New("generator must not be nil")
	}
	if limiter == nil {
		limiter = ratelimit.Noop{}
	}
	if logger == nil {
		logger = slog.Default()
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	devUserID, err := uuid.Parse(cfg.Server.DevUserID)
	if err != nil {
		return nil, fmt.Errorf("parse server.dev_user_id: %w", err)
	}

	srv := &Server{
		cfg:       cfg,
		generator: generator,
		limiter:   limiter,
		logger:    logger.With(slog.String("component", "server")),
		devUserID: devUserID,
		address:   fmt.Sprintf(":%d", cfg.Server.Port),
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = srv.errorHandler

	e.Pre(middleware.RemoveTrailingSlash())
	e.Use(middleware.Recover())
	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogLatency: true,
		LogMethod:  true,
		LogURI:     true,
		LogStatus:  true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			srv.logger.Info("request",
				"method", v.Method,
				"uri", v.URI,
				"status", v.Status,
				"latency_ms", v.Latency.Milliseconds(),
				"error", v.Error,
			)
			return nil
		},
	}))
	e.Use(middleware.SecureWithConfig(middleware.SecureConfig{
		XSSProtection:         "1; mode=block",
		ContentTypeNosniff:    "nosniff",
		XFrameOptions:         "DENY",
		HSTSMaxAge:            31536000,
		ContentSecurityPolicy: "default-src 'none'; frame-ancestors 'none'; form-action 'none'",
	}))

	srv.app = e
	srv.registerRoutes()

	return srv, nil
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.app
}

// Run starts the HTTP server and blocks until the context is cancelled.
func (s *Server) Run(ctx context.Context) error {
	s.logger.Info("starting server", "addr", s.address)

	httpServer := &http.Server{
		Addr:         s.address,
		Handler:      s.app,
		ReadTimeout:  readTimeout,
		WriteTimeout: writeTimeout,
		IdleTimeout:  idleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		if err := s.app.StartServer(httpServer); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGracePeriod)
		defer cancel()
		if err := s.app.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
		s.logger.Info("server shutdown complete")
		return nil
	case err := <-errCh:
		return err
	}
}

func (s *Server) registerRoutes() {
	s.app.GET("/health", s.handleHealth)

	v1 := s.app.Group("/api/v1")
	v1.POST("/flashcards/generate", s.handleGenerate)
}

func (s *Server) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}
