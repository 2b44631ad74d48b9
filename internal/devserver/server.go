// Package devserver is a mock analysis backend for local development. It
// replays recorded NDJSON streams and keeps ratings, history and query
// patterns in memory.
package devserver

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/stratos/foresight/internal/templates"
	"github.com/stratos/foresight/internal/types"
	"go.uber.org/zap"
)

// Config configures the mock backend.
type Config struct {
	Addr string
	// Fixture is an NDJSON file replayed for every analysis. Empty means a
	// stream is generated from the request.
	Fixture string
	// Delay is the pause before each streamed line.
	Delay  time.Duration
	Logger *zap.Logger
}

// Server is the mock backend.
type Server struct {
	echo    *echo.Echo
	addr    string
	fixture [][]byte
	delay   time.Duration
	logger  *zap.Logger
	lib     *templates.Library

	mu          sync.Mutex
	nextSession int64
	sessions    []types.HistorySession
	ratings     []types.RatingSubmission
	patterns    []types.QueryPattern
}

// New creates a server and registers its routes.
func New(cfg Config) (*Server, error) {
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.Delay < 0 {
		return nil, errors.New("devserver: delay must not be negative")
	}

	s := &Server{
		addr:        cfg.Addr,
		delay:       cfg.Delay,
		logger:      cfg.Logger.Named("devserver"),
		lib:         templates.Defaults(),
		nextSession: 1000,
	}

	if cfg.Fixture != "" {
		lines, err := LoadFixture(cfg.Fixture)
		if err != nil {
			return nil, err
		}
		s.fixture = lines
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(middleware.Recover())
	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogMethod:  true,
		LogURI:     true,
		LogStatus:  true,
		LogLatency: true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			s.logger.Info("request",
				zap.String("method", v.Method),
				zap.String("uri", v.URI),
				zap.Int("status", v.Status),
				zap.Duration("latency", v.Latency))
			return nil
		},
	}))
	s.RegisterRoutes(e)
	s.echo = e

	return s, nil
}

// RegisterRoutes mounts the backend endpoints on e.
func (s *Server) RegisterRoutes(e *echo.Echo) {
	e.GET("/", s.Health)
	e.POST("/analyze", s.Analyze)
	e.POST("/generate-pdf", s.GeneratePDF)
	e.POST("/ratings/submit", s.SubmitRating)
	e.GET("/ratings/session/:id", s.SessionRatings)

	api := e.Group("/api")
	api.GET("/analysis-history", s.History)
	api.GET("/templates", s.Templates)
	api.POST("/get-template-recommendations", s.Recommendations)
	api.POST("/track-query-pattern", s.TrackQueryPattern)
}

// Handler returns the HTTP handler, for tests.
func (s *Server) Handler() http.Handler {
	return s.echo
}

// Start serves until Shutdown is called.
func (s *Server) Start() error {
	s.logger.Info("Mock backend listening", zap.String("addr", s.addr))
	if err := s.echo.Start(s.addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("devserver: %w", err)
	}
	return nil
}

// Shutdown stops the server, waiting for open streams up to ctx's deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}

// Patterns returns the tracked query patterns.
func (s *Server) Patterns() []types.QueryPattern {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]types.QueryPattern(nil), s.patterns...)
}

// Ratings returns the submitted ratings.
func (s *Server) Ratings() []types.RatingSubmission {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]types.RatingSubmission(nil), s.ratings...)
}

func detail(c echo.Context, code int, msg string) error {
	return c.JSON(code, map[string]string{"detail": msg})
}
