// Package server exposes research runs over HTTP, SSE and WebSocket.
package server

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/Bhaumik-99/research-agents/config"
	"github.com/Bhaumik-99/research-agents/internal/agent/core"
	"github.com/Bhaumik-99/research-agents/internal/agent/telemetry"
	"github.com/Bhaumik-99/research-agents/internal/report"
	"github.com/Bhaumik-99/research-agents/internal/runs"
	"github.com/Bhaumik-99/research-agents/internal/runtime"
	"github.com/Bhaumik-99/research-agents/internal/search"
	"github.com/Bhaumik-99/research-agents/internal/store"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Runs is the run lifecycle the handlers drive; *runs.Manager implements it.
type Runs interface {
	Start(ctx context.Context, req runs.Request) (store.Run, error)
	Get(ctx context.Context, id string) (runs.Snapshot, error)
	Report(ctx context.Context, id string) (report.Report, error)
	List(ctx context.Context, limit int) ([]store.Run, error)
	Cancel(ctx context.Context, id string) error
	Subscribe(ctx context.Context, id string) ([]core.Event, <-chan core.Event, func(), error)
	Search(q string, limit int) ([]search.Hit, error)
	Roster() map[string][]core.AgentInfo
	Tools() []string
}

// Server wires the echo router.
type Server struct {
	cfg       *config.Config
	runs      Runs
	telemetry *telemetry.Telemetry
	logger    *log.Logger
	echo      *echo.Echo
	heartbeat time.Duration
}

// New builds the router. tel may be nil.
func New(cfg *config.Config, r Runs, tel *telemetry.Telemetry) (*Server, error) {
	if cfg == nil || r == nil {
		return nil, fmt.Errorf("server: config and runs are required")
	}
	s := &Server{
		cfg:       cfg,
		runs:      r,
		telemetry: tel,
		logger:    log.New(log.Writer(), "[HTTP] ", log.LstdFlags),
		heartbeat: 15 * time.Second,
	}
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(middleware.Recover())
	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogStatus:  true,
		LogURI:     true,
		LogMethod:  true,
		LogLatency: true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			s.logger.Printf("%s %s %d %s", v.Method, v.URI, v.Status, v.Latency.Round(time.Millisecond))
			return nil
		},
	}))
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
		AllowHeaders: []string{echo.HeaderContentType, echo.HeaderAuthorization},
	}))
	e.Use(middleware.BodyLimit("1M"))
	e.HTTPErrorHandler = s.handleError
	s.echo = e
	if err := s.routes(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Server) routes() error {
	e := s.echo
	e.GET("/healthz", func(c echo.Context) error { return c.String(http.StatusOK, "ok") })
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))
	e.GET("/", s.index)

	api := e.Group("/api")
	ws := e.Group("/ws")
	if s.cfg.Server.JWTSecret != "" {
		secret, err := runtime.LoadJWTSecret(s.cfg)
		if err != nil {
			return err
		}
		api.Use(runtime.EchoAuthMiddleware(secret))
		ws.Use(runtime.EchoAuthMiddleware(secret))
	}
	ws.GET("", s.liveResearch)

	api.GET("/agents", s.agents)
	api.GET("/metrics/summary", s.metricsSummary)
	api.POST("/research", s.create)
	api.GET("/research", s.list)
	api.GET("/research/search", s.search)
	api.GET("/research/:id", s.get)
	api.DELETE("/research/:id", s.cancel)
	api.GET("/research/:id/events", s.events)
	for _, format := range []string{"json", "md", "html"} {
		api.GET("/research/:id/report."+format, s.download(format))
	}
	return nil
}

// handleError renders every failure as {"error": msg}.
func (s *Server) handleError(err error, c echo.Context) {
	code := http.StatusInternalServerError
	msg := err.Error()
	var he *echo.HTTPError
	switch {
	case errors.As(err, &he):
		code = he.Code
		if he.Message != nil {
			msg = fmt.Sprint(he.Message)
		}
	case errors.Is(err, runs.ErrValidation):
		code = http.StatusBadRequest
	case errors.Is(err, store.ErrNotFound):
		code = http.StatusNotFound
	case errors.Is(err, runs.ErrFinished):
		code = http.StatusConflict
	}
	req := c.Request()
	if code >= http.StatusInternalServerError {
		s.logger.Printf("%d %s %s from %s: %v", code, req.Method, req.URL.Path, c.RealIP(), err)
	}
	if !c.Response().Committed {
		_ = c.JSON(code, map[string]interface{}{"error": msg})
	}
}

// Handler returns the router for tests and custom listeners.
func (s *Server) Handler() http.Handler { return s.echo }

// Start listens on addr until Shutdown.
func (s *Server) Start(addr string) error {
	if addr == "" {
		addr = s.cfg.Server.Address
	}
	s.logger.Printf("listening on %s", addr)
	err := s.echo.Start(addr)
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

func (s *Server) Shutdown(ctx context.Context) error { return s.echo.Shutdown(ctx) }
