// Package api exposes the worker's HTTP surface: the request-interception
// catch-all, the page message WebSocket, health, and metrics.
package api

import (
	"context"
	"net/http"
	"net/url"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/urbanpack/offsync/internal/clients"
	"github.com/urbanpack/offsync/internal/lifecycle"
	"github.com/urbanpack/offsync/internal/logger"
	"github.com/urbanpack/offsync/internal/router"
	"github.com/urbanpack/offsync/internal/syncer"
)

// Server wires the worker components onto an Echo instance.
type Server struct {
	echo      *echo.Echo
	orch      *syncer.Orchestrator
	hub       *clients.Hub
	router    *router.Router
	lifecycle *lifecycle.Controller
	log       logger.Logger
}

// Config carries the construction parameters for a Server.
type Config struct {
	Orchestrator *syncer.Orchestrator
	Hub          *clients.Hub
	Router       *router.Router
	Lifecycle    *lifecycle.Controller
	Upstream     string
	Gatherer     prometheus.Gatherer
	Log          logger.Logger
}

// NewServer builds the Echo instance and registers all routes.
func NewServer(cfg Config) (*Server, error) {
	upstream, err := url.Parse(cfg.Upstream)
	if err != nil {
		return nil, err
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	s := &Server{
		echo:      e,
		orch:      cfg.Orchestrator,
		hub:       cfg.Hub,
		router:    cfg.Router,
		lifecycle: cfg.Lifecycle,
		log:       cfg.Log,
	}

	e.GET("/healthz", s.handleHealth)
	e.GET("/metrics", echo.WrapHandler(promhttp.HandlerFor(cfg.Gatherer, promhttp.HandlerOpts{})))
	e.GET("/ws", s.handleWS)

	// Mutation requests are never cacheable: they bypass the strategy
	// router entirely and proxy straight to the upstream origin.
	e.Use(middleware.ProxyWithConfig(middleware.ProxyConfig{
		Balancer: middleware.NewRoundRobinBalancer([]*middleware.ProxyTarget{{URL: upstream}}),
		Skipper: func(c echo.Context) bool {
			return c.Request().Method == http.MethodGet || c.Request().Method == http.MethodHead
		},
	}))

	s.router.Register(e)
	return s, nil
}

// Echo returns the underlying Echo instance, mainly for tests.
func (s *Server) Echo() *echo.Echo {
	return s.echo
}

// Start serves on addr until Shutdown.
func (s *Server) Start(addr string) error {
	return s.echo.Start(addr)
}

// Shutdown stops the server gracefully.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}

func (s *Server) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{
		"status":    "ok",
		"lifecycle": string(s.lifecycle.State()),
	})
}
