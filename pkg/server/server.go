// Package server exposes the agent's metrics and registered agents over HTTP.
package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/gravito-framework/quasar-resque/pkg/agent"
	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// AgentLister returns the agents to describe on /agents
type AgentLister interface {
	Agents() []agent.Agent
}

// AgentView is the JSON form of one agent
type AgentView struct {
	ID      string        `json:"id"`
	Label   string        `json:"label"`
	Options []string      `json:"options"`
	Status  *agent.Status `json:"status,omitempty"`
}

// Server serves /metrics, /healthz and /agents
type Server struct {
	echo   *echo.Echo
	addr   string
	agents AgentLister
	logger *slog.Logger
}

// New builds the HTTP surface
func New(addr string, gatherer prometheus.Gatherer, agents AgentLister, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	s := &Server{
		echo:   e,
		addr:   addr,
		agents: agents,
		logger: logger,
	}

	e.GET("/metrics", echo.WrapHandler(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))
	e.GET("/healthz", s.health)
	e.GET("/agents", s.listAgents)

	return s
}

// Handler returns the underlying http.Handler
func (s *Server) Handler() http.Handler {
	return s.echo
}

// Run serves until ctx is cancelled, then shuts down gracefully
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("HTTP server listening", "addr", s.addr)
		errCh <- s.echo.Start(s.addr)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	if err := s.echo.Shutdown(context.Background()); err != nil {
		return err
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) health(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]interface{}{
		"status": "ok",
		"agents": len(s.agents.Agents()),
	})
}

func (s *Server) listAgents(c echo.Context) error {
	agents := s.agents.Agents()
	views := make([]AgentView, 0, len(agents))
	for _, a := range agents {
		v := AgentView{
			ID:      a.ID(),
			Label:   a.Label(),
			Options: a.DeclaredOptions(),
		}
		if st, ok := a.(interface{ Status() agent.Status }); ok {
			status := st.Status()
			v.Status = &status
		}
		views = append(views, v)
	}
	return c.JSON(http.StatusOK, views)
}
