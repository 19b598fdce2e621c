package httpserver

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/twistedx/killfeed/internal/domain"
	"github.com/twistedx/killfeed/internal/platform/version"
)

const (
	startupCheckTimeout   = 2 * time.Second
	readinessCheckTimeout = 5 * time.Second
)

// HealthCheck is a named health check function.
type HealthCheck struct {
	Name  string
	Check func(ctx context.Context) error
}

// healthState is the realtime part of GET /health.
type healthState struct {
	Participants int                  `json:"participants"`
	Admins       int                  `json:"admins"`
	Pending      int                  `json:"pending"`
	Counters     domain.Counters      `json:"counters"`
	Message      domain.Message       `json:"message"`
	Config       domain.OverlayConfig `json:"config"`
}

type healthResponse struct {
	Status      string      `json:"status"`
	Uptime      float64     `json:"uptime"`
	Timestamp   string      `json:"timestamp"`
	Environment string      `json:"environment"`
	Version     string      `json:"version"`
	Connections int         `json:"connections"`
	State       healthState `json:"state"`
}

func (s *Server) registerHealthRoutes() {
	s.echo.GET("/health", s.handleHealth)
	s.echo.GET("/health/startup", s.handleStartup)
	s.echo.GET("/health/live", s.handleLiveness)
	s.echo.GET("/health/ready", s.handleReadiness)
	s.echo.GET("/version", s.handleVersion)
}

func (s *Server) handleHealth(c echo.Context) error {
	now := s.clock.Now()

	resp := healthResponse{
		Status:      "ok",
		Uptime:      now.Sub(s.startTime).Seconds(),
		Timestamp:   now.UTC().Format(time.RFC3339Nano),
		Environment: s.config.AppEnv,
		Version:     version.Get().Version,
	}
	if s.stats != nil {
		st := s.stats.Stats()
		resp.Connections = st.Connections
		resp.State.Participants = st.Participants
		resp.State.Admins = st.Admins
		resp.State.Pending = st.Pending
	}
	if s.overlay != nil {
		snap := s.overlay.Snapshot()
		resp.State.Counters = snap.Counters
		resp.State.Message = snap.Message
		resp.State.Config = snap.Config
	}

	if err := c.JSON(http.StatusOK, resp); err != nil {
		return fmt.Errorf("failed to write health response: %w", err)
	}
	return nil
}

func (s *Server) handleStartup(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), startupCheckTimeout)
	defer cancel()

	return s.runHealthChecks(c, ctx)
}

func (s *Server) handleLiveness(c echo.Context) error {
	uptime := s.clock.Since(s.startTime).Seconds()

	response := map[string]any{
		"status": "ok",
		"uptime": uptime,
	}
	if err := c.JSON(http.StatusOK, response); err != nil {
		return fmt.Errorf("failed to write liveness response: %w", err)
	}

	return nil
}

func (s *Server) handleReadiness(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), readinessCheckTimeout)
	defer cancel()

	return s.runHealthChecks(c, ctx)
}

func (s *Server) runHealthChecks(c echo.Context, ctx context.Context) error {
	for _, hc := range s.healthChecks {
		err := hc.Check(ctx)
		if err == nil {
			continue
		}

		response := map[string]any{
			"status":       "unhealthy",
			"failed_check": hc.Name,
			"error":        err.Error(),
		}
		if err := c.JSON(http.StatusServiceUnavailable, response); err != nil {
			return fmt.Errorf("failed to send JSON response: %w", err)
		}
		return nil
	}

	if err := c.JSON(http.StatusOK, map[string]string{"status": "ready"}); err != nil {
		return fmt.Errorf("failed to send JSON response: %w", err)
	}
	return nil
}

func (s *Server) handleVersion(c echo.Context) error {
	if err := c.JSON(http.StatusOK, version.Get()); err != nil {
		return fmt.Errorf("failed to write version response: %w", err)
	}
	return nil
}
