package httpserver

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/twistedx/killfeed/internal/adapter/metrics"
	"github.com/twistedx/killfeed/internal/domain"
)

const ctxKeySession = "session"

func (s *Server) registerPageRoutes() {
	s.echo.GET("/", s.servePage("index.html"))
	s.echo.GET("/index.html", s.servePage("index.html"))
	s.echo.GET("/overlay.html", s.servePage("overlay.html"))

	moderator := s.requireLevel(domain.LevelModerator)
	s.echo.GET("/dashboard.html", s.servePage("dashboard.html"), moderator)
	s.echo.GET("/moderator-panel.html", s.servePage("moderator-panel.html"), moderator)

	admin := s.requireLevel(domain.LevelAdmin)
	s.echo.GET("/admin-panel.html", s.servePage("admin-panel.html"), admin)
	s.echo.GET("/config-panel.html", s.servePage("config-panel.html"), admin)

	s.echo.StaticFS("/static", echo.MustSubFS(s.pages, "static"))
}

func (s *Server) servePage(name string) echo.HandlerFunc {
	return func(c echo.Context) error {
		data, err := fs.ReadFile(s.pages, name)
		if errors.Is(err, fs.ErrNotExist) {
			return echo.ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("failed to read page %s: %w", name, err)
		}
		if err := c.HTMLBlob(http.StatusOK, data); err != nil {
			return fmt.Errorf("failed to send page %s: %w", name, err)
		}
		return nil
	}
}

// requireLevel gates a page behind a session of at least min. Browsers without a
// session are sent to the landing page; sessions below min get a plain 403.
func (s *Server) requireLevel(min domain.AuthLevel) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			sess, ok := s.lookupSession(c.Request())
			if !ok {
				s.observeDenial(c, metrics.DenialNotAuthenticated)
				return redirectWithError(c, "not_authenticated")
			}
			if !sess.Level.AtLeast(min) {
				slog.InfoContext(c.Request().Context(), "Page access denied",
					"path", c.Request().URL.Path,
					"discord_id", sess.Identity.ID,
					"level", sess.Level.String(),
				)
				s.observeDenial(c, metrics.DenialForbidden)
				return c.String(http.StatusForbidden, "Access denied: "+min.String()+" role required")
			}
			s.renewCookie(c)
			c.Set(ctxKeySession, sess)
			c.Set("userID", sess.Identity.ID)
			return next(c)
		}
	}
}

func (s *Server) observeDenial(c echo.Context, reason string) {
	if s.httpMetrics != nil {
		s.httpMetrics.ObservePageDenial(c.Path(), reason)
	}
}
