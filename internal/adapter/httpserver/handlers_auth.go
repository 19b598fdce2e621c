package httpserver

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"

	"github.com/gorilla/sessions"
	"github.com/labstack/echo/v4"
	"github.com/twistedx/killfeed/internal/app"
	"github.com/twistedx/killfeed/internal/domain"
	apperrors "github.com/twistedx/killfeed/internal/platform/errors"
)

func (s *Server) registerAuthRoutes(rateLimiter echo.MiddlewareFunc) {
	g := s.echo.Group("/auth", rateLimiter)
	g.GET("/discord", s.handleLogin)
	g.GET("/discord/callback", s.handleOAuthCallback)
	g.GET("/user", s.handleUser)
	g.GET("/logout", s.handleLogout)
}

// userResponse is the body of GET /auth/user.
type userResponse struct {
	ID            string                   `json:"id"`
	Username      string                   `json:"username"`
	Discriminator string                   `json:"discriminator"`
	Avatar        string                   `json:"avatar,omitempty"`
	IsAdmin       bool                     `json:"isAdmin"`
	IsModerator   bool                     `json:"isModerator"`
	SharedGuilds  []domain.GuildPermission `json:"sharedGuilds"`
}

func generateOAuthState() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate OAuth state: %w", err)
	}
	return hex.EncodeToString(b), nil
}

func redirectWithError(c echo.Context, code string) error {
	if err := c.Redirect(http.StatusFound, "/?error="+url.QueryEscape(code)); err != nil {
		return fmt.Errorf("failed to redirect: %w", err)
	}
	return nil
}

func (s *Server) handleLogin(c echo.Context) error {
	state, err := generateOAuthState()
	if err != nil {
		return apperrors.InternalError("failed to generate OAuth state", err)
	}

	session, err := s.sessionStore.Get(c.Request(), sessionName)
	if err != nil {
		slog.WarnContext(c.Request().Context(), "Discarding unreadable session cookie", "error", err)
	}

	session.Values[sessionKeyOAuthState] = state
	if err := session.Save(c.Request(), c.Response().Writer); err != nil {
		return apperrors.InternalError("failed to save OAuth state session", err)
	}

	if err := c.Redirect(http.StatusFound, s.app.AuthCodeURL(state)); err != nil {
		return fmt.Errorf("failed to redirect: %w", err)
	}
	return nil
}

func (s *Server) handleOAuthCallback(c echo.Context) error {
	ctx := c.Request().Context()

	if c.QueryParam("error") != "" {
		slog.InfoContext(ctx, "Authorization declined", "error", c.QueryParam("error"))
		return redirectWithError(c, "auth_failed")
	}

	session, err := s.sessionStore.Get(c.Request(), sessionName)
	if err != nil {
		return redirectWithError(c, "auth_failed")
	}

	expectedState, ok := session.Values[sessionKeyOAuthState].(string)
	if !ok || expectedState == "" || c.QueryParam("state") != expectedState {
		slog.WarnContext(ctx, "OAuth state mismatch")
		return redirectWithError(c, "auth_failed")
	}
	// The state is single-use whatever the outcome.
	delete(session.Values, sessionKeyOAuthState)

	sess, err := s.app.Login(ctx, c.QueryParam("code"))
	if err != nil {
		code := app.LoginErrorCode(err)
		slog.WarnContext(ctx, "Login rejected", "code", code, "error", err)
		if err := session.Save(c.Request(), c.Response().Writer); err != nil {
			slog.WarnContext(ctx, "Failed to clear OAuth state", "error", err)
		}
		return redirectWithError(c, code)
	}

	// The authenticated cookie starts from empty values so nothing from the
	// anonymous cookie carries over.
	session.Values = map[any]any{sessionKeyID: sess.ID}
	session.Options = s.cookieOptions()
	if err := session.Save(c.Request(), c.Response().Writer); err != nil {
		slog.ErrorContext(ctx, "Failed to save session cookie", "error", err)
		_ = s.app.Logout(ctx, sess.ID)
		return redirectWithError(c, "session_save_failed")
	}

	slog.InfoContext(ctx, "User logged in",
		"discord_id", sess.Identity.ID,
		"user", sess.Identity.Tag(),
		"level", sess.Level.String(),
	)

	if err := c.Redirect(http.StatusFound, "/dashboard.html"); err != nil {
		return fmt.Errorf("failed to redirect: %w", err)
	}
	return nil
}

func (s *Server) handleUser(c echo.Context) error {
	sess, ok := s.lookupSession(c.Request())
	if !ok {
		return apperrors.UnauthorizedError("Not authenticated")
	}
	s.renewCookie(c)

	guilds := sess.Guilds
	if guilds == nil {
		guilds = []domain.GuildPermission{}
	}

	resp := userResponse{
		ID:            sess.Identity.ID,
		Username:      sess.Identity.Username,
		Discriminator: sess.Identity.Discriminator,
		Avatar:        sess.Identity.Avatar,
		IsAdmin:       sess.Level.IsAdmin(),
		IsModerator:   sess.Level.IsModerator(),
		SharedGuilds:  guilds,
	}
	if err := c.JSON(http.StatusOK, resp); err != nil {
		return fmt.Errorf("failed to send user response: %w", err)
	}
	return nil
}

func (s *Server) handleLogout(c echo.Context) error {
	ctx := c.Request().Context()

	session, err := s.sessionStore.Get(c.Request(), sessionName)
	if err != nil {
		session, err = s.sessionStore.New(c.Request(), sessionName)
		if err != nil {
			slog.WarnContext(ctx, "Creating session for logout", "error", err)
		}
	}

	if id, ok := session.Values[sessionKeyID].(string); ok {
		if err := s.app.Logout(ctx, id); err != nil {
			slog.ErrorContext(ctx, "Failed to destroy session", "error", err)
		}
	}

	session.Options = s.cookieOptions()
	session.Options.MaxAge = -1
	if err := session.Save(c.Request(), c.Response().Writer); err != nil {
		return apperrors.InternalError("failed to expire session cookie", err)
	}

	if err := c.Redirect(http.StatusFound, "/"); err != nil {
		return fmt.Errorf("failed to redirect: %w", err)
	}
	return nil
}

func (s *Server) cookieOptions() *sessions.Options {
	opts := *s.sessionStore.Options
	return &opts
}
