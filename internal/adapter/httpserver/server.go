package httpserver

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net"
	"net/http"
	"syscall"
	"time"

	"github.com/gorilla/sessions"
	"github.com/jonboulle/clockwork"
	"github.com/labstack/echo/v4"
	"github.com/twistedx/killfeed/internal/adapter/metrics"
	"github.com/twistedx/killfeed/internal/domain"
	"github.com/twistedx/killfeed/internal/platform/config"
	"github.com/twistedx/killfeed/internal/platform/retry"
	"github.com/twistedx/killfeed/internal/realtime"
)

const (
	listenAttempts = 4
	listenBackoff  = 2 * time.Second
)

type appService interface {
	AuthCodeURL(state string) string
	Login(ctx context.Context, code string) (*domain.Session, error)
	CurrentSession(ctx context.Context, sessionID string) (*domain.Session, error)
	Logout(ctx context.Context, sessionID string) error
}

type realtimeStats interface {
	Stats() realtime.Stats
}

type overlayState interface {
	Snapshot() domain.Snapshot
}

// PanicNotifier is told about recovered panics. Optional.
type PanicNotifier interface {
	NotifyPanic(ctx context.Context, err error, stack []byte)
}

type Server struct {
	echo   *echo.Echo
	config *config.Config
	clock  clockwork.Clock

	app     appService
	stats   realtimeStats
	overlay overlayState

	websocketHandler http.Handler
	metricsHandler   http.Handler
	httpMetrics      *metrics.HTTPMetrics
	notifier         PanicNotifier

	pages        fs.FS
	sessionStore *sessions.CookieStore
	healthChecks []HealthCheck
	startTime    time.Time
}

// Deps groups the collaborators of the HTTP gateway.
type Deps struct {
	App              appService
	Stats            realtimeStats
	Overlay          overlayState
	WebsocketHandler http.Handler
	MetricsHandler   http.Handler
	HTTPMetrics      *metrics.HTTPMetrics
	Notifier         PanicNotifier
	Pages            fs.FS
	HealthChecks     []HealthCheck
	Clock            clockwork.Clock
}

func NewServer(cfg *config.Config, deps Deps) (*Server, error) {
	if deps.Pages == nil {
		return nil, errors.New("pages filesystem is required")
	}
	if deps.Clock == nil {
		deps.Clock = clockwork.NewRealClock()
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	srv := &Server{
		echo:             e,
		config:           cfg,
		clock:            deps.Clock,
		app:              deps.App,
		stats:            deps.Stats,
		overlay:          deps.Overlay,
		websocketHandler: deps.WebsocketHandler,
		metricsHandler:   deps.MetricsHandler,
		httpMetrics:      deps.HTTPMetrics,
		notifier:         deps.Notifier,
		pages:            deps.Pages,
		sessionStore:     setupSessionStore(cfg),
		healthChecks:     deps.HealthChecks,
		startTime:        deps.Clock.Now(),
	}

	srv.registerRoutes()

	return srv, nil
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.echo
}

// Start binds the port and serves until Shutdown.
func (s *Server) Start(ctx context.Context) error {
	ln, err := s.listen(ctx)
	if err != nil {
		return err
	}

	s.echo.Listener = ln
	slog.Info("Starting server", "port", s.config.Port, "url", s.config.AppURL)
	if err := s.echo.Start(ln.Addr().String()); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("failed to start server: %w", err)
	}
	return nil
}

// listen binds the configured port. A port still held by a previous process
// is retried three times, 2s apart.
func (s *Server) listen(ctx context.Context) (net.Listener, error) {
	addr := ":" + s.config.Port

	policy := retry.Policy{
		MaxAttempts: listenAttempts,
		Backoff:     listenBackoff,
		Clock:       s.clock,
		OnRetry: func(attempt int, _ error, wait time.Duration) {
			slog.Warn("Port in use, retrying", "port", s.config.Port, "attempt", attempt, "wait", wait)
		},
	}
	classify := func(err error) retry.Action {
		if errors.Is(err, syscall.EADDRINUSE) {
			return retry.Retry
		}
		return retry.Stop
	}

	ln, err := retry.Do(ctx, policy, classify, func(context.Context) (net.Listener, error) {
		return net.Listen("tcp", addr)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to bind %s: %w", addr, err)
	}
	return ln, nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	if err := s.echo.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shutdown server: %w", err)
	}
	return nil
}

// Session keys
const (
	sessionName          = "killfeed.sid"
	sessionKeyID         = "session_id"
	sessionKeyOAuthState = "oauth_state"
)

// Principal resolves the realtime identity behind a websocket upgrade from the
// session cookie. Requests without a live session are anonymous.
func (s *Server) Principal(r *http.Request) realtime.Principal {
	sess, ok := s.lookupSession(r)
	if !ok {
		return realtime.Principal{}
	}
	return realtime.Principal{
		Name:      sess.Identity.Username,
		DiscordID: sess.Identity.ID,
		Level:     sess.Level,
	}
}

// lookupSession returns the server-side session referenced by the cookie.
func (s *Server) lookupSession(r *http.Request) (*domain.Session, bool) {
	cookie, err := s.sessionStore.Get(r, sessionName)
	if err != nil {
		return nil, false
	}
	id, ok := cookie.Values[sessionKeyID].(string)
	if !ok || id == "" {
		return nil, false
	}
	sess, err := s.app.CurrentSession(r.Context(), id)
	if err != nil {
		if !errors.Is(err, domain.ErrSessionNotFound) {
			slog.WarnContext(r.Context(), "Session lookup failed", "error", err)
		}
		return nil, false
	}
	return sess, true
}

// renewCookie pushes the cookie expiry forward in step with the server-side
// session when rolling renewal is on.
func (s *Server) renewCookie(c echo.Context) {
	if !s.config.SessionRolling {
		return
	}
	session, err := s.sessionStore.Get(c.Request(), sessionName)
	if err != nil {
		return
	}
	session.Options = s.cookieOptions()
	if err := session.Save(c.Request(), c.Response().Writer); err != nil {
		slog.WarnContext(c.Request().Context(), "Failed to renew session cookie", "error", err)
	}
}

func setupSessionStore(cfg *config.Config) *sessions.CookieStore {
	sessionStore := sessions.NewCookieStore([]byte(cfg.SessionSecret))
	sessionStore.Options = &sessions.Options{
		Path:     "/",
		MaxAge:   int(cfg.SessionTTL.Seconds()),
		HttpOnly: true,
		Secure:   cfg.AppEnv == "production",
		SameSite: http.SameSiteLaxMode,
	}
	return sessionStore
}
