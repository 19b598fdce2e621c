package httpserver

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"testing/fstest"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/require"
	"github.com/twistedx/killfeed/internal/domain"
	"github.com/twistedx/killfeed/internal/platform/config"
	"github.com/twistedx/killfeed/internal/realtime"
)

// --- mockAppService ---

type mockAppService struct {
	authCodeURLFn    func(state string) string
	loginFn          func(ctx context.Context, code string) (*domain.Session, error)
	currentSessionFn func(ctx context.Context, sessionID string) (*domain.Session, error)
	logoutFn         func(ctx context.Context, sessionID string) error
}

func (m *mockAppService) AuthCodeURL(state string) string {
	if m.authCodeURLFn != nil {
		return m.authCodeURLFn(state)
	}
	return "https://discord.test/oauth2/authorize?state=" + state
}

func (m *mockAppService) Login(ctx context.Context, code string) (*domain.Session, error) {
	if m.loginFn != nil {
		return m.loginFn(ctx, code)
	}
	return nil, errors.New("login not configured")
}

func (m *mockAppService) CurrentSession(ctx context.Context, sessionID string) (*domain.Session, error) {
	if m.currentSessionFn != nil {
		return m.currentSessionFn(ctx, sessionID)
	}
	return nil, domain.ErrSessionNotFound
}

func (m *mockAppService) Logout(ctx context.Context, sessionID string) error {
	if m.logoutFn != nil {
		return m.logoutFn(ctx, sessionID)
	}
	return nil
}

// --- mockStats ---

type mockStats struct {
	stats realtime.Stats
}

func (m *mockStats) Stats() realtime.Stats { return m.stats }

type mockOverlay struct {
	snapshot domain.Snapshot
}

func (m *mockOverlay) Snapshot() domain.Snapshot { return m.snapshot }

// --- helpers ---

var testStart = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func testPages() fstest.MapFS {
	page := func(body string) *fstest.MapFile { return &fstest.MapFile{Data: []byte(body)} }
	return fstest.MapFS{
		"index.html":           page("index"),
		"overlay.html":         page("overlay"),
		"dashboard.html":       page("dashboard"),
		"moderator-panel.html": page("moderator-panel"),
		"admin-panel.html":     page("admin-panel"),
		"config-panel.html":    page("config-panel"),
		"static/app.js":        page("console.log('ok')"),
	}
}

func testConfig() *config.Config {
	return &config.Config{
		AppEnv:        "development",
		Port:          "3000",
		AppURL:        "http://localhost:3000",
		SessionSecret: "test-secret-key-32-bytes-long!!!",
		SessionTTL:    time.Hour,
		AuthRateLimit: 1000,
		AuthRateBurst: 1000,
	}
}

func newTestServer(t *testing.T, app appService, opts ...func(*Deps)) (*Server, *clockwork.FakeClock) {
	t.Helper()
	return newTestServerWithConfig(t, testConfig(), app, opts...)
}

func newTestServerWithConfig(t *testing.T, cfg *config.Config, app appService, opts ...func(*Deps)) (*Server, *clockwork.FakeClock) {
	t.Helper()

	clock := clockwork.NewFakeClockAt(testStart)
	deps := Deps{
		App:   app,
		Pages: testPages(),
		Clock: clock,
	}
	for _, opt := range opts {
		opt(&deps)
	}

	srv, err := NewServer(cfg, deps)
	require.NoError(t, err)
	return srv, clock
}

func withHealthChecks(checks ...HealthCheck) func(*Deps) {
	return func(d *Deps) {
		d.HealthChecks = checks
	}
}

func withRealtime(stats realtime.Stats, snapshot domain.Snapshot) func(*Deps) {
	return func(d *Deps) {
		d.Stats = &mockStats{stats: stats}
		d.Overlay = &mockOverlay{snapshot: snapshot}
	}
}

func withNotifier(n PanicNotifier) func(*Deps) {
	return func(d *Deps) {
		d.Notifier = n
	}
}

// sessionCookie returns the cookie a browser would hold after logging in.
func sessionCookie(t *testing.T, srv *Server, values map[string]any) *http.Cookie {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	session, err := srv.sessionStore.New(req, sessionName)
	require.NoError(t, err)
	for k, v := range values {
		session.Values[k] = v
	}
	require.NoError(t, session.Save(req, rec))

	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 1)
	return cookies[0]
}

// sessionsByID serves CurrentSession from a fixed map.
func sessionsByID(sessions map[string]*domain.Session) func(context.Context, string) (*domain.Session, error) {
	return func(_ context.Context, id string) (*domain.Session, error) {
		if s, ok := sessions[id]; ok {
			return s, nil
		}
		return nil, domain.ErrSessionNotFound
	}
}

func testSession(id string, level domain.AuthLevel) *domain.Session {
	return &domain.Session{
		ID: id,
		Identity: domain.Identity{
			ID:            "111",
			Username:      "ghost",
			Discriminator: "0420",
			Avatar:        "abc",
		},
		Level: level,
		Guilds: []domain.GuildPermission{
			{GuildID: "g1", GuildName: "TwistedX", IsAdmin: level.IsAdmin(), IsModerator: level.IsModerator()},
		},
		CreatedAt: testStart,
		UpdatedAt: testStart,
		ExpiresAt: testStart.Add(time.Hour),
	}
}

func serve(srv *Server, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	return rec
}
