package httpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/twistedx/killfeed/internal/app"
	"github.com/twistedx/killfeed/internal/domain"
)

func TestHandleLogin_StoresStateAndRedirects(t *testing.T) {
	var gotState string
	srv, _ := newTestServer(t, &mockAppService{
		authCodeURLFn: func(state string) string {
			gotState = state
			return "https://discord.test/authorize?state=" + state
		},
	})

	rec := serve(srv, httptest.NewRequest(http.MethodGet, "/auth/discord", nil))

	assert.Equal(t, http.StatusFound, rec.Code)
	assert.Len(t, gotState, 32)
	assert.Equal(t, "https://discord.test/authorize?state="+gotState, rec.Header().Get("Location"))

	cookies := rec.Result().Cookies()
	require.NotEmpty(t, cookies)
	assert.Equal(t, sessionName, cookies[0].Name)
}

// callback drives the whole login: /auth/discord then the provider redirect.
func callback(t *testing.T, srv *Server, query func(state string) url.Values) *httptest.ResponseRecorder {
	t.Helper()

	var state string
	app := srv.app.(*mockAppService)
	app.authCodeURLFn = func(s string) string {
		state = s
		return "https://discord.test/authorize"
	}

	login := serve(srv, httptest.NewRequest(http.MethodGet, "/auth/discord", nil))
	require.Equal(t, http.StatusFound, login.Code)

	req := httptest.NewRequest(http.MethodGet, "/auth/discord/callback?"+query(state).Encode(), nil)
	for _, c := range login.Result().Cookies() {
		req.AddCookie(c)
	}
	return serve(srv, req)
}

func TestHandleOAuthCallback_Success(t *testing.T) {
	sess := testSession("sess-1", domain.LevelModerator)
	var gotCode string
	srv, _ := newTestServer(t, &mockAppService{
		loginFn: func(_ context.Context, code string) (*domain.Session, error) {
			gotCode = code
			return sess, nil
		},
	})

	rec := callback(t, srv, func(state string) url.Values {
		return url.Values{"code": {"valid-code"}, "state": {state}}
	})

	assert.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, "/dashboard.html", rec.Header().Get("Location"))
	assert.Equal(t, "valid-code", gotCode)

	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Positive(t, cookies[0].MaxAge)

	app := srv.app.(*mockAppService)
	app.currentSessionFn = sessionsByID(map[string]*domain.Session{"sess-1": sess})

	req := httptest.NewRequest(http.MethodGet, "/auth/user", nil)
	req.AddCookie(cookies[0])
	user := serve(srv, req)
	assert.Equal(t, http.StatusOK, user.Code)
}

// decodeCookie reads the values a session cookie carries.
func decodeCookie(t *testing.T, srv *Server, cookie *http.Cookie) map[any]any {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(cookie)
	session, err := srv.sessionStore.Get(req, sessionName)
	require.NoError(t, err)
	return session.Values
}

func TestHandleOAuthCallback_StateIsSingleUse(t *testing.T) {
	logins := 0
	srv, _ := newTestServer(t, &mockAppService{
		loginFn: func(context.Context, string) (*domain.Session, error) {
			logins++
			return testSession("sess-1", domain.LevelModerator), nil
		},
	})

	var state string
	srv.app.(*mockAppService).authCodeURLFn = func(s string) string {
		state = s
		return "https://discord.test/authorize"
	}
	login := serve(srv, httptest.NewRequest(http.MethodGet, "/auth/discord", nil))
	require.Equal(t, http.StatusFound, login.Code)

	first := httptest.NewRequest(http.MethodGet, "/auth/discord/callback?code=c1&state="+state, nil)
	first.AddCookie(login.Result().Cookies()[0])
	rec := serve(srv, first)
	require.Equal(t, "/dashboard.html", rec.Header().Get("Location"))

	authed := rec.Result().Cookies()
	require.Len(t, authed, 1)
	assert.Equal(t, map[any]any{sessionKeyID: "sess-1"}, decodeCookie(t, srv, authed[0]))

	replay := httptest.NewRequest(http.MethodGet, "/auth/discord/callback?code=c2&state="+state, nil)
	replay.AddCookie(authed[0])
	rec = serve(srv, replay)

	assert.Equal(t, "/?error=auth_failed", rec.Header().Get("Location"))
	assert.Equal(t, 1, logins)
}

func TestHandleOAuthCallback_LoginErrorClearsState(t *testing.T) {
	srv, _ := newTestServer(t, &mockAppService{
		loginFn: func(context.Context, string) (*domain.Session, error) {
			return nil, domain.ErrInsufficientPermissions
		},
	})

	rec := callback(t, srv, func(state string) url.Values {
		return url.Values{"code": {"c"}, "state": {state}}
	})

	require.Equal(t, "/?error=insufficient_permissions", rec.Header().Get("Location"))
	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.NotContains(t, decodeCookie(t, srv, cookies[0]), sessionKeyOAuthState)
}

func TestRollingSessionRenewsCookie(t *testing.T) {
	sessions := sessionsByID(map[string]*domain.Session{
		"sess-1": testSession("sess-1", domain.LevelAdmin),
	})

	for _, path := range []string{"/auth/user", "/dashboard.html"} {
		t.Run(path, func(t *testing.T) {
			cfg := testConfig()
			cfg.SessionRolling = true
			srv, _ := newTestServerWithConfig(t, cfg, &mockAppService{currentSessionFn: sessions})

			req := httptest.NewRequest(http.MethodGet, path, nil)
			req.AddCookie(sessionCookie(t, srv, map[string]any{sessionKeyID: "sess-1"}))
			rec := serve(srv, req)

			require.Equal(t, http.StatusOK, rec.Code)
			cookies := rec.Result().Cookies()
			require.Len(t, cookies, 1)
			assert.Equal(t, sessionName, cookies[0].Name)
			assert.Equal(t, int(cfg.SessionTTL.Seconds()), cookies[0].MaxAge)
		})
	}
}

func TestFixedSessionLeavesCookieAlone(t *testing.T) {
	srv, _ := newTestServer(t, &mockAppService{
		currentSessionFn: sessionsByID(map[string]*domain.Session{
			"sess-1": testSession("sess-1", domain.LevelAdmin),
		}),
	})

	req := httptest.NewRequest(http.MethodGet, "/dashboard.html", nil)
	req.AddCookie(sessionCookie(t, srv, map[string]any{sessionKeyID: "sess-1"}))
	rec := serve(srv, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, rec.Result().Cookies())
}

func TestHandleOAuthCallback_StateMismatch(t *testing.T) {
	called := false
	srv, _ := newTestServer(t, &mockAppService{
		loginFn: func(context.Context, string) (*domain.Session, error) {
			called = true
			return nil, nil
		},
	})

	rec := callback(t, srv, func(string) url.Values {
		return url.Values{"code": {"valid-code"}, "state": {"forged"}}
	})

	assert.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, "/?error=auth_failed", rec.Header().Get("Location"))
	assert.False(t, called)
}

func TestHandleOAuthCallback_NoStateCookie(t *testing.T) {
	srv, _ := newTestServer(t, &mockAppService{})

	rec := serve(srv, httptest.NewRequest(http.MethodGet, "/auth/discord/callback?code=x&state=y", nil))

	assert.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, "/?error=auth_failed", rec.Header().Get("Location"))
}

func TestHandleOAuthCallback_ProviderDenied(t *testing.T) {
	srv, _ := newTestServer(t, &mockAppService{})

	rec := callback(t, srv, func(state string) url.Values {
		return url.Values{"error": {"access_denied"}, "state": {state}}
	})

	assert.Equal(t, "/?error=auth_failed", rec.Header().Get("Location"))
}

func TestHandleOAuthCallback_LoginErrors(t *testing.T) {
	tests := []struct {
		err  error
		code string
	}{
		{app.ErrMissingCode, "no_code"},
		{fmt.Errorf("%w: bad code", domain.ErrTokenExchange), "token_failed"},
		{domain.ErrNotInServer, "not_in_server"},
		{domain.ErrNoSharedGuild, "not_in_server"},
		{domain.ErrBotNotConfigured, "bot_not_configured"},
		{domain.ErrInsufficientPermissions, "insufficient_permissions"},
		{fmt.Errorf("%w: disk full", app.ErrSessionSave), "session_save_failed"},
		{errors.New("boom"), "auth_failed"},
	}

	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			srv, _ := newTestServer(t, &mockAppService{
				loginFn: func(context.Context, string) (*domain.Session, error) {
					return nil, tt.err
				},
			})

			rec := callback(t, srv, func(state string) url.Values {
				return url.Values{"code": {"c"}, "state": {state}}
			})

			assert.Equal(t, http.StatusFound, rec.Code)
			assert.Equal(t, "/?error="+tt.code, rec.Header().Get("Location"))
		})
	}
}

func TestHandleUser_Authenticated(t *testing.T) {
	srv, _ := newTestServer(t, &mockAppService{
		currentSessionFn: sessionsByID(map[string]*domain.Session{
			"sess-1": testSession("sess-1", domain.LevelAdmin),
		}),
	})

	req := httptest.NewRequest(http.MethodGet, "/auth/user", nil)
	req.AddCookie(sessionCookie(t, srv, map[string]any{sessionKeyID: "sess-1"}))
	rec := serve(srv, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "111", body["id"])
	assert.Equal(t, "ghost", body["username"])
	assert.Equal(t, "0420", body["discriminator"])
	assert.Equal(t, true, body["isAdmin"])
	assert.Equal(t, true, body["isModerator"])
	assert.Len(t, body["sharedGuilds"], 1)
}

func TestHandleUser_NotAuthenticated(t *testing.T) {
	srv, _ := newTestServer(t, &mockAppService{})

	rec := serve(srv, httptest.NewRequest(http.MethodGet, "/auth/user", nil))

	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "Not authenticated", body["error"])
}

func TestHandleUser_ExpiredSession(t *testing.T) {
	srv, _ := newTestServer(t, &mockAppService{})

	req := httptest.NewRequest(http.MethodGet, "/auth/user", nil)
	req.AddCookie(sessionCookie(t, srv, map[string]any{sessionKeyID: "gone"}))
	rec := serve(srv, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestHandleLogout_DestroysSession(t *testing.T) {
	var destroyed string
	srv, _ := newTestServer(t, &mockAppService{
		logoutFn: func(_ context.Context, id string) error {
			destroyed = id
			return nil
		},
	})

	req := httptest.NewRequest(http.MethodGet, "/auth/logout", nil)
	req.AddCookie(sessionCookie(t, srv, map[string]any{sessionKeyID: "sess-1"}))
	rec := serve(srv, req)

	assert.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, "/", rec.Header().Get("Location"))
	assert.Equal(t, "sess-1", destroyed)

	cookies := rec.Result().Cookies()
	require.NotEmpty(t, cookies)
	assert.Negative(t, cookies[0].MaxAge)
}

func TestHandleLogout_WithoutSession(t *testing.T) {
	called := false
	srv, _ := newTestServer(t, &mockAppService{
		logoutFn: func(context.Context, string) error {
			called = true
			return nil
		},
	})

	rec := serve(srv, httptest.NewRequest(http.MethodGet, "/auth/logout", nil))

	assert.Equal(t, http.StatusFound, rec.Code)
	assert.False(t, called)
}

func TestPrincipal(t *testing.T) {
	srv, _ := newTestServer(t, &mockAppService{
		currentSessionFn: sessionsByID(map[string]*domain.Session{
			"sess-1": testSession("sess-1", domain.LevelModerator),
		}),
	})

	req := httptest.NewRequest(http.MethodGet, "/connection/websocket", nil)
	req.AddCookie(sessionCookie(t, srv, map[string]any{sessionKeyID: "sess-1"}))

	p := srv.Principal(req)
	assert.Equal(t, "ghost", p.Name)
	assert.Equal(t, "111", p.DiscordID)
	assert.Equal(t, domain.LevelModerator, p.Level)

	anon := srv.Principal(httptest.NewRequest(http.MethodGet, "/connection/websocket", nil))
	assert.Equal(t, domain.LevelNone, anon.Level)
	assert.Empty(t, anon.DiscordID)
}
