package websocket

import (
	"log/slog"
	"net/http"
	"net/url"
	"slices"
	"strings"
)

// NewCheckOrigin returns the origin policy for websocket upgrades. Allowed:
// empty origins (non-browser clients), obs:// (OBS browser sources) and the
// origins of the given app URLs. localhost is allowed in development.
func NewCheckOrigin(appURLs []string, isDevelopment bool) func(r *http.Request) bool {
	allowed := make([]string, 0, len(appURLs))
	for _, raw := range appURLs {
		if origin := extractOrigin(raw); origin != "" {
			allowed = append(allowed, origin)
		}
	}

	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")

		switch {
		case origin == "":
			return true
		case strings.HasPrefix(origin, "obs://"):
			return true
		case slices.Contains(allowed, origin):
			return true
		case isDevelopment && isLocalhostOrigin(origin):
			return true
		}

		slog.Warn("WebSocket origin rejected", "origin", origin, "remote_addr", r.RemoteAddr)
		return false
	}
}

func extractOrigin(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return ""
	}
	return u.Scheme + "://" + u.Host
}

func isLocalhostOrigin(origin string) bool {
	u, err := url.Parse(origin)
	if err != nil {
		return false
	}
	host := u.Hostname()
	return host == "localhost" || host == "127.0.0.1"
}
