package websocket

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/centrifugal/centrifuge"
	"github.com/twistedx/killfeed/internal/realtime"
)

// PrincipalResolver identifies the caller of a websocket upgrade request.
// Requests without a valid session resolve to the anonymous principal.
type PrincipalResolver interface {
	Principal(r *http.Request) realtime.Principal
}

// NewHandler returns the websocket endpoint. The caller's principal travels
// to the node as connection credentials.
func NewHandler(node *centrifuge.Node, resolver PrincipalResolver, checkOrigin func(*http.Request) bool) http.Handler {
	ws := centrifuge.NewWebsocketHandler(node, centrifuge.WebsocketConfig{
		CheckOrigin: checkOrigin,
	})
	return AuthMiddleware(resolver, ws)
}

func AuthMiddleware(resolver PrincipalResolver, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p := resolver.Principal(r)

		info, err := json.Marshal(p)
		if err != nil {
			slog.Error("Failed to encode connection info", "error", err)
			http.Error(w, "internal error", http.StatusInternalServerError)
			return
		}

		ctx := centrifuge.SetCredentials(r.Context(), &centrifuge.Credentials{
			UserID: p.DiscordID,
			Info:   info,
		})
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
