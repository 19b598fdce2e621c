package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/centrifugal/centrifuge"
	"github.com/twistedx/killfeed/internal/adapter/metrics"
	"github.com/twistedx/killfeed/internal/domain"
	"github.com/twistedx/killfeed/internal/platform/correlation"
	"github.com/twistedx/killfeed/internal/realtime"
)

// Hub is the realtime registry the node reports connections and RPCs to.
type Hub interface {
	Register(conn realtime.Conn, p realtime.Principal)
	Unregister(connID string)
	Handle(ctx context.Context, connID, method string, data json.RawMessage) error
}

type NodeConfig struct {
	LogLevel       string
	MaxConnections int
}

// NewNode creates the centrifuge node. Call Attach and then node.Run once the
// hub exists, since the hub publishes through the node.
func NewNode(cfg NodeConfig) (*centrifuge.Node, error) {
	conf := centrifuge.Config{LogLevel: parseCentrifugeLogLevel(cfg.LogLevel), LogHandler: slogHandler}
	node, err := centrifuge.New(conf)
	if err != nil {
		return nil, fmt.Errorf("create centrifuge node: %w", err)
	}
	return node, nil
}

// Attach installs the connection handlers that bridge node clients to hub.
func Attach(node *centrifuge.Node, hub Hub, cfg NodeConfig, wsMetrics *metrics.WebSocketMetrics) {
	node.OnConnecting(onConnecting(node, cfg.MaxConnections))
	node.OnConnect(onConnect(hub, wsMetrics))
}

func onConnecting(node *centrifuge.Node, maxConnections int) func(ctx context.Context, e centrifuge.ConnectEvent) (centrifuge.ConnectReply, error) {
	return func(ctx context.Context, e centrifuge.ConnectEvent) (centrifuge.ConnectReply, error) {
		cred, ok := centrifuge.GetCredentials(ctx)
		if !ok {
			return centrifuge.ConnectReply{}, centrifuge.DisconnectServerError
		}

		if maxConnections > 0 && node.Hub().NumClients() >= maxConnections {
			slog.Warn("WebSocket connection limit reached", "limit", maxConnections, "transport", e.Transport.Name())
			return centrifuge.ConnectReply{}, centrifuge.DisconnectConnectionLimit
		}

		p := decodePrincipal(cred.Info)
		return centrifuge.ConnectReply{Subscriptions: subscriptionsFor(p)}, nil
	}
}

// subscriptionsFor lists the server-side channels for a principal. Clients
// cannot subscribe on their own.
func subscriptionsFor(p realtime.Principal) map[string]centrifuge.SubscribeOptions {
	subs := map[string]centrifuge.SubscribeOptions{
		realtime.ChannelOverlay: {},
	}
	if p.Level.IsAdmin() {
		subs[realtime.ChannelAdmin] = centrifuge.SubscribeOptions{}
	}
	return subs
}

func onConnect(hub Hub, wsMetrics *metrics.WebSocketMetrics) func(client *centrifuge.Client) {
	return func(client *centrifuge.Client) {
		p := decodePrincipal(client.Info())
		slog.Debug("Client connected", "conn_id", client.ID(), "user_id", client.UserID(), "level", p.Level.String())

		// The tier label is fixed at connect so the gauge balances on disconnect.
		tier := p.Level.String()
		if wsMetrics != nil {
			wsMetrics.Connected(tier)
		}

		client.OnSubscribe(func(e centrifuge.SubscribeEvent, cb centrifuge.SubscribeCallback) {
			cb(centrifuge.SubscribeReply{}, centrifuge.ErrorPermissionDenied)
		})

		client.OnRPC(func(e centrifuge.RPCEvent, cb centrifuge.RPCCallback) {
			ctx := correlation.WithConnID(correlation.WithID(client.Context(), correlation.NewID()), client.ID())
			err := hub.Handle(ctx, client.ID(), e.Method, e.Data)
			if err != nil && !errors.Is(err, domain.ErrUnauthorized) {
				slog.DebugContext(ctx, "Command failed", "command", e.Method, "error", err)
			}
			cb(centrifuge.RPCReply{}, rpcError(err))
		})

		client.OnDisconnect(func(e centrifuge.DisconnectEvent) {
			slog.Debug("Client disconnected", "conn_id", client.ID(), "reason", e.Reason)
			hub.Unregister(client.ID())
			if wsMetrics != nil {
				wsMetrics.Disconnected(tier)
			}
		})

		hub.Register(&conn{client: client}, p)
	}
}

// rpcError maps a hub error to the reply the client sees. Unauthorized
// commands get an empty reply so a client cannot discover its tier.
func rpcError(err error) error {
	switch {
	case err == nil, errors.Is(err, domain.ErrUnauthorized):
		return nil
	case errors.Is(err, domain.ErrUnknownCommand):
		return centrifuge.ErrorMethodNotFound
	case errors.Is(err, domain.ErrInvalidPayload):
		return centrifuge.ErrorBadRequest
	default:
		return centrifuge.ErrorInternal
	}
}

func decodePrincipal(info []byte) realtime.Principal {
	var p realtime.Principal
	if len(info) == 0 {
		return p
	}
	if err := json.Unmarshal(info, &p); err != nil {
		slog.Warn("Invalid connection info, treating as anonymous", "error", err)
		return realtime.Principal{}
	}
	return p
}

// conn adapts a centrifuge client to realtime.Conn.
type conn struct {
	client *centrifuge.Client
}

func (c *conn) ID() string { return c.client.ID() }

func (c *conn) Send(data []byte) error {
	if err := c.client.Send(data); err != nil {
		return fmt.Errorf("send to client: %w", err)
	}
	return nil
}

func (c *conn) Disconnect() {
	c.client.Disconnect(centrifuge.DisconnectForceNoReconnect)
}

func slogHandler(entry centrifuge.LogEntry) {
	attrs := make([]any, 0, len(entry.Fields)*2+2)
	attrs = append(attrs, "component", "centrifuge")
	for k, v := range entry.Fields {
		attrs = append(attrs, k, v)
	}
	switch entry.Level {
	case centrifuge.LogLevelDebug, centrifuge.LogLevelTrace:
		slog.Debug(entry.Message, attrs...)
	case centrifuge.LogLevelInfo:
		slog.Info(entry.Message, attrs...)
	case centrifuge.LogLevelWarn:
		slog.Warn(entry.Message, attrs...)
	case centrifuge.LogLevelError:
		slog.Error(entry.Message, attrs...)
	case centrifuge.LogLevelNone:
		// EMPTY
	}
}

func parseCentrifugeLogLevel(level string) centrifuge.LogLevel {
	switch level {
	case "debug":
		return centrifuge.LogLevelDebug
	case "warn":
		return centrifuge.LogLevelWarn
	case "error":
		return centrifuge.LogLevelError
	default:
		return centrifuge.LogLevelInfo
	}
}
