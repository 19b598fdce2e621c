package realtime

import (
	"cmp"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/jonboulle/clockwork"
	"github.com/twistedx/killfeed/internal/domain"
	"github.com/twistedx/killfeed/internal/overlay"
)

const (
	maxParticipantName = 50
	anonymousName      = "Anonymous"
)

// AccessMode selects how anonymous connections become participants.
type AccessMode string

const (
	// AccessOAuth grants participant tier only through an OAuth session.
	AccessOAuth AccessMode = "oauth"
	// AccessApproval additionally lets anonymous connections ask an admin.
	AccessApproval AccessMode = "approval"
)

// Conn is one live client connection.
type Conn interface {
	ID() string
	Send(data []byte) error
	Disconnect()
}

// Publisher fans a message out to every subscriber of a channel.
type Publisher interface {
	Publish(channel string, data []byte) error
}

type StateStore interface {
	Snapshot() domain.Snapshot
	Apply(ctx context.Context, cmd overlay.Command, level domain.AuthLevel) (overlay.Result, error)
}

// CommandRecorder observes command outcomes. Nil disables recording.
type CommandRecorder interface {
	ObserveCommand(command, result string)
}

// Principal is who a connection belongs to, resolved at connect time.
// Anonymous overlay pages carry the zero value.
type Principal struct {
	Name      string           `json:"name,omitempty"`
	DiscordID string           `json:"discordId,omitempty"`
	Level     domain.AuthLevel `json:"level"`
}

type client struct {
	conn      Conn
	principal Principal
	level     domain.AuthLevel
}

// Stats is a point-in-time view of the registry.
type Stats struct {
	Connections  int `json:"connections"`
	Participants int `json:"participants"`
	Admins       int `json:"admins"`
	Pending      int `json:"pending"`
}

type Hub struct {
	mu           sync.Mutex
	clients      map[string]*client
	participants map[string]domain.Participant
	pending      map[string]domain.PendingRequest
	admins       map[string]struct{}

	// applyMu keeps broadcasts in the order the store applied them.
	applyMu sync.Mutex

	store     StateStore
	publisher Publisher
	recorder  CommandRecorder
	clock     clockwork.Clock
	mode      AccessMode
}

func NewHub(store StateStore, publisher Publisher, recorder CommandRecorder, clock clockwork.Clock, mode AccessMode) *Hub {
	return &Hub{
		clients:      make(map[string]*client),
		participants: make(map[string]domain.Participant),
		pending:      make(map[string]domain.PendingRequest),
		admins:       make(map[string]struct{}),
		store:        store,
		publisher:    publisher,
		recorder:     recorder,
		clock:        clock,
		mode:         mode,
	}
}

// Register adds a connection, pushes the current state to it and, for
// moderators and admins, adds it to the participant roster.
func (h *Hub) Register(conn Conn, p Principal) {
	id := conn.ID()

	h.applyMu.Lock()
	snap := h.store.Snapshot()
	h.send(conn, overlay.EventConfigUpdate, snap.Config)
	h.send(conn, overlay.EventCountersUpdate, snap.Counters)
	h.send(conn, overlay.EventMessageUpdate, snap.Message)
	h.applyMu.Unlock()

	h.mu.Lock()
	h.clients[id] = &client{conn: conn, principal: p, level: p.Level}
	if p.Level.IsAdmin() {
		h.admins[id] = struct{}{}
	}
	if p.Level.IsModerator() {
		h.participants[id] = domain.Participant{
			ConnID:      id,
			Name:        p.Name,
			DiscordID:   p.DiscordID,
			IsAdmin:     p.Level.IsAdmin(),
			ConnectedAt: h.timestamp(),
		}
	}
	roster := h.rosterLocked()
	pending := h.pendingLocked()
	h.mu.Unlock()

	slog.Info("Client registered", "conn_id", id, "level", p.Level, "name", p.Name)

	// Admins are always moderators, so a joining admin gets the roster from
	// the admin channel it is already subscribed to.
	if p.Level.IsModerator() {
		h.publishAdmin(EventApprovedModeratorsUpdate, roster)
	}
	if p.Level.IsAdmin() {
		h.send(conn, EventPendingRequestsUpdate, pending)
	}
}

// Unregister drops a connection from every registry.
func (h *Hub) Unregister(connID string) {
	h.mu.Lock()
	_, wasParticipant := h.participants[connID]
	_, wasPending := h.pending[connID]
	delete(h.clients, connID)
	delete(h.participants, connID)
	delete(h.pending, connID)
	delete(h.admins, connID)
	roster := h.rosterLocked()
	pending := h.pendingLocked()
	h.mu.Unlock()

	slog.Info("Client unregistered", "conn_id", connID)

	if wasParticipant {
		h.publishAdmin(EventApprovedModeratorsUpdate, roster)
	}
	if wasPending {
		h.publishAdmin(EventPendingRequestsUpdate, pending)
	}
}

// Level returns the effective level of a registered connection.
func (h *Hub) Level(connID string) (domain.AuthLevel, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	c, ok := h.clients[connID]
	if !ok {
		return domain.LevelNone, false
	}
	return c.level, true
}

func (h *Hub) Stats() Stats {
	h.mu.Lock()
	defer h.mu.Unlock()
	return Stats{
		Connections:  len(h.clients),
		Participants: len(h.participants),
		Admins:       len(h.admins),
		Pending:      len(h.pending),
	}
}

// Handle runs one client command. Unauthorized commands are logged and
// reported as domain.ErrUnauthorized; nothing is sent to anyone.
func (h *Hub) Handle(ctx context.Context, connID, method string, data json.RawMessage) error {
	level, ok := h.Level(connID)
	if !ok {
		return fmt.Errorf("%w: %s", domain.ErrUnknownConn, connID)
	}

	var err error
	switch method {
	case CmdRequestParticipantAccess:
		err = h.requestAccess(ctx, connID, level, data)
	case CmdApproveParticipant:
		err = h.approve(ctx, connID, level, data)
	case CmdDenyParticipant:
		err = h.deny(ctx, connID, level, data)
	case CmdKickParticipant, CmdKickModerator:
		err = h.kick(ctx, connID, level, data)
	default:
		err = h.applyToStore(ctx, connID, level, method, data)
	}

	h.record(method, err)
	if errors.Is(err, domain.ErrUnauthorized) {
		slog.WarnContext(ctx, "Unauthorized command dropped", "conn_id", connID, "command", method, "level", level)
	}
	return err
}

func (h *Hub) applyToStore(ctx context.Context, connID string, level domain.AuthLevel, method string, data json.RawMessage) error {
	h.applyMu.Lock()
	defer h.applyMu.Unlock()

	res, err := h.store.Apply(ctx, overlay.Command{Name: method, Data: data}, level)
	if err != nil {
		return err
	}
	if res.Empty() {
		return nil
	}

	if res.Private {
		h.mu.Lock()
		c, ok := h.clients[connID]
		h.mu.Unlock()
		if ok {
			h.send(c.conn, res.Event, res.Payload)
		}
		return nil
	}

	slog.DebugContext(ctx, "Command applied", "conn_id", connID, "command", method)
	return h.publish(ChannelOverlay, res.Event, res.Payload)
}

func (h *Hub) requestAccess(ctx context.Context, connID string, level domain.AuthLevel, data json.RawMessage) error {
	if h.mode != AccessApproval {
		slog.DebugContext(ctx, "Access request ignored outside approval mode", "conn_id", connID)
		return nil
	}
	if level.IsModerator() {
		return nil
	}

	name, err := decodeString(data, "name")
	if err != nil {
		return err
	}
	name = participantName(name)

	h.mu.Lock()
	if _, exists := h.pending[connID]; exists {
		h.mu.Unlock()
		return nil
	}
	h.pending[connID] = domain.PendingRequest{ConnID: connID, Name: name, RequestedAt: h.timestamp()}
	pending := h.pendingLocked()
	h.mu.Unlock()

	slog.InfoContext(ctx, "Participant access requested", "conn_id", connID, "name", name)
	h.publishAdmin(EventPendingRequestsUpdate, pending)
	return nil
}

func (h *Hub) approve(ctx context.Context, connID string, level domain.AuthLevel, data json.RawMessage) error {
	if !level.IsAdmin() {
		return fmt.Errorf("%w: %s", domain.ErrUnauthorized, CmdApproveParticipant)
	}
	target, err := decodeString(data, "socketId")
	if err != nil {
		return err
	}

	h.mu.Lock()
	req, ok := h.pending[target]
	c, connected := h.clients[target]
	if !ok || !connected {
		h.mu.Unlock()
		return nil
	}
	delete(h.pending, target)
	c.level = domain.Max(c.level, domain.LevelModerator)
	h.participants[target] = domain.Participant{
		ConnID:      target,
		Name:        req.Name,
		ConnectedAt: h.timestamp(),
	}
	roster := h.rosterLocked()
	pending := h.pendingLocked()
	h.mu.Unlock()

	slog.InfoContext(ctx, "Participant approved", "conn_id", target, "name", req.Name, "by", connID)
	h.send(c.conn, EventAccessGranted, map[string]string{"name": req.Name})
	h.publishAdmin(EventPendingRequestsUpdate, pending)
	h.publishAdmin(EventApprovedModeratorsUpdate, roster)
	return nil
}

func (h *Hub) deny(ctx context.Context, connID string, level domain.AuthLevel, data json.RawMessage) error {
	if !level.IsAdmin() {
		return fmt.Errorf("%w: %s", domain.ErrUnauthorized, CmdDenyParticipant)
	}
	target, err := decodeString(data, "socketId")
	if err != nil {
		return err
	}

	h.mu.Lock()
	_, ok := h.pending[target]
	c, connected := h.clients[target]
	delete(h.pending, target)
	pending := h.pendingLocked()
	h.mu.Unlock()
	if !ok {
		return nil
	}

	slog.InfoContext(ctx, "Participant denied", "conn_id", target, "by", connID)
	if connected {
		h.send(c.conn, EventAccessDenied, struct{}{})
	}
	h.publishAdmin(EventPendingRequestsUpdate, pending)
	return nil
}

// kick removes a non-admin participant and closes its connection.
func (h *Hub) kick(ctx context.Context, connID string, level domain.AuthLevel, data json.RawMessage) error {
	if !level.IsAdmin() {
		return fmt.Errorf("%w: %s", domain.ErrUnauthorized, CmdKickParticipant)
	}
	target, err := decodeString(data, "socketId")
	if err != nil {
		return err
	}

	h.mu.Lock()
	p, ok := h.participants[target]
	c, connected := h.clients[target]
	if !ok || p.IsAdmin {
		h.mu.Unlock()
		return nil
	}
	delete(h.participants, target)
	if connected {
		c.level = domain.LevelNone
	}
	roster := h.rosterLocked()
	h.mu.Unlock()

	slog.InfoContext(ctx, "Participant kicked", "conn_id", target, "name", p.Name, "by", connID)
	h.publishAdmin(EventApprovedModeratorsUpdate, roster)
	if connected {
		h.send(c.conn, EventKicked, struct{}{})
		c.conn.Disconnect()
	}
	return nil
}

func (h *Hub) rosterLocked() []domain.Participant {
	roster := slices.Collect(maps.Values(h.participants))
	slices.SortFunc(roster, func(a, b domain.Participant) int {
		return cmp.Or(cmp.Compare(a.ConnectedAt, b.ConnectedAt), cmp.Compare(a.ConnID, b.ConnID))
	})
	return roster
}

func (h *Hub) pendingLocked() []domain.PendingRequest {
	pending := slices.Collect(maps.Values(h.pending))
	slices.SortFunc(pending, func(a, b domain.PendingRequest) int {
		return cmp.Or(cmp.Compare(a.RequestedAt, b.RequestedAt), cmp.Compare(a.ConnID, b.ConnID))
	})
	return pending
}

func (h *Hub) timestamp() string {
	return h.clock.Now().UTC().Format(time.RFC3339Nano)
}

func (h *Hub) publish(channel, event string, payload any) error {
	data, err := Encode(event, payload)
	if err != nil {
		return err
	}
	if err := h.publisher.Publish(channel, data); err != nil {
		return fmt.Errorf("publish %s to %s: %w", event, channel, err)
	}
	return nil
}

func (h *Hub) publishAdmin(event string, payload any) {
	if err := h.publish(ChannelAdmin, event, payload); err != nil {
		slog.Error("Failed to notify admins", "event", event, "error", err)
	}
}

func (h *Hub) send(conn Conn, event string, payload any) {
	data, err := Encode(event, payload)
	if err != nil {
		slog.Error("Failed to encode message", "event", event, "error", err)
		return
	}
	if err := conn.Send(data); err != nil {
		slog.Warn("Failed to send to client", "conn_id", conn.ID(), "event", event, "error", err)
	}
}

func (h *Hub) record(method string, err error) {
	if h.recorder == nil {
		return
	}
	h.recorder.ObserveCommand(commandLabel(method), resultLabel(err))
}

// commandLabel bounds metric cardinality to known command names.
func commandLabel(method string) string {
	switch method {
	case CmdRequestParticipantAccess, CmdApproveParticipant, CmdDenyParticipant, CmdKickParticipant, CmdKickModerator:
		return method
	}
	if overlay.Known(method) {
		return method
	}
	return "unknown"
}

func resultLabel(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, domain.ErrUnauthorized):
		return "unauthorized"
	case errors.Is(err, domain.ErrInvalidPayload):
		return "invalid"
	case errors.Is(err, domain.ErrUnknownCommand):
		return "unknown"
	default:
		return "error"
	}
}

// decodeString accepts a bare JSON string or an object carrying field.
func decodeString(data json.RawMessage, field string) (string, error) {
	if len(data) == 0 || string(data) == "null" {
		return "", nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		return s, nil
	}
	var obj map[string]any
	if err := json.Unmarshal(data, &obj); err != nil {
		return "", fmt.Errorf("%w: %v", domain.ErrInvalidPayload, err)
	}
	v, _ := obj[field].(string)
	return v, nil
}

func participantName(name string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		return anonymousName
	}
	if utf8.RuneCountInString(name) > maxParticipantName {
		name = string([]rune(name)[:maxParticipantName])
	}
	return name
}
