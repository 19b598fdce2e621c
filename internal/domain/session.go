package domain

import (
	"context"
	"slices"
	"time"
)

// Session is the server-side record behind a browser's session cookie.
type Session struct {
	ID        string            `json:"id"`
	Identity  Identity          `json:"identity"`
	Level     AuthLevel         `json:"level"`
	Guilds    []GuildPermission `json:"guilds,omitempty"`
	CreatedAt time.Time         `json:"createdAt"`
	UpdatedAt time.Time         `json:"updatedAt"`
	ExpiresAt time.Time         `json:"expiresAt"`
}

// NewSession builds a session that expires ttl after now.
func NewSession(id string, identity Identity, level AuthLevel, guilds []GuildPermission, now time.Time, ttl time.Duration) *Session {
	return &Session{
		ID:        id,
		Identity:  identity,
		Level:     level,
		Guilds:    guilds,
		CreatedAt: now,
		UpdatedAt: now,
		ExpiresAt: now.Add(ttl),
	}
}

// Expired reports whether the session is past its expiry at now.
func (s *Session) Expired(now time.Time) bool {
	return !now.Before(s.ExpiresAt)
}

// Clone returns a copy that shares no mutable state with s.
func (s *Session) Clone() *Session {
	c := *s
	c.Guilds = slices.Clone(s.Guilds)
	return &c
}

// Touch renews the session for another ttl measured from now.
func (s *Session) Touch(now time.Time, ttl time.Duration) {
	s.UpdatedAt = now
	s.ExpiresAt = now.Add(ttl)
}

// SessionPolicy controls session lifetime. With Rolling set, every successful
// lookup renews the TTL; otherwise the TTL counts from creation.
type SessionPolicy struct {
	TTL     time.Duration
	Rolling bool
}

type SessionRepository interface {
	Create(ctx context.Context, identity Identity, level AuthLevel, guilds []GuildPermission) (*Session, error)
	// Get returns ErrSessionNotFound for unknown and expired sessions.
	Get(ctx context.Context, sessionID string) (*Session, error)
	Destroy(ctx context.Context, sessionID string) error
}
