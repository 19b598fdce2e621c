// Package memory provides an in-process session store. Sessions are lost on
// restart.
package memory

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/twistedx/killfeed/internal/domain"
)

type SessionRepo struct {
	mu       sync.Mutex
	sessions map[string]*domain.Session
	clock    clockwork.Clock
	policy   domain.SessionPolicy
}

func NewSessionRepo(clock clockwork.Clock, policy domain.SessionPolicy) *SessionRepo {
	return &SessionRepo{
		sessions: make(map[string]*domain.Session),
		clock:    clock,
		policy:   policy,
	}
}

func (r *SessionRepo) Create(_ context.Context, identity domain.Identity, level domain.AuthLevel, guilds []domain.GuildPermission) (*domain.Session, error) {
	s := domain.NewSession(uuid.NewString(), identity, level, guilds, r.clock.Now(), r.policy.TTL)

	r.mu.Lock()
	r.sessions[s.ID] = s.Clone()
	r.mu.Unlock()

	return s, nil
}

func (r *SessionRepo) Get(_ context.Context, sessionID string) (*domain.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[sessionID]
	if !ok {
		return nil, domain.ErrSessionNotFound
	}

	now := r.clock.Now()
	if s.Expired(now) {
		delete(r.sessions, sessionID)
		return nil, domain.ErrSessionNotFound
	}
	if r.policy.Rolling {
		s.Touch(now, r.policy.TTL)
	}
	return s.Clone(), nil
}

func (r *SessionRepo) Destroy(_ context.Context, sessionID string) error {
	r.mu.Lock()
	delete(r.sessions, sessionID)
	r.mu.Unlock()
	return nil
}

// EvictExpired removes every expired session and returns how many were dropped.
func (r *SessionRepo) EvictExpired() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.clock.Now()
	evicted := 0
	for id, s := range r.sessions {
		if s.Expired(now) {
			delete(r.sessions, id)
			evicted++
		}
	}
	return evicted
}

func (r *SessionRepo) Size() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}
