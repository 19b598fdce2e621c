package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	goredis "github.com/redis/go-redis/v9"
	"github.com/twistedx/killfeed/internal/domain"
)

const sessionKeyPrefix = "killfeed:session:"

func sessionKey(id string) string { return sessionKeyPrefix + id }

// SessionRepo stores sessions as JSON strings whose Redis TTL matches the
// session expiry.
type SessionRepo struct {
	rdb    goredis.Cmdable
	clock  clockwork.Clock
	policy domain.SessionPolicy
}

func NewSessionRepo(rdb goredis.Cmdable, clock clockwork.Clock, policy domain.SessionPolicy) *SessionRepo {
	return &SessionRepo{rdb: rdb, clock: clock, policy: policy}
}

func (r *SessionRepo) Create(ctx context.Context, identity domain.Identity, level domain.AuthLevel, guilds []domain.GuildPermission) (*domain.Session, error) {
	s := domain.NewSession(uuid.NewString(), identity, level, guilds, r.clock.Now(), r.policy.TTL)
	if err := r.write(ctx, s); err != nil {
		return nil, err
	}
	return s, nil
}

func (r *SessionRepo) Get(ctx context.Context, sessionID string) (*domain.Session, error) {
	data, err := r.rdb.Get(ctx, sessionKey(sessionID)).Bytes()
	if errors.Is(err, goredis.Nil) {
		return nil, domain.ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get session: %w", err)
	}

	var s domain.Session
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("failed to decode session: %w", err)
	}

	now := r.clock.Now()
	if s.Expired(now) {
		_ = r.rdb.Del(ctx, sessionKey(sessionID)).Err()
		return nil, domain.ErrSessionNotFound
	}

	if r.policy.Rolling {
		s.Touch(now, r.policy.TTL)
		if err := r.write(ctx, &s); err != nil {
			return nil, err
		}
	}
	return &s, nil
}

func (r *SessionRepo) Destroy(ctx context.Context, sessionID string) error {
	if err := r.rdb.Del(ctx, sessionKey(sessionID)).Err(); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	return nil
}

func (r *SessionRepo) write(ctx context.Context, s *domain.Session) error {
	data, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("failed to marshal session: %w", err)
	}
	ttl := s.ExpiresAt.Sub(r.clock.Now())
	if err := r.rdb.Set(ctx, sessionKey(s.ID), data, ttl).Err(); err != nil {
		return fmt.Errorf("failed to save session: %w", err)
	}
	return nil
}
