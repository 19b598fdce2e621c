package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/twistedx/killfeed/internal/domain"
)

const defaultProviderTimeout = 10 * time.Second

var ErrMissingCode = errors.New("authorization code missing")

// OAuthProvider runs the authorization code flow.
type OAuthProvider interface {
	AuthCodeURL(state string) string
	Exchange(ctx context.Context, code string) (string, error)
}

type IdentityFetcher interface {
	CurrentUser(ctx context.Context, accessToken string) (domain.Identity, error)
}

type PermissionResolver interface {
	Resolve(ctx context.Context, accessToken, userID string) (domain.Resolution, error)
}

type LoginRecorder interface {
	ObserveLogin(result string)
}

type SessionRecorder interface {
	ObserveLookup(result string)
}

// Service is the application layer. It is the only component that references
// the identity provider, the permission resolver and the session store at once.
type Service struct {
	oauth           OAuthProvider
	identities      IdentityFetcher
	resolver        PermissionResolver
	sessions        domain.SessionRepository
	logins          LoginRecorder
	lookups         SessionRecorder
	providerTimeout time.Duration
}

// NewService creates the application layer service. The recorders may be nil.
// A zero providerTimeout falls back to 10s.
func NewService(oauth OAuthProvider, identities IdentityFetcher, resolver PermissionResolver, sessions domain.SessionRepository, logins LoginRecorder, lookups SessionRecorder, providerTimeout time.Duration) *Service {
	if providerTimeout <= 0 {
		providerTimeout = defaultProviderTimeout
	}
	return &Service{
		oauth:           oauth,
		identities:      identities,
		resolver:        resolver,
		sessions:        sessions,
		logins:          logins,
		lookups:         lookups,
		providerTimeout: providerTimeout,
	}
}

// AuthCodeURL returns the provider authorize URL bound to state.
func (s *Service) AuthCodeURL(state string) string {
	return s.oauth.AuthCodeURL(state)
}

// Login completes an OAuth callback. It exchanges the code, fetches the
// caller's identity, resolves their level and creates a session. Callers with
// no management permission are rejected with domain.ErrInsufficientPermissions.
func (s *Service) Login(ctx context.Context, code string) (*domain.Session, error) {
	session, err := s.login(ctx, code)
	if s.logins != nil {
		result := "success"
		if err != nil {
			result = LoginErrorCode(err)
		}
		s.logins.ObserveLogin(result)
	}
	return session, err
}

func (s *Service) login(ctx context.Context, code string) (*domain.Session, error) {
	if code == "" {
		return nil, ErrMissingCode
	}

	identity, resolution, err := s.authorize(ctx, code)
	if err != nil {
		return nil, err
	}

	if resolution.Level == domain.LevelNone {
		slog.InfoContext(ctx, "Login rejected, no management permissions", "user_id", identity.ID, "user", identity.Tag())
		return nil, domain.ErrInsufficientPermissions
	}

	session, err := s.sessions.Create(ctx, identity, resolution.Level, resolution.Guilds)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSessionSave, err)
	}

	slog.InfoContext(ctx, "User logged in",
		"user_id", identity.ID,
		"user", identity.Tag(),
		"level", resolution.Level.String(),
		"shared_guilds", len(resolution.Guilds),
	)
	return session, nil
}

// authorize runs every provider call under one deadline.
func (s *Service) authorize(ctx context.Context, code string) (domain.Identity, domain.Resolution, error) {
	ctx, cancel := context.WithTimeout(ctx, s.providerTimeout)
	defer cancel()

	token, err := s.oauth.Exchange(ctx, code)
	if err != nil {
		if !errors.Is(err, domain.ErrTokenExchange) {
			err = fmt.Errorf("%w: %w", domain.ErrTokenExchange, err)
		}
		return domain.Identity{}, domain.Resolution{}, err
	}

	identity, err := s.identities.CurrentUser(ctx, token)
	if err != nil {
		return domain.Identity{}, domain.Resolution{}, fmt.Errorf("fetch identity: %w", err)
	}

	resolution, err := s.resolver.Resolve(ctx, token, identity.ID)
	if err != nil {
		return domain.Identity{}, domain.Resolution{}, fmt.Errorf("%w: %w", ErrPermissionCheck, err)
	}
	return identity, resolution, nil
}

// CurrentSession returns the live session for a cookie-held id.
func (s *Service) CurrentSession(ctx context.Context, sessionID string) (*domain.Session, error) {
	if sessionID == "" {
		s.observeLookup("miss")
		return nil, domain.ErrSessionNotFound
	}

	session, err := s.sessions.Get(ctx, sessionID)
	switch {
	case errors.Is(err, domain.ErrSessionNotFound):
		s.observeLookup("miss")
		return nil, err
	case err != nil:
		s.observeLookup("error")
		return nil, fmt.Errorf("get session: %w", err)
	}

	s.observeLookup("hit")
	return session, nil
}

// Logout destroys the session. Unknown ids are not an error.
func (s *Service) Logout(ctx context.Context, sessionID string) error {
	if sessionID == "" {
		return nil
	}
	if err := s.sessions.Destroy(ctx, sessionID); err != nil && !errors.Is(err, domain.ErrSessionNotFound) {
		return fmt.Errorf("destroy session: %w", err)
	}
	return nil
}

func (s *Service) observeLookup(result string) {
	if s.lookups != nil {
		s.lookups.ObserveLookup(result)
	}
}
