package filestore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/twistedx/killfeed/internal/domain"
)

const sessionExt = ".json"

// SessionRepo stores one <id>.json file per session.
type SessionRepo struct {
	dir    string
	clock  clockwork.Clock
	policy domain.SessionPolicy
	mu     sync.Mutex
}

func NewSessionRepo(dir string, clock clockwork.Clock, policy domain.SessionPolicy) (*SessionRepo, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("create session dir: %w", err)
	}
	return &SessionRepo{dir: dir, clock: clock, policy: policy}, nil
}

// path maps a session id to its file. Ids that are not UUIDs never reach the
// filesystem.
func (r *SessionRepo) path(sessionID string) (string, bool) {
	id, err := uuid.Parse(sessionID)
	if err != nil {
		return "", false
	}
	return filepath.Join(r.dir, id.String()+sessionExt), true
}

func (r *SessionRepo) Create(ctx context.Context, identity domain.Identity, level domain.AuthLevel, guilds []domain.GuildPermission) (*domain.Session, error) {
	s := domain.NewSession(uuid.NewString(), identity, level, guilds, r.clock.Now(), r.policy.TTL)
	path, _ := r.path(s.ID)

	r.mu.Lock()
	defer r.mu.Unlock()
	if err := writeJSON(path, s, false); err != nil {
		return nil, fmt.Errorf("save session: %w", err)
	}

	slog.DebugContext(ctx, "Session created", "session_id", s.ID, "user_id", identity.ID)
	return s, nil
}

func (r *SessionRepo) Get(ctx context.Context, sessionID string) (*domain.Session, error) {
	path, ok := r.path(sessionID)
	if !ok {
		return nil, domain.ErrSessionNotFound
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	s, err := readSession(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, domain.ErrSessionNotFound
	}
	if err != nil {
		slog.WarnContext(ctx, "Discarding unreadable session file", "session_id", sessionID, "error", err)
		_ = os.Remove(path)
		return nil, domain.ErrSessionNotFound
	}

	now := r.clock.Now()
	if s.Expired(now) {
		_ = os.Remove(path)
		return nil, domain.ErrSessionNotFound
	}

	if r.policy.Rolling {
		s.Touch(now, r.policy.TTL)
		if err := writeJSON(path, s, false); err != nil {
			slog.WarnContext(ctx, "Failed to renew session", "session_id", sessionID, "error", err)
		}
	}
	return s, nil
}

func (r *SessionRepo) Destroy(_ context.Context, sessionID string) error {
	path, ok := r.path(sessionID)
	if !ok {
		return nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove session: %w", err)
	}
	return nil
}

// EvictExpired removes expired and unreadable session files.
func (r *SessionRepo) EvictExpired() int {
	entries, err := os.ReadDir(r.dir)
	if err != nil {
		slog.Error("Failed to list session dir", "dir", r.dir, "error", err)
		return 0
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.clock.Now()
	evicted := 0
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), sessionExt) {
			continue
		}
		path := filepath.Join(r.dir, entry.Name())
		s, err := readSession(path)
		if errors.Is(err, os.ErrNotExist) {
			continue
		}
		if err == nil && !s.Expired(now) {
			continue
		}
		if err := os.Remove(path); err == nil {
			evicted++
		}
	}
	return evicted
}

// Ping reports whether the session directory is usable.
func (r *SessionRepo) Ping(_ context.Context) error {
	info, err := os.Stat(r.dir)
	if err != nil {
		return fmt.Errorf("stat session dir: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("session dir %s is not a directory", r.dir)
	}
	return nil
}

func readSession(path string) (*domain.Session, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var s domain.Session
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("decode session: %w", err)
	}
	return &s, nil
}
