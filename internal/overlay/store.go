package overlay

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"unicode/utf8"

	"github.com/twistedx/killfeed/internal/domain"
)

// Store is the single authoritative copy of the overlay state in a process.
type Store struct {
	// saveMu orders config writes to the repository the same way mu orders
	// them in memory. Counter and message commands never take it.
	saveMu   sync.Mutex
	mu       sync.Mutex
	config   domain.OverlayConfig
	counters domain.Counters
	message  domain.Message
	repo     domain.ConfigRepository
}

// NewStore hydrates the configuration from repo, falling back to defaults.
// Counters and message always start empty.
func NewStore(ctx context.Context, repo domain.ConfigRepository) *Store {
	s := &Store{config: domain.DefaultOverlayConfig(), repo: repo}

	saved, err := repo.Load(ctx)
	switch {
	case errors.Is(err, domain.ErrConfigNotFound):
		slog.Info("Using default overlay config")
	case err != nil:
		slog.Warn("Failed to load overlay config, using defaults", "error", err)
	default:
		s.config = *saved
		slog.Info("Loaded saved overlay config")
	}
	return s
}

// Snapshot returns a copy of the full state.
func (s *Store) Snapshot() domain.Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return domain.Snapshot{Config: s.config, Counters: s.counters, Message: s.message}
}

// Apply runs cmd on behalf of a caller holding level. It returns
// domain.ErrUnauthorized when the level is too low and domain.ErrUnknownCommand
// for names outside the dispatch table.
func (s *Store) Apply(ctx context.Context, cmd Command, level domain.AuthLevel) (Result, error) {
	h, ok := dispatch[cmd.Name]
	if !ok {
		return Result{}, fmt.Errorf("%w: %s", domain.ErrUnknownCommand, cmd.Name)
	}
	if !level.AtLeast(h.minLevel) {
		return Result{}, fmt.Errorf("%w: %s requires %s", domain.ErrUnauthorized, cmd.Name, h.minLevel)
	}

	if h.persist {
		s.saveMu.Lock()
		defer s.saveMu.Unlock()
	}

	s.mu.Lock()
	res, err := h.apply(s, cmd.Data)
	config := s.config
	s.mu.Unlock()
	if err != nil {
		return Result{}, err
	}

	if h.persist && !res.Empty() {
		if err := s.repo.Save(ctx, config); err != nil {
			slog.ErrorContext(ctx, "Failed to persist overlay config", "command", cmd.Name, "error", err)
		}
	}
	return res, nil
}

func (s *Store) incrementCounter(data json.RawMessage) (Result, error) {
	return s.stepCounter(data, (*domain.Counters).Increment)
}

func (s *Store) decrementCounter(data json.RawMessage) (Result, error) {
	return s.stepCounter(data, (*domain.Counters).Decrement)
}

func (s *Store) stepCounter(data json.RawMessage, step func(*domain.Counters, domain.CounterType) bool) (Result, error) {
	name, err := decodeName(data)
	if err != nil {
		return Result{}, fmt.Errorf("%w: counter type: %v", domain.ErrInvalidPayload, err)
	}
	counter, ok := domain.ParseCounterType(name)
	if !ok {
		return Result{}, nil
	}
	step(&s.counters, counter)
	return Result{Event: EventCountersUpdate, Payload: s.counters}, nil
}

func (s *Store) resetCounters(json.RawMessage) (Result, error) {
	s.counters = domain.Counters{}
	return Result{Event: EventCountersUpdate, Payload: s.counters}, nil
}

func (s *Store) updateMessage(data json.RawMessage) (Result, error) {
	var msg domain.Message
	if err := json.Unmarshal(data, &msg); err != nil {
		return Result{}, fmt.Errorf("%w: message: %v", domain.ErrInvalidPayload, err)
	}
	if utf8.RuneCountInString(msg.Text) > maxMessageLength {
		return Result{}, fmt.Errorf("%w: message text exceeds %d characters", domain.ErrInvalidPayload, maxMessageLength)
	}
	s.message = msg
	return Result{Event: EventMessageUpdate, Payload: s.message}, nil
}

func (s *Store) showMessage(json.RawMessage) (Result, error) {
	s.message.Visible = true
	return Result{Event: EventMessageUpdate, Payload: s.message}, nil
}

func (s *Store) hideMessage(json.RawMessage) (Result, error) {
	s.message.Visible = false
	return Result{Event: EventMessageUpdate, Payload: s.message}, nil
}

func (s *Store) triggerCelebration(data json.RawMessage) (Result, error) {
	kind, err := decodeName(data)
	if err != nil {
		return Result{}, fmt.Errorf("%w: celebration type: %v", domain.ErrInvalidPayload, err)
	}
	if kind == "" {
		kind = defaultCelebration
	}
	return Result{Event: EventTriggerCelebration, Payload: kind}, nil
}

// updateConfig merges the patch field by field. Fields absent from the patch
// keep their current value at every depth.
func (s *Store) updateConfig(data json.RawMessage) (Result, error) {
	merged, err := MergeConfig(s.config, data)
	if err != nil {
		return Result{}, err
	}
	s.config = merged
	return Result{Event: EventConfigUpdate, Payload: s.config}, nil
}

func (s *Store) resetConfig(json.RawMessage) (Result, error) {
	s.config = domain.DefaultOverlayConfig()
	return Result{Event: EventConfigUpdate, Payload: s.config}, nil
}

func (s *Store) requestConfig(json.RawMessage) (Result, error) {
	return Result{Event: EventConfigUpdate, Payload: s.config, Private: true}, nil
}

// MergeConfig overlays a JSON patch onto base. OverlayConfig holds only value
// types, so decoding into the copy leaves base untouched.
func MergeConfig(base domain.OverlayConfig, patch json.RawMessage) (domain.OverlayConfig, error) {
	if len(patch) == 0 {
		return base, fmt.Errorf("%w: empty config patch", domain.ErrInvalidPayload)
	}
	merged := base
	if err := json.Unmarshal(patch, &merged); err != nil {
		return base, fmt.Errorf("%w: config patch: %v", domain.ErrInvalidPayload, err)
	}
	if err := merged.Validate(); err != nil {
		return base, fmt.Errorf("%w: %v", domain.ErrInvalidPayload, err)
	}
	return merged, nil
}
