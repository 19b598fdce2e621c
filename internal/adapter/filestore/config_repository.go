package filestore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/twistedx/killfeed/internal/domain"
)

const configFileName = "overlay-config.json"

// ConfigRepo keeps the overlay configuration in DATA_DIR/overlay-config.json.
type ConfigRepo struct {
	path string
	mu   sync.Mutex
}

func NewConfigRepo(dataDir string) (*ConfigRepo, error) {
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}
	return &ConfigRepo{path: filepath.Join(dataDir, configFileName)}, nil
}

// Load decodes the saved document over the defaults, so fields added since the
// file was written come back with their default values.
func (r *ConfigRepo) Load(_ context.Context) (*domain.OverlayConfig, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	data, err := os.ReadFile(r.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, domain.ErrConfigNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("read overlay config: %w", err)
	}

	cfg := domain.DefaultOverlayConfig()
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("decode overlay config: %w", err)
	}
	return &cfg, nil
}

func (r *ConfigRepo) Save(_ context.Context, config domain.OverlayConfig) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := writeJSON(r.path, config, true); err != nil {
		return fmt.Errorf("save overlay config: %w", err)
	}
	return nil
}

// Ping reports whether the data directory is writable.
func (r *ConfigRepo) Ping(_ context.Context) error {
	f, err := os.CreateTemp(filepath.Dir(r.path), ".ping-*")
	if err != nil {
		return fmt.Errorf("data dir not writable: %w", err)
	}
	name := f.Name()
	_ = f.Close()
	_ = os.Remove(name)
	return nil
}
