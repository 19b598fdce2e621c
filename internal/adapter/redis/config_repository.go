package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	goredis "github.com/redis/go-redis/v9"
	"github.com/twistedx/killfeed/internal/domain"
)

const configKey = "killfeed:overlay-config"

// ConfigRepo keeps the overlay configuration in a single Redis key.
type ConfigRepo struct {
	rdb goredis.Cmdable
}

func NewConfigRepo(rdb goredis.Cmdable) *ConfigRepo {
	return &ConfigRepo{rdb: rdb}
}

func (r *ConfigRepo) Load(ctx context.Context) (*domain.OverlayConfig, error) {
	data, err := r.rdb.Get(ctx, configKey).Bytes()
	if errors.Is(err, goredis.Nil) {
		return nil, domain.ErrConfigNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get overlay config: %w", err)
	}

	cfg := domain.DefaultOverlayConfig()
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to decode overlay config: %w", err)
	}
	return &cfg, nil
}

func (r *ConfigRepo) Save(ctx context.Context, config domain.OverlayConfig) error {
	data, err := json.Marshal(config)
	if err != nil {
		return fmt.Errorf("failed to marshal overlay config: %w", err)
	}
	if err := r.rdb.Set(ctx, configKey, data, 0).Err(); err != nil {
		return fmt.Errorf("failed to save overlay config: %w", err)
	}
	return nil
}
