// Package redis provides Redis-backed session and overlay config storage.
package redis

import (
	"context"
	"fmt"

	goredis "github.com/redis/go-redis/v9"
	"github.com/twistedx/killfeed/internal/adapter/metrics"
)

// NewClient connects to Redis and installs the metrics and circuit breaker
// hooks. Either metrics argument may be nil.
func NewClient(ctx context.Context, redisURL string, redisMetrics *metrics.RedisMetrics, breakerMetrics *metrics.BreakerMetrics) (*goredis.Client, error) {
	opts, err := goredis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis URL: %w", err)
	}

	client := goredis.NewClient(opts)
	if redisMetrics != nil {
		client.AddHook(&MetricsHook{metrics: redisMetrics})
	}
	client.AddHook(NewCircuitBreakerHook(breakerMetrics))

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to ping redis: %w", err)
	}
	return client, nil
}
