// Package ratelimit bounds how often a caller may trigger expensive operations.
package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const keyPrefix = "fiszki:ratelimit"

// Limiter decides whether the caller identified by key may proceed.
type Limiter interface {
	Allow(ctx context.Context, key string) (bool, error)
}

// Noop allows everything.
type Noop struct{}

func (Noop) Allow(context.Context, string) (bool, error) { return true, nil }

// Redis is a fixed-window counter shared by every server instance using the same Redis.
type Redis struct {
	client redis.Cmdable
	limit  int
	window time.Duration
	now    func() time.Time
}

// NewRedis counts at most limit calls per key in each window.
func NewRedis(client redis.Cmdable, limit int, window time.Duration) *Redis {
	return &Redis{client: client, limit: limit, window: window, now: time.Now}
}

// Connect parses a redis:// URL and verifies the server is reachable.
func Connect(ctx context.Context, redisURL string) (*redis.Client, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	opts.PoolSize = 10
	opts.MinIdleConns = 2
	opts.MaxRetries = 3
	opts.DialTimeout = 5 * time.Second
	opts.ReadTimeout = 3 * time.Second
	opts.WriteTimeout = 3 * time.Second

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("connect to redis: %w", err)
	}
	return client, nil
}

func (r *Redis) Allow(ctx context.Context, key string) (bool, error) {
	windowKey := r.windowKey(key, r.now())

	pipe := r.client.TxPipeline()
	count := pipe.Incr(ctx, windowKey)
	// NX keeps the TTL set by the first hit of the window. Needs Redis 7.
	pipe.ExpireNX(ctx, windowKey, r.window)
	if _, err := pipe.Exec(ctx); err != nil {
		return false, fmt.Errorf("rate limit %q: %w", key, err)
	}

	return count.Val() <= int64(r.limit), nil
}

func (r *Redis) windowKey(key string, now time.Time) string {
	start := now.Truncate(r.window)
	return fmt.Sprintf("%s:%s:%d", keyPrefix, key, start.Unix())
}
