// Package ratelimit throttles API callers per client key, either in-process
// or coordinated across instances through Redis.
package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/address-registry/internal/circuitbreaker"
	"github.com/redis/go-redis/v9"
)

// Limiter decides whether a request from key may proceed.
//
// When the limiter cannot reach its backing state it returns allowed=true
// together with the error, so callers fail open and only log.
type Limiter interface {
	Allow(ctx context.Context, key string) (allowed bool, retryAfter time.Duration, err error)
}

// Config holds limiter settings
type Config struct {
	// RequestsPerSecond is the sustained rate per key. Zero disables limiting.
	RequestsPerSecond float64
	// Burst is the number of requests a key may make at once.
	Burst int
	// RedisURL selects the shared Redis limiter when set.
	RedisURL string
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c.RequestsPerSecond < 0 {
		return errors.New("requests per second cannot be negative")
	}
	if c.Burst < 0 {
		return errors.New("burst cannot be negative")
	}
	return nil
}

// New builds the limiter described by cfg. It returns a nil Limiter when
// limiting is disabled. The returned close function releases any Redis
// connection and is never nil.
func New(cfg *Config) (Limiter, func() error, error) {
	noop := func() error { return nil }

	if cfg == nil {
		return nil, noop, errors.New("configuration is required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, noop, fmt.Errorf("invalid configuration: %w", err)
	}
	if cfg.RequestsPerSecond == 0 {
		return nil, noop, nil
	}

	if cfg.RedisURL == "" {
		return NewLocalLimiter(cfg.RequestsPerSecond, cfg.Burst), noop, nil
	}

	client, err := NewRedisClient(cfg.RedisURL)
	if err != nil {
		return nil, noop, err
	}
	limiter, err := NewRedisLimiter(&RedisLimiterConfig{
		Redis:   client,
		Limit:   windowLimit(cfg.RequestsPerSecond, cfg.Burst),
		Breaker: circuitbreaker.New(circuitbreaker.DefaultConfig("redis-ratelimit")),
	})
	if err != nil {
		_ = client.Close()
		return nil, noop, err
	}
	return limiter, client.Close, nil
}

// windowLimit is the per-second allowance of the fixed-window limiter
func windowLimit(rps float64, burst int) int {
	limit := int(rps)
	if float64(limit) < rps {
		limit++
	}
	if burst > limit {
		limit = burst
	}
	return limit
}

// NewRedisClient connects to the Redis server at rawURL
func NewRedisClient(rawURL string) (*redis.Client, error) {
	opts, err := redis.ParseURL(rawURL)
	if err != nil {
		return nil, fmt.Errorf("unable to parse REDIS_URL: %w", err)
	}
	opts.MaxRetries = 3
	opts.DialTimeout = 5 * time.Second
	opts.ReadTimeout = 3 * time.Second
	opts.WriteTimeout = 3 * time.Second
	opts.PoolTimeout = 4 * time.Second

	client := redis.NewClient(opts)

	// Test connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return client, nil
}
