package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/address-registry/internal/circuitbreaker"
	"github.com/redis/go-redis/v9"
)

// Defaults for the Redis limiter.
const (
	DefaultWindowSize = time.Second
	DefaultKeyPrefix  = "ratelimit:"
)

// windowScript increments the counter for the current window and reports
// whether the caller is still within the limit. Rejected calls do not
// consume allowance.
var windowScript = redis.NewScript(`
	local key = KEYS[1]
	local limit = tonumber(ARGV[1])
	local ttl = tonumber(ARGV[2])

	local used = tonumber(redis.call('GET', key) or '0')
	if used + 1 > limit then
		return {0, used}
	end

	redis.call('INCRBY', key, 1)
	redis.call('EXPIRE', key, ttl)

	return {1, used + 1}
`)

// RedisLimiter is a fixed-window counter shared by every instance that
// points at the same Redis
type RedisLimiter struct {
	redis      redis.Cmdable
	limit      int
	windowSize time.Duration
	keyPrefix  string
	breaker    *circuitbreaker.CircuitBreaker
	now        func() time.Time
}

// RedisLimiterConfig holds configuration for the Redis limiter.
type RedisLimiterConfig struct {
	// Redis is the client used for cross-instance coordination. Required.
	Redis redis.Cmdable

	// Limit is the number of requests allowed per key per window. Required.
	Limit int

	// WindowSize is the fixed window duration. Default: 1s.
	WindowSize time.Duration

	// KeyPrefix namespaces the counters. Default: "ratelimit:".
	KeyPrefix string

	// Breaker skips Redis after repeated failures. Optional.
	Breaker *circuitbreaker.CircuitBreaker
}

// NewRedisLimiter creates a new limiter with the given configuration.
func NewRedisLimiter(cfg *RedisLimiterConfig) (*RedisLimiter, error) {
	if cfg == nil {
		return nil, errors.New("configuration is required")
	}
	if cfg.Redis == nil {
		return nil, errors.New("redis client is required")
	}
	if cfg.Limit <= 0 {
		return nil, fmt.Errorf("limit must be positive, got %d", cfg.Limit)
	}

	windowSize := cfg.WindowSize
	if windowSize <= 0 {
		windowSize = DefaultWindowSize
	}
	keyPrefix := cfg.KeyPrefix
	if keyPrefix == "" {
		keyPrefix = DefaultKeyPrefix
	}

	return &RedisLimiter{
		redis:      cfg.Redis,
		limit:      cfg.Limit,
		windowSize: windowSize,
		keyPrefix:  keyPrefix,
		breaker:    cfg.Breaker,
		now:        time.Now,
	}, nil
}

// windowKey returns the counter key for key in the window containing now
func (l *RedisLimiter) windowKey(key string, windowStart time.Time) string {
	return l.keyPrefix + key + ":" + strconv.FormatInt(windowStart.UnixMilli(), 10)
}

// Allow implements Limiter
func (l *RedisLimiter) Allow(ctx context.Context, key string) (bool, time.Duration, error) {
	now := l.now()
	windowStart := now.Truncate(l.windowSize)

	ttlSeconds := int((2 * l.windowSize).Seconds())
	if ttlSeconds < 1 {
		ttlSeconds = 1
	}

	var result []int64
	run := func() error {
		var err error
		result, err = windowScript.Run(ctx, l.redis, []string{l.windowKey(key, windowStart)},
			l.limit, ttlSeconds).Int64Slice()
		return err
	}

	var err error
	if l.breaker != nil {
		err = l.breaker.Execute(run)
	} else {
		err = run()
	}
	if err != nil {
		return true, 0, fmt.Errorf("rate limit check failed: %w", err)
	}

	if result[0] == 1 {
		return true, 0, nil
	}
	return false, l.calculateWaitTime(windowStart, now), nil
}

// calculateWaitTime returns the time until the next window starts.
func (l *RedisLimiter) calculateWaitTime(windowStart, now time.Time) time.Duration {
	waitTime := windowStart.Add(l.windowSize).Sub(now)
	if waitTime < 0 {
		waitTime = 0
	}
	return waitTime + time.Millisecond
}

// Limit returns the per-window allowance
func (l *RedisLimiter) Limit() int {
	return l.limit
}
