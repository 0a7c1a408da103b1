package ratelimit

import (
	"context"
	_ "embed"
	"fmt"
	"strconv"
	"sync"

	"github.com/redis/go-redis/v9"
)

// DefaultKeyPrefix namespaces limiter keys in a shared Redis.
const DefaultKeyPrefix = "chatgateway:ratelimit"

//go:embed fixed_window.lua
var fixedWindowScript string

// RedisLimiter is a fixed-window limiter whose counters live in Redis,
// so every gateway replica shares one window per key.
type RedisLimiter struct {
	scripter  redis.Scripter
	closer    func() error
	script    *redis.Script
	policy    Policy
	keyPrefix string
	clock     Clock
	closeOnce sync.Once
}

// NewRedisLimiter creates a Redis-backed limiter.
// client: a redis.Client or redis.ClusterClient.
func NewRedisLimiter(client redis.UniversalClient, policy Policy, keyPrefix string) *RedisLimiter {
	r := newRedisLimiter(client, policy, keyPrefix)
	r.closer = client.Close
	return r
}

func newRedisLimiter(s redis.Scripter, policy Policy, keyPrefix string) *RedisLimiter {
	if keyPrefix == "" {
		keyPrefix = DefaultKeyPrefix
	}
	return &RedisLimiter{
		scripter:  s,
		script:    redis.NewScript(fixedWindowScript),
		policy:    policy,
		keyPrefix: keyPrefix,
		clock:     SystemClock{},
	}
}

// WithClock sets a custom clock.
func (r *RedisLimiter) WithClock(c Clock) *RedisLimiter {
	r.clock = c
	return r
}

func (r *RedisLimiter) windowKey(key string, start int64) string {
	return r.keyPrefix + ":" + key + ":" + strconv.FormatInt(start, 10)
}

// Allow increments key's counter for the current window.
func (r *RedisLimiter) Allow(ctx context.Context, key string) (*Result, error) {
	start := r.policy.windowStart(r.clock.Now())
	bucket := start.UnixMilli() / r.policy.Window.Milliseconds()

	// Run tries EVALSHA and falls back to EVAL on NOSCRIPT.
	count, err := r.script.Run(ctx, r.scripter,
		[]string{r.windowKey(key, bucket)},
		r.policy.Window.Milliseconds(),
	).Int64()
	if err != nil {
		return nil, fmt.Errorf("rate limit script: %w", err)
	}
	return newResult(r.policy, count, start), nil
}

// Close closes the Redis client. Safe to call more than once.
func (r *RedisLimiter) Close() error {
	var err error
	r.closeOnce.Do(func() {
		if r.closer != nil {
			err = r.closer()
		}
	})
	return err
}
