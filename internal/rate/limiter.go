package rate

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Decision is the outcome of a single [Limiter.Hit].
type Decision struct {
	Allowed    bool
	Count      int64
	Limit      int
	RetryAfter time.Duration
}

// Limiter enforces fixed-window counters in Redis. Keys are namespaced with
// the limiter prefix; callers choose the rest of the key.
type Limiter struct {
	redis  redis.UniversalClient
	prefix string
}

// New creates a rate [Limiter] backed by the given Redis client.
func New(redisClient redis.UniversalClient, prefix string) *Limiter {
	if prefix == "" {
		prefix = "rl"
	}
	return &Limiter{
		redis:  redisClient,
		prefix: prefix,
	}
}

// Hit records one event against key and reports whether it stays within limit
// events per window. A non-positive limit disables the check.
func (l *Limiter) Hit(ctx context.Context, key string, limit int, window time.Duration) (Decision, error) {
	if l == nil || limit <= 0 || window <= 0 {
		return Decision{Allowed: true, Limit: limit}, nil
	}

	fullKey := l.prefix + ":" + key
	count, err := l.incrementWithTTL(ctx, fullKey, window)
	if err != nil {
		return Decision{}, err
	}

	d := Decision{Allowed: count <= int64(limit), Count: count, Limit: limit}
	if !d.Allowed {
		ttl, err := l.redis.PTTL(ctx, fullKey).Result()
		if err != nil {
			return Decision{}, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
		}
		if ttl <= 0 {
			ttl = window
		}
		d.RetryAfter = ttl
	}
	return d, nil
}

// Count returns the current counter for key. Missing keys return zero.
func (l *Limiter) Count(ctx context.Context, key string) (int64, error) {
	count, err := l.redis.Get(ctx, l.prefix+":"+key).Int64()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, nil
		}
		return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	if count < 0 {
		return 0, nil
	}
	return count, nil
}

// Reset clears the counters for keys.
func (l *Limiter) Reset(ctx context.Context, keys ...string) error {
	if l == nil || len(keys) == 0 {
		return nil
	}
	full := make([]string, 0, len(keys))
	for _, k := range keys {
		full = append(full, l.prefix+":"+k)
	}
	if err := l.redis.Del(ctx, full...).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}

func (l *Limiter) incrementWithTTL(ctx context.Context, key string, ttl time.Duration) (int64, error) {
	count, err := l.redis.Incr(ctx, key).Result()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	// Fixed-window semantics: set TTL only for the first hit in the window.
	if count == 1 {
		if err := l.redis.Expire(ctx, key, ttl).Err(); err != nil {
			return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
		}
	}

	return count, nil
}
