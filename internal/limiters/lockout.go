package limiters

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// LockoutConfig holds configuration for the account lockout tracker.
type LockoutConfig struct {
	Threshold int
	Duration  time.Duration
	Prefix    string
}

var (
	// ErrLockoutUnavailable indicates the lockout backend is unreachable.
	ErrLockoutUnavailable = errors.New("lockout backend unavailable")
)

// LockoutState is a point-in-time view of an account's failure record.
type LockoutState struct {
	Failures    int
	LockedUntil time.Time
}

// Locked reports whether the state represents an active lock at now.
func (s LockoutState) Locked(now time.Time) bool {
	return !s.LockedUntil.IsZero() && now.Before(s.LockedUntil)
}

// recordFailureLua clears an elapsed lock, increments the failure count, and
// starts a lock window once the count reaches the threshold.
// KEYS[1] = state key
// ARGV[1] = now (unix ms)
// ARGV[2] = threshold
// ARGV[3] = lock duration (ms)
// ARGV[4] = key retention (ms), housekeeping only
//
// Returns {count, locked_until}.
var recordFailureLua = redis.NewScript(`
local now = tonumber(ARGV[1])
local threshold = tonumber(ARGV[2])
local duration = tonumber(ARGV[3])
local retention = tonumber(ARGV[4])

local lockedUntil = tonumber(redis.call('HGET', KEYS[1], 'locked_until') or '0')
if lockedUntil > 0 and now >= lockedUntil then
  redis.call('DEL', KEYS[1])
  lockedUntil = 0
end

local count = redis.call('HINCRBY', KEYS[1], 'count', 1)
if lockedUntil == 0 and count >= threshold then
  lockedUntil = now + duration
  redis.call('HSET', KEYS[1], 'locked_until', lockedUntil)
end

redis.call('PEXPIRE', KEYS[1], retention)
return {count, lockedUntil}
`)

// isLockedLua reads the lock and deletes the record when the lock window has
// elapsed.
// KEYS[1] = state key
// ARGV[1] = now (unix ms)
//
// Returns {count, locked_until}; {0, 0} after lazy expiry.
var isLockedLua = redis.NewScript(`
local now = tonumber(ARGV[1])
local vals = redis.call('HMGET', KEYS[1], 'count', 'locked_until')
local count = tonumber(vals[1] or '0')
local lockedUntil = tonumber(vals[2] or '0')
if lockedUntil > 0 and now >= lockedUntil then
  redis.call('DEL', KEYS[1])
  return {0, 0}
end
return {count, lockedUntil}
`)

// LockoutTracker counts consecutive failed password verifications per account
// and locks the account for a fixed window once the threshold is reached.
// Every mutation is a single Lua script, so concurrent failures for one account
// are never lost.
type LockoutTracker struct {
	redis  redis.UniversalClient
	config LockoutConfig
	now    func() time.Time
}

// NewLockoutTracker creates a tracker. now defaults to time.Now.
func NewLockoutTracker(redisClient redis.UniversalClient, cfg LockoutConfig, now func() time.Time) *LockoutTracker {
	if cfg.Threshold <= 0 {
		cfg.Threshold = 5
	}
	if cfg.Duration <= 0 {
		cfg.Duration = 15 * time.Minute
	}
	if cfg.Prefix == "" {
		cfg.Prefix = "lock"
	}
	if now == nil {
		now = time.Now
	}
	return &LockoutTracker{redis: redisClient, config: cfg, now: now}
}

func (l *LockoutTracker) key(accountID string) string {
	return l.config.Prefix + ":" + accountID
}

// RecordFailure increments the failure counter for an account and returns the
// resulting state. The state is locked once Failures reaches the threshold.
func (l *LockoutTracker) RecordFailure(ctx context.Context, accountID string) (LockoutState, error) {
	if l == nil || accountID == "" {
		return LockoutState{}, nil
	}

	res, err := recordFailureLua.Run(ctx, l.redis,
		[]string{l.key(accountID)},
		l.now().UnixMilli(),
		l.config.Threshold,
		l.config.Duration.Milliseconds(),
		l.retention().Milliseconds(),
	).Int64Slice()
	if err != nil {
		return LockoutState{}, fmt.Errorf("%w: %v", ErrLockoutUnavailable, err)
	}
	return stateFromScript(res)
}

// IsLocked reports whether the account is inside an active lock window. An
// elapsed lock is removed by the call that observes it.
func (l *LockoutTracker) IsLocked(ctx context.Context, accountID string) (bool, error) {
	state, err := l.Status(ctx, accountID)
	if err != nil {
		return false, err
	}
	return state.Locked(l.now()), nil
}

// Status returns the account's failure record, applying lazy expiry.
func (l *LockoutTracker) Status(ctx context.Context, accountID string) (LockoutState, error) {
	if l == nil || accountID == "" {
		return LockoutState{}, nil
	}

	res, err := isLockedLua.Run(ctx, l.redis,
		[]string{l.key(accountID)},
		l.now().UnixMilli(),
	).Int64Slice()
	if err != nil {
		return LockoutState{}, fmt.Errorf("%w: %v", ErrLockoutUnavailable, err)
	}
	return stateFromScript(res)
}

// Reset clears the failure counter and any lock for an account.
func (l *LockoutTracker) Reset(ctx context.Context, accountID string) error {
	if l == nil || accountID == "" {
		return nil
	}

	if err := l.redis.Del(ctx, l.key(accountID)).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrLockoutUnavailable, err)
	}
	return nil
}

// retention bounds how long an idle failure record survives in Redis. Lock
// expiry itself is decided by locked_until, never by the key TTL.
func (l *LockoutTracker) retention() time.Duration {
	if r := 2 * l.config.Duration; r > 24*time.Hour {
		return r
	}
	return 24 * time.Hour
}

// Threshold returns the configured failure threshold.
func (l *LockoutTracker) Threshold() int {
	return l.config.Threshold
}

func stateFromScript(res []int64) (LockoutState, error) {
	if len(res) != 2 {
		return LockoutState{}, fmt.Errorf("%w: unexpected lua result length %d", ErrLockoutUnavailable, len(res))
	}
	state := LockoutState{Failures: int(res[0])}
	if res[1] > 0 {
		state.LockedUntil = time.UnixMilli(res[1])
	}
	return state, nil
}
