package stores

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

var (
	ErrCodeNotFound         = errors.New("verification code not found")
	ErrCodeExpired          = errors.New("verification code expired")
	ErrCodeMismatch         = errors.New("verification code mismatch")
	ErrCodeAttemptsExceeded = errors.New("verification code attempts exceeded")
	ErrCodeRedisUnavailable = errors.New("verification code redis unavailable")
)

// consumeCodeLua atomically validates and deletes a verification code record.
// KEYS[1] = record key
// ARGV[1] = provided code digest (hex)
// ARGV[2] = now (unix ms)
// ARGV[3] = code lifetime (ms)
// ARGV[4] = max wrong attempts, 0 = unlimited
//
// Returns:
//
//	1 on success
//	error string: "not_found", "expired", "attempts_exceeded", "mismatch"
var consumeCodeLua = redis.NewScript(`
local vals = redis.call('HMGET', KEYS[1], 'hash', 'issued_at')
if not vals[1] then
  return {err='not_found'}
end

local now = tonumber(ARGV[2])
local ttl = tonumber(ARGV[3])
local maxAttempts = tonumber(ARGV[4])
local issuedAt = tonumber(vals[2] or '0')

if now > issuedAt + ttl then
  redis.call('DEL', KEYS[1])
  return {err='expired'}
end

if vals[1] ~= ARGV[1] then
  if maxAttempts > 0 then
    local attempts = redis.call('HINCRBY', KEYS[1], 'attempts', 1)
    if attempts >= maxAttempts then
      redis.call('DEL', KEYS[1])
      return {err='attempts_exceeded'}
    end
  end
  return {err='mismatch'}
end

redis.call('DEL', KEYS[1])
return 1
`)

// VerificationCodeStore keeps at most one outstanding one-time code per
// account. Only the code digest is persisted.
type VerificationCodeStore struct {
	redis  redis.UniversalClient
	prefix string
}

func NewVerificationCodeStore(redisClient redis.UniversalClient, prefix string) *VerificationCodeStore {
	if prefix == "" {
		prefix = "otp"
	}
	return &VerificationCodeStore{
		redis:  redisClient,
		prefix: prefix,
	}
}

func (s *VerificationCodeStore) key(accountID string) string {
	return s.prefix + ":" + accountID
}

// Save replaces any outstanding code for accountID. ttl bounds the key
// lifetime in Redis; validity is still decided from issuedAt on consume.
func (s *VerificationCodeStore) Save(
	ctx context.Context,
	accountID, codeHash string,
	issuedAt time.Time,
	ttl time.Duration,
) error {
	key := s.key(accountID)
	_, err := s.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, key)
		pipe.HSet(ctx, key, "hash", codeHash, "issued_at", issuedAt.UnixMilli(), "attempts", 0)
		pipe.PExpire(ctx, key, ttl+time.Minute)
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrCodeRedisUnavailable, err)
	}
	return nil
}

// Consume validates codeHash against the stored digest and deletes the record
// on success. A mismatch leaves the record in place unless maxAttempts is
// reached.
func (s *VerificationCodeStore) Consume(
	ctx context.Context,
	accountID, codeHash string,
	now time.Time,
	ttl time.Duration,
	maxAttempts int,
) error {
	err := consumeCodeLua.Run(ctx, s.redis,
		[]string{s.key(accountID)},
		codeHash,
		now.UnixMilli(),
		ttl.Milliseconds(),
		maxAttempts,
	).Err()

	if err != nil {
		switch err.Error() {
		case "not_found":
			return ErrCodeNotFound
		case "expired":
			return ErrCodeExpired
		case "attempts_exceeded":
			return ErrCodeAttemptsExceeded
		case "mismatch":
			return ErrCodeMismatch
		default:
			return fmt.Errorf("%w: %v", ErrCodeRedisUnavailable, err)
		}
	}

	return nil
}
