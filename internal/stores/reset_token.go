package stores

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

var (
	ErrResetNotFound         = errors.New("reset record not found")
	ErrResetRedisUnavailable = errors.New("reset redis unavailable")
)

const resetMaxRetries = 4

// ResetTokenStore persists password-reset token digests. Each account has at
// most one live digest: the record key {prefix}:h:{digest} holds the account
// and expiry, and {prefix}:a:{account} points at the live digest.
type ResetTokenStore struct {
	redis  redis.UniversalClient
	prefix string
}

func NewResetTokenStore(redisClient redis.UniversalClient, prefix string) *ResetTokenStore {
	if prefix == "" {
		prefix = "rst"
	}
	return &ResetTokenStore{
		redis:  redisClient,
		prefix: prefix,
	}
}

func (s *ResetTokenStore) recordKey(digest string) string {
	return s.prefix + ":h:" + digest
}

func (s *ResetTokenStore) accountKey(accountID string) string {
	return s.prefix + ":a:" + accountID
}

// Save stores digest for accountID and removes the account's previous token in
// the same transaction. ttl bounds the key lifetime in Redis; validity is
// decided from expiresAt on redeem.
func (s *ResetTokenStore) Save(
	ctx context.Context,
	accountID, digest string,
	expiresAt time.Time,
	ttl time.Duration,
) error {
	ptr := s.accountKey(accountID)
	rec := s.recordKey(digest)

	return s.withRetry(ctx, func(tx *redis.Tx) error {
		previous, err := tx.Get(ctx, ptr).Result()
		if err != nil && !errors.Is(err, redis.Nil) {
			return err
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			if previous != "" && previous != digest {
				pipe.Del(ctx, s.recordKey(previous))
			}
			pipe.HSet(ctx, rec, "account", accountID, "expires_at", expiresAt.UnixMilli())
			pipe.PExpire(ctx, rec, ttl+time.Minute)
			pipe.Set(ctx, ptr, digest, ttl+time.Minute)
			return nil
		})
		return err
	}, ptr)
}

// Redeem returns the account that owns digest. A record past expiresAt is
// deleted together with its pointer and reported as [ErrResetNotFound]. A live
// record is left in place; callers clear it with [ResetTokenStore.Clear].
func (s *ResetTokenStore) Redeem(ctx context.Context, digest string, now time.Time) (string, error) {
	rec := s.recordKey(digest)
	var accountID string

	err := s.withRetry(ctx, func(tx *redis.Tx) error {
		vals, err := tx.HMGet(ctx, rec, "account", "expires_at").Result()
		if err != nil {
			return err
		}
		account, _ := vals[0].(string)
		expiresRaw, _ := vals[1].(string)
		if account == "" {
			return ErrResetNotFound
		}
		expiresAt, err := strconv.ParseInt(expiresRaw, 10, 64)
		if err != nil {
			expiresAt = 0
		}

		if now.UnixMilli() > expiresAt {
			ptr := s.accountKey(account)
			current, err := tx.Get(ctx, ptr).Result()
			if err != nil && !errors.Is(err, redis.Nil) {
				return err
			}
			_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				pipe.Del(ctx, rec)
				if current == digest {
					pipe.Del(ctx, ptr)
				}
				return nil
			})
			if err != nil {
				return err
			}
			return ErrResetNotFound
		}

		accountID = account
		return nil
	}, rec)
	if err != nil {
		return "", err
	}
	return accountID, nil
}

// Clear deletes digest if it is still the live token of accountID. It reports
// whether a record was removed and is safe to call more than once.
func (s *ResetTokenStore) Clear(ctx context.Context, accountID, digest string) (bool, error) {
	rec := s.recordKey(digest)
	ptr := s.accountKey(accountID)
	var removed bool

	err := s.withRetry(ctx, func(tx *redis.Tx) error {
		removed = false
		owner, err := tx.HGet(ctx, rec, "account").Result()
		if err != nil && !errors.Is(err, redis.Nil) {
			return err
		}
		current, err := tx.Get(ctx, ptr).Result()
		if err != nil && !errors.Is(err, redis.Nil) {
			return err
		}
		if owner != accountID && current != digest {
			return nil
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			if owner == accountID {
				pipe.Del(ctx, rec)
			}
			if current == digest {
				pipe.Del(ctx, ptr)
			}
			return nil
		})
		if err != nil {
			return err
		}
		removed = owner == accountID
		return nil
	}, rec, ptr)
	return removed, err
}

// LiveDigest returns the digest of the account's live token, or "".
func (s *ResetTokenStore) LiveDigest(ctx context.Context, accountID string) (string, error) {
	digest, err := s.redis.Get(ctx, s.accountKey(accountID)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", nil
		}
		return "", fmt.Errorf("%w: %v", ErrResetRedisUnavailable, err)
	}
	return digest, nil
}

func (s *ResetTokenStore) withRetry(ctx context.Context, fn func(tx *redis.Tx) error, keys ...string) error {
	for i := 0; i < resetMaxRetries; i++ {
		err := s.redis.Watch(ctx, fn, keys...)
		if err == redis.TxFailedErr {
			continue
		}
		if err != nil {
			if errors.Is(err, ErrResetNotFound) {
				return err
			}
			return fmt.Errorf("%w: %v", ErrResetRedisUnavailable, err)
		}
		return nil
	}
	return fmt.Errorf("%w: transaction contention", ErrResetRedisUnavailable)
}
