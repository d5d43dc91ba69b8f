package cache

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

// MaxLockout caps the password lockout
const MaxLockout = time.Hour

// AttemptThrottle counts failed password attempts in Redis. Once a key
// reaches maxAttempts failures it is locked out for base, doubling with
// every further failure up to MaxLockout.
type AttemptThrottle struct {
	client      redis.Cmdable
	maxAttempts int
	base        time.Duration
}

func NewAttemptThrottle(client redis.Cmdable, maxAttempts int, base time.Duration) *AttemptThrottle {
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	return &AttemptThrottle{client: client, maxAttempts: maxAttempts, base: base}
}

func attemptsKey(key string) string { return "gallery:attempts:" + key }
func lockoutKey(key string) string  { return "gallery:lockout:" + key }

// Blocked returns the remaining lockout for key
func (t *AttemptThrottle) Blocked(ctx context.Context, key string) (time.Duration, error) {
	ttl, err := t.client.PTTL(ctx, lockoutKey(key)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, nil
		}
		return 0, err
	}
	// PTTL is negative for missing keys and keys without expiry
	if ttl < 0 {
		return 0, nil
	}
	return ttl, nil
}

// Failure records a failed attempt and returns the lockout it started
func (t *AttemptThrottle) Failure(ctx context.Context, key string) (time.Duration, error) {
	pipe := t.client.TxPipeline()
	incr := pipe.Incr(ctx, attemptsKey(key))
	pipe.Expire(ctx, attemptsKey(key), MaxLockout)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, err
	}

	lockout := LockoutFor(int(incr.Val()), t.maxAttempts, t.base)
	if lockout == 0 {
		return 0, nil
	}
	if err := t.client.Set(ctx, lockoutKey(key), 1, lockout).Err(); err != nil {
		return 0, err
	}
	return lockout, nil
}

// Reset forgets the failures of key
func (t *AttemptThrottle) Reset(ctx context.Context, key string) error {
	return t.client.Del(ctx, attemptsKey(key), lockoutKey(key)).Err()
}

// LockoutFor returns the lockout after failures consecutive failures
func LockoutFor(failures, maxAttempts int, base time.Duration) time.Duration {
	if failures < maxAttempts || base <= 0 {
		return 0
	}
	lockout := base
	for i := maxAttempts; i < failures; i++ {
		lockout *= 2
		if lockout >= MaxLockout {
			return MaxLockout
		}
	}
	if lockout > MaxLockout {
		return MaxLockout
	}
	return lockout
}
