package redis

import (
	"context"
	"fmt"
	"time"

	domainErrors "github.com/cassiomorais/storefront/internal/domain/errors"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

var (
	// Lua script for safe lock release (only owner can release)
	releaseLockScript = redis.NewScript(`
		if redis.call("get", KEYS[1]) == ARGV[1] then
			return redis.call("del", KEYS[1])
		else
			return 0
		end
	`)

	// Lua script for lock extension
	extendLockScript = redis.NewScript(`
		if redis.call("get", KEYS[1]) == ARGV[1] then
			return redis.call("pexpire", KEYS[1], ARGV[2])
		else
			return 0
		end
	`)
)

// DistributedLock is a single-owner Redis lock. It serializes
// read-modify-write cycles on one attempt across API instances.
type DistributedLock struct {
	client   redis.Cmdable
	key      string
	token    string
	ttl      time.Duration
	acquired bool
}

// NewDistributedLock creates a lock on key; the owner token is a fresh uuid.
func NewDistributedLock(client redis.Cmdable, key string, ttl time.Duration) *DistributedLock {
	return &DistributedLock{
		client: client,
		key:    "lock:" + key,
		token:  uuid.NewString(),
		ttl:    ttl,
	}
}

// Acquire attempts to take the lock once.
func (l *DistributedLock) Acquire(ctx context.Context) (bool, error) {
	ok, err := l.client.SetNX(ctx, l.key, l.token, l.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("acquire lock %s: %w", l.key, err)
	}

	l.acquired = ok
	return ok, nil
}

// AcquireWithRetry polls for the lock until it is taken, the context ends or
// maxRetries attempts were made.
func (l *DistributedLock) AcquireWithRetry(ctx context.Context, maxRetries int, retryDelay time.Duration) error {
	for i := 0; i < maxRetries; i++ {
		acquired, err := l.Acquire(ctx)
		if err != nil {
			return err
		}
		if acquired {
			return nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(retryDelay):
		}
	}

	return fmt.Errorf("%s after %d attempts: %w", l.key, maxRetries, domainErrors.ErrLockAcquisitionFailed)
}

// Extend pushes the lock expiry out by ttl, if the lock is still ours.
func (l *DistributedLock) Extend(ctx context.Context, ttl time.Duration) error {
	if !l.acquired {
		return domainErrors.ErrLockNotHeld
	}

	n, err := extendLockScript.Run(ctx, l.client, []string{l.key}, l.token, ttl.Milliseconds()).Int64()
	if err != nil {
		return fmt.Errorf("extend lock %s: %w", l.key, err)
	}
	if n == 0 {
		return fmt.Errorf("extend lock %s: %w", l.key, domainErrors.ErrLockNotHeld)
	}
	return nil
}

// Release drops the lock if it is still ours. Releasing an expired lock
// reports ErrLockNotHeld.
func (l *DistributedLock) Release(ctx context.Context) error {
	if !l.acquired {
		return nil
	}
	l.acquired = false

	n, err := releaseLockScript.Run(ctx, l.client, []string{l.key}, l.token).Int64()
	if err != nil {
		return fmt.Errorf("release lock %s: %w", l.key, err)
	}
	if n == 0 {
		return fmt.Errorf("release lock %s: %w", l.key, domainErrors.ErrLockNotHeld)
	}
	return nil
}

func (l *DistributedLock) IsAcquired() bool {
	return l.acquired
}
