package lock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sethvargo/go-retry"
)

const defaultLockTTL = 30 * time.Second

// ErrNotAcquired is returned by AcquireWait when the lock stayed busy.
var ErrNotAcquired = errors.New("lock not acquired")

// Lock guards a section that at most one replica may run at a time.
type Lock interface {
	Acquire(ctx context.Context) (bool, error)
	Release(ctx context.Context) error
}

// Store is the Redis surface a RedisLock needs.
type Store interface {
	SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error)
	CompareAndDelete(ctx context.Context, key, value string) (bool, error)
}

// RedisLock holds key with a random owner token. The TTL bounds how long a
// crashed holder can block others.
type RedisLock struct {
	store Store
	key   string
	ttl   time.Duration
	token string
}

func NewRedisLock(store Store, key string, ttl time.Duration) (*RedisLock, error) {
	switch {
	case store == nil:
		return nil, errors.New("lock store is required")
	case key == "":
		return nil, errors.New("lock key is required")
	}
	if ttl <= 0 {
		ttl = defaultLockTTL
	}
	return &RedisLock{store: store, key: key, ttl: ttl}, nil
}

func (l *RedisLock) Key() string { return l.key }

func (l *RedisLock) Acquire(ctx context.Context) (bool, error) {
	token := uuid.NewString()
	won, err := l.store.SetNX(ctx, l.key, token, l.ttl)
	if err != nil {
		return false, fmt.Errorf("acquire %s: %w", l.key, err)
	}
	if won {
		l.token = token
	}
	return won, nil
}

// AcquireWait retries Acquire every interval, at most attempts more times.
// A store error ends the wait at once.
func (l *RedisLock) AcquireWait(ctx context.Context, interval time.Duration, attempts uint64) error {
	if interval <= 0 {
		interval = 100 * time.Millisecond
	}
	b := retry.WithMaxRetries(attempts, retry.NewConstant(interval))
	return retry.Do(ctx, b, func(ctx context.Context) error {
		won, err := l.Acquire(ctx)
		switch {
		case err != nil:
			return err
		case !won:
			return retry.RetryableError(ErrNotAcquired)
		}
		return nil
	})
}

// Release deletes the key if this lock still owns it. Releasing a lock that
// expired and was taken by someone else is a no-op.
func (l *RedisLock) Release(ctx context.Context) error {
	if l.token == "" {
		return nil
	}
	token := l.token
	l.token = ""
	if _, err := l.store.CompareAndDelete(ctx, l.key, token); err != nil {
		return fmt.Errorf("release %s: %w", l.key, err)
	}
	return nil
}
