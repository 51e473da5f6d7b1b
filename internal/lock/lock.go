// Package lock serializes imports per scope. Concurrent imports against the
// same scope would interleave the delete-then-insert replacement and leave a
// mixed snapshot; a second import must be rejected as retryable instead.
package lock

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/bsm/redislock"
	"github.com/redis/go-redis/v9"
)

// ErrScopeLocked is returned when another import holds the scope.
var ErrScopeLocked = errors.New("scope is locked by another import")

type Release func()

// Locker guards one import scope at a time.
type Locker interface {
	Acquire(ctx context.Context, scope string, ttl time.Duration) (Release, error)
}

// RedisLocker coordinates across instances via redislock.
type RedisLocker struct {
	client *redislock.Client
}

func NewRedisLocker(rdb *redis.Client) *RedisLocker {
	return &RedisLocker{client: redislock.New(rdb)}
}

func (l *RedisLocker) Acquire(ctx context.Context, scope string, ttl time.Duration) (Release, error) {
	lock, err := l.client.Obtain(ctx, "wip:import:"+scope, ttl, nil)
	if err == redislock.ErrNotObtained {
		return nil, ErrScopeLocked
	}
	if err != nil {
		return nil, err
	}
	return func() {
		_ = lock.Release(context.Background())
	}, nil
}

// LocalLocker serializes within a single process. Used when no REDIS_URL is
// configured (single-instance deployments) and in tests.
type LocalLocker struct {
	mu     sync.Mutex
	scopes map[string]struct{}
}

func NewLocalLocker() *LocalLocker {
	return &LocalLocker{scopes: map[string]struct{}{}}
}

func (l *LocalLocker) Acquire(_ context.Context, scope string, _ time.Duration) (Release, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, held := l.scopes[scope]; held {
		return nil, ErrScopeLocked
	}
	l.scopes[scope] = struct{}{}
	return func() {
		l.mu.Lock()
		defer l.mu.Unlock()
		delete(l.scopes, scope)
	}, nil
}
