package seats

import (
	"context"
	"fmt"
	"sync"
	"time"

	"showtix/internal/shared/apperr"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Locker is a mutual-exclusion primitive with a bounded lease and bounded
// acquisition wait. Acquire fails with a lock-timeout conflict instead of
// queuing indefinitely.
type Locker interface {
	Acquire(ctx context.Context, key string) (Lock, error)
}

// Lock is a held lease. Release is safe to call after the lease has
// expired; a lock taken over by another holder is left untouched.
type Lock interface {
	Release(ctx context.Context) error
}

// LockConfig bounds acquisition and holding
type LockConfig struct {
	WaitTime      time.Duration
	LeaseTime     time.Duration
	RetryInterval time.Duration
}

// Lua script releasing the lock only when the caller still owns it
const luaCompareAndDelete = `
if redis.call("GET", KEYS[1]) == ARGV[1] then
    return redis.call("DEL", KEYS[1])
end
return 0
`

// RedisLocker implements Locker on SET NX with a per-holder token and a
// compare-and-delete release.
type RedisLocker struct {
	client     *redis.Client
	config     LockConfig
	releaseSHA string
}

func NewRedisLocker(client *redis.Client, config LockConfig) *RedisLocker {
	return &RedisLocker{client: client, config: config}
}

// PreloadScripts loads the release script into Redis for better performance
func (l *RedisLocker) PreloadScripts(ctx context.Context) error {
	sha, err := l.client.ScriptLoad(ctx, luaCompareAndDelete).Result()
	if err != nil {
		return fmt.Errorf("failed to load lock release script: %w", err)
	}
	l.releaseSHA = sha
	return nil
}

func (l *RedisLocker) Acquire(ctx context.Context, key string) (Lock, error) {
	token := uuid.NewString()
	deadline := time.Now().Add(l.config.WaitTime)

	for {
		ok, err := l.client.SetNX(ctx, key, token, l.config.LeaseTime).Result()
		if err != nil {
			return nil, apperr.Fatal("lock acquisition failed", err)
		}
		if ok {
			return &redisLock{locker: l, key: key, token: token}, nil
		}

		if time.Now().After(deadline) {
			return nil, apperr.New(apperr.KindConflict, apperr.CodeLockTimeout,
				fmt.Sprintf("could not acquire lock %s within %s", key, l.config.WaitTime))
		}

		select {
		case <-ctx.Done():
			return nil, apperr.Timeout("lock acquisition cancelled", ctx.Err())
		case <-time.After(l.config.RetryInterval):
		}
	}
}

type redisLock struct {
	locker *RedisLocker
	key    string
	token  string
}

func (rl *redisLock) Release(ctx context.Context) error {
	var err error
	if rl.locker.releaseSHA != "" {
		err = rl.locker.client.EvalSha(ctx, rl.locker.releaseSHA, []string{rl.key}, rl.token).Err()
	}
	if rl.locker.releaseSHA == "" || err != nil {
		// Script not loaded yet (or flushed): fall back to Eval
		err = rl.locker.client.Eval(ctx, luaCompareAndDelete, []string{rl.key}, rl.token).Err()
	}
	if err != nil {
		return fmt.Errorf("failed to release lock %s: %w", rl.key, err)
	}
	return nil
}

// LocalLocker is the in-process Locker for single-node deployments and
// tests. Leases expire the same way the Redis leases do.
type LocalLocker struct {
	mu     sync.Mutex
	held   map[string]localLease
	config LockConfig
}

type localLease struct {
	token     string
	expiresAt time.Time
}

func NewLocalLocker(config LockConfig) *LocalLocker {
	return &LocalLocker{
		held:   make(map[string]localLease),
		config: config,
	}
}

func (l *LocalLocker) Acquire(ctx context.Context, key string) (Lock, error) {
	token := uuid.NewString()
	deadline := time.Now().Add(l.config.WaitTime)

	for {
		if l.tryAcquire(key, token) {
			return &localLock{locker: l, key: key, token: token}, nil
		}

		if time.Now().After(deadline) {
			return nil, apperr.New(apperr.KindConflict, apperr.CodeLockTimeout,
				fmt.Sprintf("could not acquire lock %s within %s", key, l.config.WaitTime))
		}

		select {
		case <-ctx.Done():
			return nil, apperr.Timeout("lock acquisition cancelled", ctx.Err())
		case <-time.After(l.config.RetryInterval):
		}
	}
}

func (l *LocalLocker) tryAcquire(key, token string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now()
	if lease, ok := l.held[key]; ok && lease.expiresAt.After(now) {
		return false
	}
	l.held[key] = localLease{token: token, expiresAt: now.Add(l.config.LeaseTime)}
	return true
}

type localLock struct {
	locker *LocalLocker
	key    string
	token  string
}

func (ll *localLock) Release(ctx context.Context) error {
	ll.locker.mu.Lock()
	defer ll.locker.mu.Unlock()

	if lease, ok := ll.locker.held[ll.key]; ok && lease.token == ll.token {
		delete(ll.locker.held, ll.key)
	}
	return nil
}
