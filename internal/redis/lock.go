package redisclient

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

var (
	ErrLockNotAcquired = errors.New("slot lock not acquired")
)

// Locker guards the check-and-insert critical section for one slot.
type Locker interface {
	WithSlotLock(ctx context.Context, slot string, fn func(ctx context.Context) error) error
}

// Leaser grants an exclusive, expiring claim on a named job. The bool result
// is false when another holder owns the lease and fn was not run.
type Leaser interface {
	WithLease(ctx context.Context, name string, fn func(ctx context.Context) error) (bool, error)
}

type RedisLocker struct {
	client   *redis.Client
	ttl      time.Duration
	leaseTTL time.Duration
}

// NewRedisLocker creates a locker that uses per slot and per job Redis keys.
func NewRedisLocker(client *redis.Client, ttl, leaseTTL time.Duration) *RedisLocker {
	return &RedisLocker{
		client:   client,
		ttl:      ttl,
		leaseTTL: leaseTTL,
	}
}

func (l *RedisLocker) WithSlotLock(ctx context.Context, slot string, fn func(ctx context.Context) error) error {
	key := fmt.Sprintf("lock:slot:%s", slot)
	token := uuid.NewString()

	ok, err := l.client.SetNX(ctx, key, token, l.ttl).Result()
	if err != nil {
		return fmt.Errorf("acquire slot lock: %w", err)
	}
	if !ok {
		return ErrLockNotAcquired
	}

	defer func() {
		_ = l.release(context.WithoutCancel(ctx), key, token)
	}()

	ctxWithTimeout, cancel := context.WithTimeout(ctx, l.ttl)
	defer cancel()

	return fn(ctxWithTimeout)
}

func (l *RedisLocker) WithLease(ctx context.Context, name string, fn func(ctx context.Context) error) (bool, error) {
	key := fmt.Sprintf("lease:scheduler:%s", name)
	token := uuid.NewString()

	ok, err := l.client.SetNX(ctx, key, token, l.leaseTTL).Result()
	if err != nil {
		return false, fmt.Errorf("acquire lease %s: %w", name, err)
	}
	if !ok {
		return false, nil
	}

	defer func() {
		_ = l.release(context.WithoutCancel(ctx), key, token)
	}()

	ctxWithTimeout, cancel := context.WithTimeout(ctx, l.leaseTTL)
	defer cancel()

	return true, fn(ctxWithTimeout)
}

var unlockScript = redis.NewScript(`
local val = redis.call("GET", KEYS[1])
if val == ARGV[1] then
  return redis.call("DEL", KEYS[1])
else
  return 0
end
`)

func (l *RedisLocker) release(ctx context.Context, key, token string) error {
	_, err := unlockScript.Run(ctx, l.client, []string{key}, token).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("release lock %s: %w", key, err)
	}
	return nil
}

// LocalLocker is a single-process Locker and Leaser for the in-memory store
// driver and tests.
type LocalLocker struct {
	mu   sync.Mutex
	held map[string]bool
}

func NewLocalLocker() *LocalLocker {
	return &LocalLocker{held: make(map[string]bool)}
}

func (l *LocalLocker) acquire(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.held[key] {
		return false
	}
	l.held[key] = true
	return true
}

func (l *LocalLocker) release(key string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.held, key)
}

func (l *LocalLocker) WithSlotLock(ctx context.Context, slot string, fn func(ctx context.Context) error) error {
	key := "lock:slot:" + slot
	if !l.acquire(key) {
		return ErrLockNotAcquired
	}
	defer l.release(key)
	return fn(ctx)
}

func (l *LocalLocker) WithLease(ctx context.Context, name string, fn func(ctx context.Context) error) (bool, error) {
	key := "lease:scheduler:" + name
	if !l.acquire(key) {
		return false, nil
	}
	defer l.release(key)
	return true, fn(ctx)
}
