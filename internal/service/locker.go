package service

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Marga-Ghale/hdss-admin-backend/internal/db"
)

// Locker hands out short-lived exclusive locks. Lock reports false when the
// key is already held; the returned func releases the lock.
type Locker interface {
	Lock(ctx context.Context, key string, ttl time.Duration) (func(), bool, error)
}

// ============================================
// Redis Locker
// ============================================

type redisLocker struct {
	redis *db.RedisDB
}

// NewRedisLocker shares locks across every API instance using the same Redis.
func NewRedisLocker(redis *db.RedisDB) Locker {
	return &redisLocker{redis: redis}
}

func (l *redisLocker) Lock(ctx context.Context, key string, ttl time.Duration) (func(), bool, error) {
	token := uuid.NewString()
	ok, err := l.redis.AcquireLock(ctx, key, token, ttl)
	if err != nil || !ok {
		return func() {}, false, err
	}

	release := func() {
		releaseCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = l.redis.ReleaseLock(releaseCtx, key, token)
	}
	return release, true, nil
}

// ============================================
// Local Locker
// ============================================

type localLocker struct {
	mu   sync.Mutex
	held map[string]time.Time
}

// NewLocalLocker guards keys within this process only.
func NewLocalLocker() Locker {
	return &localLocker{held: make(map[string]time.Time)}
}

func (l *localLocker) Lock(_ context.Context, key string, ttl time.Duration) (func(), bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now()
	if expires, ok := l.held[key]; ok && now.Before(expires) {
		return func() {}, false, nil
	}
	expires := now.Add(ttl)
	l.held[key] = expires

	release := func() {
		l.mu.Lock()
		defer l.mu.Unlock()
		if l.held[key].Equal(expires) {
			delete(l.held, key)
		}
	}
	return release, true, nil
}
