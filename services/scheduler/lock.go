package scheduler

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Locker is the non-blocking, fleet-wide mutual-exclusion token used by the
// singleton scheduler and the outbox per-recipient delivery lock. Acquire
// never waits: ok=false means somebody else holds the key and the caller
// should skip its work. The returned release is idempotent and safe to defer
// unconditionally.
type Locker interface {
	Acquire(ctx context.Context, key string) (release func(), ok bool, err error)
}

// RedisLocker implements Locker with SET NX + TTL and a compare-and-delete
// release, so a crashed holder's token expires on its own and a slow holder
// never deletes a successor's token.
type RedisLocker struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewRedisLocker(rdb *redis.Client, ttl time.Duration) *RedisLocker {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &RedisLocker{rdb: rdb, ttl: ttl}
}

var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

func (l *RedisLocker) Acquire(ctx context.Context, key string) (func(), bool, error) {
	token, err := randomToken()
	if err != nil {
		return noopRelease, false, err
	}

	ok, err := l.rdb.SetNX(ctx, key, token, l.ttl).Result()
	if err != nil {
		return noopRelease, false, err
	}
	if !ok {
		return noopRelease, false, nil
	}

	var once sync.Once
	release := func() {
		once.Do(func() {
			// Release must succeed even when the acquiring context is
			// already cancelled.
			rctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := releaseScript.Run(rctx, l.rdb, []string{key}, token).Err(); err != nil && err != redis.Nil {
				zap.L().Warn("failed to release lock", zap.String("key", key), zap.Error(err))
			}
		})
	}
	return release, true, nil
}

func noopRelease() {}

func randomToken() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
