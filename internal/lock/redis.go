package lock

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

// releaseScript deletes the key only if it still carries our token.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
  return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisLocker is a Locker shared across processes. Each lock is a key set
// with NX and a TTL so a crashed holder cannot wedge a user forever.
type RedisLocker struct {
	client *redis.Client
	ttl    time.Duration
	retry  time.Duration
	prefix string
}

// RedisOption customizes a RedisLocker.
type RedisOption func(*RedisLocker)

// WithRetryInterval sets how often a waiting caller retries SETNX.
func WithRetryInterval(d time.Duration) RedisOption {
	return func(l *RedisLocker) {
		if d > 0 {
			l.retry = d
		}
	}
}

// WithPrefix namespaces lock keys.
func WithPrefix(p string) RedisOption {
	return func(l *RedisLocker) { l.prefix = p }
}

// NewRedisLocker returns a RedisLocker on client. Locks expire after ttl
// (3m when ttl <= 0) unless released first. Keys default to the
// "inventorybot:lock:" prefix.
func NewRedisLocker(client *redis.Client, ttl time.Duration, opts ...RedisOption) *RedisLocker {
	if ttl <= 0 {
		ttl = 3 * time.Minute
	}
	l := &RedisLocker{
		client: client,
		ttl:    ttl,
		retry:  50 * time.Millisecond,
		prefix: "inventorybot:lock:",
	}
	for _, o := range opts {
		o(l)
	}
	return l
}

// Lock polls SET NX every retry interval until it owns key or ctx ends. The
// unlock func deletes the key only while it still holds this caller's token,
// so a lock that expired and was taken over is left alone.
func (l *RedisLocker) Lock(ctx context.Context, key string) (func(), error) {
	k := l.prefix + key
	token := uuid.NewString()

	t := time.NewTicker(l.retry)
	defer t.Stop()
	for {
		ok, err := l.client.SetNX(ctx, k, token, l.ttl).Result()
		if err != nil {
			if ctx.Err() != nil {
				return nil, errors.Join(ErrNotAcquired, ctx.Err())
			}
			return nil, fmt.Errorf("lock %s: %w", key, err)
		}
		if ok {
			break
		}
		select {
		case <-ctx.Done():
			return nil, errors.Join(ErrNotAcquired, ctx.Err())
		case <-t.C:
		}
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			// Release even if the caller's context is already done.
			rctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			if err := releaseScript.Run(rctx, l.client, []string{k}, token).Err(); err != nil {
				log.Warn().Err(err).Str("key", k).Msg("lock release failed")
			}
		})
	}, nil
}
