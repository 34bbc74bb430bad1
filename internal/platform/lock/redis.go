package lock

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Compare-and-delete so a holder whose lease expired cannot release a lock
// that has since been taken by someone else.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisLocker is a lease-based lock shared by every instance that talks to
// the same Redis. The lease bounds how long a crashed holder can block a key.
type RedisLocker struct {
	client    redis.Cmdable
	prefix    string
	ttl       time.Duration
	retryWait time.Duration
}

type RedisOption func(*RedisLocker)

// WithPrefix namespaces lock keys.
func WithPrefix(p string) RedisOption { return func(l *RedisLocker) { l.prefix = p } }

// WithRetryWait sets the poll interval while a key is held elsewhere.
func WithRetryWait(d time.Duration) RedisOption { return func(l *RedisLocker) { l.retryWait = d } }

func NewRedisLocker(client redis.Cmdable, ttl time.Duration, opts ...RedisOption) *RedisLocker {
	if client == nil {
		panic("lock: redis client required")
	}
	if ttl <= 0 {
		ttl = 5 * time.Second
	}
	l := &RedisLocker{
		client:    client,
		prefix:    "booking:lock:",
		ttl:       ttl,
		retryWait: 5 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

func (l *RedisLocker) Lock(ctx context.Context, key string) (Unlock, error) {
	redisKey := l.prefix + key
	token := uuid.NewString()

	for {
		ok, err := l.client.SetNX(ctx, redisKey, token, l.ttl).Result()
		if err != nil {
			return nil, fmt.Errorf("lock %s: %w", key, err)
		}
		if ok {
			break
		}
		timer := time.NewTimer(l.retryWait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}
	}

	return func() error {
		// Release even if the caller's context was cancelled meanwhile.
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		n, err := releaseScript.Run(ctx, l.client, []string{redisKey}, token).Int()
		if err != nil {
			return fmt.Errorf("unlock %s: %w", key, err)
		}
		if n == 0 {
			return ErrNotHeld
		}
		return nil
	}, nil
}
