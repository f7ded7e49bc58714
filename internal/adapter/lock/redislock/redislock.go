// Package redislock provides a best-effort per-key mutex on Redis.
package redislock

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/fairyhunter13/ai-mock-interview/internal/domain"
)

// ErrNotAcquired is returned when the key stays held for the whole wait.
var ErrNotAcquired = errors.New("lock not acquired")

// releaseScript deletes the key only if it still holds our token.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// Client is the subset of go-redis used by Lock.
type Client interface {
	redis.Scripter
	SetNX(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.BoolCmd
}

// Lock implements domain.BookingLock with SET NX PX and a token-checked release.
type Lock struct {
	rdb    Client
	prefix string
	// Wait bounds how long Acquire polls a held key.
	Wait time.Duration
	Poll time.Duration
}

var _ domain.BookingLock = (*Lock)(nil)

// New returns a Lock storing keys under "lock:".
func New(rdb Client) *Lock {
	return &Lock{rdb: rdb, prefix: "lock:", Wait: 2 * time.Second, Poll: 50 * time.Millisecond}
}

// Acquire takes key for ttl. The returned release is safe to call once the ttl has passed.
func (l *Lock) Acquire(ctx context.Context, key string, ttl time.Duration) (func(), error) {
	if l == nil || l.rdb == nil {
		return func() {}, nil
	}
	full := l.prefix + key
	token := uuid.NewString()
	deadline := time.Now().Add(l.Wait)
	for {
		ok, err := l.rdb.SetNX(ctx, full, token, ttl).Result()
		if err != nil {
			return nil, fmt.Errorf("op=redislock.acquire: %w", err)
		}
		if ok {
			return func() { l.release(full, token) }, nil
		}
		if !time.Now().Before(deadline) {
			return nil, fmt.Errorf("op=redislock.acquire: %w: %s", ErrNotAcquired, key)
		}
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("op=redislock.acquire: %w", ctx.Err())
		case <-time.After(l.Poll):
		}
	}
}

func (l *Lock) release(key, token string) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := releaseScript.Run(ctx, l.rdb, []string{key}, token).Err(); err != nil {
		slog.Warn("lock release failed", slog.String("key", key), slog.Any("error", err))
	}
}
