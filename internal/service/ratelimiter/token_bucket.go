// Package ratelimiter implements a Redis-backed token bucket shared by every
// process that talks to the model backend.
package ratelimiter

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// BucketConfig describes one bucket. A zero Capacity disables limiting.
type BucketConfig struct {
	Capacity   int64
	RefillRate float64 // tokens per second
}

// PerMinute returns a bucket that admits perMinute calls per minute with a burst of the same size.
func PerMinute(perMinute int) BucketConfig {
	if perMinute <= 0 {
		return BucketConfig{}
	}
	return BucketConfig{Capacity: int64(perMinute), RefillRate: float64(perMinute) / 60.0}
}

// TokenBucket evaluates buckets atomically with a Lua script. It fails open:
// when Redis is unreachable the call is allowed and the error returned for logging.
type TokenBucket struct {
	rdb     redis.Scripter
	script  *redis.Script
	mu      sync.RWMutex
	buckets map[string]BucketConfig
	now     func() time.Time
}

func NewTokenBucket(rdb redis.Scripter, buckets map[string]BucketConfig) *TokenBucket {
	if buckets == nil {
		buckets = map[string]BucketConfig{}
	}
	return &TokenBucket{rdb: rdb, script: redis.NewScript(tokenBucketLua), buckets: buckets, now: time.Now}
}

// KEYS[1] bucket; ARGV capacity, refill/s, now (s), cost, ttl (ms).
// Returns {allowed, remaining tokens (floored), retry after (ms, ceiled)}.
const tokenBucketLua = `
local capacity = tonumber(ARGV[1])
local rate = tonumber(ARGV[2])
local now = tonumber(ARGV[3])
local cost = tonumber(ARGV[4])

local state = redis.call("HMGET", KEYS[1], "tokens", "ts")
local tokens = tonumber(state[1]) or capacity
local ts = tonumber(state[2]) or now

local elapsed = math.max(0, now - ts)
tokens = math.min(capacity, tokens + elapsed * rate)

local allowed = 0
local wait = 0
if tokens >= cost then
  tokens = tokens - cost
  allowed = 1
elseif rate > 0 then
  wait = math.ceil((cost - tokens) / rate * 1000)
end

redis.call("HSET", KEYS[1], "tokens", tokens, "ts", now)
redis.call("PEXPIRE", KEYS[1], ARGV[5])
return {allowed, math.floor(tokens), wait}
`

// Set installs or replaces the bucket for key.
func (l *TokenBucket) Set(key string, cfg BucketConfig) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.buckets[key] = cfg
}

func (l *TokenBucket) bucket(key string) (BucketConfig, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	cfg, ok := l.buckets[key]
	return cfg, ok && cfg.Capacity > 0 && cfg.RefillRate > 0
}

// Allow takes cost tokens from the bucket named key. Unknown keys are unlimited.
func (l *TokenBucket) Allow(ctx context.Context, key string, cost int) (bool, time.Duration, error) {
	if l == nil || l.rdb == nil {
		return true, 0, nil
	}
	cfg, ok := l.bucket(key)
	if !ok {
		return true, 0, nil
	}
	if cost <= 0 {
		cost = 1
	}
	now := float64(l.now().UnixNano()) / 1e9
	// a full bucket is indistinguishable from a missing one, so the key can expire then
	ttl := int64(float64(cfg.Capacity)/cfg.RefillRate*1000) + 1000

	vals, err := l.script.Run(ctx, l.rdb, []string{"rate:" + key}, cfg.Capacity, cfg.RefillRate, now, cost, ttl).Int64Slice()
	if err != nil {
		slog.Warn("rate limiter script failed", slog.String("key", key), slog.Any("error", err))
		return true, 0, err
	}
	if len(vals) < 3 {
		return true, 0, nil
	}
	return vals[0] == 1, time.Duration(vals[2]) * time.Millisecond, nil
}
