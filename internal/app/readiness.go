package app

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/fairyhunter13/ai-mock-interview/internal/usecase"
)

// RedisPinger is the part of a go-redis client needed for readiness.
type RedisPinger interface {
	Ping(ctx context.Context) *redis.StatusCmd
}

// BuildHealthService registers postgres always; redis and kafka only when
// the process actually uses them.
func BuildHealthService(db usecase.Pinger, rdb RedisPinger, kafka usecase.Pinger, timeout time.Duration) *usecase.HealthService {
	h := usecase.NewHealthService(timeout)
	h.Register("postgres", db)
	if rdb != nil {
		h.Register("redis", usecase.PingFunc(func(ctx context.Context) error {
			return rdb.Ping(ctx).Err()
		}))
	}
	if kafka != nil {
		h.Register("kafka", kafka)
	}
	return h
}
