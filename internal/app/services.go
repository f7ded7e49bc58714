package app

import (
	"context"

	"github.com/redis/go-redis/v9"

	"github.com/fairyhunter13/ai-mock-interview/internal/adapter/ai"
	"github.com/fairyhunter13/ai-mock-interview/internal/adapter/ai/tokencount"
	"github.com/fairyhunter13/ai-mock-interview/internal/adapter/lock/redislock"
	"github.com/fairyhunter13/ai-mock-interview/internal/adapter/repo/postgres"
	"github.com/fairyhunter13/ai-mock-interview/internal/config"
	"github.com/fairyhunter13/ai-mock-interview/internal/domain"
	"github.com/fairyhunter13/ai-mock-interview/internal/service/ratelimiter"
	"github.com/fairyhunter13/ai-mock-interview/internal/usecase"
)

// Deps are the process-level clients the services are built on.
// Redis is optional: without it the LLM limiter and booking lock are disabled.
type Deps struct {
	DB       postgres.PgxPool
	Redis    *redis.Client
	Notifier domain.Notifier
}

// Services groups the use cases served over HTTP.
type Services struct {
	Practice     usecase.PracticeService
	Bookings     usecase.BookingService
	Availability usecase.SchedulingResolver
	LLM          *ai.Gateway
}

// BuildServices wires repositories, the LLM gateway and notifications into use cases.
func BuildServices(ctx context.Context, cfg config.Config, d Deps) (Services, error) {
	var limiter ai.Limiter
	var lock domain.BookingLock
	if d.Redis != nil {
		if cfg.LLMRatePerMin > 0 {
			limiter = ratelimiter.NewTokenBucket(d.Redis, map[string]ratelimiter.BucketConfig{
				"llm:" + cfg.LLMProvider: ratelimiter.PerMinute(cfg.LLMRatePerMin),
			})
		}
		lock = redislock.New(d.Redis)
	}

	gw, err := NewLLMGateway(ctx, cfg, limiter)
	if err != nil {
		return Services{}, err
	}

	practiceRepo := postgres.NewPracticeRepo(d.DB)
	bookingRepo := postgres.NewBookingRepo(d.DB)

	resolver := usecase.NewSchedulingResolver(bookingRepo, cfg.ScheduleLocation(),
		cfg.ScheduleDayStart, cfg.ScheduleDayEnd, cfg.ScheduleSlotStep, cfg.ScheduleMaxRangeDay)

	practice := usecase.NewPracticeService(practiceRepo,
		usecase.NewQuestionGenerator(gw),
		usecase.NewAnswerEvaluator(gw, tokencount.NewCounter(cfg.LLMModel), cfg.LLMAnswerTokenBudget),
		usecase.NewScoreAggregator(gw))

	bookings := usecase.NewBookingService(bookingRepo, resolver, d.Notifier, lock, cfg.BookingLockTTL, cfg.MeetingLinkBase)

	return Services{Practice: practice, Bookings: bookings, Availability: resolver, LLM: gw}, nil
}
