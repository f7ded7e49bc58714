package redpanda

import (
	"log/slog"
	"math"
	"sync"
	"time"
)

// AdaptivePoller paces the fetch loop. PollFetches already blocks while the
// topic is idle, so a healthy poller never sleeps; after fetch errors the
// delay grows geometrically up to maxInterval.
type AdaptivePoller struct {
	mu                 sync.Mutex
	baseInterval       time.Duration
	maxInterval        time.Duration
	backoffFactor      float64
	unhealthyAfter     int
	consecutiveFailure int
	delivered          int
	failed             int
	lastFailure        time.Time
}

// PollerStats is a point-in-time view of an AdaptivePoller.
type PollerStats struct {
	Delivered          int
	Failed             int
	ConsecutiveFailure int
	Healthy            bool
	LastFailure        time.Time
}

func NewAdaptivePoller(baseInterval time.Duration) *AdaptivePoller {
	if baseInterval <= 0 {
		baseInterval = 500 * time.Millisecond
	}
	return &AdaptivePoller{
		baseInterval:   baseInterval,
		maxInterval:    10 * time.Second,
		backoffFactor:  1.5,
		unhealthyAfter: 10,
	}
}

// NextInterval returns how long the loop should wait before the next poll.
func (ap *AdaptivePoller) NextInterval() time.Duration {
	ap.mu.Lock()
	defer ap.mu.Unlock()

	if ap.consecutiveFailure == 0 {
		return 0
	}
	if ap.consecutiveFailure >= ap.unhealthyAfter {
		return ap.maxInterval
	}
	interval := float64(ap.baseInterval) * math.Pow(ap.backoffFactor, float64(ap.consecutiveFailure-1))
	if interval > float64(ap.maxInterval) {
		interval = float64(ap.maxInterval)
	}
	return time.Duration(interval)
}

// RecordSuccess counts n handled records and clears the failure streak.
func (ap *AdaptivePoller) RecordSuccess(n int) {
	ap.mu.Lock()
	defer ap.mu.Unlock()
	if ap.consecutiveFailure >= ap.unhealthyAfter {
		slog.Info("notification consumer recovered", slog.Int("after_failures", ap.consecutiveFailure))
	}
	ap.delivered += n
	ap.consecutiveFailure = 0
}

// RecordFailure extends the failure streak.
func (ap *AdaptivePoller) RecordFailure() {
	ap.mu.Lock()
	defer ap.mu.Unlock()
	ap.failed++
	ap.consecutiveFailure++
	ap.lastFailure = time.Now()
	if ap.consecutiveFailure == ap.unhealthyAfter {
		slog.Warn("notification consumer backing off at max interval",
			slog.Int("consecutive_failures", ap.consecutiveFailure),
			slog.Duration("interval", ap.maxInterval))
	}
}

func (ap *AdaptivePoller) IsHealthy() bool {
	ap.mu.Lock()
	defer ap.mu.Unlock()
	return ap.consecutiveFailure < ap.unhealthyAfter
}

func (ap *AdaptivePoller) Stats() PollerStats {
	ap.mu.Lock()
	defer ap.mu.Unlock()
	return PollerStats{
		Delivered:          ap.delivered,
		Failed:             ap.failed,
		ConsecutiveFailure: ap.consecutiveFailure,
		Healthy:            ap.consecutiveFailure < ap.unhealthyAfter,
		LastFailure:        ap.lastFailure,
	}
}
