package usecase

import (
	"context"
	"time"

	"github.com/fairyhunter13/ai-mock-interview/internal/domain"
)

// Pinger is anything that can report liveness of a backing service.
type Pinger interface {
	Ping(ctx context.Context) error
}

// PingFunc adapts a function to Pinger.
type PingFunc func(ctx context.Context) error

func (f PingFunc) Ping(ctx context.Context) error { return f(ctx) }

// ReadinessCheck represents a single readiness probe result used by handlers.
type ReadinessCheck struct {
	Name    string `json:"name"`
	OK      bool   `json:"ok"`
	Details string `json:"details,omitempty"`
}

// HealthService probes the process dependencies in a fixed order.
type HealthService struct {
	Names   []string
	Checks  map[string]Pinger
	Timeout time.Duration
}

// NewHealthService registers probes in the given order; nil probes report "not configured".
func NewHealthService(timeout time.Duration) *HealthService {
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	return &HealthService{Checks: map[string]Pinger{}, Timeout: timeout}
}

// Register adds or replaces a named probe.
func (h *HealthService) Register(name string, p Pinger) *HealthService {
	if _, exists := h.Checks[name]; !exists {
		h.Names = append(h.Names, name)
	}
	h.Checks[name] = p
	return h
}

// Readiness runs every probe with its own timeout.
func (h *HealthService) Readiness(ctx domain.Context) []ReadinessCheck {
	out := make([]ReadinessCheck, 0, len(h.Names))
	for _, name := range h.Names {
		p := h.Checks[name]
		if p == nil {
			out = append(out, ReadinessCheck{Name: name, OK: false, Details: "not configured"})
			continue
		}
		cctx, cancel := context.WithTimeout(ctx, h.Timeout)
		err := p.Ping(cctx)
		cancel()
		if err != nil {
			out = append(out, ReadinessCheck{Name: name, OK: false, Details: err.Error()})
			continue
		}
		out = append(out, ReadinessCheck{Name: name, OK: true})
	}
	return out
}

// Ready reports whether every check passed.
func Ready(checks []ReadinessCheck) bool {
	for _, c := range checks {
		if !c.OK {
			return false
		}
	}
	return true
}
