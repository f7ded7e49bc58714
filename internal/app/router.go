package app

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/fairyhunter13/ai-mock-interview/internal/adapter/httpserver"
	"github.com/fairyhunter13/ai-mock-interview/internal/adapter/observability"
	"github.com/fairyhunter13/ai-mock-interview/internal/config"
)

// ParseOrigins splits a comma-separated origin list. Empty means ["*"].
func ParseOrigins(s string) []string {
	s = strings.TrimSpace(s)
	if s == "" || s == "*" {
		return []string{"*"}
	}
	out := make([]string, 0, 4)
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return []string{"*"}
	}
	return out
}

// BuildRouter wires middleware and routes. Everything under /v1 requires an identity.
func BuildRouter(cfg config.Config, srv *httpserver.Server, id *httpserver.Identity) http.Handler {
	r := chi.NewRouter()
	r.Use(httpserver.Recoverer())
	r.Use(httpserver.TraceMiddleware)
	r.Use(httpserver.RequestID())
	r.Use(httpserver.AccessLog())
	r.Use(observability.HTTPMetricsMiddleware)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   ParseOrigins(cfg.CORSAllowOrigins),
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Authorization", "Content-Type", "X-Request-Id", "X-API-Key", "X-User-Id", "X-User-Role", "X-User-Email"},
		ExposedHeaders:   []string{"X-Request-Id"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	r.Get("/healthz", srv.Healthz())
	r.Get("/readyz", srv.Readyz())
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/v1", func(v chi.Router) {
		v.Use(httpserver.TimeoutMiddleware(cfg.HTTPHandlerTimeout))
		v.Use(id.Middleware)
		if cfg.RateLimitPerMin > 0 {
			v.Use(httprate.Limit(cfg.RateLimitPerMin, time.Minute,
				httprate.WithKeyFuncs(subjectOrIP),
				httprate.WithLimitHandler(rateLimited)))
		}

		v.Route("/practice", func(p chi.Router) {
			p.Post("/", srv.CreatePractice())
			p.Get("/", srv.ListPractice())
			p.Get("/{id}", srv.GetPractice())
			p.Delete("/{id}", srv.DeletePractice())
			p.Post("/{id}/start", srv.StartPractice())
			p.Post("/{id}/answers", srv.SubmitAnswer())
			p.Post("/{id}/complete", srv.CompletePractice())
			p.Post("/{id}/cancel", srv.CancelPractice())
		})

		v.Route("/bookings", func(b chi.Router) {
			b.Post("/", srv.Book())
			b.Get("/", srv.ListBookings())
			b.Get("/{id}", srv.GetBooking())
			b.Post("/{id}/assign", srv.AssignBooking())
			b.Post("/{id}/confirm", srv.ConfirmBooking())
			b.Post("/{id}/cancel", srv.CancelBooking())
			b.Post("/{id}/complete", srv.CompleteBooking())
		})

		v.Get("/interviewers/{id}/availability", srv.InterviewerAvailability())
	})

	return httpserver.SecurityHeaders(r)
}

// subjectOrIP keys authenticated callers by subject and the rest by IP.
func subjectOrIP(r *http.Request) (string, error) {
	if a := httpserver.ActorFrom(r.Context()); a.SubjectID != "" {
		return "sub:" + a.SubjectID, nil
	}
	return httprate.KeyByIP(r)
}

func rateLimited(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(http.StatusTooManyRequests)
	_, _ = w.Write([]byte(`{"error":{"code":"RATE_LIMITED","message":"too many requests"}}`))
}
