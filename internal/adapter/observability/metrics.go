package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
)

var (
	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"route", "method", "status"},
	)
	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 15, 30},
		},
		[]string{"route", "method"},
	)

	LLMRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "llm_requests_total",
			Help: "Model backend calls by provider, operation and outcome",
		},
		[]string{"provider", "operation", "outcome"},
	)
	LLMRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "llm_request_duration_seconds",
			Help:    "Model backend call duration in seconds",
			Buckets: []float64{0.25, 0.5, 1, 2, 5, 10, 20, 30, 60},
		},
		[]string{"provider", "operation"},
	)
	LLMFallbacksTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "llm_fallbacks_total",
			Help: "Orchestrator results replaced by the fixed fallback, by operation and cause",
		},
		[]string{"operation", "cause"},
	)

	LifecycleTransitionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lifecycle_transitions_total",
			Help: "Committed state transitions",
		},
		[]string{"entity", "from", "to"},
	)
	BookingConflictsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "booking_conflicts_total",
			Help: "Booking requests rejected because the interviewer was already booked",
		},
	)
	NotificationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notifications_total",
			Help: "Notification attempts by template and outcome",
		},
		[]string{"template", "outcome"},
	)

	AnswerScoreHistogram = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "answer_score",
			Help:    "Distribution of per-answer scores ([0,10])",
			Buckets: []float64{0, 1, 2, 3, 4, 5, 6, 7, 8, 9, 10},
		},
	)
	SessionAverageHistogram = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "session_average_score",
			Help:    "Distribution of completed session average scores ([0,10])",
			Buckets: []float64{0, 1, 2, 3, 4, 5, 6, 7, 8, 9, 10},
		},
	)
)

func InitMetrics() {
	prometheus.MustRegister(
		HTTPRequestsTotal,
		HTTPRequestDuration,
		LLMRequestsTotal,
		LLMRequestDuration,
		LLMFallbacksTotal,
		LifecycleTransitionsTotal,
		BookingConflictsTotal,
		NotificationsTotal,
		AnswerScoreHistogram,
		SessionAverageHistogram,
	)
}

// HTTPMetricsMiddleware records Prometheus metrics for each request.
func HTTPMetricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		var route string
		if rc := chi.RouteContext(r.Context()); rc != nil {
			route = rc.RoutePattern()
		}
		if route == "" {
			route = "unmatched"
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		HTTPRequestsTotal.WithLabelValues(route, r.Method, strconv.Itoa(status)).Inc()
		HTTPRequestDuration.WithLabelValues(route, r.Method).Observe(time.Since(start).Seconds())
	})
}

// ObserveLLMCall records one model backend call.
func ObserveLLMCall(provider, operation, outcome string, d time.Duration) {
	LLMRequestsTotal.WithLabelValues(provider, operation, outcome).Inc()
	LLMRequestDuration.WithLabelValues(provider, operation).Observe(d.Seconds())
}

// RecordFallback counts an orchestrator result replaced by its fallback.
func RecordFallback(operation, cause string) {
	LLMFallbacksTotal.WithLabelValues(operation, cause).Inc()
}

// RecordTransition counts a committed lifecycle transition.
func RecordTransition(entity, from, to string) {
	LifecycleTransitionsTotal.WithLabelValues(entity, from, to).Inc()
}

func RecordBookingConflict() { BookingConflictsTotal.Inc() }

func RecordNotification(template, outcome string) {
	NotificationsTotal.WithLabelValues(template, outcome).Inc()
}

// ObserveAnswerScore records a per-answer score in [0,10].
func ObserveAnswerScore(score int) {
	if score >= 0 && score <= 10 {
		AnswerScoreHistogram.Observe(float64(score))
	}
}

// ObserveSessionAverage records a completed session average in [0,10].
func ObserveSessionAverage(avg float64) {
	if avg >= 0 && avg <= 10 {
		SessionAverageHistogram.Observe(avg)
	}
}
