package observability

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestHTTPMetricsMiddleware_UsesRoutePattern(t *testing.T) {
	r := chi.NewRouter()
	r.Use(HTTPMetricsMiddleware)
	r.Get("/v1/practice/{id}", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusNoContent) })

	before := testutil.ToFloat64(HTTPRequestsTotal.WithLabelValues("/v1/practice/{id}", http.MethodGet, "204"))
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/practice/abc", nil))

	assert.Equal(t, http.StatusNoContent, rec.Code)
	after := testutil.ToFloat64(HTTPRequestsTotal.WithLabelValues("/v1/practice/{id}", http.MethodGet, "204"))
	assert.Equal(t, before+1, after)
}

func TestDomainMetricHelpers(t *testing.T) {
	before := testutil.ToFloat64(LLMFallbacksTotal.WithLabelValues("evaluate_answer", "parse_failed"))
	RecordFallback("evaluate_answer", "parse_failed")
	assert.Equal(t, before+1, testutil.ToFloat64(LLMFallbacksTotal.WithLabelValues("evaluate_answer", "parse_failed")))

	tb := testutil.ToFloat64(LifecycleTransitionsTotal.WithLabelValues("booking", "scheduled", "confirmed"))
	RecordTransition("booking", "scheduled", "confirmed")
	assert.Equal(t, tb+1, testutil.ToFloat64(LifecycleTransitionsTotal.WithLabelValues("booking", "scheduled", "confirmed")))

	cb := testutil.ToFloat64(BookingConflictsTotal)
	RecordBookingConflict()
	assert.Equal(t, cb+1, testutil.ToFloat64(BookingConflictsTotal))

	ObserveLLMCall("mock", "generate_questions", "ok", 20*time.Millisecond)
	RecordNotification("interview_confirmed", "published")
	ObserveAnswerScore(7)
	ObserveAnswerScore(42) // ignored
	ObserveSessionAverage(6.5)
}
