package mailer

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sort"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fairyhunter13/ai-mock-interview/internal/config"
	"github.com/fairyhunter13/ai-mock-interview/internal/domain"
	obsctx "github.com/fairyhunter13/ai-mock-interview/internal/observability"
)

func bookingVars() map[string]string {
	return map[string]string{
		"booking_id":       "b-1",
		"title":            "System design",
		"status":           "scheduled",
		"scheduled_at":     "2026-01-06T10:00:00Z",
		"duration_minutes": "60",
		"meeting_link":     "https://meet.example.com/b-1",
	}
}

func newTestClient(t *testing.T, url string, retries int) *Client {
	t.Helper()
	tpl, err := LoadTemplates()
	require.NoError(t, err)
	c, err := New(config.Config{
		AppEnv:         "test",
		MailAPIURL:     url,
		MailAPIKey:     "mail-key",
		MailFrom:       "no-reply@mock-interview.local",
		MailTimeout:    2 * time.Second,
		MailMaxRetries: retries,
	}, tpl)
	require.NoError(t, err)
	return c
}

func TestLoadTemplates_AllBookingTemplates(t *testing.T) {
	tpl, err := LoadTemplates()
	require.NoError(t, err)
	keys := tpl.Keys()
	sort.Strings(keys)
	assert.Equal(t, []string{"interview_booked", "interview_cancelled", "interview_completed", "interview_confirmed"}, keys)
}

func TestRender(t *testing.T) {
	tpl, err := LoadTemplates()
	require.NoError(t, err)

	subject, body, err := tpl.Render("interview_booked", bookingVars())
	require.NoError(t, err)
	assert.Equal(t, "Interview booked: System design", subject)
	assert.Contains(t, body, "2026-01-06T10:00:00Z (60 minutes)")
	assert.Contains(t, body, "https://meet.example.com/b-1")

	vars := bookingVars()
	vars["cancel_reason"] = "Interviewer unavailable"
	_, body, err = tpl.Render("interview_cancelled", vars)
	require.NoError(t, err)
	assert.Contains(t, body, "Reason: Interviewer unavailable")

	_, body, err = tpl.Render("interview_cancelled", bookingVars())
	require.NoError(t, err)
	assert.NotContains(t, body, "Reason:")
	assert.NotContains(t, body, "<no value>")

	_, _, err = tpl.Render("interview_rescheduled", nil)
	assert.ErrorIs(t, err, domain.ErrInvalidArgument)
}

func TestTemplates_RejectIncomplete(t *testing.T) {
	tpl := &Templates{byKey: map[string]compiled{}}
	assert.Error(t, tpl.add("x", []byte("subject: hi\n")))
	assert.Error(t, tpl.add("y", []byte("subject: [unclosed\n")))
	assert.Error(t, tpl.add("z", []byte("subject: \"{{.a\"\nbody: b\n")))
	assert.NoError(t, tpl.add("ok", []byte("subject: s\nbody: b\n")))
}

func TestSendTemplated_PostsRenderedMail(t *testing.T) {
	var got sendRequest
	var auth, rid string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth = r.Header.Get("Authorization")
		rid = r.Header.Get("X-Request-Id")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL, 2)
	ctx := obsctx.ContextWithRequestID(context.Background(), "req-42")
	err := c.SendTemplated(ctx, "interview_confirmed", domain.Recipient{SubjectID: "cand-1", Email: "carol@example.com"}, bookingVars())
	require.NoError(t, err)

	assert.Equal(t, "Bearer mail-key", auth)
	assert.Equal(t, "req-42", rid)
	assert.Equal(t, "carol@example.com", got.To)
	assert.Equal(t, "no-reply@mock-interview.local", got.From)
	assert.Equal(t, "Interview confirmed: System design", got.Subject)
	assert.Contains(t, got.Text, "Booking reference: b-1")
}

func TestSendTemplated_RetriesServerErrors(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL, 3)
	err := c.SendTemplated(context.Background(), "interview_completed", domain.Recipient{Email: "a@b.c"}, bookingVars())
	require.NoError(t, err)
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
}

func TestSendTemplated_GivesUpAfterMaxRetries(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL, 2)
	err := c.SendTemplated(context.Background(), "interview_booked", domain.Recipient{Email: "a@b.c"}, bookingVars())
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrUpstreamRateLimit)
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
}

func TestSendTemplated_ClientErrorIsPermanent(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		http.Error(w, "bad recipient", http.StatusUnprocessableEntity)
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL, 5)
	err := c.SendTemplated(context.Background(), "interview_booked", domain.Recipient{Email: "nope"}, bookingVars())
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrInvalidArgument)
	assert.Contains(t, err.Error(), "bad recipient")
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestSendTemplated_NoAddressIsSkipped(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL, 1)
	require.NoError(t, c.SendTemplated(context.Background(), "interview_booked", domain.Recipient{SubjectID: "cand-1"}, bookingVars()))
	assert.Zero(t, atomic.LoadInt32(&calls))
}

func TestSendTemplated_UnknownTemplate(t *testing.T) {
	c := newTestClient(t, "http://127.0.0.1:1", 0)
	err := c.SendTemplated(context.Background(), "nope", domain.Recipient{Email: "a@b.c"}, nil)
	assert.ErrorIs(t, err, domain.ErrInvalidArgument)
}

func TestNew_RequiresURL(t *testing.T) {
	tpl, err := LoadTemplates()
	require.NoError(t, err)
	_, err = New(config.Config{}, tpl)
	assert.Error(t, err)
	_, err = New(config.Config{MailAPIURL: "http://x"}, nil)
	assert.Error(t, err)
}

func TestLogNotifier(t *testing.T) {
	var n domain.Notifier = LogNotifier{}
	assert.NoError(t, n.SendTemplated(context.Background(), "interview_booked", domain.Recipient{SubjectID: "c"}, bookingVars()))
}
