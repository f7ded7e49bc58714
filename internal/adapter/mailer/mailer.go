// Package mailer renders notification templates and delivers them through
// an HTTP mail API.
package mailer

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/fairyhunter13/ai-mock-interview/internal/config"
	"github.com/fairyhunter13/ai-mock-interview/internal/domain"
	obsctx "github.com/fairyhunter13/ai-mock-interview/internal/observability"
)

// ErrNoAddress means the recipient carries no email; there is nothing to deliver.
var ErrNoAddress = errors.New("recipient has no email address")

type sendRequest struct {
	From    string `json:"from"`
	To      string `json:"to"`
	Subject string `json:"subject"`
	Text    string `json:"text"`
}

// Client implements domain.Notifier against a JSON mail API.
type Client struct {
	hc        *http.Client
	endpoint  string
	apiKey    string
	from      string
	retry     config.MailRetryConfig
	templates *Templates
}

// New builds a Client from cfg. MAIL_API_URL is required.
func New(cfg config.Config, templates *Templates) (*Client, error) {
	if cfg.MailAPIURL == "" {
		return nil, fmt.Errorf("op=mailer.new: MAIL_API_URL is required")
	}
	if templates == nil {
		return nil, fmt.Errorf("op=mailer.new: templates are required")
	}
	return &Client{
		hc:        &http.Client{Timeout: cfg.MailTimeout, Transport: otelhttp.NewTransport(http.DefaultTransport)},
		endpoint:  cfg.MailAPIURL,
		apiKey:    cfg.MailAPIKey,
		from:      cfg.MailFrom,
		retry:     cfg.GetMailRetryConfig(),
		templates: templates,
	}, nil
}

func (c *Client) backoff(ctx context.Context) backoff.BackOff {
	expo := backoff.NewExponentialBackOff()
	expo.InitialInterval = c.retry.InitialDelay
	expo.MaxInterval = c.retry.MaxDelay
	expo.Multiplier = c.retry.Multiplier
	expo.MaxElapsedTime = 0
	retries := c.retry.MaxRetries
	if retries < 0 {
		retries = 0
	}
	return backoff.WithContext(backoff.WithMaxRetries(expo, uint64(retries)), ctx)
}

// SendTemplated renders templateKey and posts it to the mail API, retrying
// transport errors, 429 and 5xx. Other 4xx responses are not retried.
func (c *Client) SendTemplated(ctx domain.Context, templateKey string, to domain.Recipient, vars map[string]string) error {
	lg := obsctx.LoggerFromContext(ctx)
	if to.Email == "" {
		lg.Warn("notification skipped", slog.String("template", templateKey), slog.String("subject_id", to.SubjectID), slog.Any("reason", ErrNoAddress))
		return nil
	}
	subject, body, err := c.templates.Render(templateKey, vars)
	if err != nil {
		return fmt.Errorf("op=mailer.send: %w", err)
	}
	payload, err := json.Marshal(sendRequest{From: c.from, To: to.Email, Subject: subject, Text: body})
	if err != nil {
		return fmt.Errorf("op=mailer.send: %w", err)
	}

	attempt := 0
	op := func() error {
		attempt++
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(payload))
		if err != nil {
			return backoff.Permanent(err)
		}
		req.Header.Set("Content-Type", "application/json")
		if c.apiKey != "" {
			req.Header.Set("Authorization", "Bearer "+c.apiKey)
		}
		if rid := obsctx.RequestIDFromContext(ctx); rid != "" {
			req.Header.Set("X-Request-Id", rid)
		}
		resp, err := c.hc.Do(req)
		if err != nil {
			return fmt.Errorf("%w: %v", domain.ErrUpstreamUnavailable, err)
		}
		defer func() { _ = resp.Body.Close() }()
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))

		switch {
		case resp.StatusCode >= 200 && resp.StatusCode < 300:
			return nil
		case resp.StatusCode == http.StatusTooManyRequests:
			lg.Warn("mail api rate limited", slog.Int("attempt", attempt))
			return fmt.Errorf("%w: mail api status 429", domain.ErrUpstreamRateLimit)
		case resp.StatusCode >= 400 && resp.StatusCode < 500:
			return backoff.Permanent(fmt.Errorf("%w: mail api status %d: %s", domain.ErrInvalidArgument, resp.StatusCode, snippet))
		default:
			lg.Warn("mail api error", slog.Int("status", resp.StatusCode), slog.Int("attempt", attempt))
			return fmt.Errorf("%w: mail api status %d", domain.ErrUpstreamUnavailable, resp.StatusCode)
		}
	}

	start := time.Now()
	if err := backoff.Retry(op, c.backoff(ctx)); err != nil {
		return fmt.Errorf("op=mailer.send: %w", err)
	}
	lg.Info("email sent",
		slog.String("template", templateKey),
		slog.Int("attempts", attempt),
		slog.Duration("elapsed", time.Since(start)))
	return nil
}

// LogNotifier stands in for the publisher when notifications are disabled.
type LogNotifier struct{}

func (LogNotifier) SendTemplated(ctx domain.Context, templateKey string, to domain.Recipient, vars map[string]string) error {
	obsctx.LoggerFromContext(ctx).Info("notification (disabled)",
		slog.String("template", templateKey),
		slog.String("subject_id", to.SubjectID),
		slog.Any("vars", vars))
	return nil
}
