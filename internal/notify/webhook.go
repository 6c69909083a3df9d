package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/cenkalti/backoff/v5"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/flemzord/sitterd/internal/security"
	"github.com/flemzord/sitterd/internal/store"
	"github.com/flemzord/sitterd/internal/telemetry"
)

// WebhookConfig configures the webhook delivery channel.
type WebhookConfig struct {
	// URL receives a JSON POST per new notification.
	URL string `yaml:"url"`

	// Token, when set, is sent as "Authorization: Bearer <token>".
	Token string `yaml:"token"`

	// Timeout bounds a single HTTP attempt. Defaults to 10s.
	Timeout time.Duration `yaml:"timeout"`

	// MaxAttempts bounds retries of transient failures. Defaults to 4.
	MaxAttempts uint `yaml:"max_attempts"`

	// InitialInterval is the first retry delay. Defaults to 500ms.
	InitialInterval time.Duration `yaml:"initial_interval"`

	// URLFilter restricts the destination host.
	URLFilter security.URLFilterConfig `yaml:"url_filter"`
}

func (c *WebhookConfig) defaults() {
	if c.Timeout == 0 {
		c.Timeout = 10 * time.Second
	}
	if c.MaxAttempts == 0 {
		c.MaxAttempts = 4
	}
	if c.InitialInterval == 0 {
		c.InitialInterval = 500 * time.Millisecond
	}
}

// WebhookDeliverer posts notifications to an HTTP endpoint, retrying 5xx,
// 429 and transport errors with exponential backoff.
type WebhookDeliverer struct {
	cfg    WebhookConfig
	client *http.Client
}

// webhookBody is the JSON document posted per notification.
type webhookBody struct {
	ID             string            `json:"id"`
	RecipientID    string            `json:"recipient_id"`
	IdempotencyKey string            `json:"idempotency_key"`
	Kind           string            `json:"kind"`
	SubjectID      string            `json:"subject_id"`
	Title          string            `json:"title"`
	Body           string            `json:"body,omitempty"`
	Data           map[string]string `json:"data,omitempty"`
	CreatedAt      time.Time         `json:"created_at"`
}

// NewWebhookDeliverer validates the destination against the URL filter.
// A nil client uses a default client with cfg.Timeout.
func NewWebhookDeliverer(cfg WebhookConfig, client *http.Client) (*WebhookDeliverer, error) {
	cfg.defaults()
	if cfg.URL == "" {
		return nil, errors.New("notify: webhook url is required")
	}
	if err := security.NewURLFilter(cfg.URLFilter).Check(cfg.URL); err != nil {
		return nil, fmt.Errorf("notify: webhook: %w", err)
	}
	if client == nil {
		client = &http.Client{Timeout: cfg.Timeout}
	}
	return &WebhookDeliverer{cfg: cfg, client: client}, nil
}

// Name implements Deliverer.
func (*WebhookDeliverer) Name() string { return "webhook" }

// Deliver implements Deliverer.
func (w *WebhookDeliverer) Deliver(ctx context.Context, n store.Notification) error {
	ctx, span := telemetry.Tracer().Start(ctx, "notify.webhook")
	defer span.End()
	span.SetAttributes(attribute.String("notification.id", n.ID))

	raw, err := json.Marshal(webhookBody{
		ID:             n.ID,
		RecipientID:    n.RecipientID,
		IdempotencyKey: n.IdempotencyKey,
		Kind:           string(n.Payload.Kind),
		SubjectID:      n.Payload.SubjectID,
		Title:          n.Payload.Title,
		Body:           n.Payload.Body,
		Data:           n.Payload.Data,
		CreatedAt:      n.CreatedAt,
	})
	if err != nil {
		return fmt.Errorf("notify: encode webhook body: %w", err)
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = w.cfg.InitialInterval

	attempts := 0
	_, err = backoff.Retry(ctx, func() (struct{}, error) {
		attempts++
		return struct{}{}, w.post(ctx, raw)
	}, backoff.WithBackOff(b), backoff.WithMaxTries(w.cfg.MaxAttempts))

	span.SetAttributes(attribute.Int("webhook.attempts", attempts))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "delivery failed")
		return fmt.Errorf("notify: webhook after %d attempt(s): %w", attempts, err)
	}
	return nil
}

func (w *WebhookDeliverer) post(ctx context.Context, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.cfg.URL, bytes.NewReader(body))
	if err != nil {
		return backoff.Permanent(err)
	}
	req.Header.Set("Content-Type", "application/json")
	if w.cfg.Token != "" {
		req.Header.Set("Authorization", "Bearer "+w.cfg.Token)
	}

	resp, err := w.client.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return nil
	case resp.StatusCode == http.StatusTooManyRequests:
		if secs, err := strconv.Atoi(resp.Header.Get("Retry-After")); err == nil && secs > 0 {
			return backoff.RetryAfter(secs)
		}
		return fmt.Errorf("webhook returned %d", resp.StatusCode)
	case resp.StatusCode >= 500:
		return fmt.Errorf("webhook returned %d", resp.StatusCode)
	default:
		return backoff.Permanent(fmt.Errorf("webhook returned %d", resp.StatusCode))
	}
}
