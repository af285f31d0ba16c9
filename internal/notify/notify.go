// Package notify is the fire-and-forget notification collaborator. Send
// failures are logged by callers and never propagated as request failures.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
)

// Message is one outbound notification. Rendering and delivery happen in the
// external notification service; the core only names recipient and content.
type Message struct {
	RecipientID uuid.UUID `json:"recipient_id"`
	Subject     string    `json:"subject"`
	Body        string    `json:"body"`
}

// Sink delivers messages best-effort.
type Sink interface {
	Send(ctx context.Context, msg Message) error
}

// ──────────────────────────────────────────────────────────────────────────────
// LogSink — development fallback
// ──────────────────────────────────────────────────────────────────────────────

// LogSink writes notifications to the structured log instead of delivering
// them. Used in development and as the default when no webhook is configured.
type LogSink struct {
	Logger *slog.Logger
}

// Send logs the message and always succeeds.
func (s *LogSink) Send(_ context.Context, msg Message) error {
	s.Logger.Info("notification",
		"recipient", msg.RecipientID, "subject", msg.Subject)
	return nil
}

// ──────────────────────────────────────────────────────────────────────────────
// WebhookSink — posts to the notification service
// ──────────────────────────────────────────────────────────────────────────────

// WebhookSink POSTs each message as JSON to the notification service.
type WebhookSink struct {
	URL string
	hc  *http.Client
}

// NewWebhookSink creates a WebhookSink with a caller-side timeout.
func NewWebhookSink(url string, timeout time.Duration) *WebhookSink {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &WebhookSink{URL: url, hc: &http.Client{Timeout: timeout}}
}

// Send delivers one message. The caller decides whether to log the error;
// delivery failure never rolls back the action that triggered it.
func (s *WebhookSink) Send(ctx context.Context, msg Message) error {
	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("notify.Send: marshal: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.URL, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("notify.Send: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.hc.Do(req)
	if err != nil {
		return fmt.Errorf("notify.Send: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("notify.Send: status %d", resp.StatusCode)
	}
	return nil
}
