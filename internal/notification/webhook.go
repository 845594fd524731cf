package notification

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// webhookPayload is the JSON body POSTed for each emitted signal.
type webhookPayload struct {
	Instrument string   `json:"instrument"`
	Level      string   `json:"level"`
	Signal     string   `json:"signal"`
	Parts      []string `json:"parts"`
	Close      float64  `json:"close"`
	BarTime    string   `json:"bar_time,omitempty"`
	Message    string   `json:"message"`
	SentAt     string   `json:"sent_at"`
}

// WebhookNotifier POSTs signal changes as JSON to an HTTP endpoint.
type WebhookNotifier struct {
	url    string
	client *http.Client
	now    func() time.Time
}

// NewWebhookNotifier creates a webhook notifier for url.
func NewWebhookNotifier(url string) *WebhookNotifier {
	return &WebhookNotifier{
		url:    url,
		client: &http.Client{Timeout: 10 * time.Second},
		now:    time.Now,
	}
}

func newWebhookPayload(alert Alert, sentAt time.Time) webhookPayload {
	p := webhookPayload{
		Instrument: alert.Title,
		Level:      string(alert.Level),
		Signal:     alert.Signal.String(),
		Parts:      alert.Signal.Parts(),
		Close:      alert.Close,
		Message:    alert.Message,
		SentAt:     sentAt.UTC().Format(time.RFC3339Nano),
	}
	if !alert.BarTime.IsZero() {
		p.BarTime = alert.BarTime.Format(time.RFC3339)
	}
	return p
}

func (w *WebhookNotifier) Send(ctx context.Context, alert Alert) error {
	body, err := json.Marshal(newWebhookPayload(alert, w.now()))
	if err != nil {
		return fmt.Errorf("%w: webhook: marshal: %v", ErrTransport, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("%w: webhook: create request: %v", ErrTransport, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: webhook: send: %v", ErrTransport, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("%w: webhook: %s returned %d", ErrTransport, w.url, resp.StatusCode)
	}
	return nil
}
