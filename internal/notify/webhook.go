package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/redlinehq/redline/model"
)

const defaultWebhookTimeout = 10 * time.Second

// Webhook delivers messages as JSON POSTs to a configured endpoint.
type Webhook struct {
	url    string
	client *http.Client
}

// NewWebhook creates a webhook notifier. timeout of zero uses the default.
func NewWebhook(url string, timeout time.Duration) *Webhook {
	if timeout <= 0 {
		timeout = defaultWebhookTimeout
	}
	return &Webhook{
		url:    url,
		client: &http.Client{Timeout: timeout},
	}
}

// Notify implements Notifier. Any non-2xx response is a delivery error.
func (w *Webhook) Notify(ctx context.Context, msg Message) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal notification: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build notification request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "redline-notify")

	resp, err := w.client.Do(req)
	if err != nil {
		return model.NewDeliveryError(fmt.Sprintf("deliver %s to %s: %v", msg.Event, msg.Recipient, err))
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return model.NewDeliveryError(fmt.Sprintf(
			"deliver %s to %s: endpoint returned %d", msg.Event, msg.Recipient, resp.StatusCode,
		))
	}
	return nil
}
