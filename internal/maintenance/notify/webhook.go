package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	maintapp "scada-maintenance/internal/maintenance/application"
	"scada-maintenance/internal/observability/metrics"
)

const defaultTimeout = 10 * time.Second

// WebhookNotifier posts lifecycle notifications to an HTTP endpoint.
type WebhookNotifier struct {
	url    string
	client *http.Client
}

type webhookPayload struct {
	Action string `json:"action"`
	XID    string `json:"xid"`
	Name   string `json:"name"`
	At     string `json:"at"`
}

// NewWebhookNotifier constructs a notifier. A non-positive timeout falls
// back to the default.
func NewWebhookNotifier(url string, timeout time.Duration) (*WebhookNotifier, error) {
	if url == "" {
		return nil, errors.New("webhook notifier: empty url")
	}
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &WebhookNotifier{
		url:    url,
		client: &http.Client{Timeout: timeout},
	}, nil
}

// Notify posts the notification as JSON.
func (n *WebhookNotifier) Notify(ctx context.Context, notification maintapp.Notification) error {
	if n == nil || n.url == "" {
		return errors.New("webhook notifier: empty url")
	}
	payload := webhookPayload{
		Action: notification.Action,
		XID:    notification.XID,
		Name:   notification.Name,
		At:     notification.At.UTC().Format(time.RFC3339),
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := n.client.Do(req)
	if err != nil {
		metrics.IncNotify("webhook", err)
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		err := errors.New("webhook notifier: non-2xx")
		metrics.IncNotify("webhook", err)
		return err
	}
	metrics.IncNotify("webhook", nil)
	return nil
}
