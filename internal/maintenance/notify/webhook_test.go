package notify

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	maintapp "scada-maintenance/internal/maintenance/application"
)

func TestWebhookNotifierPayload(t *testing.T) {
	payloadCh := make(chan webhookPayload, 1)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(r.Body)
		if err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		var payload webhookPayload
		if err := json.Unmarshal(body, &payload); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		payloadCh <- payload
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	notifier, err := NewWebhookNotifier(server.URL, 0)
	if err != nil {
		t.Fatalf("new webhook notifier: %v", err)
	}

	at := time.Date(2026, 3, 14, 8, 0, 0, 0, time.UTC)
	err = notifier.Notify(context.Background(), maintapp.Notification{
		Action: maintapp.ActionActivated,
		XID:    "ME_pump_house",
		Name:   "Pump house service",
		At:     at,
	})
	if err != nil {
		t.Fatalf("notify: %v", err)
	}

	select {
	case payload := <-payloadCh:
		if payload.Action != maintapp.ActionActivated {
			t.Fatalf("expected action %q, got %q", maintapp.ActionActivated, payload.Action)
		}
		if payload.XID != "ME_pump_house" {
			t.Fatalf("expected xid ME_pump_house, got %q", payload.XID)
		}
		if payload.At != "2026-03-14T08:00:00Z" {
			t.Fatalf("unexpected at timestamp %q", payload.At)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for webhook payload")
	}
}

func TestWebhookNotifierNon2xx(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	notifier, err := NewWebhookNotifier(server.URL, 0)
	if err != nil {
		t.Fatalf("new webhook notifier: %v", err)
	}
	if err := notifier.Notify(context.Background(), maintapp.Notification{Action: maintapp.ActionCreated}); err == nil {
		t.Fatal("expected error for non-2xx response")
	}
}

func TestWebhookNotifierEmptyURL(t *testing.T) {
	if _, err := NewWebhookNotifier("", 0); err == nil {
		t.Fatal("expected error for empty url")
	}
}

type recordingNotifier struct {
	mu      sync.Mutex
	actions []string
	err     error
}

func (r *recordingNotifier) Notify(_ context.Context, notification maintapp.Notification) error {
	r.mu.Lock()
	r.actions = append(r.actions, notification.Action)
	r.mu.Unlock()
	return r.err
}

func TestMultiNotifierForwardsToAll(t *testing.T) {
	first := &recordingNotifier{}
	second := &recordingNotifier{err: errors.New("boom")}
	third := &recordingNotifier{}

	multi := NewMultiNotifier(first, nil, second, third)
	err := multi.Notify(context.Background(), maintapp.Notification{Action: maintapp.ActionDeleted})
	if err == nil {
		t.Fatal("expected aggregated error")
	}
	for i, n := range []*recordingNotifier{first, second, third} {
		if len(n.actions) != 1 || n.actions[0] != maintapp.ActionDeleted {
			t.Fatalf("notifier %d did not receive the notification: %v", i, n.actions)
		}
	}
}
