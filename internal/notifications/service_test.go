package notifications_test

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"yatrisync/internal/config"
	"yatrisync/internal/notifications"
	"yatrisync/internal/queue"
)

type captured struct {
	title, tags, priority, body string
}

func newCapture(t *testing.T, status int) (*httptest.Server, *[]captured) {
	t.Helper()
	var got []captured
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		got = append(got, captured{
			title:    r.Header.Get("Title"),
			tags:     r.Header.Get("Tags"),
			priority: r.Header.Get("Priority"),
			body:     string(body),
		})
		w.WriteHeader(status)
		_, _ = io.WriteString(w, "nope")
	}))
	t.Cleanup(srv.Close)
	return srv, &got
}

func TestNewServiceReturnsNoopWhenTopicMissing(t *testing.T) {
	cfg := config.Default()
	svc := notifications.NewService(&cfg)
	if err := svc.TestNotification(context.Background()); err != nil {
		t.Fatalf("expected noop notifier to return nil, got %v", err)
	}
	if err := notifications.NewService(nil).NotifySyncCompleted(context.Background(), 1, 0, 0, time.Second); err != nil {
		t.Fatalf("nil config should yield noop, got %v", err)
	}
}

func TestNtfyServiceFormatsPayloads(t *testing.T) {
	srv, got := newCapture(t, http.StatusOK)
	cfg := config.Default()
	cfg.Notifications.NtfyTopic = srv.URL
	svc := notifications.NewService(&cfg)
	ctx := context.Background()

	action := queue.Action{Kind: "trip.update", Endpoint: "/trips/1", Method: queue.MethodPatch, Attempts: 3}
	if err := svc.NotifyActionDropped(ctx, action, queue.ReasonRetriesExhausted); err != nil {
		t.Fatalf("NotifyActionDropped: %v", err)
	}
	if err := svc.NotifySyncCompleted(ctx, 4, 0, 0, 1500*time.Millisecond); err != nil {
		t.Fatalf("NotifySyncCompleted: %v", err)
	}
	if err := svc.NotifySyncCompleted(ctx, 2, 1, 1, time.Second); err != nil {
		t.Fatalf("NotifySyncCompleted: %v", err)
	}

	if len(*got) != 3 {
		t.Fatalf("expected 3 notifications, got %d", len(*got))
	}
	dropped := (*got)[0]
	if dropped.title != "yatrisync - Change Dropped" || dropped.priority != "high" {
		t.Fatalf("unexpected dropped headers %+v", dropped)
	}
	if !strings.Contains(dropped.body, "PATCH /trips/1 (trip.update) was not delivered after 3 attempts") {
		t.Fatalf("unexpected dropped body %q", dropped.body)
	}
	if (*got)[1].body != "Replayed 4 queued changes in 1.5s" {
		t.Fatalf("unexpected success body %q", (*got)[1].body)
	}
	if (*got)[2].title != "yatrisync - Sync Complete (with errors)" || (*got)[2].tags != "yatrisync,sync,errors" {
		t.Fatalf("unexpected error summary %+v", (*got)[2])
	}
}

func TestNtfyServiceSuppressesDroppedWhenDisabled(t *testing.T) {
	srv, got := newCapture(t, http.StatusOK)
	cfg := config.Default()
	cfg.Notifications.NtfyTopic = srv.URL
	cfg.Notifications.DroppedActions = false
	svc := notifications.NewService(&cfg)

	if err := svc.NotifyActionDropped(context.Background(), queue.Action{}, ""); err != nil {
		t.Fatalf("NotifyActionDropped: %v", err)
	}
	if len(*got) != 0 {
		t.Fatalf("expected no notifications, got %d", len(*got))
	}
}

func TestNtfyServiceReportsHTTPErrors(t *testing.T) {
	srv, _ := newCapture(t, http.StatusForbidden)
	cfg := config.Default()
	cfg.Notifications.NtfyTopic = srv.URL
	err := notifications.NewService(&cfg).TestNotification(context.Background())
	if err == nil || !strings.Contains(err.Error(), "403") || !strings.Contains(err.Error(), "nope") {
		t.Fatalf("expected 403 error with body, got %v", err)
	}
}
