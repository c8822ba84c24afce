package notifications

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"yatrisync/internal/config"
	"yatrisync/internal/queue"
)

const userAgent = "yatrisync/0.1.0"

// Service defines the alerts the sync engine and daemon raise.
type Service interface {
	NotifyActionDropped(ctx context.Context, action queue.Action, reason string) error
	NotifySyncCompleted(ctx context.Context, replayed, failed, dropped int, duration time.Duration) error
	TestNotification(ctx context.Context) error
}

// NewService builds a notification service backed by ntfy when configured.
func NewService(cfg *config.Config) Service {
	if cfg == nil {
		return noopService{}
	}
	topic := strings.TrimSpace(cfg.Notifications.NtfyTopic)
	if topic == "" {
		return noopService{}
	}

	timeout := time.Duration(cfg.Notifications.RequestTimeout) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &ntfyService{
		endpoint: topic,
		client:   &http.Client{Timeout: timeout},
		dropped:  cfg.Notifications.DroppedActions,
	}
}

type payload struct {
	title    string
	message  string
	tags     []string
	priority string
}

type ntfyService struct {
	endpoint string
	client   *http.Client
	dropped  bool
}

func (n *ntfyService) NotifyActionDropped(ctx context.Context, action queue.Action, reason string) error {
	if !n.dropped {
		return nil
	}
	message := fmt.Sprintf("%s %s (%s) was not delivered after %d attempts", action.Method, action.Endpoint, action.Kind, action.Attempts)
	if reason = strings.TrimSpace(reason); reason != "" {
		message += "\nReason: " + reason
	}
	return n.send(ctx, payload{
		title:    "yatrisync - Change Dropped",
		message:  message,
		tags:     []string{"yatrisync", "dropped", "warning"},
		priority: "high",
	})
}

func (n *ntfyService) NotifySyncCompleted(ctx context.Context, replayed, failed, dropped int, duration time.Duration) error {
	duration = duration.Round(time.Millisecond)
	if duration < 0 {
		duration = 0
	}
	data := payload{
		title:   "yatrisync - Sync Complete",
		message: fmt.Sprintf("Replayed %d queued changes in %s", replayed, duration),
		tags:    []string{"yatrisync", "sync", "completed"},
	}
	if failed > 0 || dropped > 0 {
		data.title = "yatrisync - Sync Complete (with errors)"
		data.message = fmt.Sprintf("Replayed %d, failed %d, dropped %d in %s", replayed, failed, dropped, duration)
		data.tags = []string{"yatrisync", "sync", "errors"}
	}
	return n.send(ctx, data)
}

func (n *ntfyService) TestNotification(ctx context.Context) error {
	return n.send(ctx, payload{
		title:    "yatrisync - Test",
		message:  "Notification system test",
		tags:     []string{"yatrisync", "test"},
		priority: "low",
	})
}

func (n *ntfyService) send(ctx context.Context, data payload) error {
	if n == nil || n.client == nil {
		return nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.endpoint, strings.NewReader(data.message))
	if err != nil {
		return fmt.Errorf("build ntfy request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Content-Type", "text/plain; charset=utf-8")
	if data.title != "" {
		req.Header.Set("Title", data.title)
	}
	if len(data.tags) > 0 {
		req.Header.Set("Tags", strings.Join(data.tags, ","))
	}
	if data.priority != "" && data.priority != "default" {
		req.Header.Set("Priority", data.priority)
	}

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("send ntfy notification: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("ntfy returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

type noopService struct{}

func (noopService) NotifyActionDropped(context.Context, queue.Action, string) error { return nil }
func (noopService) NotifySyncCompleted(context.Context, int, int, int, time.Duration) error {
	return nil
}
func (noopService) TestNotification(context.Context) error { return nil }
