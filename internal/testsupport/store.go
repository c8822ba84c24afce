package testsupport

import (
	"context"
	"testing"

	"yatrisync/internal/config"
	"yatrisync/internal/logging"
	"yatrisync/internal/queue"
)

// MustOpenStore opens the queue store described by cfg and registers cleanup.
func MustOpenStore(t testing.TB, cfg *config.Config) *queue.Store {
	t.Helper()

	store := queue.NewStore(cfg.QueuePath())
	if err := store.Initialize(context.Background()); err != nil {
		t.Fatalf("store.Initialize: %v", err)
	}
	t.Cleanup(func() {
		store.Close()
	})
	return store
}

// NewQueue wraps a fresh store in a Queue configured from cfg.
func NewQueue(t testing.TB, cfg *config.Config) *queue.Queue {
	t.Helper()

	return queue.New(MustOpenStore(t, cfg), logging.NewNop(),
		queue.WithMaxRetries(cfg.Sync.MaxRetries),
		queue.WithDeadLetter(cfg.Sync.DeadLetter),
	)
}

// MustAdd enqueues an action and fails the test on error.
func MustAdd(t testing.TB, q *queue.Queue, kind, endpoint string, method queue.Method, payload string) queue.Action {
	t.Helper()

	var body []byte
	if payload != "" {
		body = []byte(payload)
	}
	action, err := q.Add(context.Background(), kind, endpoint, method, body)
	if err != nil {
		t.Fatalf("queue.Add: %v", err)
	}
	return action
}
