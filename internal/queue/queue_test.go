package queue_test

import (
	"context"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"yatrisync/internal/logging"
	"yatrisync/internal/queue"
)

func newQueue(t *testing.T, opts ...queue.Option) *queue.Queue {
	t.Helper()
	return queue.New(newStore(t), logging.NewNop(), opts...)
}

func TestEnqueueThenDrainReturnsAction(t *testing.T) {
	q := newQueue(t)
	ctx := context.Background()

	q.Enqueue(ctx, "trip.create", "/trips", queue.MethodPost, []byte(`{"name":"Goa"}`))

	actions, err := q.Drain(ctx)
	if err != nil {
		t.Fatalf("Drain: %v", err)
	}
	if len(actions) != 1 {
		t.Fatalf("expected 1 action, got %d", len(actions))
	}
	got := actions[0]
	if got.ID == "" || got.Attempts != 0 || got.Method != queue.MethodPost || string(got.Payload) != `{"name":"Goa"}` {
		t.Fatalf("unexpected action %+v", got)
	}
}

func TestEnqueuePreservesFIFOWithFrozenClock(t *testing.T) {
	frozen := time.UnixMilli(1_700_000_000_000)
	q := newQueue(t, queue.WithClock(func() time.Time { return frozen }))
	ctx := context.Background()

	endpoints := []string{"/a", "/b", "/c", "/d", "/e"}
	for _, ep := range endpoints {
		q.Enqueue(ctx, "k", ep, queue.MethodPut, nil)
	}

	actions, err := q.Drain(ctx)
	if err != nil {
		t.Fatalf("Drain: %v", err)
	}
	if len(actions) != len(endpoints) {
		t.Fatalf("expected %d actions, got %d", len(endpoints), len(actions))
	}
	for i, a := range actions {
		if a.Endpoint != endpoints[i] {
			t.Fatalf("position %d: got %s want %s", i, a.Endpoint, endpoints[i])
		}
		if i > 0 && a.CreatedAt <= actions[i-1].CreatedAt {
			t.Fatalf("created_at not strictly increasing at %d", i)
		}
	}
}

func TestEnqueueConcurrentKeepsEveryAction(t *testing.T) {
	q := newQueue(t)
	ctx := context.Background()
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			q.Enqueue(ctx, "k", "/x", queue.MethodPost, nil)
		}()
	}
	wg.Wait()
	if n, err := q.Pending(ctx); err != nil || n != 20 {
		t.Fatalf("Pending = %d, %v", n, err)
	}
}

func TestEnqueueDropsInvalidInputSilently(t *testing.T) {
	q := newQueue(t)
	ctx := context.Background()

	q.Enqueue(ctx, "k", "", queue.MethodPost, nil)
	q.Enqueue(ctx, "k", "/x", queue.Method("GET"), nil)

	if n, err := q.Pending(ctx); err != nil || n != 0 {
		t.Fatalf("Pending = %d, %v", n, err)
	}
	if _, err := q.Add(ctx, "k", "/x", queue.Method("GET"), nil); !queue.IsValidationError(err) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestEnqueueKeepsActionWithoutKind(t *testing.T) {
	q := newQueue(t)
	ctx := context.Background()

	q.Enqueue(ctx, "", "/bookings", queue.MethodPost, []byte(`{"a":1}`))
	q.Enqueue(ctx, strings.Repeat("k", 500), "/bookings/1", queue.MethodPatch, nil)

	actions, err := q.Drain(ctx)
	if err != nil {
		t.Fatalf("Drain: %v", err)
	}
	if len(actions) != 2 {
		t.Fatalf("expected both actions queued, got %+v", actions)
	}
	if actions[0].Kind != "" || actions[0].Endpoint != "/bookings" || string(actions[0].Payload) != `{"a":1}` {
		t.Fatalf("unexpected action %+v", actions[0])
	}
}

func TestEnqueueSwallowsStorageFaults(t *testing.T) {
	store := queue.NewStore(filepath.Join(t.TempDir(), "queue.db"))
	q := queue.New(store, logging.NewNop())
	_ = store.Close()

	q.Enqueue(context.Background(), "k", "/x", queue.MethodPost, nil)
}

func TestEnqueueJSON(t *testing.T) {
	q := newQueue(t)
	ctx := context.Background()

	q.EnqueueJSON(ctx, "expense.add", "/expenses", queue.MethodPost, map[string]any{"amount": 12})
	q.EnqueueJSON(ctx, "bad", "/x", queue.MethodPost, func() {})

	actions, err := q.Drain(ctx)
	if err != nil {
		t.Fatalf("Drain: %v", err)
	}
	if len(actions) != 1 || string(actions[0].Payload) != `{"amount":12}` {
		t.Fatalf("unexpected actions %+v", actions)
	}
}

func TestAddNormalizesMethod(t *testing.T) {
	q := newQueue(t)
	a, err := q.Add(context.Background(), " k ", " /x ", queue.Method("patch"), nil)
	if err != nil {
		t.Fatalf("Add: %v", err)
	}
	if a.Method != queue.MethodPatch || a.Kind != "k" || a.Endpoint != "/x" {
		t.Fatalf("unexpected normalization %+v", a)
	}
}

func TestRetryOrDropDropsAtLimit(t *testing.T) {
	q := newQueue(t, queue.WithMaxRetries(3))
	ctx := context.Background()
	a, err := q.Add(ctx, "k", "/x", queue.MethodPost, nil)
	if err != nil {
		t.Fatalf("Add: %v", err)
	}

	for attempt := 1; attempt <= 2; attempt++ {
		out, err := q.RetryOrDrop(ctx, a)
		if err != nil {
			t.Fatalf("RetryOrDrop: %v", err)
		}
		if out.Dropped || out.Attempts != attempt {
			t.Fatalf("attempt %d: unexpected outcome %+v", attempt, out)
		}
	}
	out, err := q.RetryOrDrop(ctx, a)
	if err != nil {
		t.Fatalf("RetryOrDrop: %v", err)
	}
	if !out.Dropped || out.Attempts != 3 {
		t.Fatalf("expected drop on third failure, got %+v", out)
	}
	if n, _ := q.Pending(ctx); n != 0 {
		t.Fatalf("expected empty queue, got %d", n)
	}
	letters, err := q.Store().ListDeadLetters(ctx)
	if err != nil || len(letters) != 1 || letters[0].Attempts != 3 {
		t.Fatalf("expected one dead letter with 3 attempts, got %+v err=%v", letters, err)
	}

	out, err = q.RetryOrDrop(ctx, a)
	if err != nil || !out.Missing {
		t.Fatalf("expected missing outcome, got %+v err=%v", out, err)
	}
}

func TestAcknowledgeUnknownIsNoop(t *testing.T) {
	q := newQueue(t)
	if err := q.Acknowledge(context.Background(), "nope"); err != nil {
		t.Fatalf("Acknowledge: %v", err)
	}
}

func TestParseMethod(t *testing.T) {
	for _, in := range []string{"post", " PUT ", "Patch", "delete"} {
		if _, err := queue.ParseMethod(in); err != nil {
			t.Fatalf("ParseMethod(%q): %v", in, err)
		}
	}
	for _, in := range []string{"GET", "", "HEAD"} {
		if _, err := queue.ParseMethod(in); err == nil {
			t.Fatalf("ParseMethod(%q) should fail", in)
		}
	}
}
