package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"yatrisync/internal/logging"
)

// Drop reasons recorded in dead_letters.
const (
	ReasonRetriesExhausted = "retries exhausted"
	ReasonExhaustedOnDrain = "retries exhausted before replay"
)

// Queue is the application-facing API over Store.
type Queue struct {
	store      *Store
	logger     *slog.Logger
	validate   *validator.Validate
	maxRetries int
	deadLetter bool
	now        func() time.Time
	newID      func() (string, error)

	mu          sync.Mutex
	lastCreated int64
}

// Option configures a Queue.
type Option func(*Queue)

// WithMaxRetries sets the replay budget. Values below one are ignored.
func WithMaxRetries(n int) Option {
	return func(q *Queue) {
		if n > 0 {
			q.maxRetries = n
		}
	}
}

// WithDeadLetter controls whether dropped actions are kept in dead_letters.
func WithDeadLetter(enabled bool) Option {
	return func(q *Queue) { q.deadLetter = enabled }
}

// WithClock overrides the time source used for created_at.
func WithClock(now func() time.Time) Option {
	return func(q *Queue) {
		if now != nil {
			q.now = now
		}
	}
}

// New builds a Queue. The store is initialized lazily on first use.
func New(store *Store, logger *slog.Logger, opts ...Option) *Queue {
	q := &Queue{
		store:      store,
		logger:     logging.NewComponentLogger(logger, "queue"),
		validate:   validator.New(validator.WithRequiredStructEnabled()),
		maxRetries: DefaultMaxRetries,
		deadLetter: true,
		now:        time.Now,
		newID:      newActionID,
	}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

// MaxRetries returns the configured replay budget.
func (q *Queue) MaxRetries() int {
	return q.maxRetries
}

// Store exposes the backing store.
func (q *Queue) Store() *Store {
	return q.store
}

// Kind is only a log label, so it is never grounds for discarding an action.
type enqueueRequest struct {
	Kind     string
	Endpoint string `validate:"required,max=2048"`
	Method   Method `validate:"required,oneof=POST PUT PATCH DELETE"`
}

// Enqueue records a mutation for later replay. It never fails from the
// caller's point of view: invalid input and storage faults are logged and
// the action is discarded.
func (q *Queue) Enqueue(ctx context.Context, kind, endpoint string, method Method, payload []byte) {
	action, err := q.Add(ctx, kind, endpoint, method, payload)
	if err != nil {
		logging.ErrorWithContext(q.logger, "failed to queue action", "action_enqueue_failed",
			logging.ActionAttrs("", kind, string(method), endpoint,
				logging.String(logging.FieldErrorHint, "check queue database path and permissions"),
				logging.Error(err),
			)...,
		)
		return
	}
	q.logger.Info("action queued",
		logging.Args(logging.ActionAttrs(action.ID, action.Kind, string(action.Method), action.Endpoint)...)...,
	)
}

// EnqueueJSON marshals v and enqueues it. Marshal failures are logged and dropped.
func (q *Queue) EnqueueJSON(ctx context.Context, kind, endpoint string, method Method, v any) {
	var payload []byte
	if v != nil {
		encoded, err := json.Marshal(v)
		if err != nil {
			logging.ErrorWithContext(q.logger, "failed to encode action payload", "action_encode_failed",
				logging.String(logging.FieldActionKind, kind),
				logging.String(logging.FieldEndpoint, endpoint),
				logging.String(logging.FieldErrorHint, "payload must be JSON serializable"),
				logging.Error(err),
			)
			return
		}
		payload = encoded
	}
	q.Enqueue(ctx, kind, endpoint, method, payload)
}

// Add validates and persists an action, returning it. Enqueue is the
// fire-and-forget wrapper that callers on the write path should use.
func (q *Queue) Add(ctx context.Context, kind, endpoint string, method Method, payload []byte) (Action, error) {
	req := enqueueRequest{
		Kind:     strings.TrimSpace(kind),
		Endpoint: strings.TrimSpace(endpoint),
		Method:   Method(strings.ToUpper(string(method))),
	}
	if err := q.validate.Struct(req); err != nil {
		return Action{}, fmt.Errorf("invalid action: %w", err)
	}

	id, err := q.newID()
	if err != nil {
		return Action{}, fmt.Errorf("generate action id: %w", err)
	}
	action := Action{
		ID:        id,
		Kind:      req.Kind,
		Endpoint:  req.Endpoint,
		Method:    req.Method,
		Payload:   payload,
		CreatedAt: q.nextCreatedAt(),
	}
	if err := q.store.Insert(ctx, action); err != nil {
		return Action{}, err
	}
	return action, nil
}

// Drain returns the full backlog ordered oldest first.
func (q *Queue) Drain(ctx context.Context) ([]Action, error) {
	return q.store.ListAll(ctx)
}

// Pending returns the backlog size.
func (q *Queue) Pending(ctx context.Context) (int, error) {
	return q.store.Count(ctx)
}

// Acknowledge removes a successfully replayed action. Unknown ids are ignored.
func (q *Queue) Acknowledge(ctx context.Context, id string) error {
	_, err := q.store.DeleteByID(ctx, id)
	return err
}

// RetryOrDrop records a failed replay. When the new attempt count reaches the
// replay budget the action is removed (and dead-lettered if enabled).
func (q *Queue) RetryOrDrop(ctx context.Context, action Action) (Outcome, error) {
	attempts, found, err := q.store.IncrementAttempts(ctx, action.ID)
	if err != nil {
		return Outcome{}, err
	}
	if !found {
		return Outcome{Missing: true}, nil
	}
	action.Attempts = attempts
	outcome := Outcome{Attempts: attempts}
	if attempts < q.maxRetries {
		return outcome, nil
	}
	removed, err := q.Drop(ctx, action, ReasonRetriesExhausted)
	if err != nil {
		return outcome, err
	}
	outcome.Dropped = removed
	return outcome, nil
}

// Drop removes an action that has exhausted its retries.
func (q *Queue) Drop(ctx context.Context, action Action, reason string) (bool, error) {
	removed, err := q.store.MoveToDeadLetter(ctx, action, reason, q.deadLetter)
	if err != nil {
		return false, err
	}
	if removed {
		logging.WarnWithContext(q.logger, "action dropped after exhausting retries", "action_dropped",
			logging.ActionAttrs(action.ID, action.Kind, string(action.Method), action.Endpoint,
				logging.Int(logging.FieldAttempts, action.Attempts),
				logging.String("reason", reason),
				logging.Bool("dead_lettered", q.deadLetter),
				logging.String(logging.FieldErrorHint, "inspect with 'yatrisync queue dead-letters'"),
				logging.String(logging.FieldImpact, "the change was not delivered to the server"),
			)...,
		)
	}
	return removed, nil
}

// Clear discards the whole backlog.
func (q *Queue) Clear(ctx context.Context) (int64, error) {
	n, err := q.store.Clear(ctx)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		q.logger.Info("queue cleared", logging.Int64("removed", n))
	}
	return n, nil
}

// nextCreatedAt returns epoch milliseconds that strictly increase across calls.
func (q *Queue) nextCreatedAt() int64 {
	q.mu.Lock()
	defer q.mu.Unlock()
	ts := q.now().UnixMilli()
	if ts <= q.lastCreated {
		ts = q.lastCreated + 1
	}
	q.lastCreated = ts
	return ts
}

func newActionID() (string, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return "", err
	}
	return id.String(), nil
}

// IsValidationError reports whether err came from input validation in Add.
func IsValidationError(err error) bool {
	var verrs validator.ValidationErrors
	return errors.As(err, &verrs)
}
