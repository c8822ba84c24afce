package syncer

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"yatrisync/internal/logging"
	"yatrisync/internal/queue"
)

// Backlog is the queue surface the engine drives.
type Backlog interface {
	Drain(ctx context.Context) ([]queue.Action, error)
	Acknowledge(ctx context.Context, id string) error
	RetryOrDrop(ctx context.Context, action queue.Action) (queue.Outcome, error)
	Drop(ctx context.Context, action queue.Action, reason string) (bool, error)
	MaxRetries() int
}

// Connectivity reports the last known network state without blocking.
type Connectivity interface {
	Connected() bool
}

// Requester performs one replay. Any non-nil error counts as a failed attempt.
type Requester interface {
	Request(ctx context.Context, method, endpoint string, payload []byte) error
}

// Notifier receives alerts about lost work. notifications.Service satisfies it.
type Notifier interface {
	NotifyActionDropped(ctx context.Context, action queue.Action, reason string) error
	NotifySyncCompleted(ctx context.Context, replayed, failed, dropped int, duration time.Duration) error
}

// SkipReason explains why a Sync call did nothing.
type SkipReason string

const (
	SkipInProgress SkipReason = "in_progress"
	SkipOffline    SkipReason = "offline"
)

// Result summarizes one Sync call.
type Result struct {
	Started  bool          `json:"started"`
	Skipped  SkipReason    `json:"skipped,omitempty"`
	Total    int           `json:"total"`
	Replayed int           `json:"replayed"`
	Failed   int           `json:"failed"`
	Dropped  int           `json:"dropped"`
	Duration time.Duration `json:"duration"`
	// Err is set when the backlog could not be read; the pass did nothing.
	Err error `json:"-"`
}

// Outcome is a short label for logs and metrics.
func (r Result) Outcome() string {
	switch {
	case r.Skipped != "":
		return "skipped_" + string(r.Skipped)
	case r.Err != nil:
		return "error"
	case r.Failed > 0 || r.Dropped > 0:
		return "partial"
	default:
		return "ok"
	}
}

// Engine replays queued actions.
type Engine struct {
	backlog  Backlog
	conn     Connectivity
	req      Requester
	logger   *slog.Logger
	metrics  *Metrics
	notifier Notifier

	inProgress atomic.Bool
}

// Option configures an Engine.
type Option func(*Engine)

func WithMetrics(m *Metrics) Option {
	return func(e *Engine) { e.metrics = m }
}

func WithNotifier(n Notifier) Option {
	return func(e *Engine) { e.notifier = n }
}

// New builds an engine. The requester is injected so the engine never has to
// locate the API client itself.
func New(backlog Backlog, conn Connectivity, req Requester, logger *slog.Logger, opts ...Option) *Engine {
	e := &Engine{
		backlog: backlog,
		conn:    conn,
		req:     req,
		logger:  logging.NewComponentLogger(logger, "sync-engine"),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// InProgress reports whether a pass is currently running.
func (e *Engine) InProgress() bool {
	return e.inProgress.Load()
}

// Sync runs one pass over the backlog. It never returns an error; failures
// are logged and summarized in the Result.
func (e *Engine) Sync(ctx context.Context) Result {
	// Claim the pass before anything that can block so that two callers
	// racing here cannot both proceed.
	if !e.inProgress.CompareAndSwap(false, true) {
		e.metrics.RecordPass(Result{Skipped: SkipInProgress}.Outcome())
		logging.WithContext(ctx, e.logger).Debug("sync already in progress; skipping")
		return Result{Skipped: SkipInProgress}
	}
	defer e.inProgress.Store(false)

	if !e.conn.Connected() {
		e.metrics.RecordPass(Result{Skipped: SkipOffline}.Outcome())
		logging.WithContext(ctx, e.logger).Debug("offline; skipping sync")
		return Result{Skipped: SkipOffline}
	}

	// A started pass has no cancellation handle.
	ctx = context.WithoutCancel(ctx)
	logger := logging.WithContext(ctx, e.logger)
	started := time.Now()
	result := e.run(ctx, logger)
	result.Started = true
	result.Duration = time.Since(started)

	e.metrics.RecordPass(result.Outcome())
	e.metrics.ObserveDuration(result.Duration)
	e.metrics.RecordActions(result.Replayed, result.Failed, result.Dropped)

	if result.Total > 0 || result.Err != nil {
		logger.Info("sync pass finished",
			logging.String(logging.FieldEventType, "sync_pass_finished"),
			logging.String("outcome", result.Outcome()),
			logging.Int("total", result.Total),
			logging.Int("replayed", result.Replayed),
			logging.Int("failed", result.Failed),
			logging.Int("dropped", result.Dropped),
			logging.Duration("duration", result.Duration),
		)
	}
	if result.Dropped > 0 && e.notifier != nil {
		if err := e.notifier.NotifySyncCompleted(ctx, result.Replayed, result.Failed, result.Dropped, result.Duration); err != nil {
			logger.Debug("sync summary notification failed", logging.Error(err))
		}
	}
	return result
}

func (e *Engine) run(ctx context.Context, logger *slog.Logger) Result {
	var result Result

	actions, err := e.backlog.Drain(ctx)
	if err != nil {
		logging.ErrorWithContext(logger, "failed to read queued actions", "sync_drain_failed",
			logging.String(logging.FieldErrorHint, "check the queue database with 'yatrisync status'"),
			logging.Error(err),
		)
		result.Err = err
		return result
	}
	result.Total = len(actions)
	if len(actions) == 0 {
		e.metrics.SetBacklog(0)
		return result
	}
	logger.Info("replaying queued actions", logging.Int("count", len(actions)))

	maxRetries := e.backlog.MaxRetries()
	for _, action := range actions {
		if action.Exhausted(maxRetries) {
			if e.drop(ctx, logger, action, queue.ReasonExhaustedOnDrain) {
				result.Dropped++
			}
			continue
		}
		if e.replay(ctx, logger, action) {
			result.Replayed++
			continue
		}
		result.Failed++
		outcome, err := e.backlog.RetryOrDrop(ctx, action)
		if err != nil {
			logging.ErrorWithContext(logger, "failed to record replay attempt", "sync_attempt_record_failed",
				logging.String(logging.FieldActionID, action.ID),
				logging.String(logging.FieldErrorHint, "the action stays queued with its previous attempt count"),
				logging.Error(err),
			)
			continue
		}
		if outcome.Dropped {
			result.Dropped++
			action.Attempts = outcome.Attempts
			e.notifyDropped(ctx, logger, action, queue.ReasonRetriesExhausted)
		}
	}

	e.metrics.SetBacklog(result.Total - result.Replayed - result.Dropped)
	return result
}

// replay sends one action and acknowledges it on success.
func (e *Engine) replay(ctx context.Context, logger *slog.Logger, action queue.Action) bool {
	err := e.req.Request(ctx, string(action.Method), action.Endpoint, action.Payload)
	if err != nil {
		logging.WarnWithContext(logger, "queued action replay failed", "action_replay_failed",
			logging.ActionAttrs(action.ID, action.Kind, string(action.Method), action.Endpoint,
				logging.Int(logging.FieldAttempts, action.Attempts+1),
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "check API availability and credentials"),
				logging.String(logging.FieldImpact, "action will be retried on the next sync"),
			)...,
		)
		return false
	}
	if err := e.backlog.Acknowledge(ctx, action.ID); err != nil {
		logging.ErrorWithContext(logger, "failed to remove replayed action", "sync_ack_failed",
			logging.String(logging.FieldActionID, action.ID),
			logging.String(logging.FieldErrorHint, "the server accepted the action; it may be sent again on the next sync"),
			logging.Error(err),
		)
	}
	logger.Debug("queued action replayed",
		logging.String(logging.FieldActionID, action.ID),
		logging.String(logging.FieldActionKind, action.Kind),
	)
	return true
}

func (e *Engine) drop(ctx context.Context, logger *slog.Logger, action queue.Action, reason string) bool {
	removed, err := e.backlog.Drop(ctx, action, reason)
	if err != nil {
		logging.ErrorWithContext(logger, "failed to drop exhausted action", "sync_drop_failed",
			logging.String(logging.FieldActionID, action.ID),
			logging.Error(err),
		)
		return false
	}
	if removed {
		e.notifyDropped(ctx, logger, action, reason)
	}
	return removed
}

func (e *Engine) notifyDropped(ctx context.Context, logger *slog.Logger, action queue.Action, reason string) {
	if e.notifier == nil {
		return
	}
	if err := e.notifier.NotifyActionDropped(ctx, action, reason); err != nil {
		logger.Debug("dropped-action notification failed",
			logging.String(logging.FieldActionID, action.ID),
			logging.Error(err),
		)
	}
}
