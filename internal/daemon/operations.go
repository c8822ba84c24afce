package daemon

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"yatrisync/internal/auth"
	"yatrisync/internal/logging"
	"yatrisync/internal/network"
	"yatrisync/internal/queue"
	"yatrisync/internal/syncer"
	"yatrisync/internal/trigger"
)

// Enqueue validates and stores an action. Unlike queue.Queue.Enqueue it
// reports failures, because the caller here is an operator at a terminal.
func (d *Daemon) Enqueue(ctx context.Context, kind, endpoint, method string, payload []byte) (queue.Action, error) {
	parsed, err := queue.ParseMethod(method)
	if err != nil {
		return queue.Action{}, err
	}
	action, err := d.queue.Add(ctx, kind, endpoint, parsed, payload)
	if err != nil {
		return queue.Action{}, err
	}
	d.logger.Info("action queued via daemon",
		logging.Args(logging.ActionAttrs(action.ID, action.Kind, string(action.Method), action.Endpoint)...)...,
	)
	d.refreshBacklog(ctx)
	return action, nil
}

// ListQueue returns the backlog oldest first.
func (d *Daemon) ListQueue(ctx context.Context) ([]queue.Action, error) {
	return d.queue.Drain(ctx)
}

// ClearQueue discards every queued action.
func (d *Daemon) ClearQueue(ctx context.Context) (int64, error) {
	n, err := d.queue.Clear(ctx)
	if err != nil {
		return 0, err
	}
	d.metrics.SetBacklog(0)
	return n, nil
}

// DeadLetters returns dropped actions, most recent first.
func (d *Daemon) DeadLetters(ctx context.Context) ([]queue.DeadLetter, error) {
	return d.queue.Store().ListDeadLetters(ctx)
}

// PurgeDeadLetters removes every dead letter.
func (d *Daemon) PurgeDeadLetters(ctx context.Context) (int64, error) {
	return d.queue.Store().ClearDeadLetters(ctx)
}

// DatabaseHealth returns detailed database diagnostics.
func (d *Daemon) DatabaseHealth(ctx context.Context) (queue.DatabaseHealth, error) {
	return d.queue.Store().CheckHealth(ctx)
}

// SyncNow runs an explicit pass.
func (d *Daemon) SyncNow(ctx context.Context) syncer.Result {
	return trigger.Now(ctx, d, trigger.ReasonManual, d.logger)
}

// NetworkState returns the monitor's last known state without probing.
func (d *Daemon) NetworkState() network.State {
	return d.monitor.State()
}

// CheckNetwork probes connectivity now. A transition to connected wakes the
// reconnect trigger like any other change.
func (d *Daemon) CheckNetwork(ctx context.Context) network.State {
	return d.monitor.CheckConnection(ctx)
}

// AuthStatus describes the stored credential.
type AuthStatus struct {
	HasToken bool
	Opaque   bool
	Expired  bool
	Info     auth.TokenInfo
}

// AuthStatus inspects the stored token without contacting the server.
func (d *Daemon) AuthStatus() (AuthStatus, error) {
	return InspectToken(d.tokens, time.Now())
}

// InspectToken summarizes the token held by store. It is shared with the CLI
// for use when no daemon is running.
func InspectToken(store auth.Store, now time.Time) (AuthStatus, error) {
	token, err := store.Token()
	if errors.Is(err, auth.ErrTokenNotFound) {
		return AuthStatus{}, nil
	}
	if err != nil {
		return AuthStatus{}, err
	}
	status := AuthStatus{HasToken: true}
	info, err := auth.Inspect(token)
	switch {
	case errors.Is(err, auth.ErrOpaqueToken):
		status.Opaque = true
	case err != nil:
		return status, err
	default:
		status.Info = info
		status.Expired = info.Expired(now)
	}
	return status, nil
}

// LoginResult reports the stored credential and the sync it triggered.
type LoginResult struct {
	Auth AuthStatus
	Sync syncer.Result
}

// Login stores token and immediately replays anything that was waiting on
// credentials.
func (d *Daemon) Login(ctx context.Context, token string) (LoginResult, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return LoginResult{}, errors.New("token is required")
	}
	if err := d.tokens.SetToken(token); err != nil {
		return LoginResult{}, fmt.Errorf("store token: %w", err)
	}
	status, err := d.AuthStatus()
	if err != nil {
		d.logger.Debug("token inspection failed", logging.Error(err))
	}
	if status.Expired {
		logging.WarnWithContext(d.logger, "stored token is already expired", "auth_token_expired",
			logging.String("expires_at", status.Info.ExpiresAt.Format(time.RFC3339)),
			logging.String(logging.FieldErrorHint, "obtain a fresh token and run 'yatrisync auth login' again"),
			logging.String(logging.FieldImpact, "replays will be rejected with 401 and count against retries"),
		)
	}
	d.logger.Info("auth token stored", logging.String(logging.FieldEventType, "auth_login"))
	result := LoginResult{Auth: status}
	result.Sync = trigger.Now(ctx, d, trigger.ReasonLogin, d.logger)
	return result, nil
}

// Logout deletes the stored token. Logging out twice is not an error.
func (d *Daemon) Logout() error {
	if err := d.tokens.DeleteToken(); err != nil && !errors.Is(err, auth.ErrTokenNotFound) {
		return err
	}
	d.logger.Info("auth token removed", logging.String(logging.FieldEventType, "auth_logout"))
	return nil
}

// TestNotification sends a test notification using the current configuration.
func (d *Daemon) TestNotification(ctx context.Context) (bool, string, error) {
	if strings.TrimSpace(d.cfg.Notifications.NtfyTopic) == "" {
		return false, "ntfy topic not configured", nil
	}
	if err := d.notifier.TestNotification(ctx); err != nil {
		return false, "failed to send notification", err
	}
	return true, "test notification sent", nil
}
