package ipc

import (
	"yatrisync/internal/daemon"
	"yatrisync/internal/network"
	"yatrisync/internal/queue"
	"yatrisync/internal/syncer"
)

// Action is the wire form of a queued action.
type Action struct {
	ID        string `json:"id"`
	Kind      string `json:"kind"`
	Endpoint  string `json:"endpoint"`
	Method    string `json:"method"`
	Payload   string `json:"payload,omitempty"`
	CreatedAt int64  `json:"created_at"`
	Attempts  int    `json:"attempts"`
}

// DeadLetter is the wire form of a dropped action.
type DeadLetter struct {
	Action
	DroppedAt int64  `json:"dropped_at"`
	Reason    string `json:"reason"`
}

// SyncResult is the wire form of syncer.Result.
type SyncResult struct {
	Started        bool   `json:"started"`
	Skipped        string `json:"skipped,omitempty"`
	Outcome        string `json:"outcome"`
	Total          int    `json:"total"`
	Replayed       int    `json:"replayed"`
	Failed         int    `json:"failed"`
	Dropped        int    `json:"dropped"`
	DurationMillis int64  `json:"duration_ms"`
	Error          string `json:"error,omitempty"`
}

// NetworkState mirrors the monitor snapshot.
type NetworkState = network.State

// AuthStatus describes the stored credential.
type AuthStatus struct {
	HasToken  bool   `json:"has_token"`
	Opaque    bool   `json:"opaque"`
	Expired   bool   `json:"expired"`
	Subject   string `json:"subject,omitempty"`
	Issuer    string `json:"issuer,omitempty"`
	ExpiresAt int64  `json:"expires_at,omitempty"`
}

// StatusRequest fetches daemon status.
type StatusRequest struct{}

// StatusResponse represents combined daemon, queue, and network status.
type StatusResponse struct {
	Running        bool         `json:"running"`
	PID            int          `json:"pid"`
	QueueDBPath    string       `json:"queue_db_path"`
	LockPath       string       `json:"lock_path"`
	Pending        int          `json:"pending"`
	DeadLetters    int          `json:"dead_letters"`
	MaxRetries     int          `json:"max_retries"`
	Network        NetworkState `json:"network"`
	SyncInProgress bool         `json:"sync_in_progress"`
	LastSync       *SyncResult  `json:"last_sync,omitempty"`
	LastSyncAt     int64        `json:"last_sync_at,omitempty"`
	QueueError     string       `json:"queue_error,omitempty"`
}

// EnqueueRequest adds an action to the queue.
type EnqueueRequest struct {
	Kind     string `json:"kind"`
	Endpoint string `json:"endpoint"`
	Method   string `json:"method"`
	Payload  string `json:"payload,omitempty"`
}

// EnqueueResponse returns the stored action.
type EnqueueResponse struct {
	Action Action `json:"action"`
}

// QueueListRequest lists the backlog.
type QueueListRequest struct{}

// QueueListResponse contains the backlog oldest first.
type QueueListResponse struct {
	Actions []Action `json:"actions"`
}

// QueueClearRequest removes all queued actions.
type QueueClearRequest struct{}

// QueueClearResponse reports how many actions were removed.
type QueueClearResponse struct {
	Removed int64 `json:"removed"`
}

// DeadLettersRequest lists dropped actions, purging them when Purge is set.
type DeadLettersRequest struct {
	Purge bool `json:"purge"`
}

// DeadLettersResponse contains dropped actions, or the purge count.
type DeadLettersResponse struct {
	Letters []DeadLetter `json:"letters"`
	Purged  int64        `json:"purged"`
}

// SyncRequest runs an explicit sync pass.
type SyncRequest struct{}

// SyncResponse reports the pass.
type SyncResponse struct {
	Result SyncResult `json:"result"`
}

// NetworkRequest reads connectivity, probing first when Probe is set.
type NetworkRequest struct {
	Probe bool `json:"probe"`
}

// NetworkResponse contains the connectivity snapshot.
type NetworkResponse struct {
	State NetworkState `json:"state"`
}

// LoginRequest stores a bearer token.
type LoginRequest struct {
	Token string `json:"token"`
}

// LoginResponse reports the stored token and the sync it triggered.
type LoginResponse struct {
	Auth AuthStatus `json:"auth"`
	Sync SyncResult `json:"sync"`
}

// LogoutRequest removes the stored token.
type LogoutRequest struct{}

// LogoutResponse confirms logout.
type LogoutResponse struct {
	LoggedOut bool `json:"logged_out"`
}

// AuthStatusRequest inspects the stored token.
type AuthStatusRequest struct{}

// AuthStatusResponse describes the stored token.
type AuthStatusResponse struct {
	Auth AuthStatus `json:"auth"`
}

// DatabaseHealthRequest requests detailed database diagnostics.
type DatabaseHealthRequest struct{}

// DatabaseHealthResponse returns database diagnostics.
type DatabaseHealthResponse struct {
	queue.DatabaseHealth
}

// TestNotificationRequest triggers a test notification.
type TestNotificationRequest struct{}

// TestNotificationResponse reports notification outcome.
type TestNotificationResponse struct {
	Sent    bool   `json:"sent"`
	Message string `json:"message"`
}

// FromStatus converts a daemon status snapshot to its wire form.
func FromStatus(status daemon.Status) StatusResponse {
	resp := StatusResponse{
		Running:        status.Running,
		PID:            status.PID,
		QueueDBPath:    status.QueueDBPath,
		LockPath:       status.LockFilePath,
		Pending:        status.Pending,
		DeadLetters:    status.DeadLetters,
		MaxRetries:     status.MaxRetries,
		Network:        status.Network,
		SyncInProgress: status.SyncInProgress,
		QueueError:     status.QueueError,
	}
	if status.LastSync != nil {
		last := FromResult(*status.LastSync)
		resp.LastSync = &last
		resp.LastSyncAt = status.LastSyncAt.UnixMilli()
	}
	return resp
}

// FromAction converts a queue action to its wire form.
func FromAction(a queue.Action) Action {
	return Action{
		ID:        a.ID,
		Kind:      a.Kind,
		Endpoint:  a.Endpoint,
		Method:    string(a.Method),
		Payload:   string(a.Payload),
		CreatedAt: a.CreatedAt,
		Attempts:  a.Attempts,
	}
}

// FromDeadLetter converts a dead letter to its wire form.
func FromDeadLetter(l queue.DeadLetter) DeadLetter {
	return DeadLetter{Action: FromAction(l.Action), DroppedAt: l.DroppedAt, Reason: l.Reason}
}

// FromResult converts a sync result to its wire form.
func FromResult(r syncer.Result) SyncResult {
	out := SyncResult{
		Started:        r.Started,
		Skipped:        string(r.Skipped),
		Outcome:        r.Outcome(),
		Total:          r.Total,
		Replayed:       r.Replayed,
		Failed:         r.Failed,
		Dropped:        r.Dropped,
		DurationMillis: r.Duration.Milliseconds(),
	}
	if r.Err != nil {
		out.Error = r.Err.Error()
	}
	return out
}

// FromAuthStatus converts the daemon's credential summary to its wire form.
func FromAuthStatus(s daemon.AuthStatus) AuthStatus {
	out := AuthStatus{
		HasToken: s.HasToken,
		Opaque:   s.Opaque,
		Expired:  s.Expired,
		Subject:  s.Info.Subject,
		Issuer:   s.Info.Issuer,
	}
	if !s.Info.ExpiresAt.IsZero() {
		out.ExpiresAt = s.Info.ExpiresAt.Unix()
	}
	return out
}
