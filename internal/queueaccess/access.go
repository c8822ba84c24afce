package queueaccess

import (
	"context"

	"yatrisync/internal/daemon"
	"yatrisync/internal/ipc"
)

// Access provides queue and sync operations regardless of whether a running
// daemon or a local, unstarted one backs them.
type Access interface {
	Status(ctx context.Context) (ipc.StatusResponse, error)
	Enqueue(ctx context.Context, req ipc.EnqueueRequest) (ipc.Action, error)
	List(ctx context.Context) ([]ipc.Action, error)
	Clear(ctx context.Context) (int64, error)
	DeadLetters(ctx context.Context) ([]ipc.DeadLetter, error)
	PurgeDeadLetters(ctx context.Context) (int64, error)
	Sync(ctx context.Context) (ipc.SyncResult, error)
	Network(ctx context.Context, probe bool) (ipc.NetworkState, error)
	Login(ctx context.Context, token string) (ipc.LoginResponse, error)
	Logout(ctx context.Context) error
	AuthStatus(ctx context.Context) (ipc.AuthStatus, error)
	DatabaseHealth(ctx context.Context) (ipc.DatabaseHealthResponse, error)
	TestNotification(ctx context.Context) (ipc.TestNotificationResponse, error)
	// Remote reports whether calls go through a running daemon.
	Remote() bool
}

// NewIPCAccess returns an Access backed by daemon IPC.
func NewIPCAccess(client *ipc.Client) Access {
	return &ipcAccess{client: client}
}

// NewLocalAccess returns an Access backed by a daemon that was constructed
// but never started. It holds no lock and watches nothing.
func NewLocalAccess(d *daemon.Daemon) Access {
	return &localAccess{daemon: d}
}

type ipcAccess struct {
	client *ipc.Client
}

func (a *ipcAccess) Remote() bool { return true }

func (a *ipcAccess) Status(context.Context) (ipc.StatusResponse, error) {
	resp, err := a.client.Status()
	if err != nil {
		return ipc.StatusResponse{}, err
	}
	return *resp, nil
}

func (a *ipcAccess) Enqueue(_ context.Context, req ipc.EnqueueRequest) (ipc.Action, error) {
	resp, err := a.client.Enqueue(req)
	if err != nil {
		return ipc.Action{}, err
	}
	return resp.Action, nil
}

func (a *ipcAccess) List(context.Context) ([]ipc.Action, error) {
	resp, err := a.client.QueueList()
	if err != nil {
		return nil, err
	}
	return resp.Actions, nil
}

func (a *ipcAccess) Clear(context.Context) (int64, error) {
	resp, err := a.client.QueueClear()
	if err != nil {
		return 0, err
	}
	return resp.Removed, nil
}

func (a *ipcAccess) DeadLetters(context.Context) ([]ipc.DeadLetter, error) {
	resp, err := a.client.DeadLetters(false)
	if err != nil {
		return nil, err
	}
	return resp.Letters, nil
}

func (a *ipcAccess) PurgeDeadLetters(context.Context) (int64, error) {
	resp, err := a.client.DeadLetters(true)
	if err != nil {
		return 0, err
	}
	return resp.Purged, nil
}

func (a *ipcAccess) Sync(context.Context) (ipc.SyncResult, error) {
	resp, err := a.client.Sync()
	if err != nil {
		return ipc.SyncResult{}, err
	}
	return resp.Result, nil
}

func (a *ipcAccess) Network(_ context.Context, probe bool) (ipc.NetworkState, error) {
	resp, err := a.client.Network(probe)
	if err != nil {
		return ipc.NetworkState{}, err
	}
	return resp.State, nil
}

func (a *ipcAccess) Login(_ context.Context, token string) (ipc.LoginResponse, error) {
	resp, err := a.client.Login(token)
	if err != nil {
		return ipc.LoginResponse{}, err
	}
	return *resp, nil
}

func (a *ipcAccess) Logout(context.Context) error {
	_, err := a.client.Logout()
	return err
}

func (a *ipcAccess) AuthStatus(context.Context) (ipc.AuthStatus, error) {
	resp, err := a.client.AuthStatus()
	if err != nil {
		return ipc.AuthStatus{}, err
	}
	return resp.Auth, nil
}

func (a *ipcAccess) DatabaseHealth(context.Context) (ipc.DatabaseHealthResponse, error) {
	resp, err := a.client.DatabaseHealth()
	if err != nil {
		return ipc.DatabaseHealthResponse{}, err
	}
	return *resp, nil
}

func (a *ipcAccess) TestNotification(context.Context) (ipc.TestNotificationResponse, error) {
	resp, err := a.client.TestNotification()
	if err != nil {
		return ipc.TestNotificationResponse{}, err
	}
	return *resp, nil
}

type localAccess struct {
	daemon *daemon.Daemon
}

func (a *localAccess) Remote() bool { return false }

func (a *localAccess) Status(ctx context.Context) (ipc.StatusResponse, error) {
	resp := ipc.FromStatus(a.daemon.Status(ctx))
	// The local daemon lives inside the CLI process.
	resp.PID = 0
	return resp, nil
}

func (a *localAccess) Enqueue(ctx context.Context, req ipc.EnqueueRequest) (ipc.Action, error) {
	var payload []byte
	if req.Payload != "" {
		payload = []byte(req.Payload)
	}
	action, err := a.daemon.Enqueue(ctx, req.Kind, req.Endpoint, req.Method, payload)
	if err != nil {
		return ipc.Action{}, err
	}
	return ipc.FromAction(action), nil
}

func (a *localAccess) List(ctx context.Context) ([]ipc.Action, error) {
	actions, err := a.daemon.ListQueue(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]ipc.Action, 0, len(actions))
	for _, action := range actions {
		out = append(out, ipc.FromAction(action))
	}
	return out, nil
}

func (a *localAccess) Clear(ctx context.Context) (int64, error) {
	return a.daemon.ClearQueue(ctx)
}

func (a *localAccess) DeadLetters(ctx context.Context) ([]ipc.DeadLetter, error) {
	letters, err := a.daemon.DeadLetters(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]ipc.DeadLetter, 0, len(letters))
	for _, letter := range letters {
		out = append(out, ipc.FromDeadLetter(letter))
	}
	return out, nil
}

func (a *localAccess) PurgeDeadLetters(ctx context.Context) (int64, error) {
	return a.daemon.PurgeDeadLetters(ctx)
}

// Sync probes connectivity first because the local monitor never ran and
// still holds its optimistic initial state.
func (a *localAccess) Sync(ctx context.Context) (ipc.SyncResult, error) {
	a.daemon.CheckNetwork(ctx)
	return ipc.FromResult(a.daemon.SyncNow(ctx)), nil
}

func (a *localAccess) Network(ctx context.Context, probe bool) (ipc.NetworkState, error) {
	if probe {
		return a.daemon.CheckNetwork(ctx), nil
	}
	return a.daemon.NetworkState(), nil
}

func (a *localAccess) Login(ctx context.Context, token string) (ipc.LoginResponse, error) {
	a.daemon.CheckNetwork(ctx)
	result, err := a.daemon.Login(ctx, token)
	if err != nil {
		return ipc.LoginResponse{}, err
	}
	return ipc.LoginResponse{Auth: ipc.FromAuthStatus(result.Auth), Sync: ipc.FromResult(result.Sync)}, nil
}

func (a *localAccess) Logout(context.Context) error {
	return a.daemon.Logout()
}

func (a *localAccess) AuthStatus(context.Context) (ipc.AuthStatus, error) {
	status, err := a.daemon.AuthStatus()
	if err != nil {
		return ipc.AuthStatus{}, err
	}
	return ipc.FromAuthStatus(status), nil
}

func (a *localAccess) DatabaseHealth(ctx context.Context) (ipc.DatabaseHealthResponse, error) {
	health, err := a.daemon.DatabaseHealth(ctx)
	if err != nil && health.Error == "" {
		return ipc.DatabaseHealthResponse{}, err
	}
	return ipc.DatabaseHealthResponse{DatabaseHealth: health}, nil
}

func (a *localAccess) TestNotification(ctx context.Context) (ipc.TestNotificationResponse, error) {
	sent, message, err := a.daemon.TestNotification(ctx)
	if err != nil {
		return ipc.TestNotificationResponse{}, err
	}
	return ipc.TestNotificationResponse{Sent: sent, Message: message}, nil
}
