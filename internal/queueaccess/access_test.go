package queueaccess_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"

	"yatrisync/internal/auth"
	"yatrisync/internal/config"
	"yatrisync/internal/daemon"
	"yatrisync/internal/ipc"
	"yatrisync/internal/logging"
	"yatrisync/internal/network"
	"yatrisync/internal/queueaccess"
	"yatrisync/internal/testsupport"
)

func prober(online *atomic.Bool) network.Prober {
	return network.ProberFunc(func(context.Context) (network.State, error) {
		if online.Load() {
			return network.State{Connected: true, Transport: network.TransportWiFi, Interfaces: []string{"wlan0"}}, nil
		}
		return network.State{Connected: false, Transport: network.TransportNone}, nil
	})
}

func localOpener(t *testing.T, cfg *config.Config, p network.Prober) func() (*daemon.Daemon, error) {
	t.Helper()
	return func() (*daemon.Daemon, error) {
		q := testsupport.NewQueue(t, cfg)
		return daemon.New(cfg, q, auth.NewMemoryStore(), logging.NewNop(), daemon.WithProber(p))
	}
}

func unreachable() (*ipc.Client, error) {
	return nil, errors.New("dial unix: no such file or directory")
}

func TestOpenWithFallbackUsesLocalDaemon(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	var online atomic.Bool

	session, err := queueaccess.OpenWithFallback(unreachable, localOpener(t, cfg, prober(&online)))
	if err != nil {
		t.Fatalf("OpenWithFallback: %v", err)
	}
	defer session.Close()

	access := session.Access
	if access.Remote() {
		t.Fatal("expected local access when the daemon is unreachable")
	}
	ctx := context.Background()
	for _, req := range []ipc.EnqueueRequest{
		{Kind: "bookmark", Endpoint: "/bookmarks", Method: "post", Payload: `{"id":"A"}`},
		{Kind: "bookmark", Endpoint: "/bookmarks/B", Method: "DELETE"},
	} {
		if _, err := access.Enqueue(ctx, req); err != nil {
			t.Fatalf("Enqueue %s: %v", req.Endpoint, err)
		}
	}

	got, err := access.List(ctx)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	want := []ipc.Action{
		{Kind: "bookmark", Endpoint: "/bookmarks", Method: "POST", Payload: `{"id":"A"}`},
		{Kind: "bookmark", Endpoint: "/bookmarks/B", Method: "DELETE"},
	}
	if diff := cmp.Diff(want, got, cmpopts.IgnoreFields(ipc.Action{}, "ID", "CreatedAt")); diff != "" {
		t.Fatalf("queue mismatch (-want +got):\n%s", diff)
	}

	status, err := access.Status(ctx)
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if status.Running || status.PID != 0 || status.Pending != 2 {
		t.Fatalf("unexpected local status: %+v", status)
	}
}

func TestLocalSyncProbesBeforeReplaying(t *testing.T) {
	var hits atomic.Int32
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusOK)
	}))
	defer backend.Close()

	cfg := testsupport.NewConfig(t, testsupport.WithAPIBaseURL(backend.URL))
	var online atomic.Bool
	session, err := queueaccess.OpenWithFallback(nil, localOpener(t, cfg, prober(&online)))
	if err != nil {
		t.Fatalf("OpenWithFallback: %v", err)
	}
	defer session.Close()
	access := session.Access
	ctx := context.Background()

	if _, err := access.Enqueue(ctx, ipc.EnqueueRequest{Kind: "note", Endpoint: "/notes", Method: "PUT", Payload: `{}`}); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}

	res, err := access.Sync(ctx)
	if err != nil {
		t.Fatalf("Sync offline: %v", err)
	}
	if res.Started || res.Skipped != "offline" {
		t.Fatalf("expected offline skip, got %+v", res)
	}
	if hits.Load() != 0 {
		t.Fatalf("backend contacted while offline")
	}

	online.Store(true)
	res, err = access.Sync(ctx)
	if err != nil {
		t.Fatalf("Sync online: %v", err)
	}
	if !res.Started || res.Replayed != 1 || res.Outcome != "ok" {
		t.Fatalf("unexpected sync result: %+v", res)
	}
	state, err := access.Network(ctx, false)
	if err != nil {
		t.Fatalf("Network: %v", err)
	}
	if !state.Connected || state.Transport != network.TransportWiFi {
		t.Fatalf("unexpected network state: %+v", state)
	}
	actions, err := access.List(ctx)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(actions) != 0 {
		t.Fatalf("expected empty queue, got %d actions", len(actions))
	}
}

func TestIPCAccessAgreesWithLocal(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	var online atomic.Bool
	d, err := localOpener(t, cfg, prober(&online))()
	if err != nil {
		t.Fatalf("daemon.New: %v", err)
	}
	t.Cleanup(func() {
		d.Close()
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	srv, err := ipc.NewServer(ctx, cfg.SocketPath(), d, logging.NewNop())
	if err != nil {
		if strings.Contains(err.Error(), "operation not permitted") {
			t.Skipf("skipping IPC test: %v", err)
		}
		t.Fatalf("ipc.NewServer: %v", err)
	}
	srv.Serve()
	defer srv.Close()

	session, err := queueaccess.OpenWithFallback(func() (*ipc.Client, error) {
		return ipc.Dial(cfg.SocketPath())
	}, nil)
	if err != nil {
		t.Fatalf("OpenWithFallback: %v", err)
	}
	defer session.Close()
	remote := session.Access
	if !remote.Remote() {
		t.Fatal("expected IPC access")
	}
	local := queueaccess.NewLocalAccess(d)

	if _, err := remote.Enqueue(ctx, ipc.EnqueueRequest{Kind: "todo", Endpoint: "/todos", Method: "PATCH", Payload: `{"done":true}`}); err != nil {
		t.Fatalf("remote Enqueue: %v", err)
	}
	viaIPC, err := remote.List(ctx)
	if err != nil {
		t.Fatalf("remote List: %v", err)
	}
	direct, err := local.List(ctx)
	if err != nil {
		t.Fatalf("local List: %v", err)
	}
	if diff := cmp.Diff(direct, viaIPC); diff != "" {
		t.Fatalf("IPC and local views differ (-local +ipc):\n%s", diff)
	}

	removed, err := remote.Clear(ctx)
	if err != nil || removed != 1 {
		t.Fatalf("remote Clear = %d, %v", removed, err)
	}
	if _, err := remote.AuthStatus(ctx); err != nil {
		t.Fatalf("remote AuthStatus: %v", err)
	}
}
