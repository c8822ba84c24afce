package main

import (
	"bytes"
	"context"
	"encoding/json"
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
	"yatrisync/internal/testsupport"
)

type cliTestEnv struct {
	cfg        *config.Config
	configPath string
	backend    *httptest.Server
	hits       *atomic.Int32
}

func setupCLITestEnv(t *testing.T) *cliTestEnv {
	t.Helper()
	hits := new(atomic.Int32)
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(backend.Close)

	cfg := testsupport.NewConfig(t, testsupport.WithAPIBaseURL(backend.URL))
	return &cliTestEnv{
		cfg:        cfg,
		configPath: testsupport.WriteConfig(t, cfg),
		backend:    backend,
		hits:       hits,
	}
}

// startDaemon runs a daemon and IPC server in-process on the env's socket.
func (e *cliTestEnv) startDaemon(t *testing.T) *daemon.Daemon {
	t.Helper()
	// Matches the monitor's optimistic start so no reconnect pass races the
	// commands under test.
	prober := network.ProberFunc(func(context.Context) (network.State, error) {
		return network.State{Connected: true}, nil
	})
	d, err := daemon.New(e.cfg, testsupport.NewQueue(t, e.cfg), auth.NewMemoryStore(), logging.NewNop(), daemon.WithProber(prober))
	if err != nil {
		t.Fatalf("daemon.New: %v", err)
	}
	t.Cleanup(func() {
		d.Close()
	})
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	if err := d.Start(ctx); err != nil {
		t.Fatalf("daemon Start: %v", err)
	}
	srv, err := ipc.NewServer(ctx, e.cfg.SocketPath(), d, logging.NewNop())
	if err != nil {
		if strings.Contains(err.Error(), "operation not permitted") {
			t.Skipf("skipping IPC CLI test: %v", err)
		}
		t.Fatalf("ipc.NewServer: %v", err)
	}
	srv.Serve()
	t.Cleanup(srv.Close)
	return d
}

func runCLI(t *testing.T, env *cliTestEnv, stdin string, args ...string) (string, string, error) {
	t.Helper()
	cmd := newRootCommand()
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetArgs(append([]string{"--config", env.configPath}, args...))
	err := cmd.ExecuteContext(context.Background())
	return stdout.String(), stderr.String(), err
}

func mustRunCLI(t *testing.T, env *cliTestEnv, args ...string) string {
	t.Helper()
	out, stderr, err := runCLI(t, env, "", args...)
	if err != nil {
		t.Fatalf("yatrisync %s: %v\nstderr: %s", strings.Join(args, " "), err, stderr)
	}
	return out
}

func TestQueueCommandsWithoutDaemon(t *testing.T) {
	env := setupCLITestEnv(t)

	out, stderr, err := runCLI(t, env, "", "queue", "add", "/bookmarks", "--kind", "bookmark", "-X", "put", "-d", `{"id":"A"}`)
	if err != nil {
		t.Fatalf("queue add: %v", err)
	}
	if !strings.Contains(out, "Queued PUT /bookmarks") {
		t.Fatalf("unexpected queue add output: %q", out)
	}
	if !strings.Contains(stderr, "Daemon not running") {
		t.Fatalf("expected local-mode notice on stderr, got %q", stderr)
	}

	if _, _, err := runCLI(t, env, `{"id":"B"}`, "queue", "add", "/bookmarks", "--kind", "bookmark", "--payload-file", "-"); err != nil {
		t.Fatalf("queue add from stdin: %v", err)
	}

	var actions []ipc.Action
	if err := json.Unmarshal([]byte(mustRunCLI(t, env, "queue", "list", "--json")), &actions); err != nil {
		t.Fatalf("decode queue list: %v", err)
	}
	want := []ipc.Action{
		{Kind: "bookmark", Endpoint: "/bookmarks", Method: "PUT", Payload: `{"id":"A"}`},
		{Kind: "bookmark", Endpoint: "/bookmarks", Method: "POST", Payload: `{"id":"B"}`},
	}
	if diff := cmp.Diff(want, actions, cmpopts.IgnoreFields(ipc.Action{}, "ID", "CreatedAt")); diff != "" {
		t.Fatalf("queue list mismatch (-want +got):\n%s", diff)
	}

	table := mustRunCLI(t, env, "queue", "list")
	if !strings.Contains(table, "ENDPOINT") || strings.Count(table, "/bookmarks") != 2 {
		t.Fatalf("unexpected table:\n%s", table)
	}

	if _, _, err := runCLI(t, env, "", "queue", "clear"); err == nil {
		t.Fatal("expected queue clear without --force to fail")
	}
	if out := mustRunCLI(t, env, "queue", "clear", "--force"); !strings.Contains(out, "Removed 2 action(s)") {
		t.Fatalf("unexpected clear output: %q", out)
	}
	if out := mustRunCLI(t, env, "queue", "list"); !strings.Contains(out, "Queue is empty") {
		t.Fatalf("expected empty queue, got %q", out)
	}
	if out := mustRunCLI(t, env, "queue", "dead-letters"); !strings.Contains(out, "No dropped actions") {
		t.Fatalf("unexpected dead letters output: %q", out)
	}
	if out := mustRunCLI(t, env, "queue", "health"); !strings.Contains(out, "Schema version:") {
		t.Fatalf("unexpected health output: %q", out)
	}
}

func TestQueueAddRejectsBadInput(t *testing.T) {
	env := setupCLITestEnv(t)

	if _, _, err := runCLI(t, env, "", "queue", "add", "/x", "--kind", "k", "-X", "GET"); err == nil {
		t.Fatal("expected GET to be rejected")
	}
	if _, _, err := runCLI(t, env, "", "queue", "add", "--kind", "k"); err == nil {
		t.Fatal("expected missing endpoint to be rejected")
	}
	if _, _, err := runCLI(t, env, "", "queue", "add", "/x", "--kind", "k", "-d", "{}", "--payload-file", "-"); err == nil {
		t.Fatal("expected --payload and --payload-file together to be rejected")
	}
}

func TestQueueAddWithoutKind(t *testing.T) {
	env := setupCLITestEnv(t)

	mustRunCLI(t, env, "queue", "add", "/bookings", "-d", `{"a":1}`)

	var actions []ipc.Action
	if err := json.Unmarshal([]byte(mustRunCLI(t, env, "queue", "list", "--json")), &actions); err != nil {
		t.Fatalf("decode queue list: %v", err)
	}
	if len(actions) != 1 || actions[0].Kind != "" || actions[0].Endpoint != "/bookings" {
		t.Fatalf("expected kindless action to be queued, got %+v", actions)
	}
}

func TestStatusWithoutDaemon(t *testing.T) {
	env := setupCLITestEnv(t)
	mustRunCLI(t, env, "queue", "add", "/notes", "--kind", "note", "-d", "{}")

	out := mustRunCLI(t, env, "status")
	if !strings.Contains(out, "Not running") {
		t.Fatalf("expected not-running status, got:\n%s", out)
	}
	if !strings.Contains(out, "1 action(s)") {
		t.Fatalf("expected local pending count, got:\n%s", out)
	}
}

func TestCommandsAgainstDaemon(t *testing.T) {
	env := setupCLITestEnv(t)
	env.startDaemon(t)

	out, stderr, err := runCLI(t, env, "", "queue", "add", "/todos/1", "--kind", "todo", "-X", "PATCH", "-d", `{"done":true}`)
	if err != nil {
		t.Fatalf("queue add: %v", err)
	}
	if strings.Contains(stderr, "Daemon not running") {
		t.Fatalf("expected IPC mode, got local notice")
	}
	if !strings.Contains(out, "Queued PATCH /todos/1") {
		t.Fatalf("unexpected output: %q", out)
	}

	var res ipc.SyncResult
	if err := json.Unmarshal([]byte(mustRunCLI(t, env, "sync", "--json")), &res); err != nil {
		t.Fatalf("decode sync: %v", err)
	}
	if !res.Started || res.Replayed != 1 || res.Outcome != "ok" {
		t.Fatalf("unexpected sync result: %+v", res)
	}
	if env.hits.Load() != 1 {
		t.Fatalf("expected one replayed request, got %d", env.hits.Load())
	}

	status := mustRunCLI(t, env, "status")
	for _, want := range []string{"Running (pid", "Online via Unknown", "ok at", "0 action(s)"} {
		if !strings.Contains(status, want) {
			t.Fatalf("status missing %q:\n%s", want, status)
		}
	}

	login := mustRunCLI(t, env, "auth", "login", "--token", "opaque-token")
	if !strings.Contains(login, "Token stored (opaque") || !strings.Contains(login, "nothing to sync") {
		t.Fatalf("unexpected login output: %q", login)
	}
	if out := mustRunCLI(t, env, "auth", "logout"); !strings.Contains(out, "Token removed") {
		t.Fatalf("unexpected logout output: %q", out)
	}
	if out := mustRunCLI(t, env, "auth", "status"); !strings.Contains(out, "No token stored") {
		t.Fatalf("unexpected auth status: %q", out)
	}
	if out := mustRunCLI(t, env, "test-notify"); !strings.Contains(out, "ntfy topic not configured") {
		t.Fatalf("unexpected test-notify output: %q", out)
	}
}

func TestAuthLoginReadsStdin(t *testing.T) {
	env := setupCLITestEnv(t)
	env.startDaemon(t)

	out, _, err := runCLI(t, env, "piped-token\n", "auth", "login")
	if err != nil {
		t.Fatalf("auth login: %v", err)
	}
	if !strings.Contains(out, "Token stored") {
		t.Fatalf("unexpected output: %q", out)
	}
	if _, _, err := runCLI(t, env, "", "auth", "login"); err == nil {
		t.Fatal("expected login with empty stdin to fail")
	}
}
