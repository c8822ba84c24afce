package daemon

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"yatrisync/internal/auth"
	"yatrisync/internal/logging"
	"yatrisync/internal/network"
	"yatrisync/internal/testsupport"
)

func newTestDaemon(t *testing.T) *Daemon {
	t.Helper()
	cfg := testsupport.NewConfig(t)
	prober := network.ProberFunc(func(context.Context) (network.State, error) {
		return network.State{Connected: true, Transport: network.TransportWiFi}, nil
	})
	d, err := New(cfg, testsupport.NewQueue(t, cfg), auth.NewMemoryStore(), logging.NewNop(), WithProber(prober))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return d
}

func get(t *testing.T, h http.Handler, path, token string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func TestHealthzIsOpen(t *testing.T) {
	d := newTestDaemon(t)
	h := newRouter(d, "secret")

	w := get(t, h, "/healthz", "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200 OK, got %d: %s", w.Code, w.Body.String())
	}
	var resp healthResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.Status != "ok" {
		t.Fatalf("unexpected health status %q", resp.Status)
	}
}

func TestStatusRequiresToken(t *testing.T) {
	d := newTestDaemon(t)
	h := newRouter(d, "secret")

	if w := get(t, h, "/status", ""); w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", w.Code)
	}
	if w := get(t, h, "/status", "wrong"); w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 with wrong token, got %d", w.Code)
	}
	w := get(t, h, "/status", "secret")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200 OK, got %d", w.Code)
	}
	var resp statusResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.Running || resp.Pending != 0 || resp.MaxRetries != 3 {
		t.Fatalf("unexpected status %+v", resp)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	d := newTestDaemon(t)
	h := newRouter(d, "")
	d.SyncNow(context.Background())

	w := get(t, h, "/metrics", "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200 OK, got %d", w.Code)
	}
	body, _ := io.ReadAll(w.Body)
	for _, want := range []string{"yatrisync_sync_backlog", `yatrisync_sync_passes_total{outcome="ok"} 1`} {
		if !strings.Contains(string(body), want) {
			t.Fatalf("metrics output missing %q", want)
		}
	}
}
