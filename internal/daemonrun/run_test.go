package daemonrun_test

import (
	"context"
	"errors"
	"os"
	"testing"

	"github.com/gofrs/flock"

	"yatrisync/internal/auth"
	"yatrisync/internal/daemonrun"
	"yatrisync/internal/logging"
	"yatrisync/internal/testsupport"
)

func TestRunRefusesWhenLockHeld(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	lock := flock.New(cfg.LockPath())
	locked, err := lock.TryLock()
	if err != nil || !locked {
		t.Fatalf("TryLock = %v, %v", locked, err)
	}
	defer lock.Unlock()

	if err := daemonrun.Run(context.Background(), cfg, daemonrun.Options{LogLevel: "error"}); err == nil {
		t.Fatal("expected Run to fail while another instance holds the lock")
	}
	if _, err := os.Stat(cfg.PIDPath()); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("pid file must not be written by a refused instance: %v", err)
	}
}

func TestOpenQueueUsesConfiguredRetries(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithMaxRetries(5))
	q := daemonrun.OpenQueue(cfg, logging.NewNop())
	defer q.Store().Close()

	if q.MaxRetries() != 5 {
		t.Fatalf("MaxRetries = %d, want 5", q.MaxRetries())
	}
	if q.Store().Path() != cfg.QueuePath() {
		t.Fatalf("store path = %s, want %s", q.Store().Path(), cfg.QueuePath())
	}
}

func TestTokenStorePrefersStaticToken(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.API.Token = "static-token"

	token, err := daemonrun.TokenStore(cfg).Token()
	if err != nil || token != "static-token" {
		t.Fatalf("Token = %q, %v", token, err)
	}

	cfg.API.Token = ""
	if _, err := daemonrun.TokenStore(cfg).Token(); !errors.Is(err, auth.ErrTokenNotFound) {
		t.Fatalf("expected ErrTokenNotFound from empty memory store, got %v", err)
	}
}
