package logging_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"yatrisync/internal/config"
	"yatrisync/internal/logging"
)

func newFileLogger(t *testing.T) (string, func() string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "out.log")
	return path, func() string {
		data, err := os.ReadFile(path)
		if err != nil {
			t.Fatalf("read log file: %v", err)
		}
		return string(data)
	}
}

func TestNewFromConfigCreatesLogFile(t *testing.T) {
	cfg := config.Default()
	cfg.Paths.LogDir = filepath.Join(t.TempDir(), "logs")

	logger, err := logging.NewFromConfig(&cfg)
	if err != nil {
		t.Fatalf("NewFromConfig returned error: %v", err)
	}
	logger.Info("hello")
	if _, err := os.Stat(cfg.LogPath()); err != nil {
		t.Fatalf("expected log file at %s: %v", cfg.LogPath(), err)
	}
}

func TestConsoleLoggerFormatsComponentAndFields(t *testing.T) {
	path, read := newFileLogger(t)
	logger, err := logging.New(logging.Options{Format: "console", Level: "info", OutputPaths: []string{path}})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}

	component := logging.NewComponentLogger(logger, "sync-engine")
	component.Info("sync pass finished", logging.Int("replayed", 3), logging.String("note", "two words"))
	component.Debug("hidden")

	out := read()
	if !strings.Contains(out, " INFO sync-engine: sync pass finished") {
		t.Fatalf("missing component prefix: %q", out)
	}
	if !strings.Contains(out, "replayed=3") || !strings.Contains(out, `note="two words"`) {
		t.Fatalf("missing formatted fields: %q", out)
	}
	if strings.Contains(out, "component=") {
		t.Fatalf("component should be hoisted out of fields: %q", out)
	}
	if strings.Contains(out, "hidden") {
		t.Fatalf("debug line leaked at info level: %q", out)
	}
	if strings.Contains(out, ".go:") {
		t.Fatalf("expected no caller information at info level: %q", out)
	}
}

func TestJSONLoggerRenamesKeys(t *testing.T) {
	path, read := newFileLogger(t)
	logger, err := logging.New(logging.Options{Format: "json", Level: "info", OutputPaths: []string{path}})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	logger.Warn("careful")
	out := read()
	if !strings.Contains(out, `"ts":`) || !strings.Contains(out, `"level":"warn"`) {
		t.Fatalf("unexpected json shape: %q", out)
	}
}

func TestNewRejectsUnknownFormat(t *testing.T) {
	if _, err := logging.New(logging.Options{Format: "xml"}); err == nil {
		t.Fatal("expected error for unsupported format")
	}
}

func TestWarnWithContextInjectsDefaults(t *testing.T) {
	path, read := newFileLogger(t)
	logger, err := logging.New(logging.Options{Format: "console", OutputPaths: []string{path}})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	logging.WarnWithContext(logger, "replay failed", "action_replay_failed",
		logging.String(logging.FieldImpact, "action will be retried"),
		logging.Error(errors.New("boom")),
	)
	out := read()
	for _, want := range []string{"event_type=action_replay_failed", `error_hint="check logs for details"`, `impact="action will be retried"`, "error=boom"} {
		if !strings.Contains(out, want) {
			t.Fatalf("expected %q in %q", want, out)
		}
	}
}

func TestWithContextAddsActionAndTrigger(t *testing.T) {
	path, read := newFileLogger(t)
	logger, err := logging.New(logging.Options{Format: "console", OutputPaths: []string{path}})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	ctx := logging.WithTrigger(logging.WithActionID(context.Background(), "abc"), "reconnect")
	logging.WithContext(ctx, logger).Info("tagged")
	out := read()
	if !strings.Contains(out, "action_id=abc") || !strings.Contains(out, "trigger=reconnect") {
		t.Fatalf("expected context fields in %q", out)
	}
	if trigger, ok := logging.TriggerFromContext(ctx); !ok || trigger != "reconnect" {
		t.Fatalf("unexpected trigger %q ok=%v", trigger, ok)
	}
}

func TestNopLoggerIsSafe(t *testing.T) {
	logging.NewNop().Error("discarded")
	logging.WarnWithContext(nil, "ignored", "noop")
	logging.NewComponentLogger(nil, "x").Info("discarded")
}

func TestActionAttrsOmitsEmptyID(t *testing.T) {
	attrs := logging.ActionAttrs("", "booking", "POST", "/bookings", logging.Int(logging.FieldAttempts, 2))
	keys := make([]string, 0, len(attrs))
	for _, a := range attrs {
		keys = append(keys, a.Key)
	}
	want := strings.Join([]string{logging.FieldActionKind, logging.FieldMethod, logging.FieldEndpoint, logging.FieldAttempts}, ",")
	if got := strings.Join(keys, ","); got != want {
		t.Fatalf("keys = %s, want %s", got, want)
	}

	withID := logging.ActionAttrs("01J", "booking", "POST", "/bookings")
	if withID[0].Key != logging.FieldActionID || withID[0].Value.String() != "01J" {
		t.Fatalf("expected action_id first, got %v", withID[0])
	}
}
