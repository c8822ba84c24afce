package network

import (
	"context"
	"testing"

	"github.com/pilebones/go-udev/netlink"
)

func TestNetlinkWatcherNilSafety(t *testing.T) {
	t.Run("nil watcher", func(t *testing.T) {
		var w *NetlinkWatcher
		if err := w.Start(context.Background(), nil); err != nil {
			t.Fatalf("Start on nil watcher should return nil, got: %v", err)
		}
		w.Stop()
		if w.Running() {
			t.Error("nil watcher should not be running")
		}
	})

	t.Run("stop before start", func(t *testing.T) {
		w := NewNetlinkWatcher(nil)
		w.Stop()
		w.Stop()
		if w.Running() {
			t.Error("expected Running() false after Stop on unstarted watcher")
		}
	})

	t.Run("start without privileges is non-fatal", func(t *testing.T) {
		w := NewNetlinkWatcher(nil)
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		if err := w.Start(ctx, func(string) {}); err != nil {
			t.Fatalf("Start should never fail hard, got %v", err)
		}
		w.Stop()
	})
}

func TestBuildMatcher(t *testing.T) {
	matcher := buildMatcher()
	if matcher == nil {
		t.Fatal("expected non-nil matcher")
	}

	for _, action := range []netlink.KObjAction{netlink.ADD, netlink.REMOVE, netlink.CHANGE, netlink.ONLINE, netlink.OFFLINE} {
		event := netlink.UEvent{Action: action, Env: map[string]string{"SUBSYSTEM": "net", "INTERFACE": "wlan0"}}
		if !matcher.Evaluate(event) {
			t.Errorf("expected matcher to accept %s on net", action)
		}
	}

	block := netlink.UEvent{Action: netlink.ADD, Env: map[string]string{"SUBSYSTEM": "block"}}
	if matcher.Evaluate(block) {
		t.Error("expected matcher to reject block subsystem")
	}
}

func TestDescribe(t *testing.T) {
	w := NewNetlinkWatcher(nil, "docker0")

	if _, ok := w.describe(netlink.UEvent{Action: netlink.ADD, Env: map[string]string{}}); ok {
		t.Error("event without INTERFACE should be ignored")
	}
	if _, ok := w.describe(netlink.UEvent{Action: netlink.ADD, Env: map[string]string{"INTERFACE": "docker0"}}); ok {
		t.Error("ignored interface should be dropped")
	}
	reason, ok := w.describe(netlink.UEvent{Action: netlink.ONLINE, Env: map[string]string{"INTERFACE": "wlan0"}})
	if !ok || reason != "netlink online wlan0" {
		t.Errorf("unexpected reason %q ok=%v", reason, ok)
	}
}
