package network

import (
	"context"
	"log/slog"
	"slices"
	"sync"

	"github.com/pilebones/go-udev/netlink"

	"yatrisync/internal/logging"
)

// Watcher signals that connectivity may have changed.
type Watcher interface {
	Start(ctx context.Context, notify func(reason string)) error
	Stop()
}

// NetlinkWatcher listens for udev netlink events on the net subsystem
// (interfaces appearing, disappearing, or changing state).
type NetlinkWatcher struct {
	logger *slog.Logger
	ignore []string

	mu      sync.Mutex
	conn    *netlink.UEventConn
	quit    chan struct{}
	running bool
}

// NewNetlinkWatcher creates a watcher. Events for ignored interfaces are dropped.
func NewNetlinkWatcher(logger *slog.Logger, ignore ...string) *NetlinkWatcher {
	return &NetlinkWatcher{
		logger: logging.NewComponentLogger(logger, "netlink-watcher"),
		ignore: ignore,
	}
}

// Start connects to the udev netlink socket. A connection failure is logged
// and not returned; the monitor keeps working from polling.
func (w *NetlinkWatcher) Start(ctx context.Context, notify func(reason string)) error {
	if w == nil {
		return nil
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if w.running {
		return nil
	}

	conn := new(netlink.UEventConn)
	if err := conn.Connect(netlink.UdevEvent); err != nil {
		logging.WarnWithContext(w.logger, "failed to connect to netlink socket; relying on polling for network changes", "netlink_connect_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "ensure the daemon may open NETLINK_KOBJECT_UEVENT sockets"),
			logging.String(logging.FieldImpact, "reconnects are noticed at the next poll instead of immediately"),
		)
		return nil
	}

	w.conn = conn
	w.quit = make(chan struct{})
	w.running = true

	quit := w.quit
	go w.monitorLoop(ctx, conn, quit, notify)

	w.logger.Info("netlink watcher started", logging.String(logging.FieldEventType, "netlink_watcher_started"))
	return nil
}

// Stop shuts down the watcher.
func (w *NetlinkWatcher) Stop() {
	if w == nil {
		return
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if !w.running {
		return
	}
	if w.quit != nil {
		close(w.quit)
		w.quit = nil
	}
	if w.conn != nil {
		_ = w.conn.Close()
		w.conn = nil
	}
	w.running = false

	w.logger.Info("netlink watcher stopped", logging.String(logging.FieldEventType, "netlink_watcher_stopped"))
}

// Running reports whether the watcher is active.
func (w *NetlinkWatcher) Running() bool {
	if w == nil {
		return false
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.running
}

func (w *NetlinkWatcher) monitorLoop(ctx context.Context, conn *netlink.UEventConn, quit <-chan struct{}, notify func(string)) {
	events := make(chan netlink.UEvent)
	errs := make(chan error)
	monitorQuit := conn.Monitor(events, errs, buildMatcher())

	for {
		select {
		case <-ctx.Done():
			close(monitorQuit)
			return
		case <-quit:
			close(monitorQuit)
			return
		case uevent := <-events:
			if reason, ok := w.describe(uevent); ok && notify != nil {
				notify(reason)
			}
		case err := <-errs:
			logging.WarnWithContext(w.logger, "netlink watcher error", "netlink_watcher_error",
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "check kernel netlink subsystem"),
				logging.String(logging.FieldImpact, "network change detection may lag until the next poll"),
			)
		}
	}
}

// buildMatcher matches interface lifecycle events: SUBSYSTEM=net with any of
// add, remove, change, move, online, offline.
func buildMatcher() netlink.Matcher {
	action := "add|remove|change|move|online|offline"
	rules := &netlink.RuleDefinitions{}
	rules.AddRule(netlink.RuleDefinition{
		Action: &action,
		Env: map[string]string{
			"SUBSYSTEM": "net",
		},
	})
	return rules
}

// describe turns a matched uevent into a change reason, or false when the
// interface is ignored.
func (w *NetlinkWatcher) describe(uevent netlink.UEvent) (string, bool) {
	iface := uevent.Env["INTERFACE"]
	if iface == "" {
		w.logger.Debug("ignoring net event without interface",
			logging.String("action", string(uevent.Action)),
			logging.String("kobj", uevent.KObj),
		)
		return "", false
	}
	if slices.Contains(w.ignore, iface) {
		return "", false
	}
	w.logger.Debug("network interface event",
		logging.String("interface", iface),
		logging.String("action", string(uevent.Action)),
	)
	return "netlink " + string(uevent.Action) + " " + iface, true
}
