package network

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"yatrisync/internal/logging"
)

const defaultSettleDelay = 750 * time.Millisecond

// Monitor tracks connectivity and publishes changes to subscribers.
type Monitor struct {
	prober       Prober
	watchers     []Watcher
	pollInterval time.Duration
	settleDelay  time.Duration
	logger       *slog.Logger

	// checkMu serializes probes so publications are delivered in order.
	checkMu sync.Mutex

	mu        sync.Mutex
	state     State
	listeners []listener
	nextID    int
	running   bool
	quit      chan struct{}
	signals   chan string
	done      chan struct{}
}

type listener struct {
	id int
	fn func(State)
}

// MonitorOption configures a Monitor.
type MonitorOption func(*Monitor)

// WithWatcher adds a change source.
func WithWatcher(w Watcher) MonitorOption {
	return func(m *Monitor) {
		if w != nil {
			m.watchers = append(m.watchers, w)
		}
	}
}

// WithPollInterval re-probes periodically. Zero disables polling.
func WithPollInterval(d time.Duration) MonitorOption {
	return func(m *Monitor) { m.pollInterval = d }
}

// WithSettleDelay waits after a watcher signal before probing, so address
// assignment can finish. Bursts of signals collapse into one probe.
func WithSettleDelay(d time.Duration) MonitorOption {
	return func(m *Monitor) { m.settleDelay = d }
}

// NewMonitor creates a monitor that starts out optimistic (connected).
func NewMonitor(prober Prober, logger *slog.Logger, opts ...MonitorOption) *Monitor {
	m := &Monitor{
		prober:      prober,
		settleDelay: defaultSettleDelay,
		logger:      logging.NewComponentLogger(logger, "network-monitor"),
		state:       State{Connected: true, Transport: TransportUnknown},
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// State returns the last known connectivity snapshot.
func (m *Monitor) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.clone()
}

// Connected reports the last known connectivity.
func (m *Monitor) Connected() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.Connected
}

// Subscribe registers fn for change publications and returns a function that
// removes it. fn runs on the probing goroutine and must not call CheckConnection.
func (m *Monitor) Subscribe(fn func(State)) (unsubscribe func()) {
	if fn == nil {
		return func() {}
	}
	m.mu.Lock()
	m.nextID++
	id := m.nextID
	m.listeners = append(m.listeners, listener{id: id, fn: fn})
	m.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			m.mu.Lock()
			defer m.mu.Unlock()
			for i, l := range m.listeners {
				if l.id == id {
					m.listeners = append(m.listeners[:i:i], m.listeners[i+1:]...)
					return
				}
			}
		})
	}
}

// CheckConnection probes once, records the result, and publishes it when it
// differs from the previous state. A probe error counts as disconnected.
func (m *Monitor) CheckConnection(ctx context.Context) State {
	m.checkMu.Lock()
	defer m.checkMu.Unlock()

	next, err := m.prober.Probe(ctx)
	if err != nil {
		m.logger.Debug("connectivity probe failed", logging.Error(err))
		next.Connected = false
	}
	if next.CheckedAt.IsZero() {
		next.CheckedAt = time.Now()
	}
	if next.Transport == "" {
		next.Transport = TransportUnknown
	}

	m.mu.Lock()
	prev := m.state
	m.state = next.clone()
	changed := prev.Changed(next)
	var targets []func(State)
	if changed {
		targets = make([]func(State), 0, len(m.listeners))
		for _, l := range m.listeners {
			targets = append(targets, l.fn)
		}
	}
	m.mu.Unlock()

	if changed {
		m.logger.Info("connectivity changed",
			logging.String(logging.FieldEventType, "network_state_changed"),
			logging.Bool("connected", next.Connected),
			logging.String(logging.FieldTransport, string(next.Transport)),
			logging.Bool("was_connected", prev.Connected),
		)
		for _, fn := range targets {
			fn(next.clone())
		}
	}
	return next
}

// Start runs an initial check and then reacts to watcher signals and the
// poll interval until Stop or ctx cancellation.
func (m *Monitor) Start(ctx context.Context) error {
	if m == nil {
		return nil
	}
	m.mu.Lock()
	if m.running {
		m.mu.Unlock()
		return nil
	}
	m.running = true
	m.quit = make(chan struct{})
	m.signals = make(chan string, 1)
	m.done = make(chan struct{})
	quit, signals, done := m.quit, m.signals, m.done
	m.mu.Unlock()

	notify := func(reason string) {
		select {
		case signals <- reason:
		default:
		}
	}
	for _, w := range m.watchers {
		if err := w.Start(ctx, notify); err != nil {
			logging.WarnWithContext(m.logger, "network watcher failed to start", "network_watcher_failed",
				logging.Error(err),
				logging.String(logging.FieldImpact, "changes are only noticed by polling"),
			)
		}
	}

	m.CheckConnection(ctx)
	go m.loop(ctx, quit, signals, done)

	m.logger.Info("network monitor started",
		logging.String(logging.FieldEventType, "network_monitor_started"),
		logging.Duration("poll_interval", m.pollInterval),
		logging.Int("watchers", len(m.watchers)),
	)
	return nil
}

// Stop halts the monitor and its watchers. It is safe to call repeatedly.
func (m *Monitor) Stop() {
	if m == nil {
		return
	}
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return
	}
	m.running = false
	close(m.quit)
	done := m.done
	m.mu.Unlock()

	for _, w := range m.watchers {
		w.Stop()
	}
	<-done
	m.logger.Info("network monitor stopped", logging.String(logging.FieldEventType, "network_monitor_stopped"))
}

// Running reports whether the monitor loop is active.
func (m *Monitor) Running() bool {
	if m == nil {
		return false
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.running
}

func (m *Monitor) loop(ctx context.Context, quit <-chan struct{}, signals <-chan string, done chan<- struct{}) {
	defer close(done)

	var tick <-chan time.Time
	if m.pollInterval > 0 {
		ticker := time.NewTicker(m.pollInterval)
		defer ticker.Stop()
		tick = ticker.C
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-quit:
			return
		case <-tick:
			m.CheckConnection(ctx)
		case reason := <-signals:
			m.logger.Debug("network change signalled", logging.String("reason", reason))
			if m.settleDelay > 0 {
				select {
				case <-time.After(m.settleDelay):
				case <-quit:
					return
				case <-ctx.Done():
					return
				}
				// Collapse signals that arrived while settling.
				select {
				case <-signals:
				default:
				}
			}
			m.CheckConnection(ctx)
		}
	}
}
