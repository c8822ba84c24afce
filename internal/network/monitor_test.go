package network_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"yatrisync/internal/logging"
	"yatrisync/internal/network"
)

type scriptedProber struct {
	mu     sync.Mutex
	states []network.State
	err    error
	calls  int
}

func (p *scriptedProber) set(connected bool, transport network.Transport) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.states = []network.State{{Connected: connected, Transport: transport}}
	p.err = nil
}

func (p *scriptedProber) fail(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.err = err
}

func (p *scriptedProber) Probe(context.Context) (network.State, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls++
	if p.err != nil {
		return network.State{Connected: true}, p.err
	}
	return p.states[0], nil
}

type fakeWatcher struct {
	mu      sync.Mutex
	notify  func(string)
	started bool
	stopped bool
}

func (w *fakeWatcher) Start(_ context.Context, notify func(string)) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.notify = notify
	w.started = true
	return nil
}

func (w *fakeWatcher) Stop() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.stopped = true
}

func (w *fakeWatcher) fire(reason string) {
	w.mu.Lock()
	notify := w.notify
	w.mu.Unlock()
	notify(reason)
}

func TestMonitorStartsOptimistic(t *testing.T) {
	m := network.NewMonitor(&scriptedProber{}, logging.NewNop())
	if !m.Connected() {
		t.Fatal("expected optimistic initial state")
	}
}

func TestCheckConnectionPublishesOnlyOnChange(t *testing.T) {
	prober := &scriptedProber{}
	prober.set(true, network.TransportWiFi)
	m := network.NewMonitor(prober, logging.NewNop())

	var got []network.State
	m.Subscribe(func(s network.State) { got = append(got, s) })

	ctx := context.Background()
	m.CheckConnection(ctx) // unknown -> wifi
	m.CheckConnection(ctx) // unchanged
	prober.set(false, network.TransportNone)
	m.CheckConnection(ctx)
	prober.set(true, network.TransportWiFi)
	m.CheckConnection(ctx)

	if len(got) != 3 {
		t.Fatalf("expected 3 publications, got %d: %+v", len(got), got)
	}
	want := []bool{true, false, true}
	for i, s := range got {
		if s.Connected != want[i] {
			t.Fatalf("publication %d: connected=%v want %v", i, s.Connected, want[i])
		}
	}
}

func TestProbeErrorMeansDisconnected(t *testing.T) {
	prober := &scriptedProber{}
	prober.fail(errors.New("no route"))
	m := network.NewMonitor(prober, logging.NewNop())

	state := m.CheckConnection(context.Background())
	if state.Connected || m.Connected() {
		t.Fatal("expected probe error to mark disconnected")
	}
}

func TestSubscribersRunInOrderAndUnsubscribe(t *testing.T) {
	prober := &scriptedProber{}
	prober.set(false, network.TransportNone)
	m := network.NewMonitor(prober, logging.NewNop())

	var order []string
	m.Subscribe(func(network.State) { order = append(order, "first") })
	unsubscribe := m.Subscribe(func(network.State) { order = append(order, "second") })
	m.Subscribe(func(network.State) { order = append(order, "third") })

	m.CheckConnection(context.Background())
	unsubscribe()
	unsubscribe()
	prober.set(true, network.TransportEthernet)
	m.CheckConnection(context.Background())

	want := []string{"first", "second", "third", "first", "third"}
	if len(order) != len(want) {
		t.Fatalf("got %v want %v", order, want)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("got %v want %v", order, want)
		}
	}
}

func TestWatcherSignalTriggersProbe(t *testing.T) {
	prober := &scriptedProber{}
	prober.set(false, network.TransportNone)
	watcher := &fakeWatcher{}
	m := network.NewMonitor(prober, logging.NewNop(),
		network.WithWatcher(watcher),
		network.WithSettleDelay(0),
	)

	published := make(chan network.State, 4)
	m.Subscribe(func(s network.State) { published <- s })

	ctx := context.Background()
	if err := m.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer m.Stop()

	select {
	case s := <-published:
		if s.Connected {
			t.Fatalf("expected initial disconnected publication, got %+v", s)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("initial check did not publish")
	}

	prober.set(true, network.TransportWiFi)
	watcher.fire("netlink add wlan0")

	select {
	case s := <-published:
		if !s.Connected || s.Transport != network.TransportWiFi {
			t.Fatalf("unexpected publication %+v", s)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("watcher signal did not lead to a publication")
	}
}

func TestPollIntervalReprobes(t *testing.T) {
	prober := &scriptedProber{}
	prober.set(true, network.TransportEthernet)
	m := network.NewMonitor(prober, logging.NewNop(), network.WithPollInterval(10*time.Millisecond))

	if err := m.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	deadline := time.Now().Add(2 * time.Second)
	for {
		prober.mu.Lock()
		calls := prober.calls
		prober.mu.Unlock()
		if calls >= 3 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("expected repeated probes, got %d", calls)
		}
		time.Sleep(5 * time.Millisecond)
	}
	m.Stop()
}

func TestMonitorStartStopIdempotent(t *testing.T) {
	prober := &scriptedProber{}
	prober.set(true, network.TransportEthernet)
	watcher := &fakeWatcher{}
	m := network.NewMonitor(prober, logging.NewNop(), network.WithWatcher(watcher))

	m.Stop()
	if err := m.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := m.Start(context.Background()); err != nil {
		t.Fatalf("second Start: %v", err)
	}
	if !m.Running() {
		t.Fatal("expected running monitor")
	}
	m.Stop()
	m.Stop()
	if m.Running() {
		t.Fatal("expected stopped monitor")
	}
	if !watcher.started || !watcher.stopped {
		t.Fatalf("watcher lifecycle not driven: %+v", watcher)
	}

	var nilMonitor *network.Monitor
	nilMonitor.Stop()
	if nilMonitor.Running() {
		t.Fatal("nil monitor should not be running")
	}
}
