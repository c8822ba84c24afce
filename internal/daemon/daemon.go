package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gofrs/flock"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"yatrisync/internal/apiclient"
	"yatrisync/internal/auth"
	"yatrisync/internal/config"
	"yatrisync/internal/logging"
	"yatrisync/internal/network"
	"yatrisync/internal/notifications"
	"yatrisync/internal/queue"
	"yatrisync/internal/syncer"
	"yatrisync/internal/trigger"
)

// Daemon owns the queue, network monitor, and sync engine for one process and
// enforces single-instance execution.
type Daemon struct {
	cfg      *config.Config
	logger   *slog.Logger
	queue    *queue.Queue
	tokens   auth.Store
	monitor  *network.Monitor
	engine   *syncer.Engine
	notifier notifications.Service
	registry *prometheus.Registry
	metrics  *syncer.Metrics
	http     *httpServer

	lockPath string
	lock     *flock.Flock

	running atomic.Bool
	mu      sync.Mutex
	cancel  context.CancelFunc
	stopSub func()
	wg      sync.WaitGroup

	lastMu     sync.Mutex
	lastResult *syncer.Result
	lastAt     time.Time
}

// Option overrides a collaborator, mostly for tests.
type Option func(*options)

type options struct {
	prober    network.Prober
	watcher   network.Watcher
	noWatcher bool
	requester syncer.Requester
	notifier  notifications.Service
}

// WithProber replaces the interface prober.
func WithProber(p network.Prober) Option {
	return func(o *options) { o.prober = p }
}

// WithWatcher replaces the netlink watcher. A nil watcher disables event watching.
func WithWatcher(w network.Watcher) Option {
	return func(o *options) {
		o.watcher = w
		o.noWatcher = w == nil
	}
}

// WithRequester replaces the HTTP API client used for replay.
func WithRequester(r syncer.Requester) Option {
	return func(o *options) { o.requester = r }
}

// WithNotifier replaces the ntfy notifier.
func WithNotifier(n notifications.Service) Option {
	return func(o *options) { o.notifier = n }
}

// New constructs a daemon with initialized dependencies.
func New(cfg *config.Config, q *queue.Queue, tokens auth.Store, logger *slog.Logger, opts ...Option) (*Daemon, error) {
	if cfg == nil || q == nil || tokens == nil {
		return nil, errors.New("daemon requires config, queue, and token store")
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	if o.prober == nil {
		proberOpts := []network.InterfaceProberOption{network.WithIgnoredInterfaces(cfg.Network.IgnoreInterfaces...)}
		if cfg.Network.ProbeURL != "" {
			proberOpts = append(proberOpts, network.WithReachabilityProbe(cfg.Network.ProbeURL, cfg.ProbeTimeout()))
		}
		o.prober = network.NewInterfaceProber(proberOpts...)
	}
	if o.watcher == nil && !o.noWatcher && cfg.Network.Netlink {
		o.watcher = network.NewNetlinkWatcher(logger, cfg.Network.IgnoreInterfaces...)
	}
	if o.requester == nil {
		o.requester = apiclient.New(cfg.API.BaseURL, tokens,
			apiclient.WithTimeout(cfg.APITimeout()),
			apiclient.WithUserAgent(cfg.API.UserAgent),
			apiclient.WithLogger(logger),
		)
	}
	if o.notifier == nil {
		o.notifier = notifications.NewService(cfg)
	}

	monitorOpts := []network.MonitorOption{network.WithPollInterval(cfg.PollInterval())}
	if o.watcher != nil {
		monitorOpts = append(monitorOpts, network.WithWatcher(o.watcher))
	}
	monitor := network.NewMonitor(o.prober, logger, monitorOpts...)

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metrics := syncer.NewMetrics(registry)

	d := &Daemon{
		cfg:      cfg,
		logger:   logging.NewComponentLogger(logger, "daemon"),
		queue:    q,
		tokens:   tokens,
		monitor:  monitor,
		notifier: o.notifier,
		registry: registry,
		metrics:  metrics,
		lockPath: cfg.LockPath(),
		lock:     flock.New(cfg.LockPath()),
	}
	d.engine = syncer.New(q, monitor, o.requester, logger,
		syncer.WithMetrics(metrics),
		syncer.WithNotifier(o.notifier),
	)
	d.http = newHTTPServer(cfg, d, logger)
	return d, nil
}

// Start acquires the daemon lock, begins watching connectivity, and
// optionally runs a startup sync.
func (d *Daemon) Start(ctx context.Context) error {
	if d.running.Load() {
		return errors.New("daemon already running")
	}

	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return errors.New("another yatrisync daemon instance is already running")
	}

	if err := d.queue.Store().Initialize(ctx); err != nil {
		_ = d.lock.Unlock()
		return fmt.Errorf("open queue: %w", err)
	}

	runCtx, cancel := context.WithCancel(ctx)
	if err := d.http.start(runCtx); err != nil {
		cancel()
		_ = d.lock.Unlock()
		return err
	}

	// Subscribe before the monitor's first probe so no transition is missed.
	stopSub := trigger.OnReconnect(runCtx, d.monitor, d, d.logger)
	if err := d.monitor.Start(runCtx); err != nil {
		stopSub()
		d.http.stop()
		cancel()
		_ = d.lock.Unlock()
		return fmt.Errorf("start network monitor: %w", err)
	}

	d.mu.Lock()
	d.cancel = cancel
	d.stopSub = stopSub
	d.mu.Unlock()
	d.running.Store(true)

	d.refreshBacklog(runCtx)
	if d.cfg.Sync.SyncOnStart {
		d.wg.Add(1)
		go func() {
			defer d.wg.Done()
			trigger.Now(runCtx, d, trigger.ReasonStartup, d.logger)
		}()
	}

	d.logger.Info("yatrisync daemon started",
		logging.String(logging.FieldEventType, "daemon_started"),
		logging.String("lock", d.lockPath),
		logging.String("queue", d.queue.Store().Path()),
		logging.Bool("connected", d.monitor.Connected()),
	)
	return nil
}

// Stop stops watching connectivity, waits for in-flight passes, and
// releases the daemon lock.
func (d *Daemon) Stop() {
	if !d.running.Load() {
		return
	}

	d.mu.Lock()
	cancel, stopSub := d.cancel, d.stopSub
	d.cancel, d.stopSub = nil, nil
	d.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	d.monitor.Stop()
	if stopSub != nil {
		stopSub()
	}
	d.wg.Wait()
	d.http.stop()
	if err := d.lock.Unlock(); err != nil {
		logging.WarnWithContext(d.logger, "failed to release daemon lock", "daemon_lock_release_failed",
			logging.String("lock", d.lockPath),
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "remove the lock file if no daemon is running"),
			logging.String(logging.FieldImpact, "the next daemon start may be refused"),
		)
	}
	d.running.Store(false)
	d.logger.Info("yatrisync daemon stopped", logging.String(logging.FieldEventType, "daemon_stopped"))
}

// Close releases resources held by the daemon.
func (d *Daemon) Close() error {
	d.Stop()
	return d.queue.Store().Close()
}

// Running reports whether Start has succeeded and Stop has not yet run.
func (d *Daemon) Running() bool {
	return d.running.Load()
}

// Sync runs one pass through the engine and remembers the result of passes
// that actually ran. It is the entry point every trigger funnels into.
func (d *Daemon) Sync(ctx context.Context) syncer.Result {
	res := d.engine.Sync(ctx)
	if res.Started {
		d.lastMu.Lock()
		d.lastResult = &res
		d.lastAt = time.Now()
		d.lastMu.Unlock()
	}
	return res
}

func (d *Daemon) lastSync() (*syncer.Result, time.Time) {
	d.lastMu.Lock()
	defer d.lastMu.Unlock()
	if d.lastResult == nil {
		return nil, time.Time{}
	}
	res := *d.lastResult
	return &res, d.lastAt
}

func (d *Daemon) refreshBacklog(ctx context.Context) {
	n, err := d.queue.Pending(ctx)
	if err != nil {
		d.logger.Debug("backlog count failed", logging.Error(err))
		return
	}
	d.metrics.SetBacklog(n)
}

// Status represents daemon runtime information.
type Status struct {
	Running        bool
	PID            int
	QueueDBPath    string
	LockFilePath   string
	Pending        int
	DeadLetters    int
	MaxRetries     int
	Network        network.State
	SyncInProgress bool
	LastSync       *syncer.Result
	LastSyncAt     time.Time
	QueueError     string
}

// Status returns the current daemon status.
func (d *Daemon) Status(ctx context.Context) Status {
	status := Status{
		Running:        d.running.Load(),
		PID:            os.Getpid(),
		QueueDBPath:    d.queue.Store().Path(),
		LockFilePath:   d.lockPath,
		MaxRetries:     d.queue.MaxRetries(),
		Network:        d.monitor.State(),
		SyncInProgress: d.engine.InProgress(),
	}
	status.LastSync, status.LastSyncAt = d.lastSync()

	pending, err := d.queue.Pending(ctx)
	if err != nil {
		status.QueueError = err.Error()
		return status
	}
	status.Pending = pending
	letters, err := d.queue.Store().ListDeadLetters(ctx)
	if err != nil {
		status.QueueError = err.Error()
		return status
	}
	status.DeadLetters = len(letters)
	return status
}
