// Package daemonrun hosts the foreground daemon runtime used by
// `yatrisync daemon`, plus the constructors the CLI shares with it.
package daemonrun

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"golang.org/x/sync/errgroup"

	"yatrisync/internal/auth"
	"yatrisync/internal/config"
	"yatrisync/internal/daemon"
	"yatrisync/internal/ipc"
	"yatrisync/internal/logging"
	"yatrisync/internal/queue"
)

// Options configures daemon process runtime behavior.
type Options struct {
	// LogLevel overrides [logging] level when set.
	LogLevel    string
	Development bool
}

// Run starts the daemon and blocks until SIGINT, SIGTERM, or ctx cancellation.
func Run(cmdCtx context.Context, cfg *config.Config, opts Options) error {
	if cfg == nil {
		return errors.New("config is required")
	}

	if err := cfg.EnsureDirectories(); err != nil {
		return fmt.Errorf("ensure directories: %w", err)
	}

	signalCtx, cancel := signal.NotifyContext(cmdCtx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	level := cfg.Logging.Level
	if opts.LogLevel != "" {
		level = opts.LogLevel
	}
	logger, err := logging.New(logging.Options{
		Level:       level,
		Format:      cfg.Logging.Format,
		OutputPaths: []string{"stdout", cfg.LogPath()},
		Development: opts.Development,
	})
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	logConfigSnapshot(logger, cfg)

	q := OpenQueue(cfg, logger)
	d, err := daemon.New(cfg, q, TokenStore(cfg), logger)
	if err != nil {
		return fmt.Errorf("create daemon: %w", err)
	}
	defer d.Close()

	if err := d.Start(signalCtx); err != nil {
		logging.ErrorWithContext(logger, "daemon start failed", "daemon_start_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check for another running daemon and queue database access"),
		)
		return err
	}

	// Written only once the lock is held, so a refused second instance never
	// clobbers the running daemon's pid.
	pidPath := cfg.PIDPath()
	if err := writePIDFile(pidPath); err != nil {
		return fmt.Errorf("write pid file: %w", err)
	}
	defer os.Remove(pidPath)

	ipcServer, err := ipc.NewServer(signalCtx, cfg.SocketPath(), d, logger)
	if err != nil {
		return fmt.Errorf("start IPC server: %w", err)
	}
	ipcServer.Serve()

	// Shutdown fans out: the IPC socket goes first so no new requests arrive
	// while the daemon waits for an in-flight pass.
	g, gctx := errgroup.WithContext(signalCtx)
	g.Go(func() error {
		<-gctx.Done()
		ipcServer.Close()
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		d.Stop()
		return nil
	})
	err = g.Wait()
	logger.Info("yatrisync daemon shutting down", logging.String(logging.FieldEventType, "daemon_shutdown"))
	return err
}

// OpenQueue builds the action queue described by cfg. The store opens lazily.
func OpenQueue(cfg *config.Config, logger *slog.Logger) *queue.Queue {
	return queue.New(queue.NewStore(cfg.QueuePath()), logger,
		queue.WithMaxRetries(cfg.Sync.MaxRetries),
		queue.WithDeadLetter(cfg.Sync.DeadLetter),
	)
}

// TokenStore returns the credential store selected by cfg.
func TokenStore(cfg *config.Config) auth.Store {
	return auth.NewStore(auth.Options{
		StaticToken:    cfg.API.Token,
		UseKeyring:     cfg.Auth.UseKeyring,
		KeyringService: cfg.Auth.KeyringService,
	})
}

func writePIDFile(path string) error {
	if path == "" {
		return nil
	}
	value := strconv.Itoa(os.Getpid()) + "\n"
	return os.WriteFile(path, []byte(value), 0o644)
}

func logConfigSnapshot(logger *slog.Logger, cfg *config.Config) {
	logger.Info("configuration snapshot",
		logging.String(logging.FieldEventType, "config_snapshot"),
		logging.String("api_base_url", cfg.API.BaseURL),
		logging.Duration("api_timeout", cfg.APITimeout()),
		logging.Bool("static_token", cfg.API.Token != ""),
		logging.Bool("keyring", cfg.Auth.UseKeyring),
		logging.Int("max_retries", cfg.Sync.MaxRetries),
		logging.Bool("dead_letter", cfg.Sync.DeadLetter),
		logging.Bool("netlink", cfg.Network.Netlink),
		logging.Duration("poll_interval", cfg.PollInterval()),
		logging.Bool("reachability_probe", cfg.Network.ProbeURL != ""),
		logging.Bool("ntfy", cfg.Notifications.NtfyTopic != ""),
		logging.String("metrics_bind", cfg.Metrics.Bind),
		logging.String("queue_db", cfg.QueuePath()),
	)
}
