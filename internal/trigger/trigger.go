// Package trigger connects sync passes to the events that should start them:
// connectivity coming back, and explicit call sites such as login.
package trigger

import (
	"context"
	"log/slog"
	"sync"

	"yatrisync/internal/logging"
	"yatrisync/internal/network"
	"yatrisync/internal/syncer"
)

// Trigger names recorded on the context of each pass.
const (
	ReasonReconnect = "reconnect"
	ReasonStartup   = "startup"
	ReasonLogin     = "login"
	ReasonManual    = "manual"
)

// Subscriber publishes connectivity changes. *network.Monitor satisfies it.
type Subscriber interface {
	Subscribe(fn func(network.State)) (unsubscribe func())
}

// Syncer runs a single-flight sync pass. *syncer.Engine satisfies it.
type Syncer interface {
	Sync(ctx context.Context) syncer.Result
}

// OnReconnect starts a pass in its own goroutine for every published state
// that reports connectivity. The returned function unsubscribes and waits
// for passes it started to finish.
func OnReconnect(ctx context.Context, sub Subscriber, s Syncer, logger *slog.Logger) (stop func()) {
	logger = logging.NewComponentLogger(logger, "sync-trigger")
	var wg sync.WaitGroup
	var mu sync.Mutex
	stopped := false

	unsubscribe := sub.Subscribe(func(state network.State) {
		if !state.Connected {
			logger.Debug("connectivity lost; waiting for reconnect",
				logging.String(logging.FieldTransport, string(state.Transport)),
			)
			return
		}
		mu.Lock()
		defer mu.Unlock()
		if stopped || ctx.Err() != nil {
			return
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			logger.Info("connectivity restored; syncing queued actions",
				logging.String(logging.FieldTransport, string(state.Transport)),
			)
			Now(ctx, s, ReasonReconnect, logger)
		}()
	})

	var once sync.Once
	return func() {
		once.Do(func() {
			unsubscribe()
			mu.Lock()
			stopped = true
			mu.Unlock()
			wg.Wait()
		})
	}
}

// Now runs a pass immediately and tags it with reason. It shares the engine's
// single-flight guard with every other caller.
func Now(ctx context.Context, s Syncer, reason string, logger *slog.Logger) syncer.Result {
	ctx = logging.WithTrigger(ctx, reason)
	res := s.Sync(ctx)
	if res.Skipped != "" && logger != nil {
		logging.WithContext(ctx, logger).Debug("sync request skipped",
			logging.String("skipped", string(res.Skipped)),
		)
	}
	return res
}
