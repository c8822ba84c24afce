package daemon

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"yatrisync/internal/config"
	"yatrisync/internal/logging"
	"yatrisync/internal/network"
)

// httpServer serves health, status, and metrics when [metrics] bind is set.
type httpServer struct {
	bind   string
	logger *slog.Logger
	server *http.Server

	listener net.Listener
}

func newHTTPServer(cfg *config.Config, d *Daemon, logger *slog.Logger) *httpServer {
	if cfg.Metrics.Bind == "" {
		return nil
	}
	s := &httpServer{
		bind:   cfg.Metrics.Bind,
		logger: logging.NewComponentLogger(logger, "http-server"),
	}
	s.server = &http.Server{
		Handler:           newRouter(d, cfg.Metrics.Token),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return s
}

// newRouter builds the chi router. /healthz stays unauthenticated so
// supervisors can probe it without credentials.
func newRouter(d *Daemon, token string) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))

	r.Get("/healthz", d.handleHealth)
	r.Group(func(r chi.Router) {
		r.Use(requireBearer(token))
		r.Get("/status", d.handleStatus)
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(d.registry, promhttp.HandlerOpts{}))
	})
	return r
}

func (s *httpServer) start(ctx context.Context) error {
	if s == nil {
		return nil
	}
	listener, err := net.Listen("tcp", s.bind)
	if err != nil {
		return fmt.Errorf("http listen: %w", err)
	}
	s.listener = listener

	go func() {
		if err := s.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logging.ErrorWithContext(s.logger, "http server error", "http_server_failed", logging.Error(err))
		}
	}()

	s.logger.Info("http server listening", logging.String("address", listener.Addr().String()))
	return nil
}

func (s *httpServer) stop() {
	if s == nil {
		return
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = s.server.Shutdown(shutdownCtx)
	if s.listener != nil {
		_ = s.listener.Close()
		s.listener = nil
	}
}

type healthResponse struct {
	Status   string `json:"status"`
	Database string `json:"database,omitempty"`
}

func (d *Daemon) handleHealth(w http.ResponseWriter, r *http.Request) {
	health, err := d.DatabaseHealth(r.Context())
	if err != nil || !health.Healthy() {
		detail := health.Error
		if err != nil {
			detail = err.Error()
		}
		writeJSON(w, http.StatusServiceUnavailable, healthResponse{Status: "unhealthy", Database: detail})
		return
	}
	writeJSON(w, http.StatusOK, healthResponse{Status: "ok"})
}

type statusResponse struct {
	Running        bool          `json:"running"`
	PID            int           `json:"pid"`
	Pending        int           `json:"pending"`
	DeadLetters    int           `json:"dead_letters"`
	MaxRetries     int           `json:"max_retries"`
	Network        network.State `json:"network"`
	SyncInProgress bool          `json:"sync_in_progress"`
	LastSyncAt     *time.Time    `json:"last_sync_at,omitempty"`
	LastOutcome    string        `json:"last_outcome,omitempty"`
	QueueError     string        `json:"queue_error,omitempty"`
}

func (d *Daemon) handleStatus(w http.ResponseWriter, r *http.Request) {
	status := d.Status(r.Context())
	resp := statusResponse{
		Running:        status.Running,
		PID:            status.PID,
		Pending:        status.Pending,
		DeadLetters:    status.DeadLetters,
		MaxRetries:     status.MaxRetries,
		Network:        status.Network,
		SyncInProgress: status.SyncInProgress,
		QueueError:     status.QueueError,
	}
	if status.LastSync != nil {
		at := status.LastSyncAt
		resp.LastSyncAt = &at
		resp.LastOutcome = status.LastSync.Outcome()
	}
	writeJSON(w, http.StatusOK, resp)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	_ = json.NewEncoder(w).Encode(payload)
}
