package ipc

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/rpc"
	"net/rpc/jsonrpc"
	"os"
	"sync"

	"yatrisync/internal/daemon"
	"yatrisync/internal/logging"
)

// ServiceName is the JSON-RPC receiver name.
const ServiceName = "Yatrisync"

// Server exposes daemon control via JSON-RPC over a Unix domain socket.
type Server struct {
	path      string
	logger    *slog.Logger
	listener  net.Listener
	rpcServer *rpc.Server

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewServer configures the IPC server at the given socket path.
func NewServer(ctx context.Context, path string, d *daemon.Daemon, logger *slog.Logger) (*Server, error) {
	if d == nil {
		return nil, errors.New("ipc server requires daemon")
	}
	logger = logging.NewComponentLogger(logger, "ipc")

	if err := os.RemoveAll(path); err != nil {
		return nil, fmt.Errorf("remove existing socket: %w", err)
	}

	listener, err := net.Listen("unix", path)
	if err != nil {
		return nil, fmt.Errorf("listen on socket: %w", err)
	}
	if err := os.Chmod(path, 0o600); err != nil {
		listener.Close()
		return nil, fmt.Errorf("restrict socket permissions: %w", err)
	}

	rpcServer := rpc.NewServer()
	srv := &service{daemon: d, logger: logger, ctx: ctx}
	if err := rpcServer.RegisterName(ServiceName, srv); err != nil {
		listener.Close()
		return nil, fmt.Errorf("register rpc service: %w", err)
	}

	serverCtx, cancel := context.WithCancel(ctx)
	return &Server{
		path:      path,
		logger:    logger,
		listener:  listener,
		rpcServer: rpcServer,
		ctx:       serverCtx,
		cancel:    cancel,
	}, nil
}

// Serve starts accepting RPC connections until the context is canceled.
func (s *Server) Serve() {
	s.logger.Debug("IPC server listening", logging.String("socket", s.path))
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		for {
			conn, err := s.listener.Accept()
			if err != nil {
				select {
				case <-s.ctx.Done():
					return
				default:
				}
				if errors.Is(err, net.ErrClosed) {
					return
				}
				logging.WarnWithContext(s.logger, "accept failed", "ipc_accept_failed",
					logging.Error(err),
					logging.String(logging.FieldImpact, "IPC clients may fail to connect"),
					logging.String(logging.FieldErrorHint, "Check socket permissions and restart the daemon if needed"))
				continue
			}
			s.wg.Add(1)
			go func(c net.Conn) {
				defer s.wg.Done()
				s.rpcServer.ServeCodec(jsonrpc.NewServerCodec(c))
			}(conn)
		}
	}()
}

// Close stops the server and removes the socket file.
func (s *Server) Close() {
	s.cancel()
	if s.listener != nil {
		_ = s.listener.Close()
	}
	s.wg.Wait()
	if err := os.RemoveAll(s.path); err != nil {
		logging.WarnWithContext(s.logger, "failed to remove socket", "ipc_socket_cleanup_failed",
			logging.String("socket", s.path),
			logging.Error(err),
			logging.String(logging.FieldImpact, "stale IPC socket may confuse CLI commands"),
			logging.String(logging.FieldErrorHint, "Remove the socket file manually"))
	}
}

type service struct {
	daemon *daemon.Daemon
	logger *slog.Logger
	ctx    context.Context
}

func (s *service) Status(_ StatusRequest, resp *StatusResponse) error {
	*resp = FromStatus(s.daemon.Status(s.ctx))
	return nil
}

func (s *service) Enqueue(req EnqueueRequest, resp *EnqueueResponse) error {
	var payload []byte
	if req.Payload != "" {
		payload = []byte(req.Payload)
	}
	action, err := s.daemon.Enqueue(s.ctx, req.Kind, req.Endpoint, req.Method, payload)
	if err != nil {
		return err
	}
	resp.Action = FromAction(action)
	return nil
}

func (s *service) QueueList(_ QueueListRequest, resp *QueueListResponse) error {
	actions, err := s.daemon.ListQueue(s.ctx)
	if err != nil {
		return err
	}
	resp.Actions = make([]Action, 0, len(actions))
	for _, action := range actions {
		resp.Actions = append(resp.Actions, FromAction(action))
	}
	return nil
}

func (s *service) QueueClear(_ QueueClearRequest, resp *QueueClearResponse) error {
	s.logger.Debug("queue clear requested")
	removed, err := s.daemon.ClearQueue(s.ctx)
	if err != nil {
		return err
	}
	resp.Removed = removed
	s.logger.Info("queue cleared via IPC",
		logging.String(logging.FieldEventType, "queue_clear"),
		logging.Int64("removed_count", removed))
	return nil
}

func (s *service) DeadLetters(req DeadLettersRequest, resp *DeadLettersResponse) error {
	if req.Purge {
		purged, err := s.daemon.PurgeDeadLetters(s.ctx)
		if err != nil {
			return err
		}
		resp.Purged = purged
		s.logger.Info("dead letters purged via IPC",
			logging.String(logging.FieldEventType, "dead_letters_purged"),
			logging.Int64("removed_count", purged))
		return nil
	}
	letters, err := s.daemon.DeadLetters(s.ctx)
	if err != nil {
		return err
	}
	resp.Letters = make([]DeadLetter, 0, len(letters))
	for _, letter := range letters {
		resp.Letters = append(resp.Letters, FromDeadLetter(letter))
	}
	return nil
}

func (s *service) Sync(_ SyncRequest, resp *SyncResponse) error {
	resp.Result = FromResult(s.daemon.SyncNow(s.ctx))
	return nil
}

func (s *service) Network(req NetworkRequest, resp *NetworkResponse) error {
	if req.Probe {
		resp.State = s.daemon.CheckNetwork(s.ctx)
		return nil
	}
	resp.State = s.daemon.NetworkState()
	return nil
}

func (s *service) Login(req LoginRequest, resp *LoginResponse) error {
	result, err := s.daemon.Login(s.ctx, req.Token)
	if err != nil {
		return err
	}
	resp.Auth = FromAuthStatus(result.Auth)
	resp.Sync = FromResult(result.Sync)
	return nil
}

func (s *service) Logout(_ LogoutRequest, resp *LogoutResponse) error {
	if err := s.daemon.Logout(); err != nil {
		return err
	}
	resp.LoggedOut = true
	return nil
}

func (s *service) AuthStatus(_ AuthStatusRequest, resp *AuthStatusResponse) error {
	status, err := s.daemon.AuthStatus()
	if err != nil {
		return err
	}
	resp.Auth = FromAuthStatus(status)
	return nil
}

func (s *service) DatabaseHealth(_ DatabaseHealthRequest, resp *DatabaseHealthResponse) error {
	health, err := s.daemon.DatabaseHealth(s.ctx)
	resp.DatabaseHealth = health
	if err != nil && health.Error == "" {
		return err
	}
	return nil
}

func (s *service) TestNotification(_ TestNotificationRequest, resp *TestNotificationResponse) error {
	sent, message, err := s.daemon.TestNotification(s.ctx)
	resp.Sent = sent
	resp.Message = message
	return err
}
