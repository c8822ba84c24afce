package queueaccess

import (
	"fmt"

	"yatrisync/internal/daemon"
	"yatrisync/internal/ipc"
)

// Session represents an access handle and its cleanup function.
type Session struct {
	Access Access
	close  func() error
}

// Close releases resources associated with the session.
func (s Session) Close() error {
	if s.close == nil {
		return nil
	}
	return s.close()
}

// OpenWithFallback tries IPC-backed access first, then falls back to a local
// daemon built by openLocal.
func OpenWithFallback(
	dial func() (*ipc.Client, error),
	openLocal func() (*daemon.Daemon, error),
) (Session, error) {
	if dial != nil {
		if client, err := dial(); err == nil {
			return Session{
				Access: NewIPCAccess(client),
				close:  client.Close,
			}, nil
		}
	}

	if openLocal == nil {
		return Session{}, fmt.Errorf("open local queue: no opener configured")
	}
	d, err := openLocal()
	if err != nil {
		return Session{}, fmt.Errorf("open local queue: %w", err)
	}
	return Session{
		Access: NewLocalAccess(d),
		close:  d.Close,
	}, nil
}
