package ipc

import (
	"net"
	"net/rpc"
	"net/rpc/jsonrpc"
	"time"
)

// Client provides RPC access to the daemon.
type Client struct {
	conn   net.Conn
	client *rpc.Client
}

// Dial connects to the IPC server at the given socket path.
func Dial(path string) (*Client, error) {
	conn, err := net.DialTimeout("unix", path, 2*time.Second)
	if err != nil {
		return nil, err
	}
	rpcClient := rpc.NewClientWithCodec(jsonrpc.NewClientCodec(conn))
	return &Client{conn: conn, client: rpcClient}, nil
}

// Close closes the underlying connection.
func (c *Client) Close() error {
	if c.client != nil {
		return c.client.Close()
	}
	return nil
}

func call[Resp any](c *Client, method string, req any) (*Resp, error) {
	var resp Resp
	if err := c.client.Call(ServiceName+"."+method, req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Status retrieves the daemon status.
func (c *Client) Status() (*StatusResponse, error) {
	return call[StatusResponse](c, "Status", StatusRequest{})
}

// Enqueue stores an action through the daemon.
func (c *Client) Enqueue(req EnqueueRequest) (*EnqueueResponse, error) {
	return call[EnqueueResponse](c, "Enqueue", req)
}

// QueueList returns the backlog oldest first.
func (c *Client) QueueList() (*QueueListResponse, error) {
	return call[QueueListResponse](c, "QueueList", QueueListRequest{})
}

// QueueClear removes all queued actions.
func (c *Client) QueueClear() (*QueueClearResponse, error) {
	return call[QueueClearResponse](c, "QueueClear", QueueClearRequest{})
}

// DeadLetters lists dropped actions, or purges them.
func (c *Client) DeadLetters(purge bool) (*DeadLettersResponse, error) {
	return call[DeadLettersResponse](c, "DeadLetters", DeadLettersRequest{Purge: purge})
}

// Sync runs an explicit sync pass and waits for it.
func (c *Client) Sync() (*SyncResponse, error) {
	return call[SyncResponse](c, "Sync", SyncRequest{})
}

// Network returns connectivity, probing first when probe is set.
func (c *Client) Network(probe bool) (*NetworkResponse, error) {
	return call[NetworkResponse](c, "Network", NetworkRequest{Probe: probe})
}

// Login stores a token in the daemon and triggers a sync.
func (c *Client) Login(token string) (*LoginResponse, error) {
	return call[LoginResponse](c, "Login", LoginRequest{Token: token})
}

// Logout removes the stored token.
func (c *Client) Logout() (*LogoutResponse, error) {
	return call[LogoutResponse](c, "Logout", LogoutRequest{})
}

// AuthStatus inspects the stored token.
func (c *Client) AuthStatus() (*AuthStatusResponse, error) {
	return call[AuthStatusResponse](c, "AuthStatus", AuthStatusRequest{})
}

// DatabaseHealth retrieves detailed database diagnostics.
func (c *Client) DatabaseHealth() (*DatabaseHealthResponse, error) {
	return call[DatabaseHealthResponse](c, "DatabaseHealth", DatabaseHealthRequest{})
}

// TestNotification triggers a notification test via the daemon.
func (c *Client) TestNotification() (*TestNotificationResponse, error) {
	return call[TestNotificationResponse](c, "TestNotification", TestNotificationRequest{})
}
