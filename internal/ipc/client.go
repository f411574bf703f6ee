package ipc

import (
	"net"
	"net/rpc"
	"net/rpc/jsonrpc"
	"time"

	"librarian/internal/api"
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
	return &Client{conn: conn, client: rpc.NewClientWithCodec(jsonrpc.NewClientCodec(conn))}, nil
}

// Close closes the underlying connection.
func (c *Client) Close() error {
	if c.client != nil {
		return c.client.Close()
	}
	if c.conn != nil {
		return c.conn.Close()
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

// Start requests the daemon to start its background services.
func (c *Client) Start() (*StartResponse, error) {
	return call[StartResponse](c, "Start", StartRequest{})
}

// Stop requests the daemon to stop its background services.
func (c *Client) Stop() (*StopResponse, error) {
	return call[StopResponse](c, "Stop", StopRequest{})
}

// Status retrieves the daemon status.
func (c *Client) Status() (*StatusResponse, error) {
	return call[StatusResponse](c, "Status", StatusRequest{})
}

// RequestList returns requests in the given states, or all requests.
func (c *Client) RequestList(states []string) (*RequestListResponse, error) {
	return call[RequestListResponse](c, "RequestList", RequestListRequest{States: states})
}

// RequestDescribe returns one request with its attached records.
func (c *Client) RequestDescribe(id string) (*RequestDescribeResponse, error) {
	return call[RequestDescribeResponse](c, "RequestDescribe", RequestDescribeRequest{ID: id})
}

// RequestBind attaches hash to a request stuck in submission_failed.
func (c *Client) RequestBind(id, hash string) (*RequestBindResponse, error) {
	return call[RequestBindResponse](c, "RequestBind", RequestBindRequest{ID: id, Hash: hash})
}

// Decide delivers an approver decision.
func (c *Client) Decide(payload api.ApprovalPayload) (*DecideResponse, error) {
	return call[DecideResponse](c, "Decide", DecideRequest{Payload: payload})
}

// JobList returns organizer jobs in the given statuses, or all jobs.
func (c *Client) JobList(statuses []string) (*JobListResponse, error) {
	return call[JobListResponse](c, "JobList", JobListRequest{Statuses: statuses})
}

// JobClear removes a failed organizer job so it is retried.
func (c *Client) JobClear(hash string) (*JobClearResponse, error) {
	return call[JobClearResponse](c, "JobClear", JobClearRequest{Hash: hash})
}

// Translate rewrites a path through the daemon's mapping table.
func (c *Client) Translate(path, direction string) (*TranslateResponse, error) {
	return call[TranslateResponse](c, "Translate", TranslateRequest{Path: path, Direction: direction})
}

// TestNotification publishes a test notification.
func (c *Client) TestNotification() (*TestNotificationResponse, error) {
	return call[TestNotificationResponse](c, "TestNotification", TestNotificationRequest{})
}

// LogTail returns log lines from the daemon.
func (c *Client) LogTail(req LogTailRequest) (*LogTailResponse, error) {
	return call[LogTailResponse](c, "LogTail", req)
}
