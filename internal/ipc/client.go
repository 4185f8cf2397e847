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
		_ = c.client.Close()
	}
	if c.conn != nil {
		return c.conn.Close()
	}
	return nil
}

// Start requests the daemon to start processing.
func (c *Client) Start() (*StartResponse, error) {
	var resp StartResponse
	if err := c.client.Call("Lectern.Start", StartRequest{}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Stop requests the daemon to stop processing.
func (c *Client) Stop() (*StopResponse, error) {
	var resp StopResponse
	if err := c.client.Call("Lectern.Stop", StopRequest{}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Status retrieves the daemon status.
func (c *Client) Status() (*StatusResponse, error) {
	var resp StatusResponse
	if err := c.client.Call("Lectern.Status", StatusRequest{}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// PipelineList returns pipelines optionally filtered by statuses.
func (c *Client) PipelineList(statuses []string) (*PipelineListResponse, error) {
	var resp PipelineListResponse
	req := PipelineListRequest{Statuses: statuses}
	if err := c.client.Call("Lectern.PipelineList", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// PipelineDescribe returns one pipeline with its document and tasks.
func (c *Client) PipelineDescribe(id int64) (*PipelineDescribeResponse, error) {
	var resp PipelineDescribeResponse
	req := PipelineDescribeRequest{ID: id}
	if err := c.client.Call("Lectern.PipelineDescribe", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// TaskList returns the tasks of one pipeline.
func (c *Client) TaskList(pipelineID int64) (*TaskListResponse, error) {
	var resp TaskListResponse
	req := TaskListRequest{PipelineID: pipelineID}
	if err := c.client.Call("Lectern.TaskList", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// RetryFailed resets retryable failed tasks on a pipeline.
func (c *Client) RetryFailed(pipelineID int64) (*RetryFailedResponse, error) {
	var resp RetryFailedResponse
	req := RetryFailedRequest{PipelineID: pipelineID}
	if err := c.client.Call("Lectern.RetryFailed", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// CancelPipeline stops a pipeline that has not completed.
func (c *Client) CancelPipeline(pipelineID int64) (*CancelPipelineResponse, error) {
	var resp CancelPipelineResponse
	req := CancelPipelineRequest{PipelineID: pipelineID}
	if err := c.client.Call("Lectern.CancelPipeline", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// MappingList returns pending chunk-topic mappings for review.
func (c *Client) MappingList(limit int) (*MappingListResponse, error) {
	var resp MappingListResponse
	req := MappingListRequest{Limit: limit}
	if err := c.client.Call("Lectern.MappingList", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// MappingConfirm confirms a proposed mapping.
func (c *Client) MappingConfirm(id int64) (*MappingConfirmResponse, error) {
	var resp MappingConfirmResponse
	req := MappingConfirmRequest{ID: id}
	if err := c.client.Call("Lectern.MappingConfirm", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// MappingReject rejects a proposed mapping.
func (c *Client) MappingReject(id int64) (*MappingRejectResponse, error) {
	var resp MappingRejectResponse
	req := MappingRejectRequest{ID: id}
	if err := c.client.Call("Lectern.MappingReject", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// ReviewList returns validated items awaiting human review.
func (c *Client) ReviewList(limit int) (*ReviewListResponse, error) {
	var resp ReviewListResponse
	req := ReviewListRequest{Limit: limit}
	if err := c.client.Call("Lectern.ReviewList", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// ReviewApprove approves a validated item.
func (c *Client) ReviewApprove(validatedID int64, approvedBy string) (*ReviewApproveResponse, error) {
	var resp ReviewApproveResponse
	req := ReviewApproveRequest{ValidatedID: validatedID, ApprovedBy: approvedBy}
	if err := c.client.Call("Lectern.ReviewApprove", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// ReviewReject rejects a validated item with a reason.
func (c *Client) ReviewReject(validatedID int64, reason, rejectedBy string) (*ReviewRejectResponse, error) {
	var resp ReviewRejectResponse
	req := ReviewRejectRequest{ValidatedID: validatedID, Reason: reason, RejectedBy: rejectedBy}
	if err := c.client.Call("Lectern.ReviewReject", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Ingest registers a source file with the daemon.
func (c *Client) Ingest(req IngestRequest) (*IngestResponse, error) {
	var resp IngestResponse
	if err := c.client.Call("Lectern.Ingest", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Checkpoint retrieves the worker's latest checkpoint.
func (c *Client) Checkpoint() (*CheckpointResponse, error) {
	var resp CheckpointResponse
	if err := c.client.Call("Lectern.Checkpoint", CheckpointRequest{}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// TestNotification triggers a notification test via the daemon.
func (c *Client) TestNotification() (*TestNotificationResponse, error) {
	var resp TestNotificationResponse
	if err := c.client.Call("Lectern.TestNotification", TestNotificationRequest{}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}
