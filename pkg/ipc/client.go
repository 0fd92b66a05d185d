package ipc

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"syscall"
	"time"

	"github.com/google/uuid"

	gwerrors "github.com/ajitpratap0/mcp-gateway-go/pkg/errors"
)

// DefaultTimeout bounds one control round trip.
const DefaultTimeout = 5 * time.Second

// Client talks to a running gateway's control socket. Each call opens a
// fresh connection, writes one request line, awaits exactly one response
// line with a matching id, and closes.
type Client struct {
	path    string
	timeout time.Duration
}

// ClientOption configures a Client
type ClientOption func(*Client)

// WithTimeout overrides the round-trip timeout
func WithTimeout(timeout time.Duration) ClientOption {
	return func(c *Client) {
		if timeout > 0 {
			c.timeout = timeout
		}
	}
}

// NewClient creates a control channel client for the given socket path.
func NewClient(path string, opts ...ClientOption) *Client {
	c := &Client{
		path:    path,
		timeout: DefaultTimeout,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Reload asks the gateway to hot-reload its connector configuration.
func (c *Client) Reload(ctx context.Context) (ReloadResult, error) {
	response, err := c.call(ctx, CommandReload)
	if err != nil {
		return ReloadResult{}, err
	}
	if response.Type == ResponseError {
		return ReloadResult{}, gwerrors.ControlError("reload", errors.New(response.Message))
	}
	if response.Reload == nil {
		return ReloadResult{}, gwerrors.ControlError("reload", errors.New("response missing reload result"))
	}
	return *response.Reload, nil
}

// Stop asks the gateway to shut down. A connection that closes immediately
// after the request is treated as success: the server may exit before the
// reply flushes.
func (c *Client) Stop(ctx context.Context) error {
	response, err := c.call(ctx, CommandStop)
	if err != nil {
		if errors.Is(err, io.EOF) || isConnReset(err) {
			return nil
		}
		return err
	}
	if response.Type == ResponseError {
		return gwerrors.ControlError("stop", errors.New(response.Message))
	}
	return nil
}

// Status fetches the runtime state snapshot.
func (c *Client) Status(ctx context.Context) (StatusPayload, error) {
	response, err := c.call(ctx, CommandStatus)
	if err != nil {
		return StatusPayload{}, err
	}
	if response.Type == ResponseError {
		return StatusPayload{}, gwerrors.ControlError("status", errors.New(response.Message))
	}
	if response.Status == nil {
		return StatusPayload{}, gwerrors.ControlError("status", errors.New("response missing status payload"))
	}
	return *response.Status, nil
}

// call performs one request/response round trip. A timeout counts as
// failure and tears the connection down.
func (c *Client) call(ctx context.Context, command CommandType) (*Response, error) {
	deadline := time.Now().Add(c.timeout)
	if ctxDeadline, ok := ctx.Deadline(); ok && ctxDeadline.Before(deadline) {
		deadline = ctxDeadline
	}

	dialer := net.Dialer{Deadline: deadline}
	conn, err := dialer.DialContext(ctx, "unix", c.path)
	if err != nil {
		return nil, gwerrors.ControlError("dial", err)
	}
	defer conn.Close()

	if err := conn.SetDeadline(deadline); err != nil {
		return nil, gwerrors.ControlError("deadline", err)
	}

	id := uuid.NewString()
	request := Message{
		ID:      id,
		Kind:    KindRequest,
		Command: &Command{Type: command},
	}
	data, err := json.Marshal(request)
	if err != nil {
		return nil, gwerrors.ControlError("marshal", err)
	}
	data = append(data, '\n')
	if _, err := conn.Write(data); err != nil {
		return nil, wrapTransport("write", err)
	}

	reader := bufio.NewReader(conn)
	line, err := reader.ReadBytes('\n')
	if err != nil {
		if len(line) == 0 {
			return nil, wrapTransport("read", err)
		}
		// A response without a trailing newline still counts if complete.
	}

	var msg Message
	if err := json.Unmarshal(line, &msg); err != nil {
		return nil, gwerrors.ControlError("decode", err)
	}
	if msg.Kind != KindResponse || msg.Response == nil {
		return nil, gwerrors.ControlError("decode", errors.New("expected a response message"))
	}
	if msg.ID != id {
		return nil, gwerrors.ControlError("decode",
			fmt.Errorf("response id %q does not match request id %q", msg.ID, id))
	}
	return msg.Response, nil
}

// wrapTransport keeps io.EOF and reset errors reachable through errors.Is
// so Stop can recognize a server that exited before flushing.
func wrapTransport(operation string, err error) error {
	return fmt.Errorf("control channel %s failed: %w", operation, err)
}

func isConnReset(err error) bool {
	return errors.Is(err, syscall.ECONNRESET) || errors.Is(err, syscall.EPIPE)
}
