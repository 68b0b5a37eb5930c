// Package obs is a minimal obs-websocket v5 client.
//
// One Client is one authenticated session. It is safe for concurrent use:
// requests from many goroutines are multiplexed over the single websocket and
// matched to their responses by request id.
package obs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/mattjoyce/obskey/internal/log"
)

var (
	// ErrAuthRequired is returned when the server asks for a password and none is configured.
	ErrAuthRequired = errors.New("obs: server requires authentication")
	// ErrAuthFailed is returned when the server rejects the password.
	ErrAuthFailed = errors.New("obs: authentication failed")
	// ErrUnsupportedRPC is returned when the server cannot speak our RPC version.
	ErrUnsupportedRPC = errors.New("obs: server does not support rpc version")
	// ErrClosed is returned by calls on a closed session.
	ErrClosed = errors.New("obs: session closed")
)

// defaultHandshakeTimeout bounds Dial when ctx carries no deadline.
const defaultHandshakeTimeout = 10 * time.Second

// RequestError is a request the server answered with a failure status.
type RequestError struct {
	RequestType string
	Code        int
	Comment     string
}

func (e *RequestError) Error() string {
	if e.Comment == "" {
		return fmt.Sprintf("obs: %s failed with code %d", e.RequestType, e.Code)
	}
	return fmt.Sprintf("obs: %s failed with code %d: %s", e.RequestType, e.Code, e.Comment)
}

// Options describes the endpoint to connect to.
type Options struct {
	Host     string
	Port     int
	Password string
}

// URL returns the websocket URL for the endpoint.
func (o Options) URL() string {
	return "ws://" + net.JoinHostPort(o.Host, strconv.Itoa(o.Port))
}

// Client is a connected obs-websocket session.
type Client struct {
	conn   *websocket.Conn
	logger *slog.Logger

	writeMu sync.Mutex

	mu      sync.Mutex
	pending map[string]chan RequestResponse
	err     error

	done      chan struct{}
	closeOnce sync.Once

	rpcVersion int
}

// Dial opens the websocket, completes the Hello/Identify handshake and starts
// the response reader.
func Dial(ctx context.Context, opts Options) (*Client, error) {
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, defaultHandshakeTimeout)
		defer cancel()
	}

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, opts.URL(), nil)
	if err != nil {
		return nil, fmt.Errorf("obs: dial %s: %w", opts.URL(), err)
	}

	c := &Client{
		conn:    conn,
		logger:  log.WithComponent("obs").With("endpoint", opts.URL()),
		pending: make(map[string]chan RequestResponse),
		done:    make(chan struct{}),
	}

	if err := c.handshake(ctx, opts.Password); err != nil {
		_ = conn.Close()
		return nil, err
	}

	go c.readLoop()
	return c, nil
}

func (c *Client) handshake(ctx context.Context, password string) error {
	if deadline, ok := ctx.Deadline(); ok {
		_ = c.conn.SetReadDeadline(deadline)
		defer func() { _ = c.conn.SetReadDeadline(time.Time{}) }()
	}

	var hello Hello
	if err := c.readOp(OpHello, &hello); err != nil {
		return fmt.Errorf("obs: read hello: %w", err)
	}
	c.logger.Debug("received hello", "obs_websocket_version", hello.ObsWebSocketVersion, "rpc_version", hello.RPCVersion)

	ident := Identify{RPCVersion: RPCVersion}
	if hello.Authentication != nil {
		if password == "" {
			return ErrAuthRequired
		}
		ident.Authentication = AuthResponse(password, *hello.Authentication)
	}
	if err := c.write(OpIdentify, ident); err != nil {
		return fmt.Errorf("obs: send identify: %w", err)
	}

	var identified Identified
	if err := c.readOp(OpIdentified, &identified); err != nil {
		if websocket.IsCloseError(err, CloseAuthenticationFailed) {
			return ErrAuthFailed
		}
		if websocket.IsCloseError(err, CloseUnsupportedRPC) {
			return fmt.Errorf("%w %d", ErrUnsupportedRPC, RPCVersion)
		}
		return fmt.Errorf("obs: read identified: %w", err)
	}
	c.rpcVersion = identified.NegotiatedRPCVersion
	return nil
}

// readOp reads one frame and decodes its payload, which must carry op.
func (c *Client) readOp(op int, out any) error {
	_, data, err := c.conn.ReadMessage()
	if err != nil {
		return err
	}
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		return fmt.Errorf("decode frame: %w", err)
	}
	if msg.Op != op {
		return fmt.Errorf("unexpected op %d (want %d)", msg.Op, op)
	}
	return json.Unmarshal(msg.D, out)
}

func (c *Client) write(op int, d any) error {
	frame, err := Encode(op, d)
	if err != nil {
		return err
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.conn.WriteMessage(websocket.TextMessage, frame)
}

func (c *Client) readLoop() {
	var err error
	defer func() { c.fail(err) }()

	for {
		var data []byte
		_, data, err = c.conn.ReadMessage()
		if err != nil {
			return
		}

		var msg Message
		if jerr := json.Unmarshal(data, &msg); jerr != nil {
			c.logger.Warn("dropping undecodable frame", "error", jerr)
			continue
		}

		switch msg.Op {
		case OpRequestResponse:
			var resp RequestResponse
			if jerr := json.Unmarshal(msg.D, &resp); jerr != nil {
				c.logger.Warn("dropping undecodable response", "error", jerr)
				continue
			}
			c.mu.Lock()
			ch, ok := c.pending[resp.RequestID]
			delete(c.pending, resp.RequestID)
			c.mu.Unlock()
			if !ok {
				c.logger.Debug("response for unknown request", "request_id", resp.RequestID, "request_type", resp.RequestType)
				continue
			}
			ch <- resp
		case OpEvent:
			// No event subscriptions are requested.
		default:
			c.logger.Debug("ignoring frame", "op", msg.Op)
		}
	}
}

// fail records the terminal error once and wakes every waiter.
func (c *Client) fail(err error) {
	c.mu.Lock()
	if c.err == nil {
		if err == nil {
			err = ErrClosed
		}
		c.err = err
	}
	c.pending = make(map[string]chan RequestResponse)
	c.mu.Unlock()

	c.closeOnce.Do(func() { close(c.done) })
}

// Call sends requestType with data and decodes the response payload into out
// (which may be nil).
func (c *Client) Call(ctx context.Context, requestType string, data any, out any) error {
	id := uuid.NewString()
	ch := make(chan RequestResponse, 1)

	c.mu.Lock()
	if c.err != nil {
		err := c.err
		c.mu.Unlock()
		return fmt.Errorf("%w: %v", ErrClosed, err)
	}
	c.pending[id] = ch
	c.mu.Unlock()

	if err := c.write(OpRequest, Request{RequestType: requestType, RequestID: id, RequestData: data}); err != nil {
		c.forget(id)
		return fmt.Errorf("obs: send %s: %w", requestType, err)
	}

	select {
	case <-ctx.Done():
		c.forget(id)
		return ctx.Err()
	case <-c.done:
		c.mu.Lock()
		err := c.err
		c.mu.Unlock()
		return fmt.Errorf("%w: %v", ErrClosed, err)
	case resp := <-ch:
		if !resp.RequestStatus.Result {
			return &RequestError{
				RequestType: requestType,
				Code:        resp.RequestStatus.Code,
				Comment:     resp.RequestStatus.Comment,
			}
		}
		if out != nil && len(resp.ResponseData) > 0 {
			if err := json.Unmarshal(resp.ResponseData, out); err != nil {
				return fmt.Errorf("obs: decode %s response: %w", requestType, err)
			}
		}
		return nil
	}
}

func (c *Client) forget(id string) {
	c.mu.Lock()
	delete(c.pending, id)
	c.mu.Unlock()
}

// RPCVersionNegotiated returns the RPC version agreed during the handshake.
func (c *Client) RPCVersionNegotiated() int { return c.rpcVersion }

// Done is closed once the session has ended.
func (c *Client) Done() <-chan struct{} { return c.done }

// Close sends a normal close frame and tears the connection down.
func (c *Client) Close() error {
	c.writeMu.Lock()
	_ = c.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
	c.writeMu.Unlock()

	err := c.conn.Close()
	<-c.done
	return err
}
