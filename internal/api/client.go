package api

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/mattjoyce/obskey/internal/dispatch"
	"github.com/mattjoyce/obskey/internal/events"
	"github.com/mattjoyce/obskey/internal/journal"
)

// StatusError is a non-2xx answer from the API.
type StatusError struct {
	Code    int
	Message string
}

func (e *StatusError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("api: HTTP %d", e.Code)
	}
	return fmt.Sprintf("api: HTTP %d: %s", e.Code, e.Message)
}

// Client talks to a running obskey API.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
}

// NewClient returns a client for addr, which is either a URL or the
// host:port the server listens on. Wildcard hosts are dialled on loopback.
func NewClient(addr, token string) *Client {
	return &Client{
		baseURL: BaseURL(addr),
		token:   token,
		http:    &http.Client{},
	}
}

// BaseURL turns a listen address into a URL to reach it.
func BaseURL(addr string) string {
	addr = strings.TrimSpace(addr)
	if strings.HasPrefix(addr, "http://") || strings.HasPrefix(addr, "https://") {
		return strings.TrimRight(addr, "/")
	}
	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		return "http://" + addr
	}
	if host == "" || host == "0.0.0.0" || host == "::" {
		host = "127.0.0.1"
	}
	return "http://" + net.JoinHostPort(host, port)
}

// URL returns the base URL requests go to.
func (c *Client) URL() string { return c.baseURL }

// Health calls GET /healthz.
func (c *Client) Health(ctx context.Context) (HealthzResponse, error) {
	var out HealthzResponse
	err := c.do(ctx, http.MethodGet, "/healthz", &out)
	return out, err
}

// Plugins calls GET /plugins.
func (c *Client) Plugins(ctx context.Context) ([]dispatch.Info, error) {
	var out PluginsResponse
	if err := c.do(ctx, http.MethodGet, "/plugins", &out); err != nil {
		return nil, err
	}
	return out.Plugins, nil
}

// Trigger runs a hotkey plugin. When the plugin ran and failed, the execution
// is returned together with a *StatusError.
func (c *Client) Trigger(ctx context.Context, name string) (journal.Execution, error) {
	var out TriggerResponse
	err := c.do(ctx, http.MethodPost, "/plugins/"+url.PathEscape(name)+"/trigger", &out)
	return out.Execution, err
}

// Executions calls GET /executions. limit <= 0 uses the server default.
func (c *Client) Executions(ctx context.Context, limit int) ([]journal.Execution, error) {
	path := "/executions"
	if limit > 0 {
		path += "?limit=" + strconv.Itoa(limit)
	}
	var out ExecutionsResponse
	if err := c.do(ctx, http.MethodGet, path, &out); err != nil {
		return nil, err
	}
	return out.Executions, nil
}

// Stream follows GET /events/stream, calling fn for every event after
// lastID. It returns when ctx is done or the server ends the stream.
func (c *Client) Stream(ctx context.Context, lastID int64, fn func(events.Event)) error {
	req, err := c.request(ctx, http.MethodGet, "/events/stream")
	if err != nil {
		return err
	}
	if lastID > 0 {
		req.Header.Set("Last-Event-ID", strconv.FormatInt(lastID, 10))
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return statusError(resp)
	}

	scanner := bufio.NewScanner(resp.Body)
	var (
		current events.Event
		data    string
	)
	for scanner.Scan() {
		line := scanner.Text()

		if line == "" {
			if data != "" {
				current.Data = json.RawMessage(data)
				if current.At.IsZero() {
					current.At = time.Now()
				}
				fn(current)
			}
			current, data = events.Event{}, ""
			continue
		}

		switch {
		case strings.HasPrefix(line, "id: "):
			if id, err := strconv.ParseInt(line[4:], 10, 64); err == nil {
				current.ID = id
			}
		case strings.HasPrefix(line, "event: "):
			current.Type = line[7:]
		case strings.HasPrefix(line, "data: "):
			data = line[6:]
		}
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}
	return scanner.Err()
}

func (c *Client) request(ctx context.Context, method, path string) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, nil)
	if err != nil {
		return nil, err
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	return req, nil
}

func (c *Client) do(ctx context.Context, method, path string, out any) error {
	req, err := c.request(ctx, method, path)
	if err != nil {
		return err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		if err := json.Unmarshal(body, out); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
		return nil
	}

	// A failed trigger still carries its execution.
	var tr TriggerResponse
	if json.Unmarshal(body, &tr) == nil && tr.Execution.ID != "" {
		if dst, ok := out.(*TriggerResponse); ok {
			*dst = tr
		}
		return &StatusError{Code: resp.StatusCode, Message: tr.Error}
	}

	var e ErrorResponse
	_ = json.Unmarshal(body, &e)
	return &StatusError{Code: resp.StatusCode, Message: e.Error}
}

func statusError(resp *http.Response) error {
	var e ErrorResponse
	_ = json.NewDecoder(resp.Body).Decode(&e)
	return &StatusError{Code: resp.StatusCode, Message: e.Error}
}
