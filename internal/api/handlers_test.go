package api

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mattjoyce/obskey/internal/dispatch"
	"github.com/mattjoyce/obskey/internal/events"
	"github.com/mattjoyce/obskey/internal/journal"
	"github.com/mattjoyce/obskey/internal/storage"
)

type fakeDispatcher struct {
	plugins []dispatch.Info
	trigger func(ctx context.Context, name string) (journal.Execution, error)
}

func (f *fakeDispatcher) Plugins() []dispatch.Info { return f.plugins }

func (f *fakeDispatcher) Trigger(ctx context.Context, name string) (journal.Execution, error) {
	return f.trigger(ctx, name)
}

func defaultDispatcher() *fakeDispatcher {
	return &fakeDispatcher{
		plugins: []dispatch.Info{
			{Name: "armed", Kind: dispatch.KindBackground},
			{Name: "safe", Kind: dispatch.KindHotkey, Hotkey: "Ctrl+Shift+S", HotkeyID: 1},
		},
		trigger: func(_ context.Context, name string) (journal.Execution, error) {
			switch name {
			case "safe":
				return journal.Execution{ID: "e1", Plugin: "safe", Source: journal.SourceAPI, Status: journal.StatusSucceeded, Output: "Safe scene active: Gameplay -> SAFE"}, nil
			case "broken":
				return journal.Execution{ID: "e2", Plugin: "broken", Status: journal.StatusFailed, Error: "boom"}, errors.New(`plugin "broken": boom`)
			case "armed":
				return journal.Execution{}, fmt.Errorf("%w: armed", dispatch.ErrNotTriggerable)
			case "stuck":
				return journal.Execution{}, context.DeadlineExceeded
			}
			return journal.Execution{}, fmt.Errorf("%w: %s", dispatch.ErrUnknownPlugin, name)
		},
	}
}

func newTestServer(t *testing.T, cfg Config, d Dispatcher) (*httptest.Server, *journal.Store, *events.Hub) {
	t.Helper()

	db, err := storage.OpenSQLite(context.Background(), storage.Memory)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	store := journal.New(db)
	hub := events.NewHub(16)
	logger := slog.New(slog.NewJSONHandler(io.Discard, nil))

	srv := httptest.NewServer(New(cfg, d, store, hub, logger).Handler())
	t.Cleanup(srv.Close)
	return srv, store, hub
}

func do(t *testing.T, method, url, token string) (*http.Response, []byte) {
	t.Helper()
	req, err := http.NewRequest(method, url, nil)
	require.NoError(t, err)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, body
}

func TestHealthz_NoAuth(t *testing.T) {
	srv, _, _ := newTestServer(t, Config{Token: "secret"}, defaultDispatcher())

	resp, body := do(t, http.MethodGet, srv.URL+"/healthz", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var h HealthzResponse
	require.NoError(t, json.Unmarshal(body, &h))
	assert.Equal(t, "ok", h.Status)
	assert.Equal(t, 1, h.HotkeyPlugins)
	assert.Equal(t, 1, h.Background)
}

func TestAuthRequired(t *testing.T) {
	srv, _, _ := newTestServer(t, Config{Token: "secret"}, defaultDispatcher())

	resp, _ := do(t, http.MethodGet, srv.URL+"/plugins", "")
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp, _ = do(t, http.MethodGet, srv.URL+"/plugins", "wrong")
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp, _ = do(t, http.MethodGet, srv.URL+"/plugins", "secret")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestAuthDisabledWithoutToken(t *testing.T) {
	srv, _, _ := newTestServer(t, Config{}, defaultDispatcher())
	resp, _ := do(t, http.MethodGet, srv.URL+"/plugins", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestPlugins(t *testing.T) {
	srv, _, _ := newTestServer(t, Config{}, defaultDispatcher())

	_, body := do(t, http.MethodGet, srv.URL+"/plugins", "")
	var got PluginsResponse
	require.NoError(t, json.Unmarshal(body, &got))
	require.Len(t, got.Plugins, 2)
	assert.Equal(t, "safe", got.Plugins[1].Name)
	assert.Equal(t, "Ctrl+Shift+S", got.Plugins[1].Hotkey)
}

func TestTrigger(t *testing.T) {
	srv, _, _ := newTestServer(t, Config{}, defaultDispatcher())

	tests := []struct {
		name   string
		status int
	}{
		{"safe", http.StatusOK},
		{"broken", http.StatusBadGateway},
		{"armed", http.StatusConflict},
		{"missing", http.StatusNotFound},
		{"stuck", http.StatusGatewayTimeout},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, body := do(t, http.MethodPost, srv.URL+"/plugins/"+tt.name+"/trigger", "")
			assert.Equal(t, tt.status, resp.StatusCode, string(body))
		})
	}

	_, body := do(t, http.MethodPost, srv.URL+"/plugins/safe/trigger", "")
	var ok TriggerResponse
	require.NoError(t, json.Unmarshal(body, &ok))
	assert.Equal(t, "e1", ok.Execution.ID)
	assert.Contains(t, ok.Execution.Output, "SAFE")

	_, body = do(t, http.MethodPost, srv.URL+"/plugins/broken/trigger", "")
	var failed TriggerResponse
	require.NoError(t, json.Unmarshal(body, &failed))
	assert.Equal(t, journal.StatusFailed, failed.Execution.Status)
	assert.Contains(t, failed.Error, "boom")
}

func TestTrigger_MethodNotAllowed(t *testing.T) {
	srv, _, _ := newTestServer(t, Config{}, defaultDispatcher())
	resp, _ := do(t, http.MethodGet, srv.URL+"/plugins/safe/trigger", "")
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
}

func TestExecutions(t *testing.T) {
	srv, store, _ := newTestServer(t, Config{}, defaultDispatcher())

	base := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)
	for i := range 3 {
		require.NoError(t, store.Record(context.Background(), journal.Execution{
			ID:         fmt.Sprintf("e%d", i),
			Plugin:     "safe",
			Source:     journal.SourceHotkey,
			HotkeyID:   1,
			Status:     journal.StatusSucceeded,
			StartedAt:  base.Add(time.Duration(i) * time.Second),
			FinishedAt: base.Add(time.Duration(i) * time.Second),
		}))
	}

	_, body := do(t, http.MethodGet, srv.URL+"/executions?limit=2", "")
	var got ExecutionsResponse
	require.NoError(t, json.Unmarshal(body, &got))
	require.Len(t, got.Executions, 2)
	assert.Equal(t, "e2", got.Executions[0].ID)

	for _, bad := range []string{"0", "-1", "abc", "1001"} {
		resp, _ := do(t, http.MethodGet, srv.URL+"/executions?limit="+bad, "")
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode, "limit=%s", bad)
	}
}

func TestEvents(t *testing.T) {
	srv, _, hub := newTestServer(t, Config{}, defaultDispatcher())

	hub.Publish(events.TypeExecuted, map[string]string{"plugin": "safe"})
	hub.Publish(events.TypeFailed, map[string]string{"plugin": "safe"})

	_, body := do(t, http.MethodGet, srv.URL+"/events", "")
	var all EventsResponse
	require.NoError(t, json.Unmarshal(body, &all))
	require.Len(t, all.Events, 2)

	_, body = do(t, http.MethodGet, srv.URL+"/events?since=1", "")
	var later EventsResponse
	require.NoError(t, json.Unmarshal(body, &later))
	require.Len(t, later.Events, 1)
	assert.Equal(t, events.TypeFailed, later.Events[0].Type)

	resp, _ := do(t, http.MethodGet, srv.URL+"/events?since=x", "")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestEventStream(t *testing.T) {
	srv, _, hub := newTestServer(t, Config{}, defaultDispatcher())
	hub.Publish(events.TypeExecuted, map[string]string{"plugin": "safe"})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/events/stream", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	reader := bufio.NewReader(resp.Body)
	readFrame := func() []string {
		var lines []string
		for {
			line, err := reader.ReadString('\n')
			require.NoError(t, err)
			line = strings.TrimRight(line, "\n")
			if line == "" {
				return lines
			}
			lines = append(lines, line)
		}
	}

	assert.Equal(t, []string{"id: 1", "event: plugin.executed", `data: {"plugin":"safe"}`}, readFrame())

	hub.Publish(events.TypeFailed, map[string]string{"plugin": "safe"})
	assert.Equal(t, []string{"id: 2", "event: plugin.failed", `data: {"plugin":"safe"}`}, readFrame())
}

func TestOpenAPI(t *testing.T) {
	srv, _, _ := newTestServer(t, Config{}, defaultDispatcher())

	_, body := do(t, http.MethodGet, srv.URL+"/openapi.json", "")
	var doc map[string]any
	require.NoError(t, json.Unmarshal(body, &doc))
	paths := doc["paths"].(map[string]any)
	assert.Contains(t, paths, "/plugins/safe/trigger")
	assert.NotContains(t, paths, "/plugins/armed/trigger")
}

func TestServe_ShutsDownOnCancel(t *testing.T) {
	s := New(Config{Listen: "127.0.0.1:0"}, defaultDispatcher(), nil, nil, slog.New(slog.NewJSONHandler(io.Discard, nil)))

	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() { errc <- s.Start(ctx) }()

	cancel()
	select {
	case err := <-errc:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop")
	}
}

func TestDisabledJournalAndEvents(t *testing.T) {
	s := New(Config{}, defaultDispatcher(), nil, nil, slog.New(slog.NewJSONHandler(io.Discard, nil)))
	srv := httptest.NewServer(s.Handler())
	t.Cleanup(srv.Close)

	resp, _ := do(t, http.MethodGet, srv.URL+"/executions", "")
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	resp, _ = do(t, http.MethodGet, srv.URL+"/events", "")
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}
