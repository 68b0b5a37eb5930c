package api

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mattjoyce/obskey/internal/events"
	"github.com/mattjoyce/obskey/internal/journal"
)

func TestBaseURL(t *testing.T) {
	t.Parallel()

	tests := map[string]string{
		"127.0.0.1:4466":       "http://127.0.0.1:4466",
		"0.0.0.0:4466":         "http://127.0.0.1:4466",
		":4466":                "http://127.0.0.1:4466",
		"[::]:4466":            "http://127.0.0.1:4466",
		"http://obs-box:4466/": "http://obs-box:4466",
		"https://example.test": "https://example.test",
		"localhost:9000":       "http://localhost:9000",
	}
	for in, want := range tests {
		assert.Equal(t, want, BaseURL(in), in)
	}
}

func TestClient_RoundTrip(t *testing.T) {
	srv, store, _ := newTestServer(t, Config{Token: "secret"}, defaultDispatcher())
	ctx := context.Background()
	c := NewClient(srv.URL, "secret")

	h, err := c.Health(ctx)
	require.NoError(t, err)
	assert.Equal(t, "ok", h.Status)

	plugins, err := c.Plugins(ctx)
	require.NoError(t, err)
	assert.Len(t, plugins, 2)

	exec, err := c.Trigger(ctx, "safe")
	require.NoError(t, err)
	assert.Equal(t, journal.StatusSucceeded, exec.Status)

	require.NoError(t, store.Record(ctx, journal.Execution{
		ID: "x1", Plugin: "safe", Source: journal.SourceAPI, Status: journal.StatusSucceeded,
		StartedAt: time.Now(), FinishedAt: time.Now(),
	}))
	execs, err := c.Executions(ctx, 10)
	require.NoError(t, err)
	require.Len(t, execs, 1)
	assert.Equal(t, "x1", execs[0].ID)
}

func TestClient_Errors(t *testing.T) {
	srv, _, _ := newTestServer(t, Config{Token: "secret"}, defaultDispatcher())
	ctx := context.Background()

	_, err := NewClient(srv.URL, "wrong").Plugins(ctx)
	var se *StatusError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, http.StatusUnauthorized, se.Code)

	c := NewClient(srv.URL, "secret")
	exec, err := c.Trigger(ctx, "broken")
	require.ErrorAs(t, err, &se)
	assert.Equal(t, http.StatusBadGateway, se.Code)
	assert.Contains(t, se.Message, "boom")
	assert.Equal(t, "e2", exec.ID, "failed execution is still returned")

	_, err = c.Trigger(ctx, "missing")
	require.ErrorAs(t, err, &se)
	assert.Equal(t, http.StatusNotFound, se.Code)
}

func TestClient_Stream(t *testing.T) {
	srv, _, hub := newTestServer(t, Config{}, defaultDispatcher())
	hub.Publish(events.TypeExecuted, map[string]string{"plugin": "safe"})
	hub.Publish(events.TypeFailed, map[string]string{"plugin": "safe"})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	got := make(chan events.Event, 4)
	errc := make(chan error, 1)
	go func() {
		errc <- NewClient(srv.URL, "").Stream(ctx, 1, func(e events.Event) { got <- e })
	}()

	select {
	case e := <-got:
		assert.Equal(t, int64(2), e.ID, "replay starts after Last-Event-ID")
		assert.Equal(t, events.TypeFailed, e.Type)
		assert.JSONEq(t, `{"plugin":"safe"}`, string(e.Data))
	case <-ctx.Done():
		t.Fatal("no event received")
	}

	hub.Publish(events.TypeHotkeyUnbound, map[string]uint32{"hotkey_id": 9})
	select {
	case e := <-got:
		assert.Equal(t, events.TypeHotkeyUnbound, e.Type)
	case <-ctx.Done():
		t.Fatal("no live event received")
	}

	cancel()
	err := <-errc
	assert.True(t, err == nil || errors.Is(err, context.Canceled), "unexpected error: %v", err)
}
