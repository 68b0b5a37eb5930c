package watch

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mattjoyce/obskey/internal/api"
	"github.com/mattjoyce/obskey/internal/dispatch"
	"github.com/mattjoyce/obskey/internal/events"
	"github.com/mattjoyce/obskey/internal/journal"
)

type fakeAPI struct {
	plugins   []dispatch.Info
	triggered []string
}

func (f *fakeAPI) Health(context.Context) (api.HealthzResponse, error) {
	return api.HealthzResponse{Status: "ok", HotkeyPlugins: 1, Background: 1}, nil
}

func (f *fakeAPI) Plugins(context.Context) ([]dispatch.Info, error) { return f.plugins, nil }

func (f *fakeAPI) Trigger(_ context.Context, name string) (journal.Execution, error) {
	f.triggered = append(f.triggered, name)
	return journal.Execution{ID: "e1", Plugin: name, Status: journal.StatusSucceeded, Output: "Safe scene active: Gameplay -> SAFE"}, nil
}

func (f *fakeAPI) Stream(ctx context.Context, _ int64, _ func(events.Event)) error {
	<-ctx.Done()
	return ctx.Err()
}

func testPlugins() []dispatch.Info {
	return []dispatch.Info{
		{Name: "armed", Kind: dispatch.KindBackground},
		{Name: "safe", Kind: dispatch.KindHotkey, Hotkey: "Ctrl+Shift+S", HotkeyID: 1},
	}
}

func newTestModel(t *testing.T) (Model, *fakeAPI) {
	t.Helper()
	f := &fakeAPI{plugins: testPlugins()}
	m := New(context.Background(), f, "http://127.0.0.1:4466")
	m.now = func() time.Time { return time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC) }

	m = update(t, m, tea.WindowSizeMsg{Width: 120, Height: 40})
	m = update(t, m, pluginsMsg(f.plugins))
	return m, f
}

func update(t *testing.T, m Model, msg tea.Msg) Model {
	t.Helper()
	next, _ := m.Update(msg)
	out, ok := next.(Model)
	require.True(t, ok)
	return out
}

func executedEvent(t *testing.T, id int64, exec journal.Execution) events.Event {
	t.Helper()
	data, err := json.Marshal(exec)
	require.NoError(t, err)
	typ := events.TypeExecuted
	if exec.Status != journal.StatusSucceeded {
		typ = events.TypeFailed
	}
	return events.Event{ID: id, Type: typ, At: time.Now(), Data: data}
}

func TestModel_ViewListsPlugins(t *testing.T) {
	m, _ := newTestModel(t)
	view := m.View()
	assert.Contains(t, view, "OBSKEY WATCH")
	assert.Contains(t, view, "safe")
	assert.Contains(t, view, "Ctrl+Shift+S")
	assert.Contains(t, view, "Waiting for events")
}

func TestModel_ViewBeforeResize(t *testing.T) {
	m := New(context.Background(), &fakeAPI{}, "x")
	assert.Contains(t, m.View(), "Initializing")
}

func TestModel_QuitKey(t *testing.T) {
	m, _ := newTestModel(t)
	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("q")})
	require.NotNil(t, cmd)
	assert.IsType(t, tea.QuitMsg{}, cmd())
}

func TestModel_EventUpdatesStatusAndLog(t *testing.T) {
	m, _ := newTestModel(t)

	ev := executedEvent(t, 7, journal.Execution{ID: "e1", Plugin: "safe", Source: journal.SourceHotkey, Status: journal.StatusFailed, Error: "boom"})
	next, cmd := m.Update(eventMsg(ev))
	m = next.(Model)

	assert.NotNil(t, cmd)
	assert.Equal(t, int64(7), m.lastID)
	assert.Equal(t, journal.StatusFailed, m.last["safe"])
	assert.Equal(t, 1, m.activity.Count())
	assert.True(t, m.health.Connected)
	require.Len(t, m.eventLog, 1)
	assert.Contains(t, m.View(), "boom")
}

func TestModel_EventLogIsCapped(t *testing.T) {
	m, _ := newTestModel(t)
	for i := range maxEventLog + 5 {
		m = update(t, m, eventMsg(events.Event{ID: int64(i + 1), Type: events.TypeHotkeyUnbound, Data: json.RawMessage(`{"hotkey_id":9}`)}))
	}
	assert.Len(t, m.eventLog, maxEventLog)
	assert.Equal(t, int64(maxEventLog+5), m.eventLog[0].ID, "newest first")
}

func TestModel_TriggerSelectedHotkeyPlugin(t *testing.T) {
	m, f := newTestModel(t)

	// Row 0 is the background plugin.
	m = update(t, m, tea.KeyMsg{Type: tea.KeyDown})
	next, cmd := m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	m = next.(Model)
	require.NotNil(t, cmd)
	assert.Contains(t, m.notice, "triggering safe")

	msg := cmd()
	res, ok := msg.(triggerMsg)
	require.True(t, ok, "got %T", msg)
	assert.Equal(t, []string{"safe"}, f.triggered)

	m = update(t, m, res)
	assert.Contains(t, m.notice, "SAFE")
	assert.Equal(t, journal.StatusSucceeded, m.last["safe"])
}

func TestModel_TriggerBackgroundPluginRefused(t *testing.T) {
	m, f := newTestModel(t)

	next, cmd := m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	m = next.(Model)
	assert.Nil(t, cmd)
	assert.Contains(t, m.notice, "background plugin")
	assert.Empty(t, f.triggered)
}

func TestModel_TriggerFailureShown(t *testing.T) {
	m, _ := newTestModel(t)

	m = update(t, m, triggerMsg{name: "safe", err: &api.StatusError{Code: 404, Message: "unknown plugin"}})
	assert.Contains(t, m.notice, "unknown plugin")
	_, tracked := m.last["safe"]
	assert.False(t, tracked)

	m = update(t, m, triggerMsg{
		name: "safe",
		exec: journal.Execution{ID: "e2", Status: journal.StatusTimedOut, Error: "timed out after 1s"},
		err:  errors.New("plugin failed"),
	})
	assert.Contains(t, m.notice, "timed out")
	assert.Equal(t, journal.StatusTimedOut, m.last["safe"])
}

func TestModel_StreamClosedReconnects(t *testing.T) {
	m, _ := newTestModel(t)
	m.health.Connected = true

	next, cmd := m.Update(streamClosedMsg{err: &api.StatusError{Code: 401, Message: "invalid token"}})
	m = next.(Model)
	assert.NotNil(t, cmd)
	assert.False(t, m.health.Connected)
	assert.Contains(t, m.lastError, "invalid token")
}

func TestModel_HealthError(t *testing.T) {
	m, _ := newTestModel(t)
	m.health.Connected = true

	next, cmd := m.Update(errMsg{err: errors.New("connection refused"), health: true})
	m = next.(Model)
	assert.NotNil(t, cmd, "health poll reschedules")
	assert.False(t, m.health.Connected)

	_, cmd = m.Update(errMsg{err: errors.New("plugins failed")})
	assert.Nil(t, cmd)
}

func TestDescribeEvent(t *testing.T) {
	ok := executedEvent(t, 1, journal.Execution{Plugin: "safe", Source: journal.SourceAPI, Status: journal.StatusSucceeded, Output: "Switched back: SAFE -> Gameplay"})
	assert.Equal(t, "safe (api) Switched back: SAFE -> Gameplay", describeEvent(ok))

	unbound := events.Event{Type: events.TypeHotkeyUnbound, Data: json.RawMessage(`{"hotkey_id":42}`)}
	assert.Equal(t, "hotkey id 42 has no plugin", describeEvent(unbound))

	other := events.Event{Type: "something.else", Data: json.RawMessage(`"` + strings.Repeat("x", 100) + `"`)}
	assert.True(t, strings.HasSuffix(describeEvent(other), "..."))
}

func TestActivityDots(t *testing.T) {
	var a Activity
	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	assert.Equal(t, 0, a.Dots(now))

	a.OnEvent(now)
	assert.Equal(t, 5, a.Dots(now))
	assert.Equal(t, 3, a.Dots(now.Add(5*time.Second)))
	assert.Equal(t, 0, a.Dots(now.Add(activityWindow)))
}

func TestFormatDuration(t *testing.T) {
	assert.Equal(t, "42s", formatDuration(42*time.Second))
	assert.Equal(t, "2m 5s", formatDuration(125*time.Second))
	assert.Equal(t, "3h 1m", formatDuration(3*time.Hour+time.Minute))
}
