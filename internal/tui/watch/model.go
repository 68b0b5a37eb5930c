package watch

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/charmbracelet/bubbles/table"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/mattjoyce/obskey/internal/api"
	"github.com/mattjoyce/obskey/internal/dispatch"
	"github.com/mattjoyce/obskey/internal/events"
	"github.com/mattjoyce/obskey/internal/journal"
)

const (
	maxEventLog    = 50
	healthInterval = 5 * time.Second
	reconnectDelay = 3 * time.Second
)

// Model is the BubbleTea model for the watch TUI.
type Model struct {
	ctx context.Context
	api API
	url string

	width  int
	height int

	health   HealthState
	plugins  []dispatch.Info
	last     map[string]journal.Status
	eventLog []events.Event
	lastID   int64
	activity Activity

	table table.Model
	theme Theme

	stream chan events.Event

	notice    string
	lastError string

	now func() time.Time
}

// New creates a watch model. ctx bounds every request the model makes; url
// is only displayed.
func New(ctx context.Context, c API, url string) Model {
	theme := NewDefaultTheme()
	return Model{
		ctx:    ctx,
		api:    c,
		url:    url,
		last:   make(map[string]journal.Status),
		table:  newPluginTable(theme),
		theme:  theme,
		stream: make(chan events.Event, 100),
		now:    time.Now,
	}
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(
		subscribe(m.ctx, m.api, 0, m.stream),
		receive(m.stream),
		fetchHealth(m.ctx, m.api),
		fetchPlugins(m.ctx, m.api),
		tick(),
		tea.EnterAltScreen,
	)
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			return m, tea.Quit
		case "enter", "t":
			return m.triggerSelected()
		case "r":
			return m, tea.Batch(fetchHealth(m.ctx, m.api), fetchPlugins(m.ctx, m.api))
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.table.SetColumns(pluginColumns(m.width - 6))
		m.table.SetWidth(m.width - 6)
		return m, nil

	case tickMsg:
		return m, tick()

	case eventMsg:
		e := events.Event(msg)
		m.eventLog = append([]events.Event{e}, m.eventLog...)
		if len(m.eventLog) > maxEventLog {
			m.eventLog = m.eventLog[:maxEventLog]
		}
		if e.ID > m.lastID {
			m.lastID = e.ID
		}
		m.activity.OnEvent(m.now())
		m.health.Connected = true
		m.lastError = ""

		cmds := []tea.Cmd{receive(m.stream)}
		if exec, ok := executionOf(e); ok {
			m.last[exec.Plugin] = exec.Status
			m.refreshRows()
			// Output lives on the plugin; refetch to show it.
			cmds = append(cmds, fetchPlugins(m.ctx, m.api))
		}
		return m, tea.Batch(cmds...)

	case healthMsg:
		m.health.Status = msg.Status
		m.health.UptimeSeconds = msg.UptimeSeconds
		m.health.HotkeyPlugins = msg.HotkeyPlugins
		m.health.Background = msg.Background
		m.health.Connected = true
		m.health.LastCheck = m.now()
		m.lastError = ""
		return m, fetchHealthAfter(m.ctx, m.api, healthInterval)

	case pluginsMsg:
		m.plugins = []dispatch.Info(msg)
		m.refreshRows()
		return m, nil

	case triggerMsg:
		switch {
		case msg.err == nil:
			m.notice = fmt.Sprintf("%s: %s", msg.name, msg.exec.Output)
			m.last[msg.name] = msg.exec.Status
		case msg.exec.ID != "":
			m.notice = fmt.Sprintf("%s failed: %s", msg.name, msg.exec.Error)
			m.last[msg.name] = msg.exec.Status
		default:
			m.notice = fmt.Sprintf("%s: %v", msg.name, msg.err)
			delete(m.last, msg.name)
		}
		m.refreshRows()
		return m, nil

	case streamClosedMsg:
		m.health.Connected = false
		m.lastError = "event stream disconnected, reconnecting..."
		var se *api.StatusError
		if errors.As(msg.err, &se) {
			m.lastError = se.Error()
		}
		return m, after(reconnectDelay, reconnectMsg{})

	case reconnectMsg:
		return m, subscribe(m.ctx, m.api, m.lastID, m.stream)

	case errMsg:
		m.lastError = msg.err.Error()
		if msg.health {
			m.health.Connected = false
			return m, fetchHealthAfter(m.ctx, m.api, healthInterval)
		}
		return m, nil
	}

	var cmd tea.Cmd
	m.table, cmd = m.table.Update(msg)
	return m, cmd
}

func (m Model) triggerSelected() (tea.Model, tea.Cmd) {
	i := m.table.Cursor()
	if i < 0 || i >= len(m.plugins) {
		return m, nil
	}
	p := m.plugins[i]
	if p.Kind != dispatch.KindHotkey {
		m.notice = fmt.Sprintf("%s is a background plugin and cannot be triggered", p.Name)
		return m, nil
	}
	m.notice = fmt.Sprintf("triggering %s...", p.Name)
	m.last[p.Name] = "running"
	m.refreshRows()
	return m, trigger(m.ctx, m.api, p.Name)
}

func (m *Model) refreshRows() {
	m.table.SetRows(pluginRows(m.plugins, m.last, m.theme))
}

func (m Model) View() string {
	if m.width == 0 {
		return "Initializing obskey watch..."
	}

	now := m.now()
	parts := []string{
		renderHeader(m.url, m.health, m.activity, m.theme, m.width, now),
		renderPlugins(m.table, m.theme, m.width),
		renderEventStream(m.eventLog, m.theme, m.width),
	}
	if m.notice != "" {
		parts = append(parts, m.theme.Highlight.Render(" "+m.notice))
	}
	if m.lastError != "" {
		parts = append(parts, m.theme.StatusFailed.Render(" ⚠ "+m.lastError))
	}
	parts = append(parts, lipgloss.NewStyle().
		Foreground(lipgloss.Color("241")).
		Render(" [q] Quit • [↑/↓] Select • [enter] Trigger • [r] Refresh"))

	return lipgloss.NewStyle().Margin(1, 2).Render(
		lipgloss.JoinVertical(lipgloss.Left, parts...),
	)
}
