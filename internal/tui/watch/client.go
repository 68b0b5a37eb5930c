package watch

import (
	"context"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/mattjoyce/obskey/internal/api"
	"github.com/mattjoyce/obskey/internal/dispatch"
	"github.com/mattjoyce/obskey/internal/events"
	"github.com/mattjoyce/obskey/internal/journal"
)

// API is what the watch screen needs from a running obskey. *api.Client
// satisfies it.
type API interface {
	Health(ctx context.Context) (api.HealthzResponse, error)
	Plugins(ctx context.Context) ([]dispatch.Info, error)
	Trigger(ctx context.Context, name string) (journal.Execution, error)
	Stream(ctx context.Context, lastID int64, fn func(events.Event)) error
}

const requestTimeout = 2 * time.Second

// --- Message types ---

type eventMsg events.Event

type healthMsg api.HealthzResponse

type pluginsMsg []dispatch.Info

type triggerMsg struct {
	name string
	exec journal.Execution
	err  error
}

type tickMsg time.Time

// errMsg reports a failed request. health marks the /healthz poll, which
// reschedules itself after an error.
type errMsg struct {
	err    error
	health bool
}

type streamClosedMsg struct{ err error }

type reconnectMsg struct{}

// --- Commands ---

// subscribe follows the event stream and feeds ch until the stream ends.
func subscribe(ctx context.Context, c API, lastID int64, ch chan<- events.Event) tea.Cmd {
	return func() tea.Msg {
		err := c.Stream(ctx, lastID, func(e events.Event) {
			select {
			case ch <- e:
			case <-ctx.Done():
			}
		})
		return streamClosedMsg{err: err}
	}
}

// receive waits for the next streamed event.
func receive(ch <-chan events.Event) tea.Cmd {
	return func() tea.Msg {
		return eventMsg(<-ch)
	}
}

func fetchHealth(ctx context.Context, c API) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(ctx, requestTimeout)
		defer cancel()
		h, err := c.Health(ctx)
		if err != nil {
			return errMsg{err: err, health: true}
		}
		return healthMsg(h)
	}
}

func fetchHealthAfter(ctx context.Context, c API, d time.Duration) tea.Cmd {
	return tea.Tick(d, func(time.Time) tea.Msg {
		return fetchHealth(ctx, c)()
	})
}

func fetchPlugins(ctx context.Context, c API) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(ctx, requestTimeout)
		defer cancel()
		plugins, err := c.Plugins(ctx)
		if err != nil {
			return errMsg{err: err}
		}
		return pluginsMsg(plugins)
	}
}

// trigger has no short timeout: the request waits its turn in the
// dispatch loop.
func trigger(ctx context.Context, c API, name string) tea.Cmd {
	return func() tea.Msg {
		exec, err := c.Trigger(ctx, name)
		return triggerMsg{name: name, exec: exec, err: err}
	}
}

func tick() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg { return tickMsg(t) })
}

func after(d time.Duration, msg tea.Msg) tea.Cmd {
	return tea.Tick(d, func(time.Time) tea.Msg { return msg })
}
