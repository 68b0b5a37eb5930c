package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/mattjoyce/obskey/internal/config"
	"github.com/mattjoyce/obskey/internal/events"
	"github.com/mattjoyce/obskey/internal/hotkey"
	"github.com/mattjoyce/obskey/internal/journal"
	"github.com/mattjoyce/obskey/internal/log"
	"github.com/mattjoyce/obskey/internal/plugin"
)

// recordTimeout bounds journal writes, which also run during shutdown.
const recordTimeout = 5 * time.Second

var (
	// ErrUnknownPlugin is returned by Trigger for names no plugin carries.
	ErrUnknownPlugin = errors.New("unknown plugin")
	// ErrNotTriggerable is returned by Trigger for background plugins.
	ErrNotTriggerable = errors.New("plugin has no hotkey binding")
	// ErrNotRunning is returned by Trigger when Run is not active.
	ErrNotRunning = errors.New("dispatcher is not running")
)

// Recorder stores finished executions.
type Recorder interface {
	Record(ctx context.Context, e journal.Execution) error
}

// Publisher broadcasts execution events.
type Publisher interface {
	Publish(eventType string, data any) events.Event
}

// Assembly is what the dispatcher takes ownership of.
type Assembly struct {
	Session    plugin.Session
	Background []plugin.Plugin
	Hotkeys    map[uint32]plugin.Plugin
	Events     <-chan hotkey.Event
}

// Options tune execution.
type Options struct {
	Timeout time.Duration        // per execution; 0 disables
	Policy  config.FailurePolicy // FailureContinue when empty
	Journal Recorder             // optional
	Hub     Publisher            // optional
	Logger  *slog.Logger
}

// Kind says how a plugin is started.
type Kind string

const (
	KindHotkey     Kind = "hotkey"
	KindBackground Kind = "background"
)

// Info describes one plugin owned by the dispatcher.
type Info struct {
	Name     string `json:"name"`
	Kind     Kind   `json:"kind"`
	Hotkey   string `json:"hotkey,omitempty"`
	HotkeyID uint32 `json:"hotkey_id,omitempty"`
	Output   string `json:"output"`
}

type triggerRequest struct {
	id     uint32
	plugin plugin.Plugin
	reply  chan triggerResult
}

type triggerResult struct {
	exec journal.Execution
	err  error
}

// Dispatcher runs background plugins once and hotkey plugins on demand, one
// hotkey execution at a time.
type Dispatcher struct {
	session    plugin.Session
	background []plugin.Plugin
	table      map[uint32]plugin.Plugin
	byName     map[string]uint32
	events     <-chan hotkey.Event

	timeout time.Duration
	policy  config.FailurePolicy
	journal Recorder
	hub     Publisher
	logger  *slog.Logger

	triggers chan triggerRequest
	started  atomic.Bool
	loopDone chan struct{}
}

// New creates a Dispatcher for a.
func New(a Assembly, opts Options) *Dispatcher {
	if opts.Policy == "" {
		opts.Policy = config.FailureContinue
	}
	if opts.Logger == nil {
		opts.Logger = log.WithComponent("dispatch")
	}

	d := &Dispatcher{
		session:    a.Session,
		background: a.Background,
		table:      make(map[uint32]plugin.Plugin, len(a.Hotkeys)),
		byName:     make(map[string]uint32, len(a.Hotkeys)),
		events:     a.Events,
		timeout:    opts.Timeout,
		policy:     opts.Policy,
		journal:    opts.Journal,
		hub:        opts.Hub,
		logger:     opts.Logger,
		triggers:   make(chan triggerRequest),
		loopDone:   make(chan struct{}),
	}
	for id, p := range a.Hotkeys {
		d.table[id] = p
		d.byName[p.Name()] = id
	}
	return d
}

// Run starts every background plugin and then serves hotkey events and
// trigger requests until ctx is cancelled. It returns nil on cancellation.
// Under the exit policy the first execution error stops Run and is returned.
func (d *Dispatcher) Run(ctx context.Context) error {
	if !d.started.CompareAndSwap(false, true) {
		return errors.New("dispatch: Run called more than once")
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, p := range d.background {
		g.Go(func() error {
			_, err := d.execute(gctx, p, journal.SourceBackground, 0)
			if d.fatal(gctx, err) {
				return err
			}
			return nil
		})
	}
	g.Go(func() error { return d.loop(gctx) })
	return g.Wait()
}

func (d *Dispatcher) loop(ctx context.Context) error {
	defer close(d.loopDone)

	d.logger.Info("dispatch loop started", "hotkey_plugins", len(d.table), "policy", string(d.policy))
	defer d.logger.Info("dispatch loop stopped")

	presses := d.events
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-presses:
			if !ok {
				// Hotkeys are gone; API triggers still work.
				presses = nil
				continue
			}
			p, found := d.table[ev.ID]
			if !found {
				d.logger.Warn("hotkey event for unbound id", "hotkey_id", ev.ID)
				d.publish(events.TypeHotkeyUnbound, map[string]any{"hotkey_id": ev.ID, "at": ev.At})
				continue
			}
			_, err := d.execute(ctx, p, journal.SourceHotkey, ev.ID)
			if d.fatal(ctx, err) {
				return err
			}
		case req := <-d.triggers:
			exec, err := d.execute(ctx, req.plugin, journal.SourceAPI, req.id)
			req.reply <- triggerResult{exec: exec, err: err}
			if d.fatal(ctx, err) {
				return err
			}
		}
	}
}

// Trigger runs the hotkey plugin called name through the dispatch loop, as
// if its hotkey had been pressed, and waits for the result.
func (d *Dispatcher) Trigger(ctx context.Context, name string) (journal.Execution, error) {
	id, ok := d.byName[name]
	if !ok {
		for _, p := range d.background {
			if p.Name() == name {
				return journal.Execution{}, fmt.Errorf("%w: %s", ErrNotTriggerable, name)
			}
		}
		return journal.Execution{}, fmt.Errorf("%w: %s", ErrUnknownPlugin, name)
	}
	if !d.started.Load() {
		return journal.Execution{}, ErrNotRunning
	}

	req := triggerRequest{id: id, plugin: d.table[id], reply: make(chan triggerResult, 1)}
	select {
	case d.triggers <- req:
	case <-d.loopDone:
		return journal.Execution{}, ErrNotRunning
	case <-ctx.Done():
		return journal.Execution{}, ctx.Err()
	}

	select {
	case res := <-req.reply:
		return res.exec, res.err
	case <-ctx.Done():
		return journal.Execution{}, ctx.Err()
	}
}

// Plugins describes every plugin the dispatcher owns, sorted by name.
func (d *Dispatcher) Plugins() []Info {
	out := make([]Info, 0, len(d.table)+len(d.background))
	for id, p := range d.table {
		desc, _ := p.Hotkey()
		out = append(out, Info{Name: p.Name(), Kind: KindHotkey, Hotkey: desc.String(), HotkeyID: id, Output: p.Output()})
	}
	for _, p := range d.background {
		out = append(out, Info{Name: p.Name(), Kind: KindBackground, Output: p.Output()})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func (d *Dispatcher) execute(ctx context.Context, p plugin.Plugin, source journal.Source, hotkeyID uint32) (journal.Execution, error) {
	exec := journal.Execution{
		ID:       uuid.NewString(),
		Plugin:   p.Name(),
		Source:   source,
		HotkeyID: hotkeyID,
	}
	logger := d.logger.With("execution_id", exec.ID, "plugin", exec.Plugin, "source", string(source))

	ectx, cancel := ctx, context.CancelFunc(func() {})
	if d.timeout > 0 {
		ectx, cancel = context.WithTimeout(ctx, d.timeout)
	}
	defer cancel()

	logger.Debug("executing plugin")
	exec.StartedAt = time.Now().UTC()
	err := p.Execute(ectx, d.session)
	exec.FinishedAt = time.Now().UTC()

	switch {
	case err == nil:
		exec.Status = journal.StatusSucceeded
		exec.Output = p.Output()
		logger.Info("plugin executed", "output", exec.Output, "duration", exec.Duration())
	case errors.Is(ectx.Err(), context.DeadlineExceeded) && ctx.Err() == nil:
		exec.Status = journal.StatusTimedOut
		err = fmt.Errorf("timed out after %s: %w", d.timeout, err)
	default:
		exec.Status = journal.StatusFailed
	}
	if err != nil {
		exec.Error = err.Error()
		logger.Error("plugin execution failed", "status", string(exec.Status), "error", err)
	}

	d.record(ctx, exec, logger)
	if exec.Status == journal.StatusSucceeded {
		d.publish(events.TypeExecuted, exec)
	} else {
		d.publish(events.TypeFailed, exec)
	}

	if err != nil {
		return exec, fmt.Errorf("plugin %q: %w", exec.Plugin, err)
	}
	return exec, nil
}

func (d *Dispatcher) record(ctx context.Context, exec journal.Execution, logger *slog.Logger) {
	if d.journal == nil {
		return
	}
	rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), recordTimeout)
	defer cancel()
	if err := d.journal.Record(rctx, exec); err != nil {
		logger.Warn("failed to journal execution", "error", err)
	}
}

func (d *Dispatcher) publish(eventType string, data any) {
	if d.hub != nil {
		d.hub.Publish(eventType, data)
	}
}

// fatal reports whether err must stop Run. Errors caused by shutdown never do.
func (d *Dispatcher) fatal(ctx context.Context, err error) bool {
	return err != nil && d.policy == config.FailureExit && ctx.Err() == nil
}
