// Package client assembles a running obskey client: it opens the OBS
// session, builds every configured plugin and binds hotkey plugins.
package client

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"slices"

	"github.com/mattjoyce/obskey/internal/config"
	"github.com/mattjoyce/obskey/internal/hotkey"
	"github.com/mattjoyce/obskey/internal/log"
	"github.com/mattjoyce/obskey/internal/obs"
	"github.com/mattjoyce/obskey/internal/plugin"
)

// requiredRequests must be advertised by the server for the builtin plugins.
var requiredRequests = []string{"GetCurrentProgramScene", "SetCurrentProgramScene"}

// Conn is the session the client holds for its lifetime.
type Conn interface {
	plugin.Session
	Version(ctx context.Context) (*obs.Version, error)
	SceneNames(ctx context.Context) ([]string, error)
	Close() error
}

// DialFunc opens a Conn.
type DialFunc func(ctx context.Context, opts obs.Options) (Conn, error)

// DialOBS dials a real obs-websocket server.
func DialOBS(ctx context.Context, opts obs.Options) (Conn, error) {
	c, err := obs.Dial(ctx, opts)
	if err != nil {
		return nil, err
	}
	return c, nil
}

// Deps are the collaborators New needs.
type Deps struct {
	Registry *plugin.Registry
	Hotkeys  *hotkey.Manager
	Dial     DialFunc     // DialOBS when nil
	Logger   *slog.Logger // component logger when nil
}

// Skipped is a configured plugin that was left out of the client.
type Skipped struct {
	Name   string
	Type   string
	Reason string
}

// Client is an assembled set of plugins sharing one session. Every plugin is
// either in the background set or in the hotkey table, never both.
type Client struct {
	session Conn
	version *obs.Version
	hotkeys *hotkey.Manager
	logger  *slog.Logger

	background []plugin.Plugin
	table      map[uint32]plugin.Plugin
	skipped    []Skipped
	closed     bool
}

// New connects to the server in cfg, constructs every configured plugin and
// registers hotkeys. A plugin type missing from the registry is skipped with
// a warning. Any other failure closes what was opened and is returned.
func New(ctx context.Context, cfg *config.Config, deps Deps) (*Client, error) {
	if cfg == nil {
		return nil, errors.New("client: nil config")
	}
	if deps.Registry == nil {
		return nil, errors.New("client: nil plugin registry")
	}
	if deps.Hotkeys == nil {
		return nil, errors.New("client: nil hotkey manager")
	}
	if deps.Dial == nil {
		deps.Dial = DialOBS
	}
	if deps.Logger == nil {
		deps.Logger = log.WithComponent("client")
	}

	c := &Client{
		hotkeys: deps.Hotkeys,
		logger:  deps.Logger,
		table:   make(map[uint32]plugin.Plugin),
	}

	opts := obs.Options{
		Host:     cfg.Server.Host,
		Port:     cfg.Server.Port,
		Password: cfg.Server.Password.Expose(),
	}
	session, err := deps.Dial(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("connect to %s: %w", opts.URL(), err)
	}
	c.session = session

	if err := c.checkServer(ctx); err != nil {
		_ = session.Close()
		return nil, err
	}

	if err := c.assemble(cfg.Plugins, deps.Registry); err != nil {
		_ = c.Close()
		return nil, err
	}
	c.checkScenes(ctx)

	c.logger.Info("client assembled",
		"hotkey_plugins", len(c.table),
		"background_plugins", len(c.background),
		"skipped", len(c.skipped),
	)
	return c, nil
}

func (c *Client) checkServer(ctx context.Context) error {
	v, err := c.session.Version(ctx)
	if err != nil {
		return fmt.Errorf("query server version: %w", err)
	}
	c.version = v
	c.logger.Info("connected",
		"obs_version", v.ObsVersion,
		"obs_websocket_version", v.ObsWebSocketVersion,
		"rpc_version", v.RPCVersion,
		"platform", v.Platform,
	)
	if len(v.AvailableRequests) > 0 {
		for _, r := range requiredRequests {
			if !v.Supports(r) {
				c.logger.Warn("server does not advertise request", "request", r)
			}
		}
	}
	return nil
}

// checkScenes warns about plugins naming scenes the server does not have.
// A missing scene is not fatal.
func (c *Client) checkScenes(ctx context.Context) {
	if len(c.version.AvailableRequests) > 0 && !c.version.Supports("GetSceneList") {
		return
	}
	names, err := c.session.SceneNames(ctx)
	if err != nil {
		c.logger.Warn("could not list scenes", "error", err)
		return
	}

	plugins := append(slices.Clone(c.background), slices.Collect(maps.Values(c.table))...)
	for _, p := range plugins {
		user, ok := p.(plugin.SceneUser)
		if !ok {
			continue
		}
		for _, scene := range user.Scenes() {
			if !slices.Contains(names, scene) {
				c.logger.Warn("scene not found", "plugin", p.Name(), "scene", scene, "scenes", names)
			}
		}
	}
}

func (c *Client) assemble(plugins map[string]config.Table, registry *plugin.Registry) error {
	// Map order is meaningless; sorting only keeps logs stable.
	for _, name := range slices.Sorted(maps.Keys(plugins)) {
		table := plugins[name]
		typeID := table.Type(name)

		p, err := registry.Construct(name, table, c.session)
		if errors.Is(err, plugin.ErrPluginNotFound) {
			c.logger.Warn("skipping plugin: type not registered",
				"plugin", name,
				"type", typeID,
				"known_types", registry.Types(),
			)
			c.skipped = append(c.skipped, Skipped{Name: name, Type: typeID, Reason: err.Error()})
			continue
		}
		if err != nil {
			return err
		}

		d, ok := p.Hotkey()
		if !ok {
			c.background = append(c.background, p)
			c.logger.Debug("background plugin", "plugin", name, "type", typeID)
			continue
		}

		id, err := c.hotkeys.Register(d)
		if err != nil {
			return fmt.Errorf("plugin %q: bind %s: %w", name, d, err)
		}
		c.table[id] = p
		c.logger.Info("hotkey bound", "plugin", name, "hotkey", d.String(), "hotkey_id", id)
	}
	return nil
}

// Session returns the shared session.
func (c *Client) Session() plugin.Session { return c.session }

// Version returns the version reported at connect time.
func (c *Client) Version() *obs.Version { return c.version }

// Background returns the plugins without a hotkey.
func (c *Client) Background() []plugin.Plugin {
	return slices.Clone(c.background)
}

// HotkeyTable returns the hotkey-bound plugins keyed by registration id.
func (c *Client) HotkeyTable() map[uint32]plugin.Plugin {
	return maps.Clone(c.table)
}

// Skipped returns the configured plugins left out of the client.
func (c *Client) Skipped() []Skipped {
	return slices.Clone(c.skipped)
}

// Close releases every hotkey this client bound and closes the session.
// Only the first call does anything.
func (c *Client) Close() error {
	if c.closed {
		return nil
	}
	c.closed = true

	var errs []error
	for id := range c.table {
		if err := c.hotkeys.Unregister(id); err != nil && !errors.Is(err, hotkey.ErrUnknownID) {
			errs = append(errs, err)
		}
	}
	if c.session != nil {
		if err := c.session.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close session: %w", err))
		}
	}
	return errors.Join(errs...)
}
