// Package doctor validates obskey configuration and plugin setup without
// touching OBS or the OS hotkey subsystem.
package doctor

import (
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"slices"
	"strings"

	"github.com/mattjoyce/obskey/internal/config"
	"github.com/mattjoyce/obskey/internal/hotkey"
	"github.com/mattjoyce/obskey/internal/plugin"
)

// Result holds the outcome of a validation run.
type Result struct {
	Valid    bool    `json:"valid"`
	Errors   []Issue `json:"errors,omitempty"`
	Warnings []Issue `json:"warnings,omitempty"`
}

// Issue describes a single validation error or warning.
type Issue struct {
	Category string `json:"category"`
	Message  string `json:"message"`
	Field    string `json:"field,omitempty"`
}

// Doctor validates configuration against the plugin registry.
type Doctor struct {
	cfg      *config.Config
	registry *plugin.Registry
}

// New creates a Doctor from a loaded config and plugin registry.
func New(cfg *config.Config, registry *plugin.Registry) *Doctor {
	return &Doctor{cfg: cfg, registry: registry}
}

// Validate runs all checks and returns a result.
func (d *Doctor) Validate() *Result {
	r := &Result{Valid: true}

	d.validateServer(r)
	d.validatePlugins(r)
	d.validateAPIConfig(r)
	d.warnJournal(r)

	r.Valid = len(r.Errors) == 0
	return r
}

func (d *Doctor) addError(r *Result, category, field, msg string) {
	r.Errors = append(r.Errors, Issue{Category: category, Field: field, Message: msg})
}

func (d *Doctor) addWarning(r *Result, category, field, msg string) {
	r.Warnings = append(r.Warnings, Issue{Category: category, Field: field, Message: msg})
}

func (d *Doctor) validateServer(r *Result) {
	if strings.TrimSpace(d.cfg.Server.Host) == "" {
		d.addError(r, "server", "server.host", "server.host is required")
		return
	}
	if !d.cfg.Server.Password.IsSet() && !isLoopback(d.cfg.Server.Host) {
		d.addWarning(r, "server", "server.password",
			fmt.Sprintf("OBS at %s is not local and no password is configured", d.cfg.Server.Host))
	}
}

// validatePlugins builds every configured plugin offline. Unknown types are
// skipped at startup, so they only warn; a table the plugin rejects or a
// hotkey claimed twice aborts startup, so those are errors.
func (d *Doctor) validatePlugins(r *Result) {
	if len(d.cfg.Plugins) == 0 {
		d.addWarning(r, "plugins", "plugin", "no plugins configured; obskey would have nothing to do")
		return
	}

	names := make([]string, 0, len(d.cfg.Plugins))
	for name := range d.cfg.Plugins {
		names = append(names, name)
	}
	slices.Sort(names)

	owners := make(map[hotkey.Descriptor]string)
	hotkeys := 0
	for _, name := range names {
		table := d.cfg.Plugins[name]
		field := "plugin." + name

		p, err := d.registry.Construct(name, table, nil)
		switch {
		case errors.Is(err, plugin.ErrPluginNotFound):
			d.addWarning(r, "plugins", field+"."+config.TypeKey,
				fmt.Sprintf("plugin type %q is not registered (known: %s); it will be skipped",
					table.Type(name), strings.Join(d.registry.Types(), ", ")))
			continue
		case err != nil:
			d.addError(r, "plugins", field, err.Error())
			continue
		}

		key, ok := p.Hotkey()
		if !ok {
			continue
		}
		hotkeys++
		if prev, taken := owners[key]; taken {
			d.addError(r, "hotkeys", field+".hotkey",
				fmt.Sprintf("hotkey %s is already bound by plugin %q", key, prev))
			continue
		}
		owners[key] = name
	}

	if hotkeys == 0 {
		d.addWarning(r, "hotkeys", "", "no plugin binds a hotkey; only background plugins will run")
	}
}

func (d *Doctor) validateAPIConfig(r *Result) {
	if !d.cfg.API.Enabled {
		return
	}
	host, _, err := net.SplitHostPort(d.cfg.API.Listen)
	if err != nil {
		d.addError(r, "api", "api.listen", fmt.Sprintf("invalid listen address %q: %v", d.cfg.API.Listen, err))
		return
	}
	if !d.cfg.API.Token.IsSet() {
		msg := "API enabled but no token configured; any local process can trigger plugins"
		if !isLoopback(host) {
			msg = "API listens beyond loopback without a token; anyone on the network can trigger plugins"
		}
		d.addWarning(r, "api", "api.token", msg)
	}
}

func (d *Doctor) warnJournal(r *Result) {
	if d.cfg.Journal.Path == config.MemoryJournal {
		return
	}
	d.addWarning(r, "journal", "journal.path",
		fmt.Sprintf("execution history is written to %s and survives restarts", d.cfg.Journal.Path))
}

func isLoopback(host string) bool {
	if host == "localhost" {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}

// FormatHuman returns a human-readable validation report.
func FormatHuman(r *Result) string {
	var b strings.Builder

	if r.Valid && len(r.Warnings) == 0 {
		b.WriteString("Configuration valid.\n")
		return b.String()
	}

	if r.Valid {
		fmt.Fprintf(&b, "Configuration valid (%d warning(s))\n", len(r.Warnings))
	} else {
		fmt.Fprintf(&b, "Configuration invalid (%d error(s), %d warning(s))\n", len(r.Errors), len(r.Warnings))
	}

	for _, e := range r.Errors {
		if e.Field != "" {
			fmt.Fprintf(&b, "  ERROR [%s] %s: %s\n", e.Category, e.Field, e.Message)
		} else {
			fmt.Fprintf(&b, "  ERROR [%s] %s\n", e.Category, e.Message)
		}
	}
	for _, w := range r.Warnings {
		if w.Field != "" {
			fmt.Fprintf(&b, "  WARN  [%s] %s: %s\n", w.Category, w.Field, w.Message)
		} else {
			fmt.Fprintf(&b, "  WARN  [%s] %s\n", w.Category, w.Message)
		}
	}

	return b.String()
}

// FormatJSON returns the result as indented JSON.
func FormatJSON(r *Result) (string, error) {
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return "", err
	}
	return string(data), nil
}
