package doctor

import (
	"strings"
	"testing"

	"github.com/mattjoyce/obskey/internal/config"
	"github.com/mattjoyce/obskey/internal/plugin"
)

func validConfig() *config.Config {
	cfg := config.Defaults()
	cfg.Plugins = map[string]config.Table{
		"safe": {
			"type":            "switch_scene",
			"hotkey":          "Ctrl+Shift+S",
			"safe_scene_name": "SAFE",
		},
	}
	return cfg
}

func TestValidate_ValidConfig(t *testing.T) {
	t.Parallel()
	r := New(validConfig(), plugin.Builtins()).Validate()
	if !r.Valid {
		t.Fatalf("expected valid, got errors: %v", r.Errors)
	}
	if len(r.Warnings) != 0 {
		t.Fatalf("expected no warnings, got: %v", r.Warnings)
	}
}

func TestValidate_UnknownPluginTypeWarns(t *testing.T) {
	t.Parallel()
	cfg := validConfig()
	cfg.Plugins["bogus"] = config.Table{"type": "does_not_exist"}

	r := New(cfg, plugin.Builtins()).Validate()
	if !r.Valid {
		t.Fatalf("unknown type must not invalidate config, got: %v", r.Errors)
	}
	assertHasWarning(t, r, "plugins", "does_not_exist")
}

func TestValidate_TypeFallsBackToInstanceName(t *testing.T) {
	t.Parallel()
	cfg := validConfig()
	cfg.Plugins = map[string]config.Table{
		"switch_scene": {"hotkey": "F9", "safe_scene_name": "SAFE"},
	}

	r := New(cfg, plugin.Builtins()).Validate()
	if !r.Valid || len(r.Warnings) != 0 {
		t.Fatalf("expected clean result, got errors=%v warnings=%v", r.Errors, r.Warnings)
	}
}

func TestValidate_BadPluginConfig(t *testing.T) {
	t.Parallel()
	tests := map[string]config.Table{
		"missing safe scene": {"type": "switch_scene", "hotkey": "F9"},
		"unknown key":        {"type": "switch_scene", "safe_scene_name": "SAFE", "colour": "red"},
		"bad hotkey":         {"type": "switch_scene", "safe_scene_name": "SAFE", "hotkey": "Ctrl+"},
	}

	for name, table := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			cfg := validConfig()
			cfg.Plugins["broken"] = table
			r := New(cfg, plugin.Builtins()).Validate()
			if r.Valid {
				t.Fatal("expected invalid")
			}
			assertHasError(t, r, "plugins", "broken")
		})
	}
}

func TestValidate_DuplicateHotkey(t *testing.T) {
	t.Parallel()
	cfg := validConfig()
	cfg.Plugins["again"] = config.Table{
		"type":            "switch_scene",
		"hotkey":          "shift+ctrl+s",
		"safe_scene_name": "BRB",
	}

	r := New(cfg, plugin.Builtins()).Validate()
	if r.Valid {
		t.Fatal("expected invalid")
	}
	// "again" sorts first so it owns the key.
	assertHasError(t, r, "hotkeys", `already bound by plugin "again"`)
}

func TestValidate_NoPlugins(t *testing.T) {
	t.Parallel()
	cfg := validConfig()
	cfg.Plugins = map[string]config.Table{}

	r := New(cfg, plugin.Builtins()).Validate()
	if !r.Valid {
		t.Fatalf("expected valid, got: %v", r.Errors)
	}
	assertHasWarning(t, r, "plugins", "no plugins configured")
}

func TestValidate_OnlyBackgroundPlugins(t *testing.T) {
	t.Parallel()
	cfg := validConfig()
	cfg.Plugins = map[string]config.Table{
		"armed": {"type": "switch_scene", "safe_scene_name": "SAFE"},
	}

	r := New(cfg, plugin.Builtins()).Validate()
	assertHasWarning(t, r, "hotkeys", "no plugin binds a hotkey")
}

func TestValidate_APIWithoutToken(t *testing.T) {
	t.Parallel()
	cfg := validConfig()
	cfg.API.Enabled = true

	r := New(cfg, plugin.Builtins()).Validate()
	if !r.Valid {
		t.Fatalf("expected valid, got: %v", r.Errors)
	}
	assertHasWarning(t, r, "api", "no token")

	cfg.API.Listen = "0.0.0.0:4466"
	r = New(cfg, plugin.Builtins()).Validate()
	assertHasWarning(t, r, "api", "beyond loopback")

	cfg.API.Token = "secret"
	r = New(cfg, plugin.Builtins()).Validate()
	if len(r.Warnings) != 0 {
		t.Fatalf("expected no warnings, got: %v", r.Warnings)
	}
}

func TestValidate_APIBadListen(t *testing.T) {
	t.Parallel()
	cfg := validConfig()
	cfg.API.Enabled = true
	cfg.API.Token = "secret"
	cfg.API.Listen = "not-an-address"

	r := New(cfg, plugin.Builtins()).Validate()
	assertHasError(t, r, "api", "invalid listen address")
}

func TestValidate_RemoteServerWithoutPassword(t *testing.T) {
	t.Parallel()
	cfg := validConfig()
	cfg.Server.Host = "192.168.1.20"

	r := New(cfg, plugin.Builtins()).Validate()
	assertHasWarning(t, r, "server", "no password")

	cfg.Server.Password = "pw"
	r = New(cfg, plugin.Builtins()).Validate()
	if len(r.Warnings) != 0 {
		t.Fatalf("expected no warnings, got: %v", r.Warnings)
	}
}

func TestValidate_PersistentJournalWarns(t *testing.T) {
	t.Parallel()
	cfg := validConfig()
	cfg.Journal.Path = "/var/lib/obskey/journal.db"

	r := New(cfg, plugin.Builtins()).Validate()
	assertHasWarning(t, r, "journal", "survives restarts")
}

func TestFormatJSON(t *testing.T) {
	t.Parallel()
	r := &Result{
		Valid:  false,
		Errors: []Issue{{Category: "test", Message: "bad thing"}},
	}
	out, err := FormatJSON(r)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, "bad thing") {
		t.Fatalf("expected JSON to contain error message, got: %s", out)
	}
}

func TestFormatHuman_Valid(t *testing.T) {
	t.Parallel()
	out := FormatHuman(&Result{Valid: true})
	if !strings.Contains(out, "valid") {
		t.Fatalf("expected 'valid' in output, got: %s", out)
	}
}

func TestFormatHuman_Errors(t *testing.T) {
	t.Parallel()
	r := &Result{
		Valid:    false,
		Errors:   []Issue{{Category: "test", Field: "x.y", Message: "broken"}},
		Warnings: []Issue{{Category: "test", Message: "iffy"}},
	}
	out := FormatHuman(r)
	if !strings.Contains(out, "ERROR") || !strings.Contains(out, "broken") {
		t.Fatalf("expected error in output, got: %s", out)
	}
	if !strings.Contains(out, "WARN") || !strings.Contains(out, "iffy") {
		t.Fatalf("expected warning in output, got: %s", out)
	}
}

// --- helpers ---

func assertHasError(t *testing.T, r *Result, category, substring string) {
	t.Helper()
	for _, e := range r.Errors {
		if e.Category == category && strings.Contains(e.Field+" "+e.Message, substring) {
			return
		}
	}
	t.Fatalf("expected error with category=%q containing %q, got: %v", category, substring, r.Errors)
}

func assertHasWarning(t *testing.T, r *Result, category, substring string) {
	t.Helper()
	for _, w := range r.Warnings {
		if w.Category == category && strings.Contains(w.Message, substring) {
			return
		}
	}
	t.Fatalf("expected warning with category=%q containing %q, got: %v", category, substring, r.Warnings)
}
