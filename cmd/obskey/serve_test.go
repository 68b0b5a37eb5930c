package main

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/mattjoyce/obskey/internal/config"
	"github.com/mattjoyce/obskey/internal/hotkey/system"
	"github.com/mattjoyce/obskey/internal/log"
	"github.com/mattjoyce/obskey/internal/obs/obstest"
)

func TestHotkeyBackendSelection(t *testing.T) {
	b, err := hotkeyBackend(true)
	if err != nil {
		t.Fatalf("headless backend: %v", err)
	}
	if b.Name() != "memory" {
		t.Fatalf("headless backend = %q, want memory", b.Name())
	}

	b, err = hotkeyBackend(false)
	if system.Supported {
		if err != nil || b.Name() != "system" {
			t.Fatalf("system backend = %v, %v", b, err)
		}
		return
	}
	if !errors.Is(err, system.ErrUnsupported) || !strings.Contains(err.Error(), "--headless") {
		t.Fatalf("unsupported build: err = %v", err)
	}
}

func TestServeHeadlessRunsWithoutDisplay(t *testing.T) {
	srv := obstest.NewServer(t)
	cfg, err := config.Parse([]byte(fmt.Sprintf(`service:
  log_level: error
server:
  host: %s
  port: %d
plugin:
  armed:
    type: switch_scene
    safe_scene_name: SAFE
  safe:
    type: switch_scene
    hotkey: Ctrl+Shift+S
    safe_scene_name: SAFE
`, srv.Host(), srv.Port())))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() { errc <- serve(ctx, cfg, true, log.WithComponent("main")) }()

	deadline := time.Now().Add(5 * time.Second)
	for srv.CurrentScene() != "SAFE" {
		if time.Now().After(deadline) {
			cancel()
			t.Fatalf("background plugin never armed the safe scene (scene %q)", srv.CurrentScene())
		}
		time.Sleep(10 * time.Millisecond)
	}

	cancel()
	select {
	case err := <-errc:
		if err != nil {
			t.Fatalf("serve: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("serve did not stop after cancel")
	}
}

func TestServeWithoutHotkeySupportNeedsHeadless(t *testing.T) {
	if system.Supported {
		t.Skip("this build binds OS hotkeys")
	}
	srv := obstest.NewServer(t)
	cfg := config.Defaults()
	cfg.Server.Host = srv.Host()
	cfg.Server.Port = srv.Port()

	err := serve(context.Background(), cfg, false, log.WithComponent("main"))
	if !errors.Is(err, system.ErrUnsupported) {
		t.Fatalf("serve err = %v, want ErrUnsupported", err)
	}
	if srv.Sessions() != 0 {
		t.Fatalf("serve connected to OBS before checking hotkey support")
	}
}
