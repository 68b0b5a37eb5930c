//go:build windows || (cgo && (darwin || (linux && x11)))

// Package system binds hotkeys at the OS level through golang.design/x/hotkey
// and provides the platform loop those bindings need.
//
// On Linux the X11 binding is only compiled with the x11 build tag, because
// golang.design/x/hotkey panics at init when no display is reachable. Builds
// without it fall back to an unsupported backend; use start --headless there.
package system

import (
	"errors"
	"fmt"
	"sync"

	"golang.design/x/hotkey"
	"golang.design/x/hotkey/mainthread"

	obshotkey "github.com/mattjoyce/obskey/internal/hotkey"
)

// Supported reports whether this build can bind OS hotkeys.
const Supported = true

// ErrUnsupported is never returned by this backend.
var ErrUnsupported = errors.New("global hotkeys are not supported by this build")

// Run hands the calling OS thread to the platform loop and runs fn on another
// goroutine. It returns when fn returns. Call it from main.
func Run(fn func()) {
	mainthread.Init(fn)
}

// Backend registers combinations with the operating system.
type Backend struct{}

// NewBackend returns the OS hotkey backend.
func NewBackend() *Backend { return &Backend{} }

func (b *Backend) Name() string { return "system" }

// Bind registers d system-wide. Registration runs on the platform thread.
func (b *Backend) Bind(d obshotkey.Descriptor) (obshotkey.Binding, error) {
	key, ok := keys[d.Key]
	if !ok {
		return nil, fmt.Errorf("%w: key %q has no OS mapping", obshotkey.ErrInvalidSpec, d.Key)
	}

	hk := hotkey.New(modifiers(d.Mods), key)
	var err error
	mainthread.Call(func() { err = hk.Register() })
	if err != nil {
		return nil, fmt.Errorf("os refused %s: %w", d, err)
	}

	sb := &binding{hk: hk, keydown: make(chan struct{}), stop: make(chan struct{})}
	go sb.pump()
	return sb, nil
}

type binding struct {
	hk       *hotkey.Hotkey
	keydown  chan struct{}
	stop     chan struct{}
	stopOnce sync.Once
}

func (sb *binding) Keydown() <-chan struct{} { return sb.keydown }

func (sb *binding) pump() {
	in := sb.hk.Keydown()
	for {
		select {
		case <-sb.stop:
			return
		case _, ok := <-in:
			if !ok {
				return
			}
			select {
			case sb.keydown <- struct{}{}:
			case <-sb.stop:
				return
			}
		}
	}
}

func (sb *binding) Unbind() error {
	sb.stopOnce.Do(func() { close(sb.stop) })
	var err error
	mainthread.Call(func() { err = sb.hk.Unregister() })
	return err
}
