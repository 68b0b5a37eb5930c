//go:build !windows && !(cgo && (darwin || (linux && x11)))

// Package system binds hotkeys at the OS level. This build has no hotkey
// mechanism: the platform is unsupported, cgo is off, or on Linux the x11
// build tag was not given. Use headless mode.
package system

import (
	"errors"

	obshotkey "github.com/mattjoyce/obskey/internal/hotkey"
)

// ErrUnsupported is returned by Bind on platforms without global hotkeys.
var ErrUnsupported = errors.New("global hotkeys are not supported by this build (on Linux rebuild with -tags x11)")

// Supported reports whether this build can bind OS hotkeys.
const Supported = false

// Run calls fn directly.
func Run(fn func()) { fn() }

type Backend struct{}

func NewBackend() *Backend { return &Backend{} }

func (b *Backend) Name() string { return "system" }

func (b *Backend) Bind(obshotkey.Descriptor) (obshotkey.Binding, error) {
	return nil, ErrUnsupported
}
