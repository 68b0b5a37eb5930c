// Package plugin defines the action contract, the registry that turns
// configured plugin tables into live instances, and the builtin plugins.
package plugin

import (
	"context"

	"github.com/mattjoyce/obskey/internal/hotkey"
)

//go:generate mockgen -destination=mocks/mock_session.go -package=mocks github.com/mattjoyce/obskey/internal/plugin Session

// Session is the remote-control session shared by every plugin execution.
// Implementations must be safe for concurrent use.
type Session interface {
	CurrentProgramScene(ctx context.Context) (string, error)
	SetCurrentProgramScene(ctx context.Context, name string) error
}

// Plugin is one configured action.
type Plugin interface {
	// Name is the configured instance name.
	Name() string
	// Hotkey returns the combination to bind, or false for a background plugin.
	// It must return the same value on every call.
	Hotkey() (hotkey.Descriptor, bool)
	// Execute runs the action to completion against session.
	Execute(ctx context.Context, session Session) error
	// Output is the text left by the last successful Execute.
	Output() string
}

// SceneUser is implemented by plugins that switch to named scenes.
type SceneUser interface {
	Scenes() []string
}
