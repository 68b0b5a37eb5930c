package plugin

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mattjoyce/obskey/internal/config"
	"github.com/mattjoyce/obskey/internal/hotkey"
)

type namedPlugin struct{ name string }

func (p *namedPlugin) Name() string                           { return p.name }
func (p *namedPlugin) Hotkey() (hotkey.Descriptor, bool)      { return hotkey.Descriptor{}, false }
func (p *namedPlugin) Execute(context.Context, Session) error { return nil }
func (p *namedPlugin) Output() string                         { return "" }

func namedCtor(name string, _ config.Table, _ Session) (Plugin, error) {
	return &namedPlugin{name: name}, nil
}

func TestRegistry_Register(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register("named", namedCtor))
	assert.True(t, r.Has("named"))

	err := r.Register("named", namedCtor)
	assert.ErrorContains(t, err, "already registered")

	assert.Error(t, r.Register("", namedCtor))
	assert.Error(t, r.Register("nil", nil))
	assert.Equal(t, []string{"named"}, r.Types())
}

func TestRegistry_ConstructByTypeOrName(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register("named", namedCtor))

	p, err := r.Construct("first", config.Table{"type": "named"}, nil)
	require.NoError(t, err)
	assert.Equal(t, "first", p.Name())

	// Without a type key the instance name is the type.
	p, err = r.Construct("named", config.Table{}, nil)
	require.NoError(t, err)
	assert.Equal(t, "named", p.Name())
}

func TestRegistry_ConstructNotFound(t *testing.T) {
	r := Builtins()
	_, err := r.Construct("bogus", config.Table{"type": "does_not_exist"}, nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrPluginNotFound))
	assert.Contains(t, err.Error(), "does_not_exist")
}

func TestRegistry_ConstructBadConfig(t *testing.T) {
	r := Builtins()
	_, err := r.Construct("safe", config.Table{"type": SwitchSceneType}, nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, config.ErrBadPluginConfig))
	assert.False(t, errors.Is(err, ErrPluginNotFound))
	assert.Contains(t, err.Error(), `plugin "safe"`)
}

func TestRegistry_ConcurrentConstruct(t *testing.T) {
	r := Builtins()
	table := config.Table{"type": SwitchSceneType, "safe_scene_name": "SAFE"}

	var wg sync.WaitGroup
	for range 16 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := r.Construct("safe", table, nil)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()
}

func TestBuiltins(t *testing.T) {
	assert.Equal(t, []string{SwitchSceneType}, Builtins().Types())
}
