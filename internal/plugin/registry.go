package plugin

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/mattjoyce/obskey/internal/config"
)

// ErrPluginNotFound is returned by Construct for types nobody registered.
var ErrPluginNotFound = errors.New("plugin type not found")

// Constructor builds one instance from its configuration table. It should
// wrap config.ErrBadPluginConfig when the table is missing required fields.
type Constructor func(name string, cfg config.Table, session Session) (Plugin, error)

// Registry maps plugin type ids to constructors.
type Registry struct {
	mu           sync.RWMutex
	constructors map[string]Constructor
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{constructors: make(map[string]Constructor)}
}

// Builtins returns a registry holding every plugin type shipped with obskey.
func Builtins() *Registry {
	r := NewRegistry()
	if err := r.Register(SwitchSceneType, NewSwitchScene); err != nil {
		panic(err)
	}
	return r
}

// Register adds a constructor under typeID.
func (r *Registry) Register(typeID string, ctor Constructor) error {
	if typeID == "" {
		return errors.New("plugin type id is empty")
	}
	if ctor == nil {
		return fmt.Errorf("plugin type %q: nil constructor", typeID)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.constructors[typeID]; exists {
		return fmt.Errorf("plugin type %q already registered", typeID)
	}
	r.constructors[typeID] = ctor
	return nil
}

// Has reports whether typeID is registered.
func (r *Registry) Has(typeID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.constructors[typeID]
	return ok
}

// Types returns the registered type ids, sorted.
func (r *Registry) Types() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.constructors))
	for id := range r.constructors {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// Construct builds the instance called name from cfg. The type is taken from
// cfg's type key, or name when absent.
func (r *Registry) Construct(name string, cfg config.Table, session Session) (Plugin, error) {
	typeID := cfg.Type(name)

	r.mu.RLock()
	ctor, ok := r.constructors[typeID]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrPluginNotFound, typeID)
	}

	p, err := ctor(name, cfg, session)
	if err != nil {
		return nil, fmt.Errorf("plugin %q (%s): %w", name, typeID, err)
	}
	return p, nil
}
