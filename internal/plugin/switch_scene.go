package plugin

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/mattjoyce/obskey/internal/config"
	"github.com/mattjoyce/obskey/internal/hotkey"
)

// SwitchSceneType is the registry key of the scene toggle.
const SwitchSceneType = "switch_scene"

// Output prefixes of the two switch_scene transitions.
const (
	OutputSafeActive   = "Safe scene active"
	OutputSwitchedBack = "Switched back"
)

// SwitchSceneConfig is the table accepted by switch_scene.
type SwitchSceneConfig struct {
	Hotkey        *hotkey.Descriptor `yaml:"hotkey"`
	SafeSceneName string             `yaml:"safe_scene_name"`
}

// SwitchScene toggles program output between a safe scene and whatever was
// live before it. The remembered scene is the whole state: nil means normal,
// set means the safe scene is armed.
type SwitchScene struct {
	name string
	cfg  SwitchSceneConfig
	key  hotkey.Descriptor

	mu       sync.Mutex
	previous *string
	output   string
}

// NewSwitchScene is the switch_scene Constructor.
func NewSwitchScene(name string, cfg config.Table, _ Session) (Plugin, error) {
	var sc SwitchSceneConfig
	if err := cfg.Decode(&sc); err != nil {
		return nil, err
	}
	sc.SafeSceneName = strings.TrimSpace(sc.SafeSceneName)
	if sc.SafeSceneName == "" {
		return nil, fmt.Errorf("%w: safe_scene_name is required", config.ErrBadPluginConfig)
	}

	p := &SwitchScene{name: name, cfg: sc}
	if sc.Hotkey != nil {
		p.key = *sc.Hotkey
	}
	return p, nil
}

func (p *SwitchScene) Name() string { return p.name }

func (p *SwitchScene) Hotkey() (hotkey.Descriptor, bool) {
	return p.key, !p.key.IsZero()
}

// Scenes returns the safe scene, the only scene named in the configuration.
func (p *SwitchScene) Scenes() []string { return []string{p.cfg.SafeSceneName} }

// Armed reports whether the safe scene is active and a scene is remembered.
func (p *SwitchScene) Armed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.previous != nil
}

// Execute switches to the safe scene, or back to the remembered scene.
// Callers must not run Execute concurrently on one instance.
func (p *SwitchScene) Execute(ctx context.Context, session Session) error {
	p.mu.Lock()
	previous := p.previous
	p.mu.Unlock()

	current, err := session.CurrentProgramScene(ctx)
	if err != nil {
		return fmt.Errorf("read current scene: %w", err)
	}

	if previous == nil {
		if err := session.SetCurrentProgramScene(ctx, p.cfg.SafeSceneName); err != nil {
			return fmt.Errorf("switch to safe scene %q: %w", p.cfg.SafeSceneName, err)
		}
		p.update(&current, fmt.Sprintf("%s: %s -> %s", OutputSafeActive, current, p.cfg.SafeSceneName))
		return nil
	}

	target := *previous
	if err := session.SetCurrentProgramScene(ctx, target); err != nil {
		return fmt.Errorf("switch back to %q: %w", target, err)
	}
	p.update(nil, fmt.Sprintf("%s: %s -> %s", OutputSwitchedBack, current, target))
	return nil
}

func (p *SwitchScene) update(previous *string, output string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.previous = previous
	p.output = output
}

func (p *SwitchScene) Output() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.output
}
