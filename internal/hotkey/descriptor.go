// Package hotkey parses key combinations and turns OS-level global hotkey
// presses into a single stream of numbered events.
//
// A Manager owns a Backend (the OS binding mechanism, or an in-memory one for
// tests and headless runs), assigns every successful registration a unique id
// and fans all key presses into one channel in delivery order.
package hotkey

import (
	"errors"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

// Parse errors
var (
	ErrEmptySpec   = errors.New("empty hotkey specification")
	ErrInvalidSpec = errors.New("invalid hotkey specification")
)

// Modifier is a bit set of modifier keys.
type Modifier uint8

const (
	ModShift Modifier = 1 << iota
	ModCtrl
	ModAlt
	ModSuper
)

// Has reports whether m includes all bits of other.
func (m Modifier) Has(other Modifier) bool { return m&other == other }

// String renders modifiers in canonical order joined by "+".
func (m Modifier) String() string {
	var parts []string
	if m.Has(ModCtrl) {
		parts = append(parts, "Ctrl")
	}
	if m.Has(ModAlt) {
		parts = append(parts, "Alt")
	}
	if m.Has(ModShift) {
		parts = append(parts, "Shift")
	}
	if m.Has(ModSuper) {
		parts = append(parts, "Super")
	}
	return strings.Join(parts, "+")
}

var modifierNames = map[string]Modifier{
	"shift":   ModShift,
	"ctrl":    ModCtrl,
	"control": ModCtrl,
	"alt":     ModAlt,
	"option":  ModAlt,
	"super":   ModSuper,
	"meta":    ModSuper,
	"cmd":     ModSuper,
	"command": ModSuper,
	"win":     ModSuper,
}

// Named non-alphanumeric keys, keyed by lower-case alias.
var namedKeys = map[string]string{
	"space":  "Space",
	"enter":  "Enter",
	"return": "Enter",
	"escape": "Escape",
	"esc":    "Escape",
	"tab":    "Tab",
	"delete": "Delete",
	"del":    "Delete",
	"left":   "Left",
	"right":  "Right",
	"up":     "Up",
	"down":   "Down",
}

// Descriptor is a key plus modifiers, e.g. Ctrl+Shift+S.
// Key holds the canonical key name: "A".."Z", "0".."9", "F1".."F20" or one of
// Space, Enter, Escape, Tab, Delete, Left, Right, Up, Down.
type Descriptor struct {
	Mods Modifier
	Key  string
}

// Parse parses a key combination such as "Ctrl+Shift+S", "alt+F4" or
// "Super+KeyK". Modifiers are case-insensitive; exactly one non-modifier key
// must be present and it must come last.
func Parse(spec string) (Descriptor, error) {
	spec = strings.TrimSpace(spec)
	if spec == "" {
		return Descriptor{}, ErrEmptySpec
	}

	parts := strings.Split(spec, "+")
	var d Descriptor
	for i, raw := range parts {
		p := strings.TrimSpace(raw)
		if p == "" {
			return Descriptor{}, fmt.Errorf("%w: empty token in %q", ErrInvalidSpec, spec)
		}

		if mod, ok := modifierNames[strings.ToLower(p)]; ok {
			if i == len(parts)-1 {
				return Descriptor{}, fmt.Errorf("%w: %q has no key after modifiers", ErrInvalidSpec, spec)
			}
			if d.Mods.Has(mod) {
				return Descriptor{}, fmt.Errorf("%w: duplicate modifier %q", ErrInvalidSpec, p)
			}
			d.Mods |= mod
			continue
		}

		if i != len(parts)-1 {
			return Descriptor{}, fmt.Errorf("%w: unknown modifier %q", ErrInvalidSpec, p)
		}
		key, err := canonicalKey(p)
		if err != nil {
			return Descriptor{}, err
		}
		d.Key = key
	}
	return d, nil
}

// MustParse is like Parse but panics on error. Intended for tests and
// package-level values.
func MustParse(spec string) Descriptor {
	d, err := Parse(spec)
	if err != nil {
		panic(err)
	}
	return d
}

func canonicalKey(p string) (string, error) {
	// W3C code names, as written by some hotkey tools: KeyS, Digit1.
	switch {
	case len(p) == 4 && strings.HasPrefix(p, "Key"):
		p = p[3:]
	case len(p) == 6 && strings.HasPrefix(p, "Digit"):
		p = p[5:]
	}

	if len(p) == 1 {
		c := p[0]
		switch {
		case c >= 'a' && c <= 'z':
			return string(c - 'a' + 'A'), nil
		case c >= 'A' && c <= 'Z', c >= '0' && c <= '9':
			return p, nil
		}
		return "", fmt.Errorf("%w: unsupported key %q", ErrInvalidSpec, p)
	}

	lower := strings.ToLower(p)
	if name, ok := namedKeys[lower]; ok {
		return name, nil
	}

	if lower[0] == 'f' {
		var n int
		if _, err := fmt.Sscanf(lower[1:], "%d", &n); err == nil && n >= 1 && n <= 20 && fmt.Sprint(n) == lower[1:] {
			return fmt.Sprintf("F%d", n), nil
		}
	}

	return "", fmt.Errorf("%w: unsupported key %q", ErrInvalidSpec, p)
}

// String renders the descriptor in canonical form, e.g. "Ctrl+Shift+S".
func (d Descriptor) String() string {
	if d.Mods == 0 {
		return d.Key
	}
	return d.Mods.String() + "+" + d.Key
}

// IsZero reports whether no key is set.
func (d Descriptor) IsZero() bool { return d.Key == "" }

// UnmarshalYAML parses a scalar key combination.
func (d *Descriptor) UnmarshalYAML(n *yaml.Node) error {
	if n.Kind != yaml.ScalarNode {
		return fmt.Errorf("hotkey must be a string like \"Ctrl+Shift+S\"")
	}
	parsed, err := Parse(n.Value)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// MarshalYAML renders the canonical form.
func (d Descriptor) MarshalYAML() (any, error) {
	return d.String(), nil
}
