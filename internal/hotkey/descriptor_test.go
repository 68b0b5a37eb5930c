package hotkey

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestParse(t *testing.T) {
	tests := []struct {
		spec string
		want Descriptor
	}{
		{"Ctrl+Shift+S", Descriptor{Mods: ModCtrl | ModShift, Key: "S"}},
		{"ctrl+shift+s", Descriptor{Mods: ModCtrl | ModShift, Key: "S"}},
		{" Alt + F4 ", Descriptor{Mods: ModAlt, Key: "F4"}},
		{"Super+KeyK", Descriptor{Mods: ModSuper, Key: "K"}},
		{"Control+Digit1", Descriptor{Mods: ModCtrl, Key: "1"}},
		{"Cmd+Option+Space", Descriptor{Mods: ModSuper | ModAlt, Key: "Space"}},
		{"F20", Descriptor{Key: "F20"}},
		{"Shift+esc", Descriptor{Mods: ModShift, Key: "Escape"}},
		{"Ctrl+Return", Descriptor{Mods: ModCtrl, Key: "Enter"}},
	}

	for _, tt := range tests {
		t.Run(tt.spec, func(t *testing.T) {
			got, err := Parse(tt.spec)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParse_Errors(t *testing.T) {
	tests := []struct {
		spec string
		want error
	}{
		{"", ErrEmptySpec},
		{"   ", ErrEmptySpec},
		{"Ctrl+", ErrInvalidSpec},
		{"Ctrl+Shift", ErrInvalidSpec},
		{"Ctrl+Ctrl+S", ErrInvalidSpec},
		{"Hyper+S", ErrInvalidSpec},
		{"S+Ctrl", ErrInvalidSpec},
		{"Ctrl+F21", ErrInvalidSpec},
		{"Ctrl+F01", ErrInvalidSpec},
		{"Ctrl+PageUp", ErrInvalidSpec},
		{"Ctrl+#", ErrInvalidSpec},
	}

	for _, tt := range tests {
		t.Run(tt.spec, func(t *testing.T) {
			_, err := Parse(tt.spec)
			require.Error(t, err)
			assert.True(t, errors.Is(err, tt.want), "got %v", err)
		})
	}
}

func TestDescriptor_StringRoundTrip(t *testing.T) {
	for _, spec := range []string{"Ctrl+Shift+S", "Ctrl+Alt+Shift+Super+F12", "Space", "Alt+Left"} {
		d := MustParse(spec)
		assert.Equal(t, spec, d.String())
		again, err := Parse(d.String())
		require.NoError(t, err)
		assert.Equal(t, d, again)
	}
}

func TestDescriptor_YAML(t *testing.T) {
	var cfg struct {
		Hotkey Descriptor `yaml:"hotkey"`
	}
	require.NoError(t, yaml.Unmarshal([]byte("hotkey: shift+ctrl+s"), &cfg))
	assert.Equal(t, "Ctrl+Shift+S", cfg.Hotkey.String())

	err := yaml.Unmarshal([]byte("hotkey: Ctrl+Bogus"), &cfg)
	assert.True(t, errors.Is(err, ErrInvalidSpec), "got %v", err)

	err = yaml.Unmarshal([]byte("hotkey: [Ctrl, S]"), &cfg)
	assert.Error(t, err)
}
