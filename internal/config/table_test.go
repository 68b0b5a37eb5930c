package config

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sceneOpts struct {
	Hotkey        string `yaml:"hotkey"`
	SafeSceneName string `yaml:"safe_scene_name"`
}

func TestTable_Type(t *testing.T) {
	assert.Equal(t, "switch_scene", Table{"type": "switch_scene"}.Type("safe"))
	assert.Equal(t, "switch_scene", Table{"type": "  switch_scene "}.Type("safe"))
	assert.Equal(t, "switch_scene", Table{}.Type("switch_scene"))
	assert.Equal(t, "safe", Table{"type": 42}.Type("safe"))
	assert.Equal(t, "safe", Table(nil).Type("safe"))
}

func TestTable_CheckType(t *testing.T) {
	require.NoError(t, Table{"type": "switch_scene"}.CheckType())
	require.NoError(t, Table{"safe_scene_name": "SAFE"}.CheckType())

	for _, bad := range []Table{{"type": 42}, {"type": "  "}, {"type": nil}, {"type": []any{"switch_scene"}}} {
		err := bad.CheckType()
		require.Error(t, err, "type %v", bad["type"])
		assert.True(t, errors.Is(err, ErrBadPluginConfig))
	}
}

func TestTable_Decode(t *testing.T) {
	var opts sceneOpts
	err := Table{
		"type":            "switch_scene",
		"hotkey":          "Ctrl+Shift+S",
		"safe_scene_name": "SAFE",
	}.Decode(&opts)
	require.NoError(t, err)
	assert.Equal(t, sceneOpts{Hotkey: "Ctrl+Shift+S", SafeSceneName: "SAFE"}, opts)
}

func TestTable_DecodeRejectsUnknownKeys(t *testing.T) {
	var opts sceneOpts
	err := Table{"safe_scene": "SAFE"}.Decode(&opts)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrBadPluginConfig))
}

func TestTable_DecodeNil(t *testing.T) {
	var opts sceneOpts
	require.NoError(t, Table(nil).Decode(&opts))
	assert.Equal(t, sceneOpts{}, opts)
}
