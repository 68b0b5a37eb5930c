package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleConfig = `
server:
  host: 127.0.0.1
  port: 4455
plugin:
  safe:
    type: switch_scene
    hotkey: Ctrl+Shift+S
    safe_scene_name: SAFE
`

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, DefaultFilename)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoad_AppliesDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, sampleConfig))
	require.NoError(t, err)

	assert.Equal(t, "obskey", cfg.Service.Name)
	assert.Equal(t, "info", cfg.Service.LogLevel)
	assert.Equal(t, "json", cfg.Service.LogFormat)
	assert.Equal(t, 30*time.Second, cfg.Service.ExecuteTimeout)
	assert.Equal(t, FailureContinue, cfg.Service.OnFailure)
	assert.Equal(t, MemoryJournal, cfg.Journal.Path)
	assert.Equal(t, "127.0.0.1", cfg.Server.Host)
	assert.Equal(t, 4455, cfg.Server.Port)
	assert.False(t, cfg.Server.Password.IsSet())

	require.Contains(t, cfg.Plugins, "safe")
	safe := cfg.Plugins["safe"]
	assert.Equal(t, "switch_scene", safe.Type("safe"))
	assert.Equal(t, "SAFE", safe["safe_scene_name"])
}

func TestLoad_DirectoryResolvesConfigYAML(t *testing.T) {
	path := writeConfig(t, sampleConfig)

	cfg, err := Load(filepath.Dir(path))
	require.NoError(t, err)
	assert.Equal(t, path, cfg.SourceFile)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "config file not found")
}

func TestLoad_MalformedYAML(t *testing.T) {
	_, err := Load(writeConfig(t, "server: [unterminated"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse YAML")
}

func TestParse_EnvInterpolation(t *testing.T) {
	t.Setenv("OBSKEY_TEST_PASSWORD", "hunter2")

	cfg, err := Parse([]byte(`
server:
  host: 10.0.0.2
  port: 4455
  password: ${OBSKEY_TEST_PASSWORD}
`))
	require.NoError(t, err)
	assert.Equal(t, "hunter2", cfg.Server.Password.Expose())
	assert.Equal(t, redacted, cfg.Server.Password.String())
}

func TestParse_UnresolvedPassword(t *testing.T) {
	_, err := Parse([]byte(`
server:
  password: ${OBSKEY_DEFINITELY_UNSET_VAR}
`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "OBSKEY_DEFINITELY_UNSET_VAR")
}

func TestParse_Validation(t *testing.T) {
	tests := []struct {
		name    string
		yaml    string
		wantErr string
	}{
		{
			name:    "bad port",
			yaml:    "server: {port: 70000}",
			wantErr: "server.port",
		},
		{
			name:    "bad log level",
			yaml:    "service: {log_level: loud}",
			wantErr: "service.log_level",
		},
		{
			name:    "bad log format",
			yaml:    "service: {log_format: xml}",
			wantErr: "service.log_format",
		},
		{
			name:    "bad failure policy",
			yaml:    "service: {on_failure: retry}",
			wantErr: "service.on_failure",
		},
		{
			name:    "negative timeout",
			yaml:    "service: {execute_timeout: -5s}",
			wantErr: "service.execute_timeout",
		},
		{
			name:    "unresolved api token",
			yaml:    "api: {enabled: true, token: '${OBSKEY_DEFINITELY_UNSET_VAR}'}",
			wantErr: "api.token",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.yaml))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestParse_ExplicitValuesKept(t *testing.T) {
	cfg, err := Parse([]byte(`
service:
  log_level: debug
  log_format: text
  execute_timeout: 2s
  on_failure: exit
journal:
  path: /var/lib/obskey/journal.db
`))
	require.NoError(t, err)
	assert.Equal(t, "debug", cfg.Service.LogLevel)
	assert.Equal(t, "text", cfg.Service.LogFormat)
	assert.Equal(t, 2*time.Second, cfg.Service.ExecuteTimeout)
	assert.Equal(t, FailureExit, cfg.Service.OnFailure)
	assert.Equal(t, "/var/lib/obskey/journal.db", cfg.Journal.Path)
}

func TestParse_ExecuteTimeoutZeroDisables(t *testing.T) {
	cfg, err := Parse([]byte("service: {execute_timeout: 0s}"))
	require.NoError(t, err)
	assert.Zero(t, cfg.Service.ExecuteTimeout, "explicit 0s disables the timeout")

	cfg, err = Parse([]byte("service: {log_level: info}"))
	require.NoError(t, err)
	assert.Equal(t, 30*time.Second, cfg.Service.ExecuteTimeout, "absent key keeps the default")
}

func TestParse_RejectsNonStringPluginType(t *testing.T) {
	_, err := Parse([]byte(`
plugin:
  safe:
    type: 5
    safe_scene_name: SAFE
`))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrBadPluginConfig))
	assert.Contains(t, err.Error(), `plugin "safe"`)
}

func TestLoad_ChecksumVerification(t *testing.T) {
	path := writeConfig(t, sampleConfig)

	_, err := Lock(path)
	require.NoError(t, err)

	_, err = Load(path)
	require.NoError(t, err, "freshly locked config must verify")

	tampered := strings.Replace(sampleConfig, "SAFE", "PWNED", 1)
	require.NoError(t, os.WriteFile(path, []byte(tampered), 0o644))

	_, err = Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "hash mismatch")
}

func TestDiscover_EnvOverride(t *testing.T) {
	path := writeConfig(t, sampleConfig)
	t.Setenv(EnvConfigPath, path)

	got, err := Discover()
	require.NoError(t, err)
	assert.Equal(t, path, got)
}
