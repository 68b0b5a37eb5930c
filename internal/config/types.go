package config

import (
	"time"
)

// Config represents the complete obskey configuration.
type Config struct {
	Service ServiceConfig    `yaml:"service"`
	Server  ServerConfig     `yaml:"server"`
	Plugins map[string]Table `yaml:"plugin"`
	API     APIConfig        `yaml:"api,omitempty"`
	Journal JournalConfig    `yaml:"journal,omitempty"`

	// SourceFile is the absolute path the config was loaded from.
	SourceFile string `yaml:"-"`
}

// ServiceConfig defines core service settings.
type ServiceConfig struct {
	Name           string        `yaml:"name"`
	LogLevel       string        `yaml:"log_level"`
	LogFormat      string        `yaml:"log_format"`
	ExecuteTimeout time.Duration `yaml:"execute_timeout"`
	OnFailure      FailurePolicy `yaml:"on_failure"`
	LockPath       string        `yaml:"lock_path,omitempty"`
}

// ServerConfig describes the OBS websocket endpoint.
type ServerConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Password Secret `yaml:"password,omitempty"`
}

// APIConfig defines the local control API settings.
type APIConfig struct {
	Enabled bool   `yaml:"enabled"`
	Listen  string `yaml:"listen"`
	Token   Secret `yaml:"token,omitempty"`
}

// JournalConfig defines where execution history is kept.
type JournalConfig struct {
	Path string `yaml:"path"`
}

// FailurePolicy decides what happens when a plugin execution fails.
type FailurePolicy string

const (
	// FailureContinue logs the failure and keeps the dispatch loop running.
	FailureContinue FailurePolicy = "continue"
	// FailureExit stops the process with a non-zero exit code.
	FailureExit FailurePolicy = "exit"
)

func (p FailurePolicy) valid() bool {
	return p == FailureContinue || p == FailureExit
}

// MemoryJournal keeps the journal in process memory.
const MemoryJournal = ":memory:"

// Defaults returns a Config with sensible defaults.
func Defaults() *Config {
	return &Config{
		Service: ServiceConfig{
			Name:           "obskey",
			LogLevel:       "info",
			LogFormat:      "json",
			ExecuteTimeout: 30 * time.Second,
			OnFailure:      FailureContinue,
		},
		Server: ServerConfig{
			Host: "127.0.0.1",
			Port: 4455,
		},
		API: APIConfig{
			Enabled: false,
			Listen:  "127.0.0.1:4466",
		},
		Journal: JournalConfig{
			Path: MemoryJournal,
		},
		Plugins: make(map[string]Table),
	}
}
