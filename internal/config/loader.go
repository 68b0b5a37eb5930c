package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultFilename is looked up when a directory is given instead of a file.
const DefaultFilename = "config.yaml"

// EnvConfigPath overrides config discovery.
const EnvConfigPath = "OBSKEY_CONFIG"

var envVarPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// ErrConfigNotFound is returned by Discover when no candidate exists.
var ErrConfigNotFound = errors.New("no config found")

// Load reads, verifies, parses and validates the configuration at configPath.
// A directory resolves to its config.yaml.
func Load(configPath string) (*Config, error) {
	absPath, err := resolvePath(configPath)
	if err != nil {
		return nil, err
	}

	if err := verifyChecksum(absPath); err != nil {
		return nil, err
	}

	data, err := os.ReadFile(absPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	cfg, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", absPath, err)
	}
	cfg.SourceFile = absPath
	return cfg, nil
}

// Parse interpolates ${VAR} references, decodes YAML, applies defaults and validates.
func Parse(data []byte) (*Config, error) {
	interpolated := interpolateEnv(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(interpolated), &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}
	var set explicitKeys
	if err := yaml.Unmarshal([]byte(interpolated), &set); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	applyConfigDefaults(&cfg, set)

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// Discover finds the config file by checking standard locations.
// Priority order: $OBSKEY_CONFIG, ~/.config/obskey/config.yaml, ./config.yaml
func Discover() (string, error) {
	if p := os.Getenv(EnvConfigPath); p != "" {
		if _, err := os.Stat(p); err == nil {
			return p, nil
		}
	}

	if homeDir, err := os.UserHomeDir(); err == nil {
		userConfig := filepath.Join(homeDir, ".config", "obskey", DefaultFilename)
		if _, err := os.Stat(userConfig); err == nil {
			return userConfig, nil
		}
	}

	if _, err := os.Stat(DefaultFilename); err == nil {
		return DefaultFilename, nil
	}

	return "", fmt.Errorf("%w (checked: $%s, ~/.config/obskey/%s, ./%s)",
		ErrConfigNotFound, EnvConfigPath, DefaultFilename, DefaultFilename)
}

func resolvePath(configPath string) (string, error) {
	absPath, err := filepath.Abs(configPath)
	if err != nil {
		return "", fmt.Errorf("failed to resolve config path %q: %w", configPath, err)
	}

	info, err := os.Stat(absPath)
	if err != nil {
		return "", fmt.Errorf("config file not found: %s\n"+
			"Hint: Check the path or run with --config flag", absPath)
	}

	if info.IsDir() {
		absPath = filepath.Join(absPath, DefaultFilename)
		if _, err := os.Stat(absPath); err != nil {
			return "", fmt.Errorf("directory provided but %s not found: %s", DefaultFilename, absPath)
		}
	}
	return absPath, nil
}

// verifyChecksum checks the file against .checksums in its directory.
// Without a manifest there is nothing to verify.
func verifyChecksum(path string) error {
	dir := filepath.Dir(path)
	manifest, err := LoadChecksums(dir)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return err
	}

	expected, ok := manifest.Hashes[filepath.Base(path)]
	if !ok {
		return fmt.Errorf("config file %s has no hash in %s\n"+
			"Run: obskey lock --config %s", filepath.Base(path), ChecksumFilename, path)
	}
	if err := VerifyFileHash(path, expected); err != nil {
		return fmt.Errorf("config verification failed for %s: %w\n"+
			"If you edited this file intentionally, run: obskey lock --config %s", path, err, path)
	}
	return nil
}

// explicitKeys records which settings with a meaningful zero value were
// written in the file.
type explicitKeys struct {
	Service struct {
		ExecuteTimeout *time.Duration `yaml:"execute_timeout"`
	} `yaml:"service"`
}

// applyConfigDefaults fills values that were not explicitly set.
func applyConfigDefaults(cfg *Config, set explicitKeys) {
	defaults := Defaults()

	if cfg.Service.Name == "" {
		cfg.Service.Name = defaults.Service.Name
	}
	if cfg.Service.LogLevel == "" {
		cfg.Service.LogLevel = defaults.Service.LogLevel
	}
	if cfg.Service.LogFormat == "" {
		cfg.Service.LogFormat = defaults.Service.LogFormat
	}
	if set.Service.ExecuteTimeout == nil {
		cfg.Service.ExecuteTimeout = defaults.Service.ExecuteTimeout
	}
	if cfg.Service.OnFailure == "" {
		cfg.Service.OnFailure = defaults.Service.OnFailure
	}

	if cfg.Server.Host == "" {
		cfg.Server.Host = defaults.Server.Host
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = defaults.Server.Port
	}

	if cfg.API.Listen == "" {
		cfg.API.Listen = defaults.API.Listen
	}

	if cfg.Journal.Path == "" {
		cfg.Journal.Path = defaults.Journal.Path
	}

	if cfg.Plugins == nil {
		cfg.Plugins = make(map[string]Table)
	}
}

// interpolateEnv replaces ${VAR} with environment variable values.
// Undefined variables are left as-is so validation can name them.
func interpolateEnv(input string) string {
	return envVarPattern.ReplaceAllStringFunc(input, func(match string) string {
		varName := envVarPattern.FindStringSubmatch(match)[1]
		if value, exists := os.LookupEnv(varName); exists {
			return value
		}
		return match
	})
}

func validate(cfg *Config) error {
	validLogLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLogLevels[cfg.Service.LogLevel] {
		return fmt.Errorf("service.log_level must be one of: debug, info, warn, error (got %q)", cfg.Service.LogLevel)
	}
	if cfg.Service.LogFormat != "json" && cfg.Service.LogFormat != "text" {
		return fmt.Errorf("service.log_format must be json or text (got %q)", cfg.Service.LogFormat)
	}
	if cfg.Service.ExecuteTimeout < 0 {
		return fmt.Errorf("service.execute_timeout must not be negative")
	}
	if !cfg.Service.OnFailure.valid() {
		return fmt.Errorf("service.on_failure must be %q or %q (got %q)",
			FailureContinue, FailureExit, cfg.Service.OnFailure)
	}

	if cfg.Server.Port < 1 || cfg.Server.Port > 65535 {
		return fmt.Errorf("server.port must be between 1 and 65535 (got %d)", cfg.Server.Port)
	}
	if err := checkUnresolved("server.password", cfg.Server.Password.Expose()); err != nil {
		return err
	}

	if cfg.API.Enabled {
		if cfg.API.Listen == "" {
			return fmt.Errorf("api.listen is required when the API is enabled")
		}
		if err := checkUnresolved("api.token", cfg.API.Token.Expose()); err != nil {
			return err
		}
	}

	for name, table := range cfg.Plugins {
		if name == "" {
			return fmt.Errorf("plugin instance name must not be empty")
		}
		if err := table.CheckType(); err != nil {
			return fmt.Errorf("plugin %q: %w", name, err)
		}
	}
	return nil
}

// checkUnresolved reports a ${VAR} placeholder left after interpolation.
func checkUnresolved(field, value string) error {
	if matches := envVarPattern.FindStringSubmatch(value); len(matches) > 1 {
		return fmt.Errorf("%s: environment variable ${%s} is not set", field, matches[1])
	}
	return nil
}
