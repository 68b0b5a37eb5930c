package config

import (
	"bytes"
	"errors"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

// TypeKey is the table key naming the plugin type.
const TypeKey = "type"

// ErrBadPluginConfig is returned when a plugin table cannot be decoded into
// the plugin's typed configuration.
var ErrBadPluginConfig = errors.New("bad plugin configuration")

// Table is the raw configuration of one plugin instance. Its shape is owned
// by whichever plugin type consumes it.
type Table map[string]any

// Type returns the plugin type the table asks for. Tables without a type key
// use the instance name, so `plugin.switch_scene: {...}` still resolves.
func (t Table) Type(instance string) string {
	if v, ok := t[TypeKey].(string); ok && strings.TrimSpace(v) != "" {
		return strings.TrimSpace(v)
	}
	return instance
}

// CheckType rejects a type key that is present but not a non-empty string.
func (t Table) CheckType() error {
	v, ok := t[TypeKey]
	if !ok {
		return nil
	}
	if s, isString := v.(string); !isString || strings.TrimSpace(s) == "" {
		return fmt.Errorf("%w: %s must be a non-empty string, got %v", ErrBadPluginConfig, TypeKey, v)
	}
	return nil
}

// Decode decodes the table into out, rejecting keys out does not declare.
// The type key is not passed through.
func (t Table) Decode(out any) error {
	fields := make(map[string]any, len(t))
	for k, v := range t {
		if k == TypeKey {
			continue
		}
		fields[k] = v
	}

	data, err := yaml.Marshal(fields)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrBadPluginConfig, err)
	}

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(out); err != nil {
		return fmt.Errorf("%w: %v", ErrBadPluginConfig, err)
	}
	return nil
}
