package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// GetPath retrieves a value using a dot-notation path such as
// "server.port" or "plugin.safe.hotkey". "plugin:<name>" addresses a whole
// plugin table and "plugin:*" all of them.
func (c *Config) GetPath(path string) (any, error) {
	if strings.Contains(path, ":") {
		return c.GetEntity(path)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return nil, fmt.Errorf("marshal config: %w", err)
	}

	var m map[string]any
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	return getValue(m, path)
}

// GetEntity retrieves a plugin table by plugin:name.
func (c *Config) GetEntity(address string) (any, error) {
	entityType, name, ok := strings.Cut(address, ":")
	if !ok || name == "" {
		return nil, fmt.Errorf("invalid entity address format %q (expected type:name)", address)
	}

	if entityType != "plugin" {
		return nil, fmt.Errorf("unsupported entity type %q", entityType)
	}
	if name == "*" {
		return c.Plugins, nil
	}
	p, ok := c.Plugins[name]
	if !ok {
		return nil, fmt.Errorf("plugin %q not found", name)
	}
	return p, nil
}

func getValue(m map[string]any, path string) (any, error) {
	var current any = m

	for _, part := range strings.Split(path, ".") {
		if part == "" {
			continue
		}

		m, ok := current.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("path %q breaks at %q (not a map)", path, part)
		}

		val, exists := m[part]
		if !exists {
			return nil, fmt.Errorf("path %q: key %q not found", path, part)
		}
		current = val
	}

	return current, nil
}

func findNode(node *yaml.Node, path string, create bool) (*yaml.Node, error) {
	current := node

	for _, part := range strings.Split(path, ".") {
		if current.Kind != yaml.MappingNode {
			return nil, fmt.Errorf("%q is not a mapping", part)
		}

		found := false
		for i := 0; i < len(current.Content); i += 2 {
			if current.Content[i].Value == part {
				current = current.Content[i+1]
				found = true
				break
			}
		}
		if found {
			continue
		}
		if !create {
			return nil, fmt.Errorf("key %q not found", part)
		}

		// The last part gets overwritten with the scalar.
		key := &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: part}
		value := &yaml.Node{Kind: yaml.MappingNode, Tag: "!!map"}
		current.Content = append(current.Content, key, value)
		current = value
	}

	return current, nil
}

// SetPath sets a scalar in the file the config was loaded from. The file is
// only rewritten when the edited document still validates.
// "plugin:<name>.<field>" is shorthand for "plugin.<name>.<field>".
func (c *Config) SetPath(path, value string) error {
	if entity, field, ok := strings.Cut(path, "."); ok && strings.Contains(entity, ":") {
		etype, ename, _ := strings.Cut(entity, ":")
		if etype != "plugin" {
			return fmt.Errorf("unsupported entity type for set: %q", etype)
		}
		path = "plugin." + ename + "." + field
	} else if strings.Contains(path, ":") {
		return fmt.Errorf("must specify a field to set (e.g., %s.hotkey=Ctrl+F1)", path)
	}

	if c.SourceFile == "" {
		return fmt.Errorf("config was not loaded from a file")
	}

	original, err := os.ReadFile(c.SourceFile)
	if err != nil {
		return fmt.Errorf("failed to read config: %w", err)
	}

	var root yaml.Node
	if err := yaml.Unmarshal(original, &root); err != nil {
		return fmt.Errorf("failed to parse YAML: %w", err)
	}
	if root.Kind != yaml.DocumentNode || len(root.Content) == 0 {
		root = yaml.Node{Kind: yaml.DocumentNode, Content: []*yaml.Node{{Kind: yaml.MappingNode, Tag: "!!map"}}}
	}

	target, err := findNode(root.Content[0], path, true)
	if err != nil {
		return fmt.Errorf("failed to navigate/create path %q: %w", path, err)
	}
	target.Kind = yaml.ScalarNode
	target.Value = value
	target.Tag = guessTag(value)
	target.Content = nil

	candidate, err := yaml.Marshal(&root)
	if err != nil {
		return err
	}
	return c.persistWithValidation(candidate)
}

func guessTag(v string) string {
	if v == "true" || v == "false" {
		return "!!bool"
	}
	isDigit := true
	for i, c := range v {
		if i == 0 && c == '-' {
			continue
		}
		if c < '0' || c > '9' {
			isDigit = false
			break
		}
	}
	if isDigit && v != "" && v != "-" {
		return "!!int"
	}
	return "!!str"
}

func (c *Config) persistWithValidation(candidate []byte) error {
	if _, err := Parse(candidate); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}

	mode := os.FileMode(0o644)
	if info, statErr := os.Stat(c.SourceFile); statErr == nil {
		mode = info.Mode().Perm()
	}
	if err := os.WriteFile(c.SourceFile, candidate, mode); err != nil {
		return fmt.Errorf("failed to persist config change: %w", err)
	}
	return nil
}
