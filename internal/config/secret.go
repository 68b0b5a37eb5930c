package config

import "log/slog"

const redacted = "[redacted]"

// Secret is a string that never prints its value.
// Use Expose to read it.
type Secret string

// Expose returns the underlying value.
func (s Secret) Expose() string { return string(s) }

// IsSet reports whether a non-empty value is present.
func (s Secret) IsSet() bool { return s != "" }

func (s Secret) String() string {
	if s == "" {
		return ""
	}
	return redacted
}

func (s Secret) GoString() string { return s.String() }

// LogValue implements slog.LogValuer.
func (s Secret) LogValue() slog.Value {
	return slog.StringValue(s.String())
}

// MarshalYAML keeps secrets out of rendered config.
func (s Secret) MarshalYAML() (any, error) {
	return s.String(), nil
}
