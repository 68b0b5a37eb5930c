package api

import (
	"github.com/mattjoyce/obskey/internal/dispatch"
	"github.com/mattjoyce/obskey/internal/events"
	"github.com/mattjoyce/obskey/internal/journal"
)

// ErrorResponse is returned on errors.
type ErrorResponse struct {
	Error string `json:"error"`
}

// HealthzResponse is returned by GET /healthz.
type HealthzResponse struct {
	Status        string `json:"status"`
	UptimeSeconds int64  `json:"uptime_seconds"`
	HotkeyPlugins int    `json:"hotkey_plugins"`
	Background    int    `json:"background_plugins"`
}

// PluginsResponse is returned by GET /plugins.
type PluginsResponse struct {
	Plugins []dispatch.Info `json:"plugins"`
}

// TriggerResponse is returned by POST /plugins/{name}/trigger.
type TriggerResponse struct {
	Execution journal.Execution `json:"execution"`
	Error     string            `json:"error,omitempty"`
}

// ExecutionsResponse is returned by GET /executions.
type ExecutionsResponse struct {
	Executions []journal.Execution `json:"executions"`
}

// EventsResponse is returned by GET /events.
type EventsResponse struct {
	Events []events.Event `json:"events"`
}
