package api

import (
	"fmt"

	"github.com/mattjoyce/obskey/internal/dispatch"
)

// buildOpenAPIDoc returns an OpenAPI 3.1 document with one trigger operation
// per hotkey plugin.
func buildOpenAPIDoc(plugins []dispatch.Info) map[string]any {
	paths := map[string]any{
		"/plugins": map[string]any{
			"get": operation("listPlugins", "List plugins", "200", "Plugins"),
		},
		"/executions": map[string]any{
			"get": operation("listExecutions", "Recent executions, newest first", "200", "Executions"),
		},
		"/events": map[string]any{
			"get": operation("listEvents", "Buffered events after ?since", "200", "Events"),
		},
	}

	for _, p := range plugins {
		if p.Kind != dispatch.KindHotkey {
			continue
		}
		op := operation(
			fmt.Sprintf("trigger__%s", p.Name),
			fmt.Sprintf("Run %s as if %s was pressed", p.Name, p.Hotkey),
			"200", "Execution succeeded",
		)
		op["tags"] = []string{p.Name}
		op["responses"].(map[string]any)["502"] = map[string]any{"description": "Execution failed"}
		paths[fmt.Sprintf("/plugins/%s/trigger", p.Name)] = map[string]any{"post": op}
	}

	return map[string]any{
		"openapi": "3.1.0",
		"info": map[string]any{
			"title":   "obskey",
			"version": "1.0",
		},
		"paths": paths,
		"components": map[string]any{
			"securitySchemes": map[string]any{
				"BearerAuth": map[string]any{
					"type":   "http",
					"scheme": "bearer",
				},
			},
		},
	}
}

func operation(id, summary, code, description string) map[string]any {
	return map[string]any{
		"operationId": id,
		"summary":     summary,
		"responses": map[string]any{
			code:  map[string]any{"description": description},
			"401": map[string]any{"description": "Missing or invalid token"},
		},
		"security": []any{map[string]any{"BearerAuth": []string{}}},
	}
}
