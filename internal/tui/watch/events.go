package watch

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/mattjoyce/obskey/internal/events"
	"github.com/mattjoyce/obskey/internal/journal"
)

const maxEventLines = 10

func renderEventStream(eventLog []events.Event, theme Theme, width int) string {
	innerWidth := width - 4

	if len(eventLog) == 0 {
		content := lipgloss.JoinVertical(lipgloss.Left,
			theme.Title.Render("EVENT STREAM"),
			theme.Dim.Render("  Waiting for events..."),
		)
		return theme.Border.Width(innerWidth).Render(content)
	}

	var lines []string
	for i, e := range eventLog {
		if i >= maxEventLines {
			break
		}
		lines = append(lines, formatEvent(e, theme))
	}

	content := lipgloss.JoinVertical(lipgloss.Left,
		theme.Title.Render("EVENT STREAM"),
		lipgloss.NewStyle().Padding(0, 1).Render(strings.Join(lines, "\n")),
	)
	return theme.Border.Width(innerWidth).Render(content)
}

func formatEvent(e events.Event, theme Theme) string {
	ts := theme.Dim.Render(e.At.Local().Format("15:04:05"))

	var typeStyle lipgloss.Style
	switch e.Type {
	case events.TypeExecuted:
		typeStyle = theme.StatusOK
	case events.TypeFailed:
		typeStyle = theme.StatusFailed
	case events.TypeHotkeyUnbound:
		typeStyle = theme.Highlight
	default:
		typeStyle = theme.Dim
	}

	return fmt.Sprintf("%s %s %s", ts, typeStyle.Render(fmt.Sprintf("%-16s", e.Type)), describeEvent(e))
}

// describeEvent summarises the payload on one line.
func describeEvent(e events.Event) string {
	switch e.Type {
	case events.TypeExecuted, events.TypeFailed:
		var exec journal.Execution
		if err := json.Unmarshal(e.Data, &exec); err == nil && exec.Plugin != "" {
			parts := []string{exec.Plugin, "(" + string(exec.Source) + ")"}
			if exec.Error != "" {
				parts = append(parts, exec.Error)
			} else if exec.Output != "" {
				parts = append(parts, exec.Output)
			}
			return strings.Join(parts, " ")
		}
	case events.TypeHotkeyUnbound:
		var data struct {
			HotkeyID uint32 `json:"hotkey_id"`
		}
		if err := json.Unmarshal(e.Data, &data); err == nil {
			return fmt.Sprintf("hotkey id %d has no plugin", data.HotkeyID)
		}
	}

	raw := string(e.Data)
	if len(raw) > 60 {
		raw = raw[:60] + "..."
	}
	return raw
}

// executionOf extracts the execution carried by executed/failed events.
func executionOf(e events.Event) (journal.Execution, bool) {
	if e.Type != events.TypeExecuted && e.Type != events.TypeFailed {
		return journal.Execution{}, false
	}
	var exec journal.Execution
	if err := json.Unmarshal(e.Data, &exec); err != nil || exec.Plugin == "" {
		return journal.Execution{}, false
	}
	return exec, true
}
