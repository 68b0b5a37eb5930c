package watch

import (
	"github.com/charmbracelet/bubbles/table"
	"github.com/charmbracelet/lipgloss"

	"github.com/mattjoyce/obskey/internal/dispatch"
	"github.com/mattjoyce/obskey/internal/journal"
)

func newPluginTable(theme Theme) table.Model {
	t := table.New(
		table.WithColumns(pluginColumns(80)),
		table.WithFocused(true),
		table.WithHeight(8),
	)

	s := table.DefaultStyles()
	s.Header = s.Header.
		BorderStyle(lipgloss.NormalBorder()).
		BorderForeground(lipgloss.Color("240")).
		BorderBottom(true).
		Bold(false)
	s.Selected = theme.Selected.Bold(false)
	t.SetStyles(s)
	return t
}

// pluginColumns splits width between the columns; the output column takes
// what is left.
func pluginColumns(width int) []table.Column {
	fixed := 2 + 18 + 11 + 16
	rest := width - fixed - 10
	if rest < 12 {
		rest = 12
	}
	return []table.Column{
		{Title: "ST", Width: 2},
		{Title: "Plugin", Width: 18},
		{Title: "Kind", Width: 11},
		{Title: "Hotkey", Width: 16},
		{Title: "Output", Width: rest},
	}
}

func pluginRows(plugins []dispatch.Info, last map[string]journal.Status, theme Theme) []table.Row {
	rows := make([]table.Row, 0, len(plugins))
	for _, p := range plugins {
		rows = append(rows, table.Row{
			statusSymbol(last[p.Name], theme),
			p.Name,
			string(p.Kind),
			p.Hotkey,
			p.Output,
		})
	}
	return rows
}

func statusSymbol(s journal.Status, theme Theme) string {
	switch s {
	case journal.StatusSucceeded:
		return theme.StatusOK.Render("●")
	case journal.StatusFailed:
		return theme.StatusFailed.Render("∅")
	case journal.StatusTimedOut:
		return theme.StatusFailed.Render("◑")
	case "running":
		return theme.StatusRunning.Render("◉")
	}
	return theme.StatusIdle.Render("○")
}

func renderPlugins(t table.Model, theme Theme, width int) string {
	content := lipgloss.JoinVertical(lipgloss.Left,
		theme.Title.Render("PLUGINS"),
		t.View(),
	)
	return theme.Border.Width(width - 4).Render(content)
}
