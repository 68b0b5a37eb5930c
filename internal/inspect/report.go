// Package inspect renders a report for one journaled execution and the
// executions of the same plugin that led up to it.
package inspect

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/mattjoyce/obskey/internal/journal"
	"github.com/mattjoyce/obskey/internal/plugin"
)

// DefaultDepth is how many executions the chain shows by default,
// including the inspected one.
const DefaultDepth = 10

// Toggle states derived from switch_scene outputs.
const (
	StateSafe      = "safe scene active"
	StateNormal    = "normal"
	StateUnchanged = "unchanged"
	StateUnknown   = "unknown"
)

// History is the part of the journal a report reads.
type History interface {
	Get(ctx context.Context, id string) (journal.Execution, error)
	Before(ctx context.Context, plugin string, at time.Time, limit int) ([]journal.Execution, error)
}

// Report is the structured JSON representation of an execution report.
type Report struct {
	ExecutionID string      `json:"execution_id"`
	Plugin      string      `json:"plugin"`
	Source      string      `json:"source"`
	Status      string      `json:"status"`
	StartedAt   time.Time   `json:"started_at"`
	Duration    string      `json:"duration"`
	Transition  *Transition `json:"transition,omitempty"`
	State       string      `json:"state"`
	Result      string      `json:"result"`
	Hops        int         `json:"hops"`
	Steps       []Step      `json:"steps"`
}

// Transition is a program scene change reported by a plugin.
type Transition struct {
	From string `json:"from"`
	To   string `json:"to"`
}

// Step is one execution in the plugin's chain, oldest first.
type Step struct {
	Hop         int         `json:"hop"`
	ExecutionID string      `json:"execution_id"`
	Source      string      `json:"source"`
	HotkeyID    uint32      `json:"hotkey_id,omitempty"`
	Status      string      `json:"status"`
	StartedAt   time.Time   `json:"started_at"`
	Transition  *Transition `json:"transition,omitempty"`
	State       string      `json:"state"`
	Result      string      `json:"result,omitempty"`
}

// BuildReport renders a terminal-friendly report for an execution.
func BuildReport(ctx context.Context, h History, executionID string, depth int) (string, error) {
	report, err := gatherReportData(ctx, h, executionID, depth)
	if err != nil {
		return "", err
	}

	var out strings.Builder
	fmt.Fprintf(&out, "Execution Report\n")
	fmt.Fprintf(&out, "Execution ID : %s\n", report.ExecutionID)
	fmt.Fprintf(&out, "Plugin       : %s\n", report.Plugin)
	fmt.Fprintf(&out, "Source       : %s\n", report.Source)
	fmt.Fprintf(&out, "Status       : %s\n", report.Status)
	fmt.Fprintf(&out, "Started      : %s\n", report.StartedAt.Local().Format(time.RFC3339))
	fmt.Fprintf(&out, "Duration     : %s\n", report.Duration)
	if report.Transition != nil {
		fmt.Fprintf(&out, "Transition   : %s -> %s\n", report.Transition.From, report.Transition.To)
	}
	fmt.Fprintf(&out, "State after  : %s\n", report.State)
	fmt.Fprintf(&out, "Result       : %s\n", renderUnset(report.Result, "<none>"))
	fmt.Fprintf(&out, "Hops         : %d\n", report.Hops)
	fmt.Fprintf(&out, "\n")

	for _, step := range report.Steps {
		marker := ""
		if step.ExecutionID == report.ExecutionID {
			marker = "  <== inspected"
		}
		fmt.Fprintf(&out, "[%d] %s :: %s%s\n", step.Hop, step.StartedAt.Local().Format("2006-01-02 15:04:05.000"), step.ExecutionID, marker)
		if step.HotkeyID != 0 {
			fmt.Fprintf(&out, "    source     : %s (hotkey id %d)\n", step.Source, step.HotkeyID)
		} else {
			fmt.Fprintf(&out, "    source     : %s\n", step.Source)
		}
		fmt.Fprintf(&out, "    status     : %s\n", step.Status)
		if step.Transition != nil {
			fmt.Fprintf(&out, "    scenes     : %s -> %s\n", step.Transition.From, step.Transition.To)
		} else {
			fmt.Fprintf(&out, "    scenes     : <none>\n")
		}
		fmt.Fprintf(&out, "    state      : %s\n", step.State)
		fmt.Fprintf(&out, "    result     : %s\n", renderUnset(step.Result, "<none>"))
		fmt.Fprintf(&out, "\n")
	}

	return strings.TrimRight(out.String(), "\n") + "\n", nil
}

// BuildJSONReport returns the machine-readable JSON execution report.
func BuildJSONReport(ctx context.Context, h History, executionID string, depth int) (string, error) {
	report, err := gatherReportData(ctx, h, executionID, depth)
	if err != nil {
		return "", err
	}

	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal json report: %w", err)
	}
	return string(data), nil
}

func gatherReportData(ctx context.Context, h History, executionID string, depth int) (*Report, error) {
	if strings.TrimSpace(executionID) == "" {
		return nil, errors.New("execution_id is required")
	}
	if depth <= 0 {
		depth = DefaultDepth
	}

	root, err := h.Get(ctx, executionID)
	if err != nil {
		if errors.Is(err, journal.ErrNotFound) {
			return nil, fmt.Errorf("execution %q not found", executionID)
		}
		return nil, fmt.Errorf("query execution %q: %w", executionID, err)
	}

	rootStep := newStep(root)
	report := &Report{
		ExecutionID: root.ID,
		Plugin:      root.Plugin,
		Source:      string(root.Source),
		Status:      string(root.Status),
		StartedAt:   root.StartedAt,
		Duration:    root.Duration().String(),
		Transition:  rootStep.Transition,
		State:       rootStep.State,
		Result:      rootStep.Result,
	}

	chain, err := h.Before(ctx, root.Plugin, root.StartedAt, depth)
	if err != nil {
		return nil, fmt.Errorf("load execution chain: %w", err)
	}
	if !slices.ContainsFunc(chain, func(e journal.Execution) bool { return e.ID == root.ID }) {
		// Same start time as a later row; keep the inspected one in view.
		chain = append([]journal.Execution{root}, chain...)
		chain = chain[:min(len(chain), depth)]
	}
	slices.Reverse(chain)

	report.Hops = len(chain)
	report.Steps = make([]Step, 0, len(chain))
	for idx, e := range chain {
		step := newStep(e)
		step.Hop = idx + 1
		report.Steps = append(report.Steps, step)
	}
	return report, nil
}

func newStep(e journal.Execution) Step {
	step := Step{
		ExecutionID: e.ID,
		Source:      string(e.Source),
		HotkeyID:    e.HotkeyID,
		Status:      string(e.Status),
		StartedAt:   e.StartedAt,
		State:       StateUnchanged,
		Result:      e.Error,
	}
	if e.Status != journal.StatusSucceeded {
		return step
	}
	step.Result = e.Output
	step.Transition = parseTransition(e.Output)
	step.State = stateAfter(e.Output)
	return step
}

// parseTransition reads "<prefix>: <from> -> <to>".
func parseTransition(output string) *Transition {
	_, scenes, ok := strings.Cut(output, ": ")
	if !ok {
		return nil
	}
	from, to, ok := strings.Cut(scenes, " -> ")
	if !ok {
		return nil
	}
	return &Transition{From: from, To: to}
}

func stateAfter(output string) string {
	switch {
	case strings.HasPrefix(output, plugin.OutputSafeActive):
		return StateSafe
	case strings.HasPrefix(output, plugin.OutputSwitchedBack):
		return StateNormal
	default:
		return StateUnknown
	}
}

func renderUnset(v, fallback string) string {
	if strings.TrimSpace(v) == "" {
		return fallback
	}
	return v
}
