// Package tui renders quests, events and the journal for the terminal.
// Plain streaming output, no full-screen UI.
package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"questgraph/pkg/model"
	"questgraph/pkg/session"
)

// Colors
var (
	accent  = lipgloss.Color("#D4A017")
	muted   = lipgloss.Color("#666666")
	success = lipgloss.Color("#00CC66")
	danger  = lipgloss.Color("#CC3333")
	white   = lipgloss.Color("#FFFFFF")
)

// Styles
var (
	titleStyle   = lipgloss.NewStyle().Bold(true).Foreground(white)
	accentStyle  = lipgloss.NewStyle().Foreground(accent).Bold(true)
	mutedStyle   = lipgloss.NewStyle().Foreground(muted)
	successStyle = lipgloss.NewStyle().Foreground(success).Bold(true)
	errorStyle   = lipgloss.NewStyle().Foreground(danger)
	textStyle    = lipgloss.NewStyle().Width(72).PaddingLeft(2)
	tutorialBox  = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(accent).Padding(0, 1)
)

const rule = "  ─────────────────────────────────────"

// Header is printed once when play starts.
func Header(questName, version string) string {
	return "\n" + titleStyle.Render("  "+strings.ToUpper(questName)) + mutedStyle.Render(" questgraph "+version) + "\n"
}

// Event renders an event with its numbered decisions.
func Event(v *model.EventView) string {
	var b strings.Builder
	b.WriteString("\n")
	b.WriteString(accentStyle.Render("▸ "+v.Name) + mutedStyle.Render("  ("+v.Quest+")"))
	b.WriteString("\n")

	if v.Text != "" {
		text := textStyle.Render(v.Text)
		if v.Tutorial {
			text = tutorialBox.Render(v.Text)
		}
		b.WriteString(text)
		b.WriteString("\n")
	}

	if v.WaitMS > 0 {
		wait := time.Duration(v.WaitMS) * time.Millisecond
		b.WriteString(mutedStyle.Render(fmt.Sprintf("  … continues in %s", wait)))
		b.WriteString("\n")
		return b.String()
	}

	b.WriteString("\n")
	for i, label := range v.Endings {
		fmt.Fprintf(&b, "  %s %s %s\n",
			titleStyle.Render(fmt.Sprintf("%d.", i+1)),
			v.Decision(i),
			mutedStyle.Render("["+label+"]"))
	}
	return b.String()
}

// Journal renders resolutions, one per line.
func Journal(entries []model.JournalEntry) string {
	if len(entries) == 0 {
		return mutedStyle.Render("  (nothing happened yet)") + "\n"
	}
	var b strings.Builder
	b.WriteString(mutedStyle.Render(rule) + "\n")
	for _, e := range entries {
		marker := " "
		if e.Finished {
			marker = successStyle.Render("✓")
		}
		fmt.Fprintf(&b, "  %s %3d %s %s %s\n",
			marker, e.Seq,
			titleStyle.Render(e.Event),
			mutedStyle.Render("→ "+e.Ending),
			mutedStyle.Render(fmt.Sprintf("(%s: %s → %s)", e.Quest, e.FromPool, e.ToPool)))
	}
	b.WriteString(mutedStyle.Render(rule) + "\n")
	return b.String()
}

// Outcome renders how the run ended.
func Outcome(snap session.Snapshot) string {
	switch snap.Status {
	case "finished":
		return "\n" + successStyle.Render("  ✓ "+snap.Quest+" finished") + mutedStyle.Render(fmt.Sprintf(" after %d steps", snap.Steps)) + "\n"
	case "empty_graph":
		return "\n" + errorStyle.Render("  ✗ "+snap.Quest+" starts on a terminal pool; nothing to play") + "\n"
	case "stalled":
		return "\n" + errorStyle.Render("  ✗ "+snap.Quest+" stalled with nothing to dispatch") + "\n"
	default:
		return ""
	}
}

// Error renders an error line.
func Error(err error) string {
	return errorStyle.Render("  ✗ "+err.Error()) + "\n"
}

// Graph renders a graph view wave by wave, then its edges.
func Graph(v model.GraphView) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s %s\n", titleStyle.Render(v.Quest), mutedStyle.Render(fmt.Sprintf("%d waves", v.Waves)))

	names := make(map[int]string, len(v.Nodes))
	for _, n := range v.Nodes {
		names[n.ID] = n.Name
	}

	for w := 0; w < v.Waves; w++ {
		var row []string
		for _, n := range v.Nodes {
			if n.Wave == w {
				row = append(row, node(n))
			}
		}
		fmt.Fprintf(&b, "  %s %s\n", mutedStyle.Render(fmt.Sprintf("wave %d:", w)), strings.Join(row, "  "))
	}

	var orphans []string
	for _, n := range v.Nodes {
		if n.Wave < 0 {
			orphans = append(orphans, n.Name)
		}
	}
	if len(orphans) > 0 {
		fmt.Fprintf(&b, "  %s %s\n", errorStyle.Render("unreachable:"), strings.Join(orphans, ", "))
	}

	b.WriteString(mutedStyle.Render(rule) + "\n")
	for _, e := range v.Edges {
		arrow := "→"
		if e.Starred {
			arrow = "⇒"
		}
		line := fmt.Sprintf("  %s %s %s", names[e.From], arrow, names[e.To])
		if e.Used {
			line = successStyle.Render(line)
		}
		b.WriteString(line + "\n")
	}
	return b.String()
}

func node(n model.Node) string {
	label := n.Name
	switch {
	case n.Terminal:
		label = "[" + label + "]"
	case n.Start:
		label = "(" + label + ")"
	}
	if n.Active {
		return accentStyle.Render(label)
	}
	return label
}
