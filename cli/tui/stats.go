package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/pithecene-io/foundry/cli/reader"
)

// StatsModel is a Bubble Tea model for the session stats view.
type StatsModel struct {
	viewType string
	data     any
	width    int
	height   int
	quitting bool
}

// NewStatsModel creates a new stats model.
func NewStatsModel(viewType string, data any) StatsModel {
	return StatsModel{
		viewType: viewType,
		data:     data,
	}
}

// Init implements tea.Model.
func (m StatsModel) Init() tea.Cmd {
	return nil
}

// Update implements tea.Model.
func (m StatsModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case tea.KeyMsg:
		if key.Matches(msg, keys.Quit) {
			m.quitting = true
			return m, tea.Quit
		}
	}

	return m, nil
}

// View implements tea.Model.
func (m StatsModel) View() string {
	if m.quitting {
		return ""
	}

	var content string
	switch m.viewType {
	case "stats_session":
		content = m.renderSessionStats()
	default:
		content = fmt.Sprintf("Unknown view type: %s", m.viewType)
	}

	help := HelpStyle.Render("Press q or Ctrl+C to quit")
	return content + "\n" + help
}

func (m StatsModel) renderSessionStats() string {
	data, ok := m.data.(*reader.SessionReport)
	if !ok {
		return "Invalid data type for stats_session"
	}

	var complete, failed, aborted int
	for _, a := range data.Actions {
		switch a.Status {
		case "complete":
			complete++
		case "failed":
			failed++
		case "aborted":
			aborted++
		}
	}

	var b strings.Builder
	b.WriteString(TitleStyle.Render("Session Stats: " + data.SessionID))
	b.WriteString("\n\n")

	boxes := []string{
		statBox("Events", fmt.Sprintf("%d", data.EventCount)),
		statBox("Artifacts", fmt.Sprintf("%d", len(data.Artifacts))),
		statBox("Actions", fmt.Sprintf("%d", len(data.Actions))),
		statBox("Complete", fmt.Sprintf("%d", complete)),
		statBox("Failed", fmt.Sprintf("%d", failed)),
		statBox("Previews", fmt.Sprintf("%d", len(data.Previews))),
	}

	b.WriteString(lipgloss.JoinHorizontal(lipgloss.Top, boxes[:3]...))
	b.WriteString("\n")
	b.WriteString(lipgloss.JoinHorizontal(lipgloss.Top, boxes[3:]...))

	if aborted > 0 || len(data.Errors) > 0 {
		b.WriteString("\n\n")
		b.WriteString(ErrorStyle.Render(
			fmt.Sprintf("%d aborted, %d session errors", aborted, len(data.Errors))))
	}

	return b.String()
}

func statBox(label, value string) string {
	content := StatValueStyle.Render(value) + "\n" + StatLabelStyle.Render(label)
	return StatBoxStyle.Render(content)
}

// RunStatsTUI runs the stats TUI.
func RunStatsTUI(viewType string, data any) error {
	model := NewStatsModel(viewType, data)
	p := tea.NewProgram(model, tea.WithAltScreen())
	_, err := p.Run()
	return err
}
