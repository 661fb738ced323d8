package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/pithecene-io/foundry/cli/reader"
)

// InspectModel is a Bubble Tea model for the session inspect view.
type InspectModel struct {
	viewType string
	data     any
	width    int
	height   int
	quitting bool
}

// NewInspectModel creates a new inspect model.
func NewInspectModel(viewType string, data any) InspectModel {
	return InspectModel{
		viewType: viewType,
		data:     data,
	}
}

// Init implements tea.Model.
func (m InspectModel) Init() tea.Cmd {
	return nil
}

// Update implements tea.Model.
func (m InspectModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
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
func (m InspectModel) View() string {
	if m.quitting {
		return ""
	}

	var content string
	switch m.viewType {
	case "inspect_session":
		content = m.renderInspectSession()
	default:
		content = fmt.Sprintf("Unknown view type: %s", m.viewType)
	}

	help := HelpStyle.Render("Press q or Ctrl+C to quit")
	return content + "\n" + help
}

func (m InspectModel) renderInspectSession() string {
	data, ok := m.data.(*reader.SessionReport)
	if !ok {
		return "Invalid data type for inspect_session"
	}

	var b strings.Builder
	b.WriteString(TitleStyle.Render("Session Details"))
	b.WriteString("\n\n")

	rows := [][]string{
		{"Session ID", data.SessionID},
		{"Contract", data.ContractVersion},
		{"Events", fmt.Sprintf("%d", data.EventCount)},
	}
	if data.FirstTs != "" {
		rows = append(rows, []string{"First Event", data.FirstTs})
	}
	if data.LastTs != "" {
		rows = append(rows, []string{"Last Event", data.LastTs})
	}
	if data.TerminalBytes > 0 {
		rows = append(rows, []string{"Terminal", fmt.Sprintf("%d bytes", data.TerminalBytes)})
	}

	for _, row := range rows {
		b.WriteString(fmt.Sprintf("%s %s\n",
			LabelStyle.Render(row[0]+":"),
			ValueStyle.Render(row[1])))
	}

	if len(data.Artifacts) > 0 {
		b.WriteString("\n")
		b.WriteString(TitleStyle.Render("Artifacts"))
		b.WriteString("\n")
		for _, a := range data.Artifacts {
			state := "open"
			if a.Closed {
				state = "complete"
			}
			b.WriteString(fmt.Sprintf("  • %s %s (%d actions) %s\n",
				ValueStyle.Render(a.ID),
				ValueStyle.Render(a.Title),
				a.Actions,
				StateStyle(state).Render(state)))
		}
	}

	if len(data.Actions) > 0 {
		b.WriteString("\n")
		b.WriteString(TitleStyle.Render("Actions"))
		b.WriteString("\n")
		for _, a := range data.Actions {
			target := a.FilePath
			if target == "" {
				target = a.Kind
			}
			b.WriteString(fmt.Sprintf("  • %s %s %s\n",
				ValueStyle.Render(a.ID),
				ValueStyle.Render(target),
				StateStyle(a.Status).Render(a.Status)))
		}
	}

	if len(data.Previews) > 0 {
		b.WriteString("\n")
		b.WriteString(TitleStyle.Render("Previews"))
		b.WriteString("\n")
		for _, p := range data.Previews {
			kind := "dev"
			if p.Static {
				kind = "static"
			}
			b.WriteString(fmt.Sprintf("  • %s (%s)\n",
				ValueStyle.Render(p.URL),
				kind))
		}
	}

	if len(data.Errors) > 0 {
		b.WriteString("\n")
		b.WriteString(TitleStyle.Render("Errors"))
		b.WriteString("\n")
		for _, e := range data.Errors {
			b.WriteString(fmt.Sprintf("  • %s %s\n",
				ErrorStyle.Render("["+e.Kind+"]"),
				ValueStyle.Render(e.Message)))
			if e.Hint != "" {
				b.WriteString(fmt.Sprintf("    %s\n", HelpStyle.Render(e.Hint)))
			}
		}
	}

	return BoxStyle.Render(b.String())
}

// keyMap defines key bindings.
type keyMap struct {
	Quit key.Binding
}

var keys = keyMap{
	Quit: key.NewBinding(
		key.WithKeys("q", "ctrl+c"),
		key.WithHelp("q", "quit"),
	),
}

// RunInspectTUI runs the inspect TUI.
func RunInspectTUI(viewType string, data any) error {
	model := NewInspectModel(viewType, data)
	p := tea.NewProgram(model, tea.WithAltScreen())
	_, err := p.Run()
	return err
}

// RenderInspectStatic renders inspect data without full TUI (for fallback).
func RenderInspectStatic(viewType string, data any) string {
	model := NewInspectModel(viewType, data)
	model.width = 80
	model.height = 24
	return lipgloss.NewStyle().Padding(1, 2).Render(model.View())
}
