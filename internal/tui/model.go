// ABOUTME: Bubble Tea model hosting the conversation panel controller
// ABOUTME: Renders the transcript with a side panel that follows the view state

package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/2389/coven-workbench/internal/eventstream"
	"github.com/2389/coven-workbench/internal/viewstate"
)

const maxTranscript = 200

// Panel is the controller surface the frontend drives.
// *panels.Controller implements it.
type Panel interface {
	ConversationID() string
	ActivateConversationPanel()
	ActivateAssistantPanel()
	DismissPanel()
	CanActivateConversation() bool
	CanActivateAssistant() bool
}

// Updates produces the messages that keep the model current. *Feed implements it.
type Updates interface {
	Next() tea.Cmd
}

// Model is the frontend's tea.Model.
type Model struct {
	panel   Panel
	updates Updates
	keys    KeyMap
	help    help.Model
	styles  Styles

	state         viewstate.PanelState
	transitioning bool
	transcript    []eventstream.Event
	status        string

	width  int
	height int
}

// NewModel creates a Model. initial is shown until the first StateMsg.
func NewModel(panel Panel, updates Updates, initial viewstate.PanelState) Model {
	m := Model{
		panel:   panel,
		updates: updates,
		keys:    DefaultKeyMap,
		help:    help.New(),
		styles:  DefaultStyles(),
		state:   initial,
		width:   80,
		height:  24,
	}
	m.refreshBindings()
	return m
}

// Init implements tea.Model.
func (m Model) Init() tea.Cmd {
	if m.updates == nil {
		return nil
	}
	return m.updates.Next()
}

// Update implements tea.Model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		m.help.Width = msg.Width
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)

	case StateMsg:
		m.state = msg.State
		m.transitioning = msg.Transitioning
		m.refreshBindings()
		return m, m.next()

	case EventMsg:
		m.transcript = append(m.transcript, msg.Event)
		if over := len(m.transcript) - maxTranscript; over > 0 {
			m.transcript = m.transcript[over:]
		}
		return m, m.next()

	case StatusMsg:
		m.status = string(msg)
		return m, m.next()
	}
	return m, nil
}

func (m Model) next() tea.Cmd {
	if m.updates == nil {
		return nil
	}
	return m.updates.Next()
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Quit):
		return m, tea.Quit
	case key.Matches(msg, m.keys.Help):
		m.help.ShowAll = !m.help.ShowAll
	case key.Matches(msg, m.keys.Conversation):
		m.panel.ActivateConversationPanel()
	case key.Matches(msg, m.keys.Assistant):
		m.panel.ActivateAssistantPanel()
	case key.Matches(msg, m.keys.Dismiss):
		m.panel.DismissPanel()
	}
	return m, nil
}

// refreshBindings disables the panel keys the controller advises against.
func (m *Model) refreshBindings() {
	m.keys.Conversation.SetEnabled(m.panel.CanActivateConversation())
	m.keys.Assistant.SetEnabled(m.panel.CanActivateAssistant())
	m.keys.Dismiss.SetEnabled(m.state.Open)
}

// View implements tea.Model.
func (m Model) View() string {
	header := m.renderHeader()
	footer := m.renderFooter()
	bodyHeight := max(m.height-lipgloss.Height(header)-lipgloss.Height(footer), 3)

	mainWidth := m.width
	var side string
	if m.state.Open {
		sideWidth := max(m.width*2/5, 24)
		mainWidth = max(m.width-sideWidth, 20)
		side = m.renderSidePanel(sideWidth, bodyHeight)
	}
	main := m.renderTranscript(mainWidth, bodyHeight)

	body := lipgloss.JoinHorizontal(lipgloss.Top, main, side)
	return lipgloss.JoinVertical(lipgloss.Left, header, body, footer)
}

func (m Model) renderHeader() string {
	title := m.styles.Title.Render("coven workbench")
	conv := m.styles.Muted.Render("conversation " + m.panel.ConversationID())
	line := title + "  " + conv
	if m.transitioning {
		line += "  " + m.styles.Muted.Render("…")
	}
	return line
}

func (m Model) renderTranscript(width, height int) string {
	style := m.styles.Main.Width(width - m.styles.Main.GetHorizontalFrameSize()).
		Height(height - m.styles.Main.GetVerticalFrameSize())

	if len(m.transcript) == 0 {
		return style.Render(m.styles.Muted.Render("waiting for events"))
	}

	rows := height - m.styles.Main.GetVerticalFrameSize()
	start := max(len(m.transcript)-rows, 0)
	lines := make([]string, 0, len(m.transcript)-start)
	for _, ev := range m.transcript[start:] {
		name := ev.Name
		if name == "" {
			name = "message"
		}
		lines = append(lines, m.styles.EventName.Render(name)+" "+firstLine(ev.Data))
	}
	return style.Render(strings.Join(lines, "\n"))
}

func (m Model) renderSidePanel(width, height int) string {
	style := m.styles.Side.Width(width - m.styles.Side.GetHorizontalFrameSize()).
		Height(height - m.styles.Side.GetVerticalFrameSize())

	var b strings.Builder
	switch m.state.Mode {
	case viewstate.ModeAssistant:
		b.WriteString(m.styles.Title.Render("Assistant"))
		b.WriteString("\n\n")
		if m.state.SelectedAssistantID == "" {
			b.WriteString(m.styles.Muted.Render("no assistant selected"))
		} else {
			fmt.Fprintf(&b, "assistant %s\n", m.state.SelectedAssistantID)
			if m.state.SelectedAssistantStateID != "" {
				fmt.Fprintf(&b, "state     %s", m.state.SelectedAssistantStateID)
			}
		}
	default:
		b.WriteString(m.styles.Title.Render("Conversation"))
		b.WriteString("\n\n")
		fmt.Fprintf(&b, "%d events", len(m.transcript))
	}
	return style.Render(b.String())
}

func (m Model) renderFooter() string {
	footer := m.help.View(m.keys)
	if m.status != "" {
		footer = m.styles.Status.Render(m.status) + "\n" + footer
	}
	return footer
}

func firstLine(s string) string {
	line, _, cut := strings.Cut(s, "\n")
	if cut {
		return line + " …"
	}
	return line
}
