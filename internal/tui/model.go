// Package tui is the terminal chat front end for the twin.
package tui

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/memvra/dtwin/internal/adapter"
	"github.com/memvra/dtwin/internal/twin"
)

// TurnPort is the TUI-facing subset of the orchestrator.
type TurnPort interface {
	HandleTurn(ctx context.Context, state twin.SessionState, input string) (twin.SessionState, twin.TurnResult)
}

type turnDoneMsg struct {
	state  twin.SessionState
	result twin.TurnResult
}

// Model is the Bubble Tea model for the chat screen.
type Model struct {
	ctx      context.Context
	turns    TurnPort
	name     string
	state    twin.SessionState
	input    textinput.Model
	viewport viewport.Model
	spinner  spinner.Model
	busy     bool
	status   string
	ready    bool
}

// New creates a chat model. name labels the twin's replies.
func New(ctx context.Context, turns TurnPort, name string, state twin.SessionState) Model {
	ti := textinput.New()
	ti.Prompt = "> "
	ti.Placeholder = "Ask the twin (/reset clears, Ctrl-C quits)"
	ti.Focus()
	ti.CharLimit = 0

	sp := spinner.New()
	sp.Spinner = spinner.Dot

	if name == "" {
		name = "DT"
	}
	return Model{
		ctx:      ctx,
		turns:    turns,
		name:     name,
		state:    state,
		input:    ti,
		viewport: viewport.New(0, 0),
		spinner:  sp,
		status:   "Ready.",
	}
}

// State returns the conversation as it stands.
func (m Model) State() twin.SessionState { return m.state }

// Init initializes the model (text input cursor blink).
func (m Model) Init() tea.Cmd { return textinput.Blink }

// Update handles key, window and turn events.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.ready = true
		_, bh := transcriptStyle.GetFrameSize()
		_, ih := inputStyle.GetFrameSize()
		reserved := 1 + 1 + ih + 1 // header, status, input box, spacer
		m.viewport.Width = max(20, msg.Width-2)
		m.viewport.Height = max(3, msg.Height-reserved-bh)
		m.refresh()
		return m, nil

	case turnDoneMsg:
		m.busy = false
		m.state = msg.state
		m.status = turnStatus(msg.result)
		m.refresh()
		return m, nil

	case spinner.TickMsg:
		if !m.busy {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case tea.KeyMsg:
		if msg.Type == tea.KeyCtrlC || msg.Type == tea.KeyCtrlD {
			return m, tea.Quit
		}
		if m.busy {
			// One turn at a time.
			return m, nil
		}
		if msg.Type == tea.KeyEnter {
			return m.submit()
		}
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m Model) submit() (tea.Model, tea.Cmd) {
	text := strings.TrimSpace(m.input.Value())
	if text == "" {
		return m, nil
	}
	m.input.Reset()

	switch text {
	case "/quit", "/exit":
		return m, tea.Quit
	case "/reset":
		m.state = m.state.Reset()
		m.status = "Conversation cleared."
		m.refresh()
		return m, nil
	}

	m.busy = true
	m.status = "Thinking..."
	// Show the pending message before the reply arrives.
	pending := append(append([]adapter.Message(nil), m.state.Messages...), adapter.Message{Role: adapter.RoleUser, Content: text})
	m.viewport.SetContent(m.render(pending))
	m.viewport.GotoBottom()

	ctx, turns, st := m.ctx, m.turns, m.state
	run := func() tea.Msg {
		next, res := turns.HandleTurn(ctx, st, text)
		return turnDoneMsg{state: next, result: res}
	}
	return m, tea.Batch(run, m.spinner.Tick)
}

// View renders the header, transcript, input box and status line.
func (m Model) View() string {
	if !m.ready {
		return "Loading..."
	}
	header := headerStyle.Render(m.name + " · Digital Twin")
	if m.state.KrytenMode {
		header += " " + krytenStyle.Render("[kryten]")
	}
	status := statusStyle.Render(m.status)
	if m.busy {
		status = m.spinner.View() + " " + status
	}
	return header + "\n" +
		transcriptStyle.Render(m.viewport.View()) + "\n" +
		inputStyle.Render(m.input.View()) + "\n" +
		status
}

func (m *Model) refresh() {
	m.viewport.SetContent(m.render(m.state.Messages))
	m.viewport.GotoBottom()
}

func (m Model) render(msgs []adapter.Message) string {
	if len(msgs) == 0 {
		return mutedStyle.Render("No messages yet.")
	}
	width := max(10, m.viewport.Width-2)
	var b strings.Builder
	for i, msg := range msgs {
		if i > 0 {
			b.WriteString("\n\n")
		}
		switch msg.Role {
		case adapter.RoleUser:
			b.WriteString(userStyle.Render("You"))
		default:
			b.WriteString(twinStyle.Render(m.name))
		}
		b.WriteString("\n")
		b.WriteString(lipgloss.NewStyle().Width(width).Render(msg.Content))
	}
	return b.String()
}

func turnStatus(res twin.TurnResult) string {
	if res.Failed {
		return "Chat failed; nothing was written to memory."
	}
	parts := []string{"Model: " + res.Model}
	switch res.Command {
	case twin.CommandEnableKryten:
		parts = append(parts, "Kryten mode enabled")
	case twin.CommandDisableKryten:
		parts = append(parts, "Kryten mode disabled")
	}
	if res.MemoryWritten {
		parts = append(parts, "saved to memory")
	}
	if n := len(res.Warnings); n > 0 {
		parts = append(parts, fmt.Sprintf("%d warning(s): %v", n, res.Warnings[0]))
	}
	return strings.Join(parts, " · ")
}

var (
	headerStyle     = lipgloss.NewStyle().Bold(true)
	krytenStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("13"))
	statusStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	mutedStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	userStyle       = lipgloss.NewStyle().Foreground(lipgloss.Color("12")).Bold(true)
	twinStyle       = lipgloss.NewStyle().Foreground(lipgloss.Color("11")).Bold(true)
	transcriptStyle = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	inputStyle      = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
)
