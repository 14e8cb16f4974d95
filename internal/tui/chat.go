// Package tui is a single-user local chat client. It drives the
// handler directly and stands in for an external chat surface, which
// makes the whole inbound path exercisable without any network wiring.
package tui

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/agentrelay/agentrelay/internal/handler"
)

// localUserID identifies the console user toward the session store.
const localUserID int64 = 1

var (
	userStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("12")).Bold(true)
	agentStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	infoStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("8")).Italic(true)
	errStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
)

// replyMsg carries an asynchronous agent reply into the event loop.
type replyMsg struct{ text string }

// typingMsg marks the agent as still working.
type typingMsg struct{}

// ackMsg is the immediate reply from the handler.
type ackMsg struct {
	text string
	err  error
}

// ProgramSender adapts a running bubbletea program to the transport
// Sender interface so handler replies land in the event loop.
type ProgramSender struct {
	mu sync.Mutex
	p  *tea.Program
}

// NewProgramSender creates a sender with no program attached. Attach
// must be called before the first delivery; earlier sends are dropped.
func NewProgramSender() *ProgramSender {
	return &ProgramSender{}
}

// Attach binds the running program.
func (s *ProgramSender) Attach(p *tea.Program) {
	s.mu.Lock()
	s.p = p
	s.mu.Unlock()
}

func (s *ProgramSender) program() *tea.Program {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.p
}

func (s *ProgramSender) Send(_ context.Context, _ int64, text string) error {
	if p := s.program(); p != nil {
		p.Send(replyMsg{text: text})
	}
	return nil
}

func (s *ProgramSender) Typing(_ context.Context, _ int64) error {
	if p := s.program(); p != nil {
		p.Send(typingMsg{})
	}
	return nil
}

// Model is the chat view: a scrollback of lines above a text input.
type Model struct {
	handler *handler.Handler
	input   textinput.Model
	lines   []string
	working bool
	width   int
}

// NewModel creates the chat model.
func NewModel(h *handler.Handler) *Model {
	ti := textinput.New()
	ti.Placeholder = "Message the agent (/help for commands)"
	ti.Focus()
	ti.CharLimit = 0

	return &Model{
		handler: h,
		input:   ti,
		lines:   []string{infoStyle.Render("Connected. /help lists commands, ctrl+c quits.")},
	}
}

func (m *Model) Init() tea.Cmd {
	return textinput.Blink
}

func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.input.Width = msg.Width - 4
		return m, nil

	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyCtrlC, tea.KeyEsc:
			return m, tea.Quit
		case tea.KeyEnter:
			text := strings.TrimSpace(m.input.Value())
			if text == "" {
				return m, nil
			}
			m.input.Reset()
			m.append(userStyle.Render("you: ") + text)
			return m, m.submit(text)
		}

	case ackMsg:
		if msg.err != nil {
			m.append(errStyle.Render("error: " + msg.err.Error()))
		} else if msg.text != "" {
			m.append(agentStyle.Render(msg.text))
		}
		return m, nil

	case typingMsg:
		m.working = true
		return m, nil

	case replyMsg:
		m.working = false
		m.append(agentStyle.Render(msg.text))
		return m, nil
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m *Model) View() string {
	var b strings.Builder
	for _, line := range m.lines {
		b.WriteString(line)
		b.WriteString("\n")
	}
	if m.working {
		b.WriteString(infoStyle.Render("agent is working..."))
		b.WriteString("\n")
	}
	b.WriteString("\n> ")
	b.WriteString(m.input.View())
	return b.String()
}

// submit runs the handler off the event loop; the immediate reply comes
// back as an ackMsg, asynchronous agent output via the ProgramSender.
func (m *Model) submit(text string) tea.Cmd {
	return func() tea.Msg {
		reply, err := m.handler.HandleMessage(context.Background(), localUserID, text)
		return ackMsg{text: reply, err: err}
	}
}

// append adds a line to the scrollback, keeping it bounded.
func (m *Model) append(line string) {
	m.lines = append(m.lines, line)
	const maxLines = 500
	if len(m.lines) > maxLines {
		m.lines = m.lines[len(m.lines)-maxLines:]
	}
}

// Run starts the chat client and blocks until the user quits.
func Run(h *handler.Handler, sender *ProgramSender) error {
	p := tea.NewProgram(NewModel(h))
	sender.Attach(p)
	if _, err := p.Run(); err != nil {
		return fmt.Errorf("running chat client: %w", err)
	}
	return nil
}
