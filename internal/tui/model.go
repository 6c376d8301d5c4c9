package tui

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"paper-rag/internal/helper"
	"paper-rag/internal/models"
	"paper-rag/internal/rag"
	"paper-rag/internal/session"
)

// ChatPort is the TUI-facing subset of the RAG service bound to one session.
type ChatPort interface {
	Ask(ctx context.Context, question string) (models.Turn, error)
	ClearHistory()
	Reset(ctx context.Context) error
}

type sessionPort struct {
	service *rag.Service
	session *session.Session
}

// NewSessionPort binds service to sess
func NewSessionPort(service *rag.Service, sess *session.Session) ChatPort {
	return &sessionPort{service: service, session: sess}
}

func (p *sessionPort) Ask(ctx context.Context, question string) (models.Turn, error) {
	return p.service.Ask(ctx, p.session, question)
}

func (p *sessionPort) ClearHistory() {
	p.service.ClearHistory(p.session)
}

func (p *sessionPort) Reset(ctx context.Context) error {
	return p.service.Reset(ctx, p.session)
}

const sourcePreview = 160

type answerMsg struct {
	turn models.Turn
	err  error
}

type resetMsg struct {
	err error
}

// Model is the Bubble Tea model for the chat screen.
type Model struct {
	ctx      context.Context
	port     ChatPort
	input    textinput.Model
	viewport viewport.Model
	turns    []models.Turn
	summary  string
	status   string
	busy     bool
	ready    bool
	// pending is the question being answered; it is put back on failure
	pending string
}

// New creates the chat model. summary is shown under the title.
func New(ctx context.Context, port ChatPort, summary string) Model {
	ti := textinput.New()
	ti.Prompt = "> "
	ti.Placeholder = "Ask about your papers, /clear or /reset"
	ti.Focus()
	ti.CharLimit = 0
	vp := viewport.New(0, 0)
	return Model{ctx: ctx, port: port, input: ti, viewport: vp, summary: summary, status: "Ready. Ask a question."}
}

func (m Model) Init() tea.Cmd { return textinput.Blink }

func (m Model) askCmd(question string) tea.Cmd {
	return func() tea.Msg {
		turn, err := m.port.Ask(m.ctx, question)
		return answerMsg{turn: turn, err: err}
	}
}

func (m Model) resetCmd() tea.Cmd {
	return func() tea.Msg {
		return resetMsg{err: m.port.Reset(m.ctx)}
	}
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.ready = true
		_, rh := transcriptBoxStyle.GetFrameSize()
		_, qh := inputBoxStyle.GetFrameSize()
		reserved := 2 + 1 + qh + 1 // header, summary, status, spacer
		vh := msg.Height - reserved
		if vh < 3 {
			vh = 3
		}
		m.viewport.Width = max(20, msg.Width)
		m.viewport.Height = max(3, vh-rh)
		m.refresh()
		return m, nil
	case answerMsg:
		m.busy = false
		if msg.err != nil {
			m.input.SetValue(m.pending)
			m.input.CursorEnd()
			m.status = errorStatus(msg.err)
			return m, nil
		}
		m.pending = ""
		m.turns = append(m.turns, msg.turn)
		m.status = fmt.Sprintf("%d answered", len(m.turns))
		m.refresh()
		return m, nil
	case resetMsg:
		m.busy = false
		if msg.err != nil {
			m.status = errorStatus(msg.err)
			return m, nil
		}
		m.turns = nil
		m.status = "Session reset. Upload documents to start again."
		m.refresh()
		return m, nil
	case tea.KeyMsg:
		if msg.Type == tea.KeyCtrlC || msg.Type == tea.KeyCtrlD {
			return m, tea.Quit
		}
		if msg.String() == "enter" {
			return m.submit()
		}
	}
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	if _, ok := msg.(tea.KeyMsg); !ok {
		var vcmd tea.Cmd
		m.viewport, vcmd = m.viewport.Update(msg)
		cmd = tea.Batch(cmd, vcmd)
	}
	return m, cmd
}

func (m Model) submit() (tea.Model, tea.Cmd) {
	if m.busy {
		m.status = "Still working, please wait."
		return m, nil
	}
	q := strings.TrimSpace(m.input.Value())
	if q == "" {
		return m, nil
	}
	m.input.SetValue("")

	switch q {
	case "/quit":
		return m, tea.Quit
	case "/clear":
		m.port.ClearHistory()
		m.turns = nil
		m.status = "History cleared."
		m.refresh()
		return m, nil
	case "/reset":
		m.busy = true
		m.status = "Resetting..."
		return m, m.resetCmd()
	}

	m.busy = true
	m.pending = q
	m.status = fmt.Sprintf("Thinking about %q...", helper.Truncate(q, 60))
	return m, m.askCmd(q)
}

func errorStatus(err error) string {
	switch {
	case errors.Is(err, rag.ErrServiceUnavailable):
		return "Error: " + err.Error() + " (press Enter to retry)"
	case errors.Is(err, rag.ErrNoIndex):
		return "No documents loaded. Restart with -file to ingest papers."
	default:
		return "Error: " + err.Error()
	}
}

func (m *Model) refresh() {
	m.viewport.SetContent(m.renderTranscript())
	m.viewport.GotoBottom()
}

func (m Model) View() string {
	if !m.ready {
		return "Loading..."
	}
	header := lipgloss.NewStyle().Bold(true).Render("Paper RAG")
	summary := lipgloss.NewStyle().Foreground(lipgloss.Color("8")).Render(m.summary)
	transcript := transcriptBoxStyle.Render(m.viewport.View())
	input := inputBoxStyle.Render(m.input.View())
	statusStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	if m.busy {
		statusStyle = statusStyle.Foreground(lipgloss.Color("11"))
	}
	return header + "\n" + summary + "\n" + transcript + "\n" + input + "\n" + statusStyle.Render(m.status)
}

func (m Model) renderTranscript() string {
	if len(m.turns) == 0 {
		return "No questions yet."
	}
	width := max(20, m.viewport.Width-4)
	var b strings.Builder
	for i, t := range m.turns {
		if i > 0 {
			b.WriteString("\n")
		}
		b.WriteString(questionStyle.Render("You: "+t.Question) + "\n")
		b.WriteString(lipgloss.NewStyle().Width(width).Render(t.Answer) + "\n")
		for _, s := range t.Sources {
			line := fmt.Sprintf("  [%s #%d %.2f] %s", s.Chunk.Source, s.Chunk.ChunkID, s.Score,
				helper.Truncate(strings.Join(strings.Fields(s.Chunk.Content), " "), sourcePreview))
			b.WriteString(sourceStyle.Width(width).Render(line) + "\n")
		}
	}
	return b.String()
}

var (
	transcriptBoxStyle = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	inputBoxStyle      = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	questionStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("12")).Bold(true)
	sourceStyle        = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
)
