package tui

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"repochat/internal/domain"
)

// ChatPort is the TUI-facing subset of a repository chat session.
type ChatPort interface {
	Name() string
	Summary() string
	UnitCount() int
	Ask(ctx context.Context, query string) (domain.Message, error)
	Messages() []domain.Message
	Clear()
}

// OpenFunc prepares the session; it runs in the background while a spinner is shown.
type OpenFunc func(ctx context.Context) (ChatPort, error)

type openedMsg struct {
	port ChatPort
	err  error
}

type answerMsg struct {
	msg domain.Message
	err error
}

// Model is the Bubble Tea model for the chat application.
type Model struct {
	ctx        context.Context
	open       OpenFunc
	port       ChatPort
	input      textinput.Model
	viewport   viewport.Model
	spinner    spinner.Model
	busy       bool
	status     string
	showSource bool
	ready      bool
	err        error
}

// New creates a new TUI model instance.
func New(ctx context.Context, open OpenFunc) Model {
	ti := textinput.New()
	ti.Prompt = "> "
	ti.Placeholder = "Ask about the code (e.g. 'Show me the implementation of the RAG class')"
	ti.Focus()
	ti.CharLimit = 0
	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("12"))
	return Model{
		ctx:        ctx,
		open:       open,
		input:      ti,
		viewport:   viewport.New(0, 0),
		spinner:    sp,
		busy:       true,
		status:     "Processing repository files...",
		showSource: true,
	}
}

// Err returns the error that ended the session, if any.
func (m Model) Err() error { return m.err }

// Init starts loading the repository.
func (m Model) Init() tea.Cmd {
	return tea.Batch(textinput.Blink, m.spinner.Tick, m.openCmd())
}

func (m Model) openCmd() tea.Cmd {
	ctx, open := m.ctx, m.open
	return func() tea.Msg {
		port, err := open(ctx)
		return openedMsg{port: port, err: err}
	}
}

func (m Model) askCmd(q string) tea.Cmd {
	ctx, port := m.ctx, m.port
	return func() tea.Msg {
		msg, err := port.Ask(ctx, q)
		return answerMsg{msg: msg, err: err}
	}
}

// Update handles key and window events and updates the view state.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.ready = true
		// account for frames around conversation and query boxes
		_, ch := chatBoxStyle.GetFrameSize()
		_, qh := queryBoxStyle.GetFrameSize()
		totalHeaderLines := 2                                    // header + summary
		totalFooterLines := 1                                    // status
		reserved := totalHeaderLines + totalFooterLines + qh + 1 // 1 spacer
		vh := msg.Height - reserved
		if vh < 3 {
			vh = 3
		}
		m.viewport.Width = max(20, msg.Width-2)
		m.viewport.Height = max(3, vh-ch)
		m.refresh()
		return m, nil
	case spinner.TickMsg:
		if !m.busy {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	case openedMsg:
		m.busy = false
		if msg.err != nil {
			m.err = msg.err
			return m, tea.Quit
		}
		m.port = msg.port
		m.status = fmt.Sprintf("Repository %s loaded (%d units). Enter to ask, ctrl+l to clear, ctrl+o to toggle sources.", m.port.Name(), m.port.UnitCount())
		m.refresh()
		return m, nil
	case answerMsg:
		m.busy = false
		if msg.err != nil {
			m.status = "Error: " + msg.err.Error()
		} else if msg.msg.FilePath != "" {
			m.status = "Source: " + msg.msg.FilePath
		} else {
			m.status = "No matching source found."
		}
		m.refresh()
		m.viewport.GotoBottom()
		return m, nil
	case tea.KeyMsg:
		// Global quits
		if msg.Type == tea.KeyCtrlC || msg.Type == tea.KeyCtrlD {
			return m, tea.Quit
		}
		switch msg.String() {
		case "enter":
			q := strings.TrimSpace(m.input.Value())
			if q == "" || m.busy || m.port == nil {
				return m, nil
			}
			m.input.Reset()
			m.busy = true
			m.status = "Analyzing code..."
			m.refresh()
			return m, tea.Batch(m.askCmd(q), m.spinner.Tick)
		case "ctrl+l":
			if m.port != nil && !m.busy {
				m.port.Clear()
				m.status = "Chat cleared."
				m.refresh()
			}
			return m, nil
		case "ctrl+o":
			m.showSource = !m.showSource
			m.refresh()
			return m, nil
		case "pgup", "pgdown":
			var cmd tea.Cmd
			m.viewport, cmd = m.viewport.Update(msg)
			return m, cmd
		}
	}
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

// View renders the TUI layout and the conversation.
func (m Model) View() string {
	if !m.ready {
		return "Loading..."
	}
	title := "Repository Code Assistant"
	summary := ""
	if m.port != nil {
		title += " · " + m.port.Name()
		summary = m.port.Summary()
	}
	header := lipgloss.NewStyle().Bold(true).Render(title)
	summaryLine := lipgloss.NewStyle().Foreground(lipgloss.Color("8")).Render(summary)
	chat := chatBoxStyle.Render(m.viewport.View())
	input := queryBoxStyle.Render(m.input.View())
	statusText := m.status
	if m.busy {
		statusText = m.spinner.View() + " " + statusText
	}
	status := lipgloss.NewStyle().Foreground(lipgloss.Color("10")).Render(statusText)
	return header + "\n" + summaryLine + "\n" + chat + "\n" + input + "\n" + status
}

func (m *Model) refresh() {
	m.viewport.SetContent(m.renderConversation())
}

func (m Model) renderConversation() string {
	if m.port == nil {
		return "Loading repository..."
	}
	msgs := m.port.Messages()
	if len(msgs) == 0 {
		return "No messages yet."
	}
	var b strings.Builder
	var question string
	for _, msg := range msgs {
		switch msg.Role {
		case "user":
			question = msg.Content
			b.WriteString(userStyle.Render("You: "))
			b.WriteString(msg.Content)
		default:
			b.WriteString(assistantStyle.Render("Assistant: "))
			b.WriteString(msg.Content)
			if msg.Context != "" {
				b.WriteString("\n")
				b.WriteString(sourceLabelStyle.Render(fmt.Sprintf("Source from %s (%s)", msg.FilePath, msg.Language)))
				if m.showSource {
					b.WriteString("\n")
					b.WriteString(sourceBoxStyle.Render(highlightBestLine(msg.Context, question)))
				}
			}
		}
		b.WriteString("\n\n")
	}
	return strings.TrimRight(b.String(), "\n")
}

var (
	chatBoxStyle     = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	queryBoxStyle    = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	sourceBoxStyle   = lipgloss.NewStyle().Border(lipgloss.NormalBorder()).Padding(0, 1)
	userStyle        = lipgloss.NewStyle().Foreground(lipgloss.Color("12")).Bold(true)
	assistantStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("13")).Bold(true)
	sourceLabelStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("8")).Italic(true)
	highlightStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("11")).Bold(true)
	identRe          = regexp.MustCompile(`[\p{L}_][\p{L}\p{N}_]*`)
)

// highlightBestLine emphasises the source line sharing the most tokens
// with the question.
func highlightBestLine(text, query string) string {
	if strings.TrimSpace(text) == "" {
		return text
	}
	lines := strings.Split(text, "\n")
	qTokens := toTokenSet(query)
	if len(qTokens) == 0 {
		return text
	}
	bestIdx := -1
	bestScore := 0
	for i, l := range lines {
		if score := tokenOverlapScore(qTokens, l); score > bestScore {
			bestScore = score
			bestIdx = i
		}
	}
	if bestIdx < 0 {
		return text
	}
	lines[bestIdx] = highlightStyle.Render(lines[bestIdx])
	return strings.Join(lines, "\n")
}

func toTokenSet(s string) map[string]struct{} {
	tokens := identRe.FindAllString(strings.ToLower(s), -1)
	m := make(map[string]struct{}, len(tokens))
	for _, t := range tokens {
		m[t] = struct{}{}
	}
	return m
}

func tokenOverlapScore(queryTokens map[string]struct{}, line string) int {
	score := 0
	tokens := identRe.FindAllString(strings.ToLower(line), -1)
	seen := make(map[string]struct{}, len(tokens))
	for _, t := range tokens {
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		if _, ok := queryTokens[t]; ok {
			score++
		}
	}
	return score
}
