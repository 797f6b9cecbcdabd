// Package console is the interactive question loop.
package console

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/fyrsmithlabs/ragd/internal/answer"
)

const historySize = 5

// Asker answers questions.
type Asker interface {
	Ask(ctx context.Context, q answer.Query) (*answer.Answer, error)
}

// exchange is one question and its outcome.
type exchange struct {
	question string
	answer   *answer.Answer
	err      error
	took     time.Duration
}

// Model is the bubbletea console model.
type Model struct {
	ctx        context.Context
	asker      Asker
	collection string

	input   textinput.Model
	spinner spinner.Model

	history []exchange
	asking  bool
	status  string

	topK   int
	filter string
	debug  bool

	quitting bool
}

type answerMsg exchange

var (
	headerStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("0")).
			Background(lipgloss.Color("51")).
			Bold(true).
			Padding(0, 1)

	questionStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("51")).
			Bold(true).
			MarginTop(1)

	answerStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("231"))

	dimStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("245"))

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("196")).
			Bold(true)

	footerStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("245")).
			MarginTop(1)

	footerKeyStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("51")).
			Bold(true)
)

// NewModel creates a console model. topK <= 0 uses the retrieval default.
func NewModel(ctx context.Context, asker Asker, collection string, topK int) Model {
	in := textinput.New()
	in.Placeholder = "Ask a question, or :help"
	in.CharLimit = 1000
	in.Width = 80
	in.Focus()

	sp := spinner.New(spinner.WithSpinner(spinner.Dot))

	return Model{
		ctx:        ctx,
		asker:      asker,
		collection: collection,
		input:      in,
		spinner:    sp,
		topK:       topK,
	}
}

// Init implements tea.Model.
func (m Model) Init() tea.Cmd {
	return textinput.Blink
}

func ask(ctx context.Context, asker Asker, q answer.Query) tea.Cmd {
	return func() tea.Msg {
		started := time.Now()
		a, err := asker.Ask(ctx, q)
		return answerMsg{question: q.Question, answer: a, err: err, took: time.Since(started)}
	}
}

// Update implements tea.Model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyCtrlC, tea.KeyEsc:
			m.quitting = true
			return m, tea.Quit
		case tea.KeyEnter:
			if m.asking {
				return m, nil
			}
			line := strings.TrimSpace(m.input.Value())
			m.input.Reset()
			if line == "" {
				return m, nil
			}
			if strings.HasPrefix(line, ":") {
				return m.command(line)
			}
			m.asking = true
			m.status = ""
			q := answer.Query{Question: line, TopK: m.topK, FilterText: m.filter, Debug: m.debug}
			return m, tea.Batch(m.spinner.Tick, ask(m.ctx, m.asker, q))
		}

	case answerMsg:
		m.asking = false
		m.history = append(m.history, exchange(msg))
		if len(m.history) > historySize {
			m.history = m.history[1:]
		}
		return m, nil

	case spinner.TickMsg:
		if !m.asking {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case tea.WindowSizeMsg:
		m.input.Width = max(msg.Width-4, 20)
		return m, nil
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

// command handles ":" lines.
func (m Model) command(line string) (tea.Model, tea.Cmd) {
	name, arg, _ := strings.Cut(strings.TrimPrefix(line, ":"), " ")
	arg = strings.TrimSpace(arg)
	switch name {
	case "q", "quit", "exit":
		m.quitting = true
		return m, tea.Quit
	case "filter":
		m.filter = arg
		if arg == "" {
			m.status = "filter cleared"
		} else {
			m.status = fmt.Sprintf("filter set to %q", arg)
		}
	case "k":
		n, err := strconv.Atoi(arg)
		if err != nil || n <= 0 {
			m.status = "usage: :k N (N > 0)"
			break
		}
		m.topK = n
		m.status = fmt.Sprintf("top_k set to %d", n)
	case "debug":
		m.debug = !m.debug
		m.status = fmt.Sprintf("debug %t", m.debug)
	case "clear":
		m.history = nil
		m.status = ""
	case "help":
		m.status = ":filter PHRASE, :k N, :debug, :clear, :quit"
	default:
		m.status = fmt.Sprintf("unknown command %q, try :help", name)
	}
	return m, nil
}

// View implements tea.Model.
func (m Model) View() string {
	if m.quitting {
		return ""
	}

	var b strings.Builder
	b.WriteString(headerStyle.Render("ragd console"))
	b.WriteString(" ")
	b.WriteString(dimStyle.Render(m.settings()))
	b.WriteString("\n")

	for _, ex := range m.history {
		b.WriteString(questionStyle.Render("> " + ex.question))
		b.WriteString("\n")
		if ex.err != nil {
			b.WriteString(errorStyle.Render("error: " + ex.err.Error()))
			b.WriteString("\n")
			continue
		}
		b.WriteString(answerStyle.Render(FormatAnswer(ex.answer)))
		b.WriteString(dimStyle.Render(FormatLatency(ex.took)))
		b.WriteString("\n")
	}

	b.WriteString("\n")
	if m.asking {
		b.WriteString(m.spinner.View())
		b.WriteString(" thinking...\n")
	} else {
		b.WriteString(m.input.View())
		b.WriteString("\n")
	}
	if m.status != "" {
		b.WriteString(dimStyle.Render(m.status))
		b.WriteString("\n")
	}

	b.WriteString(footerStyle.Render(
		footerKeyStyle.Render("enter") + " ask  " +
			footerKeyStyle.Render(":help") + " commands  " +
			footerKeyStyle.Render("esc") + " quit"))
	return b.String()
}

func (m Model) settings() string {
	s := fmt.Sprintf("collection=%s", m.collection)
	if m.topK > 0 {
		s += fmt.Sprintf(" top_k=%d", m.topK)
	}
	if m.filter != "" {
		s += fmt.Sprintf(" filter=%q", m.filter)
	}
	if m.debug {
		s += " debug"
	}
	return s
}

// Run starts the console and blocks until the user quits or ctx ends.
func Run(ctx context.Context, asker Asker, collection string, topK int) error {
	p := tea.NewProgram(NewModel(ctx, asker, collection, topK), tea.WithContext(ctx))
	_, err := p.Run()
	return err
}
