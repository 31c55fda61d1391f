package main

import (
	"context"
	stderrors "errors"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#7D56F4")).
			Padding(0, 1)

	inputStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#98FB98"))

	resultStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#90EE90"))

	outputStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#87CEEB"))

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FF6B6B"))

	statusStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#3C3C3C")).
			Padding(0, 1)

	helpStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#666666"))
)

// scrollback is the number of lines kept in the console.
const scrollback = 200

type lineKind int

const (
	lineInput lineKind = iota
	lineResult
	lineOutput
	lineError
)

type line struct {
	kind lineKind
	text string
}

type consoleModel struct {
	ctx     context.Context
	sh      *shell
	input   textinput.Model
	lines   []line
	history []string
	histIdx int
	status  status
	height  int
	busy    bool
}

type evalMsg struct {
	out string
	err error
}

type outputMsg string

type tickMsg time.Time

func newConsoleModel(ctx context.Context, sh *shell) *consoleModel {
	ti := textinput.New()
	ti.Prompt = "> "
	ti.Placeholder = "JavaScript"
	ti.Width = 80
	ti.Focus()
	return &consoleModel{ctx: ctx, sh: sh, input: ti, height: 24}
}

func (m *consoleModel) Init() tea.Cmd {
	return tea.Batch(textinput.Blink, tick())
}

func tick() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg { return tickMsg(t) })
}

func (m *consoleModel) evaluate(src string) tea.Cmd {
	return func() tea.Msg {
		out, err := m.sh.evalOnPump(m.ctx, src)
		return evalMsg{out: out, err: err}
	}
}

func (m *consoleModel) push(kind lineKind, text string) {
	for _, l := range strings.Split(strings.TrimRight(text, "\n"), "\n") {
		m.lines = append(m.lines, line{kind: kind, text: l})
	}
	if len(m.lines) > scrollback {
		m.lines = m.lines[len(m.lines)-scrollback:]
	}
}

func (m *consoleModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "ctrl+d":
			return m, tea.Quit

		case "enter":
			src := strings.TrimSpace(m.input.Value())
			if src == "" || m.busy {
				return m, nil
			}
			m.push(lineInput, src)
			m.history = append(m.history, src)
			m.histIdx = len(m.history)
			m.input.SetValue("")
			m.busy = true
			return m, m.evaluate(src)

		case "up":
			if m.histIdx > 0 {
				m.histIdx--
				m.input.SetValue(m.history[m.histIdx])
				m.input.CursorEnd()
			}
			return m, nil

		case "down":
			if m.histIdx < len(m.history)-1 {
				m.histIdx++
				m.input.SetValue(m.history[m.histIdx])
				m.input.CursorEnd()
			} else {
				m.histIdx = len(m.history)
				m.input.SetValue("")
			}
			return m, nil
		}

	case tea.WindowSizeMsg:
		m.height = msg.Height
		m.input.Width = msg.Width - 4

	case evalMsg:
		m.busy = false
		if msg.err != nil {
			m.push(lineError, msg.err.Error())
		} else {
			m.push(lineResult, msg.out)
		}
		return m, nil

	case outputMsg:
		m.push(lineOutput, string(msg))
		return m, nil

	case tickMsg:
		m.status = m.sh.status()
		return m, tick()
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m *consoleModel) View() string {
	var b strings.Builder

	b.WriteString(titleStyle.Render("Lacewing"))
	b.WriteString(" ")
	b.WriteString(m.sh.mod.Library().Version())
	b.WriteString("\n\n")

	visible := m.height - 6
	if visible < 1 {
		visible = 1
	}
	lines := m.lines
	if len(lines) > visible {
		lines = lines[len(lines)-visible:]
	}
	for _, l := range lines {
		switch l.kind {
		case lineInput:
			b.WriteString(inputStyle.Render("> " + l.text))
		case lineResult:
			b.WriteString(resultStyle.Render(l.text))
		case lineOutput:
			b.WriteString(outputStyle.Render(l.text))
		case lineError:
			b.WriteString(errorStyle.Render(l.text))
		}
		b.WriteString("\n")
	}

	b.WriteString("\n")
	b.WriteString(m.input.View())
	b.WriteString("\n")
	b.WriteString(statusStyle.Render(m.status.String()))
	b.WriteString(" ")
	b.WriteString(helpStyle.Render("enter eval • ↑/↓ history • ctrl+c quit"))

	return b.String()
}

func (st status) String() string {
	if !st.guest {
		return "no guest webserver"
	}
	var parts []string
	if st.hosting {
		parts = append(parts, fmt.Sprintf("http :%d", st.port))
	}
	if st.hostingSecure {
		parts = append(parts, fmt.Sprintf("https :%d", st.securePort))
	}
	if len(parts) == 0 {
		parts = append(parts, "not hosting")
	}
	parts = append(parts, fmt.Sprintf("sent %d B", st.sent), fmt.Sprintf("received %d B", st.received))
	return strings.Join(parts, " | ")
}

// programWriter forwards shell output into the console scrollback.
type programWriter struct {
	p *tea.Program
}

func (w programWriter) Write(b []byte) (int, error) {
	w.p.Send(outputMsg(string(b)))
	return len(b), nil
}

func runConsole(ctx context.Context, sh *shell) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	p := tea.NewProgram(newConsoleModel(ctx, sh), tea.WithAltScreen(), tea.WithContext(ctx))
	prev := sh.writer()
	sh.setWriter(programWriter{p})
	defer sh.setWriter(prev)

	done := make(chan error, 1)
	go func() { done <- sh.loop(ctx) }()

	_, err := p.Run()
	cancel()
	if loopErr := <-done; err == nil {
		err = loopErr
	}
	if stderrors.Is(err, tea.ErrProgramKilled) {
		return nil
	}
	return err
}
