package frontend

import (
	"fmt"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/spboyer/servicecounter/internal/models"
)

type replyMsg string

type busyMsg bool

type statusMsg string

// TUI is a full-screen chat front end built on bubbletea. Run must be called
// for the program to draw and collect input.
type TUI struct {
	program *tea.Program
	turns   chan models.CustomerTurn
	closed  atomic.Bool
	started chan struct{}
	once    sync.Once
}

// NewTUI creates a chat window titled after the workplace.
func NewTUI(title string, opts ...tea.ProgramOption) *TUI {
	t := &TUI{
		turns:   make(chan models.CustomerTurn, turnBuffer),
		started: make(chan struct{}),
	}
	m := newChatModel(title, t.enqueue)
	opts = append([]tea.ProgramOption{tea.WithAltScreen()}, opts...)
	t.program = tea.NewProgram(m, opts...)
	return t
}

// Run draws the window until the customer quits or Close is called.
func (t *TUI) Run() error {
	t.once.Do(func() { close(t.started) })
	defer t.closed.Store(true)
	if _, err := t.program.Run(); err != nil {
		return fmt.Errorf("running chat window: %w", err)
	}
	return nil
}

func (t *TUI) enqueue(turn models.CustomerTurn) bool {
	select {
	case t.turns <- turn:
		return true
	default:
		return false
	}
}

// Poll implements [FrontEnd].
func (t *TUI) Poll() (models.CustomerTurn, bool) {
	select {
	case turn := <-t.turns:
		return turn, true
	default:
		return models.CustomerTurn{}, false
	}
}

// Display implements [FrontEnd].
func (t *TUI) Display(reply string) error {
	if t.closed.Load() {
		return ErrClosed
	}
	t.send(replyMsg(reply))
	return nil
}

// SetBusy implements [FrontEnd].
func (t *TUI) SetBusy(busy bool) {
	t.send(busyMsg(busy))
}

// SetStatus shows s in the footer, typically the session state.
func (t *TUI) SetStatus(s string) {
	t.send(statusMsg(s))
}

// Closed implements [FrontEnd].
func (t *TUI) Closed() bool {
	return t.closed.Load() && len(t.turns) == 0
}

// Close implements [FrontEnd].
func (t *TUI) Close() error {
	t.program.Quit()
	return nil
}

// send forwards msg to the program unless it never started or already quit.
func (t *TUI) send(msg tea.Msg) {
	if t.closed.Load() {
		return
	}
	select {
	case <-t.started:
		t.program.Send(msg)
	default:
	}
}

type chatTheme struct {
	header   lipgloss.Style
	customer lipgloss.Style
	counter  lipgloss.Style
	notice   lipgloss.Style
	status   lipgloss.Style
	footer   lipgloss.Style
}

func newChatTheme() chatTheme {
	blue := lipgloss.Color("#01cdfe")
	mint := lipgloss.Color("#05ffa1")
	muted := lipgloss.Color("#9ca3d8")
	return chatTheme{
		header: lipgloss.NewStyle().
			Bold(true).
			Padding(0, 1).
			BorderStyle(lipgloss.RoundedBorder()).
			BorderBottom(true).
			BorderForeground(blue),
		customer: lipgloss.NewStyle().Foreground(blue).Bold(true),
		counter:  lipgloss.NewStyle().Foreground(mint).Bold(true),
		notice:   lipgloss.NewStyle().Foreground(muted).Italic(true),
		status:   lipgloss.NewStyle().Foreground(blue),
		footer:   lipgloss.NewStyle().Foreground(muted),
	}
}

type chatLine struct {
	speaker string
	text    string
}

type chatModel struct {
	title    string
	submit   func(models.CustomerTurn) bool
	composer composer

	input    textinput.Model
	timeline viewport.Model
	spinner  spinner.Model
	theme    chatTheme

	lines  []chatLine
	busy   bool
	status string
	width  int
	height int
}

func newChatModel(title string, submit func(models.CustomerTurn) bool) chatModel {
	input := textinput.New()
	input.Prompt = "❯ "
	input.CharLimit = 4000
	input.Placeholder = "Talk to the counter. /image <path> attaches a document, /quit leaves."
	input.Focus()

	sp := spinner.New()
	sp.Spinner = spinner.Points
	sp.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("#05ffa1"))

	return chatModel{
		title:    title,
		submit:   submit,
		input:    input,
		timeline: viewport.New(0, 0),
		spinner:  sp,
		theme:    newChatTheme(),
	}
}

func (m chatModel) Init() tea.Cmd {
	return tea.Batch(textinput.Blink, m.spinner.Tick)
}

func (m chatModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.resize()
	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyCtrlC, tea.KeyEsc:
			return m, tea.Quit
		case tea.KeyEnter:
			if quit := m.handleLine(m.input.Value()); quit {
				return m, tea.Quit
			}
			m.input.SetValue("")
		default:
			var cmd tea.Cmd
			m.input, cmd = m.input.Update(msg)
			cmds = append(cmds, cmd)
		}
	case replyMsg:
		m.append("counter", string(msg))
	case busyMsg:
		m.busy = bool(msg)
	case statusMsg:
		m.status = string(msg)
	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		cmds = append(cmds, cmd)
	case tea.MouseMsg:
		var cmd tea.Cmd
		m.timeline, cmd = m.timeline.Update(msg)
		cmds = append(cmds, cmd)
	}

	return m, tea.Batch(cmds...)
}

// handleLine submits one line of input and reports whether the customer asked to leave.
func (m *chatModel) handleLine(line string) bool {
	if m.busy && strings.TrimSpace(line) != "" && !strings.HasPrefix(strings.TrimSpace(line), "/") {
		m.append("", "the counter is still working on your last message")
		return false
	}

	result := m.composer.submit(line)
	if result.quit {
		return true
	}
	if result.feedback != "" {
		m.append("", result.feedback)
	}
	if !result.ready {
		return false
	}

	text := result.turn.Text
	if result.turn.ImagePath != "" {
		text += " [attached]"
	}
	if !m.submit(result.turn) {
		m.append("", "too many messages queued; try again in a moment")
		return false
	}
	m.append("you", text)
	return false
}

func (m *chatModel) append(speaker, text string) {
	m.lines = append(m.lines, chatLine{speaker: speaker, text: text})
	m.renderTimeline()
}

func (m *chatModel) resize() {
	contentWidth := max(20, m.width-2)
	m.input.Width = max(10, contentWidth-4)
	m.timeline.Width = contentWidth
	m.timeline.Height = max(3, m.height-6)
	m.renderTimeline()
}

func (m *chatModel) renderTimeline() {
	wrap := lipgloss.NewStyle().Width(max(20, m.timeline.Width))

	var b strings.Builder
	for _, line := range m.lines {
		switch line.speaker {
		case "you":
			b.WriteString(m.theme.customer.Render("you: "))
		case "counter":
			b.WriteString(m.theme.counter.Render("counter: "))
		default:
			b.WriteString(m.theme.notice.Render(wrap.Render(line.text)))
			b.WriteString("\n")
			continue
		}
		b.WriteString(wrap.Render(line.text))
		b.WriteString("\n")
	}
	m.timeline.SetContent(b.String())
	m.timeline.GotoBottom()
}

func (m chatModel) View() string {
	header := m.theme.header.Render(m.title)

	status := m.status
	if m.busy {
		status = m.spinner.View() + " the counter is working"
		if m.status != "" {
			status += " (" + m.status + ")"
		}
	}

	footer := m.theme.footer.Render("enter: send  esc: leave  /image <path>: attach a document")
	return lipgloss.JoinVertical(lipgloss.Left,
		header,
		m.timeline.View(),
		m.theme.status.Render(status),
		m.input.View(),
		footer,
	)
}
