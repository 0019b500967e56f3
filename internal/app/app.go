package app

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/x/ansi"
	"github.com/phonemulator/console/internal/client"
	"github.com/phonemulator/console/internal/logfmt"
	"github.com/phonemulator/console/internal/theme"
	"github.com/phonemulator/console/internal/views/dashboard"
	"github.com/phonemulator/console/internal/views/logpanel"
	"github.com/phonemulator/console/internal/views/status"
)

// Operations are the user-triggered actions the console drives.
// *actions.Service implements it.
type Operations interface {
	CurrentUser() (string, bool)
	Register(ctx context.Context, username, password string) error
	Login(ctx context.Context, username, password string) error
	GetUserInfo(ctx context.Context, username string) (*client.UserInfo, error)
	UpdatePassword(ctx context.Context, username, newPassword string) error
	AskLLM(ctx context.Context, prompt string) (string, error)
}

// Options configure the console.
type Options struct {
	MaxLogLines    int
	ReconnectDelay time.Duration
	ExportPath     string
}

// DefaultExportPath is where ctrl+e writes the log when no path is set.
const DefaultExportPath = "phonemulator-log.gz"

// Form fields in focus order.
const (
	fieldUsername = iota
	fieldPassword
	fieldLookup
	fieldNewPassword
	fieldPrompt
	fieldCount
)

var fieldLabels = [fieldCount]string{
	"Username",
	"Password",
	"Lookup user",
	"New password",
	"Prompt",
}

// Messages delivered to the program from outside the update loop.
type (
	// StatusMsg replaces the status line.
	StatusMsg struct {
		Text    string
		IsError bool
	}
	// LogLineMsg appends one formatted entry to the log panel.
	LogLineMsg struct{ Text string }
	// ConnStateMsg reports a push-channel state change.
	ConnStateMsg struct{ State client.State }
	// LLMAnswerMsg carries a generated answer.
	LLMAnswerMsg struct{ Text string }
	// RecordMsg carries a decoded backend record for the traffic view.
	RecordMsg struct{ Record logfmt.BackendRecord }
)

type (
	opDoneMsg struct {
		op  string
		err error
	}
	exportedMsg struct {
		path string
		err  error
	}
	tickMsg time.Time
)

// Model is the root Bubble Tea model.
type Model struct {
	ops    Operations
	ctx    context.Context
	cancel context.CancelFunc
	now    func() time.Time

	keys   KeyMap
	width  int
	height int

	inputs [fieldCount]textinput.Model
	focus  int

	statusBar   status.Model
	log         logpanel.Model
	dashboard   dashboard.Model
	showTraffic bool
	answer      string
	ticking     bool

	reconnectDelay time.Duration
	exportPath     string
}

// New creates the root model.
func New(ops Operations, opts Options) Model {
	ctx, cancel := context.WithCancel(context.Background())
	if opts.ReconnectDelay <= 0 {
		opts.ReconnectDelay = client.DefaultReconnectDelay
	}
	if opts.ExportPath == "" {
		opts.ExportPath = DefaultExportPath
	}

	m := Model{
		ops:            ops,
		ctx:            ctx,
		cancel:         cancel,
		now:            time.Now,
		keys:           DefaultKeyMap(),
		statusBar:      status.New(),
		log:            logpanel.New(opts.MaxLogLines),
		dashboard:      dashboard.New(),
		reconnectDelay: opts.ReconnectDelay,
		exportPath:     opts.ExportPath,
	}
	for i := range m.inputs {
		in := textinput.New()
		in.Placeholder = strings.ToLower(fieldLabels[i])
		in.CharLimit = 256
		if i == fieldPassword || i == fieldNewPassword {
			in.EchoMode = textinput.EchoPassword
			in.EchoCharacter = '•'
		}
		if i == fieldPrompt {
			in.CharLimit = 4096
		}
		m.inputs[i] = in
	}
	m.inputs[fieldUsername].Focus()
	return m
}

// Init starts the cursor blink.
func (m Model) Init() tea.Cmd {
	return textinput.Blink
}

// Update handles messages.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.statusBar.Width = msg.Width
		m.dashboard.Width = msg.Width - 2
		for i := range m.inputs {
			m.inputs[i].Width = max(msg.Width-24, 10)
		}
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)

	case StatusMsg:
		m.statusBar.SetStatus(msg.Text, msg.IsError)
		return m, nil

	case LogLineMsg:
		m.log.Add(msg.Text)
		return m, nil

	case RecordMsg:
		m.dashboard.Record(msg.Record)
		return m, nil

	case ConnStateMsg:
		m.statusBar.SetConn(msg.State.String(), m.now(), m.reconnectDelay)
		if m.statusBar.Counting() && !m.ticking {
			m.ticking = true
			return m, tick()
		}
		return m, nil

	case tickMsg:
		if !m.statusBar.Counting() {
			m.ticking = false
			return m, nil
		}
		m.statusBar.Tick(time.Time(msg))
		return m, tick()

	case LLMAnswerMsg:
		m.answer = ansi.Strip(msg.Text)
		return m, nil

	case opDoneMsg:
		return m, nil

	case exportedMsg:
		if msg.err != nil {
			m.statusBar.SetStatus("Export failed: "+msg.err.Error(), true)
		} else {
			m.statusBar.SetStatus(fmt.Sprintf("Exported %d log entries to %s", len(m.log.Entries), msg.path), false)
		}
		return m, nil
	}

	var cmd tea.Cmd
	m.inputs[m.focus], cmd = m.inputs[m.focus].Update(msg)
	return m, cmd
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Quit):
		m.cancel()
		return m, tea.Quit

	case key.Matches(msg, m.keys.Next):
		cmd := m.setFocus((m.focus + 1) % fieldCount)
		return m, cmd

	case key.Matches(msg, m.keys.Prev):
		cmd := m.setFocus((m.focus - 1 + fieldCount) % fieldCount)
		return m, cmd

	case key.Matches(msg, m.keys.Register):
		ops, user, pass := m.ops, m.value(fieldUsername), m.value(fieldPassword)
		return m, m.run("register", func(ctx context.Context) error {
			return ops.Register(ctx, user, pass)
		})

	case key.Matches(msg, m.keys.Login):
		ops, user, pass := m.ops, m.value(fieldUsername), m.value(fieldPassword)
		return m, m.run("login", func(ctx context.Context) error {
			return ops.Login(ctx, user, pass)
		})

	case key.Matches(msg, m.keys.GetUser):
		ops, lookup := m.ops, m.value(fieldLookup)
		return m, m.run("get user", func(ctx context.Context) error {
			_, err := ops.GetUserInfo(ctx, lookup)
			return err
		})

	case key.Matches(msg, m.keys.UpdatePass):
		ops, lookup, pass := m.ops, m.value(fieldLookup), m.value(fieldNewPassword)
		return m, m.run("update password", func(ctx context.Context) error {
			return ops.UpdatePassword(ctx, lookup, pass)
		})

	case key.Matches(msg, m.keys.Send):
		return m, m.ask()

	case key.Matches(msg, m.keys.Enter):
		if m.focus == fieldPrompt {
			return m, m.ask()
		}
		cmd := m.setFocus(m.focus + 1)
		return m, cmd

	case key.Matches(msg, m.keys.ScrollUp):
		m.log.ScrollUp(5)
		return m, nil

	case key.Matches(msg, m.keys.ScrollDown):
		m.log.ScrollDown(5)
		return m, nil

	case key.Matches(msg, m.keys.Export):
		return m, m.export()

	case key.Matches(msg, m.keys.Traffic):
		m.showTraffic = !m.showTraffic
		return m, nil
	}

	var cmd tea.Cmd
	m.inputs[m.focus], cmd = m.inputs[m.focus].Update(msg)
	return m, cmd
}

func (m *Model) setFocus(i int) tea.Cmd {
	m.inputs[m.focus].Blur()
	m.focus = i
	return m.inputs[i].Focus()
}

func (m Model) value(field int) string {
	return m.inputs[field].Value()
}

// run executes op off the update loop. Outcomes reach the status line
// through the display sink.
func (m Model) run(name string, op func(ctx context.Context) error) tea.Cmd {
	ctx := m.ctx
	return func() tea.Msg {
		return opDoneMsg{op: name, err: op(ctx)}
	}
}

func (m Model) ask() tea.Cmd {
	ctx, ops, prompt := m.ctx, m.ops, m.value(fieldPrompt)
	return func() tea.Msg {
		text, err := ops.AskLLM(ctx, prompt)
		if err != nil {
			return opDoneMsg{op: "ask llm", err: err}
		}
		return LLMAnswerMsg{Text: text}
	}
}

func (m Model) export() tea.Cmd {
	log, path := m.log, m.exportPath
	return func() tea.Msg {
		f, err := os.Create(path)
		if err != nil {
			return exportedMsg{path: path, err: err}
		}
		if err := log.Export(f); err != nil {
			f.Close()
			return exportedMsg{path: path, err: err}
		}
		return exportedMsg{path: path, err: f.Close()}
	}
}

func tick() tea.Cmd {
	return tea.Tick(time.Second/status.FPS, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

// View renders the full console.
func (m Model) View() string {
	if m.width == 0 || m.height == 0 {
		return "Initializing..."
	}

	top := []string{
		m.statusBar.View(m.now()),
		m.renderForm(),
	}
	if m.showTraffic {
		top = append(top, m.dashboard.View())
	}
	if m.answer != "" {
		top = append(top, m.renderAnswer())
	}
	help := theme.StyleDimmed.Render("  " + m.helpLine())

	used := lipgloss.Height(lipgloss.JoinVertical(lipgloss.Left, top...)) + lipgloss.Height(help)
	logHeight := m.height - used
	sections := append(top, m.log.View(m.width, logHeight), help)
	return lipgloss.JoinVertical(lipgloss.Left, sections...)
}

func (m Model) renderForm() string {
	var lines []string

	if user, ok := m.ops.CurrentUser(); ok {
		lines = append(lines, theme.StyleOK.Render("Logged in as "+user))
	} else {
		lines = append(lines, theme.StyleDimmed.Render("Not logged in"))
	}

	for i := range m.inputs {
		label := fmt.Sprintf("%-13s", fieldLabels[i])
		if i == m.focus {
			label = lipgloss.NewStyle().Foreground(theme.ColorFocus).Bold(true).Render("> " + label)
		} else {
			label = theme.StyleDimmed.Render("  " + label)
		}
		lines = append(lines, label+" "+m.inputs[i].View())
	}

	style := theme.StyleBorder
	return style.Width(max(m.width-2, 20)).Render(lipgloss.JoinVertical(lipgloss.Left, lines...))
}

func (m Model) renderAnswer() string {
	width := max(m.width-4, 20)
	body := m.answer
	r, err := glamour.NewTermRenderer(
		glamour.WithStandardStyle("dark"),
		glamour.WithWordWrap(width),
	)
	if err == nil {
		if out, err := r.Render(m.answer); err == nil {
			body = strings.TrimRight(out, "\n")
		}
	}
	title := theme.StyleHeader.Render(" LLM ANSWER ")
	return theme.StyleBorder.Width(max(m.width-2, 20)).Render(lipgloss.JoinVertical(lipgloss.Left, title, body))
}

func (m Model) helpLine() string {
	var parts []string
	for _, b := range m.keys.ShortHelp() {
		h := b.Help()
		parts = append(parts, h.Key+":"+h.Desc)
	}
	return strings.Join(parts, "  ")
}
