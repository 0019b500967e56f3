package status

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/harmonica"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/x/ansi"
	"github.com/phonemulator/console/internal/theme"
)

// FPS is the countdown animation rate.
const FPS = 30

const barWidth = 20

// Model holds the status bar state.
type Model struct {
	Conn    string // connection state name
	Text    string // last operation status
	IsError bool
	Width   int

	delay       time.Duration
	reconnectAt time.Time
	spring      harmonica.Spring
	progress    float64 // eased fraction of the reconnect delay remaining
	velocity    float64
}

// New creates a status bar model.
func New() Model {
	return Model{
		Conn:   "idle",
		Text:   "Ready.",
		spring: harmonica.NewSpring(harmonica.FPS(FPS), 6.0, 1.0),
	}
}

// SetStatus records the outcome of the latest operation. Text is kept
// verbatim; terminal control sequences are dropped when rendering.
func (m *Model) SetStatus(text string, isError bool) {
	m.Text = text
	m.IsError = isError
}

// SetConn records a connection state change. Entering "closed" starts the
// reconnect countdown.
func (m *Model) SetConn(state string, now time.Time, delay time.Duration) {
	m.Conn = state
	if state == "closed" && delay > 0 {
		m.delay = delay
		m.reconnectAt = now.Add(delay)
		m.progress, m.velocity = 1, 0
		return
	}
	m.reconnectAt = time.Time{}
	m.progress, m.velocity = 0, 0
}

// Counting reports whether a reconnect countdown is running.
func (m Model) Counting() bool { return !m.reconnectAt.IsZero() }

// Tick advances the countdown animation towards the remaining fraction of
// the reconnect delay at now.
func (m *Model) Tick(now time.Time) {
	if !m.Counting() {
		return
	}
	target := float64(m.reconnectAt.Sub(now)) / float64(m.delay)
	if target < 0 {
		target = 0
	}
	m.progress, m.velocity = m.spring.Update(m.progress, m.velocity, target)
	if m.progress < 0 {
		m.progress = 0
	}
}

// Remaining returns the time left before the next connection attempt.
func (m Model) Remaining(now time.Time) time.Duration {
	if !m.Counting() {
		return 0
	}
	d := m.reconnectAt.Sub(now)
	if d < 0 {
		return 0
	}
	return d
}

// View renders the status bar at now.
func (m Model) View(now time.Time) string {
	width := m.Width
	if width < 40 {
		width = 40
	}

	connStr := lipgloss.NewStyle().Foreground(theme.ConnectionColor(m.Conn)).
		Render(theme.ConnectionGlyph(m.Conn) + " " + m.Conn)

	if m.Counting() {
		filled := int(m.progress*barWidth + 0.5)
		if filled > barWidth {
			filled = barWidth
		}
		if filled < 0 {
			filled = 0
		}
		bar := strings.Repeat("█", filled) + strings.Repeat("░", barWidth-filled)
		secs := m.Remaining(now).Seconds()
		connStr += " " + lipgloss.NewStyle().Foreground(theme.ColorWarning).Render(bar) +
			theme.StyleDimmed.Render(fmt.Sprintf(" retry in %.1fs", secs))
	}

	text := ansi.Strip(m.Text)
	var statusStr string
	if m.IsError {
		statusStr = theme.StyleError.Render(text)
	} else {
		statusStr = theme.StyleOK.Render(text)
	}

	sep := lipgloss.NewStyle().Foreground(theme.ColorBorder).Render(" | ")
	content := connStr + sep + statusStr

	bar := lipgloss.NewStyle().
		Width(width).
		Padding(0, 1).
		BorderStyle(lipgloss.DoubleBorder()).
		BorderForeground(theme.ColorBorder).
		Render(content)

	return bar
}
