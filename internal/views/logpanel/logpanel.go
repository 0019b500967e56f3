// Package logpanel provides the scrollable push-channel log display. It
// keeps a bounded buffer: once full, each new entry evicts the oldest.
package logpanel

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/x/ansi"
	"github.com/klauspost/compress/gzip"
	"github.com/phonemulator/console/internal/theme"
)

// DefaultMaxEntries is used when New is given a non-positive size.
const DefaultMaxEntries = 500

// Entry is one formatted log event. Text may span several lines.
type Entry struct {
	Time time.Time
	Text string
}

// Model holds the log buffer and scroll state.
type Model struct {
	Entries []Entry
	Offset  int // scroll offset in entries, from the bottom
	max     int
}

// New creates an empty log keeping at most maxEntries entries.
func New(maxEntries int) Model {
	if maxEntries <= 0 {
		maxEntries = DefaultMaxEntries
	}
	return Model{max: maxEntries}
}

// Max returns the buffer capacity.
func (m Model) Max() int { return m.max }

// Add appends an entry, dropping the oldest beyond capacity.
func (m *Model) Add(text string) {
	m.Entries = append(m.Entries, Entry{Time: time.Now(), Text: text})
	if len(m.Entries) > m.max {
		m.Entries = m.Entries[len(m.Entries)-m.max:]
	}
	// Reset scroll to bottom on new entry.
	m.Offset = 0
}

// ScrollUp moves the viewport up.
func (m *Model) ScrollUp(n int) {
	m.Offset += n
	max := len(m.Entries) - 1
	if max < 0 {
		max = 0
	}
	if m.Offset > max {
		m.Offset = max
	}
}

// ScrollDown moves the viewport down.
func (m *Model) ScrollDown(n int) {
	m.Offset -= n
	if m.Offset < 0 {
		m.Offset = 0
	}
}

// Export writes the buffered entries to w as gzip-compressed text, one
// entry per line prefixed with its receive time.
func (m Model) Export(w io.Writer) error {
	zw := gzip.NewWriter(w)
	for _, e := range m.Entries {
		if _, err := fmt.Fprintf(zw, "%s %s\n", e.Time.Format(time.RFC3339), e.Text); err != nil {
			zw.Close()
			return err
		}
	}
	return zw.Close()
}

// View renders the log as a bordered panel of the given outer size.
func (m Model) View(width, height int) string {
	innerW := width - 4
	if innerW < 20 {
		innerW = 20
	}
	visibleLines := height - 4
	if visibleLines < 3 {
		visibleLines = 3
	}

	title := theme.StyleHeader.Render(" PUSH LOG ")
	help := theme.StyleDimmed.Render(fmt.Sprintf("pgup/pgdn:scroll  ctrl+e:export  %d/%d entries", len(m.Entries), m.max))

	if len(m.Entries) == 0 {
		body := theme.StyleDimmed.Render("  No events received yet.")
		content := lipgloss.JoinVertical(lipgloss.Left, title, body, help)
		return panelStyle(innerW).Render(content)
	}

	// Walk back from the bottom (minus offset) until the panel is full.
	end := len(m.Entries) - m.Offset
	if end < 0 {
		end = 0
	}
	var blocks [][]string
	used := 0
	for i := end - 1; i >= 0 && used < visibleLines-2; i-- {
		block := m.render(m.Entries[i], innerW)
		blocks = append(blocks, block)
		used += len(block)
	}

	var lines []string
	for i := len(blocks) - 1; i >= 0; i-- {
		lines = append(lines, blocks[i]...)
	}
	if over := len(lines) - (visibleLines - 2); over > 0 {
		lines = lines[over:]
	}

	scrollIndicator := ""
	if m.Offset > 0 {
		scrollIndicator = theme.StyleDimmed.Render(fmt.Sprintf(" ↓ %d more", m.Offset))
	}

	content := lipgloss.JoinVertical(lipgloss.Left, title, strings.Join(lines, "\n"), scrollIndicator, help)
	return panelStyle(innerW).Render(content)
}

func (m Model) render(e Entry, width int) []string {
	parts := strings.Split(e.Text, "\n")
	color := theme.LogLineColor(parts[0])
	out := make([]string, 0, len(parts))
	for i, p := range parts {
		p = ansi.Truncate(p, width, "…")
		if i == 0 {
			out = append(out, lipgloss.NewStyle().Foreground(color).Render(p))
		} else {
			out = append(out, theme.StyleDimmed.Render(p))
		}
	}
	return out
}

func panelStyle(width int) lipgloss.Style {
	return lipgloss.NewStyle().
		Width(width).
		Padding(0, 1).
		BorderStyle(lipgloss.RoundedBorder()).
		BorderForeground(theme.ColorBorder)
}
