// Package theme provides the Lip Gloss color palette and reusable styles
// for the phonemulator console. It is a leaf package with no internal
// imports to avoid import cycles.
package theme

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// Connection colors.
var (
	ColorConnecting = lipgloss.Color("#d97706")
	ColorOpen       = lipgloss.Color("#22c55e")
	ColorClosed     = lipgloss.Color("#dc2626")
	ColorIdle       = lipgloss.Color("#4b5563")
)

// Log line colors, keyed by the record source.
var (
	ColorSystem   = lipgloss.Color("#7c3aed")
	ColorRequest  = lipgloss.Color("#2563eb")
	ColorResponse = lipgloss.Color("#16a34a")
	ColorUpstream = lipgloss.Color("#06b6d4")
	ColorError    = lipgloss.Color("#dc2626")
)

// UI chrome colors.
var (
	ColorBorder  = lipgloss.Color("#4b5563")
	ColorFocus   = lipgloss.Color("#a855f7")
	ColorDimmed  = lipgloss.Color("#6b7280")
	ColorBright  = lipgloss.Color("#f9fafb")
	ColorHealthy = lipgloss.Color("#22c55e")
	ColorWarning = lipgloss.Color("#d97706")
	ColorDanger  = lipgloss.Color("#dc2626")
)

// ConnectionColor returns the color for a connection state name.
func ConnectionColor(state string) lipgloss.Color {
	switch state {
	case "connecting":
		return ColorConnecting
	case "open":
		return ColorOpen
	case "closed":
		return ColorClosed
	default:
		return ColorIdle
	}
}

// ConnectionGlyph returns a glyph for a connection state name.
func ConnectionGlyph(state string) string {
	switch state {
	case "connecting":
		return "◌"
	case "open":
		return "●"
	case "closed":
		return "✗"
	default:
		return "○"
	}
}

// LogLineColor picks a color from the first line of a formatted log
// entry.
func LogLineColor(line string) lipgloss.Color {
	switch {
	case strings.HasPrefix(line, "[SYSTEM]"):
		return ColorSystem
	case strings.Contains(line, "_ERROR"):
		return ColorError
	case strings.Contains(line, "OLLAMA_"):
		return ColorUpstream
	case strings.Contains(line, "CLIENT_REQUEST"):
		return ColorRequest
	case strings.Contains(line, "SERVER_RESPONSE"):
		return ColorResponse
	default:
		return ColorBright
	}
}

// Reusable styles.
var (
	StyleBorder = lipgloss.NewStyle().
			BorderStyle(lipgloss.RoundedBorder()).
			BorderForeground(ColorBorder)

	StyleFocused = lipgloss.NewStyle().
			BorderStyle(lipgloss.RoundedBorder()).
			BorderForeground(ColorFocus)

	StyleHeader = lipgloss.NewStyle().
			Bold(true).
			Foreground(ColorBright)

	StyleDimmed = lipgloss.NewStyle().
			Foreground(ColorDimmed)

	StyleOK = lipgloss.NewStyle().
		Foreground(ColorHealthy)

	StyleError = lipgloss.NewStyle().
			Bold(true).
			Foreground(ColorDanger)
)

// RatioColor returns a color for an error ratio in [0, 1].
func RatioColor(pct float64) lipgloss.Color {
	switch {
	case pct >= 0.5:
		return ColorDanger
	case pct >= 0.1:
		return ColorWarning
	default:
		return ColorHealthy
	}
}
