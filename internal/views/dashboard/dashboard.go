// Package dashboard provides a traffic summary row and per-route table
// built from the backend's request log.
package dashboard

import (
	"fmt"
	"sort"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/phonemulator/console/internal/logfmt"
	"github.com/phonemulator/console/internal/theme"
)

// Route aggregates the exchanges seen for one method and route.
type Route struct {
	Method     string
	Path       string
	Requests   int
	OK         int
	ClientErr  int
	ServerErr  int
	LastStatus int
}

// ErrorRate is the share of responses that were not 2xx.
func (r *Route) ErrorRate() float64 {
	total := r.OK + r.ClientErr + r.ServerErr
	if total == 0 {
		return 0
	}
	return float64(r.ClientErr+r.ServerErr) / float64(total)
}

// Totals are the counters in the summary row.
type Totals struct {
	Requests  int
	Responses int
	Errors    int
	Upstream  int
}

// Model holds the dashboard state.
type Model struct {
	Width  int
	Totals Totals
	routes map[string]*Route
}

// New creates a dashboard model.
func New() Model {
	return Model{routes: make(map[string]*Route)}
}

// Record folds one backend record into the counters.
func (m *Model) Record(r logfmt.BackendRecord) {
	switch r.Source {
	case "client_request":
		m.Totals.Requests++
		m.route(r).Requests++
	case "server_response":
		m.Totals.Responses++
		rt := m.route(r)
		rt.LastStatus = r.Status
		switch {
		case r.Status >= 500:
			rt.ServerErr++
			m.Totals.Errors++
		case r.Status >= 400:
			rt.ClientErr++
			m.Totals.Errors++
		default:
			rt.OK++
		}
	case "ollama_request", "ollama_response":
		m.Totals.Upstream++
	case "ollama_error":
		m.Totals.Upstream++
		m.Totals.Errors++
	case "server_error":
		m.Totals.Errors++
	}
}

func (m *Model) route(r logfmt.BackendRecord) *Route {
	if m.routes == nil {
		m.routes = make(map[string]*Route)
	}
	path := RoutePattern(r.URL)
	key := r.Method + " " + path
	rt, ok := m.routes[key]
	if !ok {
		rt = &Route{Method: r.Method, Path: path}
		m.routes[key] = rt
	}
	return rt
}

// Routes returns the routes by descending request count, then by key.
func (m Model) Routes() []*Route {
	out := make([]*Route, 0, len(m.routes))
	for _, r := range m.routes {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Requests != out[j].Requests {
			return out[i].Requests > out[j].Requests
		}
		return out[i].Method+out[i].Path < out[j].Method+out[j].Path
	})
	return out
}

// RoutePattern collapses per-user paths so every user shares one row.
func RoutePattern(url string) string {
	if rest, ok := strings.CutPrefix(url, "/user/"); ok && rest != "" {
		return "/user/{username}/"
	}
	return url
}

// View renders the full dashboard: stats row + route table.
func (m Model) View() string {
	width := m.Width
	if width < 40 {
		width = 40
	}

	sections := []string{
		m.renderStatsRow(width),
		m.renderRoutes(width),
	}
	return lipgloss.JoinVertical(lipgloss.Left, sections...)
}

// renderStatsRow shows aggregate counts in a single row.
func (m Model) renderStatsRow(width int) string {
	statStyle := lipgloss.NewStyle().Padding(0, 1)

	stats := []string{
		statStyle.Foreground(theme.ColorRequest).Render(
			fmt.Sprintf("Requests: %s", formatCount(m.Totals.Requests))),
		statStyle.Foreground(theme.ColorResponse).Render(
			fmt.Sprintf("Responses: %s", formatCount(m.Totals.Responses))),
		statStyle.Foreground(theme.ColorError).Render(
			fmt.Sprintf("Errors: %s", formatCount(m.Totals.Errors))),
		statStyle.Foreground(theme.ColorUpstream).Render(
			fmt.Sprintf("Upstream: %s", formatCount(m.Totals.Upstream))),
	}

	content := strings.Join(stats, lipgloss.NewStyle().Foreground(theme.ColorBorder).Render(" | "))

	return lipgloss.NewStyle().
		Width(width).
		Padding(0, 1).
		BorderStyle(lipgloss.RoundedBorder()).
		BorderForeground(theme.ColorBorder).
		Render(content)
}

// renderRoutes renders a table of routes sorted by request count.
func (m Model) renderRoutes(width int) string {
	header := lipgloss.NewStyle().Bold(true).Foreground(theme.ColorBright).
		Render("  Routes")

	routes := m.Routes()
	if len(routes) == 0 {
		return lipgloss.JoinVertical(lipgloss.Left,
			header,
			theme.StyleDimmed.Render("  No traffic yet"),
		)
	}

	// Column widths (fixed layout).
	colMethod := 7
	colPath := 22
	colReq := 6
	colOK := 6
	colErr := 6
	colLast := 6
	colRate := 18

	dimStyle := lipgloss.NewStyle().Foreground(theme.ColorDimmed)
	brightStyle := lipgloss.NewStyle().Foreground(theme.ColorBright).Bold(true)

	tableHeader := fmt.Sprintf("  %-*s %-*s %*s %*s %*s %*s %-*s",
		colMethod, "Method",
		colPath, "Route",
		colReq, "Reqs",
		colOK, "2xx",
		colErr, "Errs",
		colLast, "Last",
		colRate, "Error rate",
	)
	lines := []string{
		header,
		dimStyle.Render(tableHeader),
		dimStyle.Render("  " + strings.Repeat("─", min(width-4, colMethod+colPath+colReq+colOK+colErr+colLast+colRate+6))),
	}

	for _, r := range routes {
		methodStr := dimStyle.Width(colMethod).Render(r.Method)

		path := r.Path
		if len(path) > colPath-1 {
			path = path[:colPath-2] + "…"
		}
		pathStr := lipgloss.NewStyle().Foreground(theme.ColorBright).Width(colPath).Render(path)

		reqStr := brightStyle.Width(colReq).Align(lipgloss.Right).Render(formatCount(r.Requests))
		okStr := brightStyle.Width(colOK).Align(lipgloss.Right).Render(formatCount(r.OK))
		errStr := brightStyle.Width(colErr).Align(lipgloss.Right).Render(formatCount(r.ClientErr + r.ServerErr))

		last := "-"
		if r.LastStatus != 0 {
			last = fmt.Sprintf("%d", r.LastStatus)
		}
		lastStr := lipgloss.NewStyle().Foreground(statusColor(r.LastStatus)).Width(colLast).Align(lipgloss.Right).Render(last)

		rateStr := lipgloss.NewStyle().Width(colRate).Render(renderRateBar(r.ErrorRate(), colRate-1))

		line := fmt.Sprintf("  %s %s %s %s %s %s %s",
			methodStr, pathStr, reqStr, okStr, errStr, lastStr, rateStr)
		lines = append(lines, line)
	}

	return lipgloss.JoinVertical(lipgloss.Left, lines...)
}

func statusColor(status int) lipgloss.Color {
	switch {
	case status == 0:
		return theme.ColorDimmed
	case status >= 400:
		return theme.ColorDanger
	default:
		return theme.ColorHealthy
	}
}

// renderRateBar draws a small bar for an error rate.
func renderRateBar(pct float64, barWidth int) string {
	if barWidth < 8 {
		barWidth = 8
	}

	// Reserve space for percentage label (e.g. " 100%").
	labelWidth := 5
	fillWidth := barWidth - labelWidth
	if fillWidth < 3 {
		fillWidth = 3
	}

	filled := max(0, min(int(pct*float64(fillWidth)), fillWidth))
	empty := fillWidth - filled

	color := theme.RatioColor(pct)
	bar := lipgloss.NewStyle().Foreground(color).Render(strings.Repeat("█", filled))
	bar += lipgloss.NewStyle().Foreground(theme.ColorBorder).Render(strings.Repeat("░", empty))
	label := fmt.Sprintf(" %3.0f%%", pct*100)

	return bar + lipgloss.NewStyle().Foreground(color).Render(label)
}

// formatCount formats large numbers with K/M suffixes.
func formatCount(n int) string {
	switch {
	case n >= 1_000_000:
		return fmt.Sprintf("%.1fM", float64(n)/1_000_000)
	case n >= 1_000:
		return fmt.Sprintf("%.1fK", float64(n)/1_000)
	default:
		return fmt.Sprintf("%d", n)
	}
}
