package tui

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/cutscene/cutscene-client/internal/editor"
	"github.com/cutscene/cutscene-client/internal/remote"
)

var (
	accentColor  = lipgloss.Color("205")
	dimTextColor = lipgloss.Color("241")
	warningColor = lipgloss.Color("214")

	titleStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("230")).Background(lipgloss.Color("62")).Padding(0, 1)
	labelStyle  = lipgloss.NewStyle().Width(7)
	focusStyle  = lipgloss.NewStyle().Foreground(accentColor).Bold(true)
	dimStyle    = lipgloss.NewStyle().Foreground(dimTextColor)
	statusStyle = lipgloss.NewStyle().Foreground(warningColor)
	boxStyle    = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(dimTextColor).Padding(0, 1)
)

func (m *Model) View() string {
	var b strings.Builder

	switch {
	case m.mode != modeSessions && m.rng != nil:
		b.WriteString(m.viewRange())
	case m.sessions.AuthRequired:
		b.WriteString(titleStyle.Render("Login required"))
		b.WriteString("\n\n  Open this page to sign in, then restart:\n  ")
		b.WriteString(focusStyle.Render(m.sessions.AuthURL))
		b.WriteString("\n")
	case m.sessions.Status == editor.StatusLoading:
		b.WriteString(fmt.Sprintf("\n  %s Loading sessions...\n", m.spinner.View()))
	case m.sessions.Empty():
		b.WriteString(titleStyle.Render("Now playing"))
		b.WriteString("\n\n  No active sessions.\n")
	default:
		b.WriteString(m.list.View())
	}

	if m.status != "" {
		b.WriteString("\n")
		b.WriteString(statusStyle.Render("  " + m.status))
	}

	m.keys.inRange = m.mode != modeSessions
	b.WriteString("\n")
	b.WriteString(dimStyle.Render("  " + m.help.View(m.keys)))
	return b.String()
}

func (m *Model) viewRange() string {
	r := m.rng
	var b strings.Builder

	b.WriteString(titleStyle.Render(r.Session.DisplayTitle()))
	if sub := r.Session.DisplaySubtitle(); sub != "" {
		b.WriteString("  ")
		b.WriteString(dimStyle.Render(sub))
	}
	b.WriteString("\n\n")

	b.WriteString(m.boundRow("Start", r.Start, boundStart))
	b.WriteString(m.boundRow("End", r.End, boundEnd))
	b.WriteString("\n  ")
	b.WriteString(sliderBar(r.StartMs, r.EndMs, r.DurationMs, max(m.width-8, 20)))
	b.WriteString("\n")

	var info strings.Builder
	fmt.Fprintf(&info, "Length  %s", formatLength(r.EndMs-r.StartMs))
	if m.preview.URL != "" {
		info.WriteString("\nPreview ")
		info.WriteString(dimStyle.Render(truncate(displayURL(m.preview.URL), max(m.width-16, 20))))
	}
	b.WriteString(boxStyle.Render(info.String()))
	b.WriteString("\n")
	return b.String()
}

func (m *Model) boundRow(label, value string, which bound) string {
	marker := "  "
	style := lipgloss.NewStyle()
	if m.focus == which {
		marker = focusStyle.Render("▸ ")
		style = focusStyle
	}

	row := marker + labelStyle.Render(label) + style.Render(value)
	if m.focus == which && (m.mode == modeClock || m.mode == modeMillis) {
		row += "   " + m.input.View()
	}
	return row + "\n"
}

func sliderBar(startMs, endMs, durationMs, width int) string {
	total := durationMs
	if total <= 0 {
		total = endMs + endMs/4
	}
	if total <= 0 {
		total = 1
	}

	startPos := min(max(startMs*(width-1)/total, 0), width-1)
	endPos := min(max(endMs*(width-1)/total, startPos), width-1)

	rangeStyle := lipgloss.NewStyle().Foreground(accentColor)
	markerStyle := lipgloss.NewStyle().Foreground(warningColor).Bold(true)

	var b strings.Builder
	b.WriteString(dimStyle.Render("["))
	for i := 0; i < width; i++ {
		switch {
		case i == startPos || i == endPos:
			b.WriteString(markerStyle.Render("◆"))
		case i > startPos && i < endPos:
			b.WriteString(rangeStyle.Render("━"))
		default:
			b.WriteString(dimStyle.Render("─"))
		}
	}
	b.WriteString(dimStyle.Render("]"))
	return b.String()
}

func formatLength(ms int) string {
	if ms%1000 == 0 {
		return fmt.Sprintf("%ds", ms/1000)
	}
	return fmt.Sprintf("%d.%03ds", ms/1000, ms%1000)
}

// displayURL drops the server token from a link before it is drawn.
func displayURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return raw
	}
	q := u.Query()
	if !q.Has(remote.HeaderToken) {
		return raw
	}
	q.Del(remote.HeaderToken)
	u.RawQuery = q.Encode()
	return u.String()
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
