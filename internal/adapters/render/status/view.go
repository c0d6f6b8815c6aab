package status

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/bnema/sessionpool/internal/application"
	"github.com/bnema/sessionpool/internal/domain"
	"github.com/charmbracelet/lipgloss"
)

const maxURLWidth = 56

type RenderOptions struct {
	Now     time.Time
	Profile string
}

// RenderOutcomes draws one row per request in submission order.
func RenderOutcomes(outcomes []application.Outcome, opts RenderOptions) (string, error) {
	return render(func(s styles) string {
		return outcomesView(outcomes, opts, s)
	})
}

// RenderSessions draws the cached sessions of a profile. Tokens are never shown.
func RenderSessions(sessions []domain.Session, opts RenderOptions) (string, error) {
	return render(func(s styles) string {
		return sessionsView(sessions, opts, s)
	})
}

func outcomesView(outcomes []application.Outcome, opts RenderOptions, s styles) string {
	failed := application.Failed(outcomes)
	lines := []string{
		s.title.Render(titleFor("Requests", opts.Profile)),
		s.header.Render(fmt.Sprintf("requests: %d  ok: %d  failed: %d", len(outcomes), len(outcomes)-failed, failed)),
	}

	if len(outcomes) == 0 {
		lines = append(lines, s.empty.Render("No requests were sent."))
		return lipgloss.JoinVertical(lipgloss.Left, lines...)
	}

	rows := make([][]string, 0, len(outcomes))
	for i, outcome := range outcomes {
		rows = append(rows, []string{
			fmt.Sprintf("%d", i+1),
			outcomeLabel(outcome),
			outcome.Method,
			truncate(outcome.URL, maxURLWidth),
			formatDuration(outcome.Duration),
			outcome.Message,
		})
	}

	table := renderTable([]string{"#", "result", "method", "url", "took", "message"}, rows, s, func(row []string, col int, cell string) string {
		if col != 1 {
			return s.detail.Render(cell)
		}
		if row[1] == "ok" {
			return s.ok.Render(cell)
		}
		return s.failed.Render(cell)
	})
	lines = append(lines, s.section.Render(table))

	return lipgloss.JoinVertical(lipgloss.Left, lines...)
}

func sessionsView(sessions []domain.Session, opts RenderOptions, s styles) string {
	lines := []string{
		s.title.Render(titleFor("Sessions", opts.Profile)),
		s.header.Render(fmt.Sprintf("sessions: %d", len(sessions))),
	}

	if len(sessions) == 0 {
		lines = append(lines, s.empty.Render("No cached sessions."))
		return lipgloss.JoinVertical(lipgloss.Left, lines...)
	}

	rows := make([][]string, 0, len(sessions))
	for _, session := range sessions {
		rows = append(rows, []string{
			session.ID,
			formatClock(session.Issued, opts.Now),
			formatExpiry(session.Expires, opts.Now),
			formatLastUsed(session.Used, opts.Now),
		})
	}

	table := renderTable([]string{"id", "issued", "expires", "last used"}, rows, s, func(row []string, col int, cell string) string {
		switch {
		case col == 0:
			return s.id.Render(cell)
		case col == 2 && row[2] == "expired":
			return s.warning.Render(cell)
		default:
			return s.detail.Render(cell)
		}
	})
	lines = append(lines, s.section.Render(table))

	return lipgloss.JoinVertical(lipgloss.Left, lines...)
}

// renderTable pads every column to its widest cell before styling, so colour codes do not skew widths.
func renderTable(headers []string, rows [][]string, s styles, style func(row []string, col int, cell string) string) string {
	widths := make([]int, len(headers))
	for i, header := range headers {
		widths[i] = lipgloss.Width(header)
	}
	for _, row := range rows {
		for i, cell := range row {
			widths[i] = max(widths[i], lipgloss.Width(cell))
		}
	}

	lines := make([]string, 0, len(rows)+1)
	headerCells := make([]string, len(headers))
	for i, header := range headers {
		headerCells[i] = s.column.Render(pad(header, widths[i]))
	}
	lines = append(lines, strings.Join(headerCells, "  "))

	for _, row := range rows {
		cells := make([]string, len(row))
		for i, cell := range row {
			cells[i] = style(row, i, pad(cell, widths[i]))
		}
		lines = append(lines, strings.TrimRight(strings.Join(cells, "  "), " "))
	}

	return lipgloss.JoinVertical(lipgloss.Left, lines...)
}

func outcomeLabel(outcome application.Outcome) string {
	if outcome.OK() {
		return "ok"
	}
	return "error " + outcome.Code
}

func titleFor(title, profile string) string {
	if profile == "" {
		return title
	}
	return fmt.Sprintf("%s (%s)", title, profile)
}

func pad(value string, width int) string {
	gap := width - lipgloss.Width(value)
	if gap <= 0 {
		return value
	}
	return value + strings.Repeat(" ", gap)
}

func truncate(value string, width int) string {
	runes := []rune(value)
	if len(runes) <= width {
		return value
	}
	return string(runes[:width-1]) + "…"
}

func formatDuration(d time.Duration) string {
	switch {
	case d <= 0:
		return "-"
	case d < time.Millisecond:
		return "<1ms"
	case d < time.Second:
		return fmt.Sprintf("%dms", d.Milliseconds())
	default:
		return fmt.Sprintf("%.1fs", d.Seconds())
	}
}

func formatClock(at, now time.Time) string {
	if at.IsZero() {
		return "-"
	}
	if now.IsZero() {
		return at.Format(time.RFC3339)
	}

	yearA, monthA, dayA := now.Date()
	yearB, monthB, dayB := at.Date()
	if yearA == yearB && monthA == monthB && dayA == dayB {
		return at.Format("15:04:05")
	}

	return at.Format("15:04 on 02 Jan")
}

func formatExpiry(expires, now time.Time) string {
	if now.IsZero() {
		return formatClock(expires, now)
	}
	if !now.Before(expires) {
		return "expired"
	}

	minutes := int(math.Ceil(expires.Sub(now).Minutes()))
	return fmt.Sprintf("in %s (%s)", pluralMinutes(minutes), formatClock(expires, now))
}

func formatLastUsed(used, now time.Time) string {
	if used.IsZero() {
		return "never"
	}
	if now.IsZero() {
		return formatClock(used, now)
	}

	minutes := int(now.Sub(used).Minutes())
	if minutes < 1 {
		return "just now"
	}
	return pluralMinutes(minutes) + " ago"
}

func pluralMinutes(minutes int) string {
	if minutes == 1 {
		return "1 minute"
	}
	return fmt.Sprintf("%d minutes", minutes)
}
