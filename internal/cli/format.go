package cli

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"project-api/pkg/dashboard"
	"project-api/pkg/task"
)

var (
	ColorGreen  = lipgloss.Color("#8ec07c")
	ColorYellow = lipgloss.Color("#fabd2f")
	ColorBlue   = lipgloss.Color("#83a598")
	ColorDim    = lipgloss.Color("#928374")
	ColorFg     = lipgloss.Color("#ebdbb2")
	ColorHeader = lipgloss.Color("#fe8019")
)

var (
	StyleGreen  = lipgloss.NewStyle().Foreground(ColorGreen)
	StyleYellow = lipgloss.NewStyle().Foreground(ColorYellow)
	StyleBlue   = lipgloss.NewStyle().Foreground(ColorBlue)
	StyleDim    = lipgloss.NewStyle().Foreground(ColorDim)
	StyleHeader = lipgloss.NewStyle().Foreground(ColorHeader).Bold(true)
	StyleBold   = lipgloss.NewStyle().Foreground(ColorFg).Bold(true)
)

// Header renders an upper-cased section title with an underline.
func Header(text string) string {
	upper := strings.ToUpper(text)
	return StyleHeader.Render(upper) + "\n" + StyleDim.Render(strings.Repeat("─", len(upper)))
}

func Dim(text string) string  { return StyleDim.Render(text) }
func Bold(text string) string { return StyleBold.Render(text) }

// HoursMinutes renders d as HH:MM.
func HoursMinutes(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	m := int64(d / time.Minute)
	return fmt.Sprintf("%02d:%02d", m/60, m%60)
}

func statusStyle(s task.Status) lipgloss.Style {
	switch s {
	case task.StatusDone:
		return StyleGreen
	case task.StatusInProgress:
		return StyleYellow
	default:
		return StyleBlue
	}
}

func renderTable(headers []string, rows [][]string) string {
	return table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(StyleDim).
		Headers(headers...).
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return StyleHeader.Padding(0, 1)
			}
			return lipgloss.NewStyle().Padding(0, 1)
		}).
		String()
}

// FormatDashboard renders metrics for a terminal.
func FormatDashboard(who string, m *dashboard.Metrics, now time.Time) string {
	var b strings.Builder

	b.WriteString(Header("Dashboard " + who))
	b.WriteString("\n")
	fmt.Fprintf(&b, "%s %d   %s %d\n", Dim("projects"), m.ProjectCount, Dim("tasks"), m.TaskCount)

	parts := make([]string, 0, len(task.Statuses))
	for _, s := range task.Statuses {
		parts = append(parts, statusStyle(s).Render(fmt.Sprintf("%d %s", m.TaskCounts[s], s)))
	}
	b.WriteString(strings.Join(parts, Dim(" · ")))
	b.WriteString("\n")
	fmt.Fprintf(&b, "%s %s   %s %s\n\n",
		Dim("estimated"), Bold(HoursMinutes(m.TotalEstimated)),
		Dim("spent"), Bold(HoursMinutes(m.TotalSpent)))

	title := "Time per project"
	if !m.Range.IsZero() {
		from, to := "…", "…"
		if m.Range.From != nil {
			from = m.Range.From.Format("2006-01-02")
		}
		if m.Range.To != nil {
			to = m.Range.To.Format("2006-01-02")
		}
		title += " " + from + " → " + to
	}
	b.WriteString(Header(title))
	b.WriteString("\n")
	if len(m.PerProject) == 0 {
		b.WriteString(Dim("no projects"))
		b.WriteString("\n")
	} else {
		rows := make([][]string, 0, len(m.PerProject))
		for _, pt := range m.PerProject {
			rows = append(rows, []string{pt.Title, HoursMinutes(pt.Spent)})
		}
		b.WriteString(renderTable([]string{"PROJECT", "SPENT"}, rows))
		b.WriteString("\n")
	}

	if len(m.ActiveTimers) > 0 {
		b.WriteString("\n")
		b.WriteString(Header("Active timers"))
		b.WriteString("\n")
		rows := make([][]string, 0, len(m.ActiveTimers))
		for _, at := range m.ActiveTimers {
			rows = append(rows, []string{at.Title, at.StartedAt.Local().Format("Jan 2 15:04"), HoursMinutes(now.Sub(at.StartedAt))})
		}
		b.WriteString(renderTable([]string{"TASK", "STARTED", "ELAPSED"}, rows))
		b.WriteString("\n")
	}
	return b.String()
}
