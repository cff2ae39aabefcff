package render

import (
	"strconv"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"slotbot/internal/model"
)

// SignupLayout is how the next claim instant is shown.
const SignupLayout = "Mon 02-01-2006 15:04"

var headers = []string{"ID", "Sport", "Weekday", "Start time", "Facility", "Weekly", "Next signup time"}

var (
	headerStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#5B8DEF")).Padding(0, 1)
	cellStyle   = lipgloss.NewStyle().Padding(0, 1)
	overdue     = cellStyle.Foreground(lipgloss.Color("#FF6B6B"))
)

// Table renders the pending entries in their dispatch order. An empty
// schedule still renders the header row.
func Table(entries []model.Occurrence, loc *time.Location, now time.Time) string {
	if loc == nil {
		loc = time.Local
	}
	rows := make([][]string, 0, len(entries))
	for _, o := range entries {
		rows = append(rows, Row(o, loc))
	}

	t := table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(lipgloss.Color("#444444"))).
		Headers(headers...).
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle
			}
			if row >= 0 && row < len(entries) && col == len(headers)-1 && entries[row].FireAt().Before(now) {
				return overdue
			}
			return cellStyle
		})
	return t.String()
}

// Row is the plain cell text for one entry.
func Row(o model.Occurrence, loc *time.Location) []string {
	weekly := "no"
	if o.Weekly {
		weekly = "yes"
	}
	return []string{
		strconv.Itoa(o.ID),
		o.Activity,
		o.Weekday,
		o.StartTime,
		o.Facility,
		weekly,
		o.FireAt().In(loc).Format(SignupLayout),
	}
}
